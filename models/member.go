package models

import "time"

// MemberRole mirrors the role ENUM in the database.
type MemberRole string

const (
	RoleAdmin     MemberRole = "admin"
	RoleOrganizer MemberRole = "organizer"
	RolePlayer    MemberRole = "player"
)

// Member is a club member. Rating is a denormalized convenience: the
// authoritative value at any instant is derivable from RatingHistory.
// A nil Rating means the member is unrated.
type Member struct {
	ID           int        `json:"id"`
	FirstName    string     `json:"first_name"`
	LastName     string     `json:"last_name"`
	Email        string     `json:"email"`
	Rating       *int       `json:"rating,omitempty"`
	Active       bool       `json:"active"`
	Role         MemberRole `json:"role"`
	PasswordHash string     `json:"-"`
	CreatedAt    time.Time  `json:"created_at"`
}

type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}
