package models

import "time"

// TournamentKind selects the plugin that drives a tournament.
type TournamentKind string

const (
	KindRoundRobin             TournamentKind = "ROUND_ROBIN"
	KindPlayoff                TournamentKind = "PLAYOFF"
	KindSwiss                  TournamentKind = "SWISS"
	KindPrelimWithFinalRR      TournamentKind = "PRELIM_WITH_FINAL_RR"
	KindPrelimWithFinalPlayoff TournamentKind = "PRELIM_WITH_FINAL_PLAYOFF"
)

// TournamentStatus matches the ENUM in the database. COMPLETED is terminal.
type TournamentStatus string

const (
	StatusActive    TournamentStatus = "ACTIVE"
	StatusCompleted TournamentStatus = "COMPLETED"
)

// Tournament is a tournament of any kind. Compound tournaments reference
// children by ParentID; a preliminary group additionally carries GroupNumber.
// RecordedAt is set exactly once, at the moment of completion.
type Tournament struct {
	ID          int              `json:"id"`
	Name        string           `json:"name"`
	Kind        TournamentKind   `json:"kind"`
	Status      TournamentStatus `json:"status"`
	Cancelled   bool             `json:"cancelled"`
	ParentID    *int             `json:"parent_id,omitempty"`
	GroupNumber *int             `json:"group_number,omitempty"`
	FinalSize   *int             `json:"final_size,omitempty"`
	SeedCount   *int             `json:"seed_count,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	RecordedAt  *time.Time       `json:"recorded_at,omitempty"`

	// Optional related entities, populated on the read path.
	Participants   []Participant  `json:"participants,omitempty"`
	Matches        []Match        `json:"matches,omitempty"`
	BracketMatches []BracketMatch `json:"bracket_matches,omitempty"`
	Swiss          *SwissData     `json:"swiss,omitempty"`
	Children       []*Tournament  `json:"children,omitempty"`
	Standings      []Standing     `json:"standings,omitempty"`
}

func (t *Tournament) IsCompleted() bool {
	return t.Status == StatusCompleted
}

// Participant is a member's enrollment in one tournament. RatingAtTime is
// the member's rating captured at enrollment and never mutated afterward:
// it is the basis of all subsequent rating recomputation for the tournament.
type Participant struct {
	TournamentID  int     `json:"tournament_id"`
	MemberID      int     `json:"member_id"`
	RatingAtTime  *int    `json:"rating_at_time,omitempty"`
	AutoQualified bool    `json:"auto_qualified,omitempty"`
	Member        *Member `json:"member,omitempty"`
	// PostRating is the rating after this tournament, attached on the read
	// path of completed tournaments.
	PostRating *int `json:"post_rating,omitempty"`
}

// Standing is a participant's computed rank within a completed tournament.
type Standing struct {
	TournamentID int `json:"tournament_id"`
	MemberID     int `json:"member_id"`
	Rank         int `json:"rank"`
	Wins         int `json:"wins"`
	Losses       int `json:"losses"`
	SetsWon      int `json:"sets_won"`
	SetsLost     int `json:"sets_lost"`
}
