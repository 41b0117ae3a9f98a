package services

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/tt-club/tournament-system/models"
	"github.com/tt-club/tournament-system/repositories"
)

// AuthService verifies member credentials. Token issuance lives in the
// handler layer.
type AuthService struct {
	members repositories.MemberRepository
}

func NewAuthService(members repositories.MemberRepository) *AuthService {
	return &AuthService{members: members}
}

// Login returns the member matching the credentials. Deactivated members
// cannot log in. The password hash is cleared before return.
func (s *AuthService) Login(ctx context.Context, creds models.Credentials) (*models.Member, error) {
	member, err := s.members.GetByEmail(ctx, creds.Email)
	if err != nil {
		if errors.Is(err, repositories.ErrMemberNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to find member by email: %w", err)
	}
	if !member.Active {
		return nil, ErrInvalidCredentials
	}

	err = bcrypt.CompareHashAndPassword([]byte(member.PasswordHash), []byte(creds.Password))
	if err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to compare password hash: %w", err)
	}

	member.PasswordHash = ""
	return member, nil
}
