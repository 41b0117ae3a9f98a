package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/crypto/bcrypt"

	"github.com/tt-club/tournament-system/models"
	"github.com/tt-club/tournament-system/repositories"
)

// CreateMatchArgs records a standalone match between two members. When the
// acting member is neither an organizer nor an admin, OpponentPassword must
// verify against the opponent's credentials.
type CreateMatchArgs struct {
	ActorID          int
	ActorRole        models.MemberRole
	Member1ID        int
	Member2ID        int
	P1Sets           int
	P2Sets           int
	P1Forfeit        bool
	P2Forfeit        bool
	OpponentPassword string
}

// MatchService records standalone matches, outside any tournament. Each one
// goes straight through the incremental rating path.
type MatchService struct {
	db       *sql.DB
	matches  repositories.MatchRepository
	members  repositories.MemberRepository
	ratings  *RatingService
	notifier Notifier
	logger   *slog.Logger
}

func NewMatchService(
	db *sql.DB,
	matches repositories.MatchRepository,
	members repositories.MemberRepository,
	ratings *RatingService,
	notifier Notifier,
	logger *slog.Logger,
) *MatchService {
	return &MatchService{
		db:       db,
		matches:  matches,
		members:  members,
		ratings:  ratings,
		notifier: notifier,
		logger:   logger,
	}
}

// Create validates and persists a standalone match, then applies the rating
// exchange. The actor must be one of the two players unless they hold an
// organizer or admin role; a player-entered result additionally needs the
// opponent's password as consent.
func (s *MatchService) Create(ctx context.Context, args CreateMatchArgs) (*models.Match, error) {
	if args.Member1ID == args.Member2ID {
		return nil, ErrSameMember
	}
	score := UpdateMatchArgs{
		P1Sets:    args.P1Sets,
		P2Sets:    args.P2Sets,
		P1Forfeit: args.P1Forfeit,
		P2Forfeit: args.P2Forfeit,
	}
	if err := validateScore(&score); err != nil {
		return nil, err
	}

	if _, err := s.member(ctx, args.Member1ID); err != nil {
		return nil, err
	}
	if _, err := s.member(ctx, args.Member2ID); err != nil {
		return nil, err
	}

	privileged := args.ActorRole == models.RoleOrganizer || args.ActorRole == models.RoleAdmin
	if !privileged {
		var opponentID int
		switch args.ActorID {
		case args.Member1ID:
			opponentID = args.Member2ID
		case args.Member2ID:
			opponentID = args.Member1ID
		default:
			return nil, ErrForbiddenOperation
		}
		opponent, err := s.member(ctx, opponentID)
		if err != nil {
			return nil, err
		}
		if bcrypt.CompareHashAndPassword([]byte(opponent.PasswordHash), []byte(args.OpponentPassword)) != nil {
			return nil, ErrOpponentConsentRequired
		}
	}

	member2 := args.Member2ID
	match := &models.Match{
		Member1ID: args.Member1ID,
		Member2ID: &member2,
		P1Sets:    score.P1Sets,
		P2Sets:    score.P2Sets,
		P1Forfeit: score.P1Forfeit,
		P2Forfeit: score.P2Forfeit,
	}

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if err := s.matches.Create(ctx, tx, match); err != nil {
			return err
		}
		return s.ratings.ApplyMatchIncremental(ctx, tx, match, models.ReasonMatchCompleted)
	})
	if err != nil {
		return nil, err
	}

	if s.notifier != nil {
		s.notifier.Publish(EventMatchUpdated, "", match)
	}
	return match, nil
}

func (s *MatchService) Get(ctx context.Context, id int) (*models.Match, error) {
	match, err := s.matches.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrMatchNotFound) {
			return nil, ErrMatchNotFound
		}
		return nil, err
	}
	return match, nil
}

func (s *MatchService) member(ctx context.Context, id int) (*models.Member, error) {
	member, err := s.members.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrMemberNotFound) {
			return nil, fmt.Errorf("%w: member %d", ErrMemberNotFound, id)
		}
		return nil, err
	}
	return member, nil
}

func (s *MatchService) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.Error("transaction rollback failed", slog.Any("error", rbErr))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
