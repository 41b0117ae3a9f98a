package services

import (
	"context"
	"database/sql"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/mail"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/tt-club/tournament-system/models"
	"github.com/tt-club/tournament-system/repositories"
)

// MemberService covers the management surface around club members: listing,
// creation and bulk import, deactivation, deletion, and manual rating
// adjustments.
type MemberService struct {
	db       *sql.DB
	members  repositories.MemberRepository
	matches  repositories.MatchRepository
	history  repositories.RatingHistoryRepository
	ratings  *RatingService
	notifier Notifier
	logger   *slog.Logger
}

func NewMemberService(
	db *sql.DB,
	members repositories.MemberRepository,
	matches repositories.MatchRepository,
	history repositories.RatingHistoryRepository,
	ratings *RatingService,
	notifier Notifier,
	logger *slog.Logger,
) *MemberService {
	return &MemberService{
		db:       db,
		members:  members,
		matches:  matches,
		history:  history,
		ratings:  ratings,
		notifier: notifier,
		logger:   logger,
	}
}

// CreateMemberArgs carries the fields for a new club member. Rating is nil
// for an unrated newcomer.
type CreateMemberArgs struct {
	FirstName string
	LastName  string
	Email     string
	Rating    *int
	Role      models.MemberRole
	Password  string
}

func (a CreateMemberArgs) validate() error {
	if strings.TrimSpace(a.FirstName) == "" || strings.TrimSpace(a.LastName) == "" {
		return fmt.Errorf("%w: first and last name are required", ErrValidationFailed)
	}
	if _, err := mail.ParseAddress(a.Email); err != nil {
		return fmt.Errorf("%w: invalid email address", ErrValidationFailed)
	}
	if a.Rating != nil && *a.Rating < 0 {
		return fmt.Errorf("%w: rating must be non-negative", ErrValidationFailed)
	}
	if len(a.Password) < 8 {
		return fmt.Errorf("%w: password must be at least 8 characters", ErrValidationFailed)
	}
	switch a.Role {
	case models.RoleAdmin, models.RoleOrganizer, models.RolePlayer:
	default:
		return fmt.Errorf("%w: unknown role %q", ErrValidationFailed, a.Role)
	}
	return nil
}

func (s *MemberService) Create(ctx context.Context, args CreateMemberArgs) (*models.Member, error) {
	if err := args.validate(); err != nil {
		return nil, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(args.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	member := &models.Member{
		FirstName:    strings.TrimSpace(args.FirstName),
		LastName:     strings.TrimSpace(args.LastName),
		Email:        strings.ToLower(strings.TrimSpace(args.Email)),
		Rating:       args.Rating,
		Active:       true,
		Role:         args.Role,
		PasswordHash: string(hash),
	}
	if err := s.members.Create(ctx, member); err != nil {
		if errors.Is(err, repositories.ErrMemberEmailConflict) {
			return nil, fmt.Errorf("%w: %s", ErrEmailInUse, member.Email)
		}
		return nil, err
	}
	if member.Rating != nil {
		s.ratings.SetLeaderboardEntry(ctx, member.ID, *member.Rating)
	}
	member.PasswordHash = ""
	if s.notifier != nil {
		s.notifier.Publish(EventPlayerCreated, "", member)
	}
	return member, nil
}

// ImportCSV bulk-creates members from rows of
// first_name,last_name,email,rating,password (header required, rating may be
// blank). The import is all-or-nothing on validation but inserts row by row,
// so a mid-file database failure can leave earlier rows committed.
func (s *MemberService) ImportCSV(ctx context.Context, r io.Reader) ([]*models.Member, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: malformed CSV: %v", ErrValidationFailed, err)
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("%w: CSV needs a header row and at least one member", ErrValidationFailed)
	}
	header := records[0]
	want := []string{"first_name", "last_name", "email", "rating", "password"}
	if len(header) != len(want) {
		return nil, fmt.Errorf("%w: expected columns %v", ErrValidationFailed, want)
	}
	for i, col := range want {
		if strings.TrimSpace(strings.ToLower(header[i])) != col {
			return nil, fmt.Errorf("%w: expected columns %v", ErrValidationFailed, want)
		}
	}

	argsList := make([]CreateMemberArgs, 0, len(records)-1)
	for i, rec := range records[1:] {
		args := CreateMemberArgs{
			FirstName: rec[0],
			LastName:  rec[1],
			Email:     rec[2],
			Role:      models.RolePlayer,
			Password:  rec[4],
		}
		if strings.TrimSpace(rec[3]) != "" {
			rating, convErr := strconv.Atoi(strings.TrimSpace(rec[3]))
			if convErr != nil {
				return nil, fmt.Errorf("%w: row %d: rating %q is not a number", ErrValidationFailed, i+2, rec[3])
			}
			args.Rating = &rating
		}
		if err := args.validate(); err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		argsList = append(argsList, args)
	}

	imported := make([]*models.Member, 0, len(argsList))
	for _, args := range argsList {
		member, err := s.Create(ctx, args)
		if err != nil {
			return imported, fmt.Errorf("after %d imported: %w", len(imported), err)
		}
		imported = append(imported, member)
	}
	if s.notifier != nil {
		s.notifier.Publish(EventPlayersImported, "", map[string]interface{}{"count": len(imported)})
	}
	return imported, nil
}

func (s *MemberService) List(ctx context.Context, activeOnly bool) ([]*models.Member, error) {
	return s.members.List(ctx, activeOnly)
}

func (s *MemberService) Get(ctx context.Context, id int) (*models.Member, error) {
	member, err := s.members.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrMemberNotFound) {
			return nil, ErrMemberNotFound
		}
		return nil, err
	}
	return member, nil
}

// History returns the member's full rating trail, oldest first.
func (s *MemberService) History(ctx context.Context, id int) ([]*models.RatingHistory, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.history.ListByMember(ctx, id)
}

// Deactivate marks the member inactive, logs a MEMBER_DEACTIVATED history
// row, and drops them from the leaderboard. Their matches and history stay.
func (s *MemberService) Deactivate(ctx context.Context, id int) error {
	member, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	rating := 0
	if member.Rating != nil {
		rating = *member.Rating
	}
	err = s.inTx(ctx, func(tx *sql.Tx) error {
		row := models.RatingHistory{
			MemberID:  id,
			Rating:    rating,
			Timestamp: time.Now(),
			Reason:    models.ReasonMemberDeactivated,
		}
		if err := s.history.Insert(ctx, tx, &row); err != nil {
			return err
		}
		return s.members.SetActive(ctx, id, false)
	})
	if err != nil {
		return err
	}
	s.ratings.RemoveFromLeaderboard(ctx, id)
	if s.notifier != nil {
		s.notifier.Publish(EventPlayerUpdated, "", map[string]interface{}{"id": id, "active": false})
	}
	return nil
}

// Delete removes a member entirely. Refused while any match references them;
// deactivation is the path for members with play history.
func (s *MemberService) Delete(ctx context.Context, id int) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	count, err := s.matches.CountByMember(ctx, id)
	if err != nil {
		return err
	}
	if count > 0 {
		return fmt.Errorf("%w: member %d has %d recorded matches", ErrForbiddenOperation, id, count)
	}
	if err := s.members.Delete(ctx, id); err != nil {
		return err
	}
	s.ratings.RemoveFromLeaderboard(ctx, id)
	if s.notifier != nil {
		s.notifier.Publish(EventPlayerDeleted, "", map[string]interface{}{"id": id})
	}
	return nil
}

// AdjustRating sets a member's rating manually.
func (s *MemberService) AdjustRating(ctx context.Context, id, newRating int) (*models.Member, error) {
	if newRating < 0 {
		return nil, fmt.Errorf("%w: rating must be non-negative", ErrValidationFailed)
	}
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		return s.ratings.ApplyAdjustment(ctx, tx, id, newRating, models.ReasonManualAdjustment)
	})
	if err != nil {
		return nil, err
	}
	member, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.notifier != nil {
		s.notifier.Publish(EventPlayerUpdated, "", member)
	}
	return member, nil
}

// Leaderboard returns active members ordered by rating, highest first. The
// redis sorted set provides the ordering when wired; otherwise the database
// ratings do.
func (s *MemberService) Leaderboard(ctx context.Context, limit int) ([]*models.Member, error) {
	members, err := s.members.List(ctx, true)
	if err != nil {
		return nil, err
	}
	rated := members[:0]
	for _, m := range members {
		if m.Rating != nil {
			rated = append(rated, m)
		}
	}
	members = rated

	ids, err := s.ratings.LeaderboardIDs(ctx, limit)
	if err != nil {
		s.logger.Warn("leaderboard read failed, falling back to database", slog.Any("error", err))
		ids = nil
	}
	if len(ids) > 0 {
		byID := make(map[int]*models.Member, len(members))
		for _, m := range members {
			byID[m.ID] = m
		}
		ordered := make([]*models.Member, 0, len(ids))
		for _, id := range ids {
			if m, ok := byID[id]; ok {
				ordered = append(ordered, m)
			}
		}
		return ordered, nil
	}

	sort.Slice(members, func(i, j int) bool {
		if *members[i].Rating != *members[j].Rating {
			return *members[i].Rating > *members[j].Rating
		}
		return members[i].ID < members[j].ID
	})
	if limit > 0 && len(members) > limit {
		members = members[:limit]
	}
	return members, nil
}

func (s *MemberService) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
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
