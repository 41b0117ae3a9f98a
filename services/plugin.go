package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/tt-club/tournament-system/models"
	"github.com/tt-club/tournament-system/repositories"
)

// CreateTournamentArgs carries everything a plugin needs to persist a new
// tournament: the participant set plus kind-specific knobs. ParentID and
// GroupNumber are set only when a compound plugin creates a child.
type CreateTournamentArgs struct {
	Name      string
	Kind      models.TournamentKind
	MemberIDs []int

	SeedCount *int // playoff: protected seeds, nil = default
	Rounds    *int // swiss: round count override

	Groups           int   // prelim: number of preliminary groups
	FinalSize        int   // prelim: size of the final stage
	AutoQualifierIDs []int // prelim: members skipping the group stage

	ParentID    *int
	GroupNumber *int
}

// UpdateMatchArgs is one score entry. MatchID 0 means "create a new match"
// (round robin); for playoff tournaments MatchID may be either a Match ID
// or a BracketMatch ID and the plugin resolves which.
type UpdateMatchArgs struct {
	TournamentID int
	MatchID      int
	Member1ID    int
	Member2ID    int
	P1Sets       int
	P2Sets       int
	P1Forfeit    bool
	P2Forfeit    bool
}

// MatchEvent accompanies a recorded match result up the dispatch chain.
type MatchEvent struct {
	Tournament *models.Tournament
	Match      *models.Match
}

// ChildEvent notifies a compound tournament that one of its children
// transitioned to COMPLETED.
type ChildEvent struct {
	Parent *models.Tournament
	Child  *models.Tournament
}

// FinalConfig describes the final-stage child a compound plugin wants the
// dispatcher to create.
type FinalConfig struct {
	Kind      models.TournamentKind
	Name      string
	MemberIDs []int
	SeedCount *int
}

// StateChange is the descriptor a plugin returns from its event hooks. The
// dispatcher applies it: completion, final-stage creation, or nothing.
type StateChange struct {
	ShouldMarkComplete          bool
	ShouldCreateFinalTournament bool
	FinalConfig                 *FinalConfig
	Message                     string
}

// Plugin is the capability set every tournament kind implements. All
// entrypoints may touch the database; the dispatcher serializes calls per
// tournament.
type Plugin interface {
	Kind() models.TournamentKind
	// IsBasic is false for compound kinds that own child tournaments.
	IsBasic() bool

	CanDelete(ctx context.Context, t *models.Tournament) (bool, error)
	CanCancel(t *models.Tournament) bool
	IsComplete(ctx context.Context, t *models.Tournament) (bool, error)
	MatchesRemaining(ctx context.Context, t *models.Tournament) (int, error)

	CreateTournament(ctx context.Context, args CreateTournamentArgs) (*models.Tournament, error)
	UpdateMatch(ctx context.Context, t *models.Tournament, args UpdateMatchArgs) (*models.Match, *StateChange, error)

	OnMatchCompleted(ctx context.Context, ev MatchEvent) (*StateChange, error)
	OnChildCompleted(ctx context.Context, ev ChildEvent) (*StateChange, error)

	// Rating hooks. OnMatchRating fires per recorded match (Mode A kinds);
	// OnCompletionRating fires once, when the tournament completes (Mode B
	// kinds). Either may be a no-op.
	OnMatchRating(ctx context.Context, ev MatchEvent) error
	OnCompletionRating(ctx context.Context, t *models.Tournament) error

	EnrichActive(ctx context.Context, t *models.Tournament) error
	EnrichCompleted(ctx context.Context, t *models.Tournament) error

	// HandlePluginRequest serves kind-specific operations (GET bracket,
	// POST reseed, POST preview, GET rounds).
	HandlePluginRequest(ctx context.Context, t *models.Tournament, method, resource string, data json.RawMessage) (interface{}, error)
}

// Registry resolves a tournament kind to its plugin.
type Registry struct {
	plugins map[models.TournamentKind]Plugin
}

func NewRegistry() *Registry {
	return &Registry{plugins: make(map[models.TournamentKind]Plugin)}
}

func (r *Registry) Register(p Plugin) {
	r.plugins[p.Kind()] = p
}

func (r *Registry) Resolve(kind models.TournamentKind) (Plugin, error) {
	p, ok := r.plugins[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTournamentKind, kind)
	}
	return p, nil
}

// PluginDeps is the shared wiring every plugin embeds.
type PluginDeps struct {
	db             *sql.DB
	tournaments    repositories.TournamentRepository
	participants   repositories.ParticipantRepository
	matches        repositories.MatchRepository
	bracketMatches repositories.BracketMatchRepository
	swiss          repositories.SwissRepository
	members        repositories.MemberRepository
	ratings        *RatingService
	logger         *slog.Logger
}

func NewPluginDeps(
	db *sql.DB,
	tournaments repositories.TournamentRepository,
	participants repositories.ParticipantRepository,
	matches repositories.MatchRepository,
	bracketMatches repositories.BracketMatchRepository,
	swiss repositories.SwissRepository,
	members repositories.MemberRepository,
	ratings *RatingService,
	logger *slog.Logger,
) *PluginDeps {
	return &PluginDeps{
		db:             db,
		tournaments:    tournaments,
		participants:   participants,
		matches:        matches,
		bracketMatches: bracketMatches,
		swiss:          swiss,
		members:        members,
		ratings:        ratings,
		logger:         logger,
	}
}

// inTx runs fn inside a transaction, rolling back on error.
func (d *PluginDeps) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			d.logger.Error("transaction rollback failed", slog.Any("error", rbErr))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// snapshotParticipants loads the members, verifies them, and captures their
// current ratings as enrollment snapshots.
func (d *PluginDeps) snapshotParticipants(ctx context.Context, tournamentID int, memberIDs, autoQualifierIDs []int) ([]models.Participant, error) {
	seen := make(map[int]bool, len(memberIDs))
	auto := make(map[int]bool, len(autoQualifierIDs))
	for _, id := range autoQualifierIDs {
		auto[id] = true
	}

	participants := make([]models.Participant, 0, len(memberIDs))
	for _, memberID := range memberIDs {
		if seen[memberID] {
			return nil, fmt.Errorf("%w: member %d", ErrDuplicateParticipant, memberID)
		}
		seen[memberID] = true

		member, err := d.members.GetByID(ctx, memberID)
		if err != nil {
			if errors.Is(err, repositories.ErrMemberNotFound) {
				return nil, fmt.Errorf("%w: member %d", ErrMemberNotFound, memberID)
			}
			return nil, err
		}
		var snapshot *int
		if member.Rating != nil {
			v := *member.Rating
			snapshot = &v
		}
		participants = append(participants, models.Participant{
			TournamentID:  tournamentID,
			MemberID:      memberID,
			RatingAtTime:  snapshot,
			AutoQualified: auto[memberID],
		})
	}
	return participants, nil
}
