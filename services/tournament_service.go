package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tt-club/tournament-system/models"
	"github.com/tt-club/tournament-system/repositories"
)

// Notifier is the fire-and-forget event sink for realtime pushes. Room ""
// broadcasts to everyone.
type Notifier interface {
	Publish(event, room string, payload interface{})
}

// Event names pushed through the Notifier.
const (
	EventMatchUpdated      = "match:updated"
	EventTournamentUpdated = "tournament:updated"
	EventCacheInvalidate   = "cache:invalidate"
	EventPlayerCreated     = "player:created"
	EventPlayerUpdated     = "player:updated"
	EventPlayerDeleted     = "player:deleted"
	EventPlayersImported   = "players:imported"
)

// TournamentRoom is the websocket room per tournament.
func TournamentRoom(id int) string {
	return fmt.Sprintf("tournament:%d", id)
}

// keyedMutex serializes operations per tournament identity.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[int]*sync.Mutex
}

func (k *keyedMutex) lock(id int) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[int]*sync.Mutex)
	}
	l, ok := k.locks[id]
	if !ok {
		l = &sync.Mutex{}
		k.locks[id] = l
	}
	k.mu.Unlock()
	l.Lock()
	return l.Unlock
}

// TournamentService is the event dispatcher: it resolves the plugin for a
// tournament, routes match and child-completed events through it, applies
// the returned state changes, and keeps the post-rating cache consistent.
type TournamentService struct {
	db           *sql.DB
	tournaments  repositories.TournamentRepository
	participants repositories.ParticipantRepository
	matches      repositories.MatchRepository
	standings    repositories.StandingRepository
	members      repositories.MemberRepository
	registry     *Registry
	ratings      *RatingService
	notifier     Notifier
	logger       *slog.Logger
	locks        keyedMutex
}

func NewTournamentService(
	db *sql.DB,
	tournaments repositories.TournamentRepository,
	participants repositories.ParticipantRepository,
	matches repositories.MatchRepository,
	standings repositories.StandingRepository,
	members repositories.MemberRepository,
	registry *Registry,
	ratings *RatingService,
	notifier Notifier,
	logger *slog.Logger,
) *TournamentService {
	return &TournamentService{
		db:           db,
		tournaments:  tournaments,
		participants: participants,
		matches:      matches,
		standings:    standings,
		members:      members,
		registry:     registry,
		ratings:      ratings,
		notifier:     notifier,
		logger:       logger,
	}
}

func (s *TournamentService) Create(ctx context.Context, args CreateTournamentArgs) (*models.Tournament, error) {
	plugin, err := s.registry.Resolve(args.Kind)
	if err != nil {
		return nil, err
	}
	t, err := plugin.CreateTournament(ctx, args)
	if err != nil {
		return nil, err
	}
	s.publish(EventTournamentUpdated, "", t)
	return t, nil
}

// Get returns one tournament decorated by its plugin. Stored standings and
// the plugin enrichment load in parallel.
func (s *TournamentService) Get(ctx context.Context, id int) (*models.Tournament, error) {
	t, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	plugin, err := s.registry.Resolve(t.Kind)
	if err != nil {
		return nil, err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if t.IsCompleted() {
			return plugin.EnrichCompleted(gctx, t)
		}
		return plugin.EnrichActive(gctx, t)
	})
	var standings []models.Standing
	g.Go(func() error {
		var sErr error
		standings, sErr = s.standings.ListByTournament(gctx, id)
		return sErr
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	t.Standings = standings

	post, err := s.ratings.PostRatings(ctx, s.db, t)
	if err != nil {
		return nil, err
	}
	for i := range t.Participants {
		if rating, ok := post[t.Participants[i].MemberID]; ok {
			value := rating
			t.Participants[i].PostRating = &value
		}
	}
	return t, nil
}

func (s *TournamentService) List(ctx context.Context, topLevelOnly bool) ([]*models.Tournament, error) {
	return s.tournaments.List(ctx, topLevelOnly)
}

func (s *TournamentService) UpdateName(ctx context.Context, id int, name string) error {
	if name == "" {
		return ErrNameRequired
	}
	if err := s.tournaments.UpdateName(ctx, id, name); err != nil {
		if errors.Is(err, repositories.ErrTournamentNotFound) {
			return ErrTournamentNotFound
		}
		return err
	}
	s.publish(EventTournamentUpdated, TournamentRoom(id), map[string]interface{}{"id": id, "name": name})
	return nil
}

// UpdateParticipants replaces the participant set of a matchless active
// tournament, recapturing rating snapshots.
func (s *TournamentService) UpdateParticipants(ctx context.Context, id int, memberIDs []int) (*models.Tournament, error) {
	unlock := s.locks.lock(id)
	defer unlock()

	t, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.IsCompleted() {
		return nil, ErrTournamentCompleted
	}
	count, err := s.matches.CountByTournament(ctx, id)
	if err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, ErrTournamentHasMatches
	}

	plugin, err := s.registry.Resolve(t.Kind)
	if err != nil {
		return nil, err
	}
	if !plugin.IsBasic() {
		return nil, fmt.Errorf("%w: compound tournaments fix their field at creation", ErrValidationFailed)
	}

	participants := make([]models.Participant, 0, len(memberIDs))
	seen := make(map[int]bool, len(memberIDs))
	for _, memberID := range memberIDs {
		if seen[memberID] {
			return nil, fmt.Errorf("%w: member %d", ErrDuplicateParticipant, memberID)
		}
		seen[memberID] = true
		member, err := s.members.GetByID(ctx, memberID)
		if err != nil {
			if errors.Is(err, repositories.ErrMemberNotFound) {
				return nil, fmt.Errorf("%w: member %d", ErrMemberNotFound, memberID)
			}
			return nil, err
		}
		participants = append(participants, models.Participant{
			TournamentID: id,
			MemberID:     memberID,
			RatingAtTime: member.Rating,
		})
	}

	err = s.inTx(ctx, func(tx *sql.Tx) error {
		if err := s.participants.DeleteByTournament(ctx, tx, id); err != nil {
			return err
		}
		return s.participants.CreateBatch(ctx, tx, participants)
	})
	if err != nil {
		return nil, err
	}
	s.publish(EventTournamentUpdated, TournamentRoom(id), t)
	return t, nil
}

func (s *TournamentService) Cancel(ctx context.Context, id int) error {
	t, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	plugin, err := s.registry.Resolve(t.Kind)
	if err != nil {
		return err
	}
	if !plugin.CanCancel(t) {
		return ErrForbiddenOperation
	}
	if err := s.tournaments.SetCancelled(ctx, id); err != nil {
		return err
	}
	s.publish(EventTournamentUpdated, TournamentRoom(id), map[string]interface{}{"id": id, "cancelled": true})
	return nil
}

func (s *TournamentService) Delete(ctx context.Context, id int) error {
	t, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	plugin, err := s.registry.Resolve(t.Kind)
	if err != nil {
		return err
	}
	ok, err := plugin.CanDelete(ctx, t)
	if err != nil {
		return err
	}
	if !ok {
		return ErrTournamentHasMatches
	}
	if err := s.tournaments.Delete(ctx, id); err != nil {
		return err
	}
	s.publish(EventTournamentUpdated, "", map[string]interface{}{"id": id, "deleted": true})
	return nil
}

// Complete marks a tournament completed once its plugin agrees every match
// is in, then runs the completion flow (ratings, standings, parent events).
func (s *TournamentService) Complete(ctx context.Context, id int) (*models.Tournament, error) {
	unlock := s.locks.lock(id)
	defer unlock()

	t, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.IsCompleted() {
		return t, nil
	}
	plugin, err := s.registry.Resolve(t.Kind)
	if err != nil {
		return nil, err
	}
	done, err := plugin.IsComplete(ctx, t)
	if err != nil {
		return nil, err
	}
	if !done {
		return nil, ErrMatchesRemaining
	}
	if err := s.markCompleted(ctx, t, plugin); err != nil {
		return nil, err
	}
	return t, nil
}

// UpdateMatch is the match-completed flow: plugin update, rating hook,
// state-change application, cache invalidation, and — when the score edit
// touched an already-completed tournament — the chronological replay.
func (s *TournamentService) UpdateMatch(ctx context.Context, tournamentID int, args UpdateMatchArgs) (*models.Match, error) {
	unlock := s.locks.lock(tournamentID)
	defer unlock()

	t, err := s.load(ctx, tournamentID)
	if err != nil {
		return nil, err
	}
	if t.Cancelled {
		return nil, ErrTournamentCancelled
	}
	plugin, err := s.registry.Resolve(t.Kind)
	if err != nil {
		return nil, err
	}
	wasCompleted := t.IsCompleted()

	args.TournamentID = tournamentID
	match, sc, err := plugin.UpdateMatch(ctx, t, args)
	if err != nil {
		return nil, err
	}

	ev := MatchEvent{Tournament: t, Match: match}
	if match.Played() && match.Member2ID != nil {
		if err := plugin.OnMatchRating(ctx, ev); err != nil {
			return nil, err
		}
	}
	hookSC, err := plugin.OnMatchCompleted(ctx, ev)
	if err != nil {
		return nil, err
	}
	if sc == nil {
		sc = hookSC
	}
	if err := s.applyStateChange(ctx, t, plugin, sc); err != nil {
		return nil, err
	}

	s.ratings.InvalidateFrom(t.CreatedAt)
	if wasCompleted {
		// Retroactive edit inside completed history: everything from this
		// tournament forward replays.
		if err := s.ratings.ReplayFrom(ctx, s.db, t.CreatedAt); err != nil {
			return nil, err
		}
	}

	s.publish(EventMatchUpdated, TournamentRoom(tournamentID), match)
	s.publish(EventCacheInvalidate, "", map[string]interface{}{
		"tournament_id": tournamentID,
		"timestamp":     time.Now(),
	})
	return match, nil
}

// PluginRequest delegates a kind-specific operation to the plugin.
func (s *TournamentService) PluginRequest(ctx context.Context, id int, method, resource string, data []byte) (interface{}, error) {
	t, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	plugin, err := s.registry.Resolve(t.Kind)
	if err != nil {
		return nil, err
	}
	return plugin.HandlePluginRequest(ctx, t, method, resource, data)
}

func (s *TournamentService) applyStateChange(ctx context.Context, t *models.Tournament, plugin Plugin, sc *StateChange) error {
	if sc == nil {
		return nil
	}
	if sc.Message != "" {
		s.logger.Info("state change", slog.Int("tournament_id", t.ID), slog.String("message", sc.Message))
	}
	if sc.ShouldCreateFinalTournament && sc.FinalConfig != nil {
		if err := s.createFinal(ctx, t, sc.FinalConfig); err != nil {
			return err
		}
	}
	if sc.ShouldMarkComplete {
		return s.markCompleted(ctx, t, plugin)
	}
	return nil
}

// markCompleted performs the one-way ACTIVE -> COMPLETED transition and its
// consequences: completion ratings, standings, cache, and the recursive
// child-completed event to the parent. A lost transition race is a no-op.
func (s *TournamentService) markCompleted(ctx context.Context, t *models.Tournament, plugin Plugin) error {
	recordedAt := time.Now()
	if err := s.tournaments.MarkCompleted(ctx, s.db, t.ID, recordedAt); err != nil {
		if errors.Is(err, repositories.ErrAlreadyCompleted) {
			return nil
		}
		return err
	}
	t.Status = models.StatusCompleted
	t.RecordedAt = &recordedAt

	if err := plugin.OnCompletionRating(ctx, t); err != nil {
		return err
	}
	if plugin.IsBasic() {
		if err := s.storeStandings(ctx, t); err != nil {
			s.logger.Error("standings recompute failed", slog.Int("tournament_id", t.ID), slog.Any("error", err))
		}
	}
	s.publish(EventTournamentUpdated, TournamentRoom(t.ID), t)

	if t.ParentID == nil {
		return nil
	}
	parent, err := s.load(ctx, *t.ParentID)
	if err != nil {
		return err
	}
	parentPlugin, err := s.registry.Resolve(parent.Kind)
	if err != nil {
		return err
	}
	sc, err := parentPlugin.OnChildCompleted(ctx, ChildEvent{Parent: parent, Child: t})
	if err != nil {
		return err
	}
	return s.applyStateChange(ctx, parent, parentPlugin, sc)
}

func (s *TournamentService) createFinal(ctx context.Context, parent *models.Tournament, cfg *FinalConfig) error {
	plugin, err := s.registry.Resolve(cfg.Kind)
	if err != nil {
		return err
	}
	child, err := plugin.CreateTournament(ctx, CreateTournamentArgs{
		Name:      cfg.Name,
		Kind:      cfg.Kind,
		MemberIDs: cfg.MemberIDs,
		SeedCount: cfg.SeedCount,
		ParentID:  &parent.ID,
	})
	if err != nil {
		return err
	}
	s.publish(EventTournamentUpdated, TournamentRoom(parent.ID), child)
	return nil
}

func (s *TournamentService) storeStandings(ctx context.Context, t *models.Tournament) error {
	participants, err := s.participants.ListByTournament(ctx, t.ID)
	if err != nil {
		return err
	}
	matchRows, err := s.matches.ListByTournament(ctx, t.ID)
	if err != nil {
		return err
	}
	standings := ComputeStandings(t.ID, participants, matchRows)
	return s.inTx(ctx, func(tx *sql.Tx) error {
		return s.standings.ReplaceForTournament(ctx, tx, t.ID, standings)
	})
}

func (s *TournamentService) load(ctx context.Context, id int) (*models.Tournament, error) {
	t, err := s.tournaments.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrTournamentNotFound) {
			return nil, ErrTournamentNotFound
		}
		return nil, err
	}
	return t, nil
}

func (s *TournamentService) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
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

func (s *TournamentService) publish(event, room string, payload interface{}) {
	if s.notifier == nil {
		return
	}
	s.notifier.Publish(event, room, payload)
}
