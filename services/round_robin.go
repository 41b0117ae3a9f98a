package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tt-club/tournament-system/models"
	"github.com/tt-club/tournament-system/repositories"
)

// roundRobinPlugin drives ROUND_ROBIN tournaments. Matches are created
// lazily as scores come in; the tournament completes when every unordered
// pair has exactly one played match. Ratings are written once, on
// completion, via the four-pass computation.
type roundRobinPlugin struct {
	*PluginDeps
}

func NewRoundRobinPlugin(deps *PluginDeps) Plugin {
	return &roundRobinPlugin{PluginDeps: deps}
}

func (p *roundRobinPlugin) Kind() models.TournamentKind { return models.KindRoundRobin }
func (p *roundRobinPlugin) IsBasic() bool               { return true }

func (p *roundRobinPlugin) CanDelete(ctx context.Context, t *models.Tournament) (bool, error) {
	count, err := p.matches.CountByTournament(ctx, t.ID)
	if err != nil {
		return false, err
	}
	return count == 0, nil
}

func (p *roundRobinPlugin) CanCancel(t *models.Tournament) bool { return true }

func (p *roundRobinPlugin) IsComplete(ctx context.Context, t *models.Tournament) (bool, error) {
	remaining, err := p.MatchesRemaining(ctx, t)
	if err != nil {
		return false, err
	}
	return remaining == 0, nil
}

func (p *roundRobinPlugin) MatchesRemaining(ctx context.Context, t *models.Tournament) (int, error) {
	participants, err := p.participants.ListByTournament(ctx, t.ID)
	if err != nil {
		return 0, err
	}
	matchRows, err := p.matches.ListByTournament(ctx, t.ID)
	if err != nil {
		return 0, err
	}
	total := len(participants) * (len(participants) - 1) / 2
	return total - len(playedPairs(matchRows)), nil
}

func (p *roundRobinPlugin) CreateTournament(ctx context.Context, args CreateTournamentArgs) (*models.Tournament, error) {
	if args.Name == "" {
		return nil, ErrNameRequired
	}
	if len(args.MemberIDs) < 2 {
		return nil, fmt.Errorf("%w: round robin needs at least 2", ErrNotEnoughParticipants)
	}

	t := &models.Tournament{
		Name:        args.Name,
		Kind:        models.KindRoundRobin,
		Status:      models.StatusActive,
		ParentID:    args.ParentID,
		GroupNumber: args.GroupNumber,
	}
	err := p.inTx(ctx, func(tx *sql.Tx) error {
		if err := p.tournaments.Create(ctx, tx, t); err != nil {
			return err
		}
		participants, err := p.snapshotParticipants(ctx, t.ID, args.MemberIDs, nil)
		if err != nil {
			return err
		}
		return p.participants.CreateBatch(ctx, tx, participants)
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (p *roundRobinPlugin) UpdateMatch(ctx context.Context, t *models.Tournament, args UpdateMatchArgs) (*models.Match, *StateChange, error) {
	if err := validateScore(&args); err != nil {
		return nil, nil, err
	}

	var match *models.Match
	if args.MatchID == 0 {
		m, err := p.createMatch(ctx, t, args)
		if err != nil {
			return nil, nil, err
		}
		match = m
	} else {
		m, err := p.matches.GetByID(ctx, args.MatchID)
		if err != nil {
			if errors.Is(err, repositories.ErrMatchNotFound) {
				return nil, nil, ErrMatchNotFound
			}
			return nil, nil, err
		}
		if m.TournamentID == nil || *m.TournamentID != t.ID {
			return nil, nil, ErrMatchTournamentMismatch
		}
		m.P1Sets = args.P1Sets
		m.P2Sets = args.P2Sets
		m.P1Forfeit = args.P1Forfeit
		m.P2Forfeit = args.P2Forfeit
		if err := p.inTx(ctx, func(tx *sql.Tx) error {
			return p.matches.UpdateResult(ctx, tx, m)
		}); err != nil {
			return nil, nil, err
		}
		match = m
	}

	complete, err := p.IsComplete(ctx, t)
	if err != nil {
		return nil, nil, err
	}
	var sc *StateChange
	if complete && !t.IsCompleted() {
		sc = &StateChange{ShouldMarkComplete: true, Message: "all pairs played"}
	}
	return match, sc, nil
}

func (p *roundRobinPlugin) createMatch(ctx context.Context, t *models.Tournament, args UpdateMatchArgs) (*models.Match, error) {
	if args.Member1ID == args.Member2ID || args.Member1ID == 0 || args.Member2ID == 0 {
		return nil, ErrSameMember
	}
	for _, memberID := range []int{args.Member1ID, args.Member2ID} {
		if _, err := p.participants.Get(ctx, t.ID, memberID); err != nil {
			if errors.Is(err, repositories.ErrParticipantNotFound) {
				return nil, fmt.Errorf("%w: member %d", ErrMemberNotInTournament, memberID)
			}
			return nil, err
		}
	}

	existing, err := p.matches.ListByTournament(ctx, t.ID)
	if err != nil {
		return nil, err
	}
	if _, ok := playedPairs(existing)[pairKey(args.Member1ID, args.Member2ID)]; ok {
		return nil, ErrPairAlreadyPlayed
	}

	member2 := args.Member2ID
	match := &models.Match{
		TournamentID: &t.ID,
		Member1ID:    args.Member1ID,
		Member2ID:    &member2,
		P1Sets:       args.P1Sets,
		P2Sets:       args.P2Sets,
		P1Forfeit:    args.P1Forfeit,
		P2Forfeit:    args.P2Forfeit,
	}
	if err := p.inTx(ctx, func(tx *sql.Tx) error {
		return p.matches.Create(ctx, tx, match)
	}); err != nil {
		return nil, err
	}
	return match, nil
}

func (p *roundRobinPlugin) OnMatchCompleted(ctx context.Context, ev MatchEvent) (*StateChange, error) {
	return nil, nil
}

func (p *roundRobinPlugin) OnChildCompleted(ctx context.Context, ev ChildEvent) (*StateChange, error) {
	return nil, nil
}

func (p *roundRobinPlugin) OnMatchRating(ctx context.Context, ev MatchEvent) error {
	// Round robin writes ratings once, on completion.
	return nil
}

func (p *roundRobinPlugin) OnCompletionRating(ctx context.Context, t *models.Tournament) error {
	return p.inTx(ctx, func(tx *sql.Tx) error {
		return p.ratings.ApplyTournamentCompletion(ctx, tx, t)
	})
}

func (p *roundRobinPlugin) EnrichActive(ctx context.Context, t *models.Tournament) error {
	return enrichBasic(ctx, p.PluginDeps, t)
}

func (p *roundRobinPlugin) EnrichCompleted(ctx context.Context, t *models.Tournament) error {
	return enrichBasic(ctx, p.PluginDeps, t)
}

func (p *roundRobinPlugin) HandlePluginRequest(ctx context.Context, t *models.Tournament, method, resource string, data json.RawMessage) (interface{}, error) {
	return nil, fmt.Errorf("%w: %s %s", ErrUnknownPluginResource, method, resource)
}

// validateScore rejects results that declare no winner: equal sets without
// a forfeit, or both forfeits at once. Forfeit results are pinned to the
// canonical score, 0 sets for the forfeiter and 1 for the opponent.
func validateScore(args *UpdateMatchArgs) error {
	if args.P1Forfeit && args.P2Forfeit {
		return fmt.Errorf("%w: %v", ErrValidationFailed, models.ErrDoubleForfeit)
	}
	if args.P1Sets < 0 || args.P2Sets < 0 {
		return fmt.Errorf("%w: negative set count", ErrValidationFailed)
	}
	switch {
	case args.P1Forfeit:
		args.P1Sets, args.P2Sets = 0, 1
	case args.P2Forfeit:
		args.P1Sets, args.P2Sets = 1, 0
	default:
		if args.P1Sets == args.P2Sets {
			return ErrTiedMatch
		}
	}
	return nil
}

// pairKey is an order-independent key for a member pair.
func pairKey(a, b int) [2]int {
	if a > b {
		a, b = b, a
	}
	return [2]int{a, b}
}

// playedPairs maps each decided pair to its match.
func playedPairs(matches []*models.Match) map[[2]int]*models.Match {
	pairs := make(map[[2]int]*models.Match)
	for _, m := range matches {
		if m.Member2ID == nil || !m.Played() {
			continue
		}
		pairs[pairKey(m.Member1ID, *m.Member2ID)] = m
	}
	return pairs
}

// enrichBasic attaches participants, matches, and stored standings.
func enrichBasic(ctx context.Context, deps *PluginDeps, t *models.Tournament) error {
	participants, err := deps.participants.ListByTournament(ctx, t.ID)
	if err != nil {
		return err
	}
	matchRows, err := deps.matches.ListByTournament(ctx, t.ID)
	if err != nil {
		return err
	}
	t.Participants = derefParticipants(participants)
	t.Matches = derefMatches(matchRows)
	return nil
}

func derefParticipants(in []*models.Participant) []models.Participant {
	out := make([]models.Participant, 0, len(in))
	for _, p := range in {
		out = append(out, *p)
	}
	return out
}

func derefMatches(in []*models.Match) []models.Match {
	out := make([]models.Match, 0, len(in))
	for _, m := range in {
		out = append(out, *m)
	}
	return out
}
