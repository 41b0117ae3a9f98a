package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"sort"

	"github.com/tt-club/tournament-system/models"
	"github.com/tt-club/tournament-system/repositories"
)

// swissPlugin drives SWISS tournaments: a fixed number of rounds, each
// pairing players on equal scores while avoiding rematches. Every round's
// matches are pre-created as unplayed rows; entering the last score of a
// round generates the next one. Ratings are written on completion.
type swissPlugin struct {
	*PluginDeps
}

func NewSwissPlugin(deps *PluginDeps) Plugin {
	return &swissPlugin{PluginDeps: deps}
}

func (p *swissPlugin) Kind() models.TournamentKind { return models.KindSwiss }
func (p *swissPlugin) IsBasic() bool               { return true }

func (p *swissPlugin) CanDelete(ctx context.Context, t *models.Tournament) (bool, error) {
	matchRows, err := p.matches.ListByTournament(ctx, t.ID)
	if err != nil {
		return false, err
	}
	for _, m := range matchRows {
		if m.Played() {
			return false, nil
		}
	}
	return true, nil
}

func (p *swissPlugin) CanCancel(t *models.Tournament) bool { return true }

func (p *swissPlugin) IsComplete(ctx context.Context, t *models.Tournament) (bool, error) {
	sd, err := p.swiss.Get(ctx, t.ID)
	if err != nil {
		return false, err
	}
	if sd.Complete {
		return true, nil
	}
	if sd.CurrentRound < sd.Rounds {
		return false, nil
	}
	matchRows, err := p.matches.ListByTournament(ctx, t.ID)
	if err != nil {
		return false, err
	}
	return roundFullyPlayed(matchRows, sd.CurrentRound), nil
}

func (p *swissPlugin) MatchesRemaining(ctx context.Context, t *models.Tournament) (int, error) {
	sd, err := p.swiss.Get(ctx, t.ID)
	if err != nil {
		return 0, err
	}
	participants, err := p.participants.ListByTournament(ctx, t.ID)
	if err != nil {
		return 0, err
	}
	matchRows, err := p.matches.ListByTournament(ctx, t.ID)
	if err != nil {
		return 0, err
	}
	total := sd.Rounds * len(participants) / 2
	played := 0
	for _, m := range matchRows {
		if m.Played() {
			played++
		}
	}
	return total - played, nil
}

// DefaultSwissRounds is floor(log2 N) + 2.
func DefaultSwissRounds(n int) int {
	return int(math.Log2(float64(n))) + 2
}

func (p *swissPlugin) CreateTournament(ctx context.Context, args CreateTournamentArgs) (*models.Tournament, error) {
	if args.Name == "" {
		return nil, ErrNameRequired
	}
	if len(args.MemberIDs) < 2 {
		return nil, fmt.Errorf("%w: swiss needs at least 2", ErrNotEnoughParticipants)
	}
	if len(args.MemberIDs)%2 != 0 {
		return nil, ErrOddSwissField
	}
	rounds := DefaultSwissRounds(len(args.MemberIDs))
	if args.Rounds != nil {
		if *args.Rounds < 1 {
			return nil, fmt.Errorf("%w: swiss rounds must be positive", ErrValidationFailed)
		}
		rounds = *args.Rounds
	}

	t := &models.Tournament{
		Name:        args.Name,
		Kind:        models.KindSwiss,
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
		if err := p.participants.CreateBatch(ctx, tx, participants); err != nil {
			return err
		}
		if err := p.swiss.Create(ctx, tx, &models.SwissData{TournamentID: t.ID, Rounds: rounds, CurrentRound: 1}); err != nil {
			return err
		}

		// Round 1 pairs adjacent players in rating order.
		order := make([]int, 0, len(participants))
		for _, part := range sortParticipantsByRating(participants) {
			order = append(order, part.MemberID)
		}
		pairs := make([][2]int, 0, len(order)/2)
		for i := 0; i+1 < len(order); i += 2 {
			pairs = append(pairs, [2]int{order[i], order[i+1]})
		}
		return p.createRoundMatches(ctx, tx, t.ID, 1, pairs)
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

func sortParticipantsByRating(participants []models.Participant) []models.Participant {
	sorted := make([]models.Participant, len(participants))
	copy(sorted, participants)
	sort.SliceStable(sorted, func(i, j int) bool {
		ri, rj := -1, -1
		if sorted[i].RatingAtTime != nil {
			ri = *sorted[i].RatingAtTime
		}
		if sorted[j].RatingAtTime != nil {
			rj = *sorted[j].RatingAtTime
		}
		if ri != rj {
			return ri > rj
		}
		return sorted[i].MemberID < sorted[j].MemberID
	})
	return sorted
}

func (p *swissPlugin) createRoundMatches(ctx context.Context, tx *sql.Tx, tournamentID, round int, pairs [][2]int) error {
	for _, pair := range pairs {
		member2 := pair[1]
		r := round
		match := &models.Match{
			TournamentID: &tournamentID,
			Member1ID:    pair[0],
			Member2ID:    &member2,
			Round:        &r,
		}
		if err := p.matches.Create(ctx, tx, match); err != nil {
			return err
		}
	}
	return nil
}

func (p *swissPlugin) UpdateMatch(ctx context.Context, t *models.Tournament, args UpdateMatchArgs) (*models.Match, *StateChange, error) {
	if err := validateScore(&args); err != nil {
		return nil, nil, err
	}
	if args.MatchID == 0 {
		return nil, nil, fmt.Errorf("%w: swiss matches are pre-created per round", ErrValidationFailed)
	}
	match, err := p.matches.GetByID(ctx, args.MatchID)
	if err != nil {
		if errors.Is(err, repositories.ErrMatchNotFound) {
			return nil, nil, ErrMatchNotFound
		}
		return nil, nil, err
	}
	if match.TournamentID == nil || *match.TournamentID != t.ID {
		return nil, nil, ErrMatchTournamentMismatch
	}

	match.P1Sets = args.P1Sets
	match.P2Sets = args.P2Sets
	match.P1Forfeit = args.P1Forfeit
	match.P2Forfeit = args.P2Forfeit
	if err := p.inTx(ctx, func(tx *sql.Tx) error {
		return p.matches.UpdateResult(ctx, tx, match)
	}); err != nil {
		return nil, nil, err
	}

	sc, err := p.advanceRoundIfDone(ctx, t)
	if err != nil {
		return nil, nil, err
	}
	return match, sc, nil
}

// advanceRoundIfDone checks whether the current round is fully played and
// either generates the next round or declares the tournament complete.
func (p *swissPlugin) advanceRoundIfDone(ctx context.Context, t *models.Tournament) (*StateChange, error) {
	sd, err := p.swiss.Get(ctx, t.ID)
	if err != nil {
		return nil, err
	}
	if sd.Complete {
		return nil, nil
	}
	matchRows, err := p.matches.ListByTournament(ctx, t.ID)
	if err != nil {
		return nil, err
	}
	if !roundFullyPlayed(matchRows, sd.CurrentRound) {
		return nil, nil
	}

	if sd.CurrentRound >= sd.Rounds {
		sd.Complete = true
		if err := p.inTx(ctx, func(tx *sql.Tx) error {
			return p.swiss.Update(ctx, tx, sd)
		}); err != nil {
			return nil, err
		}
		if !t.IsCompleted() {
			return &StateChange{ShouldMarkComplete: true, Message: "last round played"}, nil
		}
		return nil, nil
	}

	participants, err := p.participants.ListByTournament(ctx, t.ID)
	if err != nil {
		return nil, err
	}
	order := swissOrder(participants, matchRows)
	pairs := PairSwissRound(order, playedPairs(matchRows))
	nextRound := sd.CurrentRound + 1
	err = p.inTx(ctx, func(tx *sql.Tx) error {
		if err := p.createRoundMatches(ctx, tx, t.ID, nextRound, pairs); err != nil {
			return err
		}
		sd.CurrentRound = nextRound
		return p.swiss.Update(ctx, tx, sd)
	})
	if err != nil {
		return nil, err
	}
	return nil, nil
}

func roundFullyPlayed(matches []*models.Match, round int) bool {
	seen := false
	for _, m := range matches {
		if m.Round == nil || *m.Round != round {
			continue
		}
		seen = true
		if !m.Played() {
			return false
		}
	}
	return seen
}

// swissOrder ranks members for pairing: score descending, then enrollment
// rating descending, then member ID.
func swissOrder(participants []*models.Participant, matches []*models.Match) []int {
	score := make(map[int]int, len(participants))
	for _, m := range matches {
		if m.Member2ID == nil || !m.Played() {
			continue
		}
		if winnerID, _, err := m.Winner(); err == nil {
			score[winnerID]++
		}
	}
	sorted := sortParticipantsByRating(derefParticipants(participants))
	sort.SliceStable(sorted, func(i, j int) bool {
		return score[sorted[i].MemberID] > score[sorted[j].MemberID]
	})
	order := make([]int, 0, len(sorted))
	for _, p := range sorted {
		order = append(order, p.MemberID)
	}
	return order
}

// PairSwissRound pairs an ordered member list for the next round, avoiding
// rematches via backtracking. When no rematch-free pairing exists the
// closest-scored rematch is allowed rather than failing the round.
func PairSwissRound(order []int, played map[[2]int]*models.Match) [][2]int {
	rematch := func(a, b int) bool {
		_, ok := played[pairKey(a, b)]
		return ok
	}
	if pairs, ok := pairWithout(order, rematch); ok {
		return pairs
	}
	// Fall back to adjacent pairing, rematches included.
	pairs := make([][2]int, 0, len(order)/2)
	for i := 0; i+1 < len(order); i += 2 {
		pairs = append(pairs, [2]int{order[i], order[i+1]})
	}
	return pairs
}

// pairWithout finds a perfect matching over the ordered list where no pair
// satisfies the forbidden predicate, preferring close neighbors.
func pairWithout(order []int, forbidden func(a, b int) bool) ([][2]int, bool) {
	if len(order) == 0 {
		return nil, true
	}
	first := order[0]
	for i := 1; i < len(order); i++ {
		if forbidden(first, order[i]) {
			continue
		}
		rest := make([]int, 0, len(order)-2)
		rest = append(rest, order[1:i]...)
		rest = append(rest, order[i+1:]...)
		if pairs, ok := pairWithout(rest, forbidden); ok {
			return append([][2]int{{first, order[i]}}, pairs...), true
		}
	}
	return nil, false
}

func (p *swissPlugin) OnMatchCompleted(ctx context.Context, ev MatchEvent) (*StateChange, error) {
	return nil, nil
}

func (p *swissPlugin) OnChildCompleted(ctx context.Context, ev ChildEvent) (*StateChange, error) {
	return nil, nil
}

func (p *swissPlugin) OnMatchRating(ctx context.Context, ev MatchEvent) error {
	return nil
}

func (p *swissPlugin) OnCompletionRating(ctx context.Context, t *models.Tournament) error {
	return p.inTx(ctx, func(tx *sql.Tx) error {
		return p.ratings.ApplyTournamentCompletion(ctx, tx, t)
	})
}

func (p *swissPlugin) EnrichActive(ctx context.Context, t *models.Tournament) error {
	return p.enrich(ctx, t)
}

func (p *swissPlugin) EnrichCompleted(ctx context.Context, t *models.Tournament) error {
	return p.enrich(ctx, t)
}

func (p *swissPlugin) enrich(ctx context.Context, t *models.Tournament) error {
	if err := enrichBasic(ctx, p.PluginDeps, t); err != nil {
		return err
	}
	sd, err := p.swiss.Get(ctx, t.ID)
	if err != nil {
		return err
	}
	t.Swiss = sd
	return nil
}

func (p *swissPlugin) HandlePluginRequest(ctx context.Context, t *models.Tournament, method, resource string, data json.RawMessage) (interface{}, error) {
	if method == http.MethodGet && resource == "rounds" {
		sd, err := p.swiss.Get(ctx, t.ID)
		if err != nil {
			return nil, err
		}
		matchRows, err := p.matches.ListByTournament(ctx, t.ID)
		if err != nil {
			return nil, err
		}
		byRound := make(map[int][]models.Match)
		for _, m := range matchRows {
			if m.Round == nil {
				continue
			}
			byRound[*m.Round] = append(byRound[*m.Round], *m)
		}
		return map[string]interface{}{"swiss": sd, "rounds": byRound}, nil
	}
	return nil, fmt.Errorf("%w: %s %s", ErrUnknownPluginResource, method, resource)
}
