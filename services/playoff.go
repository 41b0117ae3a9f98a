package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"time"

	"github.com/tt-club/tournament-system/brackets"
	"github.com/tt-club/tournament-system/models"
	"github.com/tt-club/tournament-system/repositories"
)

// playoffPlugin drives PLAYOFF tournaments: it builds the bracket at
// creation and advances winners through it as scores arrive. Ratings are
// written per match (incremental mode), never on completion.
type playoffPlugin struct {
	*PluginDeps
}

func NewPlayoffPlugin(deps *PluginDeps) Plugin {
	return &playoffPlugin{PluginDeps: deps}
}

func (p *playoffPlugin) Kind() models.TournamentKind { return models.KindPlayoff }
func (p *playoffPlugin) IsBasic() bool               { return true }

func (p *playoffPlugin) CanDelete(ctx context.Context, t *models.Tournament) (bool, error) {
	count, err := p.matches.CountByTournament(ctx, t.ID)
	if err != nil {
		return false, err
	}
	return count == 0, nil
}

func (p *playoffPlugin) CanCancel(t *models.Tournament) bool { return true }

func (p *playoffPlugin) IsComplete(ctx context.Context, t *models.Tournament) (bool, error) {
	rows, err := p.bracketMatches.ListByTournament(ctx, t.ID)
	if err != nil {
		return false, err
	}
	final := brackets.Find(rows, 1, 1)
	if final == nil || final.MatchID == nil {
		return false, nil
	}
	match, err := p.matches.GetByID(ctx, *final.MatchID)
	if err != nil {
		return false, err
	}
	return match.Played(), nil
}

func (p *playoffPlugin) MatchesRemaining(ctx context.Context, t *models.Tournament) (int, error) {
	rows, err := p.bracketMatches.ListByTournament(ctx, t.ID)
	if err != nil {
		return 0, err
	}
	matchRows, err := p.matches.ListByTournament(ctx, t.ID)
	if err != nil {
		return 0, err
	}
	playable := 0
	for _, bm := range rows {
		if !bm.HasBye() {
			playable++
		}
	}
	played := 0
	for _, m := range matchRows {
		if m.Played() {
			played++
		}
	}
	return playable - played, nil
}

func (p *playoffPlugin) CreateTournament(ctx context.Context, args CreateTournamentArgs) (*models.Tournament, error) {
	if args.Name == "" {
		return nil, ErrNameRequired
	}
	if len(args.MemberIDs) < 2 {
		return nil, fmt.Errorf("%w: playoff needs at least 2", ErrNotEnoughParticipants)
	}

	t := &models.Tournament{
		Name:        args.Name,
		Kind:        models.KindPlayoff,
		Status:      models.StatusActive,
		ParentID:    args.ParentID,
		GroupNumber: args.GroupNumber,
		SeedCount:   args.SeedCount,
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
		return p.buildBracket(ctx, tx, t, participants, args.SeedCount)
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

// buildBracket lays out the first round, persists every bracket row, wires
// the next-match links, and promotes BYE winners into round two without
// creating Match rows.
func (p *playoffPlugin) buildBracket(ctx context.Context, tx *sql.Tx, t *models.Tournament, participants []models.Participant, seedCount *int) error {
	firstRound, err := p.layoutFirstRound(participants, seedCount)
	if err != nil {
		return err
	}
	rows := brackets.Layout(t.ID, firstRound)
	for _, bm := range rows {
		if err := p.bracketMatches.Create(ctx, tx, bm); err != nil {
			return err
		}
	}

	byPos := make(map[[2]int]*models.BracketMatch, len(rows))
	for _, bm := range rows {
		byPos[[2]int{bm.Round, bm.Position}] = bm
	}
	for _, bm := range rows {
		nextRound, nextPos, slot := brackets.NextPosition(bm.Round, bm.Position)
		if nextRound == 0 {
			continue
		}
		next := byPos[[2]int{nextRound, nextPos}]
		if err := p.bracketMatches.SetNextMatchID(ctx, tx, bm.ID, &next.ID); err != nil {
			return err
		}
		bm.NextMatchID = &next.ID

		if advancer := bm.ByeAdvancer(); advancer != 0 {
			if slot == 1 {
				next.Member1ID = advancer
			} else {
				next.Member2ID = advancer
			}
			if err := p.bracketMatches.UpdateSlots(ctx, tx, next.ID, next.Member1ID, next.Member2ID); err != nil {
				return err
			}
		}
	}
	return nil
}

func (p *playoffPlugin) layoutFirstRound(participants []models.Participant, seedCount *int) ([]int, error) {
	entrants := make([]brackets.Entrant, 0, len(participants))
	for _, part := range participants {
		rating := 0
		if part.RatingAtTime != nil {
			rating = *part.RatingAtTime
		}
		entrants = append(entrants, brackets.Entrant{MemberID: part.MemberID, Rating: rating})
	}
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	firstRound, err := brackets.BuildFirstRound(entrants, seedCount, rng)
	if err != nil {
		if errors.Is(err, brackets.ErrDoubleBye) {
			return nil, fmt.Errorf("%w: %v", ErrIntegrity, err)
		}
		if errors.Is(err, brackets.ErrInvalidSeedCount) || errors.Is(err, brackets.ErrNotEnoughEntrants) {
			return nil, fmt.Errorf("%w: %v", ErrValidationFailed, err)
		}
		return nil, err
	}
	return firstRound, nil
}

// UpdateMatch accepts either a Match ID or a BracketMatch ID; BYE positions
// and positions still waiting for an earlier winner are rejected.
func (p *playoffPlugin) UpdateMatch(ctx context.Context, t *models.Tournament, args UpdateMatchArgs) (*models.Match, *StateChange, error) {
	if err := validateScore(&args); err != nil {
		return nil, nil, err
	}
	bm, err := p.resolveBracketMatch(ctx, t, args.MatchID)
	if err != nil {
		return nil, nil, err
	}
	if bm.HasBye() {
		return nil, nil, ErrByeMatchUpdate
	}
	if bm.Member1ID == 0 || bm.Member2ID == 0 {
		return nil, nil, ErrSlotNotReady
	}

	var match *models.Match
	err = p.inTx(ctx, func(tx *sql.Tx) error {
		m, txErr := p.writeResult(ctx, tx, t, bm, args)
		if txErr != nil {
			return txErr
		}
		match = m
		return p.advanceWinner(ctx, tx, bm, m)
	})
	if err != nil {
		return nil, nil, err
	}

	var sc *StateChange
	if brackets.IsFinal(bm) && match.Played() && !t.IsCompleted() {
		sc = &StateChange{ShouldMarkComplete: true, Message: "final decided"}
	}
	return match, sc, nil
}

// resolveBracketMatch tries the ID as a Match first, then as a BracketMatch.
func (p *playoffPlugin) resolveBracketMatch(ctx context.Context, t *models.Tournament, id int) (*models.BracketMatch, error) {
	if m, err := p.matches.GetByID(ctx, id); err == nil {
		if m.TournamentID == nil || *m.TournamentID != t.ID || m.BracketMatchID == nil {
			return nil, ErrMatchTournamentMismatch
		}
		return p.getBracketMatch(ctx, t, *m.BracketMatchID)
	} else if !errors.Is(err, repositories.ErrMatchNotFound) {
		return nil, err
	}
	return p.getBracketMatch(ctx, t, id)
}

func (p *playoffPlugin) getBracketMatch(ctx context.Context, t *models.Tournament, id int) (*models.BracketMatch, error) {
	bm, err := p.bracketMatches.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrBracketMatchNotFound) {
			return nil, ErrBracketMatchNotFound
		}
		return nil, err
	}
	if bm.TournamentID != t.ID {
		return nil, ErrMatchTournamentMismatch
	}
	return bm, nil
}

func (p *playoffPlugin) writeResult(ctx context.Context, tx *sql.Tx, t *models.Tournament, bm *models.BracketMatch, args UpdateMatchArgs) (*models.Match, error) {
	member2 := bm.Member2ID
	round := bm.Round
	if bm.MatchID != nil {
		m, err := p.matches.GetByID(ctx, *bm.MatchID)
		if err != nil {
			return nil, err
		}
		m.P1Sets = args.P1Sets
		m.P2Sets = args.P2Sets
		m.P1Forfeit = args.P1Forfeit
		m.P2Forfeit = args.P2Forfeit
		if err := p.matches.UpdateResult(ctx, tx, m); err != nil {
			return nil, err
		}
		return m, nil
	}

	match := &models.Match{
		TournamentID:   &t.ID,
		Member1ID:      bm.Member1ID,
		Member2ID:      &member2,
		P1Sets:         args.P1Sets,
		P2Sets:         args.P2Sets,
		P1Forfeit:      args.P1Forfeit,
		P2Forfeit:      args.P2Forfeit,
		BracketMatchID: &bm.ID,
		Round:          &round,
	}
	if err := p.matches.Create(ctx, tx, match); err != nil {
		return nil, err
	}
	if err := p.bracketMatches.SetMatchID(ctx, tx, bm.ID, &match.ID); err != nil {
		return nil, err
	}
	bm.MatchID = &match.ID
	return match, nil
}

func (p *playoffPlugin) advanceWinner(ctx context.Context, tx *sql.Tx, bm *models.BracketMatch, match *models.Match) error {
	if bm.NextMatchID == nil || !match.Played() {
		return nil
	}
	winnerID, _, err := match.Winner()
	if err != nil {
		return err
	}
	next, err := p.bracketMatches.GetByID(ctx, *bm.NextMatchID)
	if err != nil {
		return err
	}
	_, _, slot := brackets.NextPosition(bm.Round, bm.Position)
	if slot == 1 {
		next.Member1ID = winnerID
	} else {
		next.Member2ID = winnerID
	}
	return p.bracketMatches.UpdateSlots(ctx, tx, next.ID, next.Member1ID, next.Member2ID)
}

func (p *playoffPlugin) OnMatchCompleted(ctx context.Context, ev MatchEvent) (*StateChange, error) {
	return nil, nil
}

func (p *playoffPlugin) OnChildCompleted(ctx context.Context, ev ChildEvent) (*StateChange, error) {
	return nil, nil
}

func (p *playoffPlugin) OnMatchRating(ctx context.Context, ev MatchEvent) error {
	return p.inTx(ctx, func(tx *sql.Tx) error {
		return p.ratings.ReapplyMatch(ctx, tx, ev.Match, models.ReasonPlayoffMatchCompleted)
	})
}

func (p *playoffPlugin) OnCompletionRating(ctx context.Context, t *models.Tournament) error {
	// Every playoff match already wrote its incremental exchange.
	return nil
}

func (p *playoffPlugin) EnrichActive(ctx context.Context, t *models.Tournament) error {
	return p.enrich(ctx, t)
}

func (p *playoffPlugin) EnrichCompleted(ctx context.Context, t *models.Tournament) error {
	return p.enrich(ctx, t)
}

func (p *playoffPlugin) enrich(ctx context.Context, t *models.Tournament) error {
	if err := enrichBasic(ctx, p.PluginDeps, t); err != nil {
		return err
	}
	rows, err := p.bracketMatches.ListByTournament(ctx, t.ID)
	if err != nil {
		return err
	}
	t.BracketMatches = make([]models.BracketMatch, 0, len(rows))
	for _, bm := range rows {
		t.BracketMatches = append(t.BracketMatches, *bm)
	}
	return nil
}

type previewRequest struct {
	SeedCount *int `json:"seed_count"`
}

func (p *playoffPlugin) HandlePluginRequest(ctx context.Context, t *models.Tournament, method, resource string, data json.RawMessage) (interface{}, error) {
	switch {
	case method == http.MethodGet && resource == "bracket":
		return p.bracketMatches.ListByTournament(ctx, t.ID)
	case method == http.MethodPost && resource == "preview":
		return p.preview(ctx, t, data)
	case method == http.MethodPost && resource == "reseed":
		return nil, p.reseed(ctx, t, data)
	default:
		return nil, fmt.Errorf("%w: %s %s", ErrUnknownPluginResource, method, resource)
	}
}

// preview rebuilds a first-round layout from the current participants
// without persisting anything.
func (p *playoffPlugin) preview(ctx context.Context, t *models.Tournament, data json.RawMessage) (interface{}, error) {
	var req previewRequest
	if len(data) > 0 {
		if err := json.Unmarshal(data, &req); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrValidationFailed, err)
		}
	}
	participants, err := p.participants.ListByTournament(ctx, t.ID)
	if err != nil {
		return nil, err
	}
	seedCount := req.SeedCount
	if seedCount == nil {
		seedCount = t.SeedCount
	}
	firstRound, err := p.layoutFirstRound(derefParticipants(participants), seedCount)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"first_round": firstRound}, nil
}

// reseed throws the bracket away and rebuilds it. Only possible while the
// tournament is active and no match has been recorded.
func (p *playoffPlugin) reseed(ctx context.Context, t *models.Tournament, data json.RawMessage) error {
	if t.IsCompleted() {
		return ErrTournamentCompleted
	}
	count, err := p.matches.CountByTournament(ctx, t.ID)
	if err != nil {
		return err
	}
	if count > 0 {
		return ErrTournamentHasMatches
	}

	var req previewRequest
	if len(data) > 0 {
		if err := json.Unmarshal(data, &req); err != nil {
			return fmt.Errorf("%w: %v", ErrValidationFailed, err)
		}
	}
	participants, err := p.participants.ListByTournament(ctx, t.ID)
	if err != nil {
		return err
	}
	seedCount := req.SeedCount
	if seedCount == nil {
		seedCount = t.SeedCount
	}
	return p.inTx(ctx, func(tx *sql.Tx) error {
		if err := p.bracketMatches.DeleteByTournament(ctx, tx, t.ID); err != nil {
			return err
		}
		return p.buildBracket(ctx, tx, t, derefParticipants(participants), seedCount)
	})
}
