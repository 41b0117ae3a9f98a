package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"

	"github.com/tt-club/tournament-system/brackets"
	"github.com/tt-club/tournament-system/models"
)

// prelimPlugin drives the two compound kinds: players are snake-drafted
// into preliminary round-robin groups, and the group winners feed a final
// stage (another round robin, or a playoff). The parent itself never holds
// matches; it completes when its final child completes.
type prelimPlugin struct {
	*PluginDeps
	kind      models.TournamentKind
	finalKind models.TournamentKind
	registry  *Registry
}

func NewPrelimWithFinalRRPlugin(deps *PluginDeps, registry *Registry) Plugin {
	return &prelimPlugin{PluginDeps: deps, kind: models.KindPrelimWithFinalRR, finalKind: models.KindRoundRobin, registry: registry}
}

func NewPrelimWithFinalPlayoffPlugin(deps *PluginDeps, registry *Registry) Plugin {
	return &prelimPlugin{PluginDeps: deps, kind: models.KindPrelimWithFinalPlayoff, finalKind: models.KindPlayoff, registry: registry}
}

func (p *prelimPlugin) Kind() models.TournamentKind { return p.kind }
func (p *prelimPlugin) IsBasic() bool               { return false }

func (p *prelimPlugin) CanDelete(ctx context.Context, t *models.Tournament) (bool, error) {
	children, err := p.tournaments.ListChildren(ctx, t.ID)
	if err != nil {
		return false, err
	}
	for _, child := range children {
		count, err := p.matches.CountByTournament(ctx, child.ID)
		if err != nil {
			return false, err
		}
		if count > 0 {
			return false, nil
		}
	}
	return true, nil
}

func (p *prelimPlugin) CanCancel(t *models.Tournament) bool { return true }

func (p *prelimPlugin) IsComplete(ctx context.Context, t *models.Tournament) (bool, error) {
	final, err := p.finalChild(ctx, t.ID)
	if err != nil {
		return false, err
	}
	return final != nil && final.IsCompleted(), nil
}

func (p *prelimPlugin) MatchesRemaining(ctx context.Context, t *models.Tournament) (int, error) {
	children, err := p.tournaments.ListChildren(ctx, t.ID)
	if err != nil {
		return 0, err
	}
	remaining := 0
	for _, child := range children {
		plugin, err := p.registry.Resolve(child.Kind)
		if err != nil {
			return 0, err
		}
		r, err := plugin.MatchesRemaining(ctx, child)
		if err != nil {
			return 0, err
		}
		remaining += r
	}
	return remaining, nil
}

func (p *prelimPlugin) CreateTournament(ctx context.Context, args CreateTournamentArgs) (*models.Tournament, error) {
	if args.Name == "" {
		return nil, ErrNameRequired
	}
	groups := args.Groups
	if groups < 2 {
		return nil, fmt.Errorf("%w: at least 2 preliminary groups", ErrValidationFailed)
	}
	finalSize := args.FinalSize
	if finalSize < 2 {
		return nil, fmt.Errorf("%w: final stage needs at least 2 players", ErrValidationFailed)
	}

	memberSet := make(map[int]bool, len(args.MemberIDs))
	for _, id := range args.MemberIDs {
		memberSet[id] = true
	}
	for _, id := range args.AutoQualifierIDs {
		if !memberSet[id] {
			return nil, fmt.Errorf("%w: auto-qualifier %d is not a participant", ErrValidationFailed, id)
		}
	}
	drafted := withoutMembers(args.MemberIDs, args.AutoQualifierIDs)
	if len(drafted) < groups*2 {
		return nil, fmt.Errorf("%w: %d players cannot fill %d groups", ErrNotEnoughParticipants, len(drafted), groups)
	}
	if finalSize > len(args.MemberIDs) {
		return nil, fmt.Errorf("%w: final size exceeds the field", ErrValidationFailed)
	}

	t := &models.Tournament{
		Name:      args.Name,
		Kind:      p.kind,
		Status:    models.StatusActive,
		FinalSize: &finalSize,
		SeedCount: args.SeedCount,
	}
	var participants []models.Participant
	err := p.inTx(ctx, func(tx *sql.Tx) error {
		if err := p.tournaments.Create(ctx, tx, t); err != nil {
			return err
		}
		var err error
		participants, err = p.snapshotParticipants(ctx, t.ID, args.MemberIDs, args.AutoQualifierIDs)
		if err != nil {
			return err
		}
		return p.participants.CreateBatch(ctx, tx, participants)
	})
	if err != nil {
		return nil, err
	}

	// Children are created through their own plugins, each in its own
	// transaction, so every group snapshots ratings the same way a
	// standalone round robin would.
	snapshots := make(map[int]int, len(participants))
	for _, part := range participants {
		if part.RatingAtTime != nil {
			snapshots[part.MemberID] = *part.RatingAtTime
		}
	}
	grouped := SnakeDraft(drafted, snapshots, groups)
	rrPlugin, err := p.registry.Resolve(models.KindRoundRobin)
	if err != nil {
		return nil, err
	}
	for g, memberIDs := range grouped {
		groupNumber := g + 1
		_, err := rrPlugin.CreateTournament(ctx, CreateTournamentArgs{
			Name:        fmt.Sprintf("%s — Group %d", args.Name, groupNumber),
			Kind:        models.KindRoundRobin,
			MemberIDs:   memberIDs,
			ParentID:    &t.ID,
			GroupNumber: &groupNumber,
		})
		if err != nil {
			return nil, err
		}
	}
	return t, nil
}

// SnakeDraft distributes members into groups in alternating passes through
// the rating-sorted list, equalizing group strength. Unrated members sort
// last; ties break by member ID.
func SnakeDraft(memberIDs []int, ratings map[int]int, groups int) [][]int {
	sorted := make([]int, len(memberIDs))
	copy(sorted, memberIDs)
	sortByRatingDesc(sorted, ratings)

	out := make([][]int, groups)
	forward := true
	for start := 0; start < len(sorted); start += groups {
		end := start + groups
		if end > len(sorted) {
			end = len(sorted)
		}
		row := sorted[start:end]
		if forward {
			for i, id := range row {
				out[i] = append(out[i], id)
			}
		} else {
			for i, id := range row {
				out[groups-1-i] = append(out[groups-1-i], id)
			}
		}
		forward = !forward
	}
	return out
}

func sortByRatingDesc(memberIDs []int, ratings map[int]int) {
	ratingOf := func(id int) int {
		if r, ok := ratings[id]; ok {
			return r
		}
		return -1
	}
	sort.Slice(memberIDs, func(i, j int) bool {
		a, b := memberIDs[i], memberIDs[j]
		if ratingOf(a) != ratingOf(b) {
			return ratingOf(a) > ratingOf(b)
		}
		return a < b
	})
}

func withoutMembers(memberIDs, exclude []int) []int {
	excluded := make(map[int]bool, len(exclude))
	for _, id := range exclude {
		excluded[id] = true
	}
	out := make([]int, 0, len(memberIDs))
	for _, id := range memberIDs {
		if !excluded[id] {
			out = append(out, id)
		}
	}
	return out
}

func (p *prelimPlugin) UpdateMatch(ctx context.Context, t *models.Tournament, args UpdateMatchArgs) (*models.Match, *StateChange, error) {
	return nil, nil, fmt.Errorf("%w: scores are recorded on the group and final tournaments", ErrValidationFailed)
}

func (p *prelimPlugin) OnMatchCompleted(ctx context.Context, ev MatchEvent) (*StateChange, error) {
	return nil, nil
}

// OnChildCompleted is where the compound logic lives: a completed final
// completes the parent; once the last group completes, the final child is
// requested from the dispatcher.
func (p *prelimPlugin) OnChildCompleted(ctx context.Context, ev ChildEvent) (*StateChange, error) {
	if ev.Child.GroupNumber == nil {
		return &StateChange{ShouldMarkComplete: true, Message: "final stage decided"}, nil
	}

	children, err := p.tournaments.ListChildren(ctx, ev.Parent.ID)
	if err != nil {
		return nil, err
	}
	for _, child := range children {
		if child.GroupNumber == nil {
			// Final already exists; nothing to do.
			return nil, nil
		}
		if !child.IsCompleted() {
			return nil, nil
		}
	}

	cfg, err := p.buildFinalConfig(ctx, ev.Parent, children)
	if err != nil {
		return nil, err
	}
	return &StateChange{
		ShouldCreateFinalTournament: true,
		FinalConfig:                 cfg,
		Message:                     "all groups decided",
	}, nil
}

// buildFinalConfig extracts the qualifiers: auto-qualifiers first, then the
// top finisher of each group, then second places, and so on until the final
// is full.
func (p *prelimPlugin) buildFinalConfig(ctx context.Context, parent *models.Tournament, groups []*models.Tournament) (*FinalConfig, error) {
	parentParticipants, err := p.participants.ListByTournament(ctx, parent.ID)
	if err != nil {
		return nil, err
	}
	auto := make([]int, 0)
	for _, part := range parentParticipants {
		if part.AutoQualified {
			auto = append(auto, part.MemberID)
		}
	}

	finalSize := 2 * len(groups)
	if parent.FinalSize != nil {
		finalSize = *parent.FinalSize
	}

	placings := make([][]int, 0, len(groups))
	for _, group := range groups {
		participants, err := p.participants.ListByTournament(ctx, group.ID)
		if err != nil {
			return nil, err
		}
		matchRows, err := p.matches.ListByTournament(ctx, group.ID)
		if err != nil {
			return nil, err
		}
		standings := ComputeStandings(group.ID, participants, matchRows)
		order := make([]int, 0, len(standings))
		for _, s := range standings {
			order = append(order, s.MemberID)
		}
		placings = append(placings, order)
	}

	memberIDs := append([]int{}, auto...)
	memberIDs = append(memberIDs, ExtractQualifiers(placings, finalSize-len(auto))...)

	cfg := &FinalConfig{
		Kind:      p.finalKind,
		Name:      fmt.Sprintf("%s — Final", parent.Name),
		MemberIDs: memberIDs,
	}
	if p.finalKind == models.KindPlayoff {
		cfg.SeedCount = p.finalSeedCount(parent, len(groups), len(auto), len(memberIDs))
	}
	return cfg, nil
}

// ExtractQualifiers takes group placing lists and returns the first `need`
// qualifiers, round-robin across groups by place: all first places, then
// all second places, and so on.
func ExtractQualifiers(placings [][]int, need int) []int {
	out := make([]int, 0, need)
	for place := 0; need > 0; place++ {
		advanced := false
		for _, groupOrder := range placings {
			if place >= len(groupOrder) {
				continue
			}
			advanced = true
			if len(out) < need {
				out = append(out, groupOrder[place])
			}
		}
		if !advanced || len(out) >= need {
			break
		}
	}
	return out
}

// finalSeedCount defaults to the power of two closest to 2G + autoCount,
// clamped to a protected-seed count the final's field can carry.
func (p *prelimPlugin) finalSeedCount(parent *models.Tournament, groupCount, autoCount, fieldSize int) *int {
	if parent.SeedCount != nil {
		return parent.SeedCount
	}
	s := brackets.ClosestPowerOfTwo(2*groupCount + autoCount)
	if max := brackets.MaxSeedCount(fieldSize); s > max {
		s = max
	}
	if s < 2 {
		return nil
	}
	return &s
}

func (p *prelimPlugin) OnMatchRating(ctx context.Context, ev MatchEvent) error {
	return nil
}

func (p *prelimPlugin) OnCompletionRating(ctx context.Context, t *models.Tournament) error {
	// Children write their own ratings as they complete.
	return nil
}

func (p *prelimPlugin) EnrichActive(ctx context.Context, t *models.Tournament) error {
	return p.enrich(ctx, t)
}

func (p *prelimPlugin) EnrichCompleted(ctx context.Context, t *models.Tournament) error {
	return p.enrich(ctx, t)
}

func (p *prelimPlugin) enrich(ctx context.Context, t *models.Tournament) error {
	participants, err := p.participants.ListByTournament(ctx, t.ID)
	if err != nil {
		return err
	}
	children, err := p.tournaments.ListChildren(ctx, t.ID)
	if err != nil {
		return err
	}
	t.Participants = derefParticipants(participants)
	t.Children = children
	return nil
}

func (p *prelimPlugin) HandlePluginRequest(ctx context.Context, t *models.Tournament, method, resource string, data json.RawMessage) (interface{}, error) {
	if method == http.MethodGet && resource == "groups" {
		return p.tournaments.ListChildren(ctx, t.ID)
	}
	return nil, fmt.Errorf("%w: %s %s", ErrUnknownPluginResource, method, resource)
}

func (p *prelimPlugin) finalChild(ctx context.Context, parentID int) (*models.Tournament, error) {
	children, err := p.tournaments.ListChildren(ctx, parentID)
	if err != nil {
		return nil, err
	}
	for _, child := range children {
		if child.GroupNumber == nil {
			return child, nil
		}
	}
	return nil, nil
}
