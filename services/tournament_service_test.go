package services

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sort"
	"testing"
	"time"

	"github.com/tt-club/tournament-system/models"
	"github.com/tt-club/tournament-system/repositories"
)

// In-memory repository fakes. Each implements just enough of its interface
// for the dispatcher flow; SQLExecutor arguments are ignored.

type fakeTournamentRepo struct {
	byID   map[int]*models.Tournament
	nextID int
}

func newFakeTournamentRepo() *fakeTournamentRepo {
	return &fakeTournamentRepo{byID: make(map[int]*models.Tournament), nextID: 1}
}

func (r *fakeTournamentRepo) Create(ctx context.Context, exec repositories.SQLExecutor, t *models.Tournament) error {
	t.ID = r.nextID
	r.nextID++
	if t.Status == "" {
		t.Status = models.StatusActive
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	r.byID[t.ID] = t
	return nil
}

func (r *fakeTournamentRepo) GetByID(ctx context.Context, id int) (*models.Tournament, error) {
	t, ok := r.byID[id]
	if !ok {
		return nil, repositories.ErrTournamentNotFound
	}
	return t, nil
}

func (r *fakeTournamentRepo) List(ctx context.Context, topLevelOnly bool) ([]*models.Tournament, error) {
	out := make([]*models.Tournament, 0, len(r.byID))
	for _, t := range r.byID {
		if topLevelOnly && t.ParentID != nil {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

func (r *fakeTournamentRepo) ListChildren(ctx context.Context, parentID int) ([]*models.Tournament, error) {
	out := make([]*models.Tournament, 0)
	for _, t := range r.byID {
		if t.ParentID != nil && *t.ParentID == parentID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (r *fakeTournamentRepo) ListCompletedFrom(ctx context.Context, from time.Time) ([]*models.Tournament, error) {
	out := make([]*models.Tournament, 0)
	for _, t := range r.byID {
		if t.Status == models.StatusCompleted && !t.Cancelled && !t.CreatedAt.Before(from) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *fakeTournamentRepo) MarkCompleted(ctx context.Context, exec repositories.SQLExecutor, id int, recordedAt time.Time) error {
	t, ok := r.byID[id]
	if !ok {
		return repositories.ErrTournamentNotFound
	}
	if t.Status != models.StatusActive {
		return repositories.ErrAlreadyCompleted
	}
	t.Status = models.StatusCompleted
	t.RecordedAt = &recordedAt
	return nil
}

func (r *fakeTournamentRepo) UpdateName(ctx context.Context, id int, name string) error {
	t, ok := r.byID[id]
	if !ok {
		return repositories.ErrTournamentNotFound
	}
	t.Name = name
	return nil
}

func (r *fakeTournamentRepo) SetCancelled(ctx context.Context, id int) error {
	t, ok := r.byID[id]
	if !ok {
		return repositories.ErrTournamentNotFound
	}
	t.Cancelled = true
	return nil
}

func (r *fakeTournamentRepo) Delete(ctx context.Context, id int) error {
	delete(r.byID, id)
	return nil
}

type fakeParticipantRepo struct {
	byTournament map[int][]models.Participant
}

func newFakeParticipantRepo() *fakeParticipantRepo {
	return &fakeParticipantRepo{byTournament: make(map[int][]models.Participant)}
}

func (r *fakeParticipantRepo) CreateBatch(ctx context.Context, exec repositories.SQLExecutor, participants []models.Participant) error {
	for _, p := range participants {
		r.byTournament[p.TournamentID] = append(r.byTournament[p.TournamentID], p)
	}
	return nil
}

func (r *fakeParticipantRepo) ListByTournament(ctx context.Context, tournamentID int) ([]*models.Participant, error) {
	list := r.byTournament[tournamentID]
	out := make([]*models.Participant, 0, len(list))
	for i := range list {
		out = append(out, &list[i])
	}
	return out, nil
}

func (r *fakeParticipantRepo) Get(ctx context.Context, tournamentID, memberID int) (*models.Participant, error) {
	for i, p := range r.byTournament[tournamentID] {
		if p.MemberID == memberID {
			return &r.byTournament[tournamentID][i], nil
		}
	}
	return nil, repositories.ErrParticipantNotFound
}

func (r *fakeParticipantRepo) DeleteByTournament(ctx context.Context, exec repositories.SQLExecutor, tournamentID int) error {
	delete(r.byTournament, tournamentID)
	return nil
}

type fakeMatchRepo struct {
	byID   map[int]*models.Match
	nextID int
}

func newFakeMatchRepo() *fakeMatchRepo {
	return &fakeMatchRepo{byID: make(map[int]*models.Match), nextID: 1}
}

func (r *fakeMatchRepo) Create(ctx context.Context, exec repositories.SQLExecutor, match *models.Match) error {
	match.ID = r.nextID
	r.nextID++
	r.byID[match.ID] = match
	return nil
}

func (r *fakeMatchRepo) GetByID(ctx context.Context, id int) (*models.Match, error) {
	m, ok := r.byID[id]
	if !ok {
		return nil, repositories.ErrMatchNotFound
	}
	return m, nil
}

func (r *fakeMatchRepo) ListByTournament(ctx context.Context, tournamentID int) ([]*models.Match, error) {
	out := make([]*models.Match, 0)
	for _, m := range r.byID {
		if m.TournamentID != nil && *m.TournamentID == tournamentID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *fakeMatchRepo) UpdateResult(ctx context.Context, exec repositories.SQLExecutor, match *models.Match) error {
	r.byID[match.ID] = match
	return nil
}

func (r *fakeMatchRepo) CountByTournament(ctx context.Context, tournamentID int) (int, error) {
	list, _ := r.ListByTournament(ctx, tournamentID)
	return len(list), nil
}

func (r *fakeMatchRepo) CountByMember(ctx context.Context, memberID int) (int, error) {
	count := 0
	for _, m := range r.byID {
		if m.Member1ID == memberID || (m.Member2ID != nil && *m.Member2ID == memberID) {
			count++
		}
	}
	return count, nil
}

type fakeStandingRepo struct {
	byTournament map[int][]models.Standing
}

func newFakeStandingRepo() *fakeStandingRepo {
	return &fakeStandingRepo{byTournament: make(map[int][]models.Standing)}
}

func (r *fakeStandingRepo) ReplaceForTournament(ctx context.Context, exec repositories.SQLExecutor, tournamentID int, standings []models.Standing) error {
	r.byTournament[tournamentID] = standings
	return nil
}

func (r *fakeStandingRepo) ListByTournament(ctx context.Context, tournamentID int) ([]models.Standing, error) {
	return r.byTournament[tournamentID], nil
}

type fakeMemberRepo struct {
	byID   map[int]*models.Member
	nextID int
}

func newFakeMemberRepo() *fakeMemberRepo {
	return &fakeMemberRepo{byID: make(map[int]*models.Member), nextID: 1}
}

func (r *fakeMemberRepo) Create(ctx context.Context, member *models.Member) error {
	for _, m := range r.byID {
		if m.Email == member.Email {
			return repositories.ErrMemberEmailConflict
		}
	}
	if member.ID == 0 {
		for r.byID[r.nextID] != nil {
			r.nextID++
		}
		member.ID = r.nextID
		r.nextID++
	}
	copied := *member
	r.byID[member.ID] = &copied
	return nil
}

func (r *fakeMemberRepo) GetByID(ctx context.Context, id int) (*models.Member, error) {
	m, ok := r.byID[id]
	if !ok {
		return nil, repositories.ErrMemberNotFound
	}
	return m, nil
}

func (r *fakeMemberRepo) GetByEmail(ctx context.Context, email string) (*models.Member, error) {
	for _, m := range r.byID {
		if m.Email == email {
			return m, nil
		}
	}
	return nil, repositories.ErrMemberNotFound
}

func (r *fakeMemberRepo) List(ctx context.Context, activeOnly bool) ([]*models.Member, error) {
	out := make([]*models.Member, 0, len(r.byID))
	for _, m := range r.byID {
		if activeOnly && !m.Active {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

func (r *fakeMemberRepo) UpdateRating(ctx context.Context, exec repositories.SQLExecutor, id int, rating *int) error {
	m, ok := r.byID[id]
	if !ok {
		return repositories.ErrMemberNotFound
	}
	m.Rating = rating
	return nil
}

func (r *fakeMemberRepo) SetActive(ctx context.Context, id int, active bool) error {
	m, ok := r.byID[id]
	if !ok {
		return repositories.ErrMemberNotFound
	}
	m.Active = active
	return nil
}

func (r *fakeMemberRepo) Delete(ctx context.Context, id int) error {
	delete(r.byID, id)
	return nil
}

type fakeHistoryRepo struct{}

func (fakeHistoryRepo) Insert(ctx context.Context, exec repositories.SQLExecutor, h *models.RatingHistory) error {
	return nil
}
func (fakeHistoryRepo) HasTournamentCompleted(ctx context.Context, memberID, tournamentID int) (bool, error) {
	return false, nil
}
func (fakeHistoryRepo) HasMatchEntries(ctx context.Context, matchID int) (bool, error) {
	return false, nil
}
func (fakeHistoryRepo) UpsertTournamentCompleted(ctx context.Context, exec repositories.SQLExecutor, h *models.RatingHistory) error {
	return nil
}
func (fakeHistoryRepo) ListByMember(ctx context.Context, memberID int) ([]*models.RatingHistory, error) {
	return nil, nil
}
func (fakeHistoryRepo) ListByMatch(ctx context.Context, matchID int) ([]*models.RatingHistory, error) {
	return nil, nil
}

func (fakeHistoryRepo) DeleteByMatch(ctx context.Context, exec repositories.SQLExecutor, matchID int) error {
	return nil
}

func (fakeHistoryRepo) ListByTournament(ctx context.Context, tournamentID int) ([]*models.RatingHistory, error) {
	return nil, nil
}

type fakeExchangeRepo struct{}

func (fakeExchangeRepo) ListEffective(ctx context.Context, at time.Time) ([]models.PointExchangeRule, error) {
	return nil, nil
}

type fakeNotifier struct {
	events []string
}

func (n *fakeNotifier) Publish(event, room string, payload interface{}) {
	n.events = append(n.events, event)
}

func (n *fakeNotifier) saw(event string) bool {
	for _, e := range n.events {
		if e == event {
			return true
		}
	}
	return false
}

// fakePlugin drives the dispatcher without a database. Hooks are counters
// plus optional overrides.
type fakePlugin struct {
	kind     models.TournamentKind
	basic    bool
	complete bool

	created           []CreateTournamentArgs
	completionRatings int
	matchRatings      int

	updateMatch func(ctx context.Context, t *models.Tournament, args UpdateMatchArgs) (*models.Match, *StateChange, error)
	onChild     func(ev ChildEvent) (*StateChange, error)
	enrich      func(ctx context.Context, t *models.Tournament) error
}

func (p *fakePlugin) Kind() models.TournamentKind { return p.kind }
func (p *fakePlugin) IsBasic() bool               { return p.basic }

func (p *fakePlugin) CanDelete(ctx context.Context, t *models.Tournament) (bool, error) {
	return true, nil
}
func (p *fakePlugin) CanCancel(t *models.Tournament) bool { return !t.IsCompleted() }
func (p *fakePlugin) IsComplete(ctx context.Context, t *models.Tournament) (bool, error) {
	return p.complete, nil
}
func (p *fakePlugin) MatchesRemaining(ctx context.Context, t *models.Tournament) (int, error) {
	return 0, nil
}

func (p *fakePlugin) CreateTournament(ctx context.Context, args CreateTournamentArgs) (*models.Tournament, error) {
	p.created = append(p.created, args)
	return &models.Tournament{ID: 100 + len(p.created), Name: args.Name, Kind: args.Kind, Status: models.StatusActive, ParentID: args.ParentID}, nil
}

func (p *fakePlugin) UpdateMatch(ctx context.Context, t *models.Tournament, args UpdateMatchArgs) (*models.Match, *StateChange, error) {
	if p.updateMatch != nil {
		return p.updateMatch(ctx, t, args)
	}
	return nil, nil, ErrMatchNotFound
}

func (p *fakePlugin) OnMatchCompleted(ctx context.Context, ev MatchEvent) (*StateChange, error) {
	return nil, nil
}

func (p *fakePlugin) OnChildCompleted(ctx context.Context, ev ChildEvent) (*StateChange, error) {
	if p.onChild != nil {
		return p.onChild(ev)
	}
	return nil, nil
}

func (p *fakePlugin) OnMatchRating(ctx context.Context, ev MatchEvent) error {
	p.matchRatings++
	return nil
}

func (p *fakePlugin) OnCompletionRating(ctx context.Context, t *models.Tournament) error {
	p.completionRatings++
	return nil
}

func (p *fakePlugin) EnrichActive(ctx context.Context, t *models.Tournament) error {
	if p.enrich != nil {
		return p.enrich(ctx, t)
	}
	return nil
}

func (p *fakePlugin) EnrichCompleted(ctx context.Context, t *models.Tournament) error {
	if p.enrich != nil {
		return p.enrich(ctx, t)
	}
	return nil
}

func (p *fakePlugin) HandlePluginRequest(ctx context.Context, t *models.Tournament, method, resource string, data json.RawMessage) (interface{}, error) {
	return nil, ErrUnknownPluginResource
}

type dispatcherFixture struct {
	service     *TournamentService
	tournaments *fakeTournamentRepo
	notifier    *fakeNotifier
	registry    *Registry
}

func newDispatcherFixture(plugins ...*fakePlugin) *dispatcherFixture {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	tournaments := newFakeTournamentRepo()
	participants := newFakeParticipantRepo()
	matches := newFakeMatchRepo()
	standings := newFakeStandingRepo()
	members := newFakeMemberRepo()

	ratings := NewRatingService(members, participants, matches, tournaments,
		fakeHistoryRepo{}, fakeExchangeRepo{}, nil, logger)

	registry := NewRegistry()
	for _, p := range plugins {
		registry.Register(p)
	}

	notifier := &fakeNotifier{}
	service := NewTournamentService(nil, tournaments, participants, matches,
		standings, members, registry, ratings, notifier, logger)
	return &dispatcherFixture{
		service:     service,
		tournaments: tournaments,
		notifier:    notifier,
		registry:    registry,
	}
}

func (f *dispatcherFixture) addTournament(t *models.Tournament) *models.Tournament {
	_ = f.tournaments.Create(context.Background(), nil, t)
	return t
}

func TestCompleteRejectsUnfinished(t *testing.T) {
	plugin := &fakePlugin{kind: "STUB", complete: false}
	f := newDispatcherFixture(plugin)
	tour := f.addTournament(&models.Tournament{Kind: "STUB"})

	if _, err := f.service.Complete(context.Background(), tour.ID); !errors.Is(err, ErrMatchesRemaining) {
		t.Fatalf("Complete error = %v, want ErrMatchesRemaining", err)
	}
}

func TestCompleteRunsCompletionFlow(t *testing.T) {
	plugin := &fakePlugin{kind: "STUB", complete: true}
	f := newDispatcherFixture(plugin)
	tour := f.addTournament(&models.Tournament{Kind: "STUB"})

	got, err := f.service.Complete(context.Background(), tour.ID)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if !got.IsCompleted() {
		t.Error("tournament should be completed")
	}
	if got.RecordedAt == nil {
		t.Error("RecordedAt should be set")
	}
	if plugin.completionRatings != 1 {
		t.Errorf("completion rating hook fired %d times, want 1", plugin.completionRatings)
	}
	if !f.notifier.saw(EventTournamentUpdated) {
		t.Error("tournament:updated not published")
	}
}

func TestCompleteIsIdempotent(t *testing.T) {
	plugin := &fakePlugin{kind: "STUB", complete: true}
	f := newDispatcherFixture(plugin)
	tour := f.addTournament(&models.Tournament{Kind: "STUB"})

	if _, err := f.service.Complete(context.Background(), tour.ID); err != nil {
		t.Fatalf("first Complete: %v", err)
	}
	if _, err := f.service.Complete(context.Background(), tour.ID); err != nil {
		t.Fatalf("second Complete: %v", err)
	}
	if plugin.completionRatings != 1 {
		t.Errorf("completion rating hook fired %d times on repeat completion, want 1", plugin.completionRatings)
	}
}

func TestChildCompletionCreatesFinal(t *testing.T) {
	finalPlugin := &fakePlugin{kind: "FINAL_STUB"}
	parentPlugin := &fakePlugin{kind: "PARENT_STUB"}
	parentPlugin.onChild = func(ev ChildEvent) (*StateChange, error) {
		return &StateChange{
			ShouldCreateFinalTournament: true,
			FinalConfig: &FinalConfig{
				Kind:      "FINAL_STUB",
				Name:      ev.Parent.Name + " — Final",
				MemberIDs: []int{1, 2},
			},
		}, nil
	}
	childPlugin := &fakePlugin{kind: "CHILD_STUB", complete: true}

	f := newDispatcherFixture(finalPlugin, parentPlugin, childPlugin)
	parent := f.addTournament(&models.Tournament{Kind: "PARENT_STUB", Name: "Spring Open"})
	child := f.addTournament(&models.Tournament{Kind: "CHILD_STUB", ParentID: &parent.ID})

	if _, err := f.service.Complete(context.Background(), child.ID); err != nil {
		t.Fatalf("Complete child: %v", err)
	}
	if len(finalPlugin.created) != 1 {
		t.Fatalf("final plugin created %d tournaments, want 1", len(finalPlugin.created))
	}
	created := finalPlugin.created[0]
	if created.ParentID == nil || *created.ParentID != parent.ID {
		t.Error("final should be created under the parent")
	}
	if created.Name != "Spring Open — Final" {
		t.Errorf("final name = %q", created.Name)
	}
}

func TestChildCompletionMarksParentComplete(t *testing.T) {
	parentPlugin := &fakePlugin{kind: "PARENT_STUB"}
	parentPlugin.onChild = func(ev ChildEvent) (*StateChange, error) {
		return &StateChange{ShouldMarkComplete: true}, nil
	}
	childPlugin := &fakePlugin{kind: "CHILD_STUB", complete: true}

	f := newDispatcherFixture(parentPlugin, childPlugin)
	parent := f.addTournament(&models.Tournament{Kind: "PARENT_STUB"})
	child := f.addTournament(&models.Tournament{Kind: "CHILD_STUB", ParentID: &parent.ID})

	if _, err := f.service.Complete(context.Background(), child.ID); err != nil {
		t.Fatalf("Complete child: %v", err)
	}
	if !parent.IsCompleted() {
		t.Error("parent should complete when its plugin asks for it")
	}
	if parentPlugin.completionRatings != 1 {
		t.Errorf("parent completion rating hook fired %d times, want 1", parentPlugin.completionRatings)
	}
}

func TestUpdateMatchFlow(t *testing.T) {
	plugin := &fakePlugin{kind: "STUB"}
	f := newDispatcherFixture(plugin)
	tour := f.addTournament(&models.Tournament{Kind: "STUB"})

	member2 := 2
	plugin.updateMatch = func(ctx context.Context, tt *models.Tournament, args UpdateMatchArgs) (*models.Match, *StateChange, error) {
		return &models.Match{
			ID: 1, TournamentID: &tt.ID,
			Member1ID: 1, Member2ID: &member2,
			P1Sets: args.P1Sets, P2Sets: args.P2Sets,
		}, nil, nil
	}

	match, err := f.service.UpdateMatch(context.Background(), tour.ID, UpdateMatchArgs{
		Member1ID: 1, Member2ID: 2, P1Sets: 3, P2Sets: 1,
	})
	if err != nil {
		t.Fatalf("UpdateMatch: %v", err)
	}
	if match == nil || !match.Played() {
		t.Fatal("expected a played match back")
	}
	if plugin.matchRatings != 1 {
		t.Errorf("match rating hook fired %d times, want 1", plugin.matchRatings)
	}
	if !f.notifier.saw(EventMatchUpdated) {
		t.Error("match:updated not published")
	}
	if !f.notifier.saw(EventCacheInvalidate) {
		t.Error("cache:invalidate not published")
	}
}

func TestUpdateMatchRejectsCancelled(t *testing.T) {
	plugin := &fakePlugin{kind: "STUB"}
	f := newDispatcherFixture(plugin)
	tour := f.addTournament(&models.Tournament{Kind: "STUB", Cancelled: true})

	_, err := f.service.UpdateMatch(context.Background(), tour.ID, UpdateMatchArgs{})
	if !errors.Is(err, ErrTournamentCancelled) {
		t.Fatalf("UpdateMatch error = %v, want ErrTournamentCancelled", err)
	}
}

func TestGetAttachesPostRatings(t *testing.T) {
	plugin := &fakePlugin{kind: "STUB", basic: true}
	plugin.enrich = func(ctx context.Context, tt *models.Tournament) error {
		tt.Participants = []models.Participant{
			{TournamentID: tt.ID, MemberID: 7},
			{TournamentID: tt.ID, MemberID: 9},
		}
		return nil
	}
	f := newDispatcherFixture(plugin)
	now := time.Now()
	recorded := now.Add(time.Hour)
	tour := f.addTournament(&models.Tournament{
		Kind: "STUB", Status: models.StatusCompleted, CreatedAt: now, RecordedAt: &recorded,
	})
	f.service.ratings.Cache().PutTournament(tour.ID, now, map[int]int{7: 1510, 9: 1388})

	got, err := f.service.Get(context.Background(), tour.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	want := map[int]int{7: 1510, 9: 1388}
	for _, p := range got.Participants {
		if p.PostRating == nil {
			t.Errorf("member %d has no post rating", p.MemberID)
			continue
		}
		if *p.PostRating != want[p.MemberID] {
			t.Errorf("member %d post rating = %d, want %d", p.MemberID, *p.PostRating, want[p.MemberID])
		}
	}
}

func TestGetSkipsPostRatingsWhileActive(t *testing.T) {
	plugin := &fakePlugin{kind: "STUB", basic: true}
	plugin.enrich = func(ctx context.Context, tt *models.Tournament) error {
		tt.Participants = []models.Participant{{TournamentID: tt.ID, MemberID: 7}}
		return nil
	}
	f := newDispatcherFixture(plugin)
	tour := f.addTournament(&models.Tournament{Kind: "STUB", CreatedAt: time.Now()})
	f.service.ratings.Cache().PutTournament(tour.ID, tour.CreatedAt, map[int]int{7: 1510})

	got, err := f.service.Get(context.Background(), tour.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Participants[0].PostRating != nil {
		t.Error("active tournaments must not carry post ratings")
	}
}
