package services

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/tt-club/tournament-system/models"
	"github.com/tt-club/tournament-system/ratings"
	"github.com/tt-club/tournament-system/repositories"
)

// memHistoryRepo keeps rating history rows in memory so per-match rewrites
// can be observed.
type memHistoryRepo struct {
	rows   []*models.RatingHistory
	nextID int
}

func newMemHistoryRepo() *memHistoryRepo {
	return &memHistoryRepo{nextID: 1}
}

func (r *memHistoryRepo) Insert(ctx context.Context, exec repositories.SQLExecutor, h *models.RatingHistory) error {
	copied := *h
	copied.ID = r.nextID
	r.nextID++
	r.rows = append(r.rows, &copied)
	h.ID = copied.ID
	return nil
}

func (r *memHistoryRepo) HasTournamentCompleted(ctx context.Context, memberID, tournamentID int) (bool, error) {
	for _, h := range r.rows {
		if h.MemberID == memberID && h.TournamentID != nil && *h.TournamentID == tournamentID &&
			h.Reason == models.ReasonTournamentCompleted && h.MatchID == nil {
			return true, nil
		}
	}
	return false, nil
}

func (r *memHistoryRepo) HasMatchEntries(ctx context.Context, matchID int) (bool, error) {
	for _, h := range r.rows {
		if h.MatchID != nil && *h.MatchID == matchID {
			return true, nil
		}
	}
	return false, nil
}

func (r *memHistoryRepo) UpsertTournamentCompleted(ctx context.Context, exec repositories.SQLExecutor, h *models.RatingHistory) error {
	for _, existing := range r.rows {
		if existing.MemberID == h.MemberID && existing.TournamentID != nil && h.TournamentID != nil &&
			*existing.TournamentID == *h.TournamentID &&
			existing.Reason == models.ReasonTournamentCompleted && existing.MatchID == nil {
			existing.Rating = h.Rating
			existing.RatingChange = h.RatingChange
			existing.Timestamp = h.Timestamp
			return nil
		}
	}
	return r.Insert(ctx, exec, h)
}

func (r *memHistoryRepo) ListByMember(ctx context.Context, memberID int) ([]*models.RatingHistory, error) {
	out := make([]*models.RatingHistory, 0)
	for _, h := range r.rows {
		if h.MemberID == memberID {
			out = append(out, h)
		}
	}
	return out, nil
}

func (r *memHistoryRepo) ListByTournament(ctx context.Context, tournamentID int) ([]*models.RatingHistory, error) {
	out := make([]*models.RatingHistory, 0)
	for _, h := range r.rows {
		if h.TournamentID != nil && *h.TournamentID == tournamentID {
			out = append(out, h)
		}
	}
	return out, nil
}

func (r *memHistoryRepo) ListByMatch(ctx context.Context, matchID int) ([]*models.RatingHistory, error) {
	out := make([]*models.RatingHistory, 0)
	for _, h := range r.rows {
		if h.MatchID != nil && *h.MatchID == matchID {
			out = append(out, h)
		}
	}
	return out, nil
}

func (r *memHistoryRepo) DeleteByMatch(ctx context.Context, exec repositories.SQLExecutor, matchID int) error {
	kept := r.rows[:0]
	for _, h := range r.rows {
		if h.MatchID != nil && *h.MatchID == matchID {
			continue
		}
		kept = append(kept, h)
	}
	r.rows = kept
	return nil
}

func newRatingFixture() (*RatingService, *fakeMemberRepo, *memHistoryRepo) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	members := newFakeMemberRepo()
	history := newMemHistoryRepo()
	service := NewRatingService(members, newFakeParticipantRepo(), newFakeMatchRepo(),
		newFakeTournamentRepo(), history, fakeExchangeRepo{}, nil, logger)
	return service, members, history
}

func ratedMember(id, rating int) *models.Member {
	r := rating
	return &models.Member{ID: id, Rating: &r, Active: true}
}

func TestApplyMatchIncrementalSkipsRatedMatch(t *testing.T) {
	service, members, history := newRatingFixture()
	members.byID[1] = ratedMember(1, 1400)
	members.byID[2] = ratedMember(2, 1200)
	m2 := 2
	match := &models.Match{ID: 10, Member1ID: 1, Member2ID: &m2, P1Sets: 3, P2Sets: 1}

	ctx := context.Background()
	if err := service.ApplyMatchIncremental(ctx, nil, match, models.ReasonPlayoffMatchCompleted); err != nil {
		t.Fatalf("first apply: %v", err)
	}
	first := *members.byID[1].Rating
	if err := service.ApplyMatchIncremental(ctx, nil, match, models.ReasonPlayoffMatchCompleted); err != nil {
		t.Fatalf("second apply: %v", err)
	}
	if got := *members.byID[1].Rating; got != first {
		t.Errorf("re-entering the same score moved the rating: %d -> %d", first, got)
	}
	rows, _ := history.ListByMatch(ctx, match.ID)
	if len(rows) != 2 {
		t.Errorf("match has %d history rows, want 2", len(rows))
	}
}

func TestReapplyMatchRewritesFlippedResult(t *testing.T) {
	service, members, history := newRatingFixture()
	members.byID[1] = ratedMember(1, 1400)
	members.byID[2] = ratedMember(2, 1200)
	m2 := 2
	match := &models.Match{ID: 10, Member1ID: 1, Member2ID: &m2, P1Sets: 3, P2Sets: 1}

	ctx := context.Background()
	if err := service.ApplyMatchIncremental(ctx, nil, match, models.ReasonPlayoffMatchCompleted); err != nil {
		t.Fatalf("initial apply: %v", err)
	}

	// Score correction flips the winner.
	match.P1Sets, match.P2Sets = 1, 3
	if err := service.ReapplyMatch(ctx, nil, match, models.ReasonPlayoffMatchCompleted); err != nil {
		t.Fatalf("ReapplyMatch: %v", err)
	}

	upset := ratings.Exchange(ratings.Fallback(), 1200, 1400)
	if got, want := *members.byID[2].Rating, 1200+upset; got != want {
		t.Errorf("corrected winner rating = %d, want %d", got, want)
	}
	if got, want := *members.byID[1].Rating, 1400-upset; got != want {
		t.Errorf("corrected loser rating = %d, want %d", got, want)
	}

	rows, _ := history.ListByMatch(ctx, match.ID)
	if len(rows) != 2 {
		t.Fatalf("match has %d history rows after rewrite, want 2", len(rows))
	}
	for _, row := range rows {
		switch row.MemberID {
		case 2:
			if row.RatingChange != upset {
				t.Errorf("winner row change = %d, want %d", row.RatingChange, upset)
			}
		case 1:
			if row.RatingChange != -upset {
				t.Errorf("loser row change = %d, want %d", row.RatingChange, -upset)
			}
		default:
			t.Errorf("unexpected member %d in match history", row.MemberID)
		}
	}
}

func TestReapplyMatchIsStable(t *testing.T) {
	service, members, _ := newRatingFixture()
	members.byID[1] = ratedMember(1, 1400)
	members.byID[2] = ratedMember(2, 1200)
	m2 := 2
	match := &models.Match{ID: 10, Member1ID: 1, Member2ID: &m2, P1Sets: 3, P2Sets: 1}

	ctx := context.Background()
	if err := service.ApplyMatchIncremental(ctx, nil, match, models.ReasonPlayoffMatchCompleted); err != nil {
		t.Fatalf("initial apply: %v", err)
	}
	first, second := *members.byID[1].Rating, *members.byID[2].Rating

	if err := service.ReapplyMatch(ctx, nil, match, models.ReasonPlayoffMatchCompleted); err != nil {
		t.Fatalf("ReapplyMatch: %v", err)
	}
	if *members.byID[1].Rating != first || *members.byID[2].Rating != second {
		t.Errorf("reapplying an unchanged result moved ratings: %d/%d -> %d/%d",
			first, second, *members.byID[1].Rating, *members.byID[2].Rating)
	}
}

func TestPostRatingsRecomputedOnMiss(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	members := newFakeMemberRepo()
	participants := newFakeParticipantRepo()
	matches := newFakeMatchRepo()
	tournaments := newFakeTournamentRepo()
	history := newMemHistoryRepo()
	service := NewRatingService(members, participants, matches, tournaments,
		history, fakeExchangeRepo{}, nil, logger)

	ctx := context.Background()
	members.byID[1] = ratedMember(1, 1400)
	members.byID[2] = ratedMember(2, 1200)

	recorded := time.Now()
	tour := &models.Tournament{
		Kind: models.KindRoundRobin, Status: models.StatusCompleted,
		CreatedAt: recorded.Add(-time.Hour), RecordedAt: &recorded,
	}
	if err := tournaments.Create(ctx, nil, tour); err != nil {
		t.Fatal(err)
	}
	r1, r2 := 1400, 1200
	_ = participants.CreateBatch(ctx, nil, []models.Participant{
		{TournamentID: tour.ID, MemberID: 1, RatingAtTime: &r1},
		{TournamentID: tour.ID, MemberID: 2, RatingAtTime: &r2},
	})
	m2 := 2
	_ = matches.Create(ctx, nil, &models.Match{
		TournamentID: &tour.ID, Member1ID: 1, Member2ID: &m2, P1Sets: 3, P2Sets: 1,
	})

	post, err := service.PostRatings(ctx, nil, tour)
	if err != nil {
		t.Fatalf("PostRatings: %v", err)
	}
	if len(post) != 2 {
		t.Fatalf("post map holds %d members, want 2", len(post))
	}
	if post[1] <= 1400 {
		t.Errorf("winner post rating = %d, want above 1400", post[1])
	}
	if post[2] > 1200 {
		t.Errorf("loser post rating = %d, want at most 1200", post[2])
	}
	if service.Cache().Len() != 1 {
		t.Errorf("cache holds %d tournaments after the replay, want 1", service.Cache().Len())
	}

	again, err := service.PostRatings(ctx, nil, tour)
	if err != nil {
		t.Fatalf("second PostRatings: %v", err)
	}
	for memberID, rating := range post {
		if again[memberID] != rating {
			t.Errorf("member %d post rating changed on the cached read: %d -> %d", memberID, rating, again[memberID])
		}
	}
}

func TestPostRatingsNilForActive(t *testing.T) {
	service, _, _ := newRatingFixture()
	post, err := service.PostRatings(context.Background(), nil, &models.Tournament{
		Kind: models.KindRoundRobin, Status: models.StatusActive,
	})
	if err != nil {
		t.Fatalf("PostRatings: %v", err)
	}
	if post != nil {
		t.Errorf("active tournament returned post ratings: %v", post)
	}
}
