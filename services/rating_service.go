package services

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tt-club/tournament-system/models"
	"github.com/tt-club/tournament-system/ratings"
	"github.com/tt-club/tournament-system/repositories"
)

// LeaderboardKey is the redis sorted set mirroring current member ratings.
const LeaderboardKey = "club:leaderboard"

const ruleCacheTTL = 5 * time.Minute

// RatingService owns every rating write: per-match incremental exchanges,
// the four-pass tournament computation, the chronological replay, and the
// post-rating cache. The redis client is optional; leaderboard writes are
// best-effort.
type RatingService struct {
	members      repositories.MemberRepository
	participants repositories.ParticipantRepository
	matches      repositories.MatchRepository
	tournaments  repositories.TournamentRepository
	history      repositories.RatingHistoryRepository
	exchange     repositories.PointExchangeRepository

	cache  *ratings.PostRatingCache
	redis  *redis.Client
	logger *slog.Logger

	tableMu      sync.Mutex
	cachedTable  *ratings.Table
	tableFetched time.Time
}

func NewRatingService(
	members repositories.MemberRepository,
	participants repositories.ParticipantRepository,
	matches repositories.MatchRepository,
	tournaments repositories.TournamentRepository,
	history repositories.RatingHistoryRepository,
	exchange repositories.PointExchangeRepository,
	redisClient *redis.Client,
	logger *slog.Logger,
) *RatingService {
	return &RatingService{
		members:      members,
		participants: participants,
		matches:      matches,
		tournaments:  tournaments,
		history:      history,
		exchange:     exchange,
		cache:        ratings.NewPostRatingCache(),
		redis:        redisClient,
		logger:       logger,
	}
}

// Cache exposes the post-rating cache for read-path lookups.
func (s *RatingService) Cache() *ratings.PostRatingCache {
	return s.cache
}

// Table returns the effective point-exchange table, cached in-process for
// five minutes. Falls back to the built-in table when no rows exist.
func (s *RatingService) Table(ctx context.Context) (*ratings.Table, error) {
	s.tableMu.Lock()
	defer s.tableMu.Unlock()
	if s.cachedTable != nil && time.Since(s.tableFetched) < ruleCacheTTL {
		return s.cachedTable, nil
	}
	rules, err := s.exchange.ListEffective(ctx, time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to load point exchange rules: %w", err)
	}
	if len(rules) == 0 {
		s.cachedTable = ratings.Fallback()
	} else {
		s.cachedTable = ratings.NewTable(rules)
	}
	s.tableFetched = time.Now()
	return s.cachedTable, nil
}

// ApplyMatchIncremental runs the per-match exchange for a decided,
// non-forfeit match and writes two history rows. A match that already has
// history rows is skipped, so re-entering the same score is a no-op.
func (s *RatingService) ApplyMatchIncremental(ctx context.Context, exec repositories.SQLExecutor, match *models.Match, reason models.RatingReason) error {
	if match.Member2ID == nil || !match.Played() || match.P1Forfeit || match.P2Forfeit {
		return nil
	}
	recorded, err := s.history.HasMatchEntries(ctx, match.ID)
	if err != nil {
		return err
	}
	if recorded {
		return nil
	}

	winnerID, loserID, err := match.Winner()
	if err != nil {
		return err
	}
	winner, err := s.members.GetByID(ctx, winnerID)
	if err != nil {
		return err
	}
	loser, err := s.members.GetByID(ctx, loserID)
	if err != nil {
		return err
	}

	table, err := s.Table(ctx)
	if err != nil {
		return err
	}
	winnerRating := currentOrSeed(winner)
	loserRating := currentOrSeed(loser)
	points := ratings.Exchange(table, winnerRating, loserRating)

	newWinner := winnerRating + points
	newLoser := loserRating - points
	if newLoser < 0 {
		newLoser = 0
	}

	now := time.Now()
	rows := []models.RatingHistory{
		{MemberID: winnerID, Rating: newWinner, RatingChange: newWinner - winnerRating, Timestamp: now, Reason: reason, TournamentID: match.TournamentID, MatchID: &match.ID},
		{MemberID: loserID, Rating: newLoser, RatingChange: newLoser - loserRating, Timestamp: now, Reason: reason, TournamentID: match.TournamentID, MatchID: &match.ID},
	}
	for i := range rows {
		if err := s.history.Insert(ctx, exec, &rows[i]); err != nil {
			// The rating update below still proceeds; the log entry is the
			// eventual-consistency marker.
			s.logger.Error("rating history insert failed",
				slog.Int("member_id", rows[i].MemberID), slog.Any("error", err))
		}
	}

	if err := s.members.UpdateRating(ctx, exec, winnerID, &newWinner); err != nil {
		return err
	}
	if err := s.members.UpdateRating(ctx, exec, loserID, &newLoser); err != nil {
		return err
	}
	s.updateLeaderboard(ctx, winnerID, newWinner)
	s.updateLeaderboard(ctx, loserID, newLoser)
	return nil
}

// ReapplyMatch rewrites the exchange of a match whose result changed after
// it was already rated: the old rows are reversed out of the members'
// current ratings and deleted, then the exchange runs again from the
// reverted values. A match with no prior rows rates normally.
func (s *RatingService) ReapplyMatch(ctx context.Context, exec repositories.SQLExecutor, match *models.Match, reason models.RatingReason) error {
	rows, err := s.history.ListByMatch(ctx, match.ID)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return s.ApplyMatchIncremental(ctx, exec, match, reason)
	}

	reverted := make(map[int]int, len(rows))
	for _, row := range rows {
		member, err := s.members.GetByID(ctx, row.MemberID)
		if err != nil {
			return err
		}
		base := currentOrSeed(member) - row.RatingChange
		if base < 0 {
			base = 0
		}
		reverted[row.MemberID] = base
	}
	if err := s.history.DeleteByMatch(ctx, exec, match.ID); err != nil {
		return err
	}
	for memberID, rating := range reverted {
		value := rating
		if err := s.members.UpdateRating(ctx, exec, memberID, &value); err != nil {
			return err
		}
		s.updateLeaderboard(ctx, memberID, rating)
	}
	return s.ApplyMatchIncremental(ctx, exec, match, reason)
}

// ApplyTournamentCompletion runs the four-pass computation over one
// tournament from the enrollment snapshots, upserts one TOURNAMENT_COMPLETED
// row per participant, and updates current ratings. Idempotent: replaying
// the same final values rewrites identical rows.
func (s *RatingService) ApplyTournamentCompletion(ctx context.Context, exec repositories.SQLExecutor, t *models.Tournament) error {
	finals, err := s.computeTournament(ctx, t)
	if err != nil {
		return err
	}
	recordedAt := time.Now()
	if t.RecordedAt != nil {
		recordedAt = *t.RecordedAt
	}
	if err := s.writeCompletionRows(ctx, exec, t, finals, recordedAt); err != nil {
		return err
	}
	for memberID, final := range finals {
		rating := final
		if err := s.members.UpdateRating(ctx, exec, memberID, &rating); err != nil {
			return err
		}
		s.updateLeaderboard(ctx, memberID, final)
	}
	s.cache.PutTournament(t.ID, t.CreatedAt, finals)
	return nil
}

func (s *RatingService) computeTournament(ctx context.Context, t *models.Tournament) (map[int]int, error) {
	participants, err := s.participants.ListByTournament(ctx, t.ID)
	if err != nil {
		return nil, err
	}
	matchRows, err := s.matches.ListByTournament(ctx, t.ID)
	if err != nil {
		return nil, err
	}
	table, err := s.Table(ctx)
	if err != nil {
		return nil, err
	}

	players := make([]ratings.PlayerInput, 0, len(participants))
	for _, p := range participants {
		players = append(players, ratings.PlayerInput{MemberID: p.MemberID, Rating: p.RatingAtTime})
	}
	inputs := make([]ratings.MatchInput, 0, len(matchRows))
	for _, m := range matchRows {
		in := ratings.MatchInput{
			MatchID:   m.ID,
			Member1ID: m.Member1ID,
			P1Sets:    m.P1Sets,
			P2Sets:    m.P2Sets,
			P1Forfeit: m.P1Forfeit,
			P2Forfeit: m.P2Forfeit,
		}
		if m.Member2ID != nil {
			in.Member2ID = *m.Member2ID
		}
		inputs = append(inputs, in)
	}
	return ratings.Compute(players, inputs, table), nil
}

func (s *RatingService) writeCompletionRows(ctx context.Context, exec repositories.SQLExecutor, t *models.Tournament, finals map[int]int, recordedAt time.Time) error {
	participants, err := s.participants.ListByTournament(ctx, t.ID)
	if err != nil {
		return err
	}
	for _, p := range participants {
		final, ok := finals[p.MemberID]
		if !ok {
			continue
		}
		prior := 0
		if p.RatingAtTime != nil {
			prior = *p.RatingAtTime
		}
		row := &models.RatingHistory{
			MemberID:     p.MemberID,
			Rating:       final,
			RatingChange: final - prior,
			Timestamp:    recordedAt,
			Reason:       models.ReasonTournamentCompleted,
			TournamentID: &t.ID,
		}
		if err := s.history.UpsertTournamentCompleted(ctx, exec, row); err != nil {
			s.logger.Error("tournament-completed history write failed",
				slog.Int("member_id", p.MemberID), slog.Int("tournament_id", t.ID), slog.Any("error", err))
		}
	}
	return nil
}

// InvalidateFrom drops post-rating cache entries for every tournament
// created at or after the given instant.
func (s *RatingService) InvalidateFrom(createdAt time.Time) {
	s.cache.InvalidateFrom(createdAt)
}

// PostRatings returns each participant's post-tournament rating for a
// completed tournament. Served from the cache; a miss triggers the
// chronological replay from this tournament forward, which refills it.
// Compound parents carry no ratings of their own and return nil.
func (s *RatingService) PostRatings(ctx context.Context, exec repositories.SQLExecutor, t *models.Tournament) (map[int]int, error) {
	if !t.IsCompleted() || t.Cancelled {
		return nil, nil
	}
	switch t.Kind {
	case models.KindPrelimWithFinalRR, models.KindPrelimWithFinalPlayoff:
		return nil, nil
	}
	if post, ok := s.cache.GetTournament(t.ID); ok {
		return post, nil
	}
	if err := s.ReplayFrom(ctx, exec, t.CreatedAt); err != nil {
		return nil, err
	}
	post, _ := s.cache.GetTournament(t.ID)
	return post, nil
}

// ReplayFrom re-runs every completed tournament created at or after the
// given instant, in creation order, maintaining a running per-member rating
// map. Four-pass tournaments rewrite their TOURNAMENT_COMPLETED rows;
// playoff tournaments replay their per-match exchanges into the running map
// without touching their already-written per-match rows. Compound parents
// carry no matches of their own and are skipped.
func (s *RatingService) ReplayFrom(ctx context.Context, exec repositories.SQLExecutor, from time.Time) error {
	s.cache.InvalidateFrom(from)

	completed, err := s.tournaments.ListCompletedFrom(ctx, from)
	if err != nil {
		return err
	}

	running := make(map[int]int)
	for _, t := range completed {
		switch t.Kind {
		case models.KindPrelimWithFinalRR, models.KindPrelimWithFinalPlayoff:
			continue
		case models.KindPlayoff:
			if err := s.replayPlayoff(ctx, t, running); err != nil {
				return err
			}
		default:
			finals, err := s.computeTournament(ctx, t)
			if err != nil {
				return err
			}
			recordedAt := t.CreatedAt
			if t.RecordedAt != nil {
				recordedAt = *t.RecordedAt
			}
			if err := s.writeCompletionRows(ctx, exec, t, finals, recordedAt); err != nil {
				return err
			}
			for memberID, final := range finals {
				running[memberID] = final
			}
			s.cache.PutTournament(t.ID, t.CreatedAt, finals)
		}
	}

	for memberID, rating := range running {
		value := rating
		if err := s.members.UpdateRating(ctx, exec, memberID, &value); err != nil {
			return err
		}
		s.updateLeaderboard(ctx, memberID, rating)
	}
	return nil
}

// replayPlayoff re-applies the per-match exchanges of one completed playoff
// in match order, reading from and writing to the running map.
func (s *RatingService) replayPlayoff(ctx context.Context, t *models.Tournament, running map[int]int) error {
	participants, err := s.participants.ListByTournament(ctx, t.ID)
	if err != nil {
		return err
	}
	matchRows, err := s.matches.ListByTournament(ctx, t.ID)
	if err != nil {
		return err
	}
	table, err := s.Table(ctx)
	if err != nil {
		return err
	}

	snapshot := make(map[int]int, len(participants))
	for _, p := range participants {
		if p.RatingAtTime != nil {
			snapshot[p.MemberID] = *p.RatingAtTime
		} else {
			snapshot[p.MemberID] = ratings.DefaultUnratedSeed
		}
	}
	lookup := func(memberID int) int {
		if r, ok := running[memberID]; ok {
			return r
		}
		return snapshot[memberID]
	}

	for _, m := range matchRows {
		if m.Member2ID == nil || !m.Played() || m.P1Forfeit || m.P2Forfeit {
			continue
		}
		winnerID, loserID, err := m.Winner()
		if err != nil {
			continue
		}
		winnerRating := lookup(winnerID)
		loserRating := lookup(loserID)
		points := ratings.Exchange(table, winnerRating, loserRating)
		running[winnerID] = winnerRating + points
		newLoser := loserRating - points
		if newLoser < 0 {
			newLoser = 0
		}
		running[loserID] = newLoser
	}

	post := make(map[int]int, len(participants))
	for _, p := range participants {
		post[p.MemberID] = lookup(p.MemberID)
	}
	s.cache.PutTournament(t.ID, t.CreatedAt, post)
	return nil
}

// ApplyAdjustment sets a member's rating by administrative fiat: one history
// row with the given reason, the denormalized rating, and the leaderboard.
func (s *RatingService) ApplyAdjustment(ctx context.Context, exec repositories.SQLExecutor, memberID, newRating int, reason models.RatingReason) error {
	member, err := s.members.GetByID(ctx, memberID)
	if err != nil {
		return err
	}
	prior := 0
	if member.Rating != nil {
		prior = *member.Rating
	}
	row := models.RatingHistory{
		MemberID:     memberID,
		Rating:       newRating,
		RatingChange: newRating - prior,
		Timestamp:    time.Now(),
		Reason:       reason,
	}
	if err := s.history.Insert(ctx, exec, &row); err != nil {
		return err
	}
	if err := s.members.UpdateRating(ctx, exec, memberID, &newRating); err != nil {
		return err
	}
	s.updateLeaderboard(ctx, memberID, newRating)
	return nil
}

// LeaderboardIDs returns member IDs ordered by rating, highest first, from
// the redis sorted set. Returns nil without error when redis is not wired.
func (s *RatingService) LeaderboardIDs(ctx context.Context, limit int) ([]int, error) {
	if s.redis == nil {
		return nil, nil
	}
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}
	raw, err := s.redis.ZRevRange(ctx, LeaderboardKey, 0, stop).Result()
	if err != nil {
		return nil, err
	}
	ids := make([]int, 0, len(raw))
	for _, v := range raw {
		id, convErr := strconv.Atoi(v)
		if convErr != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *RatingService) updateLeaderboard(ctx context.Context, memberID, rating int) {
	if s.redis == nil {
		return
	}
	err := s.redis.ZAdd(ctx, LeaderboardKey, redis.Z{
		Score:  float64(rating),
		Member: memberID,
	}).Err()
	if err != nil {
		s.logger.Warn("leaderboard update failed",
			slog.Int("member_id", memberID), slog.Any("error", err))
	}
}

// SetLeaderboardEntry records a member's rating on the redis sorted set.
func (s *RatingService) SetLeaderboardEntry(ctx context.Context, memberID, rating int) {
	s.updateLeaderboard(ctx, memberID, rating)
}

// RemoveFromLeaderboard drops a member from the redis sorted set.
func (s *RatingService) RemoveFromLeaderboard(ctx context.Context, memberID int) {
	if s.redis == nil {
		return
	}
	if err := s.redis.ZRem(ctx, LeaderboardKey, memberID).Err(); err != nil {
		s.logger.Warn("leaderboard removal failed",
			slog.Int("member_id", memberID), slog.Any("error", err))
	}
}

func currentOrSeed(m *models.Member) int {
	if m.Rating != nil {
		return *m.Rating
	}
	return ratings.DefaultUnratedSeed
}
