package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/tt-club/tournament-system/models"
)

var ErrRatingHistoryNotFound = errors.New("rating history entry not found")

type RatingHistoryRepository interface {
	Insert(ctx context.Context, exec SQLExecutor, h *models.RatingHistory) error
	// HasTournamentCompleted reports whether the unique
	// (member, tournament, TOURNAMENT_COMPLETED, match IS NULL) row exists.
	HasTournamentCompleted(ctx context.Context, memberID, tournamentID int) (bool, error)
	// HasMatchEntries reports whether any history rows reference the match.
	HasMatchEntries(ctx context.Context, matchID int) (bool, error)
	// UpsertTournamentCompleted inserts the per-tournament summary row, or
	// rewrites it in place during a chronological replay after a retroactive
	// edit. This is the single sanctioned exception to append-only.
	UpsertTournamentCompleted(ctx context.Context, exec SQLExecutor, h *models.RatingHistory) error
	ListByMember(ctx context.Context, memberID int) ([]*models.RatingHistory, error)
	ListByTournament(ctx context.Context, tournamentID int) ([]*models.RatingHistory, error)
	ListByMatch(ctx context.Context, matchID int) ([]*models.RatingHistory, error)
	// DeleteByMatch removes a match's exchange rows so a corrected result
	// can rewrite them. The second sanctioned exception to append-only.
	DeleteByMatch(ctx context.Context, exec SQLExecutor, matchID int) error
}

type postgresRatingHistoryRepository struct {
	db *sql.DB
}

func NewPostgresRatingHistoryRepository(db *sql.DB) RatingHistoryRepository {
	return &postgresRatingHistoryRepository{db: db}
}

const ratingHistoryColumns = `id, member_id, rating, rating_change, ts, reason, tournament_id, match_id`

func scanRatingHistory(row interface{ Scan(...interface{}) error }) (*models.RatingHistory, error) {
	h := &models.RatingHistory{}
	var tournamentID, matchID sql.NullInt64
	err := row.Scan(&h.ID, &h.MemberID, &h.Rating, &h.RatingChange, &h.Timestamp, &h.Reason, &tournamentID, &matchID)
	if err != nil {
		return nil, err
	}
	if tournamentID.Valid {
		v := int(tournamentID.Int64)
		h.TournamentID = &v
	}
	if matchID.Valid {
		v := int(matchID.Int64)
		h.MatchID = &v
	}
	return h, nil
}

func (r *postgresRatingHistoryRepository) Insert(ctx context.Context, exec SQLExecutor, h *models.RatingHistory) error {
	query := `
		INSERT INTO rating_history (member_id, rating, rating_change, ts, reason, tournament_id, match_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`

	err := exec.QueryRowContext(ctx, query,
		h.MemberID,
		h.Rating,
		h.RatingChange,
		h.Timestamp,
		h.Reason,
		h.TournamentID,
		h.MatchID,
	).Scan(&h.ID)
	if err != nil {
		return fmt.Errorf("failed to insert rating history for member %d: %w", h.MemberID, err)
	}
	return nil
}

func (r *postgresRatingHistoryRepository) HasTournamentCompleted(ctx context.Context, memberID, tournamentID int) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM rating_history
			WHERE member_id = $1 AND tournament_id = $2
			  AND reason = 'TOURNAMENT_COMPLETED' AND match_id IS NULL
		)`
	var exists bool
	if err := r.db.QueryRowContext(ctx, query, memberID, tournamentID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check tournament-completed history: %w", err)
	}
	return exists, nil
}

func (r *postgresRatingHistoryRepository) HasMatchEntries(ctx context.Context, matchID int) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM rating_history WHERE match_id = $1)`
	var exists bool
	if err := r.db.QueryRowContext(ctx, query, matchID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check per-match history: %w", err)
	}
	return exists, nil
}

func (r *postgresRatingHistoryRepository) UpsertTournamentCompleted(ctx context.Context, exec SQLExecutor, h *models.RatingHistory) error {
	query := `
		UPDATE rating_history SET rating = $1, rating_change = $2, ts = $3
		WHERE member_id = $4 AND tournament_id = $5
		  AND reason = 'TOURNAMENT_COMPLETED' AND match_id IS NULL`
	result, err := exec.ExecContext(ctx, query, h.Rating, h.RatingChange, h.Timestamp, h.MemberID, h.TournamentID)
	if err != nil {
		return fmt.Errorf("failed to rewrite tournament-completed history: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check affected rows: %w", err)
	}
	if affected == 0 {
		return r.Insert(ctx, exec, h)
	}
	return nil
}

func (r *postgresRatingHistoryRepository) ListByMember(ctx context.Context, memberID int) ([]*models.RatingHistory, error) {
	// Join against the linked match so the per-match progression is ordered by
	// the match's created_at, not the history timestamp.
	query := `
		SELECT h.id, h.member_id, h.rating, h.rating_change, h.ts, h.reason, h.tournament_id, h.match_id
		FROM rating_history h
		LEFT JOIN matches m ON m.id = h.match_id
		WHERE h.member_id = $1
		ORDER BY COALESCE(m.created_at, h.ts) ASC, h.id ASC`
	return r.queryHistory(ctx, query, memberID)
}

func (r *postgresRatingHistoryRepository) ListByTournament(ctx context.Context, tournamentID int) ([]*models.RatingHistory, error) {
	query := `
		SELECT h.id, h.member_id, h.rating, h.rating_change, h.ts, h.reason, h.tournament_id, h.match_id
		FROM rating_history h
		LEFT JOIN matches m ON m.id = h.match_id
		WHERE h.tournament_id = $1
		ORDER BY COALESCE(m.created_at, h.ts) ASC, h.id ASC`
	return r.queryHistory(ctx, query, tournamentID)
}

func (r *postgresRatingHistoryRepository) ListByMatch(ctx context.Context, matchID int) ([]*models.RatingHistory, error) {
	query := `
		SELECT ` + ratingHistoryColumns + `
		FROM rating_history
		WHERE match_id = $1
		ORDER BY id ASC`
	return r.queryHistory(ctx, query, matchID)
}

func (r *postgresRatingHistoryRepository) DeleteByMatch(ctx context.Context, exec SQLExecutor, matchID int) error {
	if _, err := exec.ExecContext(ctx, `DELETE FROM rating_history WHERE match_id = $1`, matchID); err != nil {
		return fmt.Errorf("failed to delete per-match history for match %d: %w", matchID, err)
	}
	return nil
}

func (r *postgresRatingHistoryRepository) queryHistory(ctx context.Context, query string, args ...interface{}) ([]*models.RatingHistory, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query rating history: %w", err)
	}
	defer rows.Close()

	entries := make([]*models.RatingHistory, 0)
	for rows.Next() {
		h, scanErr := scanRatingHistory(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan rating history row: %w", scanErr)
		}
		entries = append(entries, h)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rating history rows iteration: %w", err)
	}
	return entries, nil
}
