package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/tt-club/tournament-system/models"
)

var (
	ErrTournamentNotFound = errors.New("tournament not found")
	// ErrAlreadyCompleted makes the ACTIVE -> COMPLETED transition observable
	// as at-most-once: a second MarkCompleted returns it instead of updating.
	ErrAlreadyCompleted = errors.New("tournament is not active")
)

type TournamentRepository interface {
	Create(ctx context.Context, exec SQLExecutor, t *models.Tournament) error
	GetByID(ctx context.Context, id int) (*models.Tournament, error)
	List(ctx context.Context, topLevelOnly bool) ([]*models.Tournament, error)
	ListChildren(ctx context.Context, parentID int) ([]*models.Tournament, error)
	// ListCompletedFrom returns completed tournaments with created_at >= from,
	// ordered by created_at then id. A zero from returns all of them.
	ListCompletedFrom(ctx context.Context, from time.Time) ([]*models.Tournament, error)
	MarkCompleted(ctx context.Context, exec SQLExecutor, id int, recordedAt time.Time) error
	UpdateName(ctx context.Context, id int, name string) error
	SetCancelled(ctx context.Context, id int) error
	Delete(ctx context.Context, id int) error
}

type postgresTournamentRepository struct {
	db *sql.DB
}

func NewPostgresTournamentRepository(db *sql.DB) TournamentRepository {
	return &postgresTournamentRepository{db: db}
}

const tournamentColumns = `id, name, kind, status, cancelled, parent_id, group_number, final_size, seed_count, created_at, recorded_at`

func scanTournament(row interface{ Scan(...interface{}) error }) (*models.Tournament, error) {
	t := &models.Tournament{}
	var parentID, groupNumber, finalSize, seedCount sql.NullInt64
	var recordedAt sql.NullTime
	err := row.Scan(&t.ID, &t.Name, &t.Kind, &t.Status, &t.Cancelled, &parentID, &groupNumber, &finalSize, &seedCount, &t.CreatedAt, &recordedAt)
	if err != nil {
		return nil, err
	}
	if parentID.Valid {
		v := int(parentID.Int64)
		t.ParentID = &v
	}
	if groupNumber.Valid {
		v := int(groupNumber.Int64)
		t.GroupNumber = &v
	}
	if finalSize.Valid {
		v := int(finalSize.Int64)
		t.FinalSize = &v
	}
	if seedCount.Valid {
		v := int(seedCount.Int64)
		t.SeedCount = &v
	}
	if recordedAt.Valid {
		v := recordedAt.Time
		t.RecordedAt = &v
	}
	return t, nil
}

func (r *postgresTournamentRepository) Create(ctx context.Context, exec SQLExecutor, t *models.Tournament) error {
	query := `
		INSERT INTO tournaments (name, kind, status, cancelled, parent_id, group_number, final_size, seed_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at`

	err := exec.QueryRowContext(ctx, query,
		t.Name,
		t.Kind,
		t.Status,
		t.Cancelled,
		t.ParentID,
		t.GroupNumber,
		t.FinalSize,
		t.SeedCount,
	).Scan(&t.ID, &t.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert tournament: %w", err)
	}
	return nil
}

func (r *postgresTournamentRepository) GetByID(ctx context.Context, id int) (*models.Tournament, error) {
	query := `SELECT ` + tournamentColumns + ` FROM tournaments WHERE id = $1`
	t, err := scanTournament(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTournamentNotFound
		}
		return nil, fmt.Errorf("failed to scan tournament by id %d: %w", id, err)
	}
	return t, nil
}

func (r *postgresTournamentRepository) List(ctx context.Context, topLevelOnly bool) ([]*models.Tournament, error) {
	query := `SELECT ` + tournamentColumns + ` FROM tournaments`
	if topLevelOnly {
		query += ` WHERE parent_id IS NULL`
	}
	query += ` ORDER BY created_at DESC, id DESC`
	return r.queryTournaments(ctx, query)
}

func (r *postgresTournamentRepository) ListChildren(ctx context.Context, parentID int) ([]*models.Tournament, error) {
	query := `SELECT ` + tournamentColumns + ` FROM tournaments
		WHERE parent_id = $1 ORDER BY group_number NULLS LAST, id ASC`
	return r.queryTournaments(ctx, query, parentID)
}

func (r *postgresTournamentRepository) ListCompletedFrom(ctx context.Context, from time.Time) ([]*models.Tournament, error) {
	query := `SELECT ` + tournamentColumns + ` FROM tournaments
		WHERE status = 'COMPLETED' AND NOT cancelled AND created_at >= $1
		ORDER BY created_at ASC, id ASC`
	return r.queryTournaments(ctx, query, from)
}

func (r *postgresTournamentRepository) queryTournaments(ctx context.Context, query string, args ...interface{}) ([]*models.Tournament, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tournaments: %w", err)
	}
	defer rows.Close()

	tournaments := make([]*models.Tournament, 0)
	for rows.Next() {
		t, scanErr := scanTournament(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan tournament row: %w", scanErr)
		}
		tournaments = append(tournaments, t)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during tournament rows iteration: %w", err)
	}
	return tournaments, nil
}

// MarkCompleted transitions ACTIVE -> COMPLETED and stamps recorded_at. The
// WHERE clause makes the transition happen at most once.
func (r *postgresTournamentRepository) MarkCompleted(ctx context.Context, exec SQLExecutor, id int, recordedAt time.Time) error {
	query := `
		UPDATE tournaments SET status = 'COMPLETED', recorded_at = $1
		WHERE id = $2 AND status = 'ACTIVE'`
	result, err := exec.ExecContext(ctx, query, recordedAt, id)
	if err != nil {
		return fmt.Errorf("failed to mark tournament %d completed: %w", id, err)
	}
	return checkAffectedRows(result, ErrAlreadyCompleted)
}

func (r *postgresTournamentRepository) UpdateName(ctx context.Context, id int, name string) error {
	result, err := r.db.ExecContext(ctx, `UPDATE tournaments SET name = $1 WHERE id = $2`, name, id)
	if err != nil {
		return fmt.Errorf("failed to rename tournament %d: %w", id, err)
	}
	return checkAffectedRows(result, ErrTournamentNotFound)
}

func (r *postgresTournamentRepository) SetCancelled(ctx context.Context, id int) error {
	result, err := r.db.ExecContext(ctx, `UPDATE tournaments SET cancelled = TRUE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to cancel tournament %d: %w", id, err)
	}
	return checkAffectedRows(result, ErrTournamentNotFound)
}

func (r *postgresTournamentRepository) Delete(ctx context.Context, id int) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM tournaments WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return checkAffectedRows(result, ErrTournamentNotFound)
}
