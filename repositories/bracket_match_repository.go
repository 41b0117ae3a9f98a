package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/tt-club/tournament-system/models"
)

var ErrBracketMatchNotFound = errors.New("bracket match not found")

type BracketMatchRepository interface {
	Create(ctx context.Context, exec SQLExecutor, bm *models.BracketMatch) error
	GetByID(ctx context.Context, id int) (*models.BracketMatch, error)
	ListByTournament(ctx context.Context, tournamentID int) ([]*models.BracketMatch, error)
	UpdateSlots(ctx context.Context, exec SQLExecutor, id, member1ID, member2ID int) error
	SetNextMatchID(ctx context.Context, exec SQLExecutor, id int, nextMatchID *int) error
	SetMatchID(ctx context.Context, exec SQLExecutor, id int, matchID *int) error
	DeleteByTournament(ctx context.Context, exec SQLExecutor, tournamentID int) error
}

type postgresBracketMatchRepository struct {
	db *sql.DB
}

func NewPostgresBracketMatchRepository(db *sql.DB) BracketMatchRepository {
	return &postgresBracketMatchRepository{db: db}
}

const bracketMatchColumns = `id, tournament_id, round, position, member1_id, member2_id, match_id, next_match_id`

func scanBracketMatch(row interface{ Scan(...interface{}) error }) (*models.BracketMatch, error) {
	bm := &models.BracketMatch{}
	var member1, member2, matchID, nextMatchID sql.NullInt64
	err := row.Scan(&bm.ID, &bm.TournamentID, &bm.Round, &bm.Position, &member1, &member2, &matchID, &nextMatchID)
	if err != nil {
		return nil, err
	}
	// NULL and 0 both encode a BYE/empty slot; normalize to 0 in memory.
	if member1.Valid {
		bm.Member1ID = int(member1.Int64)
	}
	if member2.Valid {
		bm.Member2ID = int(member2.Int64)
	}
	if matchID.Valid {
		v := int(matchID.Int64)
		bm.MatchID = &v
	}
	if nextMatchID.Valid {
		v := int(nextMatchID.Int64)
		bm.NextMatchID = &v
	}
	return bm, nil
}

func (r *postgresBracketMatchRepository) Create(ctx context.Context, exec SQLExecutor, bm *models.BracketMatch) error {
	query := `
		INSERT INTO bracket_matches (tournament_id, round, position, member1_id, member2_id, match_id, next_match_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`

	err := exec.QueryRowContext(ctx, query,
		bm.TournamentID,
		bm.Round,
		bm.Position,
		bm.Member1ID,
		bm.Member2ID,
		bm.MatchID,
		bm.NextMatchID,
	).Scan(&bm.ID)
	if err != nil {
		return fmt.Errorf("failed to insert bracket match (round %d, position %d): %w", bm.Round, bm.Position, err)
	}
	return nil
}

func (r *postgresBracketMatchRepository) GetByID(ctx context.Context, id int) (*models.BracketMatch, error) {
	query := `SELECT ` + bracketMatchColumns + ` FROM bracket_matches WHERE id = $1`
	bm, err := scanBracketMatch(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrBracketMatchNotFound
		}
		return nil, fmt.Errorf("failed to scan bracket match by id %d: %w", id, err)
	}
	return bm, nil
}

func (r *postgresBracketMatchRepository) ListByTournament(ctx context.Context, tournamentID int) ([]*models.BracketMatch, error) {
	query := `SELECT ` + bracketMatchColumns + ` FROM bracket_matches
		WHERE tournament_id = $1 ORDER BY round DESC, position ASC`

	rows, err := r.db.QueryContext(ctx, query, tournamentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query bracket matches for tournament %d: %w", tournamentID, err)
	}
	defer rows.Close()

	bracketMatches := make([]*models.BracketMatch, 0)
	for rows.Next() {
		bm, scanErr := scanBracketMatch(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan bracket match row: %w", scanErr)
		}
		bracketMatches = append(bracketMatches, bm)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during bracket match rows iteration: %w", err)
	}
	return bracketMatches, nil
}

func (r *postgresBracketMatchRepository) UpdateSlots(ctx context.Context, exec SQLExecutor, id, member1ID, member2ID int) error {
	query := `UPDATE bracket_matches SET member1_id = $1, member2_id = $2 WHERE id = $3`
	result, err := exec.ExecContext(ctx, query, member1ID, member2ID, id)
	if err != nil {
		return fmt.Errorf("failed to update slots for bracket match %d: %w", id, err)
	}
	return checkAffectedRows(result, ErrBracketMatchNotFound)
}

func (r *postgresBracketMatchRepository) SetNextMatchID(ctx context.Context, exec SQLExecutor, id int, nextMatchID *int) error {
	result, err := exec.ExecContext(ctx, `UPDATE bracket_matches SET next_match_id = $1 WHERE id = $2`, nextMatchID, id)
	if err != nil {
		return fmt.Errorf("failed to link bracket match %d: %w", id, err)
	}
	return checkAffectedRows(result, ErrBracketMatchNotFound)
}

func (r *postgresBracketMatchRepository) SetMatchID(ctx context.Context, exec SQLExecutor, id int, matchID *int) error {
	result, err := exec.ExecContext(ctx, `UPDATE bracket_matches SET match_id = $1 WHERE id = $2`, matchID, id)
	if err != nil {
		return fmt.Errorf("failed to set match for bracket match %d: %w", id, err)
	}
	return checkAffectedRows(result, ErrBracketMatchNotFound)
}

func (r *postgresBracketMatchRepository) DeleteByTournament(ctx context.Context, exec SQLExecutor, tournamentID int) error {
	_, err := exec.ExecContext(ctx, `DELETE FROM bracket_matches WHERE tournament_id = $1`, tournamentID)
	if err != nil {
		return fmt.Errorf("failed to delete bracket matches for tournament %d: %w", tournamentID, err)
	}
	return nil
}
