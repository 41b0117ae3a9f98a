package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/tt-club/tournament-system/models"
)

var ErrMatchNotFound = errors.New("match not found")

type MatchRepository interface {
	Create(ctx context.Context, exec SQLExecutor, match *models.Match) error
	GetByID(ctx context.Context, id int) (*models.Match, error)
	// ListByTournament returns the tournament's matches ordered by created_at
	// then id, the order rating recomputation relies on.
	ListByTournament(ctx context.Context, tournamentID int) ([]*models.Match, error)
	UpdateResult(ctx context.Context, exec SQLExecutor, match *models.Match) error
	CountByTournament(ctx context.Context, tournamentID int) (int, error)
	CountByMember(ctx context.Context, memberID int) (int, error)
}

type postgresMatchRepository struct {
	db *sql.DB
}

func NewPostgresMatchRepository(db *sql.DB) MatchRepository {
	return &postgresMatchRepository{db: db}
}

const matchColumns = `id, tournament_id, member1_id, member2_id, p1_sets, p2_sets, p1_forfeit, p2_forfeit, bracket_match_id, round, created_at`

func scanMatch(row interface{ Scan(...interface{}) error }) (*models.Match, error) {
	m := &models.Match{}
	var tournamentID, member2ID, bracketMatchID, round sql.NullInt64
	err := row.Scan(&m.ID, &tournamentID, &m.Member1ID, &member2ID, &m.P1Sets, &m.P2Sets,
		&m.P1Forfeit, &m.P2Forfeit, &bracketMatchID, &round, &m.CreatedAt)
	if err != nil {
		return nil, err
	}
	if tournamentID.Valid {
		v := int(tournamentID.Int64)
		m.TournamentID = &v
	}
	if member2ID.Valid {
		v := int(member2ID.Int64)
		m.Member2ID = &v
	}
	if bracketMatchID.Valid {
		v := int(bracketMatchID.Int64)
		m.BracketMatchID = &v
	}
	if round.Valid {
		v := int(round.Int64)
		m.Round = &v
	}
	return m, nil
}

func (r *postgresMatchRepository) Create(ctx context.Context, exec SQLExecutor, match *models.Match) error {
	query := `
		INSERT INTO matches
			(tournament_id, member1_id, member2_id, p1_sets, p2_sets, p1_forfeit, p2_forfeit, bracket_match_id, round)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at`

	err := exec.QueryRowContext(ctx, query,
		match.TournamentID,
		match.Member1ID,
		match.Member2ID,
		match.P1Sets,
		match.P2Sets,
		match.P1Forfeit,
		match.P2Forfeit,
		match.BracketMatchID,
		match.Round,
	).Scan(&match.ID, &match.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert match: %w", err)
	}
	return nil
}

func (r *postgresMatchRepository) GetByID(ctx context.Context, id int) (*models.Match, error) {
	query := `SELECT ` + matchColumns + ` FROM matches WHERE id = $1`
	m, err := scanMatch(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMatchNotFound
		}
		return nil, fmt.Errorf("failed to scan match by id %d: %w", id, err)
	}
	return m, nil
}

func (r *postgresMatchRepository) ListByTournament(ctx context.Context, tournamentID int) ([]*models.Match, error) {
	query := `SELECT ` + matchColumns + ` FROM matches
		WHERE tournament_id = $1 ORDER BY created_at ASC, id ASC`

	rows, err := r.db.QueryContext(ctx, query, tournamentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query matches for tournament %d: %w", tournamentID, err)
	}
	defer rows.Close()

	matches := make([]*models.Match, 0)
	for rows.Next() {
		m, scanErr := scanMatch(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan match row: %w", scanErr)
		}
		matches = append(matches, m)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during match rows iteration: %w", err)
	}
	return matches, nil
}

func (r *postgresMatchRepository) UpdateResult(ctx context.Context, exec SQLExecutor, match *models.Match) error {
	query := `
		UPDATE matches
		SET member1_id = $1, member2_id = $2, p1_sets = $3, p2_sets = $4, p1_forfeit = $5, p2_forfeit = $6
		WHERE id = $7`
	result, err := exec.ExecContext(ctx, query,
		match.Member1ID,
		match.Member2ID,
		match.P1Sets,
		match.P2Sets,
		match.P1Forfeit,
		match.P2Forfeit,
		match.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update match %d: %w", match.ID, err)
	}
	return checkAffectedRows(result, ErrMatchNotFound)
}

func (r *postgresMatchRepository) CountByTournament(ctx context.Context, tournamentID int) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM matches WHERE tournament_id = $1`, tournamentID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count matches for tournament %d: %w", tournamentID, err)
	}
	return count, nil
}

func (r *postgresMatchRepository) CountByMember(ctx context.Context, memberID int) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM matches WHERE member1_id = $1 OR member2_id = $1`, memberID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count matches for member %d: %w", memberID, err)
	}
	return count, nil
}
