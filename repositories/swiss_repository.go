package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/tt-club/tournament-system/models"
)

var ErrSwissDataNotFound = errors.New("swiss data not found")

type SwissRepository interface {
	Create(ctx context.Context, exec SQLExecutor, sd *models.SwissData) error
	Get(ctx context.Context, tournamentID int) (*models.SwissData, error)
	Update(ctx context.Context, exec SQLExecutor, sd *models.SwissData) error
}

type postgresSwissRepository struct {
	db *sql.DB
}

func NewPostgresSwissRepository(db *sql.DB) SwissRepository {
	return &postgresSwissRepository{db: db}
}

func (r *postgresSwissRepository) Create(ctx context.Context, exec SQLExecutor, sd *models.SwissData) error {
	query := `
		INSERT INTO swiss_data (tournament_id, rounds, current_round, complete)
		VALUES ($1, $2, $3, $4)`
	_, err := exec.ExecContext(ctx, query, sd.TournamentID, sd.Rounds, sd.CurrentRound, sd.Complete)
	if err != nil {
		return fmt.Errorf("failed to insert swiss data for tournament %d: %w", sd.TournamentID, err)
	}
	return nil
}

func (r *postgresSwissRepository) Get(ctx context.Context, tournamentID int) (*models.SwissData, error) {
	query := `SELECT tournament_id, rounds, current_round, complete FROM swiss_data WHERE tournament_id = $1`
	sd := &models.SwissData{}
	err := r.db.QueryRowContext(ctx, query, tournamentID).Scan(&sd.TournamentID, &sd.Rounds, &sd.CurrentRound, &sd.Complete)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSwissDataNotFound
		}
		return nil, fmt.Errorf("failed to scan swiss data for tournament %d: %w", tournamentID, err)
	}
	return sd, nil
}

func (r *postgresSwissRepository) Update(ctx context.Context, exec SQLExecutor, sd *models.SwissData) error {
	query := `UPDATE swiss_data SET rounds = $1, current_round = $2, complete = $3 WHERE tournament_id = $4`
	result, err := exec.ExecContext(ctx, query, sd.Rounds, sd.CurrentRound, sd.Complete, sd.TournamentID)
	if err != nil {
		return fmt.Errorf("failed to update swiss data for tournament %d: %w", sd.TournamentID, err)
	}
	return checkAffectedRows(result, ErrSwissDataNotFound)
}
