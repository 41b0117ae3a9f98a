package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/tt-club/tournament-system/models"
)

type StandingRepository interface {
	// ReplaceForTournament swaps the tournament's standings atomically within
	// the caller's transaction.
	ReplaceForTournament(ctx context.Context, exec SQLExecutor, tournamentID int, standings []models.Standing) error
	ListByTournament(ctx context.Context, tournamentID int) ([]models.Standing, error)
}

type postgresStandingRepository struct {
	db *sql.DB
}

func NewPostgresStandingRepository(db *sql.DB) StandingRepository {
	return &postgresStandingRepository{db: db}
}

func (r *postgresStandingRepository) ReplaceForTournament(ctx context.Context, exec SQLExecutor, tournamentID int, standings []models.Standing) error {
	if _, err := exec.ExecContext(ctx, `DELETE FROM tournament_standings WHERE tournament_id = $1`, tournamentID); err != nil {
		return fmt.Errorf("failed to clear standings for tournament %d: %w", tournamentID, err)
	}
	query := `
		INSERT INTO tournament_standings (tournament_id, member_id, rank, wins, losses, sets_won, sets_lost)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	for _, s := range standings {
		if _, err := exec.ExecContext(ctx, query, tournamentID, s.MemberID, s.Rank, s.Wins, s.Losses, s.SetsWon, s.SetsLost); err != nil {
			return fmt.Errorf("failed to insert standing for member %d: %w", s.MemberID, err)
		}
	}
	return nil
}

func (r *postgresStandingRepository) ListByTournament(ctx context.Context, tournamentID int) ([]models.Standing, error) {
	query := `
		SELECT tournament_id, member_id, rank, wins, losses, sets_won, sets_lost
		FROM tournament_standings
		WHERE tournament_id = $1
		ORDER BY rank ASC`

	rows, err := r.db.QueryContext(ctx, query, tournamentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query standings for tournament %d: %w", tournamentID, err)
	}
	defer rows.Close()

	standings := make([]models.Standing, 0)
	for rows.Next() {
		var s models.Standing
		if scanErr := rows.Scan(&s.TournamentID, &s.MemberID, &s.Rank, &s.Wins, &s.Losses, &s.SetsWon, &s.SetsLost); scanErr != nil {
			return nil, fmt.Errorf("failed to scan standing row: %w", scanErr)
		}
		standings = append(standings, s)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during standing rows iteration: %w", err)
	}
	return standings, nil
}
