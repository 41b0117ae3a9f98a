package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/tt-club/tournament-system/models"
)

type PointExchangeRepository interface {
	// ListEffective returns the rule set whose effective_from is the latest
	// one not after the given instant, sorted by min_diff. Empty when no
	// rules are configured.
	ListEffective(ctx context.Context, at time.Time) ([]models.PointExchangeRule, error)
}

type postgresPointExchangeRepository struct {
	db *sql.DB
}

func NewPostgresPointExchangeRepository(db *sql.DB) PointExchangeRepository {
	return &postgresPointExchangeRepository{db: db}
}

func (r *postgresPointExchangeRepository) ListEffective(ctx context.Context, at time.Time) ([]models.PointExchangeRule, error) {
	query := `
		SELECT id, min_diff, max_diff, expected_points, upset_points, effective_from
		FROM point_exchange_rules
		WHERE effective_from = (
			SELECT MAX(effective_from) FROM point_exchange_rules WHERE effective_from <= $1
		)
		ORDER BY min_diff ASC`

	rows, err := r.db.QueryContext(ctx, query, at)
	if err != nil {
		return nil, fmt.Errorf("failed to query point exchange rules: %w", err)
	}
	defer rows.Close()

	rules := make([]models.PointExchangeRule, 0)
	for rows.Next() {
		var rule models.PointExchangeRule
		if scanErr := rows.Scan(&rule.ID, &rule.MinDiff, &rule.MaxDiff, &rule.ExpectedPoints, &rule.UpsetPoints, &rule.EffectiveFrom); scanErr != nil {
			return nil, fmt.Errorf("failed to scan point exchange rule: %w", scanErr)
		}
		rules = append(rules, rule)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during point exchange rows iteration: %w", err)
	}
	return rules, nil
}
