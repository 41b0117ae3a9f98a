package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/tt-club/tournament-system/models"
)

var ErrParticipantNotFound = errors.New("participant not found")

type ParticipantRepository interface {
	CreateBatch(ctx context.Context, exec SQLExecutor, participants []models.Participant) error
	ListByTournament(ctx context.Context, tournamentID int) ([]*models.Participant, error)
	Get(ctx context.Context, tournamentID, memberID int) (*models.Participant, error)
	DeleteByTournament(ctx context.Context, exec SQLExecutor, tournamentID int) error
}

type postgresParticipantRepository struct {
	db *sql.DB
}

func NewPostgresParticipantRepository(db *sql.DB) ParticipantRepository {
	return &postgresParticipantRepository{db: db}
}

func (r *postgresParticipantRepository) CreateBatch(ctx context.Context, exec SQLExecutor, participants []models.Participant) error {
	query := `
		INSERT INTO tournament_participants (tournament_id, member_id, rating_at_time, auto_qualified)
		VALUES ($1, $2, $3, $4)`
	for i := range participants {
		p := &participants[i]
		if _, err := exec.ExecContext(ctx, query, p.TournamentID, p.MemberID, p.RatingAtTime, p.AutoQualified); err != nil {
			return fmt.Errorf("failed to insert participant (tournament %d, member %d): %w", p.TournamentID, p.MemberID, err)
		}
	}
	return nil
}

func (r *postgresParticipantRepository) ListByTournament(ctx context.Context, tournamentID int) ([]*models.Participant, error) {
	query := `
		SELECT p.tournament_id, p.member_id, p.rating_at_time, p.auto_qualified,
		       m.id, m.first_name, m.last_name, m.email, m.rating, m.active, m.role, m.created_at
		FROM tournament_participants p
		JOIN members m ON m.id = p.member_id
		WHERE p.tournament_id = $1
		ORDER BY p.rating_at_time DESC NULLS LAST, p.member_id ASC`

	rows, err := r.db.QueryContext(ctx, query, tournamentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query participants for tournament %d: %w", tournamentID, err)
	}
	defer rows.Close()

	participants := make([]*models.Participant, 0)
	for rows.Next() {
		p := &models.Participant{Member: &models.Member{}}
		var ratingAtTime, memberRating sql.NullInt64
		if scanErr := rows.Scan(
			&p.TournamentID,
			&p.MemberID,
			&ratingAtTime,
			&p.AutoQualified,
			&p.Member.ID,
			&p.Member.FirstName,
			&p.Member.LastName,
			&p.Member.Email,
			&memberRating,
			&p.Member.Active,
			&p.Member.Role,
			&p.Member.CreatedAt,
		); scanErr != nil {
			return nil, fmt.Errorf("failed to scan participant row: %w", scanErr)
		}
		if ratingAtTime.Valid {
			v := int(ratingAtTime.Int64)
			p.RatingAtTime = &v
		}
		if memberRating.Valid {
			v := int(memberRating.Int64)
			p.Member.Rating = &v
		}
		participants = append(participants, p)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during participant rows iteration: %w", err)
	}
	return participants, nil
}

func (r *postgresParticipantRepository) Get(ctx context.Context, tournamentID, memberID int) (*models.Participant, error) {
	query := `
		SELECT tournament_id, member_id, rating_at_time, auto_qualified
		FROM tournament_participants
		WHERE tournament_id = $1 AND member_id = $2`

	p := &models.Participant{}
	var ratingAtTime sql.NullInt64
	err := r.db.QueryRowContext(ctx, query, tournamentID, memberID).Scan(&p.TournamentID, &p.MemberID, &ratingAtTime, &p.AutoQualified)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrParticipantNotFound
		}
		return nil, fmt.Errorf("failed to scan participant: %w", err)
	}
	if ratingAtTime.Valid {
		v := int(ratingAtTime.Int64)
		p.RatingAtTime = &v
	}
	return p, nil
}

func (r *postgresParticipantRepository) DeleteByTournament(ctx context.Context, exec SQLExecutor, tournamentID int) error {
	_, err := exec.ExecContext(ctx, `DELETE FROM tournament_participants WHERE tournament_id = $1`, tournamentID)
	if err != nil {
		return fmt.Errorf("failed to delete participants for tournament %d: %w", tournamentID, err)
	}
	return nil
}
