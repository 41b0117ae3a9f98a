package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/tt-club/tournament-system/models"
)

var (
	ErrMemberNotFound      = errors.New("member not found")
	ErrMemberEmailConflict = errors.New("member email already in use")
)

type MemberRepository interface {
	Create(ctx context.Context, member *models.Member) error
	GetByID(ctx context.Context, id int) (*models.Member, error)
	GetByEmail(ctx context.Context, email string) (*models.Member, error)
	List(ctx context.Context, activeOnly bool) ([]*models.Member, error)
	UpdateRating(ctx context.Context, exec SQLExecutor, id int, rating *int) error
	SetActive(ctx context.Context, id int, active bool) error
	Delete(ctx context.Context, id int) error
}

type postgresMemberRepository struct {
	db *sql.DB
}

func NewPostgresMemberRepository(db *sql.DB) MemberRepository {
	return &postgresMemberRepository{db: db}
}

const memberColumns = `id, first_name, last_name, email, rating, active, role, password_hash, created_at`

func scanMember(row interface{ Scan(...interface{}) error }) (*models.Member, error) {
	m := &models.Member{}
	var rating sql.NullInt64
	err := row.Scan(&m.ID, &m.FirstName, &m.LastName, &m.Email, &rating, &m.Active, &m.Role, &m.PasswordHash, &m.CreatedAt)
	if err != nil {
		return nil, err
	}
	if rating.Valid {
		r := int(rating.Int64)
		m.Rating = &r
	}
	return m, nil
}

func (r *postgresMemberRepository) Create(ctx context.Context, member *models.Member) error {
	query := `
		INSERT INTO members (first_name, last_name, email, rating, active, role, password_hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at`

	err := r.db.QueryRowContext(ctx, query,
		member.FirstName,
		member.LastName,
		member.Email,
		member.Rating,
		member.Active,
		member.Role,
		member.PasswordHash,
	).Scan(&member.ID, &member.CreatedAt)

	if pqErr, ok := err.(*pq.Error); ok && pqErr.Constraint == "members_email_key" {
		return ErrMemberEmailConflict
	}
	return err
}

func (r *postgresMemberRepository) GetByID(ctx context.Context, id int) (*models.Member, error) {
	query := `SELECT ` + memberColumns + ` FROM members WHERE id = $1`
	m, err := scanMember(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMemberNotFound
		}
		return nil, fmt.Errorf("failed to scan member by id %d: %w", id, err)
	}
	return m, nil
}

func (r *postgresMemberRepository) GetByEmail(ctx context.Context, email string) (*models.Member, error) {
	query := `SELECT ` + memberColumns + ` FROM members WHERE email = $1`
	m, err := scanMember(r.db.QueryRowContext(ctx, query, email))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMemberNotFound
		}
		return nil, fmt.Errorf("failed to scan member by email: %w", err)
	}
	return m, nil
}

func (r *postgresMemberRepository) List(ctx context.Context, activeOnly bool) ([]*models.Member, error) {
	query := `SELECT ` + memberColumns + ` FROM members`
	if activeOnly {
		query += ` WHERE active`
	}
	query += ` ORDER BY rating DESC NULLS LAST, id ASC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query members: %w", err)
	}
	defer rows.Close()

	members := make([]*models.Member, 0)
	for rows.Next() {
		m, scanErr := scanMember(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan member row: %w", scanErr)
		}
		members = append(members, m)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during member rows iteration: %w", err)
	}
	return members, nil
}

func (r *postgresMemberRepository) UpdateRating(ctx context.Context, exec SQLExecutor, id int, rating *int) error {
	result, err := exec.ExecContext(ctx, `UPDATE members SET rating = $1 WHERE id = $2`, rating, id)
	if err != nil {
		return fmt.Errorf("failed to update rating for member %d: %w", id, err)
	}
	return checkAffectedRows(result, ErrMemberNotFound)
}

func (r *postgresMemberRepository) SetActive(ctx context.Context, id int, active bool) error {
	result, err := r.db.ExecContext(ctx, `UPDATE members SET active = $1 WHERE id = $2`, active, id)
	if err != nil {
		return fmt.Errorf("failed to set active for member %d: %w", id, err)
	}
	return checkAffectedRows(result, ErrMemberNotFound)
}

func (r *postgresMemberRepository) Delete(ctx context.Context, id int) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM members WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return checkAffectedRows(result, ErrMemberNotFound)
}
