package repository

import (
	"context"
	"errors"
	"fmt"

	"hotline_backend/internal/hotline/domain"
	"hotline_backend/internal/hotline/ports"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	findSubjectByEmailQuery = `
		SELECT subject_id, email, COALESCE(verified_phone, ''), tier, region, bypass
		FROM subjects
		WHERE lower(email) = lower($1)`

	findSubjectByIDQuery = `
		SELECT subject_id, email, COALESCE(verified_phone, ''), tier, region, bypass
		FROM subjects
		WHERE subject_id = $1`

	relayNumberQuery = `
		SELECT phone
		FROM relay_numbers
		WHERE lower(email) = lower($1)`
)

// Subjects implements ports.SubjectDirectory with PostgreSQL.
type Subjects struct {
	pool *pgxpool.Pool
}

// NewSubjects creates a new subject directory.
func NewSubjects(pool *pgxpool.Pool) *Subjects {
	return &Subjects{pool: pool}
}

var _ ports.SubjectDirectory = (*Subjects)(nil)

// FindByEmail retrieves a member profile by email, case-insensitively.
func (r *Subjects) FindByEmail(ctx context.Context, email string) (domain.Subject, error) {
	return r.queryOne(ctx, "find subject by email", findSubjectByEmailQuery, email)
}

// FindByID retrieves a member profile by subject id.
func (r *Subjects) FindByID(ctx context.Context, subjectID string) (domain.Subject, error) {
	return r.queryOne(ctx, "find subject by id", findSubjectByIDQuery, subjectID)
}

func (r *Subjects) queryOne(ctx context.Context, op, query string, arg string) (domain.Subject, error) {
	var s domain.Subject
	err := r.pool.QueryRow(ctx, query, arg).Scan(
		&s.SubjectID, &s.Email, &s.VerifiedPhone, &s.Tier, &s.Region, &s.Bypass,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Subject{}, domain.ErrSubjectNotFound
		}
		return domain.Subject{}, fmt.Errorf("%s: %w", op, err)
	}
	return s, nil
}

// RelayNumber returns the relay number assigned to email, or "" if none.
func (r *Subjects) RelayNumber(ctx context.Context, email string) (string, error) {
	var number string
	err := r.pool.QueryRow(ctx, relayNumberQuery, email).Scan(&number)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("relay number: %w", err)
	}
	return number, nil
}
