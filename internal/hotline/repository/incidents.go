// Package repository persists incidents and reads member profiles in
// PostgreSQL.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"hotline_backend/internal/hotline/domain"
	"hotline_backend/internal/hotline/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const incidentColumns = `id, subject_id, provider_call_id, status, provider_status, status_reason, tier, region,
		operator_id, operator_phone, call_placed, duration_seconds, created_at, activated_at, resolved_at`

const (
	insertIncidentQuery = `
		INSERT INTO incidents (id, subject_id, provider_call_id, status, tier, region, call_placed, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	getIncidentQuery = `
		SELECT ` + incidentColumns + `
		FROM incidents
		WHERE id = $1`

	findByCallIDQuery = `
		SELECT ` + incidentColumns + `
		FROM incidents
		WHERE provider_call_id = $1
		ORDER BY created_at DESC
		LIMIT 1`

	listOpenBySubjectQuery = `
		SELECT ` + incidentColumns + `
		FROM incidents
		WHERE subject_id = $1 AND resolved_at IS NULL
		ORDER BY created_at DESC`

	lastResolvedBySubjectQuery = `
		SELECT ` + incidentColumns + `
		FROM incidents
		WHERE subject_id = $1 AND resolved_at IS NOT NULL
		ORDER BY resolved_at DESC
		LIMIT 1`

	newestUnplacedQuery = `
		SELECT ` + incidentColumns + `
		FROM incidents
		WHERE status = 'initiated' AND call_placed AND provider_call_id = ''
			AND resolved_at IS NULL AND created_at > $1
		ORDER BY created_at DESC
		LIMIT 1`

	listStaleQuery = `
		SELECT ` + incidentColumns + `
		FROM incidents
		WHERE status = 'initiated' AND resolved_at IS NULL AND created_at < $1
		ORDER BY created_at ASC
		LIMIT $2`

	attachCallIDQuery = `
		UPDATE incidents SET provider_call_id = $2
		WHERE id = $1`

	attachCallIDIfUnsetQuery = `
		UPDATE incidents SET provider_call_id = $2
		WHERE id = $1 AND provider_call_id = ''`

	activateIncidentQuery = `
		UPDATE incidents SET
			status = 'active',
			provider_status = COALESCE(NULLIF($2, ''), provider_status),
			duration_seconds = COALESCE($3, duration_seconds),
			activated_at = COALESCE(activated_at, $4)
		WHERE id = $1 AND resolved_at IS NULL
		RETURNING ` + incidentColumns

	resolveIncidentQuery = `
		UPDATE incidents SET
			status = $2,
			provider_status = COALESCE(NULLIF($3, ''), provider_status),
			status_reason = $4,
			duration_seconds = COALESCE($5, duration_seconds),
			resolved_at = $6
		WHERE id = $1 AND resolved_at IS NULL
		RETURNING ` + incidentColumns

	incidentExistsQuery = `SELECT EXISTS (SELECT 1 FROM incidents WHERE id = $1)`
)

// Incidents implements ports.IncidentStore with PostgreSQL.
type Incidents struct {
	pool *pgxpool.Pool
}

// NewIncidents creates a new incident repository.
func NewIncidents(pool *pgxpool.Pool) *Incidents {
	return &Incidents{pool: pool}
}

var _ ports.IncidentStore = (*Incidents)(nil)

// Create inserts a new incident.
func (r *Incidents) Create(ctx context.Context, inc domain.Incident) error {
	_, err := r.pool.Exec(ctx, insertIncidentQuery,
		inc.ID, inc.SubjectID, inc.ProviderCallID, string(inc.Status), inc.Tier, inc.Region, inc.CallPlaced, inc.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert incident: %w", err)
	}
	return nil
}

// Get retrieves an incident by id.
func (r *Incidents) Get(ctx context.Context, id uuid.UUID) (domain.Incident, error) {
	return r.queryOne(ctx, "get incident", getIncidentQuery, id)
}

// FindByCallID retrieves the newest incident carrying the provider call id.
func (r *Incidents) FindByCallID(ctx context.Context, callID string) (domain.Incident, error) {
	return r.queryOne(ctx, "find incident by call id", findByCallIDQuery, callID)
}

// ListOpenBySubject retrieves unresolved incidents for a subject, newest first.
func (r *Incidents) ListOpenBySubject(ctx context.Context, subjectID string) ([]domain.Incident, error) {
	return r.queryMany(ctx, "list open incidents", listOpenBySubjectQuery, subjectID)
}

// LastResolvedBySubject retrieves the most recently resolved incident.
func (r *Incidents) LastResolvedBySubject(ctx context.Context, subjectID string) (domain.Incident, error) {
	return r.queryOne(ctx, "last resolved incident", lastResolvedBySubjectQuery, subjectID)
}

// NewestUnplaced retrieves the newest incident still waiting for a call id.
func (r *Incidents) NewestUnplaced(ctx context.Context, since time.Time) (domain.Incident, error) {
	return r.queryOne(ctx, "newest unplaced incident", newestUnplacedQuery, since)
}

// ListStale retrieves initiated incidents created before cutoff.
func (r *Incidents) ListStale(ctx context.Context, cutoff time.Time, limit int) ([]domain.Incident, error) {
	return r.queryMany(ctx, "list stale incidents", listStaleQuery, cutoff, limit)
}

// AttachCallID stores the provider call id on an incident.
func (r *Incidents) AttachCallID(ctx context.Context, id uuid.UUID, callID string, onlyIfUnset bool) (bool, error) {
	query := attachCallIDQuery
	if onlyIfUnset {
		query = attachCallIDIfUnsetQuery
	}
	tag, err := r.pool.Exec(ctx, query, id, callID)
	if err != nil {
		return false, fmt.Errorf("attach call id: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// Apply persists an update conditionally on the incident being unresolved.
func (r *Incidents) Apply(ctx context.Context, id uuid.UUID, u domain.Update) (domain.Incident, error) {
	var row pgx.Row
	switch u.Kind {
	case domain.UpdateActivate:
		row = r.pool.QueryRow(ctx, activateIncidentQuery, id, u.ProviderStatus, u.DurationSeconds, u.At)
	case domain.UpdateResolve:
		row = r.pool.QueryRow(ctx, resolveIncidentQuery, id, string(u.Status), u.ProviderStatus, u.Reason, u.DurationSeconds, u.At)
	default:
		return domain.Incident{}, fmt.Errorf("apply incident update: unknown kind %d", u.Kind)
	}

	inc, err := scanIncident(row)
	if err == nil {
		return inc, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return domain.Incident{}, fmt.Errorf("apply incident update: %w", err)
	}

	var exists bool
	if err := r.pool.QueryRow(ctx, incidentExistsQuery, id).Scan(&exists); err != nil {
		return domain.Incident{}, fmt.Errorf("check incident exists: %w", err)
	}
	if !exists {
		return domain.Incident{}, domain.ErrIncidentNotFound
	}
	return domain.Incident{}, domain.ErrAlreadyResolved
}

func (r *Incidents) queryOne(ctx context.Context, op, query string, args ...any) (domain.Incident, error) {
	inc, err := scanIncident(r.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Incident{}, domain.ErrIncidentNotFound
		}
		return domain.Incident{}, fmt.Errorf("%s: %w", op, err)
	}
	return inc, nil
}

func (r *Incidents) queryMany(ctx context.Context, op, query string, args ...any) ([]domain.Incident, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	items := make([]domain.Incident, 0)
	for rows.Next() {
		inc, err := scanIncident(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: scan: %w", op, err)
		}
		items = append(items, inc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return items, nil
}

func scanIncident(row pgx.Row) (domain.Incident, error) {
	var inc domain.Incident
	var status string
	err := row.Scan(
		&inc.ID, &inc.SubjectID, &inc.ProviderCallID, &status, &inc.ProviderStatus, &inc.StatusReason,
		&inc.Tier, &inc.Region, &inc.OperatorID, &inc.OperatorPhone, &inc.CallPlaced, &inc.DurationSeconds,
		&inc.CreatedAt, &inc.ActivatedAt, &inc.ResolvedAt,
	)
	if err != nil {
		return domain.Incident{}, err
	}
	inc.Status = domain.Status(status)
	inc.Persisted = true
	return inc, nil
}
