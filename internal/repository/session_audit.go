package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/saturnino-fabrica-de-software/totem/internal/domain"
)

type SessionAuditRepository struct {
	pool PgxPool
}

func NewSessionAuditRepository(pool PgxPool) *SessionAuditRepository {
	return &SessionAuditRepository{pool: pool}
}

// Create inserts a new session audit record
func (r *SessionAuditRepository) Create(ctx context.Context, audit *domain.SessionAudit) error {
	query := `
		INSERT INTO session_audits (
			id, kind, outcome, label, distance, samples_collected, ticks, latency_ms, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		RETURNING created_at
	`

	if audit.ID == uuid.Nil {
		audit.ID = uuid.New()
	}

	err := r.pool.QueryRow(ctx, query,
		audit.ID,
		string(audit.Kind),
		string(audit.Outcome),
		audit.Label,
		audit.Distance,
		audit.SamplesCollected,
		audit.Ticks,
		audit.LatencyMs,
	).Scan(&audit.CreatedAt)

	if err != nil {
		return fmt.Errorf("create session audit: %w", err)
	}

	return nil
}

// CountByOutcome aggregates the audit trail of one session kind.
func (r *SessionAuditRepository) CountByOutcome(ctx context.Context, kind domain.SessionKind) (map[domain.Outcome]int, error) {
	query := `
		SELECT outcome, COUNT(*)
		FROM session_audits
		WHERE kind = $1
		GROUP BY outcome
	`

	rows, err := r.pool.Query(ctx, query, string(kind))
	if err != nil {
		return nil, fmt.Errorf("count session audits: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.Outcome]int)
	for rows.Next() {
		var outcome string
		var n int
		if err := rows.Scan(&outcome, &n); err != nil {
			return nil, fmt.Errorf("scan session audit count: %w", err)
		}
		counts[domain.Outcome(outcome)] = n
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate session audit counts: %w", err)
	}

	return counts, nil
}
