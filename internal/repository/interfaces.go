package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/saturnino-fabrica-de-software/totem/internal/domain"
)

// PgxPool is the subset of *pgxpool.Pool used by the repositories, so tests
// can substitute pgxmock.
type PgxPool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
}

// IdentityRepositoryInterface defines operations for identity data access
type IdentityRepositoryInterface interface {
	LoadAll(ctx context.Context) ([]domain.Identity, error)
	Save(ctx context.Context, identity domain.Identity) error
	Delete(ctx context.Context, label string) error
	Count(ctx context.Context) (int, error)
}

// SessionAuditRepositoryInterface defines operations for session audit logging
type SessionAuditRepositoryInterface interface {
	Create(ctx context.Context, audit *domain.SessionAudit) error
	CountByOutcome(ctx context.Context, kind domain.SessionKind) (map[domain.Outcome]int, error)
}
