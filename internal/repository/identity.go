package repository

import (
	"context"
	"fmt"

	"github.com/pgvector/pgvector-go"

	"github.com/saturnino-fabrica-de-software/totem/internal/domain"
)

// IdentityRepository persists the embedding gallery in postgres, one row per label.
type IdentityRepository struct {
	pool PgxPool
}

func NewIdentityRepository(pool PgxPool) *IdentityRepository {
	return &IdentityRepository{pool: pool}
}

func (r *IdentityRepository) LoadAll(ctx context.Context) ([]domain.Identity, error) {
	query := `
		SELECT label, embedding, created_at, updated_at
		FROM identities
		ORDER BY label
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("load identities: %w", err)
	}
	defer rows.Close()

	var identities []domain.Identity
	for rows.Next() {
		var id domain.Identity
		var embedding *pgvector.Vector

		if err := rows.Scan(&id.Label, &embedding, &id.CreatedAt, &id.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan identity: %w", err)
		}
		id.Embedding = fromVector(embedding)
		identities = append(identities, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate identities: %w", err)
	}

	return identities, nil
}

// Save upserts the identity; re-enrolling a label replaces its embedding.
func (r *IdentityRepository) Save(ctx context.Context, identity domain.Identity) error {
	query := `
		INSERT INTO identities (label, embedding, created_at, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (label) DO UPDATE
		SET embedding = EXCLUDED.embedding, updated_at = EXCLUDED.updated_at
	`

	_, err := r.pool.Exec(ctx, query,
		identity.Label,
		toVector(identity.Embedding),
		identity.CreatedAt,
		identity.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save identity: %w", err)
	}

	return nil
}

func (r *IdentityRepository) Delete(ctx context.Context, label string) error {
	query := `
		DELETE FROM identities
		WHERE label = $1
	`

	result, err := r.pool.Exec(ctx, query, label)
	if err != nil {
		return fmt.Errorf("delete identity: %w", err)
	}

	if result.RowsAffected() == 0 {
		return domain.ErrIdentityNotFound
	}

	return nil
}

func (r *IdentityRepository) Count(ctx context.Context) (int, error) {
	query := `SELECT COUNT(*) FROM identities`

	var count int
	if err := r.pool.QueryRow(ctx, query).Scan(&count); err != nil {
		return 0, fmt.Errorf("count identities: %w", err)
	}

	return count, nil
}
