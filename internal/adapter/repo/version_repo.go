package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"funnelforge/internal/domain"
)

// VersionRepositoryPG implements domain.VersionRepository.
type VersionRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewVersionRepository creates a content-version repository backed by
// PostgreSQL.
func NewVersionRepository(pool *pgxpool.Pool) *VersionRepositoryPG {
	return &VersionRepositoryPG{pool: pool}
}

const versionColumns = `id, content_group_id, content_type, version, is_current, content_json, content_hash, created_at, updated_at`

// Current returns the group's current version for one content type.
func (r *VersionRepositoryPG) Current(ctx context.Context, groupID string, contentType domain.JobType) (*domain.ContentVersion, error) {
	query := fmt.Sprintf(`
SELECT %s
FROM content_versions
WHERE content_group_id = $1 AND content_type = $2 AND is_current;
`, versionColumns)
	return scanVersion(r.pool.QueryRow(ctx, query, groupID, contentType))
}

// Promote inserts the next version and flips it to current in one
// transaction. An advisory lock keyed on (group, content type) serializes
// concurrent promotions so the at-most-one-current invariant holds under
// racing regenerations; the whole promotion fails rather than partially
// applying.
func (r *VersionRepositoryPG) Promote(ctx context.Context, groupID string, contentType domain.JobType, contentJSON []byte, contentHash string) (*domain.ContentVersion, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("begin promote: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1 || ':' || $2));`, groupID, string(contentType)); err != nil {
		return nil, fmt.Errorf("acquire promote lock: %w", err)
	}
	if _, err := tx.Exec(ctx, `
UPDATE content_versions
SET is_current = false, updated_at = now()
WHERE content_group_id = $1 AND content_type = $2 AND is_current;
`, groupID, contentType); err != nil {
		return nil, fmt.Errorf("demote current version: %w", err)
	}
	insert := fmt.Sprintf(`
INSERT INTO content_versions (content_group_id, content_type, version, is_current, content_json, content_hash)
SELECT $1, $2, COALESCE(MAX(version), 0) + 1, true, $3, $4
FROM content_versions
WHERE content_group_id = $1 AND content_type = $2
RETURNING %s;
`, versionColumns)
	version, err := scanVersion(tx.QueryRow(ctx, insert, groupID, contentType, contentJSON, contentHash))
	if err != nil {
		return nil, fmt.Errorf("insert version: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit promote: %w", err)
	}
	return version, nil
}

// RecentUpdates returns the group's versions written at or after since,
// newest first.
func (r *VersionRepositoryPG) RecentUpdates(ctx context.Context, groupID string, since time.Time) ([]*domain.ContentVersion, error) {
	query := fmt.Sprintf(`
SELECT %s
FROM content_versions
WHERE content_group_id = $1 AND updated_at >= $2
ORDER BY updated_at DESC;
`, versionColumns)
	rows, err := r.pool.Query(ctx, query, groupID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.ContentVersion
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func scanVersion(row pgx.Row) (*domain.ContentVersion, error) {
	var v domain.ContentVersion
	if err := row.Scan(
		&v.ID,
		&v.ContentGroupID,
		&v.ContentType,
		&v.Version,
		&v.IsCurrent,
		&v.ContentJSON,
		&v.ContentHash,
		&v.CreatedAt,
		&v.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &v, nil
}

var _ domain.VersionRepository = (*VersionRepositoryPG)(nil)
