package featureflags

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB is the subset of *pgxpool.Pool used by PostgresRepository.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Begin(ctx context.Context) (pgx.Tx, error)
}

const (
	selectFlagsQuery = `SELECT key, value, updated_at FROM feature_flags`

	upsertFlagQuery = `
		INSERT INTO feature_flags (key, value, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET
			value = EXCLUDED.value,
			updated_at = EXCLUDED.updated_at`

	insertChangeQuery = `
		INSERT INTO feature_flag_changes (keys, subject, reason, changed_at)
		VALUES ($1, $2, $3, $4)`
)

// PostgresRepository stores flags as JSONB in feature_flags and appends each
// batch to feature_flag_changes.
type PostgresRepository struct {
	db DB
}

// NewPostgresRepository creates a repository over db.
func NewPostgresRepository(db DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) LoadFlags(ctx context.Context) (map[string]*Flag, error) {
	rows, err := r.db.Query(ctx, selectFlagsQuery)
	if err != nil {
		return nil, fmt.Errorf("query feature flags: %w", err)
	}
	defer rows.Close()

	flags := make(map[string]*Flag)
	for rows.Next() {
		var (
			f   Flag
			raw []byte
		)
		if err := rows.Scan(&f.Key, &raw, &f.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan feature flag: %w", err)
		}
		if err := json.Unmarshal(raw, &f.Value); err != nil {
			return nil, fmt.Errorf("decode feature flag %s: %w", f.Key, err)
		}
		flags[f.Key] = &f
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read feature flags: %w", err)
	}
	return flags, nil
}

func (r *PostgresRepository) SaveFlags(ctx context.Context, flags []*Flag, change Change) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	keys := make([]string, 0, len(flags))
	for _, f := range flags {
		value, err := json.Marshal(f.Value)
		if err != nil {
			return fmt.Errorf("encode feature flag %s: %w", f.Key, err)
		}
		if _, err := tx.Exec(ctx, upsertFlagQuery, f.Key, value, f.UpdatedAt); err != nil {
			return fmt.Errorf("upsert feature flag %s: %w", f.Key, err)
		}
		keys = append(keys, f.Key)
	}
	if _, err := tx.Exec(ctx, insertChangeQuery, keys, change.Subject, change.Reason, change.At); err != nil {
		return fmt.Errorf("record flag change: %w", err)
	}
	return tx.Commit(ctx)
}

var _ Repository = (*PostgresRepository)(nil)
