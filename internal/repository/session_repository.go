package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS client_sessions (
	device     TEXT NOT NULL,
	key        TEXT NOT NULL,
	value      TEXT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (device, key)
)`

// PostgresStore keeps client session keys in Postgres, one row per (device, key), so several
// installs can share a database.
type PostgresStore struct {
	db     *pgxpool.Pool
	device string
}

func NewPostgresStore(db *pgxpool.Pool, device string) *PostgresStore {
	if device == "" {
		device = "default"
	}
	return &PostgresStore{db: db, device: device}
}

func (r *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("failed to create client_sessions table: %w", err)
	}
	return nil
}

// RunAtomic executes a function within a transaction
func (r *PostgresStore) RunAtomic(ctx context.Context, fn func(ctx context.Context) error) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	// no-op after a successful commit
	defer tx.Rollback(ctx)

	ctx = context.WithValue(ctx, txKey{}, tx)

	if err := fn(ctx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

type txKey struct{}

func (r *PostgresStore) getExecutor(ctx context.Context) PgxExecutor {
	if tx, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return tx
	}
	return r.db
}

// PgxExecutor is an interface that matches both *pgx.Conn/Pool and pgx.Tx
type PgxExecutor interface {
	Exec(ctx context.Context, sql string, arguments ...any) (commandTag pgconn.CommandTag, err error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (r *PostgresStore) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := r.getExecutor(ctx).QueryRow(ctx,
		"SELECT value FROM client_sessions WHERE device = $1 AND key = $2", r.device, key,
	).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to get session key %s: %w", key, err)
	}
	return value, true, nil
}

func (r *PostgresStore) Set(ctx context.Context, key, value string) error {
	_, err := r.getExecutor(ctx).Exec(ctx, `
		INSERT INTO client_sessions (device, key, value, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (device, key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`,
		r.device, key, value,
	)
	if err != nil {
		return fmt.Errorf("failed to set session key %s: %w", key, err)
	}
	return nil
}

// Delete removes all keys in one transaction so a sign-out never leaves a partial session.
func (r *PostgresStore) Delete(ctx context.Context, keys ...string) error {
	return r.RunAtomic(ctx, func(ctx context.Context) error {
		for _, key := range keys {
			_, err := r.getExecutor(ctx).Exec(ctx,
				"DELETE FROM client_sessions WHERE device = $1 AND key = $2", r.device, key,
			)
			if err != nil {
				return fmt.Errorf("failed to delete session key %s: %w", key, err)
			}
		}
		return nil
	})
}

// Keys lists the keys stored for this device.
func (r *PostgresStore) Keys(ctx context.Context) ([]string, error) {
	rows, err := r.getExecutor(ctx).Query(ctx,
		"SELECT key FROM client_sessions WHERE device = $1 ORDER BY key", r.device,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list session keys: %w", err)
	}
	keys, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to scan session keys: %w", err)
	}
	return keys, nil
}
