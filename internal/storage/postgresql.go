package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS kv_slots (
	slot       TEXT PRIMARY KEY,
	value      BYTEA NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// PostgreSQLStore implements Store on a PostgreSQL table. Multi-slot writes
// run in one transaction and Update serializes instances sharing the table.
type PostgreSQLStore struct {
	pool *pgxpool.Pool
}

// NewPostgreSQL creates a new PostgreSQL store.
// It creates a connection pool for efficient connection reuse.
func NewPostgreSQL(ctx context.Context, cfg PostgreSQLConfig) (*PostgreSQLStore, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("PostgreSQL URL is required")
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse PostgreSQL URL: %w", err)
	}

	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = int32(cfg.MaxConns)
	} else {
		poolCfg.MaxConns = 10
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create PostgreSQL connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}

	return NewPostgreSQLWithPool(ctx, pool)
}

// NewPostgreSQLWithPool creates the slot table on an existing pool.
// The store takes ownership of the pool.
func NewPostgreSQLWithPool(ctx context.Context, pool *pgxpool.Pool) (*PostgreSQLStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("connection pool is required")
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		return nil, fmt.Errorf("failed to create kv_slots table: %w", err)
	}
	return &PostgreSQLStore{pool: pool}, nil
}

func (s *PostgreSQLStore) Get(ctx context.Context, slot string) ([]byte, bool, error) {
	var data []byte
	err := s.pool.QueryRow(ctx, `SELECT value FROM kv_slots WHERE slot = $1`, slot).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to read slot %s: %w", slot, err)
	}
	return data, true, nil
}

func (s *PostgreSQLStore) Set(ctx context.Context, slot string, data []byte) error {
	return s.SetMany(ctx, map[string][]byte{slot: data})
}

func (s *PostgreSQLStore) SetMany(ctx context.Context, values map[string][]byte) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return upsertSlots(ctx, tx, values)
	})
}

// Update holds a transaction-scoped advisory lock on the slot set while fn
// runs, so concurrent updaters of the same slots apply one after the other.
func (s *PostgreSQLStore) Update(ctx context.Context, slots []string, fn func(map[string][]byte) (map[string][]byte, error)) error {
	sorted := append([]string(nil), slots...)
	sort.Strings(sorted)

	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, strings.Join(sorted, ",")); err != nil {
			return fmt.Errorf("failed to lock slots: %w", err)
		}

		rows, err := tx.Query(ctx, `SELECT slot, value FROM kv_slots WHERE slot = ANY($1)`, sorted)
		if err != nil {
			return fmt.Errorf("failed to read slots: %w", err)
		}
		current := make(map[string][]byte, len(sorted))
		for rows.Next() {
			var slot string
			var data []byte
			if err := rows.Scan(&slot, &data); err != nil {
				rows.Close()
				return fmt.Errorf("failed to scan slot: %w", err)
			}
			current[slot] = data
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return fmt.Errorf("failed to read slots: %w", err)
		}

		next, err := fn(current)
		if err != nil {
			return err
		}
		return upsertSlots(ctx, tx, next)
	})
}

func upsertSlots(ctx context.Context, tx pgx.Tx, values map[string][]byte) error {
	for _, slot := range sortedSlots(values) {
		data := values[slot]
		if data == nil {
			data = []byte{}
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO kv_slots (slot, value, updated_at) VALUES ($1, $2, now())
			ON CONFLICT (slot) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`,
			slot, data)
		if err != nil {
			return fmt.Errorf("failed to write slot %s: %w", slot, err)
		}
	}
	return nil
}

func (s *PostgreSQLStore) Remove(ctx context.Context, slot string) error {
	return s.RemoveAll(ctx, slot)
}

func (s *PostgreSQLStore) RemoveAll(ctx context.Context, slots ...string) error {
	if len(slots) == 0 {
		return nil
	}
	if _, err := s.pool.Exec(ctx, `DELETE FROM kv_slots WHERE slot = ANY($1)`, slots); err != nil {
		return fmt.Errorf("failed to delete slots: %w", err)
	}
	return nil
}

func (s *PostgreSQLStore) Type() string {
	return TypePostgreSQL
}

func (s *PostgreSQLStore) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

// Pool returns the underlying pgxpool.Pool for direct access
func (s *PostgreSQLStore) Pool() *pgxpool.Pool {
	return s.pool
}
