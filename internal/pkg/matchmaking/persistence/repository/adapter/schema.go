package adapter

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schemaSQL creates the two coordination tables. Both statements are idempotent.
const schemaSQL = `
CREATE SCHEMA IF NOT EXISTS matchmaking;

CREATE TABLE IF NOT EXISTS matchmaking.presence (
	user_id           text PRIMARY KEY,
	transport_address text,
	last_seen         timestamptz NOT NULL
);
CREATE INDEX IF NOT EXISTS presence_last_seen_idx ON matchmaking.presence (last_seen);

CREATE TABLE IF NOT EXISTS matchmaking.waiting_pool (
	transport_address text PRIMARY KEY,
	created_at        timestamptz NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS waiting_pool_created_at_idx ON matchmaking.waiting_pool (created_at);
`

// EnsureSchema creates the matchmaking schema and tables when they are missing.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if pool == nil {
		return errors.New("EnsureSchema: nil pool")
	}
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("postgres: ensure schema: %w", err)
	}
	return nil
}
