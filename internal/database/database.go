// Package database connects to PostgreSQL and applies the schema.
package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/betarena/market-engine/internal/config"
)

// Connect creates a connection pool and verifies it with a ping.
func Connect(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}

	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConns = cfg.MaxConns

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return pool, nil
}

// Migrate creates any missing tables and indexes. Every statement is
// idempotent, so it runs on each start.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Schema is the full DDL. Money columns are NUMERIC; seq columns give a
// stable insertion order when timestamps collide.
const Schema = `
CREATE TABLE IF NOT EXISTS users (
    id               TEXT PRIMARY KEY,
    username         TEXT NOT NULL UNIQUE,
    prediction_coins NUMERIC NOT NULL DEFAULT 0 CHECK (prediction_coins >= 0),
    fantasy_coins    NUMERIC NOT NULL DEFAULT 0,
    created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS contracts (
    id                      TEXT PRIMARY KEY,
    title                   TEXT NOT NULL UNIQUE,
    description             TEXT NOT NULL DEFAULT '',
    category                TEXT NOT NULL DEFAULT 'general',
    creator_id              TEXT NOT NULL DEFAULT '',
    status                  TEXT NOT NULL DEFAULT 'open' CHECK (status IN ('open', 'closed')),
    resolution              TEXT NOT NULL DEFAULT '' CHECK (resolution IN ('', 'yes', 'no')),
    yes_pool                NUMERIC NOT NULL,
    no_pool                 NUMERIC NOT NULL,
    liquidity_pool          NUMERIC NOT NULL,
    current_yes_probability NUMERIC NOT NULL,
    closing_date            TIMESTAMPTZ,
    created_at              TIMESTAMPTZ NOT NULL DEFAULT now(),
    resolved_at             TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_contracts_status ON contracts (status);

CREATE TABLE IF NOT EXISTS price_points (
    seq             BIGSERIAL,
    id              TEXT PRIMARY KEY,
    contract_id     TEXT NOT NULL REFERENCES contracts (id),
    yes_probability NUMERIC NOT NULL,
    yes_pool        NUMERIC NOT NULL,
    no_pool         NUMERIC NOT NULL,
    timestamp       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_price_points_contract ON price_points (contract_id, timestamp, seq);

CREATE TABLE IF NOT EXISTS bets (
    seq              BIGSERIAL,
    id               TEXT PRIMARY KEY,
    user_id          TEXT NOT NULL REFERENCES users (id),
    contract_id      TEXT NOT NULL REFERENCES contracts (id),
    position         TEXT NOT NULL CHECK (position IN ('yes', 'no')),
    amount           NUMERIC NOT NULL CHECK (amount > 0),
    shares           NUMERIC NOT NULL,
    purchase_price   NUMERIC NOT NULL,
    potential_payout NUMERIC NOT NULL DEFAULT 0,
    payout_amount    NUMERIC NOT NULL DEFAULT 0,
    created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
    settled_at       TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_bets_contract ON bets (contract_id, created_at, seq);
CREATE INDEX IF NOT EXISTS idx_bets_user ON bets (user_id, created_at, seq);

CREATE TABLE IF NOT EXISTS user_rankings (
    user_id      TEXT PRIMARY KEY REFERENCES users (id),
    tier         TEXT NOT NULL DEFAULT 'Rookie',
    rank_points  BIGINT NOT NULL DEFAULT 0,
    global_rank  INTEGER NOT NULL DEFAULT 0,
    tier_rank    INTEGER NOT NULL DEFAULT 0,
    win_streak   INTEGER NOT NULL DEFAULT 0,
    best_streak  INTEGER NOT NULL DEFAULT 0,
    loss_streak  INTEGER NOT NULL DEFAULT 0,
    last_updated TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_user_rankings_points ON user_rankings (rank_points DESC, user_id);
`
