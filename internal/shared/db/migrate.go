package db

import (
	"context"
	"database/sql"
	"fmt"
)

// schema é aplicado em ordem no startup; cada statement é idempotente
var schema = []string{
	`CREATE TABLE IF NOT EXISTS ledger_transactions (
		txn_id      UUID PRIMARY KEY,
		player_id   TEXT        NOT NULL,
		delta       BIGINT      NOT NULL,
		reason      TEXT        NOT NULL,
		room_id     TEXT,
		round_id    BIGINT,
		ref         TEXT        NOT NULL,
		created_at  TIMESTAMPTZ NOT NULL,
		seq         BIGSERIAL,
		UNIQUE (player_id, ref)
	)`,
	`CREATE INDEX IF NOT EXISTS ledger_transactions_seq_idx ON ledger_transactions (seq)`,
	`CREATE TABLE IF NOT EXISTS ledger_accounts (
		player_id   TEXT PRIMARY KEY,
		balance     BIGINT      NOT NULL CHECK (balance >= 0),
		updated_at  TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS settlement_records (
		room_id     TEXT        NOT NULL,
		round_id    BIGINT      NOT NULL,
		status      TEXT        NOT NULL,
		body        JSONB       NOT NULL,
		settled_at  TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (room_id, round_id)
	)`,
}

// Migrate cria as tabelas do ledger e das liquidações
func Migrate(ctx context.Context, db *sql.DB) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}
	return nil
}
