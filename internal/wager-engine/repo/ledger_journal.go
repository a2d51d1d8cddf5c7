package repo

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/radieske/round-wager-engine/internal/ledger"
)

// LedgerJournal persiste as transações do ledger em Postgres
// O snapshot em ledger_accounts é atualizado na mesma transação
type LedgerJournal struct{ db *sql.DB }

func NewLedgerJournal(db *sql.DB) *LedgerJournal { return &LedgerJournal{db: db} }

// Append grava o lote de um jogador; refs repetidas são ignoradas (idempotência por (player_id, ref))
func (j *LedgerJournal) Append(ctx context.Context, txns []ledger.Transaction) error {
	if len(txns) == 0 {
		return nil
	}
	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	deltas := make(map[string]int64)
	var order []string
	for _, t := range txns {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO ledger_transactions (txn_id, player_id, delta, reason, room_id, round_id, ref, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
			ON CONFLICT (player_id, ref) DO NOTHING`,
			t.ID, t.PlayerID, t.Delta, string(t.Reason), nullString(t.RoomID), nullInt(t.RoundID), t.Ref, t.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert txn %s: %w", t.Ref, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			continue // já gravada
		}
		if _, ok := deltas[t.PlayerID]; !ok {
			order = append(order, t.PlayerID)
		}
		deltas[t.PlayerID] += t.Delta
	}

	for _, player := range order {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO ledger_accounts (player_id, balance, updated_at)
			VALUES ($1,$2,NOW())
			ON CONFLICT (player_id) DO UPDATE
			SET balance = ledger_accounts.balance + EXCLUDED.balance, updated_at = NOW()`,
			player, deltas[player]); err != nil {
			return fmt.Errorf("update account %s: %w", player, err)
		}
	}

	return tx.Commit()
}

// Load devolve todas as transações na ordem de gravação
func (j *LedgerJournal) Load(ctx context.Context) ([]ledger.Transaction, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT txn_id, player_id, delta, reason, room_id, round_id, ref, created_at
		FROM ledger_transactions
		ORDER BY seq`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ledger.Transaction
	for rows.Next() {
		var (
			t      ledger.Transaction
			reason string
			room   sql.NullString
			round  sql.NullInt64
		)
		if err := rows.Scan(&t.ID, &t.PlayerID, &t.Delta, &reason, &room, &round, &t.Ref, &t.CreatedAt); err != nil {
			return nil, err
		}
		t.Reason = ledger.Reason(reason)
		t.RoomID = room.String
		t.RoundID = round.Int64
		out = append(out, t)
	}
	return out, rows.Err()
}

// Mismatch é uma conta cujo snapshot diverge da soma do journal
type Mismatch struct {
	PlayerID string
	Snapshot int64
	Journal  int64
}

// Mismatches compara ledger_accounts com a soma de ledger_transactions
func (j *LedgerJournal) Mismatches(ctx context.Context) ([]Mismatch, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT a.player_id, a.balance, COALESCE(SUM(t.delta), 0)
		FROM ledger_accounts a
		LEFT JOIN ledger_transactions t ON t.player_id = a.player_id
		GROUP BY a.player_id, a.balance
		HAVING a.balance <> COALESCE(SUM(t.delta), 0)`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Mismatch
	for rows.Next() {
		var m Mismatch
		if err := rows.Scan(&m.PlayerID, &m.Snapshot, &m.Journal); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func nullString(s string) sql.NullString { return sql.NullString{String: s, Valid: s != ""} }
func nullInt(n int64) sql.NullInt64      { return sql.NullInt64{Int64: n, Valid: n != 0} }
