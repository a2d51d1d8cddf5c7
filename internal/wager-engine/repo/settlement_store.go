package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/radieske/round-wager-engine/internal/settlement"
)

// SettlementStore guarda um registro por (sala, rodada) em JSONB
type SettlementStore struct{ db *sql.DB }

func NewSettlementStore(db *sql.DB) *SettlementStore { return &SettlementStore{db: db} }

func (s *SettlementStore) Get(ctx context.Context, roomID string, roundID int64) (settlement.Record, error) {
	var body []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT body FROM settlement_records WHERE room_id=$1 AND round_id=$2`, roomID, roundID).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return settlement.Record{}, settlement.ErrNotFound
	}
	if err != nil {
		return settlement.Record{}, err
	}
	var rec settlement.Record
	if err := json.Unmarshal(body, &rec); err != nil {
		return settlement.Record{}, fmt.Errorf("decode settlement %s:%d: %w", roomID, roundID, err)
	}
	return rec, nil
}

// Save não sobrescreve: em conflito devolve o registro já gravado
func (s *SettlementStore) Save(ctx context.Context, rec settlement.Record) (settlement.Record, bool, error) {
	body, err := json.Marshal(rec)
	if err != nil {
		return settlement.Record{}, false, err
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO settlement_records (room_id, round_id, status, body, settled_at)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (room_id, round_id) DO NOTHING`,
		rec.RoomID, rec.RoundID, string(rec.Status), body, rec.SettledAt)
	if err != nil {
		return settlement.Record{}, false, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		stored, err := s.Get(ctx, rec.RoomID, rec.RoundID)
		return stored, false, err
	}
	return rec, true, nil
}

func (s *SettlementStore) LastRoundID(ctx context.Context, roomID string) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(round_id), 0) FROM settlement_records WHERE room_id=$1`, roomID).Scan(&id)
	return id, err
}
