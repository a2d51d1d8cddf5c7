package settlement

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/radieske/round-wager-engine/internal/game"
)

// Status do registro: liquidado normalmente ou anulado (stakes devolvidos)
type Status string

const (
	StatusSettled Status = "SETTLED"
	StatusVoid    Status = "VOID"
)

// Outcome é o resultado de uma aposta da rodada
type Outcome struct {
	WagerID    string          `json:"wagerId"`
	PlayerID   string          `json:"playerId"`
	Kind       game.Kind       `json:"kind,omitempty"` // ausente em rodadas recuperadas do journal
	Stake      int64           `json:"stake"`
	Multiplier decimal.Decimal `json:"multiplier"`
	Won        bool            `json:"won"`
	Payout     int64           `json:"payout"`
	Refunded   bool            `json:"refunded,omitempty"`
}

// Record é criado uma única vez por (sala, rodada) e nunca mais alterado
type Record struct {
	RoomID        string     `json:"roomId"`
	RoundID       int64      `json:"roundId"`
	Status        Status     `json:"status"`
	Draw          *game.Draw `json:"draw,omitempty"` // nil quando VOID
	Reason        string     `json:"reason,omitempty"`
	Outcomes      []Outcome  `json:"outcomes"`
	TotalStaked   int64      `json:"totalStaked"`
	TotalPaid     int64      `json:"totalPaid"`
	TotalRefunded int64      `json:"totalRefunded"`
	SettledAt     time.Time  `json:"settledAt"`
}

func (r Record) Void() bool { return r.Status == StatusVoid }

var ErrNotFound = errors.New("settlement not found")

// Store persiste registros por (sala, rodada)
// Save não sobrescreve: se já existir, devolve o registro guardado e created=false
type Store interface {
	Get(ctx context.Context, roomID string, roundID int64) (Record, error)
	Save(ctx context.Context, rec Record) (stored Record, created bool, err error)
	LastRoundID(ctx context.Context, roomID string) (int64, error)
}

func key(roomID string, roundID int64) string { return fmt.Sprintf("%s:%d", roomID, roundID) }

// MemoryStore é usado em testes e quando o serviço roda sem Postgres
type MemoryStore struct {
	mu   sync.RWMutex
	recs map[string]Record
	last map[string]int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{recs: make(map[string]Record), last: make(map[string]int64)}
}

func (m *MemoryStore) Get(_ context.Context, roomID string, roundID int64) (Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.recs[key(roomID, roundID)]
	if !ok {
		return Record{}, ErrNotFound
	}
	return r, nil
}

func (m *MemoryStore) Save(_ context.Context, rec Record) (Record, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := key(rec.RoomID, rec.RoundID)
	if existing, ok := m.recs[k]; ok {
		return existing, false, nil
	}
	m.recs[k] = rec
	if rec.RoundID > m.last[rec.RoomID] {
		m.last[rec.RoomID] = rec.RoundID
	}
	return rec, true, nil
}

func (m *MemoryStore) LastRoundID(_ context.Context, roomID string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.last[roomID], nil
}
