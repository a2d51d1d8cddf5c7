package book

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/radieske/round-wager-engine/internal/game"
	"github.com/radieske/round-wager-engine/internal/odds"
)

var (
	ErrClosed   = errors.New("round closed for wagers")
	ErrSettling = errors.New("round already settling")
	ErrFinished = errors.New("round already finished")
)

// State é o estado tipado do conjunto de apostas de uma rodada
type State int

const (
	StateOpen State = iota
	StateSealed
	StateSettling
	StateSettled
	StateVoided
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "OPEN"
	case StateSealed:
		return "SEALED"
	case StateSettling:
		return "SETTLING"
	case StateSettled:
		return "SETTLED"
	case StateVoided:
		return "VOIDED"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Wager é imutável depois de aceita
type Wager struct {
	ID               string    `json:"wagerId"`
	RoomID           string    `json:"roomId"`
	RoundID          int64     `json:"roundId"`
	PlayerID         string    `json:"playerId"`
	Kind             game.Kind `json:"kind"`
	Stake            int64     `json:"stake"`
	PlacedAt         time.Time `json:"placedAt"`
	ReservationTxnID string    `json:"reservationTxnId"`
}

// Book guarda as apostas de uma rodada
// Intake adiciona enquanto Open e antes de sealAt; a liquidação drena e congela
type Book struct {
	roomID  string
	roundID int64
	sealAt  time.Time
	table   *odds.Table

	mu       sync.Mutex
	state    State
	wagers   []Wager
	messages map[string]struct{}
	pending  *game.Digits
}

// New abre o conjunto da rodada com o snapshot da tabela de odds
func New(roomID string, roundID int64, sealAt time.Time, table *odds.Table) *Book {
	return &Book{roomID: roomID, roundID: roundID, sealAt: sealAt, table: table}
}

func (b *Book) RoomID() string     { return b.roomID }
func (b *Book) RoundID() int64     { return b.roundID }
func (b *Book) SealAt() time.Time  { return b.sealAt }
func (b *Book) Table() *odds.Table { return b.table }

func (b *Book) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Tx é a visão do conjunto dentro de Place, sob o lock do book
type Tx struct {
	b          *Book
	remembered []string
}

// Stakes retorna as apostas vivas do jogador nesta rodada
func (tx *Tx) Stakes(playerID string) []Wager {
	var out []Wager
	for _, w := range tx.b.wagers {
		if w.PlayerID == playerID {
			out = append(out, w)
		}
	}
	return out
}

func (tx *Tx) Add(w Wager) { tx.b.wagers = append(tx.b.wagers, w) }

// Seen indica se a mensagem já foi registrada nesta rodada
func (tx *Tx) Seen(messageID string) bool {
	_, ok := tx.b.messages[messageID]
	return ok
}

func (tx *Tx) Remember(messageID string) {
	if tx.b.messages == nil {
		tx.b.messages = make(map[string]struct{})
	}
	tx.b.messages[messageID] = struct{}{}
	tx.remembered = append(tx.remembered, messageID)
}

// Withdraw remove as apostas do jogador no tipo k (política de substituição)
func (tx *Tx) Withdraw(playerID string, k game.Kind) []Wager {
	var removed []Wager
	kept := tx.b.wagers[:0]
	for _, w := range tx.b.wagers {
		if w.PlayerID == playerID && w.Kind == k {
			removed = append(removed, w)
			continue
		}
		kept = append(kept, w)
	}
	tx.b.wagers = kept
	return removed
}

// Place executa fn atomicamente com o portão de fase: book Open e now < sealAt
// Se fn falhar, nenhuma alteração feita por ela é mantida
func (b *Book) Place(now time.Time, fn func(tx *Tx) error) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != StateOpen || !now.Before(b.sealAt) {
		return ErrClosed
	}

	snapshot := append([]Wager(nil), b.wagers...)
	tx := &Tx{b: b}
	if err := fn(tx); err != nil {
		b.wagers = snapshot
		for _, id := range tx.remembered {
			delete(b.messages, id)
		}
		return err
	}
	return nil
}

// Seal fecha a rodada para novas apostas
func (b *Book) Seal() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen {
		b.state = StateSealed
	}
}

// BeginSettle passa para Settling e devolve as apostas a liquidar
func (b *Book) BeginSettle() ([]Wager, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateOpen, StateSealed:
		b.state = StateSettling
		return append([]Wager(nil), b.wagers...), nil
	case StateSettling:
		return nil, ErrSettling
	default:
		return nil, ErrFinished
	}
}

// Abort devolve a rodada para Sealed após falha na liquidação
// Os dígitos ficam guardados para a próxima tentativa
func (b *Book) Abort(d *game.Digits) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateSettling {
		b.state = StateSealed
		if d != nil {
			cp := *d
			b.pending = &cp
		}
	}
}

// Pending retorna os dígitos de uma liquidação interrompida
func (b *Book) Pending() (game.Digits, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pending == nil {
		return game.Digits{}, false
	}
	return *b.pending, true
}

// Finish congela a rodada e libera as apostas
func (b *Book) Finish(void bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != StateSettling {
		return
	}
	b.state = StateSettled
	if void {
		b.state = StateVoided
	}
	b.wagers = nil
	b.pending = nil
}

// Wagers retorna uma cópia das apostas atuais
func (b *Book) Wagers() []Wager {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Wager(nil), b.wagers...)
}

// Staked soma o valor apostado na rodada
func (b *Book) Staked() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	var total int64
	for _, w := range b.wagers {
		total += w.Stake
	}
	return total
}
