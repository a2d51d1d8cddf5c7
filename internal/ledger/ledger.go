package ledger

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInvalidPosting      = errors.New("invalid posting")
	ErrInvariant           = errors.New("ledger invariant violated")
)

// Reason classifica cada movimentação
type Reason string

const (
	ReasonDeposit Reason = "DEPOSIT"
	ReasonWager   Reason = "WAGER"
	ReasonRefund  Reason = "REFUND"
	ReasonPayout  Reason = "PAYOUT"
)

// Posting é uma movimentação pedida ao ledger
// Ref torna a operação idempotente por jogador (mesmo papel do external_ref da carteira)
type Posting struct {
	Delta   int64
	Reason  Reason
	RoomID  string
	RoundID int64
	Ref     string
}

// Transaction é o registro imutável de uma movimentação aplicada
type Transaction struct {
	ID        string    `json:"txnId"`
	PlayerID  string    `json:"playerId"`
	Delta     int64     `json:"delta"`
	Reason    Reason    `json:"reason"`
	RoomID    string    `json:"roomId,omitempty"`
	RoundID   int64     `json:"roundId,omitempty"`
	Ref       string    `json:"ref"`
	CreatedAt time.Time `json:"createdAt"`
}

// Journal persiste as transações antes de aplicá-las em memória
type Journal interface {
	Append(ctx context.Context, txns []Transaction) error
	Load(ctx context.Context) ([]Transaction, error)
}

type account struct {
	mu      sync.Mutex
	balance int64
	txns    []Transaction
	refs    map[string]int // ref -> índice em txns
}

// Ledger é o único componente que altera saldo
// Cada conta tem seu próprio lock; o mapa de contas tem outro
type Ledger struct {
	log     *zap.Logger
	journal Journal
	now     func() time.Time

	mu       sync.Mutex
	accounts map[string]*account
}

type Option func(*Ledger)

func WithJournal(j Journal) Option          { return func(l *Ledger) { l.journal = j } }
func WithClock(now func() time.Time) Option { return func(l *Ledger) { l.now = now } }

func New(log *zap.Logger, opts ...Option) *Ledger {
	l := &Ledger{
		log:      log,
		now:      time.Now,
		accounts: make(map[string]*account),
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

func (l *Ledger) account(playerID string) *account {
	l.mu.Lock()
	defer l.mu.Unlock()
	a, ok := l.accounts[playerID]
	if !ok {
		a = &account{refs: make(map[string]int)}
		l.accounts[playerID] = a
	}
	return a
}

// lookup não cria a conta; leituras de jogadores desconhecidos não deixam rastro no mapa
func (l *Ledger) lookup(playerID string) (*account, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	a, ok := l.accounts[playerID]
	return a, ok
}

// Restore reconstrói saldos a partir do journal (startup)
func (l *Ledger) Restore(ctx context.Context) error {
	if l.journal == nil {
		return nil
	}
	txns, err := l.journal.Load(ctx)
	if err != nil {
		return fmt.Errorf("load journal: %w", err)
	}
	for _, t := range txns {
		a := l.account(t.PlayerID)
		a.mu.Lock()
		if _, seen := a.refs[t.Ref]; !seen {
			a.refs[t.Ref] = len(a.txns)
			a.txns = append(a.txns, t)
			a.balance += t.Delta
		}
		a.mu.Unlock()
	}
	l.log.Info("ledger restored", zap.Int("transactions", len(txns)))
	return l.Reconcile()
}

// Apply aplica um lote de movimentações de forma atômica para um jogador
// Ou todas entram, ou nenhuma. Postings com ref já registrada são ignorados
// e a transação original é devolvida no lugar
func (l *Ledger) Apply(ctx context.Context, playerID string, postings ...Posting) ([]Transaction, int64, error) {
	if playerID == "" {
		return nil, 0, fmt.Errorf("%w: empty player", ErrInvalidPosting)
	}
	for _, p := range postings {
		if p.Delta == 0 || p.Ref == "" || p.Reason == "" {
			return nil, 0, fmt.Errorf("%w: %+v", ErrInvalidPosting, p)
		}
	}

	a := l.account(playerID)
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]Transaction, len(postings))
	fresh := make([]Transaction, 0, len(postings))
	batch := make(map[string]struct{}, len(postings))
	balance := a.balance
	now := l.now().UTC()

	for i, p := range postings {
		if idx, seen := a.refs[p.Ref]; seen {
			out[i] = a.txns[idx]
			continue
		}
		if _, dup := batch[p.Ref]; dup {
			return nil, a.balance, fmt.Errorf("%w: duplicate ref %q in batch", ErrInvalidPosting, p.Ref)
		}
		batch[p.Ref] = struct{}{}

		if p.Delta > 0 && balance > math.MaxInt64-p.Delta {
			return nil, a.balance, fmt.Errorf("%w: balance overflow", ErrInvalidPosting)
		}
		balance += p.Delta
		if balance < 0 {
			return nil, a.balance, ErrInsufficientBalance
		}
		t := Transaction{
			ID:        uuid.NewString(),
			PlayerID:  playerID,
			Delta:     p.Delta,
			Reason:    p.Reason,
			RoomID:    p.RoomID,
			RoundID:   p.RoundID,
			Ref:       p.Ref,
			CreatedAt: now,
		}
		out[i] = t
		fresh = append(fresh, t)
	}

	if len(fresh) == 0 {
		return out, a.balance, nil
	}

	// write-ahead: só altera memória depois do journal confirmar
	if l.journal != nil {
		if err := l.journal.Append(ctx, fresh); err != nil {
			return nil, a.balance, fmt.Errorf("journal append: %w", err)
		}
	}

	for _, t := range fresh {
		a.refs[t.Ref] = len(a.txns)
		a.txns = append(a.txns, t)
	}
	a.balance = balance

	if a.balance < 0 {
		l.log.DPanic("negative balance after apply", zap.String("player", playerID), zap.Int64("balance", a.balance))
		return nil, a.balance, ErrInvariant
	}
	return out, a.balance, nil
}

// Deposit credita saldo; idempotente por externalRef
func (l *Ledger) Deposit(ctx context.Context, playerID string, amount int64, externalRef string) (int64, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("%w: amount %d", ErrInvalidPosting, amount)
	}
	_, bal, err := l.Apply(ctx, playerID, Posting{Delta: amount, Reason: ReasonDeposit, Ref: "deposit:" + externalRef})
	return bal, err
}

func (l *Ledger) Balance(playerID string) int64 {
	a, ok := l.lookup(playerID)
	if !ok {
		return 0
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.balance
}

// Transactions retorna uma cópia do histórico do jogador
func (l *Ledger) Transactions(playerID string) []Transaction {
	a, ok := l.lookup(playerID)
	if !ok {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Transaction, len(a.txns))
	copy(out, a.txns)
	return out
}

// RoomTransactions retorna as movimentações ligadas a uma sala, por jogador e em ordem de gravação
func (l *Ledger) RoomTransactions(roomID string) []Transaction {
	var out []Transaction
	for _, id := range l.Players() {
		a, _ := l.lookup(id)
		a.mu.Lock()
		for _, t := range a.txns {
			if t.RoomID == roomID {
				out = append(out, t)
			}
		}
		a.mu.Unlock()
	}
	return out
}

// Players lista as contas conhecidas em ordem
func (l *Ledger) Players() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, 0, len(l.accounts))
	for id := range l.accounts {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Reconcile confere saldo == soma dos deltas e saldo >= 0 em todas as contas
func (l *Ledger) Reconcile() error {
	var errs []error
	for _, id := range l.Players() {
		a, _ := l.lookup(id)
		a.mu.Lock()
		var sum int64
		for _, t := range a.txns {
			sum += t.Delta
		}
		bal := a.balance
		a.mu.Unlock()

		if sum != bal || bal < 0 {
			l.log.DPanic("ledger reconciliation mismatch",
				zap.String("player", id), zap.Int64("balance", bal), zap.Int64("sum", sum))
			errs = append(errs, fmt.Errorf("%w: player %s balance %d sum %d", ErrInvariant, id, bal, sum))
		}
	}
	return errors.Join(errs...)
}
