package settlement

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/radieske/round-wager-engine/internal/book"
	"github.com/radieske/round-wager-engine/internal/game"
	"github.com/radieske/round-wager-engine/internal/ledger"
)

// Ledger é o subconjunto do ledger usado na liquidação
type Ledger interface {
	Apply(ctx context.Context, playerID string, postings ...ledger.Posting) ([]ledger.Transaction, int64, error)
}

type roundLock struct {
	mu   sync.Mutex
	refs int
}

// Engine liquida rodadas; cada (sala, rodada) é uma seção crítica
type Engine struct {
	log     *zap.Logger
	ledger  Ledger
	store   Store
	history History
	now     func() time.Time

	mu    sync.Mutex
	locks map[string]*roundLock

	OnSettled   func(Record) // métricas/notificação
	OnDuplicate func(Record)
}

type Option func(*Engine)

func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }
func WithHistory(h History) Option          { return func(e *Engine) { e.history = h } }

func NewEngine(log *zap.Logger, l Ledger, store Store, opts ...Option) *Engine {
	e := &Engine{
		log:    log,
		ledger: l,
		store:  store,
		now:    time.Now,
		locks:  make(map[string]*roundLock),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

func (e *Engine) Store() Store { return e.store }

func (e *Engine) lock(k string) func() {
	e.mu.Lock()
	l, ok := e.locks[k]
	if !ok {
		l = &roundLock{}
		e.locks[k] = l
	}
	l.refs++
	e.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		e.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(e.locks, k)
		}
		e.mu.Unlock()
	}
}

// Settle liquida a rodada do book com os dígitos sorteados
// Segunda chamada para a mesma rodada devolve o registro guardado sem mexer no ledger
// Se uma tentativa anterior parou no meio, vale o sorteio dela
func (e *Engine) Settle(ctx context.Context, b *book.Book, digits game.Digits) (Record, error) {
	if err := digits.Validate(); err != nil {
		return Record{}, err
	}
	unlock := e.lock(key(b.RoomID(), b.RoundID()))
	defer unlock()

	if rec, done, err := e.existing(ctx, b); err != nil || done {
		return rec, err
	}
	// créditos parciais já saíram com os dígitos pendentes; o registro tem que bater com eles
	if d, ok := b.Pending(); ok {
		if d != digits {
			e.log.Warn("result differs from interrupted settlement, keeping pending digits",
				zap.String("room", b.RoomID()),
				zap.Int64("round", b.RoundID()),
				zap.String("pending", d.String()),
				zap.String("received", digits.String()),
			)
		}
		digits = d
	}
	return e.settle(ctx, b, digits)
}

// Void anula a rodada e devolve todos os stakes
// Se uma liquidação anterior foi interrompida, ela é concluída com os mesmos dígitos
func (e *Engine) Void(ctx context.Context, b *book.Book, reason string) (Record, error) {
	unlock := e.lock(key(b.RoomID(), b.RoundID()))
	defer unlock()

	if rec, done, err := e.existing(ctx, b); err != nil || done {
		return rec, err
	}
	if d, ok := b.Pending(); ok {
		e.log.Warn("completing interrupted settlement instead of void",
			zap.String("room", b.RoomID()), zap.Int64("round", b.RoundID()))
		return e.settle(ctx, b, d)
	}
	return e.void(ctx, b, reason)
}

func (e *Engine) existing(ctx context.Context, b *book.Book) (Record, bool, error) {
	rec, err := e.store.Get(ctx, b.RoomID(), b.RoundID())
	if err == nil {
		e.duplicate(rec)
		return rec, true, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Record{}, false, fmt.Errorf("load settlement: %w", err)
	}
	return Record{}, false, nil
}

func (e *Engine) duplicate(rec Record) {
	e.log.Warn("duplicate settlement ignored",
		zap.String("room", rec.RoomID), zap.Int64("round", rec.RoundID), zap.String("status", string(rec.Status)))
	if e.OnDuplicate != nil {
		e.OnDuplicate(rec)
	}
}

func (e *Engine) settle(ctx context.Context, b *book.Book, digits game.Digits) (Record, error) {
	wagers, err := b.BeginSettle()
	if err != nil {
		return Record{}, fmt.Errorf("round %d: %w", b.RoundID(), err)
	}

	draw := game.Draw{Digits: digits, Features: game.Classify(digits)}
	rec := Record{
		RoomID:    b.RoomID(),
		RoundID:   b.RoundID(),
		Status:    StatusSettled,
		Draw:      &draw,
		Outcomes:  make([]Outcome, 0, len(wagers)),
		SettledAt: e.now().UTC(),
	}

	credits := newCredits()
	for _, w := range wagers {
		entry, ok := b.Table().Lookup(w.Kind)
		if !ok {
			// a tabela da rodada é a mesma usada na aceitação
			e.log.DPanic("wager kind missing from round table", zap.String("wager", w.ID), zap.String("kind", w.Kind.Code()))
		}
		o := Outcome{
			WagerID:    w.ID,
			PlayerID:   w.PlayerID,
			Kind:       w.Kind,
			Stake:      w.Stake,
			Multiplier: entry.Multiplier,
		}
		rec.TotalStaked += w.Stake
		if ok && game.Wins(w.Kind, draw.Features) {
			o.Won = true
			o.Payout = entry.Payout(w.Stake)
			rec.TotalPaid += o.Payout
			credits.add(w.PlayerID, ledger.Posting{
				Delta:   o.Payout,
				Reason:  ledger.ReasonPayout,
				RoomID:  w.RoomID,
				RoundID: w.RoundID,
				Ref:     fmt.Sprintf("payout:%s:%d:%s", w.RoomID, w.RoundID, w.ID),
			})
		}
		rec.Outcomes = append(rec.Outcomes, o)
	}

	if err := e.apply(ctx, credits); err != nil {
		b.Abort(&digits)
		return Record{}, err
	}
	return e.commit(ctx, b, rec, &digits)
}

func (e *Engine) void(ctx context.Context, b *book.Book, reason string) (Record, error) {
	wagers, err := b.BeginSettle()
	if err != nil {
		return Record{}, fmt.Errorf("round %d: %w", b.RoundID(), err)
	}

	rec := Record{
		RoomID:    b.RoomID(),
		RoundID:   b.RoundID(),
		Status:    StatusVoid,
		Reason:    reason,
		Outcomes:  make([]Outcome, 0, len(wagers)),
		SettledAt: e.now().UTC(),
	}
	credits := newCredits()
	for _, w := range wagers {
		rec.TotalStaked += w.Stake
		rec.TotalRefunded += w.Stake
		rec.Outcomes = append(rec.Outcomes, Outcome{
			WagerID:  w.ID,
			PlayerID: w.PlayerID,
			Kind:     w.Kind,
			Stake:    w.Stake,
			Refunded: true,
		})
		credits.add(w.PlayerID, ledger.Posting{
			Delta:   w.Stake,
			Reason:  ledger.ReasonRefund,
			RoomID:  w.RoomID,
			RoundID: w.RoundID,
			Ref:     fmt.Sprintf("refund:%s:%d:%s", w.RoomID, w.RoundID, w.ID),
		})
	}

	if err := e.apply(ctx, credits); err != nil {
		b.Abort(nil)
		return Record{}, err
	}
	return e.commit(ctx, b, rec, nil)
}

// commit persiste o registro antes de liberar o conjunto de apostas
func (e *Engine) commit(ctx context.Context, b *book.Book, rec Record, digits *game.Digits) (Record, error) {
	stored, created, err := e.store.Save(ctx, rec)
	if err != nil {
		b.Abort(digits)
		return Record{}, fmt.Errorf("save settlement: %w", err)
	}
	b.Finish(stored.Void())
	if !created {
		e.duplicate(stored)
		return stored, nil
	}

	e.log.Info("round settled",
		zap.String("room", stored.RoomID),
		zap.Int64("round", stored.RoundID),
		zap.String("status", string(stored.Status)),
		zap.Int("wagers", len(stored.Outcomes)),
		zap.Int64("staked", stored.TotalStaked),
		zap.Int64("paid", stored.TotalPaid),
		zap.Int64("refunded", stored.TotalRefunded),
	)
	if e.OnSettled != nil {
		e.OnSettled(stored)
	}
	return stored, nil
}

// credits agrupa créditos por jogador preservando a ordem de chegada
type credits struct {
	order []string
	by    map[string][]ledger.Posting
}

func newCredits() *credits { return &credits{by: make(map[string][]ledger.Posting)} }

func (c *credits) add(player string, p ledger.Posting) {
	if _, ok := c.by[player]; !ok {
		c.order = append(c.order, player)
	}
	c.by[player] = append(c.by[player], p)
}

// apply credita cada jogador num lote atômico; refs tornam a repetição segura
func (e *Engine) apply(ctx context.Context, c *credits) error {
	for _, player := range c.order {
		if _, _, err := e.ledger.Apply(ctx, player, c.by[player]...); err != nil {
			return fmt.Errorf("credit %s: %w", player, err)
		}
	}
	return nil
}
