package room

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/radieske/round-wager-engine/internal/book"
	"github.com/radieske/round-wager-engine/internal/game"
	"github.com/radieske/round-wager-engine/internal/odds"
	"github.com/radieske/round-wager-engine/internal/round"
	"github.com/radieske/round-wager-engine/internal/settlement"
)

const (
	reasonTimeout = "result timeout"
	reasonRestart = "interrupted by restart"
)

// Config descreve uma sala
type Config struct {
	ID       string
	Timing   round.Timing
	AutoMute bool
}

// Snapshot é a visão pública da sala
type Snapshot struct {
	RoomID      string      `json:"roomId"`
	RoundID     int64       `json:"roundId"`
	Phase       round.Phase `json:"phase"`
	Deadline    time.Time   `json:"deadline"`
	SealAt      time.Time   `json:"sealAt"`
	Wagers      int         `json:"wagers"`
	Staked      int64       `json:"staked"`
	OddsVersion int64       `json:"oddsVersion"`
	Closed      bool        `json:"closed"`
	Unsettled   []int64     `json:"unsettled,omitempty"`
}

type orphan struct {
	book   *book.Book
	reason string
}

// Room é o dono da rodada corrente de uma sala
// Um único lock serializa tick, resultado e teardown; intake só toca o book
type Room struct {
	log    *zap.Logger
	cfg    Config
	odds   *odds.Holder
	engine *settlement.Engine
	notify Notifier
	now    func() time.Time

	mu      sync.Mutex
	sched   *round.Scheduler
	book    *book.Book
	orphans map[int64]orphan
}

func New(log *zap.Logger, cfg Config, holder *odds.Holder, engine *settlement.Engine, notify Notifier, now func() time.Time) (*Room, error) {
	sched, err := round.New(cfg.ID, cfg.Timing)
	if err != nil {
		return nil, fmt.Errorf("room %s: %w", cfg.ID, err)
	}
	if now == nil {
		now = time.Now
	}
	return &Room{
		log:     log.With(zap.String("room", cfg.ID)),
		cfg:     cfg,
		odds:    holder,
		engine:  engine,
		notify:  notify,
		now:     now,
		sched:   sched,
		orphans: make(map[int64]orphan),
	}, nil
}

func (r *Room) ID() string { return r.cfg.ID }

// batch acumula o que será publicado depois de soltar o lock
type batch struct {
	notices []PhaseNotice
	records []settlement.Record
}

func (r *Room) emit(ctx context.Context, b *batch) {
	if r.notify == nil {
		return
	}
	for _, n := range b.notices {
		if err := r.notify.PhaseChanged(ctx, n); err != nil {
			r.log.Warn("phase notice not delivered", zap.String("event", string(n.Event.Kind)), zap.Error(err))
		}
	}
	for _, rec := range b.records {
		if err := r.notify.RoundSettled(ctx, rec); err != nil {
			r.log.Warn("settlement notice not delivered", zap.Int64("round", rec.RoundID), zap.Error(err))
		}
	}
}

// Start abre a primeira rodada, continuando a numeração da última liquidação guardada
// Apostas de rodadas interrompidas por um restart são devolvidas antes
func (r *Room) Start(ctx context.Context) error {
	out := &batch{}
	defer r.emit(ctx, out)

	recovered, err := r.engine.Recover(ctx, r.cfg.ID, reasonRestart)
	out.records = append(out.records, recovered...)
	if err != nil {
		return fmt.Errorf("recover open rounds: %w", err)
	}
	last, err := r.engine.Store().LastRoundID(ctx, r.cfg.ID)
	if err != nil {
		return fmt.Errorf("last round: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.apply(ctx, r.sched.Start(r.now(), last+1), out)
	r.log.Info("room started", zap.Int64("round", r.sched.Current().ID))
	return nil
}

// Tick processa uma volta completa do relógio
func (r *Room) Tick(ctx context.Context) {
	out := &batch{}
	defer r.emit(ctx, out)
	r.mu.Lock()
	defer r.mu.Unlock()

	r.retryOrphans(ctx, out)
	r.apply(ctx, r.sched.Advance(r.now()), out)
}

// Run é o loop cooperativo da sala: um tick termina antes do próximo começar
func (r *Room) Run(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			r.Tick(ctx)
		}
	}
}

// OpenBook devolve o conjunto de apostas da rodada corrente
func (r *Room) OpenBook() (*book.Book, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sched.Closed() {
		return nil, round.ErrClosed
	}
	if r.book == nil {
		return nil, round.ErrNotStarted
	}
	return r.book, nil
}

// Resolve aplica um resultado à rodada que aguarda resultado nesta sala
// O hint só serve para reconhecer repetição de uma rodada já liquidada
func (r *Room) Resolve(ctx context.Context, hint int64, digits game.Digits) (settlement.Record, error) {
	if err := digits.Validate(); err != nil {
		return settlement.Record{}, err
	}

	out := &batch{}
	defer r.emit(ctx, out)
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	r.apply(ctx, r.sched.Advance(now), out)
	if r.sched.Closed() {
		return settlement.Record{}, round.ErrClosed
	}

	cur := r.sched.Current()
	if hint > 0 && hint != cur.ID {
		rec, err := r.engine.Store().Get(ctx, r.cfg.ID, hint)
		if err == nil {
			r.log.Warn("result for finished round ignored", zap.Int64("hint", hint), zap.String("status", string(rec.Status)))
			return rec, nil
		}
		if !errors.Is(err, settlement.ErrNotFound) {
			return settlement.Record{}, fmt.Errorf("load settlement: %w", err)
		}
		r.log.Warn("result hint does not match current round", zap.Int64("hint", hint), zap.Int64("round", cur.ID))
	}
	if cur.Phase != round.PhaseAwaitingResult {
		return settlement.Record{}, fmt.Errorf("%w: round %d is %s", round.ErrNotAwaiting, cur.ID, cur.Phase)
	}

	rec, err := r.engine.Settle(ctx, r.book, digits)
	if err != nil {
		// book fica Sealed com os dígitos pendentes; repetição ou timeout concluem
		return settlement.Record{}, err
	}
	out.records = append(out.records, rec)

	evs, err := r.sched.Resolve(now)
	r.apply(ctx, evs, out)
	if err != nil {
		return rec, err
	}
	return rec, nil
}

// Teardown é a transição terminal: fecha a sala e devolve as apostas abertas
func (r *Room) Teardown(ctx context.Context, reason string) (settlement.Record, error) {
	out := &batch{}
	defer r.emit(ctx, out)
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sched.Closed() {
		return settlement.Record{}, round.ErrClosed
	}
	r.apply(ctx, r.sched.Close(r.now()), out)
	r.retryOrphans(ctx, out)
	if r.book == nil {
		return settlement.Record{}, nil
	}

	r.book.Seal()
	rec, ok := r.void(ctx, r.book, reason)
	if !ok {
		return settlement.Record{}, fmt.Errorf("room %s: refund pass incomplete", r.cfg.ID)
	}
	out.records = append(out.records, rec)
	r.log.Info("room torn down", zap.String("reason", reason), zap.Int64("refunded", rec.TotalRefunded))
	return rec, nil
}

func (r *Room) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur := r.sched.Current()
	s := Snapshot{
		RoomID:   r.cfg.ID,
		RoundID:  cur.ID,
		Phase:    cur.Phase,
		Deadline: cur.Deadline,
		SealAt:   r.sched.SealAt(),
		Closed:   r.sched.Closed(),
	}
	if t := r.odds.Load(); t != nil {
		s.OddsVersion = t.Version()
	}
	if r.book != nil && !s.Closed {
		s.Wagers = len(r.book.Wagers())
		s.Staked = r.book.Staked()
		s.OddsVersion = r.book.Table().Version()
	}
	for id := range r.orphans {
		s.Unsettled = append(s.Unsettled, id)
	}
	sort.Slice(s.Unsettled, func(i, j int) bool { return s.Unsettled[i] < s.Unsettled[j] })
	return s
}

// apply executa os efeitos de cada transição do scheduler
func (r *Room) apply(ctx context.Context, evs []round.Event, out *batch) {
	for _, ev := range evs {
		n := PhaseNotice{Event: ev}
		switch ev.Kind {
		case round.EventSealed:
			if r.book != nil {
				r.book.Seal()
			}
			n.Mute = r.mute(true)
		case round.EventUnresolved:
			if r.book != nil {
				r.book.Seal()
				r.log.Warn("result not received in time, voiding round", zap.Int64("round", ev.RoundID))
				if rec, ok := r.void(ctx, r.book, reasonTimeout); ok {
					out.records = append(out.records, rec)
				}
			}
		case round.EventOpened:
			sealAt := ev.Deadline.Add(-r.sched.Timing().SealOffset)
			// snapshot da tabela: um reload só vale a partir da próxima rodada
			r.book = book.New(r.cfg.ID, ev.RoundID, sealAt, r.odds.Load())
			n.Mute = r.mute(false)
		}
		out.notices = append(out.notices, n)
	}
}

func (r *Room) mute(v bool) *bool {
	if !r.cfg.AutoMute {
		return nil
	}
	return &v
}

// void anula a rodada; em caso de falha guarda o book para nova tentativa
func (r *Room) void(ctx context.Context, b *book.Book, reason string) (settlement.Record, bool) {
	rec, err := r.engine.Void(ctx, b, reason)
	if err != nil {
		r.log.Error("void failed, will retry", zap.Int64("round", b.RoundID()), zap.Error(err))
		r.orphans[b.RoundID()] = orphan{book: b, reason: reason}
		return settlement.Record{}, false
	}
	delete(r.orphans, b.RoundID())
	return rec, true
}

func (r *Room) retryOrphans(ctx context.Context, out *batch) {
	for _, o := range r.orphans {
		if rec, ok := r.void(ctx, o.book, o.reason); ok {
			out.records = append(out.records, rec)
		}
	}
}
