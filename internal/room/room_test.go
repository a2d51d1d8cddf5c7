package room

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/radieske/round-wager-engine/internal/book"
	"github.com/radieske/round-wager-engine/internal/game"
	"github.com/radieske/round-wager-engine/internal/intake"
	"github.com/radieske/round-wager-engine/internal/ledger"
	"github.com/radieske/round-wager-engine/internal/odds"
	"github.com/radieske/round-wager-engine/internal/round"
	"github.com/radieske/round-wager-engine/internal/settlement"
)

var t0 = time.Date(2026, 5, 10, 8, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t0.Add(d)
}

type recorder struct {
	mu      sync.Mutex
	notices []PhaseNotice
	records []settlement.Record
}

func (r *recorder) PhaseChanged(_ context.Context, n PhaseNotice) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, n)
	return nil
}

func (r *recorder) RoundSettled(_ context.Context, rec settlement.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec)
	return nil
}

func (r *recorder) kinds() []round.EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]round.EventKind, 0, len(r.notices))
	for _, n := range r.notices {
		out = append(out, n.Event.Kind)
	}
	return out
}

type harness struct {
	clock   *fakeClock
	ledger  *ledger.Ledger
	store   *settlement.MemoryStore
	holder  *odds.Holder
	rec     *recorder
	manager *Manager
	intake  *intake.Service
}

func newHarness(t *testing.T, opts ...ManagerOption) *harness {
	t.Helper()
	h := &harness{
		clock:  &fakeClock{now: t0},
		ledger: ledger.New(zap.NewNop()),
		store:  settlement.NewMemoryStore(),
		holder: odds.NewHolder(odds.Default()),
		rec:    &recorder{},
	}
	engine := settlement.NewEngine(zap.NewNop(), h.ledger, h.store, settlement.WithClock(h.clock.Now))
	opts = append([]ManagerOption{WithTick(0), WithClock(h.clock.Now)}, opts...)
	h.manager = NewManager(zap.NewNop(), h.holder, engine, h.rec, opts...)
	h.intake = intake.NewService(zap.NewNop(), h.manager, h.ledger, intake.WithClock(h.clock.Now))

	_, err := h.ledger.Deposit(context.Background(), "A", 10000, "seed")
	require.NoError(t, err)
	return h
}

func (h *harness) open(t *testing.T, id string) *Room {
	t.Helper()
	r, err := h.manager.Open(context.Background(), id)
	require.NoError(t, err)
	return r
}

func TestRoomScenario(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	r := h.open(t, "room-1")
	assert.Equal(t, int64(1), r.Snapshot().RoundID)

	c, err := h.intake.Submit(ctx, "A", "room-1", "big500 small-odd300")
	require.NoError(t, err)
	assert.Equal(t, int64(9200), c.Balance)
	assert.Len(t, c.Wagers, 2)

	h.clock.Set(211 * time.Second)
	r.Tick(ctx)
	assert.Equal(t, round.PhaseAwaitingResult, r.Snapshot().Phase)

	rec, err := h.manager.Resolve(ctx, "room-1", 1, game.Digits{9, 8, 6})
	require.NoError(t, err)
	assert.Equal(t, int64(800), rec.TotalStaked)
	assert.Equal(t, int64(975), rec.TotalPaid)
	assert.Equal(t, int64(10175), h.ledger.Balance("A"))

	snap := r.Snapshot()
	assert.Equal(t, int64(2), snap.RoundID)
	assert.Equal(t, round.PhaseAccepting, snap.Phase)
	assert.Equal(t, 0, snap.Wagers)

	assert.Equal(t, []round.EventKind{
		round.EventOpened,
		round.EventReminder, round.EventSealed, round.EventRuleBroadcast, round.EventAwaitingResult,
		round.EventResolved, round.EventOpened,
	}, h.rec.kinds())
	require.Len(t, h.rec.records, 1)
	assert.Equal(t, settlement.StatusSettled, h.rec.records[0].Status)
	assert.NoError(t, h.ledger.Reconcile())
}

func TestRoomSilentFeedVoids(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	r := h.open(t, "room-1")

	_, err := h.intake.Submit(ctx, "A", "room-1", "big500 small-odd300")
	require.NoError(t, err)

	h.clock.Set(210*time.Second + 120*time.Second)
	r.Tick(ctx)

	assert.Equal(t, int64(10000), h.ledger.Balance("A"))
	stored, err := h.store.Get(ctx, "room-1", 1)
	require.NoError(t, err)
	assert.True(t, stored.Void())
	assert.Equal(t, "result timeout", stored.Reason)
	assert.Equal(t, int64(800), stored.TotalRefunded)
	assert.Equal(t, int64(2), r.Snapshot().RoundID)
	assert.Contains(t, h.rec.kinds(), round.EventUnresolved)

	// resultado atrasado com hint da rodada anulada devolve o registro VOID
	late, err := h.manager.Resolve(ctx, "room-1", 1, game.Digits{9, 8, 6})
	require.NoError(t, err)
	assert.True(t, late.Void())
	assert.Equal(t, int64(10000), h.ledger.Balance("A"))

	// sem hint cai na rodada nova, que ainda aceita apostas
	_, err = h.manager.Resolve(ctx, "room-1", 0, game.Digits{9, 8, 6})
	assert.ErrorIs(t, err, round.ErrNotAwaiting)
}

func TestRoomDuplicateResult(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	r := h.open(t, "room-1")
	_, err := h.intake.Submit(ctx, "A", "room-1", "big500")
	require.NoError(t, err)

	h.clock.Set(215 * time.Second)
	first, err := h.manager.Resolve(ctx, "room-1", 1, game.Digits{9, 8, 6})
	require.NoError(t, err)
	balance := h.ledger.Balance("A")

	second, err := h.manager.Resolve(ctx, "room-1", 1, game.Digits{9, 8, 6})
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, balance, h.ledger.Balance("A"))
	assert.Len(t, h.rec.records, 1)
	assert.Equal(t, int64(2), r.Snapshot().RoundID)
}

func TestRoomResultBeforeAwaiting(t *testing.T) {
	h := newHarness(t)
	h.open(t, "room-1")
	h.clock.Set(100 * time.Second)
	_, err := h.manager.Resolve(context.Background(), "room-1", 0, game.Digits{1, 2, 3})
	assert.ErrorIs(t, err, round.ErrNotAwaiting)

	_, err = h.manager.Resolve(context.Background(), "room-1", 0, game.Digits{1, 2, 10})
	assert.ErrorIs(t, err, game.ErrInvalidDigits)
}

func TestRoomTeardownRefunds(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	r := h.open(t, "room-1")
	_, err := h.intake.Submit(ctx, "A", "room-1", "big500 odd100")
	require.NoError(t, err)

	// teardown depois do selo também devolve tudo
	h.clock.Set(185 * time.Second)
	r.Tick(ctx)

	rec, err := h.manager.Teardown(ctx, "room-1", "teardown")
	require.NoError(t, err)
	assert.True(t, rec.Void())
	assert.Equal(t, int64(600), rec.TotalRefunded)
	assert.Equal(t, int64(10000), h.ledger.Balance("A"))
	assert.True(t, r.Snapshot().Closed)
	assert.Contains(t, h.rec.kinds(), round.EventClosed)

	_, err = h.intake.Submit(ctx, "A", "room-1", "big100")
	assert.ErrorIs(t, err, intake.ErrRoundNotFound)

	_, err = h.manager.Teardown(ctx, "room-1", "again")
	assert.ErrorIs(t, err, round.ErrClosed)
	_, err = h.manager.Teardown(ctx, "room-9", "x")
	assert.ErrorIs(t, err, ErrRoomNotFound)
}

func TestRoomAutoMute(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, WithAutoMute(true))
	r := h.open(t, "room-1")
	h.clock.Set(185 * time.Second)
	r.Tick(ctx)
	h.clock.Set(215 * time.Second)
	_, err := r.Resolve(ctx, 0, game.Digits{1, 1, 1})
	require.NoError(t, err)

	mutes := map[round.EventKind][]bool{}
	for _, n := range h.rec.notices {
		if n.Mute != nil {
			mutes[n.Event.Kind] = append(mutes[n.Event.Kind], *n.Mute)
		}
	}
	assert.Equal(t, []bool{true}, mutes[round.EventSealed])
	assert.Equal(t, []bool{false, false}, mutes[round.EventOpened])
	assert.NotContains(t, mutes, round.EventReminder)
}

func TestRoomResumesRoundNumbering(t *testing.T) {
	h := newHarness(t)
	_, _, err := h.store.Save(context.Background(), settlement.Record{RoomID: "room-1", RoundID: 7, Status: settlement.StatusSettled})
	require.NoError(t, err)

	r := h.open(t, "room-1")
	assert.Equal(t, int64(8), r.Snapshot().RoundID)

	_, err = h.manager.Open(context.Background(), "room-1")
	assert.ErrorIs(t, err, ErrRoomExists)
}

func TestRoomRestartRefundsOpenRound(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.open(t, "room-1")
	_, err := h.intake.Submit(ctx, "A", "room-1", "big500")
	require.NoError(t, err)
	require.Equal(t, int64(9500), h.ledger.Balance("A"))

	// novo processo sobre o mesmo ledger e store; o book da rodada 1 se perdeu
	rec := &recorder{}
	engine := settlement.NewEngine(zap.NewNop(), h.ledger, h.store, settlement.WithClock(h.clock.Now), settlement.WithHistory(h.ledger))
	m := NewManager(zap.NewNop(), h.holder, engine, rec, WithTick(0), WithClock(h.clock.Now))
	r, err := m.Open(ctx, "room-1")
	require.NoError(t, err)

	assert.Equal(t, int64(2), r.Snapshot().RoundID)
	assert.Equal(t, int64(10000), h.ledger.Balance("A"))
	stored, err := h.store.Get(ctx, "room-1", 1)
	require.NoError(t, err)
	assert.True(t, stored.Void())
	assert.Equal(t, "interrupted by restart", stored.Reason)
	require.Len(t, rec.records, 1)
	assert.Equal(t, []round.EventKind{round.EventOpened}, rec.kinds())
}

func TestRoomOddsReloadAppliesNextRound(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	r := h.open(t, "room-1")

	next, err := odds.NewTable(2, odds.DefaultMaxTotalStake, odds.Default().Entries())
	require.NoError(t, err)
	assert.True(t, h.holder.Swap(next))

	b, err := h.manager.OpenBook("room-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), b.Table().Version())

	h.clock.Set(215 * time.Second)
	_, err = r.Resolve(ctx, 0, game.Digits{4, 5, 6})
	require.NoError(t, err)

	b, err = h.manager.OpenBook("room-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), b.Table().Version())
	assert.Equal(t, book.StateOpen, b.State())
}

func TestManagerRooms(t *testing.T) {
	h := newHarness(t)
	h.open(t, "b")
	h.open(t, "a")
	snaps := h.manager.Rooms()
	require.Len(t, snaps, 2)
	assert.Equal(t, "a", snaps[0].RoomID)
	assert.Equal(t, "b", snaps[1].RoomID)

	_, err := h.manager.OpenBook("c")
	assert.ErrorIs(t, err, ErrRoomNotFound)
}

func TestDispatcherDeliversInOrder(t *testing.T) {
	a, b := &recorder{}, &recorder{}
	d := NewDispatcher(zap.NewNop(), 4, a, b)
	ctx := context.Background()

	require.NoError(t, d.PhaseChanged(ctx, PhaseNotice{Event: round.Event{Kind: round.EventSealed}}))
	require.NoError(t, d.RoundSettled(ctx, settlement.Record{RoundID: 3}))

	runCtx, cancel := context.WithCancel(ctx)
	cancel()
	d.Run(runCtx)

	for _, r := range []*recorder{a, b} {
		assert.Equal(t, []round.EventKind{round.EventSealed}, r.kinds())
		require.Len(t, r.records, 1)
		assert.Equal(t, int64(3), r.records[0].RoundID)
	}
}

func TestDispatcherQueueFull(t *testing.T) {
	var dropped int
	d := NewDispatcher(zap.NewNop(), 1)
	d.OnDropped = func() { dropped++ }
	ctx := context.Background()
	require.NoError(t, d.RoundSettled(ctx, settlement.Record{}))
	assert.ErrorIs(t, d.RoundSettled(ctx, settlement.Record{}), ErrQueueFull)
	assert.Equal(t, 1, dropped)
}
