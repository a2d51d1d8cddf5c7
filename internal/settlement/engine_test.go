package settlement

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/radieske/round-wager-engine/internal/book"
	"github.com/radieske/round-wager-engine/internal/game"
	"github.com/radieske/round-wager-engine/internal/ledger"
	"github.com/radieske/round-wager-engine/internal/odds"
)

var t0 = time.Date(2026, 5, 10, 8, 0, 0, 0, time.UTC)

func clock() time.Time { return t0 }

type stakeSeed struct {
	player string
	kind   game.Kind
	stake  int64
}

// seed cria um book com as apostas já debitadas no ledger
func seed(t *testing.T, l *ledger.Ledger, seeds ...stakeSeed) *book.Book {
	t.Helper()
	ctx := context.Background()
	b := book.New("room-1", 42, t0.Add(time.Minute), odds.Default())
	require.NoError(t, b.Place(t0, func(tx *book.Tx) error {
		for i, s := range seeds {
			id := s.player + "-" + s.kind.Code()
			txns, _, err := l.Apply(ctx, s.player, ledger.Posting{
				Delta: -s.stake, Reason: ledger.ReasonWager, RoomID: "room-1", RoundID: 42, Ref: "wager:" + id,
			})
			require.NoError(t, err, i)
			tx.Add(book.Wager{
				ID: id, RoomID: "room-1", RoundID: 42, PlayerID: s.player, Kind: s.kind,
				Stake: s.stake, PlacedAt: t0, ReservationTxnID: txns[0].ID,
			})
		}
		return nil
	}))
	b.Seal()
	return b
}

func newLedger(t *testing.T, balances map[string]int64) *ledger.Ledger {
	t.Helper()
	l := ledger.New(zap.NewNop())
	for p, v := range balances {
		_, err := l.Deposit(context.Background(), p, v, "seed")
		require.NoError(t, err)
	}
	return l
}

func TestSettleScenario(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t, map[string]int64{"A": 10000})
	b := seed(t, l, stakeSeed{"A", game.KindBig, 500}, stakeSeed{"A", game.KindSmallOdd, 300})
	assert.Equal(t, int64(9200), l.Balance("A"))

	var settled []Record
	e := NewEngine(zap.NewNop(), l, NewMemoryStore(), WithClock(clock))
	e.OnSettled = func(r Record) { settled = append(settled, r) }

	rec, err := e.Settle(ctx, b, game.Digits{9, 8, 6})
	require.NoError(t, err)

	assert.Equal(t, int64(10175), l.Balance("A"))
	assert.Equal(t, StatusSettled, rec.Status)
	assert.Equal(t, int64(800), rec.TotalStaked)
	assert.Equal(t, int64(975), rec.TotalPaid)
	require.Len(t, rec.Outcomes, 2)
	assert.True(t, rec.Outcomes[0].Won)
	assert.Equal(t, int64(975), rec.Outcomes[0].Payout)
	assert.False(t, rec.Outcomes[1].Won)
	assert.Equal(t, int64(0), rec.Outcomes[1].Payout)
	require.NotNil(t, rec.Draw)
	assert.Equal(t, 23, rec.Draw.Features.Sum)

	assert.Equal(t, book.StateSettled, b.State())
	assert.Empty(t, b.Wagers())
	assert.Len(t, settled, 1)
	assert.NoError(t, l.Reconcile())
}

func TestSettleIsIdempotent(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t, map[string]int64{"A": 10000})
	b := seed(t, l, stakeSeed{"A", game.KindBig, 500})

	var dups int
	e := NewEngine(zap.NewNop(), l, NewMemoryStore(), WithClock(clock))
	e.OnDuplicate = func(Record) { dups++ }

	first, err := e.Settle(ctx, b, game.Digits{9, 8, 6})
	require.NoError(t, err)
	balance := l.Balance("A")

	second, err := e.Settle(ctx, b, game.Digits{9, 8, 6})
	require.NoError(t, err)
	assert.Equal(t, balance, l.Balance("A"))
	assert.Equal(t, 1, dups)

	b1, _ := json.Marshal(first)
	b2, _ := json.Marshal(second)
	assert.Equal(t, string(b1), string(b2))

	// resultado diferente também não liquida de novo
	third, err := e.Settle(ctx, b, game.Digits{0, 0, 0})
	require.NoError(t, err)
	assert.Equal(t, first.Draw.Digits, third.Draw.Digits)
	assert.Equal(t, balance, l.Balance("A"))
}

func TestConcurrentSettleCreditsOnce(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t, map[string]int64{"A": 10000, "B": 5000})
	b := seed(t, l, stakeSeed{"A", game.KindBig, 500}, stakeSeed{"B", game.KindOdd, 1000})

	var settledCount atomic.Int32
	e := NewEngine(zap.NewNop(), l, NewMemoryStore(), WithClock(clock))
	e.OnSettled = func(Record) { settledCount.Add(1) }

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.Settle(ctx, b, game.Digits{9, 8, 6})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), settledCount.Load())
	assert.Equal(t, int64(9500+975), l.Balance("A"))
	assert.Equal(t, int64(4000+1950), l.Balance("B"))
}

func TestVoidRefundsEveryStake(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t, map[string]int64{"A": 10000, "B": 300})
	b := seed(t, l, stakeSeed{"A", game.KindBig, 500}, stakeSeed{"A", game.KindSmallOdd, 300}, stakeSeed{"B", game.KindTriple, 100})

	e := NewEngine(zap.NewNop(), l, NewMemoryStore(), WithClock(clock))
	rec, err := e.Void(ctx, b, "result timeout")
	require.NoError(t, err)

	assert.True(t, rec.Void())
	assert.Nil(t, rec.Draw)
	assert.Equal(t, int64(900), rec.TotalStaked)
	assert.Equal(t, int64(900), rec.TotalRefunded)
	assert.Equal(t, int64(0), rec.TotalPaid)
	assert.Equal(t, int64(10000), l.Balance("A"))
	assert.Equal(t, int64(300), l.Balance("B"))
	assert.Equal(t, book.StateVoided, b.State())

	// resultado atrasado depois do void não altera nada
	late, err := e.Settle(ctx, b, game.Digits{9, 8, 6})
	require.NoError(t, err)
	assert.True(t, late.Void())
	assert.Equal(t, int64(10000), l.Balance("A"))
}

// flakyLedger falha na primeira tentativa de creditar um jogador
type flakyLedger struct {
	*ledger.Ledger
	failFor string
	failed  bool
}

func (f *flakyLedger) Apply(ctx context.Context, player string, p ...ledger.Posting) ([]ledger.Transaction, int64, error) {
	if player == f.failFor && !f.failed {
		f.failed = true
		return nil, 0, errors.New("journal unavailable")
	}
	return f.Ledger.Apply(ctx, player, p...)
}

func TestInterruptedSettlementRetriesSafely(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t, map[string]int64{"A": 1000, "B": 1000})
	b := seed(t, l, stakeSeed{"A", game.KindBig, 100}, stakeSeed{"B", game.KindBig, 100})
	fl := &flakyLedger{Ledger: l, failFor: "B"}

	e := NewEngine(zap.NewNop(), fl, NewMemoryStore(), WithClock(clock))
	_, err := e.Settle(ctx, b, game.Digits{9, 8, 6})
	require.Error(t, err)
	assert.Equal(t, book.StateSealed, b.State())
	assert.Equal(t, int64(900+195), l.Balance("A"))

	// force-advance chega antes do resultado repetido: completa com os mesmos dígitos
	rec, err := e.Void(ctx, b, "result timeout")
	require.NoError(t, err)
	assert.Equal(t, StatusSettled, rec.Status)
	assert.Equal(t, int64(900+195), l.Balance("A"))
	assert.Equal(t, int64(900+195), l.Balance("B"))
	assert.NoError(t, l.Reconcile())
}

func TestSettleRetryKeepsInterruptedDraw(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t, map[string]int64{"A": 1000, "B": 1000, "C": 1000})
	b := seed(t, l, stakeSeed{"A", game.KindBig, 100}, stakeSeed{"B", game.KindBig, 100}, stakeSeed{"C", game.KindSmall, 100})
	fl := &flakyLedger{Ledger: l, failFor: "B"}

	e := NewEngine(zap.NewNop(), fl, NewMemoryStore(), WithClock(clock))
	_, err := e.Settle(ctx, b, game.Digits{9, 8, 6})
	require.Error(t, err)
	assert.Equal(t, int64(900+195), l.Balance("A"))

	// resultado repetido com outros dígitos não pode reescrever o sorteio
	rec, err := e.Settle(ctx, b, game.Digits{1, 2, 0})
	require.NoError(t, err)
	require.NotNil(t, rec.Draw)
	assert.Equal(t, game.Digits{9, 8, 6}, rec.Draw.Digits)
	assert.Equal(t, int64(390), rec.TotalPaid)
	for _, o := range rec.Outcomes {
		assert.Equal(t, o.PlayerID != "C", o.Won, o.PlayerID)
	}
	assert.Equal(t, int64(900+195), l.Balance("A"))
	assert.Equal(t, int64(900+195), l.Balance("B"))
	assert.Equal(t, int64(900), l.Balance("C"))
	assert.NoError(t, l.Reconcile())
}

func TestSettleRejectsBadDigits(t *testing.T) {
	l := newLedger(t, nil)
	b := seed(t, l)
	e := NewEngine(zap.NewNop(), l, NewMemoryStore())
	_, err := e.Settle(context.Background(), b, game.Digits{1, 2, 12})
	assert.ErrorIs(t, err, game.ErrInvalidDigits)
	assert.Equal(t, book.StateSealed, b.State())
}

func TestBill(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t, map[string]int64{"A": 10000})
	b := seed(t, l, stakeSeed{"A", game.KindBig, 500}, stakeSeed{"A", game.KindSmallOdd, 300})
	e := NewEngine(zap.NewNop(), l, NewMemoryStore(), WithClock(clock))
	rec, err := e.Settle(ctx, b, game.Digits{9, 8, 6})
	require.NoError(t, err)

	want := "Round 42 | 9 + 8 + 6 = 23 big odd near-run\n" +
		"staked 800 | paid 975\n" +
		"A big 500 -> 975\n" +
		"A small-odd 300 -> 0"
	assert.Equal(t, want, Bill(rec))

	void := Record{RoundID: 43, Status: StatusVoid, Reason: "teardown", TotalStaked: 50, TotalRefunded: 50,
		Outcomes: []Outcome{{PlayerID: "B", Kind: game.KindOdd, Stake: 50, Refunded: true}}}
	assert.Equal(t, "Round 43 | VOID (teardown)\nstaked 50 | refunded 50\nB odd 50 -> refund 50", Bill(void))
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	_, err := s.Get(ctx, "r", 1)
	assert.ErrorIs(t, err, ErrNotFound)

	_, created, err := s.Save(ctx, Record{RoomID: "r", RoundID: 5, Status: StatusSettled})
	require.NoError(t, err)
	assert.True(t, created)
	stored, created, err := s.Save(ctx, Record{RoomID: "r", RoundID: 5, Status: StatusVoid})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, StatusSettled, stored.Status)

	last, err := s.LastRoundID(ctx, "r")
	require.NoError(t, err)
	assert.Equal(t, int64(5), last)
}
