package book

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radieske/round-wager-engine/internal/game"
	"github.com/radieske/round-wager-engine/internal/odds"
)

var t0 = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

func newBook() *Book { return New("room-1", 7, t0.Add(190*time.Second), odds.Default()) }

func TestPlaceGate(t *testing.T) {
	b := newBook()
	add := func(tx *Tx) error {
		tx.Add(Wager{ID: "w", PlayerID: "p1", Kind: game.KindBig, Stake: 100})
		return nil
	}

	require.NoError(t, b.Place(b.SealAt().Add(-time.Second), add))
	assert.ErrorIs(t, b.Place(b.SealAt(), add), ErrClosed)
	assert.ErrorIs(t, b.Place(b.SealAt().Add(time.Second), add), ErrClosed)

	b.Seal()
	assert.ErrorIs(t, b.Place(t0, add), ErrClosed)
	assert.Equal(t, StateSealed, b.State())
	assert.Len(t, b.Wagers(), 1)
}

func TestPlaceRollsBackOnError(t *testing.T) {
	b := newBook()
	require.NoError(t, b.Place(t0, func(tx *Tx) error {
		tx.Add(Wager{ID: "w1", PlayerID: "p1", Kind: game.KindBig, Stake: 100})
		return nil
	}))

	boom := errors.New("boom")
	err := b.Place(t0, func(tx *Tx) error {
		removed := tx.Withdraw("p1", game.KindBig)
		assert.Len(t, removed, 1)
		tx.Add(Wager{ID: "w2", PlayerID: "p1", Kind: game.KindSmall, Stake: 50})
		return boom
	})
	assert.ErrorIs(t, err, boom)

	ws := b.Wagers()
	require.Len(t, ws, 1)
	assert.Equal(t, "w1", ws[0].ID)
	assert.Equal(t, int64(100), b.Staked())
}

func TestRememberedMessagesFollowRollback(t *testing.T) {
	b := newBook()
	boom := errors.New("boom")
	err := b.Place(t0, func(tx *Tx) error {
		tx.Remember("m1")
		return boom
	})
	assert.ErrorIs(t, err, boom)

	require.NoError(t, b.Place(t0, func(tx *Tx) error {
		assert.False(t, tx.Seen("m1"))
		tx.Remember("m1")
		return nil
	}))
	require.NoError(t, b.Place(t0, func(tx *Tx) error {
		assert.True(t, tx.Seen("m1"))
		assert.False(t, tx.Seen("m2"))
		return nil
	}))
}

func TestSettleLifecycle(t *testing.T) {
	b := newBook()
	_ = b.Place(t0, func(tx *Tx) error {
		tx.Add(Wager{ID: "w1", PlayerID: "p1", Kind: game.KindBig, Stake: 100})
		tx.Add(Wager{ID: "w2", PlayerID: "p2", Kind: game.KindOdd, Stake: 40})
		assert.Len(t, tx.Stakes("p1"), 1)
		return nil
	})
	b.Seal()

	ws, err := b.BeginSettle()
	require.NoError(t, err)
	assert.Len(t, ws, 2)

	_, err = b.BeginSettle()
	assert.ErrorIs(t, err, ErrSettling)

	d := game.Digits{1, 2, 3}
	b.Abort(&d)
	assert.Equal(t, StateSealed, b.State())
	pending, ok := b.Pending()
	require.True(t, ok)
	assert.Equal(t, d, pending)

	_, err = b.BeginSettle()
	require.NoError(t, err)
	b.Finish(false)
	assert.Equal(t, StateSettled, b.State())
	assert.Empty(t, b.Wagers())
	_, ok = b.Pending()
	assert.False(t, ok)

	_, err = b.BeginSettle()
	assert.ErrorIs(t, err, ErrFinished)
}

func TestFinishVoid(t *testing.T) {
	b := newBook()
	_, err := b.BeginSettle()
	require.NoError(t, err)
	b.Finish(true)
	assert.Equal(t, StateVoided, b.State())
}
