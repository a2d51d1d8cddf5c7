package simulator

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/radieske/round-wager-engine/internal/game"
	"github.com/radieske/round-wager-engine/pkg/contracts/events"
)

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func newSim(w MessageWriter, drop int) (*Simulator, *[]time.Duration) {
	s := New(zap.NewNop(), w, "result-simulator", 2*time.Second, drop)
	s.rnd = rand.New(rand.NewSource(1))
	var delays []time.Duration
	s.after = func(d time.Duration, f func()) {
		delays = append(delays, d)
		f()
	}
	return s, &delays
}

func phase(t *testing.T, event string, round int64) kafka.Message {
	t.Helper()
	b, err := json.Marshal(events.PhaseChanged{RoomID: "room-1", RoundID: round, Event: event})
	require.NoError(t, err)
	return kafka.Message{Value: b}
}

func TestHandlePublishesOnAwaitingResult(t *testing.T) {
	w := &fakeWriter{}
	s, delays := newSim(w, 0)
	var published int
	s.OnPublished = func() { published++ }

	ctx := context.Background()
	require.NoError(t, s.Handle(ctx, phase(t, "SEALED", 4)))
	require.NoError(t, s.Handle(ctx, phase(t, "AWAITING_RESULT", 4)))
	s.Wait()

	require.Len(t, w.msgs, 1)
	assert.Equal(t, "room-1", string(w.msgs[0].Key))
	var ev events.RoundResult
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &ev))
	assert.Equal(t, int64(4), ev.RoundIDHint)
	assert.Equal(t, "result-simulator", ev.Source)
	_, err := game.DigitsFrom(ev.Digits)
	assert.NoError(t, err)

	require.Len(t, *delays, 1)
	assert.LessOrEqual(t, (*delays)[0], 2*time.Second)
	assert.Equal(t, 1, published)
}

func TestHandleDropsEverything(t *testing.T) {
	w := &fakeWriter{}
	s, _ := newSim(w, 100)
	var dropped int
	s.OnDropped = func() { dropped++ }

	for i := int64(1); i <= 5; i++ {
		require.NoError(t, s.Handle(context.Background(), phase(t, "AWAITING_RESULT", i)))
	}
	assert.Empty(t, w.msgs)
	assert.Equal(t, 5, dropped)
}

func TestHandleBadPayload(t *testing.T) {
	s, _ := newSim(&fakeWriter{}, 0)
	assert.Error(t, s.Handle(context.Background(), kafka.Message{Value: []byte("nope")}))
}

func TestPublishError(t *testing.T) {
	s, _ := newSim(&fakeWriter{err: errors.New("broker down")}, 0)
	assert.Error(t, s.Publish(context.Background(), "room-1", 1))
}

func TestDrawInRange(t *testing.T) {
	s, _ := newSim(&fakeWriter{}, 0)
	for i := 0; i < 200; i++ {
		assert.NoError(t, s.Draw().Validate())
	}
}
