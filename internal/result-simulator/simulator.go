package simulator

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/radieske/round-wager-engine/internal/game"
	"github.com/radieske/round-wager-engine/internal/round"
	"github.com/radieske/round-wager-engine/pkg/contracts/events"
)

type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// Simulator faz o papel do feed externo de resultados
// Reage a AWAITING_RESULT publicando três dígitos para a sala depois de um atraso aleatório
type Simulator struct {
	Log         *zap.Logger
	Writer      MessageWriter
	Source      string
	MaxDelay    time.Duration
	DropPercent int // 0..100

	OnPublished func()
	OnDropped   func()

	mu    sync.Mutex
	rnd   *rand.Rand
	wg    sync.WaitGroup
	after func(d time.Duration, f func())
}

func New(log *zap.Logger, w MessageWriter, source string, maxDelay time.Duration, dropPercent int) *Simulator {
	return &Simulator{
		Log:         log,
		Writer:      w,
		Source:      source,
		MaxDelay:    maxDelay,
		DropPercent: dropPercent,
		rnd:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Draw sorteia os dígitos de uma rodada
func (s *Simulator) Draw() game.Digits {
	s.mu.Lock()
	defer s.mu.Unlock()
	return game.Digits{uint8(s.rnd.Intn(10)), uint8(s.rnd.Intn(10)), uint8(s.rnd.Intn(10))}
}

func (s *Simulator) intn(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rnd.Intn(n)
}

// Handle consome um aviso de fase; outros eventos são ignorados
func (s *Simulator) Handle(ctx context.Context, m kafka.Message) error {
	var ev events.PhaseChanged
	if err := json.Unmarshal(m.Value, &ev); err != nil {
		return fmt.Errorf("decode phase event: %w", err)
	}
	if ev.Event != string(round.EventAwaitingResult) {
		return nil
	}
	if s.DropPercent > 0 && s.intn(100) < s.DropPercent {
		s.Log.Info("result withheld", zap.String("room", ev.RoomID), zap.Int64("round", ev.RoundID))
		if s.OnDropped != nil {
			s.OnDropped()
		}
		return nil
	}

	var delay time.Duration
	if s.MaxDelay > 0 {
		delay = time.Duration(s.intn(int(s.MaxDelay/time.Millisecond)+1)) * time.Millisecond
	}
	s.wg.Add(1)
	s.schedule(delay, func() {
		defer s.wg.Done()
		if ctx.Err() != nil {
			return
		}
		if err := s.Publish(ctx, ev.RoomID, ev.RoundID); err != nil {
			s.Log.Warn("result publish failed", zap.String("room", ev.RoomID), zap.Error(err))
		}
	})
	return nil
}

// Publish envia um resultado para a sala; roundID vai como dica
func (s *Simulator) Publish(ctx context.Context, roomID string, roundID int64) error {
	d := s.Draw()
	out := events.RoundResult{
		RoomID:      roomID,
		RoundIDHint: roundID,
		Digits:      []int{int(d[0]), int(d[1]), int(d[2])},
		ObservedAt:  time.Now().UTC(),
		Source:      s.Source,
	}
	b, err := json.Marshal(out)
	if err != nil {
		return err
	}
	// chave = sala: mantém a ordem por sala
	if err := s.Writer.WriteMessages(ctx, kafka.Message{Key: []byte(roomID), Value: b, Time: out.ObservedAt}); err != nil {
		return err
	}
	s.Log.Info("result published",
		zap.String("room", roomID),
		zap.Int64("round", roundID),
		zap.String("digits", d.String()),
	)
	if s.OnPublished != nil {
		s.OnPublished()
	}
	return nil
}

// Wait aguarda os resultados agendados
func (s *Simulator) Wait() { s.wg.Wait() }

func (s *Simulator) schedule(d time.Duration, f func()) {
	if s.after != nil {
		s.after(d, f)
		return
	}
	time.AfterFunc(d, f)
}
