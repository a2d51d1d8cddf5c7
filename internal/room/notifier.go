package room

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/radieske/round-wager-engine/internal/round"
	"github.com/radieske/round-wager-engine/internal/settlement"
)

var ErrQueueFull = errors.New("dispatch queue full")

// PhaseNotice é a transição de fase entregue ao transporte
// Mute é nil quando a sala não usa silêncio automático
type PhaseNotice struct {
	Event round.Event
	Mute  *bool
}

// Notifier recebe as transições e liquidações das salas
type Notifier interface {
	PhaseChanged(ctx context.Context, n PhaseNotice) error
	RoundSettled(ctx context.Context, rec settlement.Record) error
}

type notice struct {
	phase  *PhaseNotice
	record *settlement.Record
}

// Dispatcher desacopla o loop da sala dos sinks lentos (Kafka, Redis)
// Entrega na ordem de chegada para todos os sinks
type Dispatcher struct {
	log   *zap.Logger
	sinks []Notifier
	queue chan notice

	OnDropped func()
}

func NewDispatcher(log *zap.Logger, buffer int, sinks ...Notifier) *Dispatcher {
	if buffer <= 0 {
		buffer = 256
	}
	return &Dispatcher{log: log, sinks: sinks, queue: make(chan notice, buffer)}
}

func (d *Dispatcher) PhaseChanged(_ context.Context, n PhaseNotice) error {
	return d.enqueue(notice{phase: &n})
}

func (d *Dispatcher) RoundSettled(_ context.Context, rec settlement.Record) error {
	return d.enqueue(notice{record: &rec})
}

func (d *Dispatcher) enqueue(n notice) error {
	select {
	case d.queue <- n:
		return nil
	default:
		d.log.Warn("dispatch queue full, dropping notice")
		if d.OnDropped != nil {
			d.OnDropped()
		}
		return ErrQueueFull
	}
}

// Run entrega os avisos até o ctx ser cancelado; o que sobrou na fila é drenado antes de sair
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case n := <-d.queue:
					d.deliver(context.Background(), n)
				default:
					return
				}
			}
		case n := <-d.queue:
			d.deliver(ctx, n)
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, n notice) {
	for _, s := range d.sinks {
		var err error
		if n.phase != nil {
			err = s.PhaseChanged(ctx, *n.phase)
		} else {
			err = s.RoundSettled(ctx, *n.record)
		}
		if err != nil {
			d.log.Warn("notifier failed", zap.Error(err))
		}
	}
}
