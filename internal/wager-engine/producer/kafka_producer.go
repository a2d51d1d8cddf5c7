package producer

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"

	"github.com/radieske/round-wager-engine/internal/room"
	"github.com/radieske/round-wager-engine/internal/settlement"
	"github.com/radieske/round-wager-engine/internal/wager-engine/dto"
	"github.com/radieske/round-wager-engine/pkg/contracts/events"
)

// MessageWriter é o subconjunto do *kafka.Writer usado aqui
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// KafkaNotifier publica transições de fase e liquidações; chave = sala
type KafkaNotifier struct {
	Phases      MessageWriter
	Settlements MessageWriter
}

func NewKafkaNotifier(phases, settlements MessageWriter) *KafkaNotifier {
	return &KafkaNotifier{Phases: phases, Settlements: settlements}
}

func (p *KafkaNotifier) PhaseChanged(ctx context.Context, n room.PhaseNotice) error {
	return write(ctx, p.Phases, n.Event.RoomID, dto.PhaseChanged(n))
}

func (p *KafkaNotifier) RoundSettled(ctx context.Context, rec settlement.Record) error {
	return write(ctx, p.Settlements, rec.RoomID, dto.RoundSettled(rec))
}

// KafkaReplier devolve a resposta de cada mensagem de aposta à ponte de chat
type KafkaReplier struct {
	Writer MessageWriter
}

func NewKafkaReplier(w MessageWriter) *KafkaReplier { return &KafkaReplier{Writer: w} }

func (p *KafkaReplier) Reply(ctx context.Context, r events.WagerReply) error {
	return write(ctx, p.Writer, r.RoomID, r)
}

func write(ctx context.Context, w MessageWriter, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %T: %w", v, err)
	}
	return w.WriteMessages(ctx, kafka.Message{Key: []byte(key), Value: b})
}
