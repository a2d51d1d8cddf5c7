package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/radieske/round-wager-engine/internal/game"
	"github.com/radieske/round-wager-engine/internal/intake"
	"github.com/radieske/round-wager-engine/internal/room"
	"github.com/radieske/round-wager-engine/internal/round"
	"github.com/radieske/round-wager-engine/internal/settlement"
	"github.com/radieske/round-wager-engine/internal/wager-engine/dto"
	"github.com/radieske/round-wager-engine/pkg/contracts/events"
)

type Submitter interface {
	SubmitMessage(ctx context.Context, messageID, playerID, roomID, text string) (intake.Confirmation, error)
}

type Balances interface {
	Balance(playerID string) int64
}

type Replier interface {
	Reply(ctx context.Context, r events.WagerReply) error
}

// WagerHandler liga o tópico de mensagens de aposta ao intake
// Recusas de negócio viram resposta REJECTED, não erro
func WagerHandler(log *zap.Logger, svc Submitter, balances Balances, replies Replier) Handler {
	return func(ctx context.Context, m kafka.Message) error {
		var msg events.WagerSubmitted
		if err := json.Unmarshal(m.Value, &msg); err != nil {
			return Permanent(fmt.Errorf("decode wager: %w", err))
		}
		if msg.RoomID == "" || msg.PlayerID == "" {
			return Permanent(errors.New("wager without room or player"))
		}

		var reply events.WagerReply
		c, err := svc.SubmitMessage(ctx, msg.MessageID, msg.PlayerID, msg.RoomID, msg.Text)
		switch {
		case errors.Is(err, intake.ErrDuplicateMessage):
			// reentrega depois de commit falho: a resposta já saiu na primeira vez
			log.Info("wager message redelivered, skipped", zap.String("message", msg.MessageID), zap.String("room", msg.RoomID))
			return nil
		case err == nil:
			reply = dto.Accepted(msg, c, time.Now())
		case intake.IsRejection(err):
			reply = dto.Rejected(msg, err, balances.Balance(msg.PlayerID), time.Now())
		default:
			// nada foi debitado: repetir é seguro
			return err
		}

		// a aposta já está registrada; falha na resposta não pode virar retry
		if err := replies.Reply(ctx, reply); err != nil {
			log.Warn("wager reply not published", zap.String("message", msg.MessageID), zap.Error(err))
		}
		return nil
	}
}

type Resolver interface {
	Resolve(ctx context.Context, roomID string, hint int64, digits game.Digits) (settlement.Record, error)
}

// ResultHandler liga o feed de resultados às salas
// Erros de liquidação (ledger/journal) são repetidos: a sala guarda os dígitos pendentes
func ResultHandler(log *zap.Logger, rooms Resolver) Handler {
	return func(ctx context.Context, m kafka.Message) error {
		var ev events.RoundResult
		if err := json.Unmarshal(m.Value, &ev); err != nil {
			return Permanent(fmt.Errorf("decode result: %w", err))
		}
		digits, err := game.DigitsFrom(ev.Digits)
		if err != nil {
			return Permanent(err)
		}

		rec, err := rooms.Resolve(ctx, ev.RoomID, ev.RoundIDHint, digits)
		switch {
		case err == nil:
			log.Info("result applied",
				zap.String("room", ev.RoomID),
				zap.Int64("round", rec.RoundID),
				zap.String("digits", digits.String()),
				zap.String("status", string(rec.Status)),
			)
			return nil
		case errors.Is(err, room.ErrRoomNotFound),
			errors.Is(err, round.ErrNotAwaiting),
			errors.Is(err, round.ErrClosed),
			errors.Is(err, game.ErrInvalidDigits):
			return Permanent(err)
		default:
			return err
		}
	}
}
