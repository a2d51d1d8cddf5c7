package dto

import (
	"time"

	"github.com/radieske/round-wager-engine/internal/intake"
	"github.com/radieske/round-wager-engine/internal/room"
	"github.com/radieske/round-wager-engine/internal/settlement"
	"github.com/radieske/round-wager-engine/pkg/contracts/events"
)

// PhaseChanged converte a transição da sala no evento publicado
func PhaseChanged(n room.PhaseNotice) events.PhaseChanged {
	return events.PhaseChanged{
		RoomID:   n.Event.RoomID,
		RoundID:  n.Event.RoundID,
		Event:    string(n.Event.Kind),
		Phase:    n.Event.Phase.String(),
		Deadline: n.Event.Deadline,
		Mute:     n.Mute,
		Ts:       n.Event.At,
	}
}

// RoundSettled converte o registro de liquidação no evento publicado, com o texto da conta
func RoundSettled(rec settlement.Record) events.RoundSettled {
	out := events.RoundSettled{
		RoomID:        rec.RoomID,
		RoundID:       rec.RoundID,
		Status:        string(rec.Status),
		Reason:        rec.Reason,
		TotalStaked:   rec.TotalStaked,
		TotalPaid:     rec.TotalPaid,
		TotalRefunded: rec.TotalRefunded,
		Outcomes:      make([]events.WagerOutcome, 0, len(rec.Outcomes)),
		Bill:          settlement.Bill(rec),
		SettledAt:     rec.SettledAt,
	}
	if rec.Draw != nil {
		out.Digits = []int{int(rec.Draw.Digits[0]), int(rec.Draw.Digits[1]), int(rec.Draw.Digits[2])}
		out.Sum = rec.Draw.Features.Sum
		out.Label = rec.Draw.Features.Label()
	}
	for _, o := range rec.Outcomes {
		wo := events.WagerOutcome{
			WagerID:  o.WagerID,
			PlayerID: o.PlayerID,
			Stake:    o.Stake,
			Won:      o.Won,
			Payout:   o.Payout,
			Refunded: o.Refunded,
		}
		if o.Kind.Valid() {
			wo.Kind = o.Kind.Code()
		}
		if !o.Refunded {
			wo.Multiplier = o.Multiplier.String()
		}
		out.Outcomes = append(out.Outcomes, wo)
	}
	return out
}

// Accepted monta a resposta do chat para uma aposta aceita
func Accepted(msg events.WagerSubmitted, c intake.Confirmation, now time.Time) events.WagerReply {
	return events.WagerReply{
		MessageID:  msg.MessageID,
		RoomID:     msg.RoomID,
		PlayerID:   msg.PlayerID,
		Status:     "ACCEPTED",
		RoundID:    c.RoundID,
		Normalized: c.Normalized,
		Stake:      c.Stake,
		Balance:    c.Balance,
		Ts:         now,
	}
}

// Rejected monta a resposta do chat para uma aposta recusada; nada foi debitado
func Rejected(msg events.WagerSubmitted, err error, balance int64, now time.Time) events.WagerReply {
	return events.WagerReply{
		MessageID: msg.MessageID,
		RoomID:    msg.RoomID,
		PlayerID:  msg.PlayerID,
		Status:    "REJECTED",
		Code:      intake.Code(err),
		Reason:    err.Error(),
		Balance:   balance,
		Ts:        now,
	}
}
