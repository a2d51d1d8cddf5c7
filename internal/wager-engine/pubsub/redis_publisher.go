package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/radieske/round-wager-engine/internal/room"
	"github.com/radieske/round-wager-engine/internal/settlement"
	"github.com/radieske/round-wager-engine/internal/wager-engine/dto"
)

const ChannelRoundBroadcast = "round_events_broadcast"

// Tipos de WSUpdate
const (
	TypePhase      = "phase"
	TypeSettlement = "settlement"
)

// Payload padrão para o WS das salas
type WSUpdate struct {
	RoomID  string          `json:"roomId"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// RedisBroadcaster repassa os eventos das salas para as instâncias que mantêm WebSockets
type RedisBroadcaster struct {
	r       publisher
	channel string
}

func NewRedisBroadcaster(r *redis.Client, channel string) *RedisBroadcaster {
	if channel == "" {
		channel = ChannelRoundBroadcast
	}
	return &RedisBroadcaster{r: r, channel: channel}
}

func (b *RedisBroadcaster) Publish(ctx context.Context, upd WSUpdate) error {
	raw, err := json.Marshal(upd)
	if err != nil {
		return fmt.Errorf("marshal ws update: %w", err)
	}
	return b.r.Publish(ctx, b.channel, raw).Err()
}

func (b *RedisBroadcaster) PhaseChanged(ctx context.Context, n room.PhaseNotice) error {
	return b.publish(ctx, n.Event.RoomID, TypePhase, dto.PhaseChanged(n))
}

func (b *RedisBroadcaster) RoundSettled(ctx context.Context, rec settlement.Record) error {
	return b.publish(ctx, rec.RoomID, TypeSettlement, dto.RoundSettled(rec))
}

func (b *RedisBroadcaster) publish(ctx context.Context, roomID, typ string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", typ, err)
	}
	return b.Publish(ctx, WSUpdate{RoomID: roomID, Type: typ, Payload: payload})
}
