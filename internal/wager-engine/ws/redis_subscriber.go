package ws

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/radieske/round-wager-engine/internal/wager-engine/pubsub"
)

// StartRedisSubscriber escuta o canal Redis Pub/Sub e repassa as atualizações ao Hub
//
// Funcionamento:
// - Recebe mensagens JSON do canal Redis
// - Desserializa para WSUpdate
// - Chama hub.Broadcast para enviar aos clientes da sala
func StartRedisSubscriber(ctx context.Context, log *zap.Logger, r *redis.Client, channel string, hub *Hub) {
	sub := r.Subscribe(ctx, channel)
	go forward(ctx, log, sub.Channel(), hub, func() { _ = sub.Close() })
}

func forward(ctx context.Context, log *zap.Logger, ch <-chan *redis.Message, hub *Hub, closeFn func()) {
	for {
		select {
		case <-ctx.Done():
			closeFn() // encerra a inscrição ao finalizar o contexto
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			if msg == nil {
				continue
			}
			var upd pubsub.WSUpdate
			if err := json.Unmarshal([]byte(msg.Payload), &upd); err != nil {
				log.Warn("ws subscriber unmarshal error", zap.Error(err))
				continue
			}
			hub.Broadcast(upd)
		}
	}
}
