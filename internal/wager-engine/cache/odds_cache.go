package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/radieske/round-wager-engine/internal/odds"
)

const DefaultOddsKey = "odds:table"

type store interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// OddsSource guarda a tabela de odds ativa no Redis
// Operadores editam a chave; o job de reload aplica entre rodadas
type OddsSource struct {
	R   store
	Key string
}

func NewOddsSource(r *redis.Client, key string) *OddsSource {
	if key == "" {
		key = DefaultOddsKey
	}
	return &OddsSource{R: r, Key: key}
}

// Get lê a tabela; ok=false quando a chave ainda não existe
func (c *OddsSource) Get(ctx context.Context) (*odds.Table, bool, error) {
	b, err := c.R.Get(ctx, c.Key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	t, err := odds.Decode(b)
	if err != nil {
		return nil, false, fmt.Errorf("odds key %s: %w", c.Key, err)
	}
	return t, true, nil
}

// Set grava a tabela sem expiração
func (c *OddsSource) Set(ctx context.Context, t *odds.Table) error {
	b, err := json.Marshal(t)
	if err != nil {
		return err
	}
	return c.R.Set(ctx, c.Key, b, 0).Err()
}

// Reload aplica a tabela do Redis no holder; se a chave não existir, publica a atual
// changed indica troca de versão
func (c *OddsSource) Reload(ctx context.Context, h *odds.Holder) (changed bool, err error) {
	t, ok, err := c.Get(ctx)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, c.Set(ctx, h.Load())
	}
	return h.Swap(t), nil
}
