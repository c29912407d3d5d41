// Package cache guarda snapshots de mercado em Redis no padrão
// cache-aside: o caminho de leitura tenta o cache antes do banco e as
// mutações invalidam a chave. TTL curto, porque o snapshot muda a cada
// aposta confirmada.
package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "market:snapshot:"

type MarketSnapshots struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewMarketSnapshots(rdb *redis.Client, ttl time.Duration) *MarketSnapshots {
	return &MarketSnapshots{rdb: rdb, ttl: ttl}
}

// Get devolve o snapshot serializado, se presente. Erros de Redis contam
// como cache miss; o chamador sempre tem o banco como fonte da verdade.
func (c *MarketSnapshots) Get(ctx context.Context, marketID string) ([]byte, bool) {
	b, err := c.rdb.Get(ctx, keyPrefix+marketID).Bytes()
	if err != nil {
		return nil, false
	}
	return b, true
}

func (c *MarketSnapshots) Set(ctx context.Context, marketID string, body []byte) {
	_ = c.rdb.Set(ctx, keyPrefix+marketID, body, c.ttl).Err()
}

func (c *MarketSnapshots) Invalidate(ctx context.Context, marketID string) {
	_ = c.rdb.Del(ctx, keyPrefix+marketID).Err()
}
