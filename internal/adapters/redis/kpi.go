package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"verity/internal/domain"
)

const kpiKey = "verity:dashboard:kpi"

// KPICache keeps the dashboard aggregate in Redis for a short TTL so the
// admin dashboard does not fan out a count query per refresh.
type KPICache struct {
	rdb *redis.Client
}

func Connect(ctx context.Context, addr string) (*KPICache, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return &KPICache{rdb: rdb}, nil
}

func (c *KPICache) Get(ctx context.Context) (*domain.KPI, bool, error) {
	raw, err := c.rdb.Get(ctx, kpiKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var kpi domain.KPI
	if err := json.Unmarshal(raw, &kpi); err != nil {
		return nil, false, err
	}
	return &kpi, true, nil
}

func (c *KPICache) Set(ctx context.Context, kpi *domain.KPI, ttl time.Duration) error {
	raw, err := json.Marshal(kpi)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, kpiKey, raw, ttl).Err()
}

func (c *KPICache) Close() error { return c.rdb.Close() }
