// Package remote implements an optional Redis-backed remote cache tier
// for multi-instance deployments that need a shared hot cache. Tier is
// standalone: cachecore.Production does not consult it.
package remote

import (
	"context"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
)

// Tier wraps a Redis client as a remote cache backend.
type Tier struct {
	client *redis.Client
	prefix string
}

// Config addresses a single Redis instance.
type Config struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// New builds a Tier from cfg.
func New(cfg Config) *Tier {
	return &Tier{
		client: redis.NewClient(&redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		}),
		prefix: cfg.Prefix,
	}
}

func (t *Tier) key(key string) string {
	if t.prefix == "" {
		return key
	}
	return t.prefix + ":" + key
}

// Get returns the cached value for key, ok=false on miss.
func (t *Tier) Get(ctx context.Context, key string) (value any, ok bool, err error) {
	raw, err := t.client.Get(ctx, t.key(key)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, false, err
	}
	return v, true, nil
}

// Set stores value for key with ttl (0 = no expiry).
func (t *Tier) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	buf, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return t.client.Set(ctx, t.key(key), buf, ttl).Err()
}

// Ping checks connectivity.
func (t *Tier) Ping(ctx context.Context) error {
	return t.client.Ping(ctx).Err()
}

// Close releases the underlying connection pool.
func (t *Tier) Close() error {
	return t.client.Close()
}
