// Package redisclaim guards candidate claims across dispatcher instances.
// A claim is a key holding the incident id, set only if absent and expiring
// after a TTL so a crashed instance cannot hold a vehicle forever.
package redisclaim

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "resqroute:claim:"

// releaseScript deletes the key only when it still belongs to the caller.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
end
return 0`)

// Config locates the Redis server.
type Config struct {
	// Addr enables the guard when set, e.g. "localhost:6379".
	Addr     string        `json:"addr"`
	Password string        `json:"password"`
	DB       int           `json:"db"`
	TTL      time.Duration `json:"ttl"`
}

func (c *Config) SetDefaults() {
	if c.TTL <= 0 {
		c.TTL = 2 * time.Hour
	}
}

// Enabled reports whether a Redis address is configured.
func (c Config) Enabled() bool { return c.Addr != "" }

// Guard implements the registry claim guard on Redis.
type Guard struct {
	rdb *redis.Client
	ttl time.Duration
}

// New connects to Redis and checks the connection.
func New(ctx context.Context, cfg Config) (*Guard, error) {
	cfg.SetDefaults()
	rdb := redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}
	return NewWithClient(rdb, cfg.TTL), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(rdb *redis.Client, ttl time.Duration) *Guard {
	return &Guard{rdb: rdb, ttl: ttl}
}

func key(candidateID string) string { return keyPrefix + candidateID }

// Acquire claims candidateID for incidentID. A repeated acquire by the same
// incident succeeds and refreshes the TTL.
func (g *Guard) Acquire(ctx context.Context, candidateID, incidentID string) (bool, error) {
	ok, err := g.rdb.SetNX(ctx, key(candidateID), incidentID, g.ttl).Result()
	if err != nil {
		return false, err
	}
	if ok {
		return true, nil
	}
	holder, err := g.rdb.Get(ctx, key(candidateID)).Result()
	if err == redis.Nil {
		// expired between the two calls
		return g.rdb.SetNX(ctx, key(candidateID), incidentID, g.ttl).Result()
	}
	if err != nil {
		return false, err
	}
	if holder != incidentID {
		return false, nil
	}
	return true, g.rdb.Expire(ctx, key(candidateID), g.ttl).Err()
}

// Release drops the claim if incidentID still holds it.
func (g *Guard) Release(ctx context.Context, candidateID, incidentID string) error {
	return releaseScript.Run(ctx, g.rdb, []string{key(candidateID)}, incidentID).Err()
}

// Holder returns the incident currently holding candidateID.
func (g *Guard) Holder(ctx context.Context, candidateID string) (string, bool, error) {
	v, err := g.rdb.Get(ctx, key(candidateID)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (g *Guard) Close() error { return g.rdb.Close() }
