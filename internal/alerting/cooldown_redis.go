package alerting

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/truckwatch/fleet-alerts/internal/logger"
)

// RedisCooldownGate shares cooldowns between service instances. Each key is
// written with SET NX PX so the first writer in a window wins and Redis
// expires the entry when the window ends.
//
// When Redis cannot be reached the gate falls back to a process-local
// CooldownCache, which still suppresses repeats seen by this instance.
type RedisCooldownGate struct {
	client   redis.Cmdable
	prefix   string
	window   time.Duration
	fallback *CooldownCache
	log      logger.Logger
}

// NewRedisCooldownGate creates a gate over client. prefix namespaces the keys.
// fallback answers while Redis is unavailable and sets the window; pass the
// engine's CooldownCache so its periodic cleanup covers the fallback entries.
func NewRedisCooldownGate(client redis.Cmdable, prefix string, fallback *CooldownCache, log logger.Logger) *RedisCooldownGate {
	if fallback == nil {
		fallback = NewCooldownCache(DefaultCooldown)
	}
	return &RedisCooldownGate{
		client:   client,
		prefix:   prefix,
		window:   fallback.Window(),
		fallback: fallback,
		log:      log.With(logger.String("gate", "redis")),
	}
}

func (g *RedisCooldownGate) key(truckID, ruleID string) string {
	return g.prefix + ":cooldown:" + truckID + ":" + ruleID
}

// CheckAndRecord implements Gate.
func (g *RedisCooldownGate) CheckAndRecord(ctx context.Context, truckID, ruleID string) bool {
	ok, err := g.client.SetNX(ctx, g.key(truckID, ruleID), time.Now().UnixMilli(), g.window).Result()
	if err != nil {
		g.log.Warn("redis cooldown check failed, using local cooldowns",
			logger.String("truck_id", truckID),
			logger.String("rule_id", ruleID),
			logger.Error(err))
		return g.fallback.CheckAndRecord(ctx, truckID, ruleID)
	}
	return ok
}

// RemainingCooldownSeconds reads the key's TTL. Missing keys report 0.
func (g *RedisCooldownGate) RemainingCooldownSeconds(ctx context.Context, truckID, ruleID string) (int64, error) {
	ttl, err := g.client.PTTL(ctx, g.key(truckID, ruleID)).Result()
	if err != nil {
		return 0, err
	}
	if ttl <= 0 {
		return 0, nil
	}
	// Partial seconds round up.
	return int64((ttl + time.Second - 1) / time.Second), nil
}

// Fallback exposes the local cache used while Redis is unavailable.
func (g *RedisCooldownGate) Fallback() *CooldownCache {
	return g.fallback
}
