package cache

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// HitTier identifies which tier satisfied a read, for the Stats() report
// and for the spec's "hit-tier?" return value.
type HitTier string

const (
	HitNone HitTier = ""
	HitL1   HitTier = "l1_memory"
	HitL2   HitTier = "l2_shared"
	HitL3   HitTier = "l3_disk"
)

// Stats is the Stats() report: totals plus a per-tier breakdown.
type Stats struct {
	Hits       int64
	Misses     int64
	PerTier    map[HitTier]int64
	HitRate    float64
}

// Tier is the three-tier cascade described in spec §4.1. It is safe for
// concurrent use.
type Tier struct {
	l1     *l1Cache
	l2     *redis.Client
	l3     *diskCache
	logger *logrus.Entry

	statsMu sync.Mutex
	hits    int64
	misses  int64
	perTier map[HitTier]int64
}

// Config configures the three tiers. RedisURL empty disables L2;
// DiskPath empty disables L3, matching spec's "empty disables that tier".
type Config struct {
	L1Capacity int
	RedisURL   string
	DiskPath   string
}

// New builds a Tier. Redis connection errors are not fatal here — the
// client is lazily dialed on first use and any failure degrades to
// skipping L2, per spec's "cache unavailability MUST NOT fail the
// request".
func New(cfg Config, logger *logrus.Entry) *Tier {
	if logger == nil {
		logger = logrus.NewEntry(logrus.New())
	}

	t := &Tier{
		l1:      newL1Cache(cfg.L1Capacity),
		l3:      newDiskCache(cfg.DiskPath),
		logger:  logger,
		perTier: make(map[HitTier]int64),
	}

	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.WithError(err).Warn("cache: invalid redis_url, L2 tier disabled")
		} else {
			t.l2 = redis.NewClient(opts)
		}
	}

	return t
}

// get probes L1, then L2, then L3, promoting any hit to every higher tier.
func (t *Tier) get(ctx context.Context, key string) ([]byte, HitTier) {
	if data, ok := t.l1.get(key); ok {
		t.recordHit(HitL1)
		return data, HitL1
	}

	if t.l2 != nil {
		data, err := t.l2.Get(ctx, key).Bytes()
		if err == nil {
			t.l1.set(key, data, 0)
			t.recordHit(HitL2)
			return data, HitL2
		}
		if err != redis.Nil {
			t.logger.WithError(err).Warn("cache: l2 get failed, falling through")
		}
	}

	if t.l3 != nil {
		if data, ok := t.l3.get(key); ok {
			t.l1.set(key, data, 0)
			if t.l2 != nil {
				_ = t.l2.Set(ctx, key, data, 0).Err()
			}
			t.recordHit(HitL3)
			return data, HitL3
		}
	}

	t.recordMiss()
	return nil, HitNone
}

// put writes to L3, then L2, then L1 in that order, per spec's documented
// write ordering. Every step is best-effort.
func (t *Tier) put(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if err := t.l3.set(key, value); err != nil {
		t.logger.WithError(err).Warn("cache: l3 set failed")
	}

	if t.l2 != nil {
		if err := t.l2.Set(ctx, key, value, ttl).Err(); err != nil {
			t.logger.WithError(err).Warn("cache: l2 set failed")
		}
	}

	t.l1.set(key, value, ttl)
}

func (t *Tier) delete(ctx context.Context, key string) {
	t.l1.delete(key)
	if t.l2 != nil {
		_ = t.l2.Del(ctx, key).Err()
	}
	t.l3.delete(key)
}

// ClearNamespace deletes every L1/L2 entry whose key starts with prefix.
// L3 is left untouched (rebuildable, not indexed by prefix).
func (t *Tier) ClearNamespace(ctx context.Context, namespace string) {
	t.l1.clearPrefix(namespace)
	if t.l2 == nil {
		return
	}
	iter := t.l2.Scan(ctx, 0, namespace+"*", 0).Iterator()
	for iter.Next(ctx) {
		_ = t.l2.Del(ctx, iter.Val()).Err()
	}
}

func (t *Tier) recordHit(tier HitTier) {
	t.statsMu.Lock()
	t.hits++
	t.perTier[tier]++
	t.statsMu.Unlock()
}

func (t *Tier) recordMiss() {
	t.statsMu.Lock()
	t.misses++
	t.statsMu.Unlock()
}

// Stats returns the cumulative hit/miss counters.
func (t *Tier) Stats() Stats {
	t.statsMu.Lock()
	defer t.statsMu.Unlock()

	total := t.hits + t.misses
	rate := 0.0
	if total > 0 {
		rate = float64(t.hits) / float64(total)
	}
	perTier := make(map[HitTier]int64, len(t.perTier))
	for k, v := range t.perTier {
		perTier[k] = v
	}
	return Stats{Hits: t.hits, Misses: t.misses, PerTier: perTier, HitRate: rate}
}

// Close releases the Redis connection, if any.
func (t *Tier) Close() error {
	if t.l2 != nil {
		return t.l2.Close()
	}
	return nil
}
