package queue

import (
	"context"
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"eventhub/internal/config"
	"eventhub/internal/constants"
	"eventhub/internal/filter"
	"eventhub/internal/logger"
	"eventhub/pkg/circuitbreaker"
	"eventhub/pkg/metrics"
	"eventhub/pkg/models"
)

// Hasher builds dedup keys from selected event fields.
type Hasher struct {
	algorithm string
}

func NewHasher(algorithm string) *Hasher {
	return &Hasher{algorithm: algorithm}
}

// ComputeHash hashes the values at the given dot paths of the event document
// (envelope fields plus data). Missing fields hash as empty.
func (h *Hasher) ComputeHash(event models.Event, fields []string) (string, error) {
	if len(fields) == 0 {
		return "", fmt.Errorf("no fields specified for hashing")
	}

	doc := event.AsMap()
	var builder strings.Builder
	for _, field := range fields {
		val, ok := filter.Lookup(doc, field)
		if !ok {
			val = ""
		}
		builder.WriteString(fmt.Sprintf("%v|", val))
	}
	input := builder.String()

	switch h.algorithm {
	case "sha256":
		sum := sha256.Sum256([]byte(input))
		return hex.EncodeToString(sum[:]), nil
	default:
		sum := md5.Sum([]byte(input))
		return hex.EncodeToString(sum[:]), nil
	}
}

// Deduper remembers keys for a window. Seen returns true when key was already
// recorded within the window; otherwise it records it.
type Deduper interface {
	Seen(ctx context.Context, key string, window time.Duration) (bool, error)
}

type MemoryDeduper struct {
	mu      sync.Mutex
	entries map[string]time.Time
	now     func() time.Time
	ops     int
}

func NewMemoryDeduper() *MemoryDeduper {
	return &MemoryDeduper{entries: make(map[string]time.Time), now: time.Now}
}

func (d *MemoryDeduper) Seen(_ context.Context, key string, window time.Duration) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	d.ops++
	if d.ops%256 == 0 {
		for k, exp := range d.entries {
			if !now.Before(exp) {
				delete(d.entries, k)
			}
		}
	}

	if exp, ok := d.entries[key]; ok && now.Before(exp) {
		return true, nil
	}
	d.entries[key] = now.Add(window)
	return false, nil
}

func (d *MemoryDeduper) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.entries)
}

// RedisDeduper records keys with SETNX so the window survives restarts and is
// shared by every hub process using the same Redis.
type RedisDeduper struct {
	client       *redis.Client
	cb           *circuitbreaker.Wrapper
	onRedisError string
	logger       logger.Logger
}

func NewRedisDeduper(client *redis.Client, cfg config.QueueDedupConfig, cb config.CircuitBreakerConfig, log logger.Logger) *RedisDeduper {
	d := &RedisDeduper{
		client:       client,
		onRedisError: cfg.OnRedisError,
		logger:       log,
	}
	if cb.Enabled {
		d.cb = circuitbreaker.NewWrapper(circuitbreaker.FromConfig("redis-dedup", cb))
	}
	return d
}

func (d *RedisDeduper) Seen(ctx context.Context, key string, window time.Duration) (bool, error) {
	start := time.Now()
	stored, err := d.setNX(ctx, constants.CacheKeyPrefixDedup+key, window)
	metrics.ObserveDatabaseQueryDuration("queue", "redis", "setnx", time.Since(start))

	if err != nil {
		metrics.IncDatabaseQuery("queue", "redis", "setnx", "error")
		if d.onRedisError == constants.DedupOnErrorReject {
			metrics.IncFallbackUsage("queue-dedup", "reject_on_error", "redis_error")
			return false, fmt.Errorf("redis dedup check failed: %w", err)
		}
		metrics.IncFallbackUsage("queue-dedup", "allow_on_error", "redis_error")
		d.logger.WarnwCtx(ctx, "Redis error during dedup check, allowing message", "error", err)
		return false, nil
	}
	metrics.IncDatabaseQuery("queue", "redis", "setnx", "success")
	return !stored, nil
}

func (d *RedisDeduper) setNX(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if d.cb == nil {
		return d.client.SetNX(ctx, key, time.Now().Unix(), ttl).Result()
	}

	result, err := d.cb.ExecuteWithContext(ctx, func() (interface{}, error) {
		return d.client.SetNX(ctx, key, time.Now().Unix(), ttl).Result()
	})
	d.cb.RecordRequest(err == nil)
	if err != nil {
		if d.cb.IsOpen() {
			return false, fmt.Errorf("circuit breaker is open for redis-dedup: %w", err)
		}
		return false, err
	}

	stored, ok := result.(bool)
	if !ok {
		return false, fmt.Errorf("redis returned invalid result type")
	}
	return stored, nil
}

// CacheSize counts live dedup keys, used by the health endpoint.
func (d *RedisDeduper) CacheSize(ctx context.Context) (int, error) {
	iter := d.client.Scan(ctx, 0, constants.CacheKeyPrefixDedup+"*", 0).Iterator()
	count := 0
	for iter.Next(ctx) {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		count++
	}
	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("redis scan failed: %w", err)
	}
	return count, nil
}
