// Package idempotency de-duplicates inbound lead deliveries.
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultTTL is how long a delivery key is remembered.
const DefaultTTL = 24 * time.Hour

const keyPrefix = "crmhub:lead:"

// Key scopes a delivery to one integration. Without a provider delivery id
// the body hash identifies the delivery.
func Key(scope, deliveryID string, body []byte) string {
	deliveryID = strings.TrimSpace(deliveryID)
	if deliveryID == "" {
		sum := sha256.Sum256(body)
		deliveryID = "sha256:" + hex.EncodeToString(sum[:])
	}
	return keyPrefix + scope + ":" + deliveryID
}

// RedisStore claims keys with SET NX so concurrent instances agree.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Claim reports true when key was not seen within ttl.
func (s *RedisStore) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return s.client.SetNX(ctx, key, "1", ttl).Result()
}

func (s *RedisStore) Release(ctx context.Context, key string) error {
	return s.client.Del(ctx, key).Err()
}

// minSweepAt is the key count that triggers the first expiry sweep.
const minSweepAt = 1024

// InMemory is the single-instance fallback used when Redis is not configured.
// Expired keys are dropped when the map outgrows a watermark, which then
// doubles the surviving count so sweeps stay amortized under live load.
type InMemory struct {
	mu      sync.Mutex
	keys    map[string]time.Time
	now     func() time.Time
	sweepAt int
	sweeps  int
}

func NewInMemory() *InMemory {
	return &InMemory{keys: make(map[string]time.Time), now: time.Now, sweepAt: minSweepAt}
}

func (s *InMemory) Claim(_ context.Context, key string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if expires, ok := s.keys[key]; ok && now.Before(expires) {
		return false, nil
	}
	s.keys[key] = now.Add(ttl)
	if len(s.keys) > s.sweepAt {
		s.sweep(now)
		s.sweepAt = max(minSweepAt, 2*len(s.keys))
	}
	return true, nil
}

func (s *InMemory) Release(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.keys, key)
	return nil
}

func (s *InMemory) sweep(now time.Time) {
	s.sweeps++
	for k, expires := range s.keys {
		if !now.Before(expires) {
			delete(s.keys, k)
		}
	}
}
