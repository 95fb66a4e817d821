package execution

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/forgefx/paperbot/internal/broker"
)

// MakeIdempotencyKey derives a stable key for one candle-close decision so
// the same symbol/timeframe/close/strategy/side combination is never
// submitted twice, even across a process restart mid-cycle.
func MakeIdempotencyKey(symbol, timeframe, candleCloseTimeUTC, strategyName string, side broker.Side) string {
	raw := fmt.Sprintf("%s|%s|%s|%s|%s", symbol, timeframe, candleCloseTimeUTC, strategyName, side)
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// IdempotencyCache tracks idempotency keys already submitted this process
// lifetime, seeded from persisted decisions on startup so a restart doesn't
// re-open the same trade.
type IdempotencyCache struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

// NewIdempotencyCache creates an empty cache.
func NewIdempotencyCache() *IdempotencyCache {
	return &IdempotencyCache{seen: make(map[string]struct{})}
}

// LoadRecent seeds the cache with keys recovered from persisted decisions,
// typically the most recent few thousand rows.
func (c *IdempotencyCache) LoadRecent(keys []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		if k != "" {
			c.seen[k] = struct{}{}
		}
	}
}

// Contains reports whether key has already been submitted.
func (c *IdempotencyCache) Contains(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.seen[key]
	return ok
}

// Add records key as submitted.
func (c *IdempotencyCache) Add(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seen[key] = struct{}{}
}
