package cache

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

type CachedValue struct {
	Value     string
	Timestamp time.Time
}

// TTLCache is an in-process string cache whose entries expire after a fixed duration.
type TTLCache struct {
	mu       sync.Mutex
	entries  map[string]CachedValue
	duration time.Duration
	now      func() time.Time
}

func NewTTLCache(duration time.Duration) *TTLCache {
	return &TTLCache{
		entries:  make(map[string]CachedValue),
		duration: duration,
		now:      time.Now,
	}
}

// Get returns the cached value, or false when it is missing or expired.
func (c *TTLCache) Get(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return "", false
	}

	if c.now().Sub(entry.Timestamp) > c.duration {
		delete(c.entries, key)
		return "", false
	}

	logrus.Debugf("cache hit for %s", key)
	return entry.Value, true
}

// Set stores value under key and restarts its expiry.
func (c *TTLCache) Set(key string, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = CachedValue{
		Value:     value,
		Timestamp: c.now(),
	}
}
