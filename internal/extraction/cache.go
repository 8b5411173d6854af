package extraction

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tripshield/inquiry-desk/internal/domain"
)

// ResultCache short-circuits repeat extractions of identical message
// text. Retried tasks replay the same body, so a hit avoids a second
// round trip to the model provider.
type ResultCache struct {
	mu         sync.RWMutex
	entries    map[string]cacheEntry
	ttl        time.Duration
	maxEntries int
}

type cacheEntry struct {
	Fields    domain.ExtractedFields
	Source    string
	ModelID   string
	CreatedAt time.Time
	ExpiresAt time.Time
}

type CacheConfig struct {
	TTL        time.Duration
	MaxEntries int
}

func NewResultCache(config CacheConfig) *ResultCache {
	if config.TTL <= 0 {
		config.TTL = 30 * time.Minute
	}
	if config.MaxEntries <= 0 {
		config.MaxEntries = 2000
	}
	return &ResultCache{
		entries:    make(map[string]cacheEntry),
		ttl:        config.TTL,
		maxEntries: config.MaxEntries,
	}
}

func (c *ResultCache) Get(signature string) (domain.ExtractedFields, string, bool) {
	c.mu.RLock()
	entry, exists := c.entries[signature]
	c.mu.RUnlock()

	if !exists {
		return domain.ExtractedFields{}, "", false
	}
	if time.Now().UTC().After(entry.ExpiresAt) {
		c.mu.Lock()
		delete(c.entries, signature)
		c.mu.Unlock()
		return domain.ExtractedFields{}, "", false
	}
	return entry.Fields.Clone(), entry.Source, true
}

func (c *ResultCache) Set(signature string, fields domain.ExtractedFields, source, modelID string) {
	now := time.Now().UTC()
	entry := cacheEntry{
		Fields:    fields.Clone(),
		Source:    source,
		ModelID:   modelID,
		CreatedAt: now,
		ExpiresAt: now.Add(c.ttl),
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.entries) >= c.maxEntries {
		c.evictOldest()
	}
	c.entries[signature] = entry
}

func (c *ResultCache) BuildSignature(parts ...string) string {
	normalized := make([]string, 0, len(parts))
	for _, part := range parts {
		normalized = append(normalized, strings.TrimSpace(strings.ToLower(part)))
	}
	joined := strings.Join(normalized, "||")
	sum := sha256.Sum256([]byte(joined))
	return hex.EncodeToString(sum[:])
}

func (c *ResultCache) evictOldest() {
	if len(c.entries) == 0 {
		return
	}

	type pair struct {
		key   string
		value cacheEntry
	}
	pairs := make([]pair, 0, len(c.entries))
	for key, value := range c.entries {
		pairs = append(pairs, pair{key: key, value: value})
	}
	sort.Slice(pairs, func(i, j int) bool {
		return pairs[i].value.CreatedAt.Before(pairs[j].value.CreatedAt)
	})
	delete(c.entries, pairs[0].key)
}
