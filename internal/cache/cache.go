// Package cache stores generated artifacts keyed by prompt and style.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/ashureev/reelbot/internal/domain"
	"github.com/ashureev/reelbot/internal/metrics"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Options bounds the cache. Zero values keep entries until restart.
type Options struct {
	MaxEntries int
	TTL        time.Duration
}

// Entry is a cached artifact.
type Entry struct {
	Artifact  domain.Artifact
	CreatedAt time.Time
}

// ResultCache maps (prompt, style) to a previously generated artifact.
// Safe for concurrent use; concurrent stores for one key resolve last-write-wins.
type ResultCache struct {
	lru     *expirable.LRU[string, Entry]
	metrics *metrics.Metrics
}

// New creates a result cache.
func New(opts Options, m *metrics.Metrics) *ResultCache {
	size := opts.MaxEntries
	if size < 0 {
		size = 0
	}
	return &ResultCache{
		lru:     expirable.NewLRU[string, Entry](size, nil, opts.TTL),
		metrics: m,
	}
}

// Key returns the normalized cache key for prompt and style.
func Key(prompt, style string) string {
	p := strings.ToLower(strings.TrimSpace(prompt))
	s := strings.ToLower(strings.TrimSpace(style))
	sum := sha256.Sum256([]byte(p + "\x00" + s))
	return hex.EncodeToString(sum[:])
}

// Lookup returns the cached artifact for prompt and style.
func (c *ResultCache) Lookup(prompt, style string) (domain.Artifact, bool) {
	e, ok := c.lru.Get(Key(prompt, style))
	c.metrics.CacheLookup(ok)
	if !ok {
		return domain.Artifact{}, false
	}
	a := e.Artifact
	a.Cached = true
	return a, true
}

// Store saves an artifact for prompt and style.
func (c *ResultCache) Store(prompt, style string, a domain.Artifact) {
	a.Cached = false
	c.lru.Add(Key(prompt, style), Entry{Artifact: a, CreatedAt: time.Now()})
}

// Len returns the number of live entries.
func (c *ResultCache) Len() int {
	return c.lru.Len()
}
