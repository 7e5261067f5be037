// Package cache implements the engine's two-tier template cache: a raw
// source cache keyed by template path (invalidated by file mtime) and a
// compiled-token cache keyed by a content hash, so two templates sharing
// identical source text share one compiled form. Grounded on
// blade/cache/{base,memory,disk}.py's entry/eviction model, restructured
// around github.com/hashicorp/golang-lru/v2's bounded cache instead of
// a hand-rolled scan-for-oldest eviction loop.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/packalyst/swiftblade/lexer"
)

// Entry mirrors blade/cache/base.py's CacheEntry: a cached value plus the
// bookkeeping needed to decide whether it is still fresh.
type Entry struct {
	Tokens     []lexer.Token
	Source     string
	ModTime    time.Time
	CachedAt   time.Time
	AccessedAt time.Time
	Hits       int64
}

func (e *Entry) touch() {
	e.AccessedAt = time.Now()
	e.Hits++
}

func (e *Entry) expired(ttl time.Duration) bool {
	if ttl <= 0 {
		return false
	}
	return time.Since(e.CachedAt) > ttl
}

// Stats mirrors the statistics shape external callers query for
// cache observability.
type Stats struct {
	Hits   int64
	Misses int64
	Size   int
}

func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// HashSource returns the content-addressed key used by the compiled
// token tier, grounded on blade/cache/memory.py's SHA-256 cache keys.
func HashSource(source string) string {
	sum := sha256.Sum256([]byte(source))
	return hex.EncodeToString(sum[:])
}
