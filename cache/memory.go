package cache

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/packalyst/swiftblade/lexer"
)

// MemoryCache is an in-process two-tier cache: the raw tier holds a
// template's source text keyed by resolved path and is invalidated when
// the underlying file's mtime changes; the compiled tier holds tokenized
// output keyed by a hash of the source, so identical source shared by
// two paths (e.g. a symlinked partial) compiles once. Grounded on
// blade/cache/memory.py's MemoryCache, swapping its scan-for-oldest
// eviction for golang-lru/v2's O(1) LRU.
type MemoryCache struct {
	mu  sync.Mutex
	ttl time.Duration

	raw      *lru.Cache[string, *rawEntry]
	compiled *lru.Cache[string, *Entry]

	hits   int64
	misses int64
}

type rawEntry struct {
	source  string
	modTime time.Time
}

// NewMemoryCache builds a two-tier cache. maxSize bounds each tier
// independently (a raw-source slot and a compiled-token slot are cheap
// enough to budget separately, per blade/cache/memory.py's single
// max_size applied uniformly).
func NewMemoryCache(maxSize int, ttl time.Duration) *MemoryCache {
	if maxSize <= 0 {
		maxSize = 1
	}
	raw, _ := lru.New[string, *rawEntry](maxSize)
	compiled, _ := lru.New[string, *Entry](maxSize)
	return &MemoryCache{ttl: ttl, raw: raw, compiled: compiled}
}

// GetSource returns cached source for path if present and the file's
// mtime has not advanced past what was cached.
func (c *MemoryCache) GetSource(path string, currentModTime time.Time) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.raw.Get(path)
	if !ok || e.modTime.Before(currentModTime) {
		c.misses++
		return "", false
	}
	c.hits++
	return e.source, true
}

func (c *MemoryCache) PutSource(path, source string, modTime time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.raw.Add(path, &rawEntry{source: source, modTime: modTime})
}

// GetCompiled returns cached tokens for the given source hash.
func (c *MemoryCache) GetCompiled(hash string) ([]lexer.Token, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.compiled.Get(hash)
	if !ok || e.expired(c.ttl) {
		c.misses++
		return nil, false
	}
	e.touch()
	c.hits++
	return e.Tokens, true
}

func (c *MemoryCache) PutCompiled(hash string, tokens []lexer.Token) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	c.compiled.Add(hash, &Entry{Tokens: tokens, CachedAt: now, AccessedAt: now})
}

// InvalidatePath drops a template's raw-source entry. Compiled entries
// are content-addressed and left alone: if another path still has the
// same source text, its compiled form remains valid.
func (c *MemoryCache) InvalidatePath(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.raw.Remove(path)
}

func (c *MemoryCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.raw.Purge()
	c.compiled.Purge()
	c.hits, c.misses = 0, 0
}

func (c *MemoryCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{Hits: c.hits, Misses: c.misses, Size: c.raw.Len() + c.compiled.Len()}
}
