package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/afero"
)

// diskIndexEntry mirrors one row of blade/cache/disk.py's index.json:
// a per-file hit counter plus the bookkeeping needed to evict the
// least-recently-used file when the cache directory grows past its
// budget. Tracked explicitly rather than read back from the filesystem's
// atime, since afero's Fs interface does not expose access time
// portably across backends.
type diskIndexEntry struct {
	Path       string    `json:"path"`
	ModTime    time.Time `json:"mod_time"`
	CachedAt   time.Time `json:"cached_at"`
	AccessedAt time.Time `json:"accessed_at"`
	Hits       int64     `json:"hits"`
}

// DiskCache persists raw template source to a directory via afero,
// for deployments that want cache contents to survive process restarts.
// Grounded on blade/cache/disk.py: cache files are named by
// SHA-256(path), and an index.json alongside them tracks per-entry
// metadata. The cache-wide hit/miss counters live in memory only; they
// are not written to index.json and start at zero in each process.
type DiskCache struct {
	fs      afero.Fs
	dir     string
	maxSize int

	mu     sync.Mutex
	index  map[string]*diskIndexEntry
	hits   int64
	misses int64
}

func NewDiskCache(fs afero.Fs, dir string, maxSize int) (*DiskCache, error) {
	if maxSize <= 0 {
		maxSize = 1
	}
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	c := &DiskCache{fs: fs, dir: dir, maxSize: maxSize, index: map[string]*diskIndexEntry{}}
	c.loadIndex()
	return c, nil
}

func keyFor(path string) string {
	sum := sha256.Sum256([]byte(path))
	return hex.EncodeToString(sum[:])
}

func (c *DiskCache) indexPath() string { return filepath.Join(c.dir, "index.json") }
func (c *DiskCache) filePath(key string) string { return filepath.Join(c.dir, key+".cache") }

func (c *DiskCache) loadIndex() {
	b, err := afero.ReadFile(c.fs, c.indexPath())
	if err != nil {
		return
	}
	_ = json.Unmarshal(b, &c.index)
}

func (c *DiskCache) saveIndex() {
	b, err := json.Marshal(c.index)
	if err != nil {
		return
	}
	_ = afero.WriteFile(c.fs, c.indexPath(), b, 0o644)
}

// Get returns cached source for path if the file has not changed since
// it was cached (mtime comparison, same freshness rule as the memory
// tier).
func (c *DiskCache) Get(path string, currentModTime time.Time) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := keyFor(path)
	entry, ok := c.index[key]
	if !ok || entry.ModTime.Before(currentModTime) {
		c.misses++
		c.saveIndex()
		return "", false
	}
	b, err := afero.ReadFile(c.fs, c.filePath(key))
	if err != nil {
		delete(c.index, key)
		c.misses++
		c.saveIndex()
		return "", false
	}
	entry.AccessedAt = time.Now()
	entry.Hits++
	c.hits++
	c.saveIndex()
	return string(b), true
}

func (c *DiskCache) Put(path, source string, modTime time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := keyFor(path)
	if err := afero.WriteFile(c.fs, c.filePath(key), []byte(source), 0o644); err != nil {
		return err
	}
	c.index[key] = &diskIndexEntry{
		Path:       path,
		ModTime:    modTime,
		CachedAt:   time.Now(),
		AccessedAt: time.Now(),
	}
	c.evictIfNeeded()
	c.saveIndex()
	return nil
}

func (c *DiskCache) evictIfNeeded() {
	for len(c.index) > c.maxSize {
		var oldestKey string
		var oldest time.Time
		for k, e := range c.index {
			if oldestKey == "" || e.AccessedAt.Before(oldest) {
				oldestKey, oldest = k, e.AccessedAt
			}
		}
		if oldestKey == "" {
			return
		}
		_ = c.fs.Remove(c.filePath(oldestKey))
		delete(c.index, oldestKey)
	}
}

// InvalidateTemplate mirrors blade/cache/disk.py's conservative
// invalidation: a single template's source can be reached from
// other templates via @include/@extends, so rather than tracing that
// graph the whole directory is cleared on any single-template
// invalidation request.
func (c *DiskCache) InvalidateTemplate(string) {
	c.Clear()
}

func (c *DiskCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.index {
		_ = c.fs.Remove(c.filePath(k))
	}
	c.index = map[string]*diskIndexEntry{}
	c.hits, c.misses = 0, 0
	c.saveIndex()
}

func (c *DiskCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{Hits: c.hits, Misses: c.misses, Size: len(c.index)}
}
