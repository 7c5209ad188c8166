package session

import (
	"io"
	"os"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
	gocache "github.com/patrickmn/go-cache"

	"github.com/ict-visualizer/backend/internal/models"
)

// ResultCache keeps parsed boards keyed by file content hash, so re-parsing
// an identical file (re-upload, watcher re-fire) returns the stored result.
type ResultCache struct {
	cache *gocache.Cache
}

// CachedResult is one parse outcome.
type CachedResult struct {
	Board  *models.BoardLog
	Errors []*models.ParseError
}

// NewResultCache creates a cache whose entries expire after ttl.
func NewResultCache(ttl time.Duration) *ResultCache {
	return &ResultCache{
		cache: gocache.New(ttl, ttl/2),
	}
}

// FileKey hashes the file content. Two byte-identical files share a key
// regardless of name or location.
func FileKey(filePath string) (string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", err
	}
	defer file.Close()

	h := xxhash.New()
	if _, err := io.Copy(h, file); err != nil {
		return "", err
	}
	return strconv.FormatUint(h.Sum64(), 16), nil
}

// Get returns the cached result for a key.
func (c *ResultCache) Get(key string) (*CachedResult, bool) {
	v, ok := c.cache.Get(key)
	if !ok {
		return nil, false
	}
	return v.(*CachedResult), true
}

// Put stores a parse outcome under a key.
func (c *ResultCache) Put(key string, board *models.BoardLog, errors []*models.ParseError) {
	c.cache.Set(key, &CachedResult{Board: board, Errors: errors}, gocache.DefaultExpiration)
}

// Len returns the number of live entries.
func (c *ResultCache) Len() int {
	return c.cache.ItemCount()
}
