// Package cache stores fetched catalog pages so repeated runs do not hit the site again.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"time"
)

// Cache is a byte store with per-entry expiry
type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte, ttl time.Duration) error
	Delete(key string) error
	Clear() error
}

// Options select the cache layers
type Options struct {
	Enabled   bool
	Dir       string // empty keeps pages in memory only
	MemoryTTL time.Duration
	DiskTTL   time.Duration
}

// New builds the page cache described by opts, or nil when caching is off
func New(opts Options) Cache {
	if !opts.Enabled {
		return nil
	}
	memory := NewMemoryCache(opts.MemoryTTL)
	if opts.Dir == "" {
		return memory
	}
	return NewLayeredCache(memory, NewDiskCache(opts.Dir, opts.DiskTTL))
}

// PageKey derives the cache key of a page address.
// The fragment is dropped since it never reaches the server.
func PageKey(rawURL string) string {
	if u, err := url.Parse(rawURL); err == nil {
		u.Fragment = ""
		rawURL = u.String()
	}
	sum := sha256.Sum256([]byte(rawURL))
	return "page-v1-" + hex.EncodeToString(sum[:])
}
