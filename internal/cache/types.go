package cache

import (
	"errors"
	"time"
)

// Common errors for cache operations
var (
	// ErrInvalidKey is returned for keys that are empty or contain
	// characters outside [A-Za-z0-9_-]
	ErrInvalidKey = errors.New("invalid cache key")

	// ErrEmptyValue is returned when storing a zero-length blob
	ErrEmptyValue = errors.New("cache value is empty")
)

// EntryInfo describes a stored blob without loading it.
type EntryInfo struct {
	Key       string    `json:"key"`
	Size      int64     `json:"size"`      // size on disk
	CreatedOn time.Time `json:"createdOn"` // last write time
}

// ClearResult reports the outcome of Clear.
type ClearResult struct {
	Deleted int // entries removed by this call
	Failed  int // entries that could not be removed
}

// Usage summarizes the disk footprint of the cache.
type Usage struct {
	Entries    int
	TotalBytes int64
}

// Config holds configuration for the disk cache.
type Config struct {
	// Directory for cache files
	Dir string

	// Zstd compression level (1-22), 0 disables compression
	CompressionLevel int
}

// Store is the contract the synthesis service needs from a blob cache.
type Store interface {
	Get(key string) ([]byte, bool)
	Put(key string, value []byte) error
	GetByPrefix(prefix string) ([]byte, string, bool)
	Clear() (ClearResult, error)
}
