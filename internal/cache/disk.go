package cache

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/tts-proxy/internal/fsutil"
	"github.com/dustin/go-humanize"
	"github.com/klauspost/compress/zstd"
	"github.com/samber/lo"
)

const (
	// fileExt is kept for compatibility with caches written by earlier
	// versions of the proxy.
	fileExt = ".mp3"

	// Entries the cache compressed itself. Only these are ever decoded, so a
	// client blob that happens to be a zstd frame round-trips unchanged.
	compressedExt = ".zst"

	// Blobs at or below this size are never compressed.
	compressThreshold = 1024
)

// DiskCache stores one file per fingerprint under a single directory.
// It has no capacity bound and never evicts.
type DiskCache struct {
	dir string

	// Compression
	compressionLevel int
	encoder          *zstd.Encoder
	decoder          *zstd.Decoder

	// Synchronization
	mu sync.RWMutex

	logger *log.Logger
}

// NewDiskCache creates the cache directory if needed and returns a cache
// rooted there.
func NewDiskCache(cfg Config, logger *log.Logger) (*DiskCache, error) {
	if cfg.Dir == "" {
		return nil, errors.New("cache directory is required")
	}
	if err := os.MkdirAll(cfg.Dir, fsutil.DirPerms); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	if logger == nil {
		logger = log.Default()
	}

	dc := &DiskCache{
		dir:              cfg.Dir,
		compressionLevel: cfg.CompressionLevel,
		logger:           logger,
	}

	// The decoder is always available so compressed entries written under
	// a previous configuration stay readable.
	var err error
	dc.decoder, err = zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}

	if cfg.CompressionLevel > 0 {
		dc.encoder, err = zstd.NewWriter(nil,
			zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(cfg.CompressionLevel)))
		if err != nil {
			dc.decoder.Close()
			return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
		}
	}

	return dc, nil
}

// Dir returns the directory backing the cache.
func (dc *DiskCache) Dir() string {
	return dc.dir
}

// Get retrieves a blob by its exact key.
func (dc *DiskCache) Get(key string) ([]byte, bool) {
	if !ValidKey(key) {
		return nil, false
	}

	dc.mu.RLock()
	defer dc.mu.RUnlock()

	return dc.read(key)
}

// GetByPrefix returns the blob stored under key, or, when there is no exact
// match, the blob whose key is the lexicographically smallest one starting
// with key. The matched key is returned alongside the data.
func (dc *DiskCache) GetByPrefix(prefix string) ([]byte, string, bool) {
	if !ValidKey(prefix) {
		return nil, "", false
	}

	dc.mu.RLock()
	defer dc.mu.RUnlock()

	if data, ok := dc.read(prefix); ok {
		return data, prefix, true
	}

	keys, err := dc.keys()
	if err != nil {
		dc.logger.Warn("Failed to scan cache directory", "error", err)
		return nil, "", false
	}

	// keys is sorted, so the first hit is the smallest match
	for _, key := range keys {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		if data, ok := dc.read(key); ok {
			return data, key, true
		}
	}

	return nil, "", false
}

// Put stores value under key, replacing any previous entry.
func (dc *DiskCache) Put(key string, value []byte) error {
	if !ValidKey(key) {
		return ErrInvalidKey
	}
	if len(value) == 0 {
		return ErrEmptyValue
	}

	dataToWrite := value
	target, stale := dc.path(key), dc.compressedPath(key)
	if dc.encoder != nil && len(value) > compressThreshold {
		compressed := dc.encoder.EncodeAll(value, nil)
		// Only use compression if it actually reduces size
		if len(compressed) < len(value) {
			dataToWrite = compressed
			target, stale = stale, target
		}
	}

	dc.mu.Lock()
	defer dc.mu.Unlock()

	if err := fsutil.WriteFile(target, dataToWrite); err != nil {
		return fmt.Errorf("failed to write cache file: %w", err)
	}
	// the other form of the entry, if any, is now outdated
	if err := os.Remove(stale); err != nil && !errors.Is(err, fs.ErrNotExist) {
		dc.logger.Warn("Failed to remove outdated cache file", "key", ShortKey(key), "error", err)
	}

	return nil
}

// Clear removes every entry. Entries that disappear concurrently are treated
// as already cleared; other failures are logged and counted without
// stopping the sweep.
func (dc *DiskCache) Clear() (ClearResult, error) {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	var result ClearResult

	keys, err := dc.keys()
	if err != nil {
		return result, fmt.Errorf("failed to list cache directory: %w", err)
	}

	for _, key := range keys {
		removed, failed := false, false
		for _, p := range []string{dc.path(key), dc.compressedPath(key)} {
			err := os.Remove(p)
			switch {
			case err == nil:
				removed = true
			case errors.Is(err, fs.ErrNotExist):
				// removed by someone else in the meantime, or never written
			default:
				dc.logger.Warn("Failed to delete cache file", "key", ShortKey(key), "error", err)
				failed = true
			}
		}
		switch {
		case failed:
			result.Failed++
		case removed:
			result.Deleted++
		}
	}

	dc.logger.Info("Cache cleared", "deleted", result.Deleted, "errors", result.Failed)
	return result, nil
}

// List returns a page of entries ordered by key, plus the total entry count.
func (dc *DiskCache) List(offset, limit int) ([]EntryInfo, int, error) {
	dc.mu.RLock()
	defer dc.mu.RUnlock()

	infos, err := dc.entries()
	if err != nil {
		return nil, 0, err
	}

	total := len(infos)
	if offset < 0 {
		offset = 0
	}
	if offset >= total || limit <= 0 {
		return []EntryInfo{}, total, nil
	}

	end := min(offset+limit, total)
	return infos[offset:end], total, nil
}

// Usage reports the number of entries and their combined size on disk.
func (dc *DiskCache) Usage() (Usage, error) {
	dc.mu.RLock()
	defer dc.mu.RUnlock()

	infos, err := dc.entries()
	if err != nil {
		return Usage{}, err
	}

	u := Usage{
		Entries: len(infos),
		TotalBytes: lo.SumBy(infos, func(e EntryInfo) int64 {
			return e.Size
		}),
	}

	dc.logger.Debug("Cache usage", "entries", u.Entries, "size", humanize.IBytes(uint64(u.TotalBytes)))
	return u, nil
}

// Close releases the compression resources.
func (dc *DiskCache) Close() error {
	if dc.encoder != nil {
		if err := dc.encoder.Close(); err != nil {
			return fmt.Errorf("failed to close zstd encoder: %w", err)
		}
	}
	dc.decoder.Close()
	return nil
}

// Private helper methods

func (dc *DiskCache) path(key string) string {
	return filepath.Join(dc.dir, key+fileExt)
}

func (dc *DiskCache) compressedPath(key string) string {
	return filepath.Join(dc.dir, key+compressedExt)
}

// read loads an entry, decompressing it when the cache stored it
// compressed. Callers hold mu.
func (dc *DiskCache) read(key string) ([]byte, bool) {
	data, err := os.ReadFile(dc.path(key))
	if err == nil {
		return data, true
	}
	if !errors.Is(err, fs.ErrNotExist) {
		dc.logger.Warn("Failed to read cache file", "key", ShortKey(key), "error", err)
		return nil, false
	}

	data, err = os.ReadFile(dc.compressedPath(key))
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			dc.logger.Warn("Failed to read cache file", "key", ShortKey(key), "error", err)
		}
		return nil, false
	}

	decompressed, err := dc.decoder.DecodeAll(data, nil)
	if err != nil {
		dc.logger.Warn("Corrupt compressed cache file", "key", ShortKey(key), "error", err)
		return nil, false
	}
	return decompressed, true
}

// keys lists stored keys in lexicographic order. Callers hold mu.
func (dc *DiskCache) keys() ([]string, error) {
	dirEntries, err := os.ReadDir(dc.dir)
	if err != nil {
		return nil, err
	}

	keys := lo.FilterMap(dirEntries, func(e os.DirEntry, _ int) (string, bool) {
		if e.IsDir() {
			return "", false
		}
		name := e.Name()
		for _, ext := range []string{fileExt, compressedExt} {
			if key, ok := strings.CutSuffix(name, ext); ok {
				return key, ValidKey(key)
			}
		}
		return "", false
	})
	// an entry caught mid-Put may briefly exist in both forms
	keys = lo.Uniq(keys)

	// file name order differs from key order once the extension is appended
	sort.Strings(keys)
	return keys, nil
}

// entries stats every stored key. Callers hold mu.
func (dc *DiskCache) entries() ([]EntryInfo, error) {
	keys, err := dc.keys()
	if err != nil {
		return nil, fmt.Errorf("failed to list cache directory: %w", err)
	}

	infos := make([]EntryInfo, 0, len(keys))
	for _, key := range keys {
		st, err := os.Stat(dc.path(key))
		if errors.Is(err, fs.ErrNotExist) {
			st, err = os.Stat(dc.compressedPath(key))
		}
		if err != nil {
			// deleted between ReadDir and Stat
			continue
		}
		infos = append(infos, EntryInfo{
			Key:       key,
			Size:      st.Size(),
			CreatedOn: st.ModTime(),
		})
	}

	return infos, nil
}
