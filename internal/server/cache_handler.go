package server

import (
	"errors"
	"io"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/dgnsrekt/tts-proxy/internal/cache"
	"github.com/dustin/go-humanize"
	"github.com/gin-gonic/gin"
)

const (
	// Clients upload pre-rendered audio; bound a single blob.
	maxAudioBody = 64 << 20

	defaultListLimit = 100
	maxListLimit     = 1000
)

// handleCacheGet serves a blob by full key or key prefix.
func (s *Server) handleCacheGet(c *gin.Context) {
	key := c.Param("key")

	data, matched, ok := s.deps.Cache.GetByPrefix(key)
	if !ok {
		s.error(c, http.StatusNotFound, "Cache not found")
		return
	}

	if matched != key {
		s.logger.Debug("Cache prefix match", "prefix", key, "key", cache.ShortKey(matched))
	}
	s.audio(c, data)
}

// handleCachePut stores the raw request body under key.
func (s *Server) handleCachePut(c *gin.Context) {
	key := c.Param("key")

	data, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxAudioBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.error(c, http.StatusRequestEntityTooLarge, "Request body too large")
			return
		}
		s.error(c, http.StatusBadRequest, "Unable to read request body")
		return
	}
	if len(data) == 0 {
		s.error(c, http.StatusBadRequest, msgNoData)
		return
	}

	if err := s.deps.Cache.Put(key, data); err != nil {
		if errors.Is(err, cache.ErrInvalidKey) {
			s.error(c, http.StatusBadRequest, "Invalid cache key")
			return
		}
		s.logger.Error("Cache put error", "key", cache.ShortKey(key), "error", err)
		s.error(c, http.StatusInternalServerError, err.Error())
		return
	}

	s.logger.Info("Cache saved", "key", cache.ShortKey(key), "size", humanize.IBytes(uint64(len(data))))
	c.JSON(http.StatusOK, gin.H{"success": true, "key": key})
}

// handleCacheClear deletes every blob and resets the hit/miss counters.
func (s *Server) handleCacheClear(c *gin.Context) {
	res, err := s.deps.Cache.Clear()
	if err != nil {
		s.logger.Error("Cache clear error", "error", err)
		s.error(c, http.StatusInternalServerError, err.Error())
		return
	}

	s.deps.Stats.ResetHitMiss()

	c.JSON(http.StatusOK, gin.H{"success": true, "deletedCount": res.Deleted})
}

// handleCacheList pages through stored keys: ?limit=&offset=.
func (s *Server) handleCacheList(c *gin.Context) {
	limit, err := queryInt(c, "limit", defaultListLimit)
	if err != nil || limit < 1 {
		s.error(c, http.StatusBadRequest, "limit must be a positive integer")
		return
	}
	limit = min(limit, maxListLimit)

	offset, err := queryInt(c, "offset", 0)
	if err != nil || offset < 0 {
		s.error(c, http.StatusBadRequest, "offset must be a non-negative integer")
		return
	}

	entries, total, err := s.deps.Cache.List(offset, limit)
	if err != nil {
		s.logger.Error("Cache list error", "error", err)
		s.error(c, http.StatusInternalServerError, err.Error())
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"cacheKeys": entries,
		"total":     total,
		"offset":    offset,
		"limit":     limit,
	})
}

// handleStorageUsage reports the size of the audio cache.
func (s *Server) handleStorageUsage(c *gin.Context) {
	u, err := s.deps.Cache.Usage()
	if err != nil {
		s.logger.Error("Storage usage error", "error", err)
		s.error(c, http.StatusInternalServerError, err.Error())
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"blobCount":   u.Entries,
		"totalBytes":  u.TotalBytes,
		"totalMB":     math.Round(float64(u.TotalBytes)/(1024*1024)*100) / 100,
		"totalHuman":  humanize.IBytes(uint64(u.TotalBytes)),
		"lastUpdated": time.Now().UnixMilli(),
	})
}

func queryInt(c *gin.Context, name string, def int) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}
