package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":      "healthy",
		"timestamp":   time.Now().UnixMilli(),
		"sse_clients": s.deps.Broadcaster.TotalClients(),
		"tts_backend": s.deps.Synth.Backend().Endpoint(),
	})
}

func (s *Server) handleStats(c *gin.Context) {
	c.JSON(http.StatusOK, s.deps.Stats.Snapshot())
}

func (s *Server) handleUsage(c *gin.Context) {
	c.JSON(http.StatusOK, s.deps.Usage.Snapshot())
}

func (s *Server) handleVersion(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"version":    s.opts.Version,
		"commit":     s.opts.Commit,
		"apiVersion": APIVersion,
	})
}
