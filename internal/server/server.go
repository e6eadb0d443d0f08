// Package server exposes the proxy over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/tts-proxy/internal/broadcast"
	"github.com/dgnsrekt/tts-proxy/internal/cache"
	"github.com/dgnsrekt/tts-proxy/internal/ledger"
	"github.com/dgnsrekt/tts-proxy/internal/position"
	"github.com/dgnsrekt/tts-proxy/internal/tts"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// APIVersion is reported by /api/version.
const APIVersion = "1"

// Deps are the long-lived components the handlers use.
type Deps struct {
	Cache       *cache.DiskCache
	Synth       *tts.Service
	Stats       *ledger.StatsLedger
	Usage       *ledger.UsageLedger
	Positions   *position.Syncer
	Broadcaster *broadcast.Broadcaster
	Registry    *prometheus.Registry
	Logger      *log.Logger
}

// Options are the request-level settings.
type Options struct {
	Addr         string
	KeepAlive    time.Duration
	DefaultVoice string
	DefaultModel string
	Version      string
	Commit       string
	Debug        bool
}

// Server is the proxy's HTTP surface.
type Server struct {
	deps   Deps
	opts   Options
	engine *gin.Engine
	server *http.Server
	logger *log.Logger

	// Parent of every request context; cancelled on Stop so event streams
	// return instead of holding Shutdown open
	baseCtx    context.Context
	cancelBase context.CancelFunc

	requests *prometheus.CounterVec
}

// New builds the gin engine and registers every route.
func New(deps Deps, opts Options) *Server {
	if opts.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	if opts.KeepAlive <= 0 {
		opts.KeepAlive = 30 * time.Second
	}
	if opts.DefaultVoice == "" {
		opts.DefaultVoice = tts.DefaultVoice
	}
	if opts.DefaultModel == "" {
		opts.DefaultModel = tts.DefaultModel
	}
	if deps.Logger == nil {
		deps.Logger = log.Default()
	}
	if deps.Registry == nil {
		deps.Registry = prometheus.NewRegistry()
	}

	s := &Server{
		deps:   deps,
		opts:   opts,
		engine: gin.New(),
		logger: deps.Logger,
	}
	s.requests = newRequestCounter(deps.Registry)
	s.baseCtx, s.cancelBase = context.WithCancel(context.Background())

	s.registerMiddlewares()
	s.registerRoutes()

	s.server = &http.Server{
		Addr:              opts.Addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(net.Listener) context.Context {
			return s.baseCtx
		},
		// no WriteTimeout: event streams stay open indefinitely
	}

	return s
}

// Handler returns the engine, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) registerMiddlewares() {
	s.engine.Use(gin.Recovery())
	s.engine.Use(s.requestIDMiddleware())
	s.engine.Use(s.loggingMiddleware())
	s.engine.Use(s.corsMiddleware())
}

func (s *Server) registerRoutes() {
	s.engine.GET("/health", s.handleHealth)
	s.engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.deps.Registry, promhttp.HandlerOpts{})))
	s.engine.POST("/v1/audio/speech", s.handleSpeech)

	api := s.engine.Group("/api")
	{
		// Synthesis
		api.POST("/tts", s.handleTTS)
		api.POST("/tts-stream", s.handleTTSStream)

		// Cache
		api.GET("/cache/:key", s.handleCacheGet)
		api.PUT("/cache/:key", s.handleCachePut)
		api.DELETE("/cache-clear", s.handleCacheClear)
		api.GET("/cache-list", s.handleCacheList)
		api.GET("/storage-usage", s.handleStorageUsage)

		// Counters
		api.GET("/stats", s.handleStats)
		api.GET("/cache-stats", s.handleStats)
		api.GET("/usage", s.handleUsage)
		api.GET("/version", s.handleVersion)

		// Positions
		api.GET("/playback-position", s.handlePositionGet(position.KindPlayback))
		api.PUT("/playback-position", s.handlePositionPut(position.KindPlayback))
		api.GET("/scroll-position", s.handlePositionGet(position.KindScroll))
		api.PUT("/scroll-position", s.handlePositionPut(position.KindScroll))

		// Live events
		api.GET("/events/playback", s.handleEvents(position.KindPlayback))
		api.GET("/events/scroll", s.handleEvents(position.KindScroll))
	}

	s.engine.NoRoute(func(c *gin.Context) {
		s.error(c, http.StatusNotFound, "Not found")
	})
}

// Start listens on Options.Addr and blocks until the server stops.
// http.ErrServerClosed is not reported.
func (s *Server) Start() error {
	s.logger.Info("Starting HTTP server", "addr", s.opts.Addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Stop ends open event streams and gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	s.cancelBase()
	if err := s.server.Shutdown(ctx); err != nil {
		_ = s.server.Close()
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

// error writes the standard error body.
func (s *Server) error(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{"error": message})
}
