package main

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/tts-proxy/internal/broadcast"
	"github.com/dgnsrekt/tts-proxy/internal/cache"
	"github.com/dgnsrekt/tts-proxy/internal/config"
	"github.com/dgnsrekt/tts-proxy/internal/ledger"
	"github.com/dgnsrekt/tts-proxy/internal/position"
	"github.com/dgnsrekt/tts-proxy/internal/server"
	"github.com/dgnsrekt/tts-proxy/internal/tts"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

// app owns every long-lived component of a running proxy.
type app struct {
	cfg    config.Config
	logger *log.Logger

	cache   *cache.DiskCache
	stats   *ledger.StatsLedger
	relay   *broadcast.RedisRelay // nil when relaying is off
	watcher *position.Watcher     // nil unless watch_positions is set
	server  *server.Server
}

func newApp(cfg config.Config, logger *log.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	dc, err := cache.NewDiskCache(cache.Config{
		Dir:              cfg.CacheDir(),
		CompressionLevel: cfg.CompressionLevel,
	}, logger.WithPrefix("cache"))
	if err != nil {
		return nil, err
	}
	a.cache = dc

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := ledger.NewMetrics(reg)

	ledgerLog := logger.WithPrefix("ledger")
	a.stats = ledger.NewStatsLedger(cfg.DataDir, ledgerLog,
		ledger.WithFlushEvery(cfg.StatsFlushEvery),
		ledger.WithMetrics(metrics))
	usage := ledger.NewUsageLedger(cfg.DataDir, ledgerLog, metrics)

	b := broadcast.New(cfg.QueueSize, logger.WithPrefix("sse"))

	var relay position.Relay
	if cfg.RedisAddr != "" {
		channels := make([]string, len(position.Kinds))
		for i, k := range position.Kinds {
			channels[i] = k.Channel()
		}
		r, err := broadcast.NewRedisRelay(cfg.RedisAddr, b, channels, logger.WithPrefix("redis"))
		if err != nil {
			logger.Warn("Redis unavailable, events stay local to this instance", "addr", cfg.RedisAddr, "error", err)
		} else {
			a.relay = r
			relay = r
		}
	}

	posLog := logger.WithPrefix("position")
	store, err := position.NewStore(cfg.DataDir, posLog)
	if err != nil {
		a.close()
		return nil, err
	}
	syncer := position.NewSyncer(store, b, relay, posLog)

	if cfg.WatchPositions {
		w, err := position.NewWatcher(syncer, posLog)
		if err != nil {
			a.close()
			return nil, err
		}
		a.watcher = w
	}

	ttsLog := logger.WithPrefix("tts")
	backend, err := tts.NewBackendClient(tts.BackendConfig{
		URL:               cfg.BackendURL,
		Timeout:           cfg.TimeoutDuration(),
		RequestsPerMinute: cfg.BackendRPM,
	}, ttsLog)
	if err != nil {
		a.close()
		return nil, err
	}
	svc := tts.NewService(dc, backend, a.stats, usage, ttsLog,
		tts.WithCoalescing(cfg.CoalesceMisses))

	a.server = server.New(server.Deps{
		Cache:       dc,
		Synth:       svc,
		Stats:       a.stats,
		Usage:       usage,
		Positions:   syncer,
		Broadcaster: b,
		Registry:    reg,
		Logger:      logger.WithPrefix("http"),
	}, server.Options{
		Addr:         cfg.Addr(),
		KeepAlive:    cfg.KeepAliveDuration(),
		DefaultVoice: cfg.DefaultVoice,
		DefaultModel: cfg.DefaultModel,
		Version:      Version,
		Commit:       CommitSHA,
		Debug:        cfg.Debug,
	})

	return a, nil
}

// run serves until ctx is done or a component fails, then shuts down.
func (a *app) run(ctx context.Context) error {
	defer a.close()

	a.logger.Info("TTS proxy starting",
		"port", a.cfg.Port,
		"backend", a.cfg.BackendURL,
		"data_dir", a.cfg.DataDir,
		"relay", a.relay != nil,
		"watch", a.watcher != nil)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(a.server.Start)

	if a.relay != nil {
		g.Go(func() error {
			if err := a.relay.Run(gctx); err != nil {
				a.logger.Warn("Redis relay stopped", "error", err)
			}
			return nil
		})
	}

	if a.watcher != nil {
		g.Go(func() error {
			return a.watcher.Run(gctx)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("Shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return a.server.Stop(sctx)
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("proxy stopped: %w", err)
	}
	return nil
}

// close flushes counters and releases resources. Safe on a partly built app.
func (a *app) close() {
	if a.stats != nil {
		a.stats.Flush()
	}
	if a.relay != nil {
		if err := a.relay.Close(); err != nil {
			a.logger.Debug("Failed to close redis client", "error", err)
		}
	}
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			a.logger.Debug("Failed to close cache", "error", err)
		}
	}
}
