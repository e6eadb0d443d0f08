package ledger

import (
	"math"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
)

// DefaultFlushEvery is the number of updates between stats writes.
const DefaultFlushEvery = 10

// Stats is the persisted request counter record.
type Stats struct {
	TotalRequests   int64 `json:"totalRequests"`
	CacheHits       int64 `json:"cacheHits"`
	CacheMisses     int64 `json:"cacheMisses"`
	BackendRequests int64 `json:"backendRequests"`
	Errors          int64 `json:"errors"`
	StartTime       int64 `json:"startTime"` // unix seconds
}

// StatsSnapshot is Stats plus the values derived at read time.
type StatsSnapshot struct {
	Stats
	Uptime       int64   `json:"uptime"`       // seconds
	CacheHitRate float64 `json:"cacheHitRate"` // percent, two decimals
}

type statsState struct {
	stats   Stats
	pending int
}

// StatsLedger counts hits, misses, backend calls and errors. Writes to disk
// are batched: the record is persisted every flushEvery updates.
type StatsLedger struct {
	state      *Guarded[statsState]
	path       string
	flushEvery int
	metrics    *Metrics
	logger     *log.Logger
	now        func() time.Time
}

// StatsOption customizes a StatsLedger.
type StatsOption func(*StatsLedger)

// WithFlushEvery sets the number of updates between writes.
func WithFlushEvery(n int) StatsOption {
	return func(l *StatsLedger) {
		if n > 0 {
			l.flushEvery = n
		}
	}
}

// WithMetrics mirrors updates into Prometheus counters.
func WithMetrics(m *Metrics) StatsOption {
	return func(l *StatsLedger) { l.metrics = m }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) StatsOption {
	return func(l *StatsLedger) { l.now = now }
}

// NewStatsLedger loads <dataDir>/stats.json if present. Counters carry over
// between runs; the start time is always reset to now.
func NewStatsLedger(dataDir string, logger *log.Logger, opts ...StatsOption) *StatsLedger {
	if logger == nil {
		logger = log.Default()
	}
	l := &StatsLedger{
		path:       filepath.Join(dataDir, StatsFile),
		flushEvery: DefaultFlushEvery,
		logger:     logger,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}

	var stats Stats
	if err := loadJSON(l.path, &stats); err != nil {
		l.logger.Warn("Failed to load stats", "error", err)
		stats = Stats{}
	}
	stats.StartTime = l.now().Unix()
	l.state = NewGuarded(statsState{stats: stats})

	return l
}

// RecordHit counts a request served from cache.
func (l *StatsLedger) RecordHit() {
	l.update(func(s *Stats) {
		s.TotalRequests++
		s.CacheHits++
	})
	if l.metrics != nil {
		l.metrics.requests.Inc()
		l.metrics.hits.Inc()
	}
}

// RecordMiss counts a request not found in cache. backend reports whether
// the request went on to call the backend.
func (l *StatsLedger) RecordMiss(backend bool) {
	l.update(func(s *Stats) {
		s.TotalRequests++
		s.CacheMisses++
		if backend {
			s.BackendRequests++
		}
	})
	if l.metrics != nil {
		l.metrics.requests.Inc()
		l.metrics.misses.Inc()
		if backend {
			l.metrics.backendRequests.Inc()
		}
	}
}

// RecordBackend counts a backend call without touching the hit/miss totals.
func (l *StatsLedger) RecordBackend() {
	l.update(func(s *Stats) { s.BackendRequests++ })
	if l.metrics != nil {
		l.metrics.backendRequests.Inc()
	}
}

// RecordError counts a failed request.
func (l *StatsLedger) RecordError() {
	l.update(func(s *Stats) { s.Errors++ })
	if l.metrics != nil {
		l.metrics.errors.Inc()
	}
}

// ResetHitMiss zeroes the hit and miss counters and persists at once.
// Other counters are kept.
func (l *StatsLedger) ResetHitMiss() {
	l.state.Update(func(st *statsState) {
		st.stats.CacheHits = 0
		st.stats.CacheMisses = 0
		st.pending = 0
		l.save(st.stats)
	})
}

// Flush persists the current record regardless of the batch counter.
func (l *StatsLedger) Flush() {
	l.state.Update(func(st *statsState) {
		st.pending = 0
		l.save(st.stats)
	})
}

// Snapshot returns a copy of the counters with uptime and hit rate filled in.
func (l *StatsLedger) Snapshot() StatsSnapshot {
	st := l.state.Snapshot(nil)

	snap := StatsSnapshot{
		Stats:  st.stats,
		Uptime: l.now().Unix() - st.stats.StartTime,
	}
	snap.CacheHitRate = HitRate(st.stats.CacheHits, st.stats.CacheMisses)
	return snap
}

// HitRate returns hits as a percentage of all lookups, rounded to two
// decimals, or 0 when there were none.
func HitRate(hits, misses int64) float64 {
	total := hits + misses
	if total <= 0 {
		return 0
	}
	return math.Round(float64(hits)/float64(total)*100*100) / 100
}

func (l *StatsLedger) update(fn func(*Stats)) {
	l.state.Update(func(st *statsState) {
		fn(&st.stats)
		st.pending++
		if st.pending >= l.flushEvery {
			st.pending = 0
			l.save(st.stats)
		}
	})
}

// save is called with the state lock held.
func (l *StatsLedger) save(s Stats) {
	if err := saveJSON(l.path, s); err != nil {
		l.logger.Error("Failed to save stats", "error", err)
	}
}
