package ledger

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func newTestStats(t *testing.T, dir string, opts ...StatsOption) *StatsLedger {
	t.Helper()
	return NewStatsLedger(dir, log.New(os.Stderr), opts...)
}

func readStats(t *testing.T, dir string) (Stats, bool) {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, StatsFile))
	if os.IsNotExist(err) {
		return Stats{}, false
	}
	if err != nil {
		t.Fatalf("Failed to read stats file: %v", err)
	}
	var s Stats
	if err := json.Unmarshal(data, &s); err != nil {
		t.Fatalf("Failed to parse stats file: %v", err)
	}
	return s, true
}

func TestHitRate(t *testing.T) {
	tests := []struct {
		hits, misses int64
		want         float64
	}{
		{3, 1, 75.0},
		{0, 0, 0.0},
		{1, 2, 33.33},
		{2, 1, 66.67},
		{0, 5, 0.0},
		{5, 0, 100.0},
	}

	for _, tt := range tests {
		if got := HitRate(tt.hits, tt.misses); got != tt.want {
			t.Errorf("HitRate(%d, %d) = %v, want %v", tt.hits, tt.misses, got, tt.want)
		}
	}
}

func TestStatsLedger_Snapshot(t *testing.T) {
	start := time.Unix(1_700_000_000, 0)
	now := start
	l := newTestStats(t, t.TempDir(), WithClock(func() time.Time { return now }))

	for range 3 {
		l.RecordHit()
	}
	l.RecordMiss(true)
	l.RecordError()

	now = start.Add(90 * time.Second)
	snap := l.Snapshot()

	if snap.TotalRequests != 4 {
		t.Errorf("TotalRequests = %d, want 4", snap.TotalRequests)
	}
	if snap.CacheHits != 3 || snap.CacheMisses != 1 {
		t.Errorf("hits/misses = %d/%d, want 3/1", snap.CacheHits, snap.CacheMisses)
	}
	if snap.BackendRequests != 1 {
		t.Errorf("BackendRequests = %d, want 1", snap.BackendRequests)
	}
	if snap.Errors != 1 {
		t.Errorf("Errors = %d, want 1", snap.Errors)
	}
	if snap.CacheHitRate != 75.0 {
		t.Errorf("CacheHitRate = %v, want 75", snap.CacheHitRate)
	}
	if snap.StartTime != start.Unix() {
		t.Errorf("StartTime = %d, want %d", snap.StartTime, start.Unix())
	}
	if snap.Uptime != 90 {
		t.Errorf("Uptime = %d, want 90", snap.Uptime)
	}
}

func TestStatsLedger_ZeroSamples(t *testing.T) {
	l := newTestStats(t, t.TempDir())

	if got := l.Snapshot().CacheHitRate; got != 0 {
		t.Errorf("CacheHitRate = %v, want 0", got)
	}
}

func TestStatsLedger_ResetHitMiss(t *testing.T) {
	dir := t.TempDir()
	l := newTestStats(t, dir)

	l.RecordHit()
	l.RecordMiss(true)
	l.RecordMiss(false)
	l.RecordError()

	l.ResetHitMiss()
	snap := l.Snapshot()

	if snap.CacheHits != 0 || snap.CacheMisses != 0 {
		t.Errorf("hits/misses = %d/%d, want 0/0", snap.CacheHits, snap.CacheMisses)
	}
	if snap.TotalRequests != 3 {
		t.Errorf("TotalRequests = %d, want 3", snap.TotalRequests)
	}
	if snap.BackendRequests != 1 || snap.Errors != 1 {
		t.Errorf("backend/errors = %d/%d, want 1/1", snap.BackendRequests, snap.Errors)
	}
	if snap.CacheHitRate != 0 {
		t.Errorf("CacheHitRate = %v, want 0", snap.CacheHitRate)
	}

	persisted, ok := readStats(t, dir)
	if !ok {
		t.Fatal("ResetHitMiss did not persist stats")
	}
	if persisted.CacheHits != 0 || persisted.TotalRequests != 3 {
		t.Errorf("persisted = %+v, want hits 0 and 3 total requests", persisted)
	}
}

func TestStatsLedger_BatchedFlush(t *testing.T) {
	dir := t.TempDir()
	l := newTestStats(t, dir, WithFlushEvery(3))

	l.RecordHit()
	l.RecordHit()
	if _, ok := readStats(t, dir); ok {
		t.Fatal("stats written before the batch filled")
	}

	l.RecordHit()
	persisted, ok := readStats(t, dir)
	if !ok {
		t.Fatal("stats not written after the batch filled")
	}
	if persisted.CacheHits != 3 {
		t.Errorf("persisted CacheHits = %d, want 3", persisted.CacheHits)
	}

	l.RecordMiss(false)
	l.Flush()
	persisted, _ = readStats(t, dir)
	if persisted.CacheMisses != 1 {
		t.Errorf("persisted CacheMisses after Flush = %d, want 1", persisted.CacheMisses)
	}
}

func TestStatsLedger_Reload(t *testing.T) {
	dir := t.TempDir()

	first := newTestStats(t, dir, WithClock(func() time.Time { return time.Unix(100, 0) }))
	first.RecordHit()
	first.RecordMiss(true)
	first.Flush()

	second := newTestStats(t, dir, WithClock(func() time.Time { return time.Unix(500, 0) }))
	snap := second.Snapshot()

	if snap.CacheHits != 1 || snap.CacheMisses != 1 || snap.BackendRequests != 1 {
		t.Errorf("reloaded counters = %+v, want 1 hit, 1 miss, 1 backend request", snap.Stats)
	}
	if snap.StartTime != 500 {
		t.Errorf("StartTime = %d, want 500 (reset on start)", snap.StartTime)
	}
}

func TestStatsLedger_CorruptFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, StatsFile), []byte("{not json"), 0o644); err != nil {
		t.Fatalf("Failed to write corrupt stats: %v", err)
	}

	l := newTestStats(t, dir)
	if got := l.Snapshot().TotalRequests; got != 0 {
		t.Errorf("TotalRequests = %d, want 0", got)
	}
}

func TestStatsLedger_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	l := newTestStats(t, t.TempDir(), WithMetrics(m))

	l.RecordHit()
	l.RecordMiss(true)
	l.RecordMiss(false)
	l.RecordBackend()
	l.RecordError()

	tests := []struct {
		name string
		c    prometheus.Counter
		want float64
	}{
		{"requests", m.requests, 3},
		{"hits", m.hits, 1},
		{"misses", m.misses, 2},
		{"backend", m.backendRequests, 2},
		{"errors", m.errors, 1},
	}

	for _, tt := range tests {
		if got := testutil.ToFloat64(tt.c); got != tt.want {
			t.Errorf("%s counter = %v, want %v", tt.name, got, tt.want)
		}
	}
}
