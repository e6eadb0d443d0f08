package ledger

import (
	"os"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/go-cmp/cmp"
)

func TestUsageLedger_Record(t *testing.T) {
	dir := t.TempDir()
	l := NewUsageLedger(dir, log.New(os.Stderr), nil)

	day := time.Date(2025, 3, 14, 23, 30, 0, 0, time.Local)
	l.now = func() time.Time { return day }

	l.Record("hello")
	l.Record("안녕하세요") // five code points, fifteen bytes

	day = day.Add(time.Hour)
	l.Record("ab")

	want := Usage{
		TotalCharacters: 12,
		TotalRequests:   3,
		DailyUsage: map[string]DayUsage{
			"2025-03-14": {Characters: 10, Requests: 2},
			"2025-03-15": {Characters: 2, Requests: 1},
		},
	}

	if diff := cmp.Diff(want, l.Snapshot()); diff != "" {
		t.Errorf("usage mismatch (-want +got):\n%s", diff)
	}

	// every update is persisted
	reloaded := NewUsageLedger(dir, log.New(os.Stderr), nil)
	if diff := cmp.Diff(want, reloaded.Snapshot()); diff != "" {
		t.Errorf("reloaded usage mismatch (-want +got):\n%s", diff)
	}
}

func TestUsageLedger_SnapshotIsDeepCopy(t *testing.T) {
	l := NewUsageLedger(t.TempDir(), log.New(os.Stderr), nil)
	l.Record("abc")

	snap := l.Snapshot()
	for k := range snap.DailyUsage {
		snap.DailyUsage[k] = DayUsage{Characters: 999}
	}

	again := l.Snapshot()
	for k, v := range again.DailyUsage {
		if v.Characters != 3 {
			t.Errorf("day %s characters = %d, want 3", k, v.Characters)
		}
	}
}

func TestUsageLedger_EmptySnapshot(t *testing.T) {
	l := NewUsageLedger(t.TempDir(), log.New(os.Stderr), nil)

	snap := l.Snapshot()
	if snap.DailyUsage == nil {
		t.Error("DailyUsage is nil, want an empty map")
	}
}

func TestUsageLedger_Concurrent(t *testing.T) {
	l := NewUsageLedger(t.TempDir(), log.New(os.Stderr), nil)

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.Record("four")
		}()
	}
	wg.Wait()

	snap := l.Snapshot()
	if snap.TotalRequests != 20 || snap.TotalCharacters != 80 {
		t.Errorf("totals = %d requests, %d chars, want 20 and 80", snap.TotalRequests, snap.TotalCharacters)
	}
}
