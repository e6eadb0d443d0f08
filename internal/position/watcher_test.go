package position

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/charmbracelet/log"
)

func TestWatcher_PublishesExternalWrites(t *testing.T) {
	syncer, b := newTestSyncer(t, nil)
	sub := b.Subscribe("scroll")

	w, err := NewWatcher(syncer, log.New(os.Stderr))
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	// our own update is delivered exactly once
	if _, err := syncer.Update(ctx, Scroll{ScrollTop: 1, DeviceID: "self"}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if _, ok, err := sub.Next(ctx, time.Second); err != nil || !ok {
		t.Fatalf("own update not delivered: ok=%v err=%v", ok, err)
	}

	// another process rewrites the file
	external := Scroll{ScrollTop: 777, NotePath: "x.md", Timestamp: 123456, DeviceID: "other"}
	data, _ := json.Marshal(external)
	path := filepath.Join(syncer.Store().Dir(), KindScroll.File())
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("Failed to write position file: %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		payload, ok, err := sub.Next(ctx, 100*time.Millisecond)
		if err != nil {
			t.Fatalf("Next failed: %v", err)
		}
		if !ok {
			continue
		}
		var got Scroll
		if err := json.Unmarshal(payload, &got); err != nil {
			t.Fatalf("payload is not JSON: %v", err)
		}
		if got.DeviceID == "self" {
			t.Fatal("own update delivered twice")
		}
		if got != external {
			t.Fatalf("got %+v, want %+v", got, external)
		}
		return
	}
	t.Fatal("external change was not published")
}
