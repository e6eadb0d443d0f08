package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/tts-proxy/internal/config"
	"github.com/google/go-cmp/cmp"
	"github.com/spf13/viper"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	return cfg
}

func TestNewApp(t *testing.T) {
	cfg := testConfig(t)

	a, err := newApp(cfg, log.New(io.Discard))
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	defer a.close()

	if a.relay != nil {
		t.Error("relay should be off without redis_addr")
	}
	if a.watcher != nil {
		t.Error("watcher should be off by default")
	}
	if _, err := os.Stat(filepath.Join(cfg.DataDir, "tts-cache")); err != nil {
		t.Errorf("cache dir not created: %v", err)
	}

	rec := httptest.NewRecorder()
	a.server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("got status %d, want %d", rec.Code, http.StatusOK)
	}

	var health map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &health); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got, want := health["tts_backend"], "http://localhost:5050"; got != want {
		t.Errorf("got backend %v, want %v", got, want)
	}
}

func TestNewApp_RedisUnavailable(t *testing.T) {
	cfg := testConfig(t)
	cfg.RedisAddr = "127.0.0.1:1"

	a, err := newApp(cfg, log.New(io.Discard))
	if err != nil {
		t.Fatalf("an unreachable relay must not be fatal: %v", err)
	}
	defer a.close()

	if a.relay != nil {
		t.Error("relay should be disabled when redis is unreachable")
	}
}

func TestNewApp_Watcher(t *testing.T) {
	cfg := testConfig(t)
	cfg.WatchPositions = true

	a, err := newApp(cfg, log.New(io.Discard))
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	defer a.close()

	if a.watcher == nil {
		t.Fatal("watcher should be on")
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.watcher.Run(ctx) }()
	cancel()
	if err := <-done; err != nil {
		t.Errorf("watcher run: %v", err)
	}
}

func TestSetupLog(t *testing.T) {
	tests := []struct {
		level string
		want  log.Level
	}{
		{"debug", log.DebugLevel},
		{"warn", log.WarnLevel},
		{"error", log.ErrorLevel},
		{"bogus", log.InfoLevel},
	}

	for _, tt := range tests {
		cfg := config.Default()
		cfg.LogLevel = tt.level
		if got := setupLog(cfg).GetLevel(); got != tt.want {
			t.Errorf("level %q: got %v, want %v", tt.level, got, tt.want)
		}
	}
}

func TestEnsureConfigFile(t *testing.T) {
	prev := configFile
	t.Cleanup(func() { configFile = prev })

	configFile = filepath.Join(t.TempDir(), "nested", "tts-proxy.yml")
	file, err := ensureConfigFile()
	if err != nil {
		t.Fatalf("ensureConfigFile: %v", err)
	}
	if file != configFile {
		t.Errorf("got %q, want %q", file, configFile)
	}

	data, err := os.ReadFile(file)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != defaultConfig {
		t.Error("new config file should hold the defaults")
	}

	// an existing file is left alone
	if err := os.WriteFile(file, []byte("port: 9000\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := ensureConfigFile(); err != nil {
		t.Fatalf("ensureConfigFile: %v", err)
	}
	data, _ = os.ReadFile(file)
	if string(data) != "port: 9000\n" {
		t.Errorf("existing config overwritten: %q", data)
	}

	configFile = filepath.Join(t.TempDir(), "config.toml")
	if _, err := ensureConfigFile(); err == nil {
		t.Error("expected an error for a non-YAML config file")
	}
}

func TestDefaultConfigMatchesDefaults(t *testing.T) {
	v := viper.New()
	v.SetConfigType("yaml")
	if err := v.ReadConfig(strings.NewReader(defaultConfig)); err != nil {
		t.Fatalf("parse defaultConfig: %v", err)
	}

	got, err := config.Load(v)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if diff := cmp.Diff(config.Default(), got); diff != "" {
		t.Errorf("defaultConfig differs from config.Default() (-want +got):\n%s", diff)
	}
}
