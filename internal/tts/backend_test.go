package tts

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/charmbracelet/log"
)

func newTestBackend(t *testing.T, handler http.HandlerFunc, cfg BackendConfig) *BackendClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg.URL = srv.URL + "/"
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Second
	}
	bc, err := NewBackendClient(cfg, log.New(os.Stderr))
	if err != nil {
		t.Fatalf("NewBackendClient failed: %v", err)
	}
	return bc
}

func TestBackendClient_Synthesize(t *testing.T) {
	var got SpeechRequest
	bc := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/audio/speech" {
			t.Errorf("request = %s %s, want POST /v1/audio/speech", r.Method, r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q, want application/json", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("Failed to decode request: %v", err)
		}
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte("ID3-audio"))
	}, BackendConfig{})

	audio, err := bc.Synthesize(context.Background(), SpeechRequest{Model: "tts-1", Input: "hello", Voice: "alloy"})
	if err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}
	if string(audio) != "ID3-audio" {
		t.Errorf("audio = %q, want ID3-audio", audio)
	}

	want := SpeechRequest{Model: "tts-1", Input: "hello", Voice: "alloy"}
	if got != want {
		t.Errorf("backend received %+v, want %+v", got, want)
	}
}

func TestBackendClient_Errors(t *testing.T) {
	tests := []struct {
		name     string
		handler  http.HandlerFunc
		timeout  time.Duration
		wantCode ErrorCode
		wantIs   error
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "voice not found", http.StatusInternalServerError)
			},
			wantCode: ErrorCodeBackendFailure,
			wantIs:   ErrBackendStatus,
		},
		{
			name: "bad request",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadRequest)
			},
			wantCode: ErrorCodeBackendFailure,
			wantIs:   ErrBackendStatus,
		},
		{
			name: "timeout",
			handler: func(w http.ResponseWriter, r *http.Request) {
				select {
				case <-r.Context().Done():
				case <-time.After(2 * time.Second):
				}
			},
			timeout:  50 * time.Millisecond,
			wantCode: ErrorCodeBackendTimeout,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bc := newTestBackend(t, tt.handler, BackendConfig{Timeout: tt.timeout})

			_, err := bc.Synthesize(context.Background(), SpeechRequest{Input: "x"})
			var te *TTSError
			if !errors.As(err, &te) {
				t.Fatalf("error = %v, want *TTSError", err)
			}
			if te.Code != tt.wantCode {
				t.Errorf("Code = %s, want %s", te.Code, tt.wantCode)
			}
			if tt.wantIs != nil && !errors.Is(err, tt.wantIs) {
				t.Errorf("error %v does not wrap %v", err, tt.wantIs)
			}
		})
	}
}

func TestBackendClient_Unreachable(t *testing.T) {
	bc, err := NewBackendClient(BackendConfig{URL: "http://127.0.0.1:1", Timeout: time.Second}, log.New(os.Stderr))
	if err != nil {
		t.Fatalf("NewBackendClient failed: %v", err)
	}

	_, err = bc.Synthesize(context.Background(), SpeechRequest{Input: "x"})
	var te *TTSError
	if !errors.As(err, &te) || te.HTTPStatus() != http.StatusBadGateway {
		t.Errorf("error = %v, want a 502 *TTSError", err)
	}
}

func TestBackendClient_RateLimit(t *testing.T) {
	var calls atomic.Int32
	bc := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte("audio"))
	}, BackendConfig{RequestsPerMinute: 1, Timeout: 100 * time.Millisecond})

	if _, err := bc.Synthesize(context.Background(), SpeechRequest{Input: "first"}); err != nil {
		t.Fatalf("first call failed: %v", err)
	}

	// the next slot is a minute away, well past the timeout
	_, err := bc.Synthesize(context.Background(), SpeechRequest{Input: "second"})
	if !errors.Is(err, ErrRateLimited) {
		t.Errorf("error = %v, want ErrRateLimited", err)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("backend called %d times, want 1", got)
	}
}

func TestNewBackendClient_Validation(t *testing.T) {
	if _, err := NewBackendClient(BackendConfig{Timeout: time.Second}, nil); err == nil {
		t.Error("accepted an empty URL")
	}
	if _, err := NewBackendClient(BackendConfig{URL: "http://x"}, nil); err == nil {
		t.Error("accepted a zero timeout")
	}
}
