package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"
)

const (
	speechPath = "/v1/audio/speech"

	// Only the start of an error body is kept for diagnostics.
	maxErrorBody = 512
)

// BackendConfig holds configuration for BackendClient.
type BackendConfig struct {
	// Base URL of an OpenAI-compatible speech service
	URL string

	// Upper bound for one backend call, including any rate-limit wait
	Timeout time.Duration

	// Outbound requests per minute, 0 for unlimited
	RequestsPerMinute int
}

// BackendClient calls an OpenAI-compatible speech endpoint over HTTP.
type BackendClient struct {
	baseURL string
	timeout time.Duration
	client  *http.Client

	// Rate limiting, nil when unlimited
	rateLimiter *rate.Limiter

	logger *log.Logger
}

// NewBackendClient creates a client for cfg.URL.
func NewBackendClient(cfg BackendConfig, logger *log.Logger) (*BackendClient, error) {
	if cfg.URL == "" {
		return nil, errors.New("backend URL is required")
	}
	if cfg.Timeout <= 0 {
		return nil, fmt.Errorf("backend timeout must be positive, got %s", cfg.Timeout)
	}
	if logger == nil {
		logger = log.Default()
	}

	bc := &BackendClient{
		baseURL: strings.TrimRight(cfg.URL, "/"),
		timeout: cfg.Timeout,
		client:  &http.Client{},
		logger:  logger,
	}

	if cfg.RequestsPerMinute > 0 {
		bc.rateLimiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), 1)
	}

	return bc, nil
}

// Endpoint returns the backend base URL.
func (bc *BackendClient) Endpoint() string {
	return bc.baseURL
}

// Synthesize posts req to the backend and returns the response body.
func (bc *BackendClient) Synthesize(ctx context.Context, req SpeechRequest) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, bc.timeout)
	defer cancel()

	if bc.rateLimiter != nil {
		if err := bc.rateLimiter.Wait(ctx); err != nil {
			return nil, NewTTSError(ErrorCodeBackendTimeout, "TTS backend error", fmt.Errorf("%w: %v", ErrRateLimited, err))
		}
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, NewTTSError(ErrorCodeInternal, "failed to encode backend request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, bc.baseURL+speechPath, bytes.NewReader(body))
	if err != nil {
		return nil, NewTTSError(ErrorCodeBackendFailure, "TTS backend error", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := bc.client.Do(httpReq)
	if err != nil {
		return nil, bc.transportError(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, NewTTSError(ErrorCodeBackendFailure, "TTS backend error",
			fmt.Errorf("%w: %s", ErrBackendStatus, resp.Status)).
			WithContext("status", resp.StatusCode).
			WithContext("body", strings.TrimSpace(string(snippet)))
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, bc.transportError(ctx, err)
	}

	bc.logger.Debug("Backend responded", "status", resp.StatusCode, "bytes", len(audio), "duration", time.Since(start))
	return audio, nil
}

func (bc *BackendClient) transportError(ctx context.Context, err error) *TTSError {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return NewTTSError(ErrorCodeBackendTimeout, "TTS backend error",
			fmt.Errorf("timed out after %s: %w", bc.timeout, err))
	}
	return NewTTSError(ErrorCodeBackendFailure, "TTS backend error", err)
}
