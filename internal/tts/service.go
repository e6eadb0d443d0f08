package tts

import (
	"context"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/tts-proxy/internal/cache"
	"golang.org/x/sync/singleflight"
)

// Service answers synthesis requests from the cache, falling back to the
// backend on a miss and filling the cache with the result.
type Service struct {
	cache   AudioCache
	backend Backend
	stats   StatsRecorder
	usage   UsageRecorder
	logger  *log.Logger

	// Miss coalescing
	coalesce bool
	flights  singleflight.Group
}

// Option customizes a Service.
type Option func(*Service)

// WithCoalescing makes concurrent misses for the same audio share one
// backend call.
func WithCoalescing(enabled bool) Option {
	return func(s *Service) { s.coalesce = enabled }
}

// NewService wires the synthesis pipeline.
func NewService(c AudioCache, backend Backend, stats StatsRecorder, usage UsageRecorder, logger *log.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = log.Default()
	}
	s := &Service{
		cache:   c,
		backend: backend,
		stats:   stats,
		usage:   usage,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Backend returns the backend the service calls on a miss.
func (s *Service) Backend() Backend {
	return s.backend
}

// Synthesize returns audio for req. Failures are *TTSError values.
func (s *Service) Synthesize(ctx context.Context, req Request) (*Result, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, NewTTSError(ErrorCodeInvalidInput, ErrEmptyText.Error(), nil)
	}
	if req.Voice == "" {
		req.Voice = DefaultVoice
	}
	if req.Model == "" {
		req.Model = DefaultModel
	}

	key := cache.Fingerprint(req.Text, req.Voice, req.Rate)
	m := startSynthesis(s.logger, key, utf8.RuneCountInString(req.Text))

	if req.UseCache {
		if audio, ok := s.cache.Get(key); ok {
			s.logger.Info("Cache HIT", "key", cache.ShortKey(key))
			s.stats.RecordHit()
			m.end(len(audio), CacheHit, nil)
			return &Result{Audio: audio, Key: key, Cache: CacheHit}, nil
		}
	}

	s.logger.Info("Cache MISS", "key", cache.ShortKey(key))

	// the backend call is bounded by its own timeout only; a caller going
	// away does not abort it
	backendCtx := context.WithoutCancel(ctx)

	var (
		audio []byte
		err   error
	)
	if s.coalesce {
		s.stats.RecordMiss(false)
		audio, err = s.fetchShared(backendCtx, key, req)
	} else {
		s.stats.RecordMiss(true)
		s.usage.Record(req.Text)
		audio, err = s.fetch(backendCtx, key, req)
	}

	if err != nil {
		m.end(0, CacheMiss, err)
		return nil, err
	}

	m.end(len(audio), CacheMiss, nil)
	return &Result{Audio: audio, Key: key, Cache: CacheMiss}, nil
}

// fetchShared runs fetch once per key among concurrent callers. Only the
// caller that actually performs the call counts it. ctx must not carry a
// caller's cancellation.
func (s *Service) fetchShared(ctx context.Context, key string, req Request) ([]byte, error) {
	flight := key + "|" + req.Model + "|" + strconv.FormatBool(req.UseCache)

	v, err, _ := s.flights.Do(flight, func() (interface{}, error) {
		s.stats.RecordBackend()
		s.usage.Record(req.Text)
		return s.fetch(ctx, key, req)
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

func (s *Service) fetch(ctx context.Context, key string, req Request) ([]byte, error) {
	audio, err := s.backend.Synthesize(ctx, SpeechRequest{
		Model: req.Model,
		Input: req.Text,
		Voice: req.Voice,
	})
	if err != nil {
		s.stats.RecordError()
		return nil, AsTTSError(err).WithContext("key", cache.ShortKey(key))
	}

	if req.UseCache {
		if err := s.cache.Put(key, audio); err != nil {
			s.stats.RecordError()
			return nil, NewTTSError(ErrorCodeCacheFailure, "failed to cache audio", err).
				WithContext("key", cache.ShortKey(key))
		}
	}

	return audio, nil
}
