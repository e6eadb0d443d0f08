package tts

import (
	"time"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/tts-proxy/internal/cache"
)

// synthesisMetrics tracks one request from lookup to response.
type synthesisMetrics struct {
	logger *log.Logger

	Key        string
	TextLength int
	Start      time.Time
	Duration   time.Duration
	AudioBytes int
	Cache      CacheStatus
	Err        error
}

func startSynthesis(logger *log.Logger, key string, textLength int) *synthesisMetrics {
	m := &synthesisMetrics{
		logger:     logger,
		Key:        key,
		TextLength: textLength,
		Start:      time.Now(),
	}
	logger.Debug("Synthesis started", "key", cache.ShortKey(key), "textLength", textLength)
	return m
}

func (m *synthesisMetrics) end(audioBytes int, status CacheStatus, err error) {
	m.Duration = time.Since(m.Start)
	m.AudioBytes = audioBytes
	m.Cache = status
	m.Err = err

	if err != nil {
		m.logger.Error("Synthesis failed",
			"key", cache.ShortKey(m.Key),
			"duration", m.Duration,
			"error", err)
		return
	}

	m.logger.Debug("Synthesis completed",
		"key", cache.ShortKey(m.Key),
		"textLength", m.TextLength,
		"audioBytes", m.AudioBytes,
		"duration", m.Duration,
		"cache", m.Cache)
}
