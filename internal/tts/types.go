package tts

const (
	// DefaultVoice is used when a request names no voice.
	DefaultVoice = "alloy"

	// DefaultModel is sent to the backend when a request names no model.
	DefaultModel = "tts-1"
)

// CacheStatus tells whether audio came from the cache.
type CacheStatus string

const (
	CacheHit  CacheStatus = "HIT"
	CacheMiss CacheStatus = "MISS"
)

// Request is one synthesis request after decoding.
type Request struct {
	Text  string
	Voice string
	Model string

	// Rate is the speaking rate as the client sent it. It is part of the
	// cache key but never forwarded to the backend.
	Rate string

	// UseCache false skips the lookup and the store, but the request is
	// still counted.
	UseCache bool
}

// Result is the audio for a request and where it came from.
type Result struct {
	Audio []byte
	Key   string
	Cache CacheStatus
}

// SpeechRequest is the backend's request body.
type SpeechRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
	Voice string `json:"voice"`
}
