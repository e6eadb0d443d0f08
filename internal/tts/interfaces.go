package tts

import "context"

// Backend turns text into encoded audio.
type Backend interface {
	// Synthesize returns the audio bytes for req. Implementations bound the
	// call with their own timeout and report failures as *TTSError.
	Synthesize(ctx context.Context, req SpeechRequest) ([]byte, error)

	// Endpoint describes where requests go, for health output.
	Endpoint() string
}

// AudioCache defines the contract for caching synthesized audio.
type AudioCache interface {
	// Get retrieves cached audio for the given key.
	// Returns nil, false if not found.
	Get(key string) ([]byte, bool)

	// Put stores audio data with the given key, replacing any entry.
	Put(key string, audio []byte) error
}

// StatsRecorder receives request outcomes.
type StatsRecorder interface {
	RecordHit()
	RecordMiss(backend bool)
	RecordBackend()
	RecordError()
}

// UsageRecorder receives the text of every backend call.
type UsageRecorder interface {
	Record(text string)
}
