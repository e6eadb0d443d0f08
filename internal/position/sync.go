package position

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/tts-proxy/internal/broadcast"
)

// Relay forwards a published event beyond this process.
type Relay interface {
	Relay(ctx context.Context, channel string, payload []byte) error
}

// Result is returned to the client that submitted an update.
type Result struct {
	Success        bool  `json:"success"`
	Timestamp      int64 `json:"timestamp"`
	BroadcastCount int   `json:"broadcastCount"`
}

// Syncer stamps, persists and announces position updates.
type Syncer struct {
	store  *Store
	local  broadcast.Publisher
	relay  Relay
	logger *log.Logger
	now    func() time.Time
}

// NewSyncer returns a syncer publishing to local. relay may be nil.
func NewSyncer(store *Store, local broadcast.Publisher, relay Relay, logger *log.Logger) *Syncer {
	if logger == nil {
		logger = log.Default()
	}
	return &Syncer{
		store:  store,
		local:  local,
		relay:  relay,
		logger: logger,
		now:    time.Now,
	}
}

// Store returns the underlying document store.
func (s *Syncer) Store() *Store {
	return s.store
}

// Update applies doc as the new state of its kind. The document is stamped
// with the server clock, saved, then published. The last writer wins.
func (s *Syncer) Update(ctx context.Context, doc Document) (Result, error) {
	doc = doc.withStamp(s.now().UnixMilli())

	if err := s.store.Set(doc); err != nil {
		return Result{}, err
	}

	n, err := s.announce(ctx, doc, s.relay)
	if err != nil {
		return Result{}, err
	}

	return Result{Success: true, Timestamp: doc.Stamp(), BroadcastCount: n}, nil
}

// announce publishes doc locally and, when relay is set, to other instances.
// Relay failures are logged; local delivery has already happened.
func (s *Syncer) announce(ctx context.Context, doc Document, relay Relay) (int, error) {
	payload, err := Encode(doc)
	if err != nil {
		return 0, fmt.Errorf("failed to encode %s position: %w", doc.Kind(), err)
	}

	channel := doc.Kind().Channel()
	n := s.local.Publish(channel, payload)

	if relay != nil {
		if err := relay.Relay(ctx, channel, payload); err != nil {
			s.logger.Warn("Failed to relay position", "channel", channel, "error", err)
		}
	}

	s.logger.Info("Position updated", "channel", channel, "device", deviceOf(doc), "clients", n)
	return n, nil
}

func deviceOf(doc Document) string {
	switch d := doc.(type) {
	case Playback:
		return d.DeviceID
	case Scroll:
		return d.DeviceID
	}
	return ""
}
