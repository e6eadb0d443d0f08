// Package broadcast fans serialized events out to live subscribers, one
// isolated hub per named channel.
package broadcast

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// DefaultQueueSize is the per-subscriber backlog before eviction.
const DefaultQueueSize = 100

// ErrEvicted is returned by Next once the subscription has been removed,
// either because its queue overflowed or because it was unsubscribed.
var ErrEvicted = errors.New("subscription evicted")

// Publisher delivers a payload to every subscriber of a channel and reports
// how many received it.
type Publisher interface {
	Publish(channel string, payload []byte) int
}

// Subscription is one live viewer's queue on a channel.
type Subscription struct {
	channel string
	queue   chan []byte
}

// Channel returns the channel the subscription belongs to.
func (s *Subscription) Channel() string {
	return s.channel
}

// Next waits up to timeout for the next payload. It returns ok=false when the
// timeout elapses with nothing queued, ErrEvicted when the queue was closed,
// and ctx.Err() when ctx ends first.
func (s *Subscription) Next(ctx context.Context, timeout time.Duration) ([]byte, bool, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case payload, open := <-s.queue:
		if !open {
			return nil, false, ErrEvicted
		}
		return payload, true, nil
	case <-timer.C:
		return nil, false, nil
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}
}

type hub struct {
	mu   sync.Mutex
	subs map[*Subscription]struct{}
}

// Broadcaster routes payloads to the subscribers of each channel. Channels
// share nothing but the lookup table.
type Broadcaster struct {
	mu   sync.Mutex
	hubs map[string]*hub

	queueSize int
	logger    *log.Logger
}

// New returns a broadcaster whose subscribers buffer up to queueSize
// payloads.
func New(queueSize int, logger *log.Logger) *Broadcaster {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Broadcaster{
		hubs:      make(map[string]*hub),
		queueSize: queueSize,
		logger:    logger,
	}
}

func (b *Broadcaster) hub(channel string) *hub {
	b.mu.Lock()
	defer b.mu.Unlock()

	h, ok := b.hubs[channel]
	if !ok {
		h = &hub{subs: make(map[*Subscription]struct{})}
		b.hubs[channel] = h
	}
	return h
}

// Subscribe registers a new subscriber on channel.
func (b *Broadcaster) Subscribe(channel string) *Subscription {
	sub := &Subscription{
		channel: channel,
		queue:   make(chan []byte, b.queueSize),
	}

	h := b.hub(channel)
	h.mu.Lock()
	h.subs[sub] = struct{}{}
	n := len(h.subs)
	h.mu.Unlock()

	b.logger.Info("Client added", "channel", channel, "clients", n)
	return sub
}

// Unsubscribe removes sub and closes its queue. Calling it more than once,
// or after an eviction, is a no-op.
func (b *Broadcaster) Unsubscribe(sub *Subscription) {
	h := b.hub(sub.channel)
	h.mu.Lock()
	_, ok := h.subs[sub]
	if ok {
		delete(h.subs, sub)
		close(sub.queue)
	}
	n := len(h.subs)
	h.mu.Unlock()

	if ok {
		b.logger.Info("Client removed", "channel", sub.channel, "clients", n)
	}
}

// Publish enqueues payload for every subscriber of channel without
// blocking. A subscriber whose queue is full is evicted; the others still
// receive the payload. The return value counts successful enqueues.
func (b *Broadcaster) Publish(channel string, payload []byte) int {
	h := b.hub(channel)
	h.mu.Lock()
	defer h.mu.Unlock()

	delivered := 0
	for sub := range h.subs {
		select {
		case sub.queue <- payload:
			delivered++
		default:
			delete(h.subs, sub)
			close(sub.queue)
			b.logger.Warn("Client queue full, evicted", "channel", channel, "clients", len(h.subs))
		}
	}

	if delivered > 0 {
		b.logger.Debug("Broadcast", "channel", channel, "clients", delivered)
	}
	return delivered
}

// ClientCount returns the number of subscribers on channel.
func (b *Broadcaster) ClientCount(channel string) int {
	h := b.hub(channel)
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// TotalClients returns the number of subscribers across all channels.
func (b *Broadcaster) TotalClients() int {
	b.mu.Lock()
	hubs := make([]*hub, 0, len(b.hubs))
	for _, h := range b.hubs {
		hubs = append(hubs, h)
	}
	b.mu.Unlock()

	total := 0
	for _, h := range hubs {
		h.mu.Lock()
		total += len(h.subs)
		h.mu.Unlock()
	}
	return total
}
