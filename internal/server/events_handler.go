package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/dgnsrekt/tts-proxy/internal/broadcast"
	"github.com/dgnsrekt/tts-proxy/internal/position"
	"github.com/gin-gonic/gin"
)

const keepAliveFrame = ": keep-alive\n\n"

func writeEvent(w io.Writer, channel string, payload []byte) error {
	_, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", channel, payload)
	return err
}

// handleEvents streams a channel as Server-Sent Events. The current document
// is sent first, then every published update, with a comment frame whenever
// the channel is quiet for a keep-alive interval.
func (s *Server) handleEvents(kind position.Kind) gin.HandlerFunc {
	channel := kind.Channel()

	return func(c *gin.Context) {
		flusher, ok := c.Writer.(http.Flusher)
		if !ok {
			s.error(c, http.StatusInternalServerError, "Streaming not supported")
			return
		}

		// subscribe before reading the current state so nothing published in
		// between is lost; a client may see the same document twice
		sub := s.deps.Broadcaster.Subscribe(channel)
		defer s.deps.Broadcaster.Unsubscribe(sub)

		c.Header("Content-Type", "text/event-stream")
		c.Header("Cache-Control", "no-cache")
		c.Header("Connection", "keep-alive")
		c.Header("X-Accel-Buffering", "no")
		c.Status(http.StatusOK)

		doc, err := s.deps.Positions.Store().Get(kind)
		if err != nil {
			s.logger.Warn("Unreadable position, sending default", "channel", channel, "error", err)
			doc = position.Default(kind)
		}
		initial, err := position.Encode(doc)
		if err != nil {
			s.logger.Error("Failed to encode position", "channel", channel, "error", err)
			return
		}
		if err := writeEvent(c.Writer, channel, initial); err != nil {
			return
		}
		flusher.Flush()
		s.logger.Info("Sent initial state to new client", "channel", channel)

		ctx := c.Request.Context()
		for {
			payload, ok, err := sub.Next(ctx, s.opts.KeepAlive)
			switch {
			case errors.Is(err, broadcast.ErrEvicted):
				s.logger.Warn("Client evicted", "channel", channel)
				return
			case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
				s.logger.Info("Client disconnected", "channel", channel)
				return
			case err != nil:
				s.logger.Error("SSE error", "channel", channel, "error", err)
				return
			}

			if ok {
				err = writeEvent(c.Writer, channel, payload)
			} else {
				_, err = io.WriteString(c.Writer, keepAliveFrame)
			}
			if err != nil {
				s.logger.Info("Client disconnected", "channel", channel)
				return
			}
			flusher.Flush()
		}
	}
}
