// Package sse writes fan-out deliveries to HTTP clients as Server-Sent Events.
package sse

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	domainerrors "github.com/beaconapp/beacon-server/internal/errors"
	"github.com/beaconapp/beacon-server/internal/fanout"
	"github.com/beaconapp/beacon-server/internal/http/response"
)

const writeDeadline = 60 * time.Second

// Feed is the subscription side of the fan-out router.
type Feed interface {
	Subscribe(userID string, topics ...fanout.Topic) (*fanout.Subscriber, error)
	Unsubscribe(subscriberID string)
}

// Streamer turns router subscriptions into event streams.
type Streamer struct {
	feed   Feed
	logger *slog.Logger
}

// NewStreamer creates a Streamer.
func NewStreamer(feed Feed, logger *slog.Logger) *Streamer {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Streamer{feed: feed, logger: logger}
}

// Stream subscribes userID to topics and writes deliveries to w until the
// client goes away or the router closes the subscription.
func (s *Streamer) Stream(ctx context.Context, w http.ResponseWriter, userID string, topics []fanout.Topic) {
	if ctx.Err() != nil {
		return
	}

	// Nothing is written until the subscription exists, so a failure can
	// still be reported with a proper status.
	sub, err := s.feed.Subscribe(userID, topics...)
	if err != nil {
		s.logger.Error("failed to subscribe", "user_id", userID, "error", err)
		response.HandleError(w, domainerrors.Unavailable("event stream is not available").WithCause(err), s.logger)
		return
	}
	defer s.feed.Unsubscribe(sub.ID)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // nginx

	rc := http.NewResponseController(w)
	if err := rc.Flush(); err != nil {
		s.logger.Error("failed to flush headers", "error", err)
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	log := s.logger.With("subscriber_id", sub.ID, "user_id", userID)

	if err := s.write(w, rc, "connected", map[string]any{
		"subscriber_id": sub.ID,
		"topics":        sub.Topics(),
	}); err != nil {
		log.Warn("failed to send connection message", "error", err)
		return
	}

	for {
		select {
		case d, ok := <-sub.Events:
			if !ok {
				log.Info("stream closed by router")
				return
			}
			if err := s.write(w, rc, string(d.Variant), d); err != nil {
				log.Info("client disconnected during send")
				return
			}

		case <-sub.Done:
			log.Info("stream closed by router")
			return

		case <-ctx.Done():
			log.Debug("client context canceled")
			return
		}
	}
}

func (s *Streamer) write(w http.ResponseWriter, rc *http.ResponseController, event string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal event data: %w", err)
	}

	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, payload); err != nil {
		return err
	}
	if err := rc.Flush(); err != nil {
		return err
	}

	// Not every ResponseWriter supports deadlines.
	if err := rc.SetWriteDeadline(time.Now().Add(writeDeadline)); err != nil {
		s.logger.Debug("failed to set write deadline", "error", err)
	}
	return nil
}
