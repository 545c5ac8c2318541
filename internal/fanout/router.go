// Package fanout routes domain events to connected feed subscribers.
//
// Every instance publishes events to one broker subject and consumes the same
// subject, dispatching each event to its own local subscribers. A subscriber
// only receives an event when the topic is one it asked for, it is in the
// recipient snapshot taken at publish time, and it did not cause the event.
package fanout

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/beaconapp/beacon-server/internal/id"
	"github.com/beaconapp/beacon-server/internal/metrics"
)

// ErrRouterClosed is returned by Subscribe after Shutdown.
var ErrRouterClosed = errors.New("fanout router is shut down")

// Bus is the broker capability the router needs.
type Bus interface {
	Publish(ctx context.Context, topic string, msg *message.Message) error
	Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error)
}

// Config tunes the router.
type Config struct {
	// Subject is the broker topic shared by all instances.
	Subject string
	// QueueSize bounds the outbound queue. Publishing into a full queue drops the event.
	QueueSize int
	// ClientBuffer is the per-subscriber delivery buffer.
	ClientBuffer int
	// Heartbeat is the interval of keep-alive deliveries. Zero disables them.
	Heartbeat time.Duration
}

// DefaultConfig returns the production router settings.
func DefaultConfig() Config {
	return Config{
		Subject:      "beacon.events",
		QueueSize:    1000,
		ClientBuffer: 100,
		Heartbeat:    30 * time.Second,
	}
}

// Subscriber is one open feed on this instance.
type Subscriber struct {
	ConnectedAt time.Time
	Events      chan Delivery
	Done        chan struct{}
	ID          string
	UserID      string
	topics      map[Topic]struct{}
}

// Topics returns the topics the subscriber listens to.
func (s *Subscriber) Topics() []Topic {
	out := make([]Topic, 0, len(s.topics))
	for t := range s.topics {
		out = append(out, t)
	}
	slices.Sort(out)
	return out
}

// Router publishes events through the broker and delivers them locally.
type Router struct {
	bus    Bus
	cfg    Config
	logger *slog.Logger
	outbox chan Event
	now    func() time.Time

	mu          sync.RWMutex
	subscribers map[string]*Subscriber

	readyOnce sync.Once
	ready     chan struct{}

	shutdownMu sync.RWMutex
	shutdown   bool
}

// NewRouter creates a router. It does nothing until Serve runs.
func NewRouter(bus Bus, cfg Config, logger *slog.Logger) *Router {
	def := DefaultConfig()
	if cfg.Subject == "" {
		cfg.Subject = def.Subject
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.ClientBuffer <= 0 {
		cfg.ClientBuffer = def.ClientBuffer
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &Router{
		bus:         bus,
		cfg:         cfg,
		logger:      logger,
		outbox:      make(chan Event, cfg.QueueSize),
		now:         time.Now,
		subscribers: make(map[string]*Subscriber),
		ready:       make(chan struct{}),
	}
}

// Ready is closed once the router consumes the broker subject for the first time.
// Events published before that are not delivered anywhere.
func (r *Router) Ready() <-chan struct{} {
	return r.ready
}

// String names the service for the supervisor.
func (r *Router) String() string {
	return "fanout-router"
}

// Serve runs the outbound publisher and the broker bridge until ctx is done.
// It implements suture.Service.
func (r *Router) Serve(ctx context.Context) error {
	msgs, err := r.bus.Subscribe(ctx, r.cfg.Subject)
	if err != nil {
		return fmt.Errorf("subscribe to %s: %w", r.cfg.Subject, err)
	}
	r.readyOnce.Do(func() { close(r.ready) })
	r.logger.Info("fanout router started", "subject", r.cfg.Subject)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return r.publishLoop(gctx) })
	g.Go(func() error { return r.bridgeLoop(gctx, msgs) })

	err = g.Wait()
	if ctx.Err() != nil {
		r.closeAll()
		r.logger.Info("fanout router stopped")
		return ctx.Err()
	}
	return err
}

// Publish queues an event for delivery. It never blocks and never fails the
// caller; a full queue drops the event and counts it as a publish failure.
func (r *Router) Publish(e Event) {
	if e.Data == nil {
		return
	}

	r.shutdownMu.RLock()
	defer r.shutdownMu.RUnlock()
	if r.shutdown {
		return
	}

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = r.now()
	}

	select {
	case r.outbox <- e:
	default:
		metrics.FanoutPublishFailures.Inc()
		r.logger.Warn("fanout queue full, dropping event",
			"event_id", e.ID,
			"variant", e.Data.Variant(),
		)
	}
}

// Subscribe opens a feed for userID on topics.
// Authorization of the topics themselves is the caller's job; the recipient
// snapshot of every event is still checked at delivery.
func (r *Router) Subscribe(userID string, topics ...Topic) (*Subscriber, error) {
	r.shutdownMu.RLock()
	defer r.shutdownMu.RUnlock()
	if r.shutdown {
		return nil, ErrRouterClosed
	}

	set := make(map[Topic]struct{}, len(topics))
	for _, t := range topics {
		set[t] = struct{}{}
	}

	s := &Subscriber{
		ID:          id.MustGenerate(id.Subscription),
		UserID:      userID,
		ConnectedAt: time.Now(),
		Events:      make(chan Delivery, r.cfg.ClientBuffer),
		Done:        make(chan struct{}),
		topics:      set,
	}

	r.mu.Lock()
	r.subscribers[s.ID] = s
	r.mu.Unlock()
	metrics.FanoutSubscribers.Inc()

	r.logger.Debug("subscriber connected",
		"subscriber_id", s.ID,
		"user_id", userID,
		"topics", len(set),
	)
	return s, nil
}

// Unsubscribe closes a feed. Pending deliveries are discarded.
func (r *Router) Unsubscribe(subscriberID string) {
	r.mu.Lock()
	s, ok := r.subscribers[subscriberID]
	if ok {
		delete(r.subscribers, subscriberID)
		close(s.Done)
		close(s.Events)
	}
	r.mu.Unlock()

	if ok {
		metrics.FanoutSubscribers.Dec()
		r.logger.Debug("subscriber disconnected",
			"subscriber_id", subscriberID,
			"duration", time.Since(s.ConnectedAt).String(),
		)
	}
}

// Subscribers iterates the open feeds on this instance.
func (r *Router) Subscribers() iter.Seq[*Subscriber] {
	return func(yield func(*Subscriber) bool) {
		r.mu.RLock()
		defer r.mu.RUnlock()
		for _, s := range r.subscribers {
			if !yield(s) {
				return
			}
		}
	}
}

// SubscriberCount returns the number of open feeds on this instance.
func (r *Router) SubscriberCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subscribers)
}

// Shutdown stops accepting events and subscribers and closes every open feed.
// Events still queued are published if ctx allows.
func (r *Router) Shutdown(ctx context.Context) {
	r.shutdownMu.Lock()
	r.shutdown = true
	r.shutdownMu.Unlock()

	for {
		select {
		case e := <-r.outbox:
			r.send(ctx, e)
			continue
		case <-ctx.Done():
		default:
		}
		break
	}
	r.closeAll()
}

func (r *Router) publishLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case e := <-r.outbox:
			r.send(ctx, e)
		}
	}
}

// send hands one event to the broker. Failures are reported, never returned.
func (r *Router) send(ctx context.Context, e Event) {
	payload, err := encodeEvent(e)
	if err != nil {
		metrics.FanoutPublishFailures.Inc()
		r.logger.Error("failed to encode event", "event_id", e.ID, "error", err)
		return
	}

	msg := message.NewMessage(e.ID, payload)
	if err := r.bus.Publish(ctx, r.cfg.Subject, msg); err != nil {
		metrics.FanoutPublishFailures.Inc()
		r.logger.Warn("failed to publish event",
			"event_id", e.ID,
			"variant", e.Data.Variant(),
			"error", err,
		)
	}
}

func (r *Router) bridgeLoop(ctx context.Context, msgs <-chan *message.Message) error {
	var heartbeat <-chan time.Time
	if r.cfg.Heartbeat > 0 {
		ticker := time.NewTicker(r.cfg.Heartbeat)
		defer ticker.Stop()
		heartbeat = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case msg, ok := <-msgs:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return errors.New("broker subscription closed")
			}
			e, err := decodeEvent(msg.Payload)
			msg.Ack()
			if err != nil {
				r.logger.Warn("discarding undecodable event", "message_uuid", msg.UUID, "error", err)
				continue
			}
			r.broadcast(e)

		case <-heartbeat:
			r.sendHeartbeat()
		}
	}
}

// broadcast delivers e to every local subscriber that passes the filter.
func (r *Router) broadcast(e Event) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var delivered, filtered, dropped int
	for _, s := range r.subscribers {
		d, ok := deliveryFor(e, s)
		if !ok {
			filtered++
			continue
		}

		select {
		case s.Events <- d:
			delivered++
		default:
			dropped++
			r.logger.Warn("subscriber buffer full, dropping event",
				"subscriber_id", s.ID,
				"user_id", s.UserID,
				"event_id", e.ID,
			)
		}
	}

	metrics.RecordFanout(delivered, filtered, dropped)
	r.logger.Debug("event broadcast",
		"event_id", e.ID,
		"variant", e.Data.Variant(),
		slog.Group("stats",
			"delivered", delivered,
			"filtered", filtered,
			"dropped", dropped,
		),
	)
}

// deliveryFor applies the delivery filter for one subscriber and returns the
// redacted delivery when the subscriber may see the event.
func deliveryFor(e Event, s *Subscriber) (Delivery, bool) {
	topic, ok := matchTopic(e.Topics, s.topics)
	if !ok {
		return Delivery{}, false
	}
	if !slices.Contains(e.Recipients, s.UserID) {
		return Delivery{}, false
	}
	if e.ActorID != "" && e.ActorID == s.UserID {
		return Delivery{}, false
	}

	data := e.Data
	if red, ok := data.(Redactor); ok {
		data = red.RedactFor(s.UserID)
	}

	return Delivery{
		ID:        e.ID,
		Variant:   data.Variant(),
		Topic:     topic,
		ActorID:   e.ActorID,
		Timestamp: e.Timestamp,
		Data:      data,
	}, true
}

func matchTopic(topics []Topic, want map[Topic]struct{}) (Topic, bool) {
	for _, t := range topics {
		if _, ok := want[t]; ok {
			return t, true
		}
	}
	return "", false
}

func (r *Router) sendHeartbeat() {
	d := Delivery{
		ID:        uuid.NewString(),
		Variant:   VariantHeartbeat,
		Timestamp: r.now(),
		Data:      Heartbeat{},
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.subscribers {
		select {
		case s.Events <- d:
		default:
		}
	}
}

func (r *Router) closeAll() {
	r.mu.Lock()
	n := len(r.subscribers)
	for subID, s := range r.subscribers {
		close(s.Done)
		close(s.Events)
		delete(r.subscribers, subID)
	}
	r.mu.Unlock()

	if n > 0 {
		metrics.FanoutSubscribers.Sub(float64(n))
		r.logger.Info("closed all subscribers", "count", n)
	}
}
