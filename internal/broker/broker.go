// Package broker is the shared publish/subscribe bus between server instances.
//
// Three drivers are available: "memory" keeps messages inside the process
// (single instance and tests), "nats" connects to an external NATS server, and
// "embedded" starts a NATS server inside the process and connects to it so
// other instances can join it. NATS runs in core mode: delivery is
// at-most-once and nothing is persisted.
package broker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	gobreaker "github.com/sony/gobreaker/v2"
)

// Drivers.
const (
	DriverMemory   = "memory"
	DriverNATS     = "nats"
	DriverEmbedded = "embedded"
)

// Config selects and tunes the broker driver.
type Config struct {
	Driver string

	// URL of the NATS server for the nats driver.
	URL string
	// Host and Port the embedded server listens on. Port -1 picks a free port.
	Host string
	Port int

	MaxReconnects int
	ReconnectWait time.Duration
	CloseTimeout  time.Duration

	// BufferSize is the per-subscription channel buffer for the memory driver.
	BufferSize int64

	// BreakerFailures consecutive publish failures open the circuit for BreakerTimeout.
	BreakerFailures uint32
	BreakerTimeout  time.Duration
}

// DefaultConfig returns a memory broker configuration.
func DefaultConfig() Config {
	return Config{
		Driver:          DriverMemory,
		Host:            "127.0.0.1",
		Port:            -1,
		MaxReconnects:   -1,
		ReconnectWait:   2 * time.Second,
		CloseTimeout:    5 * time.Second,
		BufferSize:      256,
		BreakerFailures: 5,
		BreakerTimeout:  30 * time.Second,
	}
}

// Broker publishes and subscribes raw messages by topic.
type Broker struct {
	publisher  message.Publisher
	subscriber message.Subscriber
	breaker    *gobreaker.CircuitBreaker[any]
	embedded   *EmbeddedServer
	driver     string
	logger     *slog.Logger

	mu     sync.RWMutex
	closed bool
}

// New creates a broker for cfg.Driver.
func New(cfg Config, logger *slog.Logger) (*Broker, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	wmLogger := watermill.NewSlogLogger(logger.With("component", "watermill"))

	b := &Broker{
		driver: cfg.Driver,
		logger: logger,
	}

	switch cfg.Driver {
	case DriverMemory, "":
		b.driver = DriverMemory
		b.publisher, b.subscriber = newMemory(cfg, wmLogger)

	case DriverNATS:
		pub, sub, err := newNATS(cfg, wmLogger)
		if err != nil {
			return nil, err
		}
		b.publisher, b.subscriber = pub, sub

	case DriverEmbedded:
		srv, err := NewEmbeddedServer(cfg.Host, cfg.Port)
		if err != nil {
			return nil, err
		}
		cfg.URL = srv.ClientURL()
		pub, sub, err := newNATS(cfg, wmLogger)
		if err != nil {
			_ = srv.Shutdown(context.Background())
			return nil, err
		}
		b.publisher, b.subscriber, b.embedded = pub, sub, srv
		logger.Info("embedded NATS server started", "url", cfg.URL)

	default:
		return nil, fmt.Errorf("unknown broker driver %q", cfg.Driver)
	}

	b.breaker = newBreaker(cfg, logger)
	return b, nil
}

// Driver returns the active driver name.
func (b *Broker) Driver() string {
	return b.driver
}

// Publish sends payload to topic. Failures trip the circuit breaker so a dead
// broker fails fast instead of stalling the caller.
func (b *Broker) Publish(_ context.Context, topic string, msg *message.Message) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return fmt.Errorf("broker is closed")
	}

	_, err := b.breaker.Execute(func() (any, error) {
		return nil, b.publisher.Publish(topic, msg)
	})
	if err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	return nil
}

// Subscribe streams messages published to topic after the call returns.
// The channel closes when ctx is canceled or the broker is closed.
// Receivers must Ack each message.
func (b *Broker) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil, fmt.Errorf("broker is closed")
	}
	return b.subscriber.Subscribe(ctx, topic)
}

// Healthy reports whether the broker accepts publishes.
func (b *Broker) Healthy() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return !b.closed && b.breaker.State() != gobreaker.StateOpen
}

// Close stops the subscriber and publisher, then any embedded server.
func (b *Broker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true

	var errs []error
	if err := b.subscriber.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close subscriber: %w", err))
	}
	// The memory driver shares one GoChannel for both sides.
	if b.driver != DriverMemory {
		if err := b.publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close publisher: %w", err))
		}
	}
	if b.embedded != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := b.embedded.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown embedded server: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close broker: %v", errs)
	}
	return nil
}

func newBreaker(cfg Config, logger *slog.Logger) *gobreaker.CircuitBreaker[any] {
	failures := cfg.BreakerFailures
	if failures == 0 {
		failures = 5
	}
	return gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        "broker-publish",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("broker circuit breaker state changed",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	})
}
