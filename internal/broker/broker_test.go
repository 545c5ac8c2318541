package broker

import (
	"context"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func roundTrip(t *testing.T, b *Broker) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	msgs, err := b.Subscribe(ctx, "beacon.events")
	require.NoError(t, err)

	received := make(chan string, 16)
	go func() {
		for msg := range msgs {
			received <- string(msg.Payload)
			msg.Ack()
		}
	}()

	// Core NATS subscriptions are registered asynchronously; publish until one arrives.
	deadline := time.After(5 * time.Second)
	for {
		require.NoError(t, b.Publish(ctx, "beacon.events", message.NewMessage(watermill.NewUUID(), []byte("hello"))))

		select {
		case payload := <-received:
			assert.Equal(t, "hello", payload)
			return
		case <-time.After(50 * time.Millisecond):
		case <-deadline:
			t.Fatal("no message received")
		}
	}
}

func TestMemoryBroker_PreservesOrder(t *testing.T) {
	b, err := New(DefaultConfig(), nil)
	require.NoError(t, err)
	defer func() { _ = b.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	msgs, err := b.Subscribe(ctx, "ordered")
	require.NoError(t, err)

	const n = 50
	got := make(chan string, n)
	go func() {
		for msg := range msgs {
			got <- string(msg.Payload)
			msg.Ack()
		}
	}()

	for i := 0; i < n; i++ {
		payload := []byte{byte('A' + i%26), byte('0' + i/26)}
		require.NoError(t, b.Publish(ctx, "ordered", message.NewMessage(watermill.NewUUID(), payload)))
	}

	for i := 0; i < n; i++ {
		select {
		case p := <-got:
			assert.Equal(t, string([]byte{byte('A' + i%26), byte('0' + i/26)}), p)
		case <-time.After(5 * time.Second):
			t.Fatalf("message %d not received", i)
		}
	}
}

func TestMemoryBroker_RoundTrip(t *testing.T) {
	b, err := New(DefaultConfig(), nil)
	require.NoError(t, err)
	defer func() { _ = b.Close() }()

	assert.Equal(t, DriverMemory, b.Driver())
	assert.True(t, b.Healthy())
	roundTrip(t, b)
}

func TestEmbeddedBroker_RoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("starts a NATS server")
	}

	cfg := DefaultConfig()
	cfg.Driver = DriverEmbedded

	b, err := New(cfg, nil)
	require.NoError(t, err)
	defer func() { _ = b.Close() }()

	roundTrip(t, b)
}

func TestBroker_ClosedRejectsPublish(t *testing.T) {
	b, err := New(DefaultConfig(), nil)
	require.NoError(t, err)
	require.NoError(t, b.Close())
	require.NoError(t, b.Close())

	err = b.Publish(context.Background(), "t", message.NewMessage(watermill.NewUUID(), nil))
	assert.Error(t, err)
	assert.False(t, b.Healthy())

	_, err = b.Subscribe(context.Background(), "t")
	assert.Error(t, err)
}

func TestNew_UnknownDriver(t *testing.T) {
	_, err := New(Config{Driver: "kafka"}, nil)
	assert.Error(t, err)

	_, err = New(Config{Driver: DriverNATS}, nil)
	assert.Error(t, err, "nats driver without URL")
}
