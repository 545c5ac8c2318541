package supervisor

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

// flakyService fails its first failures runs, then blocks until stopped.
type flakyService struct {
	name     string
	failures int32
	starts   atomic.Int32
	running  chan struct{}
}

func newFlakyService(name string, failures int32) *flakyService {
	return &flakyService{name: name, failures: failures, running: make(chan struct{}, 1)}
}

func (s *flakyService) Serve(ctx context.Context) error {
	if s.starts.Add(1) <= s.failures {
		return errors.New("boom")
	}
	select {
	case s.running <- struct{}{}:
	default:
	}
	<-ctx.Done()
	return ctx.Err()
}

func (s *flakyService) String() string { return s.name }

func waitRunning(t *testing.T, s *flakyService) {
	t.Helper()
	select {
	case <-s.running:
	case <-time.After(5 * time.Second):
		t.Fatalf("%s never settled", s.name)
	}
}

func TestNewTree_Defaults(t *testing.T) {
	tree := NewTree(nil, TreeConfig{})
	require.NotNil(t, tree)
	assert.NotNil(t, tree.root)
	assert.NotNil(t, tree.messaging)
	assert.NotNil(t, tree.jobs)
	assert.NotNil(t, tree.api)
}

func TestTree_RunsEveryLayer(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	tree := NewTree(nil, TreeConfig{ShutdownTimeout: time.Second})
	router := newFlakyService("router", 0)
	sweep := newFlakyService("sweeper", 0)
	httpSvc := newFlakyService("http", 0)
	tree.AddMessagingService(router)
	tree.AddJobService(sweep)
	tree.AddAPIService(httpSvc)

	ctx, cancel := context.WithCancel(context.Background())
	done := tree.ServeBackground(ctx)

	waitRunning(t, router)
	waitRunning(t, sweep)
	waitRunning(t, httpSvc)

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("tree did not stop")
	}

	report, err := tree.UnstoppedServiceReport()
	require.NoError(t, err)
	assert.Empty(t, report)
}

func TestTree_RestartsFailedService(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	tree := NewTree(nil, TreeConfig{
		FailureThreshold: 10,
		FailureBackoff:   10 * time.Millisecond,
		ShutdownTimeout:  time.Second,
	})
	job := newFlakyService("sweeper", 2)
	stable := newFlakyService("router", 0)
	tree.AddJobService(job)
	tree.AddMessagingService(stable)

	ctx, cancel := context.WithCancel(context.Background())
	done := tree.ServeBackground(ctx)

	waitRunning(t, job)
	waitRunning(t, stable)
	assert.Equal(t, int32(3), job.starts.Load())
	assert.Equal(t, int32(1), stable.starts.Load(), "other layers are untouched")

	cancel()
	<-done
}
