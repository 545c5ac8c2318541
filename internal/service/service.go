// Package service implements the beacon operations on top of the store.
//
// The store is atomic per document only. Every operation that touches both
// sides of a reference writes the authoritative side first (the beacon for
// followers and group ownership, the group for members) and the mirror second,
// so an interrupted write leaves drift the reconciler can repair toward the
// authoritative side. Events are published after the writes land and are never
// allowed to fail the operation.
package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/beaconapp/beacon-server/internal/domain"
	domainerrors "github.com/beaconapp/beacon-server/internal/errors"
	"github.com/beaconapp/beacon-server/internal/fanout"
	"github.com/beaconapp/beacon-server/internal/metrics"
	"github.com/beaconapp/beacon-server/internal/search"
	"github.com/beaconapp/beacon-server/internal/store"
	"github.com/beaconapp/beacon-server/internal/validation"
)

// validate is the shared request validator.
var validate = validation.New()

// Publisher accepts events for fan-out. *fanout.Router implements it.
type Publisher interface {
	Publish(e fanout.Event)
}

// BeaconIndex is the geo index of beacons. *search.SearchIndex implements it.
type BeaconIndex interface {
	IndexBeacon(b *domain.Beacon) error
	RemoveBeacons(ids ...string) error
	Nearby(ctx context.Context, p search.NearbyParams) ([]search.NearbyHit, error)
}

type discardPublisher struct{}

func (discardPublisher) Publish(fanout.Event) {}

func publisherOrDiscard(p Publisher) Publisher {
	if p == nil {
		return discardPublisher{}
	}
	return p
}

func loggerOrDiscard(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.New(slog.DiscardHandler)
	}
	return l
}

// translate converts store sentinels into domain errors. Domain errors and
// unknown failures pass through unchanged.
func translate(err error) error {
	if err == nil {
		return nil
	}

	var domainErr *domainerrors.Error
	if errors.As(err, &domainErr) {
		return err
	}

	var storeErr *store.Error
	if errors.As(err, &storeErr) {
		switch {
		case errors.Is(storeErr, store.ErrNotFound):
			return domainerrors.NotFound(storeErr.Message).WithCause(err)
		case errors.Is(storeErr, store.ErrAlreadyExists):
			return domainerrors.AlreadyExists(storeErr.Message).WithCause(err)
		}
	}
	return err
}

// runCascade runs c and counts it when it stops part way.
func runCascade(ctx context.Context, c *domain.Cascade, logger *slog.Logger) error {
	err := c.Run(ctx, logger)
	if errors.Is(err, domainerrors.ErrPartialCascade) {
		metrics.CascadeFailures.WithLabelValues(c.Name).Inc()
	}
	return err
}

// union merges id lists preserving first-seen order.
func union(lists ...[]string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, list := range lists {
		for _, v := range list {
			if _, ok := seen[v]; ok {
				continue
			}
			seen[v] = struct{}{}
			out = append(out, v)
		}
	}
	return out
}
