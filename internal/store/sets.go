package store

import (
	"context"
	"errors"

	"github.com/beaconapp/beacon-server/internal/domain"
)

// addToSet atomically adds value to the set field of one document.
// Returns notFound when the document is missing.
func addToSet[T any](ctx context.Context, e *Entity[T], id string, field func(*T) *[]string, value string, notFound error) error {
	_, err := e.Mutate(ctx, id, func(doc *T) (bool, error) {
		return domain.AddToSet(field(doc), value), nil
	})
	if errors.Is(err, ErrNotFound) {
		return notFound
	}
	return err
}

// pullFromSet atomically removes values from the set field of one document.
// A missing document or an absent value is not an error.
func pullFromSet[T any](ctx context.Context, e *Entity[T], id string, field func(*T) *[]string, values ...string) error {
	if len(values) == 0 {
		return nil
	}
	_, err := e.Mutate(ctx, id, func(doc *T) (bool, error) {
		return domain.PullFromSet(field(doc), values...), nil
	})
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}

func notFoundAs(err, sentinel error) error {
	if errors.Is(err, ErrNotFound) {
		return sentinel
	}
	return err
}
