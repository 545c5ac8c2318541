package domain

import (
	"context"
	"log/slog"

	domainerrors "github.com/beaconapp/beacon-server/internal/errors"
)

// CascadeStep is one idempotent write in a multi-document cascade.
// Running a step whose effect already landed must succeed without changing anything.
type CascadeStep struct {
	Name string
	Run  func(ctx context.Context) error
}

// Cascade is an ordered list of steps applied children first, parents last.
// There is no rollback: a cascade that stops part way is re-run to converge.
type Cascade struct {
	Name  string
	Steps []CascadeStep
}

// NewCascade creates an empty cascade.
func NewCascade(name string) *Cascade {
	return &Cascade{Name: name}
}

// Then appends a step and returns the cascade for chaining.
func (c *Cascade) Then(name string, run func(ctx context.Context) error) *Cascade {
	c.Steps = append(c.Steps, CascadeStep{Name: name, Run: run})
	return c
}

// Run applies the steps in order and stops at the first failure.
// A failure after at least one step landed is logged and returned as a
// PartialCascade error naming the steps that completed and the one that
// failed. A failure of the first step is returned unchanged.
func (c *Cascade) Run(ctx context.Context, logger *slog.Logger) error {
	completed := make([]string, 0, len(c.Steps))

	for _, step := range c.Steps {
		select {
		case <-ctx.Done():
			return c.fail(logger, completed, step.Name, ctx.Err())
		default:
		}

		if err := step.Run(ctx); err != nil {
			return c.fail(logger, completed, step.Name, err)
		}
		completed = append(completed, step.Name)
	}

	return nil
}

func (c *Cascade) fail(logger *slog.Logger, completed []string, step string, err error) error {
	if len(completed) == 0 {
		return err
	}
	if logger != nil {
		logger.Error("cascade interrupted",
			"cascade", c.Name,
			"failed_step", step,
			"completed", completed,
			"error", err,
		)
	}
	return domainerrors.PartialCascade(c.Name, completed, step, err)
}
