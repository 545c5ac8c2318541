package sweeper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/beaconapp/beacon-server/internal/metrics"
)

// Schedule is a daily wall-clock time.
type Schedule struct {
	Hour   int
	Minute int
}

// ParseSchedule parses "HH:MM".
func ParseSchedule(s string) (Schedule, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return Schedule{}, fmt.Errorf("invalid sweep time %q, expected HH:MM: %w", s, err)
	}
	return Schedule{Hour: t.Hour(), Minute: t.Minute()}, nil
}

// Next returns the first scheduled instant strictly after now, in now's location.
func (s Schedule) Next(now time.Time) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), s.Hour, s.Minute, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// Job runs the sweeper on its schedule. It implements suture.Service.
type Job struct {
	sweeper      *Sweeper
	schedule     Schedule
	runAtStartup bool
	logger       *slog.Logger
	now          func() time.Time
}

// NewJob creates a Job.
func NewJob(sw *Sweeper, schedule Schedule, runAtStartup bool, logger *slog.Logger) *Job {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Job{
		sweeper:      sw,
		schedule:     schedule,
		runAtStartup: runAtStartup,
		logger:       logger,
		now:          time.Now,
	}
}

// String names the service for the supervisor.
func (j *Job) String() string {
	return "expiry-sweeper"
}

// Serve waits for each scheduled time and runs one sweep. A failed run is
// logged and abandoned; the next run picks up whatever still qualifies.
func (j *Job) Serve(ctx context.Context) error {
	if j.runAtStartup {
		_, _ = j.RunOnce(ctx)
	}

	for {
		next := j.schedule.Next(j.now())
		j.logger.Debug("next sweep scheduled", "at", next)

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
			_, _ = j.RunOnce(ctx)
		}
	}
}

// RunOnce performs one sweep and records its outcome.
func (j *Job) RunOnce(ctx context.Context) (Report, error) {
	report, err := j.sweeper.Run(ctx, j.now())
	metrics.RecordSweep(report.Duration, report.BeaconsDeleted, report.LandmarksDeleted, err)

	if err != nil {
		j.logger.Error("sweep abandoned",
			"error", err,
			"beacons_deleted", report.BeaconsDeleted,
			"landmarks_deleted", report.LandmarksDeleted,
		)
		return report, err
	}

	j.logger.Info("sweep complete",
		"replayed", report.Replayed,
		"selected", report.Selected,
		"beacons_deleted", report.BeaconsDeleted,
		"landmarks_deleted", report.LandmarksDeleted,
		"groups_touched", report.GroupsTouched,
		"users_touched", report.UsersTouched,
		"repaired", report.Repaired,
		"duration", report.Duration.String(),
	)
	return report, nil
}
