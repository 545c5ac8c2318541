// Package sweeper reclaims beacons long past their expiry.
package sweeper

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/beaconapp/beacon-server/internal/domain"
	"github.com/beaconapp/beacon-server/internal/reconcile"
	"github.com/beaconapp/beacon-server/internal/store"
)

// pullConcurrency bounds parallel reference pulls.
const pullConcurrency = 8

// Index is the part of the search index the sweeper keeps in step.
type Index interface {
	RemoveBeacons(ids ...string) error
}

// Reconciler repairs references left asymmetric by interrupted operations.
type Reconciler interface {
	Reconcile(ctx context.Context, repair bool) (*reconcile.Report, error)
}

// Report summarizes one run.
type Report struct {
	Replayed         bool          `json:"replayed"`
	Selected         int           `json:"selected"`
	LandmarksDeleted int           `json:"landmarks_deleted"`
	BeaconsDeleted   int           `json:"beacons_deleted"`
	GroupsTouched    int           `json:"groups_touched"`
	UsersTouched     int           `json:"users_touched"`
	Repaired         int           `json:"repaired"`
	Duration         time.Duration `json:"duration"`
}

// Options configures a Sweeper. Index and Reconciler are optional.
type Options struct {
	Retention  time.Duration
	Index      Index
	Reconciler Reconciler
	Logger     *slog.Logger
}

// Sweeper deletes beacons whose expiry is older than the retention window,
// together with their landmarks and every reference to them.
type Sweeper struct {
	store      *store.Store
	index      Index
	reconciler Reconciler
	retention  time.Duration
	logger     *slog.Logger
}

// New creates a Sweeper.
func New(s *store.Store, opts Options) *Sweeper {
	if opts.Retention <= 0 {
		opts.Retention = domain.ReclaimAfter
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	return &Sweeper{
		store:      s,
		index:      opts.Index,
		reconciler: opts.Reconciler,
		retention:  opts.Retention,
		logger:     opts.Logger,
	}
}

// Run performs one reclamation pass as of now.
//
// Pending reference pulls are journaled before anything is deleted. An
// abandoned run leaves the journal behind and the next run finishes it first,
// so beacons deleted by the abandoned run never stay referenced.
func (s *Sweeper) Run(ctx context.Context, now time.Time) (Report, error) {
	start := time.Now()
	var report Report

	pending, err := s.store.LoadSweepJournal(ctx)
	if err != nil {
		return report, err
	}
	if pending != nil {
		s.logger.Info("replaying unfinished sweep", "beacons", len(pending.BeaconIDs))
		if err := s.finish(ctx, pending, &report); err != nil {
			return report, fmt.Errorf("replay sweep journal: %w", err)
		}
		report.Replayed = true
	}

	cutoff := now.Add(-s.retention)
	ids, err := s.store.ListBeaconIDsExpiredBefore(ctx, cutoff)
	if err != nil {
		return report, fmt.Errorf("select expired beacons: %w", err)
	}
	report.Selected = len(ids)

	if len(ids) > 0 {
		beacons, err := s.store.Beacons.GetMany(ctx, ids)
		if err != nil {
			return report, fmt.Errorf("load expired beacons: %w", err)
		}

		journal := plan(beacons)
		if err := s.store.SaveSweepJournal(ctx, journal); err != nil {
			return report, fmt.Errorf("save sweep journal: %w", err)
		}

		landmarks, err := s.store.ListLandmarkIDsByBeacon(ctx, journal.BeaconIDs...)
		if err != nil {
			return report, fmt.Errorf("select landmarks: %w", err)
		}
		n, err := s.store.DeleteLandmarks(ctx, landmarks)
		if err != nil {
			return report, fmt.Errorf("delete landmarks: %w", err)
		}
		report.LandmarksDeleted = n

		n, err = s.store.DeleteBeacons(ctx, journal.BeaconIDs)
		if err != nil {
			return report, fmt.Errorf("delete beacons: %w", err)
		}
		report.BeaconsDeleted = n

		if s.index != nil {
			if err := s.index.RemoveBeacons(journal.BeaconIDs...); err != nil {
				s.logger.Warn("failed to remove reclaimed beacons from search index", "error", err)
			}
		}

		if err := s.finish(ctx, journal, &report); err != nil {
			return report, err
		}
	}

	if s.reconciler != nil {
		rr, err := s.reconciler.Reconcile(ctx, true)
		if err != nil {
			s.logger.Warn("post-sweep reconciliation incomplete", "error", err)
		}
		if rr != nil {
			report.Repaired = rr.Repaired
		}
	}

	report.Duration = time.Since(start)
	return report, nil
}

// plan groups the selected beacons by owning group and by every participant.
func plan(beacons []*domain.Beacon) *store.SweepJournal {
	j := &store.SweepJournal{
		BeaconIDs: make([]string, 0, len(beacons)),
		Groups:    make(map[string][]string),
		Users:     make(map[string][]string),
	}
	for _, b := range beacons {
		j.BeaconIDs = append(j.BeaconIDs, b.ID)
		if b.GroupID != "" {
			j.Groups[b.GroupID] = append(j.Groups[b.GroupID], b.ID)
		}
		for _, uid := range b.Participants() {
			j.Users[uid] = append(j.Users[uid], b.ID)
		}
	}
	return j
}

// finish applies the journaled pulls and clears the journal.
func (s *Sweeper) finish(ctx context.Context, j *store.SweepJournal, report *Report) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(pullConcurrency)

	for _, groupID := range slices.Sorted(maps.Keys(j.Groups)) {
		ids := j.Groups[groupID]
		g.Go(func() error {
			if err := s.store.PullGroupBeacons(gctx, groupID, ids...); err != nil {
				return fmt.Errorf("pull beacons from group %s: %w", groupID, err)
			}
			return nil
		})
	}
	for _, userID := range slices.Sorted(maps.Keys(j.Users)) {
		ids := j.Users[userID]
		g.Go(func() error {
			if err := s.store.PullUserBeacons(gctx, userID, ids...); err != nil {
				return fmt.Errorf("pull beacons from user %s: %w", userID, err)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	report.GroupsTouched += len(j.Groups)
	report.UsersTouched += len(j.Users)

	if err := s.store.ClearSweepJournal(ctx); err != nil {
		return fmt.Errorf("clear sweep journal: %w", err)
	}
	return nil
}
