// Package reconcile finds and repairs one-sided membership references.
//
// Membership writes touch two documents one after the other, so an
// interrupted operation can leave one side without its mirror. The
// authoritative side decides the repair: the beacon owns its followers, the
// group owns its members, and the beacon owns which group it belongs to.
package reconcile

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/beaconapp/beacon-server/internal/domain"
	"github.com/beaconapp/beacon-server/internal/metrics"
	"github.com/beaconapp/beacon-server/internal/store"
)

// Kind classifies a finding.
type Kind string

// Finding kinds.
const (
	// A beacon participant whose user document lacks the beacon id.
	KindBeaconBackref Kind = "beacon_backref"
	// A user beacon id whose beacon is gone or no longer lists the user.
	KindStaleUserBeacon Kind = "stale_user_beacon"
	// A follower id on a beacon whose user is gone.
	KindDanglingFollower Kind = "dangling_follower"
	// A group participant whose user document lacks the group id.
	KindGroupBackref Kind = "group_backref"
	// A user group id whose group is gone or no longer lists the user.
	KindStaleUserGroup Kind = "stale_user_group"
	// A member id on a group whose user is gone.
	KindDanglingMember Kind = "dangling_member"
	// A beacon missing from its owning group's beacon set.
	KindMissingGroupBeacon Kind = "missing_group_beacon"
	// A group beacon id whose beacon is gone or owned by another group.
	KindStaleGroupBeacon Kind = "stale_group_beacon"
	// A landmark id on a beacon whose landmark is gone.
	KindStaleLandmark Kind = "stale_landmark"
)

// Finding is one asymmetric reference: Ref is listed on (or missing from) Doc.
type Finding struct {
	Kind Kind   `json:"kind"`
	Doc  string `json:"doc"`
	Ref  string `json:"ref"`
}

// Report is the result of one pass.
type Report struct {
	Users     int           `json:"users"`
	Groups    int           `json:"groups"`
	Beacons   int           `json:"beacons"`
	Landmarks int           `json:"landmarks"`
	Findings  []Finding     `json:"findings"`
	Repaired  int           `json:"repaired"`
	Skipped   int           `json:"skipped"`
	Duration  time.Duration `json:"duration"`
}

// Counts groups findings by kind.
func (r *Report) Counts() map[Kind]int {
	out := make(map[Kind]int)
	for _, f := range r.Findings {
		out[f.Kind]++
	}
	return out
}

// Reconciler scans the store for asymmetric references.
type Reconciler struct {
	store  *store.Store
	logger *slog.Logger
}

// New creates a Reconciler.
func New(s *store.Store, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Reconciler{store: s, logger: logger}
}

type snapshot struct {
	users     map[string]*domain.User
	groups    map[string]*domain.Group
	beacons   map[string]*domain.Beacon
	landmarks map[string]struct{}
}

// Reconcile scans every document. With repair set, each finding is re-checked
// against the current authoritative document and fixed with an idempotent
// add or pull; findings resolved in the meantime are skipped.
func (r *Reconciler) Reconcile(ctx context.Context, repair bool) (*Report, error) {
	start := time.Now()

	snap, err := r.load(ctx)
	if err != nil {
		return nil, err
	}

	report := &Report{
		Users:     len(snap.users),
		Groups:    len(snap.groups),
		Beacons:   len(snap.beacons),
		Landmarks: len(snap.landmarks),
		Findings:  snap.findings(),
	}

	var errs []error
	if repair {
		for _, f := range report.Findings {
			if err := ctx.Err(); err != nil {
				errs = append(errs, err)
				break
			}
			applied, err := r.repair(ctx, f)
			if err != nil {
				r.logger.Warn("repair failed", "kind", f.Kind, "doc", f.Doc, "ref", f.Ref, "error", err)
				errs = append(errs, fmt.Errorf("%s %s/%s: %w", f.Kind, f.Doc, f.Ref, err))
				continue
			}
			if !applied {
				report.Skipped++
				continue
			}
			report.Repaired++
			metrics.ReconcileRepairs.WithLabelValues(string(f.Kind)).Inc()
		}
	}
	report.Duration = time.Since(start)

	if len(report.Findings) > 0 {
		r.logger.Info("reconciliation finished",
			"findings", len(report.Findings),
			"repaired", report.Repaired,
			"skipped", report.Skipped,
			"duration", report.Duration.String(),
		)
	}

	return report, errors.Join(errs...)
}

func (r *Reconciler) load(ctx context.Context) (*snapshot, error) {
	snap := &snapshot{
		users:     make(map[string]*domain.User),
		groups:    make(map[string]*domain.Group),
		beacons:   make(map[string]*domain.Beacon),
		landmarks: make(map[string]struct{}),
	}

	for u, err := range r.store.Users.List(ctx) {
		if err != nil {
			return nil, fmt.Errorf("list users: %w", err)
		}
		snap.users[u.ID] = u
	}
	for g, err := range r.store.Groups.List(ctx) {
		if err != nil {
			return nil, fmt.Errorf("list groups: %w", err)
		}
		snap.groups[g.ID] = g
	}
	for b, err := range r.store.Beacons.List(ctx) {
		if err != nil {
			return nil, fmt.Errorf("list beacons: %w", err)
		}
		snap.beacons[b.ID] = b
	}
	for l, err := range r.store.Landmarks.List(ctx) {
		if err != nil {
			return nil, fmt.Errorf("list landmarks: %w", err)
		}
		snap.landmarks[l.ID] = struct{}{}
	}

	return snap, nil
}

func (s *snapshot) findings() []Finding {
	var out []Finding
	add := func(k Kind, doc, ref string) {
		out = append(out, Finding{Kind: k, Doc: doc, Ref: ref})
	}

	for _, b := range s.beacons {
		for _, uid := range b.Participants() {
			u, ok := s.users[uid]
			switch {
			case !ok && b.IsFollower(uid):
				add(KindDanglingFollower, b.ID, uid)
			case ok && !u.InBeacon(b.ID):
				add(KindBeaconBackref, uid, b.ID)
			}
		}
		if g, ok := s.groups[b.GroupID]; ok && !slices.Contains(g.Beacons, b.ID) {
			add(KindMissingGroupBeacon, g.ID, b.ID)
		}
		for _, lid := range b.Landmarks {
			if _, ok := s.landmarks[lid]; !ok {
				add(KindStaleLandmark, b.ID, lid)
			}
		}
	}

	for _, g := range s.groups {
		for _, uid := range g.Participants() {
			u, ok := s.users[uid]
			switch {
			case !ok && g.IsMember(uid):
				add(KindDanglingMember, g.ID, uid)
			case ok && !u.InGroup(g.ID):
				add(KindGroupBackref, uid, g.ID)
			}
		}
		for _, bid := range g.Beacons {
			if b, ok := s.beacons[bid]; !ok || b.GroupID != g.ID {
				add(KindStaleGroupBeacon, g.ID, bid)
			}
		}
	}

	for _, u := range s.users {
		for _, bid := range u.Beacons {
			if b, ok := s.beacons[bid]; !ok || !b.HasParticipant(u.ID) {
				add(KindStaleUserBeacon, u.ID, bid)
			}
		}
		for _, gid := range u.Groups {
			if g, ok := s.groups[gid]; !ok || !g.HasParticipant(u.ID) {
				add(KindStaleUserGroup, u.ID, gid)
			}
		}
	}

	slices.SortFunc(out, func(a, b Finding) int {
		return cmp.Or(
			cmp.Compare(a.Kind, b.Kind),
			cmp.Compare(a.Doc, b.Doc),
			cmp.Compare(a.Ref, b.Ref),
		)
	})
	return out
}

// repair re-reads the authoritative side and applies the fix if the finding
// still holds. It reports whether anything was written.
func (r *Reconciler) repair(ctx context.Context, f Finding) (bool, error) {
	s := r.store

	switch f.Kind {
	case KindBeaconBackref:
		b, err := s.GetBeacon(ctx, f.Ref)
		if err != nil {
			return false, ignoreNotFound(err)
		}
		if !b.HasParticipant(f.Doc) {
			return false, nil
		}
		return true, ignoreNotFound(s.AddUserBeacon(ctx, f.Doc, f.Ref))

	case KindStaleUserBeacon:
		b, err := s.GetBeacon(ctx, f.Ref)
		if err == nil && b.HasParticipant(f.Doc) {
			return false, nil
		}
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return false, err
		}
		return true, s.PullUserBeacons(ctx, f.Doc, f.Ref)

	case KindDanglingFollower:
		if _, err := s.GetUser(ctx, f.Ref); err == nil {
			return false, nil
		} else if !errors.Is(err, store.ErrNotFound) {
			return false, err
		}
		return true, s.PullBeaconFollowers(ctx, f.Doc, f.Ref)

	case KindGroupBackref:
		g, err := s.GetGroup(ctx, f.Ref)
		if err != nil {
			return false, ignoreNotFound(err)
		}
		if !g.HasParticipant(f.Doc) {
			return false, nil
		}
		return true, ignoreNotFound(s.AddUserGroup(ctx, f.Doc, f.Ref))

	case KindStaleUserGroup:
		g, err := s.GetGroup(ctx, f.Ref)
		if err == nil && g.HasParticipant(f.Doc) {
			return false, nil
		}
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return false, err
		}
		return true, s.PullUserGroups(ctx, f.Doc, f.Ref)

	case KindDanglingMember:
		if _, err := s.GetUser(ctx, f.Ref); err == nil {
			return false, nil
		} else if !errors.Is(err, store.ErrNotFound) {
			return false, err
		}
		return true, s.PullGroupMembers(ctx, f.Doc, f.Ref)

	case KindMissingGroupBeacon:
		b, err := s.GetBeacon(ctx, f.Ref)
		if err != nil {
			return false, ignoreNotFound(err)
		}
		if b.GroupID != f.Doc {
			return false, nil
		}
		return true, ignoreNotFound(s.AddGroupBeacon(ctx, f.Doc, f.Ref))

	case KindStaleGroupBeacon:
		b, err := s.GetBeacon(ctx, f.Ref)
		if err == nil && b.GroupID == f.Doc {
			return false, nil
		}
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return false, err
		}
		return true, s.PullGroupBeacons(ctx, f.Doc, f.Ref)

	case KindStaleLandmark:
		if _, err := s.GetLandmark(ctx, f.Ref); err == nil {
			return false, nil
		} else if !errors.Is(err, store.ErrNotFound) {
			return false, err
		}
		return true, s.PullBeaconLandmarks(ctx, f.Doc, f.Ref)
	}

	return false, fmt.Errorf("unknown finding kind %q", f.Kind)
}

func ignoreNotFound(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	return err
}
