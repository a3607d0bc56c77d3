package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"sync"
	"time"

	"pressing/internal/logging"
	"pressing/internal/services"
	"pressing/internal/workpool"
)

// UnitFunc is the body of a work unit. It runs only after every prerequisite
// succeeded.
type UnitFunc func(ctx context.Context, u *Unit) error

// Unit is the per-execution scope handed to a UnitFunc. Outputs registered
// through it are removed when the body fails or is interrupted.
type Unit struct {
	name   string
	phase  PhaseKey
	logger *slog.Logger

	mu      sync.Mutex
	outputs []string
}

// Name returns the unit label.
func (u *Unit) Name() string { return u.name }

// Phase returns the unit's phase key.
func (u *Unit) Phase() PhaseKey { return u.phase }

// Logger returns the unit logger carrying phase and track fields.
func (u *Unit) Logger() *slog.Logger { return u.logger }

// Output registers path as written by this unit and returns it unchanged.
func (u *Unit) Output(path string) string {
	u.mu.Lock()
	u.outputs = append(u.outputs, path)
	u.mu.Unlock()
	return path
}

func (u *Unit) rollback() {
	u.mu.Lock()
	outputs := u.outputs
	u.outputs = nil
	u.mu.Unlock()
	for i := len(outputs) - 1; i >= 0; i-- {
		path := outputs[i]
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			u.logger.Warn("failed to remove incomplete output",
				logging.String("path", path),
				logging.Error(err),
				logging.String(logging.FieldEventType, "rollback_failed"),
			)
			continue
		}
		u.logger.Debug("removed incomplete output", logging.String("path", path))
	}
}

// PrerequisiteError is returned by a unit whose prerequisite failed. Origin is
// the handle whose own body produced Err, so chains of dependents all point at
// the same root.
type PrerequisiteError struct {
	Phase  PhaseKey
	Origin *workpool.Handle
	Err    error
}

func (e *PrerequisiteError) Error() string {
	origin := "unknown"
	if e.Origin != nil {
		origin = e.Origin.Name()
	}
	return fmt.Sprintf("%s: prerequisite %s failed: %v", e.Phase, origin, e.Err)
}

func (e *PrerequisiteError) Unwrap() error { return e.Err }

// Scheduler submits units into phase groups on a shared pool.
type Scheduler struct {
	pool   *workpool.Pool
	logger *slog.Logger

	mu     sync.Mutex
	groups map[PhaseKey]*PhaseGroup
	order  []*PhaseGroup
	phases map[*workpool.Handle]PhaseKey
}

// NewScheduler wraps pool.
func NewScheduler(pool *workpool.Pool, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Scheduler{
		pool:   pool,
		logger: logger,
		groups: make(map[PhaseKey]*PhaseGroup),
		phases: make(map[*workpool.Handle]PhaseKey),
	}
}

// Group returns the group for key, creating it empty on first use.
func (s *Scheduler) Group(key PhaseKey) *PhaseGroup {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.groupLocked(key)
}

func (s *Scheduler) groupLocked(key PhaseKey) *PhaseGroup {
	if g, ok := s.groups[key]; ok {
		return g
	}
	g := newPhaseGroup(key)
	s.groups[key] = g
	s.order = append(s.order, g)
	return g
}

// Lookup returns an existing group.
func (s *Scheduler) Lookup(key PhaseKey) (*PhaseGroup, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.groups[key]
	return g, ok
}

// Groups returns every group in creation order.
func (s *Scheduler) Groups() []*PhaseGroup {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*PhaseGroup(nil), s.order...)
}

// PhaseOf returns the phase a handle was submitted under.
func (s *Scheduler) PhaseOf(h *workpool.Handle) (PhaseKey, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key, ok := s.phases[h]
	return key, ok
}

// Submit queues fn under key. The unit first waits for every handle in deps;
// if any of them failed its body is skipped and it resolves with a
// PrerequisiteError naming the root failure. track is 1-based, or 0 for
// album-level units.
func (s *Scheduler) Submit(key PhaseKey, name string, track int, fn UnitFunc, deps ...*workpool.Handle) *workpool.Handle {
	deps = append([]*workpool.Handle(nil), deps...)
	label := key.String()
	if name != "" {
		label += "/" + name
	}

	wrapped := func(ctx context.Context) error {
		ctx = services.WithPhase(ctx, key.String())
		ctx = services.WithTarget(ctx, string(key.Target))
		if track > 0 {
			ctx = services.WithTrack(ctx, track)
		}
		logger := logging.WithContext(ctx, s.logger)

		if err := s.awaitPrerequisites(ctx, key, label, deps); err != nil {
			if !services.IsCancellation(err) {
				logger.Debug("skipping unit after prerequisite failure",
					logging.String("unit", label),
					logging.Error(err),
				)
			}
			return err
		}

		u := &Unit{name: label, phase: key, logger: logger}
		start := time.Now()
		logger.Debug("unit started", logging.String("unit", label))
		err := fn(ctx, u)
		if err != nil && ctx.Err() != nil && !services.IsCancellation(err) {
			err = services.Wrap(services.ErrCancelled, key.String(), label, "interrupted", err)
		}
		if err != nil {
			u.rollback()
			if services.IsCancellation(err) {
				logger.Info("unit cancelled", logging.String("unit", label))
			} else {
				logging.ErrorWithContext(logger, "unit failed", "unit_failed",
					logging.String("unit", label),
					logging.String(logging.FieldOutcome, string(services.Classify(err))),
					logging.Error(err),
				)
			}
			return err
		}
		logger.Debug("unit finished",
			logging.String("unit", label),
			logging.Duration("elapsed", time.Since(start)),
		)
		return nil
	}

	// The group and phase index are updated under the same lock so an
	// aggregator never sees a handle without its phase.
	s.mu.Lock()
	group := s.groupLocked(key)
	h := s.pool.Submit(label, wrapped)
	s.phases[h] = key
	s.mu.Unlock()
	group.add(h)
	return h
}

func (s *Scheduler) awaitPrerequisites(ctx context.Context, key PhaseKey, label string, deps []*workpool.Handle) error {
	var failure *PrerequisiteError
	cancelled := false
	for _, dep := range deps {
		err := dep.WaitContext(ctx)
		if ctx.Err() != nil {
			return services.Wrap(services.ErrCancelled, key.String(), label, "cancelled waiting for prerequisites", ctx.Err())
		}
		if err == nil {
			continue
		}
		if services.IsCancellation(err) {
			cancelled = true
			continue
		}
		if failure == nil {
			failure = &PrerequisiteError{Phase: key, Origin: dep, Err: err}
			var inner *PrerequisiteError
			if errors.As(err, &inner) && inner.Origin != nil {
				failure.Origin = inner.Origin
				failure.Err = inner.Err
			}
		}
	}
	if failure != nil {
		return failure
	}
	if cancelled {
		return services.Wrap(services.ErrCancelled, key.String(), label, "prerequisite cancelled", nil)
	}
	return nil
}

func trackLabel(index int) string {
	return "track" + strconv.Itoa(index)
}
