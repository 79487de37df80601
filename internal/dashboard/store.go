// Package dashboard holds the client-side Domain Store: the single source of
// truth for stats, datasets, models and deployments as last seen on the
// backend. The only way to change it is Refresh, which replaces all four
// collections together or none of them.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kiranshivaraju/trainboard/pkg/models"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrRefreshFailed wraps every error returned by Refresh.
	ErrRefreshFailed = errors.New("dashboard refresh failed")

	// ErrInvalidInterval is returned by WaitFor for a non-positive interval.
	ErrInvalidInterval = errors.New("poll interval must be positive")
)

// Phase is the presentation state of the store.
type Phase string

const (
	PhaseLoading Phase = "loading"
	PhaseReady   Phase = "ready"
	PhaseError   Phase = "error"
)

// State is what observers see. Snapshot is the last successfully applied
// snapshot and survives failed refreshes; it is nil until the first success.
type State struct {
	Phase     Phase
	Snapshot  *Snapshot
	Err       error
	UpdatedAt time.Time
}

// Stale reports whether the snapshot on display predates a failed refresh.
func (s State) Stale() bool {
	return s.Phase == PhaseError && s.Snapshot != nil
}

// Source is the read side of the API client the store refreshes from.
type Source interface {
	Stats(ctx context.Context) (models.Stats, error)
	ListDatasets(ctx context.Context) ([]models.Dataset, error)
	ListModels(ctx context.Context) ([]models.Model, error)
	ListDeployments(ctx context.Context) ([]models.Deployment, error)
}

// Store is safe for concurrent use.
type Store struct {
	source Source
	logger *slog.Logger
	now    func() time.Time

	mu       sync.Mutex
	state    State
	issued   uint64
	applied  uint64
	inflight int
	subs     map[int]func(State)
	nextSub  int

	notifyMu sync.Mutex
}

// NewStore creates an empty store in the loading phase.
func NewStore(source Source, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		source: source,
		logger: logger,
		now:    time.Now,
		state:  State{Phase: PhaseLoading},
		subs:   make(map[int]func(State)),
	}
}

// State returns the current state.
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Snapshot returns the last applied snapshot, or nil before the first
// successful refresh.
func (s *Store) Snapshot() *Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Snapshot
}

// Subscribe registers fn to be called after every state change. Calls are
// serialized and always carry the state current at delivery time.
// The returned func removes the subscription.
//
// fn runs while delivery is serialized: it may read State or Snapshot and
// may Subscribe or unsubscribe, but it must not call Refresh or WaitFor
// synchronously, which would deadlock. Start those in a goroutine.
func (s *Store) Subscribe(fn func(State)) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// Refresh fetches stats, datasets, models and deployments concurrently and
// applies them as one snapshot. On failure the previous snapshot is kept
// and the store enters PhaseError. A result that arrives after a later
// refresh has already been applied is discarded.
func (s *Store) Refresh(ctx context.Context) error {
	s.mu.Lock()
	s.issued++
	seq := s.issued
	s.inflight++
	s.state.Phase = PhaseLoading
	s.mu.Unlock()
	s.notify()

	snap, err := s.fetch(ctx)

	s.mu.Lock()
	s.inflight--
	outdated := seq < s.applied
	if !outdated {
		s.applied = seq
		s.state.UpdatedAt = s.now()
		if err != nil {
			s.state.Phase = PhaseError
			s.state.Err = err
		} else {
			s.state.Phase = PhaseReady
			s.state.Err = nil
			s.state.Snapshot = snap
		}
	}
	if s.inflight > 0 {
		s.state.Phase = PhaseLoading
	}
	s.mu.Unlock()
	s.notify()

	if outdated {
		s.logger.Debug("discarding outdated refresh result", "seq", seq, "error", err)
	} else if err != nil {
		s.logger.Warn("dashboard refresh failed", "error", err)
	}
	return err
}

func (s *Store) fetch(ctx context.Context) (*Snapshot, error) {
	var (
		stats       models.Stats
		datasets    []models.Dataset
		mdls        []models.Model
		deployments []models.Deployment
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if stats, err = s.source.Stats(gctx); err != nil {
			return fmt.Errorf("fetching stats: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if datasets, err = s.source.ListDatasets(gctx); err != nil {
			return fmt.Errorf("fetching datasets: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if mdls, err = s.source.ListModels(gctx); err != nil {
			return fmt.Errorf("fetching models: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if deployments, err = s.source.ListDeployments(gctx); err != nil {
			return fmt.Errorf("fetching deployments: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRefreshFailed, err)
	}

	return NewSnapshot(stats, datasets, mdls, deployments, s.now()), nil
}

func (s *Store) notify() {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	state := s.state
	subs := make([]func(State), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	for _, fn := range subs {
		fn(state)
	}
}

// WaitFor refreshes every interval until cond holds for the current
// snapshot, ctx ends, or a refresh fails. The store never polls on its
// own; callers that want to follow a training run use this explicitly.
func (s *Store) WaitFor(ctx context.Context, interval time.Duration, cond func(*Snapshot) bool) (*Snapshot, error) {
	if interval <= 0 {
		return s.Snapshot(), fmt.Errorf("%w: %s", ErrInvalidInterval, interval)
	}
	if snap := s.Snapshot(); snap != nil && cond(snap) {
		return snap, nil
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := s.Refresh(ctx); err != nil {
			return s.Snapshot(), err
		}
		if snap := s.Snapshot(); snap != nil && cond(snap) {
			return snap, nil
		}

		select {
		case <-ctx.Done():
			return s.Snapshot(), ctx.Err()
		case <-ticker.C:
		}
	}
}
