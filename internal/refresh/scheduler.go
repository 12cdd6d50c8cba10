package refresh

import (
	"context"
	"sync"
	"time"

	"github.com/casalink/inboxd/internal/bus"
	"github.com/casalink/inboxd/internal/inbox"
	"github.com/casalink/inboxd/internal/model"
	"github.com/casalink/inboxd/internal/status"
	"go.uber.org/zap"
)

// Assembler produces one full conversation list.
type Assembler interface {
	Assemble(ctx context.Context) ([]model.ConversationEntry, error)
}

// ConnectionCache persists the connection directory between daemon runs.
type ConnectionCache interface {
	ReplaceAll(conns []model.Connection) error
}

// Options tunes scheduler timing.
type Options struct {
	// Interval is how often the periodic trigger fires while started.
	Interval time.Duration
	// Cooldown is the minimum gap a periodic trigger must keep since the
	// last successful sync. Manual triggers ignore it.
	Cooldown time.Duration
}

// Update is the bus payload for inbox.updated events.
type Update struct {
	Generation  uint64
	Entries     int
	UnreadTotal int
}

// Scheduler gates how often the assembler runs and owns the resulting
// snapshot. Manual triggers always run; periodic triggers are throttled and
// skipped while a refresh is in flight. Every run gets a monotonically
// increasing generation; a completing run applies its result only if its
// generation is still the newest issued, so an overlapping older run can
// never overwrite a newer list.
type Scheduler struct {
	assembler Assembler
	cache     ConnectionCache
	bus       *bus.Bus
	machine   *status.Machine
	logger    *zap.Logger
	interval  time.Duration
	cooldown  time.Duration
	now       func() time.Time

	mu          sync.Mutex
	snapshot    model.Snapshot
	lastErr     error
	lastSuccess int64
	running     int
	issued      uint64
	applied     uint64

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a scheduler. cache, b and machine may be nil.
func New(assembler Assembler, cache ConnectionCache, b *bus.Bus, machine *status.Machine, opts Options, logger *zap.Logger) *Scheduler {
	if opts.Interval <= 0 {
		opts.Interval = 30 * time.Second
	}
	if opts.Cooldown <= 0 {
		opts.Cooldown = 2 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		assembler: assembler,
		cache:     cache,
		bus:       b,
		machine:   machine,
		logger:    logger,
		interval:  opts.Interval,
		cooldown:  opts.Cooldown,
		now:       time.Now,
	}
}

// Start launches the periodic trigger loop and kicks off an immediate forced
// refresh. The loop runs until Stop or until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.Trigger(ctx, true)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.Trigger(ctx, false)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop cancels the periodic loop and waits for in-flight runs to finish, so
// nothing can write to the scheduler after Stop returns.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

// Trigger requests a refresh. A forced (manual) trigger always starts a run.
// A periodic trigger is a no-op while a run is in flight or while the
// cooldown since the last successful sync has not elapsed. Reports whether a
// run was started.
func (s *Scheduler) Trigger(ctx context.Context, force bool) bool {
	s.mu.Lock()
	if !force {
		if s.running > 0 {
			s.mu.Unlock()
			return false
		}
		if s.lastSuccess > 0 && s.now().UnixMilli()-s.lastSuccess < s.cooldown.Milliseconds() {
			s.mu.Unlock()
			return false
		}
	}
	gen := s.begin()
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		_ = s.run(ctx, gen)
	}()
	return true
}

// Refresh performs one forced refresh synchronously. Used by the
// notification router's refetch fallback.
func (s *Scheduler) Refresh(ctx context.Context) error {
	s.mu.Lock()
	gen := s.begin()
	s.mu.Unlock()
	return s.run(ctx, gen)
}

// Prime seeds the snapshot with warm-start entries (cached directory, no
// previews). A real sync result, once applied, is never replaced by a prime.
func (s *Scheduler) Prime(entries []model.ConversationEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.applied > 0 {
		return
	}
	s.snapshot = model.Snapshot{
		Entries:     entries,
		UnreadTotal: inbox.UnreadTotal(entries),
	}
}

// Snapshot returns the current assembled list. The returned entries are
// replaced wholesale on refresh, never mutated, so callers may hold on to
// them.
func (s *Scheduler) Snapshot() model.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot
}

// State returns refresh bookkeeping for the status surface.
func (s *Scheduler) State() model.RefreshState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return model.RefreshState{
		LastSuccessMillis: s.lastSuccess,
		InFlight:          s.running > 0,
	}
}

// LastError returns the error from the most recent failed refresh, or nil
// if the last refresh succeeded.
func (s *Scheduler) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// begin issues a new generation. Caller holds s.mu.
func (s *Scheduler) begin() uint64 {
	s.issued++
	s.running++
	return s.issued
}

func (s *Scheduler) run(ctx context.Context, gen uint64) error {
	entries, err := s.assembler.Assemble(ctx)
	now := s.now().UnixMilli()

	s.mu.Lock()
	s.running--
	if err != nil {
		if gen < s.issued {
			// A newer refresh was issued while this one ran; drop the
			// stale failure without touching error state or status.
			s.mu.Unlock()
			s.logger.Debug("failed refresh superseded", zap.Uint64("generation", gen), zap.Uint64("latest", s.issued))
			return err
		}
		// The previous snapshot stays visible as stale-but-valid data.
		s.lastErr = err
		s.mu.Unlock()
		s.logger.Warn("refresh failed", zap.Uint64("generation", gen), zap.Error(err))
		s.markDegraded()
		if s.bus != nil {
			s.bus.Emit("inbox.refresh_failed", err.Error())
		}
		return err
	}

	s.lastSuccess = now
	if ctx.Err() != nil {
		// Torn down while we were fetching; do not touch the snapshot.
		s.mu.Unlock()
		return ctx.Err()
	}
	if gen < s.issued {
		// A newer refresh was issued while this one ran; drop the result.
		s.mu.Unlock()
		s.logger.Debug("refresh superseded", zap.Uint64("generation", gen), zap.Uint64("latest", s.issued))
		return nil
	}
	s.applied = gen
	s.lastErr = nil
	s.snapshot = model.Snapshot{
		Entries:     entries,
		UnreadTotal: inbox.UnreadTotal(entries),
		Generation:  gen,
		FetchedAt:   now,
	}
	s.mu.Unlock()

	if s.cache != nil {
		conns := make([]model.Connection, 0, len(entries))
		for _, e := range entries {
			conns = append(conns, e.Connection)
		}
		if cacheErr := s.cache.ReplaceAll(conns); cacheErr != nil {
			s.logger.Warn("connection cache write failed", zap.Error(cacheErr))
		}
	}

	s.markHealthy()
	if s.bus != nil {
		s.bus.Emit("inbox.updated", Update{
			Generation:  gen,
			Entries:     len(entries),
			UnreadTotal: inbox.UnreadTotal(entries),
		})
	}
	return nil
}

func (s *Scheduler) markHealthy() {
	if s.machine == nil {
		return
	}
	switch s.machine.Current() {
	case status.Syncing, status.Degraded:
		_ = s.machine.Transition(status.Ready)
	}
}

func (s *Scheduler) markDegraded() {
	if s.machine == nil {
		return
	}
	switch s.machine.Current() {
	case status.Syncing, status.Ready:
		_ = s.machine.Transition(status.Degraded)
	}
}
