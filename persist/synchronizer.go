// Package persist debounces state snapshots into the local cache and the
// remote store, and rebuilds the state on startup through a fallback chain.
package persist

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"game-companion/model"
	"game-companion/utils"
)

const (
	DefaultDebounce          = 500 * time.Millisecond
	DefaultRemoteConcurrency = 4
)

// RemoteStore is the primary store, one record per thread
type RemoteStore interface {
	LoadConversations(ctx context.Context) ([]model.Record, error)
	SaveConversation(ctx context.Context, rec model.Record) error
	DeleteConversation(ctx context.Context, id string) error
}

// LocalCache is the device-local fallback
type LocalCache interface {
	SaveSnapshot(ctx context.Context, snap model.Snapshot) error
	LoadSnapshot(ctx context.Context) (*model.Snapshot, error)
	SaveInsightBackup(ctx context.Context, conversationID string, insights []model.Insight) error
	LoadInsightBackups(ctx context.Context) (map[string][]model.Insight, error)
	DeleteConversation(ctx context.Context, conversationID string) error
}

// Options tunes a Synchronizer; zero values pick the defaults
type Options struct {
	Debounce          time.Duration
	RemoteConcurrency int
	// CycleTimeout bounds one write cycle started by the debounce timer.
	CycleTimeout time.Duration
	Registerer   prometheus.Registerer
	Now          func() time.Time
}

// Stats counts what the synchronizer did
type Stats struct {
	Cycles         int64
	Dropped        int64
	Suppressed     int64
	LocalFailures  int64
	RemoteFailures int64
}

// Synchronizer owns the save/load state machine
type Synchronizer struct {
	remote  RemoteStore // nil when remote sync is disabled
	local   LocalCache
	logger  *utils.Logger
	opts    Options
	metrics *metrics

	mu      sync.Mutex
	state   State
	pending *model.Collection
	timer   *time.Timer
	closed  bool

	// inflight is closed when the running cycle ends
	inflight chan struct{}

	cycleCount     atomic.Int64
	dropped        atomic.Int64
	suppressed     atomic.Int64
	localFailures  atomic.Int64
	remoteFailures atomic.Int64
}

// New creates a Synchronizer. remote may be nil.
func New(remote RemoteStore, local LocalCache, logger *utils.Logger, opts Options) *Synchronizer {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.RemoteConcurrency <= 0 {
		opts.RemoteConcurrency = DefaultRemoteConcurrency
	}
	if opts.CycleTimeout <= 0 {
		opts.CycleTimeout = 30 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if logger == nil {
		logger = utils.NewNopLogger()
	}
	return &Synchronizer{
		remote:  remote,
		local:   local,
		logger:  logger,
		opts:    opts,
		metrics: newMetrics(opts.Registerer),
	}
}

// State returns the current state
func (s *Synchronizer) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Stats returns a snapshot of the counters
func (s *Synchronizer) Stats() Stats {
	return Stats{
		Cycles:         s.cycleCount.Load(),
		Dropped:        s.dropped.Load(),
		Suppressed:     s.suppressed.Load(),
		LocalFailures:  s.localFailures.Load(),
		RemoteFailures: s.remoteFailures.Load(),
	}
}

// Save records c as the latest state and re-arms the debounce timer. It
// never blocks on I/O.
func (s *Synchronizer) Save(c model.Collection) {
	snapshot := c.Clone()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.pending = &snapshot
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.opts.Debounce, s.fire)
}

func (s *Synchronizer) fire() {
	s.mu.Lock()
	if s.closed || s.pending == nil {
		s.mu.Unlock()
		return
	}
	next, verdict := BeginSave(s.state)
	switch verdict {
	case VerdictDrop:
		s.mu.Unlock()
		s.dropped.Add(1)
		s.metrics.dropped.Inc()
		s.logger.Debug("Save cycle dropped: another cycle is in flight")
		return
	case VerdictSuppress:
		s.mu.Unlock()
		s.suppressed.Add(1)
		s.metrics.suppressed.Inc()
		s.logger.Debug("Save cycle suppressed: load in progress")
		return
	}
	c := s.startLocked(next)
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), s.opts.CycleTimeout)
	defer cancel()
	s.write(ctx, c)
	s.finish()
}

// startLocked takes the pending state for a cycle; s.mu must be held
func (s *Synchronizer) startLocked(next State) model.Collection {
	s.state = next
	c := *s.pending
	s.pending = nil
	s.inflight = make(chan struct{})
	return c
}

func (s *Synchronizer) finish() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = EndSave(s.state)
	close(s.inflight)
	s.inflight = nil
}

// wait blocks until no cycle is in flight
func (s *Synchronizer) wait() {
	for {
		s.mu.Lock()
		done := s.inflight
		s.mu.Unlock()
		if done == nil {
			return
		}
		<-done
	}
}

// write runs one cycle: the full local snapshot first, then every thread to
// the remote store. Failures are logged and counted, never returned.
func (s *Synchronizer) write(ctx context.Context, c model.Collection) {
	snap := model.SnapshotOf(c)

	if err := s.local.SaveSnapshot(ctx, snap); err != nil {
		s.localFailures.Add(1)
		s.metrics.localFailures.Inc()
		s.logger.Warn("Failed to save local snapshot: %v", err)
	}
	for _, rec := range snap.Records {
		if rec.Insights == nil {
			continue
		}
		if err := s.local.SaveInsightBackup(ctx, rec.ID, rec.Insights); err != nil {
			s.localFailures.Add(1)
			s.metrics.localFailures.Inc()
			s.logger.Warn("Failed to back up insights of %s: %v", rec.ID, err)
		}
	}

	if s.remote != nil {
		var g errgroup.Group
		g.SetLimit(s.opts.RemoteConcurrency)
		for _, rec := range snap.Records {
			rec := rec
			g.Go(func() error {
				if err := s.remote.SaveConversation(ctx, rec); err != nil {
					s.remoteFailures.Add(1)
					s.metrics.remoteFailures.Inc()
					s.logger.Warn("Failed to save conversation %s remotely: %v", rec.ID, err)
				}
				return nil
			})
		}
		_ = g.Wait()
	}

	s.cycleCount.Add(1)
	s.metrics.cycles.Inc()
}

// ErrLoading is returned by Flush while a load is in progress
var ErrLoading = errors.New("load in progress")

// Flush cancels the pending timer and writes the latest state synchronously,
// after any cycle already in flight has finished.
func (s *Synchronizer) Flush(ctx context.Context) error {
	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
	}
	s.mu.Unlock()

	for {
		s.wait()
		s.mu.Lock()
		if s.pending == nil {
			s.mu.Unlock()
			return nil
		}
		next, verdict := BeginSave(s.state)
		if verdict == VerdictSuppress {
			s.mu.Unlock()
			return ErrLoading
		}
		if verdict == VerdictDrop {
			// a timer that slipped past Stop started a cycle
			s.mu.Unlock()
			continue
		}
		c := s.startLocked(next)
		s.mu.Unlock()

		s.write(ctx, c)
		s.finish()
		return ctx.Err()
	}
}

// Close stops the timer and waits for an in-flight cycle. Pending state is
// not written; call Flush first for that.
func (s *Synchronizer) Close() {
	s.mu.Lock()
	s.closed = true
	if s.timer != nil {
		s.timer.Stop()
	}
	s.mu.Unlock()
	s.wait()
}

// Delete removes a thread from both stores
func (s *Synchronizer) Delete(ctx context.Context, id string) error {
	var errs []error
	if err := s.local.DeleteConversation(ctx, id); err != nil {
		s.logger.Warn("Failed to delete %s locally: %v", id, err)
		errs = append(errs, err)
	}
	if s.remote != nil {
		if err := s.remote.DeleteConversation(ctx, id); err != nil {
			s.logger.Warn("Failed to delete %s remotely: %v", id, err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
