// Package watch pushes changes automatically. A Scheduler waits for a burst
// of filesystem events to settle, and then syncs the pair once.
package watch

import (
	"context"
	goSync "sync"
	"time"

	"github.com/jonboulle/clockwork"
	log "github.com/sirupsen/logrus"

	"github.com/sidkik/parasync/pkg/config"
	"github.com/sidkik/parasync/pkg/fswatch"
	"github.com/sidkik/parasync/pkg/sync"
)

// DefaultDelay is how long the local folder must be quiet before a sync
// starts.
const DefaultDelay = 2 * time.Second

// State is the phase the scheduler is in.
type State int

const (
	// Idle means that there are no unsynced changes.
	Idle State = iota

	// PendingDebounce means that changes were seen, and a sync starts once
	// the delay passes without further changes.
	PendingDebounce

	// Syncing means that a sync is running.
	Syncing
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case PendingDebounce:
		return "pending"
	case Syncing:
		return "syncing"
	}
	return "unknown"
}

// SyncFunc syncs a pair without asking for confirmation. It's satisfied by
// (*sync.Syncer).Sync.
type SyncFunc func(ctx context.Context, pair config.SyncPair) (sync.SyncReport, error)

// Scheduler runs at most one sync at a time for a pair, in response to
// change notifications.
type Scheduler struct {
	Pair  config.SyncPair
	Sync  SyncFunc
	Clock clockwork.Clock
	Delay time.Duration

	// OnResult, if set, is called after every sync.
	OnResult func(sync.SyncReport, error)

	lock       goSync.Mutex
	state      State
	rerun      bool
	stopped    bool
	generation int
	timer      clockwork.Timer
	disarm     chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     goSync.WaitGroup
}

// New returns a scheduler that calls `syncFn` for `pair`.
func New(pair config.SyncPair, syncFn SyncFunc) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		Pair:   pair,
		Sync:   syncFn,
		Clock:  clockwork.NewRealClock(),
		Delay:  DefaultDelay,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start notifies the scheduler of every event received on `events`, until
// the channel is closed or `ctx` is cancelled. Cancelling `ctx` stops the
// scheduler.
func (s *Scheduler) Start(ctx context.Context, events <-chan fswatch.Event) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			select {
			case <-ctx.Done():
				go s.Stop()
				return
			case <-s.ctx.Done():
				return
			case event, ok := <-events:
				if !ok {
					return
				}
				log.WithField("path", event.Path).
					WithField("op", event.Op.String()).
					Debug("Local change")
				s.Notify()
			}
		}
	}()
}

// Notify records that the local folder changed.
func (s *Scheduler) Notify() {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.stopped {
		return
	}

	switch s.state {
	case Idle, PendingDebounce:
		s.state = PendingDebounce
		s.arm()
	case Syncing:
		s.rerun = true
	}
}

// State returns the scheduler's current phase.
func (s *Scheduler) State() State {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.state
}

// Stop cancels any pending sync, interrupts the running one, and waits for
// it to exit.
func (s *Scheduler) Stop() {
	s.lock.Lock()
	s.stopped = true
	s.stopTimer()
	s.cancel()
	s.lock.Unlock()

	s.wg.Wait()
}

// arm (re)starts the debounce timer. The caller must hold the lock.
func (s *Scheduler) arm() {
	s.stopTimer()

	s.generation++
	generation := s.generation
	timer := s.Clock.NewTimer(s.Delay)
	disarm := make(chan struct{})
	s.timer, s.disarm = timer, disarm

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		select {
		case <-timer.Chan():
			s.fire(generation)
		case <-disarm:
		}
	}()
}

func (s *Scheduler) stopTimer() {
	if s.timer == nil {
		return
	}
	s.timer.Stop()
	close(s.disarm)
	s.timer, s.disarm = nil, nil
}

func (s *Scheduler) fire(generation int) {
	s.lock.Lock()
	if s.stopped || generation != s.generation || s.state != PendingDebounce {
		s.lock.Unlock()
		return
	}
	s.state = Syncing
	s.rerun = false
	s.timer, s.disarm = nil, nil
	s.lock.Unlock()

	log.WithField("pair", s.Pair.Name).Info("Changes settled. Syncing.")
	report, err := s.Sync(s.ctx, s.Pair)
	if err != nil {
		log.WithError(err).WithField("pair", s.Pair.Name).Warn("Automatic sync failed")
	}
	if s.OnResult != nil {
		s.OnResult(report, err)
	}

	s.lock.Lock()
	defer s.lock.Unlock()
	s.state = Idle
	if s.rerun && !s.stopped {
		s.state = PendingDebounce
		s.arm()
	}
}
