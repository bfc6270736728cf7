package syncer

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/quillnote/core/internal/access"
	"github.com/quillnote/core/internal/common"
	"github.com/quillnote/core/internal/keyring"
	"github.com/quillnote/core/internal/logging"
	"github.com/quillnote/core/internal/store"
	"github.com/sethvargo/go-retry"
)

// State is the sync engine's current phase.
type State int32

const (
	StateIdle State = iota
	StatePolling
	StateReconciling
	StatePushing
	StateBackoff
)

func (s State) String() string {
	switch s {
	case StatePolling:
		return "polling"
	case StateReconciling:
		return "reconciling"
	case StatePushing:
		return "pushing"
	case StateBackoff:
		return "backoff"
	default:
		return "idle"
	}
}

// Config tunes the sync engine.
type Config struct {
	PollInterval   time.Duration
	NetTimeout     time.Duration
	BackoffBase    time.Duration
	BackoffCeiling time.Duration
	MaxRetries     uint64
	PushBatchSize  int

	// QuarantineAttempts bounds how many reconcile cycles a failing remote
	// change is retried before being dropped.
	QuarantineAttempts int
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	return Config{
		PollInterval:       30 * time.Second,
		NetTimeout:         10 * time.Second,
		BackoffBase:        time.Second,
		BackoffCeiling:     2 * time.Minute,
		MaxRetries:         10,
		PushBatchSize:      50,
		QuarantineAttempts: 3,
	}
}

type refetchRequest struct {
	resourceID string
	keyID      int
}

// Syncer reconciles the local encrypted model with the remote service. A
// single worker goroutine (Run) owns the state machine; the exported control
// methods are safe to call from any goroutine.
type Syncer struct {
	transport Transport
	store     *store.Store
	sealer    *store.Sealer
	ring      *keyring.Keyring
	perm      *access.Engine
	userID    string
	cfg       Config
	log       logging.Logger

	state  atomic.Int32
	paused atomic.Bool
	halted atomic.Bool

	trigger chan struct{}

	cancelMu sync.Mutex
	cancel   context.CancelFunc

	cursorMu sync.Mutex
	cursor   string

	refetchMu sync.Mutex
	refetch   map[refetchRequest]struct{}

	// quarantined remote changes, retried next cycle up to the attempt cap.
	pending map[string]*pendingChange

	backoffMu sync.Mutex
	backoff   retry.Backoff

	onConflict func(resourceID string)
	onFatal    func(err error)
}

// New wires a sync engine. The keyring's re-fetch hook is installed here so
// unknown key generations encountered anywhere queue a wrapped-key fetch for
// the next cycle.
func New(
	transport Transport,
	st *store.Store,
	sealer *store.Sealer,
	ring *keyring.Keyring,
	perm *access.Engine,
	userID string,
	cfg Config,
	log logging.Logger,
) *Syncer {
	s := &Syncer{
		transport: transport,
		store:     st,
		sealer:    sealer,
		ring:      ring,
		perm:      perm,
		userID:    userID,
		cfg:       cfg,
		log:       log.With("component", "syncer"),
		trigger:   make(chan struct{}, 1),
		refetch:   make(map[refetchRequest]struct{}),
		pending:   make(map[string]*pendingChange),
		backoff:   newBackoff(cfg.BackoffBase, cfg.BackoffCeiling, cfg.MaxRetries),
	}
	ring.SetRefetch(s.EnqueueRefetch)
	return s
}

// OnConflict installs a hook invoked whenever a conflict is resolved in
// favor of the remote side. Informational, for UI awareness.
func (s *Syncer) OnConflict(fn func(resourceID string)) { s.onConflict = fn }

// OnFatal installs a hook invoked when sync halts (fatal network failure or
// backoff ceiling exceeded).
func (s *Syncer) OnFatal(fn func(err error)) { s.onFatal = fn }

// State returns the current phase.
func (s *Syncer) State() State { return State(s.state.Load()) }

func (s *Syncer) setState(st State) { s.state.Store(int32(st)) }

// Pause stops new cycles from starting. An in-flight cycle finishes
// normally.
func (s *Syncer) Pause() { s.paused.Store(true) }

// Resume re-enables cycles and clears a halted status.
func (s *Syncer) Resume() {
	s.paused.Store(false)
	s.halted.Store(false)
	s.resetBackoff()
}

func (s *Syncer) resetBackoff() {
	s.backoffMu.Lock()
	defer s.backoffMu.Unlock()
	s.backoff = newBackoff(s.cfg.BackoffBase, s.cfg.BackoffCeiling, s.cfg.MaxRetries)
}

func (s *Syncer) nextBackoff() (time.Duration, bool) {
	s.backoffMu.Lock()
	defer s.backoffMu.Unlock()
	return s.backoff.Next()
}

// Halted reports whether sync stopped after a fatal failure and is waiting
// for external reset.
func (s *Syncer) Halted() bool { return s.halted.Load() }

// TriggerSync requests an immediate cycle. A cycle already in flight is
// cancelled cooperatively: its network call is abandoned and no partial
// store mutation survives it.
func (s *Syncer) TriggerSync() {
	s.cancelMu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.cancelMu.Unlock()

	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// Cursor returns the poll cursor reached so far.
func (s *Syncer) Cursor() string {
	s.cursorMu.Lock()
	defer s.cursorMu.Unlock()
	return s.cursor
}

// SetCursor seeds the poll cursor, e.g. from a persisted checkpoint.
func (s *Syncer) SetCursor(cursor string) {
	s.cursorMu.Lock()
	defer s.cursorMu.Unlock()
	s.cursor = cursor
}

// EnqueueRefetch records that the wrapped key for (resourceID, keyID) must be
// re-fetched. Deduplicated; safe from any goroutine; never blocks.
func (s *Syncer) EnqueueRefetch(resourceID string, keyID int) {
	s.refetchMu.Lock()
	defer s.refetchMu.Unlock()
	s.refetch[refetchRequest{resourceID: resourceID, keyID: keyID}] = struct{}{}
}

// Run drives the state machine until ctx is cancelled. There is no terminal
// state: after backoff the engine returns to polling, and a halted engine
// idles until Resume.
func (s *Syncer) Run(ctx context.Context) error {
	timer := time.NewTimer(s.cfg.PollInterval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.setState(StateIdle)
			return ctx.Err()
		case <-timer.C:
		case <-s.trigger:
		}

		if s.paused.Load() || s.halted.Load() {
			timer.Reset(s.cfg.PollInterval)
			continue
		}

		err := s.runCycle(ctx)
		switch {
		case err == nil:
			s.resetBackoff()
			timer.Reset(s.cfg.PollInterval)
		case errors.Is(err, context.Canceled) && ctx.Err() == nil:
			// Cycle cancelled by a newer trigger; start over immediately.
			timer.Reset(0)
		case errors.Is(err, common.ErrNetworkFatal):
			s.halt(ctx, err)
			timer.Reset(s.cfg.PollInterval)
		default:
			delay, stop := s.nextBackoff()
			if stop {
				s.halt(ctx, err)
				timer.Reset(s.cfg.PollInterval)
				continue
			}
			s.setState(StateBackoff)
			s.log.Warn(ctx, "sync cycle failed, backing off", "delay", delay, "error", err)
			timer.Reset(delay)
		}
	}
}

func (s *Syncer) halt(ctx context.Context, err error) {
	s.halted.Store(true)
	s.setState(StateIdle)
	s.log.Error(ctx, "sync halted", "error", err)
	if s.onFatal != nil {
		s.onFatal(err)
	}
}

// runCycle performs one Polling -> Reconciling -> Pushing pass.
func (s *Syncer) runCycle(ctx context.Context) error {
	cctx, cancel := context.WithCancel(ctx)
	s.cancelMu.Lock()
	s.cancel = cancel
	s.cancelMu.Unlock()
	defer func() {
		s.cancelMu.Lock()
		s.cancel = nil
		s.cancelMu.Unlock()
		cancel()
	}()

	s.setState(StatePolling)
	pollCtx, pollCancel := context.WithTimeout(cctx, s.cfg.NetTimeout)
	batch, err := s.transport.Poll(pollCtx, s.Cursor())
	pollCancel()
	if err != nil {
		s.setState(StateIdle)
		return classify(err)
	}

	s.setState(StateReconciling)
	s.fetchMissingKeys(cctx)
	if err := s.reconcile(cctx, batch.Envelopes); err != nil {
		s.setState(StateIdle)
		return err
	}
	s.SetCursor(batch.Cursor)

	s.setState(StatePushing)
	if err := s.push(cctx); err != nil {
		s.setState(StateIdle)
		return classify(err)
	}

	s.setState(StateIdle)
	return nil
}

// fetchMissingKeys drains the wrapped-key re-fetch queue. Failures keep the
// request queued for the next cycle.
func (s *Syncer) fetchMissingKeys(ctx context.Context) {
	s.refetchMu.Lock()
	reqs := make([]refetchRequest, 0, len(s.refetch))
	for req := range s.refetch {
		reqs = append(reqs, req)
	}
	s.refetchMu.Unlock()

	for _, req := range reqs {
		fctx, cancel := context.WithTimeout(ctx, s.cfg.NetTimeout)
		wrapped, err := s.transport.FetchWrappedKey(fctx, req.resourceID, req.keyID)
		cancel()
		if err != nil {
			s.log.Warn(ctx, "wrapped key re-fetch failed",
				"resource_id", req.resourceID, "key_id", req.keyID, "error", err)
			continue
		}
		if err := s.ring.AcceptWrappedKey(req.resourceID, req.keyID, wrapped); err != nil {
			s.log.Error(ctx, "re-fetched key could not be unwrapped",
				"resource_id", req.resourceID, "key_id", req.keyID, "error", err)
		}
		s.refetchMu.Lock()
		delete(s.refetch, req)
		s.refetchMu.Unlock()
	}
}

// classify maps transport errors onto the retry policy. Anything not
// explicitly fatal is treated as transient.
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, common.ErrNetworkFatal),
		errors.Is(err, common.ErrNetworkTransient),
		errors.Is(err, context.Canceled):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return errors.Join(common.ErrNetworkTransient, err)
	default:
		return errors.Join(common.ErrNetworkTransient, err)
	}
}
