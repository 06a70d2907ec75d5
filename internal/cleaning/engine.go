package cleaning

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rahul/homebot/internal/observability"
)

// DefaultLockTimeout bounds how long an operation waits for a busy session.
const DefaultLockTimeout = 2 * time.Second

// Engine drives cleaning sessions. It keeps no session state in memory: every
// call reads the session from the Store, mutates it under a per-key lock and
// writes it back before returning.
type Engine struct {
	catalog     *Catalog
	store       Store
	notifier    Notifier
	locks       *KeyedLocks
	logger      *observability.Logger
	lockTimeout time.Duration
	now         func() time.Time
	newID       func() string
}

type Option func(*Engine)

func WithLogger(l *observability.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

func WithLockTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.lockTimeout = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithLocks shares a lock table between engines in the same process.
func WithLocks(l *KeyedLocks) Option {
	return func(e *Engine) { e.locks = l }
}

// NewEngine wires an engine. notifier may be nil.
func NewEngine(catalog *Catalog, store Store, notifier Notifier, opts ...Option) *Engine {
	e := &Engine{
		catalog:     catalog,
		store:       store,
		notifier:    notifier,
		locks:       NewKeyedLocks(),
		logger:      observability.NewLogger(),
		lockTimeout: DefaultLockTimeout,
		now:         time.Now,
		newID:       uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) Catalog() *Catalog {
	return e.catalog
}

func ownerKey(ownerID string) string     { return "owner:" + ownerID }
func sessionKey(sessionID string) string { return "session:" + sessionID }

// Start compiles a flow and persists a new Active session for the owner.
// Compilation errors are returned before anything is written.
func (e *Engine) Start(ctx context.Context, ownerID string, mode Mode, zones []string) (Session, error) {
	flow, err := Compile(e.catalog, mode, zones)
	if err != nil {
		return Session{}, err
	}

	release, err := e.locks.Acquire(ctx, ownerKey(ownerID), e.lockTimeout)
	if err != nil {
		return Session{}, err
	}
	defer release()

	if _, found, err := e.store.FindActiveByOwner(ctx, ownerID); err != nil {
		return Session{}, storeErr(err)
	} else if found {
		return Session{}, ErrSessionAlreadyActive
	}

	now := e.now().UTC()
	sess := Session{
		ID:        e.newID(),
		OwnerID:   ownerID,
		Mode:      mode,
		Zones:     selectedZones(zones),
		Flow:      flow,
		Status:    StatusActive,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	sess.settle()

	if err := e.store.Create(ctx, sess); err != nil {
		return Session{}, storeErr(err)
	}
	e.logger.LogSessionStarted(ownerID, sess.ID, string(mode), sess.Zones, flow.TotalTasks())
	return sess.Clone(), nil
}

// CompleteCurrentTask marks the task under the cursor done and advances. The
// advanced state is saved before the notifier runs; notifier failures are
// logged and never returned.
func (e *Engine) CompleteCurrentTask(ctx context.Context, sessionID string) (Session, error) {
	sess, _, err := e.CompleteTask(ctx, sessionID)
	return sess, err
}

// CompleteTask is CompleteCurrentTask that also returns the task this call
// completed. The task is zero when the call only settled the cursor.
func (e *Engine) CompleteTask(ctx context.Context, sessionID string) (Session, TaskDescriptor, error) {
	var completed TaskDescriptor
	sess, err := e.mutate(ctx, sessionID, func(s *Session) error {
		if err := requireActive(s.Status); err != nil {
			return err
		}
		task, ok := s.Current()
		if !ok {
			// Cursor sits on an empty or exhausted phase; settle it instead.
			s.settle()
			return nil
		}
		completed = task
		s.advance()
		return nil
	})
	if err != nil {
		return Session{}, TaskDescriptor{}, err
	}

	if completed.ID != "" {
		e.logger.LogTaskCompleted(sess.OwnerID, sess.ID, completed.ID, sess.Done(), sess.Flow.TotalTasks())
		e.notify(ctx, sess.OwnerID, completed)
	}
	if sess.Status == StatusCompleted {
		e.logger.LogSessionState(sess.OwnerID, sess.ID, string(sess.Status))
	}
	return sess, completed, nil
}

// Pause suspends an Active session without moving the cursor.
func (e *Engine) Pause(ctx context.Context, sessionID string) (Session, error) {
	sess, err := e.mutate(ctx, sessionID, func(s *Session) error {
		if err := requireActive(s.Status); err != nil {
			return err
		}
		s.Status = StatusPaused
		return nil
	})
	if err != nil {
		return Session{}, err
	}
	e.logger.LogSessionState(sess.OwnerID, sess.ID, string(sess.Status))
	return sess, nil
}

// Resume reactivates a Paused session at the same cursor.
func (e *Engine) Resume(ctx context.Context, sessionID string) (Session, error) {
	sess, err := e.mutate(ctx, sessionID, func(s *Session) error {
		switch {
		case s.Status.Terminal():
			return fmt.Errorf("%w: %w", ErrSessionTerminal, ErrSessionNotPaused)
		case s.Status != StatusPaused:
			return ErrSessionNotPaused
		}
		s.Status = StatusActive
		return nil
	})
	if err != nil {
		return Session{}, err
	}
	e.logger.LogSessionState(sess.OwnerID, sess.ID, string(sess.Status))
	return sess, nil
}

// Abort ends an Active or Paused session.
func (e *Engine) Abort(ctx context.Context, sessionID string) (Session, error) {
	sess, err := e.mutate(ctx, sessionID, func(s *Session) error {
		if s.Status.Terminal() {
			return ErrSessionTerminal
		}
		s.Status = StatusAborted
		return nil
	})
	if err != nil {
		return Session{}, err
	}
	e.logger.LogSessionState(sess.OwnerID, sess.ID, string(sess.Status))
	return sess, nil
}

// CurrentTask is read-only. It reports false for finished sessions.
func (e *Engine) CurrentTask(ctx context.Context, sessionID string) (TaskDescriptor, bool, error) {
	sess, err := e.load(ctx, sessionID)
	if err != nil {
		return TaskDescriptor{}, false, err
	}
	task, ok := sess.Current()
	return task, ok, nil
}

// Session returns a snapshot of one session.
func (e *Engine) Session(ctx context.Context, sessionID string) (Session, error) {
	return e.load(ctx, sessionID)
}

// ActiveSession finds the owner's Active or Paused session.
func (e *Engine) ActiveSession(ctx context.Context, ownerID string) (Session, bool, error) {
	sess, found, err := e.store.FindActiveByOwner(ctx, ownerID)
	if err != nil {
		return Session{}, false, storeErr(err)
	}
	return sess, found, nil
}

func (e *Engine) load(ctx context.Context, sessionID string) (Session, error) {
	sess, err := e.store.Load(ctx, sessionID)
	if err != nil {
		return Session{}, storeErr(err)
	}
	return sess, nil
}

// mutate runs fn over a freshly loaded session while holding its lock and
// persists the result. Nothing is saved when fn fails.
func (e *Engine) mutate(ctx context.Context, sessionID string, fn func(*Session) error) (Session, error) {
	release, err := e.locks.Acquire(ctx, sessionKey(sessionID), e.lockTimeout)
	if err != nil {
		return Session{}, err
	}
	defer release()

	sess, err := e.load(ctx, sessionID)
	if err != nil {
		return Session{}, err
	}
	if err := fn(&sess); err != nil {
		return Session{}, err
	}
	sess.Version++
	sess.UpdatedAt = e.now().UTC()
	if err := e.store.Save(ctx, sess); err != nil {
		return Session{}, storeErr(err)
	}
	return sess.Clone(), nil
}

func (e *Engine) notify(ctx context.Context, ownerID string, task TaskDescriptor) {
	if e.notifier == nil {
		return
	}
	if err := e.notifier.Notify(context.WithoutCancel(ctx), ownerID, task); err != nil {
		e.logger.LogNotifyFailed(ownerID, task.ID, err)
	}
}

func requireActive(st Status) error {
	switch {
	case st.Terminal():
		return fmt.Errorf("%w: %w", ErrSessionTerminal, ErrSessionNotActive)
	case st != StatusActive:
		return ErrSessionNotActive
	}
	return nil
}

// storeErr keeps engine sentinels intact and tags everything else as ErrStore.
func storeErr(err error) error {
	for _, known := range []error{ErrSessionNotFound, ErrSessionBusy, ErrSessionAlreadyActive, ErrStore} {
		if errors.Is(err, known) {
			return err
		}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrStore, err)
}

func selectedZones(zones []string) []string {
	out := make([]string, len(zones))
	for i, z := range zones {
		out[i] = trimZone(z)
	}
	return out
}
