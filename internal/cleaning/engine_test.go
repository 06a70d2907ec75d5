package cleaning

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rahul/homebot/internal/observability"
)

type recordingNotifier struct {
	mu    sync.Mutex
	tasks []TaskDescriptor
	err   error
}

func (n *recordingNotifier) Notify(_ context.Context, _ string, task TaskDescriptor) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.tasks = append(n.tasks, task)
	return n.err
}

func (n *recordingNotifier) ids() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return taskIDs(n.tasks)
}

type failingSaveStore struct {
	*MemoryStore
	err error
}

func (s *failingSaveStore) Save(ctx context.Context, sess Session) error {
	return s.err
}

func newTestEngine(t *testing.T, store Store, notifier Notifier, opts ...Option) *Engine {
	t.Helper()
	opts = append([]Option{WithLogger(observability.Discard())}, opts...)
	return NewEngine(mustDefaultCatalog(t), store, notifier, opts...)
}

func TestDrainDeepSessionToCompletion(t *testing.T) {
	ctx := context.Background()
	notifier := &recordingNotifier{}
	engine := newTestEngine(t, NewMemoryStore(), notifier)

	sess, err := engine.Start(ctx, "owner-1", ModeDeep, []string{"kitchen", "bath"})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if sess.Status != StatusActive || sess.PhaseIndex != 0 || sess.TaskIndex != 0 {
		t.Fatalf("unexpected initial state: %+v", sess)
	}

	var want []string
	for _, p := range sess.Flow.Phases {
		want = append(want, taskIDs(p.Tasks)...)
	}
	total := sess.Flow.TotalTasks()

	for i := 0; i < total; i++ {
		current, ok, err := engine.CurrentTask(ctx, sess.ID)
		if err != nil || !ok {
			t.Fatalf("CurrentTask before step %d: ok=%v err=%v", i, ok, err)
		}
		if current.ID != want[i] {
			t.Fatalf("step %d: current = %s, want %s", i, current.ID, want[i])
		}
		sess, err = engine.CompleteCurrentTask(ctx, sess.ID)
		if err != nil {
			t.Fatalf("CompleteCurrentTask step %d: %v", i, err)
		}
		if i < total-1 && sess.Status != StatusActive {
			t.Fatalf("session finished early at step %d", i)
		}
	}

	if sess.Status != StatusCompleted {
		t.Fatalf("status = %s, want completed", sess.Status)
	}
	if sess.PhaseIndex != len(sess.Flow.Phases) {
		t.Errorf("phase index = %d, want %d", sess.PhaseIndex, len(sess.Flow.Phases))
	}
	if got := notifier.ids(); len(got) != total {
		t.Fatalf("notified %d tasks, want %d", len(got), total)
	} else {
		for i := range got {
			if got[i] != want[i] {
				t.Fatalf("notification %d = %s, want %s", i, got[i], want[i])
			}
		}
	}

	if _, ok, err := engine.CurrentTask(ctx, sess.ID); err != nil || ok {
		t.Errorf("CurrentTask on completed session: ok=%v err=%v", ok, err)
	}
	if _, err := engine.CompleteCurrentTask(ctx, sess.ID); !errors.Is(err, ErrSessionNotActive) || !errors.Is(err, ErrSessionTerminal) {
		t.Errorf("complete after completion: %v", err)
	}
}

func TestPauseResumeKeepsCursor(t *testing.T) {
	ctx := context.Background()
	engine := newTestEngine(t, NewMemoryStore(), nil)

	sess, err := engine.Start(ctx, "owner-1", ModeMaintenance, []string{"kitchen"})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	for i := 0; i < 4; i++ {
		if sess, err = engine.CompleteCurrentTask(ctx, sess.ID); err != nil {
			t.Fatalf("CompleteCurrentTask: %v", err)
		}
	}
	before := sess

	paused, err := engine.Pause(ctx, sess.ID)
	if err != nil {
		t.Fatalf("Pause: %v", err)
	}
	if paused.Status != StatusPaused {
		t.Fatalf("status = %s, want paused", paused.Status)
	}
	if _, err := engine.CompleteCurrentTask(ctx, sess.ID); !errors.Is(err, ErrSessionNotActive) {
		t.Errorf("complete while paused: %v", err)
	}
	if _, err := engine.Pause(ctx, sess.ID); !errors.Is(err, ErrSessionNotActive) {
		t.Errorf("double pause: %v", err)
	}

	resumed, err := engine.Resume(ctx, sess.ID)
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if resumed.Status != StatusActive {
		t.Fatalf("status = %s, want active", resumed.Status)
	}
	if resumed.PhaseIndex != before.PhaseIndex || resumed.TaskIndex != before.TaskIndex {
		t.Errorf("cursor moved: before %d/%d after %d/%d",
			before.PhaseIndex, before.TaskIndex, resumed.PhaseIndex, resumed.TaskIndex)
	}
	if _, err := engine.Resume(ctx, sess.ID); !errors.Is(err, ErrSessionNotPaused) {
		t.Errorf("resume while active: %v", err)
	}
}

func TestAbortIsTerminal(t *testing.T) {
	ctx := context.Background()
	engine := newTestEngine(t, NewMemoryStore(), nil)

	sess, err := engine.Start(ctx, "owner-1", ModeMaintenance, []string{"bath"})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := engine.Pause(ctx, sess.ID); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	aborted, err := engine.Abort(ctx, sess.ID)
	if err != nil {
		t.Fatalf("Abort from paused: %v", err)
	}
	if aborted.Status != StatusAborted {
		t.Fatalf("status = %s, want aborted", aborted.Status)
	}

	ops := map[string]func() error{
		"complete": func() error { _, err := engine.CompleteCurrentTask(ctx, sess.ID); return err },
		"pause":    func() error { _, err := engine.Pause(ctx, sess.ID); return err },
		"resume":   func() error { _, err := engine.Resume(ctx, sess.ID); return err },
		"abort":    func() error { _, err := engine.Abort(ctx, sess.ID); return err },
	}
	for name, op := range ops {
		if err := op(); !errors.Is(err, ErrSessionTerminal) {
			t.Errorf("%s after abort: got %v, want ErrSessionTerminal", name, err)
		}
	}
	if _, ok, err := engine.CurrentTask(ctx, sess.ID); err != nil || ok {
		t.Errorf("CurrentTask after abort: ok=%v err=%v", ok, err)
	}

	// The owner is free to start again.
	if _, err := engine.Start(ctx, "owner-1", ModeMaintenance, []string{"bath"}); err != nil {
		t.Errorf("Start after abort: %v", err)
	}
}

func TestStartTwiceForSameOwner(t *testing.T) {
	ctx := context.Background()
	engine := newTestEngine(t, NewMemoryStore(), nil)

	first, err := engine.Start(ctx, "owner-1", ModeMaintenance, []string{"kitchen"})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := engine.Start(ctx, "owner-1", ModeDeep, []string{"bath"}); !errors.Is(err, ErrSessionAlreadyActive) {
		t.Fatalf("second Start: %v, want ErrSessionAlreadyActive", err)
	}
	if _, err := engine.Pause(ctx, first.ID); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	if _, err := engine.Start(ctx, "owner-1", ModeDeep, []string{"bath"}); !errors.Is(err, ErrSessionAlreadyActive) {
		t.Fatalf("Start while paused: %v, want ErrSessionAlreadyActive", err)
	}
	if _, err := engine.Start(ctx, "owner-2", ModeDeep, []string{"bath"}); err != nil {
		t.Fatalf("other owner should be unaffected: %v", err)
	}
}

func TestStartWithoutZonesPersistsNothing(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	engine := newTestEngine(t, store, nil)

	if _, err := engine.Start(ctx, "owner-1", ModeDeep, nil); !errors.Is(err, ErrNoZonesSelected) {
		t.Fatalf("Start: %v, want ErrNoZonesSelected", err)
	}
	if store.Len() != 0 {
		t.Fatalf("store has %d sessions, want 0", store.Len())
	}
	if _, found, _ := store.FindActiveByOwner(ctx, "owner-1"); found {
		t.Fatalf("an active session was persisted")
	}
}

func TestNotifierFailureDoesNotRollBack(t *testing.T) {
	ctx := context.Background()
	notifier := &recordingNotifier{err: errors.New("points service down")}
	engine := newTestEngine(t, NewMemoryStore(), notifier)

	sess, err := engine.Start(ctx, "owner-1", ModeMaintenance, []string{"chaos"})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	next, err := engine.CompleteCurrentTask(ctx, sess.ID)
	if err != nil {
		t.Fatalf("CompleteCurrentTask should ignore notifier errors: %v", err)
	}
	if next.Done() != 1 {
		t.Fatalf("done = %d, want 1", next.Done())
	}
	reloaded, err := engine.Session(ctx, sess.ID)
	if err != nil {
		t.Fatalf("Session: %v", err)
	}
	if reloaded.Done() != 1 {
		t.Errorf("persisted done = %d, want 1", reloaded.Done())
	}
}

func TestStoreFailureSurfaces(t *testing.T) {
	ctx := context.Background()
	mem := NewMemoryStore()
	engine := newTestEngine(t, mem, nil)

	sess, err := engine.Start(ctx, "owner-1", ModeMaintenance, []string{"chaos"})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	broken := newTestEngine(t, &failingSaveStore{MemoryStore: mem, err: errors.New("disk full")}, nil)
	if _, err := broken.CompleteCurrentTask(ctx, sess.ID); !errors.Is(err, ErrStore) {
		t.Fatalf("expected ErrStore, got %v", err)
	}
	reloaded, _ := engine.Session(ctx, sess.ID)
	if reloaded.Done() != 0 {
		t.Errorf("failed save must not advance the session")
	}
}

func TestUnknownSession(t *testing.T) {
	engine := newTestEngine(t, NewMemoryStore(), nil)
	if _, err := engine.Pause(context.Background(), "nope"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestConcurrentCompletesNeverDoubleAdvance(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	engine := newTestEngine(t, store, nil)

	sess, err := engine.Start(ctx, "owner-1", ModeDeep, []string{"kitchen", "bath"})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	const callers = 2
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := engine.CompleteCurrentTask(ctx, sess.ID)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	succeeded := 0
	for err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, ErrSessionBusy):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	reloaded, _ := engine.Session(ctx, sess.ID)
	if reloaded.Done() != succeeded {
		t.Fatalf("done = %d, successful calls = %d", reloaded.Done(), succeeded)
	}
	if succeeded == 0 {
		t.Fatalf("at least one call should have advanced the session")
	}
}

func TestCompleteTaskReportsWhatItCompleted(t *testing.T) {
	ctx := context.Background()
	notifier := &recordingNotifier{}
	engine := newTestEngine(t, NewMemoryStore(), notifier)

	sess, err := engine.Start(ctx, "owner-1", ModeMaintenance, []string{"kitchen"})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	const callers = 4
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = make(map[string]int)
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, task, err := engine.CompleteTask(ctx, sess.ID)
			if err != nil {
				t.Errorf("CompleteTask: %v", err)
				return
			}
			mu.Lock()
			seen[task.ID]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	if len(seen) != callers {
		t.Fatalf("callers saw %d distinct tasks, want %d: %v", len(seen), callers, seen)
	}
	for _, id := range notifier.ids() {
		if seen[id] != 1 {
			t.Errorf("notified task %s was reported %d times", id, seen[id])
		}
	}
}

func TestSeparateEnginesShareStoreSafely(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	a := newTestEngine(t, store, nil)
	b := newTestEngine(t, store, nil)

	sess, err := a.Start(ctx, "owner-1", ModeDeep, []string{"kitchen", "bath", "bedroom"})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < 10; i++ {
		engine := a
		if i%2 == 1 {
			engine = b
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := engine.CompleteCurrentTask(ctx, sess.ID)
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
				return
			}
			if !errors.Is(err, ErrSessionBusy) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	reloaded, _ := a.Session(ctx, sess.ID)
	if reloaded.Done() != succeeded {
		t.Fatalf("done = %d, successful calls = %d", reloaded.Done(), succeeded)
	}
}

func TestLockTimeoutReportsBusy(t *testing.T) {
	ctx := context.Background()
	locks := NewKeyedLocks()
	engine := newTestEngine(t, NewMemoryStore(), nil, WithLocks(locks), WithLockTimeout(20*time.Millisecond))

	sess, err := engine.Start(ctx, "owner-1", ModeMaintenance, []string{"chaos"})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	release, err := locks.Acquire(ctx, sessionKey(sess.ID), time.Second)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	_, err = engine.CompleteCurrentTask(ctx, sess.ID)
	if !errors.Is(err, ErrSessionBusy) {
		t.Fatalf("expected ErrSessionBusy, got %v", err)
	}
	if !Retryable(err) {
		t.Errorf("busy errors should be retryable")
	}
	release()

	if _, err := engine.CompleteCurrentTask(ctx, sess.ID); err != nil {
		t.Fatalf("after release: %v", err)
	}
}

func TestSettleSkipsEmptyPhases(t *testing.T) {
	s := Session{
		Status: StatusActive,
		Flow: Flow{Phases: []Phase{
			{Kind: PhasePrep},
			{Kind: PhaseGlobalBase, Tasks: []TaskDescriptor{{ID: "a"}}},
			{Kind: PhaseFloors},
			{Kind: PhaseFinish, Tasks: []TaskDescriptor{{ID: "b"}}},
		}},
	}
	s.settle()
	if task, ok := s.Current(); !ok || task.ID != "a" {
		t.Fatalf("current = %+v ok=%v, want a", task, ok)
	}
	s.advance()
	if task, ok := s.Current(); !ok || task.ID != "b" {
		t.Fatalf("current = %+v ok=%v, want b", task, ok)
	}
	s.advance()
	if s.Status != StatusCompleted || s.PhaseIndex != 4 {
		t.Fatalf("expected completion at phase 4, got %s at %d", s.Status, s.PhaseIndex)
	}
}
