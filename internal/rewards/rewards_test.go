package rewards

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rahul/homebot/internal/cleaning"
	"github.com/rahul/homebot/internal/observability"
	"github.com/rahul/homebot/internal/store"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(t.TempDir() + "/rewards.db")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() {
		_ = st.Close()
	})
	return st
}

func TestPointsFor(t *testing.T) {
	cases := []struct {
		seconds int
		want    int
	}{
		{0, 1},
		{-30, 1},
		{120, 1},
		{300, 2},
		{900, 4},
	}
	for _, c := range cases {
		if got := PointsFor(cleaning.TaskDescriptor{EstimatedSeconds: c.seconds}); got != c.want {
			t.Errorf("PointsFor(%ds) = %d, want %d", c.seconds, got, c.want)
		}
	}
}

func TestLedgerAwardsAndStats(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)
	ledger := NewLedger(st, observability.Discard(), time.UTC)

	day := time.Date(2024, 5, 10, 18, 0, 0, 0, time.UTC)
	for offset, seconds := range []int{300, 60, 600} {
		ledger.now = func() time.Time { return day.AddDate(0, 0, offset-2) }
		if err := ledger.Notify(ctx, "owner-1", cleaning.TaskDescriptor{ID: "t", EstimatedSeconds: seconds}); err != nil {
			t.Fatalf("Notify: %v", err)
		}
	}
	ledger.now = func() time.Time { return day }

	stats, err := ledger.Stats(ctx, "owner-1")
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	want := Stats{Total: 6, Month: 6, Today: 3, Week: 6, Streak: 3}
	if stats != want {
		t.Fatalf("stats = %+v, want %+v", stats, want)
	}

	window, err := ledger.Window(ctx, "owner-1", 2)
	if err != nil {
		t.Fatalf("Window: %v", err)
	}
	if window != 4 {
		t.Fatalf("two-day window = %d, want 4", window)
	}

	ledger.now = func() time.Time { return day.AddDate(0, 0, 1) }
	streak, err := ledger.Streak(ctx, "owner-1")
	if err != nil {
		t.Fatalf("Streak: %v", err)
	}
	if streak != 0 {
		t.Fatalf("streak without points today = %d, want 0", streak)
	}
}

type flakyNotifier struct {
	mu       sync.Mutex
	failures int
	calls    int
	got      []string
}

func (n *flakyNotifier) Notify(_ context.Context, _ string, task cleaning.TaskDescriptor) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls++
	if n.failures > 0 {
		n.failures--
		return errors.New("temporary failure")
	}
	n.got = append(n.got, task.ID)
	return nil
}

func quickPolicy(retries int) Policy {
	return Policy{MaxRetries: retries, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, BackoffMultiplier: 2}
}

func TestDispatcherRetriesUntilDelivered(t *testing.T) {
	next := &flakyNotifier{failures: 2}
	d := NewDispatcher(next, 4, quickPolicy(3), observability.Discard())

	if err := d.Notify(context.Background(), "owner-1", cleaning.TaskDescriptor{ID: "a"}); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	d.Close()

	next.mu.Lock()
	defer next.mu.Unlock()
	if next.calls != 3 || len(next.got) != 1 || next.got[0] != "a" {
		t.Fatalf("calls=%d got=%v", next.calls, next.got)
	}
}

func TestDispatcherGivesUpAfterMaxRetries(t *testing.T) {
	next := &flakyNotifier{failures: 10}
	d := NewDispatcher(next, 4, quickPolicy(1), observability.Discard())

	if err := d.Notify(context.Background(), "owner-1", cleaning.TaskDescriptor{ID: "a"}); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	d.Close()

	next.mu.Lock()
	defer next.mu.Unlock()
	if next.calls != 2 || len(next.got) != 0 {
		t.Fatalf("calls=%d got=%v", next.calls, next.got)
	}
}

type blockingNotifier struct {
	release chan struct{}
	mu      sync.Mutex
	count   int
}

func (n *blockingNotifier) Notify(context.Context, string, cleaning.TaskDescriptor) error {
	<-n.release
	n.mu.Lock()
	n.count++
	n.mu.Unlock()
	return nil
}

func TestDispatcherQueueFullAndClose(t *testing.T) {
	next := &blockingNotifier{release: make(chan struct{})}
	d := NewDispatcher(next, 1, quickPolicy(0), observability.Discard())

	accepted, full := 0, 0
	for i := 0; i < 3; i++ {
		err := d.Notify(context.Background(), "owner-1", cleaning.TaskDescriptor{ID: "t"})
		switch {
		case err == nil:
			accepted++
		case errors.Is(err, ErrQueueFull):
			full++
		default:
			t.Fatalf("Notify: %v", err)
		}
	}
	if full == 0 {
		t.Fatal("expected at least one ErrQueueFull")
	}

	close(next.release)
	d.Close()

	next.mu.Lock()
	defer next.mu.Unlock()
	if next.count != accepted {
		t.Fatalf("delivered %d, accepted %d", next.count, accepted)
	}
	if err := d.Notify(context.Background(), "owner-1", cleaning.TaskDescriptor{ID: "late"}); !errors.Is(err, ErrClosed) {
		t.Fatalf("Notify after Close err = %v, want ErrClosed", err)
	}
}

func TestPolicyDelay(t *testing.T) {
	p := Policy{MaxRetries: 3, InitialDelay: time.Second, MaxDelay: 5 * time.Second, BackoffMultiplier: 2}
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 5 * time.Second}
	for retry, w := range want {
		if got := p.Delay(retry); got != w {
			t.Errorf("Delay(%d) = %v, want %v", retry, got, w)
		}
	}
	if !p.ShouldRetry(2) || p.ShouldRetry(3) {
		t.Error("ShouldRetry boundary is wrong")
	}
	if err := (Policy{MaxRetries: 1, InitialDelay: 2 * time.Second, MaxDelay: time.Second, BackoffMultiplier: 2}).Validate(); err == nil {
		t.Error("expected Validate to reject InitialDelay > MaxDelay")
	}
}
