package rewards

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rahul/homebot/internal/cleaning"
	"github.com/rahul/homebot/internal/observability"
)

var (
	ErrQueueFull = errors.New("reward queue full")
	ErrClosed    = errors.New("reward dispatcher closed")
)

const DefaultQueueSize = 64

type delivery struct {
	ctx     context.Context
	ownerID string
	task    cleaning.TaskDescriptor
}

// Dispatcher hands completed tasks to a slower Notifier on a background
// worker so the engine never waits on reward delivery.
type Dispatcher struct {
	next   cleaning.Notifier
	policy Policy
	logger *observability.Logger
	sleep  func(context.Context, time.Duration) error

	mu     sync.Mutex
	closed bool
	queue  chan delivery
	done   chan struct{}
}

func NewDispatcher(next cleaning.Notifier, queueSize int, policy Policy, logger *observability.Logger) *Dispatcher {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if err := policy.Validate(); err != nil {
		policy = DefaultPolicy()
	}
	d := &Dispatcher{
		next:   next,
		policy: policy,
		logger: logger,
		sleep:  sleepCtx,
		queue:  make(chan delivery, queueSize),
		done:   make(chan struct{}),
	}
	go d.run()
	return d
}

// Notify implements cleaning.Notifier. It never blocks.
func (d *Dispatcher) Notify(ctx context.Context, ownerID string, task cleaning.TaskDescriptor) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	select {
	case d.queue <- delivery{ctx: context.WithoutCancel(ctx), ownerID: ownerID, task: task}:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close stops accepting work and waits until queued deliveries are finished.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()
	<-d.done
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for job := range d.queue {
		d.deliver(job)
	}
}

func (d *Dispatcher) deliver(job delivery) {
	for retry := 0; ; retry++ {
		err := d.next.Notify(job.ctx, job.ownerID, job.task)
		if err == nil {
			return
		}
		if !d.policy.ShouldRetry(retry) {
			d.logger.LogNotifyFailed(job.ownerID, job.task.ID, err)
			return
		}
		if err := d.sleep(job.ctx, d.policy.Delay(retry)); err != nil {
			d.logger.LogNotifyFailed(job.ownerID, job.task.ID, err)
			return
		}
	}
}

func sleepCtx(ctx context.Context, wait time.Duration) error {
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
