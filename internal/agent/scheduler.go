package agent

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/rahul/homebot/internal/cleaning"
	"github.com/rahul/homebot/internal/household"
	"github.com/rahul/homebot/internal/observability"
	"github.com/rahul/homebot/internal/store"
)

type Messenger interface {
	Send(chatID string, text string) error
}

// SchedulerStore is the part of *store.Store the scheduler polls.
type SchedulerStore interface {
	DueReminders(ctx context.Context, now time.Time) ([]store.Reminder, error)
	MarkReminderRun(ctx context.Context, r store.Reminder, now time.Time) error
	StalePausedSessions(ctx context.Context, before time.Time) ([]cleaning.Session, error)
	MarkNudged(ctx context.Context, id string) error
	PurgeFinishedSessions(ctx context.Context, before time.Time) (int64, error)
	RollMonth(ctx context.Context, month string) (bool, error)
	DueBills(ctx context.Context, month string, day int) ([]store.Bill, error)
	MarkBillReminded(ctx context.Context, id int64, month string) error
}

// Scheduler delivers due reminders and bill reminders, nudges owners whose
// cleaning session has been paused for a while, and purges old finished
// sessions. It never changes a session's state. It also rebuilds monthly
// points when the month turns.
type Scheduler struct {
	Store          SchedulerStore
	Gateway        Messenger
	Interval       time.Duration
	NudgeAfter     time.Duration
	RetainFinished time.Duration
	Location       *time.Location

	now       func() time.Time
	lastMonth string
}

func NewScheduler(st SchedulerStore, gateway Messenger, nudgeAfter time.Duration) *Scheduler {
	return &Scheduler{
		Store:          st,
		Gateway:        gateway,
		Interval:       30 * time.Second,
		NudgeAfter:     nudgeAfter,
		RetainFinished: 30 * 24 * time.Hour,
		Location:       time.Local,
		now:            time.Now,
	}
}

func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	log.Println("Scheduler started...")

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick runs one polling round.
func (s *Scheduler) Tick(ctx context.Context) {
	observability.SetStatus(observability.RoleScheduler, "poll")
	defer observability.SetStatus(observability.RoleIdle, "")

	now := s.now()
	s.deliverReminders(ctx, now)
	s.remindBills(ctx, now)
	if s.NudgeAfter > 0 {
		s.nudgePaused(ctx, now)
	}
	if s.RetainFinished > 0 {
		if n, err := s.Store.PurgeFinishedSessions(ctx, now.Add(-s.RetainFinished)); err != nil {
			log.Printf("Error purging sessions: %v", err)
		} else if n > 0 {
			log.Printf("Purged %d finished cleaning sessions", n)
		}
	}
	s.rollMonth(ctx, now)
}

// rollMonth rebuilds monthly points when the month in Location differs from
// the one last stored. lastMonth only saves a query per tick.
func (s *Scheduler) rollMonth(ctx context.Context, now time.Time) {
	month := now.In(s.location()).Format("2006-01")
	if s.lastMonth == month {
		return
	}
	rolled, err := s.Store.RollMonth(ctx, month)
	if err != nil {
		log.Printf("Error resetting monthly points: %v", err)
		return
	}
	if rolled {
		log.Printf("Monthly points reset for %s", month)
	}
	s.lastMonth = month
}

func (s *Scheduler) deliverReminders(ctx context.Context, now time.Time) {
	due, err := s.Store.DueReminders(ctx, now)
	if err != nil {
		log.Printf("Error polling reminders: %v", err)
		return
	}
	for _, r := range due {
		if err := s.send(r.ChatID, "⏰ Reminder: "+r.Description); err != nil {
			log.Printf("Error sending reminder %d: %v", r.ID, err)
			continue
		}
		if err := s.Store.MarkReminderRun(ctx, r, now); err != nil {
			log.Printf("Error rescheduling reminder %d: %v", r.ID, err)
		}
	}
}

// remindBills sends one reminder per unpaid bill per month, from its due day on.
func (s *Scheduler) remindBills(ctx context.Context, now time.Time) {
	local := now.In(s.location())
	month := local.Format("2006-01")
	due, err := s.Store.DueBills(ctx, month, local.Day())
	if err != nil {
		log.Printf("Error polling bills: %v", err)
		return
	}
	for _, b := range due {
		text := fmt.Sprintf("📅 %s is due (~%s). Send /bill_paid %d once it's paid.", b.Title, household.FormatMoney(b.Amount), b.ID)
		if err := s.send(b.OwnerID, text); err != nil {
			log.Printf("Error sending bill reminder %d: %v", b.ID, err)
			continue
		}
		if err := s.Store.MarkBillReminded(ctx, b.ID, month); err != nil {
			log.Printf("Error marking bill %d reminded: %v", b.ID, err)
		}
	}
}

func (s *Scheduler) location() *time.Location {
	if s.Location == nil {
		return time.Local
	}
	return s.Location
}

func (s *Scheduler) nudgePaused(ctx context.Context, now time.Time) {
	stale, err := s.Store.StalePausedSessions(ctx, now.Add(-s.NudgeAfter))
	if err != nil {
		log.Printf("Error polling paused sessions: %v", err)
		return
	}
	for _, sess := range stale {
		text := "Your cleaning session is still paused. Send /clean to pick it up again."
		if task, ok := sess.Current(); ok {
			text = fmt.Sprintf("Your cleaning session is paused at %q. Send /clean to pick it up again.", task.Label)
		}
		if err := s.send(sess.OwnerID, text); err != nil {
			log.Printf("Error nudging %s: %v", sess.OwnerID, err)
			continue
		}
		if err := s.Store.MarkNudged(ctx, sess.ID); err != nil {
			log.Printf("Error marking session %s nudged: %v", sess.ID, err)
		}
	}
}

func (s *Scheduler) send(chatID, text string) error {
	if s.Gateway == nil {
		return fmt.Errorf("no gateway configured")
	}
	return s.Gateway.Send(chatID, text)
}
