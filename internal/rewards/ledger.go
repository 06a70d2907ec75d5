package rewards

import (
	"context"
	"time"

	"github.com/rahul/homebot/internal/cleaning"
	"github.com/rahul/homebot/internal/observability"
	"github.com/rahul/homebot/internal/store"
)

// PointsStore is the slice of the database the ledger needs.
type PointsStore interface {
	AddPoints(ctx context.Context, ownerID string, delta int, reason, localDate string) error
	PointsTotal(ctx context.Context, ownerID string) (total, month int, err error)
	PointsBetween(ctx context.Context, ownerID, from, to string) (int, error)
	PointDays(ctx context.Context, ownerID string) (map[string]bool, error)
}

// Ledger awards points for completed cleaning tasks.
type Ledger struct {
	points PointsStore
	logger *observability.Logger
	loc    *time.Location
	now    func() time.Time
}

func NewLedger(points PointsStore, logger *observability.Logger, loc *time.Location) *Ledger {
	if loc == nil {
		loc = time.Local
	}
	return &Ledger{points: points, logger: logger, loc: loc, now: time.Now}
}

// PointsFor is one point per task plus one for every full five minutes of estimate.
func PointsFor(task cleaning.TaskDescriptor) int {
	if task.EstimatedSeconds <= 0 {
		return 1
	}
	return 1 + task.EstimatedSeconds/300
}

// Notify implements cleaning.Notifier.
func (l *Ledger) Notify(ctx context.Context, ownerID string, task cleaning.TaskDescriptor) error {
	pts := PointsFor(task)
	if err := l.points.AddPoints(ctx, ownerID, pts, "task:"+task.ID, l.today()); err != nil {
		return err
	}
	l.logger.LogReward(ownerID, task.ID, pts)
	return nil
}

// Stats is the summary shown by /stats.
type Stats struct {
	Total  int
	Month  int
	Today  int
	Week   int
	Streak int
}

func (l *Ledger) Stats(ctx context.Context, ownerID string) (Stats, error) {
	var (
		st  Stats
		err error
	)
	if st.Total, st.Month, err = l.points.PointsTotal(ctx, ownerID); err != nil {
		return Stats{}, err
	}
	if st.Today, err = l.Today(ctx, ownerID); err != nil {
		return Stats{}, err
	}
	if st.Week, err = l.Window(ctx, ownerID, 7); err != nil {
		return Stats{}, err
	}
	if st.Streak, err = l.Streak(ctx, ownerID); err != nil {
		return Stats{}, err
	}
	return st, nil
}

func (l *Ledger) Today(ctx context.Context, ownerID string) (int, error) {
	day := l.today()
	return l.points.PointsBetween(ctx, ownerID, day, day)
}

// Window sums the last days local days, today included.
func (l *Ledger) Window(ctx context.Context, ownerID string, days int) (int, error) {
	if days < 1 {
		days = 1
	}
	now := l.now().In(l.loc)
	from := store.LocalDate(now.AddDate(0, 0, -(days - 1)))
	return l.points.PointsBetween(ctx, ownerID, from, store.LocalDate(now))
}

// Streak counts consecutive days with a positive balance ending today.
func (l *Ledger) Streak(ctx context.Context, ownerID string) (int, error) {
	days, err := l.points.PointDays(ctx, ownerID)
	if err != nil {
		return 0, err
	}
	streak := 0
	for day := l.now().In(l.loc); days[store.LocalDate(day)]; day = day.AddDate(0, 0, -1) {
		streak++
	}
	return streak, nil
}

func (l *Ledger) today() string {
	return store.LocalDate(l.now().In(l.loc))
}
