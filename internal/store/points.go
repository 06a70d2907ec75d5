package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// AddPoints changes an owner's totals by delta, never dropping below zero, and
// records the change in points_log under the given local date (YYYY-MM-DD).
func (s *Store) AddPoints(ctx context.Context, ownerID string, delta int, reason, localDate string) error {
	if delta == 0 {
		return nil
	}
	now := formatTime(s.now())

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("start points tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO owners(owner_id, points_total, points_month, updated_at) VALUES (?, 0, 0, ?)
		 ON CONFLICT(owner_id) DO NOTHING`,
		ownerID, now,
	)
	if err != nil {
		return fmt.Errorf("ensure owner: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		`UPDATE owners
		 SET points_total = MAX(0, points_total + ?), points_month = MAX(0, points_month + ?), updated_at = ?
		 WHERE owner_id = ?`,
		delta, delta, now, ownerID,
	)
	if err != nil {
		return fmt.Errorf("update owner points: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO points_log(owner_id, points, reason, local_date, created_at) VALUES (?, ?, ?, ?, ?)`,
		ownerID, delta, reason, localDate, now,
	)
	if err != nil {
		return fmt.Errorf("insert points log: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit points tx: %w", err)
	}
	return nil
}

// PointsTotal returns the owner's lifetime and current-month points.
func (s *Store) PointsTotal(ctx context.Context, ownerID string) (total, month int, err error) {
	err = s.DB.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(points_total), 0), COALESCE(SUM(points_month), 0) FROM owners WHERE owner_id = ?`,
		ownerID,
	).Scan(&total, &month)
	if err != nil {
		return 0, 0, fmt.Errorf("query points total: %w", err)
	}
	return total, month, nil
}

// PointsBetween sums logged points for local dates in [from, to].
func (s *Store) PointsBetween(ctx context.Context, ownerID, from, to string) (int, error) {
	var pts int
	err := s.DB.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(points), 0) FROM points_log WHERE owner_id = ? AND local_date >= ? AND local_date <= ?`,
		ownerID, from, to,
	).Scan(&pts)
	if err != nil {
		return 0, fmt.Errorf("query points: %w", err)
	}
	return pts, nil
}

// PointDays returns the set of local dates with a positive points sum.
func (s *Store) PointDays(ctx context.Context, ownerID string) (map[string]bool, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT local_date FROM points_log WHERE owner_id = ? GROUP BY local_date HAVING SUM(points) > 0`,
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("query point days: %w", err)
	}
	defer rows.Close()

	days := make(map[string]bool)
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("scan point day: %w", err)
		}
		days[d] = true
	}
	return days, rows.Err()
}

const pointsMonthKey = "points_month"

// RollMonth makes month (YYYY-MM) the current points month. When it differs
// from the stored one, every owner's monthly counter is rebuilt from the
// points_log entries dated in month, so a rollover missed while the bot was
// down still takes effect. It reports whether counters were rebuilt.
func (s *Store) RollMonth(ctx context.Context, month string) (bool, error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("start month tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var stored string
	err = tx.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = ?`, pointsMonthKey).Scan(&stored)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return false, fmt.Errorf("query points month: %w", err)
	}
	if stored == month {
		return false, nil
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE owners SET points_month = MAX(0, COALESCE((
			SELECT SUM(points) FROM points_log
			WHERE points_log.owner_id = owners.owner_id AND local_date >= ?
		), 0)), updated_at = ?`,
		month+"-01", formatTime(s.now()),
	)
	if err != nil {
		return false, fmt.Errorf("reset month points: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO meta(key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		pointsMonthKey, month,
	)
	if err != nil {
		return false, fmt.Errorf("store points month: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit month tx: %w", err)
	}
	return true, nil
}

// LocalDate formats t as the YYYY-MM-DD key used by points_log.
func LocalDate(t time.Time) string {
	return t.Format("2006-01-02")
}
