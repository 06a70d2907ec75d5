package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rahul/homebot/internal/cleaning"
)

const sessionColumns = `id, owner_id, mode, zones, flow, phase_index, task_index, status, version, created_at, updated_at`

// Load implements cleaning.Store.
func (s *Store) Load(ctx context.Context, id string) (cleaning.Session, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM cleaning_sessions WHERE id = ?`, id)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return cleaning.Session{}, cleaning.ErrSessionNotFound
	}
	return sess, err
}

// Create implements cleaning.Store. The partial unique index on owner_id
// rejects a second open session for the same owner.
func (s *Store) Create(ctx context.Context, sess cleaning.Session) error {
	zones, flow, err := encodeSession(sess)
	if err != nil {
		return err
	}
	_, err = s.DB.ExecContext(ctx,
		`INSERT INTO cleaning_sessions(`+sessionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.OwnerID, string(sess.Mode), zones, flow,
		sess.PhaseIndex, sess.TaskIndex, string(sess.Status), sess.Version,
		formatTime(sess.CreatedAt), formatTime(sess.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return cleaning.ErrSessionAlreadyActive
		}
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// Save implements cleaning.Store as a compare-and-swap on version.
func (s *Store) Save(ctx context.Context, sess cleaning.Session) error {
	zones, flow, err := encodeSession(sess)
	if err != nil {
		return err
	}
	res, err := s.DB.ExecContext(ctx,
		`UPDATE cleaning_sessions
		 SET mode = ?, zones = ?, flow = ?, phase_index = ?, task_index = ?, status = ?,
		     version = ?, updated_at = ?
		 WHERE id = ? AND version = ?`,
		string(sess.Mode), zones, flow, sess.PhaseIndex, sess.TaskIndex, string(sess.Status),
		sess.Version, formatTime(sess.UpdatedAt),
		sess.ID, sess.Version-1,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return cleaning.ErrSessionAlreadyActive
		}
		return fmt.Errorf("update session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	if n == 1 {
		return nil
	}

	var exists int
	if err := s.DB.QueryRowContext(ctx, `SELECT COUNT(1) FROM cleaning_sessions WHERE id = ?`, sess.ID).Scan(&exists); err != nil {
		return fmt.Errorf("verify session: %w", err)
	}
	if exists == 0 {
		return cleaning.ErrSessionNotFound
	}
	return cleaning.ErrSessionBusy
}

// FindActiveByOwner implements cleaning.Store.
func (s *Store) FindActiveByOwner(ctx context.Context, ownerID string) (cleaning.Session, bool, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM cleaning_sessions
		 WHERE owner_id = ? AND status IN ('active', 'paused')
		 LIMIT 1`,
		ownerID,
	)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return cleaning.Session{}, false, nil
	}
	if err != nil {
		return cleaning.Session{}, false, err
	}
	return sess, true, nil
}

// StalePausedSessions lists paused sessions untouched since before that have
// not been nudged yet.
func (s *Store) StalePausedSessions(ctx context.Context, before time.Time) ([]cleaning.Session, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM cleaning_sessions
		 WHERE status = 'paused' AND updated_at < ? AND nudged_at IS NULL
		 ORDER BY updated_at`,
		formatTime(before),
	)
	if err != nil {
		return nil, fmt.Errorf("query paused sessions: %w", err)
	}
	defer rows.Close()

	var out []cleaning.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

// MarkNudged records that a reminder was sent for a paused session. It does not
// touch the session version.
func (s *Store) MarkNudged(ctx context.Context, id string) error {
	_, err := s.DB.ExecContext(ctx, `UPDATE cleaning_sessions SET nudged_at = ? WHERE id = ?`, formatTime(s.now()), id)
	if err != nil {
		return fmt.Errorf("mark nudged: %w", err)
	}
	return nil
}

// PurgeFinishedSessions deletes completed and aborted sessions last touched before the cutoff.
func (s *Store) PurgeFinishedSessions(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.DB.ExecContext(ctx,
		`DELETE FROM cleaning_sessions WHERE status IN ('completed', 'aborted') AND updated_at < ?`,
		formatTime(before),
	)
	if err != nil {
		return 0, fmt.Errorf("purge sessions: %w", err)
	}
	return res.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (cleaning.Session, error) {
	var (
		sess                   cleaning.Session
		mode, status           string
		zonesRaw, flowRaw      string
		createdRaw, updatedRaw string
	)
	err := row.Scan(
		&sess.ID, &sess.OwnerID, &mode, &zonesRaw, &flowRaw,
		&sess.PhaseIndex, &sess.TaskIndex, &status, &sess.Version,
		&createdRaw, &updatedRaw,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return cleaning.Session{}, err
		}
		return cleaning.Session{}, fmt.Errorf("scan session: %w", err)
	}
	sess.Mode = cleaning.Mode(mode)
	sess.Status = cleaning.Status(status)
	if err := json.Unmarshal([]byte(zonesRaw), &sess.Zones); err != nil {
		return cleaning.Session{}, fmt.Errorf("decode session zones: %w", err)
	}
	if err := json.Unmarshal([]byte(flowRaw), &sess.Flow); err != nil {
		return cleaning.Session{}, fmt.Errorf("decode session flow: %w", err)
	}
	if sess.CreatedAt, err = parseTime(createdRaw); err != nil {
		return cleaning.Session{}, err
	}
	if sess.UpdatedAt, err = parseTime(updatedRaw); err != nil {
		return cleaning.Session{}, err
	}
	return sess, nil
}

func encodeSession(sess cleaning.Session) (string, string, error) {
	zones, err := json.Marshal(sess.Zones)
	if err != nil {
		return "", "", fmt.Errorf("encode session zones: %w", err)
	}
	flow, err := json.Marshal(sess.Flow)
	if err != nil {
		return "", "", fmt.Errorf("encode session flow: %w", err)
	}
	return string(zones), string(flow), nil
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
