package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// DialogState is the raw persisted form of a per-owner conversation context.
type DialogState struct {
	OwnerID   string
	Expect    string
	Subject   string
	UpdatedAt time.Time
}

func (s *Store) SaveDialog(ctx context.Context, st DialogState) error {
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO dialog_state(owner_id, expect, subject, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(owner_id) DO UPDATE SET
		   expect = excluded.expect,
		   subject = excluded.subject,
		   updated_at = excluded.updated_at`,
		st.OwnerID, st.Expect, st.Subject, formatTime(s.now()),
	)
	if err != nil {
		return fmt.Errorf("save dialog state: %w", err)
	}
	return nil
}

func (s *Store) LoadDialog(ctx context.Context, ownerID string) (DialogState, bool, error) {
	var (
		st         DialogState
		updatedRaw string
	)
	err := s.DB.QueryRowContext(ctx,
		`SELECT owner_id, expect, subject, updated_at FROM dialog_state WHERE owner_id = ?`,
		ownerID,
	).Scan(&st.OwnerID, &st.Expect, &st.Subject, &updatedRaw)
	if errors.Is(err, sql.ErrNoRows) {
		return DialogState{}, false, nil
	}
	if err != nil {
		return DialogState{}, false, fmt.Errorf("load dialog state: %w", err)
	}
	if st.UpdatedAt, err = parseTime(updatedRaw); err != nil {
		return DialogState{}, false, err
	}
	return st, true, nil
}

func (s *Store) ClearDialog(ctx context.Context, ownerID string) error {
	if _, err := s.DB.ExecContext(ctx, `DELETE FROM dialog_state WHERE owner_id = ?`, ownerID); err != nil {
		return fmt.Errorf("clear dialog state: %w", err)
	}
	return nil
}
