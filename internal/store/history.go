package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tmc/langchaingo/llms"
)

var ErrReminderNotFound = errors.New("reminder not found")

type Reminder struct {
	ID          int64
	ChatID      string
	Description string
	Interval    time.Duration
	NextRun     time.Time
}

func (s *Store) AddMessage(ctx context.Context, chatID, role, content string) error {
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO messages (chat_id, role, content) VALUES (?, ?, ?)`,
		chatID, role, content,
	)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// GetHistory returns the last limit messages of a chat in chronological order.
func (s *Store) GetHistory(ctx context.Context, chatID string, limit int) ([]llms.MessageContent, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT role, content FROM messages WHERE chat_id = ? ORDER BY id DESC LIMIT ?`,
		chatID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var history []llms.MessageContent
	for rows.Next() {
		var role, content string
		if err := rows.Scan(&role, &content); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}

		var msgRole llms.ChatMessageType
		switch role {
		case "ai":
			msgRole = llms.ChatMessageTypeAI
		case "system":
			msgRole = llms.ChatMessageTypeSystem
		default:
			msgRole = llms.ChatMessageTypeHuman
		}
		history = append(history, llms.MessageContent{
			Role:  msgRole,
			Parts: []llms.ContentPart{llms.TextPart(content)},
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i, j := 0, len(history)-1; i < j; i, j = i+1, j-1 {
		history[i], history[j] = history[j], history[i]
	}
	return history, nil
}

// AddReminder schedules a repeating reminder whose first run is one interval from now.
func (s *Store) AddReminder(ctx context.Context, chatID, description string, interval time.Duration) (int64, error) {
	if interval < time.Minute {
		return 0, fmt.Errorf("reminder interval %s is shorter than a minute", interval)
	}
	res, err := s.DB.ExecContext(ctx,
		`INSERT INTO reminders (chat_id, description, interval_seconds, next_run) VALUES (?, ?, ?, ?)`,
		chatID, description, int64(interval/time.Second), formatTime(s.now().Add(interval)),
	)
	if err != nil {
		return 0, fmt.Errorf("insert reminder: %w", err)
	}
	return res.LastInsertId()
}

// DueReminders lists active reminders whose next run is at or before now.
func (s *Store) DueReminders(ctx context.Context, now time.Time) ([]Reminder, error) {
	return s.queryReminders(ctx,
		`SELECT id, chat_id, description, interval_seconds, next_run FROM reminders
		 WHERE status = 'active' AND next_run <= ? ORDER BY next_run`,
		formatTime(now),
	)
}

func (s *Store) ListReminders(ctx context.Context, chatID string) ([]Reminder, error) {
	return s.queryReminders(ctx,
		`SELECT id, chat_id, description, interval_seconds, next_run FROM reminders
		 WHERE status = 'active' AND chat_id = ? ORDER BY next_run`,
		chatID,
	)
}

// MarkReminderRun moves the reminder's next run one interval past now.
func (s *Store) MarkReminderRun(ctx context.Context, r Reminder, now time.Time) error {
	_, err := s.DB.ExecContext(ctx,
		`UPDATE reminders SET next_run = ? WHERE id = ?`,
		formatTime(now.Add(r.Interval)), r.ID,
	)
	if err != nil {
		return fmt.Errorf("update reminder: %w", err)
	}
	return nil
}

func (s *Store) DeleteReminder(ctx context.Context, chatID string, id int64) error {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM reminders WHERE chat_id = ? AND id = ?`, chatID, id)
	if err != nil {
		return fmt.Errorf("delete reminder: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrReminderNotFound
	}
	return nil
}

func (s *Store) ClearReminders(ctx context.Context, chatID string) (int64, error) {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM reminders WHERE chat_id = ?`, chatID)
	if err != nil {
		return 0, fmt.Errorf("clear reminders: %w", err)
	}
	return res.RowsAffected()
}

func (s *Store) queryReminders(ctx context.Context, query string, args ...any) ([]Reminder, error) {
	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query reminders: %w", err)
	}
	defer rows.Close()

	var out []Reminder
	for rows.Next() {
		var (
			r       Reminder
			seconds int64
			nextRaw string
		)
		if err := rows.Scan(&r.ID, &r.ChatID, &r.Description, &seconds, &nextRaw); err != nil {
			return nil, fmt.Errorf("scan reminder: %w", err)
		}
		r.Interval = time.Duration(seconds) * time.Second
		if r.NextRun, err = parseTime(nextRaw); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
