package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rahul/homebot/internal/store"
)

type ReminderStore interface {
	AddReminder(ctx context.Context, chatID, description string, interval time.Duration) (int64, error)
	ListReminders(ctx context.Context, chatID string) ([]store.Reminder, error)
	ClearReminders(ctx context.Context, chatID string) (int64, error)
}

// ReminderTool lets the advisor schedule repeating household reminders.
type ReminderTool struct {
	Store ReminderStore
}

func NewReminderTool(store ReminderStore) *ReminderTool {
	return &ReminderTool{Store: store}
}

func (c *ReminderTool) Name() string {
	return "schedule_reminder"
}

func (c *ReminderTool) Description() string {
	return "Manage repeating reminders for this chat: 'schedule' a new one, 'list' them, or 'clear' all."
}

func (c *ReminderTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"action": map[string]any{
				"type":        "string",
				"enum":        []string{"schedule", "list", "clear"},
				"description": "The action to perform.",
			},
			"text": map[string]any{
				"type":        "string",
				"description": "What to remind about (only for 'schedule')",
			},
			"interval_minutes": map[string]any{
				"type":        "integer",
				"description": "Repeat interval in minutes, at least 1 (only for 'schedule')",
			},
		},
		"required": []string{"action"},
	}
}

func (c *ReminderTool) Execute(ctx context.Context, input string) (string, error) {
	var args struct {
		Action   string `json:"action"`
		Text     string `json:"text"`
		Interval int    `json:"interval_minutes"`
	}
	if err := json.Unmarshal([]byte(input), &args); err != nil {
		return "", fmt.Errorf("invalid input: %w", err)
	}

	chatID, ok := ChatIDFrom(ctx)
	if !ok {
		return "", fmt.Errorf("missing chat id in context")
	}

	switch args.Action {
	case "clear":
		n, err := c.Store.ClearReminders(ctx, chatID)
		if err != nil {
			return "", fmt.Errorf("failed to clear reminders: %w", err)
		}
		return fmt.Sprintf("Cleared %d reminder(s).", n), nil

	case "list":
		list, err := c.Store.ListReminders(ctx, chatID)
		if err != nil {
			return "", fmt.Errorf("failed to list reminders: %w", err)
		}
		if len(list) == 0 {
			return "No reminders scheduled.", nil
		}
		var b strings.Builder
		for _, r := range list {
			fmt.Fprintf(&b, "#%d %q every %s, next at %s\n", r.ID, r.Description, r.Interval, r.NextRun.Format(time.RFC3339))
		}
		return strings.TrimRight(b.String(), "\n"), nil

	case "schedule":
		text := strings.TrimSpace(args.Text)
		if text == "" {
			return "Error: text is required to schedule a reminder.", nil
		}
		if args.Interval < 1 {
			return "Error: minimum interval is 1 minute.", nil
		}
		interval := time.Duration(args.Interval) * time.Minute
		id, err := c.Store.AddReminder(ctx, chatID, text, interval)
		if err != nil {
			return "", fmt.Errorf("failed to schedule reminder: %w", err)
		}
		return fmt.Sprintf("Scheduled reminder #%d %q every %s.", id, text, interval), nil

	default:
		return "Invalid action. Use 'schedule', 'list' or 'clear'.", nil
	}
}
