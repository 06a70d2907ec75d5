package store

import (
	"context"
	"fmt"
	"strings"
	"time"
)

type Expense struct {
	ID        int64
	OwnerID   string
	Amount    float64
	Category  string
	CreatedAt time.Time
}

type CategoryTotal struct {
	Category string
	Amount   float64
}

func (s *Store) AddExpense(ctx context.Context, ownerID string, amount float64, category string) (int64, error) {
	category = strings.ToLower(strings.TrimSpace(category))
	if category == "" {
		category = "other"
	}
	res, err := s.DB.ExecContext(ctx,
		`INSERT INTO expenses(owner_id, amount, category, created_at) VALUES (?, ?, ?, ?)`,
		ownerID, amount, category, formatTime(s.now()),
	)
	if err != nil {
		return 0, fmt.Errorf("insert expense: %w", err)
	}
	return res.LastInsertId()
}

// ExpenseSum totals expenses recorded at or after since.
func (s *Store) ExpenseSum(ctx context.Context, ownerID string, since time.Time) (float64, error) {
	var sum float64
	err := s.DB.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(amount), 0) FROM expenses WHERE owner_id = ? AND created_at >= ?`,
		ownerID, formatTime(since),
	).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("query expense sum: %w", err)
	}
	return sum, nil
}

// ExpensesByCategory groups expenses recorded at or after since, largest first.
func (s *Store) ExpensesByCategory(ctx context.Context, ownerID string, since time.Time) ([]CategoryTotal, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT category, SUM(amount) AS total FROM expenses
		 WHERE owner_id = ? AND created_at >= ?
		 GROUP BY category ORDER BY total DESC, category`,
		ownerID, formatTime(since),
	)
	if err != nil {
		return nil, fmt.Errorf("query expenses by category: %w", err)
	}
	defer rows.Close()

	var out []CategoryTotal
	for rows.Next() {
		var ct CategoryTotal
		if err := rows.Scan(&ct.Category, &ct.Amount); err != nil {
			return nil, fmt.Errorf("scan category total: %w", err)
		}
		out = append(out, ct)
	}
	return out, rows.Err()
}

// MonthStart returns midnight of the first day of t's month in t's location.
func MonthStart(t time.Time) time.Time {
	y, m, _ := t.Date()
	return time.Date(y, m, 1, 0, 0, 0, 0, t.Location())
}
