package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

var ErrBillNotFound = errors.New("bill not found")

// Budget holds an owner's spending limits. A zero MonthlyLimit means none.
type Budget struct {
	MonthlyLimit float64
	Categories   []CategoryLimit
}

type CategoryLimit struct {
	Category string
	Limit    float64
}

// Bill is a monthly payment due on DayOfMonth. Months are "YYYY-MM".
type Bill struct {
	ID            int64
	OwnerID       string
	Title         string
	Amount        float64
	DayOfMonth    int
	LastPaidMonth string
	RemindedMonth string
}

// PaidIn reports whether the bill was paid for month.
func (b Bill) PaidIn(month string) bool {
	return b.LastPaidMonth == month
}

// SetMonthlyLimit stores the owner's monthly budget. Zero removes it.
func (s *Store) SetMonthlyLimit(ctx context.Context, ownerID string, limit float64) error {
	if limit < 0 {
		return fmt.Errorf("monthly limit must not be negative")
	}
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO budgets(owner_id, monthly_limit, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(owner_id) DO UPDATE SET monthly_limit = excluded.monthly_limit, updated_at = excluded.updated_at`,
		ownerID, limit, formatTime(s.now()),
	)
	if err != nil {
		return fmt.Errorf("set monthly limit: %w", err)
	}
	return nil
}

// SetCategoryLimit stores a monthly limit for one category. Zero removes it.
func (s *Store) SetCategoryLimit(ctx context.Context, ownerID, category string, limit float64) error {
	category = strings.ToLower(strings.TrimSpace(category))
	if category == "" {
		return fmt.Errorf("category is empty")
	}
	if limit < 0 {
		return fmt.Errorf("category limit must not be negative")
	}
	var err error
	if limit == 0 {
		_, err = s.DB.ExecContext(ctx,
			`DELETE FROM budget_categories WHERE owner_id = ? AND category = ?`, ownerID, category)
	} else {
		_, err = s.DB.ExecContext(ctx,
			`INSERT INTO budget_categories(owner_id, category, limit_amount, updated_at) VALUES (?, ?, ?, ?)
			 ON CONFLICT(owner_id, category) DO UPDATE SET limit_amount = excluded.limit_amount, updated_at = excluded.updated_at`,
			ownerID, category, limit, formatTime(s.now()),
		)
	}
	if err != nil {
		return fmt.Errorf("set category limit: %w", err)
	}
	return nil
}

// GetBudget returns the owner's limits, categories sorted by name.
func (s *Store) GetBudget(ctx context.Context, ownerID string) (Budget, error) {
	var b Budget
	err := s.DB.QueryRowContext(ctx,
		`SELECT monthly_limit FROM budgets WHERE owner_id = ?`, ownerID,
	).Scan(&b.MonthlyLimit)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return Budget{}, fmt.Errorf("query budget: %w", err)
	}

	rows, err := s.DB.QueryContext(ctx,
		`SELECT category, limit_amount FROM budget_categories WHERE owner_id = ? ORDER BY category`, ownerID)
	if err != nil {
		return Budget{}, fmt.Errorf("query category limits: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var cl CategoryLimit
		if err := rows.Scan(&cl.Category, &cl.Limit); err != nil {
			return Budget{}, fmt.Errorf("scan category limit: %w", err)
		}
		b.Categories = append(b.Categories, cl)
	}
	return b, rows.Err()
}

// UpsertBill adds a bill or, when the owner already has one with the same
// title, updates its amount and day.
func (s *Store) UpsertBill(ctx context.Context, bill Bill) (Bill, error) {
	bill.Title = strings.TrimSpace(bill.Title)
	if bill.Title == "" {
		return Bill{}, fmt.Errorf("bill title is empty")
	}
	if bill.DayOfMonth < 1 || bill.DayOfMonth > 28 {
		return Bill{}, fmt.Errorf("bill day %d is outside 1-28", bill.DayOfMonth)
	}
	err := s.DB.QueryRowContext(ctx,
		`INSERT INTO bills(owner_id, title, amount, day_of_month, created_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(owner_id, title) DO UPDATE SET amount = excluded.amount, day_of_month = excluded.day_of_month
		 RETURNING id, last_paid_month, reminded_month`,
		bill.OwnerID, bill.Title, bill.Amount, bill.DayOfMonth, formatTime(s.now()),
	).Scan(&bill.ID, &bill.LastPaidMonth, &bill.RemindedMonth)
	if err != nil {
		return Bill{}, fmt.Errorf("upsert bill: %w", err)
	}
	return bill, nil
}

// ListBills returns the owner's bills by day of month.
func (s *Store) ListBills(ctx context.Context, ownerID string) ([]Bill, error) {
	return s.queryBills(ctx,
		`SELECT id, owner_id, title, amount, day_of_month, last_paid_month, reminded_month
		 FROM bills WHERE owner_id = ? ORDER BY day_of_month, title`, ownerID)
}

// DueBills returns bills across all owners that are due by day of month,
// unpaid for month and not yet reminded about in month.
func (s *Store) DueBills(ctx context.Context, month string, day int) ([]Bill, error) {
	return s.queryBills(ctx,
		`SELECT id, owner_id, title, amount, day_of_month, last_paid_month, reminded_month
		 FROM bills WHERE day_of_month <= ? AND last_paid_month != ? AND reminded_month != ?
		 ORDER BY id`, day, month, month)
}

func (s *Store) queryBills(ctx context.Context, query string, args ...any) ([]Bill, error) {
	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query bills: %w", err)
	}
	defer rows.Close()

	var out []Bill
	for rows.Next() {
		var b Bill
		if err := rows.Scan(&b.ID, &b.OwnerID, &b.Title, &b.Amount, &b.DayOfMonth, &b.LastPaidMonth, &b.RemindedMonth); err != nil {
			return nil, fmt.Errorf("scan bill: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// MarkBillPaid records that the owner paid bill id for month.
func (s *Store) MarkBillPaid(ctx context.Context, ownerID string, id int64, month string) (Bill, error) {
	res, err := s.DB.ExecContext(ctx,
		`UPDATE bills SET last_paid_month = ? WHERE owner_id = ? AND id = ?`, month, ownerID, id)
	if err != nil {
		return Bill{}, fmt.Errorf("mark bill paid: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return Bill{}, ErrBillNotFound
	}
	bills, err := s.queryBills(ctx,
		`SELECT id, owner_id, title, amount, day_of_month, last_paid_month, reminded_month
		 FROM bills WHERE id = ?`, id)
	if err != nil {
		return Bill{}, err
	}
	if len(bills) == 0 {
		return Bill{}, ErrBillNotFound
	}
	return bills[0], nil
}

func (s *Store) MarkBillReminded(ctx context.Context, id int64, month string) error {
	_, err := s.DB.ExecContext(ctx, `UPDATE bills SET reminded_month = ? WHERE id = ?`, month, id)
	if err != nil {
		return fmt.Errorf("mark bill reminded: %w", err)
	}
	return nil
}

func (s *Store) DeleteBill(ctx context.Context, ownerID string, id int64) error {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM bills WHERE owner_id = ? AND id = ?`, ownerID, id)
	if err != nil {
		return fmt.Errorf("delete bill: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrBillNotFound
	}
	return nil
}
