package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

var ErrPantryItemNotFound = errors.New("pantry item not found")

type PantryItem struct {
	ID           int64
	OwnerID      string
	Name         string
	Amount       float64
	Unit         string
	Category     string
	LowThreshold *float64
}

// UpsertPantryItem adds amount to an existing item with the same name and unit,
// or inserts a new one. It returns the stored item.
func (s *Store) UpsertPantryItem(ctx context.Context, item PantryItem) (PantryItem, error) {
	item.Name = strings.TrimSpace(item.Name)
	if item.Name == "" {
		return PantryItem{}, fmt.Errorf("pantry item name is empty")
	}
	if item.Unit == "" {
		item.Unit = "pcs"
	}
	now := formatTime(s.now())

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return PantryItem{}, fmt.Errorf("start pantry tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var id int64
	var amount float64
	err = tx.QueryRowContext(ctx,
		`SELECT id, amount FROM pantry_items WHERE owner_id = ? AND lower(name) = lower(?) AND unit = ?`,
		item.OwnerID, item.Name, item.Unit,
	).Scan(&id, &amount)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		res, err := tx.ExecContext(ctx,
			`INSERT INTO pantry_items(owner_id, name, amount, unit, category, low_threshold, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			item.OwnerID, item.Name, item.Amount, item.Unit, item.Category, item.LowThreshold, now,
		)
		if err != nil {
			return PantryItem{}, fmt.Errorf("insert pantry item: %w", err)
		}
		if item.ID, err = res.LastInsertId(); err != nil {
			return PantryItem{}, fmt.Errorf("insert pantry item: %w", err)
		}
	case err != nil:
		return PantryItem{}, fmt.Errorf("read pantry item: %w", err)
	default:
		item.ID = id
		item.Amount += amount
		if _, err := tx.ExecContext(ctx,
			`UPDATE pantry_items SET amount = ?, updated_at = ? WHERE id = ?`,
			item.Amount, now, id,
		); err != nil {
			return PantryItem{}, fmt.Errorf("update pantry item: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return PantryItem{}, fmt.Errorf("commit pantry tx: %w", err)
	}
	return item, nil
}

// SetPantryAmount overwrites the stored quantity of one item.
func (s *Store) SetPantryAmount(ctx context.Context, ownerID string, id int64, amount float64) error {
	res, err := s.DB.ExecContext(ctx,
		`UPDATE pantry_items SET amount = ?, updated_at = ? WHERE owner_id = ? AND id = ?`,
		amount, formatTime(s.now()), ownerID, id,
	)
	if err != nil {
		return fmt.Errorf("set pantry amount: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrPantryItemNotFound
	}
	return nil
}

func (s *Store) DeletePantryItem(ctx context.Context, ownerID string, id int64) error {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM pantry_items WHERE owner_id = ? AND id = ?`, ownerID, id)
	if err != nil {
		return fmt.Errorf("delete pantry item: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrPantryItemNotFound
	}
	return nil
}

// ListPantry returns items ordered by category then name.
func (s *Store) ListPantry(ctx context.Context, ownerID string) ([]PantryItem, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, owner_id, name, amount, unit, category, low_threshold
		 FROM pantry_items WHERE owner_id = ?
		 ORDER BY category, lower(name)`,
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("query pantry: %w", err)
	}
	defer rows.Close()

	var items []PantryItem
	for rows.Next() {
		var (
			item PantryItem
			low  sql.NullFloat64
		)
		if err := rows.Scan(&item.ID, &item.OwnerID, &item.Name, &item.Amount, &item.Unit, &item.Category, &low); err != nil {
			return nil, fmt.Errorf("scan pantry item: %w", err)
		}
		if low.Valid {
			v := low.Float64
			item.LowThreshold = &v
		}
		items = append(items, item)
	}
	return items, rows.Err()
}
