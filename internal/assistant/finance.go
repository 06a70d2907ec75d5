package assistant

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rahul/homebot/internal/household"
	"github.com/rahul/homebot/internal/store"
)

func (a *Assistant) recordExpense(ctx context.Context, chatID string, amount float64, category string) (Reply, error) {
	if _, err := a.store.AddExpense(ctx, chatID, amount, category); err != nil {
		return failedReply, err
	}
	if err := a.conv.Clear(ctx, chatID); err != nil {
		return failedReply, err
	}
	now := a.now()
	since := store.MonthStart(now)
	total, err := a.store.ExpenseSum(ctx, chatID, since)
	if err != nil {
		return failedReply, err
	}
	category = strings.ToLower(strings.TrimSpace(category))
	if category == "" {
		category = "other"
	}
	text := fmt.Sprintf("Recorded %s (%s). This month: %s",
		household.FormatMoney(amount), category, household.FormatMoney(total))

	budget, err := a.store.GetBudget(ctx, chatID)
	if err != nil {
		return failedReply, err
	}
	if budget.MonthlyLimit > 0 || len(budget.Categories) > 0 {
		cats, err := a.store.ExpensesByCategory(ctx, chatID, since)
		if err != nil {
			return failedReply, err
		}
		if warnings := household.BudgetWarnings(budget, total, cats, category); len(warnings) > 0 {
			text += "\n" + strings.Join(warnings, "\n")
		}
	}
	return Reply{Text: text}, nil
}

func (a *Assistant) spentWeek(ctx context.Context, chatID string) (Reply, error) {
	since := a.now().Add(-7 * 24 * time.Hour)
	total, err := a.store.ExpenseSum(ctx, chatID, since)
	if err != nil {
		return failedReply, err
	}
	cats, err := a.store.ExpensesByCategory(ctx, chatID, since)
	if err != nil {
		return failedReply, err
	}
	return Reply{Text: household.RenderWeek(total, cats)}, nil
}

func (a *Assistant) showBudget(ctx context.Context, chatID string) (Reply, error) {
	now := a.now()
	since := store.MonthStart(now)
	budget, err := a.store.GetBudget(ctx, chatID)
	if err != nil {
		return failedReply, err
	}
	total, err := a.store.ExpenseSum(ctx, chatID, since)
	if err != nil {
		return failedReply, err
	}
	cats, err := a.store.ExpensesByCategory(ctx, chatID, since)
	if err != nil {
		return failedReply, err
	}
	return Reply{Text: household.RenderBudget(now, budget, total, cats)}, nil
}

func (a *Assistant) setBudget(ctx context.Context, chatID, args string) (Reply, error) {
	limit, ok := parseMoney(args)
	if !ok {
		return Reply{Text: "Usage: /budget_set <amount>, e.g. /budget_set 20000. 0 removes the budget."}, nil
	}
	if err := a.store.SetMonthlyLimit(ctx, chatID, limit); err != nil {
		return failedReply, err
	}
	if limit == 0 {
		return Reply{Text: "Monthly budget removed."}, nil
	}
	return Reply{Text: "Monthly budget set: " + household.FormatMoney(limit)}, nil
}

func (a *Assistant) setCategoryBudget(ctx context.Context, chatID, args string) (Reply, error) {
	const usage = "Usage: /budget_cat <category> <amount>, e.g. /budget_cat food 5000. 0 removes the limit."
	fields := strings.Fields(args)
	if len(fields) != 2 {
		return Reply{Text: usage}, nil
	}
	category := strings.ToLower(fields[0])
	limit, ok := parseMoney(fields[1])
	if !ok {
		return Reply{Text: usage}, nil
	}
	if err := a.store.SetCategoryLimit(ctx, chatID, category, limit); err != nil {
		return failedReply, err
	}
	if limit == 0 {
		return Reply{Text: fmt.Sprintf("Limit for %s removed.", category)}, nil
	}
	return Reply{Text: fmt.Sprintf("Limit for %s set: %s a month", category, household.FormatMoney(limit))}, nil
}

// showBills renders the bill list with a "paid" button per unpaid bill.
func (a *Assistant) showBills(ctx context.Context, chatID, header string) (Reply, error) {
	bills, err := a.store.ListBills(ctx, chatID)
	if err != nil {
		return failedReply, err
	}
	now := a.now()
	text := household.RenderBills(bills, now)
	if header != "" {
		text = header + "\n\n" + text
	}

	var rows [][]Button
	month := household.MonthKey(now)
	for _, b := range bills {
		if b.PaidIn(month) {
			continue
		}
		rows = append(rows, []Button{{Text: "Paid: " + b.Title, Data: fmt.Sprintf("bill:pay:%d", b.ID)}})
	}
	return Reply{Text: text, Buttons: rows}, nil
}

func (a *Assistant) addBill(ctx context.Context, chatID, args string) (Reply, error) {
	const usage = "Usage: /bill_add <day 1-28> <amount> <title>, e.g. /bill_add 15 600 Internet"
	fields := strings.Fields(args)
	if len(fields) < 3 {
		return Reply{Text: usage}, nil
	}
	day, err := strconv.Atoi(fields[0])
	if err != nil || day < 1 || day > 28 {
		return Reply{Text: usage}, nil
	}
	amount, ok := parseMoney(fields[1])
	if !ok {
		return Reply{Text: usage}, nil
	}
	bill, err := a.store.UpsertBill(ctx, store.Bill{
		OwnerID:    chatID,
		Title:      strings.Join(fields[2:], " "),
		Amount:     amount,
		DayOfMonth: day,
	})
	if err != nil {
		return failedReply, err
	}
	header := fmt.Sprintf("Saved bill %s: ~%s on day %d of each month.", bill.Title, household.FormatMoney(bill.Amount), bill.DayOfMonth)
	return a.showBills(ctx, chatID, header)
}

func (a *Assistant) payBill(ctx context.Context, chatID, args string) (Reply, error) {
	id, err := strconv.ParseInt(strings.TrimPrefix(args, "#"), 10, 64)
	if err != nil {
		return Reply{Text: "Usage: /bill_paid <id>. See /bills for ids."}, nil
	}
	bill, err := a.store.MarkBillPaid(ctx, chatID, id, household.MonthKey(a.now()))
	if errors.Is(err, store.ErrBillNotFound) {
		return Reply{Text: fmt.Sprintf("There is no bill #%d.", id)}, nil
	}
	if err != nil {
		return failedReply, err
	}
	return a.showBills(ctx, chatID, fmt.Sprintf("Marked %s as paid.", bill.Title))
}

func (a *Assistant) deleteBill(ctx context.Context, chatID, args string) (Reply, error) {
	id, err := strconv.ParseInt(strings.TrimPrefix(args, "#"), 10, 64)
	if err != nil {
		return Reply{Text: "Usage: /bill_del <id>. See /bills for ids."}, nil
	}
	err = a.store.DeleteBill(ctx, chatID, id)
	if errors.Is(err, store.ErrBillNotFound) {
		return Reply{Text: fmt.Sprintf("There is no bill #%d.", id)}, nil
	}
	if err != nil {
		return failedReply, err
	}
	return Reply{Text: fmt.Sprintf("Bill #%d deleted.", id)}, nil
}

// parseMoney accepts a non-negative amount with a decimal point or comma.
func parseMoney(raw string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(raw), ",", "."), 64)
	if err != nil || v < 0 {
		return 0, false
	}
	return v, true
}
