package household

import (
	"fmt"
	"strings"
	"time"

	"github.com/rahul/homebot/internal/store"
)

// MonthKey is the "YYYY-MM" key bills and budgets are tracked under.
func MonthKey(t time.Time) string {
	return t.Format("2006-01")
}

// DaysLeftInMonth counts today and the remaining days of t's month.
func DaysLeftInMonth(t time.Time) int {
	y, m, d := t.Date()
	last := time.Date(y, m+1, 0, 0, 0, 0, 0, t.Location()).Day()
	return last - d + 1
}

func categoryTotal(cats []store.CategoryTotal, category string) float64 {
	for _, c := range cats {
		if c.Category == category {
			return c.Amount
		}
	}
	return 0
}

// BudgetWarnings lists the limits the month's spending is over after an
// expense in category: the category's own limit first, then the monthly one.
func BudgetWarnings(b store.Budget, monthTotal float64, cats []store.CategoryTotal, category string) []string {
	var out []string
	for _, cl := range b.Categories {
		if cl.Category != category {
			continue
		}
		if spent := categoryTotal(cats, category); spent > cl.Limit {
			out = append(out, fmt.Sprintf("⚠️ %s is over its budget: %s / %s", category, FormatMoney(spent), FormatMoney(cl.Limit)))
		}
	}
	if b.MonthlyLimit > 0 && monthTotal > b.MonthlyLimit {
		out = append(out, fmt.Sprintf("⚠️ This month is over budget: %s / %s", FormatMoney(monthTotal), FormatMoney(b.MonthlyLimit)))
	}
	return out
}

// RenderBudget shows spending against the limits for the month containing now.
func RenderBudget(now time.Time, b store.Budget, monthTotal float64, cats []store.CategoryTotal) string {
	if b.MonthlyLimit == 0 && len(b.Categories) == 0 {
		return "No budget yet. Set one with /budget_set 20000 or /budget_cat food 5000."
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Budget for %s", now.Format("January"))
	if b.MonthlyLimit > 0 {
		fmt.Fprintf(&sb, "\nSpent: %s / %s", FormatMoney(monthTotal), FormatMoney(b.MonthlyLimit))
		if left := b.MonthlyLimit - monthTotal; left > 0 {
			days := DaysLeftInMonth(now)
			fmt.Fprintf(&sb, "\nLeft: %s, about %s a day for %d day(s)", FormatMoney(left), FormatMoney(roundCents(left/float64(days))), days)
		} else {
			sb.WriteString("\nThe monthly budget is used up.")
		}
	} else {
		fmt.Fprintf(&sb, "\nSpent: %s", FormatMoney(monthTotal))
	}
	for _, cl := range b.Categories {
		spent := categoryTotal(cats, cl.Category)
		mark := ""
		if spent > cl.Limit {
			mark = " (over)"
		}
		fmt.Fprintf(&sb, "\n- %s: %s / %s%s", cl.Category, FormatMoney(spent), FormatMoney(cl.Limit), mark)
	}
	return sb.String()
}

// RenderWeek summarizes the last seven days of spending.
func RenderWeek(total float64, cats []store.CategoryTotal) string {
	if total == 0 {
		return "No expenses in the last 7 days."
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Last 7 days: %s", FormatMoney(total))
	for _, c := range cats {
		fmt.Fprintf(&sb, "\n- %s: %s", c.Category, FormatMoney(c.Amount))
	}
	return sb.String()
}

// NextDue is this month's payment date, or next month's once the bill is
// paid for this month. An unpaid bill can be due in the past.
func NextDue(b store.Bill, today time.Time) time.Time {
	y, m, _ := today.Date()
	if b.PaidIn(MonthKey(today)) {
		m++
	}
	return time.Date(y, m, b.DayOfMonth, 0, 0, 0, 0, today.Location())
}

// RenderBills lists bills with their paid mark for today's month.
func RenderBills(bills []store.Bill, today time.Time) string {
	if len(bills) == 0 {
		return "No bills yet. Add one with /bill_add <day> <amount> <title>, e.g. /bill_add 15 600 Internet"
	}
	y, m, d := today.Date()
	midnight := time.Date(y, m, d, 0, 0, 0, 0, today.Location())

	var sb strings.Builder
	sb.WriteString("Bills")
	for _, b := range bills {
		due := NextDue(b, today)
		mark, when := "⏳", "due "+due.Format("02.01.2006")
		switch {
		case b.PaidIn(MonthKey(today)):
			mark, when = "✅", "next due "+due.Format("02.01.2006")
		case due.Before(midnight):
			when = "overdue since " + due.Format("02.01.2006")
		}
		fmt.Fprintf(&sb, "\n%s #%d %s: ~%s, %s", mark, b.ID, b.Title, FormatMoney(b.Amount), when)
	}
	return sb.String()
}

func roundCents(v float64) float64 {
	return float64(int64(v*100+0.5)) / 100
}
