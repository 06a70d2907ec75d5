// Package household holds presentation rules for pantry and money data.
package household

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/rahul/homebot/internal/store"
)

// FormatQuantity renders an amount for chat: "2 pcs", "1.5 kg", "0.25 l".
func FormatQuantity(amount float64, unit string) string {
	unit = strings.TrimSpace(unit)
	if unit == "" {
		unit = "pcs"
	}
	num := strconv.FormatFloat(amount, 'f', 2, 64)
	num = strings.TrimRight(strings.TrimRight(num, "0"), ".")
	if num == "-0" {
		num = "0"
	}
	return num + " " + unit
}

// IsLow reports whether an item is nearly used up. A stored threshold wins;
// otherwise small units are low at 100 or less, large units at a quarter, and
// pieces at one.
func IsLow(item store.PantryItem) bool {
	if item.LowThreshold != nil {
		return item.Amount <= *item.LowThreshold
	}
	switch strings.ToLower(item.Unit) {
	case "g", "ml":
		return item.Amount <= 100
	case "kg", "l":
		return item.Amount <= 0.25
	default:
		return item.Amount <= 1
	}
}

// RenderPantry groups items by category, flagging low ones.
func RenderPantry(items []store.PantryItem) string {
	if len(items) == 0 {
		return "Pantry is empty. Add something with /pantry_add."
	}

	groups := make(map[string][]store.PantryItem)
	var cats []string
	for _, item := range items {
		cat := item.Category
		if cat == "" {
			cat = "other"
		}
		if _, ok := groups[cat]; !ok {
			cats = append(cats, cat)
		}
		groups[cat] = append(groups[cat], item)
	}
	sort.Strings(cats)

	var b strings.Builder
	b.WriteString("Pantry\n")
	for _, cat := range cats {
		fmt.Fprintf(&b, "\n%s:\n", capitalize(cat))
		for _, item := range groups[cat] {
			low := ""
			if IsLow(item) {
				low = " (low)"
			}
			fmt.Fprintf(&b, "- %s: %s%s\n", item.Name, FormatQuantity(item.Amount, item.Unit), low)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func capitalize(s string) string {
	r := []rune(s)
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}

// LowItems returns the names of items that need restocking.
func LowItems(items []store.PantryItem) []string {
	var out []string
	for _, item := range items {
		if IsLow(item) {
			out = append(out, item.Name)
		}
	}
	return out
}

// FormatMoney prints whole amounts without decimals.
func FormatMoney(v float64) string {
	if v == float64(int64(v)) {
		return strconv.FormatInt(int64(v), 10)
	}
	return strconv.FormatFloat(v, 'f', 2, 64)
}

// RenderExpenses summarizes a month of spending.
func RenderExpenses(total float64, cats []store.CategoryTotal) string {
	if total == 0 {
		return "No expenses recorded this month."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "This month: %s", FormatMoney(total))
	for _, c := range cats {
		fmt.Fprintf(&b, "\n- %s: %s", c.Category, FormatMoney(c.Amount))
	}
	return b.String()
}
