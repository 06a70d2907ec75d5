package assistant

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/rahul/homebot/internal/household"
	"github.com/rahul/homebot/internal/intake"
	"github.com/rahul/homebot/internal/store"
)

func (a *Assistant) askQuantity(ctx context.Context, chatID, name string) (Reply, error) {
	cc := intake.Context{Owner: chatID, Expect: intake.ExpectPantryQuantity, Subject: name}
	return a.ask(ctx, cc, fmt.Sprintf("How much %s? e.g. 2 kg, 500 g, 3", name))
}

func (a *Assistant) savePantryItem(ctx context.Context, cc intake.Context, res intake.Result) (Reply, error) {
	item, err := a.store.UpsertPantryItem(ctx, store.PantryItem{
		OwnerID: cc.Owner,
		Name:    cc.Subject,
		Amount:  res.Amount,
		Unit:    res.Unit,
	})
	if err != nil {
		return failedReply, err
	}
	if err := a.conv.Clear(ctx, cc.Owner); err != nil {
		return failedReply, err
	}
	return Reply{Text: fmt.Sprintf("Saved. %s: %s", item.Name, household.FormatQuantity(item.Amount, item.Unit))}, nil
}

func (a *Assistant) showPantry(ctx context.Context, chatID string) (Reply, error) {
	items, err := a.store.ListPantry(ctx, chatID)
	if err != nil {
		return failedReply, err
	}
	text := household.RenderPantry(items)
	if low := household.LowItems(items); len(low) > 0 {
		text += "\n\nRunning low: " + strings.Join(low, ", ")
	}
	return Reply{Text: text}, nil
}

func (a *Assistant) spendArgs(ctx context.Context, chatID, args string) (Reply, error) {
	res := a.classifier.Classify(intake.Context{Owner: chatID, Expect: intake.ExpectExpense}, args)
	if res.Kind != intake.KindExpense {
		return Reply{Text: "Usage: /spend 350 food"}, nil
	}
	return a.recordExpense(ctx, chatID, res.Amount, res.Category)
}

func (a *Assistant) showStats(ctx context.Context, chatID string) (Reply, error) {
	st, err := a.stats.Stats(ctx, chatID)
	if err != nil {
		return failedReply, err
	}
	since := store.MonthStart(a.now())
	total, err := a.store.ExpenseSum(ctx, chatID, since)
	if err != nil {
		return failedReply, err
	}
	cats, err := a.store.ExpensesByCategory(ctx, chatID, since)
	if err != nil {
		return failedReply, err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Points today: %d\nLast 7 days: %d\nThis month: %d\nAll time: %d\n", st.Today, st.Week, st.Month, st.Total)
	if st.Streak > 0 {
		fmt.Fprintf(&b, "Streak: %d day(s)\n", st.Streak)
	}
	b.WriteString("\n")
	b.WriteString(household.RenderExpenses(total, cats))
	return Reply{Text: b.String()}, nil
}

func (a *Assistant) remind(ctx context.Context, chatID, args string) (Reply, error) {
	const usage = "Usage: /remind <minutes> <text>, e.g. /remind 1440 water the plants"
	rawMinutes, desc, _ := strings.Cut(args, " ")
	minutes, err := strconv.Atoi(rawMinutes)
	desc = strings.TrimSpace(desc)
	if err != nil || minutes < 1 || desc == "" {
		return Reply{Text: usage}, nil
	}
	if _, err := a.store.AddReminder(ctx, chatID, desc, time.Duration(minutes)*time.Minute); err != nil {
		return failedReply, err
	}
	return Reply{Text: fmt.Sprintf("Okay, every %d min: %s", minutes, desc)}, nil
}

// findPantryItem matches name case-insensitively. With several units of the
// same name the first listed wins.
func (a *Assistant) findPantryItem(ctx context.Context, chatID, name string) (store.PantryItem, bool, error) {
	items, err := a.store.ListPantry(ctx, chatID)
	if err != nil {
		return store.PantryItem{}, false, err
	}
	for _, item := range items {
		if strings.EqualFold(item.Name, name) {
			return item, true, nil
		}
	}
	return store.PantryItem{}, false, nil
}

func (a *Assistant) setPantry(ctx context.Context, chatID, args string) (Reply, error) {
	const usage = "Usage: /pantry_set <name> <amount>, e.g. /pantry_set rice 0.5 kg"
	fields := strings.Fields(args)
	if len(fields) < 2 {
		return Reply{Text: usage}, nil
	}
	// The quantity is the last one or two words; everything before is the name.
	var (
		res       intake.Result
		name      string
		unitGiven bool
	)
	for n := 1; n <= 2 && n < len(fields); n++ {
		qty := strings.Join(fields[len(fields)-n:], " ")
		res = a.classifier.Classify(intake.Context{Owner: chatID, Expect: intake.ExpectPantryQuantity}, qty)
		if res.Kind == intake.KindPantryQuantity {
			name = strings.Join(fields[:len(fields)-n], " ")
			unitGiven = strings.IndexFunc(qty, unicode.IsLetter) >= 0
			break
		}
	}
	if name == "" {
		return Reply{Text: usage}, nil
	}

	item, found, err := a.findPantryItem(ctx, chatID, name)
	if err != nil {
		return failedReply, err
	}
	if !found {
		return Reply{Text: fmt.Sprintf("%s is not in the pantry. Add it with /pantry_add %s", name, name)}, nil
	}
	if unitGiven && res.Unit != item.Unit {
		return Reply{Text: fmt.Sprintf("%s is kept in %s.", item.Name, item.Unit)}, nil
	}
	if err := a.store.SetPantryAmount(ctx, chatID, item.ID, res.Amount); err != nil {
		return failedReply, err
	}
	return Reply{Text: fmt.Sprintf("Updated. %s: %s", item.Name, household.FormatQuantity(res.Amount, item.Unit))}, nil
}

func (a *Assistant) deletePantry(ctx context.Context, chatID, name string) (Reply, error) {
	if name == "" {
		return Reply{Text: "Usage: /pantry_del <name>"}, nil
	}
	item, found, err := a.findPantryItem(ctx, chatID, name)
	if err != nil {
		return failedReply, err
	}
	if !found {
		return Reply{Text: fmt.Sprintf("%s is not in the pantry.", name)}, nil
	}
	if err := a.store.DeletePantryItem(ctx, chatID, item.ID); err != nil {
		return failedReply, err
	}
	return Reply{Text: fmt.Sprintf("Removed %s.", item.Name)}, nil
}

func (a *Assistant) listReminders(ctx context.Context, chatID string) (Reply, error) {
	list, err := a.store.ListReminders(ctx, chatID)
	if err != nil {
		return failedReply, err
	}
	if len(list) == 0 {
		return Reply{Text: "No reminders. Add one with /remind."}, nil
	}
	var b strings.Builder
	b.WriteString("Reminders")
	for _, r := range list {
		fmt.Fprintf(&b, "\n#%d every %d min: %s", r.ID, int(r.Interval/time.Minute), r.Description)
	}
	return Reply{Text: b.String()}, nil
}

func (a *Assistant) unremind(ctx context.Context, chatID, args string) (Reply, error) {
	id, err := strconv.ParseInt(strings.TrimPrefix(args, "#"), 10, 64)
	if err != nil {
		return Reply{Text: "Usage: /unremind <id>. See /reminders for ids."}, nil
	}
	err = a.store.DeleteReminder(ctx, chatID, id)
	if errors.Is(err, store.ErrReminderNotFound) {
		return Reply{Text: fmt.Sprintf("There is no reminder #%d.", id)}, nil
	}
	if err != nil {
		return failedReply, err
	}
	return Reply{Text: fmt.Sprintf("Reminder #%d deleted.", id)}, nil
}
