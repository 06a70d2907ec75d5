// Package assistant turns chat input into replies. It knows nothing about the
// transport: gateways feed it text and button payloads and render the Reply.
package assistant

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rahul/homebot/internal/cleaning"
	"github.com/rahul/homebot/internal/intake"
	"github.com/rahul/homebot/internal/rewards"
	"github.com/rahul/homebot/internal/store"
)

// Button is one inline keyboard button. Data comes back through HandleCallback.
type Button struct {
	Text string
	Data string
}

// Reply is what a gateway should show the user.
type Reply struct {
	Text    string
	Buttons [][]Button
}

// HouseholdStore is the part of *store.Store the assistant writes to directly.
type HouseholdStore interface {
	UpsertPantryItem(ctx context.Context, item store.PantryItem) (store.PantryItem, error)
	ListPantry(ctx context.Context, ownerID string) ([]store.PantryItem, error)
	SetPantryAmount(ctx context.Context, ownerID string, id int64, amount float64) error
	DeletePantryItem(ctx context.Context, ownerID string, id int64) error
	AddExpense(ctx context.Context, ownerID string, amount float64, category string) (int64, error)
	ExpenseSum(ctx context.Context, ownerID string, since time.Time) (float64, error)
	ExpensesByCategory(ctx context.Context, ownerID string, since time.Time) ([]store.CategoryTotal, error)
	AddReminder(ctx context.Context, chatID, description string, interval time.Duration) (int64, error)
	ListReminders(ctx context.Context, chatID string) ([]store.Reminder, error)
	DeleteReminder(ctx context.Context, chatID string, id int64) error
	GetBudget(ctx context.Context, ownerID string) (store.Budget, error)
	SetMonthlyLimit(ctx context.Context, ownerID string, limit float64) error
	SetCategoryLimit(ctx context.Context, ownerID, category string, limit float64) error
	UpsertBill(ctx context.Context, bill store.Bill) (store.Bill, error)
	ListBills(ctx context.Context, ownerID string) ([]store.Bill, error)
	MarkBillPaid(ctx context.Context, ownerID string, id int64, month string) (store.Bill, error)
	DeleteBill(ctx context.Context, ownerID string, id int64) error
}

type StatsSource interface {
	Stats(ctx context.Context, ownerID string) (rewards.Stats, error)
}

// Advisor answers free text that no rule recognised.
type Advisor interface {
	Advise(ctx context.Context, chatID, input string) (string, error)
}

// DefaultBusyRetry is the pause before the single retry of a busy session.
const DefaultBusyRetry = 300 * time.Millisecond

type Assistant struct {
	engine     *cleaning.Engine
	store      HouseholdStore
	stats      StatsSource
	conv       *intake.Conversations
	classifier *intake.Classifier
	advisor    Advisor
	busyRetry  time.Duration
	now        func() time.Time

	mu     sync.Mutex
	drafts map[string]*draft
}

type Option func(*Assistant)

func WithAdvisor(adv Advisor) Option {
	return func(a *Assistant) { a.advisor = adv }
}

// WithBusyRetry sets the wait before retrying a busy session. Zero or less
// keeps the default.
func WithBusyRetry(d time.Duration) Option {
	return func(a *Assistant) {
		if d > 0 {
			a.busyRetry = d
		}
	}
}

// WithLocation sets the timezone that month boundaries are computed in.
func WithLocation(loc *time.Location) Option {
	return func(a *Assistant) {
		if loc != nil {
			a.now = func() time.Time { return time.Now().In(loc) }
		}
	}
}

func New(engine *cleaning.Engine, st HouseholdStore, stats StatsSource, conv *intake.Conversations, classifier *intake.Classifier, opts ...Option) *Assistant {
	a := &Assistant{
		engine:     engine,
		store:      st,
		stats:      stats,
		conv:       conv,
		classifier: classifier,
		busyRetry:  DefaultBusyRetry,
		now:        time.Now,
		drafts:     make(map[string]*draft),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

const helpText = `Hi! I keep the house running.

/clean - start or continue a cleaning session
/pantry - what's in the pantry
/pantry_add [name] - add something to the pantry
/pantry_set <name> <amount> - correct what's left
/pantry_del <name> - remove an item
/spend [amount category] - record an expense
/spent_week - spending in the last 7 days
/budget - spending against your limits
/budget_set <amount> - monthly budget (0 removes it)
/budget_cat <category> <amount> - limit for one category
/bills - monthly bills and what is paid
/bill_add <day> <amount> <title> - add a monthly bill
/bill_paid <id> - mark a bill paid this month
/bill_del <id> - delete a bill
/stats - points and spending this month
/remind <minutes> <text> - repeating reminder
/reminders - list reminders
/unremind <id> - delete a reminder
/cancel - forget the current question

While cleaning you can also just type "done", "pause" or "stop".`

// HandleText answers one plain message or command from chatID.
func (a *Assistant) HandleText(ctx context.Context, chatID, text string) (Reply, error) {
	text = strings.TrimSpace(text)
	if cmd, args, ok := parseCommand(text); ok {
		return a.command(ctx, chatID, cmd, args)
	}

	cc, err := a.conv.Get(ctx, chatID)
	if err != nil {
		return failedReply, err
	}

	res := a.classifier.Classify(cc, text)
	switch res.Kind {
	case intake.KindPantryName:
		return a.askQuantity(ctx, chatID, res.Name)
	case intake.KindPantryQuantity:
		return a.savePantryItem(ctx, cc, res)
	case intake.KindExpense:
		return a.recordExpense(ctx, chatID, res.Amount, res.Category)
	case intake.KindAck:
		return a.acknowledge(ctx, chatID, res.Ack)
	}

	if cc.Expect != intake.ExpectNone {
		return reprompt(cc), nil
	}
	if a.advisor == nil || text == "" {
		return Reply{Text: "I didn't get that. Send /help to see what I can do."}, nil
	}
	answer, err := a.advisor.Advise(ctx, chatID, text)
	if err != nil {
		return Reply{Text: "I'm having trouble thinking right now..."}, err
	}
	return Reply{Text: answer}, nil
}

// HandleCallback answers an inline button press.
func (a *Assistant) HandleCallback(ctx context.Context, chatID, data string) (Reply, error) {
	if rest, ok := strings.CutPrefix(data, "clean:"); ok {
		return a.cleanCallback(ctx, chatID, rest)
	}
	if rest, ok := strings.CutPrefix(data, "bill:pay:"); ok {
		return a.payBill(ctx, chatID, rest)
	}
	return Reply{Text: "That button has expired."}, nil
}

func (a *Assistant) command(ctx context.Context, chatID, cmd, args string) (Reply, error) {
	switch cmd {
	case "start", "help":
		return Reply{Text: helpText}, nil
	case "clean":
		return a.cleanMenu(ctx, chatID)
	case "pantry":
		return a.showPantry(ctx, chatID)
	case "pantry_add":
		if args == "" {
			return a.ask(ctx, intake.Context{Owner: chatID, Expect: intake.ExpectPantryName}, "What did you buy?")
		}
		return a.askQuantity(ctx, chatID, args)
	case "spend":
		if args == "" {
			return a.ask(ctx, intake.Context{Owner: chatID, Expect: intake.ExpectExpense}, "How much did you spend, and on what? e.g. 350 food")
		}
		return a.spendArgs(ctx, chatID, args)
	case "pantry_set":
		return a.setPantry(ctx, chatID, args)
	case "pantry_del":
		return a.deletePantry(ctx, chatID, args)
	case "spent_week":
		return a.spentWeek(ctx, chatID)
	case "budget":
		return a.showBudget(ctx, chatID)
	case "budget_set":
		return a.setBudget(ctx, chatID, args)
	case "budget_cat":
		return a.setCategoryBudget(ctx, chatID, args)
	case "bills":
		return a.showBills(ctx, chatID, "")
	case "bill_add":
		return a.addBill(ctx, chatID, args)
	case "bill_paid":
		return a.payBill(ctx, chatID, args)
	case "bill_del":
		return a.deleteBill(ctx, chatID, args)
	case "stats":
		return a.showStats(ctx, chatID)
	case "remind":
		return a.remind(ctx, chatID, args)
	case "reminders":
		return a.listReminders(ctx, chatID)
	case "unremind":
		return a.unremind(ctx, chatID, args)
	case "cancel":
		a.dropDraft(chatID)
		if err := a.conv.Clear(ctx, chatID); err != nil {
			return failedReply, err
		}
		return Reply{Text: "Okay, never mind."}, nil
	}
	return Reply{Text: "Unknown command. Send /help for the list."}, nil
}

// parseCommand splits "/cmd@bot args" into cmd and args.
func parseCommand(text string) (string, string, bool) {
	if !strings.HasPrefix(text, "/") {
		return "", "", false
	}
	head, args, _ := strings.Cut(text[1:], " ")
	head, _, _ = strings.Cut(head, "@")
	return strings.ToLower(head), strings.TrimSpace(args), true
}

func (a *Assistant) ask(ctx context.Context, cc intake.Context, question string) (Reply, error) {
	if err := a.conv.Set(ctx, cc); err != nil {
		return failedReply, err
	}
	return Reply{Text: question}, nil
}

func reprompt(cc intake.Context) Reply {
	switch cc.Expect {
	case intake.ExpectPantryName:
		return Reply{Text: "Just the name, please. Or /cancel."}
	case intake.ExpectPantryQuantity:
		return Reply{Text: "How much " + cc.Subject + "? e.g. 2 kg, 500 g, 3. Or /cancel."}
	case intake.ExpectExpense:
		return Reply{Text: "I need an amount, e.g. 350 food. Or /cancel."}
	}
	return Reply{Text: "Send /help to see what I can do."}
}

var failedReply = Reply{Text: "Something went wrong on my side, please try again."}
