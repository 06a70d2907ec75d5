package intake

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/rahul/homebot/internal/observability"
)

// Expect is what the bot asked the owner for last.
type Expect string

const (
	ExpectNone           Expect = "none"
	ExpectPantryQuantity Expect = "pantry_quantity"
	ExpectExpense        Expect = "expense"
	ExpectPantryName     Expect = "pantry_name"
)

func (e Expect) valid() bool {
	switch e {
	case ExpectNone, ExpectPantryQuantity, ExpectExpense, ExpectPantryName:
		return true
	}
	return false
}

// Context is the conversation state a message is read against.
type Context struct {
	Owner   string
	Expect  Expect
	Subject string
}

type Kind string

const (
	KindPantryQuantity Kind = "pantry_quantity"
	KindPantryName     Kind = "pantry_name"
	KindExpense        Kind = "expense"
	KindAck            Kind = "ack"
	KindIgnore         Kind = "ignore"
)

type Ack string

const (
	AckDone  Ack = "done"
	AckPause Ack = "pause"
	AckStop  Ack = "stop"
)

// Result is the outcome of classifying one message. Only the fields that
// belong to Kind are set.
type Result struct {
	Kind     Kind
	Rule     string
	Amount   float64
	Unit     string
	Category string
	Name     string
	Ack      Ack
}

// Matcher is one classification rule. Build receives the submatches and
// may still reject the message.
type Matcher struct {
	Name    string
	Expect  Expect
	Pattern *regexp.Regexp
	Build   func(m []string, c Context) (Result, bool)
}

// Classifier evaluates matchers in registration order and returns the first hit
// whose Expect equals the context's.
type Classifier struct {
	matchers []Matcher
	logger   *observability.Logger
}

func NewClassifier(logger *observability.Logger) *Classifier {
	c := &Classifier{logger: logger}
	for _, m := range defaultMatchers() {
		c.Register(m)
	}
	return c
}

func (c *Classifier) Register(m Matcher) {
	c.matchers = append(c.matchers, m)
}

func (c *Classifier) Classify(ctx Context, text string) Result {
	expect := ctx.Expect
	if !expect.valid() {
		expect = ExpectNone
	}
	text = strings.TrimSpace(text)

	res := Result{Kind: KindIgnore}
	if text != "" && !strings.HasPrefix(text, "/") {
		for _, m := range c.matchers {
			if m.Expect != expect {
				continue
			}
			sub := m.Pattern.FindStringSubmatch(text)
			if sub == nil {
				continue
			}
			if r, ok := m.Build(sub, ctx); ok {
				r.Rule = m.Name
				res = r
				break
			}
		}
	}
	c.logger.LogClassify(ctx.Owner, string(expect), string(res.Kind))
	return res
}

const number = `(\d+(?:[.,]\d+)?)`

// signedNumber keeps a leading minus so money amounts below zero are rejected
// instead of read as positive.
const signedNumber = `(-?\d+(?:[.,]\d+)?)`

func defaultMatchers() []Matcher {
	return []Matcher{
		{
			Name:    "quantity",
			Expect:  ExpectPantryQuantity,
			Pattern: regexp.MustCompile(`(?i)^` + number + `\s*(\p{L}+)?\.?$`),
			Build: func(m []string, _ Context) (Result, bool) {
				amount, ok := parseAmount(m[1])
				if !ok {
					return Result{}, false
				}
				unit, ok := NormalizeUnit(m[2])
				if !ok {
					return Result{}, false
				}
				return Result{Kind: KindPantryQuantity, Amount: amount, Unit: unit}, true
			},
		},
		{
			Name:    "pantry-name",
			Expect:  ExpectPantryName,
			Pattern: regexp.MustCompile(`^(\p{L}[\p{L}\p{N} '\-]{0,63})$`),
			Build: func(m []string, _ Context) (Result, bool) {
				return Result{Kind: KindPantryName, Name: strings.TrimSpace(m[1])}, true
			},
		},
		{
			Name:    "expense",
			Expect:  ExpectExpense,
			Pattern: regexp.MustCompile(`^(?:[^\d-]|\p{L}-)*?` + signedNumber + `(?:[^\p{L}]*(\p{L}+))?`),
			Build:   buildExpense,
		},
		{
			Name:    "ack-done",
			Expect:  ExpectNone,
			Pattern: regexp.MustCompile(`(?i)^(?:done|ok|okay|finished|готово|сделала?|✅)[\s!.]*$`),
			Build:   ackBuilder(AckDone),
		},
		{
			Name:    "ack-pause",
			Expect:  ExpectNone,
			Pattern: regexp.MustCompile(`(?i)^(?:pause|later|позже|пауза|⏸\x{FE0F}?)[\s!.]*$`),
			Build:   ackBuilder(AckPause),
		},
		{
			Name:    "ack-stop",
			Expect:  ExpectNone,
			Pattern: regexp.MustCompile(`(?i)^(?:stop|abort|cancel|стоп|хватит)[\s!.]*$`),
			Build:   ackBuilder(AckStop),
		},
		{
			Name:    "spent",
			Expect:  ExpectNone,
			Pattern: regexp.MustCompile(`(?i)(?:spent|потрат\p{L}*)\s+` + signedNumber + `(?:(?:\s+(?:on|на))?\s+(\p{L}+))?`),
			Build:   buildExpense,
		},
	}
}

func buildExpense(m []string, _ Context) (Result, bool) {
	amount, ok := parseAmount(m[1])
	if !ok || amount <= 0 {
		return Result{}, false
	}
	category := strings.ToLower(m[2])
	if category == "" {
		category = "other"
	}
	return Result{Kind: KindExpense, Amount: amount, Category: category}, true
}

func ackBuilder(a Ack) func([]string, Context) (Result, bool) {
	return func([]string, Context) (Result, bool) {
		return Result{Kind: KindAck, Ack: a}, true
	}
}

func parseAmount(raw string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.ReplaceAll(raw, ",", "."), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

var unitAliases = map[string]string{
	"":       "pcs",
	"pcs":    "pcs",
	"pc":     "pcs",
	"x":      "pcs",
	"шт":     "pcs",
	"kg":     "kg",
	"кг":     "kg",
	"g":      "g",
	"gr":     "g",
	"г":      "g",
	"гр":     "g",
	"l":      "l",
	"л":      "l",
	"ml":     "ml",
	"мл":     "ml",
	"liter":  "l",
	"litre":  "l",
	"gram":   "g",
	"grams":  "g",
	"kilo":   "kg",
	"kilos":  "kg",
	"pieces": "pcs",
}

// NormalizeUnit maps a user-typed unit onto kg, g, l, ml or pcs. An empty unit
// means pieces.
func NormalizeUnit(raw string) (string, bool) {
	u, ok := unitAliases[strings.ToLower(strings.TrimSpace(raw))]
	return u, ok
}
