package agent

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rahul/homebot/internal/cleaning"
	"github.com/rahul/homebot/internal/governance"
	"github.com/rahul/homebot/internal/observability"
	"github.com/rahul/homebot/internal/store"
	"github.com/rahul/homebot/internal/tools"
	"github.com/tmc/langchaingo/llms"
)

type scriptedModel struct {
	responses []*llms.ContentResponse
	seen      [][]llms.MessageContent
}

func (m *scriptedModel) GenerateContent(_ context.Context, messages []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	m.seen = append(m.seen, append([]llms.MessageContent(nil), messages...))
	if len(m.responses) == 0 {
		return nil, errors.New("script exhausted")
	}
	resp := m.responses[0]
	if len(m.responses) > 1 {
		m.responses = m.responses[1:]
	}
	return resp, nil
}

func (m *scriptedModel) Call(context.Context, string, ...llms.CallOption) (string, error) {
	return "", errors.New("not supported")
}

func toolCallResponse(id, name, args string) *llms.ContentResponse {
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{
		ToolCalls: []llms.ToolCall{{
			ID:           id,
			Type:         "function",
			FunctionCall: &llms.FunctionCall{Name: name, Arguments: args},
		}},
	}}}
}

func textResponse(text string) *llms.ContentResponse {
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: text}}}
}

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(t.TempDir() + "/agent.db")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() {
		_ = st.Close()
	})
	return st
}

func toolResults(messages []llms.MessageContent) []string {
	var out []string
	for _, m := range messages {
		if m.Role != llms.ChatMessageTypeTool {
			continue
		}
		for _, p := range m.Parts {
			if r, ok := p.(llms.ToolCallResponse); ok {
				out = append(out, r.Content)
			}
		}
	}
	return out
}

func TestAdvisorRunsToolThenAnswers(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)
	if _, err := st.UpsertPantryItem(ctx, store.PantryItem{OwnerID: "chat-1", Name: "Lentils", Amount: 2, Unit: "kg"}); err != nil {
		t.Fatalf("UpsertPantryItem: %v", err)
	}

	registry := tools.NewRegistry()
	registry.Register(tools.NewPantryTool(st))
	model := &scriptedModel{responses: []*llms.ContentResponse{
		toolCallResponse("call-1", "pantry", `{}`),
		textResponse("Make lentil soup."),
	}}
	advisor := NewAdvisor(model, registry, st, nil, observability.Discard())

	answer, err := advisor.Advise(ctx, "chat-1", "what can I cook?")
	if err != nil {
		t.Fatalf("Advise: %v", err)
	}
	if answer != "Make lentil soup." {
		t.Fatalf("answer = %q", answer)
	}
	if len(model.seen) != 2 {
		t.Fatalf("model called %d times, want 2", len(model.seen))
	}
	results := toolResults(model.seen[1])
	if len(results) != 1 || !strings.Contains(results[0], "Lentils: 2 kg") {
		t.Fatalf("tool results = %q", results)
	}

	history, err := st.GetHistory(ctx, "chat-1", 10)
	if err != nil {
		t.Fatalf("GetHistory: %v", err)
	}
	if len(history) != 2 || history[1].Role != llms.ChatMessageTypeAI {
		t.Fatalf("history = %+v", history)
	}
}

func TestAdvisorStopsAfterMaxSteps(t *testing.T) {
	model := &scriptedModel{responses: []*llms.ContentResponse{
		toolCallResponse("call", "missing_tool", `{}`),
	}}
	advisor := NewAdvisor(model, tools.NewRegistry(), nil, nil, observability.Discard())
	advisor.MaxSteps = 3

	answer, err := advisor.Advise(context.Background(), "chat-1", "loop forever")
	if err != nil {
		t.Fatalf("Advise: %v", err)
	}
	if len(model.seen) != 3 {
		t.Fatalf("model called %d times, want 3", len(model.seen))
	}
	if !strings.Contains(answer, "could not finish") {
		t.Fatalf("answer = %q", answer)
	}
	results := toolResults(model.seen[2])
	if len(results) != 2 || results[0] != "Error: Tool missing_tool not found" {
		t.Fatalf("tool results = %q", results)
	}
}

func TestAdvisorPolicyBlocksPrivatePages(t *testing.T) {
	registry := tools.NewRegistry()
	registry.Register(tools.NewPageTool(nil))
	model := &scriptedModel{responses: []*llms.ContentResponse{
		toolCallResponse("call-1", "read_page", `{"url":"http://127.0.0.1:8080/"}`),
		textResponse("I can't open that page."),
	}}
	advisor := NewAdvisor(model, registry, nil, nil, observability.Discard())
	advisor.Policy = governance.NewHouseholdPolicy()

	if _, err := advisor.Advise(context.Background(), "chat-1", "read my router page"); err != nil {
		t.Fatalf("Advise: %v", err)
	}
	results := toolResults(model.seen[1])
	if len(results) != 1 || !strings.HasPrefix(results[0], "Error: blocked by policy") {
		t.Fatalf("tool results = %q", results)
	}
}

func TestAdvisorPropagatesModelError(t *testing.T) {
	advisor := NewAdvisor(&scriptedModel{}, nil, nil, nil, observability.Discard())
	if _, err := advisor.Advise(context.Background(), "chat-1", "hi"); err == nil {
		t.Fatal("expected model error")
	}
}

type recordingMessenger struct {
	mu   sync.Mutex
	sent map[string][]string
}

func (m *recordingMessenger) Send(chatID, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sent == nil {
		m.sent = make(map[string][]string)
	}
	m.sent[chatID] = append(m.sent[chatID], text)
	return nil
}

func TestSchedulerTick(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)

	if _, err := st.AddReminder(ctx, "chat-1", "take out recycling", time.Hour); err != nil {
		t.Fatalf("AddReminder: %v", err)
	}

	catalog, err := cleaning.DefaultCatalog()
	if err != nil {
		t.Fatalf("DefaultCatalog: %v", err)
	}
	engine := cleaning.NewEngine(catalog, st, nil, cleaning.WithLogger(observability.Discard()))
	paused, err := engine.Start(ctx, "chat-2", cleaning.ModeMaintenance, []string{"chaos"})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := engine.Pause(ctx, paused.ID); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	aborted, err := engine.Start(ctx, "chat-3", cleaning.ModeMaintenance, []string{"chaos"})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := engine.Abort(ctx, aborted.ID); err != nil {
		t.Fatalf("Abort: %v", err)
	}

	messenger := &recordingMessenger{}
	sched := NewScheduler(st, messenger, 10*time.Minute)
	sched.RetainFinished = time.Hour
	sched.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	sched.Tick(ctx)
	sched.Tick(ctx)

	if got := messenger.sent["chat-1"]; len(got) != 1 || got[0] != "⏰ Reminder: take out recycling" {
		t.Fatalf("reminders sent = %q", got)
	}
	if got := messenger.sent["chat-2"]; len(got) != 1 || !strings.Contains(got[0], `paused at "Take out the trash and recycling"`) {
		t.Fatalf("nudges sent = %q", got)
	}
	if _, err := st.Load(ctx, aborted.ID); !errors.Is(err, cleaning.ErrSessionNotFound) {
		t.Fatalf("aborted session not purged: %v", err)
	}
	still, err := st.Load(ctx, paused.ID)
	if err != nil {
		t.Fatalf("Load paused: %v", err)
	}
	if still.Status != cleaning.StatusPaused || still.Version != 2 {
		t.Fatalf("scheduler changed the paused session: %+v", still)
	}
}

func TestSchedulerResetsMonthlyPoints(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)
	if err := st.AddPoints(ctx, "chat-1", 5, "kitchen-stove", "2026-01-31"); err != nil {
		t.Fatalf("AddPoints: %v", err)
	}

	sched := NewScheduler(st, &recordingMessenger{}, 0)
	sched.Location = time.UTC
	clock := time.Date(2026, 1, 31, 23, 59, 0, 0, time.UTC)
	sched.now = func() time.Time { return clock }

	sched.Tick(ctx)
	if _, month, _ := st.PointsTotal(ctx, "chat-1"); month != 5 {
		t.Fatalf("month points reset on first tick: %d", month)
	}

	clock = clock.Add(2 * time.Minute)
	sched.Tick(ctx)
	total, month, err := st.PointsTotal(ctx, "chat-1")
	if err != nil {
		t.Fatalf("PointsTotal: %v", err)
	}
	if total != 5 || month != 0 {
		t.Fatalf("after rollover total=%d month=%d", total, month)
	}
}

func TestSchedulerResetsMonthlyPointsAfterRestart(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)

	before := NewScheduler(st, &recordingMessenger{}, 0)
	before.Location = time.UTC
	before.now = func() time.Time { return time.Date(2026, 1, 30, 12, 0, 0, 0, time.UTC) }
	before.Tick(ctx)
	if err := st.AddPoints(ctx, "chat-1", 5, "kitchen-stove", "2026-01-31"); err != nil {
		t.Fatalf("AddPoints: %v", err)
	}

	// A new process whose first tick is already in February.
	after := NewScheduler(st, &recordingMessenger{}, 0)
	after.Location = time.UTC
	after.now = func() time.Time { return time.Date(2026, 2, 2, 8, 0, 0, 0, time.UTC) }
	after.Tick(ctx)
	after.Tick(ctx)

	total, month, err := st.PointsTotal(ctx, "chat-1")
	if err != nil {
		t.Fatalf("PointsTotal: %v", err)
	}
	if total != 5 || month != 0 {
		t.Fatalf("after restart total=%d month=%d, want 5 and 0", total, month)
	}
}

func TestSchedulerRemindsBillsOncePerMonth(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)
	bill, err := st.UpsertBill(ctx, store.Bill{OwnerID: "chat-1", Title: "Internet", Amount: 600, DayOfMonth: 15})
	if err != nil {
		t.Fatalf("UpsertBill: %v", err)
	}

	messenger := &recordingMessenger{}
	sched := NewScheduler(st, messenger, 0)
	sched.Location = time.UTC
	clock := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	sched.now = func() time.Time { return clock }

	sched.Tick(ctx)
	if got := messenger.sent["chat-1"]; len(got) != 0 {
		t.Fatalf("reminded before the due day: %q", got)
	}

	clock = clock.Add(24 * time.Hour)
	sched.Tick(ctx)
	sched.Tick(ctx)
	got := messenger.sent["chat-1"]
	if len(got) != 1 || !strings.Contains(got[0], "Internet is due (~600)") {
		t.Fatalf("bill reminders = %q", got)
	}

	if _, err := st.MarkBillPaid(ctx, "chat-1", bill.ID, "2026-04"); err != nil {
		t.Fatalf("MarkBillPaid: %v", err)
	}
	clock = time.Date(2026, 4, 20, 12, 0, 0, 0, time.UTC)
	sched.Tick(ctx)
	if got := messenger.sent["chat-1"]; len(got) != 1 {
		t.Fatalf("paid bill reminded again: %q", got)
	}
}
