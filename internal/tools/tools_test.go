package tools

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rahul/homebot/internal/store"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(t.TempDir() + "/tools.db")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() {
		_ = st.Close()
	})
	return st
}

func TestRegistryDefinitionsSorted(t *testing.T) {
	st := openTestStore(t)
	r := NewRegistry()
	r.Register(NewReminderTool(st))
	r.Register(NewPantryTool(st))
	r.Register(NewPageTool(nil))

	defs := r.Definitions()
	if len(defs) != 3 {
		t.Fatalf("definitions = %d, want 3", len(defs))
	}
	want := []string{"pantry", "read_page", "schedule_reminder"}
	for i, d := range defs {
		if d.Type != "function" || d.Function.Name != want[i] {
			t.Errorf("definition %d = %s, want %s", i, d.Function.Name, want[i])
		}
	}
	if r.Get("missing") != nil {
		t.Error("Get should return nil for unknown tools")
	}
}

func TestReminderToolLifecycle(t *testing.T) {
	st := openTestStore(t)
	tool := NewReminderTool(st)
	ctx := WithChatID(context.Background(), "chat-1")

	if _, err := tool.Execute(context.Background(), `{"action":"list"}`); err == nil {
		t.Fatal("expected error without chat id")
	}

	out, err := tool.Execute(ctx, `{"action":"schedule","text":"water the plants","interval_minutes":0}`)
	if err != nil || !strings.HasPrefix(out, "Error") {
		t.Fatalf("zero interval: out=%q err=%v", out, err)
	}

	out, err = tool.Execute(ctx, `{"action":"schedule","text":"water the plants","interval_minutes":1440}`)
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if !strings.Contains(out, "24h0m0s") {
		t.Fatalf("schedule output = %q", out)
	}

	out, err = tool.Execute(ctx, `{"action":"list"}`)
	if err != nil || !strings.Contains(out, "water the plants") {
		t.Fatalf("list: out=%q err=%v", out, err)
	}

	out, err = tool.Execute(ctx, `{"action":"clear"}`)
	if err != nil || out != "Cleared 1 reminder(s)." {
		t.Fatalf("clear: out=%q err=%v", out, err)
	}
}

func TestPantryToolFlagsLowItems(t *testing.T) {
	st := openTestStore(t)
	ctx := WithChatID(context.Background(), "chat-1")
	if _, err := st.UpsertPantryItem(ctx, store.PantryItem{OwnerID: "chat-1", Name: "Flour", Amount: 0.2, Unit: "kg", Category: "baking"}); err != nil {
		t.Fatalf("UpsertPantryItem: %v", err)
	}

	out, err := NewPantryTool(st).Execute(ctx, `{}`)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !strings.Contains(out, "Flour: 0.2 kg (low)") || !strings.Contains(out, "Running low: Flour") {
		t.Fatalf("unexpected output:\n%s", out)
	}
}

type stubRenderer struct {
	html  string
	calls int
}

func (r *stubRenderer) Render(context.Context, string) (string, error) {
	r.calls++
	return r.html, nil
}

const articleHTML = `<html><head><title>Descaling a kettle</title></head><body>
<article><h1>Descaling a kettle</h1>
<p>Fill the kettle halfway with equal parts water and white vinegar and let it stand for an hour.</p>
<p>Boil, empty, and rinse twice with fresh water so no vinegar taste remains in your tea.</p>
<p>Repeat monthly in hard water areas to keep the element free of limescale deposits.</p>
<script>alert("x")</script>
</article></body></html>`

func TestPageToolExtractsArticle(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(articleHTML))
	}))
	defer srv.Close()

	renderer := &stubRenderer{}
	tool := NewPageTool(renderer)

	out, err := tool.Execute(context.Background(), `{"url":"`+srv.URL+`/kettle"}`)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !strings.Contains(out, "white vinegar") {
		t.Fatalf("content missing:\n%s", out)
	}
	if strings.Contains(out, "alert(") {
		t.Fatalf("script leaked into output:\n%s", out)
	}
	if renderer.calls != 0 {
		t.Fatalf("renderer used for a static page")
	}

	if _, err := tool.Execute(context.Background(), `{"url":"`+srv.URL+`/missing"}`); err == nil {
		t.Fatal("expected error for 404")
	}
	out, err = tool.Execute(context.Background(), `{"url":"file:///etc/passwd"}`)
	if err != nil || !strings.HasPrefix(out, "Error") {
		t.Fatalf("non-http url: out=%q err=%v", out, err)
	}
}

type stubSearcher struct {
	queries []string
	result  string
}

func (s *stubSearcher) Call(_ context.Context, query string) (string, error) {
	s.queries = append(s.queries, query)
	return s.result, nil
}

func TestSearchToolShapesQuery(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{`{"query":"  limescale   shower screen "}`, "limescale shower screen"},
		{`{"query":"limescale on glass","topic":"cleaning"}`, "how to clean limescale on glass"},
		{`{"query":"How to clean grout","topic":"cleaning"}`, "How to clean grout"},
		{`{"query":"lentil soup","topic":"Recipe"}`, "lentil soup recipe"},
		{`{"query":"cooked rice in the fridge","topic":"storage"}`, "how long does it keep cooked rice in the fridge"},
		{`{"query":"robot vacuum","topic":"unknown"}`, "robot vacuum"},
	}
	for _, tt := range tests {
		searcher := &stubSearcher{result: "1. result"}
		tool := &SearchTool{Searcher: searcher}
		out, err := tool.Execute(context.Background(), tt.input)
		if err != nil {
			t.Fatalf("Execute(%s): %v", tt.input, err)
		}
		if len(searcher.queries) != 1 || searcher.queries[0] != tt.want {
			t.Errorf("Execute(%s) searched %q, want %q", tt.input, searcher.queries, tt.want)
		}
		if !strings.HasPrefix(out, "Results for ") {
			t.Errorf("output = %q", out)
		}
	}
}

func TestSearchToolEmptyInputAndResults(t *testing.T) {
	searcher := &stubSearcher{}
	tool := &SearchTool{Searcher: searcher}

	out, err := tool.Execute(context.Background(), `{"query":"   "}`)
	if err != nil || out != "Error: query is required" || len(searcher.queries) != 0 {
		t.Fatalf("blank query = %q, %v, searched %q", out, err, searcher.queries)
	}
	out, err = tool.Execute(context.Background(), `{"query":"zzzz"}`)
	if err != nil || !strings.HasPrefix(out, `No results for "zzzz"`) {
		t.Fatalf("empty results = %q, %v", out, err)
	}

	searcher.result = strings.Repeat("x", maxSearchOutput+10)
	out, _ = tool.Execute(context.Background(), `{"query":"long"}`)
	if !strings.HasSuffix(out, "[truncated]") {
		t.Fatalf("long output not truncated: ...%q", out[len(out)-20:])
	}
}
