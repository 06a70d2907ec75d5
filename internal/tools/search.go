package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/tools/duckduckgo"
)

// Searcher runs one web query. *duckduckgo.Tool satisfies it.
type Searcher interface {
	Call(ctx context.Context, query string) (string, error)
}

// topicHints steer a bare query towards pages that answer household questions.
var topicHints = map[string]string{
	"cleaning": "how to clean",
	"recipe":   "recipe",
	"storage":  "how long does it keep",
	"product":  "review",
}

const maxSearchOutput = 4000

// SearchTool answers household questions ("how to remove limescale") from the web.
type SearchTool struct {
	Searcher Searcher
}

func NewSearchTool(maxResults int) (*SearchTool, error) {
	if maxResults <= 0 {
		maxResults = 5
	}
	ddg, err := duckduckgo.New(maxResults, duckduckgo.DefaultUserAgent)
	if err != nil {
		return nil, err
	}
	return &SearchTool{Searcher: ddg}, nil
}

func (s *SearchTool) Name() string {
	return "search"
}

func (s *SearchTool) Description() string {
	return "Search the web with DuckDuckGo for cleaning methods, recipes, food storage and product advice. " +
		"Set topic to sharpen the query."
}

func (s *SearchTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{
				"type":        "string",
				"description": "What to look up, e.g. 'limescale on a glass shower screen'",
			},
			"topic": map[string]any{
				"type":        "string",
				"enum":        []string{"cleaning", "recipe", "storage", "product", "general"},
				"description": "Kind of answer wanted. Defaults to general.",
			},
		},
		"required": []string{"query"},
	}
}

func (s *SearchTool) Execute(ctx context.Context, input string) (string, error) {
	var args struct {
		Query string `json:"query"`
		Topic string `json:"topic"`
	}
	if err := json.Unmarshal([]byte(input), &args); err != nil {
		return "", fmt.Errorf("invalid input: %w", err)
	}
	query := shapeQuery(args.Query, args.Topic)
	if query == "" {
		return "Error: query is required", nil
	}

	res, err := s.Searcher.Call(ctx, query)
	if err != nil {
		return "", fmt.Errorf("search failed: %w", err)
	}
	res = strings.TrimSpace(res)
	if res == "" {
		return fmt.Sprintf("No results for %q. Try fewer or plainer words.", query), nil
	}
	if len(res) > maxSearchOutput {
		res = res[:maxSearchOutput] + "\n[truncated]"
	}
	return fmt.Sprintf("Results for %q:\n%s", query, res), nil
}

// shapeQuery collapses whitespace and prefixes the topic hint unless the
// query already contains it.
func shapeQuery(query, topic string) string {
	query = strings.Join(strings.Fields(query), " ")
	if query == "" {
		return ""
	}
	hint, ok := topicHints[strings.ToLower(strings.TrimSpace(topic))]
	if !ok || strings.Contains(strings.ToLower(query), hint) {
		return query
	}
	if hint == "recipe" || hint == "review" {
		return query + " " + hint
	}
	return hint + " " + query
}
