package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-shiori/go-readability"
	"github.com/microcosm-cc/bluemonday"
)

const maxPageChars = 20000

// Renderer returns the HTML of a page after scripts have run.
type Renderer interface {
	Render(ctx context.Context, pageURL string) (string, error)
}

// PageTool fetches an article (a recipe, a stain-removal guide) and returns its
// readable text. When a Renderer is set, pages whose static HTML has no
// readable content are rendered in a headless browser and parsed again.
type PageTool struct {
	UserAgent string
	Client    *http.Client
	Renderer  Renderer
	policy    *bluemonday.Policy
}

func NewPageTool(renderer Renderer) *PageTool {
	return &PageTool{
		UserAgent: "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36",
		Client:    &http.Client{Timeout: 30 * time.Second},
		Renderer:  renderer,
		policy:    bluemonday.StrictPolicy(),
	}
}

func (p *PageTool) Name() string {
	return "read_page"
}

func (p *PageTool) Description() string {
	return "Fetch a webpage URL and extract the main content as clean text."
}

func (p *PageTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url": map[string]any{
				"type":        "string",
				"description": "The full http(s) URL of the page",
			},
		},
		"required": []string{"url"},
	}
}

func (p *PageTool) Execute(ctx context.Context, input string) (string, error) {
	var args struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal([]byte(input), &args); err != nil {
		return "", fmt.Errorf("invalid input: %w", err)
	}
	pageURL, err := url.Parse(strings.TrimSpace(args.URL))
	if err != nil || (pageURL.Scheme != "http" && pageURL.Scheme != "https") || pageURL.Host == "" {
		return "Error: a full http(s) URL is required", nil
	}

	html, err := p.fetch(ctx, pageURL.String())
	if err != nil {
		return "", err
	}
	article, err := readability.FromReader(strings.NewReader(html), pageURL)
	if (err != nil || strings.TrimSpace(article.TextContent) == "") && p.Renderer != nil {
		rendered, rerr := p.Renderer.Render(ctx, pageURL.String())
		if rerr != nil {
			return "", fmt.Errorf("render page: %w", rerr)
		}
		article, err = readability.FromReader(strings.NewReader(rendered), pageURL)
	}
	if err != nil {
		return "", fmt.Errorf("failed to parse article: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "TITLE: %s\n", article.Title)
	if article.Excerpt != "" {
		fmt.Fprintf(&b, "EXCERPT: %s\n", p.policy.Sanitize(article.Excerpt))
	}
	b.WriteString("\n-- CONTENT --\n")
	content := strings.TrimSpace(p.policy.Sanitize(article.TextContent))
	if len(content) > maxPageChars {
		content = content[:maxPageChars] + "\n... (content truncated) ..."
	}
	b.WriteString(content)
	return b.String(), nil
}

func (p *PageTool) fetch(ctx context.Context, pageURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", p.UserAgent)

	resp, err := p.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch URL: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("failed to fetch URL: status code %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 5<<20))
	if err != nil {
		return "", fmt.Errorf("failed to read body: %w", err)
	}
	return string(body), nil
}
