package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/rahul/homebot/internal/household"
	"github.com/rahul/homebot/internal/store"
)

type PantryLister interface {
	ListPantry(ctx context.Context, ownerID string) ([]store.PantryItem, error)
}

// PantryTool gives the advisor a read-only view of the chat's pantry so it can
// suggest meals and shopping lists.
type PantryTool struct {
	Store PantryLister
}

func NewPantryTool(store PantryLister) *PantryTool {
	return &PantryTool{Store: store}
}

func (p *PantryTool) Name() string {
	return "pantry"
}

func (p *PantryTool) Description() string {
	return "List what is in the household pantry, grouped by category, with low items flagged."
}

func (p *PantryTool) Parameters() map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": map[string]any{},
	}
}

func (p *PantryTool) Execute(ctx context.Context, _ string) (string, error) {
	chatID, ok := ChatIDFrom(ctx)
	if !ok {
		return "", fmt.Errorf("missing chat id in context")
	}
	items, err := p.Store.ListPantry(ctx, chatID)
	if err != nil {
		return "", fmt.Errorf("failed to list pantry: %w", err)
	}
	out := household.RenderPantry(items)
	if low := household.LowItems(items); len(low) > 0 {
		out += "\n\nRunning low: " + strings.Join(low, ", ")
	}
	return out, nil
}
