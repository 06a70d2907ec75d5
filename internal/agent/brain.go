package agent

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/rahul/homebot/internal/governance"
	"github.com/rahul/homebot/internal/observability"
	"github.com/rahul/homebot/internal/tools"
	"github.com/tmc/langchaingo/llms"
)

// DefaultMaxSteps bounds the tool-call loop of one Advise call.
const DefaultMaxSteps = 8

const historyLimit = 6

// HistoryStore records advisor exchanges per chat.
type HistoryStore interface {
	AddMessage(ctx context.Context, chatID, role, content string) error
	GetHistory(ctx context.Context, chatID string, limit int) ([]llms.MessageContent, error)
}

// Advisor answers free-form household questions with an LLM that may call
// tools (web search, page reading, reminders, pantry).
type Advisor struct {
	Model    llms.Model
	Registry *tools.Registry
	History  HistoryStore
	Prompts  *PromptManager
	Logger   *observability.Logger
	MaxSteps int
	// Policy vets every tool call before it runs. Nil allows everything.
	Policy governance.PolicyEngine
}

func NewAdvisor(model llms.Model, registry *tools.Registry, history HistoryStore, prompts *PromptManager, logger *observability.Logger) *Advisor {
	return &Advisor{
		Model:    model,
		Registry: registry,
		History:  history,
		Prompts:  prompts,
		Logger:   logger,
		MaxSteps: DefaultMaxSteps,
	}
}

var errNoChoices = errors.New("model returned no choices")

func (a *Advisor) Advise(ctx context.Context, chatID, input string) (string, error) {
	ctx = tools.WithChatID(ctx, chatID)
	observability.SetStatus(observability.RoleAdvisor, input)
	defer observability.SetStatus(observability.RoleIdle, "")

	var messages []llms.MessageContent
	if a.Prompts != nil {
		systemPrompt, err := a.Prompts.SystemPrompt()
		if err != nil {
			log.Printf("Warning: Failed to load system prompt: %v", err)
		} else {
			messages = append(messages, llms.TextParts(llms.ChatMessageTypeSystem, systemPrompt))
		}
	}
	if a.History != nil {
		history, err := a.History.GetHistory(ctx, chatID, historyLimit)
		if err != nil {
			log.Printf("Warning: Failed to load history for %s: %v", chatID, err)
		}
		messages = append(messages, history...)
	}
	messages = append(messages, llms.TextParts(llms.ChatMessageTypeHuman, input))

	var opts []llms.CallOption
	if a.Registry != nil && len(a.Registry.Tools) > 0 {
		opts = append(opts, llms.WithTools(a.Registry.Definitions()))
	}

	maxSteps := a.MaxSteps
	if maxSteps <= 0 {
		maxSteps = DefaultMaxSteps
	}

	var answer string
	for step := 0; step < maxSteps; step++ {
		resp, err := a.Model.GenerateContent(ctx, messages, opts...)
		if err != nil {
			return "", fmt.Errorf("generate: %w", err)
		}
		if len(resp.Choices) == 0 {
			return "", errNoChoices
		}
		choice := resp.Choices[0]
		a.Logger.LogLLM(chatID, input, choice.Content, choice.ToolCalls)

		var parts []llms.ContentPart
		if choice.Content != "" {
			parts = append(parts, llms.TextContent{Text: choice.Content})
		}
		for _, tc := range choice.ToolCalls {
			parts = append(parts, tc)
		}
		messages = append(messages, llms.MessageContent{Role: llms.ChatMessageTypeAI, Parts: parts})

		if len(choice.ToolCalls) == 0 {
			answer = choice.Content
			break
		}

		for _, tc := range choice.ToolCalls {
			result := a.runTool(ctx, chatID, tc)
			var name string
			if tc.FunctionCall != nil {
				name = tc.FunctionCall.Name
			}
			messages = append(messages, llms.MessageContent{
				Role: llms.ChatMessageTypeTool,
				Parts: []llms.ContentPart{
					llms.ToolCallResponse{ToolCallID: tc.ID, Name: name, Content: result},
				},
			})
		}
	}

	if answer == "" {
		answer = "I could not finish that in time. Try asking something narrower."
	}
	if a.History != nil {
		if err := a.History.AddMessage(ctx, chatID, "human", input); err != nil {
			log.Printf("Warning: Failed to store message: %v", err)
		}
		if err := a.History.AddMessage(ctx, chatID, "ai", answer); err != nil {
			log.Printf("Warning: Failed to store message: %v", err)
		}
	}
	return answer, nil
}

func (a *Advisor) runTool(ctx context.Context, chatID string, tc llms.ToolCall) string {
	if tc.FunctionCall == nil {
		return "Error: empty tool call"
	}
	var tool tools.Tool
	if a.Registry != nil {
		tool = a.Registry.Get(tc.FunctionCall.Name)
	}
	if tool == nil {
		return fmt.Sprintf("Error: Tool %s not found", tc.FunctionCall.Name)
	}
	a.Logger.LogToolCall(chatID, tool.Name(), tc.FunctionCall.Arguments)
	if a.Policy != nil {
		verdict, err := a.Policy.Evaluate(ctx, governance.Request{
			Tool:      tool.Name(),
			Arguments: tc.FunctionCall.Arguments,
			ChatID:    chatID,
		})
		if err != nil {
			return fmt.Sprintf("Error: policy check failed: %v", err)
		}
		if verdict.Effect == governance.EffectDeny {
			log.Printf("Blocked %s call from %s: %s", tool.Name(), chatID, verdict.Reason)
			return "Error: blocked by policy: " + verdict.Reason
		}
	}
	res, err := tool.Execute(ctx, tc.FunctionCall.Arguments)
	if err != nil {
		return fmt.Sprintf("Error: %v", err)
	}
	return res
}
