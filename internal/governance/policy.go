package governance

import (
	"context"
	"fmt"
	"regexp"
)

// Effect defines the result of a policy evaluation.
type Effect string

const (
	EffectAllow Effect = "allow"
	EffectDeny  Effect = "deny"
)

// Request is one tool call the advisor wants to make.
type Request struct {
	Tool      string
	Arguments string
	ChatID    string
}

// Result contains the outcome of a policy evaluation.
type Result struct {
	Effect Effect
	Reason string
}

// PolicyEngine evaluates tool calls against a set of rules.
type PolicyEngine interface {
	Evaluate(ctx context.Context, req Request) (Result, error)
}

type argumentRule struct {
	tool   string
	re     *regexp.Regexp
	reason string
}

// DefaultPolicyEngine denies whole tools or calls whose raw JSON arguments
// match a pattern. Everything else is allowed.
type DefaultPolicyEngine struct {
	DeniedTools map[string]bool
	rules       []argumentRule
}

func NewDefaultPolicyEngine() *DefaultPolicyEngine {
	return &DefaultPolicyEngine{
		DeniedTools: make(map[string]bool),
	}
}

// privateURL matches URLs that point at the bot's own host or network.
const privateURL = `(?i)(?:file|ftp|gopher)://|://(?:[^/@"]*@)?(?:localhost|127\.|0\.0\.0\.0|10\.|192\.168\.|172\.(?:1[6-9]|2\d|3[01])\.|169\.254\.|\[?::1\]?|\[?f[cd][0-9a-f]{2}:)`

// NewHouseholdPolicy is the policy the advisor runs with: pages may only be
// read from the public internet.
func NewHouseholdPolicy() *DefaultPolicyEngine {
	e := NewDefaultPolicyEngine()
	if err := e.DenyArguments("read_page", privateURL, "only public web pages can be read"); err != nil {
		panic(err)
	}
	return e
}

func (e *DefaultPolicyEngine) DenyTool(name string) {
	e.DeniedTools[name] = true
}

// DenyArguments blocks calls of tool whose arguments match pattern. An empty
// tool applies the rule to every tool.
func (e *DefaultPolicyEngine) DenyArguments(tool, pattern, reason string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return err
	}
	if reason == "" {
		reason = "arguments match restricted pattern: " + re.String()
	}
	e.rules = append(e.rules, argumentRule{tool: tool, re: re, reason: reason})
	return nil
}

func (e *DefaultPolicyEngine) Evaluate(ctx context.Context, req Request) (Result, error) {
	if e.DeniedTools[req.Tool] {
		return Result{
			Effect: EffectDeny,
			Reason: fmt.Sprintf("Tool '%s' is restricted by system policy", req.Tool),
		}, nil
	}

	for _, r := range e.rules {
		if r.tool != "" && r.tool != req.Tool {
			continue
		}
		if r.re.MatchString(req.Arguments) {
			return Result{Effect: EffectDeny, Reason: r.reason}, nil
		}
	}

	return Result{
		Effect: EffectAllow,
		Reason: "Approved by default policy",
	}, nil
}
