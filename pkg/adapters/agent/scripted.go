package agent

import (
	"context"
	"strings"
	"sync"

	"github.com/aretw0/weft/pkg/domain"
)

// Rule is one canned answer of a Scripted agent.
// Empty State and Contains match anything.
type Rule struct {
	State    domain.StateID
	Contains string
	Response *domain.AgentResponse
	Err      error
	Times    int // Number of uses before the rule is spent; zero means unlimited
}

// Call records a prompt a Scripted agent received.
type Call struct {
	System string
	Prompt string
	Exec   domain.ExecutionContext
}

// Scripted answers from a list of rules, first match wins.
type Scripted struct {
	mu    sync.Mutex
	rules []Rule
	used  []int
	calls []Call
}

// NewScripted creates a scripted agent.
func NewScripted(rules ...Rule) *Scripted {
	return &Scripted{rules: rules, used: make([]int, len(rules))}
}

// Reply is shorthand for a successful rule.
func Reply(contains, content string) Rule {
	return Rule{Contains: contains, Response: &domain.AgentResponse{Content: content, ResponseType: domain.ResponseSuccess}}
}

func (s *Scripted) ExecutePrompt(ctx context.Context, systemPrompt, prompt string, ec domain.ExecutionContext) (*domain.AgentResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls = append(s.calls, Call{System: systemPrompt, Prompt: prompt, Exec: ec})
	for i, r := range s.rules {
		if r.Times > 0 && s.used[i] >= r.Times {
			continue
		}
		if r.State != "" && r.State != ec.State {
			continue
		}
		if r.Contains != "" && !strings.Contains(prompt, r.Contains) {
			continue
		}
		s.used[i]++
		if r.Err != nil {
			return nil, r.Err
		}
		resp := *r.Response
		resp.Metadata = domain.CopyMap(r.Response.Metadata)
		return &resp, nil
	}
	return nil, domain.NewActionError(domain.ActionErrNotFound, nil, "no scripted answer for state %q", ec.State)
}

// Calls returns the prompts received so far.
func (s *Scripted) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}
