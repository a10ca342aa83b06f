package agent

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/scholarmesh/scholarmesh/core"
	"github.com/scholarmesh/scholarmesh/logging"
	"github.com/scholarmesh/scholarmesh/model"
	"github.com/scholarmesh/scholarmesh/tool"
)

// DefaultMaxRoutingAttempts bounds how many times the coordinator asks the
// model for a routing decision before falling back to keyword heuristics
// and finally giving up.
const DefaultMaxRoutingAttempts = 3

// CoordinatorOptions configures a Coordinator.
type CoordinatorOptions struct {
	Options
	MaxRoutingAttempts int
}

// Coordinator is the routing agent: it inspects the conversation and either
// delegates to a registered specialized agent, declares the task complete
// with a final answer, or reports that it cannot resolve the intent. It
// never executes domain work itself.
type Coordinator struct {
	BaseAgent
	agents      map[string]Agent
	maxAttempts int
}

var _ Agent = (*Coordinator)(nil)

// NewCoordinator constructs a Coordinator over the given specialized agents.
func NewCoordinator(m model.Model, registry *tool.Registry, agents []Agent, optFns ...func(o *CoordinatorOptions)) *Coordinator {
	opts := CoordinatorOptions{
		MaxRoutingAttempts: DefaultMaxRoutingAttempts,
		Options: Options{
			Description:   "Routes user requests to the right specialized agent or completes the task",
			ContextWindow: DefaultContextWindow,
			Logger:        logging.NoOpLogger{},
		},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	byName := make(map[string]Agent, len(agents))
	for _, a := range agents {
		byName[a.Name()] = a
	}

	c := &Coordinator{
		BaseAgent:   NewBaseAgent("coordinator", m, registry, func(o *Options) { *o = opts.Options }),
		agents:      byName,
		maxAttempts: opts.MaxRoutingAttempts,
	}
	return c
}

// AgentNames returns the registered specialized agent names, sorted.
func (c *Coordinator) AgentNames() []string {
	names := make([]string, 0, len(c.agents))
	for name := range c.agents {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Agent returns the registered specialized agent with the given name.
func (c *Coordinator) Agent(name string) (Agent, bool) {
	a, ok := c.agents[name]
	return a, ok
}

// Process implements Agent. The routing decision is bounded: up to
// maxAttempts model calls, then keyword heuristics on the latest user
// message; if neither resolves, the response carries ActionError and the
// orchestrator moves the session to needs_human.
func (c *Coordinator) Process(ctx context.Context, state *core.SessionState) (*core.AgentResponse, error) {
	upd := core.StateUpdate{AgentsCalled: []string{c.Name()}}

	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		resp, err := c.callModel(ctx, model.Request{
			System:   c.systemPrompt(state),
			Messages: c.window(state),
		})
		if err != nil {
			upd.Errors = append(upd.Errors, fmt.Sprintf("coordinator routing: %v", err))
			break
		}
		text, ok := resp.(model.TextReply)
		if !ok {
			continue
		}

		if name, rest, decided := c.parseDecision(text.Content); decided {
			if name == "" {
				return c.complete(upd, rest), nil
			}
			return c.delegate(upd, name), nil
		}
	}

	if name := routeByKeywords(lastUserMessage(state) + " " + state.CurrentTask); name != "" {
		if _, ok := c.agents[name]; ok {
			return c.delegate(upd, name), nil
		}
	}

	upd.Errors = append(upd.Errors, "coordinator: could not resolve intent")
	return &core.AgentResponse{
		AgentName:  c.Name(),
		Success:    false,
		Message:    "I could not determine how to help with this request.",
		NextAction: core.ActionError,
		Update:     upd,
	}, nil
}

func (c *Coordinator) systemPrompt(state *core.SessionState) string {
	var b strings.Builder
	b.WriteString("You are the coordinator of a graduate school application assistant. ")
	b.WriteString("Decide which specialized agent should handle the user's request next.\n\nAgents:\n")
	for _, name := range c.AgentNames() {
		fmt.Fprintf(&b, "- %s: %s\n", name, c.agents[name].Description())
	}
	if len(state.AgentsCalled) > 0 {
		fmt.Fprintf(&b, "\nAgents already invoked this session: %s\n", strings.Join(state.AgentsCalled, ", "))
	}
	b.WriteString("\nReply with exactly one agent name to delegate, or reply starting with ")
	b.WriteString("COMPLETE followed by the final answer when the task is done.")
	return b.String()
}

// parseDecision interprets a routing reply. Returns ("", answer, true) for
// completion, (agent, "", true) for delegation, and decided=false when the
// reply matches nothing actionable.
func (c *Coordinator) parseDecision(text string) (agent, answer string, decided bool) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return "", "", false
	}

	// Match the bare first token so "Completing the research..." is not
	// mistaken for a completion signal.
	token := strings.Fields(trimmed)[0]
	first := strings.ToLower(strings.TrimRight(token, ".,:;!"))
	if first == "complete" {
		rest := strings.TrimSpace(trimmed[len(token):])
		rest = strings.TrimLeft(rest, ":.- ")
		return "", rest, true
	}
	if _, ok := c.agents[first]; ok {
		return first, "", true
	}
	return "", "", false
}

func (c *Coordinator) delegate(upd core.StateUpdate, name string) *core.AgentResponse {
	upd.NextAgent = core.StringPtr(name)
	upd.Intent = core.StringPtr(name)
	return &core.AgentResponse{
		AgentName:  c.Name(),
		Success:    true,
		Message:    fmt.Sprintf("Delegating to %s", name),
		Data:       map[string]any{"next_agent": name},
		NextAction: core.ActionDelegate,
		Update:     upd,
	}
}

func (c *Coordinator) complete(upd core.StateUpdate, answer string) *core.AgentResponse {
	if answer == "" {
		answer = "Your request has been handled."
	}
	upd.FinalAnswer = core.StringPtr(answer)
	upd.NextAgent = core.StringPtr("")
	return &core.AgentResponse{
		AgentName:  c.Name(),
		Success:    true,
		Message:    answer,
		NextAction: core.ActionComplete,
		Update:     upd,
	}
}

// routeByKeywords is the deterministic fallback used when the model cannot
// produce a parseable routing decision.
func routeByKeywords(text string) string {
	lower := strings.ToLower(text)
	for _, rule := range []struct {
		agent    string
		keywords []string
	}{
		{"research", []string{"advisor", "professor", "research", "find", "faculty", "lab"}},
		{"document", []string{"sop", "statement of purpose", "essay", "letter", "cv", "resume", "document", "write", "draft"}},
		{"tracking", []string{"track", "application", "status", "deadline", "submitted"}},
		{"planning", []string{"plan", "study", "schedule", "prepare", "timeline", "gre", "toefl"}},
	} {
		for _, kw := range rule.keywords {
			if strings.Contains(lower, kw) {
				return rule.agent
			}
		}
	}
	return ""
}
