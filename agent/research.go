package agent

import (
	"context"

	"github.com/scholarmesh/scholarmesh/core"
	"github.com/scholarmesh/scholarmesh/model"
	"github.com/scholarmesh/scholarmesh/tool"
)

const researchSystemPrompt = `You are a research assistant for graduate school applications.
Find advisors, professors, labs and programs matching the user's interests.
Use the available tools to gather information when helpful.
Reply with a JSON array of findings, each an object with the fields
"name", "affiliation", "area", "email", "source" and "notes". Include a
short prose summary after the JSON.`

// ResearchAgent finds potential advisors, labs and programs. It degrades
// gracefully: partial tool failures are recorded and the agent still
// synthesizes findings from whatever succeeded.
type ResearchAgent struct {
	BaseAgent
}

var _ Agent = (*ResearchAgent)(nil)

// NewResearchAgent constructs the research agent.
func NewResearchAgent(m model.Model, registry *tool.Registry, optFns ...func(o *Options)) *ResearchAgent {
	fns := append([]func(o *Options){func(o *Options) {
		o.Description = "Finds potential advisors, professors, labs and graduate programs"
	}}, optFns...)
	return &ResearchAgent{BaseAgent: NewBaseAgent("research", m, registry, fns...)}
}

// Process implements Agent.
func (a *ResearchAgent) Process(ctx context.Context, state *core.SessionState) (*core.AgentResponse, error) {
	upd := core.StateUpdate{AgentsCalled: []string{a.Name()}}

	text, err := a.generate(ctx, researchSystemPrompt, state, &upd)
	if err != nil {
		return a.errorResponse(upd, err), nil
	}

	var findings []core.ResearchFinding
	if !decodeJSONBlock(text, &findings) || len(findings) == 0 {
		// Keep the lead even when the model skipped the structured form.
		findings = []core.ResearchFinding{{Name: "unstructured lead", Source: "model", Notes: text}}
	}
	upd.ResearchFindings = findings

	pad := upd.Scratchpad(a.Name())
	pad["last_query"] = lastUserMessage(state)
	pad["findings_count"] = len(findings)

	return &core.AgentResponse{
		AgentName:  a.Name(),
		Success:    true,
		Message:    text,
		Data:       map[string]any{"findings": len(findings)},
		NextAction: core.ActionContinue,
		Update:     upd,
	}, nil
}
