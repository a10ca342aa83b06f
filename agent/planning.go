package agent

import (
	"context"
	"time"

	"github.com/scholarmesh/scholarmesh/core"
	"github.com/scholarmesh/scholarmesh/model"
	"github.com/scholarmesh/scholarmesh/tool"
)

const planningSystemPrompt = `You are a study planner for graduate school applications.
Build a concrete preparation plan (tests, outreach, essays, deadlines) for
the user's goal. Reply with a JSON object with the fields "goal" and
"milestones", where each milestone has "title" and "due", followed by a
short prose summary.`

// PlanningAgent produces a study plan with milestones for the user's goal.
type PlanningAgent struct {
	BaseAgent
}

var _ Agent = (*PlanningAgent)(nil)

// NewPlanningAgent constructs the planning agent.
func NewPlanningAgent(m model.Model, registry *tool.Registry, optFns ...func(o *Options)) *PlanningAgent {
	fns := append([]func(o *Options){func(o *Options) {
		o.Description = "Builds study and preparation plans with milestones and deadlines"
	}}, optFns...)
	return &PlanningAgent{BaseAgent: NewBaseAgent("planning", m, registry, fns...)}
}

// Process implements Agent.
func (a *PlanningAgent) Process(ctx context.Context, state *core.SessionState) (*core.AgentResponse, error) {
	upd := core.StateUpdate{AgentsCalled: []string{a.Name()}}

	text, err := a.generate(ctx, planningSystemPrompt, state, &upd)
	if err != nil {
		return a.errorResponse(upd, err), nil
	}

	var plan core.StudyPlan
	milestones := 0
	if decodeJSONBlock(text, &plan) && len(plan.Milestones) > 0 {
		if plan.Goal == "" {
			plan.Goal = state.CurrentTask
		}
		plan.Created = time.Now().UTC()
		upd.StudyPlan = &plan
		milestones = len(plan.Milestones)
	}

	pad := upd.Scratchpad(a.Name())
	pad["milestones"] = milestones

	return &core.AgentResponse{
		AgentName:  a.Name(),
		Success:    true,
		Message:    text,
		Data:       map[string]any{"milestones": milestones},
		NextAction: core.ActionContinue,
		Update:     upd,
	}, nil
}
