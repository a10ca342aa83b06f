package agent

import (
	"context"
	"time"

	"github.com/scholarmesh/scholarmesh/core"
	"github.com/scholarmesh/scholarmesh/model"
	"github.com/scholarmesh/scholarmesh/tool"
)

const trackingSystemPrompt = `You are an application tracker for graduate school applications.
Maintain the user's list of applications: universities, programs, deadlines
and stages. Reply with a JSON array of applications, each an object with the
fields "university", "program", "deadline", "stage" and "notes", followed by
a short prose summary.`

// TrackingAgent maintains the per-session list of tracked applications.
type TrackingAgent struct {
	BaseAgent
}

var _ Agent = (*TrackingAgent)(nil)

// NewTrackingAgent constructs the tracking agent.
func NewTrackingAgent(m model.Model, registry *tool.Registry, optFns ...func(o *Options)) *TrackingAgent {
	fns := append([]func(o *Options){func(o *Options) {
		o.Description = "Tracks application records: universities, programs, deadlines and stages"
	}}, optFns...)
	return &TrackingAgent{BaseAgent: NewBaseAgent("tracking", m, registry, fns...)}
}

// Process implements Agent.
func (a *TrackingAgent) Process(ctx context.Context, state *core.SessionState) (*core.AgentResponse, error) {
	upd := core.StateUpdate{AgentsCalled: []string{a.Name()}}

	text, err := a.generate(ctx, trackingSystemPrompt, state, &upd)
	if err != nil {
		return a.errorResponse(upd, err), nil
	}

	var apps []core.TrackedApplication
	if decodeJSONBlock(text, &apps) {
		now := time.Now().UTC()
		for i := range apps {
			if apps[i].Stage == "" {
				apps[i].Stage = "planned"
			}
			apps[i].Updated = now
		}
		upd.Applications = apps
	}

	pad := upd.Scratchpad(a.Name())
	pad["tracked_count"] = len(upd.Applications)

	return &core.AgentResponse{
		AgentName:  a.Name(),
		Success:    true,
		Message:    text,
		Data:       map[string]any{"applications": len(upd.Applications)},
		NextAction: core.ActionContinue,
		Update:     upd,
	}, nil
}
