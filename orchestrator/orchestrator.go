// Package orchestrator drives the control loop over a session: route with
// the coordinator, execute the selected agent, aggregate its update through
// the session manager, and repeat until completion, a hard failure, or the
// hop budget runs out. Agents and tools never raise past this boundary.
package orchestrator

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/scholarmesh/scholarmesh/agent"
	"github.com/scholarmesh/scholarmesh/core"
	"github.com/scholarmesh/scholarmesh/logging"
	"github.com/scholarmesh/scholarmesh/session"
)

// DefaultMaxHops bounds routing hops per user message so delegate cycles
// cannot spin forever.
const DefaultMaxHops = 8

// Request is one user turn handed to the orchestrator.
type Request struct {
	UserID    string         `json:"user_id"`
	SessionID string         `json:"session_id,omitempty"`
	Message   string         `json:"message"`
	TaskType  string         `json:"task_type,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Response is the outcome of one control-loop pass.
type Response struct {
	SessionID        string                    `json:"session_id"`
	Status           core.Status               `json:"status"`
	FinalAnswer      string                    `json:"final_answer,omitempty"`
	AgentsInvolved   []string                  `json:"agents_involved"`
	ResearchFindings []core.ResearchFinding    `json:"research_findings,omitempty"`
	Documents        []core.GeneratedDocument  `json:"documents,omitempty"`
	Applications     []core.TrackedApplication `json:"applications,omitempty"`
	StudyPlan        *core.StudyPlan           `json:"study_plan,omitempty"`
	Errors           []string                  `json:"errors,omitempty"`
	MessageCount     int                       `json:"message_count"`
}

// Options configures an Orchestrator.
type Options struct {
	MaxHops int
	Logger  logging.Logger
}

// Orchestrator owns the routing-executing-aggregating cycle. It is the
// session's single writer: agents return updates, and only the orchestrator
// applies them through the session manager.
type Orchestrator struct {
	coordinator *agent.Coordinator
	sessions    *session.Manager
	maxHops     int
	logger      logging.Logger
}

// New constructs an Orchestrator.
func New(coordinator *agent.Coordinator, sessions *session.Manager, optFns ...func(o *Options)) *Orchestrator {
	opts := Options{MaxHops: DefaultMaxHops, Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Orchestrator{
		coordinator: coordinator,
		sessions:    sessions,
		maxHops:     opts.MaxHops,
		logger:      opts.Logger,
	}
}

// HandleMessage runs one full control-loop pass for a user message,
// creating the session on first contact. A completed or failed session is
// immutable: the stored outcome is returned unchanged and a new session is
// required to continue.
func (o *Orchestrator) HandleMessage(ctx context.Context, req Request) (*Response, error) {
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	state, err := o.sessions.GetState(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if state == nil {
		if state, err = o.sessions.CreateSession(ctx, sessionID, req.UserID, req.TaskType, nil, req.Metadata); err != nil {
			return nil, err
		}
	}
	if state.Status.Terminal() {
		return buildResponse(state), nil
	}

	if err := o.sessions.AppendMessage(ctx, sessionID, "user", req.Message, ""); err != nil {
		return nil, err
	}
	upd := core.StateUpdate{Status: core.StatusPtr(core.StatusInProgress)}
	if state.CurrentTask == "" {
		upd.CurrentTask = core.StringPtr(req.Message)
	}
	if err := o.sessions.UpdateState(ctx, sessionID, upd, false); err != nil {
		return nil, err
	}

	final, err := o.runLoop(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return buildResponse(final), nil
}

// runLoop drives ROUTING, EXECUTING and AGGREGATING until a terminal
// outcome or hop exhaustion. The returned snapshot is taken before any
// eviction so the caller sees the final state even after EndSession.
func (o *Orchestrator) runLoop(ctx context.Context, sessionID string) (*core.SessionState, error) {
	for hop := 0; hop < o.maxHops; hop++ {
		state, err := o.sessions.GetState(ctx, sessionID)
		if err != nil {
			return nil, err
		}

		decision, err := o.runAgent(ctx, o.coordinator, state)
		if err != nil {
			return o.fail(ctx, sessionID, err)
		}
		if err := o.sessions.UpdateState(ctx, sessionID, decision.Update, false); err != nil {
			return nil, err
		}

		switch decision.NextAction {
		case core.ActionComplete:
			answer := ""
			if decision.Update.FinalAnswer != nil {
				answer = *decision.Update.FinalAnswer
			}
			return o.finish(ctx, sessionID, core.StatusCompleted, answer)

		case core.ActionError:
			return o.needsHuman(ctx, sessionID, decision.Message)

		case core.ActionDelegate:
			next := ""
			if decision.Update.NextAgent != nil {
				next = *decision.Update.NextAgent
			}
			ag, ok := o.coordinator.Agent(next)
			if !ok {
				if err := o.sessions.UpdateState(ctx, sessionID, core.StateUpdate{
					Errors: []string{fmt.Sprintf("routing: unknown agent %q", next)},
				}, false); err != nil {
					return nil, err
				}
				continue
			}

			if err := o.executeAgent(ctx, sessionID, ag); err != nil {
				return o.fail(ctx, sessionID, err)
			}

		case core.ActionContinue:
			// Route again.
		}
	}

	return o.needsHuman(ctx, sessionID, "I could not finish this request automatically; a human needs to take over.")
}

// executeAgent is the EXECUTING step: snapshot, run, aggregate.
func (o *Orchestrator) executeAgent(ctx context.Context, sessionID string, ag agent.Agent) error {
	state, err := o.sessions.GetState(ctx, sessionID)
	if err != nil {
		return err
	}

	o.logger.Debug("agent step", "session_id", sessionID, "agent", ag.Name())
	resp, err := o.runAgent(ctx, ag, state)
	if err != nil {
		return err
	}

	// Clear the routing pointer along with the agent's own mutations.
	resp.Update.NextAgent = core.StringPtr("")
	if err := o.sessions.UpdateState(ctx, sessionID, resp.Update, false); err != nil {
		return err
	}
	if resp.Message != "" {
		if err := o.sessions.AppendMessage(ctx, sessionID, "assistant", resp.Message, ag.Name()); err != nil {
			return err
		}
	}
	return nil
}

// runAgent invokes one agent with panic recovery at the boundary. A panic
// comes back as an error and moves the session to failed; handled failures
// arrive as responses with ActionError and never reach this path.
func (o *Orchestrator) runAgent(ctx context.Context, ag agent.Agent, state *core.SessionState) (resp *core.AgentResponse, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("agent %s panicked: %v", ag.Name(), r)
		}
	}()
	resp, err = ag.Process(ctx, state)
	if err != nil {
		return nil, fmt.Errorf("agent %s: %w", ag.Name(), err)
	}
	if resp == nil {
		return nil, fmt.Errorf("agent %s returned no response", ag.Name())
	}
	return resp, nil
}

// finish moves the session to a terminal status, records the final answer
// and ends the session (forced checkpoint plus eviction).
func (o *Orchestrator) finish(ctx context.Context, sessionID string, status core.Status, answer string) (*core.SessionState, error) {
	if answer != "" {
		if err := o.sessions.AppendMessage(ctx, sessionID, "assistant", answer, o.coordinator.Name()); err != nil {
			return nil, err
		}
		if err := o.sessions.UpdateState(ctx, sessionID, core.StateUpdate{FinalAnswer: core.StringPtr(answer)}, false); err != nil {
			return nil, err
		}
	}

	snapshot, err := o.sessions.GetState(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := o.sessions.EndSession(ctx, sessionID, status); err != nil {
		o.logger.Warn("end session", "session_id", sessionID, "error", err.Error())
	}
	snapshot.Status = status
	return snapshot, nil
}

// fail is the fatal-error path: the cause is appended to the error trail
// and the session ends as failed with a best-effort answer.
func (o *Orchestrator) fail(ctx context.Context, sessionID string, cause error) (*core.SessionState, error) {
	o.logger.Error("session failed", "session_id", sessionID, "error", cause.Error())
	if err := o.sessions.UpdateState(ctx, sessionID, core.StateUpdate{
		Errors: []string{cause.Error()},
	}, false); err != nil {
		return nil, err
	}
	return o.finish(ctx, sessionID, core.StatusFailed, "Something went wrong while handling your request.")
}

// needsHuman parks the session for hand-off. The session stays re-openable:
// needs_human is sticky but not terminal.
func (o *Orchestrator) needsHuman(ctx context.Context, sessionID, message string) (*core.SessionState, error) {
	if message == "" {
		message = "This request needs human attention."
	}
	if err := o.sessions.UpdateState(ctx, sessionID, core.StateUpdate{
		Status:      core.StatusPtr(core.StatusNeedsHuman),
		FinalAnswer: core.StringPtr(message),
	}, false); err != nil {
		return nil, err
	}
	return o.sessions.GetState(ctx, sessionID)
}

func buildResponse(state *core.SessionState) *Response {
	return &Response{
		SessionID:        state.SessionID,
		Status:           state.Status,
		FinalAnswer:      state.FinalAnswer,
		AgentsInvolved:   state.AgentsCalled,
		ResearchFindings: state.ResearchFindings,
		Documents:        state.Documents,
		Applications:     state.Applications,
		StudyPlan:        state.StudyPlan,
		Errors:           state.Errors,
		MessageCount:     len(state.Messages),
	}
}
