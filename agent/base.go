package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/scholarmesh/scholarmesh/core"
	"github.com/scholarmesh/scholarmesh/logging"
	"github.com/scholarmesh/scholarmesh/model"
	"github.com/scholarmesh/scholarmesh/tool"
)

// DefaultContextWindow bounds how many recent messages an agent hands to
// the model. Older context stays reachable via the persistent message log
// and scratchpad summaries.
const DefaultContextWindow = 10

// Options configures a BaseAgent.
type Options struct {
	Description   string
	ContextWindow int
	// Tools restricts which registry tools the agent exposes to the model;
	// empty means all registered tools.
	Tools  []string
	Logger logging.Logger
}

// BaseAgent bundles the shared mechanics of a model-driven agent: identity,
// the bounded context window, tool exposure and the call-execute-synthesize
// pass. Embed it and supply Process.
type BaseAgent struct {
	name          string
	description   string
	model         model.Model
	registry      *tool.Registry
	contextWindow int
	tools         []string
	logger        logging.Logger
}

// NewBaseAgent constructs a BaseAgent with defaults suitable for embedding.
func NewBaseAgent(name string, m model.Model, registry *tool.Registry, optFns ...func(o *Options)) BaseAgent {
	opts := Options{
		Description:   fmt.Sprintf("Agent %s", name),
		ContextWindow: DefaultContextWindow,
		Logger:        logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return BaseAgent{
		name:          name,
		description:   opts.Description,
		model:         m,
		registry:      registry,
		contextWindow: opts.ContextWindow,
		tools:         opts.Tools,
		logger:        opts.Logger,
	}
}

// Name returns the agent's unique name.
func (b *BaseAgent) Name() string { return b.name }

// Description returns what the agent is good for.
func (b *BaseAgent) Description() string { return b.description }

// window converts the most recent messages of the snapshot into model
// messages.
func (b *BaseAgent) window(state *core.SessionState) []model.Message {
	msgs := state.RecentMessages(b.contextWindow)
	out := make([]model.Message, 0, len(msgs))
	for _, m := range msgs {
		role := m.Role
		if role == "" {
			role = "user"
		}
		out = append(out, model.Message{Role: role, Content: m.Content})
	}
	return out
}

// toolDefinitions builds the model-facing declarations for the agent's
// tools.
func (b *BaseAgent) toolDefinitions() []model.ToolDefinition {
	names := b.tools
	if len(names) == 0 && b.registry != nil {
		names = b.registry.Names()
	}
	defs := make([]model.ToolDefinition, 0, len(names))
	for _, name := range names {
		t, ok := b.registry.Get(name)
		if !ok {
			continue
		}
		defs = append(defs, model.ToolDefinition{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Parameters(),
		})
	}
	return defs
}

// callModel is the model suspension point; it is never invoked while any
// session lock is held.
func (b *BaseAgent) callModel(ctx context.Context, req model.Request) (model.Response, error) {
	start := time.Now()
	resp, err := b.model.Call(ctx, req)
	dur := time.Since(start)

	if ml, ok := b.logger.(*logging.MeshLogger); ok {
		ml.LogModelCall(b.model.Info().Name, dur, err)
	} else if err != nil {
		b.logger.Error("model call failed", "agent", b.name, "error", err.Error())
	}
	return resp, err
}

// runToolCalls executes the model's requested calls through the registry
// and records every result, failures included, into the update. A failed
// call never aborts the step; it is logged into ToolResults and Errors and
// handed back to the model like any other result. Returns the tool-role
// feedback messages for the synthesis call.
func (b *BaseAgent) runToolCalls(ctx context.Context, upd *core.StateUpdate, calls []model.ToolCall) []model.Message {
	feedback := make([]model.Message, 0, len(calls))
	for _, call := range calls {
		var res core.ToolResult
		args, err := call.ArgsMap()
		if err != nil {
			res = core.ToolFailure(fmt.Sprintf("decode arguments: %v", err))
		} else {
			res = b.registry.Execute(ctx, call.Name, args)
		}

		if upd.ToolResults == nil {
			upd.ToolResults = map[string]core.ToolResult{}
		}
		upd.ToolResults[call.Name] = res
		if !res.Success {
			upd.Errors = append(upd.Errors, fmt.Sprintf("tool %s: %s", call.Name, res.Error))
		}

		payload, _ := json.Marshal(res)
		feedback = append(feedback, model.Message{Role: "tool", Content: string(payload), ToolCallID: call.ID})
	}
	return feedback
}

// generate runs one bounded call-execute-synthesize pass: ask the model
// with the agent's tools, run whatever it requested, then ask once more
// with the results folded in. At most two model calls per pass keeps agent
// latency bounded.
func (b *BaseAgent) generate(ctx context.Context, system string, state *core.SessionState, upd *core.StateUpdate) (string, error) {
	req := model.Request{
		System:   system,
		Messages: b.window(state),
		Tools:    b.toolDefinitions(),
	}
	resp, err := b.callModel(ctx, req)
	if err != nil {
		return "", err
	}

	switch r := resp.(type) {
	case model.TextReply:
		return r.Content, nil
	case model.ToolInvocation:
		feedback := b.runToolCalls(ctx, upd, r.Calls)
		msgs := req.Messages
		if r.Content != "" {
			msgs = append(msgs, model.Message{Role: "assistant", Content: r.Content})
		}
		msgs = append(msgs, feedback...)

		synth, err := b.callModel(ctx, model.Request{System: system, Messages: msgs})
		if err != nil {
			return "", err
		}
		switch s := synth.(type) {
		case model.TextReply:
			return s.Content, nil
		case model.ToolInvocation:
			// The pass budget is spent; degrade to whatever text we have.
			if s.Content != "" {
				return s.Content, nil
			}
			return r.Content, nil
		}
		return "", fmt.Errorf("unsupported model response %T", synth)
	default:
		return "", fmt.Errorf("unsupported model response %T", resp)
	}
}

// errorResponse converts a handled failure into a structured response so
// it never propagates as a raw error past the agent boundary.
func (b *BaseAgent) errorResponse(upd core.StateUpdate, err error) *core.AgentResponse {
	upd.Errors = append(upd.Errors, fmt.Sprintf("agent %s: %v", b.name, err))
	return &core.AgentResponse{
		AgentName:  b.name,
		Success:    false,
		Message:    fmt.Sprintf("%s could not complete this step", b.name),
		NextAction: core.ActionError,
		Update:     upd,
	}
}

// lastUserMessage returns the content of the most recent user turn.
func lastUserMessage(state *core.SessionState) string {
	msgs := state.RecentMessages(0)
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == "user" {
			return msgs[i].Content
		}
	}
	return ""
}

// decodeJSONBlock extracts the first JSON value of the expected kind from
// model output, tolerating prose and code fences around it.
func decodeJSONBlock(text string, v any) bool {
	for _, pair := range [][2]string{{"[", "]"}, {"{", "}"}} {
		start := strings.Index(text, pair[0])
		end := strings.LastIndex(text, pair[1])
		if start < 0 || end <= start {
			continue
		}
		if json.Unmarshal([]byte(text[start:end+1]), v) == nil {
			return true
		}
	}
	return false
}
