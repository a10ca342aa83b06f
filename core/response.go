package core

// NextAction is the control-flow signal an agent hands back to the
// orchestrator after a processing step.
type NextAction string

const (
	// ActionContinue asks the orchestrator to route again.
	ActionContinue NextAction = "continue"
	// ActionDelegate asks the orchestrator to run a named agent next.
	ActionDelegate NextAction = "delegate"
	// ActionComplete declares the session's task finished.
	ActionComplete NextAction = "complete"
	// ActionError surfaces a handled failure; the orchestrator decides
	// whether to keep routing or give up.
	ActionError NextAction = "error"
)

// AgentResponse is the uniform outcome of one agent step. The Update field
// carries the agent's state mutations (scratchpad writes, structured
// outputs, tool results); the orchestrator applies it through the session
// manager so agents never touch the cached state directly.
type AgentResponse struct {
	AgentName  string         `json:"agent_name"`
	Success    bool           `json:"success"`
	Message    string         `json:"message,omitempty"`
	Data       map[string]any `json:"data,omitempty"`
	NextAction NextAction     `json:"next_action"`

	Update StateUpdate `json:"-"`
}
