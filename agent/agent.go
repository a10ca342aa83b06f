// Package agent contains the coordinator and the specialized agents that
// collaborate on a session. Agents never mutate the cached session state:
// each Process call reads a snapshot and returns its mutations inside
// core.AgentResponse.Update, which the orchestrator applies through the
// session manager.
package agent

import (
	"context"

	"github.com/scholarmesh/scholarmesh/core"
)

// Agent is the single contract every agent satisfies. Process receives a
// snapshot of the shared state and returns a decision plus a typed partial
// update. Returning an error means an unhandled failure; handled failures
// come back as a response with Success=false and NextAction=ActionError.
type Agent interface {
	// Name returns the unique agent name used for routing, the audit trail
	// and scratchpad isolation.
	Name() string

	// Description tells the coordinator what this agent is good for.
	Description() string

	// Process executes one agent step against a state snapshot.
	Process(ctx context.Context, state *core.SessionState) (*core.AgentResponse, error)
}
