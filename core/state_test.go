package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSessionState_ApplyAppendsAuditFields(t *testing.T) {
	st := NewSessionState("s1", "u1", "research")

	st.Apply(StateUpdate{AgentsCalled: []string{"coordinator"}})
	st.Apply(StateUpdate{AgentsCalled: []string{"research"}, Errors: []string{"tool timeout"}})

	assert.Equal(t, []string{"coordinator", "research"}, st.AgentsCalled)
	assert.Equal(t, []string{"tool timeout"}, st.Errors)
}

func TestSessionState_TerminalStatusIsImmutable(t *testing.T) {
	st := NewSessionState("s1", "u1", "")

	st.Apply(StateUpdate{Status: StatusPtr(StatusInProgress)})
	st.Apply(StateUpdate{Status: StatusPtr(StatusCompleted)})
	assert.Equal(t, StatusCompleted, st.CurrentStatus())

	// Further status changes are ignored once terminal.
	st.Apply(StateUpdate{Status: StatusPtr(StatusInProgress)})
	assert.Equal(t, StatusCompleted, st.CurrentStatus())

	st.Apply(StateUpdate{Status: StatusPtr(StatusFailed)})
	assert.Equal(t, StatusCompleted, st.CurrentStatus())
}

func TestSessionState_ScratchpadIsolation(t *testing.T) {
	st := NewSessionState("s1", "u1", "")

	upd := StateUpdate{}
	upd.Scratchpad("research")["query"] = "NLP advisors"
	upd.Scratchpad("document")["draft"] = "dear professor"
	st.Apply(upd)

	assert.Equal(t, "NLP advisors", st.Scratchpad("research")["query"])
	assert.NotContains(t, st.Scratchpad("research"), "draft")
	assert.NotContains(t, st.Scratchpad("document"), "query")

	// Mutating a returned pad copy does not leak back into state.
	pad := st.Scratchpad("research")
	pad["query"] = "tampered"
	assert.Equal(t, "NLP advisors", st.Scratchpad("research")["query"])
}

func TestSessionState_RecentMessagesBoundsWindow(t *testing.T) {
	st := NewSessionState("s1", "u1", "")
	for i := 0; i < 10; i++ {
		st.AddMessage("user", "msg", "")
	}

	assert.Len(t, st.RecentMessages(3), 3)
	assert.Len(t, st.RecentMessages(0), 10)
	assert.Len(t, st.RecentMessages(25), 10)
}

func TestSessionState_CloneDiverges(t *testing.T) {
	st := NewSessionState("s1", "u1", "")
	upd := StateUpdate{AgentsCalled: []string{"research"}}
	upd.Scratchpad("research")["k"] = "v"
	st.Apply(upd)

	clone := st.Clone()
	clone.Apply(StateUpdate{AgentsCalled: []string{"document"}, Status: StatusPtr(StatusFailed)})
	cloneUpd := StateUpdate{}
	cloneUpd.Scratchpad("research")["k"] = "changed"
	clone.Apply(cloneUpd)

	assert.Equal(t, []string{"research"}, st.AgentsCalled)
	assert.Equal(t, StatusPending, st.CurrentStatus())
	assert.Equal(t, "v", st.Scratchpad("research")["k"])
}

func TestStateUpdate_EntersFinalState(t *testing.T) {
	assert.False(t, StateUpdate{}.EntersFinalState())
	assert.False(t, StateUpdate{Status: StatusPtr(StatusInProgress)}.EntersFinalState())
	assert.True(t, StateUpdate{Status: StatusPtr(StatusCompleted)}.EntersFinalState())
	assert.True(t, StateUpdate{Status: StatusPtr(StatusFailed)}.EntersFinalState())
	assert.True(t, StateUpdate{Status: StatusPtr(StatusNeedsHuman)}.EntersFinalState())
}

func TestSessionState_ToolResultsMergePerName(t *testing.T) {
	st := NewSessionState("s1", "u1", "")

	st.Apply(StateUpdate{ToolResults: map[string]ToolResult{
		"web_search": ToolFailure("timeout"),
	}})
	st.Apply(StateUpdate{ToolResults: map[string]ToolResult{
		"web_search": ToolSuccess("ok"),
	}})

	assert.True(t, st.ToolResults["web_search"].Success)
}
