package core

import (
	"sync"
	"time"
)

// Status represents the lifecycle phase of a session.
type Status string

const (
	// StatusPending marks a freshly created session before any agent ran.
	StatusPending Status = "pending"
	// StatusInProgress marks a session currently driven by the control loop.
	StatusInProgress Status = "in_progress"
	// StatusCompleted marks a session that produced a final answer.
	StatusCompleted Status = "completed"
	// StatusFailed marks a session aborted by an unrecoverable error.
	StatusFailed Status = "failed"
	// StatusNeedsHuman marks a session the coordinator could not resolve.
	StatusNeedsHuman Status = "needs_human"
)

// Terminal reports whether the status is immutable. Once a session is
// completed or failed, only creating a new session can continue the work.
// needs_human is sticky but may be re-opened by the orchestrator.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Message is one role-tagged entry in a session's ordered history.
// Agent is set when an assistant message was authored by a named agent.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Agent     string    `json:"agent,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// SessionState is the single authoritative, mutable state of one user
// conversation. It is owned by exactly one control loop at a time
// (single-writer); the session manager hands out clones for reading and
// applies StateUpdate deltas to the cached instance.
//
// Contract:
//   - AgentsCalled and Errors only grow; they are the audit trail.
//   - Scratchpads are isolated per agent name; an agent never reads another
//     agent's scratchpad (cross-agent communication goes through the shared
//     fields or tool results).
//   - Status transitions are monotonic; a terminal status cannot change.
//   - Clone performs deep copies so snapshots diverge safely.
type SessionState struct {
	SessionID   string    `json:"session_id"`
	UserID      string    `json:"user_id"`
	ThreadID    string    `json:"thread_id,omitempty"`
	Messages    []Message `json:"messages"`
	CurrentTask string    `json:"current_task,omitempty"`
	TaskType    string    `json:"task_type,omitempty"`
	Intent      string    `json:"intent,omitempty"`

	// NextAgent is the coordinator's routing pointer; empty means no
	// pending delegation.
	NextAgent    string                    `json:"next_agent,omitempty"`
	AgentsCalled []string                  `json:"agents_called"`
	Scratchpads  map[string]map[string]any `json:"scratchpads"`
	ToolResults  map[string]ToolResult     `json:"tool_results"`

	ResearchFindings []ResearchFinding    `json:"research_findings,omitempty"`
	Documents        []GeneratedDocument  `json:"documents,omitempty"`
	Applications     []TrackedApplication `json:"applications,omitempty"`
	StudyPlan        *StudyPlan           `json:"study_plan,omitempty"`

	FinalAnswer string         `json:"final_answer,omitempty"`
	Status      Status         `json:"status"`
	Errors      []string       `json:"errors"`
	Metadata    map[string]any `json:"metadata"`

	Created time.Time `json:"created"`
	Updated time.Time `json:"updated"`

	mu sync.RWMutex
}

// NewSessionState creates a pending session owned by the given user.
func NewSessionState(sessionID, userID, taskType string) *SessionState {
	now := time.Now().UTC()
	return &SessionState{
		SessionID:    sessionID,
		UserID:       userID,
		TaskType:     taskType,
		Messages:     []Message{},
		AgentsCalled: []string{},
		Scratchpads:  map[string]map[string]any{},
		ToolResults:  map[string]ToolResult{},
		Status:       StatusPending,
		Errors:       []string{},
		Metadata:     map[string]any{},
		Created:      now,
		Updated:      now,
	}
}

// AddMessage appends a message to the in-memory history. The durable,
// sequence-numbered copy lives in the persistent store; this slice is the
// working window the control loop reads from.
func (s *SessionState) AddMessage(role, content, agent string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Messages = append(s.Messages, Message{Role: role, Content: content, Agent: agent, Timestamp: time.Now().UTC()})
	s.Updated = time.Now().UTC()
}

// RecentMessages returns a copy of the most recent n messages. Older
// context stays reachable via the persistent message log only.
func (s *SessionState) RecentMessages(n int) []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	start := 0
	if n > 0 && len(s.Messages) > n {
		start = len(s.Messages) - n
	}
	out := make([]Message, len(s.Messages)-start)
	copy(out, s.Messages[start:])
	return out
}

// Scratchpad returns a copy of the named agent's private working memory.
// The copy keeps callers from mutating state outside a StateUpdate.
func (s *SessionState) Scratchpad(agent string) map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pad := s.Scratchpads[agent]
	out := make(map[string]any, len(pad))
	for k, v := range pad {
		out[k] = v
	}
	return out
}

// CurrentStatus returns the status under the read lock.
func (s *SessionState) CurrentStatus() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Status
}

// Apply merges a typed partial update into the state. Append-only fields
// (messages, agents called, errors, structured outputs) grow; map fields
// merge per key; scalar fields are last-writer-wins. A status change into
// a terminal state wins, but once the state is terminal further status
// changes are ignored so terminal states stay idempotent.
func (s *SessionState) Apply(u StateUpdate) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Messages = append(s.Messages, u.Messages...)
	if u.CurrentTask != nil {
		s.CurrentTask = *u.CurrentTask
	}
	if u.TaskType != nil {
		s.TaskType = *u.TaskType
	}
	if u.Intent != nil {
		s.Intent = *u.Intent
	}
	if u.NextAgent != nil {
		s.NextAgent = *u.NextAgent
	}
	s.AgentsCalled = append(s.AgentsCalled, u.AgentsCalled...)

	for agent, pad := range u.Scratchpads {
		dst, ok := s.Scratchpads[agent]
		if !ok {
			dst = make(map[string]any, len(pad))
			s.Scratchpads[agent] = dst
		}
		for k, v := range pad {
			dst[k] = v
		}
	}
	for name, res := range u.ToolResults {
		s.ToolResults[name] = res
	}

	s.ResearchFindings = append(s.ResearchFindings, u.ResearchFindings...)
	s.Documents = append(s.Documents, u.Documents...)
	s.Applications = append(s.Applications, u.Applications...)
	if u.StudyPlan != nil {
		s.StudyPlan = u.StudyPlan
	}

	if u.FinalAnswer != nil {
		s.FinalAnswer = *u.FinalAnswer
	}
	if u.Status != nil && !s.Status.Terminal() {
		s.Status = *u.Status
	}
	s.Errors = append(s.Errors, u.Errors...)
	for k, v := range u.Metadata {
		s.Metadata[k] = v
	}

	s.Updated = time.Now().UTC()
}

// Clone returns a deep copy safe for independent mutation and for
// serialization without holding the state lock.
func (s *SessionState) Clone() *SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	clone := &SessionState{
		SessionID:   s.SessionID,
		UserID:      s.UserID,
		ThreadID:    s.ThreadID,
		CurrentTask: s.CurrentTask,
		TaskType:    s.TaskType,
		Intent:      s.Intent,
		NextAgent:   s.NextAgent,
		FinalAnswer: s.FinalAnswer,
		Status:      s.Status,
		Created:     s.Created,
		Updated:     s.Updated,
	}

	clone.Messages = make([]Message, len(s.Messages))
	copy(clone.Messages, s.Messages)
	clone.AgentsCalled = make([]string, len(s.AgentsCalled))
	copy(clone.AgentsCalled, s.AgentsCalled)
	clone.Errors = make([]string, len(s.Errors))
	copy(clone.Errors, s.Errors)

	clone.Scratchpads = make(map[string]map[string]any, len(s.Scratchpads))
	for agent, pad := range s.Scratchpads {
		cp := make(map[string]any, len(pad))
		for k, v := range pad {
			cp[k] = v
		}
		clone.Scratchpads[agent] = cp
	}
	clone.ToolResults = make(map[string]ToolResult, len(s.ToolResults))
	for k, v := range s.ToolResults {
		clone.ToolResults[k] = v
	}
	clone.Metadata = make(map[string]any, len(s.Metadata))
	for k, v := range s.Metadata {
		clone.Metadata[k] = v
	}

	clone.ResearchFindings = append([]ResearchFinding(nil), s.ResearchFindings...)
	clone.Documents = append([]GeneratedDocument(nil), s.Documents...)
	clone.Applications = append([]TrackedApplication(nil), s.Applications...)
	if s.StudyPlan != nil {
		sp := *s.StudyPlan
		sp.Milestones = append([]Milestone(nil), s.StudyPlan.Milestones...)
		clone.StudyPlan = &sp
	}

	return clone
}

// StateUpdate is a typed partial update merged into a SessionState by the
// session manager. Nil pointer fields and empty slices/maps mean "no
// change"; slices append, maps merge.
type StateUpdate struct {
	Messages         []Message
	CurrentTask      *string
	TaskType         *string
	Intent           *string
	NextAgent        *string
	AgentsCalled     []string
	Scratchpads      map[string]map[string]any
	ToolResults      map[string]ToolResult
	ResearchFindings []ResearchFinding
	Documents        []GeneratedDocument
	Applications     []TrackedApplication
	StudyPlan        *StudyPlan
	FinalAnswer      *string
	Status           *Status
	Errors           []string
	Metadata         map[string]any
}

// EntersFinalState reports whether the update carries a transition into a
// terminal or needs_human status. The session manager checkpoints such
// updates immediately regardless of the write-coalescing counter.
func (u StateUpdate) EntersFinalState() bool {
	if u.Status == nil {
		return false
	}
	return u.Status.Terminal() || *u.Status == StatusNeedsHuman
}

// Scratchpad returns the update's pad for the given agent, allocating it
// on first use so callers can write entries directly.
func (u *StateUpdate) Scratchpad(agent string) map[string]any {
	if u.Scratchpads == nil {
		u.Scratchpads = map[string]map[string]any{}
	}
	pad, ok := u.Scratchpads[agent]
	if !ok {
		pad = map[string]any{}
		u.Scratchpads[agent] = pad
	}
	return pad
}

// StatusPtr is a small helper for building updates.
func StatusPtr(s Status) *Status { return &s }

// StringPtr is a small helper for building updates.
func StringPtr(s string) *string { return &s }
