package agent

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scholarmesh/scholarmesh/core"
	"github.com/scholarmesh/scholarmesh/model"
	"github.com/scholarmesh/scholarmesh/tool"
)

func newSearchRegistry(t *testing.T, fn func(ctx context.Context, args map[string]any) (any, error)) *tool.Registry {
	t.Helper()
	if fn == nil {
		fn = func(_ context.Context, args map[string]any) (any, error) {
			return map[string]any{"results": []string{"Prof. Chen, State University, NLP"}}, nil
		}
	}
	reg := tool.NewRegistry()
	reg.Register(tool.NewFunctionTool(
		"web_search",
		"Search the web for faculty and program information",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{"type": "string"},
			},
			"required": []string{"query"},
		},
		fn,
	))
	return reg
}

func newState(userMessage string) *core.SessionState {
	st := core.NewSessionState("sess-1", "user-1", "research")
	st.AddMessage("user", userMessage, "")
	return st
}

func specializedAgents(m model.Model, reg *tool.Registry) []Agent {
	return []Agent{
		NewResearchAgent(m, reg),
		NewDocumentAgent(m, reg),
		NewTrackingAgent(m, reg),
		NewPlanningAgent(m, reg),
	}
}

func TestCoordinatorDelegatesFromModelDecision(t *testing.T) {
	m := model.NewMockModel("mock")
	m.EnqueueText("research")
	reg := newSearchRegistry(t, nil)

	c := NewCoordinator(m, reg, specializedAgents(m, reg))
	resp, err := c.Process(context.Background(), newState("find PhD advisors in NLP at State University"))
	require.NoError(t, err)

	assert.True(t, resp.Success)
	assert.Equal(t, core.ActionDelegate, resp.NextAction)
	require.NotNil(t, resp.Update.NextAgent)
	assert.Equal(t, "research", *resp.Update.NextAgent)
	assert.Contains(t, resp.Update.AgentsCalled, "coordinator")
}

func TestCoordinatorKeywordFallback(t *testing.T) {
	m := model.NewMockModel("mock")
	for i := 0; i < DefaultMaxRoutingAttempts; i++ {
		m.EnqueueText("I am not sure what you mean.")
	}
	reg := newSearchRegistry(t, nil)

	c := NewCoordinator(m, reg, specializedAgents(m, reg))
	resp, err := c.Process(context.Background(), newState("can you help me find an advisor?"))
	require.NoError(t, err)

	assert.Equal(t, core.ActionDelegate, resp.NextAction)
	require.NotNil(t, resp.Update.NextAgent)
	assert.Equal(t, "research", *resp.Update.NextAgent)
}

func TestCoordinatorCompletes(t *testing.T) {
	m := model.NewMockModel("mock")
	m.EnqueueText("COMPLETE: You are all set, good luck with your applications.")
	reg := newSearchRegistry(t, nil)

	c := NewCoordinator(m, reg, specializedAgents(m, reg))
	resp, err := c.Process(context.Background(), newState("thanks, that is everything"))
	require.NoError(t, err)

	assert.Equal(t, core.ActionComplete, resp.NextAction)
	require.NotNil(t, resp.Update.FinalAnswer)
	assert.Contains(t, *resp.Update.FinalAnswer, "good luck")
}

func TestCoordinatorCompletionRequiresBareToken(t *testing.T) {
	m := model.NewMockModel("mock")
	// A narrative reply starting with "Completing" must not terminate the
	// session; the coordinator retries and falls back to keywords.
	for i := 0; i < DefaultMaxRoutingAttempts; i++ {
		m.EnqueueText("Completing the research first requires more information.")
	}
	reg := newSearchRegistry(t, nil)

	c := NewCoordinator(m, reg, specializedAgents(m, reg))
	resp, err := c.Process(context.Background(), newState("help me find an advisor"))
	require.NoError(t, err)

	assert.NotEqual(t, core.ActionComplete, resp.NextAction)
	assert.Equal(t, core.ActionDelegate, resp.NextAction)
	require.NotNil(t, resp.Update.NextAgent)
	assert.Equal(t, "research", *resp.Update.NextAgent)
}

func TestCoordinatorParseDecision(t *testing.T) {
	m := model.NewMockModel("mock")
	reg := newSearchRegistry(t, nil)
	c := NewCoordinator(m, reg, specializedAgents(m, reg))

	tests := []struct {
		reply   string
		agent   string
		answer  string
		decided bool
	}{
		{"research", "research", "", true},
		{"Research.", "research", "", true},
		{"COMPLETE: all set", "", "all set", true},
		{"complete", "", "", true},
		{"Completed the review of your request.", "", "", false},
		{"Completing the research first requires more information.", "", "", false},
		{"no idea", "", "", false},
	}
	for _, tt := range tests {
		agent, answer, decided := c.parseDecision(tt.reply)
		assert.Equal(t, tt.decided, decided, tt.reply)
		assert.Equal(t, tt.agent, agent, tt.reply)
		assert.Equal(t, tt.answer, answer, tt.reply)
	}
}

func TestCoordinatorUnresolvedIntent(t *testing.T) {
	m := model.NewMockModel("mock")
	for i := 0; i < DefaultMaxRoutingAttempts; i++ {
		m.EnqueueText("hmm")
	}
	reg := newSearchRegistry(t, nil)

	c := NewCoordinator(m, reg, specializedAgents(m, reg))
	resp, err := c.Process(context.Background(), newState("xyzzy"))
	require.NoError(t, err)

	assert.False(t, resp.Success)
	assert.Equal(t, core.ActionError, resp.NextAction)
	assert.NotEmpty(t, resp.Update.Errors)
}

func TestResearchAgentRunsToolsAndParsesFindings(t *testing.T) {
	m := model.NewMockModel("mock")
	m.Enqueue(model.ToolInvocation{Calls: []model.ToolCall{{
		ID:        "call-1",
		Name:      "web_search",
		Arguments: json.RawMessage(`{"query": "NLP advisors State University"}`),
	}}})
	m.EnqueueText(`[{"name": "Prof. Chen", "affiliation": "State University", "area": "NLP"}]
I found one strong match.`)

	called := false
	reg := newSearchRegistry(t, func(_ context.Context, args map[string]any) (any, error) {
		called = true
		assert.Equal(t, "NLP advisors State University", args["query"])
		return map[string]any{"results": []string{"Prof. Chen"}}, nil
	})

	a := NewResearchAgent(m, reg)
	resp, err := a.Process(context.Background(), newState("find PhD advisors in NLP at State University"))
	require.NoError(t, err)

	assert.True(t, called)
	assert.True(t, resp.Success)
	assert.Equal(t, core.ActionContinue, resp.NextAction)
	require.Len(t, resp.Update.ResearchFindings, 1)
	assert.Equal(t, "Prof. Chen", resp.Update.ResearchFindings[0].Name)

	res, ok := resp.Update.ToolResults["web_search"]
	require.True(t, ok)
	assert.True(t, res.Success)
	assert.Equal(t, 1, resp.Update.Scratchpads["research"]["findings_count"])
}

func TestResearchAgentDegradesOnToolFailure(t *testing.T) {
	m := model.NewMockModel("mock")
	m.Enqueue(model.ToolInvocation{Calls: []model.ToolCall{{
		ID:        "call-1",
		Name:      "web_search",
		Arguments: json.RawMessage(`{"query": "NLP advisors"}`),
	}}})
	m.EnqueueText("The search failed, but based on context Prof. Chen at State University works on NLP.")

	reg := newSearchRegistry(t, func(context.Context, map[string]any) (any, error) {
		return nil, errors.New("upstream unavailable")
	})

	a := NewResearchAgent(m, reg)
	resp, err := a.Process(context.Background(), newState("find PhD advisors in NLP"))
	require.NoError(t, err)

	// The step still succeeds; the failure lives in the recorded results.
	assert.True(t, resp.Success)
	res, ok := resp.Update.ToolResults["web_search"]
	require.True(t, ok)
	assert.False(t, res.Success)
	assert.NotEmpty(t, resp.Update.Errors)
	assert.NotEmpty(t, resp.Update.ResearchFindings)
}

func TestResearchAgentFallbackFindingFromProse(t *testing.T) {
	m := model.NewMockModel("mock")
	m.EnqueueText("Prof. Chen at State University is a strong NLP advisor candidate.")
	reg := newSearchRegistry(t, nil)

	a := NewResearchAgent(m, reg)
	resp, err := a.Process(context.Background(), newState("find advisors"))
	require.NoError(t, err)

	require.Len(t, resp.Update.ResearchFindings, 1)
	assert.Contains(t, resp.Update.ResearchFindings[0].Notes, "Prof. Chen")
}

func TestDocumentAgentClassifiesAndDrafts(t *testing.T) {
	m := model.NewMockModel("mock")
	m.EnqueueText("Dear Professor Chen, I am writing to express my interest...")
	reg := newSearchRegistry(t, nil)

	a := NewDocumentAgent(m, reg)
	resp, err := a.Process(context.Background(), newState("write an email to Prof. Chen"))
	require.NoError(t, err)

	require.Len(t, resp.Update.Documents, 1)
	doc := resp.Update.Documents[0]
	assert.Equal(t, "email", doc.Type)
	assert.Contains(t, doc.Content, "Dear Professor Chen")
	assert.False(t, doc.Created.IsZero())
}

func TestDocumentTypeClassification(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"draft my statement of purpose", "statement_of_purpose"},
		{"write an email to the professor", "email"},
		{"polish my CV", "cv"},
		{"write something for me", "document"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, classifyDocument(tt.text), tt.text)
	}
}

func TestTrackingAgentParsesApplications(t *testing.T) {
	m := model.NewMockModel("mock")
	m.EnqueueText(`[{"university": "State University", "program": "PhD CS", "deadline": "2026-12-01"}]
Tracked one application.`)
	reg := newSearchRegistry(t, nil)

	a := NewTrackingAgent(m, reg)
	resp, err := a.Process(context.Background(), newState("track my State University application"))
	require.NoError(t, err)

	require.Len(t, resp.Update.Applications, 1)
	app := resp.Update.Applications[0]
	assert.Equal(t, "State University", app.University)
	assert.Equal(t, "planned", app.Stage)
	assert.False(t, app.Updated.IsZero())
}

func TestPlanningAgentBuildsStudyPlan(t *testing.T) {
	m := model.NewMockModel("mock")
	m.EnqueueText(`{"goal": "apply to NLP PhD programs", "milestones": [
{"title": "Take the GRE", "due": "2026-10-01"},
{"title": "Draft SOP", "due": "2026-11-01"}]}
Here is your plan.`)
	reg := newSearchRegistry(t, nil)

	a := NewPlanningAgent(m, reg)
	resp, err := a.Process(context.Background(), newState("plan my application timeline"))
	require.NoError(t, err)

	require.NotNil(t, resp.Update.StudyPlan)
	assert.Equal(t, "apply to NLP PhD programs", resp.Update.StudyPlan.Goal)
	assert.Len(t, resp.Update.StudyPlan.Milestones, 2)
	assert.Equal(t, 2, resp.Update.Scratchpads["planning"]["milestones"])
}

func TestAgentModelFailureBecomesStructuredError(t *testing.T) {
	reg := newSearchRegistry(t, nil)
	a := NewResearchAgent(failingModel{}, reg)

	resp, err := a.Process(context.Background(), newState("find advisors"))
	require.NoError(t, err)

	assert.False(t, resp.Success)
	assert.Equal(t, core.ActionError, resp.NextAction)
	assert.NotEmpty(t, resp.Update.Errors)
}

type failingModel struct{}

func (failingModel) Call(context.Context, model.Request) (model.Response, error) {
	return nil, errors.New("provider unavailable")
}

func (failingModel) Info() model.Info {
	return model.Info{Name: "failing", Provider: "test"}
}
