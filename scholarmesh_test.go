package scholarmesh

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scholarmesh/scholarmesh/core"
	"github.com/scholarmesh/scholarmesh/model"
	"github.com/scholarmesh/scholarmesh/orchestrator"
	"github.com/scholarmesh/scholarmesh/tool"
)

func TestFacadeEndToEnd(t *testing.T) {
	ctx := context.Background()
	m := model.NewMockModel("mock")
	mesh := New(func(o *Options) { o.Model = m })
	t.Cleanup(func() { _ = mesh.Shutdown(context.Background()) })

	mesh.RegisterTool(tool.NewFunctionTool(
		"web_search",
		"Search the web",
		map[string]any{"type": "object", "properties": map[string]any{
			"query": map[string]any{"type": "string"},
		}},
		func(_ context.Context, args map[string]any) (any, error) {
			return map[string]any{"results": []string{"Prof. Chen, State University"}}, nil
		},
	))

	m.EnqueueText("research")
	m.EnqueueText(`[{"name": "Prof. Chen", "affiliation": "State University", "area": "NLP"}]`)
	m.EnqueueText("COMPLETE: Prof. Chen looks like a strong match.")

	resp, err := mesh.HandleMessage(ctx, orchestrator.Request{
		UserID:  "U1",
		Message: "find PhD advisors in NLP at State University",
	})
	require.NoError(t, err)

	assert.Equal(t, core.StatusCompleted, resp.Status)
	assert.NotEmpty(t, resp.ResearchFindings)
	assert.NotEmpty(t, resp.SessionID)

	// Durable message log survives session eviction.
	msgs, err := mesh.Messages(ctx, resp.SessionID, 0)
	require.NoError(t, err)
	assert.Len(t, msgs, resp.MessageCount)
	for i, msg := range msgs {
		assert.Equal(t, int64(i+1), msg.Seq)
	}

	state, err := mesh.SessionState(ctx, resp.SessionID)
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, core.StatusCompleted, state.Status)
}

func TestFacadeMemory(t *testing.T) {
	ctx := context.Background()
	mesh := New()
	t.Cleanup(func() { _ = mesh.Shutdown(context.Background()) })

	require.NoError(t, mesh.Remember(ctx, "U1", "target_schools", []byte(`["State University"]`), 0))

	val, ok, err := mesh.Recall(ctx, "U1", "target_schools")
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `["State University"]`, string(val))

	// Namespaces keep users apart.
	_, ok, err = mesh.Recall(ctx, "U2", "target_schools")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, mesh.Forget(ctx, "U1", "target_schools"))
	_, ok, err = mesh.Recall(ctx, "U1", "target_schools")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFacadeExpiredMemoryIsAbsent(t *testing.T) {
	ctx := context.Background()
	mesh := New()
	t.Cleanup(func() { _ = mesh.Shutdown(context.Background()) })

	require.NoError(t, mesh.Remember(ctx, "U1", "ephemeral", []byte("x"), -time.Second))

	_, ok, err := mesh.Recall(ctx, "U1", "ephemeral")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFacadeUnknownSession(t *testing.T) {
	mesh := New()
	t.Cleanup(func() { _ = mesh.Shutdown(context.Background()) })

	state, err := mesh.SessionState(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, state)
}
