package tool

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scholarmesh/scholarmesh/internal/util"
)

var _ Tool = (*FunctionTool)(nil)

func numberSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"a": map[string]any{"type": "number"},
			"b": map[string]any{"type": "number"},
		},
		"required": []string{"a", "b"},
	}
}

func TestRegistry_ExecuteSuccess(t *testing.T) {
	r := NewRegistry()
	r.Register(NewFunctionTool("sum", "Add numbers", numberSchema(), func(_ context.Context, args map[string]any) (any, error) {
		return args["a"].(float64) + args["b"].(float64), nil
	}))

	res := r.Execute(context.Background(), "sum", map[string]any{"a": 2.0, "b": 3.0})
	assert.True(t, res.Success)
	assert.Equal(t, 5.0, res.Data)
	assert.Contains(t, res.Metadata, "duration_ms")
}

func TestRegistry_ExecuteUnknownTool(t *testing.T) {
	r := NewRegistry()
	res := r.Execute(context.Background(), "nope", nil)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "not registered")
}

func TestRegistry_ValidationFailureBecomesResult(t *testing.T) {
	r := NewRegistry()
	r.Register(NewFunctionTool("sum", "Add numbers", numberSchema(), func(_ context.Context, _ map[string]any) (any, error) {
		t.Fatal("body must not run on validation failure")
		return nil, nil
	}))

	res := r.Execute(context.Background(), "sum", map[string]any{"a": 2.0})
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, CodeValidation)
}

func TestRegistry_ExecutionErrorBecomesResult(t *testing.T) {
	r := NewRegistry()
	r.Register(NewFunctionTool("boom", "Always fails", map[string]any{"type": "object"}, func(_ context.Context, _ map[string]any) (any, error) {
		return nil, errors.New("upstream unavailable")
	}))

	res := r.Execute(context.Background(), "boom", map[string]any{})
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "upstream unavailable")
	assert.Contains(t, res.Error, CodeExecution)
}

func TestRegistry_PanicRecoveredAtBoundary(t *testing.T) {
	r := NewRegistry()
	r.Register(NewFunctionTool("panicky", "Panics", map[string]any{"type": "object"}, func(_ context.Context, _ map[string]any) (any, error) {
		panic("unexpected")
	}))

	res := r.Execute(context.Background(), "panicky", map[string]any{})
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "panic")
}

func TestRegistry_TimeoutBecomesFailedResult(t *testing.T) {
	r := NewRegistry(func(o *RegistryOptions) { o.Timeout = 20 * time.Millisecond })
	r.Register(NewFunctionTool("slow", "Sleeps past the deadline", map[string]any{"type": "object"}, func(ctx context.Context, _ map[string]any) (any, error) {
		select {
		case <-time.After(time.Second):
			return "done", nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}))

	res := r.Execute(context.Background(), "slow", map[string]any{})
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, CodeTimeout)
}

func TestFunctionTool_CustomToolErrorPreserved(t *testing.T) {
	ft := NewFunctionTool("quota", "Quota check", map[string]any{"type": "object"}, func(_ context.Context, _ map[string]any) (any, error) {
		return nil, NewToolError("quota", "limit exceeded", "RATE_LIMITED")
	})

	_, err := ft.Execute(context.Background(), map[string]any{})
	require.Error(t, err)
	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, "RATE_LIMITED", toolErr.Code)
}

type searchArgs struct {
	Query string `json:"query" description:"Search query"`
	Limit *int   `json:"limit" description:"Optional result limit"`
}

func TestSchemaFromStruct(t *testing.T) {
	schema := util.CreateSchema(searchArgs{})
	props, ok := schema["properties"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, props, "query")
	assert.Contains(t, props, "limit")

	req, _ := schema["required"].([]string)
	assert.ElementsMatch(t, []string{"query"}, req)
}

func TestValidateParameters_Enum(t *testing.T) {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"stage": map[string]any{"type": "string", "enum": []string{"draft", "submitted"}},
		},
	}

	assert.NoError(t, util.ValidateParameters(map[string]any{"stage": "draft"}, schema))
	err := util.ValidateParameters(map[string]any{"stage": "bogus"}, schema)
	require.Error(t, err)
	var vErr *util.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "stage", vErr.Field)
}
