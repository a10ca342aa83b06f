package tool

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/scholarmesh/scholarmesh/core"
	"github.com/scholarmesh/scholarmesh/internal/util"
	"github.com/scholarmesh/scholarmesh/logging"
)

// DefaultTimeout bounds a single tool execution unless overridden.
const DefaultTimeout = 15 * time.Second

// RegistryOptions configures a Registry.
type RegistryOptions struct {
	// Timeout bounds each Execute call; a timed-out call is reported as a
	// failed result, identical to any other tool failure.
	Timeout time.Duration
	Logger  logging.Logger
}

// Registry holds capability implementations keyed by name and executes
// them behind a uniform result envelope. It is an explicit instance passed
// by reference into the orchestrator and agents, not a package global, and
// is safe for concurrent use by independent sessions.
type Registry struct {
	mu      sync.RWMutex
	tools   map[string]Tool
	timeout time.Duration
	logger  logging.Logger
}

// NewRegistry constructs an empty registry.
func NewRegistry(optFns ...func(o *RegistryOptions)) *Registry {
	opts := RegistryOptions{Timeout: DefaultTimeout, Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Registry{tools: make(map[string]Tool), timeout: opts.Timeout, logger: opts.Logger}
}

// Register adds a tool, replacing any previous tool with the same name.
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name()] = t
}

// Get returns the named tool if registered.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Names returns the registered tool names in unspecified order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	return names
}

// Execute runs a named tool: validate arguments against the tool's schema,
// then run the body under the registry timeout. Every failure mode —
// unknown tool, validation, execution error, panic, timeout — is converted
// into a failed core.ToolResult; Execute never returns a raw error to the
// caller.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) core.ToolResult {
	t, ok := r.Get(name)
	if !ok {
		return failure(NewToolError(name, "tool not registered", CodeUnknown))
	}

	if err := util.ValidateParameters(args, t.Parameters()); err != nil {
		r.logger.Warn("tool validation failed", "tool", name, "error", err.Error())
		return failure(&ToolError{Tool: name, Message: fmt.Sprintf("parameter validation failed: %v", err), Code: CodeValidation, Details: err})
	}

	execCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	result, err := r.run(execCtx, t, args)
	dur := time.Since(start)
	r.logToolCall(name, dur, err)

	if err != nil {
		if execCtx.Err() == context.DeadlineExceeded {
			return failure(NewToolError(name, "execution timed out", CodeTimeout))
		}
		return failure(err)
	}
	return core.ToolResult{
		Success:  true,
		Data:     result,
		Metadata: map[string]any{"duration_ms": dur.Milliseconds()},
	}
}

// run executes the tool body in its own goroutine so a hung tool cannot
// outlive the timeout, and recovers panics into errors at this boundary.
func (r *Registry) run(ctx context.Context, t Tool, args map[string]any) (result any, err error) {
	type outcome struct {
		result any
		err    error
	}
	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- outcome{err: NewToolError(t.Name(), fmt.Sprintf("panic: %v", rec), CodeExecution)}
			}
		}()
		res, err := t.Execute(ctx, args)
		done <- outcome{result: res, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case out := <-done:
		return out.result, out.err
	}
}

func (r *Registry) logToolCall(name string, dur time.Duration, err error) {
	if ml, ok := r.logger.(*logging.MeshLogger); ok {
		ml.LogToolCall(name, dur, err == nil, err)
		return
	}
	if err != nil {
		r.logger.Error("tool execution failed", "tool", name, "duration_ms", dur.Milliseconds(), "error", err.Error())
		return
	}
	r.logger.Info("tool execution completed", "tool", name, "duration_ms", dur.Milliseconds())
}

func failure(err error) core.ToolResult {
	return core.ToolFailure(err.Error())
}
