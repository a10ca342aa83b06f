// Package scholarmesh provides a high-level facade over the session
// coordination core: a coordinator routing user messages to specialized
// agents (research, document, tracking, planning) that collaborate through
// one authoritative per-session state, checkpointed to a persistent store
// and evicted when idle. Most applications interact with this package by:
//  1. Creating a ScholarMesh via New() (optionally overriding the default
//     in-memory store, mock model and no-op logger)
//  2. Registering tools the agents may call
//  3. Sending user turns through HandleMessage
//
// All defaults are safe for local development and testing; production
// deployments supply the SQLite store, a real model adapter and a
// structured logger.
package scholarmesh

import (
	"context"
	"time"

	"github.com/scholarmesh/scholarmesh/agent"
	"github.com/scholarmesh/scholarmesh/core"
	"github.com/scholarmesh/scholarmesh/logging"
	"github.com/scholarmesh/scholarmesh/model"
	"github.com/scholarmesh/scholarmesh/orchestrator"
	"github.com/scholarmesh/scholarmesh/session"
	"github.com/scholarmesh/scholarmesh/store"
	"github.com/scholarmesh/scholarmesh/tool"
)

// Options configures the ScholarMesh instance.
type Options struct {
	// Store persists sessions, messages and long-term memory. Defaults to
	// the in-memory implementation.
	Store store.Store

	// Model drives the coordinator and all agents. Defaults to a MockModel,
	// which is only useful for tests and demos.
	Model model.Model

	// Logger defaults to NoOp.
	Logger logging.Logger

	// CheckpointInterval is the session manager's write-coalescing interval.
	CheckpointInterval int
	// IdleTimeout and SweepInterval control background eviction.
	IdleTimeout   time.Duration
	SweepInterval time.Duration

	// MaxHops bounds routing hops per user message.
	MaxHops int
	// ContextWindow bounds the recent messages handed to each agent.
	ContextWindow int
	// ToolTimeout bounds each tool execution.
	ToolTimeout time.Duration
}

// ScholarMesh is the high-level facade aggregating the orchestrator, the
// session manager, the tool registry and the persistent store.
type ScholarMesh struct {
	opts     Options
	store    store.Store
	registry *tool.Registry
	sessions *session.Manager
	orch     *orchestrator.Orchestrator
}

// New creates a ScholarMesh instance with optional overrides. Unset
// services are initialized with in-memory or no-op implementations.
func New(optFns ...func(o *Options)) *ScholarMesh {
	opts := Options{
		Store:              store.NewInMemoryStore(),
		Model:              model.NewMockModel("mock"),
		Logger:             logging.NoOpLogger{},
		CheckpointInterval: session.DefaultCheckpointInterval,
		IdleTimeout:        session.DefaultIdleTimeout,
		SweepInterval:      session.DefaultSweepInterval,
		MaxHops:            orchestrator.DefaultMaxHops,
		ContextWindow:      agent.DefaultContextWindow,
		ToolTimeout:        tool.DefaultTimeout,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	registry := tool.NewRegistry(func(o *tool.RegistryOptions) {
		o.Timeout = opts.ToolTimeout
		o.Logger = opts.Logger
	})

	sessions := session.NewManager(opts.Store, func(o *session.Options) {
		o.CheckpointInterval = opts.CheckpointInterval
		o.IdleTimeout = opts.IdleTimeout
		o.SweepInterval = opts.SweepInterval
		o.Logger = opts.Logger
	})

	agentOpts := func(o *agent.Options) {
		o.ContextWindow = opts.ContextWindow
		o.Logger = opts.Logger
	}
	agents := []agent.Agent{
		agent.NewResearchAgent(opts.Model, registry, agentOpts),
		agent.NewDocumentAgent(opts.Model, registry, agentOpts),
		agent.NewTrackingAgent(opts.Model, registry, agentOpts),
		agent.NewPlanningAgent(opts.Model, registry, agentOpts),
	}
	coordinator := agent.NewCoordinator(opts.Model, registry, agents, func(o *agent.CoordinatorOptions) {
		o.ContextWindow = opts.ContextWindow
		o.Logger = opts.Logger
	})

	orch := orchestrator.New(coordinator, sessions, func(o *orchestrator.Options) {
		o.MaxHops = opts.MaxHops
		o.Logger = opts.Logger
	})

	return &ScholarMesh{
		opts:     opts,
		store:    opts.Store,
		registry: registry,
		sessions: sessions,
		orch:     orch,
	}
}

// RegisterTool makes a tool available to all agents.
func (s *ScholarMesh) RegisterTool(t tool.Tool) { s.registry.Register(t) }

// RegisterTools registers multiple tools at once.
func (s *ScholarMesh) RegisterTools(tools ...tool.Tool) {
	for _, t := range tools {
		s.registry.Register(t)
	}
}

// HandleMessage runs one control-loop pass for a user message, creating
// the session when the request carries no session id.
func (s *ScholarMesh) HandleMessage(ctx context.Context, req orchestrator.Request) (*orchestrator.Response, error) {
	return s.orch.HandleMessage(ctx, req)
}

// SessionState returns a snapshot of the session, or nil if it has never
// existed.
func (s *ScholarMesh) SessionState(ctx context.Context, sessionID string) (*core.SessionState, error) {
	return s.sessions.GetState(ctx, sessionID)
}

// Messages returns up to limit most recent messages from the durable log
// in ascending sequence order; limit <= 0 returns all.
func (s *ScholarMesh) Messages(ctx context.Context, sessionID string, limit int) ([]core.MessageRecord, error) {
	return s.store.Messages(ctx, sessionID, limit)
}

// Remember stores a long-term memory entry in the user's namespace; a zero
// ttl means no expiry.
func (s *ScholarMesh) Remember(ctx context.Context, userID, key string, value []byte, ttl time.Duration) error {
	return s.store.PutMemory(ctx, "user:"+userID, key, value, ttl)
}

// Recall retrieves a long-term memory entry from the user's namespace.
// Expired entries are reported as absent.
func (s *ScholarMesh) Recall(ctx context.Context, userID, key string) ([]byte, bool, error) {
	return s.store.GetMemory(ctx, "user:"+userID, key)
}

// Forget removes a long-term memory entry.
func (s *ScholarMesh) Forget(ctx context.Context, userID, key string) error {
	return s.store.DeleteMemory(ctx, "user:"+userID, key)
}

// Shutdown stops background eviction, flushes every cached session and
// closes the store.
func (s *ScholarMesh) Shutdown(ctx context.Context) error {
	if err := s.sessions.Shutdown(ctx); err != nil {
		return err
	}
	return s.store.Close()
}
