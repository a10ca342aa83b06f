package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/scholarmesh/scholarmesh/core"
	"github.com/scholarmesh/scholarmesh/logging"
	"github.com/scholarmesh/scholarmesh/store"
)

// Defaults for the write-coalescing and eviction policies.
const (
	DefaultCheckpointInterval = 5
	DefaultIdleTimeout        = 30 * time.Minute
	DefaultSweepInterval      = 5 * time.Minute
)

// Options configures a Manager.
type Options struct {
	// CheckpointInterval is the number of merged updates that triggers a
	// checkpoint to the persistent store. Updates carrying a terminal or
	// needs_human status, and updates with the force flag, checkpoint
	// immediately regardless of the counter.
	CheckpointInterval int

	// IdleTimeout is how long a session may go untouched before the
	// background sweep checkpoints and evicts it from the cache.
	IdleTimeout time.Duration

	// SweepInterval is the cadence of the background eviction task.
	SweepInterval time.Duration

	Logger logging.Logger
}

// entry is one cached session. updates counts mutations since the last
// successful checkpoint.
type entry struct {
	state      *core.SessionState
	lastAccess time.Time
	updates    int
}

// Manager gives every control-loop step an up-to-date, low-latency view of
// session state while guaranteeing durability without persisting each
// mutation. Consistency policy: eventually persisted, always current in
// memory for the process that holds the session.
//
// All public methods are safe for concurrent use by independent sessions;
// mutations to a single session are expected to come from its single
// writer plus the eviction sweep, which the internal lock serializes.
type Manager struct {
	store  store.Store
	logger logging.Logger

	checkpointInterval int
	idleTimeout        time.Duration
	sweepInterval      time.Duration

	mu    sync.Mutex
	cache map[string]*entry

	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// NewManager constructs a Manager and starts its background eviction task.
// Call Shutdown to stop the task and flush cached sessions.
func NewManager(st store.Store, optFns ...func(o *Options)) *Manager {
	opts := Options{
		CheckpointInterval: DefaultCheckpointInterval,
		IdleTimeout:        DefaultIdleTimeout,
		SweepInterval:      DefaultSweepInterval,
		Logger:             logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	m := &Manager{
		store:              st,
		logger:             opts.Logger,
		checkpointInterval: opts.CheckpointInterval,
		idleTimeout:        opts.IdleTimeout,
		sweepInterval:      opts.SweepInterval,
		cache:              make(map[string]*entry),
		stop:               make(chan struct{}),
		done:               make(chan struct{}),
	}

	go m.sweepLoop()

	return m
}

// CreateSession writes a new record to the persistent store and seeds the
// in-memory cache. From the caller's perspective the two are atomic: the
// cache is only seeded after the store write succeeds, and no other caller
// can observe the session before this returns.
func (m *Manager) CreateSession(
	ctx context.Context,
	sessionID, userID, taskType string,
	initial *core.SessionState,
	metadata map[string]any,
) (*core.SessionState, error) {
	var st *core.SessionState
	if initial != nil {
		// Clone so later caller mutations cannot alias the cache.
		st = initial.Clone()
	} else {
		st = core.NewSessionState(sessionID, userID, taskType)
	}
	if len(metadata) > 0 {
		st.Apply(core.StateUpdate{Metadata: metadata})
	}

	rec, err := m.record(st)
	if err != nil {
		return nil, err
	}
	if err := m.store.CreateSession(ctx, rec); err != nil {
		return nil, fmt.Errorf("create session %s: %w", sessionID, err)
	}

	m.mu.Lock()
	m.cache[sessionID] = &entry{state: st, lastAccess: time.Now()}
	m.mu.Unlock()

	m.logger.Info("session created", "session_id", sessionID, "user_id", userID, "task_type", taskType)

	return st.Clone(), nil
}

// GetState returns a snapshot of the session state. A cache hit refreshes
// the last-access timestamp; a miss loads from the persistent store and
// seeds the cache. Returns (nil, nil) if the session has never existed.
func (m *Manager) GetState(ctx context.Context, sessionID string) (*core.SessionState, error) {
	m.mu.Lock()
	if e, ok := m.cache[sessionID]; ok {
		e.lastAccess = time.Now()
		snap := e.state.Clone()
		m.mu.Unlock()
		return snap, nil
	}
	m.mu.Unlock()

	e, err := m.loadAndSeed(ctx, sessionID)
	if err != nil || e == nil {
		return nil, err
	}
	return e.state.Clone(), nil
}

// UpdateState merges a typed partial update into the cached state,
// refreshes last-access and increments the per-session update counter.
// The state is checkpointed when the counter reaches the configured
// interval, when force is set, or when the update enters a final state.
// A checkpoint failure is logged but not returned: in-memory state stays
// authoritative and a later checkpoint (next interval or eviction sweep)
// catches up.
func (m *Manager) UpdateState(ctx context.Context, sessionID string, upd core.StateUpdate, force bool) error {
	e, err := m.getEntry(ctx, sessionID)
	if err != nil {
		return err
	}

	m.mu.Lock()
	// The sweep may have checkpointed and evicted the entry between
	// getEntry and this lock. Adopt a re-seeded entry if one appeared,
	// or re-insert ours, so the update stays reachable from the cache.
	if cur, ok := m.cache[sessionID]; ok {
		e = cur
	} else {
		m.cache[sessionID] = e
	}
	e.state.Apply(upd)
	e.lastAccess = time.Now()
	e.updates++
	checkpoint := force || upd.EntersFinalState() || e.updates >= m.checkpointInterval
	var snap *core.SessionState
	coalesced := e.updates
	if checkpoint {
		snap = e.state.Clone()
		e.updates = 0
	}
	m.mu.Unlock()

	if !checkpoint {
		return nil
	}

	if err := m.checkpoint(ctx, snap); err != nil {
		m.logCheckpoint(sessionID, coalesced, err)
		// Re-arm the counter so the next update retries immediately.
		m.mu.Lock()
		if e, ok := m.cache[sessionID]; ok {
			e.updates = m.checkpointInterval
		}
		m.mu.Unlock()
		return nil
	}
	m.logCheckpoint(sessionID, coalesced, nil)
	return nil
}

// AppendMessage writes a message to the durable, sequence-numbered log and
// mirrors it into the cached state's working window. A store failure is
// logged and does not block the live conversation; the in-memory copy
// proceeds and the session record itself is still checkpointed on cadence.
func (m *Manager) AppendMessage(ctx context.Context, sessionID, role, content, agent string) error {
	if _, err := m.store.AddMessage(ctx, sessionID, role, content, agent); err != nil {
		m.logger.Warn("message append not persisted", "session_id", sessionID, "error", err.Error())
	}
	return m.UpdateState(ctx, sessionID, core.StateUpdate{
		Messages: []core.Message{{Role: role, Content: content, Agent: agent, Timestamp: time.Now().UTC()}},
	}, false)
}

// EndSession performs a final forced checkpoint with the given terminal
// status and evicts the session from the cache. Calling it twice is safe:
// the second call reloads the already-terminal record, the status change
// no-ops and the checkpoint rewrites the same terminal state.
func (m *Manager) EndSession(ctx context.Context, sessionID string, status core.Status) error {
	e, err := m.getEntry(ctx, sessionID)
	if err != nil {
		return err
	}

	m.mu.Lock()
	e.state.Apply(core.StateUpdate{Status: core.StatusPtr(status)})
	snap := e.state.Clone()
	m.mu.Unlock()

	if err := m.checkpoint(ctx, snap); err != nil {
		// Keep the session cached so the sweep retries the checkpoint.
		return fmt.Errorf("final checkpoint for session %s: %w", sessionID, err)
	}

	m.mu.Lock()
	delete(m.cache, sessionID)
	m.mu.Unlock()

	m.logger.Info("session ended", "session_id", sessionID, "status", string(status))
	return nil
}

// CachedSessions returns the ids currently held in memory.
func (m *Manager) CachedSessions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.cache))
	for id := range m.cache {
		ids = append(ids, id)
	}
	return ids
}

// Shutdown cancels the background eviction task and checkpoints every
// still-cached session before returning, so no unpersisted mutation is
// lost on orderly shutdown.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.stopOnce.Do(func() { close(m.stop) })
	<-m.done

	m.mu.Lock()
	snaps := make([]*core.SessionState, 0, len(m.cache))
	for _, e := range m.cache {
		snaps = append(snaps, e.state.Clone())
	}
	m.cache = make(map[string]*entry)
	m.mu.Unlock()

	var errs []error
	for _, snap := range snaps {
		if err := m.checkpoint(ctx, snap); err != nil {
			errs = append(errs, fmt.Errorf("session %s: %w", snap.SessionID, err))
		}
	}
	return errors.Join(errs...)
}

// getEntry returns the cached entry, loading from the store on a miss.
// Errors if the session has never existed.
func (m *Manager) getEntry(ctx context.Context, sessionID string) (*entry, error) {
	m.mu.Lock()
	if e, ok := m.cache[sessionID]; ok {
		m.mu.Unlock()
		return e, nil
	}
	m.mu.Unlock()

	e, err := m.loadAndSeed(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, fmt.Errorf("session %s not found", sessionID)
	}
	return e, nil
}

// loadAndSeed fetches the record from the store (outside the cache lock)
// and seeds the cache, resolving the race where two callers miss
// simultaneously in favor of the first seeder.
func (m *Manager) loadAndSeed(ctx context.Context, sessionID string) (*entry, error) {
	rec, err := m.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", sessionID, err)
	}
	if rec == nil {
		return nil, nil
	}

	st := &core.SessionState{}
	if len(rec.State) > 0 {
		if err := json.Unmarshal(rec.State, st); err != nil {
			return nil, fmt.Errorf("decode session %s state: %w", sessionID, err)
		}
	}
	normalize(st, rec)

	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.cache[sessionID]; ok {
		existing.lastAccess = time.Now()
		return existing, nil
	}
	e := &entry{state: st, lastAccess: time.Now()}
	m.cache[sessionID] = e
	return e, nil
}

// normalize backfills zero-value fields after JSON decoding so the state
// honors its construction invariants.
func normalize(st *core.SessionState, rec *core.SessionRecord) {
	if st.SessionID == "" {
		st.SessionID = rec.SessionID
	}
	if st.UserID == "" {
		st.UserID = rec.UserID
	}
	if st.Status == "" {
		st.Status = rec.Status
	}
	if st.Messages == nil {
		st.Messages = []core.Message{}
	}
	if st.AgentsCalled == nil {
		st.AgentsCalled = []string{}
	}
	if st.Scratchpads == nil {
		st.Scratchpads = map[string]map[string]any{}
	}
	if st.ToolResults == nil {
		st.ToolResults = map[string]core.ToolResult{}
	}
	if st.Errors == nil {
		st.Errors = []string{}
	}
	if st.Metadata == nil {
		st.Metadata = map[string]any{}
	}
}

func (m *Manager) record(st *core.SessionState) (*core.SessionRecord, error) {
	snap := st.Clone()
	data, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("encode session %s state: %w", snap.SessionID, err)
	}
	return &core.SessionRecord{
		SessionID: snap.SessionID,
		UserID:    snap.UserID,
		TaskType:  snap.TaskType,
		Status:    snap.Status,
		State:     data,
		Metadata:  snap.Metadata,
		CreatedAt: snap.Created,
		UpdatedAt: time.Now().UTC(),
	}, nil
}

func (m *Manager) checkpoint(ctx context.Context, snap *core.SessionState) error {
	rec, err := m.record(snap)
	if err != nil {
		return err
	}
	return m.store.SaveSession(ctx, rec)
}

func (m *Manager) logCheckpoint(sessionID string, coalesced int, err error) {
	if ml, ok := m.logger.(*logging.MeshLogger); ok {
		ml.LogCheckpoint(sessionID, coalesced, err)
		return
	}
	if err != nil {
		m.logger.Warn("checkpoint failed", "session_id", sessionID, "error", err.Error())
		return
	}
	m.logger.Debug("checkpoint written", "session_id", sessionID, "coalesced_updates", coalesced)
}

// sweepLoop periodically checkpoints and evicts idle sessions until
// Shutdown cancels it.
func (m *Manager) sweepLoop() {
	defer close(m.done)
	ticker := time.NewTicker(m.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.evictIdle(context.Background())
		}
	}
}

// evictIdle checkpoints sessions idle beyond the timeout and removes them
// from the cache. A failed checkpoint keeps the session cached so the
// next sweep retries it.
func (m *Manager) evictIdle(ctx context.Context) {
	now := time.Now()

	m.mu.Lock()
	type candidate struct {
		id         string
		snap       *core.SessionState
		lastAccess time.Time
	}
	var idle []candidate
	for id, e := range m.cache {
		if now.Sub(e.lastAccess) >= m.idleTimeout {
			idle = append(idle, candidate{id: id, snap: e.state.Clone(), lastAccess: e.lastAccess})
		}
	}
	m.mu.Unlock()

	for _, c := range idle {
		if err := m.checkpoint(ctx, c.snap); err != nil {
			m.logCheckpoint(c.id, 0, err)
			continue
		}

		m.mu.Lock()
		// Skip eviction if the session was touched while we persisted.
		if e, ok := m.cache[c.id]; ok && e.lastAccess.Equal(c.lastAccess) {
			delete(m.cache, c.id)
			m.logger.Info("idle session evicted", "session_id", c.id)
		}
		m.mu.Unlock()
	}
}
