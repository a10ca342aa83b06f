package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/scholarmesh/scholarmesh/core"
)

// InMemoryStore is a volatile Store keeping everything in process-local
// maps. It is safe for concurrent access and best suited for tests or
// ephemeral demos. Records are copied on the way in and out to prevent
// external mutation of internal state.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*core.SessionRecord
	messages map[string][]core.MessageRecord
	memory   map[string]core.MemoryEntry // namespace + "\x00" + key
	closed   bool
}

// NewInMemoryStore constructs an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		sessions: make(map[string]*core.SessionRecord),
		messages: make(map[string][]core.MessageRecord),
		memory:   make(map[string]core.MemoryEntry),
	}
}

func memKey(namespace, key string) string { return namespace + "\x00" + key }

func copyRecord(rec *core.SessionRecord) *core.SessionRecord {
	cp := *rec
	cp.State = append([]byte(nil), rec.State...)
	cp.Metadata = make(map[string]any, len(rec.Metadata))
	for k, v := range rec.Metadata {
		cp.Metadata[k] = v
	}
	return &cp
}

// CreateSession implements Store.
func (s *InMemoryStore) CreateSession(_ context.Context, rec *core.SessionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.sessions[rec.SessionID]; exists {
		return fmt.Errorf("session %s already exists", rec.SessionID)
	}
	s.sessions[rec.SessionID] = copyRecord(rec)
	return nil
}

// GetSession implements Store.
func (s *InMemoryStore) GetSession(_ context.Context, sessionID string) (*core.SessionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.sessions[sessionID]
	if !ok {
		return nil, nil
	}
	return copyRecord(rec), nil
}

// SaveSession implements Store.
func (s *InMemoryStore) SaveSession(_ context.Context, rec *core.SessionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := copyRecord(rec)
	cp.UpdatedAt = time.Now().UTC()
	s.sessions[rec.SessionID] = cp
	return nil
}

// AddMessage implements Store. The next sequence number derives from the
// stored slice, not an independent counter.
func (s *InMemoryStore) AddMessage(_ context.Context, sessionID, role, content, agent string) (*core.MessageRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := s.messages[sessionID]
	var seq int64 = 1
	if len(msgs) > 0 {
		seq = msgs[len(msgs)-1].Seq + 1
	}
	rec := core.MessageRecord{
		SessionID: sessionID,
		Seq:       seq,
		Role:      role,
		Content:   content,
		Agent:     agent,
		CreatedAt: time.Now().UTC(),
	}
	s.messages[sessionID] = append(msgs, rec)
	return &rec, nil
}

// Messages implements Store.
func (s *InMemoryStore) Messages(_ context.Context, sessionID string, limit int) ([]core.MessageRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msgs := s.messages[sessionID]
	start := 0
	if limit > 0 && len(msgs) > limit {
		start = len(msgs) - limit
	}
	out := make([]core.MessageRecord, len(msgs)-start)
	copy(out, msgs[start:])
	return out, nil
}

// PutMemory implements Store.
func (s *InMemoryStore) PutMemory(_ context.Context, namespace, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry := core.MemoryEntry{
		Namespace: namespace,
		Key:       key,
		Value:     append([]byte(nil), value...),
		CreatedAt: time.Now().UTC(),
	}
	if ttl != 0 {
		exp := time.Now().UTC().Add(ttl)
		entry.ExpiresAt = &exp
	}
	s.memory[memKey(namespace, key)] = entry
	return nil
}

// GetMemory implements Store with lazy expiry.
func (s *InMemoryStore) GetMemory(_ context.Context, namespace, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.memory[memKey(namespace, key)]
	if !ok {
		return nil, false, nil
	}
	if entry.Expired(time.Now().UTC()) {
		delete(s.memory, memKey(namespace, key))
		return nil, false, nil
	}
	return append([]byte(nil), entry.Value...), true, nil
}

// DeleteMemory implements Store.
func (s *InMemoryStore) DeleteMemory(_ context.Context, namespace, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.memory, memKey(namespace, key))
	return nil
}

// Ping implements Store.
func (s *InMemoryStore) Ping(context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return fmt.Errorf("store closed")
	}
	return nil
}

// Close implements Store.
func (s *InMemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
