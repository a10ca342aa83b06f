// Package store provides the persistent memory layer: durable session
// records, append-only message history with strictly increasing
// per-session sequence numbers, and namespaced long-term key/value memory
// with optional expiry. The SQLite implementation is the production
// backend; the in-memory implementation serves tests and demos.
//
// Implementations must be safe for concurrent use by independent callers;
// ordering within a session is the single writer's responsibility.
package store

import (
	"context"
	"time"

	"github.com/scholarmesh/scholarmesh/core"
)

// Store is the persistent store driver contract consumed by the session
// manager and the facade.
type Store interface {
	// CreateSession writes a new session record. It fails if the session
	// already exists.
	CreateSession(ctx context.Context, rec *core.SessionRecord) error

	// GetSession returns the record for the id, or (nil, nil) if the
	// session has never existed.
	GetSession(ctx context.Context, sessionID string) (*core.SessionRecord, error)

	// SaveSession upserts a checkpoint of the session record.
	SaveSession(ctx context.Context, rec *core.SessionRecord) error

	// AddMessage appends a message, computing the next sequence number
	// from the last persisted message for the session so numbering
	// survives process restarts without gaps or collisions.
	AddMessage(ctx context.Context, sessionID, role, content, agent string) (*core.MessageRecord, error)

	// Messages returns up to limit most recent messages for the session in
	// ascending sequence order; limit <= 0 returns all.
	Messages(ctx context.Context, sessionID string, limit int) ([]core.MessageRecord, error)

	// PutMemory stores a namespaced key/value entry; a zero ttl means no
	// expiry.
	PutMemory(ctx context.Context, namespace, key string, value []byte, ttl time.Duration) error

	// GetMemory returns the value for the key. An expired entry is treated
	// as absent and deleted on read.
	GetMemory(ctx context.Context, namespace, key string) ([]byte, bool, error)

	// DeleteMemory removes a key; deleting an absent key is not an error.
	DeleteMemory(ctx context.Context, namespace, key string) error

	// Ping verifies connectivity.
	Ping(ctx context.Context) error

	// Close releases resources.
	Close() error
}
