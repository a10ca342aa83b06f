package core

import "time"

// SessionRecord is the durable projection of a SessionState held by the
// persistent store. State is the JSON-serialized SessionState snapshot
// taken at checkpoint time; the store does not interpret it.
type SessionRecord struct {
	SessionID string         `json:"session_id"`
	UserID    string         `json:"user_id"`
	TaskType  string         `json:"task_type,omitempty"`
	Status    Status         `json:"status"`
	State     []byte         `json:"state"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// MessageRecord is one durable, sequence-numbered message. Seq is strictly
// increasing per session with no gaps and is computed by the store from
// the last persisted row, so ordering survives process restarts under the
// single-writer assumption.
type MessageRecord struct {
	SessionID string    `json:"session_id"`
	Seq       int64     `json:"seq"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Agent     string    `json:"agent,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// MemoryEntry is one namespaced long-term key/value record with optional
// expiry. An expired entry is treated as absent and lazily deleted on read.
type MemoryEntry struct {
	Namespace string     `json:"namespace"`
	Key       string     `json:"key"`
	Value     []byte     `json:"value"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// Expired reports whether the entry's TTL has elapsed.
func (e MemoryEntry) Expired(now time.Time) bool {
	return e.ExpiresAt != nil && now.After(*e.ExpiresAt)
}
