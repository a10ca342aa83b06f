package store

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scholarmesh/scholarmesh/core"
)

var _ Store = (*SQLiteStore)(nil)

func newTestSQLite(t *testing.T) (*SQLiteStore, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := NewSQLite(path)
	require.NoError(t, err)
	return s, path
}

func TestSQLiteStore_SessionRoundTrip(t *testing.T) {
	s, _ := newTestSQLite(t)
	defer s.Close()
	ctx := context.Background()

	require.NoError(t, s.Ping(ctx))

	rec := &core.SessionRecord{
		SessionID: "s1",
		UserID:    "u1",
		TaskType:  "research",
		Status:    core.StatusPending,
		State:     []byte(`{"session_id":"s1"}`),
		Metadata:  map[string]any{"channel": "cli"},
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	require.NoError(t, s.CreateSession(ctx, rec))
	assert.Error(t, s.CreateSession(ctx, rec))

	got, err := s.GetSession(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "u1", got.UserID)
	assert.Equal(t, core.StatusPending, got.Status)
	assert.Equal(t, "cli", got.Metadata["channel"])

	rec.Status = core.StatusCompleted
	require.NoError(t, s.SaveSession(ctx, rec))
	require.NoError(t, s.SaveSession(ctx, rec), "checkpoint must be idempotent")

	got, err = s.GetSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, core.StatusCompleted, got.Status)

	missing, err := s.GetSession(ctx, "never-existed")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestSQLiteStore_SequenceNumbersSurviveReopen(t *testing.T) {
	s, path := newTestSQLite(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := s.AddMessage(ctx, "s1", "user", "before restart", "")
		require.NoError(t, err)
	}
	require.NoError(t, s.Close())

	// Simulate a process restart: a fresh store on the same file must
	// continue the sequence without gaps or collisions.
	s2, err := NewSQLite(path)
	require.NoError(t, err)
	defer s2.Close()

	rec, err := s2.AddMessage(ctx, "s1", "assistant", "after restart", "research")
	require.NoError(t, err)
	assert.Equal(t, int64(4), rec.Seq)

	msgs, err := s2.Messages(ctx, "s1", 0)
	require.NoError(t, err)
	require.Len(t, msgs, 4)
	for i, m := range msgs {
		assert.Equal(t, int64(i+1), m.Seq)
	}
}

func TestSQLiteStore_MessagesLimitReturnsMostRecentAscending(t *testing.T) {
	s, _ := newTestSQLite(t)
	defer s.Close()
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		_, err := s.AddMessage(ctx, "s1", "user", "m", "")
		require.NoError(t, err)
	}

	window, err := s.Messages(ctx, "s1", 3)
	require.NoError(t, err)
	require.Len(t, window, 3)
	assert.Equal(t, int64(4), window[0].Seq)
	assert.Equal(t, int64(6), window[2].Seq)
}

func TestSQLiteStore_ConcurrentSessionWriters(t *testing.T) {
	s, _ := newTestSQLite(t)
	defer s.Close()
	ctx := context.Background()

	// Independent sessions writing in parallel must contend on the write
	// lock instead of failing with SQLITE_BUSY.
	const (
		writers  = 8
		perWrite = 25
	)
	var wg sync.WaitGroup
	errCh := make(chan error, writers*perWrite)

	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			sessionID := fmt.Sprintf("s%d", w)
			for i := 0; i < perWrite; i++ {
				if _, err := s.AddMessage(ctx, sessionID, "user", "m", ""); err != nil {
					errCh <- err
				}
				if err := s.SaveSession(ctx, &core.SessionRecord{
					SessionID: sessionID,
					UserID:    "u1",
					Status:    core.StatusInProgress,
					State:     []byte(`{}`),
					CreatedAt: time.Now().UTC(),
					UpdatedAt: time.Now().UTC(),
				}); err != nil {
					errCh <- err
				}
			}
		}(w)
	}
	wg.Wait()
	close(errCh)

	for err := range errCh {
		t.Errorf("concurrent write failed: %v", err)
	}

	// Per-session ordering is untouched by cross-session concurrency.
	for w := 0; w < writers; w++ {
		msgs, err := s.Messages(ctx, fmt.Sprintf("s%d", w), 0)
		require.NoError(t, err)
		require.Len(t, msgs, perWrite)
		for i, m := range msgs {
			assert.Equal(t, int64(i+1), m.Seq)
		}
	}
}

func TestSQLiteStore_MemoryTTL(t *testing.T) {
	s, _ := newTestSQLite(t)
	defer s.Close()
	ctx := context.Background()

	require.NoError(t, s.PutMemory(ctx, "user:u1", "target_schools", []byte(`["State University"]`), 0))
	val, ok, err := s.GetMemory(ctx, "user:u1", "target_schools")
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `["State University"]`, string(val))

	// Entry already past its expiry must be treated as absent and removed.
	require.NoError(t, s.PutMemory(ctx, "user:u1", "ephemeral", []byte("x"), -time.Second))
	_, ok, err = s.GetMemory(ctx, "user:u1", "ephemeral")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.DeleteMemory(ctx, "user:u1", "target_schools"))
	_, ok, _ = s.GetMemory(ctx, "user:u1", "target_schools")
	assert.False(t, ok)
}
