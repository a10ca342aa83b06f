package model

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// MockModel is a lightweight in-memory Model for tests and examples. It
// serves scripted responses in FIFO order, falls back to canned replies
// matched against the last user message, and finally echoes the input.
type MockModel struct {
	mu      sync.Mutex
	info    Info
	queue   []Response
	replies map[string]string
}

// NewMockModel constructs a MockModel with tool support enabled.
func NewMockModel(name string) *MockModel {
	return &MockModel{
		info:    Info{Name: name, Provider: "mock", SupportsTools: true},
		replies: make(map[string]string),
	}
}

// Enqueue schedules the next scripted response. Queued responses are
// consumed before canned replies are considered.
func (m *MockModel) Enqueue(resp Response) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, resp)
}

// EnqueueText is shorthand for Enqueue(TextReply{Content: text}).
func (m *MockModel) EnqueueText(text string) { m.Enqueue(TextReply{Content: text}) }

// AddReply registers a canned completion keyed by a substring of the last
// user message.
func (m *MockModel) AddReply(match, response string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replies[match] = response
}

// Call implements Model.
func (m *MockModel) Call(ctx context.Context, req Request) (Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.queue) > 0 {
		resp := m.queue[0]
		m.queue = m.queue[1:]
		return resp, nil
	}

	var last string
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == "user" {
			last = req.Messages[i].Content
			break
		}
	}
	for match, reply := range m.replies {
		if strings.Contains(last, match) {
			return TextReply{Content: reply}, nil
		}
	}
	return TextReply{Content: fmt.Sprintf("Mock response to: %s", last)}, nil
}

// Info implements Model.
func (m *MockModel) Info() Info { return m.info }
