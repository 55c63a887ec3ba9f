package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// MockClient implements Client for tests and offline runs. Responses are
// keyed by schema name; a schema with no canned response fails the call.
type MockClient struct {
	mu        sync.Mutex
	responses map[string][]json.RawMessage
	calls     []SchemaRequest
	usage     Usage
}

// NewMockClient returns an empty mock.
func NewMockClient() *MockClient {
	return &MockClient{responses: make(map[string][]json.RawMessage)}
}

// Queue appends a canned response for the named schema. Responses are
// consumed in FIFO order; the last one is sticky.
func (m *MockClient) Queue(schemaName string, response string) *MockClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[schemaName] = append(m.responses[schemaName], json.RawMessage(response))
	return m
}

// Calls returns every request seen so far.
func (m *MockClient) Calls() []SchemaRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SchemaRequest(nil), m.calls...)
}

// JSONSchema returns the next canned response for the request's schema.
func (m *MockClient) JSONSchema(_ context.Context, req SchemaRequest) (json.RawMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, req)

	queue := m.responses[req.SchemaName]
	if len(queue) == 0 {
		return nil, fmt.Errorf("mock llm: no response queued for schema %q", req.SchemaName)
	}
	response := queue[0]
	if len(queue) > 1 {
		m.responses[req.SchemaName] = queue[1:]
	}
	m.usage.PromptTokens += 10
	m.usage.CompletionTokens += 5
	m.usage.TotalTokens += 15
	return response, nil
}

// Usage reports synthetic token counts so cost plumbing can be exercised.
func (m *MockClient) Usage() Usage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.usage
}
