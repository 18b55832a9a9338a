package pipeline

import (
	"context"
	"fmt"
	"sync"

	store "github.com/queryline/queryline/internal/store"
	transport "github.com/queryline/queryline/internal/transport"
)

// brokenStore fails every load, like a corrupt definition file.
type brokenStore struct{}

func (brokenStore) Load(ctx context.Context, name string) (*store.Definition, error) {
	return nil, fmt.Errorf("parse definition %q: yaml: mapping values are not allowed", name)
}

// mockClient serves canned responses keyed by query text and records
// every request it receives.
type mockClient struct {
	mu        sync.Mutex
	calls     []mockCall
	responses map[string]*transport.Response
	errs      map[string]error
}

type mockCall struct {
	Query      string
	Variables  map[string]any
	Endpoint   string
	Credential string
}

func newMockClient() *mockClient {
	return &mockClient{
		responses: map[string]*transport.Response{},
		errs:      map[string]error{},
	}
}

func (m *mockClient) respond(query string, data map[string]any) {
	m.responses[query] = &transport.Response{Data: data}
}

func (m *mockClient) fail(query string, err error) {
	m.errs[query] = err
}

func (m *mockClient) Send(ctx context.Context, query string, variables map[string]any, endpoint, credential string) (*transport.Response, error) {
	m.mu.Lock()
	m.calls = append(m.calls, mockCall{Query: query, Variables: variables, Endpoint: endpoint, Credential: credential})
	m.mu.Unlock()

	if err := m.errs[query]; err != nil {
		return nil, err
	}
	if resp, ok := m.responses[query]; ok {
		return resp, nil
	}
	return nil, fmt.Errorf("mock: no response for query %q", query)
}

func (m *mockClient) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func (m *mockClient) lastCall() mockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[len(m.calls)-1]
}
