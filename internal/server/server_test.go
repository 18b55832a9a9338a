package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	pipeline "github.com/queryline/queryline/internal/pipeline"
	store "github.com/queryline/queryline/internal/store"
	transport "github.com/queryline/queryline/internal/transport"
)

type stubClient struct {
	responses map[string]*transport.Response
	calls     []map[string]any
}

func (s *stubClient) Send(ctx context.Context, query string, variables map[string]any, endpoint, credential string) (*transport.Response, error) {
	s.calls = append(s.calls, variables)
	if resp, ok := s.responses[query]; ok {
		return resp, nil
	}
	return nil, &transport.NetworkError{Endpoint: endpoint, Err: context.Canceled}
}

func newTestHandler(t *testing.T, opts ...Option) (*Handler, *stubClient) {
	t.Helper()
	client := &stubClient{responses: map[string]*transport.Response{
		"{orders{id}}": {Data: map[string]any{
			"orders": []any{map[string]any{"id": float64(1)}},
		}},
	}}
	st := store.Static{
		"Orders": {Query: "{orders{id}}"},
	}
	r := pipeline.NewResolver(st, nil, client)
	opts = append([]Option{WithDefaultEndpoint("https://api.example.com/graphql", "tok")}, opts...)
	return New(r, opts...), client
}

func doRequest(h http.Handler, method, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, "/resolve", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestServeHTTP_ResolvesQuery(t *testing.T) {
	h, _ := newTestHandler(t)

	rec := doRequest(h, http.MethodPost, `{"name":"Orders"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"orders":[{"id":1}]}`, rec.Body.String())
}

func TestServeHTTP_UnknownQueryIs404(t *testing.T) {
	h, _ := newTestHandler(t)

	rec := doRequest(h, http.MethodPost, `{"name":"Nope"}`)
	require.Equal(t, http.StatusNotFound, rec.Code)

	var body struct {
		Error struct {
			Kind    string `json:"kind"`
			Message string `json:"message"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "not_found", body.Error.Kind)
	require.Contains(t, body.Error.Message, "Nope")
}

func TestServeHTTP_TimeRangeVariables(t *testing.T) {
	h, client := newTestHandler(t)

	rec := doRequest(h, http.MethodPost,
		`{"name":"Orders","timeRange":{"from":"2024-01","to":"2024-02"}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, client.calls, 1)
	require.Equal(t, "2024-01-01", client.calls[0]["startDate"])
	require.Equal(t, "2024-02-29", client.calls[0]["endDate"])
}

func TestServeHTTP_BadRequests(t *testing.T) {
	h, _ := newTestHandler(t)

	cases := []struct {
		name   string
		method string
		body   string
		status int
	}{
		{"invalid JSON", http.MethodPost, `{`, http.StatusBadRequest},
		{"missing name", http.MethodPost, `{}`, http.StatusBadRequest},
		{"bad period", http.MethodPost, `{"name":"Orders","timeRange":{"from":"Jan 2024","to":"2024-02"}}`, http.StatusBadRequest},
		{"wrong method", http.MethodGet, ``, http.StatusMethodNotAllowed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := doRequest(h, tc.method, tc.body)
			require.Equal(t, tc.status, rec.Code)
		})
	}
}

func TestServeHTTP_BodyLimit(t *testing.T) {
	h, _ := newTestHandler(t, WithMaxBodyBytes(16))

	rec := doRequest(h, http.MethodPost, `{"name":"Orders","variables":{"k":"vvvvvvvvvv"}}`)
	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestServeHTTP_UpstreamFailureIs502(t *testing.T) {
	// No canned response for the query, so the stub fails with a
	// network error.
	client := &stubClient{responses: map[string]*transport.Response{}}
	st := store.Static{"Broken": {Query: "{x}"}}
	h := New(pipeline.NewResolver(st, nil, client),
		WithDefaultEndpoint("https://api.example.com/graphql", ""))

	rec := doRequest(h, http.MethodPost, `{"name":"Broken"}`)
	require.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestServeHTTP_CycleReports422WithChain(t *testing.T) {
	client := &stubClient{responses: map[string]*transport.Response{
		"{self}": {Data: map[string]any{"self": nil}},
	}}
	st := store.Static{
		"Loop": {
			Query: "{self}",
			Transform: `
				_, qerr := query("Loop")
				if qerr != nil {
					return nil, qerr
				}
				return data, nil`,
		},
	}
	h := New(pipeline.NewResolver(st, nil, client),
		WithDefaultEndpoint("https://api.example.com/graphql", ""))

	rec := doRequest(h, http.MethodPost, `{"name":"Loop"}`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	var body struct {
		Error struct {
			Kind  string   `json:"kind"`
			Chain []string `json:"chain"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "cycle", body.Error.Kind)
	require.Equal(t, []string{"Loop", "Loop"}, body.Error.Chain)
}

func TestServeHTTP_CORS(t *testing.T) {
	h, _ := newTestHandler(t, WithCORS("https://app.example.com"))

	req := httptest.NewRequest(http.MethodOptions, "/resolve", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Headers", "Content-Type")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	require.Equal(t, "Content-Type", rec.Header().Get("Access-Control-Allow-Headers"))
}
