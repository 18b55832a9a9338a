package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSend_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.Equal(t, "Bearer tok", r.Header.Get("Authorization"))

		var req struct {
			Query     string         `json:"query"`
			Variables map[string]any `json:"variables"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "{orders{id total}}", req.Query)
		require.Equal(t, float64(5), req.Variables["limit"])

		_, _ = w.Write([]byte(`{"data":{"orders":[{"id":1,"total":9.5}]}}`))
	}))
	defer srv.Close()

	c := New()
	resp, err := c.Send(context.Background(), "{orders{id total}}", map[string]any{"limit": 5}, srv.URL, "tok")
	require.NoError(t, err)
	require.Empty(t, resp.Errors)
	require.Len(t, resp.Data["orders"], 1)
	require.NoError(t, resp.InBand(srv.URL))
}

func TestSend_NetworkError(t *testing.T) {
	c := New()
	_, err := c.Send(context.Background(), "{a}", nil, "http://127.0.0.1:1/graphql", "")
	var ne *NetworkError
	require.ErrorAs(t, err, &ne)
}

func TestSend_HTTPErrorMessageExtraction(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{"graphql errors array", `{"errors":[{"message":"boom"},{"message":"again"}]}`, "boom; again"},
		{"single message field", `{"message":"service down"}`, "service down"},
		{"raw text truncated", strings.Repeat("x", 400), strings.Repeat("x", 200)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadGateway)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			_, err := New().Send(context.Background(), "{a}", nil, srv.URL, "")
			var he *HTTPError
			require.ErrorAs(t, err, &he)
			require.Equal(t, http.StatusBadGateway, he.Status)
			require.Equal(t, tc.want, he.Message)
		})
	}
}

func TestSend_DecodeError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>not json</html>"))
	}))
	defer srv.Close()

	_, err := New().Send(context.Background(), "{a}", nil, srv.URL, "")
	var de *DecodeError
	require.ErrorAs(t, err, &de)
	require.Contains(t, de.Preview, "<html>")
}

func TestSend_InBandErrorsSurfaceOnResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":null,"errors":[{"message":"field missing"}]}`))
	}))
	defer srv.Close()

	resp, err := New().Send(context.Background(), "{a}", nil, srv.URL, "")
	require.NoError(t, err)

	ibe := resp.InBand(srv.URL)
	var in *InBandError
	require.True(t, errors.As(ibe, &in))
	require.Equal(t, "field missing", in.Errors[0].Message)
}

func TestSend_ContextCancellation(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer srv.Close()
	defer close(block)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New().Send(ctx, "{a}", nil, srv.URL, "")
	var ne *NetworkError
	require.ErrorAs(t, err, &ne)
	require.ErrorIs(t, err, context.Canceled)
}
