// Package transport issues GraphQL requests over HTTP and classifies
// failures at the transport and HTTP level. In-band GraphQL errors
// (present even alongside a 200) are surfaced on the decoded Response
// for the caller to classify.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	eventbus "github.com/queryline/queryline/internal/eventbus"
	events "github.com/queryline/queryline/internal/events"
)

const errPreviewLimit = 200

// GraphQLError is one entry of a response-level errors array.
type GraphQLError struct {
	Message    string         `json:"message"`
	Path       []any          `json:"path,omitempty"`
	Extensions map[string]any `json:"extensions,omitempty"`
}

func (e GraphQLError) Error() string { return e.Message }

// Response is a decoded GraphQL response document.
type Response struct {
	Data   map[string]any `json:"data"`
	Errors []GraphQLError `json:"errors,omitempty"`
}

// InBand returns an *InBandError when the response carries an in-band
// errors array, else nil.
func (r *Response) InBand(endpoint string) error {
	if len(r.Errors) == 0 {
		return nil
	}
	return &InBandError{Endpoint: endpoint, Errors: r.Errors}
}

type request struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

// Client sends GraphQL documents to HTTP endpoints. Safe for concurrent
// use.
type Client struct {
	opts *Options
	hc   *http.Client
}

// New creates a Client.
func New(opts ...Option) *Client {
	o := defaultOptions()
	for _, f := range opts {
		f(o)
	}
	hc := o.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	return &Client{opts: o, hc: hc}
}

// Send issues exactly one GraphQL request and decodes the response.
// The credential, when non-empty, is sent as a bearer token. No retry
// is performed at this layer.
func (c *Client) Send(ctx context.Context, query string, variables map[string]any, endpoint, credential string) (*Response, error) {
	if _, ok := ctx.Deadline(); !ok && c.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.Timeout)
		defer cancel()
	}

	body, err := json.Marshal(request{Query: query, Variables: variables})
	if err != nil {
		return nil, &NetworkError{Endpoint: endpoint, Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, &NetworkError{Endpoint: endpoint, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.opts.UserAgent != "" {
		req.Header.Set("User-Agent", c.opts.UserAgent)
	}
	if credential != "" {
		req.Header.Set("Authorization", "Bearer "+credential)
	}

	start := time.Now()
	eventbus.Publish(ctx, events.HTTPStart{Endpoint: endpoint})
	resp, err := c.hc.Do(req)
	if err != nil {
		eventbus.Publish(ctx, events.HTTPFinish{Endpoint: endpoint, Err: err, Duration: time.Since(start)})
		return nil, &NetworkError{Endpoint: endpoint, Err: err}
	}
	defer resp.Body.Close()

	reader := io.Reader(resp.Body)
	if c.opts.MaxResponseBytes > 0 {
		reader = io.LimitReader(resp.Body, c.opts.MaxResponseBytes)
	}
	raw, err := io.ReadAll(reader)
	eventbus.Publish(ctx, events.HTTPFinish{Endpoint: endpoint, Status: resp.StatusCode, Err: err, Duration: time.Since(start)})
	if err != nil {
		return nil, &NetworkError{Endpoint: endpoint, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &HTTPError{
			Endpoint: endpoint,
			Status:   resp.StatusCode,
			Message:  extractErrorMessage(raw),
		}
	}

	var decoded Response
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, &DecodeError{Endpoint: endpoint, Preview: preview(raw), Err: err}
	}
	return &decoded, nil
}

// extractErrorMessage pulls a human-readable message out of an error
// body: a GraphQL errors array first, then a bare message field, then
// the raw text truncated.
func extractErrorMessage(raw []byte) string {
	var withErrors struct {
		Errors []GraphQLError `json:"errors"`
	}
	if err := json.Unmarshal(raw, &withErrors); err == nil && len(withErrors.Errors) > 0 {
		msgs := make([]string, 0, len(withErrors.Errors))
		for _, e := range withErrors.Errors {
			if e.Message != "" {
				msgs = append(msgs, e.Message)
			}
		}
		if len(msgs) > 0 {
			return strings.Join(msgs, "; ")
		}
	}
	var withMessage struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &withMessage); err == nil && withMessage.Message != "" {
		return withMessage.Message
	}
	return preview(raw)
}

func preview(raw []byte) string {
	s := strings.TrimSpace(string(raw))
	if len(s) > errPreviewLimit {
		return s[:errPreviewLimit]
	}
	return s
}
