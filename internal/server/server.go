// Package server exposes the pipeline over HTTP: one POST /resolve
// request runs one top-level resolution with a fresh execution context.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	pipeline "github.com/queryline/queryline/internal/pipeline"
	reqid "github.com/queryline/queryline/internal/reqid"
	vars "github.com/queryline/queryline/internal/vars"
)

// Handler is an http.Handler serving named-query resolutions.
type Handler struct {
	resolver *pipeline.Resolver
	opt      Options
}

type Options struct {
	// Timeout sets a default timeout if the incoming request context has none.
	// 0 means no default timeout.
	Timeout time.Duration

	// Pretty enables indented JSON responses (useful for dev).
	Pretty bool

	// MaxBodyBytes limits the size of the request body. 0 means unlimited.
	MaxBodyBytes int64

	// MaxDepth caps the dependency chain of each resolution. 0 keeps the
	// pipeline default.
	MaxDepth int

	// DefaultEndpoint and DefaultCredential are used for definitions
	// without an endpoint selector.
	DefaultEndpoint   string
	DefaultCredential string

	// CORS configuration. If AllowedOrigins is empty, CORS is disabled.
	CORS CORSOptions
}

type Option func(*Options)

func WithTimeout(d time.Duration) Option { return func(o *Options) { o.Timeout = d } }
func WithPretty() Option                 { return func(o *Options) { o.Pretty = true } }
func WithMaxBodyBytes(n int64) Option    { return func(o *Options) { o.MaxBodyBytes = n } }
func WithMaxDepth(n int) Option          { return func(o *Options) { o.MaxDepth = n } }
func WithCORS(origins ...string) Option {
	return func(o *Options) { o.CORS.AllowedOrigins = origins }
}
func WithDefaultEndpoint(url, credential string) Option {
	return func(o *Options) {
		o.DefaultEndpoint = url
		o.DefaultCredential = credential
	}
}

// CORSOptions holds simple CORS settings.
type CORSOptions struct {
	AllowedOrigins []string
}

// New creates the HTTP handler over the given resolver.
func New(resolver *pipeline.Resolver, opts ...Option) *Handler {
	op := Options{Timeout: 30 * time.Second}
	for _, f := range opts {
		f(&op)
	}
	return &Handler{resolver: resolver, opt: op}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := ctx.Deadline(); !ok && h.opt.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.opt.Timeout)
		defer cancel()
	}

	if len(h.opt.CORS.AllowedOrigins) > 0 {
		setCORSHeaders(w, r, h.opt.CORS)
	}
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "unknown", "method not allowed", nil, h.opt.Pretty)
		return
	}

	req, perr := parseRequest(r, h.opt.MaxBodyBytes)
	if perr != nil {
		status := http.StatusBadRequest
		if perr.Error() == errBodyTooLargeMessage {
			status = http.StatusRequestEntityTooLarge
		}
		writeError(w, status, "unknown", perr.Error(), nil, h.opt.Pretty)
		return
	}

	ctx, _ = reqid.NewContext(ctx)

	var copts []pipeline.ContextOption
	if h.opt.MaxDepth > 0 {
		copts = append(copts, pipeline.WithMaxDepth(h.opt.MaxDepth))
	}
	ectx := pipeline.NewContext(copts...)

	set, err := h.resolver.Resolve(ctx, req.Name, ectx, pipeline.Options{
		DefaultEndpoint:   h.opt.DefaultEndpoint,
		DefaultCredential: h.opt.DefaultCredential,
		Variables:         req.Variables,
		TimeRange:         req.timeRange,
	})
	if err != nil {
		kind, status, chain := classify(err)
		writeError(w, status, kind, err.Error(), chain, h.opt.Pretty)
		return
	}
	writeJSON(w, http.StatusOK, set, h.opt.Pretty)
}

// ------------------ Request parsing ------------------

type resolveRequest struct {
	Name      string         `json:"name"`
	Variables map[string]any `json:"variables,omitempty"`
	TimeRange *timeRangeJSON `json:"timeRange,omitempty"`

	timeRange *vars.TimeRange
}

type timeRangeJSON struct {
	From string `json:"from"`
	To   string `json:"to"`
}

const errBodyTooLargeMessage = "body too large"

func parseRequest(r *http.Request, maxBody int64) (resolveRequest, error) {
	reader := io.Reader(r.Body)
	if maxBody > 0 {
		reader = io.LimitReader(r.Body, maxBody+1)
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return resolveRequest{}, errors.New("failed to read body")
	}
	defer r.Body.Close()
	if maxBody > 0 && int64(len(body)) > maxBody {
		return resolveRequest{}, errors.New(errBodyTooLargeMessage)
	}

	var req resolveRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return resolveRequest{}, errors.New("invalid JSON")
	}
	if req.Name == "" {
		return resolveRequest{}, errors.New("missing 'name'")
	}
	if req.TimeRange != nil {
		from, err := vars.ParsePeriod(req.TimeRange.From)
		if err != nil {
			return resolveRequest{}, err
		}
		to, err := vars.ParsePeriod(req.TimeRange.To)
		if err != nil {
			return resolveRequest{}, err
		}
		req.timeRange = &vars.TimeRange{From: from, To: to}
	}
	return req, nil
}

// ------------------ Response formatting ------------------

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Kind    string   `json:"kind"`
	Message string   `json:"message"`
	Chain   []string `json:"chain,omitempty"`
}

func classify(err error) (kind string, status int, chain []string) {
	var pe *pipeline.Error
	if errors.As(err, &pe) {
		chain = pe.Chain
	}
	k := pipeline.KindOf(err)
	switch k {
	case pipeline.KindNotFound:
		return k.String(), http.StatusNotFound, chain
	case pipeline.KindCycle, pipeline.KindDepthExceeded, pipeline.KindAlreadyInFlight,
		pipeline.KindEmptyBody, pipeline.KindNoEndpoint:
		return k.String(), http.StatusUnprocessableEntity, chain
	case pipeline.KindNetwork, pipeline.KindHTTP, pipeline.KindDecode, pipeline.KindInBand:
		return k.String(), http.StatusBadGateway, chain
	default:
		return k.String(), http.StatusInternalServerError, chain
	}
}

func writeError(w http.ResponseWriter, status int, kind, message string, chain []string, pretty bool) {
	writeJSON(w, status, errorBody{Error: errorDetail{Kind: kind, Message: message, Chain: chain}}, pretty)
}

func writeJSON(w http.ResponseWriter, status int, v any, pretty bool) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	if pretty {
		enc.SetIndent("", "  ")
	}
	_ = enc.Encode(v)
}

func setCORSHeaders(w http.ResponseWriter, r *http.Request, opts CORSOptions) {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return
	}
	allowed := false
	wildcard := false
	for _, o := range opts.AllowedOrigins {
		if o == "*" {
			wildcard = true
		}
		if o == "*" || o == origin {
			allowed = true
		}
	}
	if !allowed {
		return
	}
	if wildcard {
		w.Header().Set("Access-Control-Allow-Origin", "*")
	} else {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Add("Vary", "Origin")
	}
	if r.Method == http.MethodOptions {
		if hdr := r.Header.Get("Access-Control-Request-Headers"); hdr != "" {
			w.Header().Set("Access-Control-Allow-Headers", hdr)
		}
		w.Header().Set("Access-Control-Allow-Methods", "POST,OPTIONS")
	}
}
