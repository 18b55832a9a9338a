package transport

import (
	"net/http"
	"time"
)

// Options configures the GraphQL HTTP client.
//
// Defaults:
// - Timeout:          30s (applied only if the context has no deadline)
// - MaxResponseBytes: 8 MiB
//
// HTTPClient may be replaced for tests or custom transports.
type Options struct {
	Timeout          time.Duration
	MaxResponseBytes int64
	HTTPClient       *http.Client
	UserAgent        string
}

// Option mutates Options. Use the WithX helpers below.
type Option func(*Options)

func defaultOptions() *Options {
	return &Options{
		Timeout:          30 * time.Second,
		MaxResponseBytes: 8 << 20,
		UserAgent:        "queryline",
	}
}

func WithTimeout(d time.Duration) Option        { return func(o *Options) { o.Timeout = d } }
func WithMaxResponseBytes(n int64) Option       { return func(o *Options) { o.MaxResponseBytes = n } }
func WithHTTPClient(c *http.Client) Option      { return func(o *Options) { o.HTTPClient = c } }
func WithUserAgent(ua string) Option            { return func(o *Options) { o.UserAgent = ua } }
