package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/queryline/queryline/internal/endpoints"
	"github.com/queryline/queryline/internal/eventbus"
	"github.com/queryline/queryline/internal/logging"
	"github.com/queryline/queryline/internal/otel"
	"github.com/queryline/queryline/internal/pipeline"
	"github.com/queryline/queryline/internal/reqid"
	"github.com/queryline/queryline/internal/server"
	"github.com/queryline/queryline/internal/store"
	"github.com/queryline/queryline/internal/transport"
	"github.com/queryline/queryline/internal/userlib"
	"github.com/queryline/queryline/internal/vars"
)

const rootUsage = `queryline — named GraphQL query resolution pipeline

USAGE:
  queryline <command> [flags]

COMMANDS:
  resolve          Resolve one named query and print the result as JSON
  serve            Run the HTTP resolution API
  help             Show help for any command
`

const resolveUsage = `resolve FLAGS:
  queryline resolve [flags] <name>

  -queries.dir <dir>           Directory with <name>.yaml query definitions (default: .)
  -endpoints.config <file>     YAML file mapping endpoint selectors to URLs
  -endpoint.url <url>          Default GraphQL endpoint for definitions without a selector
  -endpoint.credential <tok>   Bearer credential for the default endpoint
  -pipeline.max-depth <n>      Dependency chain ceiling (default: 10)
  -pipeline.library <file>     Helper library source exposed to transformers
  -transport.timeout <dur>     Outbound request timeout, e.g. 30s (default: 30s)
  -var <k=v>                   Override a declared variable. Repeatable
  -from <YYYY-MM>              Reporting period start (requires -to)
  -to <YYYY-MM>                Reporting period end (requires -from)
  -pretty                      Pretty-print the JSON result
  -log.level <level>           Log level: debug, info, warn, error (default: info)
  -otel.endpoint <addr>        OTLP collector endpoint
  -otel.service <name>         OpenTelemetry service name (default: queryline)
`

const serveUsage = `serve FLAGS:
  -queries.dir <dir>           Directory with <name>.yaml query definitions (default: .)
  -endpoints.config <file>     YAML file mapping endpoint selectors to URLs
  -endpoint.url <url>          Default GraphQL endpoint for definitions without a selector
  -endpoint.credential <tok>   Bearer credential for the default endpoint
  -pipeline.max-depth <n>      Dependency chain ceiling (default: 10)
  -pipeline.library <file>     Helper library source exposed to transformers
  -transport.timeout <dur>     Outbound request timeout, e.g. 30s (default: 30s)
  -server.addr <addr>          HTTP listen address (default: :8080)
  -server.pretty               Pretty-print JSON responses
  -server.timeout <dur>        Per-request timeout, e.g. 30s (default: 30s)
  -server.max-body <bytes>     Request body size limit (default: 1048576)
  -server.cors-origin <origin> Allowed CORS origin. Repeatable
  -log.level <level>           Log level: debug, info, warn, error (default: info)
  -otel.endpoint <addr>        OTLP collector endpoint
  -otel.service <name>         OpenTelemetry service name (default: queryline)
`

func main() {
	if err := run(os.Args[1:]); err != nil {
		log.Fatal(err)
	}
}

func run(args []string) error {
	global := flag.NewFlagSet("queryline", flag.ContinueOnError)
	global.SetOutput(new(bytes.Buffer)) // silence automatic output
	if err := global.Parse(args); err != nil {
		fmt.Fprint(os.Stderr, rootUsage)
		return err
	}
	remaining := global.Args()
	if len(remaining) == 0 {
		fmt.Fprint(os.Stderr, rootUsage)
		return fmt.Errorf("missing command")
	}

	cmd := remaining[0]
	cmdArgs := remaining[1:]
	switch cmd {
	case "resolve":
		return cmdResolve(cmdArgs)
	case "serve":
		return cmdServe(cmdArgs)
	case "help":
		return cmdHelp(cmdArgs)
	default:
		fmt.Fprint(os.Stderr, rootUsage)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func cmdHelp(args []string) error {
	if len(args) == 0 {
		fmt.Print(rootUsage)
		return nil
	}
	switch args[0] {
	case "resolve":
		fmt.Print(resolveUsage)
	case "serve":
		fmt.Print(serveUsage)
	default:
		return fmt.Errorf("unknown help topic %q", args[0])
	}
	return nil
}

// varFlag collects repeated -var k=v overrides.
type varFlag struct {
	m map[string]any
}

func (v *varFlag) String() string { return "" }

func (v *varFlag) Set(raw string) error {
	parts := strings.SplitN(raw, "=", 2)
	if len(parts) != 2 || strings.TrimSpace(parts[0]) == "" {
		return fmt.Errorf("invalid variable %q, want k=v", raw)
	}
	if v.m == nil {
		v.m = map[string]any{}
	}
	key := strings.TrimSpace(parts[0])
	// Keep JSON-typed values typed; everything else is a string.
	var parsed any
	if err := json.Unmarshal([]byte(parts[1]), &parsed); err == nil {
		v.m[key] = parsed
	} else {
		v.m[key] = parts[1]
	}
	return nil
}

type stringListFlag []string

func (s *stringListFlag) String() string { return "" }

func (s *stringListFlag) Set(v string) error {
	*s = append(*s, v)
	return nil
}

// sharedFlags holds the flags common to resolve and serve.
type sharedFlags struct {
	queriesDir        string
	endpointsConfig   string
	defaultEndpoint   string
	defaultCredential string
	maxDepth          int
	libraryPath       string
	transportTimeout  time.Duration
	logLevel          string
	otelEndpoint      string
	otelService       string
}

func (s *sharedFlags) register(fs *flag.FlagSet) {
	s.queriesDir = "."
	s.maxDepth = 10
	s.transportTimeout = 30 * time.Second
	s.logLevel = "info"
	s.otelService = "queryline"

	fs.StringVar(&s.queriesDir, "queries.dir", s.queriesDir, "Query definition directory")
	fs.StringVar(&s.endpointsConfig, "endpoints.config", s.endpointsConfig, "Endpoint selector config file")
	fs.StringVar(&s.defaultEndpoint, "endpoint.url", s.defaultEndpoint, "Default GraphQL endpoint")
	fs.StringVar(&s.defaultCredential, "endpoint.credential", s.defaultCredential, "Default endpoint credential")
	fs.IntVar(&s.maxDepth, "pipeline.max-depth", s.maxDepth, "Dependency chain ceiling")
	fs.StringVar(&s.libraryPath, "pipeline.library", s.libraryPath, "Helper library source file")
	fs.DurationVar(&s.transportTimeout, "transport.timeout", s.transportTimeout, "Outbound request timeout")
	fs.StringVar(&s.logLevel, "log.level", s.logLevel, "Log level")
	fs.StringVar(&s.otelEndpoint, "otel.endpoint", s.otelEndpoint, "OTLP collector endpoint")
	fs.StringVar(&s.otelService, "otel.service", s.otelService, "OpenTelemetry service name")
}

// setup wires the eventbus, logging, and tracing, and builds the
// resolver from the shared flags. The returned teardown flushes traces
// and detaches the logger.
func (s *sharedFlags) setup() (*pipeline.Resolver, func(), error) {
	eventbus.Use(eventbus.New())

	logger, err := newLogger(s.logLevel)
	if err != nil {
		return nil, nil, err
	}
	detach := logging.Attach(logger)

	shutdown, err := otel.Setup(s.otelEndpoint, s.otelService)
	if err != nil {
		return nil, nil, fmt.Errorf("otel setup: %w", err)
	}

	eps := endpoints.NewStatic(nil)
	if s.endpointsConfig != "" {
		eps, err = endpoints.Load(s.endpointsConfig)
		if err != nil {
			return nil, nil, fmt.Errorf("load endpoints: %w", err)
		}
	}

	client := transport.New(transport.WithTimeout(s.transportTimeout))

	var ropts []pipeline.ResolverOption
	if s.libraryPath != "" {
		ropts = append(ropts, pipeline.WithLibrary(userlib.File{Path: s.libraryPath}))
	}
	resolver := pipeline.NewResolver(store.NewFS(s.queriesDir), eps, client, ropts...)

	teardown := func() {
		_ = shutdown(context.Background())
		detach()
		_ = logger.Sync()
	}
	return resolver, teardown, nil
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q", level)
	}
	return cfg.Build()
}

func cmdResolve(args []string) error {
	var (
		shared sharedFlags
		vf     varFlag
		from   string
		to     string
		pretty bool
	)

	fs := flag.NewFlagSet("resolve", flag.ContinueOnError)
	fs.SetOutput(new(bytes.Buffer))
	shared.register(fs)
	fs.Var(&vf, "var", "Variable override")
	fs.StringVar(&from, "from", from, "Reporting period start")
	fs.StringVar(&to, "to", to, "Reporting period end")
	fs.BoolVar(&pretty, "pretty", pretty, "Pretty-print the JSON result")
	if err := fs.Parse(args); err != nil {
		fmt.Fprint(os.Stderr, resolveUsage)
		return err
	}
	if fs.NArg() != 1 {
		fmt.Fprint(os.Stderr, resolveUsage)
		return fmt.Errorf("expected exactly one query name")
	}
	name := fs.Arg(0)

	timeRange, err := parseTimeRange(from, to)
	if err != nil {
		return err
	}

	resolver, teardown, err := shared.setup()
	if err != nil {
		return err
	}
	defer teardown()

	ctx, _ := reqid.NewContext(context.Background())
	ectx := pipeline.NewContext(pipeline.WithMaxDepth(shared.maxDepth))
	set, err := resolver.Resolve(ctx, name, ectx, pipeline.Options{
		DefaultEndpoint:   shared.defaultEndpoint,
		DefaultCredential: shared.defaultCredential,
		Variables:         vf.m,
		TimeRange:         timeRange,
	})
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	if pretty {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(set)
}

func parseTimeRange(from, to string) (*vars.TimeRange, error) {
	if from == "" && to == "" {
		return nil, nil
	}
	if from == "" || to == "" {
		return nil, fmt.Errorf("-from and -to must be given together")
	}
	f, err := vars.ParsePeriod(from)
	if err != nil {
		return nil, err
	}
	t, err := vars.ParsePeriod(to)
	if err != nil {
		return nil, err
	}
	return &vars.TimeRange{From: f, To: t}, nil
}

func cmdServe(args []string) error {
	var (
		shared      sharedFlags
		addr        = ":8080"
		pretty      bool
		timeout     = 30 * time.Second
		maxBody     = int64(1 << 20)
		corsOrigins stringListFlag
	)

	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(new(bytes.Buffer))
	shared.register(fs)
	fs.StringVar(&addr, "server.addr", addr, "HTTP listen address")
	fs.BoolVar(&pretty, "server.pretty", pretty, "Pretty-print JSON responses")
	fs.DurationVar(&timeout, "server.timeout", timeout, "Per-request timeout")
	fs.Int64Var(&maxBody, "server.max-body", maxBody, "Request body size limit")
	fs.Var(&corsOrigins, "server.cors-origin", "Allowed CORS origin")
	if err := fs.Parse(args); err != nil {
		fmt.Fprint(os.Stderr, serveUsage)
		return err
	}

	resolver, teardown, err := shared.setup()
	if err != nil {
		return err
	}
	defer teardown()

	sopts := []server.Option{
		server.WithDefaultEndpoint(shared.defaultEndpoint, shared.defaultCredential),
		server.WithMaxDepth(shared.maxDepth),
		server.WithMaxBodyBytes(maxBody),
	}
	if pretty {
		sopts = append(sopts, server.WithPretty())
	}
	if timeout > 0 {
		sopts = append(sopts, server.WithTimeout(timeout))
	}
	if len(corsOrigins) > 0 {
		sopts = append(sopts, server.WithCORS(corsOrigins...))
	}
	h := server.New(resolver, sopts...)

	mux := http.NewServeMux()
	mux.Handle("/resolve", h)

	log.Printf("resolution API listening on %s", addr)
	return http.ListenAndServe(addr, mux)
}
