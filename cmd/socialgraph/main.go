package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hanpama/socialgraph/internal/entity"
	"github.com/hanpama/socialgraph/internal/eventbus"
	"github.com/hanpama/socialgraph/internal/executor"
	"github.com/hanpama/socialgraph/internal/integrity"
	"github.com/hanpama/socialgraph/internal/introspection"
	"github.com/hanpama/socialgraph/internal/metrics"
	"github.com/hanpama/socialgraph/internal/otel"
	"github.com/hanpama/socialgraph/internal/resolver"
	"github.com/hanpama/socialgraph/internal/rest"
	"github.com/hanpama/socialgraph/internal/schema"
	"github.com/hanpama/socialgraph/internal/seed"
	"github.com/hanpama/socialgraph/internal/server"
)

const rootUsage = `socialgraph: in-memory social graph over GraphQL and REST

USAGE:
  socialgraph <command> [flags]

COMMANDS:
  serve            Run the HTTP server (/graphql, REST routes, /metrics)
  print-schema     Print the GraphQL schema as SDL
  help             Show help for any command
`

const serveUsage = `serve FLAGS:
  -graphql.introspection <bool> Answer __schema and __type queries (default: true)
  -server.addr <addr>          HTTP listen address (default: :8080)
  -server.pretty               Pretty-print JSON responses
  -server.timeout <duration>   Per-request timeout, e.g. 10s (default: 10s)
  -server.max-body <bytes>     Maximum request body size (default: 1048576)
  -server.cors <origin>        Allowed CORS origin for /graphql. Repeatable
  -seed <file.yaml>            Seed fixtures (default: built-in member types)
  -otel.endpoint <addr>        OTLP collector endpoint
  -otel.service <name>         OpenTelemetry service name (default: socialgraph)
  -log.level <level>           debug, info, warn or error (default: info)
`

const printSchemaUsage = `print-schema FLAGS:
  -out <file>   Write SDL to file (default: stdout)
`

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, "socialgraph:", err)
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		fmt.Fprint(stderr, rootUsage)
		return errors.New("missing command")
	}
	cmd, cmdArgs := args[0], args[1:]
	switch cmd {
	case "serve":
		return cmdServe(cmdArgs, stderr)
	case "print-schema":
		return cmdPrintSchema(cmdArgs, stdout, stderr)
	case "help", "-h", "-help", "--help":
		return cmdHelp(cmdArgs, stdout)
	default:
		fmt.Fprint(stderr, rootUsage)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func cmdHelp(args []string, stdout io.Writer) error {
	if len(args) == 0 {
		fmt.Fprint(stdout, rootUsage)
		return nil
	}
	switch args[0] {
	case "serve":
		fmt.Fprint(stdout, serveUsage)
	case "print-schema":
		fmt.Fprint(stdout, printSchemaUsage)
	default:
		return fmt.Errorf("unknown help topic %q", args[0])
	}
	return nil
}

type stringListFlag []string

func (s *stringListFlag) String() string { return "" }

func (s *stringListFlag) Set(v string) error {
	*s = append(*s, v)
	return nil
}

type serveConfig struct {
	introspection bool
	addr          string
	pretty        bool
	timeout       time.Duration
	maxBody       int64
	cors          stringListFlag
	seedPath      string
	otelEndpoint  string
	otelService   string
	logLevel      slog.Level
}

func parseServeFlags(args []string) (serveConfig, error) {
	cfg := serveConfig{
		introspection: true,
		addr:          ":8080",
		timeout:       10 * time.Second,
		maxBody:       1 << 20,
		otelService:   "socialgraph",
		logLevel:      slog.LevelInfo,
	}
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(new(bytes.Buffer))
	fs.BoolVar(&cfg.introspection, "graphql.introspection", cfg.introspection, "Enable GraphQL introspection")
	fs.StringVar(&cfg.addr, "server.addr", cfg.addr, "HTTP listen address")
	fs.BoolVar(&cfg.pretty, "server.pretty", cfg.pretty, "Pretty-print JSON responses")
	fs.DurationVar(&cfg.timeout, "server.timeout", cfg.timeout, "Per-request timeout")
	fs.Int64Var(&cfg.maxBody, "server.max-body", cfg.maxBody, "Maximum request body size")
	fs.Var(&cfg.cors, "server.cors", "Allowed CORS origin")
	fs.StringVar(&cfg.seedPath, "seed", cfg.seedPath, "Seed fixtures file")
	fs.StringVar(&cfg.otelEndpoint, "otel.endpoint", cfg.otelEndpoint, "OTLP collector endpoint")
	fs.StringVar(&cfg.otelService, "otel.service", cfg.otelService, "OpenTelemetry service name")
	fs.TextVar(&cfg.logLevel, "log.level", cfg.logLevel, "Log level")
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}
	if fs.NArg() > 0 {
		return cfg, fmt.Errorf("unexpected argument %q", fs.Arg(0))
	}
	if cfg.maxBody <= 0 {
		return cfg, errors.New("-server.max-body must be positive")
	}
	return cfg, nil
}

func cmdServe(args []string, stderr io.Writer) error {
	cfg, err := parseServeFlags(args)
	if err != nil {
		fmt.Fprint(stderr, serveUsage)
		return err
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: cfg.logLevel}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	h, cleanup, err := buildHandler(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = cleanup(context.Background()) }()

	srv := &http.Server{Addr: cfg.addr, Handler: h, ReadHeaderTimeout: 5 * time.Second}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	logger.Info("socialgraph listening", "addr", cfg.addr)

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// buildHandler wires the store, the manager and every HTTP surface. The
// returned cleanup flushes telemetry and detaches event subscribers.
func buildHandler(ctx context.Context, cfg serveConfig, logger *slog.Logger) (http.Handler, func(context.Context) error, error) {
	eventbus.Use(eventbus.New())
	shutdownOtel, err := otel.Setup(ctx, cfg.otelEndpoint, cfg.otelService)
	if err != nil {
		return nil, nil, fmt.Errorf("otel setup: %w", err)
	}
	reg := metrics.New()
	unsubscribeMetrics := reg.Subscribe()
	cleanup := func(ctx context.Context) error {
		unsubscribeMetrics()
		err := shutdownOtel(ctx)
		eventbus.Use(nil)
		return err
	}

	fixtures := seed.Default()
	if cfg.seedPath != "" {
		if fixtures, err = seed.Load(cfg.seedPath); err != nil {
			_ = cleanup(ctx)
			return nil, nil, err
		}
	}
	db := entity.NewDB()
	reg.ObserveRows(db)
	m := integrity.New(db, integrity.WithLogger(logger))
	sum, err := fixtures.Apply(ctx, m)
	if err != nil {
		_ = cleanup(ctx)
		return nil, nil, err
	}
	logger.Info("seeded", "memberTypes", sum.MemberTypes, "users", sum.Users,
		"subscriptions", sum.Subscriptions, "posts", sum.Posts, "profiles", sum.Profiles)

	sch, err := resolver.Schema()
	if err != nil {
		_ = cleanup(ctx)
		return nil, nil, fmt.Errorf("build schema: %w", err)
	}
	sopts := []server.Option{
		server.WithTimeout(cfg.timeout),
		server.WithMaxBodyBytes(cfg.maxBody),
		server.WithErrorPresenter(resolver.PresentError),
		server.WithLogger(logger),
	}
	if cfg.pretty {
		sopts = append(sopts, server.WithPretty())
	}
	if len(cfg.cors) > 0 {
		sopts = append(sopts, server.WithCORS(cfg.cors...))
	}
	var rt executor.Runtime = resolver.New(m, resolver.WithLogger(logger))
	if cfg.introspection {
		w := introspection.Wrap(rt, sch)
		rt, sch = w.Runtime, w.Schema
	}
	gql, err := server.New(rt, sch, sopts...)
	if err != nil {
		_ = cleanup(ctx)
		return nil, nil, fmt.Errorf("server init: %w", err)
	}

	ropts := []rest.Option{rest.WithLogger(logger), rest.WithMaxBodyBytes(cfg.maxBody)}
	if cfg.pretty {
		ropts = append(ropts, rest.WithPretty())
	}

	mux := http.NewServeMux()
	mux.Handle("/graphql", gql)
	mux.Handle("GET /metrics", reg.Handler())
	mux.Handle("/", rest.New(m, ropts...))
	return mux, cleanup, nil
}

func cmdPrintSchema(args []string, stdout, stderr io.Writer) error {
	outFile := ""
	fs := flag.NewFlagSet("print-schema", flag.ContinueOnError)
	fs.SetOutput(new(bytes.Buffer))
	fs.StringVar(&outFile, "out", outFile, "Write SDL to file")
	if err := fs.Parse(args); err != nil {
		fmt.Fprint(stderr, printSchemaUsage)
		return err
	}
	sch, err := resolver.Schema()
	if err != nil {
		return fmt.Errorf("build schema: %w", err)
	}
	sdl := schema.Render(sch)
	if outFile == "" {
		_, err := io.WriteString(stdout, sdl)
		return err
	}
	return os.WriteFile(outFile, []byte(sdl), 0o644)
}
