// Pensiond answers retirement account questions over HTTP.
//
// This binary starts the pensiond server with full service initialization:
// classification cascade, reference set, tool registry, agentic loop,
// response validation, and outcome routing.
//
// Usage:
//
//	# Start server with defaults
//	pensiond
//
//	# Point at an explicit config file
//	pensiond -config /etc/pensiond/config.yaml
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/pensiond/internal/agent"
	"github.com/fyrsmithlabs/pensiond/internal/audit"
	"github.com/fyrsmithlabs/pensiond/internal/classifier"
	"github.com/fyrsmithlabs/pensiond/internal/config"
	"github.com/fyrsmithlabs/pensiond/internal/embeddings"
	httpserver "github.com/fyrsmithlabs/pensiond/internal/http"
	"github.com/fyrsmithlabs/pensiond/internal/llm"
	"github.com/fyrsmithlabs/pensiond/internal/logging"
	"github.com/fyrsmithlabs/pensiond/internal/orchestrator"
	"github.com/fyrsmithlabs/pensiond/internal/profile"
	"github.com/fyrsmithlabs/pensiond/internal/refset"
	"github.com/fyrsmithlabs/pensiond/internal/router"
	"github.com/fyrsmithlabs/pensiond/internal/telemetry"
	"github.com/fyrsmithlabs/pensiond/internal/tools"
	"github.com/fyrsmithlabs/pensiond/internal/validator"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()
	args := flag.Args()

	if len(args) > 0 {
		switch args[0] {
		case "version":
			printVersion()
			os.Exit(0)
		default:
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
			fmt.Fprintf(os.Stderr, "\nUsage:\n")
			fmt.Fprintf(os.Stderr, "  pensiond           Start the pensiond server\n")
			fmt.Fprintf(os.Stderr, "  pensiond version   Show version information\n")
			os.Exit(1)
		}
	}

	// Setup signal handling for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Printf("Received signal %v, shutting down gracefully...", sig)
		cancel()
	}()

	if err := run(ctx, *configPath); err != nil {
		log.Fatalf("Server error: %v", err)
	}

	log.Println("Server shutdown complete")
}

func printVersion() {
	fmt.Printf("pensiond by Fyrsmith Labs\n")
	fmt.Printf("Version:    %s\n", version)
	fmt.Printf("Commit:     %s\n", gitCommit)
	fmt.Printf("Build Date: %s\n", buildDate)
}

// run starts the pensiond server and blocks until the context is cancelled.
//
// Initialization order:
//  1. Load and validate configuration
//  2. Initialize telemetry and logger
//  3. Connect infrastructure (embeddings, reference set, profiles, audit)
//  4. Assemble the query pipeline
//  5. Start the HTTP server
//  6. Graceful shutdown on context cancellation
func run(ctx context.Context, configPath string) error {
	cfg, err := config.LoadWithFile(configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	tel, err := telemetry.New(ctx, telemetryConfigFromEnv())
	if err != nil {
		return fmt.Errorf("initializing telemetry: %w", err)
	}
	defer func() {
		_ = tel.Shutdown(context.Background())
	}()

	logger, err := logging.NewLogger(logging.NewDefaultConfig(), tel.LoggerProvider())
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	logger.Info(ctx, "starting pensiond",
		zap.String("version", version),
		zap.Int("port", cfg.Server.Port),
		zap.String("llm_provider", cfg.LLM.Provider),
		zap.String("embedding_provider", cfg.Embedding.Provider))

	// Completion client shared by the classifier, the agent, and the judge.
	client, err := llm.NewClient(cfg.LLM)
	if err != nil {
		return fmt.Errorf("creating llm client: %w", err)
	}

	embedder, err := embeddings.NewProvider(cfg.Embedding, logger.Underlying())
	if err != nil {
		return fmt.Errorf("creating embedding provider: %w", err)
	}
	defer func() {
		_ = embedder.Close()
	}()

	store, err := refset.New(cfg.RefSet, embedder, logger.Underlying())
	if err != nil {
		return fmt.Errorf("opening reference set: %w", err)
	}
	if err := store.Seed(ctx, refset.DefaultExamples()); err != nil {
		return fmt.Errorf("seeding reference set: %w", err)
	}
	logger.Info(ctx, "reference set ready", zap.Int("examples", store.Count()))

	cascade, err := buildCascade(cfg, store, client, logger)
	if err != nil {
		return err
	}

	registry, err := tools.NewBuiltinRegistry()
	if err != nil {
		return fmt.Errorf("building tool registry: %w", err)
	}

	engine, err := agent.NewEngine(registry, client, logger, cfg.Agent.MaxIterations)
	if err != nil {
		return fmt.Errorf("creating agent engine: %w", err)
	}

	v, err := validator.New(client, logger, cfg.Router.ApproveThreshold, cfg.Router.FlagThreshold)
	if err != nil {
		return fmt.Errorf("creating validator: %w", err)
	}

	r, err := router.New(cfg.Router.ApproveThreshold, cfg.Router.FlagThreshold, cfg.Router.MaxRetries)
	if err != nil {
		return fmt.Errorf("creating router: %w", err)
	}

	sink, err := buildAuditSink(cfg)
	if err != nil {
		return fmt.Errorf("connecting audit sink: %w", err)
	}
	defer func() {
		_ = sink.Close()
	}()

	pipeline, err := orchestrator.NewPipeline(
		profile.NewStore(cfg.Profile),
		cascade,
		engine,
		v,
		r,
		sink,
		logger,
		cfg.Validator.FallbackMessage,
	)
	if err != nil {
		return fmt.Errorf("assembling pipeline: %w", err)
	}

	srv, err := httpserver.NewServer(pipeline, logger.Underlying(), &httpserver.Config{
		Host: cfg.Server.Host,
		Port: cfg.Server.Port,
	})
	if err != nil {
		return fmt.Errorf("creating http server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration())
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// buildCascade wires the three classification tiers.
func buildCascade(cfg *config.Config, store *refset.Store, client llm.Client, logger *logging.Logger) (*classifier.Cascade, error) {
	pattern, err := classifier.NewPatternMatcher(nil)
	if err != nil {
		return nil, fmt.Errorf("building pattern matcher: %w", err)
	}

	semantic, err := classifier.NewSemanticMatcher(store, cfg.Cascade.SemanticThreshold, cfg.Embedding.CostPerMTokens)
	if err != nil {
		return nil, fmt.Errorf("building semantic matcher: %w", err)
	}

	llmc, err := classifier.NewLLMClassifier(client)
	if err != nil {
		return nil, fmt.Errorf("building llm classifier: %w", err)
	}

	return classifier.NewCascade(pattern, semantic, llmc, logger), nil
}

// buildAuditSink connects the NATS audit sink when auditing is enabled.
func buildAuditSink(cfg *config.Config) (audit.Sink, error) {
	if !cfg.Audit.Enabled {
		return audit.NopSink{}, nil
	}
	return audit.NewNATSSink(cfg.Audit.NATSURL, cfg.Audit.Subject)
}

// telemetryConfigFromEnv builds telemetry config from environment
// variables. Telemetry stays off unless OTEL_ENABLE=true.
func telemetryConfigFromEnv() *telemetry.Config {
	cfg := telemetry.NewDefaultConfig()

	if enabled, err := strconv.ParseBool(os.Getenv("OTEL_ENABLE")); err == nil {
		cfg.Enabled = enabled
	}
	if endpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); endpoint != "" {
		cfg.Endpoint = endpoint
	}
	if protocol := os.Getenv("OTEL_EXPORTER_OTLP_PROTOCOL"); protocol != "" {
		cfg.Protocol = protocol
	}
	cfg.ServiceVersion = version

	return cfg
}
