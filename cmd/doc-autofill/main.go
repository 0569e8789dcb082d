package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/a3tai/doc-autofill/internal/api"
	"github.com/a3tai/doc-autofill/internal/artifact"
	"github.com/a3tai/doc-autofill/internal/browser"
	"github.com/a3tai/doc-autofill/internal/config"
	"github.com/a3tai/doc-autofill/internal/document"
	"github.com/a3tai/doc-autofill/internal/extraction"
	"github.com/a3tai/doc-autofill/internal/form"
	"github.com/a3tai/doc-autofill/internal/logger"
	"github.com/a3tai/doc-autofill/internal/matcher"
	"github.com/a3tai/doc-autofill/internal/mcp"
	"github.com/a3tai/doc-autofill/internal/pipeline"
)

var (
	version   = "dev"     // This will be set by build flags
	buildTime = "unknown" // This will be set by build flags
	gitCommit = "unknown" // This will be set by build flags
)

const shutdownTimeout = 15 * time.Second

// setupLogging configures logging based on the server mode
func setupLogging(cfg *config.Config) *slog.Logger {
	lc := &logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat}
	if cfg.IsStdioMode() {
		// stdout carries the MCP protocol
		lc.Output = os.Stderr
	}
	return logger.Init(lc)
}

// app holds the wired components shared by both modes.
type app struct {
	orchestrator *pipeline.Orchestrator
	sessions     *browser.Manager
	artifacts    artifact.Store
}

func buildApp(ctx context.Context, cfg *config.Config) (*app, error) {
	var parserOpts []document.PDFOption
	if cfg.EnableOCR {
		engine, err := document.NewTesseract()
		if err != nil {
			slog.Warn("OCR disabled", "error", err)
		} else {
			parserOpts = append(parserOpts, document.WithOCR(engine))
		}
	}
	parser := document.NewPDFParser(parserOpts...)

	classifier, err := extraction.NewClassifier()
	if err != nil {
		return nil, fmt.Errorf("failed to build classifier: %w", err)
	}
	extractor := extraction.NewExtractor(parser, classifier)

	prober := form.NewProber(form.NewRodSnapshotter(form.RodConfig{
		Bin:               cfg.Browser.Bin,
		Headless:          cfg.Browser.HeadlessProbe,
		UserAgent:         cfg.Browser.UserAgent,
		NavigationTimeout: cfg.Browser.NavigationTimeout,
		DOMReadyTimeout:   cfg.Browser.DOMReadyTimeout,
	}))

	m := matcher.New(matcher.Config{
		Threshold: cfg.MatchThreshold,
		Synonyms:  cfg.Synonyms,
	})

	store, err := artifact.Open(ctx, cfg.Artifacts)
	if err != nil {
		return nil, fmt.Errorf("failed to open artifact store: %w", err)
	}

	// The automation window is always visible so the user can review and
	// submit the form.
	sessions := browser.NewManager(browser.NewRodDriver(browser.RodConfig{
		Bin:               cfg.Browser.Bin,
		Headless:          false,
		ViewportWidth:     cfg.Browser.ViewportWidth,
		ViewportHeight:    cfg.Browser.ViewportHeight,
		UserAgent:         cfg.Browser.UserAgent,
		NavigationTimeout: cfg.Browser.NavigationTimeout,
		ActionTimeout:     cfg.Browser.DOMReadyTimeout,
	}), store)

	return &app{
		orchestrator: pipeline.New(extractor, prober, m, sessions),
		sessions:     sessions,
		artifacts:    store,
	}, nil
}

// shutdown closes any browser window still open.
func (a *app) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := a.orchestrator.Reset(ctx); err != nil {
		slog.Warn("reset on shutdown failed", "error", err)
	}
	if err := a.sessions.Shutdown(ctx); err != nil {
		slog.Warn("session shutdown failed", "error", err)
	}
}

// runServerMode serves the HTTP API until a signal arrives
func runServerMode(ctx context.Context, cancel context.CancelFunc, cfg *config.Config, a *app) error {
	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(signalCh)

	handler := api.NewHandler(a.orchestrator, a.artifacts, cfg.ServerName, cfg.Version, cfg.MaxFileSize)
	srv := api.NewServer(cfg.Address(), handler)

	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- srv.Serve(ctx)
	}()

	select {
	case sig := <-signalCh:
		slog.Info("received signal, initiating graceful shutdown", "signal", sig.String())
		cancel()
		if err := <-serverErrCh; err != nil {
			return fmt.Errorf("server shutdown with error: %w", err)
		}
	case err := <-serverErrCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	slog.Info("server stopped successfully")
	return nil
}

// runStdioMode serves MCP tools until the parent closes stdin
func runStdioMode(ctx context.Context, cfg *config.Config, a *app) error {
	server, err := mcp.NewServer(cfg, a.orchestrator)
	if err != nil {
		return fmt.Errorf("failed to create MCP server: %w", err)
	}
	return server.Run(ctx)
}

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "-version" || arg == "--version" || arg == "-v" {
			printVersion()
			return
		}
	}

	cfg, err := config.LoadFromFlags()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	setupLogging(cfg)

	// Set version if it was provided during build
	if version != "dev" {
		cfg.Version = version
	}

	slog.Debug("starting with configuration", "config", cfg.String())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := buildApp(ctx, cfg)
	if err != nil {
		slog.Error("failed to start", "error", err)
		os.Exit(1)
	}

	if cfg.IsServerMode() {
		err = runServerMode(ctx, cancel, cfg, a)
	} else {
		err = runStdioMode(ctx, cfg, a)
	}
	a.shutdown()

	if err != nil {
		slog.Error("exiting", "error", err)
		os.Exit(1)
	}
}

// printVersion prints version information
func printVersion() {
	fmt.Printf("Doc Autofill\n")
	fmt.Printf("Version: %s\n", version)
	fmt.Printf("Build Time: %s\n", buildTime)
	fmt.Printf("Git Commit: %s\n", gitCommit)
	fmt.Printf("Built with: %s\n", runtime.Version())
}
