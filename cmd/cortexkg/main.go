// Command cortexkg is the main entry point for the cortexkg knowledge graph
// server: it loads configuration, opens the embedded graph, and exposes the
// agent-facing tool surface over MCP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cortexkg/cortexkg/internal/config"
	"github.com/cortexkg/cortexkg/internal/health"
	"github.com/cortexkg/cortexkg/internal/hybrid"
	"github.com/cortexkg/cortexkg/internal/kgerr"
	"github.com/cortexkg/cortexkg/internal/mcpserver"
	"github.com/cortexkg/cortexkg/internal/observe"
	"github.com/cortexkg/cortexkg/pkg/kgraph"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────
	configPath := flag.String("config", "cortexkg.yaml", "path to the YAML configuration file")
	metricsAddr := flag.String("metrics-addr", ":9091", "listen address for /healthz, /readyz and /metrics")
	flag.Parse()

	// ── Load configuration ───────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "cortexkg: config file %q not found — pass -config with the path to a YAML configuration file\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "cortexkg: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("cortexkg starting",
		"config", *configPath,
		"graph_path", cfg.Storage.GraphPath,
		"mcp_listen_addr", cfg.MCP.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	shutdownTel, err := observe.InitProvider(context.Background(), observe.ProviderConfig{
		ServiceName:    "cortexkg",
		ServiceVersion: "1.0.0",
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer shutdownTel(context.Background())

	// ── Open the knowledge graph ─────────────────────────────────────────
	g, err := kgraph.Open(cfg, logger)
	if err != nil {
		slog.Error("failed to open knowledge graph", "err", err)
		return 1
	}
	defer func() {
		if err := g.Close(); err != nil {
			slog.Error("error closing knowledge graph", "err", err)
		}
	}()

	// ── MCP tool surface ──────────────────────────────────────────────────
	srv, err := mcpserver.New(g.Deps(), cfg.MCP)
	if err != nil {
		slog.Error("failed to initialise MCP server", "err", err)
		return 1
	}

	printStartupSummary(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Health / metrics HTTP server ─────────────────────────────────────
	healthHandler := health.New(
		health.Checker{Name: "graph_store", Check: func(ctx context.Context) error {
			// A lookup against a name that cannot exist should fail with
			// ErrEntityNotFound; any other error means the store itself
			// is unhealthy (e.g. a corrupted backing file).
			if _, err := g.GetEntity("\x00cortexkg-health-probe\x00"); err != nil && !errors.Is(err, kgerr.ErrEntityNotFound) {
				return err
			}
			return nil
		}},
		health.Checker{Name: "embedding_provider", Check: func(ctx context.Context) error {
			_, err := g.Search(ctx, "cortexkg-health-probe", hybrid.Options{Limit: 1})
			return err
		}},
	)
	mux := http.NewServeMux()
	healthHandler.Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())
	metricsSrv := &http.Server{Addr: *metricsAddr, Handler: mux}

	go func() {
		slog.Info("health/metrics server listening", "addr", *metricsAddr)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("health/metrics server error", "err", err)
		}
	}()

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("server ready — press Ctrl+C to shut down")
		serveErr <- srv.Serve(ctx)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("mcp server error", "err", err)
		}
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutdown signal received, stopping…")
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		slog.Error("health/metrics server shutdown error", "err", err)
	}
	slog.Info("goodbye")
	return 0
}

// ── Startup summary ───────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║        cortexkg — startup summary     ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printField("Graph path", cfg.Storage.GraphPath)
	printField("Backup dir", cfg.Storage.BackupDir)
	printField("Embeddings", cfg.Embeddings.Name)
	printField("MCP listen", mcpMode(cfg.MCP.ListenAddr))
	fmt.Printf("║  Upstream MCP servers : %-13d ║\n", len(cfg.MCP.Servers))
	fmt.Printf("║  Decay half-life (h)  : %-13.1f ║\n", cfg.Decay.HalfLifeHours)
	fmt.Println("╚═══════════════════════════════════════╝")
}

func mcpMode(addr string) string {
	if addr == "" {
		return "stdio"
	}
	return addr
}

func printField(label, value string) {
	if value == "" {
		value = "(not configured)"
	}
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", label, value)
}

// ── Logger ──────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
