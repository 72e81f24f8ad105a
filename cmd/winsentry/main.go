package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"winsentry/internal/alert"
	"winsentry/internal/config"
	"winsentry/internal/event"
	"winsentry/internal/monitor"
	"winsentry/internal/registry"
	"winsentry/internal/script"
	"winsentry/internal/store"
	"winsentry/internal/version"
	"winsentry/pkg/plugin"
)

// stopTimeout bounds graceful shutdown of all modules.
const stopTimeout = 30 * time.Second

func main() {
	if len(os.Args) > 1 && os.Args[1] == "version" {
		fmt.Println(version.Info())
		return
	}

	configPath := flag.String("config", "", "path to configuration file")
	showVersion := flag.Bool("version", false, "print version information and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.Info())
		os.Exit(0)
	}

	// Load configuration before the logger so log level/format apply.
	viperCfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	cfg := config.New(viperCfg)

	logger, err := config.NewLogger(viperCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("WinSentry agent starting", zap.String("version", version.Short()))

	if f := viperCfg.ConfigFileUsed(); f != "" {
		logger.Info("configuration loaded", zap.String("source", f))
	} else {
		logger.Warn("no configuration file found, using defaults")
	}

	db, err := store.New(viperCfg.GetString("database.path"))
	if err != nil {
		logger.Fatal("failed to open database", zap.Error(err))
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := db.CheckVersion(ctx, version.Version); err != nil {
		logger.Fatal("database version check failed", zap.Error(err))
	}
	logger.Info("database initialized", zap.String("path", viperCfg.GetString("database.path")))

	bus := event.NewBus(logger.Named("event"))
	reg := registry.New(logger.Named("registry"))

	scriptMod := script.New()
	monitorMod := monitor.New()
	alertMod := alert.New()

	for _, m := range []plugin.Plugin{scriptMod, monitorMod, alertMod} {
		if err := reg.Register(m); err != nil {
			logger.Fatal("failed to register module", zap.Error(err))
		}
	}

	if err := reg.Validate(); err != nil {
		logger.Fatal("module validation failed", zap.Error(err))
	}

	if err := reg.InitAll(ctx, func(name string) plugin.Dependencies {
		return plugin.Dependencies{
			Config: cfg,
			Logger: logger.Named(name),
			Store:  db,
			Bus:    bus,
		}
	}); err != nil {
		logger.Fatal("failed to initialize modules", zap.Error(err))
	}

	// Wire the monitor's recovery actions into the script pool.
	monitorMod.SetActionRunner(&scriptRunnerAdapter{pool: scriptMod.Pool()})

	if err := reg.StartAll(ctx); err != nil {
		logger.Fatal("failed to start modules", zap.Error(err))
	}

	opsServer := startOpsServer(viperCfg.GetString("ops.addr"), logger.Named("ops"))

	logger.Info("WinSentry agent running")
	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()

	if err := opsServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("ops server shutdown failed", zap.Error(err))
	}
	reg.StopAll(shutdownCtx)

	logger.Info("WinSentry agent stopped")
}

// startOpsServer serves the local health and metrics endpoints.
func startOpsServer(addr string, logger *zap.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		fmt.Fprintln(w, "ok")
	})

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("ops endpoint listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("ops server failed", zap.Error(err))
		}
	}()
	return srv
}

// scriptRunnerAdapter bridges the monitor module's action requests onto
// the script pool.
type scriptRunnerAdapter struct {
	pool *script.Pool
}

func (a *scriptRunnerAdapter) Submit(ctx context.Context, req monitor.ActionRequest) (string, error) {
	label := fmt.Sprintf("%s %s: %s (attempt %d)", req.Class, req.Target, req.Status, req.Attempt)
	return a.pool.Submit(ctx, script.Spec{
		Type:    script.SourceType(req.Type),
		Content: req.Content,
		Path:    req.Path,
	}, label)
}
