package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"mission-control/backend/internal/graph"
	"mission-control/backend/internal/mcptools"
	"mission-control/backend/internal/memgraph"
	"mission-control/backend/internal/observability"
	"mission-control/backend/internal/server"
	"mission-control/backend/internal/services"
	"mission-control/backend/internal/session"
	"mission-control/backend/internal/telemetry"
	"mission-control/backend/pkg/config"
	"mission-control/backend/pkg/logger"
)

// app is the wired server with everything that needs closing
type app struct {
	router   *gin.Engine
	editor   *session.Editor
	store    graph.Store
	notifier services.Notifier
	watcher  *telemetry.Watcher
}

func (a *app) Close() {
	if err := a.notifier.Close(); err != nil {
		logger.Get().Warn("Failed to close notifier", zap.Error(err))
	}
	if err := a.store.Close(); err != nil {
		logger.Get().Warn("Failed to close graph store", zap.Error(err))
	}
}

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load configuration: %v", err))
	}

	// Initialize logger
	if err := logger.Init(cfg.Env); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	log := logger.Get()
	log.Info("Starting mission control server...",
		zap.String("store", cfg.StoreBackend),
		zap.String("workspace", cfg.WorkspaceDir))

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := buildApp(ctx, cfg)
	if err != nil {
		log.Fatal("Failed to initialize server", zap.Error(err))
	}
	defer a.Close()

	if a.watcher != nil {
		go a.watcher.Run(ctx)
	}
	if rn, ok := a.notifier.(*services.RedisNotifier); ok {
		if err := rn.Subscribe(ctx, reloadOnRemoteSave(a.editor, cfg.GraphID)); err != nil {
			log.Warn("Graph event subscription unavailable", zap.Error(err))
		}
	}

	// Load the graph up front so the workspace is ready
	if err := a.editor.Load(ctx); err != nil {
		log.Warn("Initial graph load failed", zap.Error(err))
	}

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: a.router,
	}

	// Graceful shutdown
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	log.Info("Server started", zap.String("port", cfg.Port))

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited")
}

// buildApp wires store, telemetry, notifier, session and router from cfg
func buildApp(ctx context.Context, cfg *config.Config) (*app, error) {
	log := logger.Get()
	metrics := observability.NewCollector("mission_control")

	store, err := graph.OpenStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	store = graph.WithObserver(store, cfg.StoreBackend, metrics)

	collector := telemetry.NewCollector(telemetry.Sources{
		WorkspaceDir: cfg.WorkspaceDir,
		MemoryDir:    cfg.MemoryDir,
		SessionsDir:  cfg.SessionsDir,
		ChatLimit:    cfg.ChatHistoryLimit,
	})

	var watcher *telemetry.Watcher
	if cfg.WatchSources {
		watcher, err = telemetry.NewWatcher(collector)
		if err != nil {
			log.Warn("Source watching disabled", zap.Error(err))
			watcher = nil
		} else {
			watcher.OnChange(func() {
				log.Debug("Source documents changed, telemetry will be rescanned")
			})
		}
	}

	var notifier services.Notifier = services.NopNotifier{}
	if cfg.RedisAddr != "" {
		rn, err := services.NewRedisNotifier(ctx, cfg.RedisAddr, cfg.RedisChannel)
		if err != nil {
			log.Warn("Redis unavailable, graph events disabled", zap.Error(err))
		} else {
			notifier = rn
		}
	}

	graphs := services.NewGraphService(store, collector, notifier, cfg.GraphID, cfg.MemoryMDPath)
	editor := session.NewEditor(graphs, memgraph.NewPipeline(memgraph.AutogLayouter{}, metrics))

	router := server.NewRouter(server.Deps{
		Graphs:  graphs,
		Editor:  editor,
		Metrics: metrics,
		MCP:     mcptools.NewHandler(mcptools.NewServer(editor)),
	})

	return &app{
		router:   router,
		editor:   editor,
		store:    store,
		notifier: notifier,
		watcher:  watcher,
	}, nil
}

// reloadOnRemoteSave reloads a clean session when another instance saves a
// newer version of the graph.
func reloadOnRemoteSave(editor *session.Editor, graphID string) func(services.GraphEvent) {
	log := logger.Named("graph-events")
	return func(event services.GraphEvent) {
		if event.GraphID != graphID {
			return
		}
		st := editor.Status()
		if !st.Loaded || st.Dirty || event.Version <= st.Version {
			return
		}
		log.Info("Newer graph version saved elsewhere, reloading",
			zap.Int("version", event.Version),
			zap.Int("local_version", st.Version))
		if err := editor.Load(context.Background()); err != nil {
			log.Warn("Reload after remote save failed", zap.Error(err))
		}
	}
}
