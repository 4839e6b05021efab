package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	schttp "github.com/Draymont/StockCouncil/internal/adapter/http"
	scnats "github.com/Draymont/StockCouncil/internal/adapter/nats"
	"github.com/Draymont/StockCouncil/internal/adapter/natskv"
	scotel "github.com/Draymont/StockCouncil/internal/adapter/otel"
	"github.com/Draymont/StockCouncil/internal/adapter/ristretto"
	"github.com/Draymont/StockCouncil/internal/adapter/sim"
	"github.com/Draymont/StockCouncil/internal/adapter/tiered"
	"github.com/Draymont/StockCouncil/internal/adapter/ws"
	"github.com/Draymont/StockCouncil/internal/config"
	"github.com/Draymont/StockCouncil/internal/logger"
	"github.com/Draymont/StockCouncil/internal/middleware"
	"github.com/Draymont/StockCouncil/internal/port/broadcast"
	"github.com/Draymont/StockCouncil/internal/port/cache"
	"github.com/Draymont/StockCouncil/internal/service"
	"github.com/Draymont/StockCouncil/internal/service/bus"
	"github.com/Draymont/StockCouncil/internal/service/registry"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, logCloser := logger.New(cfg.Logging)
	slog.SetDefault(log)
	defer logCloser.Close()

	slog.Info("config loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Logging.Level,
		"nats", cfg.NATS.URL != "",
	)

	ctx := context.Background()

	shutdownTracer := scotel.InitTracer(cfg.Logging.Service)
	defer func() { _ = shutdownTracer(ctx) }()

	metrics, err := scotel.NewMetrics()
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	// --- Infrastructure ---

	l1, err := ristretto.New(cfg.Cache.MaxSizeMB << 20)
	if err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	defer l1.Close()
	var snapshots cache.Cache = l1

	progress := bus.New(cfg.Analysis.BusBuffer)
	publishers := []broadcast.Publisher{progress}

	// Optional JetStream: mirrors progress events for out-of-process
	// observers and backs the snapshot cache with a shared KV tier.
	if cfg.NATS.URL != "" {
		queue, err := scnats.Connect(ctx, cfg.NATS.URL)
		if err != nil {
			return fmt.Errorf("nats: %w", err)
		}
		defer func() { _ = queue.Close() }()
		publishers = append(publishers, scnats.NewMirror(queue))

		kv, err := queue.KV(ctx, "stockcouncil-sessions", cfg.Cache.TTL)
		if err != nil {
			return fmt.Errorf("nats kv: %w", err)
		}
		snapshots = tiered.New(l1, natskv.New(kv), cfg.Cache.TTL)
	}

	// --- Services ---

	store := registry.New()
	factory := sim.NewFactory(cfg.Retry, cfg.Breaker)
	sched := service.NewScheduler(store, cfg.Analysis, metrics, publishers...)
	svc := service.NewAnalysisService(store, sched, factory, snapshots, cfg, metrics, publishers...)

	hub := ws.NewHub(progress)
	handlers := schttp.NewHandlers(svc)

	// --- HTTP ---

	r := chi.NewRouter()
	r.Use(schttp.CORS(cfg.Server.CORSOrigin))
	r.Use(schttp.Logger)
	r.Use(middleware.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(scotel.HTTPMiddleware(cfg.Logging.Service))

	schttp.MountRoutes(r, handlers, hub.HandleWS)

	addr := ":" + cfg.Server.Port

	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		slog.Info("starting server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
		}
	}()

	<-done
	slog.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}
