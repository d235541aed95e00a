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
	"strings"
	"syscall"
	"time"

	"github.com/your-org/facegate/internal/api"
	"github.com/your-org/facegate/internal/api/handlers"
	"github.com/your-org/facegate/internal/api/ws"
	"github.com/your-org/facegate/internal/app"
	"github.com/your-org/facegate/internal/config"
	"github.com/your-org/facegate/internal/observability"
	"github.com/your-org/facegate/internal/queue"
	"github.com/your-org/facegate/internal/storage"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	log := observability.SetupLogger(cfg.Logging.Level, cfg.Logging.Format)
	log.Info("starting facegate API", "port", cfg.Server.Port, "provider", cfg.Providers.Provider)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// WebSocket hub
	hub := ws.NewHub()
	go hub.Run(ctx)

	// With NATS the hub is fed from the AUDIT stream so every replica sees
	// every decision; without it the engine broadcasts directly.
	var opts []app.Option
	if cfg.NATS.URL == "" {
		opts = append(opts, app.WithSink(hub))
	}

	a, err := app.New(ctx, cfg, log, opts...)
	if err != nil {
		log.Error("init application", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	if cfg.NATS.URL != "" {
		consumer, err := queue.NewConsumer(cfg.NATS.URL)
		if err != nil {
			log.Error("create live consumer", "error", err)
			os.Exit(1)
		}
		defer consumer.Close()

		err = consumer.ConsumeLive(ctx, liveConsumerName(), func(ctx context.Context, msg queue.AuditMessage) error {
			return hub.Record(ctx, &msg.Outcome)
		})
		if err != nil {
			log.Warn("start live consumer", "error", err)
		}
	}

	// Audit history is served from the same table the worker writes.
	var auditReader handlers.AuditReader
	if cfg.Database.Host != "" {
		db, err := storage.OpenAuditDB(cfg.Database.DSN())
		if err != nil {
			log.Warn("open audit log, /v1/audit disabled", "error", err)
		} else {
			auditLog := storage.NewAuditLog(db)
			if err := auditLog.AutoMigrate(ctx); err != nil {
				log.Warn("migrate audit log", "error", err)
			}
			auditReader = auditLog
		}
	}

	router := api.NewRouter(api.RouterConfig{
		APIKey:      cfg.Server.APIKey,
		MaxUploadMB: cfg.Server.MaxUploadMB,
		Engine:      a.Engine,
		Audit:       auditReader,
		Hub:         hub,
		Checks:      a.Checks(),
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("API server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down API server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown error", "error", err)
	}
	cancel()

	log.Info("API server stopped")
}

// liveConsumerName is unique per replica so each one receives every message.
func liveConsumerName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = fmt.Sprintf("pid-%d", os.Getpid())
	}
	return "api-live-" + strings.NewReplacer(".", "-", "*", "-", ">", "-").Replace(host)
}
