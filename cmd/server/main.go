package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kre8/diagram-relay/api"
	"github.com/kre8/diagram-relay/api/handlers"
	"github.com/kre8/diagram-relay/internal/config"
	"github.com/kre8/diagram-relay/internal/db"
	"github.com/kre8/diagram-relay/internal/fulfillment"
	"github.com/kre8/diagram-relay/internal/logging"
	"github.com/kre8/diagram-relay/internal/metrics"
	"github.com/kre8/diagram-relay/internal/notify"
	"github.com/kre8/diagram-relay/internal/relay"
	"github.com/kre8/diagram-relay/internal/repository"
	"github.com/kre8/diagram-relay/internal/retention"
	"github.com/kre8/diagram-relay/internal/ws"
	"github.com/prometheus/client_golang/prometheus"
)

const shutdownTimeout = 5 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	logger := logging.New(logging.ParseLevel(cfg.LogLevel))
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	// Ensure data directory exists
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0755); err != nil {
		return err
	}

	database, err := db.InitDB(cfg.DBPath)
	if err != nil {
		return err
	}
	defer db.CloseDB()

	repo := repository.NewRequestRepository(database)
	m := metrics.New(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		publisher  notify.Publisher = notify.Nop{}
		engineOpts                  = []relay.Option{relay.WithLogger(logger), relay.WithMetrics(m)}
	)
	if cfg.RedisAddr != "" {
		feed := notify.NewRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB,
			notify.WithChannel(cfg.RedisChannel), notify.WithLogger(logger))
		if err := feed.Ping(ctx); err != nil {
			logger.Warn("change feed unavailable, relying on polling", "addr", cfg.RedisAddr, "error", err)
			feed.Close()
		} else {
			defer feed.Close()
			publisher = feed
			engineOpts = append(engineOpts, relay.WithSubscriber(feed))
			logger.Info("change feed connected", "addr", cfg.RedisAddr, "channel", cfg.RedisChannel)
		}
	}

	hub := ws.NewHub(ws.WithHubLogger(logger), ws.WithHubMetrics(m))
	defer hub.Close()

	engine := relay.NewEngine(repo, hub, relay.Config{
		PollInterval: cfg.PollInterval,
		Timeout:      cfg.WatchTimeout,
		MaxWatchers:  cfg.MaxWatchers,
	}, engineOpts...)
	if err := engine.Start(); err != nil {
		logger.Warn("change feed subscription failed, relying on polling", "error", err)
	}
	defer engine.Close()

	service := fulfillment.NewService(repo,
		fulfillment.WithPublisher(publisher),
		fulfillment.WithLogger(logger),
		fulfillment.WithMetrics(m),
	)

	janitor := retention.NewJanitor(service, cfg.RetentionDays, cfg.PurgeInterval, logger)
	go janitor.Run(ctx)

	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	router := api.NewRouter(api.RouterConfig{
		AllowedOrigins: cfg.AllowedOrigins,
		Logger:         logger,
		Gatherer:       prometheus.DefaultGatherer,
		WebSocket:      handlers.NewWebSocketHandler(ws.NewHandler(hub, engine, cfg.AllowedOrigins, logger)),
		Fulfillment:    handlers.NewFulfillmentHandler(service),
	})

	srv := &http.Server{
		Addr:    cfg.Addr(),
		Handler: router,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("starting server",
			"addr", srv.Addr,
			"db", cfg.DBPath,
			"poll_interval", cfg.PollInterval,
			"watch_timeout", cfg.WatchTimeout,
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
		logger.Info("shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown did not complete", "timeout", shutdownTimeout, "error", err)
		srv.Close()
	}
	return nil
}
