package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"leadbook/internal/api"
	"leadbook/internal/audit"
	"leadbook/internal/availability"
	"leadbook/internal/booking"
	"leadbook/internal/config"
	"leadbook/internal/crmapi"
	"leadbook/internal/events"
	"leadbook/internal/metrics"
	"leadbook/internal/models"
	"leadbook/internal/notify"
)

func main() {
	output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	logger := zerolog.New(output).With().Timestamp().Logger()

	_ = godotenv.Load()

	cfg, err := config.Load(os.Getenv("LEADBOOK_CONFIG_PATH"))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if cfg.Feed.BaseURL == "" {
		logger.Fatal().Msg("set feed.base_url in config")
	}

	client := crmapi.NewClient(cfg.Feed.BaseURL, cfg.Feed.APIKey, &logger)
	client.SetTimeout(cfg.FeedTimeout())
	client.SetRateLimit(cfg.Feed.RatePerSecond, cfg.Feed.RateBurst)

	var rdb *redis.Client
	if cfg.Redis.Address != "" && cfg.CacheTTL() > 0 {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Address, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		client.UseRedisCache(rdb, cfg.CacheTTL())
	}

	bus := events.NewBus()

	var auditLog *audit.Log
	if cfg.Audit.Enabled {
		auditLog, err = audit.Open(cfg.Audit.Path, &logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to open audit log")
		}
		defer auditLog.Close()
		auditLog.Subscribe(bus)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Audit.Enabled && cfg.Audit.Backup.Enabled {
		backup := audit.NewBackup(cfg.Audit.Path, audit.BackupConfig{
			Dir:           cfg.Audit.Backup.Dir,
			Interval:      cfg.BackupInterval(),
			RetentionDays: cfg.Audit.Backup.RetentionDays,
		}, &logger)
		go backup.Run(ctx)
	}

	store := booking.NewStore(&logger)
	resolver := availability.NewResolver(client, &logger)
	notifier := notify.NewLogNotifier(&logger)
	svc := booking.NewService(client, resolver, store, notifier, bus, &logger, booking.Config{
		Granularity: cfg.Granularity(),
		DayStart:    cfg.Booking.DayStart,
		DayEnd:      cfg.Booking.DayEnd,
	})

	loadResources(ctx, client, store, &logger)
	go refreshResourcesLoop(ctx, client, store, &logger)

	if cfg.Monitoring.HealthCheckPort == 0 {
		cfg.Monitoring.HealthCheckPort = 8090
	}
	go startHealthServer(ctx, cfg.Monitoring.HealthCheckPort, rdb, &logger)

	if cfg.Monitoring.PrometheusEnabled {
		if cfg.Monitoring.PrometheusPort == 0 {
			cfg.Monitoring.PrometheusPort = 9090
		}
		metrics.Register()
		go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, &logger)
	}

	logger.Info().Msg("leadbook started")
	server := api.NewServer(cfg.Server.Addr, svc, auditLog, &logger)
	if err := server.Start(ctx); err != nil {
		logger.Fatal().Err(err).Msg("api server failed")
	}
}

func loadResources(ctx context.Context, client *crmapi.Client, store *booking.Store, logger *zerolog.Logger) {
	raw, err := client.ListResources(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("failed to load resource directory")
		return
	}
	resources := make([]models.Resource, 0, len(raw))
	for _, r := range raw {
		resources = append(resources, models.Resource{ID: r.ID.String(), Name: r.Name, Email: r.Email})
	}
	store.SetResources(resources)
	logger.Info().Int("count", len(resources)).Msg("resource directory loaded")
}

func refreshResourcesLoop(ctx context.Context, client *crmapi.Client, store *booking.Store, logger *zerolog.Logger) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			loadResources(ctx, client, store, logger)
		}
	}
}

func startHealthServer(ctx context.Context, port int, rdb *redis.Client, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if rdb != nil {
			if err := rdb.Ping(r.Context()).Err(); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				fmt.Fprintf(w, "redis: %v", err)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "ok")
	})
	runServer(ctx, fmt.Sprintf(":%d", port), mux, "health server", logger)
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	runServer(ctx, fmt.Sprintf(":%d", port), mux, "metrics server", logger)
}

func runServer(ctx context.Context, addr string, handler http.Handler, name string, logger *zerolog.Logger) {
	srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	logger.Info().Str("addr", addr).Msgf("%s listening", name)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msgf("%s failed", name)
	}
}
