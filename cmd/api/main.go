package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"card-engagement-api/internal/cache"
	"card-engagement-api/internal/config"
	"card-engagement-api/internal/database"
	"card-engagement-api/internal/events"
	"card-engagement-api/internal/features"
	"card-engagement-api/internal/handler"
	"card-engagement-api/internal/logger"
	"card-engagement-api/internal/middleware"
	"card-engagement-api/internal/models"
	"card-engagement-api/internal/service"
	"card-engagement-api/internal/tracing"
)

func main() {
	configFile := flag.String("config", "", "Config file path (JSON or TOML)")
	port := flag.String("port", "", "Server port (overrides config)")
	dbPath := flag.String("db", "", "Database file path (overrides config)")
	flag.Parse()

	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if *port != "" {
		cfg.Server.Port = *port
	}
	if *dbPath != "" {
		cfg.Database.Path = *dbPath
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	log := logger.New(cfg.Log.Env)
	slog.SetDefault(log)

	if err := run(cfg, log); err != nil {
		log.Error("server failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *slog.Logger) error {
	tracer, err := tracing.Init(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		Endpoint:    cfg.Tracing.Endpoint,
		ServiceName: cfg.Tracing.ServiceName,
		Environment: cfg.Tracing.Environment,
	})
	if err != nil {
		return err
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracer.Shutdown(ctx); err != nil {
			log.Warn("tracer shutdown failed", slog.String("error", err.Error()))
		}
	}()

	db, err := database.NewDB(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	engagementCache, closeCache := openCache(cfg, log)
	defer closeCache()

	flags := features.NewDefaultManager(cfg.Cache.Enabled, cfg.Events.Enabled)

	eventManager := events.NewManager(cfg.Events.Enabled, log)
	eventManager.Subscribe(events.EventTemperatureChanged, func(ctx context.Context, e events.Event) error {
		data, ok := e.Data.(events.TemperatureChangedData)
		if !ok || data.To != models.TemperatureHot {
			return nil
		}
		logger.WithRecord(logger.WithCard(log, data.CardID), data.RecordID).Info("lead turned hot",
			slog.String("from", string(data.From)),
			slog.Int("score", data.Score),
		)
		return nil
	})
	defer eventManager.Shutdown()

	svc := service.NewServiceWithOptions(db, service.Options{
		Cache:    engagementCache,
		CacheTTL: cfg.CacheTTL(),
		Events:   eventManager,
		Features: flags,
		Tracer:   tracer,
		Logger:   log,
	})

	h := handler.NewHandlerWithOptions(svc, handler.NewHandlerOptions{
		MaxBodySize: cfg.Security.MaxRequestBodySize,
		Features:    flags,
		Logger:      log,
	})

	r := chi.NewRouter()

	// Middleware (order matters)
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)

	if cfg.RateLimit.Enabled {
		rateLimiter := middleware.NewRateLimiter(cfg.RateLimit.Rate, cfg.RateLimitWindow())
		defer rateLimiter.Stop()
		r.Use(middleware.RateLimitMiddleware(rateLimiter))
	}

	r.Use(middleware.TracingMiddleware())

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   splitOrigins(cfg.Security.AllowedOrigins),
		AllowedMethods:   []string{"GET", "POST", "PATCH", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "traceparent", "tracestate", "baggage"},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	h.Routes(r)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	server := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		protocol := "HTTP"
		if cfg.Server.EnableTLS {
			protocol = "HTTPS"
		}
		log.Info("starting server",
			slog.String("protocol", protocol),
			slog.String("addr", server.Addr),
			slog.String("database", cfg.Database.Path),
			slog.Bool("rate_limit", cfg.RateLimit.Enabled),
			slog.Bool("tracing", cfg.Tracing.Enabled),
		)

		var err error
		if cfg.Server.EnableTLS {
			err = server.ListenAndServeTLS(cfg.Server.CertFile, cfg.Server.KeyFile)
		} else {
			err = server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Graceful shutdown
	sigint := make(chan os.Signal, 1)
	signal.Notify(sigint, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case <-sigint:
	}

	log.Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(ctx)
}

// openCache connects to Redis when an address is configured and falls back
// to the in-memory cache otherwise or when Redis is unreachable.
func openCache(cfg *config.Config, log *slog.Logger) (cache.Cache, func()) {
	if cfg.Cache.RedisAddr == "" {
		return cache.NewInMemoryCache(), func() {}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	rc, err := cache.NewRedisCache(ctx, cfg.Cache.RedisAddr, cfg.Cache.RedisPassword, cfg.Cache.RedisDB)
	if err != nil {
		log.Warn("redis unavailable, using in-memory cache",
			slog.String("addr", cfg.Cache.RedisAddr),
			slog.String("error", err.Error()),
		)
		return cache.NewInMemoryCache(), func() {}
	}
	return rc, func() { rc.Close() }
}

func splitOrigins(raw string) []string {
	var out []string
	for _, o := range strings.Split(raw, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}
