package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"qualify/internal/api"
	"qualify/internal/auth"
	"qualify/internal/cache"
	"qualify/internal/config"
	"qualify/internal/db"
	"qualify/internal/jobs"
	"qualify/internal/metrics"
	"qualify/internal/model"
	"qualify/internal/schema"
	"qualify/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const usage = `usage: qualify-api [command]

commands:
  serve                                       run the API server (default)
  migrate                                     apply database migrations
  account <email> <company> [plan] [industry] create an account and print its API key
  token <account-id> [ttl]                    issue a dashboard token (default ttl 24h)`

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	cmd := "serve"
	if len(os.Args) > 1 {
		cmd = os.Args[1]
	}

	switch cmd {
	case "serve":
		serve(cfg)
	case "migrate":
		if err := runGooseMigrations(cfg.DatabaseURL); err != nil {
			log.Fatalf("Migration failed: %v", err)
		}
	case "account":
		if err := createAccount(cfg, os.Args[2:]); err != nil {
			log.Fatalf("Account creation failed: %v", err)
		}
	case "token":
		if err := issueToken(cfg, os.Args[2:]); err != nil {
			log.Fatalf("Token issue failed: %v", err)
		}
	default:
		log.Fatalf("Unknown command: %s\n%s", cmd, usage)
	}
}

var plans = map[string]bool{"free": true, "starter": true, "growth": true, "enterprise": true}

func createAccount(cfg *config.Config, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("email and company are required\n%s", usage)
	}
	account := model.Account{
		ID:          "acct_" + strings.ToLower(ulid.Make().String()),
		Email:       args[0],
		CompanyName: args[1],
		APIKey:      "qk_" + strings.ToLower(ulid.Make().String()),
		Plan:        "free",
		Industry:    "saas",
	}
	if len(args) > 2 {
		account.Plan = args[2]
	}
	if !plans[account.Plan] {
		return fmt.Errorf("unknown plan %q", account.Plan)
	}
	if len(args) > 3 {
		account.Industry = args[3]
	}

	ctx := context.Background()
	dbPool, err := db.NewPool(ctx, cfg.DatabaseURL, zap.NewNop())
	if err != nil {
		return err
	}
	defer dbPool.Close()

	if err := dbPool.CreateAccount(ctx, account); err != nil {
		return fmt.Errorf("failed to create account: %w", err)
	}
	fmt.Printf("account_id=%s\napi_key=%s\n", account.ID, account.APIKey)
	return nil
}

func issueToken(cfg *config.Config, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("account id is required\n%s", usage)
	}
	ttl := 24 * time.Hour
	if len(args) > 1 {
		d, err := time.ParseDuration(args[1])
		if err != nil {
			return fmt.Errorf("invalid ttl: %w", err)
		}
		ttl = d
	}
	token, err := auth.NewJWTConfig(cfg.JWTSecret).Issue(args[0], ttl)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}

func serve(cfg *config.Config) {
	// Initialize logger
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	ctx := context.Background()

	// Database connection
	dbPool, err := db.NewPool(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer dbPool.Close()

	// Redis connection
	rdb := redis.NewClient(&redis.Options{
		Addr: cfg.RedisAddr,
	})
	defer rdb.Close()

	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}

	// Background jobs
	jobServer, jobClient := jobs.NewJobServer(cfg.RedisAddr, dbPool.Queries, logger)
	go func() {
		if err := jobServer.Start(); err != nil {
			logger.Fatal("Job server failed", zap.Error(err))
		}
	}()
	defer jobServer.Stop()

	schemaComp := schema.NewCompilerWithCache(16)
	if err := schemaComp.PrepareAll(ctx); err != nil {
		logger.Fatal("Failed to compile payload schemas", zap.Error(err))
	}

	metrics.Register()

	accounts := cache.NewAccountCache(rdb, dbPool.Queries, cfg.AccountCacheSize, cfg.AccountCacheTTL, logger)
	counters := cache.NewCounters(rdb)
	jobClientWrapper := service.NewAsynqJobClient(jobClient)

	widgetSvc := service.NewWidgetService(accounts, counters, dbPool.Queries, service.WidgetConfig{
		SharePercent:       cfg.WidgetSharePercent,
		QualifiedThreshold: cfg.QualifiedThreshold,
		CalendlyBaseURL:    cfg.CalendlyBaseURL,
	}, logger)
	widgetSvc.SetJobClient(jobClientWrapper)

	leadSvc := service.NewLeadService(dbPool.Queries, logger)
	leadSvc.SetJobClient(jobClientWrapper)

	// HTTP router
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.RequestTimeout))

	r.Mount("/", api.Routes(api.Dependencies{
		Widget:       widgetSvc,
		Leads:        leadSvc,
		Schema:       schemaComp,
		Auth:         auth.NewJWTConfig(cfg.JWTSecret),
		TrackLimiter: api.NewRateLimiter(cfg.TrackRateLimit, cfg.TrackRateBurst),
		Log:          logger,
	}))

	// Health check
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	r.Handle("/metrics", metrics.Handler())

	srv := &http.Server{
		Addr:    cfg.Addr,
		Handler: r,
	}

	// Start server
	logger.Info("Starting server", zap.String("addr", cfg.Addr))
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server stopped")
}
