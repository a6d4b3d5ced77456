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

	"github.com/ashenomo/tomigaya/internal/cache"
	"github.com/ashenomo/tomigaya/internal/classify"
	"github.com/ashenomo/tomigaya/internal/config"
	"github.com/ashenomo/tomigaya/internal/database"
	"github.com/ashenomo/tomigaya/internal/export"
	"github.com/ashenomo/tomigaya/internal/fetch"
	"github.com/ashenomo/tomigaya/internal/handlers"
	"github.com/ashenomo/tomigaya/internal/logger"
	"github.com/ashenomo/tomigaya/internal/middleware"
	"github.com/ashenomo/tomigaya/internal/notify"
	"github.com/ashenomo/tomigaya/internal/services"
)

const (
	shutdownTimeout = 30 * time.Second
)

func main() {
	// Load configuration from environment variables
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize structured logger
	log := logger.New(cfg.Server.Env)
	log.Info("Starting scraper service", map[string]interface{}{
		"version":     "0.1.0",
		"environment": cfg.Server.Env,
		"port":        cfg.Server.Port,
		"target_host": cfg.Scrape.Host,
		"cache_store": cfg.Cache.Store,
	})

	// Create the database connection pool when the cache is backed by
	// Postgres. The file store needs no connectivity.
	ctx := context.Background()
	var db *database.Database
	if cfg.Cache.Store == config.StorePostgres {
		db, err = database.NewPostgresPool(ctx, cfg.Database)
		if err != nil {
			log.Fatal("Failed to connect to database", err, map[string]interface{}{
				"host": cfg.Database.Host,
				"port": cfg.Database.Port,
				"name": cfg.Database.Name,
			})
		}
		defer db.Close()

		log.Info("Database connection established", map[string]interface{}{
			"host":     cfg.Database.Host,
			"port":     cfg.Database.Port,
			"database": cfg.Database.Name,
			"pool_min": cfg.Database.PoolMin,
			"pool_max": cfg.Database.PoolMax,
		})
	}

	rules := classify.DefaultRules()
	rules.MinAreaSqm = cfg.Classify.MinAreaSqm
	rules.MaxRentYen = cfg.Classify.MaxRentYen

	var notifier notify.Notifier
	if cfg.Notify.SMTPHost != "" {
		notifier = notify.NewSMTPNotifier(cfg.Notify)
	} else {
		log.Info("SMTP_HOST not set, email digests will be logged instead", nil)
		notifier = notify.NewLogNotifier(log)
	}

	// Each run gets a fresh pipeline bound to the requested host so that
	// custom scrapes of other sites never share a cache index mid-run.
	factory := func(ctx context.Context, host string) (handlers.Runner, error) {
		var store cache.Store
		if cfg.Cache.Store == config.StorePostgres {
			pgStore, err := cache.NewPostgresStore(ctx, db)
			if err != nil {
				return nil, fmt.Errorf("opening postgres cache store: %w", err)
			}
			store = pgStore
		} else {
			fileStore, err := cache.NewFileStore(cfg.Cache.Dir)
			if err != nil {
				return nil, fmt.Errorf("opening file cache store: %w", err)
			}
			store = fileStore
		}

		fetcher := fetch.New(host, log)
		listingCache, err := cache.New(ctx, store, fetcher, cfg.Cache.TTL, log)
		if err != nil {
			return nil, fmt.Errorf("building listing cache: %w", err)
		}

		gate := notify.NewGate(cfg.Notify.LogPath, host, cfg.Notify.Subject, notifier, log)

		workbook, err := export.OpenWorkbook(cfg.Export.WorkbookPath)
		if err != nil {
			return nil, fmt.Errorf("opening workbook: %w", err)
		}
		renderer := export.Renderer{Host: host}

		return services.NewScraper(fetcher, listingCache, gate, workbook, renderer, rules, log), nil
	}

	// Setup Gin router
	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	// Add middleware in order: RequestID -> Logger -> Recovery -> CORS
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(log))
	router.Use(middleware.Recovery(log))
	router.Use(middleware.CORS(cfg.CORS.Origins))

	// Register health check routes
	var pinger handlers.Pinger
	if db != nil {
		pinger = db
	}
	healthHandler := handlers.NewHealthHandler(pinger, cfg.Server.Env)
	router.GET("/health", healthHandler.Health)
	router.GET("/health/ready", healthHandler.Ready)

	// Register scrape routes
	scrapeHandler := handlers.NewScrapeHandler(factory, cfg.Scrape.Host, cfg.Scrape.StartPath, cfg.Export.DefaultSheet)
	router.GET("/", scrapeHandler.Rescan)
	router.GET("/custom/:host/*path", scrapeHandler.Custom)
	router.GET("/crawl/:host", scrapeHandler.Crawl)
	router.GET("/scrape-db/:host/*path", scrapeHandler.ScrapeDB)

	// Create HTTP server
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	// Start server in goroutine
	go func() {
		log.Info("Server listening", map[string]interface{}{
			"port": cfg.Server.Port,
			"addr": srv.Addr,
		})
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Server failed to start", err, nil)
		}
	}()

	// Wait for interrupt signal (SIGINT or SIGTERM)
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	// Graceful shutdown
	log.Info("Shutting down server...", nil)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", err, map[string]interface{}{
			"timeout": shutdownTimeout.String(),
		})
	}

	log.Info("Server exited", nil)
}
