package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"travel-inquiry-agent/config"
	"travel-inquiry-agent/internal/database"
	"travel-inquiry-agent/internal/dedup"
	"travel-inquiry-agent/internal/extraction"
	"travel-inquiry-agent/internal/fetcher"
	"travel-inquiry-agent/internal/handlers"
	"travel-inquiry-agent/internal/metrics"
	"travel-inquiry-agent/internal/pipeline"
	"travel-inquiry-agent/internal/quote"
	"travel-inquiry-agent/internal/scheduler"
	"travel-inquiry-agent/internal/server"
	"travel-inquiry-agent/internal/thread"
)

// Run initializes and starts the application
func Run() error {
	logrus.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)

	logrus.Info("Starting Travel Inquiry Agent")

	dbConn, err := database.Init(cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	cache, err := dedup.NewRedisCache(cfg.Redis, cfg.Pipeline.DedupTTL)
	if err != nil {
		return fmt.Errorf("failed to initialize dedup cache: %w", err)
	}

	m := metrics.NewMetrics()

	var f fetcher.Fetcher
	if cfg.Mailbox.UseIMAP {
		f, err = fetcher.NewIMAPFetcher(cfg.Mailbox)
		if err != nil {
			return fmt.Errorf("failed to create IMAP fetcher: %w", err)
		}
		logrus.Info("Using IMAP for email fetching")
	} else {
		f, err = fetcher.NewGmailFetcher(cfg.Mailbox)
		if err != nil {
			return fmt.Errorf("failed to create Gmail API fetcher: %w", err)
		}
		logrus.Info("Using Gmail API for email fetching")
	}

	resolver := thread.NewResolver(thread.NewGormStore(dbConn))
	extractor := extraction.NewClient(cfg.Extraction)
	emitter := quote.NewStore(dbConn)

	p := pipeline.New(f, cache, resolver, extractor, emitter, m, cfg.Pipeline)
	sched := scheduler.New(&cfg.Scheduler, p)

	h := handlers.NewHandlers(dbConn, cache, sched)
	router := server.SetupRouter(h)
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	if err := sched.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	go func() {
		logrus.Infof("Starting HTTP server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("HTTP server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logrus.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := sched.Stop(); err != nil {
		logrus.Errorf("Failed to stop scheduler: %v", err)
	}
	sched.Wait()

	if err := srv.Shutdown(ctx); err != nil {
		logrus.Errorf("HTTP server shutdown error: %v", err)
	}

	if err := f.Close(); err != nil {
		logrus.Errorf("Failed to close fetcher: %v", err)
	}
	if err := cache.Close(); err != nil {
		logrus.Errorf("Failed to close dedup cache: %v", err)
	}

	logrus.Info("Server stopped gracefully")
	return nil
}
