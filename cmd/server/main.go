package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/iconidentify/mediagrab/internal/api"
	"github.com/iconidentify/mediagrab/internal/api/handler"
	"github.com/iconidentify/mediagrab/internal/classify"
	"github.com/iconidentify/mediagrab/internal/config"
	"github.com/iconidentify/mediagrab/internal/downloader"
	"github.com/iconidentify/mediagrab/internal/extractor"
	"github.com/iconidentify/mediagrab/internal/prober"
	"github.com/iconidentify/mediagrab/internal/render"
	"github.com/iconidentify/mediagrab/internal/repository"
	"github.com/iconidentify/mediagrab/internal/service"
	"github.com/iconidentify/mediagrab/internal/worker"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	// Parse flags
	configPath := flag.String("config", "", "Path to config file")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("mediagrab %s (built %s)\n", Version, BuildTime)
		os.Exit(0)
	}

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Setup logger
	level, _ := config.ParseLogLevel(cfg.LogLevel)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	logger.Info("starting mediagrab",
		"version", Version,
		"build_time", BuildTime,
		"store", cfg.Store.Driver,
	)

	// Result store
	var (
		repo      repository.ExtractionRepository
		storePath string
		closeRepo = func() error { return nil }
	)
	switch cfg.Store.Driver {
	case config.StoreDriverSQLite:
		storePath = filepath.Dir(cfg.Store.SQLitePath)
		if err := os.MkdirAll(storePath, 0755); err != nil {
			logger.Error("failed to create store directory", "error", err)
			os.Exit(1)
		}
		sqliteRepo, err := repository.NewSQLiteExtractionRepository(cfg.Store)
		if err != nil {
			logger.Error("failed to open store", "path", cfg.Store.SQLitePath, "error", err)
			os.Exit(1)
		}
		repo = sqliteRepo
		closeRepo = sqliteRepo.Close
	default:
		repo = repository.NewInMemoryExtractionRepository(cfg.Store)
	}

	// Initialize pipeline components
	classifier := classify.New(cfg.Classifier.NoiseDomains, cfg.Classifier.MediaDomains)

	resolver, err := downloader.NewResolver(cfg.Browser.ResolveTimeout, cfg.Browser.UserAgent, cfg.Browser.Locale)
	if err != nil {
		logger.Error("failed to create resolver", "error", err)
		os.Exit(1)
	}

	browser := render.NewChromeBrowser(cfg.Browser, logger)
	ex := extractor.New(browser, resolver, classifier, cfg.Browser, logger)

	dl := downloader.NewHTTPDownloader(cfg.Download, cfg.Probe)
	dl.SetLogger(logger)

	pr := prober.New(dl, cfg.Probe, logger)

	extractionSvc := service.NewExtractionService(ex, pr, dl, repo, cfg.Probe, logger)

	// Initialize handlers
	extractionHandler := handler.NewExtractionHandler(extractionSvc, logger)
	extractionHandler.SetExtractTimeout(cfg.Server.ExtractTimeout)
	healthHandler := handler.NewHealthHandler(extractionSvc, storePath)
	uiHandler := handler.NewUIHandler()

	// Setup router
	router := api.NewRouter(extractionHandler, healthHandler, uiHandler, cfg.Server.APIKey)

	// Expired results are only swept when a TTL is set
	var sweeper *worker.Sweeper
	if cfg.Store.TTL > 0 {
		sweeper = worker.NewSweeper(worker.Config{Interval: cfg.Store.SweepInterval}, repo, logger)
		sweeper.Start()
	}

	// Setup HTTP server
	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server in goroutine
	go func() {
		logger.Info("starting HTTP server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Stop accepting new requests
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	if sweeper != nil {
		if err := sweeper.Stop(5 * time.Second); err != nil {
			logger.Error("sweeper shutdown error", "error", err)
		}
	}

	if err := closeRepo(); err != nil {
		logger.Error("store close error", "error", err)
	}

	logger.Info("shutdown complete")
}
