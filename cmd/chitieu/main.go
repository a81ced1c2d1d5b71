package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"

	"chitieu/internal/backend"
	"chitieu/internal/cache"
	"chitieu/internal/classify"
	"chitieu/internal/classify/gemini"
	"chitieu/internal/classify/memo"
	"chitieu/internal/cli"
	apphttp "chitieu/internal/http"
	"chitieu/internal/ledger"
	applog "chitieu/internal/log"
	"chitieu/internal/report"
	"chitieu/internal/services"
	"chitieu/internal/sheets"
	"chitieu/internal/sheets/gcs"
	gsheet "chitieu/internal/sheets/google"
)

type pinger interface {
	Ping(ctx context.Context) error
}

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig(cli.SetupLogger(os.Getenv("LOG_LEVEL")))
	logger := cli.SetupLogger(cfg.LogLevel)

	ctx := context.Background()

	backendConfig, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", "error", err)
		os.Exit(1)
	}
	result, err := backend.NewFactory(logger).CreateBackend(ctx, backendConfig)
	if err != nil {
		logger.Error("Failed to initialize backend", "error", err, "backend", cfg.DataBackend)
		os.Exit(1)
	}

	store := ledger.NewStore(result.Persistence)
	if err := store.Load(ctx); err != nil {
		logger.Error("Failed to load ledger", "error", err, "backend", cfg.DataBackend)
		_ = result.Close()
		os.Exit(1)
	}

	opts := services.Options{Concurrency: cfg.ClassifyConcurrency}
	if result.Publisher != nil {
		opts.Publisher = result.Publisher
	}
	if cfg.GeminiAPIKey != "" {
		classifier, err := gemini.New(ctx, gemini.Config{
			APIKey:  cfg.GeminiAPIKey,
			Model:   cfg.GeminiModel,
			Timeout: cfg.ClassifyTimeout,
		})
		if err != nil {
			logger.Error("Failed to initialize classifier", "error", err)
			_ = result.Close()
			os.Exit(1)
		}
		var c classify.Classifier = classifier
		if cfg.ClassifyMemoTTL > 0 {
			c = memo.New(classifier, cfg.ClassifyMemoTTL)
		}
		opts.Classifier = c
		logger.Info("Classifier initialized",
			"model", cfg.GeminiModel,
			"concurrency", cfg.ClassifyConcurrency,
			"memo_ttl", cfg.ClassifyMemoTTL)
	} else {
		logger.Warn("GEMINI_API_KEY not set, text submission is disabled")
	}

	views := cache.NewLRUCache[any](cfg.CacheSize, cfg.CacheTTL)
	opts.Cache = views
	cacheManager := cache.NewManager()
	cacheManager.Register(views)
	cacheManager.Start(ctx, cfg.CacheTTL)

	svc := services.NewLedgerService(store, opts)

	var (
		sinks     = map[string]sheets.ReportWriter{}
		processor *services.SyncProcessor
		uploader  *gcs.Writer
	)
	if cfg.GCSEnabled() {
		uploader, err = gcs.New(ctx, gcs.Config{
			Bucket: cfg.ExportGCSBucket,
			Prefix: cfg.ExportGCSPrefix,
			Format: report.FormatXLSX,
		})
		if err != nil {
			logger.Error("Failed to initialize Cloud Storage client", "error", err)
			_ = result.Close()
			os.Exit(1)
		}
		sinks["gcs"] = uploader
		logger.Info("Cloud Storage export enabled", "bucket", cfg.ExportGCSBucket, "prefix", cfg.ExportGCSPrefix)
	}
	if cfg.SheetsEnabled() {
		client, err := gsheet.New(ctx, gsheet.Config{
			SpreadsheetID:   cfg.GoogleSpreadsheetID,
			CredentialsJSON: cfg.GoogleServiceAccountJSON,
			CredentialsFile: cfg.GoogleServiceAccountFile,
		})
		if err != nil {
			logger.Error("Failed to initialize Google Sheets client", "error", err)
			_ = result.Close()
			os.Exit(1)
		}
		sinks["sheets"] = client
		logger.Info("Google Sheets export enabled", "spreadsheet_id", cfg.GoogleSpreadsheetID)

		if cfg.SheetsSyncInterval > 0 {
			processor = services.NewSyncProcessor(svc, client, services.SyncProcessorConfig{PollInterval: cfg.SheetsSyncInterval})
			if err := processor.Start(ctx); err != nil {
				logger.Error("Failed to start sheets sync", "error", err)
				processor = nil
			}
		}
	}

	checks := map[string]apphttp.ReadinessCheck{}
	if p, ok := result.Persistence.(pinger); ok {
		checks["storage"] = p.Ping
	}

	srv := apphttp.NewServer(":"+cfg.Port, svc, apphttp.Options{
		Logger:             applog.New(applog.Config{Level: applog.ParseLevel(cfg.LogLevel), Component: applog.ComponentHTTP}),
		Sinks:              sinks,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		Checks:             checks,
	})

	shutdownCtx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		if processor != nil {
			if err := processor.Stop(ctx); err != nil {
				logger.Error("Sync processor shutdown error", "error", err)
			}
		}
		cacheManager.Stop()
		if uploader != nil {
			if err := uploader.Close(); err != nil {
				logger.Error("Cloud Storage client close error", "error", err)
			}
		}
		if err := result.Close(); err != nil {
			logger.Error("Backend cleanup error", "error", err)
		}
	})

	logger.Info("Starting chitieu server",
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		"transactions", store.Len(),
		"events", result.Publisher != nil)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(shutdownCtx, done)
	slog.Info("Server stopped gracefully")
}
