package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chitieu/internal/amqp"
	"chitieu/internal/backend"
	"chitieu/internal/cli"
	"chitieu/internal/ledger"
	"chitieu/internal/report"
	"chitieu/internal/services"
	"chitieu/internal/sheets"
	"chitieu/internal/sheets/csvfile"
	"chitieu/internal/sheets/gcs"
	gsheet "chitieu/internal/sheets/google"
	"chitieu/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig(cli.SetupLogger(os.Getenv("LOG_LEVEL")))
	logger := cli.SetupLogger(cfg.LogLevel)

	logger.Info("Starting chitieu-worker")

	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required for the worker")
		os.Exit(1)
	}
	if cfg.DataBackend == string(backend.MemoryBackend) {
		logger.Error("The worker needs a persistent backend to read the ledger", "backend", cfg.DataBackend)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The worker reads the ledger but never publishes.
	bc, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", "error", err)
		os.Exit(1)
	}
	bc.AMQPURL = ""
	result, err := backend.NewFactory(logger).CreateBackend(ctx, bc)
	if err != nil {
		logger.Error("Failed to initialize backend", "error", err, "backend", cfg.DataBackend)
		os.Exit(1)
	}
	defer result.Close()

	var sink sheets.ReportWriter
	switch {
	case cfg.SheetsEnabled():
		client, err := gsheet.New(ctx, gsheet.Config{
			SpreadsheetID:   cfg.GoogleSpreadsheetID,
			CredentialsJSON: cfg.GoogleServiceAccountJSON,
			CredentialsFile: cfg.GoogleServiceAccountFile,
		})
		if err != nil {
			logger.Error("Failed to initialize Google Sheets client", "error", err)
			os.Exit(1)
		}
		sink = client
		logger.Info("Mirroring to Google Sheets", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	case cfg.GCSEnabled():
		uploader, err := gcs.New(ctx, gcs.Config{
			Bucket: cfg.ExportGCSBucket,
			Prefix: cfg.ExportGCSPrefix,
			Format: report.FormatCSV,
		})
		if err != nil {
			logger.Error("Failed to initialize Cloud Storage client", "error", err)
			os.Exit(1)
		}
		defer uploader.Close()
		sink = uploader
		logger.Info("Mirroring to Cloud Storage", "bucket", cfg.ExportGCSBucket)
	default:
		writer, err := csvfile.New(cfg.ExportDir, report.FormatCSV)
		if err != nil {
			logger.Error("Failed to initialize export directory", "error", err, "dir", cfg.ExportDir)
			os.Exit(1)
		}
		sink = writer
		logger.Info("No remote sink configured, mirroring to files", "dir", cfg.ExportDir)
	}

	svc := services.NewLedgerService(ledger.NewStore(result.Persistence), services.Options{})
	mirror := worker.NewSheetsMirror(svc, sink)

	if err := mirror.StartupSync(ctx); err != nil {
		// Keep going: later events retry the same months.
		logger.Error("Startup sync failed", "error", err)
	}

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", "error", err)
		os.Exit(1)
	}
	defer amqpClient.Close()

	go func() {
		err := amqpClient.ConsumeEvents(ctx, func(e *amqp.LedgerEvent) error {
			handleCtx, handleCancel := context.WithTimeout(ctx, time.Minute)
			defer handleCancel()
			return mirror.HandleEvent(handleCtx, e)
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Event consumption failed", "error", err)
		}
		cancel()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("Shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		logger.Info("Context cancelled")
	}

	cancel()
	logger.Info("chitieu-worker stopped")
}
