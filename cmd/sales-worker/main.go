package main

import (
	"context"
	"errors"
	"os"
	"time"
	_ "time/tzdata"

	"sales/internal/amqp"
	"sales/internal/backend"
	"sales/internal/cli"
	"sales/internal/journal"
	"sales/internal/log"
	"sales/internal/worker"
)

func main() {
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"))
	if err := cli.LoadEnvFile(); err != nil {
		logger.Warn("Ignoring .env file", log.FieldError, err.Error())
	}

	cfg, err := cli.LoadAndValidateConfig()
	if err != nil {
		logger.Error("Configuration validation failed", log.FieldError, err.Error())
		os.Exit(1)
	}
	logger = cli.SetupLogger(cfg.LogLevel, cfg.LogFormat)
	logger.Info("Starting sales-worker")

	if cfg.SQLiteJournalPath == "" {
		logger.Error("SQLITE_JOURNAL_PATH is required by the worker")
		os.Exit(1)
	}
	j, err := journal.Open(cfg.SQLiteJournalPath, journal.WithLogger(logger))
	if err != nil {
		logger.Error("Failed to open sale journal", log.FieldError, err.Error(), log.FieldPath, cfg.SQLiteJournalPath)
		os.Exit(1)
	}
	defer j.Close()

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid export backend", log.FieldError, err.Error())
		os.Exit(1)
	}
	exporter, err := backend.NewFactory(logger).CreateBackend(context.Background(), backendCfg)
	if err != nil {
		logger.Error("Failed to initialize export backend", log.FieldError, err.Error())
		os.Exit(1)
	}
	defer exporter.Close()

	var consumer worker.Consumer
	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", log.FieldError, err.Error())
			os.Exit(1)
		}
		defer client.Close()
		consumer = client
	} else {
		logger.Info("AMQP disabled, exporting from the journal sweep only")
	}

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, nil)

	w := worker.NewExportWorker(j, exporter.Exporter, cfg.ExportBatchSize, cfg.ExportInterval, logger)
	if err := w.Run(ctx, consumer); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Worker stopped", log.FieldError, err.Error())
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker shutdown complete")
}
