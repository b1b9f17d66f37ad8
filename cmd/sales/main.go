package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"
	_ "time/tzdata"

	"sales/internal/amqp"
	"sales/internal/backend"
	"sales/internal/cache"
	"sales/internal/catalog"
	"sales/internal/cli"
	apphttp "sales/internal/http"
	"sales/internal/journal"
	"sales/internal/ledger"
	"sales/internal/log"
	"sales/internal/session"
	"sales/internal/storage"
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

	cat, err := cli.LoadCatalog(cfg.CatalogFile)
	if err != nil {
		logger.Error("Failed to load catalog", log.FieldError, err.Error())
		os.Exit(1)
	}

	store, err := storage.NewPeriodStore(cfg.DataDir, storage.WithLogger(logger))
	if err != nil {
		logger.Error("Failed to initialize period store", log.FieldError, err.Error(), log.FieldPath, cfg.DataDir)
		os.Exit(1)
	}
	migrator := storage.NewMigrator(store, catalog.NewNormalizer(cat),
		storage.WithBackupSuffix(cfg.BackupSuffix),
		storage.WithMigrationLogger(logger))

	sessions := session.NewStore(
		session.NewAccess(cfg.HeadUsernames, cfg.ManagerUsernames),
		cfg.SessionMax, cfg.SessionTTL,
		session.WithLogger(logger))
	cacheManager := cache.NewManager(logger)
	cacheManager.Register(sessions)

	opts := []ledger.Option{
		ledger.WithLocation(cfg.Location()),
		ledger.WithLogger(logger),
	}

	var closers []func() error
	if cfg.SQLiteJournalPath != "" {
		j, err := journal.Open(cfg.SQLiteJournalPath, journal.WithLogger(logger))
		if err != nil {
			logger.Error("Failed to open sale journal", log.FieldError, err.Error(), log.FieldPath, cfg.SQLiteJournalPath)
			os.Exit(1)
		}
		closers = append(closers, j.Close)
		opts = append(opts, ledger.WithJournal(j))
	}

	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
		if err != nil {
			// sales are still recorded; the worker sweep exports them from the journal
			logger.Error("Failed to connect to AMQP, events will not be published", log.FieldError, err.Error())
		} else {
			closers = append(closers, client.Close)
			opts = append(opts, ledger.WithPublisher(client))
		}
	}

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid export backend", log.FieldError, err.Error())
		os.Exit(1)
	}
	exporter, err := backend.NewFactory(logger).CreateBackend(context.Background(), backendCfg)
	if err != nil {
		logger.Error("Failed to initialize export backend", log.FieldError, err.Error(), "backend", backendCfg.Type.String())
		os.Exit(1)
	}
	closers = append(closers, exporter.Close)
	opts = append(opts, ledger.WithExporter(exporter.Exporter))

	l := ledger.New(cat, store, sessions, opts...)

	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Options{
		Ledger:             l,
		Sessions:           sessions,
		Ready:              store.IsOpen,
		Logger:             logger,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
	})

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err.Error())
		}
		cacheManager.Stop()
		for _, closeFn := range closers {
			if err := closeFn(); err != nil {
				logger.Warn("Close error during shutdown", log.FieldError, err.Error())
			}
		}
	})

	cacheManager.StartCleanup(ctx, 10*time.Minute)

	// live writes are refused until the migration opens the store
	go func() {
		if _, err := migrator.Run(ctx); err != nil {
			logger.Error("Period key migration failed, store stays closed", log.FieldError, err.Error())
		}
	}()

	go func() {
		logger.Info("Starting sales server",
			"port", cfg.Port,
			"data_dir", cfg.DataDir,
			"export_backend", backendCfg.Type.String())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server error", log.FieldError, err.Error(), "port", cfg.Port)
			os.Exit(1)
		}
	}()

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
