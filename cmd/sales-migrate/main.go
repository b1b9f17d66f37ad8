// Command sales-migrate rewrites legacy sale keys in every period file once,
// outside the API server.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/goccy/go-json"

	"sales/internal/catalog"
	"sales/internal/cli"
	"sales/internal/log"
	"sales/internal/storage"
)

func main() {
	if err := cli.LoadEnvFile(); err != nil {
		fmt.Fprintln(os.Stderr, err)
	}

	var (
		dataDir     = flag.String("data", envOr("DATA_DIR", "data"), "period store root directory")
		suffix      = flag.String("suffix", envOr("BACKUP_SUFFIX", ".backup"), "backup file suffix")
		dryRun      = flag.Bool("dry-run", false, "report what would change without writing")
		catalogFile = flag.String("catalog", os.Getenv("CATALOG_FILE"), "catalog JSON file (built-in catalog when empty)")
	)
	flag.Parse()

	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"))

	if err := run(*dataDir, *suffix, *catalogFile, *dryRun, logger); err != nil {
		logger.Error("Migration failed", log.FieldError, err.Error())
		os.Exit(1)
	}
}

func run(dataDir, suffix, catalogFile string, dryRun bool, logger *log.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cat, err := cli.LoadCatalog(catalogFile)
	if err != nil {
		return err
	}
	store, err := storage.NewPeriodStore(dataDir, storage.WithLogger(logger))
	if err != nil {
		return err
	}

	report, err := storage.NewMigrator(store, catalog.NewNormalizer(cat),
		storage.WithBackupSuffix(suffix),
		storage.WithDryRun(dryRun),
		storage.WithMigrationLogger(logger),
	).Run(ctx)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(report); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	if len(report.Failures) > 0 {
		return fmt.Errorf("%d period files could not be migrated", len(report.Failures))
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
