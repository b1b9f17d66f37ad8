package storage

import (
	"context"
	"fmt"
	"maps"
	"os"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"sales/internal/core"
	"sales/internal/log"
	"sales/internal/metrics"
)

// DefaultBackupSuffix is appended to a period file path to name its pre-migration copy.
const DefaultBackupSuffix = ".backup"

// KeyNormalizer resolves a stored key to its canonical form and reports
// whether the result is a catalog sale key.
type KeyNormalizer interface {
	Resolve(candidate string) (string, bool)
}

// FileFailure records a period file the migration could not process.
type FileFailure struct {
	Path  string `json:"path"`
	Error string `json:"error"`
}

// MigrationReport summarizes one migration pass.
type MigrationReport struct {
	Scanned   int `json:"scanned"`
	Rewritten int `json:"rewritten"`
	Unchanged int `json:"unchanged"`
	// MergedKeys counts legacy keys folded into another key.
	MergedKeys int `json:"merged_keys"`
	// Unresolved maps keys left verbatim to the number of sales stored under them.
	Unresolved map[string]int64 `json:"unresolved,omitempty"`
	Failures   []FileFailure    `json:"failures,omitempty"`
	DryRun     bool             `json:"dry_run"`
}

func (r *MigrationReport) merge(o MigrationReport) {
	r.Scanned += o.Scanned
	r.Rewritten += o.Rewritten
	r.Unchanged += o.Unchanged
	r.MergedKeys += o.MergedKeys
	r.Failures = append(r.Failures, o.Failures...)
	for k, v := range o.Unresolved {
		if r.Unresolved == nil {
			r.Unresolved = map[string]int64{}
		}
		r.Unresolved[k] += v
	}
}

// Migrator rewrites non-canonical keys in every persisted period file.
type Migrator struct {
	store        *PeriodStore
	normalizer   KeyNormalizer
	backupSuffix string
	dryRun       bool
	logger       *log.Logger
}

type MigratorOption func(*Migrator)

func WithBackupSuffix(suffix string) MigratorOption {
	return func(m *Migrator) {
		if suffix != "" {
			m.backupSuffix = suffix
		}
	}
}

// WithDryRun computes the report without touching any file.
func WithDryRun(dryRun bool) MigratorOption {
	return func(m *Migrator) { m.dryRun = dryRun }
}

func WithMigrationLogger(l *log.Logger) MigratorOption {
	return func(m *Migrator) {
		if l != nil {
			m.logger = l.WithComponent(log.ComponentMigration)
		}
	}
}

func NewMigrator(store *PeriodStore, normalizer KeyNormalizer, opts ...MigratorOption) *Migrator {
	m := &Migrator{
		store:        store,
		normalizer:   normalizer,
		backupSuffix: DefaultBackupSuffix,
		logger:       log.Discard(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// BackupPath returns where the pre-migration copy of path is kept.
func (m *Migrator) BackupPath(path string) string {
	return path + m.backupSuffix
}

// Run visits every day and month file. Corrupt or unwritable files are logged,
// reported and skipped. When the pass completes (and is not a dry run) the
// store is opened for live writes; a cancelled pass leaves it closed.
func (m *Migrator) Run(ctx context.Context) (MigrationReport, error) {
	m.logger.InfoContext(ctx, "Starting period key migration",
		log.FieldOperation, log.OpMigrate, "dry_run", m.dryRun, log.FieldPath, m.store.Root())

	var (
		mu     sync.Mutex
		report = MigrationReport{DryRun: m.dryRun}
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, gran := range core.Granularities() {
		gran := gran
		g.Go(func() error {
			part, err := m.runGranularity(gctx, gran)
			mu.Lock()
			report.merge(part)
			mu.Unlock()
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return report, fmt.Errorf("period key migration: %w", err)
	}
	sort.Slice(report.Failures, func(i, j int) bool { return report.Failures[i].Path < report.Failures[j].Path })

	for key, count := range report.Unresolved {
		m.logger.WarnContext(ctx, "Legacy key left verbatim",
			log.FieldSaleKey, key, log.FieldCount, count,
			log.FieldError, fmt.Errorf("%w: %q", core.ErrUnresolvedKey, key))
	}
	m.logger.InfoContext(ctx, "Period key migration finished",
		"scanned", report.Scanned,
		"rewritten", report.Rewritten,
		"unchanged", report.Unchanged,
		"failures", len(report.Failures),
		"unresolved_keys", len(report.Unresolved))

	if !m.dryRun {
		m.store.Open()
	}
	return report, nil
}

func (m *Migrator) runGranularity(ctx context.Context, g core.Granularity) (MigrationReport, error) {
	var report MigrationReport
	labels, err := m.store.ListPeriods(g)
	if err != nil {
		return report, err
	}
	for _, label := range labels {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		path := m.store.Path(g, label)
		report.Scanned++

		res, err := m.migrateFile(path)
		if err != nil {
			m.logger.ErrorContext(ctx, "Skipping period file",
				log.FieldFile, path, log.FieldGranularity, string(g), log.FieldPeriod, label, log.FieldError, err)
			report.Failures = append(report.Failures, FileFailure{Path: path, Error: err.Error()})
			metrics.MigrationFiles.WithLabelValues(metrics.OutcomeFailed).Inc()
			continue
		}

		report.MergedKeys += res.merged
		for k, v := range res.unresolved {
			if report.Unresolved == nil {
				report.Unresolved = map[string]int64{}
			}
			report.Unresolved[k] += v
		}
		if res.changed {
			report.Rewritten++
			metrics.MigrationFiles.WithLabelValues(metrics.OutcomeRewritten).Inc()
			m.logger.InfoContext(ctx, "Period file migrated",
				log.FieldFile, path, "backup", m.BackupPath(path), "merged_keys", res.merged, "dry_run", m.dryRun)
		} else {
			report.Unchanged++
			metrics.MigrationFiles.WithLabelValues(metrics.OutcomeUnchanged).Inc()
		}
	}
	return report, nil
}

type fileResult struct {
	changed    bool
	merged     int
	unresolved map[string]int64
}

// migrateFile holds the path lock for the whole read, backup and rewrite.
func (m *Migrator) migrateFile(path string) (fileResult, error) {
	var res fileResult

	unlock := m.store.locks.lock(path)
	defer unlock()

	raw, err := os.ReadFile(path)
	if err != nil {
		return res, fmt.Errorf("%w: %v", core.ErrCorruptPeriodFile, err)
	}
	data, err := decodePeriod(raw)
	if err != nil {
		return res, err
	}

	for id, rec := range data {
		normalized, merged, unresolved := m.normalizeSales(rec.Sales)
		res.merged += merged
		for k, v := range unresolved {
			if res.unresolved == nil {
				res.unresolved = map[string]int64{}
			}
			res.unresolved[k] += v
		}
		if !maps.Equal(normalized, rec.Sales) {
			res.changed = true
			rec.Sales = normalized
			data[id] = rec
		}
	}

	if !res.changed || m.dryRun {
		return res, nil
	}

	// The backup must exist before the original is replaced.
	if err := writeAtomic(m.BackupPath(path), raw); err != nil {
		return res, fmt.Errorf("write backup: %w", err)
	}
	if err := m.store.save(path, data); err != nil {
		return res, fmt.Errorf("rewrite period file: %w", err)
	}
	return res, nil
}

// normalizeSales maps every key to its canonical form, summing counts for keys
// that collapse together.
func (m *Migrator) normalizeSales(sales map[string]int64) (map[string]int64, int, map[string]int64) {
	out := make(map[string]int64, len(sales))
	var unresolved map[string]int64
	for key, count := range sales {
		canonical, ok := m.normalizer.Resolve(key)
		out[canonical] += count
		if !ok {
			if unresolved == nil {
				unresolved = map[string]int64{}
			}
			unresolved[canonical] += count
		}
	}
	return out, len(sales) - len(out), unresolved
}
