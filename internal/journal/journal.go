// Package journal keeps an append-only SQLite log of recorded sales. Period
// files remain authoritative for counts; the journal feeds spreadsheet export.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"sales/internal/core"
	"sales/internal/log"
)

// Entry is a journaled sale event and its export state.
type Entry struct {
	core.SaleEvent
	ExportedAt     *time.Time
	ExportAttempts int
}

type Journal struct {
	db     *sql.DB
	logger *log.Logger
}

type Option func(*Journal)

func WithLogger(l *log.Logger) Option {
	return func(j *Journal) { j.logger = l.WithComponent(log.ComponentJournal) }
}

// Open creates the database file and its directory if needed and migrates it.
func Open(dbPath string, opts ...Option) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create journal directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// SQLite has a single writer
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	// the API server and the worker share the file
	for _, pragma := range []string{"PRAGMA journal_mode = WAL", "PRAGMA busy_timeout = 5000"} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("configure database: %w", err)
		}
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	j := &Journal{db: db, logger: log.Discard()}
	for _, opt := range opts {
		opt(j)
	}
	return j, nil
}

func (j *Journal) Close() error {
	if j.db != nil {
		return j.db.Close()
	}
	return nil
}

// Append stores an event. Appending an event ID twice is a no-op.
func (j *Journal) Append(ctx context.Context, ev core.SaleEvent) error {
	res, err := j.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO sale_events (
			event_id, operator_id, username, full_name, sale_key, display_name,
			price_kopecks, day_label, month_label, recorded_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, int64(ev.Operator.ID), ev.Operator.Username, ev.Operator.FullName,
		ev.Key, ev.DisplayName, ev.Price.Kopecks, ev.DayLabel, ev.MonthLabel,
		formatTime(ev.RecordedAt),
	)
	if err != nil {
		return fmt.Errorf("append sale event %s: %w", ev.ID, err)
	}

	if n, _ := res.RowsAffected(); n > 0 {
		j.logger.DebugContext(ctx, "Sale event journaled",
			log.FieldEventID, ev.ID,
			log.FieldOperatorID, ev.Operator.ID.String(),
			log.FieldSaleKey, ev.Key)
	}
	return nil
}

const selectColumns = `
	SELECT event_id, operator_id, username, full_name, sale_key, display_name,
	       price_kopecks, day_label, month_label, recorded_at, exported_at, export_attempts
	FROM sale_events`

// Get returns one entry, or sql.ErrNoRows wrapped when it does not exist.
func (j *Journal) Get(ctx context.Context, id string) (Entry, error) {
	rows, err := j.db.QueryContext(ctx, selectColumns+` WHERE event_id = ?`, id)
	if err != nil {
		return Entry{}, fmt.Errorf("get sale event %s: %w", id, err)
	}
	entries, err := scanEntries(rows)
	if err != nil {
		return Entry{}, err
	}
	if len(entries) == 0 {
		return Entry{}, fmt.Errorf("get sale event %s: %w", id, sql.ErrNoRows)
	}
	return entries[0], nil
}

// ListByPeriod returns every event of a day or month in recording order.
func (j *Journal) ListByPeriod(ctx context.Context, g core.Granularity, label string) ([]Entry, error) {
	if err := g.ValidateLabel(label); err != nil {
		return nil, err
	}
	column := "day_label"
	if g == core.Month {
		column = "month_label"
	}
	rows, err := j.db.QueryContext(ctx,
		selectColumns+` WHERE `+column+` = ? ORDER BY recorded_at, event_id`, label)
	if err != nil {
		return nil, fmt.Errorf("list sale events for %s %s: %w", g, label, err)
	}
	return scanEntries(rows)
}

// PendingExports returns up to limit events not yet exported. Events with
// fewer failed attempts come first, then the oldest, so rows that keep
// failing do not hold back newer sales.
func (j *Journal) PendingExports(ctx context.Context, limit int) ([]Entry, error) {
	rows, err := j.db.QueryContext(ctx,
		selectColumns+` WHERE exported_at IS NULL ORDER BY export_attempts, recorded_at, event_id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending exports: %w", err)
	}
	return scanEntries(rows)
}

// ClaimExport reserves a pending event for one exporter. It reports false
// when the event is already exported or another exporter claimed it less
// than lease ago.
func (j *Journal) ClaimExport(ctx context.Context, id string, at time.Time, lease time.Duration) (bool, error) {
	res, err := j.db.ExecContext(ctx, `
		UPDATE sale_events SET export_claimed_at = ?
		WHERE event_id = ? AND exported_at IS NULL
		  AND (export_claimed_at IS NULL OR export_claimed_at < ?)`,
		formatTime(at), id, formatTime(at.Add(-lease)))
	if err != nil {
		return false, fmt.Errorf("claim sale event %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claim sale event %s: %w", id, err)
	}
	return n == 1, nil
}

func (j *Journal) MarkExported(ctx context.Context, id string, at time.Time) error {
	if _, err := j.db.ExecContext(ctx,
		`UPDATE sale_events SET exported_at = ? WHERE event_id = ?`, formatTime(at), id); err != nil {
		return fmt.Errorf("mark sale event %s exported: %w", id, err)
	}
	return nil
}

// MarkExportFailed counts a failed export attempt and releases the claim;
// the event stays pending.
func (j *Journal) MarkExportFailed(ctx context.Context, id string) error {
	if _, err := j.db.ExecContext(ctx,
		`UPDATE sale_events SET export_attempts = export_attempts + 1, export_claimed_at = NULL WHERE event_id = ?`, id); err != nil {
		return fmt.Errorf("mark sale event %s export failed: %w", id, err)
	}
	return nil
}

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e          Entry
			operatorID int64
			recordedAt string
			exportedAt sql.NullString
		)
		if err := rows.Scan(
			&e.ID, &operatorID, &e.Operator.Username, &e.Operator.FullName,
			&e.Key, &e.DisplayName, &e.Price.Kopecks, &e.DayLabel, &e.MonthLabel,
			&recordedAt, &exportedAt, &e.ExportAttempts,
		); err != nil {
			return nil, fmt.Errorf("scan sale event: %w", err)
		}
		e.Operator.ID = core.OperatorID(operatorID)

		t, err := time.Parse(timeLayout, recordedAt)
		if err != nil {
			return nil, fmt.Errorf("parse recorded_at of %s: %w", e.ID, err)
		}
		e.RecordedAt = t

		if exportedAt.Valid {
			t, err := time.Parse(timeLayout, exportedAt.String)
			if err != nil {
				return nil, fmt.Errorf("parse exported_at of %s: %w", e.ID, err)
			}
			e.ExportedAt = &t
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sale events: %w", err)
	}
	return entries, nil
}

// timeLayout is fixed-width so text ordering in SQL matches time ordering.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}
