// Package ledger is the single entry point for recording sales and reading
// period reports. It ties the catalog, the period store and the session
// cache together and fans recorded sales out to the journal and the broker.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"sales/internal/catalog"
	"sales/internal/core"
	"sales/internal/log"
	"sales/internal/metrics"
	"sales/internal/session"
)

// CurrentLabel is accepted wherever a period label is expected and means "now".
const CurrentLabel = "current"

var ErrExportUnavailable = errors.New("no report exporter configured")

type (
	// PeriodStore is the subset of storage.PeriodStore the ledger relies on.
	PeriodStore interface {
		Increment(ctx context.Context, g core.Granularity, label string, op core.Operator, key string) (int64, error)
		Decrement(ctx context.Context, g core.Granularity, label string, id core.OperatorID, key string) (int64, error)
		Read(ctx context.Context, g core.Granularity, label string) (core.PeriodData, error)
		ResetOperator(ctx context.Context, g core.Granularity, label string, id core.OperatorID) error
		RemovePeriod(ctx context.Context, g core.Granularity, label string) error
		ListPeriods(g core.Granularity) ([]string, error)
	}

	// Journal durably records sale events for later export.
	Journal interface {
		Append(ctx context.Context, ev core.SaleEvent) error
	}

	// Publisher announces recorded sales to other processes.
	Publisher interface {
		PublishSaleRecorded(ctx context.Context, ev core.SaleEvent) error
	}

	// Exporter writes a flattened period report somewhere humans can read it.
	Exporter interface {
		ExportReport(ctx context.Context, title string, rows []core.ExportRow) error
	}
)

type Ledger struct {
	catalog    *catalog.Catalog
	normalizer *catalog.Normalizer
	store      PeriodStore
	sessions   *session.Store

	journal   Journal
	publisher Publisher
	exporter  Exporter

	now      func() time.Time
	location *time.Location
	logger   *log.Logger
	events   *log.StructuredLogger
}

type Option func(*Ledger)

func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// WithLocation sets the time zone that decides which day and month a sale belongs to.
func WithLocation(loc *time.Location) Option {
	return func(l *Ledger) {
		if loc != nil {
			l.location = loc
		}
	}
}

func WithJournal(j Journal) Option {
	return func(l *Ledger) { l.journal = j }
}

func WithPublisher(p Publisher) Option {
	return func(l *Ledger) { l.publisher = p }
}

func WithExporter(e Exporter) Option {
	return func(l *Ledger) { l.exporter = e }
}

func WithLogger(logger *log.Logger) Option {
	return func(l *Ledger) { l.logger = logger }
}

// New wires a ledger. The store must be opened by the migration pass before
// sales can be recorded.
func New(cat *catalog.Catalog, store PeriodStore, sessions *session.Store, opts ...Option) *Ledger {
	l := &Ledger{
		catalog:    cat,
		normalizer: catalog.NewNormalizer(cat),
		store:      store,
		sessions:   sessions,
		now:        time.Now,
		location:   time.UTC,
		logger:     log.Discard(),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = l.logger.WithComponent(log.ComponentLedger)
	l.events = log.NewStructuredLogger(l.logger)
	return l
}

func (l *Ledger) Catalog() *catalog.Catalog { return l.catalog }

// Label returns the period label for the current time.
func (l *Ledger) Label(g core.Granularity) string {
	return g.Label(l.now().In(l.location))
}

// ResolveLabel expands "current" and validates anything else.
func (l *Ledger) ResolveLabel(g core.Granularity, label string) (string, error) {
	if !g.Valid() {
		return "", fmt.Errorf("%q: %w", g, core.ErrInvalidGranularity)
	}
	if label == CurrentLabel || label == "" {
		return l.Label(g), nil
	}
	if err := g.ValidateLabel(label); err != nil {
		return "", err
	}
	return label, nil
}

// RecordSale records one sale under rawKey for a signed-in operator. Keys the
// catalog does not know are still recorded verbatim and flagged in the receipt.
func (l *Ledger) RecordSale(ctx context.Context, id core.OperatorID, rawKey string) (core.Receipt, error) {
	ident, err := l.identity(id)
	if err != nil {
		return core.Receipt{}, err
	}

	key := strings.TrimSpace(rawKey)
	if key == "" {
		return core.Receipt{}, l.fail(fmt.Errorf("operator %s: %w", id, core.ErrEmptySaleKey))
	}
	if l.catalog.RequiresVariant(key) {
		return core.Receipt{}, l.fail(fmt.Errorf("%q: %w", key, core.ErrVariantRequired))
	}
	return l.record(ctx, ident, rawKey, key)
}

// RecordProductSale records a sale picked from the two-level product menu.
// Unlike RecordSale it never records keys the catalog does not know.
func (l *Ledger) RecordProductSale(ctx context.Context, id core.OperatorID, product, variant string) (core.Receipt, error) {
	ident, err := l.identity(id)
	if err != nil {
		return core.Receipt{}, err
	}

	p, ok := l.catalog.Product(product)
	if !ok {
		return core.Receipt{}, l.fail(fmt.Errorf("product %q: %w", product, core.ErrUnresolvedKey))
	}

	key := p.Key
	switch {
	case len(p.Variants) > 0 && variant == "":
		return core.Receipt{}, l.fail(fmt.Errorf("product %q: %w", product, core.ErrVariantRequired))
	case len(p.Variants) > 0:
		if !l.catalog.ResolveVariant(product, variant) {
			return core.Receipt{}, l.fail(fmt.Errorf("product %q variant %q: %w", product, variant, core.ErrUnknownVariant))
		}
		key = variant
	case variant != "":
		return core.Receipt{}, l.fail(fmt.Errorf("product %q has no variant %q: %w", product, variant, core.ErrUnknownVariant))
	}
	return l.record(ctx, ident, key, key)
}

func (l *Ledger) identity(id core.OperatorID) (session.Identity, error) {
	ident, err := l.sessions.Get(id)
	if err != nil {
		return session.Identity{}, l.fail(err)
	}
	return ident, nil
}

func (l *Ledger) record(ctx context.Context, ident session.Identity, rawKey, key string) (core.Receipt, error) {
	key, recognized := l.normalizer.Resolve(key)
	now := l.now().In(l.location)
	dayLabel, monthLabel := core.Day.Label(now), core.Month.Label(now)

	dayCount, err := l.store.Increment(ctx, core.Day, dayLabel, ident.Operator, key)
	if err != nil {
		return core.Receipt{}, l.fail(fmt.Errorf("record %q for %s: %w", key, ident.ID, err))
	}

	monthCount, err := l.store.Increment(ctx, core.Month, monthLabel, ident.Operator, key)
	if err != nil {
		l.events.LogError(ctx, "Month increment failed after day increment", err, log.ComponentLedger, log.OpRecord,
			log.NewFields().WithSale(ident.ID.String(), key, dayCount).WithPeriod(string(core.Month), monthLabel))
		l.rollbackDay(ctx, ident.ID, dayLabel, key)
		return core.Receipt{}, l.fail(fmt.Errorf("record %q for %s: %w", key, ident.ID, err))
	}
	metrics.SalesRecorded.WithLabelValues(string(core.Day)).Inc()
	metrics.SalesRecorded.WithLabelValues(string(core.Month)).Inc()

	sessionCount, err := l.sessions.Tally(ident.ID, key)
	if err != nil {
		// the session expired between the check and the write; the sale is already stored
		l.logger.DebugContext(ctx, "Session tally skipped", log.FieldOperatorID, ident.ID.String(), log.FieldError, err.Error())
	}

	if !recognized {
		metrics.SalesUnrecognized.Inc()
	}
	l.events.LogSaleRecorded(ctx, ident.ID.String(), rawKey, key, dayCount, recognized)

	receipt := core.Receipt{
		Key:          key,
		DisplayName:  l.catalog.DisplayName(key),
		Recognized:   recognized,
		Price:        l.catalog.Price(key),
		Count:        dayCount,
		MonthCount:   monthCount,
		SessionCount: sessionCount,
		DayLabel:     dayLabel,
		MonthLabel:   monthLabel,
		RecordedAt:   now,
	}
	l.fanOut(ctx, core.SaleEvent{
		ID:          uuid.NewString(),
		Operator:    ident.Operator,
		Key:         key,
		DisplayName: receipt.DisplayName,
		Price:       receipt.Price,
		DayLabel:    dayLabel,
		MonthLabel:  monthLabel,
		RecordedAt:  now,
	})
	return receipt, nil
}

// rollbackDay takes back a day increment whose month counterpart failed, so a
// retried sale is counted once in both files.
func (l *Ledger) rollbackDay(ctx context.Context, id core.OperatorID, dayLabel, key string) {
	if _, err := l.store.Decrement(ctx, core.Day, dayLabel, id, key); err != nil {
		l.events.LogError(ctx, "Day increment rollback failed", err, log.ComponentLedger, log.OpRecord,
			log.NewFields().WithSale(id.String(), key, 0).WithPeriod(string(core.Day), dayLabel))
	}
}

// fanOut hands the event to the journal and the broker. Period files are
// already written, so failures here are logged and never returned.
func (l *Ledger) fanOut(ctx context.Context, ev core.SaleEvent) {
	if l.journal != nil {
		if err := l.journal.Append(ctx, ev); err != nil {
			l.logger.WarnContext(ctx, "Journal append failed",
				log.FieldEventID, ev.ID,
				log.FieldError, err.Error())
		}
	}
	if l.publisher != nil {
		if err := l.publisher.PublishSaleRecorded(ctx, ev); err != nil {
			metrics.EventsPublished.WithLabelValues(metrics.OutcomeError).Inc()
			l.logger.WarnContext(ctx, "Sale event publish failed",
				log.FieldEventID, ev.ID,
				log.FieldError, err.Error())
			return
		}
		metrics.EventsPublished.WithLabelValues(metrics.OutcomeOK).Inc()
	}
}

func (l *Ledger) fail(err error) error {
	var reason string
	switch {
	case errors.Is(err, core.ErrStaleSession):
		reason = metrics.ReasonStaleSession
	case errors.Is(err, core.ErrStoreNotReady):
		reason = metrics.ReasonNotReady
	case errors.Is(err, core.ErrCorruptPeriodFile):
		reason = metrics.ReasonCorrupt
	case errors.Is(err, core.ErrPersistenceFailure):
		reason = metrics.ReasonPersistence
	default:
		reason = metrics.ReasonInvalidKey
	}
	metrics.SaleRecordFailures.WithLabelValues(reason).Inc()
	return err
}

// ResetPeriod zeroes one operator's counts, or deletes the whole period file
// when id is nil.
func (l *Ledger) ResetPeriod(ctx context.Context, g core.Granularity, label string, id *core.OperatorID) error {
	var err error
	target := "all"
	if id == nil {
		err = l.store.RemovePeriod(ctx, g, label)
	} else {
		target = id.String()
		err = l.store.ResetOperator(ctx, g, label, *id)
	}
	if err != nil {
		return fmt.Errorf("reset %s %s (%s): %w", g, label, target, err)
	}
	l.logger.InfoContext(ctx, "Period reset",
		log.FieldOperation, log.OpReset,
		log.FieldGranularity, string(g),
		log.FieldPeriod, label,
		log.FieldOperatorID, target)
	return nil
}

// Periods lists stored labels of a granularity, newest first.
func (l *Ledger) Periods(g core.Granularity) ([]string, error) {
	return l.store.ListPeriods(g)
}

// ExportPeriod writes the period report through the configured exporter and
// returns the number of rows written.
func (l *Ledger) ExportPeriod(ctx context.Context, g core.Granularity, label string) (int, error) {
	if l.exporter == nil {
		return 0, ErrExportUnavailable
	}
	report, err := l.PeriodReport(ctx, g, label, nil)
	if err != nil {
		return 0, err
	}
	rows := report.Rows()
	title := fmt.Sprintf("sales_%s", label)
	if err := l.exporter.ExportReport(ctx, title, rows); err != nil {
		return 0, fmt.Errorf("export %s %s: %w", g, label, err)
	}
	l.logger.InfoContext(ctx, "Period exported",
		log.FieldOperation, log.OpExport,
		log.FieldGranularity, string(g),
		log.FieldPeriod, label,
		log.FieldCount, len(rows))
	return len(rows), nil
}
