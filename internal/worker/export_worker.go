package worker

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"sales/internal/amqp"
	"sales/internal/core"
	"sales/internal/journal"
	"sales/internal/log"
	"sales/internal/sheets"
)

// Journal is the part of the sale journal the worker drives.
type Journal interface {
	Append(ctx context.Context, ev core.SaleEvent) error
	PendingExports(ctx context.Context, limit int) ([]journal.Entry, error)
	ClaimExport(ctx context.Context, id string, at time.Time, lease time.Duration) (bool, error)
	MarkExported(ctx context.Context, id string, at time.Time) error
	MarkExportFailed(ctx context.Context, id string) error
}

// claimLease bounds how long a claimed export blocks other exporters when the
// claiming worker dies mid-append.
const claimLease = 5 * time.Minute

// Consumer delivers sale events until its context ends.
type Consumer interface {
	ConsumeSaleEvents(ctx context.Context, handler amqp.SaleHandler) error
}

// ExportWorker copies recorded sales into the spreadsheet. Events arrive over
// AMQP; a periodic sweep of the journal picks up anything the broker lost.
type ExportWorker struct {
	journal   Journal
	sheets    sheets.SaleAppender
	batchSize int
	interval  time.Duration
	logger    *log.Logger
	now       func() time.Time
}

func NewExportWorker(j Journal, appender sheets.SaleAppender, batchSize int, interval time.Duration, logger *log.Logger) *ExportWorker {
	if logger == nil {
		logger = log.Discard()
	}
	if batchSize <= 0 {
		batchSize = 50
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &ExportWorker{
		journal:   j,
		sheets:    appender,
		batchSize: batchSize,
		interval:  interval,
		logger:    logger.WithComponent(log.ComponentWorker),
		now:       time.Now,
	}
}

// Run consumes events and sweeps pending exports until ctx is cancelled.
// A nil consumer runs the sweep alone.
func (w *ExportWorker) Run(ctx context.Context, consumer Consumer) error {
	if err := w.StartupSyncCheck(ctx); err != nil {
		w.logger.WarnContext(ctx, "Startup export check failed", log.FieldError, err.Error())
	}

	g, ctx := errgroup.WithContext(ctx)
	if consumer != nil {
		g.Go(func() error {
			return consumer.ConsumeSaleEvents(ctx, w.HandleSaleMessage)
		})
	}
	g.Go(func() error {
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				if err := w.ProcessPending(ctx); err != nil {
					w.logger.ErrorContext(ctx, "Pending export sweep failed", log.FieldError, err.Error())
				}
			}
		}
	})
	return g.Wait()
}

// HandleSaleMessage journals a consumed event and exports it. Once the event
// is journaled the message is acknowledged even if the export fails; the
// sweep retries it.
func (w *ExportWorker) HandleSaleMessage(ctx context.Context, msg *amqp.SaleRecordedMessage) error {
	ev := msg.Event()
	w.logger.InfoContext(ctx, "Processing sale message",
		log.FieldEventID, ev.ID,
		log.FieldSaleKey, ev.Key)

	if err := w.journal.Append(ctx, ev); err != nil {
		return fmt.Errorf("journal sale event: %w", err)
	}

	if _, err := w.export(ctx, ev); err != nil {
		w.logger.WarnContext(ctx, "Export failed, left for the pending sweep",
			log.FieldEventID, ev.ID,
			log.FieldError, err.Error())
	}
	return nil
}

// ProcessPending exports one batch of journaled events that have not reached
// the spreadsheet yet.
func (w *ExportWorker) ProcessPending(ctx context.Context) error {
	_, _, err := w.sweep(ctx, w.batchSize)
	return err
}

// StartupSyncCheck runs a larger sweep to recover from worker downtime.
func (w *ExportWorker) StartupSyncCheck(ctx context.Context) error {
	synced, failed, err := w.sweep(ctx, w.batchSize*5)
	if err != nil {
		return fmt.Errorf("startup export check: %w", err)
	}
	if synced+failed == 0 {
		w.logger.InfoContext(ctx, "No pending exports found on startup")
		return nil
	}
	w.logger.InfoContext(ctx, "Startup export check completed",
		"synced", synced,
		"errors", failed)
	return nil
}

func (w *ExportWorker) sweep(ctx context.Context, limit int) (synced, failed int, err error) {
	pending, err := w.journal.PendingExports(ctx, limit)
	if err != nil {
		return 0, 0, fmt.Errorf("get pending exports: %w", err)
	}
	if len(pending) == 0 {
		return 0, 0, nil
	}

	w.logger.InfoContext(ctx, "Processing pending exports", log.FieldCount, len(pending))
	for _, entry := range pending {
		if ctx.Err() != nil {
			return synced, failed, ctx.Err()
		}
		exported, err := w.export(ctx, entry.SaleEvent)
		if err != nil {
			w.logger.ErrorContext(ctx, "Failed to export sale",
				log.FieldEventID, entry.ID,
				log.FieldError, err.Error())
			failed++
			continue
		}
		if exported {
			synced++
		}
	}
	return synced, failed, nil
}

// export appends ev to the spreadsheet unless another exporter holds it or
// it was exported already, in which case it reports false.
func (w *ExportWorker) export(ctx context.Context, ev core.SaleEvent) (bool, error) {
	claimed, err := w.journal.ClaimExport(ctx, ev.ID, w.now(), claimLease)
	if err != nil {
		return false, fmt.Errorf("claim export: %w", err)
	}
	if !claimed {
		w.logger.DebugContext(ctx, "Sale already exported or in progress", log.FieldEventID, ev.ID)
		return false, nil
	}

	ref, err := w.sheets.AppendSale(ctx, ev)
	if err != nil {
		if markErr := w.journal.MarkExportFailed(ctx, ev.ID); markErr != nil {
			w.logger.ErrorContext(ctx, "Failed to mark export failure",
				log.FieldEventID, ev.ID,
				log.FieldError, markErr.Error())
		}
		return false, fmt.Errorf("append to sheets: %w", err)
	}

	// the row exists now, a bookkeeping failure only risks a duplicate later
	if err := w.journal.MarkExported(ctx, ev.ID, w.now()); err != nil {
		w.logger.ErrorContext(ctx, "Failed to mark as exported",
			log.FieldEventID, ev.ID,
			log.FieldError, err.Error())
	}

	w.logger.InfoContext(ctx, "Exported sale",
		log.FieldEventID, ev.ID,
		log.FieldOperatorID, ev.Operator.ID.String(),
		"sheets_ref", ref)
	return true, nil
}
