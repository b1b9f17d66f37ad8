package sheets

import (
	"context"

	"sales/internal/core"
)

// Ports for outbound adapters.
type (
	// SaleAppender adds one row per recorded sale to a running log sheet.
	SaleAppender interface {
		AppendSale(ctx context.Context, ev core.SaleEvent) (rowRef string, err error)
	}

	// ReportExporter replaces the content of a named sheet with a period report.
	ReportExporter interface {
		ExportReport(ctx context.Context, title string, rows []core.ExportRow) error
	}

	Exporter interface {
		SaleAppender
		ReportExporter
	}
)
