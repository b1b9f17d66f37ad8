package memory

import (
	"context"
	"fmt"
	"sync"

	"sales/internal/core"
	ports "sales/internal/sheets"
)

var _ ports.Exporter = (*Store)(nil)

// Store keeps exported rows in memory. It backs local runs and tests.
type Store struct {
	mu      sync.Mutex
	sales   []core.SaleEvent
	seen    map[string]int
	reports map[string][][]any
}

func New() *Store {
	return &Store{
		seen:    make(map[string]int),
		reports: make(map[string][][]any),
	}
}

// AppendSale stores the event and returns a synthetic row reference. An event
// already appended returns its original reference.
func (s *Store) AppendSale(_ context.Context, ev core.SaleEvent) (string, error) {
	if ev.ID == "" {
		return "", fmt.Errorf("append sale without event id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if n, ok := s.seen[ev.ID]; ok {
		return fmt.Sprintf("mem:%d", n), nil
	}
	s.sales = append(s.sales, ev)
	s.seen[ev.ID] = len(s.sales)
	return fmt.Sprintf("mem:%d", len(s.sales)), nil
}

// ExportReport replaces any earlier report with the same title.
func (s *Store) ExportReport(_ context.Context, title string, rows []core.ExportRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports[title] = ports.ReportValues(rows)
	return nil
}

func (s *Store) Sales() []core.SaleEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.SaleEvent(nil), s.sales...)
}

// Report returns the exported table including its header row.
func (s *Store) Report(title string) ([][]any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reports[title]
	return r, ok
}
