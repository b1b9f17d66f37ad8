package sheets

import (
	"testing"
	"time"

	"sales/internal/core"
)

func TestReportValues(t *testing.T) {
	got := ReportValues([]core.ExportRow{
		{Operator: "Anna K", Item: "🛡️ Мембрана", Count: 2, Period: "2025-03"},
	})
	if len(got) != 2 {
		t.Fatalf("ReportValues() rows = %d, want 2", len(got))
	}
	if got[0][0] != "Менеджер" || got[0][3] != "Дата" {
		t.Errorf("header = %v", got[0])
	}
	if got[1][0] != "Anna K" || got[1][2] != int64(2) || got[1][3] != "2025-03" {
		t.Errorf("row = %v", got[1])
	}

	if empty := ReportValues(nil); len(empty) != 1 {
		t.Errorf("empty report should keep the header, got %v", empty)
	}
}

func TestSaleValuesOperatorFallback(t *testing.T) {
	at := time.Date(2025, 3, 7, 9, 4, 5, 0, time.UTC)
	tests := []struct {
		name string
		op   core.Operator
		want string
	}{
		{"full name", core.Operator{ID: 42, Username: "anna", FullName: "Anna K"}, "Anna K"},
		{"username", core.Operator{ID: 42, Username: "anna"}, "anna"},
		{"id", core.Operator{ID: 42}, "42"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			row := SaleValues(core.SaleEvent{
				ID:         "e1",
				Operator:   tt.op,
				Price:      core.Money{Kopecks: 34667},
				DayLabel:   "2025-03-07",
				RecordedAt: at,
			})
			if row[2] != tt.want {
				t.Errorf("operator cell = %v, want %s", row[2], tt.want)
			}
			if row[1] != "09:04:05" {
				t.Errorf("time cell = %v", row[1])
			}
			if row[4] != 346.67 {
				t.Errorf("price cell = %v, want 346.67", row[4])
			}
		})
	}
}
