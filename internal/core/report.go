package core

import "time"

// LineItem is one sale key's aggregate within a report.
type LineItem struct {
	Key         string `json:"key"`
	DisplayName string `json:"display_name"`
	Count       int64  `json:"count"`
	Price       Money  `json:"price"`
	Revenue     Money  `json:"revenue"`
	// Recognized is false for keys the catalog does not know; they are still counted.
	Recognized bool `json:"recognized"`
}

// OperatorReport folds one operator's record for a period.
type OperatorReport struct {
	OperatorID    string     `json:"operator_id"`
	Username      string     `json:"username"`
	FullName      string     `json:"full_name"`
	Items         []LineItem `json:"items"`
	TotalCount    int64      `json:"total_count"`
	Revenue       Money      `json:"revenue"`
	AverageTicket Money      `json:"average_ticket"`
}

// PeriodReport is recomputed from the period file on every request.
type PeriodReport struct {
	Granularity   Granularity      `json:"granularity"`
	Label         string           `json:"label"`
	Operators     []OperatorReport `json:"operators"`
	ByKey         []LineItem       `json:"by_key"`
	TotalCount    int64            `json:"total_count"`
	Revenue       Money            `json:"revenue"`
	AverageTicket Money            `json:"average_ticket"`
	Unrecognized  []string         `json:"unrecognized,omitempty"`
}

// IncomeLine is a count x price = subtotal row of the income calculator.
type IncomeLine struct {
	Key         string `json:"key"`
	DisplayName string `json:"display_name"`
	Count       int64  `json:"count"`
	Price       Money  `json:"price"`
	Subtotal    Money  `json:"subtotal"`
}

type OperatorIncome struct {
	OperatorID string       `json:"operator_id"`
	FullName   string       `json:"full_name"`
	Lines      []IncomeLine `json:"lines"`
	Total      Money        `json:"total"`
}

// Income summarizes revenue for a period, per operator and overall.
type Income struct {
	Granularity Granularity      `json:"granularity"`
	Label       string           `json:"label"`
	Operators   []OperatorIncome `json:"operators"`
	Total       Money            `json:"total"`
}

// ExportRow is the flat shape written to spreadsheets.
type ExportRow struct {
	Operator string
	Item     string
	Count    int64
	Period   string
}

// Rows flattens the report into one row per operator and key.
func (r PeriodReport) Rows() []ExportRow {
	var rows []ExportRow
	for _, op := range r.Operators {
		name := op.FullName
		if name == "" {
			name = op.OperatorID
		}
		for _, it := range op.Items {
			rows = append(rows, ExportRow{
				Operator: name,
				Item:     it.DisplayName,
				Count:    it.Count,
				Period:   r.Label,
			})
		}
	}
	return rows
}

// Receipt confirms a recorded sale.
type Receipt struct {
	Key          string    `json:"key"`
	DisplayName  string    `json:"display_name"`
	Recognized   bool      `json:"recognized"`
	Price        Money     `json:"price"`
	Count        int64     `json:"count"`
	MonthCount   int64     `json:"month_count"`
	SessionCount int64     `json:"session_count"`
	DayLabel     string    `json:"day_label"`
	MonthLabel   string    `json:"month_label"`
	RecordedAt   time.Time `json:"recorded_at"`
}

// SaleEvent is the durable, transport-neutral record of one recorded sale.
type SaleEvent struct {
	ID          string
	Operator    Operator
	Key         string
	DisplayName string
	Price       Money
	DayLabel    string
	MonthLabel  string
	RecordedAt  time.Time
}
