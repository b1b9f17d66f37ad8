package sheets

import (
	"sales/internal/core"
)

// Column headers of exported sheets. They match what managers already use.
var (
	ReportHeader = []string{"Менеджер", "Тариф", "Количество", "Дата"}
	SaleHeader   = []string{"Дата", "Время", "Менеджер", "Тариф", "Цена", "ID"}
)

// ReportValues lays out a report as a header row followed by one row per item.
func ReportValues(rows []core.ExportRow) [][]any {
	out := make([][]any, 0, len(rows)+1)
	out = append(out, toAny(ReportHeader))
	for _, r := range rows {
		out = append(out, []any{r.Operator, r.Item, r.Count, r.Period})
	}
	return out
}

// SaleValues is the sale log row. Prices are plain numbers so sheet formulas can sum them.
func SaleValues(ev core.SaleEvent) []any {
	operator := ev.Operator.FullName
	if operator == "" {
		operator = ev.Operator.Username
	}
	if operator == "" {
		operator = ev.Operator.ID.String()
	}
	return []any{
		ev.DayLabel,
		ev.RecordedAt.Format("15:04:05"),
		operator,
		ev.DisplayName,
		ev.Price.Decimal().InexactFloat64(),
		ev.ID,
	}
}

func toAny(in []string) []any {
	out := make([]any, len(in))
	for i, v := range in {
		out[i] = v
	}
	return out
}
