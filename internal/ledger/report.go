package ledger

import (
	"context"
	"fmt"
	"sort"

	"sales/internal/core"
	"sales/internal/session"
)

// Scope decides which operator a viewer may read. Heads see everyone (nil)
// or whoever they ask for; managers only ever see themselves.
func (l *Ledger) Scope(viewer core.OperatorID, requested *core.OperatorID) (*core.OperatorID, error) {
	ident, err := l.sessions.Get(viewer)
	if err != nil {
		return nil, err
	}
	if ident.IsHead() {
		return requested, nil
	}
	if requested != nil && *requested != viewer {
		return nil, fmt.Errorf("operator %s reading %s: %w", viewer, *requested, core.ErrAccessDenied)
	}
	self := viewer
	return &self, nil
}

// RequireHead returns the viewer's identity if they hold the head role.
func (l *Ledger) RequireHead(viewer core.OperatorID) (session.Identity, error) {
	ident, err := l.sessions.Get(viewer)
	if err != nil {
		return session.Identity{}, err
	}
	if !ident.IsHead() {
		return session.Identity{}, fmt.Errorf("operator %s is %s: %w", viewer, ident.Role, core.ErrAccessDenied)
	}
	return ident, nil
}

// PeriodReport folds a period file into per-operator and per-key totals.
// With a non-nil id only that operator is included, even when they have no record.
func (l *Ledger) PeriodReport(ctx context.Context, g core.Granularity, label string, id *core.OperatorID) (core.PeriodReport, error) {
	data, err := l.store.Read(ctx, g, label)
	if err != nil {
		return core.PeriodReport{}, err
	}

	ids := data.OperatorIDs()
	if id != nil {
		ids = []string{id.String()}
	}

	report := core.PeriodReport{
		Granularity: g,
		Label:       label,
		Operators:   make([]core.OperatorReport, 0, len(ids)),
	}
	byKey := make(map[string]int64)
	unknown := make(map[string]struct{})

	for _, opID := range ids {
		rec := data.Operator(opID)
		op := core.OperatorReport{
			OperatorID: opID,
			Username:   rec.Username,
			FullName:   rec.FullName,
			Items:      l.lineItems(rec.Sales),
		}
		for _, it := range op.Items {
			op.TotalCount += it.Count
			op.Revenue = op.Revenue.Add(it.Revenue)
			byKey[it.Key] += it.Count
			if !it.Recognized {
				unknown[it.Key] = struct{}{}
			}
		}
		op.AverageTicket = core.AverageTicket(op.Revenue, op.TotalCount)

		report.TotalCount += op.TotalCount
		report.Revenue = report.Revenue.Add(op.Revenue)
		report.Operators = append(report.Operators, op)
	}

	report.ByKey = l.lineItems(byKey)
	report.AverageTicket = core.AverageTicket(report.Revenue, report.TotalCount)
	for k := range unknown {
		report.Unrecognized = append(report.Unrecognized, k)
	}
	sort.Strings(report.Unrecognized)
	return report, nil
}

// lineItems orders catalog keys first in catalog order, then unknown keys
// alphabetically. Zero counts are dropped.
func (l *Ledger) lineItems(sales map[string]int64) []core.LineItem {
	items := make([]core.LineItem, 0, len(sales))
	add := func(key string, n int64) {
		price := l.catalog.Price(key)
		items = append(items, core.LineItem{
			Key:         key,
			DisplayName: l.catalog.DisplayName(key),
			Count:       n,
			Price:       price,
			Revenue:     price.Times(n),
			Recognized:  l.catalog.IsSaleKey(key),
		})
	}

	for _, key := range l.catalog.AllSaleKeys() {
		if n := sales[key]; n > 0 {
			add(key, n)
		}
	}
	var rest []string
	for key, n := range sales {
		if n > 0 && !l.catalog.IsSaleKey(key) {
			rest = append(rest, key)
		}
	}
	sort.Strings(rest)
	for _, key := range rest {
		add(key, sales[key])
	}
	return items
}

// Income is the calculator view of a period: count x price per key, per
// operator, and a grand total.
func (l *Ledger) Income(ctx context.Context, g core.Granularity, label string, id *core.OperatorID) (core.Income, error) {
	report, err := l.PeriodReport(ctx, g, label, id)
	if err != nil {
		return core.Income{}, err
	}

	income := core.Income{
		Granularity: g,
		Label:       label,
		Operators:   make([]core.OperatorIncome, 0, len(report.Operators)),
		Total:       report.Revenue,
	}
	for _, op := range report.Operators {
		oi := core.OperatorIncome{
			OperatorID: op.OperatorID,
			FullName:   op.FullName,
			Lines:      make([]core.IncomeLine, 0, len(op.Items)),
			Total:      op.Revenue,
		}
		for _, it := range op.Items {
			oi.Lines = append(oi.Lines, core.IncomeLine{
				Key:         it.Key,
				DisplayName: it.DisplayName,
				Count:       it.Count,
				Price:       it.Price,
				Subtotal:    it.Revenue,
			})
		}
		income.Operators = append(income.Operators, oi)
	}
	return income, nil
}
