package sheets

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"budget/internal/core"
)

// Ports for outbound adapters.
type (
	// SummaryExporter mirrors an aggregated budget somewhere outside the app.
	SummaryExporter interface {
		ExportSummary(ctx context.Context, b core.Budget, s core.Summary) error
	}
)

// Table is a rectangular block of cell values, row-major.
type Table [][]string

// TabName is the sheet tab a budget is exported to.
func TabName(budgetID int64) string {
	return fmt.Sprintf("Budget %d", budgetID)
}

// SummaryTable lays out a summary as header rows followed by one row per
// category, ordered like the budget page.
func SummaryTable(b core.Budget, s core.Summary, at time.Time) Table {
	t := Table{
		{"Budget", b.Name},
		{"Exported at", at.UTC().Format(time.RFC3339)},
		{},
		{"Monthly income", core.FormatMoney(s.MonthlyIncome)},
		{"One-time income", core.FormatMoney(s.OneTimeIncome)},
		{"Total budgeted", core.FormatMoney(s.TotalBudgeted)},
		{"Total spent", core.FormatMoney(s.TotalSpent)},
		{"Unallocated", core.FormatMoney(s.Unallocated)},
		{},
		{"Category", "Allocated", "Spent", "Remaining", "Used %"},
	}
	for _, ct := range s.Rows() {
		t = append(t, []string{
			ct.Name,
			core.FormatMoney(ct.Allocated),
			core.FormatMoney(ct.Spent.Abs()),
			core.FormatMoney(ct.Remaining),
			strconv.Itoa(s.Percent(ct.ID)),
		})
	}
	return t
}

// Width returns the length of the longest row.
func (t Table) Width() int {
	w := 0
	for _, row := range t {
		if len(row) > w {
			w = len(row)
		}
	}
	return w
}
