package core

import (
	"sort"

	"github.com/shopspring/decimal"
)

var (
	twelve     = decimal.NewFromInt(12)
	weeksYear  = decimal.NewFromInt(52)
	biweeklies = decimal.NewFromInt(26)
	hundred    = decimal.NewFromInt(100)
)

// CategoryTotals is the per-category slice of a budget summary.
type CategoryTotals struct {
	ID        int64
	Name      string
	Allocated decimal.Decimal
	Spent     decimal.Decimal // sum of negative amounts, so <= 0
	Remaining decimal.Decimal // Allocated + Spent
}

// Summary is the aggregated view of a single budget.
type Summary struct {
	MonthlyIncome decimal.Decimal
	OneTimeIncome decimal.Decimal
	TotalBudgeted decimal.Decimal
	TotalSpent    decimal.Decimal // absolute value
	Unallocated   decimal.Decimal // MonthlyIncome - TotalBudgeted, may be negative
	Categories    map[int64]CategoryTotals
}

// MonthlyEquivalent converts an income to its monthly contribution.
// One-time incomes and unrecognized frequencies contribute zero.
func MonthlyEquivalent(in Income) decimal.Decimal {
	switch in.Frequency {
	case Monthly:
		return in.Amount
	case BiWeekly:
		return in.Amount.Mul(biweeklies).Div(twelve)
	case Weekly:
		return in.Amount.Mul(weeksYear).Div(twelve)
	case Yearly:
		return in.Amount.Div(twelve)
	default:
		return decimal.Zero
	}
}

// Aggregate computes the summary of one budget from its rows. Callers are
// responsible for passing rows that all belong to the same budget.
//
// Transactions referencing a category outside the given set still count
// toward OneTimeIncome when positive but never toward category spend.
func Aggregate(incomes []Income, categories []Category, transactions []Transaction) Summary {
	s := Summary{
		MonthlyIncome: decimal.Zero,
		OneTimeIncome: decimal.Zero,
		TotalBudgeted: decimal.Zero,
		TotalSpent:    decimal.Zero,
		Categories:    make(map[int64]CategoryTotals, len(categories)),
	}

	for _, in := range incomes {
		s.MonthlyIncome = s.MonthlyIncome.Add(MonthlyEquivalent(in))
	}

	spent := make(map[int64]decimal.Decimal, len(categories))
	for _, t := range transactions {
		switch {
		case t.Amount.IsNegative():
			spent[t.CategoryID] = spent[t.CategoryID].Add(t.Amount)
		case t.Amount.IsPositive():
			s.OneTimeIncome = s.OneTimeIncome.Add(t.Amount)
		}
	}

	for _, c := range categories {
		catSpent := spent[c.ID]
		s.TotalBudgeted = s.TotalBudgeted.Add(c.Allocated)
		s.TotalSpent = s.TotalSpent.Add(catSpent.Abs())
		s.Categories[c.ID] = CategoryTotals{
			ID:        c.ID,
			Name:      c.Name,
			Allocated: c.Allocated,
			Spent:     catSpent,
			Remaining: c.Allocated.Add(catSpent),
		}
	}

	s.Unallocated = s.MonthlyIncome.Sub(s.TotalBudgeted)
	return s
}

// Rows returns the category totals ordered by name, then id.
func (s Summary) Rows() []CategoryTotals {
	rows := make([]CategoryTotals, 0, len(s.Categories))
	for _, ct := range s.Categories {
		rows = append(rows, ct)
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Name != rows[j].Name {
			return rows[i].Name < rows[j].Name
		}
		return rows[i].ID < rows[j].ID
	})
	return rows
}

// Percent returns how much of a category's allocation has been spent,
// clamped to 0..100. Unknown categories and zero allocations report 0,
// except a zero allocation with spend reports 100.
func (s Summary) Percent(categoryID int64) int {
	ct, ok := s.Categories[categoryID]
	if !ok {
		return 0
	}
	used := ct.Spent.Abs()
	if !ct.Allocated.IsPositive() {
		if used.IsPositive() {
			return 100
		}
		return 0
	}
	p := used.Mul(hundred).Div(ct.Allocated).Round(0).IntPart()
	if p > 100 {
		return 100
	}
	return int(p)
}
