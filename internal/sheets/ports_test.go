package sheets

import (
	"testing"
	"time"

	"budget/internal/core"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSummaryTable(t *testing.T) {
	b := core.Budget{ID: 2, Name: "Home"}
	cats := []core.Category{
		{ID: 2, BudgetID: 2, Name: "Utilities", Allocated: decimal.NewFromInt(150)},
		{ID: 1, BudgetID: 2, Name: "Food", Allocated: decimal.NewFromInt(400)},
	}
	txs := []core.Transaction{
		{BudgetID: 2, CategoryID: 1, Amount: decimal.NewFromInt(-100)},
		{BudgetID: 2, CategoryID: 1, Amount: decimal.NewFromInt(50)},
	}
	incomes := []core.Income{{BudgetID: 2, Amount: decimal.NewFromInt(600), Frequency: core.Weekly}}
	at := time.Date(2024, 1, 31, 18, 0, 0, 0, time.FixedZone("CET", 3600))

	table := SummaryTable(b, core.Aggregate(incomes, cats, txs), at)

	require.Len(t, table, 12)
	assert.Equal(t, []string{"Exported at", "2024-01-31T17:00:00Z"}, table[1])
	assert.Equal(t, []string{"Monthly income", "2600.00"}, table[3])
	assert.Equal(t, []string{"One-time income", "50.00"}, table[4])
	assert.Equal(t, []string{"Unallocated", "2050.00"}, table[7])
	assert.Equal(t, []string{"Food", "400.00", "100.00", "300.00", "25"}, table[10])
	assert.Equal(t, []string{"Utilities", "150.00", "0.00", "150.00", "0"}, table[11])
	assert.Equal(t, 5, table.Width())
}

func TestTabName(t *testing.T) {
	assert.Equal(t, "Budget 42", TabName(42))
}
