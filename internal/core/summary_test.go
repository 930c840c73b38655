package core

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func income(amount string, f Frequency) Income {
	return Income{BudgetID: 1, Name: "in", Amount: dec(amount), Frequency: f, StartDate: NewDate(2025, 1, 1)}
}

func tx(categoryID int64, amount string) Transaction {
	return Transaction{BudgetID: 1, Date: NewDate(2025, 1, 2), Payee: "p", CategoryID: categoryID, Amount: dec(amount)}
}

func TestMonthlyEquivalent(t *testing.T) {
	tests := []struct {
		name string
		in   Income
		want string
	}{
		{"monthly unchanged", income("1000", Monthly), "1000"},
		{"bi-weekly times 26 over 12", income("100", BiWeekly), "216.667"},
		{"weekly times 52 over 12", income("100", Weekly), "433.333"},
		{"yearly over 12", income("1200", Yearly), "100"},
		{"once contributes nothing", income("5000", Once), "0"},
		{"unknown frequency contributes nothing", income("5000", "daily"), "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MonthlyEquivalent(tt.in).Round(3)
			assert.True(t, got.Equal(dec(tt.want)), "got %s want %s", got, tt.want)
		})
	}
}

func TestAggregate_MonthlyIncomesSumExactly(t *testing.T) {
	incomes := []Income{
		income("1234.56", Monthly),
		income("0.01", Monthly),
		income("99.99", Monthly),
	}
	s := Aggregate(incomes, nil, nil)
	assert.True(t, s.MonthlyIncome.Equal(dec("1334.56")), "got %s", s.MonthlyIncome)
}

func TestAggregate_BiWeeklyPrecision(t *testing.T) {
	// Twelve bi-weekly incomes of 100 are 12 * 2600/12 = 2600 exactly once rounded
	// to cents; float arithmetic would drift here.
	var incomes []Income
	for i := 0; i < 12; i++ {
		incomes = append(incomes, income("100", BiWeekly))
	}
	s := Aggregate(incomes, nil, nil)
	assert.Equal(t, "2600.00", s.MonthlyIncome.StringFixed(2))
}

func TestAggregate_CategorySpend(t *testing.T) {
	categories := []Category{
		{ID: 1, BudgetID: 1, Name: "Groceries", Allocated: dec("500")},
		{ID: 2, BudgetID: 1, Name: "Fun", Allocated: dec("100")},
	}
	transactions := []Transaction{
		tx(1, "-100"),
		tx(1, "-50"),
		tx(1, "20"), // positive rows never count as spend
	}

	s := Aggregate(nil, categories, transactions)

	groceries, ok := s.Categories[1]
	require.True(t, ok)
	assert.Equal(t, "Groceries", groceries.Name)
	assert.True(t, groceries.Allocated.Equal(dec("500")))
	assert.True(t, groceries.Spent.Equal(dec("-150")), "spent %s", groceries.Spent)
	assert.True(t, groceries.Remaining.Equal(dec("350")), "remaining %s", groceries.Remaining)

	fun := s.Categories[2]
	assert.True(t, fun.Spent.IsZero(), "category without transactions spends 0")
	assert.True(t, fun.Remaining.Equal(dec("100")))

	assert.True(t, s.TotalBudgeted.Equal(dec("600")))
	assert.True(t, s.TotalSpent.Equal(dec("150")))
}

func TestAggregate_OneTimeIncome(t *testing.T) {
	categories := []Category{{ID: 1, BudgetID: 1, Name: "Gifts", Allocated: dec("0")}}
	s := Aggregate(nil, categories, []Transaction{tx(1, "75")})

	assert.True(t, s.OneTimeIncome.Equal(dec("75")))
	assert.True(t, s.MonthlyIncome.IsZero())
	assert.True(t, s.TotalSpent.IsZero())
}

func TestAggregate_OneTimeIncomeIgnoresCategorySet(t *testing.T) {
	// Positive rows count toward one-time income regardless of category.
	s := Aggregate(nil, nil, []Transaction{tx(42, "10"), tx(43, "5.5"), tx(42, "-3")})
	assert.True(t, s.OneTimeIncome.Equal(dec("15.5")))
	assert.True(t, s.TotalSpent.IsZero())
	assert.Empty(t, s.Categories)
}

func TestAggregate_Unallocated(t *testing.T) {
	categories := []Category{
		{ID: 1, BudgetID: 1, Name: "Rent", Allocated: dec("900")},
		{ID: 2, BudgetID: 1, Name: "Food", Allocated: dec("300")},
	}
	s := Aggregate([]Income{income("1000", Monthly)}, categories, nil)

	assert.True(t, s.TotalBudgeted.Equal(dec("1200")))
	assert.True(t, s.Unallocated.Equal(dec("-200")), "unallocated %s", s.Unallocated)
}

func TestAggregate_OrderIndependent(t *testing.T) {
	incomes := []Income{income("100", Weekly), income("3000", Monthly), income("1200", Yearly)}
	categories := []Category{
		{ID: 1, BudgetID: 1, Name: "A", Allocated: dec("10")},
		{ID: 2, BudgetID: 1, Name: "B", Allocated: dec("20")},
	}
	transactions := []Transaction{tx(1, "-1"), tx(2, "-2"), tx(1, "3"), tx(2, "-4.25")}

	a := Aggregate(incomes, categories, transactions)

	reverse := func(n int, swap func(i, j int)) {
		for i, j := 0, n-1; i < j; i, j = i+1, j-1 {
			swap(i, j)
		}
	}
	reverse(len(incomes), func(i, j int) { incomes[i], incomes[j] = incomes[j], incomes[i] })
	reverse(len(categories), func(i, j int) { categories[i], categories[j] = categories[j], categories[i] })
	reverse(len(transactions), func(i, j int) { transactions[i], transactions[j] = transactions[j], transactions[i] })

	b := Aggregate(incomes, categories, transactions)

	assert.True(t, a.MonthlyIncome.Equal(b.MonthlyIncome))
	assert.True(t, a.OneTimeIncome.Equal(b.OneTimeIncome))
	assert.True(t, a.TotalSpent.Equal(b.TotalSpent))
	assert.True(t, a.Unallocated.Equal(b.Unallocated))
	for id, ct := range a.Categories {
		assert.True(t, ct.Remaining.Equal(b.Categories[id].Remaining))
	}
}

func TestAggregate_Empty(t *testing.T) {
	s := Aggregate(nil, nil, nil)
	assert.True(t, s.MonthlyIncome.IsZero())
	assert.True(t, s.OneTimeIncome.IsZero())
	assert.True(t, s.TotalBudgeted.IsZero())
	assert.True(t, s.TotalSpent.IsZero())
	assert.True(t, s.Unallocated.IsZero())
	assert.NotNil(t, s.Categories)
}

func TestSummaryRows(t *testing.T) {
	categories := []Category{
		{ID: 3, Name: "Rent", Allocated: dec("1")},
		{ID: 1, Name: "Food", Allocated: dec("1")},
		{ID: 2, Name: "Food", Allocated: dec("1")},
	}
	rows := Aggregate(nil, categories, nil).Rows()
	require.Len(t, rows, 3)
	assert.Equal(t, []int64{1, 2, 3}, []int64{rows[0].ID, rows[1].ID, rows[2].ID})
}

func TestSummaryPercent(t *testing.T) {
	categories := []Category{
		{ID: 1, Name: "Half", Allocated: dec("200")},
		{ID: 2, Name: "Over", Allocated: dec("50")},
		{ID: 3, Name: "Unfunded", Allocated: dec("0")},
		{ID: 4, Name: "Idle", Allocated: dec("0")},
	}
	s := Aggregate(nil, categories, []Transaction{tx(1, "-100"), tx(2, "-80"), tx(3, "-1")})

	assert.Equal(t, 50, s.Percent(1))
	assert.Equal(t, 100, s.Percent(2))
	assert.Equal(t, 100, s.Percent(3))
	assert.Equal(t, 0, s.Percent(4))
	assert.Equal(t, 0, s.Percent(99))
}
