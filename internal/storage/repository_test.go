package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"budget/internal/core"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "budget.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func seedBudget(t *testing.T, repo *SQLiteRepository, username string) (core.User, core.Budget) {
	t.Helper()
	ctx := context.Background()
	u, err := repo.CreateUser(ctx, username, "hash")
	require.NoError(t, err)
	b, err := repo.CreateBudget(ctx, u.ID, "Personal Budget")
	require.NoError(t, err)
	return u, b
}

func TestRunMigrations_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "budget.db")
	require.NoError(t, RunMigrations(path))
	require.NoError(t, RunMigrations(path))

	version, dirty, err := SchemaVersion(path)
	require.NoError(t, err)
	assert.False(t, dirty)
	assert.EqualValues(t, 2, version)
}

func TestUsers(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	u, err := repo.CreateUser(ctx, "alice", "hash")
	require.NoError(t, err)
	assert.NotZero(t, u.ID)

	_, err = repo.CreateUser(ctx, "alice", "other")
	assert.ErrorIs(t, err, ErrDuplicate)

	got, err := repo.GetUserByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, u, got)

	_, err = repo.GetUserByUsername(ctx, "bob")
	assert.ErrorIs(t, err, ErrNotFound)

	n, err := repo.CountUsers(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestBudgetOwnership(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	alice, budget := seedBudget(t, repo, "alice")
	bob, _ := seedBudget(t, repo, "bob")

	got, err := repo.GetBudgetForUser(ctx, budget.ID, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, budget, got)

	_, err = repo.GetBudgetForUser(ctx, budget.ID, bob.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	err = repo.RenameBudget(ctx, budget.ID, bob.ID, "stolen")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, repo.RenameBudget(ctx, budget.ID, alice.ID, "Household"))
	got, err = repo.GetBudget(ctx, budget.ID)
	require.NoError(t, err)
	assert.Equal(t, "Household", got.Name)

	budgets, err := repo.ListBudgets(ctx, alice.ID)
	require.NoError(t, err)
	assert.Len(t, budgets, 1)

	ids, err := repo.ListAllBudgetIDs(ctx)
	require.NoError(t, err)
	assert.Len(t, ids, 2)
}

func TestCategoryRoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	alice, budget := seedBudget(t, repo, "alice")
	bob, other := seedBudget(t, repo, "bob")

	c, err := repo.CreateCategory(ctx, core.Category{
		BudgetID:  budget.ID,
		Name:      "Groceries",
		Allocated: decimal.RequireFromString("123.45"),
	})
	require.NoError(t, err)

	got, err := repo.GetCategoryForUser(ctx, c.ID, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, "Groceries", got.Name)
	assert.True(t, got.Allocated.Equal(decimal.RequireFromString("123.45")))

	_, err = repo.GetCategoryForUser(ctx, c.ID, bob.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	n, err := repo.UpdateCategoryAllocations(ctx, other.ID, map[int64]decimal.Decimal{c.ID: decimal.NewFromInt(1)})
	require.NoError(t, err)
	assert.Zero(t, n, "allocation update must be scoped to the owning budget")

	n, err = repo.UpdateCategoryAllocations(ctx, budget.ID, map[int64]decimal.Decimal{c.ID: decimal.NewFromInt(200)})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	categories, err := repo.ListCategories(ctx, budget.ID)
	require.NoError(t, err)
	require.Len(t, categories, 1)
	assert.True(t, categories[0].Allocated.Equal(decimal.NewFromInt(200)))

	require.NoError(t, repo.DeleteCategory(ctx, c.ID))
	categories, err = repo.ListCategories(ctx, budget.ID)
	require.NoError(t, err)
	assert.Empty(t, categories)
}

func TestUpdateCategoryAllocations_RollsBackOnFailure(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	_, budget := seedBudget(t, repo, "alice")

	food, err := repo.CreateCategory(ctx, core.Category{BudgetID: budget.ID, Name: "Food", Allocated: decimal.NewFromInt(10)})
	require.NoError(t, err)
	rent, err := repo.CreateCategory(ctx, core.Category{BudgetID: budget.ID, Name: "Rent", Allocated: decimal.NewFromInt(20)})
	require.NoError(t, err)

	_, err = repo.db.ExecContext(ctx, fmt.Sprintf(`CREATE TRIGGER fail_rent BEFORE UPDATE ON categories
		WHEN NEW.id = %d BEGIN SELECT RAISE(ABORT, 'rent is locked'); END`, rent.ID))
	require.NoError(t, err)

	n, err := repo.UpdateCategoryAllocations(ctx, budget.ID, map[int64]decimal.Decimal{
		food.ID: decimal.NewFromInt(99),
		rent.ID: decimal.NewFromInt(99),
	})
	require.Error(t, err)
	assert.Zero(t, n)

	categories, err := repo.ListCategories(ctx, budget.ID)
	require.NoError(t, err)
	require.Len(t, categories, 2)
	for _, c := range categories {
		assert.False(t, c.Allocated.Equal(decimal.NewFromInt(99)), "category %s must keep its allocation", c.Name)
	}
}

func TestIncomeRoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	alice, budget := seedBudget(t, repo, "alice")

	older, err := repo.CreateIncome(ctx, core.Income{
		BudgetID:  budget.ID,
		Name:      "Salary",
		Amount:    decimal.RequireFromString("2500.10"),
		Frequency: core.BiWeekly,
		StartDate: core.NewDate(2025, 1, 1),
	})
	require.NoError(t, err)

	newer, err := repo.CreateIncome(ctx, core.Income{
		BudgetID:  budget.ID,
		Name:      "Bonus",
		Amount:    decimal.NewFromInt(1000),
		Frequency: core.Yearly,
		StartDate: core.NewDate(2025, 3, 1),
		EndDate:   core.NewDate(2025, 12, 31),
	})
	require.NoError(t, err)

	incomes, err := repo.ListIncomes(ctx, budget.ID)
	require.NoError(t, err)
	require.Len(t, incomes, 2)
	assert.Equal(t, newer.ID, incomes[0].ID, "incomes are listed by start date descending")
	assert.Equal(t, "2025-12-31", incomes[0].EndDate.String())
	assert.True(t, incomes[1].EndDate.IsZero())

	got, err := repo.GetIncomeForUser(ctx, older.ID, alice.ID)
	require.NoError(t, err)
	assert.True(t, got.Amount.Equal(decimal.RequireFromString("2500.10")))
	assert.Equal(t, core.BiWeekly, got.Frequency)

	got.Name = "Paycheck"
	got.Frequency = core.Monthly
	require.NoError(t, repo.UpdateIncome(ctx, got))

	got, err = repo.GetIncomeForUser(ctx, older.ID, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, "Paycheck", got.Name)
	assert.Equal(t, core.Monthly, got.Frequency)

	require.NoError(t, repo.DeleteIncome(ctx, older.ID))
	_, err = repo.GetIncomeForUser(ctx, older.ID, alice.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTransactionRoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	alice, budget := seedBudget(t, repo, "alice")
	bob, _ := seedBudget(t, repo, "bob")

	c, err := repo.CreateCategory(ctx, core.Category{BudgetID: budget.ID, Name: "Food", Allocated: decimal.NewFromInt(100)})
	require.NoError(t, err)

	first, err := repo.CreateTransaction(ctx, core.Transaction{
		BudgetID:   budget.ID,
		Date:       core.NewDate(2025, 1, 5),
		Payee:      "Market",
		CategoryID: c.ID,
		Amount:     decimal.RequireFromString("-12.34"),
		Memo:       "weekly shop",
	})
	require.NoError(t, err)

	_, err = repo.CreateTransaction(ctx, core.Transaction{
		BudgetID:   budget.ID,
		Date:       core.NewDate(2025, 1, 7),
		Payee:      "Refund",
		CategoryID: c.ID,
		Amount:     decimal.RequireFromString("5"),
	})
	require.NoError(t, err)

	list, err := repo.ListTransactions(ctx, budget.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Refund", list[0].Payee, "transactions are listed by date descending")
	assert.Equal(t, "Food", list[1].CategoryName)
	assert.Equal(t, "", list[0].Memo)

	got, err := repo.GetTransactionForUser(ctx, first.ID, alice.ID)
	require.NoError(t, err)
	assert.True(t, got.Amount.Equal(decimal.RequireFromString("-12.34")))
	assert.Equal(t, "weekly shop", got.Memo)

	_, err = repo.GetTransactionForUser(ctx, first.ID, bob.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	n, err := repo.CountCategoryTransactions(ctx, c.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	got.Amount = decimal.RequireFromString("-20")
	got.Payee = "Supermarket"
	require.NoError(t, repo.UpdateTransaction(ctx, got))

	got, err = repo.GetTransactionForUser(ctx, first.ID, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, "Supermarket", got.Payee)
	assert.True(t, got.Amount.Equal(decimal.NewFromInt(-20)))

	require.NoError(t, repo.DeleteTransaction(ctx, first.ID))
	n, err = repo.CountCategoryTransactions(ctx, c.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestCategoryDeleteBlockedByForeignKey(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	_, budget := seedBudget(t, repo, "alice")

	c, err := repo.CreateCategory(ctx, core.Category{BudgetID: budget.ID, Name: "Food"})
	require.NoError(t, err)
	_, err = repo.CreateTransaction(ctx, core.Transaction{
		BudgetID:   budget.ID,
		Date:       core.NewDate(2025, 1, 5),
		Payee:      "Market",
		CategoryID: c.ID,
		Amount:     decimal.NewFromInt(-1),
	})
	require.NoError(t, err)

	assert.Error(t, repo.DeleteCategory(ctx, c.ID), "foreign keys must be enforced")
}

func TestSessions(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	alice, _ := seedBudget(t, repo, "alice")
	now := time.Unix(1_700_000_000, 0)

	require.NoError(t, repo.CreateSession(ctx, SessionRecord{
		Token: "live", UserID: alice.ID, Username: "alice", ExpiresAt: now.Add(time.Hour),
	}))
	require.NoError(t, repo.CreateSession(ctx, SessionRecord{
		Token: "stale", UserID: alice.ID, Username: "alice", ExpiresAt: now.Add(-time.Minute),
	}))

	s, err := repo.GetSession(ctx, "live", now)
	require.NoError(t, err)
	assert.Equal(t, alice.ID, s.UserID)
	assert.Equal(t, "alice", s.Username)

	_, err = repo.GetSession(ctx, "stale", now)
	assert.ErrorIs(t, err, ErrNotFound)

	n, err := repo.DeleteExpiredSessions(ctx, now)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	require.NoError(t, repo.DeleteSession(ctx, "live"))
	_, err = repo.GetSession(ctx, "live", now)
	assert.ErrorIs(t, err, ErrNotFound)
}
