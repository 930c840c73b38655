package services

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"budget/internal/core"
	applog "budget/internal/log"
	"budget/internal/storage"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type publishedEvent struct {
	BudgetID int64
	UserID   int64
	Kind     string
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
	err    error
}

func (p *recordingPublisher) PublishBudgetChanged(_ context.Context, budgetID, userID int64, kind string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{budgetID, userID, kind})
	return p.err
}

func (p *recordingPublisher) kinds() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var kinds []string
	for _, e := range p.events {
		kinds = append(kinds, e.Kind)
	}
	return kinds
}

type fixture struct {
	repo      *storage.SQLiteRepository
	svc       *BudgetService
	auth      *AuthService
	publisher *recordingPublisher
	user      core.User
	budget    core.Budget
}

func newFixture(t *testing.T, cacheTTL time.Duration) *fixture {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "budget.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	logger := applog.New(applog.Config{Output: &bytes.Buffer{}})
	pub := &recordingPublisher{}
	f := &fixture{
		repo:      repo,
		svc:       NewBudgetService(repo, pub, logger, BudgetServiceConfig{SummaryCacheTTL: cacheTTL}),
		auth:      NewAuthService(repo, time.Hour, bcrypt.MinCost),
		publisher: pub,
	}

	ctx := context.Background()
	f.user, err = f.auth.Register(ctx, "alice", "secret")
	require.NoError(t, err)
	f.budget, err = f.svc.CreateBudget(ctx, f.user.ID, "Personal Budget")
	require.NoError(t, err)
	return f
}

func (f *fixture) otherUser(t *testing.T) core.User {
	t.Helper()
	u, err := f.auth.Register(context.Background(), "mallory", "secret")
	require.NoError(t, err)
	return u
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestBudgetService_Overview(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()

	groceries, err := f.svc.CreateCategory(ctx, f.user.ID, f.budget.ID, "Groceries", dec("400"))
	require.NoError(t, err)
	_, err = f.svc.CreateIncome(ctx, f.user.ID, core.Income{
		BudgetID: f.budget.ID, Name: "Salary", Amount: dec("1000"),
		Frequency: core.BiWeekly, StartDate: core.NewDate(2024, 1, 1),
	})
	require.NoError(t, err)
	_, err = f.svc.CreateTransaction(ctx, f.user.ID, TransactionInput{
		BudgetID: f.budget.ID, Date: core.NewDate(2024, 1, 5), Payee: "Market",
		CategoryID: groceries.ID, Amount: dec("120.50"), Expense: true,
	})
	require.NoError(t, err)

	view, err := f.svc.Overview(ctx, f.user.ID, f.budget.ID)
	require.NoError(t, err)

	assert.Equal(t, f.budget, view.Budget)
	assert.Len(t, view.Categories, 1)
	assert.Len(t, view.Incomes, 1)
	require.Len(t, view.Transactions, 1)
	assert.Equal(t, "Groceries", view.Transactions[0].CategoryName)

	sum := view.Summary
	assert.True(t, sum.MonthlyIncome.Round(2).Equal(dec("2166.67")), "monthly income = %s", sum.MonthlyIncome)
	assert.True(t, sum.TotalBudgeted.Equal(dec("400")))
	assert.True(t, sum.TotalSpent.Equal(dec("120.50")))
	assert.True(t, sum.Categories[groceries.ID].Remaining.Equal(dec("279.50")))
}

func TestBudgetService_OwnershipIsEnforced(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	other := f.otherUser(t)

	c, err := f.svc.CreateCategory(ctx, f.user.ID, f.budget.ID, "Rent", dec("900"))
	require.NoError(t, err)

	_, err = f.svc.Overview(ctx, other.ID, f.budget.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	_, _, err = f.svc.Summary(ctx, other.ID, f.budget.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, f.svc.RenameBudget(ctx, other.ID, f.budget.ID, "Mine now"), ErrNotFound)

	_, err = f.svc.CreateCategory(ctx, other.ID, f.budget.ID, "Sneaky", dec("1"))
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.svc.UpdateCategory(ctx, other.ID, c.ID, "Rent", dec("0"))
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.svc.DeleteCategory(ctx, other.ID, c.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.svc.CreateTransaction(ctx, other.ID, TransactionInput{
		BudgetID: f.budget.ID, Date: core.NewDate(2024, 2, 1), Payee: "x",
		CategoryID: c.ID, Amount: dec("1"), Expense: true,
	})
	assert.ErrorIs(t, err, ErrNotFound)

	// the owner still sees the untouched category
	got, err := f.svc.GetCategory(ctx, f.user.ID, c.ID)
	require.NoError(t, err)
	assert.True(t, got.Allocated.Equal(dec("900")))
}

func TestBudgetService_TransactionCategoryMustShareBudget(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()

	second, err := f.svc.CreateBudget(ctx, f.user.ID, "Vacation")
	require.NoError(t, err)
	foreign, err := f.svc.CreateCategory(ctx, f.user.ID, second.ID, "Flights", dec("500"))
	require.NoError(t, err)

	_, err = f.svc.CreateTransaction(ctx, f.user.ID, TransactionInput{
		BudgetID: f.budget.ID, Date: core.NewDate(2024, 3, 1), Payee: "Airline",
		CategoryID: foreign.ID, Amount: dec("200"), Expense: true,
	})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.svc.CreateTransaction(ctx, f.user.ID, TransactionInput{
		BudgetID: f.budget.ID, Date: core.NewDate(2024, 3, 1), Payee: "Airline",
		Amount: dec("200"), Expense: true,
	})
	assert.ErrorIs(t, err, core.ErrMissingCategory)
}

func TestBudgetService_TransactionSigns(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()

	c, err := f.svc.CreateCategory(ctx, f.user.ID, f.budget.ID, "Misc", dec("100"))
	require.NoError(t, err)

	input := func(amount string, expense bool) TransactionInput {
		return TransactionInput{
			BudgetID: f.budget.ID, Date: core.NewDate(2024, 4, 1), Payee: "Shop",
			CategoryID: c.ID, Amount: dec(amount), Expense: expense,
		}
	}

	tests := []struct {
		name    string
		amount  string
		expense bool
		want    string
	}{
		{"expense positive input", "25", true, "-25"},
		{"expense negative input", "-25", true, "-25"},
		{"credit keeps sign", "40", false, "40"},
		{"credit keeps typed negative", "-15", false, "-15"},
	}
	for _, tt := range tests {
		t.Run("create "+tt.name, func(t *testing.T) {
			tx, err := f.svc.CreateTransaction(ctx, f.user.ID, input(tt.amount, tt.expense))
			require.NoError(t, err)
			assert.True(t, tx.Amount.Equal(dec(tt.want)), "amount = %s", tx.Amount)
		})
	}

	tx, err := f.svc.CreateTransaction(ctx, f.user.ID, input("30", true))
	require.NoError(t, err)

	t.Run("edit without expense flag makes amount positive", func(t *testing.T) {
		updated, err := f.svc.UpdateTransaction(ctx, f.user.ID, tx.ID, input("-30", false))
		require.NoError(t, err)
		assert.True(t, updated.Amount.Equal(dec("30")))

		got, err := f.svc.GetTransaction(ctx, f.user.ID, tx.ID)
		require.NoError(t, err)
		assert.True(t, got.Amount.Equal(dec("30")))
	})

	t.Run("edit with expense flag makes amount negative", func(t *testing.T) {
		updated, err := f.svc.UpdateTransaction(ctx, f.user.ID, tx.ID, input("30", true))
		require.NoError(t, err)
		assert.True(t, updated.Amount.Equal(dec("-30")))
	})

	t.Run("zero amount is recorded", func(t *testing.T) {
		created, err := f.svc.CreateTransaction(ctx, f.user.ID, input("0", true))
		require.NoError(t, err)
		assert.True(t, created.Amount.IsZero())
	})
}

func TestBudgetService_DeleteCategoryInUse(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()

	c, err := f.svc.CreateCategory(ctx, f.user.ID, f.budget.ID, "Fuel", dec("80"))
	require.NoError(t, err)
	tx, err := f.svc.CreateTransaction(ctx, f.user.ID, TransactionInput{
		BudgetID: f.budget.ID, Date: core.NewDate(2024, 5, 2), Payee: "Station",
		CategoryID: c.ID, Amount: dec("45"), Expense: true,
	})
	require.NoError(t, err)

	budgetID, err := f.svc.DeleteCategory(ctx, f.user.ID, c.ID)
	assert.ErrorIs(t, err, ErrCategoryInUse)
	assert.Equal(t, f.budget.ID, budgetID)

	_, err = f.svc.DeleteTransaction(ctx, f.user.ID, tx.ID)
	require.NoError(t, err)

	budgetID, err = f.svc.DeleteCategory(ctx, f.user.ID, c.ID)
	require.NoError(t, err)
	assert.Equal(t, f.budget.ID, budgetID)

	_, err = f.svc.GetCategory(ctx, f.user.ID, c.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBudgetService_BulkUpdateAllocations(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()

	a, err := f.svc.CreateCategory(ctx, f.user.ID, f.budget.ID, "A", dec("10"))
	require.NoError(t, err)
	b, err := f.svc.CreateCategory(ctx, f.user.ID, f.budget.ID, "B", dec("20"))
	require.NoError(t, err)

	other, err := f.svc.CreateBudget(ctx, f.user.ID, "Other")
	require.NoError(t, err)
	foreign, err := f.svc.CreateCategory(ctx, f.user.ID, other.ID, "Foreign", dec("5"))
	require.NoError(t, err)

	n, err := f.svc.BulkUpdateAllocations(ctx, f.user.ID, f.budget.ID, map[int64]decimal.Decimal{
		a.ID:       dec("15"),
		b.ID:       dec("25.5"),
		foreign.ID: dec("999"),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got, err := f.svc.GetCategory(ctx, f.user.ID, foreign.ID)
	require.NoError(t, err)
	assert.True(t, got.Allocated.Equal(dec("5")), "foreign category must be untouched")

	got, err = f.svc.GetCategory(ctx, f.user.ID, b.ID)
	require.NoError(t, err)
	assert.True(t, got.Allocated.Equal(dec("25.5")))

	_, err = f.svc.BulkUpdateAllocations(ctx, f.user.ID, f.budget.ID, map[int64]decimal.Decimal{a.ID: dec("-1")})
	assert.ErrorIs(t, err, core.ErrNegativeAllocation)
}

func TestBudgetService_IncomeLifecycle(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()

	in, err := f.svc.CreateIncome(ctx, f.user.ID, core.Income{
		BudgetID: f.budget.ID, Name: "Bonus", Amount: dec("1200"),
		Frequency: core.Yearly, StartDate: core.NewDate(2024, 1, 1),
	})
	require.NoError(t, err)

	_, err = f.svc.CreateIncome(ctx, f.user.ID, core.Income{
		BudgetID: f.budget.ID, Name: "Bad", Amount: dec("1"),
		Frequency: "fortnightly", StartDate: core.NewDate(2024, 1, 1),
	})
	assert.ErrorIs(t, err, core.ErrInvalidFrequency)

	in.Amount = dec("2400")
	in.EndDate = core.NewDate(2024, 12, 31)
	updated, err := f.svc.UpdateIncome(ctx, f.user.ID, in)
	require.NoError(t, err)
	assert.Equal(t, f.budget.ID, updated.BudgetID)

	_, sum, err := f.svc.Summary(ctx, f.user.ID, f.budget.ID)
	require.NoError(t, err)
	assert.True(t, sum.MonthlyIncome.Equal(dec("200")))

	budgetID, err := f.svc.DeleteIncome(ctx, f.user.ID, in.ID)
	require.NoError(t, err)
	assert.Equal(t, f.budget.ID, budgetID)

	_, err = f.svc.GetIncome(ctx, f.user.ID, in.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBudgetService_SummaryCacheInvalidation(t *testing.T) {
	f := newFixture(t, time.Minute)
	ctx := context.Background()
	require.NotNil(t, f.svc.SummaryCache())

	c, err := f.svc.CreateCategory(ctx, f.user.ID, f.budget.ID, "Food", dec("100"))
	require.NoError(t, err)

	_, sum, err := f.svc.Summary(ctx, f.user.ID, f.budget.ID)
	require.NoError(t, err)
	assert.True(t, sum.TotalBudgeted.Equal(dec("100")))
	assert.Equal(t, 1, f.svc.SummaryCache().Size())

	_, err = f.svc.UpdateCategory(ctx, f.user.ID, c.ID, "Food", dec("150"))
	require.NoError(t, err)
	assert.Equal(t, 0, f.svc.SummaryCache().Size())

	_, sum, err = f.svc.SummaryFor(ctx, f.budget.ID)
	require.NoError(t, err)
	assert.True(t, sum.TotalBudgeted.Equal(dec("150")))
}

// slowListRepo reads transactions and then holds the result until release
// is closed, the first time it is asked.
type slowListRepo struct {
	*storage.SQLiteRepository
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (r *slowListRepo) ListTransactions(ctx context.Context, budgetID int64) ([]core.Transaction, error) {
	txs, err := r.SQLiteRepository.ListTransactions(ctx, budgetID)
	r.once.Do(func() {
		close(r.entered)
		<-r.release
	})
	return txs, err
}

func TestBudgetService_WriteDuringLoadIsNotCachedStale(t *testing.T) {
	f := newFixture(t, time.Minute)
	ctx := context.Background()

	food, err := f.svc.CreateCategory(ctx, f.user.ID, f.budget.ID, "Food", dec("100"))
	require.NoError(t, err)

	repo := &slowListRepo{
		SQLiteRepository: f.repo,
		entered:          make(chan struct{}),
		release:          make(chan struct{}),
	}
	logger := applog.New(applog.Config{Output: &bytes.Buffer{}})
	svc := NewBudgetService(repo, nil, logger, BudgetServiceConfig{SummaryCacheTTL: time.Minute})

	done := make(chan error, 1)
	go func() {
		_, err := svc.Overview(ctx, f.user.ID, f.budget.ID)
		done <- err
	}()
	<-repo.entered

	_, err = svc.CreateTransaction(ctx, f.user.ID, TransactionInput{
		BudgetID:   f.budget.ID,
		Date:       core.NewDate(2024, 5, 1),
		Payee:      "Grocer",
		CategoryID: food.ID,
		Amount:     dec("40"),
		Expense:    true,
	})
	require.NoError(t, err)

	close(repo.release)
	require.NoError(t, <-done)

	_, sum, err := svc.Summary(ctx, f.user.ID, f.budget.ID)
	require.NoError(t, err)
	assert.True(t, sum.TotalSpent.Equal(dec("40")), "got spent %s", sum.TotalSpent)
}

func TestBudgetService_PublishesChanges(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()

	c, err := f.svc.CreateCategory(ctx, f.user.ID, f.budget.ID, "Books", dec("30"))
	require.NoError(t, err)
	require.NoError(t, f.svc.RenameBudget(ctx, f.user.ID, f.budget.ID, "Household"))
	_, err = f.svc.CreateTransaction(ctx, f.user.ID, TransactionInput{
		BudgetID: f.budget.ID, Date: core.NewDate(2024, 6, 1), Payee: "Shop",
		CategoryID: c.ID, Amount: dec("12"), Expense: true,
	})
	require.NoError(t, err)

	assert.Equal(t, []string{KindBudget, KindCategory, KindBudget, KindTransaction}, f.publisher.kinds())

	f.publisher.err = errors.New("broker down")
	_, err = f.svc.CreateCategory(ctx, f.user.ID, f.budget.ID, "Games", dec("10"))
	assert.NoError(t, err, "publish failures must not fail the write")
}

func TestBudgetService_NilPublisher(t *testing.T) {
	f := newFixture(t, 0)
	svc := NewBudgetService(f.repo, nil, nil, BudgetServiceConfig{})

	_, err := svc.CreateBudget(context.Background(), f.user.ID, "No events")
	assert.NoError(t, err)
}

func TestBudgetService_Validation(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()

	_, err := f.svc.CreateBudget(ctx, f.user.ID, "   ")
	assert.ErrorIs(t, err, core.ErrEmptyName)

	_, err = f.svc.CreateCategory(ctx, f.user.ID, f.budget.ID, "Neg", dec("-5"))
	assert.ErrorIs(t, err, core.ErrNegativeAllocation)

	assert.False(t, IsValidationError(ErrNotFound))
	assert.True(t, IsValidationError(core.ErrEmptyPayee))
}
