package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"budget/internal/cache"
	"budget/internal/core"
	applog "budget/internal/log"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// BudgetView is everything the budget page renders.
type BudgetView struct {
	Budget       core.Budget
	Categories   []core.Category
	Incomes      []core.Income
	Transactions []core.Transaction
	Summary      core.Summary
}

// TransactionInput is a transaction as submitted by a user. Expense marks
// the amount as money going out regardless of the sign typed in.
type TransactionInput struct {
	BudgetID   int64
	Date       core.Date
	Payee      string
	CategoryID int64
	Amount     decimal.Decimal
	Memo       string
	Expense    bool
}

// BudgetService runs ownership-checked reads and writes over the repository.
// Every mutation invalidates the cached summary of its budget and publishes
// a change event; publish failures never fail the write.
type BudgetService struct {
	repo      Repository
	publisher EventPublisher
	summaries *cache.LRUCache[int64, core.Summary]
	events    *applog.StructuredLogger

	// generations counts changes per budget. A summary is cached only when
	// no change landed while it was being loaded.
	genMu       sync.Mutex
	generations map[int64]uint64
}

type BudgetServiceConfig struct {
	SummaryCacheSize int
	SummaryCacheTTL  time.Duration // zero disables caching
}

func NewBudgetService(repo Repository, publisher EventPublisher, logger *applog.Logger, cfg BudgetServiceConfig) *BudgetService {
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	s := &BudgetService{
		repo:      repo,
		publisher: publisher,
		events:    applog.NewStructuredLogger(logger.WithComponent(applog.ComponentBudget)),

		generations: make(map[int64]uint64),
	}
	if cfg.SummaryCacheTTL > 0 {
		size := cfg.SummaryCacheSize
		if size <= 0 {
			size = 256
		}
		s.summaries = cache.NewLRUCache[int64, core.Summary](size, cfg.SummaryCacheTTL)
	}
	return s
}

// SummaryCache exposes the cache for cleanup registration; nil when disabled.
func (s *BudgetService) SummaryCache() *cache.LRUCache[int64, core.Summary] {
	return s.summaries
}

func (s *BudgetService) generation(budgetID int64) uint64 {
	s.genMu.Lock()
	defer s.genMu.Unlock()
	return s.generations[budgetID]
}

// cacheSummary stores sum unless budgetID changed since gen was read.
func (s *BudgetService) cacheSummary(budgetID int64, gen uint64, sum core.Summary) {
	if s.summaries == nil {
		return
	}
	s.genMu.Lock()
	defer s.genMu.Unlock()
	if s.generations[budgetID] == gen {
		s.summaries.Set(budgetID, sum)
	}
}

func (s *BudgetService) changed(ctx context.Context, userID, budgetID int64, kind, op string) {
	s.genMu.Lock()
	s.generations[budgetID]++
	if s.summaries != nil {
		s.summaries.Delete(budgetID)
	}
	s.genMu.Unlock()
	s.events.LogBudgetChanged(ctx, userID, budgetID, kind, op)

	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishBudgetChanged(ctx, budgetID, userID, kind); err != nil {
		slog.ErrorContext(ctx, "Failed to publish budget change",
			"budget_id", budgetID,
			"kind", kind,
			"error", err)
	}
}

// Budgets

func (s *BudgetService) ListBudgets(ctx context.Context, userID int64) ([]core.Budget, error) {
	budgets, err := s.repo.ListBudgets(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list budgets: %w", err)
	}
	return budgets, nil
}

func (s *BudgetService) CreateBudget(ctx context.Context, userID int64, name string) (core.Budget, error) {
	b := core.Budget{UserID: userID, Name: strings.TrimSpace(name)}
	if err := b.Validate(); err != nil {
		return core.Budget{}, err
	}
	b, err := s.repo.CreateBudget(ctx, userID, b.Name)
	if err != nil {
		return core.Budget{}, fmt.Errorf("create budget: %w", err)
	}
	s.changed(ctx, userID, b.ID, KindBudget, applog.OpCreate)
	return b, nil
}

func (s *BudgetService) RenameBudget(ctx context.Context, userID, budgetID int64, name string) error {
	b := core.Budget{ID: budgetID, UserID: userID, Name: strings.TrimSpace(name)}
	if err := b.Validate(); err != nil {
		return err
	}
	if err := s.repo.RenameBudget(ctx, budgetID, userID, b.Name); err != nil {
		return lookup("rename budget", err)
	}
	s.changed(ctx, userID, budgetID, KindBudget, applog.OpUpdate)
	return nil
}

func (s *BudgetService) GetBudget(ctx context.Context, userID, budgetID int64) (core.Budget, error) {
	b, err := s.repo.GetBudgetForUser(ctx, budgetID, userID)
	if err != nil {
		return core.Budget{}, lookup("get budget", err)
	}
	return b, nil
}

// Overview loads a budget with all of its rows and aggregates them.
func (s *BudgetService) Overview(ctx context.Context, userID, budgetID int64) (BudgetView, error) {
	b, err := s.GetBudget(ctx, userID, budgetID)
	if err != nil {
		return BudgetView{}, err
	}

	gen := s.generation(budgetID)
	view, err := s.load(ctx, b)
	if err != nil {
		return BudgetView{}, err
	}
	s.cacheSummary(budgetID, gen, view.Summary)
	return view, nil
}

func (s *BudgetService) load(ctx context.Context, b core.Budget) (BudgetView, error) {
	view := BudgetView{Budget: b}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		view.Categories, err = s.repo.ListCategories(gctx, b.ID)
		return err
	})
	g.Go(func() error {
		var err error
		view.Incomes, err = s.repo.ListIncomes(gctx, b.ID)
		return err
	})
	g.Go(func() error {
		var err error
		view.Transactions, err = s.repo.ListTransactions(gctx, b.ID)
		return err
	})
	if err := g.Wait(); err != nil {
		return BudgetView{}, fmt.Errorf("load budget %d: %w", b.ID, err)
	}

	view.Summary = core.Aggregate(view.Incomes, view.Categories, view.Transactions)
	return view, nil
}

// Summary returns the aggregated summary of a budget owned by userID.
func (s *BudgetService) Summary(ctx context.Context, userID, budgetID int64) (core.Budget, core.Summary, error) {
	b, err := s.GetBudget(ctx, userID, budgetID)
	if err != nil {
		return core.Budget{}, core.Summary{}, err
	}
	sum, err := s.summaryOf(ctx, b)
	return b, sum, err
}

// SummaryFor aggregates any budget without an ownership check. It backs the
// export worker and the admin CLI.
func (s *BudgetService) SummaryFor(ctx context.Context, budgetID int64) (core.Budget, core.Summary, error) {
	b, err := s.repo.GetBudget(ctx, budgetID)
	if err != nil {
		return core.Budget{}, core.Summary{}, lookup("get budget", err)
	}
	sum, err := s.summaryOf(ctx, b)
	return b, sum, err
}

func (s *BudgetService) summaryOf(ctx context.Context, b core.Budget) (core.Summary, error) {
	if s.summaries != nil {
		if sum, ok := s.summaries.Get(b.ID); ok {
			return sum, nil
		}
	}
	gen := s.generation(b.ID)
	view, err := s.load(ctx, b)
	if err != nil {
		return core.Summary{}, err
	}
	s.cacheSummary(b.ID, gen, view.Summary)
	return view.Summary, nil
}

// AllBudgetIDs lists every budget in the store.
func (s *BudgetService) AllBudgetIDs(ctx context.Context) ([]int64, error) {
	ids, err := s.repo.ListAllBudgetIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list budget ids: %w", err)
	}
	return ids, nil
}

// Categories

func (s *BudgetService) CreateCategory(ctx context.Context, userID, budgetID int64, name string, allocated decimal.Decimal) (core.Category, error) {
	if _, err := s.GetBudget(ctx, userID, budgetID); err != nil {
		return core.Category{}, err
	}
	c := core.Category{BudgetID: budgetID, Name: strings.TrimSpace(name), Allocated: allocated}
	if err := c.Validate(); err != nil {
		return core.Category{}, err
	}
	c, err := s.repo.CreateCategory(ctx, c)
	if err != nil {
		return core.Category{}, fmt.Errorf("create category: %w", err)
	}
	s.changed(ctx, userID, budgetID, KindCategory, applog.OpCreate)
	return c, nil
}

func (s *BudgetService) GetCategory(ctx context.Context, userID, categoryID int64) (core.Category, error) {
	c, err := s.repo.GetCategoryForUser(ctx, categoryID, userID)
	if err != nil {
		return core.Category{}, lookup("get category", err)
	}
	return c, nil
}

func (s *BudgetService) UpdateCategory(ctx context.Context, userID, categoryID int64, name string, allocated decimal.Decimal) (core.Category, error) {
	c, err := s.GetCategory(ctx, userID, categoryID)
	if err != nil {
		return core.Category{}, err
	}
	c.Name = strings.TrimSpace(name)
	c.Allocated = allocated
	if err := c.Validate(); err != nil {
		return core.Category{}, err
	}
	if err := s.repo.UpdateCategory(ctx, c); err != nil {
		return core.Category{}, fmt.Errorf("update category: %w", err)
	}
	s.changed(ctx, userID, c.BudgetID, KindCategory, applog.OpUpdate)
	return c, nil
}

// DeleteCategory removes an unused category and returns its budget id.
func (s *BudgetService) DeleteCategory(ctx context.Context, userID, categoryID int64) (int64, error) {
	c, err := s.GetCategory(ctx, userID, categoryID)
	if err != nil {
		return 0, err
	}
	n, err := s.repo.CountCategoryTransactions(ctx, categoryID)
	if err != nil {
		return c.BudgetID, fmt.Errorf("count category transactions: %w", err)
	}
	if n > 0 {
		return c.BudgetID, ErrCategoryInUse
	}
	if err := s.repo.DeleteCategory(ctx, categoryID); err != nil {
		return c.BudgetID, fmt.Errorf("delete category: %w", err)
	}
	s.changed(ctx, userID, c.BudgetID, KindCategory, applog.OpDelete)
	return c.BudgetID, nil
}

// BulkUpdateAllocations sets several allocations of one budget in a single
// transaction. Ids of categories outside the budget are skipped. It returns
// how many were updated; on error nothing is written.
func (s *BudgetService) BulkUpdateAllocations(ctx context.Context, userID, budgetID int64, allocations map[int64]decimal.Decimal) (int, error) {
	if _, err := s.GetBudget(ctx, userID, budgetID); err != nil {
		return 0, err
	}
	for _, amount := range allocations {
		if amount.IsNegative() {
			return 0, core.ErrNegativeAllocation
		}
	}

	updated, err := s.repo.UpdateCategoryAllocations(ctx, budgetID, allocations)
	if err != nil {
		return 0, fmt.Errorf("update allocations: %w", err)
	}
	if updated > 0 {
		s.changed(ctx, userID, budgetID, KindAllocations, applog.OpUpdate)
	}
	return updated, nil
}

// Incomes

func (s *BudgetService) CreateIncome(ctx context.Context, userID int64, in core.Income) (core.Income, error) {
	if _, err := s.GetBudget(ctx, userID, in.BudgetID); err != nil {
		return core.Income{}, err
	}
	in.Name = strings.TrimSpace(in.Name)
	if err := in.Validate(); err != nil {
		return core.Income{}, err
	}
	in, err := s.repo.CreateIncome(ctx, in)
	if err != nil {
		return core.Income{}, fmt.Errorf("create income: %w", err)
	}
	s.changed(ctx, userID, in.BudgetID, KindIncome, applog.OpCreate)
	return in, nil
}

func (s *BudgetService) GetIncome(ctx context.Context, userID, incomeID int64) (core.Income, error) {
	in, err := s.repo.GetIncomeForUser(ctx, incomeID, userID)
	if err != nil {
		return core.Income{}, lookup("get income", err)
	}
	return in, nil
}

// UpdateIncome replaces the editable fields of an income; its budget stays.
func (s *BudgetService) UpdateIncome(ctx context.Context, userID int64, in core.Income) (core.Income, error) {
	existing, err := s.GetIncome(ctx, userID, in.ID)
	if err != nil {
		return core.Income{}, err
	}
	in.BudgetID = existing.BudgetID
	in.Name = strings.TrimSpace(in.Name)
	if err := in.Validate(); err != nil {
		return core.Income{}, err
	}
	if err := s.repo.UpdateIncome(ctx, in); err != nil {
		return core.Income{}, fmt.Errorf("update income: %w", err)
	}
	s.changed(ctx, userID, in.BudgetID, KindIncome, applog.OpUpdate)
	return in, nil
}

func (s *BudgetService) DeleteIncome(ctx context.Context, userID, incomeID int64) (int64, error) {
	in, err := s.GetIncome(ctx, userID, incomeID)
	if err != nil {
		return 0, err
	}
	if err := s.repo.DeleteIncome(ctx, incomeID); err != nil {
		return in.BudgetID, fmt.Errorf("delete income: %w", err)
	}
	s.changed(ctx, userID, in.BudgetID, KindIncome, applog.OpDelete)
	return in.BudgetID, nil
}

// Transactions

// categoryInBudget checks that the category is owned by userID and sits in budgetID.
func (s *BudgetService) categoryInBudget(ctx context.Context, userID, budgetID, categoryID int64) (core.Category, error) {
	if categoryID <= 0 {
		return core.Category{}, core.ErrMissingCategory
	}
	c, err := s.GetCategory(ctx, userID, categoryID)
	if err != nil {
		return core.Category{}, err
	}
	if c.BudgetID != budgetID {
		return core.Category{}, ErrNotFound
	}
	return c, nil
}

// CreateTransaction records a transaction. With Expense set the amount is
// stored as -|amount|; otherwise the typed sign is kept.
func (s *BudgetService) CreateTransaction(ctx context.Context, userID int64, in TransactionInput) (core.Transaction, error) {
	if _, err := s.GetBudget(ctx, userID, in.BudgetID); err != nil {
		return core.Transaction{}, err
	}
	c, err := s.categoryInBudget(ctx, userID, in.BudgetID, in.CategoryID)
	if err != nil {
		return core.Transaction{}, err
	}

	amount := in.Amount
	if in.Expense {
		amount = amount.Abs().Neg()
	}
	t := core.Transaction{
		BudgetID:     in.BudgetID,
		Date:         in.Date,
		Payee:        strings.TrimSpace(in.Payee),
		CategoryID:   c.ID,
		CategoryName: c.Name,
		Amount:       amount,
		Memo:         strings.TrimSpace(in.Memo),
	}
	if err := t.Validate(); err != nil {
		return core.Transaction{}, err
	}

	t, err = s.repo.CreateTransaction(ctx, t)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("create transaction: %w", err)
	}
	s.changed(ctx, userID, t.BudgetID, KindTransaction, applog.OpCreate)
	return t, nil
}

func (s *BudgetService) GetTransaction(ctx context.Context, userID, transactionID int64) (core.Transaction, error) {
	t, err := s.repo.GetTransactionForUser(ctx, transactionID, userID)
	if err != nil {
		return core.Transaction{}, lookup("get transaction", err)
	}
	return t, nil
}

// UpdateTransaction edits a transaction in place. The amount becomes
// -|amount| with Expense set and +|amount| without it.
func (s *BudgetService) UpdateTransaction(ctx context.Context, userID, transactionID int64, in TransactionInput) (core.Transaction, error) {
	existing, err := s.GetTransaction(ctx, userID, transactionID)
	if err != nil {
		return core.Transaction{}, err
	}
	c, err := s.categoryInBudget(ctx, userID, existing.BudgetID, in.CategoryID)
	if err != nil {
		return core.Transaction{}, err
	}

	amount := in.Amount.Abs()
	if in.Expense {
		amount = amount.Neg()
	}
	t := core.Transaction{
		ID:           existing.ID,
		BudgetID:     existing.BudgetID,
		Date:         in.Date,
		Payee:        strings.TrimSpace(in.Payee),
		CategoryID:   c.ID,
		CategoryName: c.Name,
		Amount:       amount,
		Memo:         strings.TrimSpace(in.Memo),
	}
	if err := t.Validate(); err != nil {
		return core.Transaction{}, err
	}
	if err := s.repo.UpdateTransaction(ctx, t); err != nil {
		return core.Transaction{}, fmt.Errorf("update transaction: %w", err)
	}
	s.changed(ctx, userID, t.BudgetID, KindTransaction, applog.OpUpdate)
	return t, nil
}

func (s *BudgetService) DeleteTransaction(ctx context.Context, userID, transactionID int64) (int64, error) {
	t, err := s.GetTransaction(ctx, userID, transactionID)
	if err != nil {
		return 0, err
	}
	if err := s.repo.DeleteTransaction(ctx, transactionID); err != nil {
		return t.BudgetID, fmt.Errorf("delete transaction: %w", err)
	}
	s.changed(ctx, userID, t.BudgetID, KindTransaction, applog.OpDelete)
	return t.BudgetID, nil
}

// IsValidationError reports whether err is a domain rule violation that
// should be shown to the user rather than logged as a failure.
func IsValidationError(err error) bool {
	for _, target := range []error{
		core.ErrEmptyName, core.ErrNameTooLong, core.ErrNegativeAllocation,
		core.ErrInvalidFrequency, core.ErrInvalidAmount,
		core.ErrEmptyPayee, core.ErrMissingCategory, core.ErrMissingBudget,
		core.ErrInvalidDate, core.ErrEndBeforeStart, core.ErrMemoTooLong,
		core.ErrEmptyUsername, core.ErrShortPassword,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
