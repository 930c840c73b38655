package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"budget/internal/core"
	"budget/internal/storage"

	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound covers both missing rows and rows owned by another user.
	ErrNotFound           = errors.New("not found")
	ErrCategoryInUse      = errors.New("category has transactions")
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrUsernameTaken      = errors.New("username already exists")
	ErrNoSession          = errors.New("no active session")
)

// Change kinds carried by budget change events.
const (
	KindBudget      = "budget"
	KindCategory    = "category"
	KindAllocations = "allocations"
	KindIncome      = "income"
	KindTransaction = "transaction"
)

// Repository is the persistence surface the services need.
// *storage.SQLiteRepository implements it.
type Repository interface {
	CreateUser(ctx context.Context, username, passwordHash string) (core.User, error)
	GetUserByUsername(ctx context.Context, username string) (core.User, error)
	CountUsers(ctx context.Context) (int64, error)

	CreateBudget(ctx context.Context, userID int64, name string) (core.Budget, error)
	ListBudgets(ctx context.Context, userID int64) ([]core.Budget, error)
	ListAllBudgetIDs(ctx context.Context) ([]int64, error)
	GetBudget(ctx context.Context, id int64) (core.Budget, error)
	GetBudgetForUser(ctx context.Context, id, userID int64) (core.Budget, error)
	RenameBudget(ctx context.Context, id, userID int64, name string) error

	CreateCategory(ctx context.Context, c core.Category) (core.Category, error)
	GetCategoryForUser(ctx context.Context, id, userID int64) (core.Category, error)
	ListCategories(ctx context.Context, budgetID int64) ([]core.Category, error)
	UpdateCategory(ctx context.Context, c core.Category) error
	UpdateCategoryAllocations(ctx context.Context, budgetID int64, amounts map[int64]decimal.Decimal) (int, error)
	CountCategoryTransactions(ctx context.Context, categoryID int64) (int64, error)
	DeleteCategory(ctx context.Context, id int64) error

	CreateIncome(ctx context.Context, in core.Income) (core.Income, error)
	GetIncomeForUser(ctx context.Context, id, userID int64) (core.Income, error)
	ListIncomes(ctx context.Context, budgetID int64) ([]core.Income, error)
	UpdateIncome(ctx context.Context, in core.Income) error
	DeleteIncome(ctx context.Context, id int64) error

	CreateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error)
	GetTransactionForUser(ctx context.Context, id, userID int64) (core.Transaction, error)
	ListTransactions(ctx context.Context, budgetID int64) ([]core.Transaction, error)
	UpdateTransaction(ctx context.Context, t core.Transaction) error
	DeleteTransaction(ctx context.Context, id int64) error

	CreateSession(ctx context.Context, s storage.SessionRecord) error
	GetSession(ctx context.Context, token string, now time.Time) (storage.SessionRecord, error)
	DeleteSession(ctx context.Context, token string) error
	DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error)
}

// EventPublisher announces budget changes to other processes.
// *amqp.Client implements it.
type EventPublisher interface {
	PublishBudgetChanged(ctx context.Context, budgetID, userID int64, kind string) error
}

// lookup maps storage.ErrNotFound onto ErrNotFound and wraps anything else.
func lookup(op string, err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return ErrNotFound
	}
	return fmt.Errorf("%s: %w", op, err)
}
