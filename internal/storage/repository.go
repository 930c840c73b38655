package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"budget/internal/core"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("record already exists")
)

type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{
		db:      db,
		queries: New(db),
	}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database is reachable.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// wrap maps driver errors onto the package sentinels.
func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	if strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return fmt.Errorf("%s: %w", op, ErrDuplicate)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// Users

func (r *SQLiteRepository) CreateUser(ctx context.Context, username, passwordHash string) (core.User, error) {
	id, err := r.queries.CreateUser(ctx, username, passwordHash)
	if err != nil {
		return core.User{}, wrap("create user", err)
	}
	slog.InfoContext(ctx, "User created", "user_id", id, "username", username)
	return core.User{ID: id, Username: username, PasswordHash: passwordHash}, nil
}

func (r *SQLiteRepository) GetUserByUsername(ctx context.Context, username string) (core.User, error) {
	u, err := r.queries.GetUserByUsername(ctx, username)
	if err != nil {
		return core.User{}, wrap("get user by username", err)
	}
	return core.User(u), nil
}

func (r *SQLiteRepository) GetUser(ctx context.Context, id int64) (core.User, error) {
	u, err := r.queries.GetUser(ctx, id)
	if err != nil {
		return core.User{}, wrap("get user", err)
	}
	return core.User(u), nil
}

func (r *SQLiteRepository) CountUsers(ctx context.Context) (int64, error) {
	n, err := r.queries.CountUsers(ctx)
	return n, wrap("count users", err)
}

// Budgets

func (r *SQLiteRepository) CreateBudget(ctx context.Context, userID int64, name string) (core.Budget, error) {
	id, err := r.queries.CreateBudget(ctx, userID, name)
	if err != nil {
		return core.Budget{}, wrap("create budget", err)
	}
	slog.InfoContext(ctx, "Budget created", "budget_id", id, "user_id", userID)
	return core.Budget{ID: id, UserID: userID, Name: name}, nil
}

func (r *SQLiteRepository) ListBudgets(ctx context.Context, userID int64) ([]core.Budget, error) {
	rows, err := r.queries.ListBudgets(ctx, userID)
	if err != nil {
		return nil, wrap("list budgets", err)
	}
	budgets := make([]core.Budget, len(rows))
	for i, b := range rows {
		budgets[i] = core.Budget(b)
	}
	return budgets, nil
}

// ListAllBudgetIDs returns every budget id regardless of owner. Used by the
// export worker and the admin CLI.
func (r *SQLiteRepository) ListAllBudgetIDs(ctx context.Context) ([]int64, error) {
	ids, err := r.queries.ListAllBudgetIDs(ctx)
	return ids, wrap("list budget ids", err)
}

func (r *SQLiteRepository) GetBudget(ctx context.Context, id int64) (core.Budget, error) {
	b, err := r.queries.GetBudget(ctx, id)
	if err != nil {
		return core.Budget{}, wrap("get budget", err)
	}
	return core.Budget(b), nil
}

func (r *SQLiteRepository) GetBudgetForUser(ctx context.Context, id, userID int64) (core.Budget, error) {
	b, err := r.queries.GetBudgetForUser(ctx, id, userID)
	if err != nil {
		return core.Budget{}, wrap("get budget", err)
	}
	return core.Budget(b), nil
}

func (r *SQLiteRepository) RenameBudget(ctx context.Context, id, userID int64, name string) error {
	n, err := r.queries.RenameBudget(ctx, id, userID, name)
	if err != nil {
		return wrap("rename budget", err)
	}
	if n == 0 {
		return fmt.Errorf("rename budget: %w", ErrNotFound)
	}
	return nil
}

// Categories

func (r *SQLiteRepository) CreateCategory(ctx context.Context, c core.Category) (core.Category, error) {
	id, err := r.queries.CreateCategory(ctx, c.BudgetID, c.Name, c.Allocated.String())
	if err != nil {
		return core.Category{}, wrap("create category", err)
	}
	c.ID = id
	slog.InfoContext(ctx, "Category created", "category_id", id, "budget_id", c.BudgetID)
	return c, nil
}

func (r *SQLiteRepository) GetCategoryForUser(ctx context.Context, id, userID int64) (core.Category, error) {
	row, err := r.queries.GetCategoryForUser(ctx, id, userID)
	if err != nil {
		return core.Category{}, wrap("get category", err)
	}
	return toCategory(row)
}

func (r *SQLiteRepository) ListCategories(ctx context.Context, budgetID int64) ([]core.Category, error) {
	rows, err := r.queries.ListCategories(ctx, budgetID)
	if err != nil {
		return nil, wrap("list categories", err)
	}
	categories := make([]core.Category, 0, len(rows))
	for _, row := range rows {
		c, err := toCategory(row)
		if err != nil {
			return nil, err
		}
		categories = append(categories, c)
	}
	return categories, nil
}

func (r *SQLiteRepository) UpdateCategory(ctx context.Context, c core.Category) error {
	return wrap("update category", r.queries.UpdateCategory(ctx, c.ID, c.Name, c.Allocated.String()))
}

// UpdateCategoryAllocations sets the allocations of categories of budgetID
// in one transaction. Categories of other budgets are left alone and not
// counted. Any failure rolls back every update.
func (r *SQLiteRepository) UpdateCategoryAllocations(ctx context.Context, budgetID int64, amounts map[int64]decimal.Decimal) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, wrap("begin allocation update", err)
	}
	defer tx.Rollback()

	q := New(tx)
	updated := 0
	for id, amount := range amounts {
		n, err := q.UpdateCategoryAllocation(ctx, id, budgetID, amount.String())
		if err != nil {
			return 0, wrap(fmt.Sprintf("update allocation of category %d", id), err)
		}
		if n > 0 {
			updated++
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, wrap("commit allocation update", err)
	}
	return updated, nil
}

func (r *SQLiteRepository) CountCategoryTransactions(ctx context.Context, categoryID int64) (int64, error) {
	n, err := r.queries.CountCategoryTransactions(ctx, categoryID)
	return n, wrap("count category transactions", err)
}

func (r *SQLiteRepository) DeleteCategory(ctx context.Context, id int64) error {
	if err := r.queries.DeleteCategory(ctx, id); err != nil {
		return wrap("delete category", err)
	}
	slog.InfoContext(ctx, "Category deleted", "category_id", id)
	return nil
}

// Incomes

func (r *SQLiteRepository) CreateIncome(ctx context.Context, in core.Income) (core.Income, error) {
	id, err := r.queries.CreateIncome(ctx, fromIncome(in))
	if err != nil {
		return core.Income{}, wrap("create income", err)
	}
	in.ID = id
	slog.InfoContext(ctx, "Income created", "income_id", id, "budget_id", in.BudgetID)
	return in, nil
}

func (r *SQLiteRepository) GetIncomeForUser(ctx context.Context, id, userID int64) (core.Income, error) {
	row, err := r.queries.GetIncomeForUser(ctx, id, userID)
	if err != nil {
		return core.Income{}, wrap("get income", err)
	}
	return toIncome(row)
}

func (r *SQLiteRepository) ListIncomes(ctx context.Context, budgetID int64) ([]core.Income, error) {
	rows, err := r.queries.ListIncomes(ctx, budgetID)
	if err != nil {
		return nil, wrap("list incomes", err)
	}
	incomes := make([]core.Income, 0, len(rows))
	for _, row := range rows {
		in, err := toIncome(row)
		if err != nil {
			return nil, err
		}
		incomes = append(incomes, in)
	}
	return incomes, nil
}

func (r *SQLiteRepository) UpdateIncome(ctx context.Context, in core.Income) error {
	return wrap("update income", r.queries.UpdateIncome(ctx, fromIncome(in)))
}

func (r *SQLiteRepository) DeleteIncome(ctx context.Context, id int64) error {
	if err := r.queries.DeleteIncome(ctx, id); err != nil {
		return wrap("delete income", err)
	}
	slog.InfoContext(ctx, "Income deleted", "income_id", id)
	return nil
}

// Transactions

func (r *SQLiteRepository) CreateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	id, err := r.queries.CreateTransaction(ctx, fromTransaction(t))
	if err != nil {
		return core.Transaction{}, wrap("create transaction", err)
	}
	t.ID = id
	slog.InfoContext(ctx, "Transaction saved to SQLite",
		"transaction_id", id,
		"budget_id", t.BudgetID,
		"category_id", t.CategoryID,
		"amount", t.Amount.String())
	return t, nil
}

func (r *SQLiteRepository) GetTransactionForUser(ctx context.Context, id, userID int64) (core.Transaction, error) {
	row, err := r.queries.GetTransactionForUser(ctx, id, userID)
	if err != nil {
		return core.Transaction{}, wrap("get transaction", err)
	}
	return toTransaction(row)
}

func (r *SQLiteRepository) ListTransactions(ctx context.Context, budgetID int64) ([]core.Transaction, error) {
	rows, err := r.queries.ListTransactions(ctx, budgetID)
	if err != nil {
		return nil, wrap("list transactions", err)
	}
	transactions := make([]core.Transaction, 0, len(rows))
	for _, row := range rows {
		t, err := toTransaction(row)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, t)
	}
	return transactions, nil
}

func (r *SQLiteRepository) UpdateTransaction(ctx context.Context, t core.Transaction) error {
	return wrap("update transaction", r.queries.UpdateTransaction(ctx, fromTransaction(t)))
}

func (r *SQLiteRepository) DeleteTransaction(ctx context.Context, id int64) error {
	if err := r.queries.DeleteTransaction(ctx, id); err != nil {
		return wrap("delete transaction", err)
	}
	slog.InfoContext(ctx, "Transaction deleted", "transaction_id", id)
	return nil
}

// Sessions

type SessionRecord struct {
	Token     string
	UserID    int64
	Username  string
	ExpiresAt time.Time
}

func (r *SQLiteRepository) CreateSession(ctx context.Context, s SessionRecord) error {
	return wrap("create session", r.queries.CreateSession(ctx, Session{
		Token:     s.Token,
		UserID:    s.UserID,
		Username:  s.Username,
		ExpiresAt: s.ExpiresAt.Unix(),
	}))
}

// GetSession returns the session for token if it has not expired at now.
func (r *SQLiteRepository) GetSession(ctx context.Context, token string, now time.Time) (SessionRecord, error) {
	s, err := r.queries.GetSession(ctx, token, now.Unix())
	if err != nil {
		return SessionRecord{}, wrap("get session", err)
	}
	return SessionRecord{
		Token:     s.Token,
		UserID:    s.UserID,
		Username:  s.Username,
		ExpiresAt: time.Unix(s.ExpiresAt, 0),
	}, nil
}

func (r *SQLiteRepository) DeleteSession(ctx context.Context, token string) error {
	return wrap("delete session", r.queries.DeleteSession(ctx, token))
}

func (r *SQLiteRepository) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	n, err := r.queries.DeleteExpiredSessions(ctx, now.Unix())
	return n, wrap("delete expired sessions", err)
}

// row conversion

func parseStoredDecimal(field, s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse stored %s %q: %w", field, s, err)
	}
	return d, nil
}

func parseStoredDate(field, s string) (core.Date, error) {
	d, err := core.ParseDate(s)
	if err != nil {
		return core.Date{}, fmt.Errorf("parse stored %s %q: %w", field, s, err)
	}
	return d, nil
}

func toCategory(row Category) (core.Category, error) {
	amount, err := parseStoredDecimal("budget_amount", row.BudgetAmount)
	if err != nil {
		return core.Category{}, err
	}
	return core.Category{
		ID:        row.ID,
		BudgetID:  row.BudgetID,
		Name:      row.Name,
		Allocated: amount,
	}, nil
}

func toIncome(row Income) (core.Income, error) {
	amount, err := parseStoredDecimal("income amount", row.Amount)
	if err != nil {
		return core.Income{}, err
	}
	start, err := parseStoredDate("start_date", row.StartDate)
	if err != nil {
		return core.Income{}, err
	}
	in := core.Income{
		ID:        row.ID,
		BudgetID:  row.BudgetID,
		Name:      row.Name,
		Amount:    amount,
		Frequency: core.Frequency(row.Frequency),
		StartDate: start,
	}
	if row.EndDate.Valid && row.EndDate.String != "" {
		end, err := parseStoredDate("end_date", row.EndDate.String)
		if err != nil {
			return core.Income{}, err
		}
		in.EndDate = end
	}
	return in, nil
}

func fromIncome(in core.Income) Income {
	return Income{
		ID:        in.ID,
		BudgetID:  in.BudgetID,
		Name:      in.Name,
		Amount:    in.Amount.String(),
		Frequency: string(in.Frequency),
		StartDate: in.StartDate.String(),
		EndDate:   sql.NullString{String: in.EndDate.String(), Valid: !in.EndDate.IsZero()},
	}
}

func toTransaction(row Transaction) (core.Transaction, error) {
	amount, err := parseStoredDecimal("transaction amount", row.Amount)
	if err != nil {
		return core.Transaction{}, err
	}
	date, err := parseStoredDate("transaction date", row.Date)
	if err != nil {
		return core.Transaction{}, err
	}
	return core.Transaction{
		ID:           row.ID,
		BudgetID:     row.BudgetID,
		Date:         date,
		Payee:        row.Payee,
		CategoryID:   row.CategoryID,
		CategoryName: row.CategoryName,
		Amount:       amount,
		Memo:         row.Memo.String,
	}, nil
}

func fromTransaction(t core.Transaction) Transaction {
	return Transaction{
		ID:         t.ID,
		BudgetID:   t.BudgetID,
		Date:       t.Date.String(),
		Payee:      t.Payee,
		CategoryID: t.CategoryID,
		Amount:     t.Amount.String(),
		Memo:       sql.NullString{String: t.Memo, Valid: t.Memo != ""},
	}
}
