package storage

import (
	"context"
	"database/sql"
)

// DBTX is satisfied by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

// Queries holds the raw SQL of the repository. Amounts and dates travel as
// text; conversion to domain types happens in SQLiteRepository.
type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

type User struct {
	ID           int64
	Username     string
	PasswordHash string
}

type Budget struct {
	ID     int64
	UserID int64
	Name   string
}

type Category struct {
	ID           int64
	BudgetID     int64
	Name         string
	BudgetAmount string
}

type Income struct {
	ID        int64
	BudgetID  int64
	Name      string
	Amount    string
	Frequency string
	StartDate string
	EndDate   sql.NullString
}

type Transaction struct {
	ID           int64
	BudgetID     int64
	Date         string
	Payee        string
	CategoryID   int64
	CategoryName string
	Amount       string
	Memo         sql.NullString
}

type Session struct {
	Token     string
	UserID    int64
	Username  string
	ExpiresAt int64
}

// users

const createUser = `INSERT INTO users (username, password_hash) VALUES (?, ?) RETURNING id`

func (q *Queries) CreateUser(ctx context.Context, username, passwordHash string) (int64, error) {
	var id int64
	err := q.db.QueryRowContext(ctx, createUser, username, passwordHash).Scan(&id)
	return id, err
}

const getUserByUsername = `SELECT id, username, password_hash FROM users WHERE username = ?`

func (q *Queries) GetUserByUsername(ctx context.Context, username string) (User, error) {
	var u User
	err := q.db.QueryRowContext(ctx, getUserByUsername, username).Scan(&u.ID, &u.Username, &u.PasswordHash)
	return u, err
}

const getUser = `SELECT id, username, password_hash FROM users WHERE id = ?`

func (q *Queries) GetUser(ctx context.Context, id int64) (User, error) {
	var u User
	err := q.db.QueryRowContext(ctx, getUser, id).Scan(&u.ID, &u.Username, &u.PasswordHash)
	return u, err
}

const countUsers = `SELECT COUNT(*) FROM users`

func (q *Queries) CountUsers(ctx context.Context) (int64, error) {
	var n int64
	err := q.db.QueryRowContext(ctx, countUsers).Scan(&n)
	return n, err
}

// budgets

const createBudget = `INSERT INTO budgets (user_id, name) VALUES (?, ?) RETURNING id`

func (q *Queries) CreateBudget(ctx context.Context, userID int64, name string) (int64, error) {
	var id int64
	err := q.db.QueryRowContext(ctx, createBudget, userID, name).Scan(&id)
	return id, err
}

const listBudgets = `SELECT id, user_id, name FROM budgets WHERE user_id = ? ORDER BY id`

func (q *Queries) ListBudgets(ctx context.Context, userID int64) ([]Budget, error) {
	rows, err := q.db.QueryContext(ctx, listBudgets, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Budget
	for rows.Next() {
		var b Budget
		if err := rows.Scan(&b.ID, &b.UserID, &b.Name); err != nil {
			return nil, err
		}
		items = append(items, b)
	}
	return items, rows.Err()
}

const listAllBudgetIDs = `SELECT id FROM budgets ORDER BY id`

func (q *Queries) ListAllBudgetIDs(ctx context.Context) ([]int64, error) {
	rows, err := q.db.QueryContext(ctx, listAllBudgetIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

const getBudget = `SELECT id, user_id, name FROM budgets WHERE id = ?`

func (q *Queries) GetBudget(ctx context.Context, id int64) (Budget, error) {
	var b Budget
	err := q.db.QueryRowContext(ctx, getBudget, id).Scan(&b.ID, &b.UserID, &b.Name)
	return b, err
}

const getBudgetForUser = `SELECT id, user_id, name FROM budgets WHERE id = ? AND user_id = ?`

func (q *Queries) GetBudgetForUser(ctx context.Context, id, userID int64) (Budget, error) {
	var b Budget
	err := q.db.QueryRowContext(ctx, getBudgetForUser, id, userID).Scan(&b.ID, &b.UserID, &b.Name)
	return b, err
}

const renameBudget = `UPDATE budgets SET name = ? WHERE id = ? AND user_id = ?`

func (q *Queries) RenameBudget(ctx context.Context, id, userID int64, name string) (int64, error) {
	res, err := q.db.ExecContext(ctx, renameBudget, name, id, userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// categories

const createCategory = `INSERT INTO categories (budget_id, name, budget_amount) VALUES (?, ?, ?) RETURNING id`

func (q *Queries) CreateCategory(ctx context.Context, budgetID int64, name, amount string) (int64, error) {
	var id int64
	err := q.db.QueryRowContext(ctx, createCategory, budgetID, name, amount).Scan(&id)
	return id, err
}

const getCategoryForUser = `
SELECT c.id, c.budget_id, c.name, c.budget_amount
FROM categories c
JOIN budgets b ON c.budget_id = b.id
WHERE c.id = ? AND b.user_id = ?`

func (q *Queries) GetCategoryForUser(ctx context.Context, id, userID int64) (Category, error) {
	var c Category
	err := q.db.QueryRowContext(ctx, getCategoryForUser, id, userID).Scan(&c.ID, &c.BudgetID, &c.Name, &c.BudgetAmount)
	return c, err
}

const listCategories = `SELECT id, budget_id, name, budget_amount FROM categories WHERE budget_id = ? ORDER BY name, id`

func (q *Queries) ListCategories(ctx context.Context, budgetID int64) ([]Category, error) {
	rows, err := q.db.QueryContext(ctx, listCategories, budgetID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Category
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.BudgetID, &c.Name, &c.BudgetAmount); err != nil {
			return nil, err
		}
		items = append(items, c)
	}
	return items, rows.Err()
}

const updateCategory = `UPDATE categories SET name = ?, budget_amount = ? WHERE id = ?`

func (q *Queries) UpdateCategory(ctx context.Context, id int64, name, amount string) error {
	_, err := q.db.ExecContext(ctx, updateCategory, name, amount, id)
	return err
}

const updateCategoryAllocation = `UPDATE categories SET budget_amount = ? WHERE id = ? AND budget_id = ?`

func (q *Queries) UpdateCategoryAllocation(ctx context.Context, id, budgetID int64, amount string) (int64, error) {
	res, err := q.db.ExecContext(ctx, updateCategoryAllocation, amount, id, budgetID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const countCategoryTransactions = `SELECT COUNT(*) FROM transactions WHERE category_id = ?`

func (q *Queries) CountCategoryTransactions(ctx context.Context, categoryID int64) (int64, error) {
	var n int64
	err := q.db.QueryRowContext(ctx, countCategoryTransactions, categoryID).Scan(&n)
	return n, err
}

const deleteCategory = `DELETE FROM categories WHERE id = ?`

func (q *Queries) DeleteCategory(ctx context.Context, id int64) error {
	_, err := q.db.ExecContext(ctx, deleteCategory, id)
	return err
}

// incomes

const createIncome = `
INSERT INTO incomes (budget_id, name, amount, frequency, start_date, end_date)
VALUES (?, ?, ?, ?, ?, ?) RETURNING id`

func (q *Queries) CreateIncome(ctx context.Context, in Income) (int64, error) {
	var id int64
	err := q.db.QueryRowContext(ctx, createIncome,
		in.BudgetID, in.Name, in.Amount, in.Frequency, in.StartDate, in.EndDate).Scan(&id)
	return id, err
}

const getIncomeForUser = `
SELECT i.id, i.budget_id, i.name, i.amount, i.frequency, i.start_date, i.end_date
FROM incomes i
JOIN budgets b ON i.budget_id = b.id
WHERE i.id = ? AND b.user_id = ?`

func (q *Queries) GetIncomeForUser(ctx context.Context, id, userID int64) (Income, error) {
	var i Income
	err := q.db.QueryRowContext(ctx, getIncomeForUser, id, userID).Scan(
		&i.ID, &i.BudgetID, &i.Name, &i.Amount, &i.Frequency, &i.StartDate, &i.EndDate)
	return i, err
}

const listIncomes = `
SELECT id, budget_id, name, amount, frequency, start_date, end_date
FROM incomes WHERE budget_id = ? ORDER BY start_date DESC, id DESC`

func (q *Queries) ListIncomes(ctx context.Context, budgetID int64) ([]Income, error) {
	rows, err := q.db.QueryContext(ctx, listIncomes, budgetID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Income
	for rows.Next() {
		var i Income
		if err := rows.Scan(&i.ID, &i.BudgetID, &i.Name, &i.Amount, &i.Frequency, &i.StartDate, &i.EndDate); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

const updateIncome = `
UPDATE incomes SET name = ?, amount = ?, frequency = ?, start_date = ?, end_date = ?
WHERE id = ?`

func (q *Queries) UpdateIncome(ctx context.Context, in Income) error {
	_, err := q.db.ExecContext(ctx, updateIncome,
		in.Name, in.Amount, in.Frequency, in.StartDate, in.EndDate, in.ID)
	return err
}

const deleteIncome = `DELETE FROM incomes WHERE id = ?`

func (q *Queries) DeleteIncome(ctx context.Context, id int64) error {
	_, err := q.db.ExecContext(ctx, deleteIncome, id)
	return err
}

// transactions

const createTransaction = `
INSERT INTO transactions (budget_id, date, payee, category_id, amount, memo)
VALUES (?, ?, ?, ?, ?, ?) RETURNING id`

func (q *Queries) CreateTransaction(ctx context.Context, t Transaction) (int64, error) {
	var id int64
	err := q.db.QueryRowContext(ctx, createTransaction,
		t.BudgetID, t.Date, t.Payee, t.CategoryID, t.Amount, t.Memo).Scan(&id)
	return id, err
}

const getTransactionForUser = `
SELECT t.id, t.budget_id, t.date, t.payee, t.category_id, c.name, t.amount, t.memo
FROM transactions t
JOIN budgets b ON t.budget_id = b.id
JOIN categories c ON t.category_id = c.id
WHERE t.id = ? AND b.user_id = ?`

func (q *Queries) GetTransactionForUser(ctx context.Context, id, userID int64) (Transaction, error) {
	var t Transaction
	err := q.db.QueryRowContext(ctx, getTransactionForUser, id, userID).Scan(
		&t.ID, &t.BudgetID, &t.Date, &t.Payee, &t.CategoryID, &t.CategoryName, &t.Amount, &t.Memo)
	return t, err
}

const listTransactions = `
SELECT t.id, t.budget_id, t.date, t.payee, t.category_id, c.name, t.amount, t.memo
FROM transactions t
JOIN categories c ON t.category_id = c.id
WHERE t.budget_id = ?
ORDER BY t.date DESC, t.id DESC`

func (q *Queries) ListTransactions(ctx context.Context, budgetID int64) ([]Transaction, error) {
	rows, err := q.db.QueryContext(ctx, listTransactions, budgetID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Transaction
	for rows.Next() {
		var t Transaction
		if err := rows.Scan(&t.ID, &t.BudgetID, &t.Date, &t.Payee, &t.CategoryID, &t.CategoryName, &t.Amount, &t.Memo); err != nil {
			return nil, err
		}
		items = append(items, t)
	}
	return items, rows.Err()
}

const updateTransaction = `
UPDATE transactions SET date = ?, payee = ?, category_id = ?, amount = ?, memo = ?
WHERE id = ?`

func (q *Queries) UpdateTransaction(ctx context.Context, t Transaction) error {
	_, err := q.db.ExecContext(ctx, updateTransaction,
		t.Date, t.Payee, t.CategoryID, t.Amount, t.Memo, t.ID)
	return err
}

const deleteTransaction = `DELETE FROM transactions WHERE id = ?`

func (q *Queries) DeleteTransaction(ctx context.Context, id int64) error {
	_, err := q.db.ExecContext(ctx, deleteTransaction, id)
	return err
}

// sessions

const createSession = `INSERT INTO sessions (token, user_id, username, expires_at) VALUES (?, ?, ?, ?)`

func (q *Queries) CreateSession(ctx context.Context, s Session) error {
	_, err := q.db.ExecContext(ctx, createSession, s.Token, s.UserID, s.Username, s.ExpiresAt)
	return err
}

const getSession = `SELECT token, user_id, username, expires_at FROM sessions WHERE token = ? AND expires_at > ?`

func (q *Queries) GetSession(ctx context.Context, token string, now int64) (Session, error) {
	var s Session
	err := q.db.QueryRowContext(ctx, getSession, token, now).Scan(&s.Token, &s.UserID, &s.Username, &s.ExpiresAt)
	return s, err
}

const deleteSession = `DELETE FROM sessions WHERE token = ?`

func (q *Queries) DeleteSession(ctx context.Context, token string) error {
	_, err := q.db.ExecContext(ctx, deleteSession, token)
	return err
}

const deleteExpiredSessions = `DELETE FROM sessions WHERE expires_at <= ?`

func (q *Queries) DeleteExpiredSessions(ctx context.Context, now int64) (int64, error) {
	res, err := q.db.ExecContext(ctx, deleteExpiredSessions, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
