package core

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	Monthly  Frequency = "monthly"
	BiWeekly Frequency = "bi-weekly"
	Weekly   Frequency = "weekly"
	Yearly   Frequency = "yearly"
	Once     Frequency = "once"
)

// Frequencies lists the supported income frequencies in display order.
var Frequencies = []Frequency{Monthly, BiWeekly, Weekly, Yearly, Once}

const (
	maxNameLength = 100
	maxMemoLength = 500
	minPassword   = 4
)

type (
	Frequency string

	Date struct {
		time.Time
	}

	User struct {
		ID           int64
		Username     string
		PasswordHash string
	}

	Budget struct {
		ID     int64
		UserID int64
		Name   string
	}

	Category struct {
		ID        int64
		BudgetID  int64
		Name      string
		Allocated decimal.Decimal // monthly allocation
	}

	Income struct {
		ID        int64
		BudgetID  int64
		Name      string
		Amount    decimal.Decimal
		Frequency Frequency
		StartDate Date
		EndDate   Date // optional, informational only
	}

	Transaction struct {
		ID           int64
		BudgetID     int64
		Date         Date
		Payee        string
		CategoryID   int64
		CategoryName string          // filled by joined reads
		Amount       decimal.Decimal // negative = expense, positive = credit
		Memo         string
	}
)

var (
	ErrEmptyName          = errors.New("name is required")
	ErrNameTooLong        = errors.New("name too long (max 100 characters)")
	ErrNegativeAllocation = errors.New("allocation cannot be negative")
	ErrInvalidFrequency   = errors.New("invalid income frequency")
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrEmptyPayee         = errors.New("payee is required")
	ErrMissingCategory    = errors.New("category is required")
	ErrMissingBudget      = errors.New("budget is required")
	ErrInvalidDate        = errors.New("invalid date")
	ErrEndBeforeStart     = errors.New("end date must not be before start date")
	ErrMemoTooLong        = errors.New("memo too long (max 500 characters)")
	ErrEmptyUsername      = errors.New("username is required")
	ErrShortPassword      = errors.New("password too short (min 4 characters)")
)

// Valid reports whether f is one of the supported frequencies.
func (f Frequency) Valid() bool {
	switch f {
	case Monthly, BiWeekly, Weekly, Yearly, Once:
		return true
	default:
		return false
	}
}

func (f Frequency) String() string {
	return string(f)
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses a date in YYYY-MM-DD format.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(time.DateOnly, strings.TrimSpace(s))
	if err != nil {
		return Date{}, ErrInvalidDate
	}
	return Date{Time: t}, nil
}

// String formats the date as YYYY-MM-DD, or "" for the zero date.
func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(time.DateOnly)
}

func (d Date) Validate() error {
	if d.IsZero() {
		return ErrInvalidDate
	}
	return nil
}

func validateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return ErrEmptyName
	}
	if len(name) > maxNameLength {
		return ErrNameTooLong
	}
	return nil
}

func (b Budget) Validate() error {
	return validateName(b.Name)
}

func (c Category) Validate() error {
	if c.BudgetID <= 0 {
		return ErrMissingBudget
	}
	if err := validateName(c.Name); err != nil {
		return err
	}
	if c.Allocated.IsNegative() {
		return ErrNegativeAllocation
	}
	return nil
}

func (i Income) Validate() error {
	if i.BudgetID <= 0 {
		return ErrMissingBudget
	}
	if err := validateName(i.Name); err != nil {
		return err
	}
	if !i.Frequency.Valid() {
		return ErrInvalidFrequency
	}
	if err := i.StartDate.Validate(); err != nil {
		return err
	}
	if !i.EndDate.IsZero() && i.EndDate.Before(i.StartDate.Time) {
		return ErrEndBeforeStart
	}
	return nil
}

func (t Transaction) Validate() error {
	if t.BudgetID <= 0 {
		return ErrMissingBudget
	}
	if err := t.Date.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(t.Payee) == "" {
		return ErrEmptyPayee
	}
	if len(t.Payee) > maxNameLength {
		return ErrNameTooLong
	}
	if t.CategoryID <= 0 {
		return ErrMissingCategory
	}
	if len(t.Memo) > maxMemoLength {
		return ErrMemoTooLong
	}
	return nil
}

// IsExpense reports whether the transaction debits its category.
func (t Transaction) IsExpense() bool {
	return t.Amount.IsNegative()
}

// ValidateCredentials checks the shape of a username/password pair before
// it reaches the credential store.
func ValidateCredentials(username, password string) error {
	if strings.TrimSpace(username) == "" {
		return ErrEmptyUsername
	}
	if len(username) > maxNameLength {
		return ErrNameTooLong
	}
	if len(password) < minPassword {
		return ErrShortPassword
	}
	return nil
}
