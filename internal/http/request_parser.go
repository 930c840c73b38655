// Package http provides HTTP server and handler implementations.
//
// This file turns submitted forms into domain values. Parsing failures are
// reported with the same sentinel errors the domain uses, so handlers can
// flash them without telling malformed input and rule violations apart.

package http

import (
	"errors"
	"net/url"
	"strconv"
	"strings"

	"budget/internal/core"
	"budget/internal/services"

	"github.com/shopspring/decimal"
)

var errInvalidID = errors.New("invalid id")

// parseID parses a positive database id.
func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || id <= 0 {
		return 0, errInvalidID
	}
	return id, nil
}

// formString returns a trimmed, control-character free form value.
func formString(form url.Values, key string) string {
	return sanitizeInput(form.Get(key))
}

// checked reports whether an HTML checkbox was ticked.
func checked(form url.Values, key string) bool {
	v := strings.ToLower(strings.TrimSpace(form.Get(key)))
	return v == "on" || v == "true" || v == "1"
}

// ParseTransactionForm reads the add/edit transaction form. BudgetID is
// only present on the add form.
func ParseTransactionForm(form url.Values) (services.TransactionInput, error) {
	var in services.TransactionInput

	if v := formString(form, "budget_id"); v != "" {
		id, err := parseID(v)
		if err != nil {
			return in, core.ErrMissingBudget
		}
		in.BudgetID = id
	}

	date, err := core.ParseDate(form.Get("date"))
	if err != nil {
		return in, err
	}
	in.Date = date

	in.Payee = formString(form, "payee")
	if in.Payee == "" {
		return in, core.ErrEmptyPayee
	}

	categoryID, err := parseID(form.Get("category_id"))
	if err != nil {
		return in, core.ErrMissingCategory
	}
	in.CategoryID = categoryID

	amount, err := core.ParseAmount(form.Get("amount"))
	if err != nil {
		return in, err
	}
	in.Amount = amount
	in.Memo = formString(form, "memo")
	in.Expense = checked(form, "expense")
	return in, nil
}

// CategoryForm is the add/edit category form.
type CategoryForm struct {
	BudgetID  int64
	Name      string
	Allocated decimal.Decimal
}

func ParseCategoryForm(form url.Values) (CategoryForm, error) {
	var f CategoryForm

	if v := formString(form, "budget_id"); v != "" {
		id, err := parseID(v)
		if err != nil {
			return f, core.ErrMissingBudget
		}
		f.BudgetID = id
	}

	f.Name = formString(form, "name")
	if f.Name == "" {
		return f, core.ErrEmptyName
	}

	raw := form.Get("budget_amount")
	if strings.TrimSpace(raw) == "" {
		f.Allocated = decimal.Zero
		return f, nil
	}
	allocated, err := core.ParseAllocation(raw)
	if err != nil {
		return f, err
	}
	f.Allocated = allocated
	return f, nil
}

// ParseIncomeForm reads the add/edit income form. An empty end_date leaves
// the end date unset.
func ParseIncomeForm(form url.Values) (core.Income, error) {
	var in core.Income

	if v := formString(form, "budget_id"); v != "" {
		id, err := parseID(v)
		if err != nil {
			return in, core.ErrMissingBudget
		}
		in.BudgetID = id
	}

	in.Name = formString(form, "name")
	if in.Name == "" {
		return in, core.ErrEmptyName
	}

	amount, err := core.ParseAmount(form.Get("amount"))
	if err != nil {
		return in, err
	}
	in.Amount = amount

	in.Frequency = core.Frequency(strings.ToLower(formString(form, "frequency")))
	if !in.Frequency.Valid() {
		return in, core.ErrInvalidFrequency
	}

	start, err := core.ParseDate(form.Get("start_date"))
	if err != nil {
		return in, err
	}
	in.StartDate = start

	if v := formString(form, "end_date"); v != "" {
		end, err := core.ParseDate(v)
		if err != nil {
			return in, err
		}
		in.EndDate = end
	}
	return in, nil
}

const allocationPrefix = "budget_"

// ParseAllocations collects every budget_<categoryID> field of the
// update_budget form. budget_id itself is not an allocation.
func ParseAllocations(form url.Values) (map[int64]decimal.Decimal, error) {
	out := make(map[int64]decimal.Decimal)
	for key := range form {
		if !strings.HasPrefix(key, allocationPrefix) || key == "budget_id" {
			continue
		}
		id, err := parseID(strings.TrimPrefix(key, allocationPrefix))
		if err != nil {
			continue
		}
		amount, err := core.ParseAllocation(form.Get(key))
		if err != nil {
			return nil, err
		}
		out[id] = amount
	}
	return out, nil
}
