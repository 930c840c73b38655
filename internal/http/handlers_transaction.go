package http

import (
	"net/http"
	"sync/atomic"

	"budget/internal/core"
	applog "budget/internal/log"

	"github.com/go-chi/chi/v5"
)

const msgTransactionNotFound = "Transaction not found"

func (s *Server) handleAddTransaction(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.fail(w, r, errInvalidID, "Budget not found", "/", applog.OpCreate)
		return
	}
	back := "/"
	if id, err := parseID(r.PostForm.Get("budget_id")); err == nil {
		back = budgetURL(id)
	}

	in, err := ParseTransactionForm(r.PostForm)
	if err != nil {
		s.fail(w, r, err, "Budget not found", back, applog.OpCreate)
		return
	}

	t, err := s.budgets.CreateTransaction(r.Context(), userID(r), in)
	if err != nil {
		s.fail(w, r, err, "Budget not found", back, applog.OpCreate)
		return
	}

	atomic.AddInt64(&s.appMetrics.transactions, 1)
	redirect(w, r, budgetURL(t.BudgetID))
}

type editTransactionView struct {
	Transaction core.Transaction
	Categories  []core.Category
	IsExpense   bool
}

func (s *Server) handleEditTransactionPage(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err, msgTransactionNotFound, "/", applog.OpRead)
		return
	}

	t, err := s.budgets.GetTransaction(r.Context(), userID(r), id)
	if err != nil {
		s.fail(w, r, err, msgTransactionNotFound, "/", applog.OpRead)
		return
	}
	view, err := s.budgets.Overview(r.Context(), userID(r), t.BudgetID)
	if err != nil {
		s.fail(w, r, err, msgTransactionNotFound, "/", applog.OpRead)
		return
	}

	s.render(w, r, "edit_transaction.html", "Edit transaction", editTransactionView{
		Transaction: t,
		Categories:  view.Categories,
		IsExpense:   t.IsExpense(),
	})
}

func (s *Server) handleEditTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err, msgTransactionNotFound, "/", applog.OpUpdate)
		return
	}
	back := "/edit_transaction/" + chi.URLParam(r, "id")

	if err := r.ParseForm(); err != nil {
		s.fail(w, r, core.ErrInvalidAmount, msgTransactionNotFound, back, applog.OpUpdate)
		return
	}
	in, err := ParseTransactionForm(r.PostForm)
	if err != nil {
		s.fail(w, r, err, msgTransactionNotFound, back, applog.OpUpdate)
		return
	}

	t, err := s.budgets.UpdateTransaction(r.Context(), userID(r), id, in)
	if err != nil {
		s.fail(w, r, err, msgTransactionNotFound, back, applog.OpUpdate)
		return
	}

	s.flashSuccess(w, "Transaction updated successfully")
	redirect(w, r, budgetURL(t.BudgetID))
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err, msgTransactionNotFound, "/", applog.OpDelete)
		return
	}

	budgetID, err := s.budgets.DeleteTransaction(r.Context(), userID(r), id)
	if err != nil {
		s.fail(w, r, err, msgTransactionNotFound, budgetURL(budgetID), applog.OpDelete)
		return
	}

	s.flashSuccess(w, "Transaction deleted successfully")
	redirect(w, r, budgetURL(budgetID))
}
