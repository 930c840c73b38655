package http

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"budget/internal/core"
	applog "budget/internal/log"
	"budget/internal/middleware/trace"
	"budget/internal/services"

	"github.com/go-chi/chi/v5"
)

const msgCategoryInUse = "Cannot delete category with transactions. Please delete or reassign transactions first."

// fail turns a service error into a flash and a redirect. Missing or
// foreign resources go back to the dashboard; everything else goes to back.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error, notFound, back, op string) {
	if back == "" {
		back = "/"
	}
	switch {
	case errors.Is(err, services.ErrNotFound), errors.Is(err, errInvalidID):
		s.flashError(w, notFound)
		redirect(w, r, "/")
	case errors.Is(err, services.ErrCategoryInUse):
		s.flashError(w, msgCategoryInUse)
		redirect(w, r, back)
	case services.IsValidationError(err):
		s.flashError(w, capitalize(err.Error()))
		redirect(w, r, back)
	default:
		fields := applog.NewFields().WithRequestID(trace.GetRequestID(r.Context()))
		fields[applog.FieldErrorType] = applog.ErrorTypeInternal
		s.errors.LogError(r.Context(), "Request failed", err, op, fields)
		s.flashError(w, "Something went wrong, please try again")
		redirect(w, r, back)
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func userID(r *http.Request) int64 {
	sess, _ := currentSession(r.Context())
	return sess.UserID
}

type dashboardView struct {
	Budgets []core.Budget
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	budgets, err := s.budgets.ListBudgets(r.Context(), userID(r))
	if err != nil {
		s.errors.LogError(r.Context(), "Failed to list budgets", err, applog.OpList, nil)
		http.Error(w, "failed to load budgets", http.StatusInternalServerError)
		return
	}
	s.render(w, r, "dashboard.html", "Budgets", dashboardView{Budgets: budgets})
}

type budgetPage struct {
	services.BudgetView
	Today string
}

func (s *Server) handleViewBudget(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err, "Budget not found", "/", applog.OpRead)
		return
	}

	view, err := s.budgets.Overview(r.Context(), userID(r), id)
	if err != nil {
		s.fail(w, r, err, "Budget not found", "/", applog.OpRead)
		return
	}

	s.render(w, r, "budget.html", view.Budget.Name, budgetPage{
		BudgetView: view,
		Today:      time.Now().Format(time.DateOnly),
	})
}

func (s *Server) handleAddBudget(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.fail(w, r, core.ErrEmptyName, "", "/", applog.OpCreate)
		return
	}
	b, err := s.budgets.CreateBudget(r.Context(), userID(r), formString(r.PostForm, "name"))
	if err != nil {
		s.fail(w, r, err, "Budget not found", "/", applog.OpCreate)
		return
	}
	redirect(w, r, budgetURL(b.ID))
}

func (s *Server) handleRenameBudget(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err == nil {
		err = r.ParseForm()
	}
	if err == nil {
		err = s.budgets.RenameBudget(r.Context(), userID(r), id, formString(r.PostForm, "name"))
	}
	if err != nil {
		s.fail(w, r, err, "Budget not found", budgetURL(id), applog.OpUpdate)
		return
	}
	s.flashSuccess(w, "Budget renamed")
	redirect(w, r, budgetURL(id))
}

// handleUpdateBudget saves every budget_<categoryID> allocation at once.
func (s *Server) handleUpdateBudget(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.fail(w, r, errInvalidID, "Budget not found", "/", applog.OpUpdate)
		return
	}
	budgetID, err := parseID(r.PostForm.Get("budget_id"))
	if err != nil {
		s.fail(w, r, err, "Budget not found", "/", applog.OpUpdate)
		return
	}

	allocations, err := ParseAllocations(r.PostForm)
	if err != nil {
		s.fail(w, r, err, "Budget not found", budgetURL(budgetID), applog.OpUpdate)
		return
	}

	if _, err := s.budgets.BulkUpdateAllocations(r.Context(), userID(r), budgetID, allocations); err != nil {
		s.fail(w, r, err, "Budget not found", budgetURL(budgetID), applog.OpUpdate)
		return
	}
	s.flashSuccess(w, "Budget updated")
	redirect(w, r, budgetURL(budgetID))
}
