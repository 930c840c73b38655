package http

import (
	"net/http"

	"budget/internal/core"
	applog "budget/internal/log"

	"github.com/go-chi/chi/v5"
)

const msgIncomeNotFound = "Income not found"

func (s *Server) handleAddIncome(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.fail(w, r, errInvalidID, "Budget not found", "/", applog.OpCreate)
		return
	}
	in, err := ParseIncomeForm(r.PostForm)
	back := "/"
	if in.BudgetID > 0 {
		back = budgetURL(in.BudgetID)
	}
	if err != nil {
		s.fail(w, r, err, "Budget not found", back, applog.OpCreate)
		return
	}

	if _, err := s.budgets.CreateIncome(r.Context(), userID(r), in); err != nil {
		s.fail(w, r, err, "Budget not found", back, applog.OpCreate)
		return
	}
	s.flashSuccess(w, "Income added successfully")
	redirect(w, r, back)
}

type editIncomeView struct {
	Income core.Income
}

func (s *Server) handleEditIncomePage(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err, msgIncomeNotFound, "/", applog.OpRead)
		return
	}
	in, err := s.budgets.GetIncome(r.Context(), userID(r), id)
	if err != nil {
		s.fail(w, r, err, msgIncomeNotFound, "/", applog.OpRead)
		return
	}
	s.render(w, r, "edit_income.html", "Edit income", editIncomeView{Income: in})
}

func (s *Server) handleEditIncome(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err, msgIncomeNotFound, "/", applog.OpUpdate)
		return
	}
	back := "/edit_income/" + chi.URLParam(r, "id")

	if err := r.ParseForm(); err != nil {
		s.fail(w, r, core.ErrInvalidAmount, msgIncomeNotFound, back, applog.OpUpdate)
		return
	}
	in, err := ParseIncomeForm(r.PostForm)
	if err != nil {
		s.fail(w, r, err, msgIncomeNotFound, back, applog.OpUpdate)
		return
	}
	in.ID = id

	updated, err := s.budgets.UpdateIncome(r.Context(), userID(r), in)
	if err != nil {
		s.fail(w, r, err, msgIncomeNotFound, back, applog.OpUpdate)
		return
	}
	s.flashSuccess(w, "Income updated successfully")
	redirect(w, r, budgetURL(updated.BudgetID))
}

func (s *Server) handleDeleteIncome(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err, msgIncomeNotFound, "/", applog.OpDelete)
		return
	}

	budgetID, err := s.budgets.DeleteIncome(r.Context(), userID(r), id)
	if err != nil {
		s.fail(w, r, err, msgIncomeNotFound, budgetURL(budgetID), applog.OpDelete)
		return
	}
	s.flashSuccess(w, "Income deleted successfully")
	redirect(w, r, budgetURL(budgetID))
}
