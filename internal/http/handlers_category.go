package http

import (
	"net/http"

	"budget/internal/core"
	applog "budget/internal/log"

	"github.com/go-chi/chi/v5"
)

const msgCategoryNotFound = "Category not found"

func (s *Server) handleAddCategory(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.fail(w, r, errInvalidID, "Budget not found", "/", applog.OpCreate)
		return
	}
	f, err := ParseCategoryForm(r.PostForm)
	back := "/"
	if f.BudgetID > 0 {
		back = budgetURL(f.BudgetID)
	}
	if err != nil {
		s.fail(w, r, err, "Budget not found", back, applog.OpCreate)
		return
	}

	if _, err := s.budgets.CreateCategory(r.Context(), userID(r), f.BudgetID, f.Name, f.Allocated); err != nil {
		s.fail(w, r, err, "Budget not found", back, applog.OpCreate)
		return
	}
	s.flashSuccess(w, "Category added successfully")
	redirect(w, r, back)
}

type editCategoryView struct {
	Category core.Category
}

func (s *Server) handleEditCategoryPage(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err, msgCategoryNotFound, "/", applog.OpRead)
		return
	}
	c, err := s.budgets.GetCategory(r.Context(), userID(r), id)
	if err != nil {
		s.fail(w, r, err, msgCategoryNotFound, "/", applog.OpRead)
		return
	}
	s.render(w, r, "edit_category.html", "Edit category", editCategoryView{Category: c})
}

func (s *Server) handleEditCategory(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err, msgCategoryNotFound, "/", applog.OpUpdate)
		return
	}
	back := "/edit_category/" + chi.URLParam(r, "id")

	if err := r.ParseForm(); err != nil {
		s.fail(w, r, core.ErrEmptyName, msgCategoryNotFound, back, applog.OpUpdate)
		return
	}
	f, err := ParseCategoryForm(r.PostForm)
	if err != nil {
		s.fail(w, r, err, msgCategoryNotFound, back, applog.OpUpdate)
		return
	}

	c, err := s.budgets.UpdateCategory(r.Context(), userID(r), id, f.Name, f.Allocated)
	if err != nil {
		s.fail(w, r, err, msgCategoryNotFound, back, applog.OpUpdate)
		return
	}
	s.flashSuccess(w, "Category updated successfully")
	redirect(w, r, budgetURL(c.BudgetID))
}

func (s *Server) handleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err, msgCategoryNotFound, "/", applog.OpDelete)
		return
	}

	budgetID, err := s.budgets.DeleteCategory(r.Context(), userID(r), id)
	if err != nil {
		s.fail(w, r, err, msgCategoryNotFound, budgetURL(budgetID), applog.OpDelete)
		return
	}
	s.flashSuccess(w, "Category deleted successfully")
	redirect(w, r, budgetURL(budgetID))
}
