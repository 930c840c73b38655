package http

import (
	"encoding/json"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"strings"

	"budget/internal/core"

	"github.com/shopspring/decimal"
)

// sanitizeInput removes control characters except tab, newline and
// carriage return, and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}

// templateFuncs are available in every page.
var templateFuncs = template.FuncMap{
	"money": core.FormatMoney,
	"abs": func(d decimal.Decimal) decimal.Decimal {
		return d.Abs()
	},
	"negative": func(d decimal.Decimal) bool {
		return d.IsNegative()
	},
	"frequencies": func() []core.Frequency {
		return core.Frequencies
	},
}

// budgetURL links to a budget page, or the dashboard when id is unknown.
func budgetURL(id int64) string {
	if id <= 0 {
		return "/"
	}
	return fmt.Sprintf("/budget/%d", id)
}

// redirect answers with 303 so browsers follow with GET after a POST.
func redirect(w http.ResponseWriter, r *http.Request, url string) {
	http.Redirect(w, r, url, http.StatusSeeOther)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode JSON response", "error", err)
	}
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
