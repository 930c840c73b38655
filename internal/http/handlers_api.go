package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"budget/internal/core"
	applog "budget/internal/log"
	"budget/internal/services"

	"github.com/go-chi/chi/v5"
)

type categoryJSON struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Allocated string `json:"allocated"`
	Spent     string `json:"spent"`
	Remaining string `json:"remaining"`
	Percent   int    `json:"percent"`
}

type summaryJSON struct {
	BudgetID      int64          `json:"budget_id"`
	Name          string         `json:"name"`
	MonthlyIncome string         `json:"monthly_income"`
	OneTimeIncome string         `json:"one_time_income"`
	TotalBudgeted string         `json:"total_budgeted"`
	TotalSpent    string         `json:"total_spent"`
	Unallocated   string         `json:"unallocated"`
	Categories    []categoryJSON `json:"categories"`
}

func newSummaryJSON(b core.Budget, sum core.Summary) summaryJSON {
	out := summaryJSON{
		BudgetID:      b.ID,
		Name:          b.Name,
		MonthlyIncome: core.FormatMoney(sum.MonthlyIncome),
		OneTimeIncome: core.FormatMoney(sum.OneTimeIncome),
		TotalBudgeted: core.FormatMoney(sum.TotalBudgeted),
		TotalSpent:    core.FormatMoney(sum.TotalSpent),
		Unallocated:   core.FormatMoney(sum.Unallocated),
		Categories:    []categoryJSON{},
	}
	for _, row := range sum.Rows() {
		out.Categories = append(out.Categories, categoryJSON{
			ID:        row.ID,
			Name:      row.Name,
			Allocated: core.FormatMoney(row.Allocated),
			Spent:     core.FormatMoney(row.Spent.Abs()),
			Remaining: core.FormatMoney(row.Remaining),
			Percent:   sum.Percent(row.ID),
		})
	}
	return out
}

func (s *Server) handleAPISummary(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid budget id")
		return
	}

	b, sum, err := s.budgets.Summary(r.Context(), userID(r), id)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, newSummaryJSON(b, sum))
	case errors.Is(err, services.ErrNotFound):
		writeJSONError(w, http.StatusNotFound, "budget not found")
	default:
		s.errors.LogError(r.Context(), "Failed to load summary", err, applog.OpRead,
			applog.NewFields().WithBudget(id, ""))
		writeJSONError(w, http.StatusInternalServerError, "failed to load summary")
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"uptime":    time.Since(s.appMetrics.uptime).String(),
	})
}

// handleReady checks the database and, when configured, the event broker.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	code := http.StatusOK
	checks := make(map[string]string)

	if len(s.pages) == len(pageNames) {
		checks["templates"] = "ok"
	} else {
		checks["templates"] = "failed: templates not loaded"
		status, code = "not_ready", http.StatusServiceUnavailable
	}

	switch {
	case s.database == nil:
		checks["database"] = "not_configured"
		status, code = "not_ready", http.StatusServiceUnavailable
	default:
		if err := s.database.Ping(ctx); err != nil {
			checks["database"] = fmt.Sprintf("failed: %v", err)
			status, code = "not_ready", http.StatusServiceUnavailable
		} else {
			checks["database"] = "ok"
		}
	}

	switch {
	case s.events == nil:
		checks["events"] = "disabled"
	case s.events.Healthy():
		checks["events"] = "ok"
	default:
		checks["events"] = "failed: broker unavailable"
		status, code = "not_ready", http.StatusServiceUnavailable
	}

	writeJSON(w, code, map[string]any{
		"status":    status,
		"timestamp": time.Now().Format(time.RFC3339),
		"checks":    checks,
	})
}

// handleMetrics writes counters in the Prometheus text format.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	securityMetrics := s.securityDetector.GetMetrics()
	rateLimitMetrics := s.rateLimiter.GetMetrics()
	traceMetrics := s.traceMiddleware.GetMetrics()

	var cacheHits, cacheMisses uint64
	var cacheSize int
	if c := s.budgets.SummaryCache(); c != nil {
		cacheHits, cacheMisses = c.Stats()
		cacheSize = c.Size()
	}

	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	w.WriteHeader(http.StatusOK)

	metric := func(name, help, kind string, value any) {
		fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s %s\n%s %v\n\n", name, help, name, kind, name, value)
	}

	metric("http_requests_total", "Total number of HTTP requests", "counter", traceMetrics.TotalRequests)
	metric("http_requests_in_flight", "Requests currently being served", "gauge", traceMetrics.InFlight)
	metric("http_response_time_avg_microseconds", "Average response time", "gauge", traceMetrics.AverageResponseTime)
	metric("security_suspicious_requests_total", "Requests flagged as suspicious", "counter", securityMetrics.SuspiciousRequests)
	metric("rate_limit_hits_total", "Requests rejected by the rate limiter", "counter", rateLimitMetrics.TotalHits)
	metric("rate_limit_active_clients", "Clients tracked by the rate limiter", "gauge", rateLimitMetrics.ClientCount)
	metric("summary_cache_hits_total", "Summary cache hits", "counter", cacheHits)
	metric("summary_cache_misses_total", "Summary cache misses", "counter", cacheMisses)
	metric("summary_cache_entries", "Cached budget summaries", "gauge", cacheSize)
	metric("logins_total", "Successful logins", "counter", atomic.LoadInt64(&s.appMetrics.logins))
	metric("login_failures_total", "Failed login attempts", "counter", atomic.LoadInt64(&s.appMetrics.loginFailed))
	metric("registrations_total", "Accounts created", "counter", atomic.LoadInt64(&s.appMetrics.registered))
	metric("transactions_created_total", "Transactions recorded", "counter", atomic.LoadInt64(&s.appMetrics.transactions))
	metric("uptime_seconds", "Seconds since the server started", "gauge", int64(time.Since(s.appMetrics.uptime).Seconds()))
}
