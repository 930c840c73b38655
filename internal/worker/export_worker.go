package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"budget/internal/amqp"
	"budget/internal/core"
	"budget/internal/services"
	"budget/internal/sheets"

	"golang.org/x/sync/errgroup"
)

// SummarySource loads aggregated budgets. *services.BudgetService implements it.
type SummarySource interface {
	SummaryFor(ctx context.Context, budgetID int64) (core.Budget, core.Summary, error)
	AllBudgetIDs(ctx context.Context) ([]int64, error)
}

// ExportWorker mirrors budget summaries to an exporter, both on change
// events and on a periodic full pass that catches lost messages.
type ExportWorker struct {
	source      SummarySource
	exporter    sheets.SummaryExporter
	concurrency int

	exported atomic.Int64
	failed   atomic.Int64
}

func NewExportWorker(source SummarySource, exporter sheets.SummaryExporter, concurrency int) *ExportWorker {
	if concurrency <= 0 {
		concurrency = 4
	}
	return &ExportWorker{
		source:      source,
		exporter:    exporter,
		concurrency: concurrency,
	}
}

// HandleBudgetChanged exports the budget named by msg. Budgets that no
// longer exist are acknowledged without an export.
func (w *ExportWorker) HandleBudgetChanged(ctx context.Context, msg *amqp.BudgetChangedMessage) error {
	slog.InfoContext(ctx, "Processing budget change",
		"budget_id", msg.BudgetID,
		"kind", msg.Kind)

	err := w.ExportBudget(ctx, msg.BudgetID)
	if errors.Is(err, services.ErrNotFound) {
		slog.WarnContext(ctx, "Budget no longer exists, skipping export", "budget_id", msg.BudgetID)
		return nil
	}
	return err
}

// ExportBudget aggregates one budget and hands it to the exporter.
func (w *ExportWorker) ExportBudget(ctx context.Context, budgetID int64) error {
	b, sum, err := w.source.SummaryFor(ctx, budgetID)
	if err != nil {
		return fmt.Errorf("load summary of budget %d: %w", budgetID, err)
	}

	if err := w.exporter.ExportSummary(ctx, b, sum); err != nil {
		w.failed.Add(1)
		return fmt.Errorf("export budget %d: %w", budgetID, err)
	}

	w.exported.Add(1)
	slog.InfoContext(ctx, "Exported budget summary",
		"budget_id", budgetID,
		"categories", len(sum.Categories))
	return nil
}

// ExportAll exports every budget with bounded concurrency. Individual
// failures are logged and counted; only listing the budgets is fatal.
func (w *ExportWorker) ExportAll(ctx context.Context) (int, error) {
	ids, err := w.source.AllBudgetIDs(ctx)
	if err != nil {
		return 0, err
	}

	var ok atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.concurrency)
	for _, id := range ids {
		g.Go(func() error {
			if err := w.ExportBudget(gctx, id); err != nil {
				slog.ErrorContext(gctx, "Failed to export budget", "budget_id", id, "error", err)
				return nil
			}
			ok.Add(1)
			return nil
		})
	}
	g.Wait()

	slog.InfoContext(ctx, "Full export completed",
		"total", len(ids),
		"exported", ok.Load(),
		"errors", len(ids)-int(ok.Load()))
	return int(ok.Load()), ctx.Err()
}

// RunPeriodic runs ExportAll immediately and then every interval until ctx
// is done.
func (w *ExportWorker) RunPeriodic(ctx context.Context, interval time.Duration) {
	if _, err := w.ExportAll(ctx); err != nil && ctx.Err() == nil {
		slog.ErrorContext(ctx, "Startup export failed", "error", err)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := w.ExportAll(ctx); err != nil && ctx.Err() == nil {
				slog.ErrorContext(ctx, "Periodic export failed", "error", err)
			}
		}
	}
}

// Stats returns successful and failed export counts.
func (w *ExportWorker) Stats() (exported, failed int64) {
	return w.exported.Load(), w.failed.Load()
}
