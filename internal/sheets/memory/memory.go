package memory

import (
	"context"
	"sync"
	"time"

	"budget/internal/core"
	ports "budget/internal/sheets"
)

// Store keeps the latest exported table per tab. It backs local runs
// without Google credentials and the worker tests.
type Store struct {
	mu      sync.Mutex
	tables  map[string]ports.Table
	exports int
	now     func() time.Time
}

var _ ports.SummaryExporter = (*Store)(nil)

func New() *Store {
	return &Store{tables: make(map[string]ports.Table), now: time.Now}
}

func (s *Store) ExportSummary(ctx context.Context, b core.Budget, sum core.Summary) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	table := ports.SummaryTable(b, sum, s.now())

	s.mu.Lock()
	defer s.mu.Unlock()
	s.tables[ports.TabName(b.ID)] = table
	s.exports++
	return nil
}

// Table returns the last table exported for a budget.
func (s *Store) Table(budgetID int64) (ports.Table, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tables[ports.TabName(budgetID)]
	return t, ok
}

// Exports counts every successful ExportSummary call.
func (s *Store) Exports() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exports
}
