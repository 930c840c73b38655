package services

import (
	"context"
	"fmt"
	"log/slog"
)

const (
	SeedUsername   = "test"
	SeedPassword   = "test"
	SeedBudgetName = "Personal Budget"
)

// Seed creates the bootstrap user with one empty budget when the store has
// no users at all. It reports whether anything was created.
func Seed(ctx context.Context, repo Repository, auth *AuthService) (bool, error) {
	n, err := repo.CountUsers(ctx)
	if err != nil {
		return false, fmt.Errorf("count users: %w", err)
	}
	if n > 0 {
		return false, nil
	}

	u, err := auth.Register(ctx, SeedUsername, SeedPassword)
	if err != nil {
		return false, fmt.Errorf("seed user: %w", err)
	}
	b, err := repo.CreateBudget(ctx, u.ID, SeedBudgetName)
	if err != nil {
		return false, fmt.Errorf("seed budget: %w", err)
	}

	slog.InfoContext(ctx, "Seeded empty database", "user_id", u.ID, "budget_id", b.ID)
	return true, nil
}
