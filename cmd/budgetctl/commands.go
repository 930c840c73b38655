package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"budget/internal/cli"
	"budget/internal/config"
	applog "budget/internal/log"
	"budget/internal/services"
	"budget/internal/sheets"
	"budget/internal/storage"

	"github.com/spf13/cobra"
)

// app carries the flags shared by every subcommand.
type app struct {
	dbPath   string
	logLevel string
	logger   *applog.Logger
}

func newRootCommand() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "budgetctl",
		Short: "Administer the budget database",
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := cli.LoadEnvFile(); err != nil {
				return err
			}
			cfg := config.Load()
			if !cmd.Flags().Changed("db") {
				a.dbPath = cfg.SQLiteDBPath
			}
			if !cmd.Flags().Changed("log-level") {
				a.logLevel = cfg.LogLevel
			}
			a.logger = cli.SetupLogger(a.logLevel).WithComponent(applog.ComponentCLI)
			return nil
		},
	}

	root.PersistentFlags().StringVar(&a.dbPath, "db", "", "SQLite database path (default $SQLITE_DB_PATH)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "warn", "log level")

	root.AddCommand(
		a.newMigrateCommand(),
		a.newUserCommand(),
		a.newSummaryCommand(),
		a.newSeedCommand(),
	)
	return root
}

func (a *app) open() (*storage.SQLiteRepository, error) {
	if a.dbPath == "" {
		return nil, errors.New("no database path: set --db or SQLITE_DB_PATH")
	}
	return cli.OpenRepository(a.logger, a.dbPath)
}

func (a *app) newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := a.open()
			if err != nil {
				return err
			}
			defer repo.Close()

			version, dirty, err := storage.SchemaVersion(a.dbPath)
			if err != nil {
				return err
			}
			if dirty {
				return fmt.Errorf("database %s is dirty at version %d", a.dbPath, version)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "database %s is up to date (schema version %d)\n", a.dbPath, version)
			return nil
		},
	}
}

func (a *app) newUserCommand() *cobra.Command {
	user := &cobra.Command{
		Use:   "user",
		Short: "Manage users",
	}

	var password string
	create := &cobra.Command{
		Use:   "create <username>",
		Short: "Create a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				password = os.Getenv("BUDGET_PASSWORD")
			}
			if password == "" {
				return errors.New("password required: use --password or BUDGET_PASSWORD")
			}

			repo, err := a.open()
			if err != nil {
				return err
			}
			defer repo.Close()

			auth := services.NewAuthService(repo, time.Hour, 0)
			u, err := auth.Register(cmd.Context(), args[0], password)
			if err != nil {
				return fmt.Errorf("create user %q: %w", args[0], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created user %s (id %d)\n", u.Username, u.ID)
			return nil
		},
	}
	create.Flags().StringVar(&password, "password", "", "password for the new user")

	user.AddCommand(create)
	return user
}

func (a *app) newSummaryCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "summary <budget-id>",
		Short: "Print the aggregated summary of a budget",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || id <= 0 {
				return fmt.Errorf("invalid budget id %q", args[0])
			}

			repo, err := a.open()
			if err != nil {
				return err
			}
			defer repo.Close()

			svc := services.NewBudgetService(repo, nil, a.logger, services.BudgetServiceConfig{})
			b, sum, err := svc.SummaryFor(cmd.Context(), id)
			if errors.Is(err, services.ErrNotFound) {
				return fmt.Errorf("budget %d not found", id)
			}
			if err != nil {
				return err
			}
			return printTable(cmd, sheets.SummaryTable(b, sum, time.Now()))
		},
	}
}

func printTable(cmd *cobra.Command, t sheets.Table) error {
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	for _, row := range t {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	return tw.Flush()
}

func (a *app) newSeedCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Create the test/test user and a starter budget on an empty database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := a.open()
			if err != nil {
				return err
			}
			defer repo.Close()

			created, err := services.Seed(cmd.Context(), repo, services.NewAuthService(repo, time.Hour, 0))
			if err != nil {
				return err
			}
			if created {
				fmt.Fprintf(cmd.OutOrStdout(), "seeded user %q with budget %q\n", services.SeedUsername, services.SeedBudgetName)
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "database already has users, nothing to seed")
			}
			return nil
		},
	}
}
