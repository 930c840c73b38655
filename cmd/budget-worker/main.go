package main

import (
	"context"
	"errors"
	"os"
	"time"

	"budget/internal/amqp"
	"budget/internal/cli"
	applog "budget/internal/log"
	"budget/internal/services"
	"budget/internal/worker"
)

func main() {
	if err := cli.LoadEnvFile(); err != nil {
		os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}

	cfg, err := cli.LoadAndValidateConfig()
	if err != nil {
		cli.SetupLogger("info").Error("Configuration validation failed", applog.FieldError, err)
		os.Exit(1)
	}
	logger := cli.SetupLogger(cfg.LogLevel).WithComponent(applog.ComponentWorker)
	logger.Info("Starting budget-worker")

	repo, err := cli.OpenRepository(logger, cfg.SQLiteDBPath)
	if err != nil {
		os.Exit(1)
	}
	defer repo.Close()

	exporter, err := cli.NewExporter(context.Background(), logger, cfg)
	if err != nil {
		logger.Error("Failed to initialize exporter", applog.FieldError, err)
		os.Exit(1)
	}

	// The worker only reads; nothing it does publishes events.
	budgets := services.NewBudgetService(repo, nil, logger, services.BudgetServiceConfig{})
	exportWorker := worker.NewExportWorker(budgets, exporter, 4)

	ctx, done := cli.GracefulShutdown(logger, 15*time.Second, nil)

	if cfg.EventsEnabled() {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", applog.FieldError, err)
			os.Exit(1)
		}
		defer client.Close()

		go func() {
			err := client.ConsumeBudgetChanged(ctx, exportWorker.HandleBudgetChanged)
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Message consumption failed", applog.FieldError, err)
			}
		}()
		logger.Info("Consuming budget changes", "queue", cfg.AMQPQueue)
	} else {
		logger.Info("AMQP disabled - relying on periodic export only")
	}

	go exportWorker.RunPeriodic(ctx, cfg.ExportInterval)

	cli.WaitForShutdown(ctx, done)
	exported, failed := exportWorker.Stats()
	logger.Info("Worker stopped", "exported", exported, "failed", failed)
}
