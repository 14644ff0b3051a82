package main

import (
	"context"
	"errors"
	"os"

	"bilancio/internal/amqp"
	"bilancio/internal/cli"
	"bilancio/internal/log"
	"bilancio/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(log.ComponentWorker)
	cfg := cli.LoadAndValidateConfig(logger)

	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required for the audit worker")
		os.Exit(1)
	}

	ctx, stop := cli.SignalContext()
	defer stop()

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	client := cli.InitAMQP(logger, cfg)
	defer client.Close()

	reportDir := os.Getenv("REPORT_DIR")
	if reportDir == "" {
		reportDir = "./data/reports"
	}
	auditor := worker.NewAuditWorker(repo, reportDir)

	logger.Info("Audit worker started",
		"queue", cfg.AMQPQueue,
		"report_dir", reportDir)

	err := client.ConsumeEvents(ctx, func(event *amqp.Event) error {
		return auditor.HandleEvent(ctx, event)
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Consumer stopped", log.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Audit worker stopped gracefully")
}
