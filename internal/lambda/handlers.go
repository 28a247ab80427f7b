// Package lambda runs the scheduled query report as an AWS Lambda function.
package lambda

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"identity-center-reporter/internal/app"
	"identity-center-reporter/internal/config"
	"identity-center-reporter/internal/types"
)

// reportFunc runs one query report for a loaded configuration
type reportFunc func(ctx context.Context, cfg *types.Config, logger *slog.Logger) error

// Handler handles an EventBridge schedule event. Configuration comes from ICR_* environment
// variables and, when CONFIG_FILE is set, a bundled config file.
func Handler(ctx context.Context, event events.CloudWatchEvent) error {
	return handle(ctx, event, configFile(), app.RunQueryReport)
}

// configFile resolves CONFIG_FILE against CONFIG_PATH when it is relative
func configFile() string {
	name := os.Getenv("CONFIG_FILE")
	if name == "" || filepath.IsAbs(name) {
		return name
	}
	return config.GetConfigPath() + name
}

func handle(ctx context.Context, event events.CloudWatchEvent, configPath string, run reportFunc) error {
	cfg, err := config.LoadConfig(configPath, nil)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// CloudWatch Logs expects structured output
	logger := config.SetupLogging(cfg.LogLevel, "json")
	logger.Info("scheduled query report triggered",
		"event_id", event.ID,
		"source", event.Source,
		"detail_type", event.DetailType,
		"time", event.Time)

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("query report failed", "event_id", event.ID, "error", err)
		return err
	}

	logger.Info("query report completed", "event_id", event.ID)
	return nil
}

// StartLambdaMode starts the Lambda runtime loop
func StartLambdaMode() {
	lambda.Start(Handler)
}
