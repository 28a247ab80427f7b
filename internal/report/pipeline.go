package report

import (
	"context"
	"fmt"
	"log/slog"

	"identity-center-reporter/internal/mail"
)

// QueryRunner runs a query and stores its result file at localPath
type QueryRunner interface {
	Run(ctx context.Context, sql string, localPath string) (string, error)
}

// QueryReport runs sql, attaches the downloaded result to msg and sends it. A query that does
// not succeed aborts the run before anything is downloaded or sent.
func QueryReport(ctx context.Context, runner QueryRunner, sender mail.Sender, msg mail.Message, sql string, localPath string, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	path, err := runner.Run(ctx, sql, localPath)
	if err != nil {
		return fmt.Errorf("query report aborted: %w", err)
	}

	if err := msg.AttachFile(path); err != nil {
		return err
	}

	if err := sender.Send(ctx, msg); err != nil {
		return fmt.Errorf("failed to send query report: %w", err)
	}

	logger.Info("query report delivered",
		"path", path,
		"recipients", len(msg.To))

	return nil
}
