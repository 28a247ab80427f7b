package lambda

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"identity-center-reporter/internal/types"
)

func scheduleEvent() events.CloudWatchEvent {
	return events.CloudWatchEvent{
		ID:         "evt-1",
		Source:     "aws.events",
		DetailType: "Scheduled Event",
		Time:       time.Date(2024, 5, 1, 6, 0, 0, 0, time.UTC),
	}
}

func TestHandleLoadsConfigFromEnvironment(t *testing.T) {
	t.Setenv("ICR_QUERY_DATABASE", "amazon_q_metrics")
	t.Setenv("ICR_EMAIL_RECIPIENTS", "ops@example.com,audit@example.com")
	t.Setenv("ICR_LOG_LEVEL", "error")

	var got *types.Config
	run := func(ctx context.Context, cfg *types.Config, logger *slog.Logger) error {
		got = cfg
		return nil
	}

	require.NoError(t, handle(context.Background(), scheduleEvent(), "", run))
	require.NotNil(t, got)
	assert.Equal(t, "amazon_q_metrics", got.Query.Database)
	assert.Equal(t, []string{"ops@example.com", "audit@example.com"}, got.Email.Recipients)
	assert.Equal(t, 5*time.Second, got.Query.PollInterval)
}

func TestHandleConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log_level: error\nquery:\n  sql: SELECT 1\n  local_path: /tmp/athena_results.csv\n"), 0644))

	var got *types.Config
	run := func(ctx context.Context, cfg *types.Config, logger *slog.Logger) error {
		got = cfg
		return nil
	}

	require.NoError(t, handle(context.Background(), scheduleEvent(), path, run))
	assert.Equal(t, "SELECT 1", got.Query.SQL)
	assert.Equal(t, "/tmp/athena_results.csv", got.Query.LocalPath)
}

func TestHandlePropagatesReportFailure(t *testing.T) {
	t.Setenv("ICR_LOG_LEVEL", "error")
	run := func(ctx context.Context, cfg *types.Config, logger *slog.Logger) error {
		return errors.New("query qe-1 finished in state FAILED: INSUFFICIENT_PERMISSIONS")
	}

	err := handle(context.Background(), scheduleEvent(), "", run)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "INSUFFICIENT_PERMISSIONS")
}

func TestHandleMissingConfigFile(t *testing.T) {
	called := false
	run := func(ctx context.Context, cfg *types.Config, logger *slog.Logger) error {
		called = true
		return nil
	}

	err := handle(context.Background(), scheduleEvent(), filepath.Join(t.TempDir(), "missing.yaml"), run)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load configuration")
	assert.False(t, called)
}

func TestConfigFile(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	assert.Equal(t, "", configFile())

	t.Setenv("CONFIG_FILE", "/var/task/reporter.yaml")
	assert.Equal(t, "/var/task/reporter.yaml", configFile())

	t.Setenv("CONFIG_FILE", "reporter.yaml")
	t.Setenv("CONFIG_PATH", "/opt/config")
	assert.Equal(t, "/opt/config/reporter.yaml", configFile())
}
