// Package app holds the reporter's command tree.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"identity-center-reporter/internal/config"
	"identity-center-reporter/internal/types"
)

// Version information, set from main
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// runtime is the per-invocation state every command starts from
type runtime struct {
	cfg    *types.Config
	logger *slog.Logger
}

// NewRootCommand builds the command tree over Identity Center
func NewRootCommand() *cobra.Command {
	return newRootCommand(OpenDirectory)
}

func newRootCommand(openDirectory DirectoryFactory) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "identity-center-reporter",
		Short:         "IAM Identity Center application user reporting",
		Long:          "Reports which Identity Center users can reach an application, enriches them with usage data, and mails Athena query results",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "Path to a JSON or YAML config file")
	flags.String("region", "", "AWS region (default us-east-1)")
	flags.String("log-level", "", "Log level: debug, info, warn, error")
	flags.String("log-format", "", "Log format: text or json")
	flags.String("mgmt-role-arn", "", "Management account role to assume for Identity Center calls")
	flags.Int("requests-per-second", 0, "Directory API requests per second (default 10)")

	rootCmd.AddCommand(
		newAppUsersCommand(openDirectory),
		newGroupsCommand(openDirectory),
		newActivityCommand(openDirectory),
		newQueryReportCommand(),
		newVersionCommand(),
	)

	return rootCmd
}

// loadRuntime reads configuration for cmd and installs the logger
func loadRuntime(cmd *cobra.Command) (*runtime, error) {
	configPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}

	cfg, err := config.LoadConfig(configPath, cmd.Flags())
	if err != nil {
		return nil, err
	}

	logger := config.SetupLogging(cfg.LogLevel, cfg.LogFormat)
	logger.Debug("configuration loaded",
		"config_file", configPath,
		"region", cfg.AWSRegion,
		"mgmt_role_arn", cfg.ManagementRoleARN)

	return &runtime{cfg: cfg, logger: logger}, nil
}

// Execute runs the command tree until completion or an interrupt
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := NewRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "❌ Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Identity Center Reporter\n")
			fmt.Fprintf(out, "Version: %s\n", Version)
			fmt.Fprintf(out, "Build Time: %s\n", BuildTime)
			fmt.Fprintf(out, "Git Commit: %s\n", GitCommit)
		},
	}
}
