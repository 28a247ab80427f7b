// Package config provides configuration loading and management functionality.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"identity-center-reporter/internal/types"
)

// EnvPrefix is prepended to every environment override, e.g. ICR_AWS_REGION or ICR_EMAIL_PASSWORD_REF
const EnvPrefix = "ICR"

// FlagBindings maps configuration keys to the CLI flag names that override them
var FlagBindings = map[string]string{
	"aws_region":          "region",
	"log_level":           "log-level",
	"log_format":          "log-format",
	"mgmt_role_arn":       "mgmt-role-arn",
	"requests_per_second": "requests-per-second",
	"application_arn":     "application",
	"output_file":         "output",
}

// GetConfigPath returns the CONFIG_PATH environment variable or defaults to current directory
func GetConfigPath() string {
	configPath, exists := os.LookupEnv("CONFIG_PATH")
	if !exists || configPath == "" {
		return "./"
	}
	// Ensure the path ends with a slash for proper file concatenation
	if !strings.HasSuffix(configPath, "/") {
		configPath += "/"
	}
	return configPath
}

// LoadConfig loads configuration from an optional file, ICR_* environment variables and bound flags.
// Precedence is flag > environment > file > default.
func LoadConfig(configPath string, flags *pflag.FlagSet) (*types.Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
		}
	}

	if flags != nil {
		for key, name := range FlagBindings {
			flag := flags.Lookup(name)
			if flag == nil {
				continue
			}
			if err := v.BindPFlag(key, flag); err != nil {
				return nil, fmt.Errorf("failed to bind flag --%s: %w", name, err)
			}
		}
	}

	var config types.Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// viper leaves a single comma-joined env value as one element
	config.Email.Recipients = splitList(config.Email.Recipients)

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	defaults := getDefaultConfig()

	v.SetDefault("aws_region", defaults.AWSRegion)
	v.SetDefault("log_level", defaults.LogLevel)
	v.SetDefault("log_format", defaults.LogFormat)
	v.SetDefault("mgmt_role_arn", "")
	v.SetDefault("requests_per_second", defaults.RequestsPerSecond)
	v.SetDefault("application_arn", "")
	v.SetDefault("output_file", "")

	v.SetDefault("query.database", "")
	v.SetDefault("query.catalog", "")
	v.SetDefault("query.workgroup", "")
	v.SetDefault("query.output_location", "")
	v.SetDefault("query.sql", "")
	v.SetDefault("query.poll_interval", defaults.Query.PollInterval)
	v.SetDefault("query.local_path", defaults.Query.LocalPath)

	v.SetDefault("email.transport", defaults.Email.Transport)
	v.SetDefault("email.smtp_host", "")
	v.SetDefault("email.smtp_port", defaults.Email.SMTPPort)
	v.SetDefault("email.smtp_username", "")
	v.SetDefault("email.password_ref", "")
	v.SetDefault("email.sender", "")
	v.SetDefault("email.recipients", []string{})
	v.SetDefault("email.subject", defaults.Email.Subject)
	v.SetDefault("email.body", defaults.Email.Body)
}

// getDefaultConfig returns a default configuration
func getDefaultConfig() *types.Config {
	return &types.Config{
		AWSRegion:         "us-east-1",
		LogLevel:          "info",
		LogFormat:         "text",
		RequestsPerSecond: 10,
		Query: types.QueryConfig{
			PollInterval: 5 * time.Second,
			LocalPath:    "athena_results.csv",
		},
		Email: types.EmailConfig{
			Transport: "smtp",
			SMTPPort:  587,
			Subject:   "Athena Query Results",
			Body:      "Please find attached the results of your Athena query.",
		},
	}
}

func splitList(values []string) []string {
	var out []string
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// ParseLogLevel maps a textual level onto slog, defaulting to info
func ParseLogLevel(logLevel string) slog.Level {
	switch strings.ToLower(logLevel) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// SetupLogging builds the process logger and installs it as the slog default
func SetupLogging(logLevel string, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLogLevel(logLevel)}

	var handler slog.Handler
	if strings.ToLower(format) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}
