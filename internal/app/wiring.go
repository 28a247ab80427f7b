package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sts"

	awsclient "identity-center-reporter/internal/aws"
	"identity-center-reporter/internal/config"
	"identity-center-reporter/internal/mail"
	"identity-center-reporter/internal/query"
	"identity-center-reporter/internal/report"
	"identity-center-reporter/internal/types"
)

const sessionName = "identity-center-reporter"

// SecretResolver turns a password reference into its value
type SecretResolver interface {
	Resolve(ctx context.Context, ref string) (string, error)
}

// LoadAWSConfig loads the session for cfg, assuming the management role when one is configured
func LoadAWSConfig(ctx context.Context, cfg *types.Config, logger *slog.Logger) (aws.Config, error) {
	return awsclient.LoadSession(ctx, awsclient.SessionOptions{
		Region:      cfg.AWSRegion,
		RoleARN:     cfg.ManagementRoleARN,
		SessionName: sessionName,
	}, logger)
}

// Directory is the Identity Center surface the reporting commands use
type Directory interface {
	report.DirectoryClient
	ResolveDirectoryID(ctx context.Context) (string, error)
	ApplicationARN(ctx context.Context, idOrARN string) (string, error)
}

// DirectoryFactory opens the directory for a loaded configuration
type DirectoryFactory func(ctx context.Context, cfg *types.Config, logger *slog.Logger) (Directory, error)

// OpenDirectory loads the AWS session for cfg and returns an Identity Center client over it
func OpenDirectory(ctx context.Context, cfg *types.Config, logger *slog.Logger) (Directory, error) {
	awsCfg, err := LoadAWSConfig(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return NewDirectoryClient(awsCfg, cfg, logger), nil
}

// NewDirectoryClient builds the Identity Center client, falling back to the caller's account when
// the instance does not report an owner account
func NewDirectoryClient(awsCfg aws.Config, cfg *types.Config, logger *slog.Logger) *awsclient.IdentityCenterClient {
	client := awsclient.NewIdentityCenterClient(awsCfg, cfg.RequestsPerSecond, logger)
	stsClient := sts.NewFromConfig(awsCfg)
	client.SetAccountLookup(func(ctx context.Context) (string, error) {
		return awsclient.GetCurrentAccountId(ctx, stsClient)
	})
	return client
}

// NewSender selects the configured mail transport. The SMTP password is only ever read through
// its reference.
func NewSender(ctx context.Context, email types.EmailConfig, awsCfg aws.Config, secrets SecretResolver, logger *slog.Logger) (mail.Sender, error) {
	switch strings.ToLower(email.Transport) {
	case "ses":
		return mail.NewSESSender(awsCfg, logger), nil

	case "", "smtp":
		password, err := secrets.Resolve(ctx, email.PasswordRef)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve SMTP password: %w", err)
		}
		return mail.NewSMTPSender(mail.SMTPConfig{
			Host:     email.SMTPHost,
			Port:     email.SMTPPort,
			Username: email.SMTPUsername,
			Password: password,
		}, logger), nil
	}

	return nil, fmt.Errorf("unsupported email transport %q", email.Transport)
}

// NewMessage builds the report message from the email settings
func NewMessage(email types.EmailConfig) mail.Message {
	return mail.Message{
		From:    email.Sender,
		To:      append([]string(nil), email.Recipients...),
		Subject: email.Subject,
		Body:    email.Body,
	}
}

// RunQueryReport validates cfg, runs the configured query and mails the result
func RunQueryReport(ctx context.Context, cfg *types.Config, logger *slog.Logger) error {
	if err := config.ValidateQueryReportConfig(cfg); err != nil {
		return err
	}

	awsCfg, err := LoadAWSConfig(ctx, cfg, logger)
	if err != nil {
		return err
	}

	sender, err := NewSender(ctx, cfg.Email, awsCfg, awsclient.NewSecretResolver(awsCfg), logger)
	if err != nil {
		return err
	}

	pipeline := query.NewPipeline(awsCfg, query.Options{
		Database:       cfg.Query.Database,
		Catalog:        cfg.Query.Catalog,
		WorkGroup:      cfg.Query.WorkGroup,
		OutputLocation: cfg.Query.OutputLocation,
		PollInterval:   cfg.Query.PollInterval,
	}, logger)

	return report.QueryReport(ctx, pipeline, sender, NewMessage(cfg.Email), cfg.Query.SQL, cfg.Query.LocalPath, logger)
}
