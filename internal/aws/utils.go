// Package aws provides core AWS service interactions and credential management utilities.
package aws

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	ststypes "github.com/aws/aws-sdk-go-v2/service/sts/types"
)

const defaultRegion = "us-east-1"

// STSAPI is the subset of the sts client used for role assumption and caller lookup
type STSAPI interface {
	AssumeRole(ctx context.Context, params *sts.AssumeRoleInput, optFns ...func(*sts.Options)) (*sts.AssumeRoleOutput, error)
	GetCallerIdentity(ctx context.Context, params *sts.GetCallerIdentityInput, optFns ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error)
}

// SessionOptions selects the region and optional management role for every client
type SessionOptions struct {
	Region      string
	RoleARN     string
	SessionName string
}

// LoadSession loads the default AWS configuration for the region and, when a role is given,
// swaps it for the assumed role's credentials
func LoadSession(ctx context.Context, opts SessionOptions, logger *slog.Logger) (aws.Config, error) {
	region := opts.Region
	if region == "" {
		region = defaultRegion
	}

	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load AWS config: %w", err)
	}

	if opts.RoleARN == "" {
		return cfg, nil
	}

	sessionName := opts.SessionName
	if sessionName == "" {
		sessionName = "identity-center-reporter"
	}

	logger.Info("assuming management role", "role_arn", opts.RoleARN, "session_name", sessionName)

	assumed, err := AssumeRole(ctx, sts.NewFromConfig(cfg), opts.RoleARN, sessionName)
	if err != nil {
		return aws.Config{}, err
	}

	return CreateConnectionConfiguration(ctx, region, aws.Credentials{
		AccessKeyID:     aws.ToString(assumed.AccessKeyId),
		SecretAccessKey: aws.ToString(assumed.SecretAccessKey),
		SessionToken:    aws.ToString(assumed.SessionToken),
		Source:          "AssumeRole",
	})
}

// CreateConnectionConfiguration creates an AWS configuration using the provided credentials.
func CreateConnectionConfiguration(ctx context.Context, region string, creds aws.Credentials) (aws.Config, error) {
	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(region),
		config.WithCredentialsProvider(credentials.StaticCredentialsProvider{
			Value: creds,
		}),
	)
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load config: %w", err)
	}

	if cfg.Region == "" {
		cfg.Region = defaultRegion
	}

	return cfg, nil
}

// AssumeRole assumes an AWS IAM role and returns the assumed role's credentials.
func AssumeRole(ctx context.Context, stsClient STSAPI, roleArn string, sessionName string) (*ststypes.Credentials, error) {
	input := &sts.AssumeRoleInput{
		RoleArn:         aws.String(roleArn),
		RoleSessionName: aws.String(sessionName),
	}

	result, err := stsClient.AssumeRole(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to assume role %s: %w", roleArn, err)
	}
	if result.Credentials == nil {
		return nil, fmt.Errorf("assume role %s returned no credentials", roleArn)
	}

	return result.Credentials, nil
}

// GetCurrentAccountId gets the current AWS account ID
func GetCurrentAccountId(ctx context.Context, stsClient STSAPI) (string, error) {
	result, err := stsClient.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return "", WrapAWSError(err, "GetCallerIdentity")
	}
	return aws.ToString(result.Account), nil
}
