package aws

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

// SSMAPI is the subset of the SSM client used to read SecureString parameters
type SSMAPI interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// SecretsManagerAPI is the subset of the Secrets Manager client used to read secrets
type SecretsManagerAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// SecretResolver turns env:, ssm: and secretsmanager: references into secret values
type SecretResolver struct {
	ssm            SSMAPI
	secretsManager SecretsManagerAPI
	lookupEnv      func(string) (string, bool)
}

// NewSecretResolver creates a resolver backed by SSM and Secrets Manager clients from cfg
func NewSecretResolver(cfg aws.Config) *SecretResolver {
	return NewSecretResolverWithAPIs(ssm.NewFromConfig(cfg), secretsmanager.NewFromConfig(cfg))
}

// NewSecretResolverWithAPIs creates a resolver over existing API implementations
func NewSecretResolverWithAPIs(ssmClient SSMAPI, secretsManagerClient SecretsManagerAPI) *SecretResolver {
	return &SecretResolver{
		ssm:            ssmClient,
		secretsManager: secretsManagerClient,
		lookupEnv:      os.LookupEnv,
	}
}

// Resolve returns the secret named by ref. An empty ref resolves to an empty secret.
func (r *SecretResolver) Resolve(ctx context.Context, ref string) (string, error) {
	if ref == "" {
		return "", nil
	}

	scheme, name, ok := strings.Cut(ref, ":")
	if !ok || name == "" {
		return "", fmt.Errorf("invalid secret reference %q: expected env:, ssm: or secretsmanager: prefix", ref)
	}

	switch scheme {
	case "env":
		value, exists := r.lookupEnv(name)
		if !exists || value == "" {
			return "", fmt.Errorf("environment variable %s is not set", name)
		}
		return value, nil

	case "ssm":
		if r.ssm == nil {
			return "", fmt.Errorf("no SSM client configured for %s", ref)
		}
		result, err := r.ssm.GetParameter(ctx, &ssm.GetParameterInput{
			Name:           aws.String(name),
			WithDecryption: aws.Bool(true),
		})
		if err != nil {
			return "", WrapAWSError(err, "GetParameter")
		}
		if result.Parameter == nil || aws.ToString(result.Parameter.Value) == "" {
			return "", fmt.Errorf("parameter %s has no value", name)
		}
		return aws.ToString(result.Parameter.Value), nil

	case "secretsmanager":
		if r.secretsManager == nil {
			return "", fmt.Errorf("no Secrets Manager client configured for %s", ref)
		}
		result, err := r.secretsManager.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
			SecretId: aws.String(name),
		})
		if err != nil {
			return "", WrapAWSError(err, "GetSecretValue")
		}
		if aws.ToString(result.SecretString) == "" {
			return "", fmt.Errorf("secret %s has no string value", name)
		}
		return aws.ToString(result.SecretString), nil

	default:
		return "", fmt.Errorf("unsupported secret reference scheme %q", scheme)
	}
}
