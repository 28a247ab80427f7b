// Package config provides configuration validation functionality.
package config

import (
	"fmt"
	"strings"

	"identity-center-reporter/internal/types"
)

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for %s: %s", e.Field, e.Message)
}

// ValidationErrors represents multiple validation errors
type ValidationErrors struct {
	Errors []ValidationError
}

// Error implements the error interface
func (e *ValidationErrors) Error() string {
	if len(e.Errors) == 0 {
		return "no validation errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	var messages []string
	for _, err := range e.Errors {
		messages = append(messages, err.Error())
	}
	return fmt.Sprintf("multiple validation errors:\n  - %s", strings.Join(messages, "\n  - "))
}

// Add adds a validation error
func (e *ValidationErrors) Add(field, message string) {
	e.Errors = append(e.Errors, ValidationError{
		Field:   field,
		Message: message,
	})
}

// HasErrors returns true if there are validation errors
func (e *ValidationErrors) HasErrors() bool {
	return len(e.Errors) > 0
}

// ValidateDirectoryConfig validates the settings shared by every Identity Center command
func ValidateDirectoryConfig(config *types.Config) error {
	errors := &ValidationErrors{}
	validateCommon(config, errors)

	if errors.HasErrors() {
		return errors
	}
	return nil
}

// ValidateApplicationConfig validates the settings for commands that read application assignments
func ValidateApplicationConfig(config *types.Config) error {
	errors := &ValidationErrors{}
	validateCommon(config, errors)

	switch {
	case config.ApplicationARN == "":
		errors.Add("application_arn", "is required")
	case strings.HasPrefix(config.ApplicationARN, "apl-"):
		// bare application id, expanded against the discovered instance
	case !isValidARN(config.ApplicationARN) || !strings.Contains(config.ApplicationARN, ":application/"):
		errors.Add("application_arn", fmt.Sprintf("must be an application ARN or apl- id: %s", config.ApplicationARN))
	}

	if errors.HasErrors() {
		return errors
	}
	return nil
}

// ValidateQueryReportConfig validates the Athena query and outbound mail settings
func ValidateQueryReportConfig(config *types.Config) error {
	errors := &ValidationErrors{}

	if config.AWSRegion == "" {
		errors.Add("aws_region", "is required")
	}

	query := config.Query
	if query.SQL == "" {
		errors.Add("query.sql", "is required")
	}
	if query.Database == "" {
		errors.Add("query.database", "is required")
	}
	if query.OutputLocation == "" && query.WorkGroup == "" {
		errors.Add("query.output_location", "is required when no workgroup is configured")
	} else if query.OutputLocation != "" && !strings.HasPrefix(query.OutputLocation, "s3://") {
		errors.Add("query.output_location", fmt.Sprintf("must be an s3:// location: %s", query.OutputLocation))
	}
	if query.PollInterval <= 0 {
		errors.Add("query.poll_interval", "must be positive")
	}
	if query.LocalPath == "" {
		errors.Add("query.local_path", "is required")
	}

	validateEmail(config.Email, errors)

	if errors.HasErrors() {
		return errors
	}
	return nil
}

func validateCommon(config *types.Config, errors *ValidationErrors) {
	if config.AWSRegion == "" {
		errors.Add("aws_region", "is required")
	}
	if config.RequestsPerSecond < 0 {
		errors.Add("requests_per_second", "must not be negative")
	}
	if config.ManagementRoleARN != "" {
		if err := ValidateRoleArn(config.ManagementRoleARN); err != nil {
			errors.Add("mgmt_role_arn", err.Error())
		}
	}
}

func validateEmail(email types.EmailConfig, errors *ValidationErrors) {
	if email.Sender == "" {
		errors.Add("email.sender", "is required")
	} else if !isValidEmail(email.Sender) {
		errors.Add("email.sender", fmt.Sprintf("invalid sender format: %s", email.Sender))
	}

	if len(email.Recipients) == 0 {
		errors.Add("email.recipients", "at least one recipient is required")
	}
	for _, recipient := range email.Recipients {
		if !isValidEmail(recipient) {
			errors.Add("email.recipients", fmt.Sprintf("invalid recipient format: %s", recipient))
		}
	}

	switch strings.ToLower(email.Transport) {
	case "smtp":
		if email.SMTPHost == "" {
			errors.Add("email.smtp_host", "is required for the smtp transport")
		}
		if email.SMTPPort <= 0 || email.SMTPPort > 65535 {
			errors.Add("email.smtp_port", fmt.Sprintf("invalid port: %d", email.SMTPPort))
		}
		if email.SMTPUsername != "" && email.PasswordRef == "" {
			errors.Add("email.password_ref", "is required when smtp_username is set")
		}
		if email.PasswordRef != "" && !isValidSecretRef(email.PasswordRef) {
			errors.Add("email.password_ref", "must be an env:, ssm: or secretsmanager: reference")
		}
	case "ses":
	default:
		errors.Add("email.transport", fmt.Sprintf("must be smtp or ses, got %q", email.Transport))
	}
}

// ValidateRoleArn validates an IAM role ARN used for role assumption
func ValidateRoleArn(roleArn string) error {
	if !isValidARN(roleArn) {
		return fmt.Errorf("invalid role ARN format: %s", roleArn)
	}

	if !strings.Contains(roleArn, ":iam::") || !strings.Contains(roleArn, ":role/") {
		return fmt.Errorf("role ARN must be an IAM role ARN (format: arn:aws:iam::account-id:role/role-name): %s", roleArn)
	}

	return nil
}

// isValidARN validates AWS ARN format
// ARN format: arn:partition:service:region:account-id:resource-type/resource-id
// Example: arn:aws:iam::123456789012:role/MyRole
func isValidARN(arn string) bool {
	if arn == "" {
		return false
	}

	if !strings.HasPrefix(arn, "arn:") {
		return false
	}

	parts := strings.Split(arn, ":")
	if len(parts) < 6 {
		return false
	}

	// partition and service
	if parts[1] == "" || parts[2] == "" {
		return false
	}

	// Region can be empty for global services like IAM and SSO
	if parts[4] == "" {
		return false
	}

	return parts[5] != ""
}

func isValidEmail(email string) bool {
	at := strings.Index(email, "@")
	if at <= 0 || at != strings.LastIndex(email, "@") {
		return false
	}
	domain := email[at+1:]
	return domain != "" && strings.Contains(domain, ".") && !strings.HasPrefix(domain, ".") && !strings.HasSuffix(domain, ".")
}

func isValidSecretRef(ref string) bool {
	for _, prefix := range []string{"env:", "ssm:", "secretsmanager:"} {
		if strings.HasPrefix(ref, prefix) && len(ref) > len(prefix) {
			return true
		}
	}
	return false
}
