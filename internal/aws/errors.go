package aws

import (
	"errors"
	"fmt"

	identitystoreTypes "github.com/aws/aws-sdk-go-v2/service/identitystore/types"
	"github.com/aws/smithy-go"
)

var (
	// ErrNoInstanceFound is returned when ListInstances reports no Identity Center instance
	ErrNoInstanceFound = errors.New("no Identity Center instances found, verify your permissions and region")

	// ErrNotFound is returned when a user or group does not exist in the identity store
	ErrNotFound = errors.New("principal not found in identity store")
)

// IsNotFoundError checks if an error is a missing-resource error from the identity store
func IsNotFoundError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, ErrNotFound) {
		return true
	}

	var notFound *identitystoreTypes.ResourceNotFoundException
	if errors.As(err, &notFound) {
		return true
	}

	return GetAWSErrorCode(err) == "ResourceNotFoundException"
}

// IsAccessDeniedError checks if an error is an authorization failure
func IsAccessDeniedError(err error) bool {
	switch GetAWSErrorCode(err) {
	case "AccessDeniedException", "AccessDenied", "UnauthorizedOperation":
		return true
	}
	return false
}

// GetAWSErrorCode extracts the error code from an AWS error
func GetAWSErrorCode(err error) string {
	if err == nil {
		return ""
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode()
	}

	return ""
}

// GetAWSErrorMessage extracts the error message from an AWS error
func GetAWSErrorMessage(err error) string {
	if err == nil {
		return ""
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorMessage()
	}

	return err.Error()
}

// WrapAWSError wraps an AWS error with additional context
func WrapAWSError(err error, operation string) error {
	if err == nil {
		return nil
	}

	errorCode := GetAWSErrorCode(err)
	if errorCode != "" {
		return fmt.Errorf("%s failed: [%s] %s: %w", operation, errorCode, GetAWSErrorMessage(err), err)
	}

	return fmt.Errorf("%s failed: %w", operation, err)
}
