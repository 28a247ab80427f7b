// Package datetime normalizes the date and timestamp values found in usage reports.
package datetime

// DateOnlyFormat is the layout used when rewriting values to a plain date
const DateOnlyFormat = "2006-01-02"

// CommonInputFormats are the layouts accepted for last-activity values
var CommonInputFormats = []string{
	// ISO8601/RFC3339 formats (order matters - more specific first)
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02T15:04:05Z",
	"2006-01-02T15:04:05",

	// Athena timestamp output
	"2006-01-02 15:04:05.000",
	"2006-01-02 15:04:05.000 UTC",
	"2006-01-02 15:04:05",

	// Date only formats
	"2006-01-02",
	"01-02-2006",
	"01/02/2006",
	"1/2/2006",
	"Jan 2, 2006",
}

// Error types for standardized error handling
const (
	ErrInvalidFormat   = "INVALID_FORMAT"
	ErrInvalidTimezone = "INVALID_TIMEZONE"
)

// DateTimeError represents a standardized date/time error
type DateTimeError struct {
	Type    string
	Message string
	Input   string
	Cause   error
}

// Error implements the error interface
func (e *DateTimeError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

// Unwrap returns the underlying parse error
func (e *DateTimeError) Unwrap() error {
	return e.Cause
}

// NewDateTimeError creates a new DateTimeError
func NewDateTimeError(errorType, message, input string, cause error) *DateTimeError {
	return &DateTimeError{
		Type:    errorType,
		Message: message,
		Input:   input,
		Cause:   cause,
	}
}
