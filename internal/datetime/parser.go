package datetime

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"
)

// Parser reads last-activity values in any of CommonInputFormats
type Parser struct {
	location *time.Location
}

// NewParser creates a Parser that places zone-less values in timezone. An empty timezone means UTC.
func NewParser(timezone string) (*Parser, error) {
	if timezone == "" {
		return &Parser{location: time.UTC}, nil
	}

	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, NewDateTimeError(
			ErrInvalidTimezone,
			fmt.Sprintf("invalid timezone: %s", timezone),
			timezone,
			err,
		)
	}
	return &Parser{location: loc}, nil
}

// Parse attempts to parse a date or timestamp using every supported format
func (p *Parser) Parse(input string) (time.Time, error) {
	input = strings.Trim(strings.TrimSpace(input), `"`)
	if input == "" {
		return time.Time{}, NewDateTimeError(ErrInvalidFormat, "empty date/time input", input, nil)
	}

	for _, format := range CommonInputFormats {
		parsed, err := time.ParseInLocation(format, input, p.location)
		if err == nil {
			return parsed, nil
		}
	}

	return time.Time{}, NewDateTimeError(
		ErrInvalidFormat,
		fmt.Sprintf("unable to parse date/time: expected formats like '2006-01-02' or '2006-01-02 15:04:05.000', got '%s'", input),
		input,
		nil,
	)
}

// Normalize parses input and rewrites it with layout
func (p *Parser) Normalize(input string, layout string) (string, error) {
	parsed, err := p.Parse(input)
	if err != nil {
		return "", err
	}
	return parsed.Format(layout), nil
}
