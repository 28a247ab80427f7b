package report

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"identity-center-reporter/internal/types"
)

// ErrNoRecords is returned when there is nothing to export; no file is written
var ErrNoRecords = errors.New("no user data to export")

// Column names used in exported files
const (
	ColumnUserID       = "UserId"
	ColumnUsername     = "Username"
	ColumnEmail        = "Email"
	ColumnFirstName    = "FirstName"
	ColumnLastName     = "LastName"
	ColumnDisplayName  = "DisplayName"
	ColumnLastActivity = "LastActivityDate"
)

var (
	// DefaultColumns is the standard application user export
	DefaultColumns = []string{ColumnUserID, ColumnUsername, ColumnEmail, ColumnDisplayName}

	// ProfileColumns adds given and family names
	ProfileColumns = []string{ColumnUserID, ColumnUsername, ColumnEmail, ColumnFirstName, ColumnLastName, ColumnDisplayName}

	// ActivityColumns adds the last-activity date from a usage report
	ActivityColumns = []string{ColumnUserID, ColumnUsername, ColumnEmail, ColumnDisplayName, ColumnLastActivity}
)

// Field is one named value of an ExportRecord
type Field struct {
	Key   string
	Value string
}

// ExportRecord is a flat, key-ordered mapping written as one CSV row
type ExportRecord struct {
	fields []Field
}

// NewExportRecord builds a record from alternating key/value pairs
func NewExportRecord(pairs ...string) ExportRecord {
	var record ExportRecord
	for i := 0; i+1 < len(pairs); i += 2 {
		record.Set(pairs[i], pairs[i+1])
	}
	return record
}

// Set stores value under key, keeping the key's original position if it already exists
func (r *ExportRecord) Set(key, value string) {
	for i := range r.fields {
		if r.fields[i].Key == key {
			r.fields[i].Value = value
			return
		}
	}
	r.fields = append(r.fields, Field{Key: key, Value: value})
}

// Get returns the value stored under key
func (r ExportRecord) Get(key string) (string, bool) {
	for _, field := range r.fields {
		if field.Key == key {
			return field.Value, true
		}
	}
	return "", false
}

// Keys returns the record's keys in insertion order
func (r ExportRecord) Keys() []string {
	keys := make([]string, len(r.fields))
	for i, field := range r.fields {
		keys[i] = field.Key
	}
	return keys
}

// Fields returns a copy of the record's fields in insertion order
func (r ExportRecord) Fields() []Field {
	return append([]Field(nil), r.fields...)
}

// Len returns the number of fields
func (r ExportRecord) Len() int {
	return len(r.fields)
}

// ProfileRecord renders a profile with the given columns. Degraded profiles carry only the
// identifier (and the last-activity value when requested and known).
func ProfileRecord(profile types.UserProfile, columns []string) ExportRecord {
	var record ExportRecord
	for _, column := range columns {
		value, known := profileValue(profile, column)
		if !known {
			continue
		}
		if profile.Degraded && column != ColumnUserID && !(column == ColumnLastActivity && value != "") {
			continue
		}
		record.Set(column, value)
	}
	return record
}

func profileValue(profile types.UserProfile, column string) (string, bool) {
	switch column {
	case ColumnUserID:
		return profile.UserID, true
	case ColumnUsername:
		return profile.UserName, true
	case ColumnEmail:
		return profile.Email, true
	case ColumnFirstName:
		return profile.GivenName, true
	case ColumnLastName:
		return profile.FamilyName, true
	case ColumnDisplayName:
		return profile.DisplayName, true
	case ColumnLastActivity:
		return profile.LastActivity, true
	}
	return "", false
}

// ProfileRecords renders every profile with the given columns
func ProfileRecords(profiles []types.UserProfile, columns []string) []ExportRecord {
	records := make([]ExportRecord, 0, len(profiles))
	for _, profile := range profiles {
		records = append(records, ProfileRecord(profile, columns))
	}
	return records
}

// Header returns columns followed by any other keys found across records, in first-seen order
func Header(columns []string, records []ExportRecord) []string {
	header := append([]string(nil), columns...)
	seen := make(map[string]struct{}, len(columns))
	for _, column := range columns {
		seen[column] = struct{}{}
	}
	for _, record := range records {
		for _, key := range record.Keys() {
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			header = append(header, key)
		}
	}
	return header
}

// DefaultFilename returns <prefix>_YYYYMMDD_HHMMSS.csv for now
func DefaultFilename(prefix string, now time.Time) string {
	return fmt.Sprintf("%s_%s.csv", prefix, now.Format("20060102_150405"))
}

// ExportCSV writes records to path. The header row starts with columns and adds any other record keys
// after them. Fields missing from a record are written empty. Empty input writes no file and returns
// ErrNoRecords.
func ExportCSV(records []ExportRecord, columns []string, path string) error {
	if len(records) == 0 {
		return ErrNoRecords
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create output directory %s: %w", dir, err)
		}
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer file.Close()

	header := Header(columns, records)
	writer := csv.NewWriter(file)

	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write header to %s: %w", path, err)
	}

	row := make([]string, len(header))
	for i, record := range records {
		for j, key := range header {
			row[j], _ = record.Get(key)
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row %d to %s: %w", i+1, path, err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("failed to flush %s: %w", path, err)
	}

	return file.Close()
}

// ReadCSV parses a file written by ExportCSV back into records keyed by the header row
func ReadCSV(path string) ([]ExportRecord, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer file.Close()

	rows, err := csv.NewReader(file).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	header := rows[0]
	records := make([]ExportRecord, 0, len(rows)-1)
	for _, row := range rows[1:] {
		var record ExportRecord
		for i, key := range header {
			if i < len(row) {
				record.Set(key, row[i])
			}
		}
		records = append(records, record)
	}

	return records, nil
}
