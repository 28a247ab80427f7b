package report

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"identity-center-reporter/internal/datetime"
)

// ActivityRow is one line of a last-activity report: user id then last-activity date
type ActivityRow struct {
	UserID       string
	LastActivity string
}

// ReadActivityCSV reads a last-activity report. The first column is the user id, the second the
// pre-computed last-activity date. A header row is skipped when present, as are blank rows.
func ReadActivityCSV(path string) ([]ActivityRow, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open activity report %s: %w", path, err)
	}
	defer file.Close()

	return ParseActivityCSV(file)
}

// ParseActivityCSV parses a last-activity report from r
func ParseActivityCSV(r io.Reader) ([]ActivityRow, error) {
	// Excel exports start with a UTF-8 byte order mark
	input := bufio.NewReader(r)
	if char, _, err := input.ReadRune(); err == nil && char != '\ufeff' {
		input.UnreadRune()
	}

	reader := csv.NewReader(input)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	var rows []ActivityRow
	for first := true; ; first = false {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			// csv.ParseError carries the file line
			return nil, fmt.Errorf("failed to parse activity report: %w", err)
		}

		if len(record) == 0 || strings.TrimSpace(record[0]) == "" {
			continue
		}
		if first && isActivityHeader(record[0]) {
			continue
		}

		row := ActivityRow{UserID: strings.TrimSpace(record[0])}
		if len(record) > 1 {
			row.LastActivity = strings.TrimSpace(record[1])
		}
		rows = append(rows, row)
	}

	return rows, nil
}

func isActivityHeader(cell string) bool {
	normalized := strings.NewReplacer("_", "", " ", "", "-", "").Replace(strings.ToLower(strings.TrimSpace(cell)))
	return normalized == "userid" || normalized == "user"
}

// NormalizeActivityDates rewrites each parseable last-activity value with layout. Values the parser
// does not recognize are kept as they are.
func NormalizeActivityDates(rows []ActivityRow, parser *datetime.Parser, layout string, logger *slog.Logger) []ActivityRow {
	if logger == nil {
		logger = slog.Default()
	}

	normalized := make([]ActivityRow, len(rows))
	for i, row := range rows {
		normalized[i] = row
		if row.LastActivity == "" {
			continue
		}
		value, err := parser.Normalize(row.LastActivity, layout)
		if err != nil {
			logger.Warn("keeping unrecognized last-activity value",
				"user_id", row.UserID,
				"value", row.LastActivity)
			continue
		}
		normalized[i].LastActivity = value
	}
	return normalized
}
