package ledger

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

func scanBatchRow(row *sql.Row) (*Batch, error) {
	b, err := scanBatch(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return b, err
}

func scanBatch(scanner interface{ Scan(dest ...any) error }) (*Batch, error) {
	var (
		b                  Batch
		startedAt          string
		finishedAt, errLog sql.NullString
		cancelled          int
	)
	if err := scanner.Scan(&b.ID, &startedAt, &finishedAt, &b.Subjects, &b.Jobs, &b.Succeeded, &b.Failed,
		&b.Aborted, &b.PostconditionsMissing, &cancelled, &errLog); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan batch: %w", err)
	}
	t, err := parseTimeString(startedAt)
	if err != nil {
		return nil, err
	}
	b.StartedAt = t
	b.FinishedAt = parseNullTime(finishedAt)
	b.Cancelled = cancelled != 0
	b.ErrorLog = errLog.String
	return &b, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableTime(value time.Time) any {
	if value.IsZero() {
		return nil
	}
	return formatTime(value)
}

// timeLayout has fixed-width fractions so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func parseTimeString(value string) (time.Time, error) {
	t, err := time.Parse(timeLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", value, err)
	}
	return t, nil
}

func parseNullTime(value sql.NullString) *time.Time {
	if !value.Valid || value.String == "" {
		return nil
	}
	t, err := parseTimeString(value.String)
	if err != nil {
		return nil
	}
	return &t
}
