package aggregate

import (
	"os"
	"strings"

	"cordflow/internal/services"
)

// MissingReason is the reason recorded for an absent postcondition artifact.
const MissingReason = "does not exist"

// ErrorLog is the shared append-only record of failures. Each line reads
// <subject>/<artifact> <reason>.
type ErrorLog struct {
	Path string
	out  *appender
}

// NewErrorLog returns the log at path.
func NewErrorLog(path string) *ErrorLog {
	return &ErrorLog{Path: path, out: newAppender(path)}
}

// Record appends one line.
func (l *ErrorLog) Record(subject, artifactName, reason string) error {
	line := subject + "/" + artifactName + " " + singleLine(reason) + "\n"
	return l.out.append(nil, []byte(line))
}

// RecordMissing logs a postcondition miss.
func (l *ErrorLog) RecordMissing(subject, artifactName string) error {
	return l.Record(subject, artifactName, MissingReason)
}

// RecordFailure logs an unrecoverable stage error with its kind.
func (l *ErrorLog) RecordFailure(subject, artifactName string, err error) error {
	return l.Record(subject, artifactName, services.Kind(err)+": "+services.Message(err))
}

// Lines returns the recorded lines.
func (l *ErrorLog) Lines() ([]string, error) {
	data, err := os.ReadFile(l.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var lines []string
	for _, line := range strings.Split(string(data), "\n") {
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines, nil
}

// IsMissingLine reports whether line records a postcondition miss.
func IsMissingLine(line string) bool {
	return strings.HasSuffix(line, " "+MissingReason)
}

func singleLine(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "unknown error"
	}
	return strings.Join(strings.Fields(s), " ")
}
