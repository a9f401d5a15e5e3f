// Package qc records the audit trail of how every artifact was obtained.
package qc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Entry describes one resolver decision.
type Entry struct {
	Time     time.Time `json:"time"`
	Subject  string    `json:"subject"`
	Stage    string    `json:"stage,omitempty"`
	Artifact string    `json:"artifact"`
	Source   string    `json:"source"`
	Path     string    `json:"path"`
	Override string    `json:"override,omitempty"`
	Command  string    `json:"command,omitempty"`
	Verified bool      `json:"verified,omitempty"`
	Error    string    `json:"error,omitempty"`
}

// Sink consumes audit entries.
type Sink interface {
	Record(ctx context.Context, entry Entry) error
}

// FileSink appends JSON lines to <root>/<subject>/audit.jsonl.
type FileSink struct {
	root string
	mu   sync.Mutex
}

// NewFileSink returns a sink rooted at dir.
func NewFileSink(dir string) *FileSink {
	return &FileSink{root: dir}
}

// Path returns the audit file for subject.
func (s *FileSink) Path(subject string) string {
	return filepath.Join(s.root, subject, "audit.jsonl")
}

// Record appends entry to the subject's audit file.
func (s *FileSink) Record(_ context.Context, entry Entry) error {
	if entry.Subject == "" {
		return fmt.Errorf("qc entry for %s: subject required", entry.Artifact)
	}
	if entry.Time.IsZero() {
		entry.Time = time.Now().UTC()
	}
	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode qc entry: %w", err)
	}
	line = append(line, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.Path(entry.Subject)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create qc dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open qc audit: %w", err)
	}
	if _, err := f.Write(line); err != nil {
		_ = f.Close()
		return fmt.Errorf("write qc audit: %w", err)
	}
	return f.Close()
}

// ReadEntries loads every entry recorded for subject.
func (s *FileSink) ReadEntries(subject string) ([]Entry, error) {
	data, err := os.ReadFile(s.Path(subject))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var entries []Entry
	dec := json.NewDecoder(bytes.NewReader(data))
	for dec.More() {
		var e Entry
		if err := dec.Decode(&e); err != nil {
			return nil, fmt.Errorf("decode qc audit: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// Memory keeps entries in memory.
type Memory struct {
	mu      sync.Mutex
	entries []Entry
}

// Record stores entry.
func (m *Memory) Record(_ context.Context, entry Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entry)
	return nil
}

// Entries returns a copy of the recorded entries.
func (m *Memory) Entries() []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Entry(nil), m.entries...)
}
