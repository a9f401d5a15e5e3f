package aggregate

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// Row is one metric record keyed by column name.
type Row map[string]string

// SubjectColumn is the leading column of every table.
const SubjectColumn = "subject"

// TableSpec declares a shared table and its columns.
type TableSpec struct {
	Name    string
	Columns []string
}

// Table is an append-only CSV file shared by all subjects.
type Table struct {
	Name    string
	Path    string
	Columns []string
	out     *appender
}

func newTable(dir string, spec TableSpec) (*Table, error) {
	name := strings.TrimSpace(spec.Name)
	if name == "" || strings.ContainsAny(name, `/\`) {
		return nil, fmt.Errorf("invalid table name %q", spec.Name)
	}
	columns := []string{SubjectColumn}
	seen := map[string]bool{SubjectColumn: true}
	for _, col := range spec.Columns {
		if col == "" || seen[col] {
			return nil, fmt.Errorf("table %s: empty or duplicate column %q", name, col)
		}
		seen[col] = true
		columns = append(columns, col)
	}
	path := filepath.Join(dir, name+".csv")
	return &Table{Name: name, Path: path, Columns: columns, out: newAppender(path)}, nil
}

// Append writes row as a single CSV record. Missing columns are left empty;
// unknown columns are rejected.
func (t *Table) Append(row Row) error {
	if strings.TrimSpace(row[SubjectColumn]) == "" {
		return fmt.Errorf("table %s: row without %s", t.Name, SubjectColumn)
	}
	known := make(map[string]bool, len(t.Columns))
	for _, col := range t.Columns {
		known[col] = true
	}
	for key := range row {
		if !known[key] {
			return fmt.Errorf("table %s: unknown column %q", t.Name, key)
		}
	}
	values := make([]string, len(t.Columns))
	for i, col := range t.Columns {
		values[i] = row[col]
	}
	header, err := encodeRecord(t.Columns)
	if err != nil {
		return err
	}
	record, err := encodeRecord(values)
	if err != nil {
		return err
	}
	return t.out.append(header, record)
}

// Rows reads every data row back.
func (t *Table) Rows() ([]Row, error) {
	f, err := os.Open(t.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read table %s: %w", t.Name, err)
	}
	if len(records) == 0 {
		return nil, nil
	}
	header := records[0]
	rows := make([]Row, 0, len(records)-1)
	for _, rec := range records[1:] {
		row := make(Row, len(header))
		for i, col := range header {
			if i < len(rec) {
				row[col] = rec[i]
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func encodeRecord(values []string) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(values); err != nil {
		return nil, err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Aggregator routes rows to the declared tables.
type Aggregator struct {
	dir    string
	mu     sync.RWMutex
	tables map[string]*Table
}

// NewAggregator declares tables under dir.
func NewAggregator(dir string, specs ...TableSpec) (*Aggregator, error) {
	a := &Aggregator{dir: dir, tables: make(map[string]*Table, len(specs))}
	for _, spec := range specs {
		if err := a.Declare(spec); err != nil {
			return nil, err
		}
	}
	return a, nil
}

// Declare adds a table. Redeclaring a name with the same columns is a no-op.
func (a *Aggregator) Declare(spec TableSpec) error {
	table, err := newTable(a.dir, spec)
	if err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if existing, ok := a.tables[table.Name]; ok {
		if strings.Join(existing.Columns, ",") != strings.Join(table.Columns, ",") {
			return fmt.Errorf("table %s already declared with different columns", table.Name)
		}
		return nil
	}
	a.tables[table.Name] = table
	return nil
}

// Append adds row to the named table.
func (a *Aggregator) Append(table string, row Row) error {
	t, ok := a.Table(table)
	if !ok {
		return fmt.Errorf("metric table %s is not declared", table)
	}
	return t.Append(row)
}

// Table returns the named table.
func (a *Aggregator) Table(name string) (*Table, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	t, ok := a.tables[name]
	return t, ok
}

// Tables returns every declared table sorted by name.
func (a *Aggregator) Tables() []*Table {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]*Table, 0, len(a.tables))
	for _, t := range a.tables {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
