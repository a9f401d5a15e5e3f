package protocol

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"cordflow/internal/aggregate"
)

// SegSourceColumn records whether the segmentation behind a row was manual.
const SegSourceColumn = "seg_source"

var (
	csaColumns = []string{"VertLevel", "MEAN(area)", "STD(area)"}
	dtiColumns = []string{"Label", "VertLevel", "WA()", "STD()"}
)

func csaTable(name string) aggregate.TableSpec {
	return aggregate.TableSpec{Name: name, Columns: append(append([]string(nil), csaColumns...), SegSourceColumn)}
}

func dtiTable() aggregate.TableSpec {
	return aggregate.TableSpec{Name: TableDTI, Columns: append(append([]string(nil), dtiColumns...), SegSourceColumn)}
}

// extractRow reads a per-subject metric file and keeps the declared columns
// of its last data row. Columns the tool did not write are left empty.
func extractRow(path string, columns []string) (aggregate.Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	header, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%s is empty", path)
		}
		return nil, err
	}
	var last []string
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		last = rec
	}
	if last == nil {
		return nil, fmt.Errorf("%s has no data rows", path)
	}

	index := make(map[string]int, len(header))
	for i, col := range header {
		index[strings.TrimSpace(col)] = i
	}
	row := make(aggregate.Row, len(columns)+2)
	for _, col := range columns {
		if i, ok := index[col]; ok && i < len(last) {
			row[col] = strings.TrimSpace(last[i])
		} else {
			row[col] = ""
		}
	}
	return row, nil
}
