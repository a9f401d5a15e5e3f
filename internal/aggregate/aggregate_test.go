package aggregate

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"

	"cordflow/internal/services"
)

func TestConcurrentAppendKeepsRowsWhole(t *testing.T) {
	const workers = 8
	const perWorker = 100

	agg, err := NewAggregator(t.TempDir(), TableSpec{Name: "csa-t2w", Columns: []string{"seq", "payload"}})
	if err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			payload := strings.Repeat(fmt.Sprintf("w%d,", w), 200)
			for i := 0; i < perWorker; i++ {
				row := Row{SubjectColumn: fmt.Sprintf("sub-%02d", w), "seq": strconv.Itoa(i), "payload": payload}
				if err := agg.Append("csa-t2w", row); err != nil {
					errs <- err
					return
				}
			}
		}(w)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("append: %v", err)
	}

	table, _ := agg.Table("csa-t2w")
	f, err := os.Open(table.Path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("table is not well-formed CSV: %v", err)
	}
	if len(records) != workers*perWorker+1 {
		t.Fatalf("expected %d records, got %d", workers*perWorker+1, len(records))
	}
	if strings.Join(records[0], ",") != "subject,seq,payload" {
		t.Fatalf("unexpected header %v", records[0])
	}

	next := make(map[string]int)
	for _, rec := range records[1:] {
		if len(rec) != 3 {
			t.Fatalf("malformed row %v", rec)
		}
		seq, err := strconv.Atoi(rec[1])
		if err != nil {
			t.Fatalf("bad seq in %v", rec)
		}
		if seq != next[rec[0]] {
			t.Fatalf("%s: expected seq %d, got %d", rec[0], next[rec[0]], seq)
		}
		next[rec[0]]++
		w := strings.TrimPrefix(rec[0], "sub-")
		w = strings.TrimLeft(w, "0")
		if w == "" {
			w = "0"
		}
		if !strings.HasPrefix(rec[2], "w"+w+",") {
			t.Fatalf("payload of %s interleaved: %.20s", rec[0], rec[2])
		}
	}
	for subject, n := range next {
		if n != perWorker {
			t.Fatalf("%s: expected %d rows, got %d", subject, perWorker, n)
		}
	}
}

func TestAppendLeavesMissingColumnsEmpty(t *testing.T) {
	agg, err := NewAggregator(t.TempDir(), TableSpec{Name: "dti-fa", Columns: []string{"label", "mean"}})
	if err != nil {
		t.Fatal(err)
	}
	if err := agg.Append("dti-fa", Row{SubjectColumn: "sub-01", "mean": "0.71"}); err != nil {
		t.Fatal(err)
	}
	table, _ := agg.Table("dti-fa")
	rows, err := table.Rows()
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || rows[0]["label"] != "" || rows[0]["mean"] != "0.71" {
		t.Fatalf("unexpected rows %+v", rows)
	}
}

func TestAppendRejectsInvalidRows(t *testing.T) {
	agg, err := NewAggregator(t.TempDir(), TableSpec{Name: "csa", Columns: []string{"area"}})
	if err != nil {
		t.Fatal(err)
	}
	if err := agg.Append("csa", Row{SubjectColumn: "sub-01", "volume": "1"}); err == nil {
		t.Fatal("expected unknown column error")
	}
	if err := agg.Append("csa", Row{"area": "1"}); err == nil {
		t.Fatal("expected missing subject error")
	}
	if err := agg.Append("other", Row{SubjectColumn: "sub-01"}); err == nil {
		t.Fatal("expected undeclared table error")
	}
}

func TestDeclareConflicts(t *testing.T) {
	agg, err := NewAggregator(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if err := agg.Declare(TableSpec{Name: "csa", Columns: []string{"area"}}); err != nil {
		t.Fatal(err)
	}
	if err := agg.Declare(TableSpec{Name: "csa", Columns: []string{"area"}}); err != nil {
		t.Fatalf("identical redeclare should succeed: %v", err)
	}
	if err := agg.Declare(TableSpec{Name: "csa", Columns: []string{"volume"}}); err == nil {
		t.Fatal("expected conflicting declare to fail")
	}
	if err := agg.Declare(TableSpec{Name: "../escape"}); err == nil {
		t.Fatal("expected invalid name to fail")
	}
}

func TestErrorLogLines(t *testing.T) {
	log := NewErrorLog(filepath.Join(t.TempDir(), "log", "error.log"))
	if lines, err := log.Lines(); err != nil || len(lines) != 0 {
		t.Fatalf("expected empty log, got %v %v", lines, err)
	}
	if err := log.RecordMissing("sub-01", "t2w_seg.nii.gz"); err != nil {
		t.Fatal(err)
	}
	stageErr := services.Wrap(services.ErrToolInvocation, "t2w.segment", "sct_deepseg_sc", "exit status 1\nstack trace", errors.New("run command"))
	if err := log.RecordFailure("sub-02", "t2w_seg.nii.gz", stageErr); err != nil {
		t.Fatal(err)
	}

	lines, err := log.Lines()
	if err != nil {
		t.Fatal(err)
	}
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %v", lines)
	}
	if lines[0] != "sub-01/t2w_seg.nii.gz does not exist" || !IsMissingLine(lines[0]) {
		t.Fatalf("unexpected missing line %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "sub-02/t2w_seg.nii.gz ToolInvocationFailure: t2w.segment") || IsMissingLine(lines[1]) {
		t.Fatalf("unexpected failure line %q", lines[1])
	}
}
