package protocol

import (
	"os"
	"path/filepath"
	"testing"
)

func TestExtractRowKeepsLastRow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "csa.csv")
	content := "Filename, VertLevel, MEAN(area)\nseg.nii.gz,2,70.5\nseg.nii.gz,3,66.0\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	row, err := extractRow(path, csaColumns)
	if err != nil {
		t.Fatal(err)
	}
	if row["VertLevel"] != "3" || row["MEAN(area)"] != "66.0" {
		t.Fatalf("unexpected row %v", row)
	}
	if v, ok := row["STD(area)"]; !ok || v != "" {
		t.Fatalf("expected empty STD(area), got %q (present=%v)", v, ok)
	}
}

func TestExtractRowRejectsEmptyTables(t *testing.T) {
	dir := t.TempDir()
	for name, content := range map[string]string{"empty.csv": "", "header.csv": "VertLevel,MEAN(area)\n"} {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
		if _, err := extractRow(path, csaColumns); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}
