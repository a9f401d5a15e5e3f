package deps

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func TestCheckBinaries(t *testing.T) {
	binDir := t.TempDir()
	present := filepath.Join(binDir, "present")
	script := []byte("#!/bin/sh\nexit 0\n")
	if err := os.WriteFile(present, script, 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	reqs := []Requirement{
		{Name: "Present", Command: present},
		{Name: "Missing", Command: "clearly-not-present-binary"},
	}

	results := CheckBinaries(reqs)
	if len(results) != len(reqs) {
		t.Fatalf("expected %d results, got %d", len(reqs), len(results))
	}

	if !results[0].Available {
		t.Fatalf("expected first requirement to be available, got %#v", results[0])
	}

	if results[1].Available {
		t.Fatalf("expected missing binary to be unavailable")
	}
	if results[1].Detail == "" {
		t.Fatalf("expected detail message for missing binary")
	}

	if results[1].Command != "clearly-not-present-binary" {
		t.Fatalf("unexpected command recorded: %s", results[1].Command)
	}

	if results[0].Detail != "" {
		t.Fatalf("unexpected detail for available dependency: %s", results[0].Detail)
	}
}

func TestCheckToolsFallsBackToSCTDir(t *testing.T) {
	t.Setenv("PATH", t.TempDir())
	sctDir := t.TempDir()
	binDir := filepath.Join(sctDir, "bin")
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		t.Fatalf("mkdir bin: %v", err)
	}
	launcher := filepath.Join(binDir, executableName("sct_deepseg_sc"))
	if err := os.WriteFile(launcher, []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
		t.Fatalf("write launcher: %v", err)
	}

	reqs := ToolRequirements([]string{"sct_deepseg_sc", "sct_qc"}, nil)
	results := CheckTools(reqs, sctDir)
	if !results[0].Available || results[0].Command != launcher {
		t.Fatalf("expected launcher under SCT_DIR, got %#v", results[0])
	}
	if results[1].Available {
		t.Fatalf("expected sct_qc to be missing, got %#v", results[1])
	}

	if path, ok := ResolveTool("sct_deepseg_sc", sctDir); !ok || path != launcher {
		t.Fatalf("ResolveTool = %q, %v", path, ok)
	}
	if _, ok := ResolveTool("sct_deepseg_sc", ""); ok {
		t.Fatal("expected lookup to fail without SCT_DIR")
	}
}

func TestToolRequirementsUsesConfiguredBinary(t *testing.T) {
	reqs := ToolRequirements([]string{"sct_qc"}, func(name string) string { return "/opt/sct/bin/" + name })
	if len(reqs) != 1 || reqs[0].Command != "/opt/sct/bin/sct_qc" || reqs[0].Name != "sct_qc" {
		t.Fatalf("unexpected requirements %#v", reqs)
	}
}

func TestCheckToolsSkipsNonExecutable(t *testing.T) {
	t.Setenv("PATH", t.TempDir())
	sctDir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(sctDir, "bin"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(sctDir, "bin", executableName("sct_qc")), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if runtime.GOOS == "windows" {
		t.Skip("permission bits are not enforced on windows")
	}
	if results := CheckTools(ToolRequirements([]string{"sct_qc"}, nil), sctDir); results[0].Available {
		t.Fatal("non-executable launcher must not count as available")
	}
}

func executableName(base string) string {
	if runtime.GOOS == "windows" {
		return base + ".exe"
	}
	return base
}
