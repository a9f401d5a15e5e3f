package main

import (
	"strings"
	"testing"

	"cordflow/internal/pipeline"
)

func TestStatusLabel(t *testing.T) {
	cases := map[string]string{
		"not_started":    "Not Started",
		"succeeded":      "Succeeded",
		"missing_source": "Missing Source",
		"":               "",
	}
	for in, want := range cases {
		if got := statusLabel(in); got != want {
			t.Errorf("statusLabel(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestRunStatusKind(t *testing.T) {
	if runStatusKind(pipeline.StatusSucceeded, 0) != statusOK {
		t.Fatal("clean success should be OK")
	}
	if runStatusKind(pipeline.StatusSucceeded, 1) != statusWarn {
		t.Fatal("success with missing postconditions should warn")
	}
	if runStatusKind(pipeline.StatusFailed, 0) != statusError {
		t.Fatal("failure should be an error")
	}
	if runStatusKind(pipeline.StatusAborted, 0) != statusWarn {
		t.Fatal("abort should warn")
	}
}

func TestRenderStatusLineColorizes(t *testing.T) {
	plain := renderStatusLine("Subjects", statusOK, "2 succeeded", false)
	if strings.Contains(plain, "\x1b[") || !strings.Contains(plain, "[OK] 2 succeeded") {
		t.Fatalf("unexpected plain line %q", plain)
	}
	colored := renderStatusLine("Subjects", statusError, "", true)
	if !strings.HasPrefix(colored, ansiRed) || !strings.HasSuffix(colored, ansiReset) {
		t.Fatalf("unexpected colored line %q", colored)
	}
}

func TestDescribeFailureTruncates(t *testing.T) {
	got := describeFailure("ToolInvocationFailure", strings.Repeat("x", 100))
	if len(got) != reasonWidth || !strings.HasSuffix(got, "...") {
		t.Fatalf("unexpected %q", got)
	}
	if describeFailure("", "ignored") != "" {
		t.Fatal("no kind means no failure")
	}
}
