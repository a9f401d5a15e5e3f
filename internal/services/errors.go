package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrToolInvocation marks an automated tool that exited non-zero or did not
	// produce its declared outputs.
	ErrToolInvocation = errors.New("tool invocation failure")
	// ErrOverrideRead marks a manual override that exists but cannot be used.
	ErrOverrideRead = errors.New("override read failure")
	// ErrMissingUpstream marks a stage input that was never produced.
	ErrMissingUpstream = errors.New("missing upstream artifact")
	// ErrPostconditionMissing marks an expected final artifact that is absent.
	ErrPostconditionMissing = errors.New("postcondition missing")
	// ErrInterrupted marks work stopped by an external interrupt.
	ErrInterrupted   = errors.New("interrupted run")
	ErrValidation    = errors.New("validation error")
	ErrConfiguration = errors.New("configuration error")
)

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later outcome classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrToolInvocation
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Kind returns the short taxonomy label for err. Context cancellation is
// always reported as an interrupt regardless of the marker it carries.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case IsInterrupted(err):
		return "InterruptedRun"
	case errors.Is(err, ErrOverrideRead):
		return "OverrideReadFailure"
	case errors.Is(err, ErrMissingUpstream):
		return "MissingUpstreamArtifact"
	case errors.Is(err, ErrPostconditionMissing):
		return "PostconditionMissing"
	case errors.Is(err, ErrToolInvocation):
		return "ToolInvocationFailure"
	case errors.Is(err, ErrConfiguration):
		return "ConfigurationError"
	case errors.Is(err, ErrValidation):
		return "ValidationError"
	default:
		return "UnexpectedTermination"
	}
}

// IsInterrupted reports whether err stems from an external interrupt.
func IsInterrupted(err error) bool {
	return errors.Is(err, ErrInterrupted) || errors.Is(err, context.Canceled)
}

// Message strips the marker prefix so the remaining text can be shown to
// users in error logs and summaries.
func Message(err error) string {
	if err == nil {
		return ""
	}
	msg := strings.TrimSpace(err.Error())
	for _, marker := range []error{ErrToolInvocation, ErrOverrideRead, ErrMissingUpstream, ErrPostconditionMissing, ErrInterrupted, ErrValidation, ErrConfiguration} {
		if errors.Is(err, marker) {
			msg = strings.TrimPrefix(msg, marker.Error()+": ")
			break
		}
	}
	return msg
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "pipeline failure"
	}
	return strings.Join(parts, ": ")
}
