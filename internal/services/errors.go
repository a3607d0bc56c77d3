package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrConfiguration   = errors.New("configuration error")
	ErrToolUnavailable = errors.New("tool unavailable")
	ErrExternalTool    = errors.New("external tool error")
	ErrIO              = errors.New("i/o error")
	ErrCancelled       = errors.New("cancelled")
	ErrValidation      = errors.New("validation error")

	ErrEncode  = errors.New("encode failed")
	ErrTag     = errors.New("tagging failed")
	ErrBuild   = errors.New("build failed")
	ErrPublish = errors.New("publish failed")
)

// Outcome is the tag attached to a terminal work unit result.
type Outcome string

const (
	OutcomeOK          Outcome = "ok"
	OutcomeCancelled   Outcome = "cancelled"
	OutcomeToolMissing Outcome = "tool-missing"
	OutcomeSubprocess  Outcome = "subprocess"
	OutcomeIO          Outcome = "io"
	OutcomeFailed      Outcome = "failed"
)

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrIO
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// IsCancellation reports whether err represents a user abort rather than a failure.
func IsCancellation(err error) bool {
	return errors.Is(err, ErrCancelled) || errors.Is(err, context.Canceled)
}

// Classify maps a work unit error to its outcome tag.
func Classify(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeOK
	case IsCancellation(err):
		return OutcomeCancelled
	case errors.Is(err, ErrToolUnavailable):
		return OutcomeToolMissing
	case errors.Is(err, ErrExternalTool):
		return OutcomeSubprocess
	case errors.Is(err, ErrIO):
		return OutcomeIO
	default:
		return OutcomeFailed
	}
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
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
