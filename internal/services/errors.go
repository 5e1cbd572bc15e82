package services

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

var (
	ErrValidation       = errors.New("validation error")
	ErrNoInputAvailable = errors.New("no input available")
	ErrToolExecution    = errors.New("tool execution error")
	ErrEncoding         = errors.New("encoding failure")
	ErrPersistence      = errors.New("persistence warning")
	ErrConfiguration    = errors.New("configuration error")
	ErrNotFound         = errors.New("not found")
	ErrTimeout          = errors.New("timeout")
	ErrTransient        = errors.New("transient failure")
)

// Kind classifies a failure by the marker it carries.
type Kind string

const (
	KindValidation    Kind = "validation"
	KindNoInput       Kind = "no_input"
	KindToolExecution Kind = "tool_execution"
	KindEncoding      Kind = "encoding"
	KindPersistence   Kind = "persistence"
	KindConfiguration Kind = "configuration"
	KindNotFound      Kind = "not_found"
	KindTimeout       Kind = "timeout"
	KindTransient     Kind = "transient"
	KindUnknown       Kind = "unknown"
)

// Failure codes surfaced on terminal workflow errors. Clients switch on these
// to decide which retry affordance to offer.
const (
	CodeNoRelevantContent = "no_relevant_content"
	CodeMissingFile       = "missing_file"
	CodeInvalidOutput     = "invalid_output"
	CodeEncodingFailure   = "encoding_failure"
	CodeTransient         = "transient"
	CodeToolFailure       = "tool_failure"
	CodeConfiguration     = "configuration"
)

// Error is the structured error produced by Wrap. It keeps the marker, the
// stage/operation context and an optional failure code separate so callers
// can inspect them without parsing strings.
type Error struct {
	Marker    error
	Stage     string
	Operation string
	Message   string
	Code      string
	Hint      string
	Cause     error
}

func (e *Error) Error() string {
	detail := buildDetail(e.Stage, e.Operation, e.Message)
	marker := e.Marker
	if marker == nil {
		marker = ErrTransient
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %s", marker.Error(), detail, e.Cause.Error())
	}
	return fmt.Sprintf("%s: %s", marker.Error(), detail)
}

// Unwrap exposes both the marker and the cause to errors.Is/As.
func (e *Error) Unwrap() []error {
	out := make([]error, 0, 2)
	if e.Marker != nil {
		out = append(out, e.Marker)
	}
	if e.Cause != nil {
		out = append(out, e.Cause)
	}
	return out
}

// Wrap builds an error that includes stage context while tagging it with the
// provided marker for later classification. The marker should be one of the
// exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	if marker == nil {
		marker = ErrTransient
	}
	return &Error{
		Marker:    marker,
		Stage:     strings.TrimSpace(stage),
		Operation: strings.TrimSpace(operation),
		Message:   strings.TrimSpace(message),
		Cause:     err,
	}
}

// WithCode attaches a failure code to an error built by Wrap. Errors that did
// not come from Wrap are wrapped first with ErrTransient.
func WithCode(err error, code string) error {
	if err == nil {
		return nil
	}
	var svcErr *Error
	if errors.As(err, &svcErr) {
		clone := *svcErr
		clone.Code = code
		return &clone
	}
	return &Error{Marker: ErrTransient, Code: code, Cause: err}
}

// WithHint attaches an operator-facing hint to an error built by Wrap.
func WithHint(err error, hint string) error {
	if err == nil {
		return nil
	}
	var svcErr *Error
	if errors.As(err, &svcErr) {
		clone := *svcErr
		clone.Hint = strings.TrimSpace(hint)
		return &clone
	}
	return &Error{Marker: ErrTransient, Hint: strings.TrimSpace(hint), Cause: err}
}

// ErrorDetails is the flattened view of a failure used for logging and for
// terminal workflow events.
type ErrorDetails struct {
	Kind      Kind
	Code      string
	Message   string
	Stage     string
	Operation string
	Hint      string
	Cause     error
}

// Details extracts the structured fields from err. Errors without a services
// wrapper still receive a kind and code derived from their chain.
func Details(err error) ErrorDetails {
	if err == nil {
		return ErrorDetails{Kind: KindUnknown}
	}
	details := ErrorDetails{Kind: KindOf(err), Message: strings.TrimSpace(err.Error())}
	var svcErr *Error
	if errors.As(err, &svcErr) {
		details.Stage = svcErr.Stage
		details.Operation = svcErr.Operation
		details.Hint = svcErr.Hint
		details.Code = svcErr.Code
		details.Cause = svcErr.Cause
	}
	if details.Code == "" {
		details.Code = codeForKind(details.Kind)
	}
	return details
}

// KindOf reports the marker kind carried by err.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindUnknown
	case errors.Is(err, ErrNoInputAvailable):
		return KindNoInput
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrEncoding):
		return KindEncoding
	case errors.Is(err, ErrConfiguration):
		return KindConfiguration
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrTimeout):
		return KindTimeout
	case errors.Is(err, ErrPersistence):
		return KindPersistence
	case errors.Is(err, ErrTransient):
		return KindTransient
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return KindTransient
	}
	if errors.Is(err, ErrToolExecution) {
		return KindToolExecution
	}
	return KindUnknown
}

func codeForKind(kind Kind) string {
	switch kind {
	case KindNoInput:
		return CodeNoRelevantContent
	case KindNotFound:
		return CodeMissingFile
	case KindValidation:
		return CodeInvalidOutput
	case KindEncoding:
		return CodeEncodingFailure
	case KindTimeout, KindTransient:
		return CodeTransient
	case KindConfiguration:
		return CodeConfiguration
	default:
		return CodeToolFailure
	}
}

// IsRetryable reports whether the failure is worth offering a retry for.
func IsRetryable(err error) bool {
	switch KindOf(err) {
	case KindTransient, KindTimeout:
		return true
	default:
		return false
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
