package campaign

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrorKind identifies one member of the closed error taxonomy.
// Every error raised by the orchestration core is an *Error carrying one of
// these kinds, so callers can exhaustively branch on the failure class
// instead of matching message strings.
type ErrorKind string

const (
	// KindPathResolution indicates no candidate campaign root validated.
	KindPathResolution ErrorKind = "PathResolutionError"

	// KindFileOperation indicates a storage operation failed. Retryable at
	// the operation level; fatal once retries are exhausted.
	KindFileOperation ErrorKind = "FileOperationError"

	// KindHandoffValidation indicates a handoff artifact failed validation.
	// No partial handoff is ever accepted.
	KindHandoffValidation ErrorKind = "HandoffValidationError"

	// KindDataExtraction indicates a required field or payload could not be
	// extracted. Raised instead of silently defaulting the value.
	KindDataExtraction ErrorKind = "DataExtractionError"

	// KindConfiguration indicates required settings or recoverable campaign
	// identity are absent. Raised before any stage work begins.
	KindConfiguration ErrorKind = "ConfigurationError"
)

// Severity classifies how an error terminates processing.
type Severity string

const (
	// SeverityFatal errors propagate to the driver and fail the campaign.
	SeverityFatal Severity = "fatal"

	// SeverityRecoverable errors may be retried by the storage layer.
	SeverityRecoverable Severity = "recoverable"
)

// Error is the single concrete error type of the orchestration core.
// It carries diagnostic context as key/value pairs so failures can be
// recorded on the campaign without losing information.
type Error struct {
	Kind      ErrorKind
	Message   string
	Context   map[string]string
	Retryable bool
	Severity  Severity
	cause     error
}

// Error implements the error interface. Context keys are rendered sorted so
// messages are stable for logs and assertions.
func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s", e.Kind, e.Message)

	if len(e.Context) > 0 {
		keys := make([]string, 0, len(e.Context))
		for k := range e.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		pairs := make([]string, 0, len(keys))
		for _, k := range keys {
			pairs = append(pairs, fmt.Sprintf("%s=%s", k, e.Context[k]))
		}
		fmt.Fprintf(&b, " (%s)", strings.Join(pairs, ", "))
	}

	if e.cause != nil {
		fmt.Fprintf(&b, ": %v", e.cause)
	}

	return b.String()
}

// Unwrap exposes the underlying cause for errors.Is/errors.As chains.
func (e *Error) Unwrap() error {
	return e.cause
}

// WithContext attaches a diagnostic key/value pair and returns the error for
// chaining at raise sites.
func (e *Error) WithContext(key, value string) *Error {
	if e.Context == nil {
		e.Context = make(map[string]string)
	}
	e.Context[key] = value
	return e
}

// WithCause records the underlying error.
func (e *Error) WithCause(cause error) *Error {
	e.cause = cause
	return e
}

// NewPathResolutionError creates a fatal path resolution failure.
func NewPathResolutionError(format string, a ...any) *Error {
	return &Error{
		Kind:     KindPathResolution,
		Message:  fmt.Sprintf(format, a...),
		Severity: SeverityFatal,
	}
}

// NewFileOperationError creates a recoverable storage failure. The storage
// layer retries these; once attempts are exhausted it re-raises the failure
// as fatal via Fatal().
func NewFileOperationError(format string, a ...any) *Error {
	return &Error{
		Kind:      KindFileOperation,
		Message:   fmt.Sprintf(format, a...),
		Retryable: true,
		Severity:  SeverityRecoverable,
	}
}

// NewHandoffValidationError creates a fatal handoff validation failure.
func NewHandoffValidationError(format string, a ...any) *Error {
	return &Error{
		Kind:     KindHandoffValidation,
		Message:  fmt.Sprintf(format, a...),
		Severity: SeverityFatal,
	}
}

// NewDataExtractionError creates a fatal extraction failure for a missing or
// malformed required field.
func NewDataExtractionError(format string, a ...any) *Error {
	return &Error{
		Kind:     KindDataExtraction,
		Message:  fmt.Sprintf(format, a...),
		Severity: SeverityFatal,
	}
}

// NewConfigurationError creates a fatal configuration failure.
func NewConfigurationError(format string, a ...any) *Error {
	return &Error{
		Kind:     KindConfiguration,
		Message:  fmt.Sprintf(format, a...),
		Severity: SeverityFatal,
	}
}

// Fatal returns a copy of the error downgraded to non-retryable fatal.
// Used by the storage layer after retries are exhausted so callers only ever
// observe a final success or a fatal failure.
func (e *Error) Fatal() *Error {
	clone := *e
	clone.Retryable = false
	clone.Severity = SeverityFatal
	if len(e.Context) > 0 {
		clone.Context = make(map[string]string, len(e.Context))
		for k, v := range e.Context {
			clone.Context[k] = v
		}
	}
	return &clone
}

// KindOf extracts the taxonomy kind from an error chain. Returns an empty
// kind and false for errors raised outside the taxonomy.
func KindOf(err error) (ErrorKind, bool) {
	var coreErr *Error
	if errors.As(err, &coreErr) {
		return coreErr.Kind, true
	}
	return "", false
}

// IsKind reports whether any error in the chain carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}

// IsRetryable reports whether the error may be retried. Errors from outside
// the taxonomy are treated as retryable storage faults: transient filesystem
// errors surface as raw *os.PathError values before classification.
func IsRetryable(err error) bool {
	var coreErr *Error
	if errors.As(err, &coreErr) {
		return coreErr.Retryable
	}
	return err != nil
}
