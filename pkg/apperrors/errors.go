// Package apperrors provides a typed error taxonomy: each error carries a
// Type so callers at a retry/dispatch boundary can decide what to do with
// it without string-matching messages. The dispatcher wraps failed task
// executions with it; the other components return plain wrapped errors.
package apperrors

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

// ErrorType classifies an AppError for retry and alerting decisions.
type ErrorType string

const (
	// ValidationError covers malformed input: bad config, bad rule
	// conditions, bad event payloads. Never retried.
	ValidationError ErrorType = "validation"
	// NotFoundError covers missing entities (product, task, rule, user).
	NotFoundError ErrorType = "not_found"
	// TransientError covers failures expected to clear on their own:
	// network blips, timeouts, rate-limit rejections, lock contention.
	// Retryable with backoff.
	TransientError ErrorType = "transient"
	// TerminalError covers failures an extractor or channel adapter
	// reports as permanent for this input (e.g. product delisted,
	// recipient unsubscribed). Not retried, but not fatal to the process.
	TerminalError ErrorType = "terminal"
	// ConsistencyError covers state-machine violations: an operation
	// attempted on an entity in the wrong status (e.g. completing an
	// already-cancelled task).
	ConsistencyError ErrorType = "consistency"
	// FatalError covers failures that should stop the owning process:
	// unrecoverable config or storage errors at startup.
	FatalError ErrorType = "fatal"
)

// AppError is an error with a classification, optional wrapped cause, and
// enough context to log or re-raise without losing provenance.
type AppError struct {
	Err       error                  `json:"-"`
	Message   string                 `json:"message"`
	Code      string                 `json:"code,omitempty"`
	Type      ErrorType              `json:"type"`
	Stack     string                 `json:"stack,omitempty"`
	Context   map[string]interface{} `json:"context,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Service   string                 `json:"service,omitempty"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap exposes the wrapped cause to errors.Is/errors.As.
func (e *AppError) Unwrap() error {
	return e.Err
}

// WithContext attaches a key/value pair of diagnostic context.
func (e *AppError) WithContext(key string, value any) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// WithService sets the service name that produced the error.
func (e *AppError) WithService(service string) *AppError {
	e.Service = service
	return e
}

// WithCode sets a short machine-readable error code.
func (e *AppError) WithCode(code string) *AppError {
	e.Code = code
	return e
}

// ToJSON serializes the error for structured logging.
func (e *AppError) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// Is compares two AppErrors by type and code, so errors.Is works across
// instances built with the same New/Wrap call site.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Type == t.Type && e.Code == t.Code
}

// New builds an AppError of the given type with a call stack attached.
func New(t ErrorType, message string) *AppError {
	return &AppError{
		Type:      t,
		Message:   message,
		Stack:     getStack(),
		Timestamp: time.Now(),
	}
}

// Wrap classifies an existing error, preserving it as the cause. If err is
// already an AppError, its type, code, cause and stack are kept, t is
// ignored, and message is prefixed onto the existing message.
func Wrap(err error, t ErrorType, message string) *AppError {
	if err == nil {
		return nil
	}
	if existing, ok := err.(*AppError); ok {
		return &AppError{
			Err:       existing.Err,
			Message:   fmt.Sprintf("%s: %s", message, existing.Message),
			Code:      existing.Code,
			Type:      existing.Type,
			Stack:     existing.Stack,
			Context:   existing.Context,
			Timestamp: existing.Timestamp,
			Service:   existing.Service,
		}
	}
	return &AppError{
		Err:       err,
		Message:   message,
		Type:      t,
		Stack:     getStack(),
		Timestamp: time.Now(),
	}
}

func getStack() string {
	const depth = 32
	var pcs [depth]uintptr
	n := runtime.Callers(3, pcs[:])
	frames := runtime.CallersFrames(pcs[:n])

	var stack strings.Builder
	for {
		frame, more := frames.Next()
		if !strings.Contains(frame.File, "runtime/") && !strings.Contains(frame.File, "apperrors/errors.go") {
			stack.WriteString(fmt.Sprintf("%s:%d %s\n",
				filepath.Base(frame.File), frame.Line, frame.Function))
		}
		if !more {
			break
		}
	}
	return stack.String()
}

// IsTimeout reports whether err represents a timeout, either through the
// standard Timeout() interface or a deadline-exceeded message.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if t, ok := err.(interface{ Timeout() bool }); ok {
		return t.Timeout()
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "deadline exceeded") ||
		strings.Contains(msg, "context deadline exceeded")
}

// IsRetryable reports whether err should be retried by the dispatcher or
// notification pipeline's backoff loop.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if appErr, ok := err.(*AppError); ok {
		return appErr.Type == TransientError
	}
	if IsTimeout(err) {
		return true
	}
	if t, ok := err.(interface{ Temporary() bool }); ok {
		return t.Temporary()
	}
	return false
}
