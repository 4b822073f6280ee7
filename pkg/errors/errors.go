// Package errors provides the unified error type and factory functions for the
// ResearchPool-Intelligence platform.  Every layer of the application (domain,
// application, infrastructure, interfaces) uses AppError as the single carrier
// for structured error information, enabling consistent HTTP responses,
// logging, and monitoring.
package errors

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"
)

// stackDepth is the maximum number of frames captured per error.
const stackDepth = 32

// captureStack returns a formatted call-stack string starting two frames above
// the caller (skipping captureStack itself and the factory function).
func captureStack(skip int) string {
	pcs := make([]uintptr, stackDepth)
	n := runtime.Callers(skip+2, pcs)
	if n == 0 {
		return ""
	}
	frames := runtime.CallersFrames(pcs[:n])
	var sb strings.Builder
	for {
		f, more := frames.Next()
		// Trim standard-library noise to keep traces readable.
		if !strings.Contains(f.File, "runtime/") {
			fmt.Fprintf(&sb, "\n\t%s:%d %s", f.File, f.Line, f.Function)
		}
		if !more {
			break
		}
	}
	return sb.String()
}

// AppError is the single structured error type used throughout
// ResearchPool-Intelligence.  It satisfies the standard error interface and
// supports Go 1.13+ error wrapping so that errors.Is / errors.As /
// errors.Unwrap work transparently across all layers of the application.
//
// Usage:
//
//	return errors.New(errors.CodeItemNotFound, "research item not found")
//	return errors.Wrap(repoErr, errors.CodeStoragePersistent, "failed to insert item")
//	return errors.RateLimitAfter("aggregator window saturated", 12*time.Second)
type AppError struct {
	// Code is the typed error code that uniquely identifies the failure category.
	Code ErrorCode

	// Message is the primary human-readable description of the error, suitable
	// for inclusion in API responses returned to callers.  It must never carry
	// raw driver errors, credentials, or stack fragments.
	Message string

	// Detail carries supplementary context (query parameters, entity IDs, etc.)
	// that aids debugging.  Detail is logged, never returned to callers.
	Detail string

	// Cause is the underlying error that triggered this AppError, enabling
	// errors.Is / errors.As traversal of the full error chain.
	Cause error

	// RetryAfter is a hint for rate-limited failures: how long the caller
	// should wait before retrying.  Zero means no hint.
	RetryAfter time.Duration

	// Stack contains the formatted call-stack captured at the point of error
	// creation.  It is intentionally not included in Error() output; structured
	// logging middleware reads the field directly.
	Stack string
}

// Error implements the standard error interface.
// Format: "[<code>] <message>: <detail>", detail omitted when empty.
func (e *AppError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.Message, e.Detail)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause error, enabling errors.Is and errors.As
// to traverse the full error chain without boilerplate at call sites.
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithDetail returns a shallow copy of the receiver with Detail set.
// Safe to call on a nil pointer (returns nil).
func (e *AppError) WithDetail(detail string) *AppError {
	if e == nil {
		return nil
	}
	clone := *e
	clone.Detail = detail
	return &clone
}

// WithCause returns a shallow copy of the receiver with Cause set to err.
func (e *AppError) WithCause(err error) *AppError {
	if e == nil {
		return nil
	}
	clone := *e
	clone.Cause = err
	return &clone
}

// WithRetryAfter returns a shallow copy of the receiver carrying a retry hint.
func (e *AppError) WithRetryAfter(d time.Duration) *AppError {
	if e == nil {
		return nil
	}
	clone := *e
	clone.RetryAfter = d
	return &clone
}

// New constructs a fresh AppError with the given code and message.
// Prefer New for errors that originate in the current layer without an
// underlying cause from a lower layer.
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Stack:   captureStack(1),
	}
}

// Newf is New with fmt.Sprintf formatting of the message.
func Newf(code ErrorCode, format string, args ...interface{}) *AppError {
	return &AppError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Stack:   captureStack(1),
	}
}

// Wrap constructs an AppError that wraps an existing error.
// If err is nil, Wrap returns nil so it can be used inline.
//
// When err is already an *AppError and code is CodeUnknown the original code
// is preserved, preventing loss of the original classification during
// cross-layer propagation.  A RetryAfter hint on the wrapped error is carried
// forward.
func Wrap(err error, code ErrorCode, message string) *AppError {
	if err == nil {
		return nil
	}
	var retryAfter time.Duration
	var ae *AppError
	if errors.As(err, &ae) {
		if code == CodeUnknown {
			code = ae.Code
		}
		retryAfter = ae.RetryAfter
	}
	return &AppError{
		Code:       code,
		Message:    message,
		Cause:      err,
		RetryAfter: retryAfter,
		Stack:      captureStack(1),
	}
}

// Wrapf is Wrap with fmt.Sprintf formatting of the message.
func Wrapf(err error, code ErrorCode, format string, args ...interface{}) *AppError {
	if err == nil {
		return nil
	}
	ae := Wrap(err, code, fmt.Sprintf(format, args...))
	ae.Stack = captureStack(1)
	return ae
}

// IsCode reports whether any error in err's chain is an *AppError with the
// given code.
//
//	if errors.IsCode(err, errors.CodeSourceRateLimited) { ... }
func IsCode(err error, code ErrorCode) bool {
	var ae *AppError
	for err != nil {
		if errors.As(err, &ae) && ae.Code == code {
			return true
		}
		err = errors.Unwrap(err)
	}
	return false
}

// IsNotFound reports whether any error in err's chain carries CodeNotFound or
// CodeItemNotFound.
func IsNotFound(err error) bool {
	var ae *AppError
	for err != nil {
		if errors.As(err, &ae) {
			switch ae.Code {
			case CodeNotFound, CodeItemNotFound:
				return true
			}
		}
		err = errors.Unwrap(err)
	}
	return false
}

// IsValidation reports whether any error in err's chain carries a validation
// class code (CodeValidation, CodeInvalidParam, CodeItemInvalid, CodeConfigInvalid).
func IsValidation(err error) bool {
	var ae *AppError
	for err != nil {
		if errors.As(err, &ae) {
			switch ae.Code {
			case CodeValidation, CodeInvalidParam, CodeItemInvalid, CodeConfigInvalid:
				return true
			}
		}
		err = errors.Unwrap(err)
	}
	return false
}

// IsConflict reports whether any error in err's chain carries CodeConflict or
// CodeItemExists.
func IsConflict(err error) bool {
	var ae *AppError
	for err != nil {
		if errors.As(err, &ae) {
			switch ae.Code {
			case CodeConflict, CodeItemExists, CodePipelineRunning:
				return true
			}
		}
		err = errors.Unwrap(err)
	}
	return false
}

// IsRateLimited reports whether any error in err's chain is a rate-limit
// rejection, from the local limiter or from an upstream source.
func IsRateLimited(err error) bool {
	return IsCode(err, CodeRateLimit) || IsCode(err, CodeSourceRateLimited)
}

// IsCancelled reports whether any error in err's chain is a cancellation,
// including bare context errors.
func IsCancelled(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return IsCode(err, CodeCancelled)
}

// IsTransient reports whether any error in err's chain is a transient source
// failure that retry middleware may reattempt.
func IsTransient(err error) bool {
	return IsCode(err, CodeSourceTransient) || IsCode(err, CodeUnavailable)
}

// GetCode extracts the ErrorCode from the first *AppError found in err's
// chain.  If no *AppError is present, CodeUnknown is returned; nil yields
// CodeOK.  Useful in middleware that needs a single code as a metric label.
func GetCode(err error) ErrorCode {
	if err == nil {
		return CodeOK
	}
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Code
	}
	return CodeUnknown
}

// GetRetryAfter extracts the retry-after hint from the first *AppError in the
// chain.  The boolean is false when no hint is present.
func GetRetryAfter(err error) (time.Duration, bool) {
	var ae *AppError
	if errors.As(err, &ae) && ae.RetryAfter > 0 {
		return ae.RetryAfter, true
	}
	return 0, false
}

// SafeDescription returns the caller-visible description of err: the AppError
// message and code when present, or a generic fallback.  Raw causes and stack
// fragments are never included.
func SafeDescription(err error) string {
	if err == nil {
		return ""
	}
	var ae *AppError
	if errors.As(err, &ae) {
		return fmt.Sprintf("%s: %s", ae.Code, ae.Message)
	}
	return DefaultMessageForCode(CodeUnknown)
}

// NotFound constructs a CodeNotFound AppError.  Prefer CodeItemNotFound for
// Pool lookups; this generic form is appropriate in router or CLI layers.
func NotFound(message string) *AppError {
	return &AppError{Code: CodeNotFound, Message: message, Stack: captureStack(1)}
}

// ItemNotFound constructs a CodeItemNotFound AppError for Pool lookups.
func ItemNotFound(message string) *AppError {
	return &AppError{Code: CodeItemNotFound, Message: message, Stack: captureStack(1)}
}

// InvalidParam constructs a CodeInvalidParam AppError.
func InvalidParam(message string) *AppError {
	return &AppError{Code: CodeInvalidParam, Message: message, Stack: captureStack(1)}
}

// Validation constructs a CodeValidation AppError for rejected input records.
func Validation(message string) *AppError {
	return &AppError{Code: CodeValidation, Message: message, Stack: captureStack(1)}
}

// Internal constructs a CodeInternal AppError.  Use this for unexpected
// server-side failures where no more specific code applies; always log the
// underlying cause alongside.
func Internal(message string) *AppError {
	return &AppError{Code: CodeInternal, Message: message, Stack: captureStack(1)}
}

// Conflict constructs a CodeConflict AppError.
func Conflict(message string) *AppError {
	return &AppError{Code: CodeConflict, Message: message, Stack: captureStack(1)}
}

// RateLimit constructs a CodeRateLimit AppError without a retry hint.
func RateLimit(message string) *AppError {
	return &AppError{Code: CodeRateLimit, Message: message, Stack: captureStack(1)}
}

// RateLimitAfter constructs a CodeRateLimit AppError carrying a retry hint.
func RateLimitAfter(message string, retryAfter time.Duration) *AppError {
	return &AppError{
		Code:       CodeRateLimit,
		Message:    message,
		RetryAfter: retryAfter,
		Stack:      captureStack(1),
	}
}

// SourceRateLimited constructs a CodeSourceRateLimited AppError carrying a
// retry hint.  Emitted when a source's rate budget saturates beyond patience,
// locally or via an upstream 429.
func SourceRateLimited(message string, retryAfter time.Duration) *AppError {
	return &AppError{
		Code:       CodeSourceRateLimited,
		Message:    message,
		RetryAfter: retryAfter,
		Stack:      captureStack(1),
	}
}

// Cancelled constructs a CodeCancelled AppError.
func Cancelled(message string) *AppError {
	return &AppError{Code: CodeCancelled, Message: message, Stack: captureStack(1)}
}

// SourceTransient constructs a CodeSourceTransient AppError for retryable
// upstream failures (timeouts, 5xx).
func SourceTransient(message string) *AppError {
	return &AppError{Code: CodeSourceTransient, Message: message, Stack: captureStack(1)}
}

// SourceAuth constructs a CodeSourceAuth AppError; fatal for the source for
// the current cycle.
func SourceAuth(message string) *AppError {
	return &AppError{Code: CodeSourceAuth, Message: message, Stack: captureStack(1)}
}

// LLMParse constructs a CodeLLMParse AppError.  Analyzers log these and
// substitute conservative defaults; they never fail items.
func LLMParse(message string) *AppError {
	return &AppError{Code: CodeLLMParse, Message: message, Stack: captureStack(1)}
}

// LLMTransport constructs a CodeLLMTransport AppError.
func LLMTransport(message string) *AppError {
	return &AppError{Code: CodeLLMTransport, Message: message, Stack: captureStack(1)}
}

// StoragePersistent constructs a CodeStoragePersistent AppError for constraint
// violations and schema failures.  Fails the item, not the pipeline.
func StoragePersistent(message string) *AppError {
	return &AppError{Code: CodeStoragePersistent, Message: message, Stack: captureStack(1)}
}

// ConfigInvalid constructs a CodeConfigInvalid AppError for construction-time
// configuration rejection.
func ConfigInvalid(message string) *AppError {
	return &AppError{Code: CodeConfigInvalid, Message: message, Stack: captureStack(1)}
}
