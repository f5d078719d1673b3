package errors

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"
)

// ErrorCode represents a unique error code for categorizing errors
type ErrorCode string

const (
	// Server connection errors (1xxx)
	ErrCodeConnectionFailed     ErrorCode = "TBMR1001"
	ErrCodeConnectionTimeout    ErrorCode = "TBMR1002"
	ErrCodeAuthenticationFailed ErrorCode = "TBMR1003"
	ErrCodeNetworkUnavailable   ErrorCode = "TBMR1004"
	ErrCodeSessionExpired       ErrorCode = "TBMR1005"

	// Configuration errors (2xxx)
	ErrCodeConfigNotFound     ErrorCode = "TBMR2001"
	ErrCodeConfigInvalid      ErrorCode = "TBMR2002"
	ErrCodeConfigMissing      ErrorCode = "TBMR2003"
	ErrCodeCredentialsMissing ErrorCode = "TBMR2004"

	// Git repository errors (3xxx)
	ErrCodeGitAuth     ErrorCode = "TBMR3001"
	ErrCodeGitConflict ErrorCode = "TBMR3002"
	ErrCodeGitIO       ErrorCode = "TBMR3003"

	// Content discovery errors (4xxx)
	ErrCodeDiscoveryFailed  ErrorCode = "TBMR4001"
	ErrCodePermissionDenied ErrorCode = "TBMR4002"
	ErrCodeDownloadFailed   ErrorCode = "TBMR4003"

	// Local mirror errors (5xxx)
	ErrCodeFileNotFound   ErrorCode = "TBMR5001"
	ErrCodeFilePermission ErrorCode = "TBMR5002"
	ErrCodeFileOperation  ErrorCode = "TBMR5003"
	ErrCodeConflict       ErrorCode = "TBMR5004"
	ErrCodeMirrorLocked   ErrorCode = "TBMR5005"

	// System errors (9xxx)
	ErrCodeInternal           ErrorCode = "TBMR9001"
	ErrCodeTimeout            ErrorCode = "TBMR9002"
	ErrCodeMaxRetriesExceeded ErrorCode = "TBMR9003"
)

// ErrorSeverity represents the severity level of an error
type ErrorSeverity string

const (
	SeverityCritical ErrorSeverity = "CRITICAL" // Fatal, run cannot continue
	SeverityError    ErrorSeverity = "ERROR"    // Operation failed, run continues
	SeverityWarning  ErrorSeverity = "WARNING"  // Operation succeeded with issues
	SeverityInfo     ErrorSeverity = "INFO"     // Informational, not an error
)

// AppError represents a structured application error with context
type AppError struct {
	Code        ErrorCode
	Message     string
	Severity    ErrorSeverity
	Context     map[string]interface{}
	Cause       error
	Stack       string
	Timestamp   time.Time
	Recoverable bool
	Suggestions []string
}

// Error implements the error interface
func (e *AppError) Error() string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("[%s] %s: %s", e.Code, e.Severity, e.Message))

	if e.Cause != nil {
		b.WriteString(fmt.Sprintf("\nCaused by: %v", e.Cause))
	}

	if len(e.Suggestions) > 0 {
		b.WriteString("\nSuggestions:")
		for i, suggestion := range e.Suggestions {
			b.WriteString(fmt.Sprintf("\n  %d. %s", i+1, suggestion))
		}
	}

	return b.String()
}

// Unwrap returns the cause of the error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is implements error comparison by code
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// New creates a new AppError
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:        code,
		Message:     message,
		Severity:    SeverityError,
		Context:     make(map[string]interface{}),
		Stack:       captureStack(),
		Timestamp:   time.Now(),
		Recoverable: false,
	}
}

// Wrap wraps an existing error with AppError. A nil cause yields a plain
// AppError rather than a nil pointer: returning a typed nil here would
// still be a non-nil error interface to callers, so nil is never returned.
func Wrap(err error, code ErrorCode, message string) *AppError {
	appErr := New(code, message)
	appErr.Cause = err

	// If wrapping another AppError, inherit its context
	if ae, ok := err.(*AppError); ok {
		for k, v := range ae.Context {
			appErr.Context[k] = v
		}
	}

	return appErr
}

// WithContext adds context to the error
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithSeverity sets the error severity
func (e *AppError) WithSeverity(severity ErrorSeverity) *AppError {
	e.Severity = severity
	return e
}

// WithSuggestions adds recovery suggestions
func (e *AppError) WithSuggestions(suggestions ...string) *AppError {
	e.Suggestions = append(e.Suggestions, suggestions...)
	return e
}

// AsRecoverable marks the error as recoverable
func (e *AppError) AsRecoverable() *AppError {
	e.Recoverable = true
	return e
}

// captureStack captures the current stack trace
func captureStack() string {
	const depth = 32
	var pcs [depth]uintptr
	n := runtime.Callers(3, pcs[:])

	var b strings.Builder
	frames := runtime.CallersFrames(pcs[:n])

	for {
		frame, more := frames.Next()
		if !strings.Contains(frame.File, "runtime/") {
			b.WriteString(fmt.Sprintf("%s:%d %s\n", frame.File, frame.Line, frame.Function))
		}
		if !more {
			break
		}
	}

	return b.String()
}

// Common error constructors

// AuthenticationError creates a server sign-in failure
func AuthenticationError(message string, cause error) *AppError {
	err := New(ErrCodeAuthenticationFailed, message).WithSeverity(SeverityCritical)
	err.Cause = cause
	return err.WithSuggestions(
		"Check TABLEAU_USERNAME and TABLEAU_PASSWORD (or TABLEAU_TOKEN_NAME/TABLEAU_TOKEN_VALUE)",
		"Verify the server URL and site name in the configuration",
	)
}

// ConfigError creates a configuration-related error
func ConfigError(message string, field string) *AppError {
	return New(ErrCodeConfigInvalid, message).
		WithSeverity(SeverityCritical).
		WithContext("field", field).
		WithSuggestions(
			fmt.Sprintf("Check the '%s' configuration value", field),
			"Run 'tabmirror setup' to reconfigure",
		)
}

// DiscoveryError creates a project enumeration failure scoped to a project
func DiscoveryError(projectPath string, cause error) *AppError {
	return Wrap(cause, ErrCodeDiscoveryFailed,
		fmt.Sprintf("Failed to enumerate project %q", projectPath)).
		WithContext("project", projectPath).
		AsRecoverable()
}

// NetworkError creates a transient download I/O failure
func NetworkError(message string, cause error) *AppError {
	return Wrap(cause, ErrCodeNetworkUnavailable, message).AsRecoverable()
}

// ConflictError signals a local/remote staleness mismatch at write time
func ConflictError(path string) *AppError {
	return New(ErrCodeConflict,
		fmt.Sprintf("Local file %q changed since planning and overwrite is disabled", path)).
		WithContext("path", path).
		WithSuggestions(
			"Enable overwrite_existing in the configuration",
			"Remove the conflicting local file and re-run",
		)
}

// IsRecoverable checks if an error is recoverable
func IsRecoverable(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Recoverable
	}
	return false
}

// GetErrorCode extracts the error code from an error
func GetErrorCode(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrCodeInternal
}

// GetSuggestions extracts remediation suggestions from an error
func GetSuggestions(err error) []string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Suggestions
	}
	return nil
}

// IsFatal reports whether an error must abort the whole run
func IsFatal(err error) bool {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		return true
	}
	return appErr.Severity == SeverityCritical
}
