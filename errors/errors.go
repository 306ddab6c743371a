package errors

import (
	"fmt"
	"time"
)

// AppError is the unified application error type.
type AppError struct {
	// Code is a machine-readable error code.
	Code ErrorCode `json:"code"`
	// Message is a human-readable error message.
	Message string `json:"message"`
	// Retryable indicates if the operation can be retried.
	Retryable bool `json:"retryable"`
	// Details contains additional context for the error.
	Details map[string]any `json:"details,omitempty"`
	// Cause is the underlying error that caused this error.
	Cause error `json:"-"`
}

// Error returns the string representation of the error.
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (cause: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause of the error.
func (e *AppError) Unwrap() error { return e.Cause }

// WithCause sets the underlying cause of the error and returns the receiver.
func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

// WithDetails merges the provided details into the error and returns the receiver.
func (e *AppError) WithDetails(details map[string]any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	for k, v := range details {
		e.Details[k] = v
	}
	return e
}

// WithDetail sets a single detail key-value pair and returns the receiver.
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// New creates a new AppError with automatic retryable detection.
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:      code,
		Message:   message,
		Retryable: IsRetryableCode(code),
	}
}

// --- Bridge Error Constructors ---

// RegistrationFailed creates a new AppError for a listener that failed to register.
func RegistrationFailed(bridge string, cause error) *AppError {
	return &AppError{
		Code: ErrCodeRegistrationFailed, Message: "The listener failed while registering its callback.",
		Retryable: false, Cause: cause,
		Details: map[string]any{"bridge": bridge},
	}
}

// ProducerFailed creates a new AppError for a listener whose completion failed.
func ProducerFailed(bridge string, cause error) *AppError {
	return &AppError{
		Code: ErrCodeProducerFailed, Message: "The listener completed with an error.",
		Retryable: true, Cause: cause,
		Details: map[string]any{"bridge": bridge},
	}
}

// CloseHookFailed creates a new AppError for a close hook that failed.
func CloseHookFailed(bridge string, cause error) *AppError {
	return &AppError{
		Code: ErrCodeCloseHookFailed, Message: "The close hook failed.",
		Retryable: false, Cause: cause,
		Details: map[string]any{"bridge": bridge},
	}
}

// Unhandled creates a new AppError for a failure no handler was configured for.
func Unhandled(cause error) *AppError {
	return &AppError{
		Code: ErrCodeUnhandled, Message: "Unhandled bridge failure. Configure an error handler to recover.",
		Retryable: false, Cause: cause,
	}
}

// Timeout creates a new AppError for a pull that outlived its deadline.
func Timeout(operation string, after time.Duration) *AppError {
	return &AppError{
		Code: ErrCodeTimeout, Message: fmt.Sprintf("No value arrived within %s.", after),
		Retryable: true,
		Details:   map[string]any{"operation": operation, "timeout_ms": after.Milliseconds()},
	}
}

// Canceled creates a new AppError for a pull abandoned through its context.
func Canceled(operation string, cause error) *AppError {
	return &AppError{
		Code: ErrCodeCanceled, Message: "The pull was canceled before a value arrived.",
		Retryable: true, Cause: cause,
		Details: map[string]any{"operation": operation},
	}
}

// InvalidInput creates a new AppError for invalid input.
func InvalidInput(field, reason string) *AppError {
	details := make(map[string]any)
	if field != "" {
		details["field"] = field
	}
	return &AppError{
		Code: ErrCodeInvalidInput, Message: fmt.Sprintf("Invalid input: %s", reason),
		Retryable: false, Details: details,
	}
}

// Validation creates a new AppError for validation errors.
func Validation(message string) *AppError {
	return &AppError{
		Code: ErrCodeInvalidInput, Message: message,
		Retryable: false,
	}
}

// MissingField creates a new AppError for a missing required field.
func MissingField(field string) *AppError {
	return &AppError{
		Code: ErrCodeMissingField, Message: fmt.Sprintf("Missing required field: %s", field),
		Retryable: false,
		Details:   map[string]any{"field": field},
	}
}

// Internal creates a new AppError for an unexpected internal failure.
func Internal(cause error) *AppError {
	return &AppError{
		Code: ErrCodeInternal, Message: "An unexpected error occurred.",
		Retryable: false, Cause: cause,
	}
}
