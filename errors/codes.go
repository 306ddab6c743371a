package errors

// ErrorCode represents a machine-readable error code.
type ErrorCode string

// Bridge lifecycle errors
const (
	// ErrCodeRegistrationFailed indicates the listener failed while registering.
	ErrCodeRegistrationFailed ErrorCode = "REGISTRATION_FAILED"
	// ErrCodeProducerFailed indicates the listener's completion settled with a failure.
	ErrCodeProducerFailed ErrorCode = "PRODUCER_FAILED"
	// ErrCodeCloseHookFailed indicates the close hook returned an error or panicked.
	ErrCodeCloseHookFailed ErrorCode = "CLOSE_HOOK_FAILED"
	// ErrCodeUnhandled indicates a routed failure reached the default handler.
	ErrCodeUnhandled ErrorCode = "UNHANDLED"
)

// Consumer errors
const (
	// ErrCodeTimeout indicates a pull did not complete before its deadline.
	ErrCodeTimeout ErrorCode = "TIMEOUT"
	// ErrCodeCanceled indicates a pull was abandoned through its context.
	ErrCodeCanceled ErrorCode = "CANCELED"
)

// Validation errors
const (
	// ErrCodeInvalidInput indicates the input is invalid.
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"
	// ErrCodeMissingField indicates a required field is missing.
	ErrCodeMissingField ErrorCode = "MISSING_FIELD"
)

// Internal errors
const (
	// ErrCodeInternal indicates an unexpected internal failure.
	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
)

var retryableCodes = map[ErrorCode]bool{
	ErrCodeProducerFailed: true,
	ErrCodeTimeout:        true,
	ErrCodeCanceled:       true,
	ErrCodeInternal:       false,
}

// IsRetryableCode returns true if the error code indicates a retryable error.
// A retryable failure means a fresh bridge over the same listener may succeed.
func IsRetryableCode(code ErrorCode) bool {
	return retryableCodes[code]
}
