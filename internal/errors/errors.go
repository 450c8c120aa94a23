package errors

import (
	"errors"
	"fmt"
)

// RAGError is the structured error type shared by every ragdoc package.
type RAGError struct {
	// Code is the unique error code, e.g. "ERR_301_BACKEND_UNAVAILABLE".
	Code string

	Message  string
	Category Category
	Severity Severity

	// Details carries key-value context such as the backend name or file path.
	Details map[string]string

	Cause     error
	Retryable bool

	// Suggestion is an actionable hint shown by the CLI.
	Suggestion string
}

func (e *RAGError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *RAGError) Unwrap() error {
	return e.Cause
}

// Is matches two RAGErrors by code so errors.Is works against code templates.
func (e *RAGError) Is(target error) bool {
	if t, ok := target.(*RAGError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail and returns the error for chaining.
func (e *RAGError) WithDetail(key, value string) *RAGError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion sets the user-facing suggestion and returns the error for chaining.
func (e *RAGError) WithSuggestion(suggestion string) *RAGError {
	e.Suggestion = suggestion
	return e
}

// New creates a RAGError. Category, severity and retryability derive from code.
func New(code, message string, cause error) *RAGError {
	return &RAGError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap converts err into a RAGError with the given code. It returns nil for a nil err.
func Wrap(code string, err error) *RAGError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

func ConfigError(message string, cause error) *RAGError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// CredentialError reports a missing secret. The env var name goes into Details.
func CredentialError(envVar string) *RAGError {
	return New(ErrCodeCredentialMissing, envVar+" is not set", nil).
		WithDetail("env", envVar).
		WithSuggestion("export " + envVar + " or select a local backend in .ragdoc.yaml")
}

func StateError(message string, cause error) *RAGError {
	return New(ErrCodeStateCorrupt, message, cause)
}

// BackendError reports a failed call to a retrieval backend. It is retryable.
func BackendError(backend, message string, cause error) *RAGError {
	return New(ErrCodeBackendUnavailable, message, cause).WithDetail("backend", backend)
}

func InputError(message string) *RAGError {
	return New(ErrCodeInvalidInput, message, nil)
}

func InternalError(message string, cause error) *RAGError {
	return New(ErrCodeInternal, message, cause)
}

// IsRetryable reports whether any RAGError in err's chain is retryable.
func IsRetryable(err error) bool {
	var re *RAGError
	if errors.As(err, &re) {
		return re.Retryable
	}
	return false
}

// IsFatal reports whether err carries fatal severity.
func IsFatal(err error) bool {
	var re *RAGError
	if errors.As(err, &re) {
		return re.Severity == SeverityFatal
	}
	return false
}

// GetCode returns the code of the first RAGError in err's chain, or "".
func GetCode(err error) string {
	var re *RAGError
	if errors.As(err, &re) {
		return re.Code
	}
	return ""
}

func GetCategory(err error) Category {
	var re *RAGError
	if errors.As(err, &re) {
		return re.Category
	}
	return ""
}
