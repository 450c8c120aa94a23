// Package errors provides structured error handling for ragdoc.
//
// Error codes follow the pattern ERR_NXX_DESCRIPTION where the leading
// digit selects the category:
//   - 1XX: configuration errors, fatal at startup
//   - 2XX: corrupt or unwritable persisted state
//   - 3XX: retrieval backend unavailable
//   - 4XX: empty or invalid input
//   - 5XX: internal errors
package errors

// Category classifies an error for logging and user presentation.
type Category string

const (
	CategoryConfig   Category = "CONFIG"
	CategoryState    Category = "STATE"
	CategoryBackend  Category = "BACKEND"
	CategoryInput    Category = "INPUT"
	CategoryInternal Category = "INTERNAL"
)

// Severity defines how a caller should react to an error.
type Severity string

const (
	// SeverityFatal aborts the current command.
	SeverityFatal Severity = "FATAL"
	// SeverityError fails one operation; the caller can continue.
	SeverityError Severity = "ERROR"
	// SeverityWarning means the operation continued in a degraded mode.
	SeverityWarning Severity = "WARNING"
	// SeverityInfo is informational.
	SeverityInfo Severity = "INFO"
)

const (
	ErrCodeConfigInvalid     = "ERR_101_CONFIG_INVALID"
	ErrCodeCredentialMissing = "ERR_102_CREDENTIAL_MISSING"
	ErrCodePathMissing       = "ERR_103_PATH_MISSING"

	ErrCodeStateCorrupt    = "ERR_201_STATE_CORRUPT"
	ErrCodeRecordMalformed = "ERR_202_RECORD_MALFORMED"
	ErrCodeStateWrite      = "ERR_203_STATE_WRITE"
	ErrCodeLockHeld        = "ERR_204_LOCK_HELD"

	ErrCodeBackendUnavailable = "ERR_301_BACKEND_UNAVAILABLE"
	ErrCodeBackendTimeout     = "ERR_302_BACKEND_TIMEOUT"
	ErrCodeBackendRejected    = "ERR_303_BACKEND_REJECTED"

	ErrCodeEmptyInput   = "ERR_401_EMPTY_INPUT"
	ErrCodeInvalidInput = "ERR_402_INVALID_INPUT"

	ErrCodeInternal = "ERR_501_INTERNAL"
)

func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}
	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryState
	case '3':
		return CategoryBackend
	case '4':
		return CategoryInput
	default:
		return CategoryInternal
	}
}

func severityFromCode(code string) Severity {
	switch categoryFromCode(code) {
	case CategoryConfig:
		return SeverityFatal
	case CategoryState, CategoryBackend:
		return SeverityWarning
	case CategoryInput:
		return SeverityInfo
	default:
		return SeverityError
	}
}

// Backend failures are transient; a rejected request is not.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeBackendUnavailable, ErrCodeBackendTimeout:
		return true
	}
	return false
}
