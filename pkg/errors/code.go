package errors

// ErrorCode represents a unique error identifier
type ErrorCode int

// Error code ranges allocation:
// 10000-10999: System & Common errors
// 12000-12999: Problem catalog errors
// 13000-13999: Run & Sandbox errors
// 14000-14999: Draft errors

const (
	// ========== System & Common Errors (10000-10999) ==========

	// Success
	Success ErrorCode = 10000

	// Generic errors (10000-10099)
	InternalServerError ErrorCode = 10001
	InvalidParams       ErrorCode = 10002
	NotFound            ErrorCode = 10003
	Unauthorized        ErrorCode = 10004
	Forbidden           ErrorCode = 10005
	TooManyRequests     ErrorCode = 10006
	ServiceUnavailable  ErrorCode = 10007
	Timeout             ErrorCode = 10008

	// Cache errors (10200-10299)
	CacheError ErrorCode = 10200
	CacheMiss  ErrorCode = 10201

	// Validation errors (10300-10399)
	ValidationFailed   ErrorCode = 10300
	InvalidFormat      ErrorCode = 10301
	InvalidValue       ErrorCode = 10302
	RequiredFieldEmpty ErrorCode = 10303

	// Storage errors (10400-10499)
	StorageError ErrorCode = 10400

	// Message queue errors (10500-10599)
	QueueError ErrorCode = 10500

	// ========== Problem Catalog Errors (12000-12999) ==========

	ProblemNotFound          ErrorCode = 12000
	CatalogLoadFailed        ErrorCode = 12001
	InvalidProblemDefinition ErrorCode = 12002
	CatalogChecksumMismatch  ErrorCode = 12003

	// Test cases (12100-12199)
	TestCaseInvalid ErrorCode = 12100

	// ========== Run & Sandbox Errors (13000-13999) ==========

	// Submission (13000-13099)
	CodeTooLarge         ErrorCode = 13002
	LanguageNotSupported ErrorCode = 13003

	// Sandbox (13100-13199)
	WorkerUnavailable      ErrorCode = 13100
	SandboxSystemError     ErrorCode = 13101
	CodeParseError         ErrorCode = 13102
	RuntimeError           ErrorCode = 13103
	ExecutionTimeout       ErrorCode = 13104
	EntryPointNotFound     ErrorCode = 13105
	MethodNotFound         ErrorCode = 13106
	ArgumentCoercionFailed ErrorCode = 13107
	OutputLimitExceeded    ErrorCode = 13108

	// ========== Draft Errors (14000-14999) ==========

	DraftNotFound  ErrorCode = 14000
	DraftTooLarge  ErrorCode = 14001
	DraftsDisabled ErrorCode = 14002
)

// errorMessages maps error codes to their default English messages
var errorMessages = map[ErrorCode]string{
	// System & Common
	Success:             "Success",
	InternalServerError: "Internal server error",
	InvalidParams:       "Invalid parameters",
	NotFound:            "Resource not found",
	Unauthorized:        "Unauthorized access",
	Forbidden:           "Access forbidden",
	TooManyRequests:     "Too many requests, please try again later",
	ServiceUnavailable:  "Service temporarily unavailable",
	Timeout:             "Request timeout",

	// Cache
	CacheError: "Cache operation failed",
	CacheMiss:  "Cache miss",

	// Validation
	ValidationFailed:   "Validation failed",
	InvalidFormat:      "Invalid format",
	InvalidValue:       "Invalid value",
	RequiredFieldEmpty: "Required field is empty",

	// Infrastructure
	StorageError: "Object storage operation failed",
	QueueError:   "Message queue operation failed",

	// Problem catalog
	ProblemNotFound:          "Problem not found",
	CatalogLoadFailed:        "Failed to load problem catalog",
	InvalidProblemDefinition: "Invalid problem definition",
	CatalogChecksumMismatch:  "Problem catalog checksum mismatch",
	TestCaseInvalid:          "Invalid test case format",

	// Submission
	CodeTooLarge:         "Code is too large",
	LanguageNotSupported: "Programming language not supported",

	// Sandbox
	WorkerUnavailable:      "Sandbox worker is unavailable, please try again later",
	SandboxSystemError:     "Sandbox system error",
	CodeParseError:         "Code could not be parsed",
	RuntimeError:           "Runtime error",
	ExecutionTimeout:       "Execution timed out",
	EntryPointNotFound:     "Entry point not found",
	MethodNotFound:         "Method not found",
	ArgumentCoercionFailed: "Argument could not be converted to its declared type",
	OutputLimitExceeded:    "Output limit exceeded",

	// Drafts
	DraftNotFound:  "Draft not found",
	DraftTooLarge:  "Draft is too large",
	DraftsDisabled: "Draft storage is not configured",
}

// Message returns the default message for the error code
func (c ErrorCode) Message() string {
	if msg, ok := errorMessages[c]; ok {
		return msg
	}
	return "Unknown error"
}

// HTTPStatus returns the recommended HTTP status code for the error code
func (c ErrorCode) HTTPStatus() int {
	switch {
	case c == Success:
		return 200
	case c == Unauthorized:
		return 401
	case c == Forbidden:
		return 403
	case c == NotFound, c == ProblemNotFound, c == DraftNotFound:
		return 404
	case c == CodeTooLarge, c == DraftTooLarge:
		return 413
	case c == TooManyRequests:
		return 429
	case c == ServiceUnavailable, c == WorkerUnavailable, c == DraftsDisabled:
		return 503
	case c == Timeout:
		return 504
	case c >= 10300 && c < 10400: // Validation errors
		return 400
	case c == InvalidParams, c == LanguageNotSupported, c == TestCaseInvalid:
		return 400
	default:
		return 500
	}
}
