package errors

import (
	"net/http"
	"strings"
)

// ErrorCode is a string representation of a specific error condition.
// Codes carry a module prefix (COMMON, POOL, SRC, LLM, PIPE) so that metric
// labels and log queries can be grouped per subsystem.
type ErrorCode string

func (c ErrorCode) String() string {
	return string(c)
}

// Common error codes.
const (
	ErrCodeInternal        ErrorCode = "COMMON_001"
	ErrCodeBadRequest      ErrorCode = "COMMON_002"
	ErrCodeNotFound        ErrorCode = "COMMON_003"
	ErrCodeConflict        ErrorCode = "COMMON_004"
	ErrCodeTooManyRequests ErrorCode = "COMMON_005"
	ErrCodeUnavailable     ErrorCode = "COMMON_006"
	ErrCodeTimeout         ErrorCode = "COMMON_007"
	ErrCodeValidation      ErrorCode = "COMMON_008"
	ErrCodeSerialization   ErrorCode = "COMMON_009"
	ErrCodeCancelled       ErrorCode = "COMMON_010"
	ErrCodeConfigInvalid   ErrorCode = "COMMON_011"
	ErrCodeCacheError      ErrorCode = "COMMON_012"
	ErrCodeNotImplemented  ErrorCode = "COMMON_013"
)

// Pool (repository/storage) error codes.
const (
	ErrCodeItemNotFound       ErrorCode = "POOL_001"
	ErrCodeItemInvalid        ErrorCode = "POOL_002"
	ErrCodeItemExists         ErrorCode = "POOL_003"
	ErrCodeStoragePersistent  ErrorCode = "POOL_004"
	ErrCodeStorageUnavailable ErrorCode = "POOL_005"
	ErrCodeSearchFailed       ErrorCode = "POOL_006"
)

// Upstream source error codes.
const (
	ErrCodeSourceTransient   ErrorCode = "SRC_001"
	ErrCodeSourceRateLimited ErrorCode = "SRC_002"
	ErrCodeSourceAuth        ErrorCode = "SRC_003"
	ErrCodeSourceParse       ErrorCode = "SRC_004"
)

// LLM analyzer error codes.
const (
	ErrCodeLLMParse     ErrorCode = "LLM_001"
	ErrCodeLLMTransport ErrorCode = "LLM_002"
)

// Pipeline error codes.
const (
	ErrCodePipelineRunning ErrorCode = "PIPE_001"
	ErrCodePipelineFailed  ErrorCode = "PIPE_002"
)

// Short aliases used at call sites throughout the repo.
const (
	CodeInternal           = ErrCodeInternal
	CodeInvalidParam       = ErrCodeBadRequest
	CodeNotFound           = ErrCodeNotFound
	CodeConflict           = ErrCodeConflict
	CodeRateLimit          = ErrCodeTooManyRequests
	CodeUnavailable        = ErrCodeUnavailable
	CodeTimeout            = ErrCodeTimeout
	CodeValidation         = ErrCodeValidation
	CodeSerialization      = ErrCodeSerialization
	CodeCancelled          = ErrCodeCancelled
	CodeConfigInvalid      = ErrCodeConfigInvalid
	CodeCacheError         = ErrCodeCacheError
	CodeNotImplemented     = ErrCodeNotImplemented
	CodeItemNotFound       = ErrCodeItemNotFound
	CodeItemInvalid        = ErrCodeItemInvalid
	CodeItemExists         = ErrCodeItemExists
	CodeStoragePersistent  = ErrCodeStoragePersistent
	CodeStorageUnavailable = ErrCodeStorageUnavailable
	CodeSearchFailed       = ErrCodeSearchFailed
	CodeSourceTransient    = ErrCodeSourceTransient
	CodeSourceRateLimited  = ErrCodeSourceRateLimited
	CodeSourceAuth         = ErrCodeSourceAuth
	CodeSourceParse        = ErrCodeSourceParse
	CodeLLMParse           = ErrCodeLLMParse
	CodeLLMTransport       = ErrCodeLLMTransport
	CodePipelineRunning    = ErrCodePipelineRunning
	CodePipelineFailed     = ErrCodePipelineFailed

	CodeOK      = ErrorCode("OK")
	CodeUnknown = ErrorCode("UNKNOWN")
)

// ErrorCodeHTTPStatus maps ErrorCodes to HTTP status codes for the API layer.
var ErrorCodeHTTPStatus = map[ErrorCode]int{
	ErrCodeInternal:        http.StatusInternalServerError,
	ErrCodeBadRequest:      http.StatusBadRequest,
	ErrCodeNotFound:        http.StatusNotFound,
	ErrCodeConflict:        http.StatusConflict,
	ErrCodeTooManyRequests: http.StatusTooManyRequests,
	ErrCodeUnavailable:     http.StatusServiceUnavailable,
	ErrCodeTimeout:         http.StatusGatewayTimeout,
	ErrCodeValidation:      http.StatusUnprocessableEntity,
	ErrCodeSerialization:   http.StatusInternalServerError,
	ErrCodeCancelled:       http.StatusRequestTimeout,
	ErrCodeConfigInvalid:   http.StatusInternalServerError,
	ErrCodeCacheError:      http.StatusInternalServerError,
	ErrCodeNotImplemented:  http.StatusNotImplemented,

	ErrCodeItemNotFound:       http.StatusNotFound,
	ErrCodeItemInvalid:        http.StatusUnprocessableEntity,
	ErrCodeItemExists:         http.StatusConflict,
	ErrCodeStoragePersistent:  http.StatusInternalServerError,
	ErrCodeStorageUnavailable: http.StatusServiceUnavailable,
	ErrCodeSearchFailed:       http.StatusInternalServerError,

	ErrCodeSourceTransient:   http.StatusBadGateway,
	ErrCodeSourceRateLimited: http.StatusTooManyRequests,
	ErrCodeSourceAuth:        http.StatusBadGateway,
	ErrCodeSourceParse:       http.StatusBadGateway,

	ErrCodeLLMParse:     http.StatusBadGateway,
	ErrCodeLLMTransport: http.StatusBadGateway,

	ErrCodePipelineRunning: http.StatusConflict,
	ErrCodePipelineFailed:  http.StatusInternalServerError,
}

// ErrorCodeMessage maps ErrorCodes to safe default messages.
var ErrorCodeMessage = map[ErrorCode]string{
	ErrCodeInternal:        "internal server error",
	ErrCodeBadRequest:      "bad request",
	ErrCodeNotFound:        "resource not found",
	ErrCodeConflict:        "resource conflict",
	ErrCodeTooManyRequests: "too many requests",
	ErrCodeUnavailable:     "service unavailable",
	ErrCodeTimeout:         "request timeout",
	ErrCodeValidation:      "validation failed",
	ErrCodeSerialization:   "serialization failed",
	ErrCodeCancelled:       "operation cancelled",
	ErrCodeConfigInvalid:   "invalid configuration",
	ErrCodeCacheError:      "cache error",
	ErrCodeNotImplemented:  "not implemented",

	ErrCodeItemNotFound:       "research item not found",
	ErrCodeItemInvalid:        "research item failed validation",
	ErrCodeItemExists:         "research item already exists",
	ErrCodeStoragePersistent:  "storage rejected the write",
	ErrCodeStorageUnavailable: "storage unavailable",
	ErrCodeSearchFailed:       "full-text search failed",

	ErrCodeSourceTransient:   "source temporarily unavailable",
	ErrCodeSourceRateLimited: "source rate limited",
	ErrCodeSourceAuth:        "source authentication failed",
	ErrCodeSourceParse:       "failed to parse source response",

	ErrCodeLLMParse:     "failed to parse model response",
	ErrCodeLLMTransport: "model endpoint unavailable",

	ErrCodePipelineRunning: "a pipeline run for this source is already in progress",
	ErrCodePipelineFailed:  "pipeline run failed",

	CodeUnknown: "unknown error",
}

// HTTPStatusForCode returns the HTTP status code for an ErrorCode.
func HTTPStatusForCode(code ErrorCode) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// DefaultMessageForCode returns the safe default message for an ErrorCode.
func DefaultMessageForCode(code ErrorCode) string {
	if msg, ok := ErrorCodeMessage[code]; ok {
		return msg
	}
	return "unknown error"
}

// IsClientError reports whether the ErrorCode maps to a 4xx HTTP status.
func IsClientError(code ErrorCode) bool {
	status := HTTPStatusForCode(code)
	return status >= 400 && status < 500
}

// IsServerError reports whether the ErrorCode maps to a 5xx HTTP status.
func IsServerError(code ErrorCode) bool {
	status := HTTPStatusForCode(code)
	return status >= 500 && status < 600
}

// ModuleForCode returns the module prefix of an ErrorCode.
func ModuleForCode(code ErrorCode) string {
	parts := strings.Split(string(code), "_")
	if len(parts) > 0 && parts[0] != "" {
		return parts[0]
	}
	return "UNKNOWN"
}
