package dto

import (
	"net/http"

	"github.com/erp/invsync/internal/domain/shared"
)

// Error codes returned to API clients. Format: ERR_<CATEGORY>
const (
	ErrCodeInternal     = "ERR_INTERNAL"
	ErrCodeValidation   = "ERR_VALIDATION"
	ErrCodeBadRequest   = "ERR_BAD_REQUEST"
	ErrCodeNotFound     = "ERR_NOT_FOUND"
	ErrCodeConflict     = "ERR_CONFLICT"
	ErrCodeBusinessRule = "ERR_BUSINESS_RULE"
	ErrCodeConsistency  = "ERR_CONSISTENCY"
	ErrCodeUnavailable  = "ERR_UNAVAILABLE"
	ErrCodeRateLimited  = "ERR_RATE_LIMITED"
	ErrCodeTooLarge     = "ERR_REQUEST_TOO_LARGE"
)

// ErrorCodeHTTPStatus maps error codes to HTTP status codes
var ErrorCodeHTTPStatus = map[string]int{
	ErrCodeInternal:     http.StatusInternalServerError,
	ErrCodeValidation:   http.StatusBadRequest,
	ErrCodeBadRequest:   http.StatusBadRequest,
	ErrCodeNotFound:     http.StatusNotFound,
	ErrCodeConflict:     http.StatusConflict,
	ErrCodeBusinessRule: http.StatusConflict,
	ErrCodeConsistency:  http.StatusUnprocessableEntity,
	ErrCodeUnavailable:  http.StatusServiceUnavailable,
	ErrCodeRateLimited:  http.StatusTooManyRequests,
	ErrCodeTooLarge:     http.StatusRequestEntityTooLarge,
}

// GetHTTPStatus returns the HTTP status code for an error code.
// Unknown codes map to 500.
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// domainCodes maps the shared sentinel codes to API codes
var domainCodes = map[string]string{
	"NOT_FOUND":            ErrCodeNotFound,
	"ALREADY_EXISTS":       ErrCodeConflict,
	"CONCURRENCY_CONFLICT": ErrCodeConflict,
	"INVALID_INPUT":        ErrCodeValidation,
	"INVALID_STATE":        ErrCodeBusinessRule,
}

// kindCodes maps error kinds to API codes
var kindCodes = map[shared.ErrorKind]string{
	shared.KindValidation:   ErrCodeValidation,
	shared.KindBusinessRule: ErrCodeBusinessRule,
	shared.KindConsistency:  ErrCodeConsistency,
	shared.KindTransient:    ErrCodeUnavailable,
}

// NormalizeErrorCode converts a shared sentinel code to its API code.
// Other codes are returned as-is.
func NormalizeErrorCode(code string) string {
	if apiCode, ok := domainCodes[code]; ok {
		return apiCode
	}
	return code
}

// CodeForDomainError picks the API code of a domain error: sentinel codes
// first, then the error kind.
func CodeForDomainError(err *shared.DomainError) string {
	if apiCode, ok := domainCodes[err.Code]; ok {
		return apiCode
	}
	kind := err.Kind
	if kind == "" {
		kind = shared.KindBusinessRule
	}
	if apiCode, ok := kindCodes[kind]; ok {
		return apiCode
	}
	return ErrCodeInternal
}
