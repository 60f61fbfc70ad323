package apperr

import "net/http"

// Kind classifies an Error. Each kind maps to one HTTP status, except
// database which splits into 500 and 503 by code.
type Kind string

const (
	KindValidation      Kind = "validation"
	KindAuthentication  Kind = "authentication"
	KindAuthorization   Kind = "authorization"
	KindNotFound        Kind = "notFound"
	KindConflict        Kind = "conflict"
	KindBusinessLogic   Kind = "businessLogic"
	KindTooManyRequests Kind = "tooManyRequests"
	KindDatabase        Kind = "database"
	KindInternal        Kind = "internal"
)

// Error codes. The set is closed; clients switch on these strings.
const (
	CodeValidation        = "VALIDATION_ERROR"
	CodeRequired          = "VALIDATION_REQUIRED"
	CodeInvalidFormat     = "VALIDATION_INVALID_FORMAT"
	CodeInvalidJSON       = "VALIDATION_INVALID_JSON"
	CodeTenantRequired    = "TENANT_REQUIRED"
	CodeTenantInvalid     = "TENANT_INVALID"
	CodeAuthRequired      = "AUTH_REQUIRED"
	CodeInvalidCredential = "AUTH_INVALID_CREDENTIALS"
	CodeTokenExpired      = "AUTH_TOKEN_EXPIRED"
	CodeTokenInvalid      = "AUTH_TOKEN_INVALID"
	CodeSessionExpired    = "AUTH_SESSION_EXPIRED"
	CodeForbidden         = "AUTHZ_FORBIDDEN"
	CodeInsufficientRole  = "AUTHZ_INSUFFICIENT_ROLE"
	CodeTenantMismatch    = "AUTHZ_TENANT_MISMATCH"
	CodeAccountInactive   = "AUTHZ_ACCOUNT_INACTIVE"
	CodeNotFound          = "DB_NOT_FOUND"
	CodeRouteNotFound     = "ROUTE_NOT_FOUND"
	CodeTenantNotFound    = "TENANT_NOT_FOUND"
	CodeDuplicateEntry    = "DUPLICATE_ENTRY"
	CodeBusinessRule      = "BUSINESS_RULE_VIOLATION"
	CodeReferenceMissing  = "REFERENCED_RECORD_MISSING"
	CodeRateLimited       = "RATE_LIMIT_EXCEEDED"
	CodeDBConnection      = "DB_CONNECTION_ERROR"
	CodeDBUnavailable     = "DB_UNAVAILABLE"
	CodeDBQueryTimeout    = "DB_QUERY_TIMEOUT"
	CodeDBQuery           = "DB_QUERY_ERROR"
	CodeHealthCheckFailed = "HEALTH_CHECK_FAILED"
	CodeSystem            = "SYSTEM_ERROR"
)

var defaultCodes = map[Kind]string{
	KindValidation:      CodeValidation,
	KindAuthentication:  CodeAuthRequired,
	KindAuthorization:   CodeForbidden,
	KindNotFound:        CodeNotFound,
	KindConflict:        CodeDuplicateEntry,
	KindBusinessLogic:   CodeBusinessRule,
	KindTooManyRequests: CodeRateLimited,
	KindDatabase:        CodeDBQuery,
	KindInternal:        CodeSystem,
}

var kindStatus = map[Kind]int{
	KindValidation:      http.StatusBadRequest,
	KindAuthentication:  http.StatusUnauthorized,
	KindAuthorization:   http.StatusForbidden,
	KindNotFound:        http.StatusNotFound,
	KindConflict:        http.StatusConflict,
	KindBusinessLogic:   http.StatusUnprocessableEntity,
	KindTooManyRequests: http.StatusTooManyRequests,
	KindDatabase:        http.StatusInternalServerError,
	KindInternal:        http.StatusInternalServerError,
}

// unavailableCodes are database codes reported as 503.
var unavailableCodes = map[string]bool{
	CodeDBConnection:      true,
	CodeDBUnavailable:     true,
	CodeDBQueryTimeout:    true,
	CodeHealthCheckFailed: true,
}

// statusFor returns the HTTP status for a kind and code pair.
func statusFor(kind Kind, code string) int {
	if kind == KindDatabase && unavailableCodes[code] {
		return http.StatusServiceUnavailable
	}
	if s, ok := kindStatus[kind]; ok {
		return s
	}
	return http.StatusInternalServerError
}
