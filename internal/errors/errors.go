package errors

import (
	"fmt"
	"net/http"

	"github.com/token-ledger/internal/types"
)

// ErrorCategory represents the category of an error
type ErrorCategory string

const (
	// CategoryUserInput represents user input errors (4xx)
	CategoryUserInput ErrorCategory = "user_input"
	// CategorySystem represents system errors (5xx)
	CategorySystem ErrorCategory = "system"
	// CategoryDatabase represents database errors
	CategoryDatabase ErrorCategory = "database"
	// CategoryCache represents cache errors
	CategoryCache ErrorCategory = "cache"
	// CategoryConflict represents conflict errors
	CategoryConflict ErrorCategory = "conflict"
	// CategoryAuthorization represents authorization errors
	CategoryAuthorization ErrorCategory = "authorization"
	// CategoryNotFound represents not found errors
	CategoryNotFound ErrorCategory = "not_found"
	// CategoryBalance represents ledger balance and quota errors
	CategoryBalance ErrorCategory = "balance"
)

// Error codes for the payment and ledger taxonomy. These are the stable
// identifiers surfaced to callers; messages are free-form.
const (
	CodeConflict            = "CONFLICT"
	CodeInvalidState        = "INVALID_STATE"
	CodeInvalidQuantity     = "INVALID_QUANTITY"
	CodeInsufficientBalance = "INSUFFICIENT_BALANCE"
	CodeGradeNotAllowed     = "GRADE_NOT_ALLOWED"
	CodeQuotaExhausted      = "QUOTA_EXHAUSTED"
	CodeNotFound            = "NOT_FOUND"
	CodeUnauthorized        = "UNAUTHORIZED"
)

// CategorizedError represents an error with category and HTTP status code
type CategorizedError struct {
	Category   ErrorCategory
	StatusCode int
	Code       string
	Message    string
	Details    map[string]interface{}
	Cause      error
}

// Error implements the error interface
func (e *CategorizedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause
func (e *CategorizedError) Unwrap() error {
	return e.Cause
}

// ToServiceError converts to a ServiceError
func (e *CategorizedError) ToServiceError() *types.ServiceError {
	return &types.ServiceError{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
	}
}

// Recoverable, caller-facing conditions (4xx)

// NewConflictError creates an error for a pending payment that already exists
func NewConflictError(message string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryConflict,
		StatusCode: http.StatusConflict,
		Code:       CodeConflict,
		Message:    message,
	}
}

// NewInvalidStateError creates an error for an operation not valid for the
// transaction's current status
func NewInvalidStateError(id string, status types.PaymentStatus) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryConflict,
		StatusCode: http.StatusConflict,
		Code:       CodeInvalidState,
		Message:    fmt.Sprintf("payment %s is not pending (status: %s)", id, status),
		Details: map[string]interface{}{
			"id":     id,
			"status": string(status),
		},
	}
}

// NewInvalidQuantityError creates an error for a custom quantity below the
// applicable minimum
func NewInvalidQuantityError(quantity, minimum int64, grade types.Grade) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryUserInput,
		StatusCode: http.StatusBadRequest,
		Code:       CodeInvalidQuantity,
		Message:    fmt.Sprintf("quantity %d is below the %s minimum of %d tokens", quantity, grade, minimum),
		Details: map[string]interface{}{
			"quantity": quantity,
			"minimum":  minimum,
			"grade":    string(grade),
		},
	}
}

// NewInsufficientBalanceError creates an error for a debit exceeding the balance
func NewInsufficientBalanceError(required, remaining int64) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryBalance,
		StatusCode: http.StatusPaymentRequired,
		Code:       CodeInsufficientBalance,
		Message:    fmt.Sprintf("insufficient balance: need %d tokens, have %d", required, remaining),
		Details: map[string]interface{}{
			"required":  required,
			"remaining": remaining,
		},
	}
}

// NewGradeNotAllowedError creates an error for a grade the active plan does not authorize
func NewGradeNotAllowedError(grade types.Grade, plan types.PlanType) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryBalance,
		StatusCode: http.StatusForbidden,
		Code:       CodeGradeNotAllowed,
		Message:    fmt.Sprintf("plan %s does not allow %s generation", plan, grade),
		Details: map[string]interface{}{
			"grade": string(grade),
			"plan":  string(plan),
		},
	}
}

// NewQuotaExhaustedError creates an error for an exhausted assignment quota
func NewQuotaExhaustedError(plan types.PlanType) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryBalance,
		StatusCode: http.StatusForbidden,
		Code:       CodeQuotaExhausted,
		Message:    fmt.Sprintf("assignment quota exhausted for plan %s", plan),
		Details: map[string]interface{}{
			"plan": string(plan),
		},
	}
}

// NewNotFoundError creates a not found error
func NewNotFoundError(resource string, id string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryNotFound,
		StatusCode: http.StatusNotFound,
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found: %s", resource, id),
		Details: map[string]interface{}{
			"resource": resource,
			"id":       id,
		},
	}
}

// NewUnauthorizedError creates an unauthorized error
func NewUnauthorizedError(message string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryAuthorization,
		StatusCode: http.StatusUnauthorized,
		Code:       CodeUnauthorized,
		Message:    message,
	}
}

// System errors (5xx)

// NewInternalError creates an internal server error
func NewInternalError(message string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategorySystem,
		StatusCode: http.StatusInternalServerError,
		Code:       "INTERNAL_ERROR",
		Message:    message,
		Cause:      cause,
	}
}

// NewDatabaseError creates a database error
func NewDatabaseError(operation string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryDatabase,
		StatusCode: http.StatusInternalServerError,
		Code:       "DATABASE_ERROR",
		Message:    fmt.Sprintf("database error during %s", operation),
		Cause:      cause,
		Details: map[string]interface{}{
			"operation": operation,
		},
	}
}

// NewCacheError creates a cache error
func NewCacheError(operation string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryCache,
		StatusCode: http.StatusInternalServerError,
		Code:       "CACHE_ERROR",
		Message:    fmt.Sprintf("cache error during %s", operation),
		Cause:      cause,
		Details: map[string]interface{}{
			"operation": operation,
		},
	}
}

// Categorize categorizes an existing error
func Categorize(err error) *CategorizedError {
	if err == nil {
		return nil
	}

	// If already categorized, return as-is
	if catErr, ok := err.(*CategorizedError); ok {
		return catErr
	}

	// If it's a ServiceError, convert it
	if svcErr, ok := err.(*types.ServiceError); ok {
		return categorizeServiceError(svcErr)
	}

	// Default to internal error
	return NewInternalError("unexpected error", err)
}

// categorizeServiceError categorizes a ServiceError by its code
func categorizeServiceError(err *types.ServiceError) *CategorizedError {
	status := http.StatusInternalServerError
	category := CategorySystem

	switch err.Code {
	case CodeConflict, CodeInvalidState:
		status, category = http.StatusConflict, CategoryConflict
	case CodeInvalidQuantity, "INVALID_INPUT":
		status, category = http.StatusBadRequest, CategoryUserInput
	case CodeInsufficientBalance:
		status, category = http.StatusPaymentRequired, CategoryBalance
	case CodeGradeNotAllowed, CodeQuotaExhausted:
		status, category = http.StatusForbidden, CategoryBalance
	case CodeNotFound, "USER_NOT_FOUND", "PAYMENT_NOT_FOUND", "BALANCE_NOT_FOUND":
		status, category = http.StatusNotFound, CategoryNotFound
	case CodeUnauthorized:
		status, category = http.StatusUnauthorized, CategoryAuthorization
	}

	return &CategorizedError{
		Category:   category,
		StatusCode: status,
		Code:       err.Code,
		Message:    err.Message,
		Details:    err.Details,
	}
}

// GetHTTPStatusCode returns the HTTP status code for an error
func GetHTTPStatusCode(err error) int {
	if catErr := Categorize(err); catErr != nil {
		return catErr.StatusCode
	}
	return http.StatusInternalServerError
}

// IsUserError determines if an error is a user error (4xx)
func IsUserError(err error) bool {
	catErr := Categorize(err)
	if catErr == nil {
		return false
	}

	return catErr.StatusCode >= 400 && catErr.StatusCode < 500
}

// IsSystemError determines if an error is a system error (5xx)
func IsSystemError(err error) bool {
	catErr := Categorize(err)
	if catErr == nil {
		return false
	}

	return catErr.StatusCode >= 500
}
