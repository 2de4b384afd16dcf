package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError is a structured error that maps to HTTP responses.
type AppError struct {
	Code       string `json:"error_code"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"-"`
	Err        error  `json:"-"` // Wrapped internal error (not exposed to client)
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(code string, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// Wrap wraps an internal error with an AppError.
func Wrap(code string, message string, httpStatus int, err error) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Err:        err,
	}
}

// HasCode reports whether err carries an AppError with the given code.
func HasCode(err error, code string) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// Error codes shared between services and handlers.
const (
	CodeUnauthorized        = "AUTH_001"
	CodeInvalidToken        = "AUTH_002"
	CodeInsufficientBalance = "BAL_001"
	CodeInvalidState        = "STATE_001"
	CodeNotFound            = "STATE_002"
	CodeInvalidAPY          = "APY_001"
	CodeArithmeticOverflow  = "MATH_001"
	CodeAdapter             = "RSV_001"
	CodeValidation          = "VAL_001"
)

// ---- Security & Request Signing (SEC) ----

func ErrInvalidAccessKey() *AppError {
	return New("SEC_001", "Invalid access key", http.StatusUnauthorized)
}

func ErrInvalidSignature() *AppError {
	return New("SEC_002", "Invalid signature", http.StatusUnauthorized)
}

func ErrTimestampExpired() *AppError {
	return New("SEC_003", "Request timestamp expired", http.StatusForbidden)
}

func ErrNonceUsed() *AppError {
	return New("SEC_004", "Nonce has already been used", http.StatusForbidden)
}

// ---- Authorization (AUTH) ----

// ErrUnauthorized is returned when the caller is not the identity an operation requires.
func ErrUnauthorized() *AppError {
	return New(CodeUnauthorized, "Caller is not authorized for this operation", http.StatusForbidden)
}

func ErrInvalidToken() *AppError {
	return New(CodeInvalidToken, "Invalid or expired token", http.StatusUnauthorized)
}

// ---- Balances (BAL) ----

func ErrInsufficientBalance(what string) *AppError {
	return New(CodeInsufficientBalance, fmt.Sprintf("Insufficient %s", what), http.StatusPaymentRequired)
}

// ---- Protocol State (STATE) ----

func ErrInvalidState(message string) *AppError {
	return New(CodeInvalidState, message, http.StatusConflict)
}

func ErrNotFound(entity string) *AppError {
	return New(CodeNotFound, fmt.Sprintf("%s not found", entity), http.StatusNotFound)
}

// ---- Yield & Arithmetic ----

func ErrInvalidAPY() *AppError {
	return New(CodeInvalidAPY, "Reserve deposit APY is zero", http.StatusUnprocessableEntity)
}

func ErrArithmeticOverflow(err error) *AppError {
	return Wrap(CodeArithmeticOverflow, "Arithmetic overflow", http.StatusUnprocessableEntity, err)
}

// ---- Yield Reserve (RSV) ----

func ErrAdapter(err error) *AppError {
	return Wrap(CodeAdapter, "Yield reserve request failed", http.StatusBadGateway, err)
}

// ---- Rate Limiting (RATE) ----

func ErrRateLimitExceeded() *AppError {
	return New("RATE_001", "Rate limit exceeded", http.StatusTooManyRequests)
}

// ---- System & Infrastructure (SYS) ----

func ErrDatabaseError(err error) *AppError {
	return Wrap("SYS_001", "Internal database error", http.StatusInternalServerError, err)
}

func ErrLockTimeout(err error) *AppError {
	return Wrap("SYS_002", "Lock acquisition timeout", http.StatusServiceUnavailable, err)
}

func ErrEncryptionFailure(err error) *AppError {
	return Wrap("SYS_003", "Encryption service failure", http.StatusInternalServerError, err)
}

// InternalError wraps an internal error as a SYS_001 error.
func InternalError(err error) *AppError {
	return Wrap("SYS_001", "Internal server error", http.StatusInternalServerError, err)
}

// Validation returns a request validation error.
func Validation(message string) *AppError {
	return New(CodeValidation, message, http.StatusBadRequest)
}
