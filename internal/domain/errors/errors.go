package errors

import (
	"errors"
	"fmt"
)

// Error types for different domains
type ErrorType string

const (
	ErrorTypeValidation   ErrorType = "validation"
	ErrorTypeBusiness     ErrorType = "business"
	ErrorTypeInternal     ErrorType = "internal"
	ErrorTypeExternal     ErrorType = "external"
	ErrorTypeNotFound     ErrorType = "not_found"
	ErrorTypeUnauthorized ErrorType = "unauthorized"
	ErrorTypeForbidden    ErrorType = "forbidden"
	ErrorTypeConflict     ErrorType = "conflict"
)

// AppError represents a structured application error
type AppError struct {
	Type       ErrorType              `json:"type"`
	Code       string                 `json:"code"`
	Message    string                 `json:"message"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Cause      error                  `json:"-"`
	Retryable  bool                   `json:"retryable"`
	StatusCode int                    `json:"status_code"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is allows predefined errors to match their wrapped/derived copies by code.
func (e *AppError) Is(target error) bool {
	var appErr *AppError
	if errors.As(target, &appErr) {
		return e.Code == appErr.Code
	}
	return false
}

func (e *AppError) WithDetails(details map[string]interface{}) *AppError {
	clone := *e
	clone.Details = details
	return &clone
}

func (e *AppError) WithCause(cause error) *AppError {
	clone := *e
	clone.Cause = cause
	return &clone
}

// Error constructors
func NewValidationError(code, message string) *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Code:       code,
		Message:    message,
		Retryable:  false,
		StatusCode: 400,
	}
}

func NewBusinessError(code, message string) *AppError {
	return &AppError{
		Type:       ErrorTypeBusiness,
		Code:       code,
		Message:    message,
		Retryable:  false,
		StatusCode: 422,
	}
}

func NewNotFoundError(resource string) *AppError {
	return &AppError{
		Type:       ErrorTypeNotFound,
		Code:       "RESOURCE_NOT_FOUND",
		Message:    fmt.Sprintf("%s not found", resource),
		Retryable:  false,
		StatusCode: 404,
	}
}

func NewUnauthorizedError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeUnauthorized,
		Code:       "UNAUTHORIZED",
		Message:    message,
		Retryable:  false,
		StatusCode: 401,
	}
}

func NewForbiddenError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeForbidden,
		Code:       "FORBIDDEN",
		Message:    message,
		Retryable:  false,
		StatusCode: 403,
	}
}

func NewConflictError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeConflict,
		Code:       "CONFLICT",
		Message:    message,
		Retryable:  false,
		StatusCode: 409,
	}
}

func NewInternalError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeInternal,
		Code:       "INTERNAL_ERROR",
		Message:    message,
		Retryable:  true,
		StatusCode: 500,
	}
}

func NewExternalError(service, message string) *AppError {
	return &AppError{
		Type:       ErrorTypeExternal,
		Code:       "EXTERNAL_SERVICE_ERROR",
		Message:    fmt.Sprintf("%s service error: %s", service, message),
		Retryable:  true,
		StatusCode: 502,
		Details:    map[string]interface{}{"service": service},
	}
}

// Predefined auction domain errors. Each carries the specific user-facing
// reason so a refused action is never collapsed to a generic failure.
var (
	ErrProductNotFound = NewNotFoundError("product")
	ErrBidderNotFound  = NewNotFoundError("bidder")

	ErrAlreadyDecided = &AppError{
		Type:       ErrorTypeBusiness,
		Code:       "AUCTION_ALREADY_DECIDED",
		Message:    "This product has already been sold or cancelled",
		StatusCode: 422,
	}
	ErrAuctionClosed = &AppError{
		Type:       ErrorTypeBusiness,
		Code:       "AUCTION_CLOSED",
		Message:    "Auction has ended",
		StatusCode: 422,
	}
	ErrSelfBid = &AppError{
		Type:       ErrorTypeUnauthorized,
		Code:       "SELF_BID",
		Message:    "You cannot bid on your own product",
		StatusCode: 403,
	}
	ErrNotSeller = &AppError{
		Type:       ErrorTypeUnauthorized,
		Code:       "NOT_SELLER",
		Message:    "Only the seller can manage bidders on this product",
		StatusCode: 403,
	}
	ErrBidderRejected = &AppError{
		Type:       ErrorTypeForbidden,
		Code:       "BIDDER_REJECTED",
		Message:    "You have been rejected from bidding on this product by the seller",
		StatusCode: 403,
	}
	ErrUnratedBidder = &AppError{
		Type:       ErrorTypeForbidden,
		Code:       "UNRATED_BIDDER",
		Message:    "This seller does not allow unrated bidders to bid on this product",
		StatusCode: 403,
	}
	ErrIneligibleBidder = &AppError{
		Type:       ErrorTypeForbidden,
		Code:       "INELIGIBLE_BIDDER",
		Message:    "You are not eligible to place bids due to your rating",
		StatusCode: 403,
	}
	ErrBidTooLow = &AppError{
		Type:       ErrorTypeValidation,
		Code:       "BID_TOO_LOW",
		Message:    "Bid must be higher than the current price",
		StatusCode: 400,
	}
	ErrBelowIncrement = &AppError{
		Type:       ErrorTypeValidation,
		Code:       "BID_BELOW_INCREMENT",
		Message:    "Bid must exceed the current price by at least the step price",
		StatusCode: 400,
	}
	ErrBuyNowUnavailable = &AppError{
		Type:       ErrorTypeBusiness,
		Code:       "BUY_NOW_UNAVAILABLE",
		Message:    "Buy Now option is not available for this product",
		StatusCode: 422,
	}
	ErrNoProxyBid = &AppError{
		Type:       ErrorTypeBusiness,
		Code:       "NO_PROXY_BID",
		Message:    "This bidder has not placed a bid on this product",
		StatusCode: 422,
	}
	ErrLockContention = &AppError{
		Type:       ErrorTypeConflict,
		Code:       "LOCK_TIMEOUT",
		Message:    "The product is busy, please try again",
		Retryable:  true,
		StatusCode: 409,
	}
)

// Wrap wraps an error with a message using fmt.Errorf with %w
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// IsType checks if an error is of a specific type
func IsType(err error, errorType ErrorType) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type == errorType
	}
	return false
}

// IsRetryable checks if an error is retryable
func IsRetryable(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Retryable
	}
	return false
}

// GetStatusCode extracts HTTP status code from error
func GetStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}
	return 500
}
