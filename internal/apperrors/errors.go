package apperrors

import "errors"

// =============================================================================
// Error Codes
// =============================================================================

type ErrorCode string

const (
	ErrorCodeInternalError      ErrorCode = "INTERNAL_ERROR"
	ErrorCodeValidationError    ErrorCode = "VALIDATION_ERROR"
	ErrorCodeNotFound           ErrorCode = "NOT_FOUND"
	ErrorCodeUnauthorized       ErrorCode = "UNAUTHORIZED"
	ErrorCodeForbidden          ErrorCode = "FORBIDDEN"
	ErrorCodeDeviceNotFound     ErrorCode = "DEVICE_NOT_FOUND"
	ErrorCodeDeviceOffline      ErrorCode = "DEVICE_OFFLINE"
	ErrorCodeZoneNotFound       ErrorCode = "ZONE_NOT_FOUND"
	ErrorCodeInputNotFound      ErrorCode = "INPUT_NOT_FOUND"
	ErrorCodeUnsupported        ErrorCode = "UNSUPPORTED_COMMAND"
	ErrorCodeAuthTokenExpired   ErrorCode = "AUTH_TOKEN_EXPIRED"
	ErrorCodeAuthTokenInvalid   ErrorCode = "AUTH_TOKEN_INVALID"
	ErrorCodeServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
)

// Remediation provides guidance on how to fix an error.
type Remediation struct {
	Action   string `json:"action"`
	Endpoint string `json:"endpoint,omitempty"`
}

// =============================================================================
// Stripe API Error Types
// =============================================================================

// ErrorType categorizes errors following Stripe API conventions.
type ErrorType string

const (
	ErrorTypeInvalidRequest ErrorType = "invalid_request_error"
	ErrorTypeAPIError       ErrorType = "api_error"
	ErrorTypeAuthError      ErrorType = "authentication_error"
)

// StripeErrorBody is the Stripe-style error payload.
// Format: {"type": "invalid_request_error", "code": "DEVICE_NOT_FOUND", "message": "..."}
type StripeErrorBody struct {
	Type        ErrorType      `json:"type"`
	Code        string         `json:"code"`
	Message     string         `json:"message"`
	Details     map[string]any `json:"details,omitempty"`
	Remediation *Remediation   `json:"remediation,omitempty"`
}

// AppError is the base error type for HTTP responses.
type AppError struct {
	Code        ErrorCode
	Message     string
	StatusCode  int
	Details     map[string]any
	Remediation *Remediation
}

func (err *AppError) Error() string {
	return err.Message
}

// StripeErrorBody returns the error in Stripe API format.
func (err *AppError) StripeErrorBody() StripeErrorBody {
	errType := ErrorTypeAPIError
	switch {
	case err.StatusCode == 401 || err.StatusCode == 403:
		errType = ErrorTypeAuthError
	case err.StatusCode >= 400 && err.StatusCode < 500:
		errType = ErrorTypeInvalidRequest
	}

	return StripeErrorBody{
		Type:        errType,
		Code:        string(err.Code),
		Message:     err.Message,
		Details:     err.Details,
		Remediation: err.Remediation,
	}
}

func NewAppError(code ErrorCode, message string, statusCode int, details map[string]any, remediation *Remediation) *AppError {
	return &AppError{
		Code:        code,
		Message:     message,
		StatusCode:  statusCode,
		Details:     details,
		Remediation: remediation,
	}
}

func NewValidationError(message string, details map[string]any) *AppError {
	return NewAppError(ErrorCodeValidationError, message, 400, details, nil)
}

func NewUnauthorizedError(message string, code ...ErrorCode) *AppError {
	errCode := ErrorCodeUnauthorized
	if len(code) > 0 {
		errCode = code[0]
	}
	return NewAppError(errCode, message, 401, nil, nil)
}

// NewForbiddenError reports a valid token that lacks the grant for a
// receiver or action.
func NewForbiddenError(message string, details map[string]any) *AppError {
	return NewAppError(ErrorCodeForbidden, message, 403, details, nil)
}

func NewNotFoundError(message string, details map[string]any) *AppError {
	return NewAppError(ErrorCodeNotFound, message, 404, details, nil)
}

// NewDeviceNotFound reports an unknown receiver id.
func NewDeviceNotFound(id string) *AppError {
	return NewAppError(ErrorCodeDeviceNotFound, "Receiver not found: "+id, 404, map[string]any{"id": id}, nil)
}

// NewDeviceOffline reports a configured receiver that is not connected.
func NewDeviceOffline(id string) *AppError {
	return NewAppError(ErrorCodeDeviceOffline, "Receiver is offline: "+id, 503, map[string]any{"id": id}, &Remediation{
		Action:   "reconnect",
		Endpoint: "/v1/receivers/" + id + "/reconnect",
	})
}

func NewZoneNotFound(id string, zone int) *AppError {
	return NewAppError(ErrorCodeZoneNotFound, "Zone not configured", 404, map[string]any{"id": id, "zone": zone}, nil)
}

func NewInputNotFound(input string) *AppError {
	return NewAppError(ErrorCodeInputNotFound, "Input not found: "+input, 400, map[string]any{"input": input}, nil)
}

func NewUnsupportedError(message string) *AppError {
	return NewAppError(ErrorCodeUnsupported, message, 400, nil, nil)
}

func NewServiceUnavailableError(message string) *AppError {
	return NewAppError(ErrorCodeServiceUnavailable, message, 503, nil, nil)
}

func NewInternalError(message string) *AppError {
	return NewAppError(ErrorCodeInternalError, message, 500, nil, nil)
}

// EnsureAppError converts an arbitrary error into an AppError.
func EnsureAppError(err error) *AppError {
	if err == nil {
		return NewInternalError("Unknown error")
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return NewInternalError("Internal server error")
}
