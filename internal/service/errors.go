package service

import "fmt"

// Error is a failure with a stable machine-readable code. The code is what
// the HTTP boundary maps to a status and what clients branch on; the
// message is for humans. Causes are kept for logs only and never leak into
// client responses.
type Error struct {
	Code    string
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.cause
}

// Is matches by code so wrapped instances still compare equal to their
// sentinel.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// wrap returns a copy of e carrying cause for diagnostics.
func (e *Error) wrap(cause error) *Error {
	return &Error{Code: e.Code, Message: e.Message, cause: cause}
}

var (
	// ErrInvalidPhone: the input is not a recognizable phone number. Not
	// retryable; the caller must correct the input.
	ErrInvalidPhone = &Error{Code: "INVALID_PHONE", Message: "Invalid phone number format"}

	// ErrResendThrottled: a code was sent recently and the cooldown has
	// not elapsed.
	ErrResendThrottled = &Error{Code: "RESEND_THROTTLED", Message: "Too many requests, try again later"}

	// ErrDeliveryFailed: the SMS provider rejected the send. The issued
	// code stays valid; the engine never retries delivery itself.
	ErrDeliveryFailed = &Error{Code: "DELIVERY_FAILED", Message: "Failed to deliver verification code"}

	// ErrCodeExpired: no live code for this phone, whether expired,
	// consumed, or never sent.
	ErrCodeExpired = &Error{Code: "CODE_EXPIRED", Message: "Verification code expired or not found"}

	// ErrTooManyAttempts: the attempt budget for the current code is
	// exhausted.
	ErrTooManyAttempts = &Error{Code: "TOO_MANY_ATTEMPTS", Message: "Too many verification attempts"}

	// ErrInvalidCode: the supplied code does not match the stored one.
	ErrInvalidCode = &Error{Code: "INVALID_CODE", Message: "Invalid verification code"}
)
