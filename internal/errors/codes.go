package errors

import (
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ErrorCode represents internal error codes for hint delivery operations.
type ErrorCode int

const (
	ErrCodeOK ErrorCode = 0

	// Client / caller errors
	ErrCodeInvalidArgument ErrorCode = 1000
	ErrCodeInvalidTTL      ErrorCode = 1001
	ErrCodeTargetNotMember ErrorCode = 1002

	// Session-abort conditions
	ErrCodeStorageValidation   ErrorCode = 2000
	ErrCodeStorageExecution    ErrorCode = 2001
	ErrCodeCorruptMutation     ErrorCode = 2002
	ErrCodeUnknownColumnFamily ErrorCode = 2003
	ErrCodeWriteTimeout        ErrorCode = 2004
	ErrCodePeerDead            ErrorCode = 2005
	ErrCodeSchemaDisagreement  ErrorCode = 2006
	ErrCodePeerMissingInGossip ErrorCode = 2007
	ErrCodePaused              ErrorCode = 2008

	ErrCodeInternal ErrorCode = 3000
)

// HandoffError is a structured error with a code and optional cause,
// carrying enough context for the gRPC management surface to report a
// meaningful status without leaking internal types across the boundary.
type HandoffError struct {
	Code    ErrorCode
	Message string
	Details map[string]interface{}
	Cause   error
}

func (e *HandoffError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *HandoffError) Unwrap() error {
	return e.Cause
}

// ToGRPCStatus converts a HandoffError into a gRPC status for the
// management surface.
func (e *HandoffError) ToGRPCStatus() *status.Status {
	return status.New(e.toGRPCCode(), e.Error())
}

func (e *HandoffError) toGRPCCode() codes.Code {
	switch e.Code {
	case ErrCodeOK:
		return codes.OK
	case ErrCodeInvalidArgument, ErrCodeInvalidTTL:
		return codes.InvalidArgument
	case ErrCodeTargetNotMember, ErrCodePeerMissingInGossip:
		return codes.NotFound
	case ErrCodeCorruptMutation:
		return codes.DataLoss
	case ErrCodePeerDead, ErrCodeWriteTimeout, ErrCodeSchemaDisagreement:
		return codes.Unavailable
	case ErrCodeStorageValidation:
		return codes.FailedPrecondition
	default:
		return codes.Internal
	}
}

func New(code ErrorCode, message string, cause error) *HandoffError {
	return &HandoffError{Code: code, Message: message, Details: make(map[string]interface{}), Cause: cause}
}

func (e *HandoffError) WithDetail(key string, value interface{}) *HandoffError {
	e.Details[key] = value
	return e
}

func InvalidArgument(message string, cause error) *HandoffError {
	return New(ErrCodeInvalidArgument, message, cause)
}

func InvalidTTL(ttl int64) *HandoffError {
	return New(ErrCodeInvalidTTL, fmt.Sprintf("computed TTL %d is not positive", ttl), nil).
		WithDetail("ttl", ttl)
}

func StorageExecution(message string, cause error) *HandoffError {
	return New(ErrCodeStorageExecution, message, cause)
}

func CorruptMutation(message string, cause error) *HandoffError {
	return New(ErrCodeCorruptMutation, message, cause)
}

func UnknownColumnFamily(message string, cause error) *HandoffError {
	return New(ErrCodeUnknownColumnFamily, message, cause)
}

func Internal(message string, cause error) *HandoffError {
	return New(ErrCodeInternal, message, cause)
}

// IsHandoffError reports whether err is a *HandoffError.
func IsHandoffError(err error) bool {
	_, ok := err.(*HandoffError)
	return ok
}

// GetCode extracts the error code from err, defaulting to ErrCodeInternal
// for errors that did not originate in this package.
func GetCode(err error) ErrorCode {
	if he, ok := err.(*HandoffError); ok {
		return he.Code
	}
	return ErrCodeInternal
}
