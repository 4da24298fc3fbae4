package driver

import (
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ErrorCode represents internal error codes for driver operations
type ErrorCode int

const (
	// Success
	ErrCodeOK ErrorCode = 0

	// Caller errors
	ErrCodeSessionState     ErrorCode = 1000
	ErrCodeRequestQueueFull ErrorCode = 1001
	ErrCodeWorkersBusy      ErrorCode = 1002
	ErrCodeNoHostAvailable  ErrorCode = 1003

	// Cluster / environment errors
	ErrCodeResolveFailed  ErrorCode = 2000
	ErrCodeWorkerInit     ErrorCode = 2001
	ErrCodeShuttingDown   ErrorCode = 2002
	ErrCodeConnectionLost ErrorCode = 2003
	ErrCodeEventQueueFull ErrorCode = 2004
)

// DriverError represents a structured error with code and context
type DriverError struct {
	Code    ErrorCode
	Message string
	Details map[string]interface{}
	Cause   error
}

// Error implements the error interface
func (e *DriverError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying error
func (e *DriverError) Unwrap() error {
	return e.Cause
}

// ToGRPCStatus converts DriverError to a gRPC status
func (e *DriverError) ToGRPCStatus() *status.Status {
	return status.New(e.toGRPCCode(), e.Error())
}

// toGRPCCode maps internal error codes to gRPC codes
func (e *DriverError) toGRPCCode() codes.Code {
	switch e.Code {
	case ErrCodeOK:
		return codes.OK
	case ErrCodeSessionState:
		return codes.FailedPrecondition
	case ErrCodeRequestQueueFull, ErrCodeWorkersBusy, ErrCodeEventQueueFull:
		return codes.ResourceExhausted
	case ErrCodeNoHostAvailable, ErrCodeResolveFailed, ErrCodeConnectionLost:
		return codes.Unavailable
	case ErrCodeShuttingDown:
		return codes.Canceled
	case ErrCodeWorkerInit:
		return codes.Internal
	default:
		return codes.Unknown
	}
}

// NewDriverError creates a new driver error
func NewDriverError(code ErrorCode, message string) *DriverError {
	return &DriverError{Code: code, Message: message}
}

// WrapDriverError creates a driver error wrapping a cause
func WrapDriverError(code ErrorCode, message string, cause error) *DriverError {
	return &DriverError{Code: code, Message: message, Cause: cause}
}

// CodeOf extracts the driver error code from err, or ErrCodeOK if err is
// nil and ErrCodeConnectionLost if err is not a DriverError.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ErrCodeOK
	}
	var de *DriverError
	if errors.As(err, &de) {
		return de.Code
	}
	return ErrCodeConnectionLost
}
