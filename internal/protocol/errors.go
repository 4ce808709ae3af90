package protocol

import "errors"

// JSON-RPC standard codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// Application codes in the -32000..-32099 band.
const (
	CodeSessionNotFound     = -32001
	CodeSessionClosed       = -32002
	CodePtyCreationFailed   = -32010
	CodeSSHConnectionFailed = -32020
	CodeAuthFailed          = -32021
	CodeConnectTimeout      = -32022
	CodeHostResolutionFailed = -32023
	CodeKeyLoadFailed       = -32024
	CodeSSHProtocolError    = -32025
	CodeChannelError        = -32026
)

// AppError is the internal representation of a wire-level failure; it
// carries everything needed to build an Error/ErrorData pair without the
// rest of the codebase ever constructing JSON-RPC codes directly.
type AppError struct {
	Code        int
	ErrorType   string
	Message     string
	Recoverable bool
}

func (e *AppError) Error() string {
	return e.Message
}

func newAppError(code int, errType, message string, recoverable bool) *AppError {
	return &AppError{Code: code, ErrorType: errType, Message: message, Recoverable: recoverable}
}

func ErrParse(message string) *AppError {
	return newAppError(CodeParseError, "parse_error", message, false)
}

func ErrInvalidRequest(message string) *AppError {
	return newAppError(CodeInvalidRequest, "invalid_request", message, false)
}

func ErrMethodNotFound(method string) *AppError {
	return newAppError(CodeMethodNotFound, "method_not_found", "unknown method: "+method, false)
}

func ErrInvalidParams(message string) *AppError {
	return newAppError(CodeInvalidParams, "invalid_params", message, false)
}

func ErrInternal(message string) *AppError {
	return newAppError(CodeInternalError, "internal_error", message, false)
}

func ErrSessionNotFound(id string) *AppError {
	return newAppError(CodeSessionNotFound, "session_not_found", "no session with id "+id, false)
}

func ErrSessionClosed(id string) *AppError {
	return newAppError(CodeSessionClosed, "session_closed", "session "+id+" is closed", false)
}

func ErrPtyCreationFailed(message string) *AppError {
	return newAppError(CodePtyCreationFailed, "pty_creation_failed", message, false)
}

func ErrSSHConnectionFailed(message string) *AppError {
	return newAppError(CodeSSHConnectionFailed, "ssh_connection_failed", message, false)
}

func ErrAuthFailed(message string) *AppError {
	return newAppError(CodeAuthFailed, "auth_failed", message, true)
}

func ErrConnectTimeout(message string) *AppError {
	return newAppError(CodeConnectTimeout, "connect_timeout", message, true)
}

func ErrHostResolutionFailed(message string) *AppError {
	return newAppError(CodeHostResolutionFailed, "host_resolution_failed", message, true)
}

func ErrKeyLoadFailed(message string) *AppError {
	return newAppError(CodeKeyLoadFailed, "key_load_failed", message, false)
}

func ErrSSHProtocolError(message string) *AppError {
	return newAppError(CodeSSHProtocolError, "ssh_protocol_error", message, false)
}

func ErrChannelError(message string) *AppError {
	return newAppError(CodeChannelError, "channel_error", message, false)
}

// ToWireError converts any error into a wire Error object. *AppError values
// carry their own code/type/recoverability; anything else is reported as an
// internal error whose message is the error's own text.
func ToWireError(err error) *Error {
	var app *AppError
	if errors.As(err, &app) {
		return &Error{
			Code:    app.Code,
			Message: app.Message,
			Data: &ErrorData{
				ErrorType:   app.ErrorType,
				ErrorCode:   app.Code,
				Recoverable: app.Recoverable,
			},
		}
	}
	return &Error{
		Code:    CodeInternalError,
		Message: err.Error(),
		Data: &ErrorData{
			ErrorType:   "internal_error",
			ErrorCode:   CodeInternalError,
			Recoverable: false,
		},
	}
}
