// Package protocol implements the JSON-RPC 2.0 newline-delimited wire codec
// and the application error taxonomy layered on top of it.
package protocol

import "encoding/json"

// Version is the only accepted value of the "jsonrpc" field.
const Version = "2.0"

// Request is an inbound frame. Id is nil for a notification (none are sent
// by the client in this protocol, but the shape is still validated).
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Response is an outbound reply frame, carrying exactly one of Result or
// Error.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// Notification is an outbound unsolicited frame: same envelope as Response
// but with a method name instead of an id/result/error.
type Notification struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

// Error is the JSON-RPC error object, with an application-specific Data
// payload attached for anything in the -32000..-32099 band.
type Error struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    *ErrorData  `json:"data,omitempty"`
}

// ErrorData is the application error payload. ErrorType is a stable ASCII
// token for programmatic handling; ErrorCode repeats the numeric code of the
// enclosing Error (there is no separate internal numbering).
type ErrorData struct {
	ErrorType   string `json:"error_type"`
	ErrorCode   int    `json:"error_code"`
	Recoverable bool   `json:"recoverable"`
}

// NewResult builds a successful Response for the given request id.
func NewResult(id json.RawMessage, result any) (*Response, error) {
	raw, err := json.Marshal(result)
	if err != nil {
		return nil, err
	}
	return &Response{JSONRPC: Version, ID: id, Result: raw}, nil
}

// NewErrorResponse builds a failed Response from an *AppError (or wraps any
// other error as internal-error).
func NewErrorResponse(id json.RawMessage, err error) *Response {
	return &Response{JSONRPC: Version, ID: id, Error: ToWireError(err)}
}

// NewNotification builds an outbound notification frame.
func NewNotification(method string, params any) (*Notification, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}
	return &Notification{JSONRPC: Version, Method: method, Params: raw}, nil
}
