package jsonrpc

import (
	"errors"
	"fmt"
)

// JSON-RPC 2.0 error codes
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603

	// CodeRequestCancelled is only sent when UseReplyOnCancel is enabled.
	CodeRequestCancelled = -32800
)

var (
	// ErrMalformedMessage is returned by Classify for valid JSON that is not a
	// recognizable JSON-RPC message.
	ErrMalformedMessage = errors.New("malformed JSON-RPC message")

	// ErrInvalidParams may be wrapped by handlers to have the failure reported
	// to the peer as -32602 instead of an internal error.
	ErrInvalidParams = errors.New("invalid params")

	// ErrConnClosed is returned to outbound callers still waiting when the
	// connection loop exits.
	ErrConnClosed = errors.New("connection closed")

	// ErrRequestTimeout is returned when an outbound request exceeds the
	// configured request timeout.
	ErrRequestTimeout = errors.New("request timed out")

	// ErrUnknownCorrelation marks a reply or cancellation whose id has no
	// matching entry. It is logged, never returned to callers.
	ErrUnknownCorrelation = errors.New("unknown correlation id")

	ErrRegistrationClosed = errors.New("handler registration closed: connection already running")
	ErrDuplicateMethod    = errors.New("duplicate method")
)

// Error represents a JSON-RPC error object. It is both what gets written to
// the peer for failed inbound requests and what Request returns when the peer
// answers with an error.
type Error struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func (e *Error) Error() string {
	if e.Data != nil {
		return fmt.Sprintf("jsonrpc error %d: %s (%v)", e.Code, e.Message, e.Data)
	}
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// NewError returns an Error with the given code, message and optional data.
func NewError(code int, message string, data interface{}) *Error {
	return &Error{Code: code, Message: message, Data: data}
}

// NewParseError returns an Error for a frame that is not valid JSON.
func NewParseError(data interface{}) *Error {
	return &Error{Code: CodeParseError, Message: "Parse error", Data: data}
}

// NewInvalidRequestError returns an Error for valid JSON of the wrong shape.
func NewInvalidRequestError(data interface{}) *Error {
	return &Error{Code: CodeInvalidRequest, Message: "Invalid Request", Data: data}
}

// NewMethodNotFoundError returns an Error for an unregistered method.
func NewMethodNotFoundError(method string) *Error {
	return &Error{Code: CodeMethodNotFound, Message: "Method not found", Data: method}
}

// NewInvalidParamsError returns an Error for params of the wrong arity or type.
func NewInvalidParamsError(data interface{}) *Error {
	return &Error{Code: CodeInvalidParams, Message: "Invalid params", Data: data}
}

// NewInternalError returns an Error for an unexpected handler failure.
func NewInternalError(data interface{}) *Error {
	return &Error{Code: CodeInternalError, Message: "Internal error", Data: data}
}

// ParseError is returned by Codec.ReadFrame for a line that is not valid JSON.
// ID holds the request id recovered from the raw bytes, if any.
type ParseError struct {
	Line []byte
	ID   *int64
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error: %v", e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// toRPCError maps a handler failure to the error object sent to the peer.
func toRPCError(err error) *Error {
	var rpcErr *Error
	if errors.As(err, &rpcErr) {
		return rpcErr
	}
	if errors.Is(err, ErrInvalidParams) {
		return NewInvalidParamsError(err.Error())
	}
	return NewInternalError(err.Error())
}
