package jrpc

import (
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"
)

// Reserved error codes.
const (
	CodeParseError     int32 = -32700
	CodeInvalidRequest int32 = -32600
	CodeMethodNotFound int32 = -32601
	CodeInvalidParams  int32 = -32602
	CodeInternalError  int32 = -32603

	// Application defined errors must be within [CodeServerErrorMin, CodeServerErrorMax].
	CodeServerErrorMin int32 = -32099
	CodeServerErrorMax int32 = -32000
)

// Error is the error member of a response.
type Error struct {
	Code    int32           `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *Error) Error() string {
	if len(e.Data) == 0 {
		return fmt.Sprintf("jrpc: %s (%d)", e.Message, e.Code)
	}
	return fmt.Sprintf("jrpc: %s (%d): %s", e.Message, e.Code, e.Data)
}

// DataString returns the data member if it holds a string, or its raw text otherwise.
func (e *Error) DataString() string {
	var s string
	if json.Unmarshal(e.Data, &s) == nil {
		return s
	}
	return string(e.Data)
}

func mustEncode(v any) json.RawMessage {
	if v == nil {
		return nil
	}
	if raw, ok := v.(json.RawMessage); ok {
		return raw
	}
	data, err := json.Marshal(v)
	if err != nil {
		panic(errors.Wrapf(err, "jrpc: cannot encode error data of type %T", v))
	}
	return data
}

// NewError creates an error with the given code, message and data, data is encoded immediately.
func NewError(code int32, message string, data any) *Error {
	return &Error{Code: code, Message: message, Data: mustEncode(data)}
}

func ParseError(data any) *Error     { return NewError(CodeParseError, "Parse error", data) }
func InvalidRequest(data any) *Error { return NewError(CodeInvalidRequest, "Invalid Request", data) }
func MethodNotFound(data any) *Error { return NewError(CodeMethodNotFound, "Method not found", data) }
func InternalError(data any) *Error  { return NewError(CodeInternalError, "Internal error", data) }

// InvalidParams carries its explanation in the message rather than the data member.
func InvalidParams(message string) *Error {
	return NewError(CodeInvalidParams, message, nil)
}

// ServerError creates an application defined error. A zero code means CodeServerErrorMax.
// Codes outside of the server error band are a programming error and panic.
func ServerError(code int32, message string, data any) *Error {
	if code == 0 {
		code = CodeServerErrorMax
	}
	if code < CodeServerErrorMin || code > CodeServerErrorMax {
		panic(errors.Errorf("jrpc: server error code %d outside of [%d, %d]", code, CodeServerErrorMin, CodeServerErrorMax))
	}
	return NewError(code, message, data)
}

// IsServerErrorCode reports whether the code is within the application defined band.
func IsServerErrorCode(code int32) bool {
	return CodeServerErrorMin <= code && code <= CodeServerErrorMax
}

// AsError returns the first *Error in the chain of err, if any.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) && e != nil {
		return e, true
	}
	return nil, false
}

// ContractError is raised (as a panic) when a bound method violates its declared contract,
// such as returning a value that cannot be encoded. It never becomes a wire response.
type ContractError struct {
	Method string
	Err    error
}

func (e *ContractError) Error() string {
	return fmt.Sprintf("jrpc: method %q violated its contract: %v", e.Method, e.Err)
}
func (e *ContractError) Unwrap() error { return e.Err }
