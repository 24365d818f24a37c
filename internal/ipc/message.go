package ipc

import (
	"encoding/json"
	"fmt"
)

// Error codes returned in IPC responses. The set is fixed; handlers must not
// invent ad hoc codes.
const (
	CodeExecutableNotFound = "EXECUTABLE_NOT_FOUND"
	CodeSpawnFailure       = "SPAWN_FAILURE"
	CodeProcessExited      = "PROCESS_EXITED"
	CodeDuplicateProcess   = "DUPLICATE_PROCESS"
	CodeInvalidRequest     = "INVALID_REQUEST"
	CodeNotFound           = "NOT_FOUND"
	CodeInternalError      = "INTERNAL_ERROR"
	CodeAlreadyRunning     = "ALREADY_RUNNING"
)

// Error is the structured error carried in a failed Response. It implements
// the error interface so lifecycle operations can return it directly.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string { return e.Code + ": " + e.Message }

// NewError builds an *Error with a formatted message.
func NewError(code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Message is a single framed request on the socket. Method uses HTTP-style
// verbs and Path uses HTTP-style routes for compatibility with the legacy
// web layer. RequestID is caller-generated and echoed in the Response.
type Message struct {
	Method    string          `json:"method"`
	Path      string          `json:"path"`
	Data      json.RawMessage `json:"data,omitempty"`
	RequestID string          `json:"request_id"`
}

// Response is the single reply to a Message. Exactly one of Data or Err is
// meaningful depending on Success.
type Response struct {
	RequestID string          `json:"request_id"`
	Success   bool            `json:"success"`
	Data      json.RawMessage `json:"data,omitempty"`
	Err       *Error          `json:"error,omitempty"`
}

// OK builds a success response, marshaling data. A marshal failure is
// converted to an INTERNAL_ERROR response rather than propagated.
func OK(requestID string, data any) Response {
	if data == nil {
		return Response{RequestID: requestID, Success: true}
	}
	b, err := json.Marshal(data)
	if err != nil {
		return Fail(requestID, NewError(CodeInternalError, "encode response: %v", err))
	}
	return Response{RequestID: requestID, Success: true, Data: b}
}

// Fail builds an error response.
func Fail(requestID string, e *Error) Response {
	if e == nil {
		e = NewError(CodeInternalError, "unknown error")
	}
	return Response{RequestID: requestID, Success: false, Err: e}
}
