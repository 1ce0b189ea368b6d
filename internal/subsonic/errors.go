package subsonic

import "fmt"

// Code is a subsonic protocol error code.
type Code int

const (
	CodeGeneric          Code = 0
	CodeMissingParameter Code = 10
	CodeClientTooOld     Code = 20
	CodeServerTooOld     Code = 30
	CodeWrongAuth        Code = 40
	CodeNotAuthorized    Code = 50
	CodeNotFound         Code = 70
)

// Error is a coded protocol error, rendered into the response envelope.
// Anything a handler returns that is not an *Error is logged in full
// and rendered as CodeGeneric, upstream detail is not assumed safe for
// clients.
type Error struct {
	Code    Code
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("subsonic error %d: %s", e.Code, e.Message)
}

func errMissing(format string, args ...any) *Error {
	return &Error{Code: CodeMissingParameter, Message: fmt.Sprintf(format, args...)}
}

func errNotFound(format string, args ...any) *Error {
	return &Error{Code: CodeNotFound, Message: fmt.Sprintf(format, args...)}
}

// errWrongAuth is returned for unknown users and bad credentials alike,
// so callers can't probe which half failed.
func errWrongAuth() *Error {
	return &Error{Code: CodeWrongAuth, Message: "incorrect username or password"}
}

// httpStatus is the HTTP status an error envelope is sent with.
func (e *Error) httpStatus() int {
	if e.Code == CodeNotFound {
		return 404
	}
	return 400
}
