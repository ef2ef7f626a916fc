package errors

import (
	"fmt"
	"runtime"
	"strings"
)

// Codes used by the audio pipeline service layer. Handlers map them to
// HTTP statuses; the values intentionally mirror the statuses they
// translate to.
const (
	CodeBadRequest   = 400
	CodeUnauthorized = 401
	CodePaymentDue   = 402
	CodeNotFound     = 404
	CodeConflict     = 409
	CodeGone         = 410
	CodeInternal     = 500
)

// Error is a coded error with an optional captured stack.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
	Stack   string `json:"stack,omitempty"`
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return "unknown error"
}

func (e *Error) Unwrap() error { return e.Err }

// WithCode creates a new coded error.
func WithCode(code int, message string) *Error {
	return &Error{Code: code, Message: message, Stack: captureStack()}
}

// WithCodef creates a new coded error with a formatted message.
func WithCodef(code int, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Stack: captureStack()}
}

// Wrap wraps err with a message, keeping any existing code.
func Wrap(err error, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{Code: GetCode(err), Message: message, Err: err, Stack: captureStack()}
}

func New(message string) *Error {
	return &Error{Message: message, Stack: captureStack()}
}

// GetCode returns the code carried by err, or 0 for plain errors.
func GetCode(err error) int {
	if e, ok := err.(*Error); ok {
		return e.Code
	}
	return 0
}

// GetMessage returns the user-facing message of err.
func GetMessage(err error) string {
	if e, ok := err.(*Error); ok {
		return e.Message
	}
	if err != nil {
		return err.Error()
	}
	return ""
}

func captureStack() string {
	buf := make([]byte, 1024)
	n := runtime.Stack(buf, false)
	lines := strings.Split(string(buf[:n]), "\n")
	if len(lines) > 6 {
		lines = lines[6:]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
