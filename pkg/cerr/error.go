package cerr

import (
	"context"
	"errors"
	"fmt"
	"runtime"

	"github.com/kazz187/autoprovision/pkg/clog"
)

type Error struct {
	Code Code
	Msg  string // message returned to the caller together with Code
	Err  error  // underlying error, logged only
	// Stack is captured for error-level codes only.
	Stack string
}

func NewError(code Code, msg string, underlying error) *Error {
	err := &Error{
		Code: code,
		Msg:  msg,
		Err:  underlying,
	}
	if code.Level() == clog.LevelError {
		stackTrace := make([]byte, 2048)
		n := runtime.Stack(stackTrace, false)
		err.Stack = string(stackTrace[0:n])
	}
	return err
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("[%s] %s", e.Code.String(), e.Msg)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code.String(), e.Msg, e.Err.Error())
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsCode reports whether err (or anything it wraps) is an *Error with code.
func IsCode(err error, code Code) bool {
	var cerr *Error
	if errors.As(err, &cerr) {
		return cerr.Code == code
	}
	return false
}

// CodeOf returns the code carried by err. Context cancellation and deadline
// errors map to Canceled and DeadlineExceeded; anything else is Unknown.
func CodeOf(err error) Code {
	if err == nil {
		return OK
	}
	var cerr *Error
	if errors.As(err, &cerr) {
		return cerr.Code
	}
	switch {
	case errors.Is(err, context.Canceled):
		return Canceled
	case errors.Is(err, context.DeadlineExceeded):
		return DeadlineExceeded
	}
	return Unknown
}

// Convert returns err as an *Error, wrapping foreign errors with the code
// CodeOf derives for them.
func Convert(err error) *Error {
	if err == nil {
		return nil
	}
	var cerr *Error
	if errors.As(err, &cerr) {
		return cerr
	}
	switch code := CodeOf(err); code {
	case Canceled:
		return NewError(code, "connection closed", err)
	case DeadlineExceeded:
		return NewError(code, "deadline exceeded", err)
	default:
		return NewError(Unknown, "unknown error", err)
	}
}
