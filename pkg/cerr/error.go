package cerr

import (
	"errors"
	"fmt"
	"runtime"

	"github.com/agentgate/agentgate/pkg/clog"
)

// Error is a coded error. Msg is returned to the caller together with the
// code; Err is kept for the log only.
type Error struct {
	Code  Code
	Msg   string
	Err   error
	Stack string
}

func NewError(code Code, msg string, underlying error) *Error {
	err := &Error{
		Code: code,
		Msg:  msg,
		Err:  underlying,
	}
	if clog.HTTPStatusToLevel(code.HTTPCode()) == clog.LevelError {
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

func IsCode(err error, code Code) bool {
	var cErr *Error
	if errors.As(err, &cErr) {
		return cErr.Code == code
	}
	return false
}

// CodeOf returns the code carried by err, or Unknown for uncoded errors.
func CodeOf(err error) Code {
	var cErr *Error
	if errors.As(err, &cErr) {
		return cErr.Code
	}
	return Unknown
}
