package phpworld

import (
	"fmt"

	"github.com/sadewadee/phpworld/internal/interpreter"
)

// LocalValidationError is returned synchronously, before any I/O, when
// a Proxy operation is invalid on its face: a name containing a space,
// a malformed class segment, a wrong argument count for a special
// global function, or an attempt to coerce/construct a proxy that
// doesn't support it.
type LocalValidationError struct {
	Message string
	Cause   error
}

func (e *LocalValidationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("phpworld: %s: %v", e.Message, e.Cause)
	}
	return "phpworld: " + e.Message
}

func (e *LocalValidationError) Unwrap() error { return e.Cause }

func localErrorf(format string, args ...any) *LocalValidationError {
	return &LocalValidationError{Message: fmt.Sprintf(format, args...)}
}

func wrapLocalError(cause error) *LocalValidationError {
	return &LocalValidationError{Message: cause.Error(), Cause: cause}
}

// InterpreterError is a throwable raised by PHP code during dispatch,
// surfaced at the next await of an operation on the same nesting
// level.
type InterpreterError struct {
	File    string
	Line    int
	Message string
	Trace   string
}

func (e *InterpreterError) Error() string {
	return fmt.Sprintf("phpworld: %s in %s:%d", e.Message, e.File, e.Line)
}

func newInterpreterError(re *interpreter.RemoteError) *InterpreterError {
	return &InterpreterError{File: re.File, Line: re.Line, Message: re.Message, Trace: re.Trace}
}

// InterpreterExitError is the terminal error synthesized once the PHP
// side has gone away: Code distinguishes clean exit (0),
// a non-zero exit code, or abnormal death (-1).
type InterpreterExitError struct {
	Code  int
	Cause error
}

func (e *InterpreterExitError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("phpworld: interpreter exited (code %d): %v", e.Code, e.Cause)
	}
	return fmt.Sprintf("phpworld: interpreter exited (code %d)", e.Code)
}

func (e *InterpreterExitError) Unwrap() error { return e.Cause }

func newExitError(ee *interpreter.ExitError) *InterpreterExitError {
	return &InterpreterExitError{Code: ee.Code, Cause: ee.Cause}
}

// HostCallbackError is raised while servicing a PHP->host callback; it
// is transmitted back to PHP as an IS_ERROR DATA reply and re-raised
// there as a native exception. Host
// implementations constructed over reflection (see host.go) produce
// these for missing symbols, unresolvable properties/methods, and
// reflection panics recovered at the dispatch boundary.
type HostCallbackError struct {
	Message string
	Cause   error
}

func (e *HostCallbackError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("phpworld: host callback: %s: %v", e.Message, e.Cause)
	}
	return "phpworld: host callback: " + e.Message
}

func (e *HostCallbackError) Unwrap() error { return e.Cause }

func hostErrorf(format string, args ...any) *HostCallbackError {
	return &HostCallbackError{Message: fmt.Sprintf(format, args...)}
}

// translateExecError classifies an error bubbling out of a Controller
// operation into one of the exported error types, unless it already is
// one (a *LocalValidationError raised before any Exec call).
func translateExecError(err error) error {
	if err == nil {
		return nil
	}
	switch e := err.(type) {
	case *interpreter.RemoteError:
		return newInterpreterError(e)
	case *interpreter.ExitError:
		return newExitError(e)
	case *interpreter.CallbackError:
		return &HostCallbackError{Message: e.Message}
	default:
		return err
	}
}
