package ferrerr

import (
	"fmt"
	"runtime"
	"strings"
)

// FuncMap is called for each error in a Map traversal; returning false stops
// the walk early.
type FuncMap func(e error) bool

// Error extends the standard error with a numeric code, parent chaining,
// and call-site trace capture. Modules and handlers return Error instead of
// a bare error so the pipeline can classify a failure without inspecting
// its message.
type Error interface {
	error

	IsCode(code CodeError) bool
	HasCode(code CodeError) bool
	GetCode() CodeError

	Add(parent ...error)
	HasParent() bool
	GetParent() []Error

	// Map visits the error and every parent depth-first; it stops as soon
	// as fct returns false.
	Map(fct FuncMap) bool

	// Trace returns "file:line" of the call site that created the error.
	Trace() string
}

type ferr struct {
	code   CodeError
	msg    string
	parent []Error
	frame  runtime.Frame
}

func callerFrame(skip int) runtime.Frame {
	pc := make([]uintptr, 1)
	n := runtime.Callers(skip+2, pc)
	if n == 0 {
		return runtime.Frame{}
	}
	frames := runtime.CallersFrames(pc[:n])
	f, _ := frames.Next()
	return f
}

func newError(code CodeError, msg string, parent ...error) Error {
	e := &ferr{code: code, msg: msg, frame: callerFrame(2)}
	e.Add(parent...)
	return e
}

func newErrorf(code CodeError, format string, args ...interface{}) Error {
	return &ferr{code: code, msg: fmt.Sprintf(format, args...), frame: callerFrame(2)}
}

// New wraps an arbitrary error as an Error with the given code, preserving
// the original message; an err that already is an Error is returned as is. Useful at package boundaries where a stdlib/3rd-party
// error needs to flow through the pipeline's ferrerr.Error contract.
func New(code CodeError, err error) Error {
	if err == nil {
		return nil
	}
	if fe, ok := err.(Error); ok {
		return fe
	}
	return &ferr{code: code, msg: err.Error(), frame: callerFrame(2)}
}

func (e *ferr) Error() string {
	if e == nil {
		return ""
	}
	if e.code == UnknownError {
		return e.msg
	}
	return fmt.Sprintf("[%d] %s", e.code.Uint16(), e.msg)
}

func (e *ferr) IsCode(code CodeError) bool { return e != nil && e.code == code }

func (e *ferr) HasCode(code CodeError) bool {
	if e == nil {
		return false
	}
	if e.code == code {
		return true
	}
	for _, p := range e.parent {
		if p.HasCode(code) {
			return true
		}
	}
	return false
}

func (e *ferr) GetCode() CodeError { return e.code }

func (e *ferr) Add(parent ...error) {
	for _, p := range parent {
		if p == nil {
			continue
		}
		if fe, ok := p.(Error); ok {
			e.parent = append(e.parent, fe)
		} else {
			e.parent = append(e.parent, &ferr{code: UnknownError, msg: p.Error()})
		}
	}
}

func (e *ferr) HasParent() bool { return len(e.parent) > 0 }

func (e *ferr) GetParent() []Error { return e.parent }

func (e *ferr) Map(fct FuncMap) bool {
	if !fct(e) {
		return false
	}
	for _, p := range e.parent {
		if !p.Map(fct) {
			return false
		}
	}
	return true
}

func (e *ferr) Trace() string {
	if e.frame.File == "" {
		return ""
	}
	file := e.frame.File
	if i := strings.LastIndex(file, "/"); i >= 0 {
		file = file[i+1:]
	}
	return fmt.Sprintf("%s:%d", file, e.frame.Line)
}

// Collect merges zero or more errors (nil-safe) into a single Error under
// CodeInternal, or returns nil if none are non-nil, for accumulating
// errors fanned out across a worker pool.
func Collect(errs ...error) Error {
	root := &ferr{code: CodeInternal, msg: "multiple errors"}
	any := false
	for _, e := range errs {
		if e == nil {
			continue
		}
		any = true
		root.Add(e)
	}
	if !any {
		return nil
	}
	return root
}
