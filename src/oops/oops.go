// Package oops is our error type: a message, an optional cause, and the stack
// where it was created.
package oops

import (
	"errors"
	"fmt"

	"github.com/go-stack/stack"
	"github.com/rs/zerolog"
)

type Error struct {
	Message string
	Wrapped error
	Stack   CallStack
}

func (e *Error) Error() string {
	if e.Wrapped == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Wrapped)
}

func (e *Error) Unwrap() error {
	return e.Wrapped
}

type CallStack []StackFrame

func (s CallStack) MarshalZerologArray(a *zerolog.Array) {
	for _, frame := range s {
		a.Object(frame)
	}
}

type StackFrame struct {
	File     string `json:"file"`
	Line     int    `json:"line"`
	Function string `json:"function"`
}

func (f StackFrame) MarshalZerologObject(e *zerolog.Event) {
	e.Str("file", f.File).Int("line", f.Line).Str("function", f.Function)
}

/*
Set as zerolog.ErrorStackMarshaler. Finds the outermost *Error anywhere in
the chain, so a stack survives being wrapped by ingestion or deletion errors.
*/
func ZerologStackMarshaler(err error) any {
	var oopsErr *Error
	if errors.As(err, &oopsErr) {
		return oopsErr.Stack
	}
	return nil
}

// Captures the current call stack, minus this function and the runtime.
func Trace() CallStack {
	trace := stack.Trace().TrimRuntime()[1:]
	frames := make(CallStack, len(trace))
	for i, call := range trace {
		f := call.Frame()
		frames[i] = StackFrame{File: f.File, Line: f.Line, Function: f.Function}
	}
	return frames
}

func New(wrapped error, format string, args ...any) error {
	return &Error{
		Message: fmt.Sprintf(format, args...),
		Wrapped: wrapped,
		Stack:   Trace()[1:],
	}
}
