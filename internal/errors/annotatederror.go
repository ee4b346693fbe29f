// Package errors provides error annotation with slog attributes and call
// stacks. It re-exports the stdlib helpers so callers only need one import.
package errors

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"strings"
)

const maxStackDepth = 32

// callStack records program counters captured at annotation time.
type callStack []uintptr

// newCallStack captures the current call stack. skip counts the frames to
// leave out, including runtime.Callers and newCallStack themselves.
func newCallStack(skip int) callStack {
	pcs := make([]uintptr, maxStackDepth)
	n := runtime.Callers(skip, pcs)
	return callStack(pcs[:n])
}

func (s callStack) format() string {
	var b strings.Builder
	frames := runtime.CallersFrames(s)
	for {
		frame, more := frames.Next()
		_, _ = fmt.Fprintf(&b, "%s:%d %s\n", frame.File, frame.Line, frame.Function)
		if !more {
			break
		}
	}
	return b.String()
}

// annotatedError carries a message, optional slog attributes, and the call
// stack of the place it was created.
type annotatedError struct {
	err   error
	msg   string
	attrs []slog.Attr
	stack callStack
}

func (e *annotatedError) Error() string {
	if e.err == nil {
		return e.msg
	}
	return e.msg + ": " + e.err.Error()
}

func (e *annotatedError) Unwrap() error {
	return e.err
}

// Wrap annotates err with a message and optional [slog.Attr]. The call site is
// recorded so that [SlogError] can point at the origin of the failure.
func Wrap(err error, msg string, attrs ...slog.Attr) error {
	return &annotatedError{
		err:   err,
		msg:   msg,
		attrs: attrs,
		stack: newCallStack(3), //nolint:mnd // skips runtime.Callers, newCallStack, and Wrap.
	}
}

// NewSentinel creates an error meant to be declared as a package-level
// sentinel and matched with [Is].
func NewSentinel(msg string) error {
	return errors.New(msg)
}

// DecoratePanic converts a recovered panic value into an error that records
// where the panic was raised. Returns nil when excp is nil.
func DecoratePanic(excp any) error {
	if excp == nil {
		return nil
	}
	return &annotatedError{
		err:   nil,
		msg:   fmt.Sprintf("panic: %v", excp),
		attrs: nil,
		stack: newCallStack(3), //nolint:mnd // skips runtime.Callers, newCallStack, and DecoratePanic.
	}
}

// SlogError renders err as a structured "error" group with the message, the
// collected annotations, and the call stack closest to the root cause.
func SlogError(err error) slog.Attr {
	if err == nil {
		return slog.Group("error", slog.String("message", "<nil>"))
	}
	attrs := []slog.Attr{slog.String("message", err.Error())}
	annotations, stack := collectAnnotations(err)
	if len(annotations) > 0 {
		attrs = append(attrs, slog.Attr{Key: "annotations", Value: slog.GroupValue(annotations...)})
	}
	if stack != nil {
		attrs = append(attrs, slog.String("stack", stack.format()))
	}
	return slog.Attr{Key: "error", Value: slog.GroupValue(attrs...)}
}

// collectAnnotations walks the error chain gathering attributes from every
// annotated error and keeping the deepest recorded stack.
func collectAnnotations(err error) ([]slog.Attr, callStack) {
	var (
		annotations []slog.Attr
		stack       callStack
	)
	for err != nil {
		var annotated *annotatedError
		if !errors.As(err, &annotated) {
			break
		}
		annotations = append(annotations, annotated.attrs...)
		if annotated.stack != nil {
			stack = annotated.stack
		}
		err = annotated.err
	}
	return annotations, stack
}

// New returns an error with the given text. See [errors.New].
func New(text string) error {
	return errors.New(text)
}

// Is reports whether any error in err's chain matches target. See [errors.Is].
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target. See [errors.As].
func As(err error, target any) bool {
	return errors.As(err, target)
}

// Unwrap returns the result of calling the Unwrap method on err. See [errors.Unwrap].
func Unwrap(err error) error {
	return errors.Unwrap(err)
}

// Join wraps the given errors into a single error. See [errors.Join].
func Join(errs ...error) error {
	return errors.Join(errs...)
}
