package errors

import (
	"fmt"
	"runtime/debug"
)

// PanicError represents a panic recovered from a task handler or HTTP handler
type PanicError struct {
	Value      interface{}
	Stacktrace string
}

// Error implements the error interface
func (p *PanicError) Error() string {
	return fmt.Sprintf("panic recovered: %v", p.Value)
}

// Is treats a recovered panic as an internal failure
func (p *PanicError) Is(target error) bool {
	return target == ErrInternal
}

// RecoverPanic converts a recovered value into a *PanicError.
// It must be called directly from a deferred function:
//
//	defer func() {
//		if r := recover(); r != nil {
//			err = errors.RecoverPanic(r)
//		}
//	}()
func RecoverPanic(r interface{}) error {
	if r == nil {
		return nil
	}
	return &PanicError{
		Value:      r,
		Stacktrace: string(debug.Stack()),
	}
}

// FormatPanicForLog returns a formatted string suitable for logging
func FormatPanicForLog(panicErr *PanicError) string {
	return fmt.Sprintf("PANIC: %v\n\nStack Trace:\n%s", panicErr.Value, panicErr.Stacktrace)
}
