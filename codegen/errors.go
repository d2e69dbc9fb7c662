package codegen

import (
	"errors"
	"fmt"
)

// ProgramStructureError reports misuse of the Builder, such as closing a
// frame of the wrong kind. It is always a code generation defect.
type ProgramStructureError struct {
	Op  string
	Msg string
}

func (e *ProgramStructureError) Error() string {
	return fmt.Sprintf("codegen: %s: %s", e.Op, e.Msg)
}

// ErrNoCode is returned when a hoisted value without initializer code is
// emitted.
var ErrNoCode = errors.New("codegen: value has no code")

// ErrUnresolved is returned when a hoisted value was never given a runtime
// value.
var ErrUnresolved = errors.New("codegen: value is unresolved")

func structuref(op, format string, args ...any) {
	panic(&ProgramStructureError{Op: op, Msg: fmt.Sprintf(format, args...)})
}

// Recover converts a ProgramStructureError panic into *errp. Other panics
// propagate. Use as: defer codegen.Recover(&err).
func Recover(errp *error) {
	r := recover()
	if r == nil {
		return
	}
	if pe, ok := r.(*ProgramStructureError); ok {
		*errp = pe
		return
	}
	panic(r)
}
