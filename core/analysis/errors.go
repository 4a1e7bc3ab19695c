package analysis

import (
	"errors"
	"fmt"

	"github.com/classflow/classflow/core/insn"
	"github.com/classflow/classflow/core/jclass"
)

var (
	// ErrUnsupportedOpcode reports the deprecated JSR/RET subroutine
	// opcodes, which the analyzer refuses.
	ErrUnsupportedOpcode = errors.New("unsupported opcode")
	// ErrUnknownOpcode reports an opcode outside the documented range.
	ErrUnknownOpcode = errors.New("unknown opcode")
	// ErrStackUnderflow reports a pop from an empty symbolic stack.
	ErrStackUnderflow = errors.New("stack underflow")
	// ErrWideMismatch reports a wide pop whose two slots do not form a
	// long or double pair.
	ErrWideMismatch = errors.New("wide slot mismatch")
	// ErrFallOffEnd reports control flow running past the last
	// instruction without a terminator.
	ErrFallOffEnd = errors.New("control flow falls off the end of the code")
)

// ErrMalformedCode re-exports the instruction model's structural failure so
// callers can match every analyzer error kind from one package.
var ErrMalformedCode = insn.ErrMalformedCode

// AnalysisFailedError reports host-level exhaustion while exploring a
// method. It carries the method and its declared stack capacity.
type AnalysisFailedError struct {
	Method   *jclass.Method
	MaxStack int
}

func (e *AnalysisFailedError) Error() string {
	return fmt.Sprintf("analysis of %v failed: execution exhausted (declared max stack %d)", e.Method, e.MaxStack)
}
