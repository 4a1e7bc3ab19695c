package analysis

import (
	"fmt"

	"github.com/classflow/classflow/core/insn"
)

// Kind is the opcode class a frame belongs to.
type Kind int

const (
	KindArgument Kind = iota
	KindLdc
	KindLocal
	KindArrayLoad
	KindArrayStore
	KindPop
	KindDup
	KindSwap
	KindMath
	KindJump
	KindSwitch
	KindReturn
	KindField
	KindMethod
	KindNew
	KindNewArray
	KindArrayLength
	KindThrow
	KindCheckCast
	KindInstanceOf
	KindMonitor
	KindMultiANewArray
	KindNop
)

var kindNames = [...]string{
	KindArgument:       "argument",
	KindLdc:            "ldc",
	KindLocal:          "local",
	KindArrayLoad:      "array_load",
	KindArrayStore:     "array_store",
	KindPop:            "pop",
	KindDup:            "dup",
	KindSwap:           "swap",
	KindMath:           "math",
	KindJump:           "jump",
	KindSwitch:         "switch",
	KindReturn:         "return",
	KindField:          "field",
	KindMethod:         "method",
	KindNew:            "new",
	KindNewArray:       "new_array",
	KindArrayLength:    "array_length",
	KindThrow:          "throw",
	KindCheckCast:      "check_cast",
	KindInstanceOf:     "instance_of",
	KindMonitor:        "monitor",
	KindMultiANewArray: "multi_a_new_array",
	KindNop:            "nop",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "invalid"
}

// constState memoizes IsConstant. The graph may be cyclic through loops, so
// evaluation marks frames in progress and treats a revisit as non-constant:
// a value feeding itself through a back edge is loop-carried, not constant.
type constState int8

const (
	constUnknown constState = iota
	constPending
	constYes
	constNo
)

// Frame is the record of one reach of one instruction: the opcode executed,
// a snapshot of the symbolic stack and locals after execution, and the
// data-flow edges to the frames that produced its inputs (writes) and the
// frames that consumed its output (reads).
type Frame struct {
	Kind   Kind
	Op     insn.Opcode
	Stack  []Value
	Locals []Value

	writes []*Frame
	reads  []*Frame
	cstate constState
}

func newFrame(kind Kind, op insn.Opcode) *Frame {
	return &Frame{Kind: kind, Op: op}
}

// Writes returns the frames that produced the values this frame consumed.
func (f *Frame) Writes() []*Frame { return f.writes }

// Reads returns the frames that consumed the value this frame produced.
func (f *Frame) Reads() []*Frame { return f.reads }

// addWrite links p as a producer of one of f's inputs and f as a consumer
// of p's output. Synthetic inputs have no producer; nil is ignored.
func (f *Frame) addWrite(p *Frame) {
	if p == nil {
		return
	}
	f.writes = append(f.writes, p)
	p.reads = append(p.reads, f)
}

// IsConstant reports whether the frame's value derives purely from
// compile-time constants through side-effect-free operations. Computed on
// demand: the producer graph is not complete at construction time.
func (f *Frame) IsConstant() bool {
	switch f.cstate {
	case constYes:
		return true
	case constNo:
		return false
	case constPending:
		return false
	}
	f.cstate = constPending
	ok := f.computeConstant()
	if ok {
		f.cstate = constYes
	} else {
		f.cstate = constNo
	}
	return ok
}

func (f *Frame) computeConstant() bool {
	if f.Op.IsConstPush() {
		return true
	}
	if !f.Op.IsPure() || len(f.writes) == 0 {
		return false
	}
	for _, w := range f.writes {
		if !w.IsConstant() {
			return false
		}
	}
	return true
}

func (f *Frame) String() string {
	return fmt.Sprintf("frame{%v %v stack=%d locals=%d}", f.Kind, f.Op, len(f.Stack), len(f.Locals))
}
