package analysis

import "github.com/classflow/classflow/core/insn"

// Result maps every visited instruction to the frames recorded for it, one
// per reach in exploration order, plus the observed stack and local maxima.
type Result struct {
	frames map[insn.Instruction][]*Frame

	MaxStack  int
	MaxLocals int
}

func newResult() *Result {
	return &Result{frames: make(map[insn.Instruction][]*Frame)}
}

// Frames returns the frames recorded for ins, in exploration order.
func (r *Result) Frames(ins insn.Instruction) []*Frame {
	return r.frames[ins]
}

// Visited reports whether the analyzer reached ins.
func (r *Result) Visited(ins insn.Instruction) bool {
	return len(r.frames[ins]) > 0
}

// FrameCount returns the total number of frames across all instructions.
func (r *Result) FrameCount() int {
	n := 0
	for _, fs := range r.frames {
		n += len(fs)
	}
	return n
}

// Empty reports whether the analysis recorded nothing, as for abstract and
// native methods.
func (r *Result) Empty() bool { return len(r.frames) == 0 }

func (r *Result) record(ins insn.Instruction, f *Frame, stackSize, localsSize int) {
	r.frames[ins] = append(r.frames[ins], f)
	if stackSize > r.MaxStack {
		r.MaxStack = stackSize
	}
	if localsSize > r.MaxLocals {
		r.MaxLocals = localsSize
	}
}
