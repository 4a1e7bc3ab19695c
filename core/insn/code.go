package insn

import (
	"errors"
	"fmt"

	"github.com/classflow/classflow/core/ref"
)

// ErrMalformedCode reports structurally broken input: an instruction that
// references a label belonging to another method, or wide-slot invariants
// violated by the serialized form.
var ErrMalformedCode = errors.New("malformed code")

// TryCatch is one exception-table entry. The protected range is
// [Start, End); Type is nil for catch-all handlers. Entries keep their
// source order, nested handler resolution depends on it.
type TryCatch struct {
	Start   *LabelInsn
	End     *LabelInsn
	Handler *LabelInsn
	Type    *ref.ClassRef
}

// Code owns the ordered instruction sequence of one method, its label table
// and exception blocks, plus the declared stack and local capacities.
type Code struct {
	insns  []Instruction
	labels map[int]*LabelInsn
	nextID int
	dirty  bool

	TryCatches []*TryCatch
	MaxStack   int
	MaxLocals  int
}

func NewCode() *Code {
	return &Code{labels: make(map[int]*LabelInsn)}
}

// Len returns the number of instructions, pseudo instructions included.
func (c *Code) Len() int { return len(c.insns) }

// Instructions returns the backing sequence. Callers must not reorder it.
func (c *Code) Instructions() []Instruction {
	c.renumber()
	return c.insns
}

// First returns the first instruction, or nil for empty code.
func (c *Code) First() Instruction {
	if len(c.insns) == 0 {
		return nil
	}
	return c.insns[0]
}

// At returns the instruction at position pos.
func (c *Code) At(pos int) Instruction {
	c.renumber()
	return c.insns[pos]
}

// Append adds ins at the end of the sequence. Positions stay stable.
func (c *Code) Append(ins Instruction) {
	if ins.Code() != nil {
		panic("insn: instruction already owned by a code sequence")
	}
	var prev Instruction
	if n := len(c.insns); n > 0 {
		prev = c.insns[n-1]
		prev.base().next = ins
	}
	ins.setOwner(c, len(c.insns))
	ins.link(prev, nil)
	c.insns = append(c.insns, ins)
}

// InsertBefore places ins immediately before mark. Positions are recomputed
// lazily on the next query.
func (c *Code) InsertBefore(mark, ins Instruction) {
	if mark.Code() != c {
		panic("insn: mark not owned by this code sequence")
	}
	if ins.Code() != nil {
		panic("insn: instruction already owned by a code sequence")
	}
	c.renumber()
	at := mark.base().pos
	c.insns = append(c.insns, nil)
	copy(c.insns[at+1:], c.insns[at:])
	c.insns[at] = ins

	prev := mark.Prev()
	ins.setOwner(c, at)
	ins.link(prev, mark)
	if prev != nil {
		prev.base().next = ins
	}
	mark.base().prev = ins
	c.dirty = true
}

func (c *Code) renumber() {
	if !c.dirty {
		return
	}
	for i, ins := range c.insns {
		ins.base().pos = i
	}
	c.dirty = false
}

// GetOrCreateLabel returns the canonical label for the raw label value,
// creating it on first reference. IDs are assigned in allocation order.
// The returned label is detached until appended to the sequence.
func (c *Code) GetOrCreateLabel(raw int) *LabelInsn {
	if l, ok := c.labels[raw]; ok {
		return l
	}
	l := &LabelInsn{node: node{op: NoOpcode}, ID: c.nextID}
	c.nextID++
	c.labels[raw] = l
	return l
}

// Labels returns the number of labels allocated so far.
func (c *Code) Labels() int { return c.nextID }

// owns reports whether l is a label of this method.
func (c *Code) owns(l *LabelInsn) bool {
	return l != nil && l.code == c
}

func (c *Code) checkLabel(ins Instruction, l *LabelInsn) error {
	if !c.owns(l) {
		return fmt.Errorf("%w: %v targets a label outside this method", ErrMalformedCode, ins)
	}
	return nil
}

// checkLabels verifies that every label referenced by ins belongs to this
// code sequence.
func (c *Code) checkLabels(ins Instruction) error {
	switch v := ins.(type) {
	case *JumpInsn:
		return c.checkLabel(ins, v.Target)
	case *TableSwitchInsn:
		if err := c.checkLabel(ins, v.Default); err != nil {
			return err
		}
		for _, t := range v.Targets {
			if err := c.checkLabel(ins, t); err != nil {
				return err
			}
		}
	case *LookupSwitchInsn:
		if err := c.checkLabel(ins, v.Default); err != nil {
			return err
		}
		for _, t := range v.Targets {
			if err := c.checkLabel(ins, t); err != nil {
				return err
			}
		}
	case *LineNumberInsn:
		if v.Start != nil {
			return c.checkLabel(ins, v.Start)
		}
	}
	return nil
}

// Accept replays the code through v: exception blocks first, then the
// instruction sequence in order, finally the capacities. This is the stream
// a class writer consumes to re-serialize the method.
func (c *Code) Accept(v Visitor) error {
	for _, tc := range c.TryCatches {
		for _, l := range []*LabelInsn{tc.Start, tc.End, tc.Handler} {
			if !c.owns(l) {
				return fmt.Errorf("%w: try-catch label outside this method", ErrMalformedCode)
			}
		}
		v.VisitTryCatch(tc)
	}
	for _, ins := range c.Instructions() {
		if err := c.checkLabels(ins); err != nil {
			return err
		}
		v.VisitInsn(ins)
	}
	v.VisitMaxs(c.MaxStack, c.MaxLocals)
	return nil
}
