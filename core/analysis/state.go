package analysis

import (
	"fmt"

	"github.com/classflow/classflow/common/descriptor"
)

// Slot is one symbolic stack or local entry. Slots are shared by pointer
// across the state copies taken at control-flow splits, so that marking a
// receiver initialized is visible on every path that aliases it.
type Slot struct {
	// Desc is the declared type descriptor of the value.
	Desc string
	// Producer is the frame that pushed or stored this value; nil for
	// values synthesized from outside the method.
	Producer *Frame
	// InitDesc is the internal class name of an uninitialized value, set
	// by NEW and for the receiver of a constructor.
	InitDesc string
	// Null marks the value pushed by ACONST_NULL.
	Null bool
	// IsThis marks local slot zero of an instance method.
	IsThis bool
	// Initialized is cleared by NEW and set when a constructor runs on
	// the value.
	Initialized bool
	// wideMarker tags the second slot of a long or double.
	wideMarker bool
	// origin links a copied slot back to the slot it was duplicated
	// from, so initialization reaches every alias.
	origin *Slot
}

// value renders the slot as its snapshot record.
func (s *Slot) value() Value {
	switch {
	case s == nil:
		return Value{Type: Top}
	case s.IsThis:
		return Value{Type: UninitializedThis, Desc: s.InitDesc}
	case s.Null:
		return Value{Type: Null}
	case !s.Initialized && s.InitDesc != "":
		return Value{Type: Uninitialized, Desc: s.InitDesc}
	default:
		return valueForDesc(s.Desc)
	}
}

// isWideValue reports whether the slot holds the first half of a long or
// double.
func (s *Slot) isWideValue() bool {
	return !s.wideMarker && descriptor.IsWide(s.Desc)
}

func marker(of *Slot) *Slot {
	return &Slot{Desc: of.Desc, Producer: of.Producer, wideMarker: true}
}

// Stack is the symbolic operand stack. The top lives at the end of the
// backing slice; snapshots read bottom to top.
type Stack struct {
	slots []*Slot
}

func NewStack() *Stack { return &Stack{} }

// Size returns the current slot count, wide markers included.
func (s *Stack) Size() int { return len(s.slots) }

// Push places v on top of the stack.
func (s *Stack) Push(v *Slot) {
	s.slots = append(s.slots, v)
}

// PushWide places a long or double on the stack as a value slot plus its
// marker slot.
func (s *Stack) PushWide(v *Slot) {
	s.slots = append(s.slots, v, marker(v))
}

// Pop removes and returns the top slot.
func (s *Stack) Pop() (*Slot, error) {
	if len(s.slots) == 0 {
		return nil, ErrStackUnderflow
	}
	v := s.slots[len(s.slots)-1]
	s.slots = s.slots[:len(s.slots)-1]
	return v, nil
}

// PopWide removes a long or double: the marker slot then the matching
// value slot.
func (s *Stack) PopWide() (*Slot, error) {
	m, err := s.Pop()
	if err != nil {
		return nil, err
	}
	if !m.wideMarker {
		return nil, fmt.Errorf("%w: top of stack is not the second half of a wide value", ErrWideMismatch)
	}
	v, err := s.Pop()
	if err != nil {
		return nil, err
	}
	if !v.isWideValue() || v.Producer != m.Producer {
		return nil, fmt.Errorf("%w: wide halves do not match", ErrWideMismatch)
	}
	return v, nil
}

// Peek returns the n-th slot from the top without removing it; Peek(0) is
// the top.
func (s *Stack) Peek(n int) *Slot {
	if n < 0 || n >= len(s.slots) {
		return nil
	}
	return s.slots[len(s.slots)-1-n]
}

// insert places v at depth slots below the top, for the DUP_X family.
func (s *Stack) insert(depth int, v ...*Slot) error {
	if depth > len(s.slots) {
		return ErrStackUnderflow
	}
	at := len(s.slots) - depth
	s.slots = append(s.slots[:at], append(append([]*Slot{}, v...), s.slots[at:]...)...)
	return nil
}

// Copy returns an independent stack sharing the slot entries.
func (s *Stack) Copy() *Stack {
	dup := make([]*Slot, len(s.slots))
	copy(dup, s.slots)
	return &Stack{slots: dup}
}

// Snapshot renders the stack bottom-to-top. Both halves of a wide value
// snapshot as the wide type, keeping the two-adjacent-slots shape.
func (s *Stack) Snapshot() []Value {
	out := make([]Value, len(s.slots))
	for i, slot := range s.slots {
		out[i] = slot.value()
	}
	return out
}

// Locals is the symbolic local variable table.
type Locals struct {
	slots []*Slot
}

func NewLocals() *Locals { return &Locals{} }

// Size returns the table length.
func (l *Locals) Size() int { return len(l.slots) }

// Ensure grows the table with nil placeholders so index i is addressable.
func (l *Locals) Ensure(i int) {
	for len(l.slots) <= i {
		l.slots = append(l.slots, nil)
	}
}

// Get returns the slot at index i, nil when the slot was never written.
func (l *Locals) Get(i int) *Slot {
	if i < 0 || i >= len(l.slots) {
		return nil
	}
	return l.slots[i]
}

// Set writes the slot at index i.
func (l *Locals) Set(i int, v *Slot) {
	l.Ensure(i)
	l.slots[i] = v
}

// SetWide writes a long or double at i, occupying i and i+1.
func (l *Locals) SetWide(i int, v *Slot) {
	l.Ensure(i + 1)
	l.slots[i] = v
	l.slots[i+1] = marker(v)
}

// Append adds a slot at the end of the table.
func (l *Locals) Append(v *Slot) {
	l.slots = append(l.slots, v)
}

// Copy returns an independent table sharing the slot entries.
func (l *Locals) Copy() *Locals {
	dup := make([]*Slot, len(l.slots))
	copy(dup, l.slots)
	return &Locals{slots: dup}
}

// Snapshot renders the table in index order.
func (l *Locals) Snapshot() []Value {
	out := make([]Value, len(l.slots))
	for i, slot := range l.slots {
		out[i] = slot.value()
	}
	return out
}
