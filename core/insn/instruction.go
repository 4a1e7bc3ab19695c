package insn

import (
	"fmt"

	"github.com/classflow/classflow/core/ref"
)

// Instruction is one entry of a method's code sequence. Pseudo instructions
// (labels, line numbers) implement it as well so that positions survive a
// round trip through the serializer.
type Instruction interface {
	// Op returns the instruction's opcode, or NoOpcode for pseudo
	// instructions.
	Op() Opcode
	// Code returns the owning code sequence, nil while detached.
	Code() *Code
	// Position returns the index of this instruction within its code.
	Position() int
	// Prev and Next navigate the sequence in O(1).
	Prev() Instruction
	Next() Instruction

	setOwner(c *Code, pos int)
	link(prev, next Instruction)
	base() *node
}

// node carries the sequence bookkeeping shared by all instruction variants.
type node struct {
	op   Opcode
	code *Code
	prev Instruction
	next Instruction
	pos  int
}

func (n *node) Op() Opcode        { return n.op }
func (n *node) Code() *Code       { return n.code }
func (n *node) Prev() Instruction { return n.prev }
func (n *node) Next() Instruction { return n.next }

func (n *node) Position() int {
	if n.code != nil {
		n.code.renumber()
	}
	return n.pos
}

func (n *node) setOwner(c *Code, pos int) {
	n.code = c
	n.pos = pos
}

func (n *node) link(prev, next Instruction) {
	n.prev = prev
	n.next = next
}

func (n *node) base() *node { return n }

// SimpleInsn is a zero-operand instruction.
type SimpleInsn struct {
	node
}

func NewSimple(op Opcode) *SimpleInsn {
	return &SimpleInsn{node: node{op: op}}
}

func (i *SimpleInsn) String() string { return i.op.String() }

// IntInsn carries a single immediate integer operand: BIPUSH, SIPUSH and
// NEWARRAY.
type IntInsn struct {
	node
	Operand int32
}

func NewInt(op Opcode, operand int32) *IntInsn {
	return &IntInsn{node: node{op: op}, Operand: operand}
}

func (i *IntInsn) String() string { return fmt.Sprintf("%v %d", i.op, i.Operand) }

// TypeConst is an LDC constant denoting a class literal by its descriptor.
type TypeConst struct {
	Desc string
}

// LdcInsn pushes a constant-pool constant. Const holds one of int32, int64,
// float32, float64, string, TypeConst or *ref.MethodRef (a method handle).
type LdcInsn struct {
	node
	Const any
}

func NewLdc(c any) *LdcInsn {
	return &LdcInsn{node: node{op: LDC}, Const: c}
}

func (i *LdcInsn) String() string { return fmt.Sprintf("LDC %v", i.Const) }

// VarInsn loads from or stores to a local variable slot.
type VarInsn struct {
	node
	Index int
}

func NewVar(op Opcode, index int) *VarInsn {
	return &VarInsn{node: node{op: op}, Index: index}
}

func (i *VarInsn) String() string { return fmt.Sprintf("%v %d", i.op, i.Index) }

// IincInsn increments a local variable in place.
type IincInsn struct {
	node
	Index int
	Incr  int
}

func NewIinc(index, incr int) *IincInsn {
	return &IincInsn{node: node{op: IINC}, Index: index, Incr: incr}
}

func (i *IincInsn) String() string { return fmt.Sprintf("IINC %d %d", i.Index, i.Incr) }

// JumpInsn is a conditional branch or GOTO targeting a label in the same
// method.
type JumpInsn struct {
	node
	Target *LabelInsn
}

func NewJump(op Opcode, target *LabelInsn) *JumpInsn {
	return &JumpInsn{node: node{op: op}, Target: target}
}

func (i *JumpInsn) String() string { return fmt.Sprintf("%v L%d", i.op, i.Target.ID) }

// TableSwitchInsn is a dense switch over [Min, Max].
type TableSwitchInsn struct {
	node
	Min     int32
	Max     int32
	Default *LabelInsn
	Targets []*LabelInsn
}

func NewTableSwitch(min, max int32, dflt *LabelInsn, targets []*LabelInsn) *TableSwitchInsn {
	return &TableSwitchInsn{node: node{op: TABLESWITCH}, Min: min, Max: max, Default: dflt, Targets: targets}
}

// LookupSwitchInsn is a sparse switch over Keys.
type LookupSwitchInsn struct {
	node
	Default *LabelInsn
	Keys    []int32
	Targets []*LabelInsn
}

func NewLookupSwitch(dflt *LabelInsn, keys []int32, targets []*LabelInsn) *LookupSwitchInsn {
	return &LookupSwitchInsn{node: node{op: LOOKUPSWITCH}, Default: dflt, Keys: keys, Targets: targets}
}

// TypeInsn references a class: NEW, ANEWARRAY, CHECKCAST, INSTANCEOF.
type TypeInsn struct {
	node
	Class *ref.ClassRef
}

func NewType(op Opcode, class *ref.ClassRef) *TypeInsn {
	return &TypeInsn{node: node{op: op}, Class: class}
}

func (i *TypeInsn) String() string { return fmt.Sprintf("%v %s", i.op, i.Class.Name) }

// FieldInsn reads or writes a field.
type FieldInsn struct {
	node
	Field *ref.FieldRef
}

func NewField(op Opcode, field *ref.FieldRef) *FieldInsn {
	return &FieldInsn{node: node{op: op}, Field: field}
}

func (i *FieldInsn) String() string {
	return fmt.Sprintf("%v %s.%s %s", i.op, i.Field.Owner, i.Field.Name, i.Field.Desc)
}

// MethodInsn invokes a method through one of the four symbolic invoke forms.
type MethodInsn struct {
	node
	Method      *ref.MethodRef
	ToInterface bool
}

func NewMethod(op Opcode, method *ref.MethodRef, toInterface bool) *MethodInsn {
	return &MethodInsn{node: node{op: op}, Method: method, ToInterface: toInterface}
}

func (i *MethodInsn) String() string {
	return fmt.Sprintf("%v %s.%s%s", i.op, i.Method.Owner, i.Method.Name, i.Method.Desc)
}

// BootstrapMethod describes an invokedynamic bootstrap: the method handle
// plus its static arguments.
type BootstrapMethod struct {
	Handle *ref.MethodRef
	Args   []any
}

// InvokeDynamicInsn is an invokedynamic call site.
type InvokeDynamicInsn struct {
	node
	Name      string
	Desc      string
	Bootstrap *BootstrapMethod
}

func NewInvokeDynamic(name, desc string, bootstrap *BootstrapMethod) *InvokeDynamicInsn {
	return &InvokeDynamicInsn{node: node{op: INVOKEDYNAMIC}, Name: name, Desc: desc, Bootstrap: bootstrap}
}

// MultiANewArrayInsn allocates a multi-dimensional array.
type MultiANewArrayInsn struct {
	node
	Desc string
	Dims int
}

func NewMultiANewArray(desc string, dims int) *MultiANewArrayInsn {
	return &MultiANewArrayInsn{node: node{op: MULTIANEWARRAY}, Desc: desc, Dims: dims}
}

// LabelInsn is a pseudo instruction marking a branch target. Labels are
// canonical per code: the same raw label always maps to the same *LabelInsn.
type LabelInsn struct {
	node
	ID int
}

func (i *LabelInsn) String() string { return fmt.Sprintf("L%d", i.ID) }

// LineNumberInsn is a pseudo instruction carrying source line info.
type LineNumberInsn struct {
	node
	Line  int
	Start *LabelInsn
}

func NewLineNumber(line int, start *LabelInsn) *LineNumberInsn {
	return &LineNumberInsn{node: node{op: NoOpcode}, Line: line, Start: start}
}
