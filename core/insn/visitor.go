package insn

// Visitor consumes the serialization stream of a Code: exception blocks,
// then instructions in sequence order, then the stack and local capacities.
// A class writer implements this to re-emit method bytes.
type Visitor interface {
	VisitTryCatch(tc *TryCatch)
	VisitInsn(ins Instruction)
	VisitMaxs(maxStack, maxLocals int)
}

// NopVisitor discards the stream. Embed it to implement only part of the
// Visitor surface.
type NopVisitor struct{}

func (NopVisitor) VisitTryCatch(*TryCatch) {}
func (NopVisitor) VisitInsn(Instruction)   {}
func (NopVisitor) VisitMaxs(int, int)      {}
