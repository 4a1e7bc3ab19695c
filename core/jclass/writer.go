package jclass

import "github.com/classflow/classflow/core/insn"

// ClassWriter re-emits a class as verifier-acceptable bytes. The pool hands
// each class to the writer; method bodies arrive through the insn.Visitor
// stream of Code.Accept. Implementations live outside the core.
type ClassWriter interface {
	insn.Visitor

	// StartClass begins emission of c. Subsequent visitor calls belong to
	// the method most recently announced via StartMethod.
	StartClass(c *Class)
	StartMethod(m *Method)

	// Bytes finalizes the class started last and returns its encoding.
	Bytes() ([]byte, error)
}

// WriteClass drives w over c: every method body is replayed through the
// visitor stream in declaration order.
func WriteClass(w ClassWriter, c *Class) ([]byte, error) {
	w.StartClass(c)
	for _, m := range c.Methods {
		w.StartMethod(m)
		if m.Code == nil {
			continue
		}
		if err := m.Code.Accept(w); err != nil {
			return nil, err
		}
	}
	return w.Bytes()
}
