package jclass

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/classflow/classflow/core/insn"
)

// classBuilder assembles minimal class files for parser tests.
type classBuilder struct {
	buf bytes.Buffer
}

func (b *classBuilder) u1(v byte)    { b.buf.WriteByte(v) }
func (b *classBuilder) u2(v uint16)  { binary.Write(&b.buf, binary.BigEndian, v) }
func (b *classBuilder) u4(v uint32)  { binary.Write(&b.buf, binary.BigEndian, v) }
func (b *classBuilder) raw(v []byte) { b.buf.Write(v) }

func (b *classBuilder) utf8(s string) {
	b.u1(tagUtf8)
	b.u2(uint16(len(s)))
	b.buf.WriteString(s)
}

// adderClassBytes encodes:
//
//	public class Adder { public static int add(int, int) { return a + b; } }
func adderClassBytes() []byte {
	b := &classBuilder{}
	b.u4(0xCAFEBABE)
	b.u2(0) // minor
	b.u2(52)

	b.u2(8) // constant pool count
	b.utf8("Adder")
	b.u1(tagClass)
	b.u2(1)
	b.utf8("java/lang/Object")
	b.u1(tagClass)
	b.u2(3)
	b.utf8("add")
	b.utf8("(II)I")
	b.utf8("Code")

	b.u2(0x0021) // access
	b.u2(2)      // this
	b.u2(4)      // super
	b.u2(0)      // interfaces
	b.u2(0)      // fields

	b.u2(1)      // methods
	b.u2(0x0009) // public static
	b.u2(5)      // name: add
	b.u2(6)      // desc: (II)I
	b.u2(1)      // one attribute

	code := []byte{0x1a, 0x1b, 0x60, 0xac} // iload_0 iload_1 iadd ireturn
	b.u2(7)                                // attribute name: Code
	b.u4(uint32(12 + len(code)))
	b.u2(2) // max_stack
	b.u2(2) // max_locals
	b.u4(uint32(len(code)))
	b.raw(code)
	b.u2(0) // exception table
	b.u2(0) // code attributes

	b.u2(0) // class attributes
	return b.buf.Bytes()
}

func TestParseAdderClass(t *testing.T) {
	c, err := Parse(adderClassBytes())
	require.NoError(t, err)

	require.Equal(t, "Adder", c.Name)
	require.Equal(t, 52, c.Version)
	require.NotNil(t, c.Super)
	require.Equal(t, "java/lang/Object", c.Super.Name)
	require.Len(t, c.Methods, 1)

	m := c.Methods[0]
	require.Equal(t, "add", m.Name)
	require.Equal(t, "(II)I", m.Desc())
	require.True(t, m.IsStatic())
	require.Equal(t, 2, m.Code.MaxStack)
	require.Equal(t, 2, m.Code.MaxLocals)

	ins := m.Code.Instructions()
	require.Len(t, ins, 4)
	require.Equal(t, insn.ILOAD, ins[0].Op())
	require.Equal(t, 0, ins[0].(*insn.VarInsn).Index)
	require.Equal(t, insn.ILOAD, ins[1].Op())
	require.Equal(t, 1, ins[1].(*insn.VarInsn).Index)
	require.Equal(t, insn.IADD, ins[2].Op())
	require.Equal(t, insn.IRETURN, ins[3].Op())
}

func TestParseRejectsGarbage(t *testing.T) {
	_, err := Parse([]byte{0xDE, 0xAD, 0xBE, 0xEF})
	require.Error(t, err)

	_, err = Parse(adderClassBytes()[:20])
	require.Error(t, err)
}

// branchClassBytes encodes a method with a conditional branch and a line
// number table, exercising label allocation.
func branchClassBytes() []byte {
	b := &classBuilder{}
	b.u4(0xCAFEBABE)
	b.u2(0)
	b.u2(52)

	b.u2(9)
	b.utf8("Cond")
	b.u1(tagClass)
	b.u2(1)
	b.utf8("java/lang/Object")
	b.u1(tagClass)
	b.u2(3)
	b.utf8("pick")
	b.utf8("(I)I")
	b.utf8("Code")
	b.utf8("LineNumberTable")

	b.u2(0x0021)
	b.u2(2)
	b.u2(4)
	b.u2(0)
	b.u2(0)

	b.u2(1)
	b.u2(0x0009)
	b.u2(5)
	b.u2(6)
	b.u2(1)

	code := []byte{
		0x1a,             // 0: iload_0
		0x99, 0x00, 0x07, // 1: ifeq -> 8
		0x03,             // 4: iconst_0
		0xa7, 0x00, 0x04, // 5: goto -> 9
		0x04, // 8: iconst_1
		0xac, // 9: ireturn
	}

	lineTable := &classBuilder{}
	lineTable.u2(1) // one entry
	lineTable.u2(0) // start_pc
	lineTable.u2(42)

	b.u2(7)
	b.u4(uint32(12 + len(code) + 6 + len(lineTable.buf.Bytes())))
	b.u2(1)
	b.u2(1)
	b.u4(uint32(len(code)))
	b.raw(code)
	b.u2(0)
	b.u2(1) // one code attribute
	b.u2(8) // LineNumberTable
	b.u4(uint32(len(lineTable.buf.Bytes())))
	b.raw(lineTable.buf.Bytes())

	b.u2(0)
	return b.buf.Bytes()
}

func TestParseBranchesAndLines(t *testing.T) {
	c, err := Parse(branchClassBytes())
	require.NoError(t, err)
	m := c.Methods[0]

	var jumps []*insn.JumpInsn
	var labels []*insn.LabelInsn
	var lines []*insn.LineNumberInsn
	for _, ins := range m.Code.Instructions() {
		switch v := ins.(type) {
		case *insn.JumpInsn:
			jumps = append(jumps, v)
		case *insn.LabelInsn:
			labels = append(labels, v)
		case *insn.LineNumberInsn:
			lines = append(lines, v)
		}
	}
	require.Len(t, jumps, 2)
	require.Len(t, lines, 1)
	require.Equal(t, 42, lines[0].Line)
	require.NotEmpty(t, labels)

	// The conditional's target is the label before iconst_1 at offset 8.
	target := jumps[0].Target
	require.Equal(t, insn.ICONST_1, target.Next().Op())
	// The goto's target is the label before ireturn at offset 9.
	require.Equal(t, insn.IRETURN, jumps[1].Target.Next().Op())
}

func TestParseConstantValueField(t *testing.T) {
	b := &classBuilder{}
	b.u4(0xCAFEBABE)
	b.u2(0)
	b.u2(52)

	b.u2(9)
	b.utf8("Consts")
	b.u1(tagClass)
	b.u2(1)
	b.utf8("java/lang/Object")
	b.u1(tagClass)
	b.u2(3)
	b.utf8("LIMIT")
	b.utf8("I")
	b.utf8("ConstantValue")
	b.u1(tagInteger)
	b.u4(1337)

	b.u2(0x0021)
	b.u2(2)
	b.u2(4)
	b.u2(0)

	b.u2(1)      // one field
	b.u2(0x0019) // public static final
	b.u2(5)
	b.u2(6)
	b.u2(1)
	b.u2(7) // ConstantValue
	b.u4(2)
	b.u2(8) // -> integer constant

	b.u2(0) // methods
	b.u2(0) // class attributes

	c, err := Parse(b.buf.Bytes())
	require.NoError(t, err)
	require.Len(t, c.Fields, 1)
	f := c.Fields[0]
	require.Equal(t, "LIMIT", f.Name)
	require.Equal(t, "I", f.Desc)
	require.Equal(t, int32(1337), f.Value)
}
