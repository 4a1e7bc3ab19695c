// Package jclass models classes, fields and methods parsed from JVM class
// files, and the pool that owns them.
package jclass

import (
	"strings"

	"github.com/classflow/classflow/core/insn"
	"github.com/classflow/classflow/core/ref"
)

// Access flags, shared by classes, fields and methods.
const (
	AccPublic     = 0x0001
	AccPrivate    = 0x0002
	AccProtected  = 0x0004
	AccStatic     = 0x0008
	AccFinal      = 0x0010
	AccSuper      = 0x0020
	AccSynced     = 0x0020
	AccVolatile   = 0x0040
	AccBridge     = 0x0040
	AccTransient  = 0x0080
	AccVarargs    = 0x0080
	AccNative     = 0x0100
	AccInterface  = 0x0200
	AccAbstract   = 0x0400
	AccStrict     = 0x0800
	AccSynthetic  = 0x1000
	AccAnnotation = 0x2000
	AccEnum       = 0x4000
)

// Class is one parsed class. It belongs to exactly one pool; its name is
// unique within that pool.
type Class struct {
	Name       string
	SourceFile string
	Access     int
	Version    int
	Super      *ref.ClassRef
	Interfaces []*ref.ClassRef

	// Back-references populated by Pool.Init: direct subclasses and,
	// for interfaces, the classes implementing them.
	Children     []*Class
	Implementers []*Class

	Methods []*Method
	Fields  []*Field

	pool *Pool
}

// Pool returns the owning class pool.
func (c *Class) Pool() *Pool { return c.pool }

// IsInterface reports whether the class is an interface.
func (c *Class) IsInterface() bool { return c.Access&AccInterface != 0 }

// Method returns the method with the given name and descriptor, or nil.
func (c *Class) Method(name, desc string) *Method {
	for _, m := range c.Methods {
		if m.Name == name && m.Desc() == desc {
			return m
		}
	}
	return nil
}

// Field returns the field with the given name and descriptor, or nil.
func (c *Class) Field(name, desc string) *Field {
	for _, f := range c.Fields {
		if f.Name == name && f.Desc == desc {
			return f
		}
	}
	return nil
}

// Method is one method of a class, owning its code sequence. Abstract and
// native methods carry an empty Code.
type Method struct {
	Access   int
	Name     string
	ArgTypes []string
	RetType  string
	Code     *insn.Code

	owner *Class
}

// Owner returns the declaring class.
func (m *Method) Owner() *Class { return m.owner }

// IsStatic reports whether the method has no receiver.
func (m *Method) IsStatic() bool { return m.Access&AccStatic != 0 }

// IsAbstract reports whether the method has no body.
func (m *Method) IsAbstract() bool { return m.Access&AccAbstract != 0 }

// IsNative reports whether the method body lives outside the class file.
func (m *Method) IsNative() bool { return m.Access&AccNative != 0 }

// Desc rebuilds the method descriptor from the argument and return types.
func (m *Method) Desc() string {
	var sb strings.Builder
	sb.WriteByte('(')
	for _, a := range m.ArgTypes {
		sb.WriteString(a)
	}
	sb.WriteByte(')')
	sb.WriteString(m.RetType)
	return sb.String()
}

func (m *Method) String() string {
	if m.owner != nil {
		return m.owner.Name + "." + m.Name + m.Desc()
	}
	return m.Name + m.Desc()
}

// Field is one field of a class. Value holds the ConstantValue initializer
// when present: int32, int64, float32, float64 or string.
type Field struct {
	Access int
	Name   string
	Desc   string
	Value  any

	owner *Class
}

// Owner returns the declaring class.
func (f *Field) Owner() *Class { return f.owner }
