// Package analysis implements the symbolic method analyzer: an abstract
// interpreter that walks every reachable instruction along all control flow
// edges and emits one typed frame per reach, threaded into a
// producer/consumer data-flow graph.
package analysis

import "github.com/classflow/classflow/common/descriptor"

// ValueType classifies one stack or local slot in a frame snapshot.
// boolean, byte, char and short collapse to Int per VM convention.
type ValueType int

const (
	Top ValueType = iota
	Int
	Float
	Double
	Long
	Null
	UninitializedThis
	Object
	Uninitialized
)

var valueTypeNames = [...]string{
	Top:               "top",
	Int:               "int",
	Float:             "float",
	Double:            "double",
	Long:              "long",
	Null:              "null",
	UninitializedThis: "uninitialized_this",
	Object:            "object",
	Uninitialized:     "uninitialized",
}

func (t ValueType) String() string {
	if int(t) < len(valueTypeNames) {
		return valueTypeNames[t]
	}
	return "invalid"
}

// Value is one typed slot of a frame snapshot. Desc carries the internal
// class name for Object, UninitializedThis and Uninitialized values, and
// the array descriptor for array values.
type Value struct {
	Type ValueType
	Desc string
}

// IsWide reports whether the value occupies two adjacent slots.
func (v Value) IsWide() bool { return v.Type == Long || v.Type == Double }

// valueForDesc maps a type descriptor to the snapshot value it occupies.
func valueForDesc(desc string) Value {
	if desc == "" {
		return Value{Type: Top}
	}
	if len(desc) == 1 {
		switch desc[0] {
		case descriptor.Boolean, descriptor.Byte, descriptor.Char, descriptor.Short, descriptor.Int:
			return Value{Type: Int}
		case descriptor.Long:
			return Value{Type: Long}
		case descriptor.Float:
			return Value{Type: Float}
		case descriptor.Double:
			return Value{Type: Double}
		}
	}
	if desc[0] == descriptor.Array {
		return Value{Type: Object, Desc: desc}
	}
	return Value{Type: Object, Desc: descriptor.InternalName(desc)}
}
