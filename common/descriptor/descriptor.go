// Package descriptor parses JVM type and method descriptors.
package descriptor

import (
	"errors"
	"fmt"
	"strings"
)

// Primitive descriptor characters.
const (
	Void    = 'V'
	Boolean = 'Z'
	Byte    = 'B'
	Char    = 'C'
	Short   = 'S'
	Int     = 'I'
	Long    = 'J'
	Float   = 'F'
	Double  = 'D'
	Object  = 'L'
	Array   = '['
)

var ErrInvalidDescriptor = errors.New("invalid descriptor")

// primitiveNames maps a primitive descriptor character to its source name.
var primitiveNames = map[byte]string{
	Void:    "void",
	Boolean: "boolean",
	Byte:    "byte",
	Char:    "char",
	Short:   "short",
	Int:     "int",
	Long:    "long",
	Float:   "float",
	Double:  "double",
}

// IsPrimitive reports whether c is a primitive descriptor character.
func IsPrimitive(c byte) bool {
	_, ok := primitiveNames[c]
	return ok
}

// IsWide reports whether the descriptor denotes a value occupying two slots.
func IsWide(desc string) bool {
	return desc == "J" || desc == "D"
}

// PrimitiveName returns the source-level name of a primitive descriptor
// character, or "" if c is not primitive.
func PrimitiveName(c byte) string {
	return primitiveNames[c]
}

// InternalName strips an object descriptor "Lfoo/Bar;" down to "foo/Bar".
// Array and primitive descriptors are returned unchanged.
func InternalName(desc string) string {
	if len(desc) >= 2 && desc[0] == Object && desc[len(desc)-1] == ';' {
		return desc[1 : len(desc)-1]
	}
	return desc
}

// ToDescriptor wraps an internal class name into an object descriptor.
// Names that already look like descriptors (arrays, primitives) pass through.
func ToDescriptor(name string) string {
	if name == "" {
		return name
	}
	if name[0] == Array {
		return name
	}
	if len(name) == 1 && IsPrimitive(name[0]) {
		return name
	}
	return "L" + name + ";"
}

// ElementType returns the element descriptor of an array descriptor,
// removing a single dimension.
func ElementType(desc string) (string, error) {
	if len(desc) < 2 || desc[0] != Array {
		return "", fmt.Errorf("%w: %q is not an array", ErrInvalidDescriptor, desc)
	}
	return desc[1:], nil
}

// next consumes one field descriptor from s and returns it with the rest.
func next(s string) (string, string, error) {
	if s == "" {
		return "", "", ErrInvalidDescriptor
	}
	switch s[0] {
	case Array:
		elem, rest, err := next(s[1:])
		if err != nil {
			return "", "", err
		}
		return "[" + elem, rest, nil
	case Object:
		end := strings.IndexByte(s, ';')
		if end < 0 {
			return "", "", fmt.Errorf("%w: unterminated object type in %q", ErrInvalidDescriptor, s)
		}
		return s[:end+1], s[end+1:], nil
	default:
		if !IsPrimitive(s[0]) || s[0] == Void {
			return "", "", fmt.Errorf("%w: unexpected %q", ErrInvalidDescriptor, s[0])
		}
		return s[:1], s[1:], nil
	}
}

// Method splits a method descriptor into its argument descriptors and the
// return descriptor. The return descriptor may be "V".
func Method(desc string) (args []string, ret string, err error) {
	if len(desc) < 3 || desc[0] != '(' {
		return nil, "", fmt.Errorf("%w: %q", ErrInvalidDescriptor, desc)
	}
	rest := desc[1:]
	for rest != "" && rest[0] != ')' {
		var arg string
		arg, rest, err = next(rest)
		if err != nil {
			return nil, "", fmt.Errorf("%w in %q", err, desc)
		}
		args = append(args, arg)
	}
	if rest == "" || rest[0] != ')' {
		return nil, "", fmt.Errorf("%w: unterminated argument list in %q", ErrInvalidDescriptor, desc)
	}
	rest = rest[1:]
	if rest == "V" {
		return args, "V", nil
	}
	ret, rest, err = next(rest)
	if err != nil || rest != "" {
		return nil, "", fmt.Errorf("%w: bad return type in %q", ErrInvalidDescriptor, desc)
	}
	return args, ret, nil
}

// ArgSlots returns the number of local-variable slots the argument list of
// desc occupies, counting long and double twice.
func ArgSlots(desc string) (int, error) {
	args, _, err := Method(desc)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, a := range args {
		if IsWide(a) {
			n += 2
		} else {
			n++
		}
	}
	return n, nil
}
