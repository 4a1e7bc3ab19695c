package jclass

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// Constant pool tags.
const (
	tagUtf8               = 1
	tagInteger            = 3
	tagFloat              = 4
	tagLong               = 5
	tagDouble             = 6
	tagClass              = 7
	tagString             = 8
	tagFieldref           = 9
	tagMethodref          = 10
	tagInterfaceMethodref = 11
	tagNameAndType        = 12
	tagMethodHandle       = 15
	tagMethodType         = 16
	tagDynamic            = 17
	tagInvokeDynamic      = 18
	tagModule             = 19
	tagPackage            = 20
)

var errTruncated = errors.New("truncated class file")

// byteReader is a big-endian cursor over class file bytes.
type byteReader struct {
	data []byte
	pos  int
}

func (r *byteReader) remaining() int { return len(r.data) - r.pos }

func (r *byteReader) u1() (byte, error) {
	if r.pos >= len(r.data) {
		return 0, errTruncated
	}
	b := r.data[r.pos]
	r.pos++
	return b, nil
}

func (r *byteReader) u2() (uint16, error) {
	if r.pos+2 > len(r.data) {
		return 0, errTruncated
	}
	v := binary.BigEndian.Uint16(r.data[r.pos:])
	r.pos += 2
	return v, nil
}

func (r *byteReader) u4() (uint32, error) {
	if r.pos+4 > len(r.data) {
		return 0, errTruncated
	}
	v := binary.BigEndian.Uint32(r.data[r.pos:])
	r.pos += 4
	return v, nil
}

func (r *byteReader) u8() (uint64, error) {
	if r.pos+8 > len(r.data) {
		return 0, errTruncated
	}
	v := binary.BigEndian.Uint64(r.data[r.pos:])
	r.pos += 8
	return v, nil
}

func (r *byteReader) bytes(n int) ([]byte, error) {
	if n < 0 || r.pos+n > len(r.data) {
		return nil, errTruncated
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

func (r *byteReader) skip(n int) error {
	if r.pos+n > len(r.data) {
		return errTruncated
	}
	r.pos += n
	return nil
}

// cpEntry is one constant pool slot. Long and double entries occupy two
// slots; the second stays zero-valued.
type cpEntry struct {
	tag byte
	// tagUtf8
	str string
	// tagInteger/tagFloat/tagLong/tagDouble raw bits
	bits uint64
	// index operands, meaning depends on tag
	idx1 uint16
	idx2 uint16
	// tagMethodHandle reference kind
	kind byte
}

// constPool wraps the parsed slots with checked accessors. Slot 0 is unused
// per the class file format.
type constPool struct {
	entries []cpEntry
}

func parseConstPool(r *byteReader) (*constPool, error) {
	count, err := r.u2()
	if err != nil {
		return nil, err
	}
	cp := &constPool{entries: make([]cpEntry, count)}
	for i := uint16(1); i < count; i++ {
		tag, err := r.u1()
		if err != nil {
			return nil, err
		}
		e := cpEntry{tag: tag}
		switch tag {
		case tagUtf8:
			n, err := r.u2()
			if err != nil {
				return nil, err
			}
			raw, err := r.bytes(int(n))
			if err != nil {
				return nil, err
			}
			e.str = decodeModifiedUTF8(raw)
		case tagInteger, tagFloat:
			v, err := r.u4()
			if err != nil {
				return nil, err
			}
			e.bits = uint64(v)
		case tagLong, tagDouble:
			v, err := r.u8()
			if err != nil {
				return nil, err
			}
			e.bits = v
		case tagClass, tagString, tagMethodType, tagModule, tagPackage:
			v, err := r.u2()
			if err != nil {
				return nil, err
			}
			e.idx1 = v
		case tagFieldref, tagMethodref, tagInterfaceMethodref, tagNameAndType, tagDynamic, tagInvokeDynamic:
			if e.idx1, err = r.u2(); err != nil {
				return nil, err
			}
			if e.idx2, err = r.u2(); err != nil {
				return nil, err
			}
		case tagMethodHandle:
			if e.kind, err = r.u1(); err != nil {
				return nil, err
			}
			if e.idx1, err = r.u2(); err != nil {
				return nil, err
			}
		default:
			return nil, fmt.Errorf("constant pool entry %d: unknown tag %d", i, tag)
		}
		cp.entries[i] = e
		if tag == tagLong || tag == tagDouble {
			i++ // wide entries take two slots
		}
	}
	return cp, nil
}

func (cp *constPool) at(i uint16, want byte) (*cpEntry, error) {
	if i == 0 || int(i) >= len(cp.entries) {
		return nil, fmt.Errorf("constant pool index %d out of range", i)
	}
	e := &cp.entries[i]
	if want != 0 && e.tag != want {
		return nil, fmt.Errorf("constant pool index %d: tag %d, want %d", i, e.tag, want)
	}
	return e, nil
}

func (cp *constPool) utf8(i uint16) (string, error) {
	e, err := cp.at(i, tagUtf8)
	if err != nil {
		return "", err
	}
	return e.str, nil
}

func (cp *constPool) className(i uint16) (string, error) {
	e, err := cp.at(i, tagClass)
	if err != nil {
		return "", err
	}
	return cp.utf8(e.idx1)
}

func (cp *constPool) nameAndType(i uint16) (name, desc string, err error) {
	e, err := cp.at(i, tagNameAndType)
	if err != nil {
		return "", "", err
	}
	if name, err = cp.utf8(e.idx1); err != nil {
		return "", "", err
	}
	desc, err = cp.utf8(e.idx2)
	return name, desc, err
}

// memberRef resolves a Fieldref/Methodref/InterfaceMethodref entry to its
// owner, name and descriptor.
func (cp *constPool) memberRef(i uint16) (owner, name, desc string, itf bool, err error) {
	e, err := cp.at(i, 0)
	if err != nil {
		return "", "", "", false, err
	}
	switch e.tag {
	case tagFieldref, tagMethodref, tagInterfaceMethodref:
	default:
		return "", "", "", false, fmt.Errorf("constant pool index %d: tag %d is not a member ref", i, e.tag)
	}
	if owner, err = cp.className(e.idx1); err != nil {
		return "", "", "", false, err
	}
	name, desc, err = cp.nameAndType(e.idx2)
	return owner, name, desc, e.tag == tagInterfaceMethodref, err
}

func (cp *constPool) integer(i uint16) (int32, error) {
	e, err := cp.at(i, tagInteger)
	if err != nil {
		return 0, err
	}
	return int32(uint32(e.bits)), nil
}

// loadable returns an ldc-able constant: int32, int64, float32, float64,
// string or a type descriptor wrapper. Method handles and dynamic constants
// are returned as opaque member names.
func (cp *constPool) loadable(i uint16) (any, error) {
	e, err := cp.at(i, 0)
	if err != nil {
		return nil, err
	}
	switch e.tag {
	case tagInteger:
		return int32(uint32(e.bits)), nil
	case tagFloat:
		return math.Float32frombits(uint32(e.bits)), nil
	case tagLong:
		return int64(e.bits), nil
	case tagDouble:
		return math.Float64frombits(e.bits), nil
	case tagString:
		return cp.utf8(e.idx1)
	case tagClass:
		name, err := cp.utf8(e.idx1)
		if err != nil {
			return nil, err
		}
		return typeConstOf(name), nil
	case tagMethodType:
		desc, err := cp.utf8(e.idx1)
		if err != nil {
			return nil, err
		}
		return typeConstOf(desc), nil
	case tagMethodHandle:
		return cp.methodHandle(i)
	case tagDynamic:
		name, desc, err := cp.nameAndType(e.idx2)
		if err != nil {
			return nil, err
		}
		return name + ":" + desc, nil
	}
	return nil, fmt.Errorf("constant pool index %d: tag %d is not loadable", i, e.tag)
}

func decodeModifiedUTF8(raw []byte) string {
	// Modified UTF-8 differs from standard UTF-8 in the encoding of NUL and
	// supplementary characters; both are rare in identifiers and constants,
	// and the plain conversion keeps the bytes intact for round-tripping.
	return string(raw)
}
