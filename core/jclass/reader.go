package jclass

import (
	"fmt"

	"github.com/classflow/classflow/common/descriptor"
	"github.com/classflow/classflow/core/insn"
	"github.com/classflow/classflow/core/ref"
)

const classMagic = 0xCAFEBABE

// Method handle reference kinds.
const (
	refGetField = 1 + iota
	refGetStatic
	refPutField
	refPutStatic
	refInvokeVirtual
	refInvokeStatic
	refInvokeSpecial
	refNewInvokeSpecial
	refInvokeInterface
)

func typeConstOf(desc string) insn.TypeConst {
	return insn.TypeConst{Desc: desc}
}

func (cp *constPool) methodHandle(i uint16) (*ref.MethodRef, error) {
	e, err := cp.at(i, tagMethodHandle)
	if err != nil {
		return nil, err
	}
	owner, name, desc, _, err := cp.memberRef(e.idx1)
	if err != nil {
		return nil, err
	}
	return ref.NewMethodRef(owner, name, desc), nil
}

// Parse decodes class bytes into a Class with its full instruction model.
// The resulting class is detached until added to a pool.
func Parse(data []byte) (*Class, error) {
	return parseClass(data)
}

// parseClass decodes class bytes into a Class with its full instruction
// model. The resulting class is detached until added to a pool.
func parseClass(data []byte) (*Class, error) {
	r := &byteReader{data: data}

	magic, err := r.u4()
	if err != nil {
		return nil, err
	}
	if magic != classMagic {
		return nil, fmt.Errorf("bad magic %#x", magic)
	}
	if _, err = r.u2(); err != nil { // minor version
		return nil, err
	}
	major, err := r.u2()
	if err != nil {
		return nil, err
	}

	cp, err := parseConstPool(r)
	if err != nil {
		return nil, fmt.Errorf("constant pool: %w", err)
	}

	access, err := r.u2()
	if err != nil {
		return nil, err
	}
	thisIdx, err := r.u2()
	if err != nil {
		return nil, err
	}
	superIdx, err := r.u2()
	if err != nil {
		return nil, err
	}

	c := &Class{Access: int(access), Version: int(major)}
	if c.Name, err = cp.className(thisIdx); err != nil {
		return nil, err
	}
	if superIdx != 0 {
		super, err := cp.className(superIdx)
		if err != nil {
			return nil, err
		}
		c.Super = ref.NewClassRef(super)
	}

	itfCount, err := r.u2()
	if err != nil {
		return nil, err
	}
	for i := 0; i < int(itfCount); i++ {
		idx, err := r.u2()
		if err != nil {
			return nil, err
		}
		name, err := cp.className(idx)
		if err != nil {
			return nil, err
		}
		c.Interfaces = append(c.Interfaces, ref.NewClassRef(name))
	}

	if err := parseClassFields(r, cp, c); err != nil {
		return nil, fmt.Errorf("fields: %w", err)
	}

	// Methods are parsed in two steps: the raw code attribute is retained
	// first, and decoded after the class attributes because invokedynamic
	// needs the BootstrapMethods table.
	type pendingMethod struct {
		method *Method
		code   []byte
	}
	var pending []pendingMethod

	methodCount, err := r.u2()
	if err != nil {
		return nil, err
	}
	for i := 0; i < int(methodCount); i++ {
		m, code, err := parseMethodInfo(r, cp)
		if err != nil {
			return nil, fmt.Errorf("method %d: %w", i, err)
		}
		m.owner = c
		c.Methods = append(c.Methods, m)
		pending = append(pending, pendingMethod{m, code})
	}

	bootstraps, err := parseClassAttributes(r, cp, c)
	if err != nil {
		return nil, fmt.Errorf("class attributes: %w", err)
	}

	for _, pm := range pending {
		pm.method.Code = insn.NewCode()
		if pm.code == nil {
			continue // abstract or native
		}
		if err := parseCode(pm.code, cp, bootstraps, pm.method); err != nil {
			return nil, fmt.Errorf("method %s: %w", pm.method.Name, err)
		}
	}
	return c, nil
}

func parseClassFields(r *byteReader, cp *constPool, c *Class) error {
	count, err := r.u2()
	if err != nil {
		return err
	}
	for i := 0; i < int(count); i++ {
		access, err := r.u2()
		if err != nil {
			return err
		}
		nameIdx, err := r.u2()
		if err != nil {
			return err
		}
		descIdx, err := r.u2()
		if err != nil {
			return err
		}
		f := &Field{Access: int(access), owner: c}
		if f.Name, err = cp.utf8(nameIdx); err != nil {
			return err
		}
		if f.Desc, err = cp.utf8(descIdx); err != nil {
			return err
		}
		attrCount, err := r.u2()
		if err != nil {
			return err
		}
		for j := 0; j < int(attrCount); j++ {
			name, body, err := readAttribute(r, cp)
			if err != nil {
				return err
			}
			if name == "ConstantValue" && len(body) == 2 {
				idx := uint16(body[0])<<8 | uint16(body[1])
				if v, err := cp.loadable(idx); err == nil {
					f.Value = v
				}
			}
		}
		c.Fields = append(c.Fields, f)
	}
	return nil
}

func parseMethodInfo(r *byteReader, cp *constPool) (*Method, []byte, error) {
	access, err := r.u2()
	if err != nil {
		return nil, nil, err
	}
	nameIdx, err := r.u2()
	if err != nil {
		return nil, nil, err
	}
	descIdx, err := r.u2()
	if err != nil {
		return nil, nil, err
	}
	m := &Method{Access: int(access)}
	if m.Name, err = cp.utf8(nameIdx); err != nil {
		return nil, nil, err
	}
	desc, err := cp.utf8(descIdx)
	if err != nil {
		return nil, nil, err
	}
	if m.ArgTypes, m.RetType, err = descriptor.Method(desc); err != nil {
		return nil, nil, err
	}

	var code []byte
	attrCount, err := r.u2()
	if err != nil {
		return nil, nil, err
	}
	for i := 0; i < int(attrCount); i++ {
		name, body, err := readAttribute(r, cp)
		if err != nil {
			return nil, nil, err
		}
		if name == "Code" {
			code = body
		}
	}
	return m, code, nil
}

func parseClassAttributes(r *byteReader, cp *constPool, c *Class) ([]*insn.BootstrapMethod, error) {
	var bootstraps []*insn.BootstrapMethod
	count, err := r.u2()
	if err != nil {
		return nil, err
	}
	for i := 0; i < int(count); i++ {
		name, body, err := readAttribute(r, cp)
		if err != nil {
			return nil, err
		}
		switch name {
		case "SourceFile":
			if len(body) == 2 {
				idx := uint16(body[0])<<8 | uint16(body[1])
				if src, err := cp.utf8(idx); err == nil {
					c.SourceFile = src
				}
			}
		case "BootstrapMethods":
			if bootstraps, err = parseBootstrapMethods(body, cp); err != nil {
				return nil, err
			}
		}
	}
	return bootstraps, nil
}

func parseBootstrapMethods(body []byte, cp *constPool) ([]*insn.BootstrapMethod, error) {
	r := &byteReader{data: body}
	count, err := r.u2()
	if err != nil {
		return nil, err
	}
	out := make([]*insn.BootstrapMethod, 0, count)
	for i := 0; i < int(count); i++ {
		handleIdx, err := r.u2()
		if err != nil {
			return nil, err
		}
		handle, err := cp.methodHandle(handleIdx)
		if err != nil {
			return nil, err
		}
		argCount, err := r.u2()
		if err != nil {
			return nil, err
		}
		bm := &insn.BootstrapMethod{Handle: handle}
		for j := 0; j < int(argCount); j++ {
			argIdx, err := r.u2()
			if err != nil {
				return nil, err
			}
			arg, err := cp.loadable(argIdx)
			if err != nil {
				return nil, err
			}
			bm.Args = append(bm.Args, arg)
		}
		out = append(out, bm)
	}
	return out, nil
}

func readAttribute(r *byteReader, cp *constPool) (string, []byte, error) {
	nameIdx, err := r.u2()
	if err != nil {
		return "", nil, err
	}
	name, err := cp.utf8(nameIdx)
	if err != nil {
		return "", nil, err
	}
	length, err := r.u4()
	if err != nil {
		return "", nil, err
	}
	body, err := r.bytes(int(length))
	if err != nil {
		return "", nil, err
	}
	return name, body, nil
}
