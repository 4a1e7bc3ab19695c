package jclass

import (
	"fmt"
	"sort"

	"github.com/classflow/classflow/core/insn"
	"github.com/classflow/classflow/core/ref"
)

// rawInsn is one decoded bytecode instruction before label resolution.
type rawInsn struct {
	offset  int
	op      insn.Opcode
	operand int
	incr    int
	cpIdx   uint16
	target  int
	min     int32
	max     int32
	keys    []int32
	targets []int
	dflt    int
}

type rawTryCatch struct {
	start, end, handler int
	catchType           uint16
}

// parseCode decodes a Code attribute body into the method's instruction
// sequence, allocating labels for every branch target, exception boundary
// and line table entry.
func parseCode(body []byte, cp *constPool, bootstraps []*insn.BootstrapMethod, m *Method) error {
	r := &byteReader{data: body}

	maxStack, err := r.u2()
	if err != nil {
		return err
	}
	maxLocals, err := r.u2()
	if err != nil {
		return err
	}
	codeLen, err := r.u4()
	if err != nil {
		return err
	}
	code, err := r.bytes(int(codeLen))
	if err != nil {
		return err
	}

	raws, err := decodeInsns(code)
	if err != nil {
		return err
	}

	var tryCatches []rawTryCatch
	tcCount, err := r.u2()
	if err != nil {
		return err
	}
	for i := 0; i < int(tcCount); i++ {
		var tc rawTryCatch
		v, err := r.u2()
		if err != nil {
			return err
		}
		tc.start = int(v)
		if v, err = r.u2(); err != nil {
			return err
		}
		tc.end = int(v)
		if v, err = r.u2(); err != nil {
			return err
		}
		tc.handler = int(v)
		if tc.catchType, err = r.u2(); err != nil {
			return err
		}
		tryCatches = append(tryCatches, tc)
	}

	// LineNumberTable entries, keyed by start_pc.
	lines := make(map[int][]int)
	attrCount, err := r.u2()
	if err != nil {
		return err
	}
	for i := 0; i < int(attrCount); i++ {
		name, attrBody, err := readAttribute(r, cp)
		if err != nil {
			return err
		}
		if name != "LineNumberTable" {
			continue
		}
		lr := &byteReader{data: attrBody}
		n, err := lr.u2()
		if err != nil {
			return err
		}
		for j := 0; j < int(n); j++ {
			pc, err := lr.u2()
			if err != nil {
				return err
			}
			line, err := lr.u2()
			if err != nil {
				return err
			}
			lines[int(pc)] = append(lines[int(pc)], int(line))
		}
	}

	c := m.Code
	c.MaxStack = int(maxStack)
	c.MaxLocals = int(maxLocals)

	// Allocate labels for every referenced offset, in offset order so that
	// label ids follow the code layout.
	needLabel := make(map[int]bool)
	for _, ri := range raws {
		switch ri.op {
		case insn.GOTO, insn.JSR, insn.IFEQ, insn.IFNE, insn.IFLT, insn.IFGE, insn.IFGT, insn.IFLE,
			insn.IF_ICMPEQ, insn.IF_ICMPNE, insn.IF_ICMPLT, insn.IF_ICMPGE, insn.IF_ICMPGT, insn.IF_ICMPLE,
			insn.IF_ACMPEQ, insn.IF_ACMPNE, insn.IFNULL, insn.IFNONNULL:
			needLabel[ri.target] = true
		case insn.TABLESWITCH, insn.LOOKUPSWITCH:
			needLabel[ri.dflt] = true
			for _, t := range ri.targets {
				needLabel[t] = true
			}
		}
	}
	for _, tc := range tryCatches {
		needLabel[tc.start] = true
		needLabel[tc.end] = true
		needLabel[tc.handler] = true
	}
	for pc := range lines {
		needLabel[pc] = true
	}
	offsets := make([]int, 0, len(needLabel))
	for off := range needLabel {
		offsets = append(offsets, off)
	}
	sort.Ints(offsets)
	for _, off := range offsets {
		c.GetOrCreateLabel(off)
	}

	appendLabel := func(off int) {
		if !needLabel[off] {
			return
		}
		l := c.GetOrCreateLabel(off)
		c.Append(l)
		for _, line := range lines[off] {
			c.Append(insn.NewLineNumber(line, l))
		}
		needLabel[off] = false
	}

	for _, ri := range raws {
		appendLabel(ri.offset)
		ins, err := buildInsn(c, cp, bootstraps, ri)
		if err != nil {
			return fmt.Errorf("at offset %d: %w", ri.offset, err)
		}
		c.Append(ins)
	}
	// An exception range may end at code length.
	appendLabel(len(code))

	for _, tc := range tryCatches {
		block := &insn.TryCatch{
			Start:   c.GetOrCreateLabel(tc.start),
			End:     c.GetOrCreateLabel(tc.end),
			Handler: c.GetOrCreateLabel(tc.handler),
		}
		if tc.catchType != 0 {
			name, err := cp.className(tc.catchType)
			if err != nil {
				return err
			}
			block.Type = ref.NewClassRef(name)
		}
		c.TryCatches = append(c.TryCatches, block)
	}
	return nil
}

// decodeInsns walks raw bytecode once, normalizing the short forms
// (iload_0, ldc_w, wide, goto_w) to their canonical opcodes.
func decodeInsns(code []byte) ([]rawInsn, error) {
	r := &byteReader{data: code}
	var out []rawInsn
	for r.remaining() > 0 {
		offset := r.pos
		b, err := r.u1()
		if err != nil {
			return nil, err
		}
		op := insn.Opcode(b)
		ri := rawInsn{offset: offset, op: op}

		switch {
		case op == insn.BIPUSH:
			v, err := r.u1()
			if err != nil {
				return nil, err
			}
			ri.operand = int(int8(v))
		case op == insn.SIPUSH:
			v, err := r.u2()
			if err != nil {
				return nil, err
			}
			ri.operand = int(int16(v))
		case op == insn.NEWARRAY:
			v, err := r.u1()
			if err != nil {
				return nil, err
			}
			ri.operand = int(v)
		case op == insn.LDC:
			v, err := r.u1()
			if err != nil {
				return nil, err
			}
			ri.cpIdx = uint16(v)
		case op == insn.LDC_W || op == insn.LDC2_W:
			if ri.cpIdx, err = r.u2(); err != nil {
				return nil, err
			}
			ri.op = insn.LDC
		case op >= insn.ILOAD && op <= insn.ALOAD || op >= insn.ISTORE && op <= insn.ASTORE:
			v, err := r.u1()
			if err != nil {
				return nil, err
			}
			ri.operand = int(v)
		case op >= insn.ILOAD_0 && op <= insn.ALOAD_3:
			ri.operand = int(op-insn.ILOAD_0) % 4
			ri.op = insn.ILOAD + (op-insn.ILOAD_0)/4
		case op >= insn.ISTORE_0 && op <= insn.ASTORE_3:
			ri.operand = int(op-insn.ISTORE_0) % 4
			ri.op = insn.ISTORE + (op-insn.ISTORE_0)/4
		case op == insn.RET:
			v, err := r.u1()
			if err != nil {
				return nil, err
			}
			ri.operand = int(v)
		case op == insn.IINC:
			idx, err := r.u1()
			if err != nil {
				return nil, err
			}
			inc, err := r.u1()
			if err != nil {
				return nil, err
			}
			ri.operand = int(idx)
			ri.incr = int(int8(inc))
		case op == insn.WIDE:
			b2, err := r.u1()
			if err != nil {
				return nil, err
			}
			wop := insn.Opcode(b2)
			idx, err := r.u2()
			if err != nil {
				return nil, err
			}
			ri.op = wop
			ri.operand = int(idx)
			if wop == insn.IINC {
				inc, err := r.u2()
				if err != nil {
					return nil, err
				}
				ri.incr = int(int16(inc))
			}
		case op >= insn.IFEQ && op <= insn.JSR || op == insn.IFNULL || op == insn.IFNONNULL:
			v, err := r.u2()
			if err != nil {
				return nil, err
			}
			ri.target = offset + int(int16(v))
		case op == insn.GOTO_W || op == insn.JSR_W:
			v, err := r.u4()
			if err != nil {
				return nil, err
			}
			ri.target = offset + int(int32(v))
			if op == insn.GOTO_W {
				ri.op = insn.GOTO
			} else {
				ri.op = insn.JSR
			}
		case op == insn.TABLESWITCH:
			if err := r.skip((4 - (r.pos % 4)) % 4); err != nil {
				return nil, err
			}
			d, err := r.u4()
			if err != nil {
				return nil, err
			}
			lo, err := r.u4()
			if err != nil {
				return nil, err
			}
			hi, err := r.u4()
			if err != nil {
				return nil, err
			}
			ri.dflt = offset + int(int32(d))
			ri.min, ri.max = int32(lo), int32(hi)
			if ri.max < ri.min {
				return nil, fmt.Errorf("tableswitch at %d: high %d < low %d", offset, ri.max, ri.min)
			}
			for i := 0; i < int(ri.max-ri.min)+1; i++ {
				t, err := r.u4()
				if err != nil {
					return nil, err
				}
				ri.targets = append(ri.targets, offset+int(int32(t)))
			}
		case op == insn.LOOKUPSWITCH:
			if err := r.skip((4 - (r.pos % 4)) % 4); err != nil {
				return nil, err
			}
			d, err := r.u4()
			if err != nil {
				return nil, err
			}
			ri.dflt = offset + int(int32(d))
			n, err := r.u4()
			if err != nil {
				return nil, err
			}
			for i := 0; i < int(n); i++ {
				k, err := r.u4()
				if err != nil {
					return nil, err
				}
				t, err := r.u4()
				if err != nil {
					return nil, err
				}
				ri.keys = append(ri.keys, int32(k))
				ri.targets = append(ri.targets, offset+int(int32(t)))
			}
		case op == insn.GETSTATIC || op == insn.PUTSTATIC || op == insn.GETFIELD || op == insn.PUTFIELD ||
			op == insn.INVOKEVIRTUAL || op == insn.INVOKESPECIAL || op == insn.INVOKESTATIC ||
			op == insn.NEW || op == insn.ANEWARRAY || op == insn.CHECKCAST || op == insn.INSTANCEOF:
			if ri.cpIdx, err = r.u2(); err != nil {
				return nil, err
			}
		case op == insn.INVOKEINTERFACE:
			if ri.cpIdx, err = r.u2(); err != nil {
				return nil, err
			}
			if err := r.skip(2); err != nil { // count + zero byte
				return nil, err
			}
		case op == insn.INVOKEDYNAMIC:
			if ri.cpIdx, err = r.u2(); err != nil {
				return nil, err
			}
			if err := r.skip(2); err != nil {
				return nil, err
			}
		case op == insn.MULTIANEWARRAY:
			if ri.cpIdx, err = r.u2(); err != nil {
				return nil, err
			}
			dims, err := r.u1()
			if err != nil {
				return nil, err
			}
			ri.operand = int(dims)
		default:
			if !op.Valid() {
				return nil, fmt.Errorf("unknown opcode %#x at offset %d", b, offset)
			}
			// zero-operand instruction
		}
		out = append(out, ri)
	}
	return out, nil
}

func buildInsn(c *insn.Code, cp *constPool, bootstraps []*insn.BootstrapMethod, ri rawInsn) (insn.Instruction, error) {
	op := ri.op
	switch {
	case op == insn.BIPUSH || op == insn.SIPUSH || op == insn.NEWARRAY:
		return insn.NewInt(op, int32(ri.operand)), nil
	case op == insn.LDC:
		v, err := cp.loadable(ri.cpIdx)
		if err != nil {
			return nil, err
		}
		return insn.NewLdc(v), nil
	case op >= insn.ILOAD && op <= insn.ALOAD || op >= insn.ISTORE && op <= insn.ASTORE:
		return insn.NewVar(op, ri.operand), nil
	case op == insn.IINC:
		return insn.NewIinc(ri.operand, ri.incr), nil
	case op >= insn.IFEQ && op <= insn.JSR || op == insn.IFNULL || op == insn.IFNONNULL:
		return insn.NewJump(op, c.GetOrCreateLabel(ri.target)), nil
	case op == insn.TABLESWITCH:
		targets := make([]*insn.LabelInsn, len(ri.targets))
		for i, t := range ri.targets {
			targets[i] = c.GetOrCreateLabel(t)
		}
		return insn.NewTableSwitch(ri.min, ri.max, c.GetOrCreateLabel(ri.dflt), targets), nil
	case op == insn.LOOKUPSWITCH:
		targets := make([]*insn.LabelInsn, len(ri.targets))
		for i, t := range ri.targets {
			targets[i] = c.GetOrCreateLabel(t)
		}
		return insn.NewLookupSwitch(c.GetOrCreateLabel(ri.dflt), ri.keys, targets), nil
	case op == insn.NEW || op == insn.ANEWARRAY || op == insn.CHECKCAST || op == insn.INSTANCEOF:
		name, err := cp.className(ri.cpIdx)
		if err != nil {
			return nil, err
		}
		return insn.NewType(op, ref.NewClassRef(name)), nil
	case op == insn.GETSTATIC || op == insn.PUTSTATIC || op == insn.GETFIELD || op == insn.PUTFIELD:
		owner, name, desc, _, err := cp.memberRef(ri.cpIdx)
		if err != nil {
			return nil, err
		}
		return insn.NewField(op, ref.NewFieldRef(owner, name, desc)), nil
	case op == insn.INVOKEVIRTUAL || op == insn.INVOKESPECIAL || op == insn.INVOKESTATIC || op == insn.INVOKEINTERFACE:
		owner, name, desc, itf, err := cp.memberRef(ri.cpIdx)
		if err != nil {
			return nil, err
		}
		return insn.NewMethod(op, ref.NewMethodRef(owner, name, desc), itf), nil
	case op == insn.INVOKEDYNAMIC:
		e, err := cp.at(ri.cpIdx, tagInvokeDynamic)
		if err != nil {
			return nil, err
		}
		name, desc, err := cp.nameAndType(e.idx2)
		if err != nil {
			return nil, err
		}
		var bm *insn.BootstrapMethod
		if int(e.idx1) < len(bootstraps) {
			bm = bootstraps[e.idx1]
		}
		return insn.NewInvokeDynamic(name, desc, bm), nil
	case op == insn.MULTIANEWARRAY:
		name, err := cp.className(ri.cpIdx)
		if err != nil {
			return nil, err
		}
		return insn.NewMultiANewArray(name, ri.operand), nil
	default:
		return insn.NewSimple(op), nil
	}
}
