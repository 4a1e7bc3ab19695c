package analysis

import (
	"fmt"

	"github.com/classflow/classflow/common/descriptor"
	"github.com/classflow/classflow/core/insn"
	"github.com/classflow/classflow/core/ref"
)

// mathEffect describes one arithmetic, logic, comparison or cast opcode:
// the operand descriptors in push order (deepest first) and the result.
type mathEffect struct {
	args []string
	ret  string
}

var mathEffects = map[insn.Opcode]mathEffect{
	insn.IADD: {[]string{"I", "I"}, "I"}, insn.ISUB: {[]string{"I", "I"}, "I"},
	insn.IMUL: {[]string{"I", "I"}, "I"}, insn.IDIV: {[]string{"I", "I"}, "I"},
	insn.IREM: {[]string{"I", "I"}, "I"}, insn.IAND: {[]string{"I", "I"}, "I"},
	insn.IOR: {[]string{"I", "I"}, "I"}, insn.IXOR: {[]string{"I", "I"}, "I"},
	insn.ISHL: {[]string{"I", "I"}, "I"}, insn.ISHR: {[]string{"I", "I"}, "I"},
	insn.IUSHR: {[]string{"I", "I"}, "I"},

	insn.LADD: {[]string{"J", "J"}, "J"}, insn.LSUB: {[]string{"J", "J"}, "J"},
	insn.LMUL: {[]string{"J", "J"}, "J"}, insn.LDIV: {[]string{"J", "J"}, "J"},
	insn.LREM: {[]string{"J", "J"}, "J"}, insn.LAND: {[]string{"J", "J"}, "J"},
	insn.LOR: {[]string{"J", "J"}, "J"}, insn.LXOR: {[]string{"J", "J"}, "J"},
	insn.LSHL: {[]string{"J", "I"}, "J"}, insn.LSHR: {[]string{"J", "I"}, "J"},
	insn.LUSHR: {[]string{"J", "I"}, "J"},

	insn.FADD: {[]string{"F", "F"}, "F"}, insn.FSUB: {[]string{"F", "F"}, "F"},
	insn.FMUL: {[]string{"F", "F"}, "F"}, insn.FDIV: {[]string{"F", "F"}, "F"},
	insn.FREM: {[]string{"F", "F"}, "F"},

	insn.DADD: {[]string{"D", "D"}, "D"}, insn.DSUB: {[]string{"D", "D"}, "D"},
	insn.DMUL: {[]string{"D", "D"}, "D"}, insn.DDIV: {[]string{"D", "D"}, "D"},
	insn.DREM: {[]string{"D", "D"}, "D"},

	insn.INEG: {[]string{"I"}, "I"}, insn.LNEG: {[]string{"J"}, "J"},
	insn.FNEG: {[]string{"F"}, "F"}, insn.DNEG: {[]string{"D"}, "D"},

	insn.LCMP:  {[]string{"J", "J"}, "I"},
	insn.FCMPL: {[]string{"F", "F"}, "I"}, insn.FCMPG: {[]string{"F", "F"}, "I"},
	insn.DCMPL: {[]string{"D", "D"}, "I"}, insn.DCMPG: {[]string{"D", "D"}, "I"},

	insn.I2L: {[]string{"I"}, "J"}, insn.I2F: {[]string{"I"}, "F"}, insn.I2D: {[]string{"I"}, "D"},
	insn.L2I: {[]string{"J"}, "I"}, insn.L2F: {[]string{"J"}, "F"}, insn.L2D: {[]string{"J"}, "D"},
	insn.F2I: {[]string{"F"}, "I"}, insn.F2L: {[]string{"F"}, "J"}, insn.F2D: {[]string{"F"}, "D"},
	insn.D2I: {[]string{"D"}, "I"}, insn.D2L: {[]string{"D"}, "J"}, insn.D2F: {[]string{"D"}, "F"},
	insn.I2B: {[]string{"I"}, "I"}, insn.I2C: {[]string{"I"}, "I"}, insn.I2S: {[]string{"I"}, "I"},
}

var newarrayDescs = map[int32]string{
	insn.TBoolean: "[Z",
	insn.TChar:    "[C",
	insn.TFloat:   "[F",
	insn.TDouble:  "[D",
	insn.TByte:    "[B",
	insn.TShort:   "[S",
	insn.TInt:     "[I",
	insn.TLong:    "[J",
}

// step executes one instruction against the symbolic state. It returns the
// emitted frame (nil for pseudo instructions), whether control terminates
// here, and the registered successors, if any.
func (e *execution) step(ins insn.Instruction, stack *Stack, locals *Locals) (*Frame, bool, []insn.Instruction, error) {
	op := ins.Op()
	if op == insn.NoOpcode {
		return nil, false, nil, nil
	}

	switch {
	case op == insn.NOP:
		return newFrame(KindNop, op), false, nil, nil

	case op.IsConstPush():
		return e.stepConst(ins, op, stack)

	case op >= insn.ILOAD && op <= insn.ALOAD:
		return e.stepLoad(ins.(*insn.VarInsn), stack, locals)

	case op >= insn.IALOAD && op <= insn.SALOAD:
		return e.stepArrayLoad(op, stack)

	case op >= insn.ISTORE && op <= insn.ASTORE:
		return e.stepStore(ins.(*insn.VarInsn), stack, locals)

	case op >= insn.IASTORE && op <= insn.SASTORE:
		return e.stepArrayStore(op, stack)

	case op >= insn.POP && op <= insn.SWAP:
		return e.stepShuffle(op, stack)

	case op == insn.IINC:
		v := ins.(*insn.IincInsn)
		f := newFrame(KindLocal, insn.IINC)
		locals.Ensure(v.Index)
		if s := locals.Get(v.Index); s != nil {
			f.addWrite(s.Producer)
		}
		locals.Set(v.Index, &Slot{Desc: "I", Producer: f, Initialized: true})
		return f, false, nil, nil

	case mathEffects[op].ret != "":
		eff := mathEffects[op]
		f := newFrame(KindMath, op)
		// Operands pop top-down but wire as writes bottom-up, so the
		// writes list reads in evaluation order.
		operands := make([]*Slot, len(eff.args))
		for i := len(eff.args) - 1; i >= 0; i-- {
			s, err := popSilent(stack, eff.args[i])
			if err != nil {
				return nil, false, nil, err
			}
			operands[i] = s
		}
		for _, s := range operands {
			f.addWrite(s.Producer)
		}
		pushDesc(f, stack, eff.ret)
		return f, false, nil, nil

	case op >= insn.IFEQ && op <= insn.IFLE || op == insn.IFNULL || op == insn.IFNONNULL:
		f := newFrame(KindJump, op)
		if _, err := popOne(f, stack); err != nil {
			return nil, false, nil, err
		}
		target := ins.(*insn.JumpInsn).Target
		return f, false, []insn.Instruction{target, ins.Next()}, nil

	case op >= insn.IF_ICMPEQ && op <= insn.IF_ACMPNE:
		f := newFrame(KindJump, op)
		for i := 0; i < 2; i++ {
			if _, err := popOne(f, stack); err != nil {
				return nil, false, nil, err
			}
		}
		target := ins.(*insn.JumpInsn).Target
		return f, false, []insn.Instruction{target, ins.Next()}, nil

	case op == insn.GOTO:
		f := newFrame(KindJump, op)
		return f, false, []insn.Instruction{ins.(*insn.JumpInsn).Target}, nil

	case op == insn.TABLESWITCH:
		v := ins.(*insn.TableSwitchInsn)
		f := newFrame(KindSwitch, op)
		if _, err := popOne(f, stack); err != nil {
			return nil, false, nil, err
		}
		succs := make([]insn.Instruction, 0, len(v.Targets)+1)
		for _, t := range v.Targets {
			succs = append(succs, t)
		}
		succs = append(succs, v.Default)
		return f, false, succs, nil

	case op == insn.LOOKUPSWITCH:
		v := ins.(*insn.LookupSwitchInsn)
		f := newFrame(KindSwitch, op)
		if _, err := popOne(f, stack); err != nil {
			return nil, false, nil, err
		}
		succs := make([]insn.Instruction, 0, len(v.Targets)+1)
		for _, t := range v.Targets {
			succs = append(succs, t)
		}
		succs = append(succs, v.Default)
		return f, false, succs, nil

	case op.IsReturn():
		f := newFrame(KindReturn, op)
		switch op {
		case insn.RETURN:
		case insn.LRETURN, insn.DRETURN:
			if _, err := popWideInto(f, stack); err != nil {
				return nil, false, nil, err
			}
		default:
			if _, err := popOne(f, stack); err != nil {
				return nil, false, nil, err
			}
		}
		return f, true, nil, nil

	case op >= insn.GETSTATIC && op <= insn.PUTFIELD:
		return e.stepField(ins.(*insn.FieldInsn), stack)

	case op >= insn.INVOKEVIRTUAL && op <= insn.INVOKEDYNAMIC:
		return e.stepInvoke(ins, op, stack)

	case op == insn.NEW:
		v := ins.(*insn.TypeInsn)
		f := newFrame(KindNew, op)
		stack.Push(&Slot{
			Desc:     descriptor.ToDescriptor(v.Class.Name),
			Producer: f,
			InitDesc: v.Class.Name,
		})
		return f, false, nil, nil

	case op == insn.NEWARRAY:
		v := ins.(*insn.IntInsn)
		desc, ok := newarrayDescs[v.Operand]
		if !ok {
			return nil, false, nil, fmt.Errorf("%w: NEWARRAY type %d", ErrMalformedCode, v.Operand)
		}
		f := newFrame(KindNewArray, op)
		if _, err := popOne(f, stack); err != nil {
			return nil, false, nil, err
		}
		pushDesc(f, stack, desc)
		return f, false, nil, nil

	case op == insn.ANEWARRAY:
		v := ins.(*insn.TypeInsn)
		f := newFrame(KindNewArray, op)
		if _, err := popOne(f, stack); err != nil {
			return nil, false, nil, err
		}
		pushDesc(f, stack, "["+descriptor.ToDescriptor(v.Class.Name))
		return f, false, nil, nil

	case op == insn.MULTIANEWARRAY:
		v := ins.(*insn.MultiANewArrayInsn)
		f := newFrame(KindMultiANewArray, op)
		for i := 0; i < v.Dims; i++ {
			if _, err := popOne(f, stack); err != nil {
				return nil, false, nil, err
			}
		}
		pushDesc(f, stack, v.Desc)
		return f, false, nil, nil

	case op == insn.ARRAYLENGTH:
		f := newFrame(KindArrayLength, op)
		if _, err := popOne(f, stack); err != nil {
			return nil, false, nil, err
		}
		pushDesc(f, stack, "I")
		return f, false, nil, nil

	case op == insn.ATHROW:
		f := newFrame(KindThrow, op)
		if _, err := popOne(f, stack); err != nil {
			return nil, false, nil, err
		}
		return f, true, nil, nil

	case op == insn.CHECKCAST:
		v := ins.(*insn.TypeInsn)
		f := newFrame(KindCheckCast, op)
		s, err := popOne(f, stack)
		if err != nil {
			return nil, false, nil, err
		}
		c := dupSlot(f, s)
		c.Desc = descriptor.ToDescriptor(v.Class.Name)
		c.Null = false
		stack.Push(c)
		return f, false, nil, nil

	case op == insn.INSTANCEOF:
		f := newFrame(KindInstanceOf, op)
		if _, err := popOne(f, stack); err != nil {
			return nil, false, nil, err
		}
		pushDesc(f, stack, "I")
		return f, false, nil, nil

	case op == insn.MONITORENTER || op == insn.MONITOREXIT:
		f := newFrame(KindMonitor, op)
		if _, err := popOne(f, stack); err != nil {
			return nil, false, nil, err
		}
		return f, false, nil, nil
	}

	return nil, false, nil, fmt.Errorf("%w: %v", ErrUnknownOpcode, op)
}

func (e *execution) stepConst(ins insn.Instruction, op insn.Opcode, stack *Stack) (*Frame, bool, []insn.Instruction, error) {
	f := newFrame(KindLdc, op)
	switch {
	case op == insn.ACONST_NULL:
		stack.Push(&Slot{Producer: f, Null: true, Initialized: true})
	case op >= insn.ICONST_M1 && op <= insn.ICONST_5:
		pushDesc(f, stack, "I")
	case op == insn.LCONST_0 || op == insn.LCONST_1:
		pushDesc(f, stack, "J")
	case op >= insn.FCONST_0 && op <= insn.FCONST_2:
		pushDesc(f, stack, "F")
	case op == insn.DCONST_0 || op == insn.DCONST_1:
		pushDesc(f, stack, "D")
	case op == insn.BIPUSH || op == insn.SIPUSH:
		pushDesc(f, stack, "I")
	default: // LDC and its wide forms
		v := ins.(*insn.LdcInsn)
		pushDesc(f, stack, ldcDesc(v.Const))
	}
	return f, false, nil, nil
}

// ldcDesc infers the pushed slot type from the loaded constant: primitive
// wrappers unwrap to their primitives, type literals load as Class, strings
// as String, method handles as MethodHandle, anything else as Object.
func ldcDesc(c any) string {
	switch c.(type) {
	case int32:
		return "I"
	case int64:
		return "J"
	case float32:
		return "F"
	case float64:
		return "D"
	case string:
		return "Ljava/lang/String;"
	case insn.TypeConst:
		return "Ljava/lang/Class;"
	case *ref.MethodRef:
		return "Ljava/lang/invoke/MethodHandle;"
	default:
		return "Ljava/lang/Object;"
	}
}

func (e *execution) stepLoad(v *insn.VarInsn, stack *Stack, locals *Locals) (*Frame, bool, []insn.Instruction, error) {
	op := v.Op()
	f := newFrame(KindLocal, op)
	locals.Ensure(v.Index)
	s := locals.Get(v.Index)
	if s != nil {
		f.addWrite(s.Producer)
	}
	switch op {
	case insn.ILOAD:
		pushDesc(f, stack, "I")
	case insn.LLOAD:
		pushDesc(f, stack, "J")
	case insn.FLOAD:
		pushDesc(f, stack, "F")
	case insn.DLOAD:
		pushDesc(f, stack, "D")
	default: // ALOAD carries the slot's own reference type forward
		if s == nil {
			stack.Push(&Slot{Producer: f, Initialized: true})
		} else {
			stack.Push(dupSlot(f, s))
		}
	}
	return f, false, nil, nil
}

func (e *execution) stepStore(v *insn.VarInsn, stack *Stack, locals *Locals) (*Frame, bool, []insn.Instruction, error) {
	op := v.Op()
	f := newFrame(KindLocal, op)
	switch op {
	case insn.LSTORE, insn.DSTORE:
		s, err := popWideInto(f, stack)
		if err != nil {
			return nil, false, nil, err
		}
		c := dupSlot(f, s)
		locals.SetWide(v.Index, c)
	default:
		s, err := popOne(f, stack)
		if err != nil {
			return nil, false, nil, err
		}
		locals.Set(v.Index, dupSlot(f, s))
	}
	return f, false, nil, nil
}

func (e *execution) stepArrayLoad(op insn.Opcode, stack *Stack) (*Frame, bool, []insn.Instruction, error) {
	f := newFrame(KindArrayLoad, op)
	if _, err := popOne(f, stack); err != nil { // index
		return nil, false, nil, err
	}
	arr, err := popOne(f, stack)
	if err != nil {
		return nil, false, nil, err
	}
	switch op {
	case insn.LALOAD:
		pushDesc(f, stack, "J")
	case insn.FALOAD:
		pushDesc(f, stack, "F")
	case insn.DALOAD:
		pushDesc(f, stack, "D")
	case insn.AALOAD:
		desc := "Ljava/lang/Object;"
		if elem, err := descriptor.ElementType(arr.Desc); err == nil {
			desc = elem
		}
		pushDesc(f, stack, desc)
	default: // IALOAD, BALOAD, CALOAD, SALOAD all load as int
		pushDesc(f, stack, "I")
	}
	return f, false, nil, nil
}

func (e *execution) stepArrayStore(op insn.Opcode, stack *Stack) (*Frame, bool, []insn.Instruction, error) {
	f := newFrame(KindArrayStore, op)
	valueDesc := "I"
	switch op {
	case insn.LASTORE:
		valueDesc = "J"
	case insn.DASTORE:
		valueDesc = "D"
	}
	value, err := popSilent(stack, valueDesc)
	if err != nil {
		return nil, false, nil, err
	}
	index, err := stack.Pop()
	if err != nil {
		return nil, false, nil, err
	}
	arr, err := stack.Pop()
	if err != nil {
		return nil, false, nil, err
	}
	f.addWrite(arr.Producer)
	f.addWrite(index.Producer)
	f.addWrite(value.Producer)
	return f, false, nil, nil
}

func (e *execution) stepField(v *insn.FieldInsn, stack *Stack) (*Frame, bool, []insn.Instruction, error) {
	f := newFrame(KindField, v.Op())
	desc := v.Field.Desc
	switch v.Op() {
	case insn.GETSTATIC:
		pushDesc(f, stack, desc)
	case insn.GETFIELD:
		if _, err := popOne(f, stack); err != nil {
			return nil, false, nil, err
		}
		pushDesc(f, stack, desc)
	case insn.PUTSTATIC:
		if _, err := popDesc(f, stack, desc); err != nil {
			return nil, false, nil, err
		}
	case insn.PUTFIELD:
		if _, err := popDesc(f, stack, desc); err != nil {
			return nil, false, nil, err
		}
		if _, err := popOne(f, stack); err != nil {
			return nil, false, nil, err
		}
	}
	return f, false, nil, nil
}

func (e *execution) stepInvoke(ins insn.Instruction, op insn.Opcode, stack *Stack) (*Frame, bool, []insn.Instruction, error) {
	var desc string
	switch v := ins.(type) {
	case *insn.MethodInsn:
		desc = v.Method.Desc
	case *insn.InvokeDynamicInsn:
		desc = v.Desc
	}
	args, ret, err := descriptor.Method(desc)
	if err != nil {
		return nil, false, nil, fmt.Errorf("%w: %v", ErrMalformedCode, err)
	}
	f := newFrame(KindMethod, op)
	operands := make([]*Slot, len(args))
	for i := len(args) - 1; i >= 0; i-- {
		s, err := popSilent(stack, args[i])
		if err != nil {
			return nil, false, nil, err
		}
		operands[i] = s
	}
	if op == insn.INVOKEVIRTUAL || op == insn.INVOKESPECIAL || op == insn.INVOKEINTERFACE {
		recv, err := stack.Pop()
		if err != nil {
			return nil, false, nil, err
		}
		if op == insn.INVOKESPECIAL {
			markInitialized(recv)
		}
		f.addWrite(recv.Producer)
	}
	for _, s := range operands {
		f.addWrite(s.Producer)
	}
	if ret != "V" {
		pushDesc(f, stack, ret)
	}
	return f, false, nil, nil
}

func (e *execution) stepShuffle(op insn.Opcode, stack *Stack) (*Frame, bool, []insn.Instruction, error) {
	f := newFrame(kindOfShuffle(op), op)
	switch op {
	case insn.POP:
		if _, err := popOne(f, stack); err != nil {
			return nil, false, nil, err
		}

	case insn.POP2:
		if top := stack.Peek(0); top != nil && top.wideMarker {
			if _, err := popWideInto(f, stack); err != nil {
				return nil, false, nil, err
			}
		} else {
			for i := 0; i < 2; i++ {
				if _, err := popOne(f, stack); err != nil {
					return nil, false, nil, err
				}
			}
		}

	case insn.DUP:
		top := stack.Peek(0)
		if top == nil {
			return nil, false, nil, ErrStackUnderflow
		}
		f.addWrite(top.Producer)
		stack.Push(dupSlot(f, top))

	case insn.DUP_X1:
		top := stack.Peek(0)
		if top == nil || stack.Peek(1) == nil {
			return nil, false, nil, ErrStackUnderflow
		}
		if top.wideMarker {
			return nil, false, nil, fmt.Errorf("%w: DUP_X1 on a wide value", ErrMalformedCode)
		}
		f.addWrite(top.Producer)
		if err := stack.insert(2, dupSlot(f, top)); err != nil {
			return nil, false, nil, err
		}

	case insn.DUP_X2:
		top := stack.Peek(0)
		if top == nil {
			return nil, false, nil, ErrStackUnderflow
		}
		f.addWrite(top.Producer)
		if err := stack.insert(3, dupSlot(f, top)); err != nil {
			return nil, false, nil, err
		}

	case insn.DUP2, insn.DUP2_X1, insn.DUP2_X2:
		pair, err := topPairCopy(f, stack)
		if err != nil {
			return nil, false, nil, err
		}
		depth := map[insn.Opcode]int{insn.DUP2: 2, insn.DUP2_X1: 3, insn.DUP2_X2: 4}[op]
		if err := stack.insert(depth, pair...); err != nil {
			return nil, false, nil, err
		}

	case insn.SWAP:
		v1, err := popOne(f, stack)
		if err != nil {
			return nil, false, nil, err
		}
		v2, err := popOne(f, stack)
		if err != nil {
			return nil, false, nil, err
		}
		stack.Push(v1)
		stack.Push(v2)
	}
	return f, false, nil, nil
}

func kindOfShuffle(op insn.Opcode) Kind {
	switch op {
	case insn.POP, insn.POP2:
		return KindPop
	case insn.SWAP:
		return KindSwap
	default:
		return KindDup
	}
}

// topPairCopy copies the top two stack slots for the DUP2 family, keeping a
// wide value+marker pair intact as one unit.
func topPairCopy(f *Frame, stack *Stack) ([]*Slot, error) {
	top, second := stack.Peek(0), stack.Peek(1)
	if top == nil || second == nil {
		return nil, ErrStackUnderflow
	}
	if top.wideMarker {
		if !second.isWideValue() {
			return nil, fmt.Errorf("%w: stray wide marker on stack", ErrWideMismatch)
		}
		f.addWrite(second.Producer)
		c := dupSlot(f, second)
		return []*Slot{c, marker(c)}, nil
	}
	f.addWrite(second.Producer)
	f.addWrite(top.Producer)
	return []*Slot{dupSlot(f, second), dupSlot(f, top)}, nil
}
