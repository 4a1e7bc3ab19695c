package analysis

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/classflow/classflow/core/insn"
	"github.com/classflow/classflow/core/jclass"
	"github.com/classflow/classflow/core/ref"
)

func staticMethod(name string, args []string, ret string) *jclass.Method {
	return &jclass.Method{
		Access:   jclass.AccPublic | jclass.AccStatic,
		Name:     name,
		ArgTypes: args,
		RetType:  ret,
		Code:     insn.NewCode(),
	}
}

func TestAnalyzeIntAdd(t *testing.T) {
	m := staticMethod("add", []string{"I", "I"}, "I")
	c := m.Code
	iload0 := insn.NewVar(insn.ILOAD, 0)
	iload1 := insn.NewVar(insn.ILOAD, 1)
	iadd := insn.NewSimple(insn.IADD)
	iret := insn.NewSimple(insn.IRETURN)
	for _, ins := range []insn.Instruction{iload0, iload1, iadd, iret} {
		c.Append(ins)
	}

	res, err := NewAnalyzer().Analyze(m)
	require.NoError(t, err)

	f0 := res.Frames(iload0)
	require.Len(t, f0, 1)
	require.Equal(t, KindLocal, f0[0].Kind)
	require.Equal(t, []Value{{Type: Int}}, f0[0].Stack)

	f1 := res.Frames(iload1)
	require.Len(t, f1, 1)
	require.Equal(t, []Value{{Type: Int}, {Type: Int}}, f1[0].Stack)

	fa := res.Frames(iadd)
	require.Len(t, fa, 1)
	require.Equal(t, KindMath, fa[0].Kind)
	require.Equal(t, []Value{{Type: Int}}, fa[0].Stack)
	require.Equal(t, []*Frame{f0[0], f1[0]}, fa[0].Writes())
	require.False(t, fa[0].IsConstant(), "argument inputs are not constant")

	fr := res.Frames(iret)
	require.Len(t, fr, 1)
	require.Equal(t, KindReturn, fr[0].Kind)

	require.Equal(t, 2, res.MaxStack)
	require.Equal(t, 2, res.MaxLocals)
}

func TestAnalyzeWideIdentity(t *testing.T) {
	m := staticMethod("id", []string{"J"}, "J")
	c := m.Code
	lload := insn.NewVar(insn.LLOAD, 0)
	lret := insn.NewSimple(insn.LRETURN)
	c.Append(lload)
	c.Append(lret)

	res, err := NewAnalyzer().Analyze(m)
	require.NoError(t, err)

	fl := res.Frames(lload)
	require.Len(t, fl, 1)
	require.Equal(t, []Value{{Type: Long}, {Type: Long}}, fl[0].Stack,
		"a long occupies two adjacent stack slots")
	require.Equal(t, 2, res.MaxStack)
	require.Equal(t, 2, res.MaxLocals)
	require.Len(t, res.Frames(lret), 1)
}

func TestAnalyzeGotoSkipsFallthrough(t *testing.T) {
	m := staticMethod("jump", nil, "V")
	c := m.Code
	l := c.GetOrCreateLabel(0)
	g := insn.NewJump(insn.GOTO, l)
	ret := insn.NewSimple(insn.RETURN)
	c.Append(g)
	c.Append(l)
	c.Append(ret)

	res, err := NewAnalyzer().Analyze(m)
	require.NoError(t, err)
	require.Len(t, res.Frames(g), 1)
	require.Len(t, res.Frames(ret), 1)
	require.Equal(t, 2, res.FrameCount(), "no fallthrough exploration past GOTO")
}

func TestAnalyzeBranchMergeRecordsEveryReach(t *testing.T) {
	m := staticMethod("pick", []string{"I"}, "I")
	c := m.Code
	l1 := c.GetOrCreateLabel(1)
	l2 := c.GetOrCreateLabel(2)
	iload := insn.NewVar(insn.ILOAD, 0)
	ifeq := insn.NewJump(insn.IFEQ, l1)
	c0 := insn.NewSimple(insn.ICONST_0)
	g := insn.NewJump(insn.GOTO, l2)
	c1 := insn.NewSimple(insn.ICONST_1)
	iret := insn.NewSimple(insn.IRETURN)
	c.Append(iload)
	c.Append(ifeq)
	c.Append(c0)
	c.Append(g)
	c.Append(l1)
	c.Append(c1)
	c.Append(l2)
	c.Append(iret)

	res, err := NewAnalyzer().Analyze(m)
	require.NoError(t, err)

	frames := res.Frames(iret)
	require.Len(t, frames, 2, "one frame per reach through each branch arm")
	for _, f := range frames {
		require.Equal(t, []Value{{Type: Int}}, f.Stack)
	}
	require.Len(t, res.Frames(c0), 1)
	require.Len(t, res.Frames(c1), 1)
}

func TestAnalyzeExceptionHandlerDispatch(t *testing.T) {
	m := staticMethod("guard", nil, "Ljava/lang/Object;")
	c := m.Code
	lStart := c.GetOrCreateLabel(0)
	lEnd := c.GetOrCreateLabel(1)
	lHandler := c.GetOrCreateLabel(2)

	aconst := insn.NewSimple(insn.ACONST_NULL)
	astore := insn.NewVar(insn.ASTORE, 1)
	ret := insn.NewSimple(insn.RETURN)
	aload := insn.NewVar(insn.ALOAD, 1)
	aret := insn.NewSimple(insn.ARETURN)

	c.Append(lStart)
	c.Append(aconst)
	c.Append(astore)
	c.Append(lEnd)
	c.Append(ret)
	c.Append(lHandler)
	c.Append(aload)
	c.Append(aret)
	c.TryCatches = append(c.TryCatches, &insn.TryCatch{Start: lStart, End: lEnd, Handler: lHandler})

	res, err := NewAnalyzer().Analyze(m)
	require.NoError(t, err)

	astoreFrame := res.Frames(astore)
	require.Len(t, astoreFrame, 1)

	aloadFrames := res.Frames(aload)
	require.NotEmpty(t, aloadFrames, "handler must be explored")
	for _, f := range aloadFrames {
		require.Equal(t, Value{Type: Object, Desc: "java/lang/Throwable"}, f.Stack[0],
			"handler entry stack holds the caught throwable")
	}

	// The reach dispatched after the store reads the stored slot.
	found := false
	for _, f := range aloadFrames {
		for _, w := range f.Writes() {
			if w == astoreFrame[0] {
				found = true
			}
		}
	}
	require.True(t, found, "some handler reach reads the slot the try body stored")
}

func TestAnalyzeRejectsSubroutines(t *testing.T) {
	m := staticMethod("sub", nil, "V")
	c := m.Code
	l := c.GetOrCreateLabel(0)
	c.Append(insn.NewJump(insn.JSR, l))
	c.Append(l)
	c.Append(insn.NewSimple(insn.RETURN))

	res, err := NewAnalyzer().Analyze(m)
	require.ErrorIs(t, err, ErrUnsupportedOpcode)
	require.Nil(t, res, "no partial frames persist")

	m2 := staticMethod("sub2", nil, "V")
	m2.Code.Append(insn.NewVar(insn.RET, 0))
	_, err = NewAnalyzer().Analyze(m2)
	require.ErrorIs(t, err, ErrUnsupportedOpcode)
}

func TestAnalyzeAbstractAndNative(t *testing.T) {
	abstract := staticMethod("a", nil, "V")
	abstract.Access = jclass.AccPublic | jclass.AccAbstract
	res, err := NewAnalyzer().Analyze(abstract)
	require.NoError(t, err)
	require.True(t, res.Empty())

	native := staticMethod("n", nil, "V")
	native.Access |= jclass.AccNative
	res, err = NewAnalyzer().Analyze(native)
	require.NoError(t, err)
	require.True(t, res.Empty())
}

func TestAnalyzeConstantPropagation(t *testing.T) {
	m := staticMethod("six", nil, "I")
	c := m.Code
	c2 := insn.NewSimple(insn.ICONST_2)
	c3 := insn.NewSimple(insn.ICONST_3)
	mul := insn.NewSimple(insn.IMUL)
	iret := insn.NewSimple(insn.IRETURN)
	for _, ins := range []insn.Instruction{c2, c3, mul, iret} {
		c.Append(ins)
	}

	res, err := NewAnalyzer().Analyze(m)
	require.NoError(t, err)

	require.True(t, res.Frames(c2)[0].IsConstant())
	require.True(t, res.Frames(c3)[0].IsConstant())
	mulFrame := res.Frames(mul)[0]
	require.True(t, mulFrame.IsConstant(), "pure math over constants is constant")
	require.False(t, res.Frames(iret)[0].IsConstant(), "returns are not value-pure")
}

func TestAnalyzeInvokeConsumesArgs(t *testing.T) {
	m := staticMethod("call", nil, "V")
	c := m.Code
	ldc := insn.NewLdc("hello")
	bip := insn.NewInt(insn.BIPUSH, 7)
	consume := insn.NewMethod(insn.INVOKESTATIC,
		ref.NewMethodRef("Helper", "consume", "(Ljava/lang/String;I)J"), false)
	pop2 := insn.NewSimple(insn.POP2)
	ret := insn.NewSimple(insn.RETURN)
	for _, ins := range []insn.Instruction{ldc, bip, consume, pop2, ret} {
		c.Append(ins)
	}

	res, err := NewAnalyzer().Analyze(m)
	require.NoError(t, err)

	pf := res.Frames(consume)[0]
	require.Equal(t, KindMethod, pf.Kind)
	require.Len(t, pf.Writes(), 2, "both arguments consumed")
	require.Equal(t, []Value{{Type: Long}, {Type: Long}}, pf.Stack, "long result pushed wide")
	require.False(t, pf.IsConstant(), "invokes are never constant")

	popFrame := res.Frames(pop2)[0]
	require.Equal(t, []*Frame{pf}, popFrame.Writes())
}

func TestAnalyzeFieldRoundTrip(t *testing.T) {
	m := staticMethod("fields", nil, "V")
	c := m.Code
	get := insn.NewField(insn.GETSTATIC, ref.NewFieldRef("Holder", "count", "I"))
	put := insn.NewField(insn.PUTSTATIC, ref.NewFieldRef("Holder", "count", "I"))
	ret := insn.NewSimple(insn.RETURN)
	c.Append(get)
	c.Append(put)
	c.Append(ret)

	res, err := NewAnalyzer().Analyze(m)
	require.NoError(t, err)

	gf := res.Frames(get)[0]
	require.Equal(t, []Value{{Type: Int}}, gf.Stack)
	pf := res.Frames(put)[0]
	require.Equal(t, []*Frame{gf}, pf.Writes())
	require.Contains(t, gf.Reads(), pf)
	require.False(t, gf.IsConstant(), "field reads are side-effecting")
}

func TestAnalyzeSwitchSuccessors(t *testing.T) {
	m := staticMethod("sw", []string{"I"}, "I")
	c := m.Code
	lA := c.GetOrCreateLabel(10)
	lB := c.GetOrCreateLabel(20)
	lD := c.GetOrCreateLabel(30)

	iload := insn.NewVar(insn.ILOAD, 0)
	sw := insn.NewLookupSwitch(lD, []int32{1, 5}, []*insn.LabelInsn{lA, lB})
	iA := insn.NewSimple(insn.ICONST_0)
	rA := insn.NewSimple(insn.IRETURN)
	iB := insn.NewSimple(insn.ICONST_1)
	rB := insn.NewSimple(insn.IRETURN)
	iD := insn.NewSimple(insn.ICONST_M1)
	rD := insn.NewSimple(insn.IRETURN)

	c.Append(iload)
	c.Append(sw)
	c.Append(lA)
	c.Append(iA)
	c.Append(rA)
	c.Append(lB)
	c.Append(iB)
	c.Append(rB)
	c.Append(lD)
	c.Append(iD)
	c.Append(rD)

	res, err := NewAnalyzer().Analyze(m)
	require.NoError(t, err)
	require.Equal(t, KindSwitch, res.Frames(sw)[0].Kind)
	for _, arm := range []insn.Instruction{iA, iB, iD, rA, rB, rD} {
		require.True(t, res.Visited(arm), "every switch arm is reachable")
	}
}

func TestAnalyzeLoopTerminates(t *testing.T) {
	m := staticMethod("loop", []string{"I"}, "V")
	c := m.Code
	lTop := c.GetOrCreateLabel(0)
	iinc := insn.NewIinc(0, -1)
	iload := insn.NewVar(insn.ILOAD, 0)
	ifgt := insn.NewJump(insn.IFGT, lTop)
	ret := insn.NewSimple(insn.RETURN)

	c.Append(lTop)
	c.Append(iinc)
	c.Append(iload)
	c.Append(ifgt)
	c.Append(ret)

	res, err := NewAnalyzer().Analyze(m)
	require.NoError(t, err)
	require.Equal(t, 2, len(res.Frames(iinc)), "loop body reached from entry and from the back edge")
	require.True(t, res.Visited(ret))
}

func TestAnalyzeStackUnderflow(t *testing.T) {
	m := staticMethod("under", nil, "V")
	m.Code.Append(insn.NewSimple(insn.POP))
	m.Code.Append(insn.NewSimple(insn.RETURN))

	_, err := NewAnalyzer().Analyze(m)
	require.ErrorIs(t, err, ErrStackUnderflow)
}

func TestAnalyzeWideMismatch(t *testing.T) {
	m2 := staticMethod("mismatch", nil, "V")
	c2 := m2.Code
	c2.Append(insn.NewSimple(insn.ICONST_0))
	c2.Append(insn.NewVar(insn.LSTORE, 0))
	c2.Append(insn.NewSimple(insn.RETURN))

	_, err := NewAnalyzer().Analyze(m2)
	require.ErrorIs(t, err, ErrWideMismatch)
}

func TestAnalyzeFallOffEnd(t *testing.T) {
	m := staticMethod("fall", nil, "V")
	m.Code.Append(insn.NewSimple(insn.NOP))

	_, err := NewAnalyzer().Analyze(m)
	require.ErrorIs(t, err, ErrFallOffEnd)
}

func TestAnalyzeDupShuffles(t *testing.T) {
	m := staticMethod("dups", nil, "V")
	c := m.Code
	c1 := insn.NewSimple(insn.ICONST_1)
	dup := insn.NewSimple(insn.DUP)
	swap := insn.NewSimple(insn.SWAP)
	pop1 := insn.NewSimple(insn.POP)
	pop2 := insn.NewSimple(insn.POP)
	ret := insn.NewSimple(insn.RETURN)
	for _, ins := range []insn.Instruction{c1, dup, swap, pop1, pop2, ret} {
		c.Append(ins)
	}

	res, err := NewAnalyzer().Analyze(m)
	require.NoError(t, err)
	df := res.Frames(dup)[0]
	require.Equal(t, KindDup, df.Kind)
	require.Equal(t, []Value{{Type: Int}, {Type: Int}}, df.Stack)
	require.Equal(t, 2, res.MaxStack)
}

func TestAnalyzeDupX1WideFails(t *testing.T) {
	m := staticMethod("badDup", nil, "V")
	c := m.Code
	c.Append(insn.NewSimple(insn.ICONST_0))
	c.Append(insn.NewSimple(insn.LCONST_0))
	c.Append(insn.NewSimple(insn.DUP_X1))
	c.Append(insn.NewSimple(insn.RETURN))

	_, err := NewAnalyzer().Analyze(m)
	require.ErrorIs(t, err, ErrMalformedCode)
}

func TestAnalyzeNewObjectLifecycle(t *testing.T) {
	m := staticMethod("alloc", nil, "Ljava/lang/Object;")
	c := m.Code
	nw := insn.NewType(insn.NEW, ref.NewClassRef("java/lang/Object"))
	dup := insn.NewSimple(insn.DUP)
	init := insn.NewMethod(insn.INVOKESPECIAL, ref.NewMethodRef("java/lang/Object", "<init>", "()V"), false)
	aret := insn.NewSimple(insn.ARETURN)
	for _, ins := range []insn.Instruction{nw, dup, init, aret} {
		c.Append(ins)
	}

	res, err := NewAnalyzer().Analyze(m)
	require.NoError(t, err)

	nf := res.Frames(nw)[0]
	require.Equal(t, KindNew, nf.Kind)
	require.Equal(t, []Value{{Type: Uninitialized, Desc: "java/lang/Object"}}, nf.Stack)

	// The constructor call marks every alias of the receiver initialized.
	initFrame := res.Frames(init)[0]
	require.Equal(t, []Value{{Type: Object, Desc: "java/lang/Object"}}, initFrame.Stack)
	require.True(t, res.Visited(aret))
}

func TestAnalyzerInvariants(t *testing.T) {
	m := staticMethod("mixed", []string{"I", "J"}, "I")
	c := m.Code
	lElse := c.GetOrCreateLabel(0)
	lEnd := c.GetOrCreateLabel(1)

	iload := insn.NewVar(insn.ILOAD, 0)
	ifeq := insn.NewJump(insn.IFEQ, lElse)
	lload := insn.NewVar(insn.LLOAD, 1)
	l2i := insn.NewSimple(insn.L2I)
	g := insn.NewJump(insn.GOTO, lEnd)
	czero := insn.NewSimple(insn.ICONST_0)
	iret := insn.NewSimple(insn.IRETURN)

	c.Append(iload)
	c.Append(ifeq)
	c.Append(lload)
	c.Append(l2i)
	c.Append(g)
	c.Append(lElse)
	c.Append(czero)
	c.Append(lEnd)
	c.Append(iret)

	res, err := NewAnalyzer().Analyze(m)
	require.NoError(t, err)

	for _, ins := range c.Instructions() {
		for _, f := range res.Frames(ins) {
			require.LessOrEqual(t, len(f.Stack), res.MaxStack)
			require.LessOrEqual(t, len(f.Locals), res.MaxLocals)
			for _, w := range f.Writes() {
				require.Contains(t, w.Reads(), f, "producer/consumer edges are symmetric")
			}
			if f.IsConstant() {
				require.True(t, f.Op.IsConstPush() || f.Op.IsPure())
				for _, w := range f.Writes() {
					require.True(t, w.IsConstant())
				}
			}
		}
	}
}

func TestAnalysisFailedError(t *testing.T) {
	m := staticMethod("boom", nil, "V")
	m.Code.MaxStack = 7
	err := &AnalysisFailedError{Method: m, MaxStack: m.Code.MaxStack}
	require.Contains(t, err.Error(), "boom")
	require.Contains(t, err.Error(), "7")
	var target *AnalysisFailedError
	require.True(t, errors.As(error(err), &target))
}
