package analysis

import (
	"fmt"
	"time"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/classflow/classflow/common/descriptor"
	"github.com/classflow/classflow/core/insn"
	"github.com/classflow/classflow/core/jclass"
	"github.com/classflow/classflow/log"
)

const throwableClass = "java/lang/Throwable"

// Analyzer symbolically executes one method at a time. It keeps no state
// between calls, so one instance may serve concurrent workers.
type Analyzer struct{}

func NewAnalyzer() *Analyzer { return &Analyzer{} }

// edge is one explored control-flow transition. Every edge is walked at
// most once, which bounds the exploration on cyclic flow graphs.
type edge struct {
	src insn.Instruction
	dst insn.Instruction
}

// execution carries the per-method exploration state.
type execution struct {
	method   *jclass.Method
	res      *Result
	handlers map[insn.Instruction][]*insn.TryCatch
	visited  mapset.Set[edge]
	work     []workItem
}

type workItem struct {
	ins    insn.Instruction
	stack  *Stack
	locals *Locals
}

// Analyze symbolically executes m and returns a frame per reach of every
// reachable instruction. Abstract and native methods yield an empty result.
// Structural failures abort this method only.
func (a *Analyzer) Analyze(m *jclass.Method) (res *Result, err error) {
	start := time.Now()
	defer func() {
		analyzeTimer.UpdateSince(start)
		if r := recover(); r != nil {
			analyzeFailures.Inc(1)
			declared := 0
			if m.Code != nil {
				declared = m.Code.MaxStack
			}
			res = nil
			err = &AnalysisFailedError{Method: m, MaxStack: declared}
			log.WarnFiltered(&failureLogFilter, "method analysis exhausted", "method", m.String(), "panic", fmt.Sprint(r))
		} else if err != nil {
			analyzeFailures.Inc(1)
		} else {
			analyzedMethods.Inc(1)
			framesEmitted.Inc(int64(res.FrameCount()))
		}
	}()

	res = newResult()
	if m.IsAbstract() || m.IsNative() {
		return res, nil
	}
	code := m.Code
	if code == nil || code.Len() == 0 {
		return res, nil
	}
	for _, ins := range code.Instructions() {
		op := ins.Op()
		switch {
		case op == insn.JSR || op == insn.RET:
			return nil, fmt.Errorf("%w: %v in %v", ErrUnsupportedOpcode, op, m)
		case op != insn.NoOpcode && !op.Valid():
			return nil, fmt.Errorf("%w: %d in %v", ErrUnknownOpcode, int(op), m)
		}
	}

	e := &execution{
		method:   m,
		res:      res,
		handlers: buildHandlers(code),
		visited:  mapset.NewThreadUnsafeSet[edge](),
	}
	e.push(code.First(), NewStack(), seedLocals(m))
	for len(e.work) > 0 {
		it := e.work[len(e.work)-1]
		e.work = e.work[:len(e.work)-1]
		if err := e.straightLine(it); err != nil {
			return nil, err
		}
	}
	return res, nil
}

func (e *execution) push(ins insn.Instruction, stack *Stack, locals *Locals) {
	e.work = append(e.work, workItem{ins, stack, locals})
}

// seedLocals builds the entry local table: the receiver for instance
// methods, then one slot per declared argument, wide arguments twice.
func seedLocals(m *jclass.Method) *Locals {
	locals := NewLocals()
	if !m.IsStatic() {
		owner := "java/lang/Object"
		if m.Owner() != nil {
			owner = m.Owner().Name
		}
		f := newFrame(KindArgument, insn.NoOpcode)
		locals.Append(&Slot{
			Desc:        descriptor.ToDescriptor(owner),
			Producer:    f,
			InitDesc:    owner,
			IsThis:      true,
			Initialized: true,
		})
	}
	for _, at := range m.ArgTypes {
		f := newFrame(KindArgument, insn.NoOpcode)
		s := &Slot{Desc: at, Producer: f, Initialized: true}
		locals.Append(s)
		if descriptor.IsWide(at) {
			locals.Append(marker(s))
		}
	}
	return locals
}

// buildHandlers maps every covered bytecode instruction to the exception
// blocks protecting it, preserving the source order of the table.
func buildHandlers(code *insn.Code) map[insn.Instruction][]*insn.TryCatch {
	handlers := make(map[insn.Instruction][]*insn.TryCatch)
	for _, tc := range code.TryCatches {
		for ins := insn.Instruction(tc.Start); ins != nil && ins != insn.Instruction(tc.End); ins = ins.Next() {
			if ins.Op() == insn.NoOpcode {
				continue
			}
			handlers[ins] = append(handlers[ins], tc)
		}
	}
	return handlers
}

// straightLine executes from it.ins until a terminator or a registered
// branch, queueing new edges onto the worklist.
func (e *execution) straightLine(it workItem) error {
	stack, locals := it.stack, it.locals
	for ins := it.ins; ; {
		if ins == nil {
			return fmt.Errorf("%w in %v", ErrFallOffEnd, e.method)
		}
		frame, terminated, succs, err := e.step(ins, stack, locals)
		if err != nil {
			return err
		}
		if frame != nil {
			frame.Stack = stack.Snapshot()
			frame.Locals = locals.Snapshot()
			e.res.record(ins, frame, stack.Size(), locals.Size())

			// Exception dispatch: each protecting handler is entered with
			// a fresh stack holding the caught value and a copy of the
			// locals as they stand here.
			for _, tc := range e.handlers[ins] {
				if !e.visited.Add(edge{src: ins, dst: tc.Handler}) {
					continue
				}
				caught := throwableClass
				if tc.Type != nil {
					caught = tc.Type.Name
				}
				hstack := NewStack()
				hstack.Push(&Slot{
					Desc:        descriptor.ToDescriptor(caught),
					Producer:    newFrame(KindArgument, insn.NoOpcode),
					Initialized: true,
				})
				e.push(tc.Handler, hstack, locals.Copy())
			}
		}
		if terminated {
			return nil
		}
		if succs != nil {
			// Queue in reverse so the first registered successor is
			// explored first; no fallthrough past a registered branch.
			for i := len(succs) - 1; i >= 0; i-- {
				if e.visited.Add(edge{src: ins, dst: succs[i]}) {
					e.push(succs[i], stack.Copy(), locals.Copy())
				}
			}
			return nil
		}
		ins = ins.Next()
	}
}

// popOne pops a single slot and wires its producer into f.
func popOne(f *Frame, stack *Stack) (*Slot, error) {
	s, err := stack.Pop()
	if err != nil {
		return nil, err
	}
	f.addWrite(s.Producer)
	return s, nil
}

// popWideInto pops a wide pair and wires the producer once.
func popWideInto(f *Frame, stack *Stack) (*Slot, error) {
	s, err := stack.PopWide()
	if err != nil {
		return nil, err
	}
	f.addWrite(s.Producer)
	return s, nil
}

// popSilent pops one value of the given declared type without wiring a
// producer edge; callers wire writes themselves when pop order and operand
// order differ.
func popSilent(stack *Stack, desc string) (*Slot, error) {
	if descriptor.IsWide(desc) {
		return stack.PopWide()
	}
	return stack.Pop()
}

// popDesc pops one value of the given declared type, wide-aware.
func popDesc(f *Frame, stack *Stack, desc string) (*Slot, error) {
	if descriptor.IsWide(desc) {
		return popWideInto(f, stack)
	}
	return popOne(f, stack)
}

// pushDesc pushes a fresh slot of the given declared type produced by f.
func pushDesc(f *Frame, stack *Stack, desc string) *Slot {
	s := &Slot{Desc: desc, Producer: f, Initialized: true}
	if descriptor.IsWide(desc) {
		stack.PushWide(s)
	} else {
		stack.Push(s)
	}
	return s
}

// dupSlot copies a slot under a new producer, remembering the original so
// that aliasing writes (constructor initialization) reach every copy.
func dupSlot(f *Frame, s *Slot) *Slot {
	c := *s
	c.Producer = f
	c.origin = s
	return &c
}

// markInitialized flips the initialized flag on the slot and every aliased
// original it was copied from.
func markInitialized(s *Slot) {
	for ; s != nil; s = s.origin {
		s.Initialized = true
	}
}
