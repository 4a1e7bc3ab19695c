// Package remap renames classes and members across a pool. Only the
// reference rewrite is implemented here; descriptor rewriting and
// constant-pool compaction belong to the class writer.
package remap

import (
	"github.com/classflow/classflow/core/insn"
	"github.com/classflow/classflow/core/jclass"
)

// Mapping holds the rename tables. Member keys are owner.name:desc with the
// pre-rename owner.
type Mapping struct {
	Classes map[string]string
	Fields  map[string]string
	Methods map[string]string
}

func NewMapping() *Mapping {
	return &Mapping{
		Classes: make(map[string]string),
		Fields:  make(map[string]string),
		Methods: make(map[string]string),
	}
}

func (m *Mapping) class(name string) string {
	if to, ok := m.Classes[name]; ok {
		return to
	}
	return name
}

func memberKey(owner, name, desc string) string {
	return owner + "." + name + ":" + desc
}

// Apply rewrites every class, member and instruction reference in the pool
// according to the mapping. The pool must not be frozen mid-rename; callers
// re-run Init afterwards.
func Apply(pool *jclass.Pool, m *Mapping) {
	for _, c := range pool.Classes() {
		orig := c.Name
		c.Name = m.class(orig)
		if c.Super != nil {
			c.Super.Name = m.class(c.Super.Name)
		}
		for _, itf := range c.Interfaces {
			itf.Name = m.class(itf.Name)
		}
		for _, f := range c.Fields {
			if to, ok := m.Fields[memberKey(orig, f.Name, f.Desc)]; ok {
				f.Name = to
			}
		}
		for _, mm := range c.Methods {
			if to, ok := m.Methods[memberKey(orig, mm.Name, mm.Desc())]; ok {
				mm.Name = to
			}
			if mm.Code == nil {
				continue
			}
			for _, ins := range mm.Code.Instructions() {
				applyInsn(m, ins)
			}
			for _, tc := range mm.Code.TryCatches {
				if tc.Type != nil {
					tc.Type.Name = m.class(tc.Type.Name)
				}
			}
		}
	}
	pool.Reindex()
}

func applyInsn(m *Mapping, ins insn.Instruction) {
	switch v := ins.(type) {
	case *insn.TypeInsn:
		v.Class.Name = m.class(v.Class.Name)
	case *insn.FieldInsn:
		if to, ok := m.Fields[memberKey(v.Field.Owner, v.Field.Name, v.Field.Desc)]; ok {
			v.Field.Name = to
		}
		v.Field.Owner = m.class(v.Field.Owner)
	case *insn.MethodInsn:
		if to, ok := m.Methods[memberKey(v.Method.Owner, v.Method.Name, v.Method.Desc)]; ok {
			v.Method.Name = to
		}
		v.Method.Owner = m.class(v.Method.Owner)
	}
}
