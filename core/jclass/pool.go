package jclass

import (
	"errors"
	"fmt"

	"github.com/classflow/classflow/core/insn"
	"github.com/classflow/classflow/core/ref"
	"github.com/classflow/classflow/log"
)

var (
	// ErrDuplicateClass reports an Add for a name already in the pool.
	ErrDuplicateClass = errors.New("duplicate class")
	// ErrUnknownClass reports a Remove for a class not in the pool.
	ErrUnknownClass = errors.New("unknown class")
)

// Pool is an insertion-ordered collection of classes keyed by internal name.
// A pool is mutable until Init resolves references and builds the subtype
// graph; after that it is effectively frozen and safe for concurrent
// readers.
type Pool struct {
	classes []*Class
	byName  map[string]*Class
	frozen  bool
}

func NewPool() *Pool {
	return &Pool{byName: make(map[string]*Class)}
}

// Add parses class bytes and inserts the resulting class. The insertion
// order is preserved for deterministic jar output.
func (p *Pool) Add(data []byte) (*Class, error) {
	c, err := parseClass(data)
	if err != nil {
		return nil, err
	}
	return c, p.AddClass(c)
}

// AddClass inserts an already-built class.
func (p *Pool) AddClass(c *Class) error {
	if _, ok := p.byName[c.Name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateClass, c.Name)
	}
	c.pool = p
	p.byName[c.Name] = c
	p.classes = append(p.classes, c)
	return nil
}

// Remove deletes the class from the pool.
func (p *Pool) Remove(c *Class) error {
	if got, ok := p.byName[c.Name]; !ok || got != c {
		return fmt.Errorf("%w: %s", ErrUnknownClass, c.Name)
	}
	delete(p.byName, c.Name)
	for i, have := range p.classes {
		if have == c {
			p.classes = append(p.classes[:i], p.classes[i+1:]...)
			break
		}
	}
	c.pool = nil
	return nil
}

// Reindex rebuilds the name index after classes were renamed in place.
func (p *Pool) Reindex() {
	index := make(map[string]*Class, len(p.classes))
	for _, c := range p.classes {
		index[c.Name] = c
	}
	p.byName = index
}

// Get returns the class with the given internal name, or nil.
func (p *Pool) Get(name string) *Class { return p.byName[name] }

// Classes returns the classes in insertion order.
func (p *Pool) Classes() []*Class { return p.classes }

// Size returns the number of classes in the pool.
func (p *Pool) Size() int { return len(p.classes) }

// Init resolves every reference against the pool and builds the hierarchy
// back-links (children, implementers). References to classes outside the
// pool stay unresolved, that is not an error.
func (p *Pool) Init() {
	if p.frozen {
		return
	}
	for _, c := range p.classes {
		p.resolveClass(c)
	}
	for _, c := range p.classes {
		if c.Super != nil {
			if parent, ok := c.Super.Target().(*Class); ok {
				parent.Children = append(parent.Children, c)
			}
		}
		for _, itf := range c.Interfaces {
			if target, ok := itf.Target().(*Class); ok {
				target.Implementers = append(target.Implementers, c)
			}
		}
	}
	p.frozen = true
	log.Debug("class pool initialized", "classes", len(p.classes))
}

func (p *Pool) resolveClass(c *Class) {
	if c.Super != nil {
		c.Super.Resolve(p)
	}
	for _, itf := range c.Interfaces {
		itf.Resolve(p)
	}
	for _, m := range c.Methods {
		if m.Code == nil {
			continue
		}
		for _, ins := range m.Code.Instructions() {
			switch v := ins.(type) {
			case *insn.TypeInsn:
				v.Class.Resolve(p)
			case *insn.FieldInsn:
				v.Field.Resolve(p)
			case *insn.MethodInsn:
				v.Method.Resolve(p)
			}
		}
		for _, tc := range m.Code.TryCatches {
			if tc.Type != nil {
				tc.Type.Resolve(p)
			}
		}
	}
}

// FindClass implements ref.Finder.
func (p *Pool) FindClass(name string) any {
	if c := p.Get(name); c != nil {
		return c
	}
	return nil
}

// FindField implements ref.Finder.
func (p *Pool) FindField(owner, name, desc string) any {
	c := p.Get(owner)
	if c == nil {
		return nil
	}
	if f := c.Field(name, desc); f != nil {
		return f
	}
	return nil
}

// FindMethod implements ref.Finder.
func (p *Pool) FindMethod(owner, name, desc string) any {
	c := p.Get(owner)
	if c == nil {
		return nil
	}
	if m := c.Method(name, desc); m != nil {
		return m
	}
	return nil
}

var _ ref.Finder = (*Pool)(nil)
