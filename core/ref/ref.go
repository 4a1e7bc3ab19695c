// Package ref provides named handles to classes, fields and methods that
// resolve lazily against a class pool. References into runtime classes that
// the pool never sees simply stay unresolved.
package ref

// Finder locates pool entities by name. It is implemented by the class pool;
// every lookup returns nil when the target is not in the pool.
type Finder interface {
	FindClass(name string) any
	FindField(owner, name, desc string) any
	FindMethod(owner, name, desc string) any
}

// ClassRef is a named handle to a class.
type ClassRef struct {
	Name string

	target any
}

func NewClassRef(name string) *ClassRef {
	return &ClassRef{Name: name}
}

// Resolve looks the class up in the pool and caches the link. Resolution
// failure is not an error; the ref stays name-only.
func (r *ClassRef) Resolve(pool Finder) {
	if r.target != nil || pool == nil {
		return
	}
	if c := pool.FindClass(r.Name); c != nil {
		r.target = c
	}
}

// Target returns the resolved pool entity, or nil.
func (r *ClassRef) Target() any { return r.target }

// Resolved reports whether the ref points at a live pool entity.
func (r *ClassRef) Resolved() bool { return r.target != nil }

// FieldRef is a named handle to a field.
type FieldRef struct {
	Owner string
	Name  string
	Desc  string

	target any
}

func NewFieldRef(owner, name, desc string) *FieldRef {
	return &FieldRef{Owner: owner, Name: name, Desc: desc}
}

func (r *FieldRef) Resolve(pool Finder) {
	if r.target != nil || pool == nil {
		return
	}
	if f := pool.FindField(r.Owner, r.Name, r.Desc); f != nil {
		r.target = f
	}
}

func (r *FieldRef) Target() any    { return r.target }
func (r *FieldRef) Resolved() bool { return r.target != nil }

// MethodRef is a named handle to a method.
type MethodRef struct {
	Owner string
	Name  string
	Desc  string

	target any
}

func NewMethodRef(owner, name, desc string) *MethodRef {
	return &MethodRef{Owner: owner, Name: name, Desc: desc}
}

func (r *MethodRef) Resolve(pool Finder) {
	if r.target != nil || pool == nil {
		return
	}
	if m := pool.FindMethod(r.Owner, r.Name, r.Desc); m != nil {
		r.target = m
	}
}

func (r *MethodRef) Target() any    { return r.target }
func (r *MethodRef) Resolved() bool { return r.target != nil }
