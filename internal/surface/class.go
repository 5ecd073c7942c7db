package surface

import (
	"reflect"
)

// Class is a managed class identity. Implementations must be comparable,
// since classes key the registry.
type Class interface {
	// FullName is the fully-qualified name handed to the engine.
	FullName() string
	// Base returns the immediate managed base class, or nil when the class
	// derives directly from the universal root.
	Base() Class
}

// ClassInfo is an explicitly described class.
type ClassInfo struct {
	name string
	base Class
}

// NewClass describes a class named name deriving from base. A nil base
// makes it a root class.
func NewClass(name string, base Class) *ClassInfo {
	return &ClassInfo{name: name, base: base}
}

func (c *ClassInfo) FullName() string { return c.name }

func (c *ClassInfo) Base() Class {
	if isNil(c.base) {
		return nil
	}
	return c.base
}

func (c *ClassInfo) String() string { return c.name }

// goType adapts a Go struct type. The base of a struct is the type of its
// first field when that field is embedded and is itself a struct (or a
// pointer to one).
type goType struct {
	t reflect.Type
}

// TypeOf returns the class of v's dynamic type. Pointers are dereferenced,
// so TypeOf(Circle{}) and TypeOf(&Circle{}) are the same class.
func TypeOf(v any) Class {
	if v == nil {
		return nil
	}
	return ClassOf(reflect.TypeOf(v))
}

// ClassOf returns the class of t.
func ClassOf(t reflect.Type) Class {
	if t == nil {
		return nil
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return goType{t: t}
}

func (g goType) FullName() string {
	if g.t.Name() == "" || g.t.PkgPath() == "" {
		return g.t.String()
	}
	return g.t.PkgPath() + "." + g.t.Name()
}

func (g goType) Base() Class {
	if g.t.Kind() != reflect.Struct || g.t.NumField() == 0 {
		return nil
	}
	f := g.t.Field(0)
	if !f.Anonymous {
		return nil
	}
	ft := f.Type
	if ft.Kind() == reflect.Pointer {
		ft = ft.Elem()
	}
	if ft.Kind() != reflect.Struct {
		return nil
	}
	return goType{t: ft}
}

func (g goType) String() string { return g.FullName() }

// Type returns the underlying Go type.
func (g goType) Type() reflect.Type { return g.t }

// isNil reports whether c is nil or a typed nil pointer.
func isNil(c Class) bool {
	if c == nil {
		return true
	}
	v := reflect.ValueOf(c)
	return v.Kind() == reflect.Pointer && v.IsNil()
}
