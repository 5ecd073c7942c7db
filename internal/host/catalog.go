package host

import (
	"fmt"
	"sort"

	"github.com/GriffinCanCode/moonbridge/internal/infrastructure/config"
	"github.com/GriffinCanCode/moonbridge/internal/surface"
)

// Catalog maps class names declared in configuration to class descriptors.
// Classes sharing a base share the base's descriptor, so the surface sees
// one class per name.
type Catalog struct {
	classes map[string]surface.Class
	names   []string
}

// NewCatalog builds the class chains described by decls. Bases must be
// declared in the same list.
func NewCatalog(decls []config.ClassSpec) (*Catalog, error) {
	byName := make(map[string]config.ClassSpec, len(decls))
	for _, decl := range decls {
		if decl.Name == "" {
			return nil, fmt.Errorf("catalog: class with empty name")
		}
		if _, dup := byName[decl.Name]; dup {
			return nil, fmt.Errorf("catalog: class %s declared twice", decl.Name)
		}
		byName[decl.Name] = decl
	}

	c := &Catalog{classes: make(map[string]surface.Class, len(decls))}
	visiting := make(map[string]bool)

	var build func(name string) (surface.Class, error)
	build = func(name string) (surface.Class, error) {
		if cls, ok := c.classes[name]; ok {
			return cls, nil
		}
		decl, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("catalog: unknown base %s", name)
		}
		if visiting[name] {
			return nil, fmt.Errorf("catalog: %s: %w", name, surface.ErrInheritanceCycle)
		}
		visiting[name] = true
		defer delete(visiting, name)

		var base surface.Class
		if decl.Base != "" {
			b, err := build(decl.Base)
			if err != nil {
				return nil, err
			}
			base = b
		}
		cls := surface.NewClass(name, base)
		c.classes[name] = cls
		return cls, nil
	}

	for _, decl := range decls {
		if _, err := build(decl.Name); err != nil {
			return nil, err
		}
		c.names = append(c.names, decl.Name)
	}
	sort.Strings(c.names)
	return c, nil
}

// Class returns the class declared as name.
func (c *Catalog) Class(name string) (surface.Class, bool) {
	cls, ok := c.classes[name]
	return cls, ok
}

// Names returns the declared class names in sorted order.
func (c *Catalog) Names() []string {
	return append([]string(nil), c.names...)
}

// Len returns the number of declared classes.
func (c *Catalog) Len() int { return len(c.names) }
