package content

import (
	_ "embed"
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"
)

//go:embed plans.yaml
var plansYAML []byte

// Registry holds the content-type table. Adding a new content type is a new
// row in plans.yaml, consumed uniformly by the merger and the orchestrator.
type Registry struct {
	types map[string]*Type
	order []string
}

type plansFile struct {
	Types []*Type `yaml:"types"`
}

// LoadRegistry parses and verifies a content-type table.
func LoadRegistry(raw []byte) (*Registry, error) {
	var file plansFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse content plans: %w", err)
	}
	reg := &Registry{types: make(map[string]*Type, len(file.Types))}
	for _, t := range file.Types {
		if t.Name == "" {
			return nil, fmt.Errorf("content type with empty name")
		}
		if _, ok := reg.types[t.Name]; ok {
			return nil, fmt.Errorf("content type %q declared twice", t.Name)
		}
		if err := verifyType(t); err != nil {
			return nil, fmt.Errorf("content type %q: %w", t.Name, err)
		}
		reg.types[t.Name] = t
		reg.order = append(reg.order, t.Name)
	}
	return reg, nil
}

// MustRegistry loads the embedded content-type table and panics on error.
// The table is static configuration compiled into the binary; a broken table
// is a build defect, not a runtime condition.
func MustRegistry() *Registry {
	reg, err := LoadRegistry(plansYAML)
	if err != nil {
		panic(err)
	}
	return reg
}

// Type returns the named content type.
func (r *Registry) Type(name string) (*Type, error) {
	t, ok := r.types[name]
	if !ok {
		return nil, fmt.Errorf("unknown content type %q", name)
	}
	return t, nil
}

// Has reports whether the named content type is declared.
func (r *Registry) Has(name string) bool {
	_, ok := r.types[name]
	return ok
}

// Names returns the declared content type names in declaration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// verifyType checks the static invariants of one table row: chunk field sets
// reference declared fields, are pairwise disjoint, and together cover every
// declared field.
func verifyType(t *Type) error {
	if len(t.Fields) == 0 {
		return fmt.Errorf("no fields declared")
	}
	if len(t.Chunks) == 0 {
		return fmt.Errorf("no chunks declared")
	}
	declared := make(map[string]struct{}, len(t.Fields))
	for _, f := range t.Fields {
		if _, ok := declared[f.Name]; ok {
			return fmt.Errorf("field %q declared twice", f.Name)
		}
		declared[f.Name] = struct{}{}
	}
	owner := make(map[string]string, len(t.Fields))
	for _, c := range t.Chunks {
		if c.ID == "" {
			return fmt.Errorf("chunk with empty id")
		}
		if len(c.Fields) == 0 {
			return fmt.Errorf("chunk %q has no fields", c.ID)
		}
		for _, name := range c.Fields {
			if _, ok := declared[name]; !ok {
				return fmt.Errorf("chunk %q references undeclared field %q", c.ID, name)
			}
			if prev, ok := owner[name]; ok {
				return fmt.Errorf("field %q assigned to chunks %q and %q", name, prev, c.ID)
			}
			owner[name] = c.ID
		}
	}
	var uncovered []string
	for _, f := range t.Fields {
		if _, ok := owner[f.Name]; !ok {
			uncovered = append(uncovered, f.Name)
		}
	}
	if len(uncovered) > 0 {
		sort.Strings(uncovered)
		return fmt.Errorf("fields not covered by any chunk: %v", uncovered)
	}
	return nil
}
