package content

import "strings"

// FieldSpec describes one named field of a content type.
type FieldSpec struct {
	// Name is the canonical field name in the merged document.
	Name string `yaml:"name"`
	// SubAttr, when set, names the sub-attribute a mapping-valued field must
	// carry with non-empty text (e.g. "message" for an SMS, "script" for a
	// script step). When empty the field itself must be a non-empty string.
	SubAttr string `yaml:"sub_attr"`
	// Optional fields are part of the plan but do not fail validation when
	// absent.
	Optional bool `yaml:"optional"`
}

// Chunk is one partition-plan member: the subset of fields produced by one
// generation call.
type Chunk struct {
	ID     string   `yaml:"id"`
	Fields []string `yaml:"fields"`
}

// Type is one row of the content-type table: its schema (ordered field
// specs) plus its partition plan (ordered chunks with disjoint field sets).
type Type struct {
	Name   string      `yaml:"name"`
	Label  string      `yaml:"label"`
	Fields []FieldSpec `yaml:"fields"`
	Chunks []Chunk     `yaml:"chunks"`
}

// Report is the outcome of validating a document against a content type's
// schema. It is advisory: callers decide whether to reject, flag, or persist.
type Report struct {
	Valid      bool     `json:"valid"`
	Missing    []string `json:"missing_fields,omitempty"`
	Incomplete []string `json:"incomplete_fields,omitempty"`
	Unknown    []string `json:"unknown_fields,omitempty"`
}

// Validate checks doc against the type's schema. A required field is missing
// when absent entirely and incomplete when present without its designated
// non-empty sub-attribute (or, for string fields, empty). Fields outside the
// schema are reported as unknown. The document is never mutated.
func (t *Type) Validate(doc Document) Report {
	var rep Report
	declared := make(map[string]struct{}, len(t.Fields))
	for _, f := range t.Fields {
		declared[f.Name] = struct{}{}
		val, ok := doc[f.Name]
		if !ok {
			if !f.Optional {
				rep.Missing = append(rep.Missing, f.Name)
			}
			continue
		}
		if !fieldComplete(f, val) {
			rep.Incomplete = append(rep.Incomplete, f.Name)
		}
	}
	for name := range doc {
		if _, ok := declared[name]; !ok {
			rep.Unknown = append(rep.Unknown, name)
		}
	}
	rep.Valid = len(rep.Missing) == 0 && len(rep.Incomplete) == 0 && len(rep.Unknown) == 0
	return rep
}

func fieldComplete(f FieldSpec, val any) bool {
	if f.SubAttr == "" {
		s, ok := val.(string)
		return ok && strings.TrimSpace(s) != ""
	}
	var sub any
	switch m := val.(type) {
	case Document:
		sub = m[f.SubAttr]
	case map[string]any:
		sub = m[f.SubAttr]
	default:
		return false
	}
	s, ok := sub.(string)
	return ok && strings.TrimSpace(s) != ""
}

// FieldSpecFor returns the spec for the named field.
func (t *Type) FieldSpecFor(name string) (FieldSpec, bool) {
	for _, f := range t.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldSpec{}, false
}

// ChunkSpecs returns the field specs planned for one chunk, in plan order.
func (t *Type) ChunkSpecs(c Chunk) []FieldSpec {
	specs := make([]FieldSpec, 0, len(c.Fields))
	for _, name := range c.Fields {
		if spec, ok := t.FieldSpecFor(name); ok {
			specs = append(specs, spec)
		}
	}
	return specs
}
