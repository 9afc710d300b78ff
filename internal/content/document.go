// Package content defines the content-type table shared by the generation
// pipeline: per-type schemas, partition plans, and the canonical document
// hash used for change detection.
package content

// Document is one generated content section set: canonical field name to
// generated value. Values are strings or nested objects depending on the
// field's schema.
type Document map[string]any

// Clone returns a shallow copy of the document's top level.
func (d Document) Clone() Document {
	if d == nil {
		return nil
	}
	out := make(Document, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

// FieldNames returns the document's field names in unspecified order.
func (d Document) FieldNames() []string {
	names := make([]string, 0, len(d))
	for k := range d {
		names = append(names, k)
	}
	return names
}
