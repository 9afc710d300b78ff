// Package merge reconciles independently generated chunk outputs into one
// document conforming to the target content type's schema.
package merge

import (
	"fmt"
	"sort"
	"strings"

	"funnelforge/internal/content"
)

// ChunkResult is the raw outcome of one chunk-generation call. Owned by the
// orchestrator for the duration of one job; not persisted.
type ChunkResult struct {
	Index   int
	ChunkID string
	Fields  content.Document
	Err     error
}

// Failed reports whether the chunk's generation call failed.
func (c ChunkResult) Failed() bool { return c.Err != nil }

// Result is the reconciled output of one merge: the merged document, the
// schema validation report, and the indices of chunks that failed.
type Result struct {
	Document     content.Document
	Report       content.Report
	FailedChunks []int
}

// OverlapError reports field names produced by more than one chunk. Overlap
// indicates a partition-plan violation, a configuration bug that retrying
// cannot fix, so the merge fails loudly instead of letting either value win.
type OverlapError struct {
	// Overlaps maps each offending field name to every chunk index that
	// produced it.
	Overlaps map[string][]int
}

func (e *OverlapError) Error() string {
	fields := make([]string, 0, len(e.Overlaps))
	for name := range e.Overlaps {
		fields = append(fields, name)
	}
	sort.Strings(fields)
	parts := make([]string, 0, len(fields))
	for _, name := range fields {
		parts = append(parts, fmt.Sprintf("%s (chunks %v)", name, e.Overlaps[name]))
	}
	return "partition overlap: " + strings.Join(parts, ", ")
}

// Merge unions the field maps of the successful chunks into one document and
// validates it against the content type's schema. Failed chunks contribute
// no fields; their indices are recorded for caller-driven retry. An empty
// document because every chunk failed is a legitimate terminal outcome, not
// an error here. Merge never retries.
func Merge(ct *content.Type, results []ChunkResult) (Result, error) {
	doc := make(content.Document)
	producers := make(map[string][]int)
	var failed []int
	for _, cr := range results {
		if cr.Failed() {
			failed = append(failed, cr.Index)
			continue
		}
		for name, val := range cr.Fields {
			producers[name] = append(producers[name], cr.Index)
			doc[name] = val
		}
	}

	overlaps := make(map[string][]int)
	for name, idxs := range producers {
		if len(idxs) > 1 {
			sort.Ints(idxs)
			overlaps[name] = idxs
		}
	}
	if len(overlaps) > 0 {
		return Result{FailedChunks: failed}, &OverlapError{Overlaps: overlaps}
	}

	return Result{
		Document:     doc,
		Report:       ct.Validate(doc),
		FailedChunks: failed,
	}, nil
}
