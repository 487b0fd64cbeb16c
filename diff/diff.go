// Package diff computes the attribute-level difference between two versions
// of an object for update-type events.
//
// The engine reports which top-level keys changed and what they used to be.
// It never classifies changes as added, removed or modified; callers that
// want those buckets supply them (see event.Changes).
package diff

import (
	"encoding/json"
	"fmt"

	"github.com/google/go-cmp/cmp"
)

// Result is the outcome of Compute.
type Result struct {
	// Object is current, normalized to a JSON object.
	Object map[string]any

	// PreviousAttributes maps every changed key to its previous value.
	// Nil when no previous object was supplied.
	PreviousAttributes map[string]any

	// HasPrevious reports whether a previous object was supplied.
	HasPrevious bool
}

// Compute diffs current against previous. Both must encode to JSON objects.
// A nil previous is a passthrough: the result carries no previous attributes.
//
// A key is included in PreviousAttributes iff its value differs between the
// two objects under deep equality. Keys present on one side only count as
// differing; a key missing from previous maps to nil.
func Compute(current, previous any) (Result, error) {
	cur, err := Normalize(current)
	if err != nil {
		return Result{}, fmt.Errorf("diff: current: %w", err)
	}
	if previous == nil {
		return Result{Object: cur}, nil
	}
	prev, err := Normalize(previous)
	if err != nil {
		return Result{}, fmt.Errorf("diff: previous: %w", err)
	}

	return Result{
		Object:             cur,
		PreviousAttributes: Attributes(cur, prev),
		HasPrevious:        true,
	}, nil
}

// Attributes returns previous[k] for every key k in the union of both maps
// whose values are not deep-equal. The result is never nil.
func Attributes(current, previous map[string]any) map[string]any {
	out := make(map[string]any)
	for k, pv := range previous {
		cv, ok := current[k]
		if !ok || !cmp.Equal(cv, pv) {
			out[k] = pv
		}
	}
	for k := range current {
		if _, ok := previous[k]; !ok {
			out[k] = nil
		}
	}
	return out
}

// Normalize converts v into the generic JSON object form so values from
// typed structs and decoded maps compare equal. The result never aliases v.
func Normalize(v any) (map[string]any, error) {
	if m, ok := v.(map[string]any); ok {
		if cp, ok := clonePlain(m); ok {
			return cp.(map[string]any), nil
		}
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("not a JSON object: %w", err)
	}
	if out == nil {
		return nil, fmt.Errorf("not a JSON object: null")
	}
	return out, nil
}

// clonePlain deep-copies v if it holds only values json.Unmarshal would
// produce. It reports false otherwise.
func clonePlain(v any) (any, bool) {
	switch x := v.(type) {
	case nil, bool, float64, string:
		return x, true
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			c, ok := clonePlain(e)
			if !ok {
				return nil, false
			}
			out[i] = c
		}
		return out, true
	case map[string]any:
		if x == nil {
			return x, true
		}
		out := make(map[string]any, len(x))
		for k, e := range x {
			c, ok := clonePlain(e)
			if !ok {
				return nil, false
			}
			out[k] = c
		}
		return out, true
	default:
		return nil, false
	}
}
