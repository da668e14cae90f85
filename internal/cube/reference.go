package cube

import (
	"windrisk/internal/scenario"
)

// ReferenceTable holds resolved reference values keyed by reference id.
type ReferenceTable map[string]RawValue

// ResolveReference resolves one named reference against the scenario
// document. Pure: the document is never mutated and resolution has no other
// side effects.
func ResolveReference(sourceID string, ref Reference, doc *scenario.Document) (RawValue, error) {
	raw, ok := doc.Lookup(ref.Path)
	if !ok {
		return RawValue{}, &ReferenceNotFoundError{SourceID: sourceID, ReferenceID: ref.ID, Path: ref.Path}
	}
	value, err := ParseRawValue(raw)
	if err != nil {
		return RawValue{}, &ReferenceNotFoundError{SourceID: sourceID, ReferenceID: ref.ID, Path: ref.Path}
	}
	return value, nil
}

// mergeReferences resolves the global scope then the source-local scope into
// a single table. Local references shadow globals on id collision. The first
// unresolvable reference aborts resolution of the owning source.
func mergeReferences(sourceID string, global, local []Reference, doc *scenario.Document) (ReferenceTable, error) {
	table := make(ReferenceTable, len(global)+len(local))
	for _, ref := range global {
		value, err := ResolveReference(sourceID, ref, doc)
		if err != nil {
			return nil, err
		}
		table[ref.ID] = value
	}
	for _, ref := range local {
		value, err := ResolveReference(sourceID, ref, doc)
		if err != nil {
			return nil, err
		}
		table[ref.ID] = value
	}
	return table, nil
}
