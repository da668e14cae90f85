// Package cube implements the resolution engine that turns a declarative
// source registry plus a scenario document into a materialized, queryable
// cube of percentile-indexed time series.
//
// # Core Components
//
//   - types.go: percentile bands, data points, source and multiplier
//     definitions, processed sources and their audit trail
//   - registry.go: registry loading, schema validation and dependency-ordered
//     resolution (topological sort with the direct/indirect/virtual stages
//     and declared priority as tie-break)
//   - value.go: interpretation of raw scenario values (scalar, year series,
//     percentile-keyed collections)
//   - reference.go: global and source-local reference resolution
//   - operators.go: time-series multiplier operations (multiply, compound,
//     simple, summation) and Fixed percentile expansion
//   - transformer.go: the named transformer plugin table for virtual sources
//   - builder.go: the staged resolution pass producing a cube
//   - store.go: the read-only cube store and its query surface
//
// A cube is immutable once built. Rebuilds triggered by scenario edits or
// percentile-set changes produce a fresh cube that replaces the previous one
// wholesale; the store never patches entries in place.
package cube
