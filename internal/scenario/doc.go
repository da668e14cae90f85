// Package scenario provides read-only access to the scenario document: the
// nested key/value tree that path-based sources read their raw values from.
//
// A document is loaded once per run from YAML (or built directly from a map
// in tests) and is never mutated by the computation core. Lookups use dotted
// paths ("energy.production.p50") and return the raw subtree, which the cube
// builder then interprets as a scalar, a year-indexed series, or a
// percentile-keyed collection of either.
package scenario
