// Package metrics reduces cube time series into scalar project-finance
// metrics per percentile band.
//
// Each metric declares an aggregation strategy (sum, npv, mean, min, max,
// first, last, weighted_mean) over input sources, or derives from other
// metrics (ratio, difference) so analytics like DSCR build on foundational
// metrics instead of re-deriving from raw sources. A metric whose dependency
// is missing or errored produces a Result with Err set and a nil Value,
// never a panic; callers must treat nil as unavailable, not zero.
//
// Aggregation runs independently per band; cross-band comparison belongs to
// the sensitivity package.
package metrics
