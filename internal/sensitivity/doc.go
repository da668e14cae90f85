// Package sensitivity re-evaluates a target metric at bounding percentile
// bands per input variable and ranks impact for tornado-style analysis.
//
// For one variable, every other input is held at the primary band while the
// variable moves to the lower and upper bounds; the spread between the two
// evaluations is the variable's impact. Running the analysis per candidate
// variable and sorting by descending absolute impact yields the tornado
// ranking, with ties broken by variable id for determinism.
package sensitivity
