package metrics

import (
	"fmt"
	"time"

	"windrisk/internal/cube"
)

// Method names an aggregation strategy.
type Method string

const (
	MethodSum          Method = "sum"
	MethodNPV          Method = "npv"
	MethodMean         Method = "mean"
	MethodMin          Method = "min"
	MethodMax          Method = "max"
	MethodFirst        Method = "first"
	MethodLast         Method = "last"
	MethodWeightedMean Method = "weighted_mean"

	// Derived methods operate on dependency metric values instead of
	// source series.
	MethodRatio      Method = "ratio"
	MethodDifference Method = "difference"
)

// IsDerived reports whether the method consumes metric dependencies rather
// than source series.
func (m Method) IsDerived() bool {
	return m == MethodRatio || m == MethodDifference
}

// YearRange restricts aggregation to an inclusive year window. A zero bound
// leaves that side open.
type YearRange struct {
	From int `yaml:"from,omitempty" json:"from,omitempty"`
	To   int `yaml:"to,omitempty" json:"to,omitempty"`
}

// Contains reports whether a year falls inside the range.
func (r YearRange) Contains(year int) bool {
	if r.From != 0 && year < r.From {
		return false
	}
	if r.To != 0 && year > r.To {
		return false
	}
	return true
}

// Options tunes an aggregation strategy.
type Options struct {
	Years        *YearRange      `yaml:"years,omitempty" json:"years,omitempty"`
	DiscountRate float64         `yaml:"discount_rate,omitempty" json:"discount_rate,omitempty"`
	Weights      map[int]float64 `yaml:"weights,omitempty" json:"weights,omitempty"`
}

// Definition declares one metric: its inputs, strategy and display format.
// Inputs are either explicit source ids, a metadata filter over the cube, or
// dependency metric keys for derived methods.
type Definition struct {
	Key       string       `yaml:"key" json:"key" validate:"required"`
	Name      string       `yaml:"name" json:"name"`
	Method    Method       `yaml:"method" json:"method" validate:"required"`
	Sources   []string     `yaml:"sources,omitempty" json:"sources,omitempty"`
	Filter    *cube.Filter `yaml:"filter,omitempty" json:"filter,omitempty"`
	DependsOn []string     `yaml:"depends_on,omitempty" json:"depends_on,omitempty"`
	Options   Options      `yaml:"options,omitempty" json:"options,omitempty"`
	Format    string       `yaml:"format,omitempty" json:"format,omitempty"`
}

// ResultMeta records how a result was produced.
type ResultMeta struct {
	CalculationMethod Method          `json:"calculation_method"`
	Percentile        cube.Percentile `json:"percentile"`
	InputSources      []string        `json:"input_sources"`
	ComputationTime   time.Duration   `json:"computation_time"`
}

// Result is one computed metric value for one band. A nil Value with Err set
// means the metric is unavailable; it is recovered locally and propagates as
// unavailable to dependents.
type Result struct {
	Value        *float64   `json:"value"`
	DisplayValue string     `json:"display_value"`
	Err          string     `json:"error,omitempty"`
	Metadata     ResultMeta `json:"metadata"`
}

// Available reports whether the result carries a usable value.
func (r Result) Available() bool {
	return r.Err == "" && r.Value != nil
}

// formatValue renders the display value for a format tag.
func formatValue(value float64, format string) string {
	switch format {
	case "currency":
		return fmt.Sprintf("%.2f", value)
	case "percent":
		return fmt.Sprintf("%.2f%%", value*100)
	case "ratio":
		return fmt.Sprintf("%.3fx", value)
	default:
		return fmt.Sprintf("%.4f", value)
	}
}
