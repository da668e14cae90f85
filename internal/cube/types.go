package cube

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Percentile identifies one Monte Carlo confidence band (0-100).
type Percentile int

// Key returns the canonical band key, e.g. "P50".
func (p Percentile) Key() string {
	return fmt.Sprintf("P%d", int(p))
}

// IsValid checks that the percentile lies in the 0-100 range.
func (p Percentile) IsValid() bool {
	return p >= 0 && p <= 100
}

// ParsePercentile parses a band key of the form "P50" or a bare integer.
func ParsePercentile(key string) (Percentile, bool) {
	trimmed := strings.TrimPrefix(strings.ToUpper(strings.TrimSpace(key)), "P")
	n, err := strconv.Atoi(trimmed)
	if err != nil {
		return 0, false
	}
	p := Percentile(n)
	return p, p.IsValid()
}

// DataPoint is the atomic time-series unit: one value for one project year.
type DataPoint struct {
	Year  int     `json:"year"`
	Value float64 `json:"value"`
}

// PercentileSeries carries one band's full year-indexed series.
type PercentileSeries struct {
	Percentile Percentile  `json:"percentile"`
	Points     []DataPoint `json:"points"`
}

// ValueAt returns the value for a given year.
func (s PercentileSeries) ValueAt(year int) (float64, bool) {
	for _, pt := range s.Points {
		if pt.Year == year {
			return pt.Value, true
		}
	}
	return 0, false
}

// SourceType partitions sources into the three resolution stages.
type SourceType string

const (
	// SourceDirect reads its raw value from a scenario document path.
	SourceDirect SourceType = "direct"
	// SourceIndirect reads a path and derives its series via multipliers.
	SourceIndirect SourceType = "indirect"
	// SourceVirtual has no path; its series is pure transformer output.
	SourceVirtual SourceType = "virtual"
)

// Operation names a time-series multiplier operation.
type Operation string

const (
	OpMultiply  Operation = "multiply"
	OpCompound  Operation = "compound"
	OpSimple    Operation = "simple"
	OpSummation Operation = "summation"
)

// Reference is a named pointer into the scenario document, resolved to a
// scalar or series before the operator engine runs.
type Reference struct {
	ID   string `yaml:"id" json:"id" validate:"required"`
	Path string `yaml:"path" json:"path" validate:"required"`
}

// Filter restricts a summation (or transformer input set) to cube entries
// whose metadata matches. Empty fields match everything.
type Filter struct {
	CashflowGroup string `yaml:"cashflow_group,omitempty" json:"cashflow_group,omitempty"`
	Category      string `yaml:"category,omitempty" json:"category,omitempty"`
}

// Matches reports whether a source's metadata satisfies the filter.
func (f Filter) Matches(meta SourceMetadata) bool {
	if f.CashflowGroup != "" && f.CashflowGroup != meta.CashflowGroup {
		return false
	}
	if f.Category != "" && f.Category != meta.Category {
		return false
	}
	return true
}

// IsZero reports whether the filter matches unconditionally.
func (f Filter) IsZero() bool {
	return f.CashflowGroup == "" && f.Category == ""
}

// MultiplierDefinition declares one operator in a source's multiplier chain.
// The operand is resolved by id: merged references first, then prior cube
// entries. Summation ignores the operand and reduces the filtered cube set.
type MultiplierDefinition struct {
	ID        string    `yaml:"id" json:"id" validate:"required"`
	Operation Operation `yaml:"operation" json:"operation" validate:"required,oneof=multiply compound simple summation"`
	Operand   string    `yaml:"operand,omitempty" json:"operand,omitempty"`
	BaseYear  int       `yaml:"base_year,omitempty" json:"base_year,omitempty"`
	Filter    *Filter   `yaml:"filter,omitempty" json:"filter,omitempty"`
}

// TransformerSpec names a registered transformer plus its typed parameters.
// Configuration carries names, never executable code.
type TransformerSpec struct {
	Name string            `yaml:"name" json:"name" validate:"required"`
	Args map[string]string `yaml:"args,omitempty" json:"args,omitempty"`
}

// SourceMetadata describes a source for grouping, display and export.
type SourceMetadata struct {
	Name          string `yaml:"name" json:"name"`
	CashflowGroup string `yaml:"cashflow_group,omitempty" json:"cashflow_group,omitempty"`
	Category      string `yaml:"category,omitempty" json:"category,omitempty"`
	Description   string `yaml:"description,omitempty" json:"description,omitempty"`
	Formatter     string `yaml:"formatter,omitempty" json:"formatter,omitempty"`
}

// SourceDefinition declares one named unit of input or derived data.
//
// Shape invariants, enforced at registry load:
//   - direct requires a path and declares no multipliers
//   - indirect requires both a path and a non-empty multiplier chain
//   - virtual forbids a path and requires a transformer
type SourceDefinition struct {
	ID             string                 `yaml:"id" json:"id" validate:"required"`
	Priority       int                    `yaml:"priority" json:"priority"`
	Type           SourceType             `yaml:"type" json:"type" validate:"required,oneof=direct indirect virtual"`
	Path           string                 `yaml:"path,omitempty" json:"path,omitempty"`
	HasPercentiles bool                   `yaml:"has_percentiles" json:"has_percentiles"`
	References     []Reference            `yaml:"references,omitempty" json:"references,omitempty"`
	Transformer    *TransformerSpec       `yaml:"transformer,omitempty" json:"transformer,omitempty"`
	Multipliers    []MultiplierDefinition `yaml:"multipliers,omitempty" json:"multipliers,omitempty"`
	Metadata       SourceMetadata         `yaml:"metadata" json:"metadata"`
}

// Stage returns the resolution stage index for the source type. Lower stages
// resolve first; later stages may reference their processed output.
func (d SourceDefinition) Stage() int {
	switch d.Type {
	case SourceDirect:
		return 0
	case SourceIndirect:
		return 1
	case SourceVirtual:
		return 2
	default:
		return 3
	}
}

// AppliedMultiplier is the audit record for one multiplier application. The
// operand values are captured per percentile band, since operands may carry
// their own P10/P50/P90 spread.
type AppliedMultiplier struct {
	ID         string             `json:"id"`
	Operation  Operation          `json:"operation"`
	Values     []PercentileSeries `json:"values"`
	BaseYear   int                `json:"base_year"`
	Cumulative bool               `json:"cumulative"`
}

// Audit traces a processed source back to every operation and dependency
// that produced it.
type Audit struct {
	AppliedMultipliers []AppliedMultiplier `json:"applied_multipliers"`
	DependencyChain    []string            `json:"dependency_chain"`
}

// ProcessedSource is one cube entry: a source's fully expanded per-band
// series plus metadata and audit trail. Entries are immutable once built and
// exclusively owned by the cube.
type ProcessedSource struct {
	ID       string             `json:"id"`
	Series   []PercentileSeries `json:"percentile_source"`
	Metadata SourceMetadata     `json:"metadata"`
	Audit    Audit              `json:"audit"`
}

// SeriesFor returns the series for one percentile band.
func (p *ProcessedSource) SeriesFor(pc Percentile) (PercentileSeries, bool) {
	for _, s := range p.Series {
		if s.Percentile == pc {
			return s, true
		}
	}
	return PercentileSeries{}, false
}

// BuildParams carries the per-run expansion parameters: the available
// percentile set, the designated primary band, and the project horizon that
// Fixed expansion populates.
type BuildParams struct {
	Percentiles []Percentile `json:"percentiles" validate:"required,min=1"`
	Primary     Percentile   `json:"primary"`
	StartYear   int          `json:"start_year" validate:"required"`
	EndYear     int          `json:"end_year" validate:"required"`
}

// Validate checks the parameter set before any scenario-specific work.
func (p BuildParams) Validate() error {
	if len(p.Percentiles) == 0 {
		return fmt.Errorf("at least one percentile is required")
	}
	seen := make(map[Percentile]bool, len(p.Percentiles))
	for _, pc := range p.Percentiles {
		if !pc.IsValid() {
			return fmt.Errorf("percentile %d outside 0-100", int(pc))
		}
		if seen[pc] {
			return fmt.Errorf("duplicate percentile %s", pc.Key())
		}
		seen[pc] = true
	}
	if !seen[p.Primary] {
		return fmt.Errorf("primary percentile %s not in available set", p.Primary.Key())
	}
	if p.EndYear < p.StartYear {
		return fmt.Errorf("end year %d before start year %d", p.EndYear, p.StartYear)
	}
	return nil
}

// HasPercentile reports whether a band is in the available set.
func (p BuildParams) HasPercentile(pc Percentile) bool {
	for _, available := range p.Percentiles {
		if available == pc {
			return true
		}
	}
	return false
}

// Years returns the inclusive project horizon in ascending order.
func (p BuildParams) Years() []int {
	years := make([]int, 0, p.EndYear-p.StartYear+1)
	for y := p.StartYear; y <= p.EndYear; y++ {
		years = append(years, y)
	}
	return years
}

// SortedPercentiles returns the available bands in ascending order.
func (p BuildParams) SortedPercentiles() []Percentile {
	sorted := make([]Percentile, len(p.Percentiles))
	copy(sorted, p.Percentiles)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	return sorted
}
