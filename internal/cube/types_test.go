package cube

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPercentileKey(t *testing.T) {
	assert.Equal(t, "P10", Percentile(10).Key())
	assert.Equal(t, "P50", Percentile(50).Key())
	assert.Equal(t, "P0", Percentile(0).Key())
}

func TestParsePercentile(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected Percentile
		ok       bool
	}{
		{name: "canonical key", input: "P50", expected: 50, ok: true},
		{name: "lowercase key", input: "p90", expected: 90, ok: true},
		{name: "bare integer", input: "10", expected: 10, ok: true},
		{name: "whitespace", input: " P75 ", expected: 75, ok: true},
		{name: "out of range", input: "P101", ok: false},
		{name: "negative", input: "-5", ok: false},
		{name: "not a number", input: "Pfifty", ok: false},
		{name: "empty", input: "", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pc, ok := ParsePercentile(tt.input)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.expected, pc)
			}
		})
	}
}

func TestBuildParamsValidate(t *testing.T) {
	tests := []struct {
		name    string
		params  BuildParams
		wantErr string
	}{
		{
			name:   "valid",
			params: BuildParams{Percentiles: []Percentile{10, 50, 90}, Primary: 50, StartYear: 1, EndYear: 25},
		},
		{
			name:    "empty percentile set",
			params:  BuildParams{Primary: 50, StartYear: 1, EndYear: 25},
			wantErr: "at least one percentile",
		},
		{
			name:    "percentile out of range",
			params:  BuildParams{Percentiles: []Percentile{10, 150}, Primary: 10, StartYear: 1, EndYear: 25},
			wantErr: "outside 0-100",
		},
		{
			name:    "duplicate percentile",
			params:  BuildParams{Percentiles: []Percentile{50, 50}, Primary: 50, StartYear: 1, EndYear: 25},
			wantErr: "duplicate percentile",
		},
		{
			name:    "primary not in set",
			params:  BuildParams{Percentiles: []Percentile{10, 90}, Primary: 50, StartYear: 1, EndYear: 25},
			wantErr: "primary percentile",
		},
		{
			name:    "inverted horizon",
			params:  BuildParams{Percentiles: []Percentile{50}, Primary: 50, StartYear: 10, EndYear: 5},
			wantErr: "before start year",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.params.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				assert.ErrorContains(t, err, tt.wantErr)
			}
		})
	}
}

func TestBuildParamsYears(t *testing.T) {
	params := BuildParams{Percentiles: []Percentile{50}, Primary: 50, StartYear: 3, EndYear: 6}
	assert.Equal(t, []int{3, 4, 5, 6}, params.Years())
}

func TestBuildParamsSortedPercentiles(t *testing.T) {
	params := BuildParams{Percentiles: []Percentile{90, 10, 50}}
	assert.Equal(t, []Percentile{10, 50, 90}, params.SortedPercentiles())
	// Sorting never mutates the declared order.
	assert.Equal(t, []Percentile{90, 10, 50}, params.Percentiles)
}

func TestFilterMatches(t *testing.T) {
	meta := SourceMetadata{CashflowGroup: "revenue", Category: "energy"}

	tests := []struct {
		name    string
		filter  Filter
		matches bool
	}{
		{name: "empty filter matches everything", filter: Filter{}, matches: true},
		{name: "group match", filter: Filter{CashflowGroup: "revenue"}, matches: true},
		{name: "group mismatch", filter: Filter{CashflowGroup: "cost"}, matches: false},
		{name: "category match", filter: Filter{Category: "energy"}, matches: true},
		{name: "both must match", filter: Filter{CashflowGroup: "revenue", Category: "pricing"}, matches: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.matches, tt.filter.Matches(meta))
		})
	}
}

func TestSourceDefinitionStage(t *testing.T) {
	assert.Equal(t, 0, SourceDefinition{Type: SourceDirect}.Stage())
	assert.Equal(t, 1, SourceDefinition{Type: SourceIndirect}.Stage())
	assert.Equal(t, 2, SourceDefinition{Type: SourceVirtual}.Stage())
}
