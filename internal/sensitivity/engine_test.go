package sensitivity

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"windrisk/internal/cube"
	"windrisk/internal/metrics"
	"windrisk/internal/scenario"
)

// fixture builds a cube with two percentile-spread variables of different
// magnitudes and an aggregator summing both, so impacts are predictable.
func fixture(t *testing.T) (*cube.Cube, *metrics.Aggregator) {
	t.Helper()

	reg := &cube.Registry{Sources: []cube.SourceDefinition{
		{
			ID:             "wind",
			Type:           cube.SourceDirect,
			Path:           "project.wind",
			HasPercentiles: true,
			Metadata:       cube.SourceMetadata{Name: "Wind", CashflowGroup: "revenue"},
		},
		{
			ID:             "price",
			Type:           cube.SourceDirect,
			Path:           "project.price",
			HasPercentiles: true,
			Metadata:       cube.SourceMetadata{Name: "Price", CashflowGroup: "revenue"},
		},
		{
			ID:       "fixed_cost",
			Type:     cube.SourceDirect,
			Path:     "project.fixedCost",
			Metadata: cube.SourceMetadata{Name: "Fixed Cost", CashflowGroup: "cost"},
		},
	}}

	doc, err := scenario.Parse([]byte(`
project:
  wind:
    P10: 140
    P50: 100
    P90: 70
  price:
    P10: 110
    P50: 100
    P90: 95
  fixedCost: 10
`))
	require.NoError(t, err)

	params := cube.BuildParams{Percentiles: []cube.Percentile{10, 50, 90}, Primary: 50, StartYear: 1, EndYear: 1}
	c, buildErr := cube.NewBuilder(nil).Build(context.Background(), reg, doc, params)
	require.NoError(t, buildErr)
	require.Empty(t, c.Failures())

	agg, err := metrics.NewAggregator([]metrics.Definition{
		{Key: "revenue", Method: metrics.MethodSum, Filter: &cube.Filter{CashflowGroup: "revenue"}},
	}, nil)
	require.NoError(t, err)

	return c, agg
}

func TestAnalyze(t *testing.T) {
	c, agg := fixture(t)
	engine := NewEngine(agg, nil)

	result, err := engine.Analyze(context.Background(), c, "revenue", "wind", Range{Lower: 90, Upper: 10})
	require.NoError(t, err)

	assert.Equal(t, "revenue", result.MetricKey)
	assert.Equal(t, "wind", result.VariableID)

	// Lower: wind at P90 (70) + price at primary (100) = 170.
	// Upper: wind at P10 (140) + price at primary (100) = 240.
	require.NotNil(t, result.Values.Lower)
	assert.InDelta(t, 170, *result.Values.Lower, 1e-9)
	require.NotNil(t, result.Values.Upper)
	assert.InDelta(t, 240, *result.Values.Upper, 1e-9)
	require.NotNil(t, result.Values.Baseline)
	assert.InDelta(t, 200, *result.Values.Baseline, 1e-9)

	assert.InDelta(t, 70, result.Impact.Absolute, 1e-9)
	assert.InDelta(t, 70.0/170.0, result.Impact.Percentage, 1e-9)
	assert.InDelta(t, 70.0/200.0, result.Impact.Normalized, 1e-9)
}

func TestAnalyzeSwappedBoundsNegatesImpact(t *testing.T) {
	c, agg := fixture(t)
	engine := NewEngine(agg, nil)

	forward, err := engine.Analyze(context.Background(), c, "revenue", "wind", Range{Lower: 90, Upper: 10})
	require.NoError(t, err)
	backward, err := engine.Analyze(context.Background(), c, "revenue", "wind", Range{Lower: 10, Upper: 90})
	require.NoError(t, err)

	assert.InDelta(t, -forward.Impact.Absolute, backward.Impact.Absolute, 1e-9)
}

func TestAnalyzeInvalidBand(t *testing.T) {
	c, agg := fixture(t)
	engine := NewEngine(agg, nil)

	_, err := engine.Analyze(context.Background(), c, "revenue", "wind", Range{Lower: 25, Upper: 10})

	var invalid *InvalidInputError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "wind", invalid.VariableID)
	assert.Equal(t, cube.Percentile(25), invalid.Percentile)
}

func TestAnalyzeUnknownVariable(t *testing.T) {
	c, agg := fixture(t)
	engine := NewEngine(agg, nil)

	_, err := engine.Analyze(context.Background(), c, "revenue", "ghost", Range{Lower: 90, Upper: 10})
	assert.ErrorContains(t, err, "not in cube")
}

func TestTornadoRanking(t *testing.T) {
	c, agg := fixture(t)
	engine := NewEngine(agg, nil)

	results, err := engine.Tornado(context.Background(), c, "revenue",
		[]string{"price", "wind"}, Range{Lower: 90, Upper: 10})
	require.NoError(t, err)
	require.Len(t, results, 2)

	// Wind swings 70, price swings 15: descending absolute impact.
	assert.Equal(t, "wind", results[0].VariableID)
	assert.Equal(t, "price", results[1].VariableID)
	assert.Greater(t, results[0].Impact.Absolute, results[1].Impact.Absolute)
}

func TestTornadoTieBreakByVariableID(t *testing.T) {
	c, agg := fixture(t)
	engine := NewEngine(agg, nil)

	// A degenerate range makes every impact zero, forcing the tie-break.
	results, err := engine.Tornado(context.Background(), c, "revenue",
		[]string{"wind", "price"}, Range{Lower: 50, Upper: 50})
	require.NoError(t, err)
	require.Len(t, results, 2)

	// Identical (zero) impacts rank by variable id.
	assert.InDelta(t, 0, results[0].Impact.Absolute, 1e-9)
	assert.InDelta(t, 0, results[1].Impact.Absolute, 1e-9)
	assert.Equal(t, "price", results[0].VariableID)
	assert.Equal(t, "wind", results[1].VariableID)
}

func TestTornadoInvalidBandAborts(t *testing.T) {
	c, agg := fixture(t)
	engine := NewEngine(agg, nil)

	_, err := engine.Tornado(context.Background(), c, "revenue",
		[]string{"wind", "price"}, Range{Lower: 25, Upper: 10})

	var invalid *InvalidInputError
	assert.ErrorAs(t, err, &invalid)
}

func TestTornadoSkipsUnknownVariables(t *testing.T) {
	c, agg := fixture(t)
	engine := NewEngine(agg, nil)

	results, err := engine.Tornado(context.Background(), c, "revenue",
		[]string{"wind", "ghost"}, Range{Lower: 90, Upper: 10})
	require.NoError(t, err)

	// The unknown variable is skipped, not fatal.
	require.Len(t, results, 1)
	assert.Equal(t, "wind", results[0].VariableID)
}

func TestTornadoAllVariablesFail(t *testing.T) {
	c, agg := fixture(t)
	engine := NewEngine(agg, nil)

	_, err := engine.Tornado(context.Background(), c, "revenue",
		[]string{"ghost1", "ghost2"}, Range{Lower: 90, Upper: 10})
	assert.Error(t, err)
}
