package cube

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"windrisk/internal/scenario"
)

// windFarmRegistry declares a small but representative project: a direct
// percentile-spread energy source, an indirect price source with compound
// escalation, a direct cost series, and virtual aggregates on top.
func windFarmRegistry() *Registry {
	return &Registry{
		Sources: []SourceDefinition{
			{
				ID:             "energy",
				Type:           SourceDirect,
				Path:           "project.base.energyProduction",
				HasPercentiles: true,
				Metadata:       SourceMetadata{Name: "Energy Production", CashflowGroup: "revenue", Category: "energy"},
			},
			{
				ID:   "price",
				Type: SourceIndirect,
				Path: "project.base.basePrice",
				References: []Reference{
					{ID: "inflation", Path: "project.rates.inflation"},
				},
				Multipliers: []MultiplierDefinition{
					{ID: "escalation", Operation: OpCompound, Operand: "inflation", BaseYear: 1},
				},
				Metadata: SourceMetadata{Name: "Energy Price", Category: "pricing"},
			},
			{
				ID:       "opex",
				Type:     SourceDirect,
				Path:     "project.base.operatingCost",
				Metadata: SourceMetadata{Name: "Operating Cost", CashflowGroup: "cost"},
			},
			{
				ID:          "total_cost",
				Type:        SourceVirtual,
				Transformer: &TransformerSpec{Name: "group_sum", Args: map[string]string{"cashflow_group": "cost"}},
				Metadata:    SourceMetadata{Name: "Total Cost", Category: "aggregate"},
			},
		},
	}
}

func windFarmScenario(t *testing.T) *scenario.Document {
	t.Helper()
	doc, err := scenario.Parse([]byte(`
project:
  base:
    energyProduction:
      P10: 1200
      P50: 1000
      P90: 850
    basePrice: 50
    operatingCost: 20
  rates:
    inflation: 0.02
`))
	require.NoError(t, err)
	return doc
}

func testParams() BuildParams {
	return BuildParams{Percentiles: []Percentile{10, 50, 90}, Primary: 50, StartYear: 1, EndYear: 3}
}

func TestBuildEndToEnd(t *testing.T) {
	c, err := NewBuilder(nil).Build(context.Background(), windFarmRegistry(), windFarmScenario(t), testParams())
	require.NoError(t, err)
	assert.Equal(t, 4, c.Len())
	assert.Empty(t, c.Failures())

	// Percentile spread expands per band.
	energy, ok := c.Source("energy")
	require.True(t, ok)
	p10, ok := energy.SeriesFor(10)
	require.True(t, ok)
	assert.Equal(t, 1200.0, p10.Points[0].Value)
	p90, ok := energy.SeriesFor(90)
	require.True(t, ok)
	assert.Equal(t, 850.0, p90.Points[0].Value)

	// Fixed base price escalated at 2% compound from year 1, identically in
	// every band.
	price, ok := c.Source("price")
	require.True(t, ok)
	for _, pc := range []Percentile{10, 50, 90} {
		series, ok := price.SeriesFor(pc)
		require.True(t, ok)
		assert.InDelta(t, 50, series.Points[0].Value, 1e-9)
		assert.InDelta(t, 51, series.Points[1].Value, 1e-9)
		assert.InDelta(t, 52.02, series.Points[2].Value, 1e-9)
	}

	// Virtual aggregate sums the cost group.
	totalCost, ok := c.Source("total_cost")
	require.True(t, ok)
	series, ok := totalCost.SeriesFor(50)
	require.True(t, ok)
	assert.Equal(t, 20.0, series.Points[0].Value)
}

func TestBuildAuditTrail(t *testing.T) {
	c, err := NewBuilder(nil).Build(context.Background(), windFarmRegistry(), windFarmScenario(t), testParams())
	require.NoError(t, err)

	price, ok := c.Source("price")
	require.True(t, ok)

	// One audit record per declared multiplier, in declaration order.
	require.Len(t, price.Audit.AppliedMultipliers, 1)
	applied := price.Audit.AppliedMultipliers[0]
	assert.Equal(t, "escalation", applied.ID)
	assert.Equal(t, OpCompound, applied.Operation)
	assert.Equal(t, 1, applied.BaseYear)
	assert.True(t, applied.Cumulative)

	// The operand values are captured per band.
	require.Len(t, applied.Values, 3)
	assert.Equal(t, 0.02, applied.Values[0].Points[0].Value)

	// The aggregate's dependency chain names the summed members.
	totalCost, ok := c.Source("total_cost")
	require.True(t, ok)
	assert.Equal(t, []string{"opex"}, totalCost.Audit.DependencyChain)
}

func TestBuildFailureIsolation(t *testing.T) {
	reg := windFarmRegistry()
	reg.Sources = append(reg.Sources, SourceDefinition{
		ID:       "missing",
		Type:     SourceDirect,
		Path:     "project.base.doesNotExist",
		Metadata: SourceMetadata{Name: "Missing"},
	})

	c, err := NewBuilder(nil).Build(context.Background(), reg, windFarmScenario(t), testParams())
	require.NoError(t, err)

	// The broken source fails; unrelated sources resolve normally.
	assert.Equal(t, 4, c.Len())
	failures := c.Failures()
	require.Len(t, failures, 1)

	var refErr *ReferenceNotFoundError
	require.ErrorAs(t, failures["missing"], &refErr)
	assert.Equal(t, "missing", refErr.SourceID)

	_, ok := c.Source("missing")
	assert.False(t, ok)
}

func TestBuildDependencyOnFailedSource(t *testing.T) {
	reg := &Registry{Sources: []SourceDefinition{
		{ID: "broken", Type: SourceDirect, Path: "nowhere"},
		{
			ID: "dependent", Type: SourceIndirect, Path: "project.base.basePrice",
			Multipliers: []MultiplierDefinition{{ID: "m", Operation: OpMultiply, Operand: "broken"}},
		},
	}}

	c, err := NewBuilder(nil).Build(context.Background(), reg, windFarmScenario(t), testParams())
	require.NoError(t, err)
	assert.Equal(t, 0, c.Len())

	failures := c.Failures()
	require.Len(t, failures, 2)

	var depErr *UnresolvedDependencyError
	require.ErrorAs(t, failures["dependent"], &depErr)
	assert.Equal(t, "broken", depErr.DependsOn)
}

func TestBuildSchemaViolationAborts(t *testing.T) {
	reg := &Registry{Sources: []SourceDefinition{
		{ID: "bad", Type: SourceIndirect, Path: "p"},
	}}

	_, err := NewBuilder(nil).Build(context.Background(), reg, windFarmScenario(t), testParams())
	var schemaErr *SchemaViolationError
	require.ErrorAs(t, err, &schemaErr)
}

func TestBuildUnknownTransformer(t *testing.T) {
	reg := &Registry{Sources: []SourceDefinition{
		{ID: "v", Type: SourceVirtual, Transformer: &TransformerSpec{Name: "nope"}},
	}}

	_, err := NewBuilder(nil).Build(context.Background(), reg, windFarmScenario(t), testParams())
	var schemaErr *SchemaViolationError
	require.ErrorAs(t, err, &schemaErr)
	assert.Contains(t, schemaErr.Reason, "unknown transformer")
}

func TestBuildInvalidParams(t *testing.T) {
	params := testParams()
	params.Primary = 25

	_, err := NewBuilder(nil).Build(context.Background(), windFarmRegistry(), windFarmScenario(t), params)
	assert.ErrorContains(t, err, "validate build params")
}

func TestBuildCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewBuilder(nil).Build(ctx, windFarmRegistry(), windFarmScenario(t), testParams())
	assert.ErrorContains(t, err, "build cancelled")
}

func TestBuildDeterministic(t *testing.T) {
	builder := NewBuilder(nil)
	first, err := builder.Build(context.Background(), windFarmRegistry(), windFarmScenario(t), testParams())
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		again, err := builder.Build(context.Background(), windFarmRegistry(), windFarmScenario(t), testParams())
		require.NoError(t, err)
		require.Equal(t, len(first.Sources()), len(again.Sources()))
		for i, src := range first.Sources() {
			assert.Equal(t, src.ID, again.Sources()[i].ID)
			assert.Equal(t, src.Series, again.Sources()[i].Series)
		}
	}
}

func TestBuildNetCashflowTransformer(t *testing.T) {
	reg := windFarmRegistry()
	reg.Sources = append(reg.Sources, SourceDefinition{
		ID:   "net",
		Type: SourceVirtual,
		Transformer: &TransformerSpec{
			Name: "net_cashflow",
			Args: map[string]string{"revenue_group": "revenue", "cost_group": "cost"},
		},
		Metadata: SourceMetadata{Name: "Net Cashflow"},
	})

	c, err := NewBuilder(nil).Build(context.Background(), reg, windFarmScenario(t), testParams())
	require.NoError(t, err)

	net, ok := c.Source("net")
	require.True(t, ok)
	p50, ok := net.SeriesFor(50)
	require.True(t, ok)
	// revenue group holds energy (1000 at P50); cost group holds opex (20).
	assert.InDelta(t, 980, p50.Points[0].Value, 1e-9)
}

func TestBuildSummationMultiplier(t *testing.T) {
	reg := &Registry{Sources: []SourceDefinition{
		{
			ID:       "stream_a",
			Type:     SourceDirect,
			Path:     "streams.a",
			Metadata: SourceMetadata{Name: "Stream A", CashflowGroup: "inflow"},
		},
		{
			ID:       "stream_b",
			Type:     SourceDirect,
			Path:     "streams.b",
			Metadata: SourceMetadata{Name: "Stream B", CashflowGroup: "inflow"},
		},
		{
			ID:   "total_inflow",
			Type: SourceIndirect,
			Path: "streams.carrier",
			Multipliers: []MultiplierDefinition{
				{ID: "members", Operation: OpSummation, Filter: &Filter{CashflowGroup: "inflow"}},
			},
			Metadata: SourceMetadata{Name: "Total Inflow", Category: "aggregate"},
		},
	}}

	doc, err := scenario.Parse([]byte(`
streams:
  a:
    1: 10
    2: 20
  b: 5
  carrier: 0
`))
	require.NoError(t, err)

	params := BuildParams{Percentiles: []Percentile{10, 50, 90}, Primary: 50, StartYear: 1, EndYear: 2}
	c, err := NewBuilder(nil).Build(context.Background(), reg, doc, params)
	require.NoError(t, err)
	assert.Empty(t, c.Failures())

	// The summation replaces the carrier with the filtered member sum:
	// {a: [10, 20]} + {b: [5, 5]} = [15, 25], identically in every band.
	total, ok := c.Source("total_inflow")
	require.True(t, ok)
	for _, pc := range []Percentile{10, 50, 90} {
		series, ok := total.SeriesFor(pc)
		require.True(t, ok)
		assert.Equal(t, points(15, 25), series.Points)
	}

	// Both filtered members count as dependencies, so the members resolve
	// before the summing source.
	assert.Equal(t, []string{"stream_a", "stream_b"}, total.Audit.DependencyChain)
}

func TestBuildFixedTransformer(t *testing.T) {
	reg := windFarmRegistry()
	reg.References = []Reference{{ID: "tariff", Path: "project.base.basePrice"}}
	reg.Sources = append(reg.Sources, SourceDefinition{
		ID:          "tariff_series",
		Type:        SourceVirtual,
		Transformer: &TransformerSpec{Name: "fixed", Args: map[string]string{"ref": "tariff"}},
	})

	c, err := NewBuilder(nil).Build(context.Background(), reg, windFarmScenario(t), testParams())
	require.NoError(t, err)

	fixed, ok := c.Source("tariff_series")
	require.True(t, ok)
	for _, pc := range []Percentile{10, 50, 90} {
		series, ok := fixed.SeriesFor(pc)
		require.True(t, ok)
		assert.Equal(t, 50.0, series.Points[0].Value)
	}
}
