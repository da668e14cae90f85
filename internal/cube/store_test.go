package cube

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func builtCube(t *testing.T) *Cube {
	t.Helper()
	c, err := NewBuilder(nil).Build(context.Background(), windFarmRegistry(), windFarmScenario(t), testParams())
	require.NoError(t, err)
	return c
}

func TestCubeSourcesResolutionOrder(t *testing.T) {
	c := builtCube(t)

	ids := make([]string, 0, c.Len())
	for _, src := range c.Sources() {
		ids = append(ids, src.ID)
	}
	// Directs by id, then the indirect, then the virtual aggregate.
	assert.Equal(t, []string{"energy", "opex", "price", "total_cost"}, ids)
}

func TestCubeSelect(t *testing.T) {
	c := builtCube(t)
	p50 := Percentile(50)

	tests := []struct {
		name     string
		query    Query
		expected []string
	}{
		{
			name:     "zero query matches everything",
			query:    Query{},
			expected: []string{"energy", "opex", "price", "total_cost"},
		},
		{
			name:     "by source id",
			query:    Query{SourceID: "price"},
			expected: []string{"price"},
		},
		{
			name:     "by cashflow group",
			query:    Query{CashflowGroup: "revenue"},
			expected: []string{"energy"},
		},
		{
			name:     "by category",
			query:    Query{Category: "aggregate"},
			expected: []string{"total_cost"},
		},
		{
			name:     "group and percentile",
			query:    Query{CashflowGroup: "cost", Percentile: &p50},
			expected: []string{"opex"},
		},
		{
			name:     "no match",
			query:    Query{Category: "nonexistent"},
			expected: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ids := make([]string, 0)
			for _, src := range c.Select(tt.query) {
				ids = append(ids, src.ID)
			}
			assert.Equal(t, tt.expected, ids)
		})
	}
}

func TestCubeSelectMissingBand(t *testing.T) {
	c := builtCube(t)
	p75 := Percentile(75)

	// No source carries a band outside the build's percentile set.
	assert.Empty(t, c.Select(Query{Percentile: &p75}))
}

func TestCubeParams(t *testing.T) {
	c := builtCube(t)
	assert.Equal(t, testParams(), c.Params())
	assert.False(t, c.BuiltAt().IsZero())
}

func TestCubeFailuresCopy(t *testing.T) {
	c := builtCube(t)

	failures := c.Failures()
	failures["injected"] = assert.AnError

	// Mutating the returned map never touches the cube.
	assert.Empty(t, c.Failures())
}
