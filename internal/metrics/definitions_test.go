package metrics

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefinitions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metrics.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
metrics:
  - key: total_revenue
    name: Total Revenue
    method: sum
    filter:
      cashflow_group: revenue
    format: currency
  - key: npv
    name: NPV
    method: npv
    sources: [net]
    options:
      discount_rate: 0.08
`), 0644))

	defs, err := LoadDefinitions(path)
	require.NoError(t, err)
	require.Len(t, defs, 2)

	assert.Equal(t, "total_revenue", defs[0].Key)
	assert.Equal(t, MethodSum, defs[0].Method)
	require.NotNil(t, defs[0].Filter)
	assert.Equal(t, "revenue", defs[0].Filter.CashflowGroup)

	assert.Equal(t, MethodNPV, defs[1].Method)
	assert.Equal(t, 0.08, defs[1].Options.DiscountRate)
	assert.Equal(t, []string{"net"}, defs[1].Sources)
}

func TestLoadDefinitionsMissingFile(t *testing.T) {
	_, err := LoadDefinitions(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
