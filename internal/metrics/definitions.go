package metrics

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"

	"windrisk/internal/cube"
)

// LoadDefinitions reads metric definitions from a YAML catalogue.
func LoadDefinitions(path string) ([]Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read metric catalogue: %w", err)
	}
	var catalogue struct {
		Metrics []Definition `yaml:"metrics"`
	}
	if err := yaml.Unmarshal(data, &catalogue); err != nil {
		return nil, fmt.Errorf("parse metric catalogue: %w", err)
	}
	return catalogue.Metrics, nil
}

// DefaultDefinitions returns the standard wind-farm project-finance metric
// set: foundational cashflow aggregates plus the analytics derived from
// them.
func DefaultDefinitions() []Definition {
	return []Definition{
		{
			Key:    "total_revenue",
			Name:   "Total Revenue",
			Method: MethodSum,
			Filter: &cube.Filter{CashflowGroup: "revenue"},
			Format: "currency",
		},
		{
			Key:    "total_cost",
			Name:   "Total Operating Cost",
			Method: MethodSum,
			Filter: &cube.Filter{CashflowGroup: "cost"},
			Format: "currency",
		},
		{
			Key:       "cfads",
			Name:      "Cashflow Available for Debt Service",
			Method:    MethodDifference,
			DependsOn: []string{"total_revenue", "total_cost"},
			Format:    "currency",
		},
		{
			Key:    "debt_service",
			Name:   "Total Debt Service",
			Method: MethodSum,
			Filter: &cube.Filter{CashflowGroup: "debt"},
			Format: "currency",
		},
		{
			Key:       "dscr",
			Name:      "Debt Service Coverage Ratio",
			Method:    MethodRatio,
			DependsOn: []string{"cfads", "debt_service"},
			Format:    "ratio",
		},
		{
			Key:     "npv_revenue",
			Name:    "NPV of Revenue",
			Method:  MethodNPV,
			Filter:  &cube.Filter{CashflowGroup: "revenue"},
			Options: Options{DiscountRate: 0.08},
			Format:  "currency",
		},
		{
			Key:    "mean_annual_revenue",
			Name:   "Mean Annual Revenue",
			Method: MethodMean,
			Filter: &cube.Filter{CashflowGroup: "revenue"},
			Format: "currency",
		},
	}
}
