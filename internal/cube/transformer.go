package cube

import (
	"fmt"
	"sync"
)

// TransformContext carries everything a transformer may read: the owning
// definition, the raw value (nil for virtual sources), the merged reference
// table, the run parameters and the partially built cube.
type TransformContext struct {
	Def    SourceDefinition
	Raw    *RawValue
	Refs   ReferenceTable
	Params BuildParams
	Cube   *Cube
}

// Transformer reinterprets a source's value into a full percentile-series
// collection. Implementations are registered by name; configuration refers
// to them through TransformerSpec, never as embedded code.
type Transformer interface {
	// Name returns the registered transformer name.
	Name() string

	// Inputs reports the source ids the transformer reads from the cube,
	// so the registry can order resolution accordingly.
	Inputs(def SourceDefinition, reg *Registry) []string

	// Apply produces the transformed series. The result must cover every
	// available percentile band.
	Apply(tc TransformContext) ([]PercentileSeries, error)
}

// TransformerRegistry is the plugin table mapping names to transformers.
type TransformerRegistry struct {
	mu     sync.RWMutex
	byName map[string]Transformer
}

// NewTransformerRegistry creates a registry pre-populated with the built-in
// transformers.
func NewTransformerRegistry() *TransformerRegistry {
	r := &TransformerRegistry{byName: make(map[string]Transformer)}
	for _, t := range []Transformer{
		groupSumTransformer{},
		netCashflowTransformer{},
		fixedTransformer{},
	} {
		r.byName[t.Name()] = t
	}
	return r
}

// Register adds a custom transformer.
func (r *TransformerRegistry) Register(t Transformer) error {
	if t == nil {
		return fmt.Errorf("cannot register nil transformer")
	}
	name := t.Name()
	if name == "" {
		return fmt.Errorf("transformer name cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byName[name]; exists {
		return fmt.Errorf("transformer %q already registered", name)
	}
	r.byName[name] = t
	return nil
}

// Lookup retrieves a transformer by name.
func (r *TransformerRegistry) Lookup(name string) (Transformer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.byName[name]
	return t, ok
}

// filterFromArgs builds a metadata filter from transformer arguments.
func filterFromArgs(args map[string]string) Filter {
	return Filter{
		CashflowGroup: args["cashflow_group"],
		Category:      args["category"],
	}
}

// groupSumTransformer sums the cube entries matching a metadata filter into
// one series per band; the virtual-aggregate workhorse (e.g. total cost =
// sum of sources tagged cashflow_group: cost).
type groupSumTransformer struct{}

func (groupSumTransformer) Name() string { return "group_sum" }

func (groupSumTransformer) Inputs(def SourceDefinition, reg *Registry) []string {
	if def.Transformer == nil {
		return nil
	}
	return reg.filterMembers(filterFromArgs(def.Transformer.Args), def.ID)
}

func (groupSumTransformer) Apply(tc TransformContext) ([]PercentileSeries, error) {
	f := filterFromArgs(tc.Def.Transformer.Args)
	series := make([]PercentileSeries, 0, len(tc.Params.Percentiles))
	for _, pc := range tc.Params.SortedPercentiles() {
		points, err := summationSeries(tc.Def.ID, f, pc, tc.Cube, tc.Params)
		if err != nil {
			return nil, err
		}
		series = append(series, PercentileSeries{Percentile: pc, Points: points})
	}
	return series, nil
}

// netCashflowTransformer computes per-year revenue minus cost across two
// metadata groups, e.g. CFADS from energy revenue and operating cost.
type netCashflowTransformer struct{}

func (netCashflowTransformer) Name() string { return "net_cashflow" }

func (netCashflowTransformer) Inputs(def SourceDefinition, reg *Registry) []string {
	if def.Transformer == nil {
		return nil
	}
	inputs := reg.filterMembers(Filter{CashflowGroup: def.Transformer.Args["revenue_group"]}, def.ID)
	inputs = append(inputs, reg.filterMembers(Filter{CashflowGroup: def.Transformer.Args["cost_group"]}, def.ID)...)
	return inputs
}

func (netCashflowTransformer) Apply(tc TransformContext) ([]PercentileSeries, error) {
	revenueFilter := Filter{CashflowGroup: tc.Def.Transformer.Args["revenue_group"]}
	costFilter := Filter{CashflowGroup: tc.Def.Transformer.Args["cost_group"]}
	if revenueFilter.IsZero() || costFilter.IsZero() {
		return nil, fmt.Errorf("source %q: net_cashflow requires revenue_group and cost_group args", tc.Def.ID)
	}

	series := make([]PercentileSeries, 0, len(tc.Params.Percentiles))
	for _, pc := range tc.Params.SortedPercentiles() {
		revenue, err := summationSeries(tc.Def.ID, revenueFilter, pc, tc.Cube, tc.Params)
		if err != nil {
			return nil, err
		}
		cost, err := summationSeries(tc.Def.ID, costFilter, pc, tc.Cube, tc.Params)
		if err != nil {
			return nil, err
		}
		points := make([]DataPoint, len(revenue))
		for i := range revenue {
			points[i] = DataPoint{Year: revenue[i].Year, Value: revenue[i].Value - cost[i].Value}
		}
		series = append(series, PercentileSeries{Percentile: pc, Points: points})
	}
	return series, nil
}

// fixedTransformer materializes a named reference as the source's series,
// broadcast across bands unless the reference carries its own spread.
type fixedTransformer struct{}

func (fixedTransformer) Name() string { return "fixed" }

func (fixedTransformer) Inputs(def SourceDefinition, reg *Registry) []string { return nil }

func (fixedTransformer) Apply(tc TransformContext) ([]PercentileSeries, error) {
	refID := tc.Def.Transformer.Args["ref"]
	value, ok := tc.Refs[refID]
	if !ok {
		return nil, &ReferenceNotFoundError{SourceID: tc.Def.ID, ReferenceID: refID}
	}

	series := make([]PercentileSeries, 0, len(tc.Params.Percentiles))
	for _, pc := range tc.Params.SortedPercentiles() {
		points, err := value.seriesForYears(pc, tc.Params.Years())
		if err != nil {
			return nil, fmt.Errorf("source %q: %w", tc.Def.ID, err)
		}
		series = append(series, PercentileSeries{Percentile: pc, Points: points})
	}
	return series, nil
}
