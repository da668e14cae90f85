package metrics

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"windrisk/internal/cube"
)

// PercentileSelector chooses the band a source id is read at. Plain metric
// computation uses a constant selector; the sensitivity engine substitutes a
// selector that moves a single variable to a bounding band.
type PercentileSelector func(sourceID string) cube.Percentile

// ConstantSelector reads every source at the same band.
func ConstantSelector(pc cube.Percentile) PercentileSelector {
	return func(string) cube.Percentile { return pc }
}

// Aggregator computes declared metrics against a cube. Definitions are fixed
// at construction; computation is pure with respect to the cube and safe for
// concurrent use.
type Aggregator struct {
	defs   map[string]Definition
	keys   []string // declaration order
	logger *slog.Logger
}

// NewAggregator validates the definitions (unique keys, known methods,
// resolvable dependencies, no cycles) and returns an aggregator.
func NewAggregator(defs []Definition, logger *slog.Logger) (*Aggregator, error) {
	if logger == nil {
		logger = slog.Default()
	}

	byKey := make(map[string]Definition, len(defs))
	keys := make([]string, 0, len(defs))
	for _, def := range defs {
		if def.Key == "" {
			return nil, fmt.Errorf("metric definition with empty key")
		}
		if _, exists := byKey[def.Key]; exists {
			return nil, fmt.Errorf("duplicate metric key %q", def.Key)
		}
		byKey[def.Key] = def
		keys = append(keys, def.Key)
	}

	for _, def := range defs {
		for _, dep := range def.DependsOn {
			if _, ok := byKey[dep]; !ok {
				return nil, fmt.Errorf("metric %q depends on unknown metric %q", def.Key, dep)
			}
		}
		if def.Method.IsDerived() && len(def.DependsOn) != 2 {
			return nil, fmt.Errorf("metric %q: %s requires exactly two dependencies", def.Key, def.Method)
		}
	}

	a := &Aggregator{defs: byKey, keys: keys, logger: logger}
	if err := a.checkCycles(); err != nil {
		return nil, err
	}
	return a, nil
}

// checkCycles rejects circular metric dependencies at construction.
func (a *Aggregator) checkCycles() error {
	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	state := make(map[string]int, len(a.defs))

	var visit func(key string) error
	visit = func(key string) error {
		switch state[key] {
		case visiting:
			return fmt.Errorf("metric dependency cycle through %q", key)
		case done:
			return nil
		}
		state[key] = visiting
		for _, dep := range a.defs[key].DependsOn {
			if err := visit(dep); err != nil {
				return err
			}
		}
		state[key] = done
		return nil
	}

	for _, key := range a.keys {
		if err := visit(key); err != nil {
			return err
		}
	}
	return nil
}

// Keys returns the declared metric keys in declaration order.
func (a *Aggregator) Keys() []string {
	out := make([]string, len(a.keys))
	copy(out, a.keys)
	return out
}

// Definition returns a declared metric.
func (a *Aggregator) Definition(key string) (Definition, bool) {
	def, ok := a.defs[key]
	return def, ok
}

// Compute evaluates one metric at one band.
func (a *Aggregator) Compute(ctx context.Context, c *cube.Cube, key string, pc cube.Percentile) Result {
	return a.ComputeWith(ctx, c, key, ConstantSelector(pc), pc)
}

// ComputeAll evaluates every declared metric at one band. Results are keyed
// by metric key; dependency metrics are computed once and shared.
func (a *Aggregator) ComputeAll(ctx context.Context, c *cube.Cube, pc cube.Percentile) map[string]Result {
	memo := make(map[string]Result, len(a.keys))
	for _, key := range a.keys {
		a.computeMemo(ctx, c, key, ConstantSelector(pc), pc, memo)
	}
	return memo
}

// ComputeWith evaluates one metric with an explicit band selector. The
// reported band is the selector's baseline, carried for result metadata.
func (a *Aggregator) ComputeWith(ctx context.Context, c *cube.Cube, key string, sel PercentileSelector, reported cube.Percentile) Result {
	memo := make(map[string]Result)
	return a.computeMemo(ctx, c, key, sel, reported, memo)
}

func (a *Aggregator) computeMemo(ctx context.Context, c *cube.Cube, key string, sel PercentileSelector, reported cube.Percentile, memo map[string]Result) Result {
	if cached, ok := memo[key]; ok {
		return cached
	}

	start := time.Now()
	def, ok := a.defs[key]
	if !ok {
		result := unavailable(key, "", reported, fmt.Sprintf("unknown metric %q", key))
		memo[key] = result
		return result
	}

	// Resolve dependencies first; an unavailable dependency propagates as
	// unavailable, never as zero.
	depValues := make([]float64, 0, len(def.DependsOn))
	for _, dep := range def.DependsOn {
		depResult := a.computeMemo(ctx, c, dep, sel, reported, memo)
		if !depResult.Available() {
			result := unavailable(key, def.Method, reported, fmt.Sprintf("dependency %q unavailable", dep))
			memo[key] = result
			return result
		}
		depValues = append(depValues, *depResult.Value)
	}

	var value float64
	var inputs []string
	var err error

	if def.Method.IsDerived() {
		value, err = deriveValue(def.Method, depValues)
		inputs = def.DependsOn
	} else {
		var series []cube.DataPoint
		series, inputs, err = a.inputSeries(c, def, sel)
		if err == nil {
			value, err = aggregate(def, series, c.Params())
		}
	}

	if err != nil {
		a.logger.DebugContext(ctx, "metric unavailable",
			"metric", key,
			"percentile", reported.Key(),
			"error", err,
		)
		result := unavailable(key, def.Method, reported, err.Error())
		memo[key] = result
		return result
	}

	result := Result{
		Value:        &value,
		DisplayValue: formatValue(value, def.Format),
		Metadata: ResultMeta{
			CalculationMethod: def.Method,
			Percentile:        reported,
			InputSources:      inputs,
			ComputationTime:   time.Since(start),
		},
	}
	memo[key] = result
	return result
}

func unavailable(key string, method Method, pc cube.Percentile, reason string) Result {
	return Result{
		Err: reason,
		Metadata: ResultMeta{
			CalculationMethod: method,
			Percentile:        pc,
		},
	}
}

// inputSeries gathers and per-year sums the metric's input sources, each
// read at the band the selector assigns it.
func (a *Aggregator) inputSeries(c *cube.Cube, def Definition, sel PercentileSelector) ([]cube.DataPoint, []string, error) {
	ids := def.Sources
	if len(ids) == 0 && def.Filter != nil {
		for _, ps := range c.Select(cube.Query{Category: def.Filter.Category, CashflowGroup: def.Filter.CashflowGroup}) {
			ids = append(ids, ps.ID)
		}
		sort.Strings(ids)
	}
	if len(ids) == 0 {
		return nil, nil, fmt.Errorf("metric %q has no input sources", def.Key)
	}

	totals := make(map[int]float64)
	for _, id := range ids {
		ps, ok := c.Source(id)
		if !ok {
			return nil, nil, fmt.Errorf("input source %q not in cube", id)
		}
		series, ok := ps.SeriesFor(sel(id))
		if !ok {
			return nil, nil, fmt.Errorf("input source %q has no %s band", id, sel(id).Key())
		}
		for _, pt := range series.Points {
			totals[pt.Year] += pt.Value
		}
	}

	years := make([]int, 0, len(totals))
	for year := range totals {
		years = append(years, year)
	}
	sort.Ints(years)

	points := make([]cube.DataPoint, 0, len(years))
	for _, year := range years {
		points = append(points, cube.DataPoint{Year: year, Value: totals[year]})
	}
	return points, ids, nil
}

// aggregate reduces one series to a scalar per the declared strategy.
func aggregate(def Definition, series []cube.DataPoint, params cube.BuildParams) (float64, error) {
	filtered := series
	if def.Options.Years != nil {
		filtered = filtered[:0:0]
		for _, pt := range series {
			if def.Options.Years.Contains(pt.Year) {
				filtered = append(filtered, pt)
			}
		}
	}
	if len(filtered) == 0 {
		return 0, fmt.Errorf("metric %q: no data points in year window", def.Key)
	}

	switch def.Method {
	case MethodSum:
		total := 0.0
		for _, pt := range filtered {
			total += pt.Value
		}
		return total, nil

	case MethodNPV:
		rate := def.Options.DiscountRate
		if rate <= -1 {
			return 0, fmt.Errorf("metric %q: discount rate %v out of range", def.Key, rate)
		}
		total := 0.0
		for _, pt := range filtered {
			total += pt.Value / math.Pow(1+rate, float64(pt.Year-params.StartYear))
		}
		return total, nil

	case MethodMean:
		total := 0.0
		for _, pt := range filtered {
			total += pt.Value
		}
		return total / float64(len(filtered)), nil

	case MethodMin:
		min := filtered[0].Value
		for _, pt := range filtered[1:] {
			if pt.Value < min {
				min = pt.Value
			}
		}
		return min, nil

	case MethodMax:
		max := filtered[0].Value
		for _, pt := range filtered[1:] {
			if pt.Value > max {
				max = pt.Value
			}
		}
		return max, nil

	case MethodFirst:
		return filtered[0].Value, nil

	case MethodLast:
		return filtered[len(filtered)-1].Value, nil

	case MethodWeightedMean:
		totalWeight := 0.0
		total := 0.0
		for _, pt := range filtered {
			weight := 1.0
			if def.Options.Weights != nil {
				weight = def.Options.Weights[pt.Year]
			}
			total += pt.Value * weight
			totalWeight += weight
		}
		if totalWeight == 0 {
			return 0, fmt.Errorf("metric %q: weights sum to zero", def.Key)
		}
		return total / totalWeight, nil

	default:
		return 0, fmt.Errorf("metric %q: unknown method %q", def.Key, def.Method)
	}
}

// deriveValue computes a derived metric from its two dependency values.
func deriveValue(method Method, deps []float64) (float64, error) {
	switch method {
	case MethodRatio:
		if deps[1] == 0 {
			return 0, fmt.Errorf("ratio denominator is zero")
		}
		return deps[0] / deps[1], nil
	case MethodDifference:
		return deps[0] - deps[1], nil
	default:
		return 0, fmt.Errorf("unknown derived method %q", method)
	}
}
