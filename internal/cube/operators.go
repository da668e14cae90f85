package cube

import (
	"fmt"
	"math"
)

// expand turns a source's raw value into the full percentile-series
// collection. A value that carries no percentile spread is broadcast
// identically across every year and every available band (the Fixed
// expansion): every downstream consumer assumes every source id has a
// populated series for every percentile, so expansion never leaves gaps.
func expand(raw RawValue, def SourceDefinition, params BuildParams) ([]PercentileSeries, error) {
	years := params.Years()
	bands := params.SortedPercentiles()
	series := make([]PercentileSeries, 0, len(bands))

	if def.HasPercentiles {
		if !raw.HasBands() {
			return nil, fmt.Errorf("source %q declares percentiles but value carries none", def.ID)
		}
		for _, pc := range bands {
			points, err := raw.seriesForYears(pc, years)
			if err != nil {
				return nil, fmt.Errorf("source %q: %w", def.ID, err)
			}
			series = append(series, PercentileSeries{Percentile: pc, Points: points})
		}
		return series, nil
	}

	// Fixed expansion: one shape shared by every band.
	for _, pc := range bands {
		points, err := raw.seriesForYears(pc, years)
		if err != nil {
			return nil, fmt.Errorf("source %q: %w", def.ID, err)
		}
		series = append(series, PercentileSeries{Percentile: pc, Points: points})
	}
	return series, nil
}

// operandSeries resolves a multiplier operand for one band: merged
// references first, then prior cube entries by source id. Scalar operands
// broadcast across the horizon.
func operandSeries(ownerID, operand string, pc Percentile, refs ReferenceTable, c *Cube, params BuildParams) ([]DataPoint, error) {
	if value, ok := refs[operand]; ok {
		points, err := value.seriesForYears(pc, params.Years())
		if err != nil {
			return nil, fmt.Errorf("source %q: operand %q: %w", ownerID, operand, err)
		}
		return points, nil
	}
	if entry, ok := c.Source(operand); ok {
		if series, ok := entry.SeriesFor(pc); ok {
			return series.Points, nil
		}
		return nil, &UnresolvedDependencyError{SourceID: ownerID, DependsOn: operand, Reason: fmt.Sprintf("no %s band", pc.Key())}
	}
	return nil, &UnresolvedDependencyError{SourceID: ownerID, DependsOn: operand}
}

// applyMultiplier applies one declared operator to every percentile band
// independently, since the operand itself may vary by band. It returns the
// transformed series plus the audit record tracing the operand values that
// were applied.
func applyMultiplier(def SourceDefinition, m MultiplierDefinition, series []PercentileSeries, refs ReferenceTable, c *Cube, params BuildParams) ([]PercentileSeries, AppliedMultiplier, error) {
	applied := AppliedMultiplier{
		ID:         m.ID,
		Operation:  m.Operation,
		BaseYear:   m.BaseYear,
		Cumulative: m.Operation == OpCompound,
	}

	out := make([]PercentileSeries, len(series))
	for i, band := range series {
		var operand []DataPoint
		var err error

		if m.Operation == OpSummation {
			operand, err = summationSeries(def.ID, *m.Filter, band.Percentile, c, params)
		} else {
			operand, err = operandSeries(def.ID, m.Operand, band.Percentile, refs, c, params)
		}
		if err != nil {
			return nil, AppliedMultiplier{}, err
		}

		points, err := applyOperation(m, band.Points, operand)
		if err != nil {
			return nil, AppliedMultiplier{}, fmt.Errorf("source %q: multiplier %q: %w", def.ID, m.ID, err)
		}

		out[i] = PercentileSeries{Percentile: band.Percentile, Points: points}
		applied.Values = append(applied.Values, PercentileSeries{Percentile: band.Percentile, Points: operand})
	}

	return out, applied, nil
}

// applyOperation computes one band's output series. All operations are
// per-year, relative to the multiplier's base year.
func applyOperation(m MultiplierDefinition, in, operand []DataPoint) ([]DataPoint, error) {
	if m.Operation == OpSummation {
		// Summation replaces the input outright with the reduced set.
		out := make([]DataPoint, len(operand))
		copy(out, operand)
		return out, nil
	}

	if len(operand) != len(in) {
		return nil, fmt.Errorf("operand has %d years, series has %d", len(operand), len(in))
	}

	out := make([]DataPoint, len(in))
	for i, pt := range in {
		rate := operand[i].Value
		switch m.Operation {
		case OpMultiply:
			out[i] = DataPoint{Year: pt.Year, Value: pt.Value * rate}
		case OpCompound:
			if pt.Year < m.BaseYear {
				out[i] = pt
			} else {
				out[i] = DataPoint{Year: pt.Year, Value: pt.Value * math.Pow(1+rate, float64(pt.Year-m.BaseYear))}
			}
		case OpSimple:
			if pt.Year < m.BaseYear {
				out[i] = pt
			} else {
				out[i] = DataPoint{Year: pt.Year, Value: pt.Value * (1 + rate*float64(pt.Year-m.BaseYear))}
			}
		default:
			return nil, fmt.Errorf("unknown operation %q", m.Operation)
		}
	}
	return out, nil
}

// summationSeries reduces the filtered cube entries into one per-year sum
// for a band. Entries that failed to build are simply absent from the cube;
// the builder reports them separately.
func summationSeries(ownerID string, f Filter, pc Percentile, c *Cube, params BuildParams) ([]DataPoint, error) {
	years := params.Years()
	totals := make(map[int]float64, len(years))

	for _, entry := range c.Sources() {
		if entry.ID == ownerID || !f.Matches(entry.Metadata) {
			continue
		}
		series, ok := entry.SeriesFor(pc)
		if !ok {
			return nil, &UnresolvedDependencyError{SourceID: ownerID, DependsOn: entry.ID, Reason: fmt.Sprintf("no %s band", pc.Key())}
		}
		for _, pt := range series.Points {
			totals[pt.Year] += pt.Value
		}
	}

	points := make([]DataPoint, 0, len(years))
	for _, year := range years {
		points = append(points, DataPoint{Year: year, Value: totals[year]})
	}
	return points, nil
}
