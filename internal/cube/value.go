package cube

import (
	"fmt"
	"sort"
	"strconv"
)

// RawValue is the interpreted form of a scenario document subtree before
// percentile expansion. Exactly one of the three shapes is populated:
//
//   - Scalar: a single number, broadcast across years and bands (Fixed)
//   - Years: one year-indexed series, shared by every band
//   - Bands: per-percentile values, each a scalar or a year series
type RawValue struct {
	Scalar *float64
	Years  map[int]float64
	Bands  map[Percentile]bandValue
}

// bandValue holds one percentile band's raw value: a scalar or year series.
type bandValue struct {
	Scalar *float64
	Years  map[int]float64
}

// IsScalar reports whether the value is a single number with no year or
// percentile structure.
func (v RawValue) IsScalar() bool {
	return v.Scalar != nil
}

// HasBands reports whether the value carries its own percentile spread.
func (v RawValue) HasBands() bool {
	return len(v.Bands) > 0
}

// ParseRawValue interprets a scenario document subtree. Mappings whose keys
// all look like band keys ("P10", "P50") become per-percentile values;
// mappings with integer keys become year series; bare numbers are scalars.
func ParseRawValue(v any) (RawValue, error) {
	if f, ok := toFloat(v); ok {
		return RawValue{Scalar: &f}, nil
	}

	node, ok := v.(map[string]any)
	if !ok {
		return RawValue{}, fmt.Errorf("unsupported value shape %T", v)
	}
	if len(node) == 0 {
		return RawValue{}, fmt.Errorf("empty mapping")
	}

	if allBandKeys(node) {
		bands := make(map[Percentile]bandValue, len(node))
		for key, raw := range node {
			pc, _ := ParsePercentile(key)
			band, err := parseBandValue(raw)
			if err != nil {
				return RawValue{}, fmt.Errorf("band %s: %w", pc.Key(), err)
			}
			bands[pc] = band
		}
		return RawValue{Bands: bands}, nil
	}

	years, err := parseYearMap(node)
	if err != nil {
		return RawValue{}, err
	}
	return RawValue{Years: years}, nil
}

func parseBandValue(v any) (bandValue, error) {
	if f, ok := toFloat(v); ok {
		return bandValue{Scalar: &f}, nil
	}
	node, ok := v.(map[string]any)
	if !ok {
		return bandValue{}, fmt.Errorf("unsupported value shape %T", v)
	}
	years, err := parseYearMap(node)
	if err != nil {
		return bandValue{}, err
	}
	return bandValue{Years: years}, nil
}

func parseYearMap(node map[string]any) (map[int]float64, error) {
	years := make(map[int]float64, len(node))
	for key, raw := range node {
		year, err := strconv.Atoi(key)
		if err != nil {
			return nil, fmt.Errorf("key %q is neither a year nor a band key", key)
		}
		value, ok := toFloat(raw)
		if !ok {
			return nil, fmt.Errorf("year %d: value %v is not a number", year, raw)
		}
		years[year] = value
	}
	return years, nil
}

func allBandKeys(node map[string]any) bool {
	for key := range node {
		if len(key) < 2 || (key[0] != 'P' && key[0] != 'p') {
			return false
		}
		if _, ok := ParsePercentile(key); !ok {
			return false
		}
	}
	return true
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}

// seriesForYears materializes the value as a year-ordered series for one
// band, broadcasting scalars across the horizon and missing years as the
// nearest declared shape allows. Years absent from a year map are an error:
// every consumer assumes a fully populated horizon.
func (v RawValue) seriesForYears(pc Percentile, years []int) ([]DataPoint, error) {
	pick := func(scalar *float64, yearMap map[int]float64) ([]DataPoint, error) {
		points := make([]DataPoint, 0, len(years))
		for _, year := range years {
			switch {
			case scalar != nil:
				points = append(points, DataPoint{Year: year, Value: *scalar})
			default:
				value, ok := yearMap[year]
				if !ok {
					return nil, fmt.Errorf("no value declared for year %d", year)
				}
				points = append(points, DataPoint{Year: year, Value: value})
			}
		}
		return points, nil
	}

	switch {
	case v.Scalar != nil:
		return pick(v.Scalar, nil)
	case v.Years != nil:
		return pick(nil, v.Years)
	case v.Bands != nil:
		band, ok := v.Bands[pc]
		if !ok {
			return nil, fmt.Errorf("no value declared for band %s", pc.Key())
		}
		return pick(band.Scalar, band.Years)
	default:
		return nil, fmt.Errorf("empty raw value")
	}
}

// declaredBands returns the percentiles the value itself carries, ascending.
func (v RawValue) declaredBands() []Percentile {
	bands := make([]Percentile, 0, len(v.Bands))
	for pc := range v.Bands {
		bands = append(bands, pc)
	}
	sort.Slice(bands, func(i, j int) bool { return bands[i] < bands[j] })
	return bands
}
