package sensitivity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"windrisk/internal/cube"
	"windrisk/internal/metrics"
)

// Range is the pair of bounding bands a variable is evaluated at.
type Range struct {
	Lower cube.Percentile `json:"lower"`
	Upper cube.Percentile `json:"upper"`
}

// Impact quantifies how much moving one variable across the range moves the
// target metric.
type Impact struct {
	// Absolute is the upper evaluation minus the lower evaluation.
	Absolute float64 `json:"absolute"`
	// Percentage is the absolute impact relative to the lower evaluation.
	Percentage float64 `json:"percentage"`
	// Normalized is the absolute impact rescaled by the baseline magnitude
	// so impacts compare across metrics with different units.
	Normalized float64 `json:"normalized"`
}

// Values carries the three metric evaluations behind an impact.
type Values struct {
	Lower    *float64 `json:"lower"`
	Upper    *float64 `json:"upper"`
	Baseline *float64 `json:"baseline"`
}

// Result is the sensitivity of one target metric to one input variable.
type Result struct {
	MetricKey  string `json:"metric_key"`
	VariableID string `json:"variable_id"`
	Impact     Impact `json:"impact"`
	Values     Values `json:"values"`
	Range      Range  `json:"percentile_range"`
}

// InvalidInputError rejects an analysis whose requested band is not in the
// cube's available set; checked before any computation.
type InvalidInputError struct {
	VariableID string
	Percentile cube.Percentile
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("sensitivity input for %q invalid: percentile %s not in available set", e.VariableID, e.Percentile.Key())
}

// Engine evaluates sensitivities against a completed cube snapshot. All
// evaluations are pure reads and may run in parallel.
type Engine struct {
	agg    *metrics.Aggregator
	logger *slog.Logger
}

// NewEngine creates a sensitivity engine over a metric aggregator.
func NewEngine(agg *metrics.Aggregator, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{agg: agg, logger: logger}
}

// Analyze evaluates the target metric with one variable at the lower and
// upper bands, everything else at the primary band. Swapping the bounds
// negates the absolute impact.
func (e *Engine) Analyze(ctx context.Context, c *cube.Cube, targetMetric, variableID string, rng Range) (Result, error) {
	params := c.Params()
	for _, pc := range []cube.Percentile{rng.Lower, rng.Upper} {
		if !params.HasPercentile(pc) {
			return Result{}, &InvalidInputError{VariableID: variableID, Percentile: pc}
		}
	}
	if _, ok := c.Source(variableID); !ok {
		return Result{}, fmt.Errorf("sensitivity variable %q not in cube", variableID)
	}

	selector := func(bound cube.Percentile) metrics.PercentileSelector {
		return func(sourceID string) cube.Percentile {
			if sourceID == variableID {
				return bound
			}
			return params.Primary
		}
	}

	lower := e.agg.ComputeWith(ctx, c, targetMetric, selector(rng.Lower), params.Primary)
	upper := e.agg.ComputeWith(ctx, c, targetMetric, selector(rng.Upper), params.Primary)
	baseline := e.agg.Compute(ctx, c, targetMetric, params.Primary)

	if !lower.Available() || !upper.Available() {
		reason := lower.Err
		if reason == "" {
			reason = upper.Err
		}
		return Result{}, fmt.Errorf("target metric %q unavailable for variable %q: %s", targetMetric, variableID, reason)
	}

	impact := Impact{Absolute: *upper.Value - *lower.Value}
	if *lower.Value != 0 {
		impact.Percentage = impact.Absolute / *lower.Value
	}
	if baseline.Available() && *baseline.Value != 0 {
		impact.Normalized = impact.Absolute / math.Abs(*baseline.Value)
	}

	return Result{
		MetricKey:  targetMetric,
		VariableID: variableID,
		Impact:     impact,
		Values:     Values{Lower: lower.Value, Upper: upper.Value, Baseline: baseline.Value},
		Range:      rng,
	}, nil
}

// Tornado analyzes every candidate variable and returns the results ranked
// by descending absolute impact, ties broken by variable id. Per-variable
// evaluations are independent pure reads, so they run in parallel.
func (e *Engine) Tornado(ctx context.Context, c *cube.Cube, targetMetric string, variableIDs []string, rng Range) ([]Result, error) {
	results := make([]Result, len(variableIDs))
	var mu sync.Mutex
	var firstErr error

	g, gctx := errgroup.WithContext(ctx)
	for i, id := range variableIDs {
		i, id := i, id
		g.Go(func() error {
			result, err := e.Analyze(gctx, c, targetMetric, id, rng)
			if err != nil {
				// An invalid band aborts the whole ranking; a variable
				// whose metric is unavailable is skipped, not fatal.
				var invalid *InvalidInputError
				if errors.As(err, &invalid) {
					return err
				}
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
				e.logger.WarnContext(gctx, "sensitivity variable skipped",
					"metric", targetMetric,
					"variable", id,
					"error", err,
				)
				return nil
			}
			results[i] = result
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	ranked := make([]Result, 0, len(results))
	for _, r := range results {
		if r.VariableID != "" {
			ranked = append(ranked, r)
		}
	}
	if len(ranked) == 0 && firstErr != nil {
		return nil, firstErr
	}

	sort.Slice(ranked, func(i, j int) bool {
		left, right := math.Abs(ranked[i].Impact.Absolute), math.Abs(ranked[j].Impact.Absolute)
		if left != right {
			return left > right
		}
		return ranked[i].VariableID < ranked[j].VariableID
	})
	return ranked, nil
}
