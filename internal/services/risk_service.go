// Package services orchestrates the computation core for the transport
// layer: it owns the cube snapshot, runs rebuilds, and fronts metric and
// sensitivity queries.
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"windrisk/internal/cube"
	"windrisk/internal/infrastructure"
	"windrisk/internal/metrics"
	"windrisk/internal/scenario"
	"windrisk/internal/sensitivity"
)

var (
	// ErrNoSnapshot is returned by queries before the first successful build.
	ErrNoSnapshot = errors.New("no cube snapshot available")

	// ErrMetricNotDeclared is returned for metric keys outside the catalogue.
	ErrMetricNotDeclared = errors.New("metric not declared")
)

// Snapshot is one completed cube build. Snapshots are immutable; readers
// always see either the previous complete snapshot or the new one, never a
// partially built cube.
type Snapshot struct {
	ID         string
	Cube       *cube.Cube
	BuiltAt    time.Time
	Generation uint64
}

// Broadcaster receives build lifecycle events; the websocket hub implements
// it. A nil broadcaster disables notifications.
type Broadcaster interface {
	BuildStarted(id string)
	BuildCompleted(id string, resolved, failed int)
	BuildFailed(id string, err error)
}

// RiskService owns the snapshot slot and serves all queries against it.
// Overlapping rebuilds never share mutable state: each build produces an
// independent cube, and only the newest generation installs its result.
type RiskService struct {
	registry *cube.Registry
	builder  *cube.Builder
	agg      *metrics.Aggregator
	sens     *sensitivity.Engine
	logger   *slog.Logger

	engineMetrics *infrastructure.EngineMetrics
	broadcaster   Broadcaster
	tracer        trace.Tracer

	current atomic.Pointer[Snapshot]

	mu         sync.Mutex // guards generation and cancelPrev
	generation uint64
	cancelPrev context.CancelFunc
}

// NewRiskService wires the computation core together.
func NewRiskService(registry *cube.Registry, defs []metrics.Definition, logger *slog.Logger) (*RiskService, error) {
	if logger == nil {
		logger = slog.Default()
	}
	agg, err := metrics.NewAggregator(defs, logger)
	if err != nil {
		return nil, fmt.Errorf("metric catalogue: %w", err)
	}
	return &RiskService{
		registry: registry,
		builder:  cube.NewBuilder(logger),
		agg:      agg,
		sens:     sensitivity.NewEngine(agg, logger),
		logger:   logger.With(slog.String("component", "risk_service")),
	}, nil
}

// SetEngineMetrics attaches the otel instruments. Optional.
func (s *RiskService) SetEngineMetrics(m *infrastructure.EngineMetrics) {
	s.engineMetrics = m
}

// SetBroadcaster attaches a build event broadcaster. Optional.
func (s *RiskService) SetBroadcaster(b Broadcaster) {
	s.broadcaster = b
}

// SetTracer attaches a tracer so each rebuild runs under its own span.
// Optional.
func (s *RiskService) SetTracer(tracer trace.Tracer) {
	s.tracer = tracer
}

// Builder exposes the cube builder, mainly so callers can register custom
// transformers before the first build.
func (s *RiskService) Builder() *cube.Builder {
	return s.builder
}

// Aggregator exposes the metric aggregator.
func (s *RiskService) Aggregator() *metrics.Aggregator {
	return s.agg
}

// Rebuild runs a full resolution pass and atomically installs the result.
// A rebuild triggered while another is in flight cancels the older build
// best-effort; if the older build still completes, its result is discarded
// on arrival rather than merged.
func (s *RiskService) Rebuild(ctx context.Context, doc *scenario.Document, params cube.BuildParams) (*Snapshot, error) {
	buildID := uuid.New().String()

	if s.tracer != nil {
		var span trace.Span
		ctx, span = s.tracer.Start(ctx, "cube.rebuild",
			trace.WithAttributes(attribute.String("build_id", buildID)))
		defer span.End()
	}

	s.mu.Lock()
	if s.cancelPrev != nil {
		s.cancelPrev()
	}
	buildCtx, cancel := context.WithCancel(ctx)
	s.cancelPrev = cancel
	s.generation++
	generation := s.generation
	s.mu.Unlock()

	start := time.Now()

	s.logger.InfoContext(ctx, "rebuild requested",
		"build_id", buildID,
		"generation", generation,
	)
	if s.broadcaster != nil {
		s.broadcaster.BuildStarted(buildID)
	}
	if s.engineMetrics != nil {
		s.engineMetrics.BuildsActive.Add(ctx, 1)
		defer s.engineMetrics.BuildsActive.Add(ctx, -1)
	}

	c, err := s.builder.Build(buildCtx, s.registry, doc, params)
	duration := time.Since(start)

	if s.engineMetrics != nil {
		status := "success"
		if err != nil {
			status = "failure"
		}
		attrs := metric.WithAttributes(attribute.String("status", status))
		s.engineMetrics.BuildsTotal.Add(ctx, 1, attrs)
		s.engineMetrics.BuildDuration.Record(ctx, duration.Seconds(), attrs)
	}

	if err != nil {
		infrastructure.RecordError(ctx, err)
		s.logger.ErrorContext(ctx, "rebuild failed",
			"build_id", buildID,
			"error", err,
		)
		if s.broadcaster != nil {
			s.broadcaster.BuildFailed(buildID, err)
		}
		return nil, err
	}

	snapshot := &Snapshot{
		ID:         buildID,
		Cube:       c,
		BuiltAt:    time.Now().UTC(),
		Generation: generation,
	}

	// Swap-on-completion: only the newest generation may install. A stale
	// build arriving after a newer one completed is dropped whole.
	s.mu.Lock()
	installed := generation >= s.generation
	if installed {
		s.current.Store(snapshot)
	}
	s.mu.Unlock()

	if !installed {
		s.logger.WarnContext(ctx, "rebuild superseded, result discarded",
			"build_id", buildID,
			"generation", generation,
		)
		if s.engineMetrics != nil {
			s.engineMetrics.BuildsSuperseded.Add(ctx, 1)
		}
		return nil, fmt.Errorf("build %s superseded by a newer rebuild", buildID)
	}

	if s.engineMetrics != nil {
		s.engineMetrics.SourcesResolved.Add(ctx, int64(c.Len()))
		s.engineMetrics.SourcesFailed.Add(ctx, int64(len(c.Failures())))
	}
	if s.broadcaster != nil {
		s.broadcaster.BuildCompleted(buildID, c.Len(), len(c.Failures()))
	}

	s.logger.InfoContext(ctx, "rebuild installed",
		"build_id", buildID,
		"duration", duration,
		"resolved", c.Len(),
		"failed", len(c.Failures()),
	)
	return snapshot, nil
}

// Current returns the installed snapshot, if any. Reads are lock-free.
func (s *RiskService) Current() (*Snapshot, bool) {
	snapshot := s.current.Load()
	return snapshot, snapshot != nil
}

// Query runs a cube query against the current snapshot.
func (s *RiskService) Query(q cube.Query) ([]*cube.ProcessedSource, error) {
	snapshot, ok := s.Current()
	if !ok {
		return nil, ErrNoSnapshot
	}
	return snapshot.Cube.Select(q), nil
}

// Metric computes one metric at one band against the current snapshot.
func (s *RiskService) Metric(ctx context.Context, key string, pc cube.Percentile) (metrics.Result, error) {
	snapshot, ok := s.Current()
	if !ok {
		return metrics.Result{}, ErrNoSnapshot
	}
	if _, ok := s.agg.Definition(key); !ok {
		return metrics.Result{}, fmt.Errorf("%w: %s", ErrMetricNotDeclared, key)
	}

	start := time.Now()
	result := s.agg.Compute(ctx, snapshot.Cube, key, pc)
	if s.engineMetrics != nil {
		s.engineMetrics.MetricDuration.Record(ctx, time.Since(start).Seconds(),
			metric.WithAttributes(attribute.String("metric", key)))
	}
	return result, nil
}

// AllMetrics computes the full catalogue at one band.
func (s *RiskService) AllMetrics(ctx context.Context, pc cube.Percentile) (map[string]metrics.Result, error) {
	snapshot, ok := s.Current()
	if !ok {
		return nil, ErrNoSnapshot
	}
	return s.agg.ComputeAll(ctx, snapshot.Cube, pc), nil
}

// Tornado runs the ranked sensitivity analysis against the current snapshot.
func (s *RiskService) Tornado(ctx context.Context, targetMetric string, variableIDs []string, rng sensitivity.Range) ([]sensitivity.Result, error) {
	snapshot, ok := s.Current()
	if !ok {
		return nil, ErrNoSnapshot
	}
	if s.engineMetrics != nil {
		s.engineMetrics.SensitivityRuns.Add(ctx, 1,
			metric.WithAttributes(attribute.String("metric", targetMetric)))
	}
	return s.sens.Tornado(ctx, snapshot.Cube, targetMetric, variableIDs, rng)
}

// Analyze runs a single-variable sensitivity analysis.
func (s *RiskService) Analyze(ctx context.Context, targetMetric, variableID string, rng sensitivity.Range) (sensitivity.Result, error) {
	snapshot, ok := s.Current()
	if !ok {
		return sensitivity.Result{}, ErrNoSnapshot
	}
	return s.sens.Analyze(ctx, snapshot.Cube, targetMetric, variableID, rng)
}
