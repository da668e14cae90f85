package cube

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"windrisk/internal/scenario"
)

// Builder runs the full resolution pass: it walks the registry in dependency
// order, resolves each source through the operator engine, and materializes
// the cube. A builder is stateless across builds and safe for concurrent use;
// each call produces an independent cube.
type Builder struct {
	logger       *slog.Logger
	transformers *TransformerRegistry
}

// NewBuilder creates a builder with the built-in transformer table.
func NewBuilder(logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{
		logger:       logger,
		transformers: NewTransformerRegistry(),
	}
}

// Transformers exposes the plugin table so callers can register custom
// transformers before the first build.
func (b *Builder) Transformers() *TransformerRegistry {
	return b.transformers
}

// Build resolves the full registry against one scenario document. It is a
// single blocking pass with no internal suspension points; the context is
// checked between sources so a superseded build can be cancelled
// best-effort.
//
// A SchemaViolationError or dependency cycle aborts before any
// scenario-specific work. Per-source failures (unresolvable reference or
// path, failed dependency) are recorded on the cube and do not stop the
// build for unrelated sources.
func (b *Builder) Build(ctx context.Context, reg *Registry, doc *scenario.Document, params BuildParams) (*Cube, error) {
	start := time.Now()

	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("validate build params: %w", err)
	}
	if err := reg.Validate(); err != nil {
		return nil, err
	}
	if err := b.validateTransformers(reg); err != nil {
		return nil, err
	}

	order, err := reg.ResolutionOrder(b.transformerInputs(reg))
	if err != nil {
		return nil, err
	}

	b.logger.InfoContext(ctx, "starting cube build",
		"sources", len(order),
		"percentiles", len(params.Percentiles),
		"years", params.EndYear-params.StartYear+1,
	)

	c := newCube(params)
	deps := make(map[string][]string, len(order))
	for _, def := range order {
		deps[def.ID] = reg.dependenciesOf(def, b.transformerInputs(reg))
	}

	for _, def := range order {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("build cancelled: %w", err)
		}

		if err := b.resolveSource(ctx, c, reg, doc, def, deps[def.ID], params); err != nil {
			b.logger.WarnContext(ctx, "source failed to resolve",
				"source", def.ID,
				"error", err,
			)
			c.fail(def.ID, err)
			continue
		}
	}

	b.logger.InfoContext(ctx, "cube build completed",
		"duration", time.Since(start),
		"resolved", c.Len(),
		"failed", len(c.failures),
	)

	return c, nil
}

// validateTransformers fails fast when a declared transformer name has no
// registered implementation; like a shape violation, this is a
// configuration-time error.
func (b *Builder) validateTransformers(reg *Registry) error {
	for _, def := range reg.Sources {
		if def.Transformer == nil {
			continue
		}
		if _, ok := b.transformers.Lookup(def.Transformer.Name); !ok {
			return &SchemaViolationError{SourceID: def.ID, Reason: fmt.Sprintf("unknown transformer %q", def.Transformer.Name)}
		}
	}
	return nil
}

// transformerInputs adapts the plugin table to the registry's dependency
// callback.
func (b *Builder) transformerInputs(reg *Registry) func(SourceDefinition) []string {
	return func(def SourceDefinition) []string {
		if def.Transformer == nil {
			return nil
		}
		t, ok := b.transformers.Lookup(def.Transformer.Name)
		if !ok {
			return nil
		}
		return t.Inputs(def, reg)
	}
}

// resolveSource runs steps (a)-(f) of the staged resolution for one source:
// read the raw value, merge references, expand through the operator engine,
// apply the multiplier chain, attach metadata and audit, insert.
func (b *Builder) resolveSource(ctx context.Context, c *Cube, reg *Registry, doc *scenario.Document, def SourceDefinition, dependencies []string, params BuildParams) error {
	// A dependency that is registered but absent from the cube failed
	// earlier in the pass; resolution order guarantees it already ran.
	for _, dep := range dependencies {
		if _, ok := c.Source(dep); !ok {
			return &UnresolvedDependencyError{SourceID: def.ID, DependsOn: dep, Reason: "dependency failed to build"}
		}
	}

	refs, err := mergeReferences(def.ID, reg.References, def.References, doc)
	if err != nil {
		return err
	}

	var raw *RawValue
	if def.Type != SourceVirtual {
		lookup, ok := doc.Lookup(def.Path)
		if !ok {
			return &ReferenceNotFoundError{SourceID: def.ID, Path: def.Path}
		}
		value, err := ParseRawValue(lookup)
		if err != nil {
			return fmt.Errorf("source %q: path %q: %w", def.ID, def.Path, err)
		}
		raw = &value
	}

	var series []PercentileSeries
	if def.Transformer != nil {
		t, _ := b.transformers.Lookup(def.Transformer.Name)
		series, err = t.Apply(TransformContext{
			Def:    def,
			Raw:    raw,
			Refs:   refs,
			Params: params,
			Cube:   c,
		})
		if err != nil {
			return err
		}
		if err := ensureFullCoverage(def.ID, series, params); err != nil {
			return err
		}
	} else {
		series, err = expand(*raw, def, params)
		if err != nil {
			return err
		}
	}

	audit := Audit{
		AppliedMultipliers: make([]AppliedMultiplier, 0, len(def.Multipliers)),
		DependencyChain:    dependencies,
	}
	for _, m := range def.Multipliers {
		var applied AppliedMultiplier
		series, applied, err = applyMultiplier(def, m, series, refs, c, params)
		if err != nil {
			return err
		}
		audit.AppliedMultipliers = append(audit.AppliedMultipliers, applied)
	}

	c.insert(&ProcessedSource{
		ID:       def.ID,
		Series:   series,
		Metadata: def.Metadata,
		Audit:    audit,
	})
	return nil
}

// ensureFullCoverage verifies a transformer returned a series for every
// available band; partial collections would break the broadcast invariant
// downstream.
func ensureFullCoverage(sourceID string, series []PercentileSeries, params BuildParams) error {
	covered := make(map[Percentile]bool, len(series))
	for _, s := range series {
		covered[s.Percentile] = true
	}
	for _, pc := range params.Percentiles {
		if !covered[pc] {
			return fmt.Errorf("source %q: transformer output missing %s band", sourceID, pc.Key())
		}
	}
	return nil
}
