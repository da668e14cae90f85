package cube

import (
	"time"
)

// Cube is the materialized collection of processed sources for one scenario
// and percentile set. It is read-mostly: the builder inserts entries during
// a single blocking pass, after which the cube is immutable. Invalidation
// (scenario edit, percentile-set change) rebuilds wholesale rather than
// patching, so readers only ever see complete snapshots.
type Cube struct {
	params   BuildParams
	builtAt  time.Time
	order    []string
	sources  map[string]*ProcessedSource
	failures map[string]error
}

func newCube(params BuildParams) *Cube {
	return &Cube{
		params:   params,
		builtAt:  time.Now().UTC(),
		sources:  make(map[string]*ProcessedSource),
		failures: make(map[string]error),
	}
}

// insert adds a processed source; build-time only.
func (c *Cube) insert(ps *ProcessedSource) {
	c.sources[ps.ID] = ps
	c.order = append(c.order, ps.ID)
}

// fail records a per-source build failure; build-time only.
func (c *Cube) fail(id string, err error) {
	c.failures[id] = err
}

// Params returns the parameters the cube was built with.
func (c *Cube) Params() BuildParams {
	return c.params
}

// BuiltAt returns when the build pass completed its first insertion window.
func (c *Cube) BuiltAt() time.Time {
	return c.builtAt
}

// Source returns one entry by id.
func (c *Cube) Source(id string) (*ProcessedSource, bool) {
	ps, ok := c.sources[id]
	return ps, ok
}

// Sources returns every entry in resolution order.
func (c *Cube) Sources() []*ProcessedSource {
	out := make([]*ProcessedSource, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.sources[id])
	}
	return out
}

// Len returns the number of processed entries.
func (c *Cube) Len() int {
	return len(c.sources)
}

// Failures returns the per-source build errors. The affected ids have no
// entry in the cube; callers must not treat absence as zero.
func (c *Cube) Failures() map[string]error {
	out := make(map[string]error, len(c.failures))
	for id, err := range c.failures {
		out[id] = err
	}
	return out
}

// Query restricts a cube lookup. Zero fields match everything; Percentile
// additionally requires the entry to carry that band.
type Query struct {
	Percentile    *Percentile
	SourceID      string
	Category      string
	CashflowGroup string
}

// Select returns the entries matching the query, in resolution order.
// Queries never mutate the cube.
func (c *Cube) Select(q Query) []*ProcessedSource {
	out := make([]*ProcessedSource, 0)
	for _, id := range c.order {
		ps := c.sources[id]
		if q.SourceID != "" && q.SourceID != ps.ID {
			continue
		}
		if q.Category != "" && q.Category != ps.Metadata.Category {
			continue
		}
		if q.CashflowGroup != "" && q.CashflowGroup != ps.Metadata.CashflowGroup {
			continue
		}
		if q.Percentile != nil {
			if _, ok := ps.SeriesFor(*q.Percentile); !ok {
				continue
			}
		}
		out = append(out, ps)
	}
	return out
}
