package cube

import (
	"fmt"
	"os"
	"sort"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v2"
)

// Registry is the declarative list of sources plus the globally scoped
// references. It is supplied at startup as an explicit configuration value
// and passed into every build; nothing in the engine holds it as ambient
// state, so concurrent scenarios resolve without cross-talk.
type Registry struct {
	Sources    []SourceDefinition `yaml:"sources" validate:"required,min=1,dive"`
	References []Reference        `yaml:"references,omitempty" validate:"dive"`
}

// LoadRegistry reads a registry configuration from a YAML file and validates
// it. A malformed declaration fails here, before any scenario-specific work.
func LoadRegistry(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read registry: %w", err)
	}
	var reg Registry
	if err := yaml.Unmarshal(data, &reg); err != nil {
		return nil, fmt.Errorf("parse registry: %w", err)
	}
	if err := reg.Validate(); err != nil {
		return nil, err
	}
	return &reg, nil
}

// Validate checks structural constraints and the per-type shape invariants.
// Any violation is a SchemaViolationError naming the offending source.
func (r *Registry) Validate() error {
	validate := validator.New()
	if err := validate.Struct(r); err != nil {
		return &SchemaViolationError{Reason: err.Error()}
	}

	seen := make(map[string]bool, len(r.Sources))
	for _, def := range r.Sources {
		if seen[def.ID] {
			return &SchemaViolationError{SourceID: def.ID, Reason: "duplicate source id"}
		}
		seen[def.ID] = true

		if err := validateShape(def); err != nil {
			return err
		}
	}

	refIDs := make(map[string]bool, len(r.References))
	for _, ref := range r.References {
		if refIDs[ref.ID] {
			return &SchemaViolationError{Reason: fmt.Sprintf("duplicate global reference id %q", ref.ID)}
		}
		refIDs[ref.ID] = true
	}

	return nil
}

// validateShape enforces the declaration invariants for one source.
func validateShape(def SourceDefinition) error {
	switch def.Type {
	case SourceDirect:
		if def.Path == "" {
			return &SchemaViolationError{SourceID: def.ID, Reason: "direct source requires a path"}
		}
		if len(def.Multipliers) > 0 {
			return &SchemaViolationError{SourceID: def.ID, Reason: "direct source declares multipliers"}
		}
	case SourceIndirect:
		if def.Path == "" {
			return &SchemaViolationError{SourceID: def.ID, Reason: "indirect source requires a path"}
		}
		if len(def.Multipliers) == 0 {
			return &SchemaViolationError{SourceID: def.ID, Reason: "indirect source requires multipliers"}
		}
	case SourceVirtual:
		if def.Path != "" {
			return &SchemaViolationError{SourceID: def.ID, Reason: "virtual source declares a path"}
		}
		if def.Transformer == nil {
			return &SchemaViolationError{SourceID: def.ID, Reason: "virtual source requires a transformer"}
		}
	default:
		return &SchemaViolationError{SourceID: def.ID, Reason: fmt.Sprintf("unknown source type %q", def.Type)}
	}

	for _, m := range def.Multipliers {
		switch m.Operation {
		case OpMultiply, OpCompound, OpSimple:
			if m.Operand == "" {
				return &SchemaViolationError{SourceID: def.ID, Reason: fmt.Sprintf("multiplier %q requires an operand", m.ID)}
			}
		case OpSummation:
			if m.Filter == nil {
				return &SchemaViolationError{SourceID: def.ID, Reason: fmt.Sprintf("summation %q requires a filter", m.ID)}
			}
		default:
			return &SchemaViolationError{SourceID: def.ID, Reason: fmt.Sprintf("multiplier %q: unknown operation %q", m.ID, m.Operation)}
		}
	}

	return nil
}

// Source returns the definition for an id.
func (r *Registry) Source(id string) (SourceDefinition, bool) {
	for _, def := range r.Sources {
		if def.ID == id {
			return def, true
		}
	}
	return SourceDefinition{}, false
}

// hasSource reports whether an id names a registered source.
func (r *Registry) hasSource(id string) bool {
	_, ok := r.Source(id)
	return ok
}

// dependenciesOf collects the source ids a definition's processed output
// depends on: multiplier operands that name sources, summation filter
// members, and transformer inputs reported by the plugin table.
func (r *Registry) dependenciesOf(def SourceDefinition, transformerInputs func(SourceDefinition) []string) []string {
	deps := make(map[string]bool)
	for _, m := range def.Multipliers {
		switch m.Operation {
		case OpSummation:
			for _, member := range r.filterMembers(*m.Filter, def.ID) {
				deps[member] = true
			}
		default:
			if r.hasSource(m.Operand) {
				deps[m.Operand] = true
			}
		}
	}
	if transformerInputs != nil {
		for _, id := range transformerInputs(def) {
			if id != def.ID && r.hasSource(id) {
				deps[id] = true
			}
		}
	}

	ordered := make([]string, 0, len(deps))
	for id := range deps {
		ordered = append(ordered, id)
	}
	sort.Strings(ordered)
	return ordered
}

// filterMembers returns the ids of registered sources matching a filter,
// excluding the owner itself.
func (r *Registry) filterMembers(f Filter, excludeID string) []string {
	members := make([]string, 0)
	for _, def := range r.Sources {
		if def.ID != excludeID && f.Matches(def.Metadata) {
			members = append(members, def.ID)
		}
	}
	return members
}

// ResolutionOrder returns the sources ordered for resolution. The order is a
// topological sort (Kahn's algorithm) over declared dependencies; the
// direct/indirect/virtual stage split and ascending priority act only as the
// tie-break for sources with no ordering constraint between them. A cycle is
// reported as an UnresolvedDependencyError naming a participant.
func (r *Registry) ResolutionOrder(transformerInputs func(SourceDefinition) []string) ([]SourceDefinition, error) {
	graph := make(map[string][]string, len(r.Sources))
	inDegree := make(map[string]int, len(r.Sources))
	deps := make(map[string][]string, len(r.Sources))

	for _, def := range r.Sources {
		inDegree[def.ID] = 0
	}
	for _, def := range r.Sources {
		deps[def.ID] = r.dependenciesOf(def, transformerInputs)
		for _, dep := range deps[def.ID] {
			graph[dep] = append(graph[dep], def.ID)
			inDegree[def.ID]++
		}
	}

	// Stage, then priority, then id: deterministic tie-break for sources
	// that the dependency graph leaves unordered.
	less := func(a, b SourceDefinition) bool {
		if a.Stage() != b.Stage() {
			return a.Stage() < b.Stage()
		}
		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}
		return a.ID < b.ID
	}

	ready := make([]SourceDefinition, 0, len(r.Sources))
	for _, def := range r.Sources {
		if inDegree[def.ID] == 0 {
			ready = append(ready, def)
		}
	}
	sort.Slice(ready, func(i, j int) bool { return less(ready[i], ready[j]) })

	ordered := make([]SourceDefinition, 0, len(r.Sources))
	for len(ready) > 0 {
		current := ready[0]
		ready = ready[1:]
		ordered = append(ordered, current)

		released := false
		for _, dependent := range graph[current.ID] {
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				def, _ := r.Source(dependent)
				ready = append(ready, def)
				released = true
			}
		}
		if released {
			sort.Slice(ready, func(i, j int) bool { return less(ready[i], ready[j]) })
		}
	}

	if len(ordered) != len(r.Sources) {
		// Every unprocessed source participates in or depends on a cycle;
		// name the first one deterministically.
		processed := make(map[string]bool, len(ordered))
		for _, def := range ordered {
			processed[def.ID] = true
		}
		remaining := make([]string, 0)
		for _, def := range r.Sources {
			if !processed[def.ID] {
				remaining = append(remaining, def.ID)
			}
		}
		sort.Strings(remaining)
		blocked := remaining[0]
		for _, dep := range deps[blocked] {
			if !processed[dep] {
				return nil, &UnresolvedDependencyError{SourceID: blocked, DependsOn: dep, Reason: "dependency cycle"}
			}
		}
		return nil, &UnresolvedDependencyError{SourceID: blocked, Reason: "dependency cycle"}
	}

	return ordered, nil
}
