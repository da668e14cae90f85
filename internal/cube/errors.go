package cube

import "fmt"

// SchemaViolationError reports a malformed source declaration. It is a
// configuration-time error: registry validation fails fast before any
// scenario-specific work, and the build never starts.
type SchemaViolationError struct {
	SourceID string
	Reason   string
}

func (e *SchemaViolationError) Error() string {
	return fmt.Sprintf("schema violation in source %q: %s", e.SourceID, e.Reason)
}

// ReferenceNotFoundError reports a reference whose path failed to resolve
// against the scenario document. It is fatal for the affected source only;
// the build continues for unrelated sources.
type ReferenceNotFoundError struct {
	SourceID    string
	ReferenceID string
	Path        string
}

func (e *ReferenceNotFoundError) Error() string {
	if e.ReferenceID == "" {
		return fmt.Sprintf("source %q: path %q not found in scenario document", e.SourceID, e.Path)
	}
	return fmt.Sprintf("source %q: reference %q path %q not found in scenario document", e.SourceID, e.ReferenceID, e.Path)
}

// UnresolvedDependencyError reports a source whose operand or input set
// named a source that is not resolved at the time it is needed: a missing
// id, a forward reference, a dependency cycle, or a dependency that itself
// failed to build.
type UnresolvedDependencyError struct {
	SourceID  string
	DependsOn string
	Reason    string
}

func (e *UnresolvedDependencyError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("source %q: dependency %q is not resolved", e.SourceID, e.DependsOn)
	}
	return fmt.Sprintf("source %q: dependency %q is not resolved: %s", e.SourceID, e.DependsOn, e.Reason)
}
