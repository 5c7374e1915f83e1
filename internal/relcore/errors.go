package relcore

import "fmt"

// Error kinds follow the taxonomy in spec §7. invalid-parameter and
// unsupported are represented as plain sentinel errors (callers test with
// errors.Is); not-found is not an error at all, lookups return a zero value
// with ok=false; constraint-violated and internal carry structured data via
// typed errors so a host can log or report them meaningfully.

var (
	// ErrInvalidParameter is returned when a required argument is missing
	// or zero. The caller is expected to recover; no mutation is made.
	ErrInvalidParameter = fmt.Errorf("relcore: invalid parameter")

	// ErrUnsupported is returned when a feature is gated by configuration,
	// e.g. a relation that was never declared acyclic being used where
	// acyclicity is required.
	ErrUnsupported = fmt.Errorf("relcore: unsupported")
)

// ConstraintKind names the specific invariant a ConstraintError reports.
type ConstraintKind int

const (
	// ConstraintExclusive: a second instance of an Exclusive relation was
	// added without replacing the existing one.
	ConstraintExclusive ConstraintKind = iota
	// ConstraintOneOf: a pair's relation declares oneof(Relation)=K but the
	// target doesn't have (ChildOf, K).
	ConstraintOneOf
	// ConstraintFinal: is-a targeted a base marked Final.
	ConstraintFinal
	// ConstraintCycle: an acyclic relation would form a cycle.
	ConstraintCycle
)

func (k ConstraintKind) String() string {
	switch k {
	case ConstraintExclusive:
		return "exclusive-violation"
	case ConstraintOneOf:
		return "oneof-violation"
	case ConstraintFinal:
		return "final-violation"
	case ConstraintCycle:
		return "acyclic-cycle"
	default:
		return "unknown-constraint"
	}
}

// ConstraintError reports a constraint-violated failure (spec §7). No
// partial state is committed when one of these is returned.
type ConstraintError struct {
	Kind   ConstraintKind
	Entity Entity
	ID     ID
}

func (e *ConstraintError) Error() string {
	return fmt.Sprintf("relcore: %s on entity %s id %s", e.Kind, e.Entity, e.ID)
}

// InternalError reports a broken invariant — spec §7 classifies these as
// fatal ("crash-debug, report in release"). The core never panics on one
// of these paths itself; it returns InternalError and lets the host decide
// whether to crash, matching Go's no-panic-across-package-boundaries idiom.
type InternalError struct {
	Invariant string
}

func (e *InternalError) Error() string {
	return fmt.Sprintf("relcore: internal invariant violated: %s", e.Invariant)
}

func internalf(format string, args ...any) error {
	return &InternalError{Invariant: fmt.Sprintf(format, args...)}
}
