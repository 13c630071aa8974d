package policy

// DefaultFailIndex is the 0-based step at which the default policy fails.
// It is a fixed demonstration trigger; production deployments override it
// through fail_at_index or inject their own FailurePolicy.
const DefaultFailIndex = 2

// FailurePolicy decides whether step index (0-based) of total fails.
// Implementations must depend on position only, never on record content,
// so a run is reproducible from its index sequence.
type FailurePolicy interface {
	ShouldFail(index, total int) bool
}

// FailAt fails exactly at one 0-based index, regardless of total.
type FailAt int

func (f FailAt) ShouldFail(index, total int) bool {
	return index == int(f)
}

// Never is a policy under which every step succeeds.
type Never struct{}

func (Never) ShouldFail(int, int) bool { return false }

// FailureFunc adapts a function to FailurePolicy.
type FailureFunc func(index, total int) bool

func (f FailureFunc) ShouldFail(index, total int) bool {
	return f(index, total)
}

// Default returns the policy used when nothing is configured.
func Default() FailurePolicy {
	return FailAt(DefaultFailIndex)
}
