package store

// Default retention values.
const (
	DefaultMaxTurns = 12
	// DefaultReserve is added to the excess so that, once the cap is reached,
	// the pair about to be written fits without exceeding MaxTurns.
	DefaultReserve = 2
)

// Policy caps the number of persisted turns per identity.
type Policy struct {
	MaxTurns int
	Reserve  int
}

// DefaultPolicy returns the policy with the default cap and reserve.
func DefaultPolicy() Policy {
	return Policy{MaxTurns: DefaultMaxTurns, Reserve: DefaultReserve}
}

// Enabled reports whether the policy caps anything.
func (p Policy) Enabled() bool {
	return p.MaxTurns > 0
}

// Triggered reports whether existing stored turns reach the cap.
func (p Policy) Triggered(existing int) bool {
	return p.Enabled() && existing >= p.MaxTurns
}

// Excess returns how many of the oldest turns to delete before the next pair is
// written: existing - MaxTurns + Reserve once the cap is reached, otherwise 0.
// The result never exceeds existing.
func (p Policy) Excess(existing int) int {
	if !p.Triggered(existing) {
		return 0
	}
	n := existing - p.MaxTurns + p.Reserve
	if n < 0 {
		return 0
	}
	if n > existing {
		return existing
	}
	return n
}

// Retention reports what AppendTurns did.
type Retention struct {
	// Existing is the number of stored turns observed before deleting.
	Existing int
	// Deleted is the number of oldest turns removed.
	Deleted int
	// Inserted is the number of turns written.
	Inserted int
}

// Triggered reports whether the cap was reached for this append.
func (r Retention) Triggered(p Policy) bool {
	return p.Triggered(r.Existing)
}
