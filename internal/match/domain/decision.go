package domain

// Decision represents the outcome of evaluating a candidate against a matcher.
// Pure value type, no external dependencies.
type Decision struct {
	Accepted  bool // true if the first matching rule accepts
	Matched   bool // true if any rule matched
	RuleIndex int  // index of the matched rule in insertion order, -1 when unmatched
	Rule      Rule // matched rule, zero value when unmatched
}

// IsAccepted is a convenience accessor.
func (d Decision) IsAccepted() bool { return d.Accepted }

// RejectDecision returns the default unmatched decision.
func RejectDecision() Decision { return Decision{RuleIndex: -1} }
