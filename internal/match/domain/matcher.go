package domain

import (
	"fmt"
	"net"
)

// Matcher evaluates byte candidates against an ordered list of rules.
//
// Decision policy:
// - rules are tested in insertion order
// - the first matching rule decides
// - if no rule matched, the candidate is rejected
//
// A Matcher is not safe for concurrent mutation. Build a new one (or Clone)
// and swap the reference when the policy changes.
type Matcher struct {
	rules []Rule
}

// NewMatcher returns an empty matcher that rejects everything.
func NewMatcher() *Matcher {
	return &Matcher{}
}

// NewMatcherFromRules builds a matcher from already constructed rules, validating each.
func NewMatcherFromRules(rules []Rule) (*Matcher, error) {
	m := &Matcher{rules: make([]Rule, 0, len(rules))}
	for i, r := range rules {
		if err := m.AddRule(r); err != nil {
			return nil, fmt.Errorf("rule %d: %w", i, err)
		}
	}
	return m, nil
}

// AddExactAcceptRule appends a rule accepting candidates equal to value under mask.
func (m *Matcher) AddExactAcceptRule(value, mask []byte) error {
	return m.add(RuleExact, Accept, value, mask)
}

// AddExactRejectRule appends a rule rejecting candidates equal to value under mask.
func (m *Matcher) AddExactRejectRule(value, mask []byte) error {
	return m.add(RuleExact, Reject, value, mask)
}

// AddPrefixAcceptRule appends a rule accepting candidates starting with value under mask.
func (m *Matcher) AddPrefixAcceptRule(value, mask []byte) error {
	return m.add(RulePrefix, Accept, value, mask)
}

// AddPrefixRejectRule appends a rule rejecting candidates starting with value under mask.
func (m *Matcher) AddPrefixRejectRule(value, mask []byte) error {
	return m.add(RulePrefix, Reject, value, mask)
}

// AddRule appends a constructed rule after validating it.
func (m *Matcher) AddRule(r Rule) error {
	return m.add(r.Kind, r.Disposition, r.Value, r.Mask)
}

func (m *Matcher) add(kind RuleKind, disp Disposition, value, mask []byte) error {
	r, err := NewRule(kind, disp, value, mask)
	if err != nil {
		return err
	}
	m.rules = append(m.rules, r)
	return nil
}

// Decide returns the decision of the first matching rule.
func (m *Matcher) Decide(candidate []byte) Decision {
	for i := range m.rules {
		if !m.rules[i].Matches(candidate) {
			continue
		}
		return Decision{
			Accepted:  m.rules[i].Disposition == Accept,
			Matched:   true,
			RuleIndex: i,
			Rule:      m.rules[i].clone(),
		}
	}
	return RejectDecision()
}

// DecideRejects returns the decision of the first matching reject rule,
// skipping accept rules. It equals Decide whenever no accept rule matches candidate.
func (m *Matcher) DecideRejects(candidate []byte) Decision {
	for i := range m.rules {
		if m.rules[i].Disposition != Reject || !m.rules[i].Matches(candidate) {
			continue
		}
		return Decision{
			Matched:   true,
			RuleIndex: i,
			Rule:      m.rules[i].clone(),
		}
	}
	return RejectDecision()
}

// Test reports whether candidate is accepted.
func (m *Matcher) Test(candidate []byte) bool {
	return m.Decide(candidate).Accepted
}

// TestMACAddress reports whether the hardware address is accepted.
func (m *Matcher) TestMACAddress(addr net.HardwareAddr) bool {
	return m.Test(addr)
}

// Len returns the number of rules.
func (m *Matcher) Len() int { return len(m.rules) }

// Rules returns a deep copy of the ordered rules.
func (m *Matcher) Rules() []Rule {
	out := make([]Rule, len(m.rules))
	for i := range m.rules {
		out[i] = m.rules[i].clone()
	}
	return out
}

// Clone returns an independent matcher with the same rules.
func (m *Matcher) Clone() *Matcher {
	return &Matcher{rules: m.Rules()}
}
