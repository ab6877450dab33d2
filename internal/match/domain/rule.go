package domain

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// RuleKind defines how a rule pattern is compared to a candidate.
//
// exact  - candidate length must equal the pattern length
// prefix - pattern is compared against the leading bytes of the candidate
type RuleKind uint8

const (
	// RuleExact matches candidates of identical length only.
	RuleExact RuleKind = iota
	// RulePrefix matches any candidate starting with the pattern.
	RulePrefix
)

// String returns a stable string representation of the rule kind.
func (k RuleKind) String() string {
	switch k {
	case RuleExact:
		return "exact"
	case RulePrefix:
		return "prefix"
	default:
		return fmt.Sprintf("RuleKind(%d)", k)
	}
}

// ParseRuleKind converts a string into a RuleKind.
// Accepts: "exact", "prefix" (case-insensitive).
func ParseRuleKind(s string) (RuleKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "exact":
		return RuleExact, nil
	case "prefix":
		return RulePrefix, nil
	default:
		return 0, fmt.Errorf("unsupported RuleKind: %q", s)
	}
}

// Disposition is the verdict a matching rule contributes.
type Disposition uint8

const (
	// Accept means a matching candidate is accepted.
	Accept Disposition = iota
	// Reject means a matching candidate is rejected.
	Reject
)

// String returns a stable string representation of the disposition.
func (d Disposition) String() string {
	switch d {
	case Accept:
		return "accept"
	case Reject:
		return "reject"
	default:
		return fmt.Sprintf("Disposition(%d)", d)
	}
}

// ParseDisposition converts a string into a Disposition.
// Accepts: "accept", "reject" (case-insensitive).
func ParseDisposition(s string) (Disposition, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "accept":
		return Accept, nil
	case "reject":
		return Reject, nil
	default:
		return 0, fmt.Errorf("unsupported Disposition: %q", s)
	}
}

// Rule is a single byte-pattern rule.
//
// Notes:
// - Mask is nil when every bit of Value is significant.
// - When Mask is set it has the same length as Value.
// - Rules built through NewRule own copies of their slices and must not be mutated.
type Rule struct {
	Kind        RuleKind
	Disposition Disposition
	Value       []byte
	Mask        []byte
}

// NewRule constructs a Rule and validates its fields. Value and mask are copied.
func NewRule(kind RuleKind, disp Disposition, value, mask []byte) (Rule, error) {
	r := Rule{
		Kind:        kind,
		Disposition: disp,
		Value:       cloneBytes(value),
	}
	if mask != nil {
		r.Mask = cloneBytes(mask)
	}
	if err := r.Validate(); err != nil {
		return Rule{}, err
	}
	return r, nil
}

// Validate checks the rule for supported values and a consistent mask.
func (r Rule) Validate() error {
	switch r.Kind {
	case RuleExact, RulePrefix:
	default:
		return fmt.Errorf("%w: unsupported RuleKind: %d", ErrInvalidArgument, r.Kind)
	}
	switch r.Disposition {
	case Accept, Reject:
	default:
		return fmt.Errorf("%w: unsupported Disposition: %d", ErrInvalidArgument, r.Disposition)
	}
	if r.Mask != nil && len(r.Mask) != len(r.Value) {
		return fmt.Errorf("%w: mask length %d does not match value length %d",
			ErrInvalidArgument, len(r.Mask), len(r.Value))
	}
	return nil
}

// IsExact returns true when the rule kind is exact.
func (r Rule) IsExact() bool { return r.Kind == RuleExact }

// IsPrefix returns true when the rule kind is prefix.
func (r Rule) IsPrefix() bool { return r.Kind == RulePrefix }

// IsMasked returns true when the rule carries a mask.
func (r Rule) IsMasked() bool { return r.Mask != nil }

// Matches reports whether the candidate satisfies the rule pattern,
// regardless of disposition.
func (r Rule) Matches(candidate []byte) bool {
	switch r.Kind {
	case RuleExact:
		if len(candidate) != len(r.Value) {
			return false
		}
	case RulePrefix:
		if len(candidate) < len(r.Value) {
			return false
		}
	default:
		return false
	}
	return maskedEqual(candidate[:len(r.Value)], r.Value, r.Mask)
}

// String returns the rule in its token form, e.g. "+cafe/ff00".
func (r Rule) String() string {
	var sb strings.Builder
	sb.WriteString(markerFor(r.Kind, r.Disposition))
	sb.WriteString(hex.EncodeToString(r.Value))
	if r.Mask != nil {
		sb.WriteByte('/')
		sb.WriteString(hex.EncodeToString(r.Mask))
	}
	return sb.String()
}

// maskedEqual compares a and b byte by byte under mask. A nil mask means 0xFF everywhere.
// a and b must have equal length.
func maskedEqual(a, b, mask []byte) bool {
	if mask == nil {
		for i := range b {
			if a[i] != b[i] {
				return false
			}
		}
		return true
	}
	for i := range b {
		if a[i]&mask[i] != b[i]&mask[i] {
			return false
		}
	}
	return true
}

// clone returns r with its own copies of Value and Mask.
func (r Rule) clone() Rule {
	if r.Value != nil {
		r.Value = cloneBytes(r.Value)
	}
	if r.Mask != nil {
		r.Mask = cloneBytes(r.Mask)
	}
	return r
}

func cloneBytes(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
