package domain

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// Token markers. The prefix markers are U+2286 and U+2288.
const (
	markerExactAccept  = "+"
	markerExactReject  = "-"
	markerPrefixAccept = "⊆"
	markerPrefixReject = "⊈"
)

// markerAliases lists every accepted token marker, longest first so that
// "+⊆" is not read as "+" followed by garbage.
var markerAliases = []struct {
	marker string
	kind   RuleKind
	disp   Disposition
}{
	{"+" + markerPrefixAccept, RulePrefix, Accept},
	{"-" + markerPrefixAccept, RulePrefix, Reject},
	{markerPrefixAccept, RulePrefix, Accept},
	{markerPrefixReject, RulePrefix, Reject},
	{markerExactAccept, RuleExact, Accept},
	{markerExactReject, RuleExact, Reject},
}

// markerFor returns the canonical single-character marker.
func markerFor(kind RuleKind, disp Disposition) string {
	switch {
	case kind == RuleExact && disp == Accept:
		return markerExactAccept
	case kind == RuleExact && disp == Reject:
		return markerExactReject
	case kind == RulePrefix && disp == Accept:
		return markerPrefixAccept
	default:
		return markerPrefixReject
	}
}

// Decode parses a comma separated list of rule tokens into a Matcher.
//
// Grammar per token: marker hexValue ["/" hexMask], where marker is one of
// "+" (exact accept), "-" (exact reject), "⊆" or "+⊆" (prefix accept),
// "⊈" or "-⊆" (prefix reject). An empty string yields an empty matcher.
// Any malformed token fails the whole decode.
func Decode(text string) (*Matcher, error) {
	m := NewMatcher()
	if strings.TrimSpace(text) == "" {
		return m, nil
	}
	for i, tok := range strings.Split(text, ",") {
		r, err := ParseRule(tok)
		if err != nil {
			return nil, fmt.Errorf("token %d: %w", i, err)
		}
		m.rules = append(m.rules, r)
	}
	return m, nil
}

// ParseRule parses a single rule token.
func ParseRule(token string) (Rule, error) {
	tok := strings.TrimSpace(token)
	if tok == "" {
		return Rule{}, fmt.Errorf("%w: empty token", ErrMalformedRule)
	}

	var (
		kind  RuleKind
		disp  Disposition
		found bool
	)
	for _, a := range markerAliases {
		if strings.HasPrefix(tok, a.marker) {
			kind, disp, found = a.kind, a.disp, true
			tok = tok[len(a.marker):]
			break
		}
	}
	if !found {
		return Rule{}, fmt.Errorf("%w: unknown marker in %q", ErrMalformedRule, token)
	}

	rawValue, rawMask, hasMask := strings.Cut(tok, "/")
	if hasMask && strings.Contains(rawMask, "/") {
		return Rule{}, fmt.Errorf("%w: more than one mask in %q", ErrMalformedRule, token)
	}

	value, err := hex.DecodeString(rawValue)
	if err != nil {
		return Rule{}, fmt.Errorf("%w: value of %q: %v", ErrMalformedRule, token, err)
	}
	var mask []byte
	if hasMask {
		mask, err = hex.DecodeString(rawMask)
		if err != nil {
			return Rule{}, fmt.Errorf("%w: mask of %q: %v", ErrMalformedRule, token, err)
		}
		if len(mask) != len(value) {
			return Rule{}, fmt.Errorf("%w: mask length %d does not match value length %d in %q",
				ErrMalformedRule, len(mask), len(value), token)
		}
	}

	return Rule{Kind: kind, Disposition: disp, Value: value, Mask: mask}, nil
}

// Encode returns the canonical text form of the matcher: comma joined tokens
// in rule order, lowercase hex, single-character markers.
func (m *Matcher) Encode() string {
	tokens := make([]string, len(m.rules))
	for i, r := range m.rules {
		tokens[i] = r.String()
	}
	return strings.Join(tokens, ",")
}

// String implements fmt.Stringer using the text encoding.
func (m *Matcher) String() string { return m.Encode() }

// MarshalText implements encoding.TextMarshaler.
func (m *Matcher) MarshalText() ([]byte, error) {
	return []byte(m.Encode()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. On error m is left unchanged.
func (m *Matcher) UnmarshalText(text []byte) error {
	decoded, err := Decode(string(text))
	if err != nil {
		return err
	}
	m.rules = decoded.rules
	return nil
}
