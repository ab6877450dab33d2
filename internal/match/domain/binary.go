package domain

import (
	"encoding/binary"
	"fmt"
)

// binaryVersion is the leading byte of the binary encoding.
const binaryVersion byte = 1

const flagMasked byte = 1 << 0

// ruleType packs kind and disposition into the on-wire type byte.
func ruleType(kind RuleKind, disp Disposition) byte {
	return byte(kind)<<1 | byte(disp)
}

// MarshalBinary implements encoding.BinaryMarshaler.
//
// Layout:
//
//	version(1) count(uvarint) { type(1) flags(1) len(uvarint) value[len] [mask[len]] }*
func (m *Matcher) MarshalBinary() ([]byte, error) {
	size := 1 + binary.MaxVarintLen64
	for _, r := range m.rules {
		size += 2 + binary.MaxVarintLen64 + len(r.Value) + len(r.Mask)
	}
	buf := make([]byte, 0, size)
	buf = append(buf, binaryVersion)
	buf = binary.AppendUvarint(buf, uint64(len(m.rules)))
	for _, r := range m.rules {
		var flags byte
		if r.Mask != nil {
			flags |= flagMasked
		}
		buf = append(buf, ruleType(r.Kind, r.Disposition), flags)
		buf = binary.AppendUvarint(buf, uint64(len(r.Value)))
		buf = append(buf, r.Value...)
		if r.Mask != nil {
			buf = append(buf, r.Mask...)
		}
	}
	return buf, nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler. On error m is left unchanged.
func (m *Matcher) UnmarshalBinary(data []byte) error {
	decoded, err := DecodeBinary(data)
	if err != nil {
		return err
	}
	m.rules = decoded.rules
	return nil
}

// DecodeBinary parses the binary form produced by MarshalBinary.
func DecodeBinary(data []byte) (*Matcher, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty binary input", ErrMalformedRule)
	}
	if data[0] != binaryVersion {
		return nil, fmt.Errorf("%w: unsupported binary version %d", ErrMalformedRule, data[0])
	}
	off := 1
	count, n := binary.Uvarint(data[off:])
	if n <= 0 {
		return nil, fmt.Errorf("%w: bad rule count", ErrMalformedRule)
	}
	off += n
	// every rule needs at least three bytes, which bounds the allocation
	if count > uint64(len(data)-off)/3 {
		return nil, fmt.Errorf("%w: rule count %d exceeds input", ErrMalformedRule, count)
	}

	m := &Matcher{rules: make([]Rule, 0, count)}
	for i := uint64(0); i < count; i++ {
		if len(data)-off < 2 {
			return nil, fmt.Errorf("%w: rule %d: truncated header", ErrMalformedRule, i)
		}
		typ, flags := data[off], data[off+1]
		off += 2
		if typ > ruleType(RulePrefix, Reject) {
			return nil, fmt.Errorf("%w: rule %d: unknown type %d", ErrMalformedRule, i, typ)
		}
		if flags&^flagMasked != 0 {
			return nil, fmt.Errorf("%w: rule %d: unknown flags %#x", ErrMalformedRule, i, flags)
		}
		l, n := binary.Uvarint(data[off:])
		if n <= 0 {
			return nil, fmt.Errorf("%w: rule %d: bad length", ErrMalformedRule, i)
		}
		off += n
		need := l
		if flags&flagMasked != 0 {
			need *= 2
		}
		if l > uint64(len(data)) || need > uint64(len(data)-off) {
			return nil, fmt.Errorf("%w: rule %d: truncated pattern", ErrMalformedRule, i)
		}
		r := Rule{
			Kind:        RuleKind(typ >> 1),
			Disposition: Disposition(typ & 1),
			Value:       cloneBytes(data[off : off+int(l)]),
		}
		off += int(l)
		if flags&flagMasked != 0 {
			r.Mask = cloneBytes(data[off : off+int(l)])
			off += int(l)
		}
		m.rules = append(m.rules, r)
	}
	if off != len(data) {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrMalformedRule, len(data)-off)
	}
	return m, nil
}
