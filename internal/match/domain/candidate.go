package domain

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// ParseCandidate decodes a hex candidate, ignoring the separators used in
// hardware addresses ("00:11:22", "00-11-22", "0011.2233") and spaces.
func ParseCandidate(s string) ([]byte, error) {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case ':', '-', '.', ' ':
			return -1
		}
		return r
	}, s)
	b, err := hex.DecodeString(cleaned)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid hex candidate %q: %v", ErrInvalidArgument, s, err)
	}
	return b, nil
}
