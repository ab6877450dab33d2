package domain

import "errors"

// Sentinel errors for rule construction and decoding.
var (
	// ErrMalformedRule indicates a rule token or binary record that cannot be decoded.
	ErrMalformedRule = errors.New("malformed rule")
	// ErrInvalidArgument indicates a programmatic rule with inconsistent fields.
	ErrInvalidArgument = errors.New("invalid argument")
)
