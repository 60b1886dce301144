package breakpoints

import "errors"

var (
	// ErrNotFound is returned when no record exists at the given key.
	ErrNotFound = errors.New("not found")

	// ErrInvalidAddress is returned when an address isn't a valid 32-bit
	// hexadecimal number.
	ErrInvalidAddress = errors.New("invalid address")

	// ErrConditionParse is returned when a condition doesn't parse.
	ErrConditionParse = errors.New("invalid condition")
)
