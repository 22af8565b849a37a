package bitcode

import (
	"errors"
	"fmt"
)

var (
	// ErrTruncated reports that fewer bits remain than an operation needs.
	// Only complete input can fix it.
	ErrTruncated = errors.New("bitcode: truncated input")
	// ErrInvalidData reports a well-formed bit sequence carrying an impossible
	// value: a tag out of range, invalid UTF-8, a bad code point or a length
	// the remaining input cannot back.
	ErrInvalidData = errors.New("bitcode: invalid data")
	// ErrTrailingData is returned in strict mode when bits remain after a value.
	ErrTrailingData = fmt.Errorf("%w: trailing data after value", ErrInvalidData)
	ErrUnsupported  = errors.New("bitcode: unsupported type")
	ErrNotPointer   = errors.New("bitcode: expected non-nil pointer")
)

func truncated(need, have int) error {
	return fmt.Errorf("%w: need %d bits, %d remain", ErrTruncated, need, have)
}

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrInvalidData}, args...)...)
}

func unsupported(t fmt.Stringer) error {
	return fmt.Errorf("%w: %s", ErrUnsupported, t)
}
