package vm

import "errors"

// Sentinel errors for the core failure taxonomy. Callers classify failures
// with errors.Is; every function wraps these with position context rather
// than inventing ad-hoc error strings.
var (
	// Encoding domain errors (rejected before any memory write).
	ErrTagRange     = errors.New("tag out of range")
	ErrPayloadRange = errors.New("payload out of range")

	// Decoding type errors.
	ErrNotTagged    = errors.New("not a tagged value")
	ErrNotInvokable = errors.New("value is not invokable")

	// Structural validation errors (strict traversal primitives only).
	ErrMalformed = errors.New("malformed aggregate")

	// Bounds errors (the offending pointer is left unmodified).
	ErrBounds    = errors.New("address out of segment bounds")
	ErrUnaligned = errors.New("unaligned cell address")
	ErrOverflow  = errors.New("stack overflow")
	ErrUnderflow = errors.New("stack underflow")
	ErrRange     = errors.New("slot range out of stack bounds")

	// Arithmetic.
	ErrDivision = errors.New("division by zero")

	// Dictionary lookups.
	ErrUndefined = errors.New("undefined word")
)
