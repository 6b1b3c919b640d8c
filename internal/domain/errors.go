package domain

import "errors"

var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("entity not found")

	// ErrCannotDecode is returned when calldata cannot be matched against
	// any known function, or is malformed for the matched function.
	ErrCannotDecode = errors.New("cannot decode data")

	// ErrUnexpectedDecoding is returned when decoding fails for a reason
	// that indicates a bug rather than unknown calldata.
	ErrUnexpectedDecoding = errors.New("unexpected problem decoding")

	// ErrChainNotSupported is returned by a metadata provider that has no
	// endpoint for the requested chain.
	ErrChainNotSupported = errors.New("chain not supported")
)
