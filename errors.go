package growbloom

import "errors"

var (
	// ErrAlreadyExists is returned when a filter is created in a slot that
	// already holds a value.
	ErrAlreadyExists = errors.New("growbloom: filter already exists")

	// ErrNotFound is returned when an operation needs an existing filter
	// and the slot is empty.
	ErrNotFound = errors.New("growbloom: not found")

	// ErrWrongType is returned when a slot holds a value that is not a filter.
	ErrWrongType = errors.New("growbloom: mismatched type")

	// ErrFixed is returned when elements are added to a fixed filter.
	ErrFixed = errors.New("growbloom: filter is fixed")

	// ErrInvalidErrorRate is returned for a false positive rate outside (0, 1).
	ErrInvalidErrorRate = errors.New("growbloom: error rate must be between 0 and 1")

	// ErrMalformedRecord is returned when a persisted filter cannot be
	// decoded. Every decoding failure matches it with errors.Is.
	ErrMalformedRecord = errors.New("growbloom: malformed record")

	// ErrUnsupportedVersion is returned together with ErrMalformedRecord
	// when the encoding version is not supported.
	ErrUnsupportedVersion = errors.New("growbloom: unsupported encoding version")
)
