package store

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned for unknown rule ids and rollback versions.
	ErrNotFound = errors.New("not found")
	// ErrUnknownCategory is a NotFound for category discriminators outside
	// risk, test-protocols and decision.
	ErrUnknownCategory = fmt.Errorf("unknown rule category: %w", ErrNotFound)
	// ErrConflict is returned when a created rule reuses an existing id.
	ErrConflict = errors.New("conflict")
	// ErrMalformedImport is returned when an import payload cannot be decoded
	// or lacks its version or rule list.
	ErrMalformedImport = errors.New("malformed import")
	// ErrUnavailable wraps backend I/O failures.
	ErrUnavailable = errors.New("rule store unavailable")
	// ErrNoData is returned by backends for keys that were never written.
	ErrNoData = errors.New("no data")
)

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
}
