// Package id defines the identity types for sluice entities.
//
// IDs are plain UUIDs. Job IDs in particular may be supplied by the caller
// (idempotent resubmission across the HTTP layer) or generated here; either
// way they travel unchanged through the ledger, the worker queue, the result
// store, and the blob store.
package id

import (
	"database/sql/driver"
	"fmt"

	"github.com/google/uuid"
)

// ID is the primary identifier type for sluice entities. It wraps a UUID
// and distinguishes the zero value from a generated identifier.
//
//nolint:recvcheck // Value receivers for read-only methods, pointer receivers for UnmarshalText/Scan.
type ID struct {
	inner uuid.UUID
	valid bool
}

// Nil is the zero-value ID.
var Nil ID

// New generates a new random ID.
func New() ID {
	return ID{inner: uuid.New(), valid: true}
}

// Parse parses a UUID string into an ID. Returns an error if the string is
// not a valid UUID.
func Parse(s string) (ID, error) {
	if s == "" {
		return Nil, fmt.Errorf("id: parse %q: empty string", s)
	}

	u, err := uuid.Parse(s)
	if err != nil {
		return Nil, fmt.Errorf("id: parse %q: %w", s, err)
	}

	return ID{inner: u, valid: true}, nil
}

// MustParse is like Parse but panics on error. Use for hardcoded ID values.
func MustParse(s string) ID {
	parsed, err := Parse(s)
	if err != nil {
		panic(fmt.Sprintf("id: must parse %q: %v", s, err))
	}

	return parsed
}

// ──────────────────────────────────────────────────
// Entity aliases
// ──────────────────────────────────────────────────

// JobID identifies a scrape job.
type JobID = ID

// EventID identifies a completion event.
type EventID = ID

// WorkerID identifies a worker pool instance.
type WorkerID = ID

// NewJobID generates a new unique job ID.
func NewJobID() ID { return New() }

// NewEventID generates a new unique event ID.
func NewEventID() ID { return New() }

// NewWorkerID generates a new unique worker ID.
func NewWorkerID() ID { return New() }

// ParseJobID parses a job ID string.
func ParseJobID(s string) (ID, error) { return Parse(s) }

// ParseEventID parses an event ID string.
func ParseEventID(s string) (ID, error) { return Parse(s) }

// ──────────────────────────────────────────────────
// ID methods
// ──────────────────────────────────────────────────

// String returns the canonical UUID string. Returns an empty string for the
// Nil ID.
func (i ID) String() string {
	if !i.valid {
		return ""
	}

	return i.inner.String()
}

// IsNil reports whether this ID is the zero value.
func (i ID) IsNil() bool {
	return !i.valid
}

// MarshalText implements encoding.TextMarshaler.
func (i ID) MarshalText() ([]byte, error) {
	if !i.valid {
		return []byte{}, nil
	}

	return []byte(i.inner.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (i *ID) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*i = Nil
		return nil
	}

	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}

	*i = parsed
	return nil
}

// Value implements driver.Valuer for database storage.
func (i ID) Value() (driver.Value, error) {
	if !i.valid {
		return nil, nil
	}

	return i.inner.String(), nil
}

// Scan implements sql.Scanner for database retrieval.
func (i *ID) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*i = Nil
		return nil
	case string:
		if v == "" {
			*i = Nil
			return nil
		}
		parsed, err := Parse(v)
		if err != nil {
			return err
		}
		*i = parsed
		return nil
	case []byte:
		return i.Scan(string(v))
	default:
		return fmt.Errorf("id: cannot scan %T into ID", src)
	}
}
