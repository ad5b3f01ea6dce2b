package domain

import (
	"errors"
	"fmt"
)

// Error taxonomy for the ingestion and alerting paths. Each type wraps its
// cause so callers can match with errors.As and still log the root error.

// ErrIngestRunning is returned when an ingestion run is requested while a
// previous run is still in flight. Triggers are skipped, never queued.
var ErrIngestRunning = errors.New("ingestion run already in progress")

// ErrNotFound is returned by store reads when no row matches.
var ErrNotFound = errors.New("not found")

// ErrEmailTaken is returned when registering an email that already exists.
var ErrEmailTaken = errors.New("email already registered")

// FetchError is a network or HTTP-level failure reaching the external feed.
type FetchError struct {
	Err error
}

func (e *FetchError) Error() string { return fmt.Sprintf("fetch feed: %v", e.Err) }
func (e *FetchError) Unwrap() error { return e.Err }

// ParseError is a malformed or unexpectedly shaped feed response body.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string { return fmt.Sprintf("parse feed response: %v", e.Err) }
func (e *ParseError) Unwrap() error { return e.Err }

// StorageError is a connection or write failure against the persistent store.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string { return fmt.Sprintf("storage %s: %v", e.Op, e.Err) }
func (e *StorageError) Unwrap() error { return e.Err }

// MappingError means the normalizer could not build a valid entity from a
// feed record. Field names the offending record field.
type MappingError struct {
	Field  string
	Reason string
}

func (e *MappingError) Error() string {
	return fmt.Sprintf("map feed record: field %q: %s", e.Field, e.Reason)
}
