package domain

import (
	"errors"
	"fmt"
)

// FetchError reports a failed network read. Transient; callers may retry.
type FetchError struct {
	URL string
	Err error
}

func (e *FetchError) Error() string { return fmt.Sprintf("fetch %s: %v", e.URL, e.Err) }
func (e *FetchError) Unwrap() error { return e.Err }

// FormatError reports a payload that is not parseable as the expected
// structure. Fatal for the fetch that produced it.
type FormatError struct {
	URL string
	Err error
}

func (e *FormatError) Error() string { return fmt.Sprintf("parse %s: %v", e.URL, e.Err) }
func (e *FormatError) Unwrap() error { return e.Err }

// NotFoundError reports a missing feed, channel, or item, or a listing
// source with no content at all.
type NotFoundError struct {
	Kind string
	Key  string
}

func (e *NotFoundError) Error() string { return fmt.Sprintf("%s %q not found", e.Kind, e.Key) }

// ConflictError reports an attempt to add a source that already exists.
type ConflictError struct {
	Kind string
	Key  string
}

func (e *ConflictError) Error() string { return fmt.Sprintf("%s %q already exists", e.Kind, e.Key) }

func IsFetchError(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe)
}

func IsFormatError(err error) bool {
	var fe *FormatError
	return errors.As(err, &fe)
}

func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}
