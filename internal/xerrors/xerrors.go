// Package xerrors defines the error-kind taxonomy shared across the
// engine: InvalidRequest, ShardNotFound, SegmentCorrupt, IO, Internal.
// Each kind is a sentinel that callers attach with errors.Mark so that
// errors.Is(err, xerrors.InvalidRequest) keeps working through any number
// of errors.Wrapf layers, attaching context without losing the underlying
// classification.
package xerrors

import "github.com/cockroachdb/errors"

// Sentinel kinds, checked with errors.Is after unwrapping any Wrapf chain.
var (
	InvalidRequest = errors.New("invalid request")
	ShardNotFound  = errors.New("shard not found")
	SegmentCorrupt = errors.New("segment corrupt")
	IO             = errors.New("io error")
	Internal       = errors.New("internal invariant violation")
)

// Mark wraps err with msg and classifies it under kind, preserving kind for
// errors.Is while attaching a human-readable message for logs.
func Mark(kind error, err error, msg string) error {
	if err == nil {
		return nil
	}
	return errors.Mark(errors.Wrap(err, msg), kind)
}

// Markf is Mark with a formatted message.
func Markf(kind error, err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return errors.Mark(errors.Wrapf(err, format, args...), kind)
}

// New creates a fresh error of the given kind with a message, for cases
// with no underlying error to wrap (e.g. synchronous request validation).
func New(kind error, msg string) error {
	return errors.Mark(errors.New(msg), kind)
}

// Newf is New with a formatted message.
func Newf(kind error, format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), kind)
}

// Is reports whether err is classified under kind.
func Is(err, kind error) bool { return errors.Is(err, kind) }

// Wrap re-exports errors.Wrap so call sites only need one import for the
// common case of attaching context without changing classification.
func Wrap(err error, msg string) error { return errors.Wrap(err, msg) }

// Wrapf re-exports errors.Wrapf.
func Wrapf(err error, format string, args ...interface{}) error {
	return errors.Wrapf(err, format, args...)
}
