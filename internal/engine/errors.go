package engine

import (
	"errors"
	"fmt"
)

// Kind classifies an engine error into the taxonomy the Job Driver and
// Multi-Job Executor reason about when deciding whether to retry, refresh
// the playlist, or fail the job outright.
type Kind int

const (
	// KindUnknown is the zero value, reported by KindOf for errors that
	// carry no explicit kind (plain file-system or context errors).
	KindUnknown Kind = iota
	// KindNotFound means the origin consistently returned 404.
	KindNotFound
	// KindForbidden means the origin returned 403 on the playlist, key, or
	// a segment. Terminal unless the caller refreshes cookies and retries.
	KindForbidden
	// KindPlaylistExpired means a segment returned 410; recovered locally
	// by the Job Driver re-running the Playlist Fetcher.
	KindPlaylistExpired
	// KindTransport covers connection reset, timeout, DNS, and TLS errors.
	KindTransport
	// KindCorruptSegment means a segment file on disk failed the
	// length-mod-16 check.
	KindCorruptSegment
	// KindMergeFailed means the external merge tool exited non-zero or the
	// in-process backend hit a write error.
	KindMergeFailed
	// KindInvalidInput means a malformed playlist, missing key record, or
	// wrong key/IV length.
	KindInvalidInput
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindForbidden:
		return "forbidden"
	case KindPlaylistExpired:
		return "playlist_expired"
	case KindTransport:
		return "transport_error"
	case KindCorruptSegment:
		return "corrupt_segment"
	case KindMergeFailed:
		return "merge_failed"
	case KindInvalidInput:
		return "invalid_input"
	default:
		return "unknown"
	}
}

// Error is an engine error tagged with its Kind so callers can branch with
// errors.As instead of string matching.
type Error struct {
	Kind Kind
	Op   string
	URL  string
	err  error
}

func (e *Error) Error() string {
	if e.URL != "" {
		return fmt.Sprintf("%s: %s (%s): %v", e.Op, e.Kind, e.URL, e.err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.err)
}

func (e *Error) Unwrap() error { return e.err }

// newErr wraps err with a Kind, the operation name, and the URL involved
// (empty if not URL-related).
func newErr(kind Kind, op, url string, err error) *Error {
	return &Error{Kind: kind, Op: op, URL: url, err: err}
}

// KindOf extracts the Kind of err, or KindUnknown if err is not (or does
// not wrap) an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Is404Threshold reports whether count consistently-404 responses should
// be escalated to a terminal NotFound error.
func Is404Threshold(count, threshold int) bool {
	return count >= threshold
}
