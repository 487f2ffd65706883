package extract

import (
	"errors"
	"fmt"
)

// Kind tags a terminal extraction failure.
type Kind string

const (
	// KindTransport means the backend was unreachable, timed out or reported an error.
	KindTransport Kind = "transport"
	// KindUnparseableOutput means the backend reply was not JSON even after the strict retry.
	KindUnparseableOutput Kind = "unparseable_output"
	// KindSchemaShape means the backend reply was JSON but not an object after the strict retry.
	KindSchemaShape Kind = "schema_shape"
	// KindCanceled means the caller canceled the request.
	KindCanceled Kind = "canceled"
)

// Sentinel errors matched by errors.Is against an *Error of the same kind.
var (
	ErrTransport         = errors.New("backend unavailable")
	ErrUnparseableOutput = errors.New("backend output is not valid JSON")
	ErrSchemaShape       = errors.New("backend output is not a JSON object")
	ErrCanceled          = errors.New("extraction canceled")

	// ErrEmptySchema is returned before any backend call when the schema has no fields.
	ErrEmptySchema = errors.New("schema has no fields")
	// ErrNoBackend is returned by New when no backend is configured.
	ErrNoBackend = errors.New("no extraction backend configured")
)

var sentinels = map[Kind]error{
	KindTransport:         ErrTransport,
	KindUnparseableOutput: ErrUnparseableOutput,
	KindSchemaShape:       ErrSchemaShape,
	KindCanceled:          ErrCanceled,
}

// Error is a terminal extraction failure. No partial result accompanies it.
type Error struct {
	Kind     Kind
	Attempts int
	Err      error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("extraction failed (%s) after %d attempt(s)", e.Kind, e.Attempts)
	}
	return fmt.Sprintf("extraction failed (%s) after %d attempt(s): %v", e.Kind, e.Attempts, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the sentinel for the error's kind.
func (e *Error) Is(target error) bool {
	s, ok := sentinels[e.Kind]
	return ok && s == target
}

// KindOf returns the kind of an extraction failure, or "" if err is not one.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
