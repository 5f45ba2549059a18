// CLAUDE:SUMMARY Sentinel errors and the typed IndexError / PathError carrying the offending index or path.
package pagemanip

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound reports a source path that is not a readable file.
	ErrNotFound = errors.New("document not found")
	// ErrFormat reports content the codec cannot parse.
	ErrFormat = errors.New("invalid document format")
	// ErrNotLoaded reports an operation attempted before Load.
	ErrNotLoaded = errors.New("document not loaded")
	// ErrIndexOutOfRange reports a position or range outside the sequence.
	ErrIndexOutOfRange = errors.New("page index out of range")
	// ErrValidation reports a missing or empty required argument.
	ErrValidation = errors.New("invalid argument")
	// ErrEmptyDocument reports a structural operation on a zero-page sequence.
	ErrEmptyDocument = errors.New("document has no pages")
	// ErrUnknownAction reports an operation kind outside the closed set.
	ErrUnknownAction = errors.New("unknown action")
)

// IndexError is returned when a position falls outside [Min, Max].
type IndexError struct {
	Op    OpKind
	Index int
	Min   int
	Max   int
}

func (e *IndexError) Error() string {
	if e.Max < e.Min {
		return fmt.Sprintf("pagemanip: %s: index %d: document has no pages", e.Op, e.Index)
	}
	return fmt.Sprintf("pagemanip: %s: index %d out of range [%d, %d]", e.Op, e.Index, e.Min, e.Max)
}

func (e *IndexError) Unwrap() error { return ErrIndexOutOfRange }

// PathError records a failed load or save together with the path involved.
type PathError struct {
	Op   OpKind
	Path string
	Err  error
}

func (e *PathError) Error() string {
	return fmt.Sprintf("pagemanip: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *PathError) Unwrap() error { return e.Err }

// Code returns a stable snake_case name for the sentinel wrapped by err,
// "internal" for any other error, and "" for nil.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrFormat):
		return "format"
	case errors.Is(err, ErrNotLoaded):
		return "not_loaded"
	case errors.Is(err, ErrIndexOutOfRange):
		return "index_out_of_range"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrEmptyDocument):
		return "empty_document"
	case errors.Is(err, ErrUnknownAction):
		return "unknown_action"
	default:
		return "internal"
	}
}
