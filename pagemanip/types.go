// CLAUDE:SUMMARY Page handle, codec and recorder contracts plus the closed set of operation kinds.
package pagemanip

import (
	"context"
	"time"
)

// Page is an opaque, immutable handle on one page produced by a Codec.
// The same handle may appear in several sequences at once.
type Page interface {
	// Source returns the 1-based page number in the loaded document,
	// or 0 for a blank page created after load.
	Source() int
	// Blank reports whether the page was created empty by the codec.
	Blank() bool
}

// Codec parses and serialises documents. It is the only component that
// touches PDF bytes and the file system.
type Codec interface {
	// Read parses the file at path into its ordered pages.
	// Implementations wrap ErrNotFound or ErrFormat.
	Read(ctx context.Context, path string) ([]Page, error)
	// NewBlank creates one fresh blank page.
	NewBlank(ctx context.Context) (Page, error)
	// Write serialises pages, in order, to a file at path.
	Write(ctx context.Context, pages []Page, path string) error
}

// Recorder receives one Record per applied operation, successful or not.
// Implementations must not block the caller on failure.
type Recorder interface {
	Record(ctx context.Context, rec Record)
}

// Record describes one operation applied to a Manipulator.
type Record struct {
	Source   string
	Op       OpKind
	Params   any
	Before   int
	After    int
	Err      error
	Duration time.Duration
}

// OpKind names an operation.
type OpKind string

const (
	OpLoad               OpKind = "load"
	OpSave               OpKind = "save"
	OpInsertBlank        OpKind = "insert_blank"
	OpInsertFirst        OpKind = "insert_first"
	OpInsertLast         OpKind = "insert_last"
	OpInsertAfter        OpKind = "add_after_page"
	OpExtractPages       OpKind = "extract_pages"
	OpExtractRange       OpKind = "extract_range"
	OpExtractEvens       OpKind = "extract_evens"
	OpExtractOdds        OpKind = "extract_odds"
	OpExtractEvenOddSave OpKind = "extract_even_odd_and_save"
	OpRemoveFirst        OpKind = "remove_first_page"
	OpRemoveLast         OpKind = "remove_last_page"
	OpRemovePages        OpKind = "remove_pages"
	OpRestore            OpKind = "restore"
)

// Kinds lists the operation kinds accepted by OpFromArgs, in display order.
func Kinds() []OpKind {
	return []OpKind{
		OpInsertBlank, OpInsertFirst, OpInsertLast, OpInsertAfter,
		OpExtractPages, OpExtractRange, OpExtractEvens, OpExtractOdds,
		OpRemoveFirst, OpRemoveLast, OpRemovePages, OpRestore,
	}
}

// State is a JSON-friendly view of a Manipulator. Page lists hold source
// page numbers, 0 standing for a blank page.
type State struct {
	Name          string `json:"name"`
	Path          string `json:"path"`
	Loaded        bool   `json:"loaded"`
	PageCount     int    `json:"page_count"`
	OriginalCount int    `json:"original_page_count"`
	LastOperation OpKind `json:"last_operation,omitempty"`
	Pages         []int  `json:"pages"`
	EvenPages     []int  `json:"even_pages,omitempty"`
	OddPages      []int  `json:"odd_pages,omitempty"`
}

func sourceNumbers(pages []Page) []int {
	out := make([]int, len(pages))
	for i, p := range pages {
		out[i] = p.Source()
	}
	return out
}
