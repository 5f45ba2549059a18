// CLAUDE:SUMMARY Closed Op sum type with typed payloads, pure page-sequence transforms, and untyped-argument decoding.
package pagemanip

import (
	"fmt"
	"slices"
)

// Op is one operation on the current page sequence. The set of
// implementations is closed: only the types in this file satisfy it.
type Op interface {
	Kind() OpKind
	isOp()
}

// InsertBlank inserts a fresh blank page at Position (0-based).
// Position == page count appends.
type InsertBlank struct {
	Position int `json:"position"`
}

// InsertFirst inserts a blank page in front of the document.
type InsertFirst struct{}

// InsertLast appends a blank page.
type InsertLast struct{}

// InsertAfter inserts a blank page right after the page at position Page.
type InsertAfter struct {
	Page int `json:"page"`
}

// ExtractPages keeps the pages at Indices, in the order given.
// Indices matching no position are dropped.
type ExtractPages struct {
	Indices []int `json:"indices"`
}

// ExtractRange keeps the inclusive slice [Start, End].
type ExtractRange struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// ExtractEvens keeps the pages at positions 0, 2, 4...
type ExtractEvens struct{}

// ExtractOdds keeps the pages at positions 1, 3, 5...
type ExtractOdds struct{}

// RemoveFirst drops the first page.
type RemoveFirst struct{}

// RemoveLast drops the last page.
type RemoveLast struct{}

// RemovePages drops the pages at Indices and keeps the rest in order.
type RemovePages struct {
	Indices []int `json:"indices"`
}

// Restore resets the current sequence to the pages read at load time.
type Restore struct{}

func (InsertBlank) Kind() OpKind  { return OpInsertBlank }
func (InsertFirst) Kind() OpKind  { return OpInsertFirst }
func (InsertLast) Kind() OpKind   { return OpInsertLast }
func (InsertAfter) Kind() OpKind  { return OpInsertAfter }
func (ExtractPages) Kind() OpKind { return OpExtractPages }
func (ExtractRange) Kind() OpKind { return OpExtractRange }
func (ExtractEvens) Kind() OpKind { return OpExtractEvens }
func (ExtractOdds) Kind() OpKind  { return OpExtractOdds }
func (RemoveFirst) Kind() OpKind  { return OpRemoveFirst }
func (RemoveLast) Kind() OpKind   { return OpRemoveLast }
func (RemovePages) Kind() OpKind  { return OpRemovePages }
func (Restore) Kind() OpKind      { return OpRestore }

func (InsertBlank) isOp()  {}
func (InsertFirst) isOp()  {}
func (InsertLast) isOp()   {}
func (InsertAfter) isOp()  {}
func (ExtractPages) isOp() {}
func (ExtractRange) isOp() {}
func (ExtractEvens) isOp() {}
func (ExtractOdds) isOp()  {}
func (RemoveFirst) isOp()  {}
func (RemoveLast) isOp()   {}
func (RemovePages) isOp()  {}
func (Restore) isOp()      {}

// Args is the untyped form of an operation's arguments, as decoded from
// JSON, YAML or the command line.
type Args struct {
	Position *int  `json:"position,omitempty" yaml:"position,omitempty"`
	Page     *int  `json:"page,omitempty" yaml:"page,omitempty"`
	Indices  []int `json:"indices,omitempty" yaml:"indices,omitempty"`
	Start    *int  `json:"start,omitempty" yaml:"start,omitempty"`
	End      *int  `json:"end,omitempty" yaml:"end,omitempty"`
}

// ParseOpKind validates an operation name.
func ParseOpKind(s string) (OpKind, error) {
	k := OpKind(s)
	if slices.Contains(Kinds(), k) {
		return k, nil
	}
	return "", fmt.Errorf("pagemanip: %q: %w", s, ErrUnknownAction)
}

// OpFromArgs builds the typed Op for kind. Missing required arguments fail
// with ErrValidation; range checks happen when the Op is applied.
func OpFromArgs(kind OpKind, args Args) (Op, error) {
	need := func(name string, v *int) (int, error) {
		if v == nil {
			return 0, fmt.Errorf("pagemanip: %s: %s is required: %w", kind, name, ErrValidation)
		}
		return *v, nil
	}

	switch kind {
	case OpInsertBlank:
		pos, err := need("position", args.Position)
		if err != nil {
			return nil, err
		}
		return InsertBlank{Position: pos}, nil
	case OpInsertFirst:
		return InsertFirst{}, nil
	case OpInsertLast:
		return InsertLast{}, nil
	case OpInsertAfter:
		page, err := need("page", args.Page)
		if err != nil {
			return nil, err
		}
		return InsertAfter{Page: page}, nil
	case OpExtractPages:
		return ExtractPages{Indices: args.Indices}, nil
	case OpExtractRange:
		start, err := need("start", args.Start)
		if err != nil {
			return nil, err
		}
		end, err := need("end", args.End)
		if err != nil {
			return nil, err
		}
		return ExtractRange{Start: start, End: end}, nil
	case OpExtractEvens:
		return ExtractEvens{}, nil
	case OpExtractOdds:
		return ExtractOdds{}, nil
	case OpRemoveFirst:
		return RemoveFirst{}, nil
	case OpRemoveLast:
		return RemoveLast{}, nil
	case OpRemovePages:
		return RemovePages{Indices: args.Indices}, nil
	case OpRestore:
		return Restore{}, nil
	default:
		return nil, fmt.Errorf("pagemanip: %q: %w", kind, ErrUnknownAction)
	}
}

// --- pure transforms ---
//
// None of these modify their input slice; each returns a new one.

func insertAt(pages []Page, pos int, p Page) []Page {
	out := make([]Page, 0, len(pages)+1)
	out = append(out, pages[:pos]...)
	out = append(out, p)
	return append(out, pages[pos:]...)
}

func pick(pages []Page, indices []int) []Page {
	out := make([]Page, 0, len(indices))
	for _, i := range indices {
		if i >= 0 && i < len(pages) {
			out = append(out, pages[i])
		}
	}
	return out
}

func sliceRange(pages []Page, start, end int) []Page {
	return slices.Clone(pages[start : end+1])
}

// parity returns the pages whose position modulo 2 equals rem.
func parity(pages []Page, rem int) []Page {
	out := make([]Page, 0, (len(pages)+1-rem)/2)
	for i := rem; i < len(pages); i += 2 {
		out = append(out, pages[i])
	}
	return out
}

func without(pages []Page, indices []int) []Page {
	drop := make(map[int]struct{}, len(indices))
	for _, i := range indices {
		drop[i] = struct{}{}
	}
	out := make([]Page, 0, len(pages))
	for i, p := range pages {
		if _, ok := drop[i]; !ok {
			out = append(out, p)
		}
	}
	return out
}
