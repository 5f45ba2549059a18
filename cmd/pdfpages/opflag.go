package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/hazyhaar/pdfpages/pagemanip"
)

// parseOpFlag parses one --op value: kind[:args].
//
//	insert_first
//	insert_blank:2
//	add_after_page:0
//	extract_pages:3,0,3
//	extract_range:1-4
//	remove_pages:0,2
func parseOpFlag(s string) (pagemanip.Op, error) {
	name, raw, hasArgs := strings.Cut(strings.TrimSpace(s), ":")
	kind, err := pagemanip.ParseOpKind(name)
	if err != nil {
		return nil, err
	}

	var args pagemanip.Args
	if hasArgs {
		switch kind {
		case pagemanip.OpInsertBlank:
			args.Position, err = intArg(raw)
		case pagemanip.OpInsertAfter:
			args.Page, err = intArg(raw)
		case pagemanip.OpExtractPages, pagemanip.OpRemovePages:
			args.Indices, err = intList(raw)
		case pagemanip.OpExtractRange:
			lo, hi, ok := strings.Cut(raw, "-")
			if !ok {
				return nil, fmt.Errorf("%s: range must be start-end: %w", kind, pagemanip.ErrValidation)
			}
			if args.Start, err = intArg(lo); err == nil {
				args.End, err = intArg(hi)
			}
		default:
			return nil, fmt.Errorf("%s takes no arguments: %w", kind, pagemanip.ErrValidation)
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", kind, err)
		}
	}
	return pagemanip.OpFromArgs(kind, args)
}

func intArg(s string) (*int, error) {
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("%q is not an integer: %w", s, pagemanip.ErrValidation)
	}
	return &v, nil
}

func intList(s string) ([]int, error) {
	var out []int
	for _, f := range strings.Split(s, ",") {
		if strings.TrimSpace(f) == "" {
			continue
		}
		v, err := intArg(f)
		if err != nil {
			return nil, err
		}
		out = append(out, *v)
	}
	return out, nil
}
