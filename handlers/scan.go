// Package handlers implements the directive families applied by the
// parser's fixed pipeline: control structures, includes, components,
// stacks, and variable interpolation. Each handler is a pass over a
// template string that rewrites or removes directive syntax and
// returns the transformed string, grounded on the blade/handlers/*.py
// pass-based design rather than a parse-then-compile approach.
package handlers

import (
	"fmt"
	"regexp"

	"github.com/packalyst/swiftblade/errs"
	"github.com/packalyst/swiftblade/runtime"
)

// Renderer is the callback surface a handler needs to recurse back into
// the full render pipeline — for @include, @extends and component
// bodies, which must themselves run the complete directive pipeline.
// Implemented by the parser package; handlers only see this interface,
// breaking the import cycle that would otherwise exist between parser
// and handlers.
type Renderer interface {
	// Resolve returns the raw source of a named template (path
	// resolution, extension handling, and caching all live behind this
	// call).
	Resolve(name string) (string, error)
	// Process runs the complete directive pipeline over source against
	// ctx, honoring the shared RenderState's recursion counters.
	Process(source string, ctx runtime.Context, state *runtime.RenderState) (string, error)
}

// block describes one matched directive block: the header's own
// boundaries, and the extent of its body up to (not including) the
// matching @end directive.
type block struct {
	HeaderStart int
	HeaderEnd   int
	Args        string
	BodyStart   int
	BodyEnd     int
	BlockEnd    int // index just past the matching @endX
}

// findBlock locates the first @name(...) ... @endname pair in src at or
// after `from`, correctly skipping nested occurrences of the same
// directive pair so `@if` inside `@if` does not confuse the scanner.
// This is the balanced-scan fallback regex-based directive matching
// falls back on once nesting is involved.
func findBlock(src string, from int, name string) (block, bool, error) {
	openRe := regexp.MustCompile(`@` + name + `\b`)
	endRe := regexp.MustCompile(`@end` + name + `\b`)

	loc := openRe.FindStringIndex(src[from:])
	if loc == nil {
		return block{}, false, nil
	}
	headerStart := from + loc[0]
	nameEnd := from + loc[1]
	args := extractParenArgs(src, headerStart, nameEnd)
	headerEnd := nameEnd + len(args)

	depth := 1
	pos := headerEnd
	for depth > 0 {
		openLoc := openRe.FindStringIndex(src[pos:])
		endLoc := endRe.FindStringIndex(src[pos:])
		if endLoc == nil {
			return block{}, false, errs.Syntax(fmt.Sprintf("unclosed @%s", name), src[headerStart:min(headerStart+40, len(src))])
		}
		if openLoc != nil && openLoc[0] < endLoc[0] {
			depth++
			pos += openLoc[1]
			continue
		}
		depth--
		if depth == 0 {
			return block{
				HeaderStart: headerStart,
				HeaderEnd:   headerEnd,
				Args:        args,
				BodyStart:   headerEnd,
				BodyEnd:     pos + endLoc[0],
				BlockEnd:    pos + endLoc[1],
			}, true, nil
		}
		pos += endLoc[1]
	}
	return block{}, false, nil
}

// extractParenArgs returns the full "(...)" text immediately following a
// directive name, honoring nested parens and quoted strings, or "" if
// the directive takes no arguments at this occurrence.
func extractParenArgs(src string, start, afterName int) string {
	i := afterName
	for i < len(src) && (src[i] == ' ' || src[i] == '\t') {
		i++
	}
	if i >= len(src) || src[i] != '(' {
		return ""
	}
	depth := 0
	inStr := false
	var strCh byte
	j := i
	for ; j < len(src); j++ {
		ch := src[j]
		if inStr {
			if ch == strCh && src[j-1] != '\\' {
				inStr = false
			}
			continue
		}
		switch ch {
		case '\'', '"':
			inStr = true
			strCh = ch
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return src[i : j+1]
			}
		}
	}
	return ""
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// trimParens strips one layer of surrounding parentheses, as produced by
// extractParenArgs, leaving the bare expression text.
func trimParens(args string) string {
	if len(args) >= 2 && args[0] == '(' && args[len(args)-1] == ')' {
		return args[1 : len(args)-1]
	}
	return args
}
