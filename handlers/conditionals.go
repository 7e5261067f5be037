package handlers

import (
	"regexp"
	"strings"

	"github.com/packalyst/swiftblade/evaluator"
	"github.com/packalyst/swiftblade/runtime"
)

var elseifRe = regexp.MustCompile(`@elseif\s*(\([^\n]*)`)

// Conditionals resolves @if/@elseif/@else/@endif and @unless/@endunless,
// grounded on blade's control-structure handler family. Each pass keeps
// reducing the leftmost top-level @if (or @unless) until none remain;
// findBlock returns the outermost matching pair, and conditionals nested
// inside it are resolved when the taken branch is run through
// ProcessInline.
func Conditionals(src string, ev *evaluator.Evaluator, ctx runtime.Context, state *runtime.RenderState, r Renderer, registry *DirectiveRegistry) (string, error) {
	for {
		b, ok, err := findBlock(src, 0, "if")
		if err != nil {
			return "", err
		}
		if !ok {
			break
		}
		resolved, err := resolveIfChain(src, b, ev, ctx, state, r, registry)
		if err != nil {
			return "", err
		}
		src = src[:b.HeaderStart] + resolved + src[b.BlockEnd:]
	}
	for {
		b, ok, err := findBlock(src, 0, "unless")
		if err != nil {
			return "", err
		}
		if !ok {
			break
		}
		cond := trimParens(b.Args)
		body := src[b.BodyStart:b.BodyEnd]
		truthy, err := ev.Truthy(cond, ctx)
		if err != nil {
			return "", err
		}
		out := ""
		if !truthy {
			var ierr error
			out, ierr = ProcessInline(body, ev, ctx, state, r, registry)
			if ierr != nil {
				return "", ierr
			}
		}
		src = src[:b.HeaderStart] + out + src[b.BlockEnd:]
	}
	return src, nil
}

// resolveIfChain evaluates an @if...@endif block's body, splitting it on
// top-level @elseif/@else markers (markers belonging to @if blocks nested
// in the body are skipped by depth tracking) and returning the
// fully-resolved text of whichever branch is taken.
func resolveIfChain(src string, b block, ev *evaluator.Evaluator, ctx runtime.Context, state *runtime.RenderState, r Renderer, registry *DirectiveRegistry) (string, error) {
	body := src[b.BodyStart:b.BodyEnd]
	branches := splitTopLevelBranches(body)

	cond := trimParens(b.Args)
	truthy, err := ev.Truthy(cond, ctx)
	if err != nil {
		return "", err
	}

	for i, br := range branches {
		take := false
		switch {
		case i == 0:
			take = truthy
		case br.isElse:
			take = true
		default:
			t, err := ev.Truthy(br.cond, ctx)
			if err != nil {
				return "", err
			}
			take = t
		}
		if take {
			return ProcessInline(br.body, ev, ctx, state, r, registry)
		}
	}
	return "", nil
}

type ifBranch struct {
	cond   string
	isElse bool
	body   string
}

// splitTopLevelBranches splits an @if block's body on @elseif/@else
// markers that are not nested inside another @if/@unless, using the
// same balanced-depth approach findBlock uses for block pairs.
func splitTopLevelBranches(body string) []ifBranch {
	ifRe := regexp.MustCompile(`@if\b`)
	unlessRe := regexp.MustCompile(`@unless\b`)
	endRe := regexp.MustCompile(`@endif\b|@endunless\b`)
	markerRe := regexp.MustCompile(`@elseif\s*\([^\n]*\)|@else\b`)

	var markers []int
	var markerText []string
	depth := 0
	pos := 0
	for pos < len(body) {
		next := findEarliest(body, pos, ifRe, unlessRe, endRe, markerRe)
		if next == nil {
			break
		}
		switch next.which {
		case 0, 1:
			depth++
		case 2:
			depth--
		case 3:
			if depth == 0 {
				markers = append(markers, next.start)
				markerText = append(markerText, body[next.start:next.end])
			}
		}
		pos = next.end
	}

	var branches []ifBranch
	start := 0
	firstCond := ""
	for i := 0; i <= len(markers); i++ {
		var end int
		if i < len(markers) {
			end = markers[i]
		} else {
			end = len(body)
		}
		seg := body[start:end]
		if i == 0 {
			branches = append(branches, ifBranch{cond: firstCond, body: seg})
		} else {
			txt := markerText[i-1]
			if strings.HasPrefix(txt, "@else") && !strings.HasPrefix(txt, "@elseif") {
				branches = append(branches, ifBranch{isElse: true, body: seg})
			} else {
				c := elseifRe.FindStringSubmatch(txt)
				cond := ""
				if len(c) > 1 {
					cond = trimParens(c[1])
				}
				branches = append(branches, ifBranch{cond: cond, body: seg})
			}
		}
		if i < len(markers) {
			start = markers[i] + len(markerText[i])
		}
	}
	return branches
}

type earliestMatch struct {
	which      int
	start, end int
}

func findEarliest(s string, from int, res ...*regexp.Regexp) *earliestMatch {
	var best *earliestMatch
	for i, re := range res {
		loc := re.FindStringIndex(s[from:])
		if loc == nil {
			continue
		}
		m := &earliestMatch{which: i, start: from + loc[0], end: from + loc[1]}
		if best == nil || m.start < best.start {
			best = m
		}
	}
	return best
}
