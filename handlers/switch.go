package handlers

import (
	"regexp"
	"strings"

	"github.com/packalyst/swiftblade/evaluator"
	"github.com/packalyst/swiftblade/runtime"
)

var caseRe = regexp.MustCompile(`@case\s*\(([^\n]*)\)`)
var defaultCaseRe = regexp.MustCompile(`@default\b`)
var switchBreakRe = regexp.MustCompile(`@break\b\s*(\([^\n]*\))?`)

// Switch resolves @switch/@case/@default/@endswitch, grounded on the
// control-structure handler family's switch support. Each @case's body
// runs up to its own @break (or the next @case/@default), matching
// Laravel's fallthrough-free switch semantics.
func Switch(src string, ev *evaluator.Evaluator, ctx runtime.Context, state *runtime.RenderState, r Renderer, registry *DirectiveRegistry) (string, error) {
	for {
		b, ok, err := findBlock(src, 0, "switch")
		if err != nil {
			return "", err
		}
		if !ok {
			break
		}
		out, err := resolveSwitch(src[b.BodyStart:b.BodyEnd], trimParens(b.Args), ev, ctx, state, r, registry)
		if err != nil {
			return "", err
		}
		src = src[:b.HeaderStart] + out + src[b.BlockEnd:]
	}
	return src, nil
}

func resolveSwitch(body, subjectExpr string, ev *evaluator.Evaluator, ctx runtime.Context, state *runtime.RenderState, r Renderer, registry *DirectiveRegistry) (string, error) {
	subject, err := ev.Eval(subjectExpr, ctx)
	if err != nil {
		return "", err
	}

	type marker struct {
		start, end int
		isDefault  bool
		caseExpr   string
	}
	var markers []marker
	pos := 0
	for {
		cLoc := caseRe.FindStringSubmatchIndex(body[pos:])
		dLoc := defaultCaseRe.FindStringIndex(body[pos:])
		if cLoc == nil && dLoc == nil {
			break
		}
		if cLoc != nil && (dLoc == nil || cLoc[0] < dLoc[0]) {
			markers = append(markers, marker{start: pos + cLoc[0], end: pos + cLoc[1], caseExpr: body[pos+cLoc[2] : pos+cLoc[3]]})
			pos += cLoc[1]
		} else {
			markers = append(markers, marker{start: pos + dLoc[0], end: pos + dLoc[1], isDefault: true})
			pos += dLoc[1]
		}
	}

	for i, m := range markers {
		segEnd := len(body)
		if i+1 < len(markers) {
			segEnd = markers[i+1].start
		}
		seg := body[m.end:segEnd]

		matched := m.isDefault
		if !matched {
			val, err := ev.Eval(m.caseExpr, ctx)
			if err != nil {
				return "", err
			}
			matched = looseEq(subject, val)
		}
		if matched {
			brk := switchBreakRe.FindStringIndex(seg)
			result := seg
			if brk != nil {
				result = seg[:brk[0]]
			}
			return ProcessInline(result, ev, ctx, state, r, registry)
		}
	}
	return "", nil
}

func looseEq(a, b interface{}) bool {
	return strings.TrimSpace(toStr(a)) == strings.TrimSpace(toStr(b))
}

func toStr(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	if v == nil {
		return ""
	}
	return stringify(v)
}
