package handlers

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/packalyst/swiftblade/errs"
	"github.com/packalyst/swiftblade/evaluator"
	"github.com/packalyst/swiftblade/runtime"
)

// Loops resolves @foreach/@endforeach, @forelse/@endforelse and
// @for/@endfor, @while/@endwhile. Iteration state lives entirely in Go's
// own loop constructs: break/continue are modeled as directives that get
// literally rewritten per-iteration rather than as panics. A
// directive-level @break/@continue marker is substituted with nothing
// and the iteration loop stops/skips in response to that marker.
func Loops(src string, ev *evaluator.Evaluator, ctx runtime.Context, state *runtime.RenderState, r Renderer, registry *DirectiveRegistry) (string, error) {
	for {
		b, ok, err := findBlock(src, 0, "foreach")
		if !ok {
			if err != nil {
				return "", err
			}
			break
		}
		out, err := renderForeach(src[b.BodyStart:b.BodyEnd], trimParens(b.Args), ev, ctx, state, r, registry, false)
		if err != nil {
			return "", err
		}
		src = src[:b.HeaderStart] + out + src[b.BlockEnd:]
	}

	for {
		b, ok, err := findBlock(src, 0, "forelse")
		if !ok {
			if err != nil {
				return "", err
			}
			break
		}
		body := src[b.BodyStart:b.BodyEnd]
		emptyRe := regexp.MustCompile(`@empty\b`)
		loc := emptyRe.FindStringIndex(body)
		mainBody, emptyBody := body, ""
		if loc != nil {
			mainBody = body[:loc[0]]
			emptyBody = body[loc[1]:]
		}
		out, err := renderForeach(mainBody, trimParens(b.Args), ev, ctx, state, r, registry, true)
		if err != nil {
			return "", err
		}
		if out == "" && loc != nil {
			out, err = Loops(emptyBody, ev, ctx, state, r, registry)
			if err != nil {
				return "", err
			}
		}
		src = src[:b.HeaderStart] + out + src[b.BlockEnd:]
	}

	for {
		b, ok, err := findBlock(src, 0, "for")
		if !ok {
			if err != nil {
				return "", err
			}
			break
		}
		out, err := renderFor(src[b.BodyStart:b.BodyEnd], trimParens(b.Args), ev, ctx, state, r, registry)
		if err != nil {
			return "", err
		}
		src = src[:b.HeaderStart] + out + src[b.BlockEnd:]
	}

	for {
		b, ok, err := findBlock(src, 0, "while")
		if !ok {
			if err != nil {
				return "", err
			}
			break
		}
		out, err := renderWhile(src[b.BodyStart:b.BodyEnd], trimParens(b.Args), ev, ctx, state, r, registry)
		if err != nil {
			return "", err
		}
		src = src[:b.HeaderStart] + out + src[b.BlockEnd:]
	}

	return src, nil
}

const maxLoopIterations = 100000

// effectiveLoopLimit returns state.MaxLoopIterations when the engine
// configured one, falling back to the package default otherwise.
func effectiveLoopLimit(state *runtime.RenderState) int {
	if state != nil && state.MaxLoopIterations > 0 {
		return state.MaxLoopIterations
	}
	return maxLoopIterations
}

var breakRe = regexp.MustCompile(`@break(\s*\([^\n]*\))?`)
var continueRe = regexp.MustCompile(`@continue(\s*\([^\n]*\))?`)

// resolveControl scans body left to right for @break/@continue
// directives. An unconditional one (no parenthesized argument) always
// fires. A conditional one fires only when its argument is truthy;
// directives that don't fire are simply removed from the text, mirroring
// the Python original's BreakLoop/ContinueLoop signals without using
// Go panics for ordinary control flow.
func resolveControl(body string, ev *evaluator.Evaluator, ctx runtime.Context) (out string, hitBreak, hitContinue bool, err error) {
	var result strings.Builder
	for {
		bLoc := breakRe.FindStringSubmatchIndex(body)
		cLoc := continueRe.FindStringSubmatchIndex(body)
		if bLoc == nil && cLoc == nil {
			result.WriteString(body)
			return result.String(), false, false, nil
		}
		useBreak := bLoc != nil && (cLoc == nil || bLoc[0] < cLoc[0])
		loc := bLoc
		if !useBreak {
			loc = cLoc
		}
		hasArg := loc[2] != -1
		fire := !hasArg
		if hasArg {
			cond := trimParens(body[loc[2]:loc[3]])
			truthy, terr := ev.Truthy(cond, ctx)
			if terr != nil {
				return "", false, false, terr
			}
			fire = truthy
		}
		result.WriteString(body[:loc[0]])
		if fire {
			if useBreak {
				return result.String(), true, false, nil
			}
			return result.String(), false, true, nil
		}
		body = body[loc[1]:]
	}
}

func renderForeach(body, args string, ev *evaluator.Evaluator, ctx runtime.Context, state *runtime.RenderState, r Renderer, registry *DirectiveRegistry, isForelse bool) (string, error) {
	out, itemCount, err := renderIteratorLoop("foreach", body, args, ev, ctx, state, r, registry)
	if err != nil {
		return "", err
	}
	if out == "" && isForelse && itemCount == 0 {
		return "", nil
	}
	return out, nil
}

// renderIteratorLoop implements the "var in expr" iterator form shared by
// @foreach and @for (blade/handlers/control/loops.py's _process_foreach
// and _process_for both split their header on " in " and drive the same
// for-value-in-iterable loop). directive names the header in error
// messages ("foreach" or "for"). The var side may additionally carry a
// Laravel "key => value" binding; the separator before it is always
// "in", never "as".
func renderIteratorLoop(directive, body, args string, ev *evaluator.Evaluator, ctx runtime.Context, state *runtime.RenderState, r Renderer, registry *DirectiveRegistry) (string, int, error) {
	parts := strings.SplitN(args, " in ", 2)
	if len(parts) != 2 {
		return "", 0, errs.Directive(fmt.Sprintf("malformed @%s, expected \"var in expr\"", directive), args)
	}
	varSpec := strings.TrimSpace(parts[0])
	iterExpr := strings.TrimSpace(parts[1])

	iterVal, err := ev.Eval(iterExpr, ctx)
	if err != nil {
		return "", 0, err
	}
	items := toIterable(iterVal)

	keyName, valName := "", varSpec
	if kv := strings.SplitN(varSpec, "=>", 2); len(kv) == 2 {
		keyName = strings.TrimSpace(kv[0])
		valName = strings.TrimSpace(kv[1])
	}

	limit := effectiveLoopLimit(state)
	var out strings.Builder
	for i, item := range items {
		if i >= limit {
			return "", 0, errs.Security("maximum loop iterations exceeded", "@"+directive)
		}
		scope := runtime.NewScope(ctx, valName, item.value)
		iterScope := runtime.Context(scope)
		if keyName != "" {
			iterScope = runtime.NewScope(scope, keyName, item.key)
		}

		resolved, err := ProcessInline(body, ev, iterScope, state, r, registry)
		if err != nil {
			return "", 0, err
		}
		before, hitBreak, _, err := resolveControl(resolved, ev, iterScope)
		if err != nil {
			return "", 0, err
		}
		out.WriteString(before)
		if hitBreak {
			break
		}
	}
	return out.String(), len(items), nil
}

type iterItem struct {
	key   interface{}
	value interface{}
}

func toIterable(v interface{}) []iterItem {
	switch x := v.(type) {
	case []interface{}:
		out := make([]iterItem, len(x))
		for i, item := range x {
			out[i] = iterItem{key: int64(i), value: item}
		}
		return out
	case map[string]interface{}:
		out := make([]iterItem, 0, len(x))
		for k, item := range x {
			out = append(out, iterItem{key: k, value: item})
		}
		return out
	case runtime.Map:
		out := make([]iterItem, 0, len(x))
		for k, item := range x {
			out = append(out, iterItem{key: k, value: item})
		}
		return out
	default:
		return nil
	}
}

// renderFor implements @for(var in expr), structurally identical to
// @foreach: blade/handlers/control/loops.py's _process_for parses the
// same "i in range(3)" header and drives the same for-value-in-iterable
// loop as _process_foreach, just under its own directive name.
func renderFor(body, args string, ev *evaluator.Evaluator, ctx runtime.Context, state *runtime.RenderState, r Renderer, registry *DirectiveRegistry) (string, error) {
	out, _, err := renderIteratorLoop("for", body, args, ev, ctx, state, r, registry)
	return out, err
}

func renderWhile(body, cond string, ev *evaluator.Evaluator, ctx runtime.Context, state *runtime.RenderState, r Renderer, registry *DirectiveRegistry) (string, error) {
	limit := effectiveLoopLimit(state)
	var out strings.Builder
	for i := 0; ; i++ {
		if i >= limit {
			return "", errs.Security("maximum loop iterations exceeded", "@while")
		}
		truthy, err := ev.Truthy(cond, ctx)
		if err != nil {
			return "", err
		}
		if !truthy {
			break
		}
		before, hitBreak, _, err := resolveControl(body, ev, ctx)
		if err != nil {
			return "", err
		}
		resolved, err := ProcessInline(before, ev, ctx, state, r, registry)
		if err != nil {
			return "", err
		}
		out.WriteString(resolved)
		if hitBreak {
			break
		}
	}
	return out.String(), nil
}
