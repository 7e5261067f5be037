package handlers

import (
	"regexp"
	"strings"

	"github.com/packalyst/swiftblade/errs"
	"github.com/packalyst/swiftblade/evaluator"
	"github.com/packalyst/swiftblade/runtime"
)

var extendsRe = regexp.MustCompile(`^\s*@extends\s*\(([^\n]*)\)\s*\n?`)
var sectionBlockOpenRe = regexp.MustCompile(`@section\s*\(\s*['"]([^'"]+)['"]\s*\)`)
var sectionInlineRe = regexp.MustCompile(`@section\s*\(\s*['"]([^'"]+)['"]\s*,\s*(.*)\)`)
var yieldRe = regexp.MustCompile(`@yield\s*\(([^\n]*)\)`)
var parentRe = regexp.MustCompile(`@parent\b`)
var showRe = regexp.MustCompile(`@show\b`)

// ResolveExtends walks a single inheritance chain to completion before
// the rest of the directive pipeline runs, grounded on
// swiftblade/handlers/extends.py's ExtendsHandler and the Laravel
// semantics it mirrors: a child's @section bodies replace the
// matching @yield slots in its parent, and the chain can run arbitrarily
// deep (parent extending grandparent) up to the shared recursion budget.
func ResolveExtends(source string, ev *evaluator.Evaluator, ctx runtime.Context, state *runtime.RenderState, r Renderer) (string, error) {
	sections := map[string]string{}
	current := source

	for {
		m := extendsRe.FindStringSubmatchIndex(current)
		if m == nil {
			break
		}
		if state.RecursionDepth >= state.MaxRecursion {
			return "", errs.Compilation("maximum @extends recursion depth exceeded", state.RecursionDepth)
		}

		parentExpr := strings.TrimSpace(current[m[2]:m[3]])
		parentVal, err := ev.Eval(parentExpr, ctx)
		if err != nil {
			return "", err
		}
		parentName := stringify(parentVal)

		body := current[m[1]:]
		extractSections(body, sections)

		parentSource, err := r.Resolve(parentName)
		if err != nil {
			return "", errs.NotFound(err.Error(), parentName)
		}
		state.RecursionDepth++
		current = parentSource
	}
	state.RecursionDepth = 0

	return substituteYields(current, sections), nil
}

// extractSections scans body for @section(...)...@endsection blocks and
// @section('name', 'value') single-line forms, merging their content
// into sections. A name already present (from a more-derived child
// template processed earlier in the chain) is left alone, so the most
// derived definition always wins, exactly like Laravel's section stack.
func extractSections(body string, sections map[string]string) {
	for {
		loc := sectionInlineRe.FindStringSubmatchIndex(body)
		blockLoc := sectionBlockOpenRe.FindStringIndex(body)
		if loc != nil && (blockLoc == nil || loc[0] < blockLoc[0]) {
			name := body[loc[2]:loc[3]]
			val := strings.Trim(strings.TrimSpace(body[loc[4]:loc[5]]), `'"`)
			if _, exists := sections[name]; !exists {
				sections[name] = val
			}
			body = body[:loc[0]] + body[loc[1]:]
			continue
		}
		b, ok, err := findBlock(body, 0, "section")
		if err != nil || !ok {
			break
		}
		name := strings.Trim(trimParens(b.Args), `'" `)
		content := body[b.BodyStart:b.BodyEnd]
		if _, exists := sections[name]; !exists {
			sections[name] = content
		}
		body = body[:b.HeaderStart] + body[b.BlockEnd:]
	}
}

// substituteYields replaces @yield(name[, default]) with the matching
// section's content (any @parent/@show markers left inside it are
// removed; no parent section content is inserted in their place),
// falling back to the yield's own default argument.
func substituteYields(tmpl string, sections map[string]string) string {
	return yieldRe.ReplaceAllStringFunc(tmpl, func(m string) string {
		sub := yieldRe.FindStringSubmatch(m)
		parts := strings.SplitN(sub[1], ",", 2)
		name := strings.Trim(strings.TrimSpace(parts[0]), `'"`)
		content, ok := sections[name]
		if !ok {
			if len(parts) == 2 {
				return strings.Trim(strings.TrimSpace(parts[1]), `'"`)
			}
			return ""
		}
		content = parentRe.ReplaceAllString(content, "")
		content = showRe.ReplaceAllString(content, "")
		return content
	})
}
