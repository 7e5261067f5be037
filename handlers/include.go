package handlers

import (
	"regexp"
	"strings"

	"github.com/packalyst/swiftblade/errs"
	"github.com/packalyst/swiftblade/evaluator"
	"github.com/packalyst/swiftblade/runtime"
)

// Include resolves @include(name), @include(name, data) and
// @includeIf(name[, data]), grounded on blade/handlers/include.py. Every
// inclusion recurses through the Renderer so an included template's own
// directives are fully resolved, under the shared RecursionDepth guard
// that @extends also consumes: a render aborts once it exceeds a single
// recursion budget shared across @include and @extends.
func Include(src string, ev *evaluator.Evaluator, ctx runtime.Context, state *runtime.RenderState, r Renderer) (string, error) {
	includeRe := regexp.MustCompile(`@include(If)?\s*\(([^\n]*)\)`)

	var rewriteErr error
	out := includeRe.ReplaceAllStringFunc(src, func(m string) string {
		if rewriteErr != nil {
			return ""
		}
		sub := includeRe.FindStringSubmatch(m)
		isIf := sub[1] == "If"
		rendered, err := renderInclude(sub[2], isIf, ev, ctx, state, r)
		if err != nil {
			rewriteErr = err
			return ""
		}
		return rendered
	})
	if rewriteErr != nil {
		return "", rewriteErr
	}
	return out, nil
}

func renderInclude(args string, isIf bool, ev *evaluator.Evaluator, ctx runtime.Context, state *runtime.RenderState, r Renderer) (string, error) {
	nameExpr, dataExpr, hasData := splitFirstArg(args)

	name, err := ev.Eval(nameExpr, ctx)
	if err != nil {
		return "", err
	}
	templateName := stringify(name)

	if state.RecursionDepth >= state.MaxRecursion {
		return "", errs.Compilation("maximum include/extends recursion depth exceeded", state.RecursionDepth)
	}

	source, err := r.Resolve(templateName)
	if err != nil {
		if isIf {
			return "", nil
		}
		return "", errs.NotFound(err.Error(), templateName)
	}

	includeCtx := ctx
	if hasData {
		dataVal, err := ev.Eval(dataExpr, ctx)
		if err != nil {
			return "", err
		}
		if m, ok := dataVal.(map[string]interface{}); ok {
			for k, v := range m {
				includeCtx = runtime.NewScope(includeCtx, k, v)
			}
		}
	}

	state.RecursionDepth++
	defer func() { state.RecursionDepth-- }()

	return r.Process(source, includeCtx, state)
}

// splitFirstArg splits "name, data" into its two top-level comma
// arguments, honoring nested parens/brackets/braces and quoted strings
// so a dict literal passed as data isn't split on its own commas.
func splitFirstArg(args string) (name string, data string, hasData bool) {
	depth := 0
	inStr := false
	var strCh byte
	for i := 0; i < len(args); i++ {
		ch := args[i]
		if inStr {
			if ch == strCh && args[i-1] != '\\' {
				inStr = false
			}
			continue
		}
		switch ch {
		case '\'', '"':
			inStr = true
			strCh = ch
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth--
		case ',':
			if depth == 0 {
				return strings.TrimSpace(args[:i]), strings.TrimSpace(args[i+1:]), true
			}
		}
	}
	return strings.TrimSpace(args), "", false
}
