package handlers

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/packalyst/swiftblade/errs"
	"github.com/packalyst/swiftblade/evaluator"
	"github.com/packalyst/swiftblade/runtime"
)

var escapedEchoRe = regexp.MustCompile(`\{\{\s*(.*?)\s*\}\}`)
var rawEchoRe = regexp.MustCompile(`\{!!\s*(.*?)\s*!!\}`)
var commentRe = regexp.MustCompile(`\{\{--.*?--\}\}`)

var htmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&#x27;",
)

// escapeHTML implements the exact escape table.
func escapeHTML(s string) string {
	return htmlEscaper.Replace(s)
}

// stringify renders any evaluated value as the text that belongs in the
// output stream: SafeString and plain string pass through verbatim
// (escaping decisions are made by the caller), everything else uses a
// Go-idiomatic default formatting.
func stringify(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case runtime.SafeString:
		return string(x)
	case bool:
		if x {
			return "true"
		}
		return "false"
	case float64:
		if x == float64(int64(x)) {
			return fmt.Sprintf("%d", int64(x))
		}
		return fmt.Sprintf("%g", x)
	default:
		return fmt.Sprint(x)
	}
}

// Variables resolves comments, raw echoes, and escaped echoes, in that
// order, as the final pass of the pipeline — grounded on the Python
// original's variable-interpolation handler running last so any
// directive-produced text has already settled. A lookup/evaluation
// failure is swallowed and rendered as empty text when state.StrictMode
// is false; a security error always propagates regardless.
func Variables(src string, ev *evaluator.Evaluator, ctx runtime.Context, state *runtime.RenderState) (string, error) {
	src = commentRe.ReplaceAllString(src, "")

	strict := state != nil && state.StrictMode

	src, err := replaceAllEval(src, rawEchoRe, ev, ctx, strict, func(v interface{}) string {
		return stringify(v)
	})
	if err != nil {
		return "", err
	}

	src, err = replaceAllEval(src, escapedEchoRe, ev, ctx, strict, func(v interface{}) string {
		if runtime.IsSafe(v) {
			return stringify(v)
		}
		return escapeHTML(stringify(v))
	})
	if err != nil {
		return "", err
	}
	return src, nil
}

func replaceAllEval(src string, re *regexp.Regexp, ev *evaluator.Evaluator, ctx runtime.Context, strict bool, render func(interface{}) string) (string, error) {
	var out strings.Builder
	last := 0
	for _, loc := range re.FindAllStringSubmatchIndex(src, -1) {
		out.WriteString(src[last:loc[0]])
		expr := src[loc[2]:loc[3]]
		val, err := ev.Eval(expr, ctx)
		if err != nil {
			if errs.IsKind(err, errs.KindSecurity) || strict {
				return "", err
			}
			val = nil
		}
		out.WriteString(render(val))
		last = loc[1]
	}
	out.WriteString(src[last:])
	return out.String(), nil
}
