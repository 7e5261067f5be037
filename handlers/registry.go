package handlers

import (
	"regexp"

	"github.com/packalyst/swiftblade/evaluator"
	"github.com/packalyst/swiftblade/runtime"
)

// DirectiveFunc implements a user-registered custom directive: it
// receives the raw argument text (already stripped of its surrounding
// parens, "" if the directive was used bare) and returns the text that
// replaces the directive in the output.
type DirectiveFunc func(args string, ev *evaluator.Evaluator, ctx runtime.Context) (string, error)

// DirectiveRegistry holds engine.RegisterDirective entries, grounded on
// swiftblade/registry.py's DirectiveRegistry.
type DirectiveRegistry struct {
	directives map[string]DirectiveFunc
}

func NewDirectiveRegistry() *DirectiveRegistry {
	return &DirectiveRegistry{directives: map[string]DirectiveFunc{}}
}

func (r *DirectiveRegistry) Register(name string, fn DirectiveFunc) {
	r.directives[name] = fn
}

func (r *DirectiveRegistry) Has(name string) bool {
	_, ok := r.directives[name]
	return ok
}

func (r *DirectiveRegistry) Unregister(name string) {
	delete(r.directives, name)
}

var customDirectiveParenRe = regexp.MustCompile(`@(\w+)\s*(\([^\n]*\))`)
var customDirectiveBareRe = regexp.MustCompile(`@(\w+)\b`)

// CustomDirectives resolves any directive registered in r. The pass runs
// before the misc, switch, loop and conditional passes, so a registered
// name wins over a built-in of the same name handled there. Grounded on
// swiftblade/handlers/custom_directive.py's richer two-pattern variant
// which (unlike blade's parens-only form) also accepts a bare @name with
// no argument list at all.
func (r *DirectiveRegistry) CustomDirectives(src string, ev *evaluator.Evaluator, ctx runtime.Context) (string, error) {
	if len(r.directives) == 0 {
		return src, nil
	}

	var rewriteErr error
	src = customDirectiveParenRe.ReplaceAllStringFunc(src, func(m string) string {
		if rewriteErr != nil {
			return ""
		}
		sub := customDirectiveParenRe.FindStringSubmatch(m)
		fn, ok := r.directives[sub[1]]
		if !ok {
			return m
		}
		out, err := fn(trimParens(sub[2]), ev, ctx)
		if err != nil {
			rewriteErr = err
			return ""
		}
		return out
	})
	if rewriteErr != nil {
		return "", rewriteErr
	}

	src = customDirectiveBareRe.ReplaceAllStringFunc(src, func(m string) string {
		if rewriteErr != nil {
			return ""
		}
		sub := customDirectiveBareRe.FindStringSubmatch(m)
		fn, ok := r.directives[sub[1]]
		if !ok {
			return m
		}
		out, err := fn("", ev, ctx)
		if err != nil {
			rewriteErr = err
			return ""
		}
		return out
	})
	if rewriteErr != nil {
		return "", rewriteErr
	}
	return src, nil
}
