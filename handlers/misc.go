package handlers

import (
	"regexp"

	"github.com/packalyst/swiftblade/errs"
	"github.com/packalyst/swiftblade/evaluator"
	"github.com/packalyst/swiftblade/runtime"
)

// Misc resolves the small standalone directives that don't belong to
// one of the bigger families: @isset/@endisset, @empty/@endempty (the
// directive form, distinct from the evaluator's isset()/default()
// expression builtins) and @python/@endpython statement blocks.
// Grounded on blade's misc handler plus swiftblade's statement-mode
// support for @python.
func Misc(src string, ev *evaluator.Evaluator, ctx runtime.Context, state *runtime.RenderState, r Renderer, registry *DirectiveRegistry) (string, error) {
	for {
		b, ok, err := findBlock(src, 0, "isset")
		if err != nil {
			return "", err
		}
		if !ok {
			break
		}
		truthy, err := evalIsset(trimParens(b.Args), ev, ctx)
		if err != nil {
			return "", err
		}
		out := ""
		if truthy {
			out, err = ProcessInline(src[b.BodyStart:b.BodyEnd], ev, ctx, state, r, registry)
			if err != nil {
				return "", err
			}
		}
		src = src[:b.HeaderStart] + out + src[b.BlockEnd:]
	}

	for {
		b, ok, err := findBlock(src, 0, "empty")
		if err != nil {
			return "", err
		}
		if !ok {
			break
		}
		v, _ := ev.Eval(trimParens(b.Args), ctx)
		out := ""
		if !runtime.Truthy(v) {
			out, err = ProcessInline(src[b.BodyStart:b.BodyEnd], ev, ctx, state, r, registry)
			if err != nil {
				return "", err
			}
		}
		src = src[:b.HeaderStart] + out + src[b.BlockEnd:]
	}

	for {
		b, ok, err := findBlock(src, 0, "python")
		if err != nil {
			return "", err
		}
		if !ok {
			break
		}
		if !state.AllowPythonBlocks {
			return "", errs.Security("@python blocks are disabled for this engine", "")
		}
		mc, ok := ctx.(evaluator.MutableContext)
		if !ok {
			return "", errs.Directive("@python requires a mutable render context", "")
		}
		if err := ev.SafeExec(src[b.BodyStart:b.BodyEnd], mc); err != nil {
			return "", err
		}
		src = src[:b.HeaderStart] + src[b.BlockEnd:]
	}

	return src, nil
}

var issetArgsRe = regexp.MustCompile(`\$?(\w+)`)

func evalIsset(args string, ev *evaluator.Evaluator, ctx runtime.Context) (bool, error) {
	for _, m := range issetArgsRe.FindAllStringSubmatch(args, -1) {
		v, ok := ctx.Get(m[1])
		if !ok || v == nil {
			return false, nil
		}
	}
	return true, nil
}
