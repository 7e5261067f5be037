package handlers

import (
	"regexp"

	"github.com/packalyst/swiftblade/evaluator"
	"github.com/packalyst/swiftblade/runtime"
)

var stackRe = regexp.MustCompile(`@stack\s*\(([^\n]*)\)`)

// Stacks resolves @push/@endpush, @prepend/@endprepend by writing their
// bodies into state's StackStore, and @stack(name) by emitting the
// stack's accumulated content, grounded on blade/handlers/stacks.py's
// StackHandler/PrependHandler. @push/@prepend must run before @stack
// since a stack can be referenced before any push that targets it
// appears later in the same template.
func Stacks(src string, ev *evaluator.Evaluator, ctx runtime.Context, state *runtime.RenderState, r Renderer, registry *DirectiveRegistry) (string, error) {
	for {
		b, ok, err := findBlock(src, 0, "push")
		if err != nil {
			return "", err
		}
		if !ok {
			break
		}
		name, err := stackName(trimParens(b.Args), ev, ctx)
		if err != nil {
			return "", err
		}
		body, err := renderStackBody(src[b.BodyStart:b.BodyEnd], ev, ctx, state, r, registry)
		if err != nil {
			return "", err
		}
		state.Stacks.Push(name, body)
		src = src[:b.HeaderStart] + src[b.BlockEnd:]
	}

	for {
		b, ok, err := findBlock(src, 0, "prepend")
		if err != nil {
			return "", err
		}
		if !ok {
			break
		}
		name, err := stackName(trimParens(b.Args), ev, ctx)
		if err != nil {
			return "", err
		}
		body, err := renderStackBody(src[b.BodyStart:b.BodyEnd], ev, ctx, state, r, registry)
		if err != nil {
			return "", err
		}
		state.Stacks.Prepend(name, body)
		src = src[:b.HeaderStart] + src[b.BlockEnd:]
	}

	src = stackRe.ReplaceAllStringFunc(src, func(m string) string {
		sub := stackRe.FindStringSubmatch(m)
		name, err := stackName(sub[1], ev, ctx)
		if err != nil {
			return ""
		}
		content, _ := state.Stacks.Join(name)
		return content
	})

	return src, nil
}

func stackName(expr string, ev *evaluator.Evaluator, ctx runtime.Context) (string, error) {
	v, err := ev.Eval(expr, ctx)
	if err != nil {
		return "", err
	}
	return stringify(v), nil
}

func renderStackBody(body string, ev *evaluator.Evaluator, ctx runtime.Context, state *runtime.RenderState, r Renderer, registry *DirectiveRegistry) (string, error) {
	return ProcessInline(body, ev, ctx, state, r, registry)
}
