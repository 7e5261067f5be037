package handlers

import (
	"github.com/packalyst/swiftblade/evaluator"
	"github.com/packalyst/swiftblade/runtime"
)

// ProcessInline runs the complete directive pipeline (everything after
// @extends resolution) over src. It is the single recursive entry point
// every handler uses to resolve a nested body — a loop iteration, an
// if/else branch, a switch case, a component or stack body — so that
// directives and interpolations nested inside control structures see
// the right per-iteration scope instead of waiting for a final pass
// over the whole template. The top-level Parser.Process is a thin
// wrapper around this same function.
func ProcessInline(src string, ev *evaluator.Evaluator, ctx runtime.Context, state *runtime.RenderState, r Renderer, registry *DirectiveRegistry) (string, error) {
	var err error

	src, err = ComponentX(src, ev, ctx, state, r, registry)
	if err != nil {
		return "", err
	}
	src, err = ComponentLegacy(src, ev, ctx, state, r, registry)
	if err != nil {
		return "", err
	}
	src, err = Include(src, ev, ctx, state, r)
	if err != nil {
		return "", err
	}
	if registry != nil {
		src, err = registry.CustomDirectives(src, ev, ctx)
		if err != nil {
			return "", err
		}
	}
	src, err = Misc(src, ev, ctx, state, r, registry)
	if err != nil {
		return "", err
	}
	src, err = Switch(src, ev, ctx, state, r, registry)
	if err != nil {
		return "", err
	}
	src, err = Loops(src, ev, ctx, state, r, registry)
	if err != nil {
		return "", err
	}
	src, err = Conditionals(src, ev, ctx, state, r, registry)
	if err != nil {
		return "", err
	}
	src, err = Stacks(src, ev, ctx, state, r, registry)
	if err != nil {
		return "", err
	}
	return Variables(src, ev, ctx, state)
}
