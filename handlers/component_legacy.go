package handlers

import (
	"regexp"
	"strings"

	"github.com/packalyst/swiftblade/errs"
	"github.com/packalyst/swiftblade/evaluator"
	"github.com/packalyst/swiftblade/runtime"
)

var slotBlockOpenRe = regexp.MustCompile(`@slot\s*\(\s*['"]([^'"]+)['"]\s*\)`)

// ComponentLegacy resolves @component(name[, data])...@endcomponent with
// nested @slot(name)...@endslot bodies, grounded on
// blade/handlers/component.py. The component's own template is rendered
// with a context scope carrying "slot" (the default slot, i.e. whatever
// body text fell outside named @slot blocks) plus one entry per named
// slot.
func ComponentLegacy(src string, ev *evaluator.Evaluator, ctx runtime.Context, state *runtime.RenderState, r Renderer, registry *DirectiveRegistry) (string, error) {
	for {
		b, ok, err := findBlock(src, 0, "component")
		if err != nil {
			return "", err
		}
		if !ok {
			break
		}
		out, err := renderLegacyComponent(trimParens(b.Args), src[b.BodyStart:b.BodyEnd], ev, ctx, state, r, registry)
		if err != nil {
			return "", err
		}
		src = src[:b.HeaderStart] + out + src[b.BlockEnd:]
	}
	return src, nil
}

func renderLegacyComponent(args, body string, ev *evaluator.Evaluator, ctx runtime.Context, state *runtime.RenderState, r Renderer, registry *DirectiveRegistry) (string, error) {
	nameExpr, dataExpr, hasData := splitFirstArg(args)
	nameVal, err := ev.Eval(nameExpr, ctx)
	if err != nil {
		return "", err
	}
	componentName := stringify(nameVal)

	slots := map[string]string{}
	remaining := body
	for {
		loc := slotBlockOpenRe.FindStringIndex(remaining)
		if loc == nil {
			break
		}
		b, ok, err := findBlock(remaining, loc[0], "slot")
		if err != nil || !ok {
			break
		}
		name := strings.Trim(trimParens(b.Args), `'" `)
		rendered, err := ProcessInline(remaining[b.BodyStart:b.BodyEnd], ev, ctx, state, r, registry)
		if err != nil {
			return "", err
		}
		slots[name] = rendered
		remaining = remaining[:b.HeaderStart] + remaining[b.BlockEnd:]
	}

	defaultSlot, err := ProcessInline(remaining, ev, ctx, state, r, registry)
	if err != nil {
		return "", err
	}

	componentCtx := runtime.NewScope(ctx, "slot", runtime.SafeString(defaultSlot))
	for name, content := range slots {
		componentCtx = runtime.NewScope(componentCtx, name, runtime.SafeString(content))
	}
	if hasData {
		dataVal, err := ev.Eval(dataExpr, ctx)
		if err != nil {
			return "", err
		}
		if m, ok := dataVal.(map[string]interface{}); ok {
			for k, v := range m {
				componentCtx = runtime.NewScope(componentCtx, k, v)
			}
		}
	}

	if state.RecursionDepth >= state.MaxRecursion {
		return "", errs.Compilation("maximum component recursion depth exceeded", state.RecursionDepth)
	}
	source, err := r.Resolve(componentName)
	if err != nil {
		return "", errs.NotFound(err.Error(), componentName)
	}
	state.RecursionDepth++
	defer func() { state.RecursionDepth-- }()
	return r.Process(source, componentCtx, state)
}
