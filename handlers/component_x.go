package handlers

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/packalyst/swiftblade/errs"
	"github.com/packalyst/swiftblade/evaluator"
	"github.com/packalyst/swiftblade/runtime"
)

var xOpenRe = regexp.MustCompile(`<x-([\w.-]+)((?:\s[^>]*?)?)(/?)>`)
var xSlotTagRe = regexp.MustCompile(`<x-slot(?:\s+name\s*=\s*["']([^"']+)["']|:([\w.-]+))?\s*>`)
var xSlotEndRe = regexp.MustCompile(`</x-slot(?::[\w.-]+)?>`)

// ComponentX resolves modern <x-name ...>...</x-name> and self-closing
// <x-name .../> tags. A hyphenated or dotted tag name maps to a
// "components.<name>" template, with each attribute becoming a prop: a
// bare attribute binds its literal string, a colon-prefixed attribute
// (:count="3") binds an evaluated expression, and a valueless attribute
// binds boolean true. Slots accept both <x-slot:name>...</x-slot:name>
// and <x-slot name="name">...</x-slot>. A leading @props([...]) call in
// the component's own template declares defaults; the final context is
// defaults overridden by any matching passed prop, plus an "attributes"
// binding holding the HTML-formatted pass-through set (passed props not
// named in @props). Grounded on the teacher's engine/functions.go
// attribute-parsing helpers, restructured around this engine's own
// expression evaluator instead of Go template pipelines.
func ComponentX(src string, ev *evaluator.Evaluator, ctx runtime.Context, state *runtime.RenderState, r Renderer, registry *DirectiveRegistry) (string, error) {
	for {
		loc := xOpenRe.FindStringSubmatchIndex(src)
		if loc == nil {
			break
		}
		tagName := src[loc[2]:loc[3]]
		attrText := src[loc[4]:loc[5]]
		selfClose := src[loc[6]:loc[7]] == "/"

		var body string
		var blockEnd int
		if selfClose {
			body = ""
			blockEnd = loc[1]
		} else {
			b, ok, err := findXBlock(src, loc[1], tagName)
			if err != nil {
				return "", err
			}
			if !ok {
				return "", errs.Syntax("unclosed component tag", "<x-"+tagName+">")
			}
			body = src[loc[1]:b.closeStart]
			blockEnd = b.closeEnd
		}

		out, err := renderXComponent(tagName, attrText, body, ev, ctx, state, r, registry)
		if err != nil {
			return "", err
		}
		src = src[:loc[0]] + out + src[blockEnd:]
	}
	return src, nil
}

type xCloseLoc struct {
	closeStart, closeEnd int
}

// findXBlock finds the matching </x-name> for an already-consumed
// opening tag, tolerating same-named components nested inside their own
// body.
func findXBlock(src string, from int, name string) (xCloseLoc, bool, error) {
	openRe := regexp.MustCompile(`<x-` + regexp.QuoteMeta(name) + `(?:\s[^>]*?)?/?>`)
	closeRe := regexp.MustCompile(`</x-` + regexp.QuoteMeta(name) + `>`)
	depth := 1
	pos := from
	for depth > 0 {
		openLoc := openRe.FindStringIndex(src[pos:])
		closeLoc := closeRe.FindStringIndex(src[pos:])
		if closeLoc == nil {
			return xCloseLoc{}, false, nil
		}
		if openLoc != nil && openLoc[0] < closeLoc[0] && !strings.HasSuffix(src[pos+openLoc[0]:pos+openLoc[1]], "/>") {
			depth++
			pos += openLoc[1]
			continue
		}
		depth--
		if depth == 0 {
			return xCloseLoc{closeStart: pos + closeLoc[0], closeEnd: pos + closeLoc[1]}, true, nil
		}
		pos += closeLoc[1]
	}
	return xCloseLoc{}, false, nil
}

var attrRe = regexp.MustCompile(`([:\w-]+)(?:\s*=\s*("(?:[^"\\]|\\.)*"|'(?:[^'\\]|\\.)*'|\{\{.*?\}\}))?`)

func renderXComponent(tagName, attrText, body string, ev *evaluator.Evaluator, ctx runtime.Context, state *runtime.RenderState, r Renderer, registry *DirectiveRegistry) (string, error) {
	props := map[string]interface{}{}
	for _, m := range attrRe.FindAllStringSubmatch(attrText, -1) {
		key := m[1]
		raw := m[2]
		bind := strings.HasPrefix(key, ":")
		key = strings.TrimPrefix(key, ":")
		key = strings.ReplaceAll(key, "-", "_")

		switch {
		case raw == "":
			props[key] = true
		case bind:
			expr := unquoteAttr(raw)
			v, err := ev.Eval(expr, ctx)
			if err != nil {
				return "", err
			}
			props[key] = v
		default:
			props[key] = unquoteAttr(raw)
		}
	}

	slots := map[string]string{}
	remaining := body
	for {
		loc := xSlotTagRe.FindStringSubmatchIndex(remaining)
		if loc == nil {
			break
		}
		endLoc := xSlotEndRe.FindStringIndex(remaining[loc[1]:])
		if endLoc == nil {
			break
		}
		name := "slot"
		switch {
		case loc[2] != -1:
			name = remaining[loc[2]:loc[3]]
		case loc[4] != -1:
			name = remaining[loc[4]:loc[5]]
		}
		rendered, err := ProcessInline(remaining[loc[1]:loc[1]+endLoc[0]], ev, ctx, state, r, registry)
		if err != nil {
			return "", err
		}
		slots[name] = rendered
		remaining = remaining[:loc[0]] + remaining[loc[1]+endLoc[1]:]
	}

	defaultSlot, err := ProcessInline(remaining, ev, ctx, state, r, registry)
	if err != nil {
		return "", err
	}

	componentCtx := runtime.NewScope(ctx, "slot", runtime.SafeString(defaultSlot))
	for name, content := range slots {
		componentCtx = runtime.NewScope(componentCtx, name, runtime.SafeString(content))
	}
	for k, v := range props {
		componentCtx = runtime.NewScope(componentCtx, k, v)
	}

	componentName := "components." + strings.ReplaceAll(tagName, "-", ".")
	if state.RecursionDepth >= state.MaxRecursion {
		return "", errs.Compilation("maximum component recursion depth exceeded", state.RecursionDepth)
	}
	source, err := r.Resolve(componentName)
	if err != nil {
		return "", errs.NotFound(err.Error(), componentName)
	}

	defaults, source := extractProps(source)
	passthrough := map[string]interface{}{}
	for k, v := range props {
		if _, declared := defaults[k]; !declared {
			passthrough[k] = v
		}
	}
	componentCtx = runtime.NewScope(componentCtx, "attributes", runtime.SafeString(formatAttributes(passthrough)))
	for k, v := range defaults {
		if _, overridden := props[k]; !overridden {
			componentCtx = runtime.NewScope(componentCtx, k, v)
		}
	}

	state.RecursionDepth++
	defer func() { state.RecursionDepth-- }()
	return r.Process(source, componentCtx, state)
}

var propsCallRe = regexp.MustCompile(`@props\s*\(`)
var propsEntryRe = regexp.MustCompile(`'([^']+)'\s*=>\s*`)

// extractProps finds a leading @props(['key' => default, ...]) call in a
// component template, parses its scalar defaults (string, bool, null,
// int, float, or bare word), and returns them alongside the source with
// the @props call itself removed. A template with no @props call yields
// an empty defaults map and its source unchanged.
func extractProps(source string) (map[string]interface{}, string) {
	loc := propsCallRe.FindStringIndex(source)
	if loc == nil {
		return map[string]interface{}{}, source
	}
	args := extractParenArgs(source, loc[0], loc[1]-1)
	if args == "" {
		return map[string]interface{}{}, source
	}
	callEnd := loc[1] - 1 + len(args)
	rest := source[callEnd:]
	rest = strings.TrimPrefix(rest, "\n")
	stripped := source[:loc[0]] + rest

	inner := trimParens(args)
	inner = strings.TrimSpace(inner)
	inner = strings.TrimPrefix(inner, "[")
	inner = strings.TrimSuffix(inner, "]")

	defaults := map[string]interface{}{}
	entries := propsEntryRe.FindAllStringSubmatchIndex(inner, -1)
	for i, m := range entries {
		name := inner[m[2]:m[3]]
		valStart := m[1]
		valEnd := len(inner)
		if i+1 < len(entries) {
			valEnd = entries[i+1][0]
		}
		raw := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(inner[valStart:valEnd]), ","))
		defaults[name] = parsePropsLiteral(raw)
	}
	return defaults, stripped
}

func parsePropsLiteral(raw string) interface{} {
	switch {
	case len(raw) >= 2 && (raw[0] == '\'' || raw[0] == '"') && raw[len(raw)-1] == raw[0]:
		return raw[1 : len(raw)-1]
	case raw == "true":
		return true
	case raw == "false":
		return false
	case raw == "null" || raw == "none" || raw == "None":
		return nil
	default:
		if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
			return n
		}
		if n, err := strconv.ParseFloat(raw, 64); err == nil {
			return n
		}
		return raw
	}
}

// formatAttributes renders the pass-through prop set as an HTML
// attribute string: underscores in keys become hyphens, true renders as
// a bare key, false/nil are omitted entirely, and quotes inside string
// values are escaped.
func formatAttributes(attrs map[string]interface{}) string {
	var b strings.Builder
	for k, v := range attrs {
		htmlKey := strings.ReplaceAll(k, "_", "-")
		switch val := v.(type) {
		case bool:
			if !val {
				continue
			}
			if b.Len() > 0 {
				b.WriteByte(' ')
			}
			b.WriteString(htmlKey)
		case nil:
			continue
		default:
			if b.Len() > 0 {
				b.WriteByte(' ')
			}
			b.WriteString(htmlKey)
			b.WriteString(`="`)
			b.WriteString(strings.ReplaceAll(stringify(val), `"`, "&quot;"))
			b.WriteByte('"')
		}
	}
	return b.String()
}

func unquoteAttr(raw string) string {
	if len(raw) >= 2 && (raw[0] == '"' || raw[0] == '\'') {
		return raw[1 : len(raw)-1]
	}
	if strings.HasPrefix(raw, "{{") {
		return strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(raw, "{{"), "}}"))
	}
	return raw
}
