package evaluator

import (
	"strconv"
	"strings"

	"github.com/packalyst/swiftblade/errs"
	"github.com/packalyst/swiftblade/runtime"
)

// MutableContext is the subset of runtime.Context that statement mode
// needs to write bindings back into: @python blocks may mutate the
// render context.
type MutableContext interface {
	runtime.Context
	Set(name string, value interface{})
}

type ctrlSignal int

const (
	ctrlNone ctrlSignal = iota
	ctrlBreak
	ctrlContinue
)

type stmtLine struct {
	indent int
	text   string
}

// SafeExec executes a @python block (statement mode) against ctx,
// mutating it in place. Only enabled by the caller when
// allow_python_blocks is true; that gate lives in the misc handler, not
// here, so SafeExec itself has no opinion on the flag.
func (e *Evaluator) SafeExec(code string, ctx MutableContext) error {
	code = dedent(code)
	if strings.TrimSpace(code) == "" {
		return nil
	}
	lines := splitIndented(code)
	e.ctx = ctx
	_, err := e.execBlock(lines, ctx)
	return err
}

func splitIndented(code string) []stmtLine {
	var out []stmtLine
	for _, raw := range strings.Split(code, "\n") {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		indent := 0
		for indent < len(raw) && (raw[indent] == ' ' || raw[indent] == '\t') {
			indent++
		}
		out = append(out, stmtLine{indent: indent, text: strings.TrimSpace(raw)})
	}
	return out
}

// execBlock executes a flat sequence of same-or-deeper-indented lines,
// consuming nested blocks recursively, and returns early with a control
// signal on break/continue.
func (e *Evaluator) execBlock(lines []stmtLine, ctx MutableContext) (ctrlSignal, error) {
	if len(lines) == 0 {
		return ctrlNone, nil
	}
	base := lines[0].indent
	i := 0
	for i < len(lines) {
		line := lines[i]
		if line.indent != base {
			return ctrlNone, errs.Syntax("unexpected indentation in @python block", line.text)
		}
		switch {
		case line.text == "pass":
			i++
		case line.text == "break":
			return ctrlBreak, nil
		case line.text == "continue":
			return ctrlContinue, nil
		case strings.HasPrefix(line.text, "if ") && strings.HasSuffix(line.text, ":"):
			consumed, sig, err := e.execIf(lines[i:], ctx)
			if err != nil {
				return ctrlNone, err
			}
			if sig != ctrlNone {
				return sig, nil
			}
			i += consumed
		case strings.HasPrefix(line.text, "for ") && strings.HasSuffix(line.text, ":"):
			consumed, err := e.execFor(lines[i:], ctx)
			if err != nil {
				return ctrlNone, err
			}
			i += consumed
		case strings.HasPrefix(line.text, "while ") && strings.HasSuffix(line.text, ":"):
			consumed, err := e.execWhile(lines[i:], ctx)
			if err != nil {
				return ctrlNone, err
			}
			i += consumed
		default:
			if err := e.execSimple(line.text, ctx); err != nil {
				return ctrlNone, err
			}
			i++
		}
	}
	return ctrlNone, nil
}

// bodyExtent returns the number of lines taken by the header at index 0
// plus the more-indented body lines that follow it.
func bodyExtent(lines []stmtLine, headerIndent int) int {
	n := 1
	for n < len(lines) && lines[n].indent > headerIndent {
		n++
	}
	return n
}

func (e *Evaluator) execIf(lines []stmtLine, ctx MutableContext) (int, ctrlSignal, error) {
	header := lines[0]
	total := 0
	pos := 0
	taken := false
	sig := ctrlNone
	for pos < len(lines) {
		cur := lines[pos]
		if cur.indent != header.indent {
			break
		}
		var cond string
		isElse := false
		switch {
		case strings.HasPrefix(cur.text, "if "):
			cond = strings.TrimSuffix(strings.TrimPrefix(cur.text, "if "), ":")
		case strings.HasPrefix(cur.text, "elif "):
			cond = strings.TrimSuffix(strings.TrimPrefix(cur.text, "elif "), ":")
		case cur.text == "else:":
			isElse = true
		default:
			pos = len(lines)
			continue
		}
		bodyLen := bodyExtent(lines[pos:], header.indent)
		body := lines[pos+1 : pos+bodyLen]
		run := isElse
		if !run && !taken {
			v, err := e.Eval(cond, ctx)
			if err != nil {
				return 0, ctrlNone, err
			}
			run = runtime.Truthy(v)
		}
		if run && !taken {
			taken = true
			s, err := e.execBlock(body, ctx)
			if err != nil {
				return 0, ctrlNone, err
			}
			sig = s
		}
		total = pos + bodyLen
		pos += bodyLen
		if isElse {
			break
		}
	}
	return total, sig, nil
}

func (e *Evaluator) execFor(lines []stmtLine, ctx MutableContext) (int, error) {
	header := lines[0].text
	rest := strings.TrimSuffix(strings.TrimPrefix(header, "for "), ":")
	parts := strings.SplitN(rest, " in ", 2)
	if len(parts) != 2 {
		return 0, errs.Syntax("malformed for statement in @python block", header)
	}
	varName := strings.TrimSpace(parts[0])
	iterVal, err := e.Eval(strings.TrimSpace(parts[1]), ctx)
	if err != nil {
		return 0, err
	}
	bodyLen := bodyExtent(lines, lines[0].indent)
	body := lines[1:bodyLen]
	for _, item := range toSlice(iterVal) {
		ctx.Set(varName, item)
		sig, err := e.execBlock(body, ctx)
		if err != nil {
			return 0, err
		}
		if sig == ctrlBreak {
			break
		}
	}
	return bodyLen, nil
}

func (e *Evaluator) execWhile(lines []stmtLine, ctx MutableContext) (int, error) {
	header := lines[0].text
	cond := strings.TrimSuffix(strings.TrimPrefix(header, "while "), ":")
	bodyLen := bodyExtent(lines, lines[0].indent)
	body := lines[1:bodyLen]
	const maxIterations = 100000
	for i := 0; i < maxIterations; i++ {
		v, err := e.Eval(cond, ctx)
		if err != nil {
			return 0, err
		}
		if !runtime.Truthy(v) {
			break
		}
		sig, err := e.execBlock(body, ctx)
		if err != nil {
			return 0, err
		}
		if sig == ctrlBreak {
			break
		}
	}
	return bodyLen, nil
}

var augOps = []string{"+=", "-=", "*=", "/="}

func (e *Evaluator) execSimple(text string, ctx MutableContext) error {
	for _, op := range augOps {
		if idx := strings.Index(text, op); idx > 0 {
			name := strings.TrimSpace(text[:idx])
			if isIdentifier(name) {
				rhs := strings.TrimSpace(text[idx+len(op):])
				rv, err := e.Eval(rhs, ctx)
				if err != nil {
					return err
				}
				cur, _ := ctx.Get(name)
				result, err := binOp(string(op[0]), cur, rv)
				if err != nil {
					return errs.Directive(err.Error(), text)
				}
				ctx.Set(name, result)
				return nil
			}
		}
	}
	if idx := strings.Index(text, "="); idx > 0 && text[idx-1] != '=' && text[idx-1] != '!' && text[idx-1] != '<' && text[idx-1] != '>' &&
		(idx+1 >= len(text) || text[idx+1] != '=') {
		name := strings.TrimSpace(text[:idx])
		if isIdentifier(name) {
			rhs := strings.TrimSpace(text[idx+1:])
			v, err := e.Eval(rhs, ctx)
			if err != nil {
				return err
			}
			ctx.Set(name, v)
			return nil
		}
	}
	// bare expression statement, evaluated and discarded
	_, err := e.Eval(text, ctx)
	return err
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		if r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (i > 0 && r >= '0' && r <= '9') {
			continue
		}
		return false
	}
	if strings.HasPrefix(s, "_") {
		return false
	}
	return true
}

// dedent strips the common leading whitespace from code, as measured in
// runes across non-empty lines, per design notes (c).
func dedent(code string) string {
	lines := strings.Split(code, "\n")
	for len(lines) > 0 && strings.TrimSpace(lines[0]) == "" {
		lines = lines[1:]
	}
	for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
		lines = lines[:len(lines)-1]
	}
	if len(lines) == 0 {
		return ""
	}
	minIndent := -1
	for _, l := range lines {
		if strings.TrimSpace(l) == "" {
			continue
		}
		indent := len(l) - len(strings.TrimLeft(l, " \t"))
		if minIndent == -1 || indent < minIndent {
			minIndent = indent
		}
	}
	if minIndent <= 0 {
		return strings.Join(lines, "\n")
	}
	for i, l := range lines {
		if strings.TrimSpace(l) == "" {
			continue
		}
		if len(l) >= minIndent {
			lines[i] = l[minIndent:]
		}
	}
	return strings.Join(lines, "\n")
}

var _ = strconv.Itoa
