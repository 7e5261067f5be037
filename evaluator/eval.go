// Package evaluator implements the sandboxed expression and statement
// evaluator : a dedicated recursive-descent sub-parser
// produces an AST from the whitelisted grammar in ast.go, and Eval walks
// it directly. There is no host-language eval involved at any point.
package evaluator

import (
	"fmt"
	"math"
	"reflect"
	"regexp"
	"strings"

	"github.com/packalyst/swiftblade/errs"
	"github.com/packalyst/swiftblade/runtime"
)

// Evaluator holds the safe-builtin table consulted before falling back
// to context lookup, per design notes.
type Evaluator struct {
	builtins map[string]interface{}
	// ctx is the context of the expression currently being evaluated.
	// Only isset() needs it (it must consult the raw context,
	// not a value already looked up); the single-render, single-thread
	// contract makes this safe to stash on the evaluator rather than
	// threading it through every builtin signature.
	ctx runtime.Context
}

func New() *Evaluator {
	e := &Evaluator{}
	e.builtins = e.defaultBuiltins()
	return e
}

var dollarPrefix = regexp.MustCompile(`\$([A-Za-z_][A-Za-z0-9_]*)`)

// stripDollar rewrites `$name` references to `name` so both `{{ $user }}`
// and `{{ user }}` parse identically.
func stripDollar(expr string) string {
	return dollarPrefix.ReplaceAllString(expr, "$1")
}

// Eval parses and evaluates expr in expression mode against ctx.
func (e *Evaluator) Eval(expr string, ctx runtime.Context) (interface{}, error) {
	expr = strings.TrimSpace(stripDollar(expr))
	if expr == "" {
		return nil, nil
	}
	node, err := parseExpr(expr)
	if err != nil {
		return nil, err
	}
	e.ctx = ctx
	v, err := e.eval(node, ctx)
	if err != nil {
		if _, ok := err.(*errs.TemplateError); ok {
			if te := err.(*errs.TemplateError); te.Kind == errs.KindSecurity {
				return nil, err
			}
		}
		return nil, errs.Directive(fmt.Sprintf("error evaluating expression: %v", err), expr)
	}
	return v, nil
}

// Truthy evaluates expr and reports its truthiness. Any evaluation
// failure other than a security error (an undefined name, a bad
// attribute, a failed call alike) is treated as falsy rather than an
// error. Security errors are never swallowed here; they propagate to the
// caller.
func (e *Evaluator) Truthy(expr string, ctx runtime.Context) (bool, error) {
	v, err := e.Eval(expr, ctx)
	if err != nil {
		if errs.IsKind(err, errs.KindSecurity) {
			return false, err
		}
		return false, nil
	}
	return runtime.Truthy(v), nil
}

func (e *Evaluator) eval(n Node, ctx runtime.Context) (interface{}, error) {
	switch v := n.(type) {
	case NumberLit:
		if v.IsFloat {
			return v.Float, nil
		}
		return v.Int, nil
	case StringLit:
		return v.Value, nil
	case BoolLit:
		return v.Value, nil
	case NoneLit:
		return nil, nil
	case NameNode:
		if b, ok := e.builtins[v.Name]; ok {
			if val, found := ctx.Get(v.Name); found {
				return val, nil
			}
			return b, nil
		}
		val, found := ctx.Get(v.Name)
		if !found {
			return nil, fmt.Errorf("name '%s' is not defined", v.Name)
		}
		return val, nil
	case AttributeNode:
		base, err := e.eval(v.Value, ctx)
		if err != nil {
			return nil, err
		}
		val, ok := runtime.DotGet(base, v.Attr)
		if !ok {
			return nil, fmt.Errorf("no attribute '%s'", v.Attr)
		}
		return val, nil
	case SubscriptNode:
		base, err := e.eval(v.Value, ctx)
		if err != nil {
			return nil, err
		}
		idx, err := e.eval(v.Index, ctx)
		if err != nil {
			return nil, err
		}
		return subscript(base, idx)
	case SliceNode:
		base, err := e.eval(v.Value, ctx)
		if err != nil {
			return nil, err
		}
		var lo, hi int
		s := toSlice(base)
		hi = len(s)
		if v.HasLow {
			loV, err := e.eval(v.Low, ctx)
			if err != nil {
				return nil, err
			}
			lo = int(toFloat(loV))
		}
		if v.HasHi {
			hiV, err := e.eval(v.Hi, ctx)
			if err != nil {
				return nil, err
			}
			hi = int(toFloat(hiV))
		}
		lo, hi = clampRange(lo, hi, len(s))
		return s[lo:hi], nil
	case CallNode:
		fn, err := e.eval(v.Func, ctx)
		if err != nil {
			return nil, err
		}
		args := make([]interface{}, len(v.Args))
		for i, a := range v.Args {
			av, err := e.eval(a, ctx)
			if err != nil {
				return nil, err
			}
			args[i] = av
		}
		kwargs := map[string]interface{}{}
		for k, a := range v.Kwargs {
			av, err := e.eval(a, ctx)
			if err != nil {
				return nil, err
			}
			kwargs[k] = av
		}
		return callValue(fn, args, kwargs)
	case UnaryOpNode:
		operand, err := e.eval(v.Operand, ctx)
		if err != nil {
			return nil, err
		}
		switch v.Op {
		case "not":
			return !runtime.Truthy(operand), nil
		case "-":
			return negate(operand), nil
		case "+":
			return operand, nil
		}
	case BinOpNode:
		l, err := e.eval(v.Left, ctx)
		if err != nil {
			return nil, err
		}
		r, err := e.eval(v.Right, ctx)
		if err != nil {
			return nil, err
		}
		return binOp(v.Op, l, r)
	case BoolOpNode:
		var last interface{}
		for _, val := range v.Values {
			rv, err := e.eval(val, ctx)
			if err != nil {
				return nil, err
			}
			last = rv
			if v.Op == "or" && runtime.Truthy(rv) {
				return rv, nil
			}
			if v.Op == "and" && !runtime.Truthy(rv) {
				return rv, nil
			}
		}
		return last, nil
	case CompareNode:
		left, err := e.eval(v.Left, ctx)
		if err != nil {
			return nil, err
		}
		for i, op := range v.Ops {
			right, err := e.eval(v.Comparators[i], ctx)
			if err != nil {
				return nil, err
			}
			ok, err := compare(op, left, right)
			if err != nil {
				return nil, err
			}
			if !ok {
				return false, nil
			}
			left = right
		}
		return true, nil
	case IfExpNode:
		test, err := e.eval(v.Test, ctx)
		if err != nil {
			return nil, err
		}
		if runtime.Truthy(test) {
			return e.eval(v.Body, ctx)
		}
		return e.eval(v.OrElse, ctx)
	case ListNode:
		out := make([]interface{}, len(v.Elts))
		for i, el := range v.Elts {
			ev, err := e.eval(el, ctx)
			if err != nil {
				return nil, err
			}
			out[i] = ev
		}
		return out, nil
	case TupleNode:
		out := make([]interface{}, len(v.Elts))
		for i, el := range v.Elts {
			ev, err := e.eval(el, ctx)
			if err != nil {
				return nil, err
			}
			out[i] = ev
		}
		return out, nil
	case SetNode:
		out := make([]interface{}, len(v.Elts))
		for i, el := range v.Elts {
			ev, err := e.eval(el, ctx)
			if err != nil {
				return nil, err
			}
			out[i] = ev
		}
		return out, nil
	case DictNode:
		out := make(map[string]interface{}, len(v.Keys))
		for i, k := range v.Keys {
			kv, err := e.eval(k, ctx)
			if err != nil {
				return nil, err
			}
			vv, err := e.eval(v.Values[i], ctx)
			if err != nil {
				return nil, err
			}
			out[fmt.Sprint(kv)] = vv
		}
		return out, nil
	}
	return nil, fmt.Errorf("unhandled expression node %T", n)
}

func clampRange(lo, hi, n int) (int, int) {
	if lo < 0 {
		lo += n
	}
	if hi < 0 {
		hi += n
	}
	if lo < 0 {
		lo = 0
	}
	if hi > n {
		hi = n
	}
	if lo > hi {
		lo = hi
	}
	return lo, hi
}

func toSlice(v interface{}) []interface{} {
	if s, ok := v.([]interface{}); ok {
		return s
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil
	}
	out := make([]interface{}, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out
}

func subscript(base, idx interface{}) (interface{}, error) {
	switch key := idx.(type) {
	case string:
		if v, ok := runtime.DotGet(base, key); ok {
			return v, nil
		}
		return nil, fmt.Errorf("key %q not found", key)
	default:
		i := int(toFloat(idx))
		s := toSlice(base)
		if i < 0 {
			i += len(s)
		}
		if i < 0 || i >= len(s) {
			return nil, fmt.Errorf("index %d out of range", i)
		}
		return s[i], nil
	}
}

func negate(v interface{}) interface{} {
	switch n := v.(type) {
	case int64:
		return -n
	case float64:
		return -n
	}
	return v
}

func isFloatVal(v interface{}) bool {
	_, ok := v.(float64)
	return ok
}

func toFloat(v interface{}) float64 {
	switch n := v.(type) {
	case int64:
		return float64(n)
	case int:
		return float64(n)
	case float64:
		return n
	case bool:
		if n {
			return 1
		}
		return 0
	}
	return 0
}

func numResult(isFloat bool, f float64) interface{} {
	if isFloat {
		return f
	}
	return int64(f)
}

func binOp(op string, l, r interface{}) (interface{}, error) {
	if op == "+" {
		ls, lok := l.(string)
		rs, rok := r.(string)
		if lok && rok {
			return ls + rs, nil
		}
	}
	isFloat := isFloatVal(l) || isFloatVal(r)
	lf, rf := toFloat(l), toFloat(r)
	switch op {
	case "+":
		return numResult(isFloat, lf+rf), nil
	case "-":
		return numResult(isFloat, lf-rf), nil
	case "*":
		return numResult(isFloat, lf*rf), nil
	case "/":
		if rf == 0 {
			return nil, fmt.Errorf("division by zero")
		}
		return lf / rf, nil
	case "//":
		if rf == 0 {
			return nil, fmt.Errorf("division by zero")
		}
		return numResult(isFloat, math.Floor(lf/rf)), nil
	case "%":
		if rf == 0 {
			return nil, fmt.Errorf("modulo by zero")
		}
		return numResult(isFloat, math.Mod(lf, rf)), nil
	case "**":
		return numResult(isFloat, math.Pow(lf, rf)), nil
	}
	return nil, fmt.Errorf("unsupported operator %q", op)
}

func compare(op string, l, r interface{}) (bool, error) {
	switch op {
	case "==":
		return looseEqual(l, r), nil
	case "!=":
		return !looseEqual(l, r), nil
	case "is":
		return looseEqual(l, r), nil
	case "isnot":
		return !looseEqual(l, r), nil
	case "<", "<=", ">", ">=":
		lf, rf := toFloat(l), toFloat(r)
		switch op {
		case "<":
			return lf < rf, nil
		case "<=":
			return lf <= rf, nil
		case ">":
			return lf > rf, nil
		case ">=":
			return lf >= rf, nil
		}
	case "in", "notin":
		found := membership(l, r)
		if op == "notin" {
			return !found, nil
		}
		return found, nil
	}
	return false, fmt.Errorf("unsupported comparison %q", op)
}

func looseEqual(l, r interface{}) bool {
	if l == nil || r == nil {
		return l == r
	}
	if isNumber(l) && isNumber(r) {
		return toFloat(l) == toFloat(r)
	}
	return fmt.Sprint(l) == fmt.Sprint(r) && reflect.TypeOf(l).Kind() == reflect.TypeOf(r).Kind() || reflect.DeepEqual(l, r)
}

func isNumber(v interface{}) bool {
	switch v.(type) {
	case int, int64, float64:
		return true
	}
	return false
}

func membership(item, container interface{}) bool {
	switch c := container.(type) {
	case string:
		s, ok := item.(string)
		return ok && strings.Contains(c, s)
	case map[string]interface{}:
		key := fmt.Sprint(item)
		_, ok := c[key]
		return ok
	default:
		for _, v := range toSlice(container) {
			if looseEqual(v, item) {
				return true
			}
		}
	}
	return false
}
