package evaluator

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/spf13/cast"

	"github.com/packalyst/swiftblade/runtime"
)

// defaultBuiltins builds the safe-builtin table, resolved in a lookup
// separate from (and consulted before) the context binding. Grounded on
// swiftblade/evaluator.py's `safe_builtins` dict; a handful of argument-
// shape conventions (first/last, abs/round) were cross-checked against
// codingersid-legit-template/engine/functions.go's equivalents.
func (e *Evaluator) defaultBuiltins() map[string]interface{} {
	one := func(f func(interface{}) (interface{}, error)) BuiltinFunc {
		return func(args []interface{}, _ map[string]interface{}) (interface{}, error) {
			if len(args) != 1 {
				return nil, fmt.Errorf("expected 1 argument, got %d", len(args))
			}
			return f(args[0])
		}
	}

	return map[string]interface{}{
		"str":   one(func(v interface{}) (interface{}, error) { return cast.ToStringE(v) }),
		"int":   one(func(v interface{}) (interface{}, error) { return cast.ToInt64E(v) }),
		"float": one(func(v interface{}) (interface{}, error) { return cast.ToFloat64E(v) }),
		"bool":  one(func(v interface{}) (interface{}, error) { return runtime.Truthy(v), nil }),
		"list":  one(func(v interface{}) (interface{}, error) { return toSlice(v), nil }),
		"dict": BuiltinFunc(func(args []interface{}, kwargs map[string]interface{}) (interface{}, error) {
			out := map[string]interface{}{}
			for k, v := range kwargs {
				out[k] = v
			}
			return out, nil
		}),
		"tuple": one(func(v interface{}) (interface{}, error) { return toSlice(v), nil }),
		"set":   one(func(v interface{}) (interface{}, error) { return uniqueSlice(toSlice(v)), nil }),

		"range": BuiltinFunc(func(args []interface{}, _ map[string]interface{}) (interface{}, error) {
			return builtinRange(args)
		}),
		"enumerate": BuiltinFunc(func(args []interface{}, _ map[string]interface{}) (interface{}, error) {
			if len(args) != 1 {
				return nil, fmt.Errorf("enumerate expects 1 argument")
			}
			s := toSlice(args[0])
			out := make([]interface{}, len(s))
			for i, v := range s {
				out[i] = []interface{}{int64(i), v}
			}
			return out, nil
		}),
		"zip": BuiltinFunc(func(args []interface{}, _ map[string]interface{}) (interface{}, error) {
			if len(args) == 0 {
				return []interface{}{}, nil
			}
			slices := make([][]interface{}, len(args))
			minLen := -1
			for i, a := range args {
				slices[i] = toSlice(a)
				if minLen == -1 || len(slices[i]) < minLen {
					minLen = len(slices[i])
				}
			}
			out := make([]interface{}, minLen)
			for i := 0; i < minLen; i++ {
				row := make([]interface{}, len(slices))
				for j := range slices {
					row[j] = slices[j][i]
				}
				out[i] = row
			}
			return out, nil
		}),
		"map": BuiltinFunc(func(args []interface{}, _ map[string]interface{}) (interface{}, error) {
			if len(args) != 2 {
				return nil, fmt.Errorf("map expects (fn, iterable)")
			}
			s := toSlice(args[1])
			out := make([]interface{}, len(s))
			for i, v := range s {
				r, err := callValue(args[0], []interface{}{v}, nil)
				if err != nil {
					return nil, err
				}
				out[i] = r
			}
			return out, nil
		}),
		"filter": BuiltinFunc(func(args []interface{}, _ map[string]interface{}) (interface{}, error) {
			if len(args) != 2 {
				return nil, fmt.Errorf("filter expects (fn, iterable)")
			}
			s := toSlice(args[1])
			var out []interface{}
			for _, v := range s {
				r, err := callValue(args[0], []interface{}{v}, nil)
				if err != nil {
					return nil, err
				}
				if runtime.Truthy(r) {
					out = append(out, v)
				}
			}
			return out, nil
		}),

		"len":   one(builtinLen),
		"count": one(builtinLen),
		"sorted": one(func(v interface{}) (interface{}, error) {
			s := append([]interface{}{}, toSlice(v)...)
			sort.SliceStable(s, func(i, j int) bool { return fmt.Sprint(s[i]) < fmt.Sprint(s[j]) })
			return s, nil
		}),
		"sum": one(func(v interface{}) (interface{}, error) {
			var total float64
			for _, x := range toSlice(v) {
				total += toFloat(x)
			}
			return total, nil
		}),
		"min": BuiltinFunc(func(args []interface{}, _ map[string]interface{}) (interface{}, error) {
			return minMax(args, true)
		}),
		"max": BuiltinFunc(func(args []interface{}, _ map[string]interface{}) (interface{}, error) {
			return minMax(args, false)
		}),
		"first": BuiltinFunc(func(args []interface{}, _ map[string]interface{}) (interface{}, error) {
			return firstLast(args, true)
		}),
		"last": BuiltinFunc(func(args []interface{}, _ map[string]interface{}) (interface{}, error) {
			return firstLast(args, false)
		}),

		"abs": one(func(v interface{}) (interface{}, error) {
			f := toFloat(v)
			if f < 0 {
				f = -f
			}
			if isFloatVal(v) {
				return f, nil
			}
			return int64(f), nil
		}),
		"round": BuiltinFunc(func(args []interface{}, _ map[string]interface{}) (interface{}, error) {
			if len(args) == 0 {
				return nil, fmt.Errorf("round expects at least 1 argument")
			}
			f := toFloat(args[0])
			ndigits := 0
			if len(args) > 1 {
				ndigits = int(toFloat(args[1]))
			}
			mult := 1.0
			for i := 0; i < ndigits; i++ {
				mult *= 10
			}
			r := float64(int64(f*mult+0.5)) / mult
			if ndigits == 0 {
				return int64(r), nil
			}
			return r, nil
		}),

		"upper":      one(func(v interface{}) (interface{}, error) { return strings.ToUpper(fmt.Sprint(v)), nil }),
		"lower":      one(func(v interface{}) (interface{}, error) { return strings.ToLower(fmt.Sprint(v)), nil }),
		"capitalize": one(func(v interface{}) (interface{}, error) { return strings.Title(strings.ToLower(fmt.Sprint(v))), nil }),
		"title":      one(func(v interface{}) (interface{}, error) { return strings.Title(fmt.Sprint(v)), nil }),
		"strip":      one(func(v interface{}) (interface{}, error) { return strings.TrimSpace(fmt.Sprint(v)), nil }),
		"replace": BuiltinFunc(func(args []interface{}, _ map[string]interface{}) (interface{}, error) {
			if len(args) != 3 {
				return nil, fmt.Errorf("replace expects (s, old, new)")
			}
			return strings.ReplaceAll(fmt.Sprint(args[0]), fmt.Sprint(args[1]), fmt.Sprint(args[2])), nil
		}),
		"split": BuiltinFunc(func(args []interface{}, _ map[string]interface{}) (interface{}, error) {
			if len(args) < 2 {
				return nil, fmt.Errorf("split expects (s, sep)")
			}
			parts := strings.Split(fmt.Sprint(args[0]), fmt.Sprint(args[1]))
			out := make([]interface{}, len(parts))
			for i, p := range parts {
				out[i] = p
			}
			return out, nil
		}),
		"join": BuiltinFunc(func(args []interface{}, _ map[string]interface{}) (interface{}, error) {
			if len(args) != 2 {
				return nil, fmt.Errorf("join expects (sep, iterable)")
			}
			parts := toSlice(args[1])
			strs := make([]string, len(parts))
			for i, p := range parts {
				strs[i] = fmt.Sprint(p)
			}
			return strings.Join(strs, fmt.Sprint(args[0])), nil
		}),

		"json_encode": one(func(v interface{}) (interface{}, error) {
			b, err := json.Marshal(v)
			if err != nil {
				return nil, err
			}
			return string(b), nil
		}),
		"json_decode": one(func(v interface{}) (interface{}, error) {
			var out interface{}
			if err := json.Unmarshal([]byte(fmt.Sprint(v)), &out); err != nil {
				return nil, err
			}
			return out, nil
		}),

		"is_list":   one(func(v interface{}) (interface{}, error) { _, ok := v.([]interface{}); return ok, nil }),
		"is_dict":   one(func(v interface{}) (interface{}, error) { return isMapLike(v), nil }),
		"is_string": one(func(v interface{}) (interface{}, error) { _, ok := v.(string); return ok, nil }),
		"is_number": one(func(v interface{}) (interface{}, error) { return isNumber(v), nil }),

		"isset": BuiltinFunc(func(args []interface{}, _ map[string]interface{}) (interface{}, error) {
			if len(args) != 1 {
				return nil, fmt.Errorf("isset expects 1 argument")
			}
			name, ok := args[0].(string)
			if !ok {
				return false, nil
			}
			val, found := e.ctx.Get(name)
			return found && val != nil, nil
		}),
		"default": BuiltinFunc(func(args []interface{}, _ map[string]interface{}) (interface{}, error) {
			if len(args) == 0 {
				return nil, fmt.Errorf("default expects at least 1 argument")
			}
			def := interface{}("")
			if len(args) > 1 {
				def = args[1]
			}
			if runtime.Truthy(args[0]) {
				return args[0], nil
			}
			return def, nil
		}),
	}
}

func builtinLen(v interface{}) (interface{}, error) {
	if v == nil {
		return int64(0), nil
	}
	if s, ok := v.(string); ok {
		return int64(len([]rune(s))), nil
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map, reflect.String:
		return int64(rv.Len()), nil
	}
	return nil, fmt.Errorf("object has no len()")
}

func isMapLike(v interface{}) bool {
	if _, ok := v.(map[string]interface{}); ok {
		return true
	}
	rv := reflect.ValueOf(v)
	return rv.IsValid() && rv.Kind() == reflect.Map
}

func uniqueSlice(in []interface{}) []interface{} {
	seen := map[string]bool{}
	var out []interface{}
	for _, v := range in {
		k := fmt.Sprint(v)
		if !seen[k] {
			seen[k] = true
			out = append(out, v)
		}
	}
	return out
}

func builtinRange(args []interface{}) (interface{}, error) {
	var start, stop, step int64 = 0, 0, 1
	switch len(args) {
	case 1:
		stop = int64(toFloat(args[0]))
	case 2:
		start = int64(toFloat(args[0]))
		stop = int64(toFloat(args[1]))
	case 3:
		start = int64(toFloat(args[0]))
		stop = int64(toFloat(args[1]))
		step = int64(toFloat(args[2]))
	default:
		return nil, fmt.Errorf("range expects 1-3 arguments")
	}
	if step == 0 {
		return nil, fmt.Errorf("range() step must not be zero")
	}
	var out []interface{}
	if step > 0 {
		for i := start; i < stop; i += step {
			out = append(out, i)
		}
	} else {
		for i := start; i > stop; i += step {
			out = append(out, i)
		}
	}
	return out, nil
}

func minMax(args []interface{}, wantMin bool) (interface{}, error) {
	var values []interface{}
	if len(args) == 1 {
		values = toSlice(args[0])
	} else {
		values = args
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("arg is an empty sequence")
	}
	best := values[0]
	for _, v := range values[1:] {
		if wantMin && toFloat(v) < toFloat(best) {
			best = v
		}
		if !wantMin && toFloat(v) > toFloat(best) {
			best = v
		}
	}
	return best, nil
}

func firstLast(args []interface{}, wantFirst bool) (interface{}, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("expected at least 1 argument")
	}
	var def interface{}
	if len(args) > 1 {
		def = args[1]
	}
	s := toSlice(args[0])
	if len(s) == 0 {
		return def, nil
	}
	if wantFirst {
		return s[0], nil
	}
	return s[len(s)-1], nil
}
