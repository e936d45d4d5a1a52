// Package guard implements the condition language of workflow transitions.
//
// A guard is a boolean expression over named context fields:
//
//	record.state == "draft" and (fees.balance <= 0 or scholarship)
//	level in ["L1", "L2"] and not suspended
//
// Only literals (numbers, quoted strings, True/False, None), dotted field paths, lists,
// comparisons (== != < <= > >= in, not in) and boolean connectives (and/or/not, &&/||/!)
// are understood. There are no function calls, attribute methods or assignments.
package guard

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/pkg/errors"
)

// Expr is a compiled guard expression, safe for concurrent use.
type Expr struct {
	src  string
	root node
}

// Compile parses src into an Expr.
func Compile(src string) (*Expr, error) {
	root, err := parse(src)
	if err != nil {
		return nil, err
	}
	return &Expr{src: src, root: root}, nil
}

// Evaluate compiles and evaluates src against vars.
func Evaluate(src string, vars map[string]interface{}) (bool, error) {
	expr, err := Compile(src)
	if err != nil {
		return false, err
	}
	return expr.Eval(vars)
}

func (e *Expr) String() string { return e.src }

// Eval evaluates the expression. The result must be a boolean.
func (e *Expr) Eval(vars map[string]interface{}) (bool, error) {
	v, err := eval(e.root, vars)
	if err != nil {
		return false, err
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("expression yields %s, not a boolean", typeName(v))
	}
	return b, nil
}

func eval(n node, vars map[string]interface{}) (interface{}, error) {
	switch n := n.(type) {
	case literalNode:
		return n.val, nil
	case fieldNode:
		return lookup(vars, n.path)
	case listNode:
		items := make([]interface{}, 0, len(n.items))
		for _, it := range n.items {
			v, err := eval(it, vars)
			if err != nil {
				return nil, err
			}
			items = append(items, v)
		}
		return items, nil
	case negNode:
		v, err := eval(n.x, vars)
		if err != nil {
			return nil, err
		}
		f, ok := v.(float64)
		if !ok {
			return nil, fmt.Errorf("cannot negate %s", typeName(v))
		}
		return -f, nil
	case notNode:
		b, err := evalBool(n.x, vars, "not")
		if err != nil {
			return nil, err
		}
		return !b, nil
	case logicNode:
		opName := n.op.String()
		l, err := evalBool(n.l, vars, opName)
		if err != nil {
			return nil, err
		}
		if n.op == tokAnd && !l {
			return false, nil
		}
		if n.op == tokOr && l {
			return true, nil
		}
		return evalBool(n.r, vars, opName)
	case compareNode:
		l, err := eval(n.l, vars)
		if err != nil {
			return nil, err
		}
		r, err := eval(n.r, vars)
		if err != nil {
			return nil, err
		}
		return compare(n.op, n.negate, l, r)
	}
	return nil, fmt.Errorf("unknown node %T", n)
}

func evalBool(n node, vars map[string]interface{}, op string) (bool, error) {
	v, err := eval(n, vars)
	if err != nil {
		return false, err
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("operand of %q is %s, not a boolean", op, typeName(v))
	}
	return b, nil
}

func compare(op tokenKind, negate bool, l, r interface{}) (interface{}, error) {
	switch op {
	case tokEq:
		return equal(l, r), nil
	case tokNe:
		return !equal(l, r), nil
	case tokIn:
		found, err := contains(r, l)
		if err != nil {
			return nil, err
		}
		return found != negate, nil
	}

	switch lv := l.(type) {
	case float64:
		rv, ok := r.(float64)
		if !ok {
			return nil, fmt.Errorf("cannot compare number with %s", typeName(r))
		}
		return ordered(op, lv < rv, lv == rv), nil
	case string:
		rv, ok := r.(string)
		if !ok {
			return nil, fmt.Errorf("cannot compare string with %s", typeName(r))
		}
		return ordered(op, lv < rv, lv == rv), nil
	}
	return nil, fmt.Errorf("%s does not support %q", typeName(l), op.String())
}

func ordered(op tokenKind, less, eq bool) bool {
	switch op {
	case tokLt:
		return less
	case tokLe:
		return less || eq
	case tokGt:
		return !less && !eq
	default: // tokGe
		return !less
	}
}

func equal(l, r interface{}) bool {
	ll, lok := l.([]interface{})
	rl, rok := r.([]interface{})
	if lok || rok {
		if !(lok && rok) || len(ll) != len(rl) {
			return false
		}
		for i := range ll {
			if !equal(ll[i], rl[i]) {
				return false
			}
		}
		return true
	}
	return l == r
}

func contains(container, item interface{}) (bool, error) {
	switch c := container.(type) {
	case []interface{}:
		for _, el := range c {
			if equal(el, item) {
				return true, nil
			}
		}
		return false, nil
	case string:
		s, ok := item.(string)
		if !ok {
			return false, fmt.Errorf("cannot search %s in a string", typeName(item))
		}
		return strings.Contains(c, s), nil
	}
	return false, fmt.Errorf("right operand of \"in\" is %s, not a list or string", typeName(container))
}

// lookup resolves a dotted path in vars and normalizes the value.
func lookup(vars map[string]interface{}, path []string) (interface{}, error) {
	var cur interface{} = vars
	for i, key := range path {
		m, ok := asMap(cur)
		if !ok {
			return nil, fmt.Errorf("field %q is not an object", joinPath(path[:i]))
		}
		v, ok := m[key]
		if !ok {
			return nil, fmt.Errorf("unknown field %q", joinPath(path[:i+1]))
		}
		cur = v
	}
	v, err := normalize(cur)
	return v, errors.Wrapf(err, "field %q", joinPath(path))
}

func asMap(v interface{}) (map[string]interface{}, bool) {
	switch m := v.(type) {
	case map[string]interface{}:
		return m, true
	case map[string]string:
		out := make(map[string]interface{}, len(m))
		for k, s := range m {
			out[k] = s
		}
		return out, true
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String {
		return nil, false
	}
	out := make(map[string]interface{}, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		out[iter.Key().String()] = iter.Value().Interface()
	}
	return out, true
}

func joinPath(path []string) string {
	return strings.Join(path, ".")
}

// normalize maps Go values onto the value kinds of the language: nil, bool, float64, string and lists.
func normalize(v interface{}) (interface{}, error) {
	switch x := v.(type) {
	case nil, bool, string, float64:
		return x, nil
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return nil, err
		}
		return f, nil
	case []interface{}:
		out := make([]interface{}, 0, len(x))
		for _, el := range x {
			n, err := normalize(el)
			if err != nil {
				return nil, err
			}
			out = append(out, n)
		}
		return out, nil
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), nil
	case reflect.Float32:
		return rv.Float(), nil
	case reflect.Bool:
		return rv.Bool(), nil
	case reflect.String:
		return rv.String(), nil
	case reflect.Slice, reflect.Array:
		out := make([]interface{}, 0, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			n, err := normalize(rv.Index(i).Interface())
			if err != nil {
				return nil, err
			}
			out = append(out, n)
		}
		return out, nil
	}
	return nil, fmt.Errorf("unsupported value of type %T", v)
}

func typeName(v interface{}) string {
	switch v.(type) {
	case nil:
		return "None"
	case bool:
		return "a boolean"
	case float64:
		return "a number"
	case string:
		return "a string"
	case []interface{}:
		return "a list"
	}
	return fmt.Sprintf("%T", v)
}
