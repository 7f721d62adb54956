package expr

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/randalmurphal/stategraph/pkg/stategraph/state"
)

type node interface {
	eval(s state.State) any
}

type literal struct{ v any }

func (l literal) eval(state.State) any { return l.v }

// path resolves a state key, then descends through nested maps.
type path []string

func (p path) eval(s state.State) any {
	v, ok := s.Get(p[0])
	if !ok {
		return nil
	}
	for _, key := range p[1:] {
		switch m := v.(type) {
		case map[string]any:
			v = m[key]
		case state.State:
			v, _ = m.Get(key)
		default:
			return nil
		}
	}
	return v
}

type notNode struct{ inner node }

func (n notNode) eval(s state.State) any { return !IsTruthy(n.inner.eval(s)) }

type andNode struct{ left, right node }

func (n andNode) eval(s state.State) any {
	return IsTruthy(n.left.eval(s)) && IsTruthy(n.right.eval(s))
}

type orNode struct{ left, right node }

func (n orNode) eval(s state.State) any {
	return IsTruthy(n.left.eval(s)) || IsTruthy(n.right.eval(s))
}

type compareNode struct {
	op          string
	left, right node
}

func (n compareNode) eval(s state.State) any {
	ok, _ := Compare(n.left.eval(s), n.right.eval(s), n.op)
	return ok
}

// Compare applies op to two resolved values.
// Returns an error for unknown operators.
func Compare(left, right any, op string) (bool, error) {
	switch op {
	case "==":
		return equal(left, right), nil
	case "!=":
		return !equal(left, right), nil
	case "<", ">", "<=", ">=":
		c, ok := order(left, right)
		if !ok {
			return false, nil
		}
		switch op {
		case "<":
			return c < 0, nil
		case ">":
			return c > 0, nil
		case "<=":
			return c <= 0, nil
		default:
			return c >= 0, nil
		}
	case "contains":
		return contains(left, right), nil
	}
	return false, fmt.Errorf("unknown operator: %s", op)
}

func equal(left, right any) bool {
	if l, ok := ToFloat64(left); ok {
		if r, ok := ToFloat64(right); ok {
			return l == r
		}
	}
	if left == nil || right == nil {
		return left == nil && right == nil
	}
	return fmt.Sprint(left) == fmt.Sprint(right)
}

func order(left, right any) (int, bool) {
	l, lok := ToFloat64(left)
	r, rok := ToFloat64(right)
	if lok && rok {
		switch {
		case l < r:
			return -1, true
		case l > r:
			return 1, true
		}
		return 0, true
	}
	ls, lok := left.(string)
	rs, rok := right.(string)
	if lok && rok {
		return strings.Compare(ls, rs), true
	}
	return 0, false
}

func contains(container, item any) bool {
	if s, ok := container.(string); ok {
		return strings.Contains(s, fmt.Sprint(item))
	}
	rv := reflect.ValueOf(container)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return false
	}
	for i := 0; i < rv.Len(); i++ {
		if equal(rv.Index(i).Interface(), item) {
			return true
		}
	}
	return false
}

// IsTruthy reports whether v counts as true.
// nil, false, "", zero numbers and empty lists or maps are false.
func IsTruthy(v any) bool {
	if v == nil {
		return false
	}
	if b, ok := v.(bool); ok {
		return b
	}
	if s, ok := v.(string); ok {
		return s != ""
	}
	if f, ok := ToFloat64(v); ok {
		return f != 0
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map:
		return rv.Len() > 0
	}
	return true
}

// ToFloat64 converts numeric values. Strings are not numbers.
func ToFloat64(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case int32:
		return float64(val), true
	case uint:
		return float64(val), true
	case uint64:
		return float64(val), true
	case uint32:
		return float64(val), true
	}
	return 0, false
}
