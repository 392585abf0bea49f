// Package rules evaluates automation rule conditions against event contexts.
// Everything here is pure: no I/O, no mutation of the context.
package rules

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"taskline/internal/domain"
)

// Context is the immutable key-value bag of a triggering event's payload.
type Context map[string]any

// Undefined is the sentinel for an unresolvable field path. It never equals
// any value a context can hold.
type undefined struct{}

// Undefined is returned by Resolve when a dotted path does not resolve.
var Undefined = undefined{}

// Resolve walks a dotted path into the context. Missing keys or non-map
// intermediates yield Undefined rather than an error.
func Resolve(ctx Context, path string) any {
	var cur any = map[string]any(ctx)
	for _, key := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return Undefined
		}
		cur, ok = m[key]
		if !ok {
			return Undefined
		}
	}
	return cur
}

// Evaluate returns the logical AND over all conditions. An empty condition
// list matches unconditionally.
func Evaluate(conditions []domain.Condition, ctx Context) bool {
	for _, c := range conditions {
		if !evaluateOne(c, ctx) {
			return false
		}
	}
	return true
}

func evaluateOne(c domain.Condition, ctx Context) bool {
	value := Resolve(ctx, c.Field)
	switch c.Operator {
	case "equals":
		return equal(value, c.Value)
	case "contains":
		return contains(value, c.Value)
	case "greater_than":
		l, r, ok := numbers(value, c.Value)
		return ok && l > r
	case "less_than":
		l, r, ok := numbers(value, c.Value)
		return ok && l < r
	case "in":
		return member(c.Value, value)
	case "not_in":
		return !member(c.Value, value)
	default:
		return false
	}
}

// equal compares with numeric coercion so that 3 == 3.0 across JSON
// decodings. Everything else compares structurally: contexts and condition
// values carry decoded JSON, and maps and lists are not ==-comparable.
func equal(a, b any) bool {
	if la, lb, ok := numbers(a, b); ok {
		return la == lb
	}
	return reflect.DeepEqual(a, b)
}

// contains is substring for strings and membership for lists; false when the
// left side has no containment capability.
func contains(value, needle any) bool {
	switch v := value.(type) {
	case string:
		s, ok := needle.(string)
		return ok && strings.Contains(v, s)
	case []any:
		for _, item := range v {
			if equal(item, needle) {
				return true
			}
		}
		return false
	case []string:
		s, ok := needle.(string)
		if !ok {
			return false
		}
		for _, item := range v {
			if item == s {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// member tests value against the literal list of an in/not_in condition.
func member(list, value any) bool {
	items, ok := list.([]any)
	if !ok {
		return false
	}
	for _, item := range items {
		if equal(item, value) {
			return true
		}
	}
	return false
}

func numbers(a, b any) (float64, float64, bool) {
	l, ok := toFloat(a)
	if !ok {
		return 0, 0, false
	}
	r, ok := toFloat(b)
	if !ok {
		return 0, 0, false
	}
	return l, r, true
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	default:
		return 0, false
	}
}

var placeholderRe = regexp.MustCompile(`\{\{(.*?)\}\}`)

// Interpolate substitutes {{dotted.path}} placeholders with values resolved
// from the context. Unresolved placeholders stay verbatim.
func Interpolate(template string, ctx Context) string {
	return placeholderRe.ReplaceAllStringFunc(template, func(match string) string {
		path := strings.TrimSpace(placeholderRe.FindStringSubmatch(match)[1])
		value := Resolve(ctx, path)
		if value == Undefined {
			return match
		}
		return stringify(value)
	})
}

func stringify(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}
