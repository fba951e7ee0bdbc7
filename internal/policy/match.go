package policy

import (
	"path"
	"reflect"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/cast"
)

// fieldValue is the result of resolving a dotted path. Multi is set when the
// path crossed a list, in which case Values holds one entry per element.
type fieldValue struct {
	Values []any
	Multi  bool
	Found  bool
}

// toMap flattens a Context into nested maps keyed by the mapstructure tags.
func toMap(ctx Context) (map[string]any, error) {
	out := make(map[string]any)
	if err := mapstructure.Decode(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// resolve walks a dotted path through nested maps, lists and structs. Key
// comparison ignores case and underscores, so "resource_usage.timeout" and
// "resourceUsage.timeout" name the same field.
func resolve(root map[string]any, field string) fieldValue {
	var fv fieldValue
	walk(root, strings.Split(field, "."), &fv)
	return fv
}

func walk(v any, parts []string, fv *fieldValue) {
	if v == nil {
		return
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Slice && rv.Type().Elem().Kind() != reflect.Uint8 {
		fv.Multi = true
		fv.Found = true
		for i := range rv.Len() {
			walk(rv.Index(i).Interface(), parts, fv)
		}
		return
	}

	if len(parts) == 0 {
		fv.Found = true
		fv.Values = append(fv.Values, v)
		return
	}

	switch rv.Kind() {
	case reflect.Map:
		m, ok := v.(map[string]any)
		if !ok {
			return
		}
		if next, ok := lookupKey(m, parts[0]); ok {
			walk(next, parts[1:], fv)
		}
	case reflect.Struct:
		m := make(map[string]any)
		if err := mapstructure.Decode(v, &m); err != nil {
			return
		}
		walk(m, parts, fv)
	}
}

func lookupKey(m map[string]any, key string) (any, bool) {
	if v, ok := m[key]; ok {
		return v, true
	}
	want := foldKey(key)
	for k, v := range m {
		if foldKey(k) == want {
			return v, true
		}
	}
	return nil, false
}

func foldKey(k string) string {
	return strings.ToLower(strings.ReplaceAll(k, "_", ""))
}

// patterns turns a condition value into a list of strings.
func patterns(v any) []string {
	switch t := v.(type) {
	case string:
		return []string{t}
	case []string:
		return t
	}
	return cast.ToStringSlice(v)
}

// matchCondition reports whether fv satisfies c. A field that does not exist
// never matches, whatever the operator. Over a list field every operator
// except the set-aware equals/not_equals matches when ANY element matches,
// so not_matches reads as "some element falls outside these patterns".
func matchCondition(fv fieldValue, c Condition) (bool, any) {
	if !fv.Found {
		return false, nil
	}

	switch c.Operator {
	case OpEquals:
		return equalsValue(fv, c.Value), fv.display()
	case OpNotEquals:
		return !equalsValue(fv, c.Value), fv.display()
	}

	var test func(any) bool
	switch c.Operator {
	case OpMatches:
		pats := patterns(c.Value)
		test = func(v any) bool { return globAny(pats, v) }
	case OpNotMatches:
		pats := patterns(c.Value)
		test = func(v any) bool { return !globAny(pats, v) }
	case OpContains:
		subs := patterns(c.Value)
		test = func(v any) bool { return containsAny(subs, v) }
	case OpNotContains:
		subs := patterns(c.Value)
		test = func(v any) bool { return !containsAny(subs, v) }
	case OpGreaterThan, OpLessThan:
		limit, ok := toNumber(c.Value)
		if !ok {
			return false, nil
		}
		gt := c.Operator == OpGreaterThan
		test = func(v any) bool {
			n, ok := toNumber(v)
			if !ok {
				return false
			}
			if gt {
				return n > limit
			}
			return n < limit
		}
	default:
		return false, nil
	}

	for _, v := range fv.Values {
		if test(v) {
			return true, v
		}
	}
	return false, nil
}

// equalsValue compares list fields as sets. A list field against a scalar
// value matches when the list holds that value; a scalar field against a list
// value matches when the list holds the field.
func equalsValue(fv fieldValue, want any) bool {
	wantList, wantMulti := asList(want)

	switch {
	case fv.Multi && wantMulti:
		return sameSet(fv.Values, wantList)
	case fv.Multi:
		return containsScalar(fv.Values, want)
	case wantMulti:
		return len(fv.Values) == 1 && containsScalar(wantList, fv.Values[0])
	default:
		return len(fv.Values) == 1 && scalarEqual(fv.Values[0], want)
	}
}

func asList(v any) ([]any, bool) {
	if v == nil {
		return nil, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

func sameSet(a, b []any) bool {
	for _, x := range a {
		if !containsScalar(b, x) {
			return false
		}
	}
	for _, y := range b {
		if !containsScalar(a, y) {
			return false
		}
	}
	return true
}

func containsScalar(list []any, v any) bool {
	for _, x := range list {
		if scalarEqual(x, v) {
			return true
		}
	}
	return false
}

// scalarEqual compares numerically when both sides are numbers and as strings
// otherwise.
func scalarEqual(a, b any) bool {
	if na, ok := toNumber(a); ok {
		if nb, ok := toNumber(b); ok {
			return na == nb
		}
	}
	sa, err := cast.ToStringE(a)
	if err != nil {
		return false
	}
	sb, err := cast.ToStringE(b)
	if err != nil {
		return false
	}
	return sa == sb
}

func globAny(pats []string, v any) bool {
	s, err := cast.ToStringE(v)
	if err != nil {
		return false
	}
	for _, p := range pats {
		if ok, err := doublestar.Match(p, s); err == nil && ok {
			return true
		}
	}
	return false
}

func containsAny(subs []string, v any) bool {
	s, err := cast.ToStringE(v)
	if err != nil {
		return false
	}
	s = strings.ToLower(s)
	for _, sub := range subs {
		if strings.Contains(s, strings.ToLower(sub)) {
			return true
		}
	}
	return false
}

// normalizePath makes file paths comparable with slash-separated globs.
func normalizePath(p string) string {
	if p == "" {
		return p
	}
	p = path.Clean(strings.ReplaceAll(p, "\\", "/"))
	return strings.TrimPrefix(p, "./")
}

func (fv fieldValue) display() any {
	if fv.Multi {
		return fv.Values
	}
	if len(fv.Values) == 1 {
		return fv.Values[0]
	}
	return nil
}
