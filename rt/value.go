// Package rt is the runtime support library of compiled validators.
//
// Generated programs never capture host closures. Every operation they need
// beyond plain control flow is one of the named builtins in this package, so
// the interpreter and an exported program share a single definition.
package rt

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"unicode/utf8"

	"github.com/cockroachdb/apd/v3"
	gojson "github.com/goccy/go-json"
)

// UndefinedType is the type of Undefined.
type UndefinedType struct{}

// Undefined marks an absent value, distinct from JSON null (nil).
var Undefined UndefinedType

func (UndefinedType) String() string { return "undefined" }

// JSON type names.
const (
	TypeNull    = "null"
	TypeBoolean = "boolean"
	TypeNumber  = "number"
	TypeInteger = "integer"
	TypeString  = "string"
	TypeArray   = "array"
	TypeObject  = "object"
)

// TypeOf reports the JSON type of v ("integer" is never returned; see
// IsInteger). Unknown host values report "undefined".
func TypeOf(v any) string {
	switch v.(type) {
	case nil:
		return TypeNull
	case bool:
		return TypeBoolean
	case string:
		return TypeString
	case []any:
		return TypeArray
	case map[string]any:
		return TypeObject
	case float64, float32, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, json.Number:
		return TypeNumber
	}
	return "undefined"
}

// IsType reports whether v is of JSON type t. "integer" matches numbers
// without a fractional part.
func IsType(v any, t string) bool {
	if t == TypeInteger {
		return IsInteger(v)
	}
	return TypeOf(v) == t
}

// IsInteger reports whether v is a number with a zero fractional part.
func IsInteger(v any) bool {
	switch n := v.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return true
	case float64:
		return !math.IsInf(n, 0) && n == math.Trunc(n)
	case float32:
		f := float64(n)
		return !math.IsInf(f, 0) && f == math.Trunc(f)
	case json.Number:
		d, ok := decimal(n)
		if !ok {
			return false
		}
		var integ, frac apd.Decimal
		d.Modf(&integ, &frac)
		return frac.IsZero()
	}
	return false
}

// Float converts a JSON number to float64.
func Float(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

// Int converts a JSON number with no fractional part to int.
func Int(v any) (int, bool) {
	if i, ok := v.(int); ok {
		return i, true
	}
	if !IsInteger(v) {
		return 0, false
	}
	if n, ok := v.(json.Number); ok {
		d, ok := decimal(n)
		if !ok {
			return 0, false
		}
		i, err := d.Int64()
		if err != nil || i > math.MaxInt || i < math.MinInt {
			return 0, false
		}
		return int(i), true
	}
	f, ok := Float(v)
	// float64(math.MaxInt) rounds up to 2^63.
	if !ok || f >= math.MaxInt || f < math.MinInt {
		return 0, false
	}
	return int(f), true
}

func decimal(v any) (*apd.Decimal, bool) {
	switch n := v.(type) {
	case json.Number:
		d, _, err := apd.NewFromString(string(n))
		return d, err == nil
	case int:
		return apd.New(int64(n), 0), true
	case int64:
		return apd.New(n, 0), true
	}
	f, ok := Float(v)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, false
	}
	d := new(apd.Decimal)
	if _, err := d.SetFloat64(f); err != nil {
		return nil, false
	}
	return d, true
}

var decimalCtx = apd.BaseContext.WithPrecision(64)

// Compare orders two JSON numbers. ok is false when either operand is not a
// number.
func Compare(a, b any) (c int, ok bool) {
	af, aok := a.(float64)
	bf, bok := b.(float64)
	if aok && bok {
		switch {
		case af < bf:
			return -1, true
		case af > bf:
			return 1, true
		}
		return 0, true
	}
	x, ok1 := decimal(a)
	y, ok2 := decimal(b)
	if !ok1 || !ok2 {
		return 0, false
	}
	return x.Cmp(y), true
}

// MultipleOf reports whether v is an exact multiple of m.
func MultipleOf(v, m any) bool {
	x, ok1 := decimal(v)
	y, ok2 := decimal(m)
	if !ok1 || !ok2 || y.IsZero() {
		return false
	}
	var rem apd.Decimal
	if _, err := decimalCtx.Rem(&rem, x, y); err != nil {
		return false
	}
	return rem.IsZero()
}

// Equal is deep JSON equality; numbers compare by value.
func Equal(a, b any) bool {
	ta, tb := TypeOf(a), TypeOf(b)
	if ta != tb {
		return false
	}
	switch ta {
	case TypeNumber:
		c, ok := Compare(a, b)
		return ok && c == 0
	case TypeArray:
		x, y := a.([]any), b.([]any)
		if len(x) != len(y) {
			return false
		}
		for i := range x {
			if !Equal(x[i], y[i]) {
				return false
			}
		}
		return true
	case TypeObject:
		x, y := a.(map[string]any), b.(map[string]any)
		if len(x) != len(y) {
			return false
		}
		for k, xv := range x {
			yv, ok := y[k]
			if !ok || !Equal(xv, yv) {
				return false
			}
		}
		return true
	case "undefined":
		return a == b
	}
	return a == b
}

// Duplicates returns the indices [i, j] (i < j) of the last pair of equal
// items found, or nil when all items are distinct.
func Duplicates(v any) []any {
	arr, _ := v.([]any)
	for j := len(arr) - 1; j > 0; j-- {
		for i := j - 1; i >= 0; i-- {
			if Equal(arr[i], arr[j]) {
				return []any{i, j}
			}
		}
	}
	return nil
}

// StrLen counts Unicode code points.
func StrLen(v any) int {
	s, _ := v.(string)
	return utf8.RuneCountInString(s)
}

// Count returns the number of items of an array or properties of an object.
func Count(v any) int {
	switch t := v.(type) {
	case []any:
		return len(t)
	case map[string]any:
		return len(t)
	case string:
		return len(t)
	}
	return 0
}

// Get reads a property or an item; absent entries yield Undefined.
func Get(x, key any) any {
	switch c := x.(type) {
	case map[string]any:
		k, ok := key.(string)
		if !ok {
			k = String(key)
		}
		if v, ok := c[k]; ok {
			return v
		}
	case []any:
		if i, ok := Int(key); ok && i >= 0 && i < len(c) {
			return c[i]
		}
	}
	return Undefined
}

// Has reports whether object x has the own property key.
func Has(x, key any) bool {
	m, ok := x.(map[string]any)
	if !ok {
		return false
	}
	k, _ := key.(string)
	_, ok = m[k]
	return ok
}

// Set writes a property or an existing item in place.
func Set(x, key, v any) error {
	switch c := x.(type) {
	case map[string]any:
		k, ok := key.(string)
		if !ok {
			k = String(key)
		}
		c[k] = v
		return nil
	case []any:
		if i, ok := Int(key); ok && i >= 0 && i < len(c) {
			c[i] = v
			return nil
		}
		return fmt.Errorf("rt: index %v out of range", key)
	}
	return fmt.Errorf("rt: cannot set %v on %s", key, TypeOf(x))
}

// Keys returns the property names of an object in sorted order.
func Keys(v any) []string {
	m, _ := v.(map[string]any)
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Truthy follows JSON-ish truthiness: false, nil, Undefined, 0 and "" are false.
func Truthy(v any) bool {
	switch t := v.(type) {
	case nil, UndefinedType:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case int:
		return t != 0
	}
	if f, ok := Float(v); ok {
		return f != 0
	}
	return true
}

// String renders v for messages: strings as-is, everything else as JSON.
func String(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case UndefinedType:
		return "undefined"
	case int:
		return strconv.Itoa(t)
	case json.Number:
		return string(t)
	}
	b, err := gojson.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}

// Clone deep-copies arrays and objects so defaults are never shared.
func Clone(v any) any {
	switch t := v.(type) {
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = Clone(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = Clone(e)
		}
		return out
	}
	return v
}
