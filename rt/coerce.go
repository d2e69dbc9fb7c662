package rt

import (
	"math"
	"strconv"
	"strings"
)

// Coerce converts v to the first of the target types it can be converted to.
// With arrayMode, scalars are wrapped into one-element arrays and
// one-element arrays are unwrapped. Undefined means no conversion applies.
func Coerce(v any, targets []any, arrayMode bool) any {
	types := make([]string, 0, len(targets))
	for _, t := range targets {
		if s, ok := t.(string); ok {
			types = append(types, s)
		}
	}
	if arrayMode {
		if arr, ok := v.([]any); ok && len(arr) == 1 {
			v = arr[0]
			for _, t := range types {
				if IsType(v, t) {
					return v
				}
			}
		}
	}
	for _, t := range types {
		if c, ok := coerceTo(v, t, arrayMode); ok {
			return c
		}
	}
	return Undefined
}

func coerceTo(v any, t string, arrayMode bool) (any, bool) {
	dt := TypeOf(v)
	switch t {
	case TypeString:
		switch dt {
		case TypeNumber, TypeBoolean:
			return String(v), true
		case TypeNull:
			return "", true
		}
	case TypeNumber, TypeInteger:
		switch dt {
		case TypeBoolean:
			if v == true {
				return float64(1), true
			}
			return float64(0), true
		case TypeNull:
			return float64(0), true
		case TypeString:
			s := strings.TrimSpace(v.(string))
			if s == "" {
				return nil, false
			}
			f, err := strconv.ParseFloat(s, 64)
			if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
				return nil, false
			}
			if t == TypeInteger && f != math.Trunc(f) {
				return nil, false
			}
			return f, true
		}
	case TypeBoolean:
		switch {
		case v == "false", dt == TypeNull:
			return false, true
		case v == "true":
			return true, true
		case dt == TypeNumber:
			if f, _ := Float(v); f == 0 {
				return false, true
			} else if f == 1 {
				return true, true
			}
		}
	case TypeNull:
		switch {
		case v == "", v == false:
			return nil, true
		case dt == TypeNumber:
			if f, _ := Float(v); f == 0 {
				return nil, true
			}
		}
	case TypeArray:
		if !arrayMode {
			return nil, false
		}
		switch dt {
		case TypeString, TypeNumber, TypeBoolean, TypeNull:
			return []any{v}, true
		}
	}
	return nil, false
}
