package skemac

import (
	"regexp"
	"strconv"

	"github.com/reoring/skemac/codegen"
)

var (
	jsonPointerRe    = regexp.MustCompile(`^/(?:[^~]|~0|~1)*$`)
	relJSONPointerRe = regexp.MustCompile(`^([0-9]+)(#|/(?:[^~]|~0|~1)*)?$`)
)

// getData returns the expression reading a $data pointer: an absolute JSON
// pointer from the root instance or a relative JSON pointer from the
// current data. "N#" yields the property name or index N levels up.
func (it *SchemaCxt) getData(ptr string) (codegen.Expr, error) {
	if ptr == "" {
		return codegen.F("rootData", it.cx), nil
	}
	var base codegen.Expr
	var rest string
	if ptr[0] == '/' {
		if !jsonPointerRe.MatchString(ptr) {
			return nil, compileErrorf(it.errSchemaPath, "$data", "invalid JSON pointer %q", ptr)
		}
		base, rest = codegen.F("rootData", it.cx), ptr
	} else {
		m := relJSONPointerRe.FindStringSubmatch(ptr)
		if m == nil {
			return nil, compileErrorf(it.errSchemaPath, "$data", "invalid JSON pointer %q", ptr)
		}
		up, _ := strconv.Atoi(m[1])
		rest = m[2]
		if rest == "#" {
			if up >= it.dataLevel {
				return nil, compileErrorf(it.errSchemaPath, "$data", "cannot access property/index %d levels up, current level is %d", up, it.dataLevel)
			}
			return it.dataPathArr[it.dataLevel-up], nil
		}
		if up > it.dataLevel {
			return nil, compileErrorf(it.errSchemaPath, "$data", "cannot access data %d levels up, current level is %d", up, it.dataLevel)
		}
		base = it.dataNames[it.dataLevel-up]
		if rest == "" {
			return base, nil
		}
	}
	return codegen.F("pointer", base, codegen.L(rest)), nil
}
