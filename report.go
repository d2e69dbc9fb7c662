package skemac

import (
	"sort"

	"github.com/reoring/skemac/codegen"
)

// issueExpr builds an issue of keyword at the current schema location.
func (it *SchemaCxt) issueExpr(keyword string, params map[string]codegen.Expr, tmpl string) codegen.Expr {
	return it.issueAt(it.errSchemaPath+"/"+escapeFragment(keyword), keyword, params, tmpl)
}

func (it *SchemaCxt) issueAt(schemaPath, keyword string, params map[string]codegen.Expr, tmpl string) codegen.Expr {
	return codegen.F("issue", it.errorPath, codegen.L(schemaPath), codegen.L(keyword), paramsExpr(params), codegen.L(tmpl))
}

// paramsExpr is a literal map when every parameter is known at compile
// time and an object constructor otherwise.
func paramsExpr(params map[string]codegen.Expr) codegen.Expr {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	lit := make(map[string]any, len(params))
	var args []codegen.Expr
	dynamic := false
	for _, k := range keys {
		v := params[k]
		if l, ok := v.(*codegen.Lit); ok {
			lit[k] = l.V
		} else {
			dynamic = true
		}
		args = append(args, codegen.L(k), v)
	}
	if !dynamic {
		return codegen.L(lit)
	}
	return codegen.F("obj", args...)
}

// reportError records an issue. Outside composite rules and without
// AllErrors the function stops at the first issue.
func reportError(it *SchemaCxt, issue codegen.Expr) {
	it.gen.Code(codegen.F("push", it.cx, issue))
	failExit(it)
}

// failExit stops the function after a failure that has already been
// recorded, unless errors are collected or provisional.
func failExit(it *SchemaCxt) {
	if !(it.allErrors || it.compositeRule) {
		returnErrors(it)
	}
}

func returnErrors(it *SchemaCxt) {
	if it.env.async {
		it.gen.Throw(codegen.F("validationError", it.cx, it.errs0))
		return
	}
	it.gen.Return(codegen.False)
}

// falseSchemaError reports a false schema; force stops the function
// regardless of the error mode.
func (it *SchemaCxt) falseSchemaError(force bool) {
	issue := it.issueAt(it.errSchemaPath, "false schema", nil, it.c.tr.Message("false schema"))
	it.gen.Code(codegen.F("push", it.cx, issue))
	if force || !(it.allErrors || it.compositeRule) {
		returnErrors(it)
	}
}
