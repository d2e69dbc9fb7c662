package skemac

import (
	"sort"

	"github.com/reoring/skemac/codegen"
	"github.com/reoring/skemac/rt"
)

// Evaluated properties are rt.Undefined (none known), true (all), a
// map[string]bool known at compile time, or a variable holding one of
// those at run time. Evaluated items use an item count instead of the map.

func isName(v any) bool {
	_, ok := v.(*codegen.Name)
	return ok
}

// evalExpr renders an evaluated value as an expression.
func evalExpr(v any) codegen.Expr {
	switch x := v.(type) {
	case *codegen.Name:
		return x
	case bool:
		return codegen.L(x)
	case map[string]bool:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		args := make([]codegen.Expr, len(keys))
		for i, k := range keys {
			args[i] = codegen.L(k)
		}
		return codegen.F("propSet", args...)
	case int:
		return codegen.L(x)
	}
	return codegen.Undefined
}

// evalToName moves an evaluated value into a variable so it can be
// updated at run time.
func evalToName(g *codegen.Builder, prefix string, v any) *codegen.Name {
	if n, ok := v.(*codegen.Name); ok {
		return n
	}
	return g.Let(prefix, evalExpr(v))
}

func mergeProps(g *codegen.Builder, from, to any) any {
	return mergeEvaluated(g, from, to, "mergeProps", rt.MergeProps)
}

func mergeItems(g *codegen.Builder, from, to any) any {
	return mergeEvaluated(g, from, to, "mergeItems", rt.MergeItems)
}

func mergeEvaluated(g *codegen.Builder, from, to any, builtin string, static func(a, b any) any) any {
	switch {
	case to == rt.Undefined:
		return from
	case isName(to):
		g.Assign(to.(*codegen.Name), codegen.F(builtin, to.(*codegen.Name), evalExpr(from)))
		return to
	case isName(from):
		g.Assign(from.(*codegen.Name), codegen.F(builtin, from.(*codegen.Name), evalExpr(to)))
		return from
	}
	return static(from, to)
}

// MergeEvaluated folds the evaluated properties and items of a nested
// context into the keyword's context.
func (k *KeywordCxt) MergeEvaluated(sub *SchemaCxt) {
	it := k.It
	if !it.c.opts.Unevaluated {
		return
	}
	if it.props != true && sub.props != rt.Undefined {
		it.props = mergeProps(it.gen, sub.props, it.props)
	}
	if it.items != true && sub.items != rt.Undefined {
		it.items = mergeItems(it.gen, sub.items, it.items)
	}
}

// MergeValidEvaluated merges sub only when valid holds at run time. It
// reports whether merge code was emitted.
func (k *KeywordCxt) MergeValidEvaluated(sub *SchemaCxt, valid codegen.Expr) bool {
	it := k.It
	if !it.c.opts.Unevaluated || (it.props == true && it.items == true) {
		return false
	}
	g := k.Gen
	if it.props != true && sub.props != rt.Undefined {
		it.props = evalToName(g, "props", it.props)
	}
	if it.items != true && sub.items != rt.Undefined {
		it.items = evalToName(g, "items", it.items)
	}
	g.If(valid, func() { k.MergeEvaluated(sub) })
	return true
}

// markProps adds statically known property names.
func (it *SchemaCxt) markProps(names []string) {
	if !it.c.opts.Unevaluated || it.props == true || len(names) == 0 {
		return
	}
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	it.props = mergeProps(it.gen, set, it.props)
}

// markItems records that the first n items were evaluated.
func (it *SchemaCxt) markItems(n any) {
	if !it.c.opts.Unevaluated || it.items == true {
		return
	}
	it.items = mergeItems(it.gen, n, it.items)
}

// EvaluatedToNames moves the evaluated values of the keyword context into
// variables before code that merges inside conditional branches.
func (k *KeywordCxt) EvaluatedToNames() {
	it := k.It
	if !it.c.opts.Unevaluated {
		return
	}
	if it.props != true {
		it.props = evalToName(k.Gen, "props", it.props)
	}
	if it.items != true {
		it.items = evalToName(k.Gen, "items", it.items)
	}
}
