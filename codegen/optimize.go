package codegen

import (
	"github.com/reoring/skemac/rt"
)

// Optimize runs the optimizer passes times (at least once) over body:
// structural simplification, constant substitution and liveness pruning.
// Function bodies are optimized independently.
func Optimize(body []Node, passes int) []Node {
	if passes < 1 {
		passes = 1
	}
	for i := 0; i < passes; i++ {
		body = simplify(body)
		body = optimizeFuncs(body)
		body = inlineConsts(body)
		body = prune(body)
	}
	return body
}

func optimizeFuncs(body []Node) []Node {
	walk(body, func(n Node) {
		if fn, ok := n.(*Func); ok {
			fn.Body = Optimize(fn.Body, 1)
		}
	})
	return body
}

// simplify folds constant conditionals, drops empty constructs and
// unreachable code after an unconditional exit.
func simplify(body []Node) []Node {
	out := body[:0:0]
	for _, n := range body {
		out = append(out, simplifyNode(n)...)
		if len(out) > 0 && exits(out[len(out)-1]) {
			break
		}
	}
	return out
}

func exits(n Node) bool {
	switch n.(type) {
	case *Return, *Throw, *Break:
		return true
	}
	return false
}

func simplifyNode(n Node) []Node {
	switch x := n.(type) {
	case *If:
		return simplifyIf(x)
	case *For:
		x.Body = simplify(x.Body)
		if len(x.Body) == 0 && Pure(x.Cond) && x.Init == nil && x.Post == nil {
			return nil
		}
	case *ForRange:
		x.Body = simplify(x.Body)
		if len(x.Body) == 0 && Pure(x.From) && Pure(x.To) {
			return nil
		}
	case *ForEach:
		x.Body = simplify(x.Body)
		if len(x.Body) == 0 && Pure(x.Coll) {
			return nil
		}
	case *Label:
		x.Body = simplify(x.Body)
		if len(x.Body) == 0 {
			return nil
		}
	case *Try:
		x.Body = simplify(x.Body)
		x.Catch = simplify(x.Catch)
		x.Finally = simplify(x.Finally)
		if len(x.Body) == 0 {
			return x.Finally
		}
	case *Func:
		x.Body = simplify(x.Body)
	case *ExprStmt:
		if Pure(x.X) {
			return nil
		}
	}
	return []Node{n}
}

func simplifyIf(x *If) []Node {
	x.Then = simplify(x.Then)
	x.Else = simplify(x.Else)
	if b, ok := litBool(x.Cond); ok {
		if b {
			return x.Then
		}
		return x.Else
	}
	if l, ok := x.Cond.(*Lit); ok {
		if rt.Truthy(l.V) {
			return x.Then
		}
		return x.Else
	}
	switch {
	case len(x.Then) > 0:
		return []Node{x}
	case len(x.Else) > 0:
		return []Node{&If{Cond: Not(x.Cond), Then: x.Else}}
	case Pure(x.Cond):
		return nil
	}
	return []Node{&ExprStmt{X: x.Cond}}
}

// inlineConsts substitutes scalar literals bound by a declaration that is
// never assigned to afterwards.
func inlineConsts(body []Node) []Node {
	consts := make(map[string]Expr)
	collectConsts(body, consts)
	if len(consts) == 0 {
		return body
	}
	assigned := make(map[string]bool)
	collectAssigned(body, assigned)
	for name := range assigned {
		delete(consts, name)
	}
	if len(consts) == 0 {
		return body
	}
	f := func(n *Name) Expr {
		if c, ok := consts[n.Str]; ok {
			return c
		}
		return nil
	}
	rewriteBody(body, f)
	return body
}

func collectConsts(body []Node, consts map[string]Expr) {
	defs := make(map[string]int)
	walk(body, func(n Node) {
		d, ok := n.(*Def)
		if !ok {
			return
		}
		defs[d.Name.Str]++
		if d.Value == nil {
			return
		}
		if l, isLit := d.Value.(*Lit); isLit && scalar(l.V) {
			consts[d.Name.Str] = l
		}
	})
	// A name declared more than once (e.g. in both branches) is not constant.
	for name, n := range defs {
		if n > 1 {
			delete(consts, name)
		}
	}
}

func scalar(v any) bool {
	switch v.(type) {
	case nil, bool, string, float64, int, int64, rt.UndefinedType:
		return true
	}
	return false
}

func collectAssigned(body []Node, assigned map[string]bool) {
	walk(body, func(n Node) {
		switch x := n.(type) {
		case *Assign:
			if t, ok := x.Target.(*Name); ok {
				assigned[t.Str] = true
			}
		case *ForRange:
			assigned[x.Var.Str] = true
		case *ForEach:
			assigned[x.Var.Str] = true
		}
	})
}

// walk visits body in order. Function bodies are separate units and are
// not entered.
func walk(body []Node, f func(Node)) {
	for _, n := range body {
		f(n)
		switch x := n.(type) {
		case *If:
			walk(x.Then, f)
			walk(x.Else, f)
		case *For:
			if x.Init != nil {
				walk([]Node{x.Init}, f)
			}
			if x.Post != nil {
				walk([]Node{x.Post}, f)
			}
			walk(x.Body, f)
		case *ForRange:
			walk(x.Body, f)
		case *ForEach:
			walk(x.Body, f)
		case *Label:
			walk(x.Body, f)
		case *Try:
			walk(x.Body, f)
			walk(x.Catch, f)
			walk(x.Finally, f)
		}
	}
}

func rewriteBody(body []Node, f func(*Name) Expr) {
	walk(body, func(n Node) {
		switch x := n.(type) {
		case *Def:
			if x.Value != nil {
				x.Value = Rewrite(x.Value, f)
			}
		case *Assign:
			if _, ok := x.Target.(*Name); !ok {
				x.Target = Rewrite(x.Target, f)
			}
			x.Value = Rewrite(x.Value, f)
		case *ExprStmt:
			x.X = Rewrite(x.X, f)
		case *If:
			x.Cond = Rewrite(x.Cond, f)
		case *For:
			if x.Cond != nil {
				x.Cond = Rewrite(x.Cond, f)
			}
		case *ForRange:
			x.From, x.To = Rewrite(x.From, f), Rewrite(x.To, f)
		case *ForEach:
			x.Coll = Rewrite(x.Coll, f)
		case *Return:
			if x.X != nil {
				x.X = Rewrite(x.X, f)
			}
		case *Throw:
			x.X = Rewrite(x.X, f)
		}
	})
}

// prune deletes declarations and assignments of names nobody reads, until
// nothing changes. Only side-effect free initializers are removed.
func prune(body []Node) []Node {
	for {
		names := make(map[string]int)
		BodyNames(body, names)
		changed := false
		body = pruneBody(body, names, &changed)
		if !changed {
			return body
		}
	}
}

func pruneBody(body []Node, names map[string]int, changed *bool) []Node {
	out := body[:0:0]
	for _, n := range body {
		switch x := n.(type) {
		case *Def:
			if names[x.Name.Str] == 0 && (x.Value == nil || Pure(x.Value)) {
				*changed = true
				continue
			}
		case *Assign:
			if t, ok := x.Target.(*Name); ok && names[t.Str] == 0 && Pure(x.Value) {
				*changed = true
				continue
			}
		case *If:
			x.Then = pruneBody(x.Then, names, changed)
			x.Else = pruneBody(x.Else, names, changed)
		case *For:
			x.Body = pruneBody(x.Body, names, changed)
		case *ForRange:
			x.Body = pruneBody(x.Body, names, changed)
		case *ForEach:
			x.Body = pruneBody(x.Body, names, changed)
		case *Label:
			x.Body = pruneBody(x.Body, names, changed)
		case *Try:
			x.Body = pruneBody(x.Body, names, changed)
			x.Catch = pruneBody(x.Catch, names, changed)
			x.Finally = pruneBody(x.Finally, names, changed)
		case *Func:
			x.Body = pruneBody(x.Body, names, changed)
		}
		out = append(out, n)
	}
	return out
}
