package codegen

import (
	"github.com/reoring/skemac/rt"
)

// ExprKind identifies an expression type.
type ExprKind int

const (
	ExprLit ExprKind = iota
	ExprName
	ExprCall
	ExprInvoke
	ExprIndex
	ExprUnary
	ExprBinary
	ExprConcat
)

// Expr is an expression of the IR.
type Expr interface {
	Kind() ExprKind
}

// Lit is a JSON literal: nil, bool, float64, int, string, []any,
// map[string]any or rt.Undefined.
type Lit struct {
	V any
}

// Name is an identifier. Value is set for names minted by a ValueScope.
type Name struct {
	Str   string
	Value *ValueRef
}

// Call applies a builtin from rt.Builtins.
type Call struct {
	Fn   string
	Args []Expr
}

// Invoke calls a function value (a validator or a host rt.Callable).
type Invoke struct {
	Fn    Expr
	Args  []Expr
	Await bool
}

// Index reads X[Key].
type Index struct {
	X   Expr
	Key Expr
}

// Unary is "!" or "-".
type Unary struct {
	Op string
	X  Expr
}

// Binary covers comparison, logical and arithmetic operators.
type Binary struct {
	Op   string
	X, Y Expr
}

// Concat joins string parts.
type Concat struct {
	Parts []Expr
}

func (*Lit) Kind() ExprKind    { return ExprLit }
func (*Name) Kind() ExprKind   { return ExprName }
func (*Call) Kind() ExprKind   { return ExprCall }
func (*Invoke) Kind() ExprKind { return ExprInvoke }
func (*Index) Kind() ExprKind  { return ExprIndex }
func (*Unary) Kind() ExprKind  { return ExprUnary }
func (*Binary) Kind() ExprKind { return ExprBinary }
func (*Concat) Kind() ExprKind { return ExprConcat }

func (n *Name) String() string { return n.Str }

var (
	True      Expr = &Lit{V: true}
	False     Expr = &Lit{V: false}
	Null      Expr = &Lit{V: nil}
	Undefined Expr = &Lit{V: rt.Undefined}
	Empty     Expr = &Lit{V: ""}
)

// L wraps a Go value as a literal.
func L(v any) Expr { return &Lit{V: v} }

// F builds a builtin call.
func F(fn string, args ...Expr) Expr { return &Call{Fn: fn, Args: args} }

// Prop reads a string-keyed property.
func Prop(x Expr, key string) Expr { return &Index{X: x, Key: &Lit{V: key}} }

// Op builds a binary expression.
func Op(x Expr, op string, y Expr) Expr { return &Binary{Op: op, X: x, Y: y} }

// Eq and Neq compare by JSON equality for scalars.
func Eq(x, y Expr) Expr  { return &Binary{Op: "==", X: x, Y: y} }
func Neq(x, y Expr) Expr { return &Binary{Op: "!=", X: x, Y: y} }

func litBool(e Expr) (val, ok bool) {
	if l, isLit := e.(*Lit); isLit {
		b, isBool := l.V.(bool)
		return b, isBool
	}
	return false, false
}

// Not negates e, folding literals and double negation.
func Not(e Expr) Expr {
	if b, ok := litBool(e); ok {
		return &Lit{V: !b}
	}
	if u, ok := e.(*Unary); ok && u.Op == "!" {
		return u.X
	}
	if b, ok := e.(*Binary); ok {
		switch b.Op {
		case "==":
			return &Binary{Op: "!=", X: b.X, Y: b.Y}
		case "!=":
			return &Binary{Op: "==", X: b.X, Y: b.Y}
		}
	}
	return &Unary{Op: "!", X: e}
}

// And combines conditions, dropping literal true and collapsing on false.
func And(es ...Expr) Expr { return logical("&&", true, es) }

// Or combines conditions, dropping literal false and collapsing on true.
func Or(es ...Expr) Expr { return logical("||", false, es) }

func logical(op string, unit bool, es []Expr) Expr {
	var out Expr
	for _, e := range es {
		if e == nil {
			continue
		}
		if b, ok := litBool(e); ok {
			if b == unit {
				continue
			}
			return &Lit{V: !unit}
		}
		if out == nil {
			out = e
			continue
		}
		out = &Binary{Op: op, X: out, Y: e}
	}
	if out == nil {
		return &Lit{V: unit}
	}
	return out
}

// Str concatenates parts, merging adjacent literal strings. Parts may be
// Go strings or expressions.
func Str(parts ...any) Expr {
	var out []Expr
	for _, p := range parts {
		var e Expr
		switch v := p.(type) {
		case string:
			e = &Lit{V: v}
		case Expr:
			e = v
		default:
			e = &Lit{V: rt.String(v)}
		}
		if c, ok := e.(*Concat); ok {
			for _, q := range c.Parts {
				out = appendPart(out, q)
			}
			continue
		}
		out = appendPart(out, e)
	}
	switch len(out) {
	case 0:
		return &Lit{V: ""}
	case 1:
		if l, ok := out[0].(*Lit); ok {
			if _, isStr := l.V.(string); isStr {
				return l
			}
		}
	}
	return &Concat{Parts: out}
}

func appendPart(out []Expr, e Expr) []Expr {
	l, ok := e.(*Lit)
	if !ok {
		return append(out, e)
	}
	s, isStr := l.V.(string)
	if !isStr {
		s = rt.String(l.V)
	}
	if s == "" {
		return out
	}
	if n := len(out); n > 0 {
		if prev, ok := out[n-1].(*Lit); ok {
			if ps, isStr := prev.V.(string); isStr {
				out[n-1] = &Lit{V: ps + s}
				return out
			}
		}
	}
	return append(out, &Lit{V: s})
}

// Pure reports whether evaluating e has no side effects.
func Pure(e Expr) bool {
	switch x := e.(type) {
	case nil, *Lit, *Name:
		return true
	case *Call:
		if !rt.IsPure(x.Fn) {
			return false
		}
		return allPure(x.Args)
	case *Invoke:
		return false
	case *Index:
		return Pure(x.X) && Pure(x.Key)
	case *Unary:
		return Pure(x.X)
	case *Binary:
		return Pure(x.X) && Pure(x.Y)
	case *Concat:
		return allPure(x.Parts)
	}
	return false
}

func allPure(es []Expr) bool {
	for _, e := range es {
		if !Pure(e) {
			return false
		}
	}
	return true
}

// FreeNames counts identifier reads in e into names.
func FreeNames(e Expr, names map[string]int) {
	switch x := e.(type) {
	case *Name:
		names[x.Str]++
	case *Call:
		for _, a := range x.Args {
			FreeNames(a, names)
		}
	case *Invoke:
		FreeNames(x.Fn, names)
		for _, a := range x.Args {
			FreeNames(a, names)
		}
	case *Index:
		FreeNames(x.X, names)
		FreeNames(x.Key, names)
	case *Unary:
		FreeNames(x.X, names)
	case *Binary:
		FreeNames(x.X, names)
		FreeNames(x.Y, names)
	case *Concat:
		for _, p := range x.Parts {
			FreeNames(p, names)
		}
	}
}

// Rewrite returns e with every Name replaced by f(name) when f returns
// non-nil. Subtrees are copied only when they change.
func Rewrite(e Expr, f func(*Name) Expr) Expr {
	switch x := e.(type) {
	case *Name:
		if r := f(x); r != nil {
			return r
		}
	case *Call:
		if args, ok := rewriteAll(x.Args, f); ok {
			return &Call{Fn: x.Fn, Args: args}
		}
	case *Invoke:
		fn := Rewrite(x.Fn, f)
		args, ok := rewriteAll(x.Args, f)
		if ok || fn != x.Fn {
			return &Invoke{Fn: fn, Args: args, Await: x.Await}
		}
	case *Index:
		xx, k := Rewrite(x.X, f), Rewrite(x.Key, f)
		if xx != x.X || k != x.Key {
			return &Index{X: xx, Key: k}
		}
	case *Unary:
		if xx := Rewrite(x.X, f); xx != x.X {
			if x.Op == "!" {
				return Not(xx)
			}
			return &Unary{Op: x.Op, X: xx}
		}
	case *Binary:
		xx, yy := Rewrite(x.X, f), Rewrite(x.Y, f)
		if xx != x.X || yy != x.Y {
			switch x.Op {
			case "&&":
				return And(xx, yy)
			case "||":
				return Or(xx, yy)
			}
			return &Binary{Op: x.Op, X: xx, Y: yy}
		}
	case *Concat:
		if parts, ok := rewriteAll(x.Parts, f); ok {
			ps := make([]any, len(parts))
			for i, p := range parts {
				ps[i] = p
			}
			return Str(ps...)
		}
	}
	return e
}

func rewriteAll(es []Expr, f func(*Name) Expr) ([]Expr, bool) {
	changed := false
	out := make([]Expr, len(es))
	for i, e := range es {
		out[i] = Rewrite(e, f)
		if out[i] != e {
			changed = true
		}
	}
	return out, changed
}
