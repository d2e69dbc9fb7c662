// Package ir defines the serialized form of compiled programs used by
// standalone export. This package is internal and not part of the public API.
package ir

import (
	"bytes"
	"fmt"

	gojson "github.com/goccy/go-json"

	"github.com/reoring/skemac/codegen"
	"github.com/reoring/skemac/rt"
)

// Version of the serialized format.
const Version = 1

// File is an exported program.
type File struct {
	Format  string `json:"format"`
	Version int    `json:"version"`
	Entry   string `json:"entry"`           // name of the root validator function
	Async   bool   `json:"async,omitempty"` // root validator raises ValidationError
	Program []Node `json:"program"`
}

// Node is the wire form of a codegen.Node. T selects the statement type.
type Node struct {
	T       string   `json:"t"`
	Kind    string   `json:"kind,omitempty"`
	Name    string   `json:"name,omitempty"`
	Params  []string `json:"params,omitempty"`
	Async   bool     `json:"async,omitempty"`
	Op      string   `json:"op,omitempty"`
	Label   string   `json:"label,omitempty"`
	Target  *Expr    `json:"target,omitempty"`
	Value   *Expr    `json:"value,omitempty"`
	Cond    *Expr    `json:"cond,omitempty"`
	From    *Expr    `json:"from,omitempty"`
	To      *Expr    `json:"to,omitempty"`
	Coll    *Expr    `json:"coll,omitempty"`
	Init    *Node    `json:"init,omitempty"`
	Post    *Node    `json:"post,omitempty"`
	Then    []Node   `json:"then,omitempty"`
	Else    []Node   `json:"else,omitempty"`
	Body    []Node   `json:"body,omitempty"`
	Catch   []Node   `json:"catch,omitempty"`
	Finally []Node   `json:"finally,omitempty"`
}

// Expr is the wire form of a codegen.Expr.
type Expr struct {
	T     string `json:"t"`
	V     *any   `json:"v,omitempty"`
	Name  string `json:"name,omitempty"`
	Op    string `json:"op,omitempty"`
	Await bool   `json:"await,omitempty"`
	X     *Expr  `json:"x,omitempty"`
	Y     *Expr  `json:"y,omitempty"`
	Args  []Expr `json:"args,omitempty"`
}

// Marshal encodes f as JSON.
func Marshal(f *File) ([]byte, error) { return gojson.Marshal(f) }

// Unmarshal decodes a File, keeping numbers exact.
func Unmarshal(data []byte) (*File, error) {
	dec := gojson.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var f File
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("ir: %w", err)
	}
	if f.Version != Version {
		return nil, fmt.Errorf("ir: unsupported version %d", f.Version)
	}
	return &f, nil
}

// FromNodes converts IR to wire form.
func FromNodes(ns []codegen.Node) ([]Node, error) {
	out := make([]Node, 0, len(ns))
	for _, n := range ns {
		w, err := fromNode(n)
		if err != nil {
			return nil, err
		}
		out = append(out, *w)
	}
	return out, nil
}

func fromNode(n codegen.Node) (*Node, error) {
	var err error
	body := func(ns []codegen.Node) []Node {
		if err != nil || len(ns) == 0 {
			return nil
		}
		var out []Node
		out, err = FromNodes(ns)
		return out
	}
	var w *Node
	switch x := n.(type) {
	case *codegen.Def:
		w = &Node{T: "def", Kind: x.DefKind.String(), Name: x.Name.Str, Value: fromExprOpt(x.Value)}
	case *codegen.Assign:
		w = &Node{T: "assign", Op: x.Op, Target: FromExpr(x.Target), Value: FromExpr(x.Value)}
	case *codegen.ExprStmt:
		w = &Node{T: "expr", Value: FromExpr(x.X)}
	case *codegen.If:
		w = &Node{T: "if", Cond: FromExpr(x.Cond), Then: body(x.Then), Else: body(x.Else)}
	case *codegen.For:
		w = &Node{T: "for", Cond: fromExprOpt(x.Cond), Body: body(x.Body)}
		if x.Init != nil {
			if w.Init, err = fromNode(x.Init); err != nil {
				return nil, err
			}
		}
		if x.Post != nil {
			if w.Post, err = fromNode(x.Post); err != nil {
				return nil, err
			}
		}
	case *codegen.ForRange:
		w = &Node{T: "range", Name: x.Var.Str, From: FromExpr(x.From), To: FromExpr(x.To), Body: body(x.Body)}
	case *codegen.ForEach:
		kind := "values"
		if x.Iter == codegen.IterKeys {
			kind = "keys"
		}
		w = &Node{T: "each", Kind: kind, Name: x.Var.Str, Coll: FromExpr(x.Coll), Body: body(x.Body)}
	case *codegen.Label:
		w = &Node{T: "label", Label: x.Name, Body: body(x.Body)}
	case *codegen.Break:
		w = &Node{T: "break", Label: x.Label}
	case *codegen.Return:
		w = &Node{T: "return", Value: fromExprOpt(x.X)}
	case *codegen.Throw:
		w = &Node{T: "throw", Value: FromExpr(x.X)}
	case *codegen.Try:
		w = &Node{T: "try", Body: body(x.Body), Catch: body(x.Catch), Finally: body(x.Finally)}
		if x.CatchVar != nil {
			w.Name = x.CatchVar.Str
		}
	case *codegen.Func:
		params := make([]string, len(x.Params))
		for i, p := range x.Params {
			params[i] = p.Str
		}
		w = &Node{T: "func", Name: x.Name.Str, Params: params, Async: x.Async, Body: body(x.Body)}
	default:
		return nil, fmt.Errorf("ir: unsupported node %T", n)
	}
	return w, err
}

func fromExprOpt(e codegen.Expr) *Expr {
	if e == nil {
		return nil
	}
	return FromExpr(e)
}

// FromExpr converts an expression to wire form.
func FromExpr(e codegen.Expr) *Expr {
	switch x := e.(type) {
	case *codegen.Lit:
		if x.V == rt.Undefined {
			return &Expr{T: "undef"}
		}
		if x.V == nil {
			return &Expr{T: "null"}
		}
		v := x.V
		return &Expr{T: "lit", V: &v}
	case *codegen.Name:
		return &Expr{T: "name", Name: x.Str}
	case *codegen.Call:
		return &Expr{T: "call", Name: x.Fn, Args: fromExprs(x.Args)}
	case *codegen.Invoke:
		return &Expr{T: "invoke", X: FromExpr(x.Fn), Args: fromExprs(x.Args), Await: x.Await}
	case *codegen.Index:
		return &Expr{T: "index", X: FromExpr(x.X), Y: FromExpr(x.Key)}
	case *codegen.Unary:
		return &Expr{T: "unary", Op: x.Op, X: FromExpr(x.X)}
	case *codegen.Binary:
		return &Expr{T: "binary", Op: x.Op, X: FromExpr(x.X), Y: FromExpr(x.Y)}
	case *codegen.Concat:
		return &Expr{T: "concat", Args: fromExprs(x.Parts)}
	}
	return &Expr{T: "invalid"}
}

func fromExprs(es []codegen.Expr) []Expr {
	out := make([]Expr, len(es))
	for i, e := range es {
		out[i] = *FromExpr(e)
	}
	return out
}

// ToNodes converts wire form back to IR.
func ToNodes(ws []Node) ([]codegen.Node, error) {
	out := make([]codegen.Node, 0, len(ws))
	for i := range ws {
		n, err := toNode(&ws[i])
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

func toNode(w *Node) (codegen.Node, error) {
	var err error
	body := func(ws []Node) []codegen.Node {
		if err != nil || len(ws) == 0 {
			return nil
		}
		var out []codegen.Node
		out, err = ToNodes(ws)
		return out
	}
	ex := func(x *Expr) codegen.Expr {
		if err != nil || x == nil {
			return nil
		}
		var e codegen.Expr
		e, err = ToExpr(x)
		return e
	}
	name := func(s string) *codegen.Name { return &codegen.Name{Str: s} }
	var n codegen.Node
	switch w.T {
	case "def":
		kind := codegen.Const
		switch w.Kind {
		case "let":
			kind = codegen.Let
		case "var":
			kind = codegen.Var
		}
		n = &codegen.Def{DefKind: kind, Name: name(w.Name), Value: ex(w.Value)}
	case "assign":
		n = &codegen.Assign{Target: ex(w.Target), Op: w.Op, Value: ex(w.Value)}
	case "expr":
		n = &codegen.ExprStmt{X: ex(w.Value)}
	case "if":
		n = &codegen.If{Cond: ex(w.Cond), Then: body(w.Then), Else: body(w.Else)}
	case "for":
		f := &codegen.For{Cond: ex(w.Cond), Body: body(w.Body)}
		if w.Init != nil && err == nil {
			f.Init, err = toNode(w.Init)
		}
		if w.Post != nil && err == nil {
			f.Post, err = toNode(w.Post)
		}
		n = f
	case "range":
		n = &codegen.ForRange{Var: name(w.Name), From: ex(w.From), To: ex(w.To), Body: body(w.Body)}
	case "each":
		iter := codegen.IterValues
		if w.Kind == "keys" {
			iter = codegen.IterKeys
		}
		n = &codegen.ForEach{Iter: iter, Var: name(w.Name), Coll: ex(w.Coll), Body: body(w.Body)}
	case "label":
		n = &codegen.Label{Name: w.Label, Body: body(w.Body)}
	case "break":
		n = &codegen.Break{Label: w.Label}
	case "return":
		n = &codegen.Return{X: ex(w.Value)}
	case "throw":
		n = &codegen.Throw{X: ex(w.Value)}
	case "try":
		t := &codegen.Try{Body: body(w.Body), Catch: body(w.Catch), Finally: body(w.Finally)}
		if w.Name != "" {
			t.CatchVar = name(w.Name)
		}
		n = t
	case "func":
		params := make([]*codegen.Name, len(w.Params))
		for i, p := range w.Params {
			params[i] = name(p)
		}
		n = &codegen.Func{Name: name(w.Name), Params: params, Async: w.Async, Body: body(w.Body)}
	default:
		return nil, fmt.Errorf("ir: unknown node type %q", w.T)
	}
	return n, err
}

// ToExpr converts a wire expression back to IR.
func ToExpr(x *Expr) (codegen.Expr, error) {
	switch x.T {
	case "undef":
		return &codegen.Lit{V: rt.Undefined}, nil
	case "null":
		return &codegen.Lit{V: nil}, nil
	case "lit":
		if x.V == nil {
			return nil, fmt.Errorf("ir: literal without value")
		}
		return &codegen.Lit{V: *x.V}, nil
	case "name":
		return &codegen.Name{Str: x.Name}, nil
	case "call":
		if _, ok := rt.Builtins[x.Name]; !ok {
			return nil, fmt.Errorf("ir: unknown builtin %q", x.Name)
		}
		args, err := toExprs(x.Args)
		return &codegen.Call{Fn: x.Name, Args: args}, err
	case "invoke":
		fn, err := toExprReq(x.X)
		if err != nil {
			return nil, err
		}
		args, err := toExprs(x.Args)
		return &codegen.Invoke{Fn: fn, Args: args, Await: x.Await}, err
	case "index":
		a, err := toExprReq(x.X)
		if err != nil {
			return nil, err
		}
		k, err := toExprReq(x.Y)
		return &codegen.Index{X: a, Key: k}, err
	case "unary":
		a, err := toExprReq(x.X)
		return &codegen.Unary{Op: x.Op, X: a}, err
	case "binary":
		a, err := toExprReq(x.X)
		if err != nil {
			return nil, err
		}
		b, err := toExprReq(x.Y)
		return &codegen.Binary{Op: x.Op, X: a, Y: b}, err
	case "concat":
		parts, err := toExprs(x.Args)
		return &codegen.Concat{Parts: parts}, err
	}
	return nil, fmt.Errorf("ir: unknown expression type %q", x.T)
}

func toExprReq(x *Expr) (codegen.Expr, error) {
	if x == nil {
		return nil, fmt.Errorf("ir: missing operand")
	}
	return ToExpr(x)
}

func toExprs(xs []Expr) ([]codegen.Expr, error) {
	out := make([]codegen.Expr, len(xs))
	for i := range xs {
		e, err := ToExpr(&xs[i])
		if err != nil {
			return nil, err
		}
		out[i] = e
	}
	return out, nil
}
