// Package gen renders IR as readable source text for listings and debugging.
package gen

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/reoring/skemac/codegen"
	"github.com/reoring/skemac/rt"
)

// Render writes nodes to w, one statement per line.
func Render(w io.Writer, nodes []codegen.Node) error {
	r := &renderer{w: w}
	r.body(nodes)
	return r.err
}

// RenderString renders nodes into a string.
func RenderString(nodes []codegen.Node) string {
	var buf bytes.Buffer
	_ = Render(&buf, nodes)
	return buf.String()
}

type renderer struct {
	w      io.Writer
	indent int
	err    error
}

func (r *renderer) line(format string, args ...any) {
	if r.err != nil {
		return
	}
	_, r.err = fmt.Fprintf(r.w, "%s%s\n", strings.Repeat("  ", r.indent), fmt.Sprintf(format, args...))
}

func (r *renderer) block(head string, body []codegen.Node) {
	r.line("%s {", head)
	r.indent++
	r.body(body)
	r.indent--
}

func (r *renderer) body(nodes []codegen.Node) {
	for _, n := range nodes {
		r.node(n)
	}
}

func (r *renderer) node(n codegen.Node) {
	switch x := n.(type) {
	case *codegen.Def:
		if x.Value == nil {
			r.line("%s %s", x.DefKind, x.Name.Str)
			return
		}
		r.line("%s %s = %s", x.DefKind, x.Name.Str, Expr(x.Value))
	case *codegen.Assign:
		r.line("%s %s= %s", Expr(x.Target), x.Op, Expr(x.Value))
	case *codegen.ExprStmt:
		r.line("%s", Expr(x.X))
	case *codegen.If:
		r.ifChain("if", x)
	case *codegen.For:
		init, post := "", ""
		if x.Init != nil {
			init = strings.TrimSpace(RenderString([]codegen.Node{x.Init}))
		}
		if x.Post != nil {
			post = strings.TrimSpace(RenderString([]codegen.Node{x.Post}))
		}
		cond := ""
		if x.Cond != nil {
			cond = Expr(x.Cond)
		}
		r.block(fmt.Sprintf("for (%s; %s; %s)", init, cond, post), x.Body)
		r.line("}")
	case *codegen.ForRange:
		r.block(fmt.Sprintf("for (let %s = %s; %s < %s; %s++)", x.Var.Str, Expr(x.From), x.Var.Str, Expr(x.To), x.Var.Str), x.Body)
		r.line("}")
	case *codegen.ForEach:
		kw := "of"
		if x.Iter == codegen.IterKeys {
			kw = "in"
		}
		r.block(fmt.Sprintf("for (const %s %s %s)", x.Var.Str, kw, Expr(x.Coll)), x.Body)
		r.line("}")
	case *codegen.Label:
		r.block(x.Name+":", x.Body)
		r.line("}")
	case *codegen.Break:
		if x.Label != "" {
			r.line("break %s", x.Label)
			return
		}
		r.line("break")
	case *codegen.Return:
		if x.X == nil {
			r.line("return")
			return
		}
		r.line("return %s", Expr(x.X))
	case *codegen.Throw:
		r.line("throw %s", Expr(x.X))
	case *codegen.Try:
		r.block("try", x.Body)
		if x.CatchVar != nil {
			r.indent--
			r.block(fmt.Sprintf("} catch (%s)", x.CatchVar.Str), x.Catch)
			r.indent++
		}
		if len(x.Finally) > 0 {
			r.indent--
			r.block("} finally", x.Finally)
			r.indent++
		}
		r.line("}")
	case *codegen.Func:
		params := make([]string, len(x.Params))
		for i, p := range x.Params {
			params[i] = p.Str
		}
		head := fmt.Sprintf("function %s(%s)", x.Name.Str, strings.Join(params, ", "))
		if x.Async {
			head = "async " + head
		}
		r.block(head, x.Body)
		r.line("}")
	default:
		r.line("/* %T */", n)
	}
}

func (r *renderer) ifChain(head string, x *codegen.If) {
	r.block(fmt.Sprintf("%s (%s)", head, Expr(x.Cond)), x.Then)
	if len(x.Else) == 1 {
		if next, ok := x.Else[0].(*codegen.If); ok {
			r.ifChain("} else if", next)
			return
		}
	}
	if len(x.Else) > 0 {
		r.block("} else", x.Else)
	}
	r.line("}")
}

// Expr renders a single expression.
func Expr(e codegen.Expr) string {
	switch x := e.(type) {
	case *codegen.Lit:
		return literal(x.V)
	case *codegen.Name:
		return x.Str
	case *codegen.Call:
		return x.Fn + "(" + list(x.Args) + ")"
	case *codegen.Invoke:
		s := Expr(x.Fn) + "(" + list(x.Args) + ")"
		if x.Await {
			return "await " + s
		}
		return s
	case *codegen.Index:
		if l, ok := x.Key.(*codegen.Lit); ok {
			if s, isStr := l.V.(string); isStr && ident(s) {
				return Expr(x.X) + "." + s
			}
		}
		return Expr(x.X) + "[" + Expr(x.Key) + "]"
	case *codegen.Unary:
		return x.Op + paren(x.X)
	case *codegen.Binary:
		return paren(x.X) + " " + x.Op + " " + paren(x.Y)
	case *codegen.Concat:
		parts := make([]string, len(x.Parts))
		for i, p := range x.Parts {
			if l, ok := p.(*codegen.Lit); ok {
				if s, isStr := l.V.(string); isStr {
					parts[i] = strings.ReplaceAll(s, "`", "\\`")
					continue
				}
			}
			parts[i] = "${" + Expr(p) + "}"
		}
		return "`" + strings.Join(parts, "") + "`"
	}
	return fmt.Sprintf("/* %T */", e)
}

func paren(e codegen.Expr) string {
	if _, ok := e.(*codegen.Binary); ok {
		return "(" + Expr(e) + ")"
	}
	return Expr(e)
}

func list(es []codegen.Expr) string {
	parts := make([]string, len(es))
	for i, e := range es {
		parts[i] = Expr(e)
	}
	return strings.Join(parts, ", ")
}

func literal(v any) string {
	switch t := v.(type) {
	case string:
		return strconv.Quote(t)
	case nil:
		return "null"
	case rt.UndefinedType:
		return "undefined"
	}
	return rt.String(v)
}

func ident(s string) bool {
	if s == "" {
		return false
	}
	for i, c := range s {
		if c == '_' || c == '$' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (i > 0 && c >= '0' && c <= '9') {
			continue
		}
		return false
	}
	return true
}
