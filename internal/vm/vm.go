// Package vm executes optimized IR. Validators compiled by skemac are IR
// functions; this interpreter runs them against the values hoisted into the
// compiler's ValueScope.
package vm

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/reoring/skemac/codegen"
	"github.com/reoring/skemac/rt"
)

// Thrown wraps a non-error value raised by a Throw statement.
type Thrown struct {
	V any
}

func (t *Thrown) Error() string { return "vm: thrown " + rt.String(t.V) }

type env struct {
	vars   map[string]any
	parent *env
}

func newEnv(parent *env) *env { return &env{vars: make(map[string]any), parent: parent} }

func (e *env) lookup(name string) (any, bool) {
	for s := e; s != nil; s = s.parent {
		if v, ok := s.vars[name]; ok {
			return v, true
		}
	}
	return nil, false
}

func (e *env) assign(name string, v any) {
	for s := e; s != nil; s = s.parent {
		if _, ok := s.vars[name]; ok {
			s.vars[name] = v
			return
		}
	}
	e.vars[name] = v
}

// Closure is a callable IR function.
type Closure struct {
	fn  *codegen.Func
	env *env
}

// New returns fn as a callable. Names not bound locally resolve through
// their ValueScope slot.
func New(fn *codegen.Func) *Closure { return &Closure{fn: fn} }

// Func returns the IR of c.
func (c *Closure) Func() *codegen.Func { return c.fn }

// Call runs the function. Panics raised by builtins surface as errors.
func (c *Closure) Call(args []any) (res any, err error) {
	defer func() {
		if r := recover(); r != nil {
			if e, ok := r.(error); ok {
				err = fmt.Errorf("vm: %s: %w", c.fn.Name.Str, e)
				return
			}
			err = fmt.Errorf("vm: %s: %v", c.fn.Name.Str, r)
		}
	}()
	a := newEnv(c.env)
	for i, p := range c.fn.Params {
		var v any = rt.Undefined
		if i < len(args) {
			v = args[i]
		}
		a.vars[p.Str] = v
	}
	ctl, v, err := run(a, c.fn.Body)
	if err != nil {
		return nil, err
	}
	if ctl.kind == ctlReturn {
		return v, nil
	}
	return rt.Undefined, nil
}

// Program is a loaded standalone program.
type Program struct {
	globals *env
}

// Load hoists the top-level functions of nodes and then runs the remaining
// top-level statements (value declarations) in order.
func Load(nodes []codegen.Node) (*Program, error) {
	g := newEnv(nil)
	for _, n := range nodes {
		if fn, ok := n.(*codegen.Func); ok {
			g.vars[fn.Name.Str] = &Closure{fn: fn, env: g}
		}
	}
	for _, n := range nodes {
		if _, ok := n.(*codegen.Func); ok {
			continue
		}
		if _, _, err := exec(g, n); err != nil {
			return nil, err
		}
	}
	return &Program{globals: g}, nil
}

// Lookup returns a global of the program.
func (p *Program) Lookup(name string) (any, bool) { return p.globals.lookup(name) }

type ctlKind int

const (
	ctlNext ctlKind = iota
	ctlReturn
	ctlBreak
)

type ctl struct {
	kind  ctlKind
	label string
}

func run(e *env, body []codegen.Node) (ctl, any, error) {
	for _, n := range body {
		c, v, err := exec(e, n)
		if err != nil || c.kind != ctlNext {
			return c, v, err
		}
	}
	return ctl{}, nil, nil
}

func exec(e *env, n codegen.Node) (ctl, any, error) {
	switch x := n.(type) {
	case *codegen.Def:
		var v any = rt.Undefined
		if x.Value != nil {
			var err error
			if v, err = eval(e, x.Value); err != nil {
				return ctl{}, nil, err
			}
		}
		e.vars[x.Name.Str] = v
	case *codegen.Assign:
		return ctl{}, nil, assign(e, x)
	case *codegen.ExprStmt:
		_, err := eval(e, x.X)
		return ctl{}, nil, err
	case *codegen.If:
		c, err := eval(e, x.Cond)
		if err != nil {
			return ctl{}, nil, err
		}
		if rt.Truthy(c) {
			return run(e, x.Then)
		}
		return run(e, x.Else)
	case *codegen.For:
		return execFor(e, x)
	case *codegen.ForRange:
		from, err := evalInt(e, x.From)
		if err != nil {
			return ctl{}, nil, err
		}
		to, err := evalInt(e, x.To)
		if err != nil {
			return ctl{}, nil, err
		}
		for i := from; i < to; i++ {
			e.vars[x.Var.Str] = i
			if c, v, err := run(e, x.Body); err != nil || c.kind == ctlReturn || c.label != "" {
				return c, v, err
			} else if c.kind == ctlBreak {
				break
			}
		}
	case *codegen.ForEach:
		return execForEach(e, x)
	case *codegen.Label:
		c, v, err := run(e, x.Body)
		if c.kind == ctlBreak && c.label == x.Name {
			return ctl{}, nil, err
		}
		return c, v, err
	case *codegen.Break:
		return ctl{kind: ctlBreak, label: x.Label}, nil, nil
	case *codegen.Return:
		if x.X == nil {
			return ctl{kind: ctlReturn}, rt.Undefined, nil
		}
		v, err := eval(e, x.X)
		return ctl{kind: ctlReturn}, v, err
	case *codegen.Throw:
		v, err := eval(e, x.X)
		if err != nil {
			return ctl{}, nil, err
		}
		if verr, ok := v.(error); ok {
			return ctl{}, nil, verr
		}
		return ctl{}, nil, &Thrown{V: v}
	case *codegen.Try:
		return execTry(e, x)
	case *codegen.Func:
		e.vars[x.Name.Str] = &Closure{fn: x, env: e}
	default:
		return ctl{}, nil, fmt.Errorf("vm: unknown node %T", n)
	}
	return ctl{}, nil, nil
}

func execFor(e *env, x *codegen.For) (ctl, any, error) {
	if x.Init != nil {
		if _, _, err := exec(e, x.Init); err != nil {
			return ctl{}, nil, err
		}
	}
	for {
		if x.Cond != nil {
			c, err := eval(e, x.Cond)
			if err != nil {
				return ctl{}, nil, err
			}
			if !rt.Truthy(c) {
				return ctl{}, nil, nil
			}
		}
		c, v, err := run(e, x.Body)
		if err != nil || c.kind == ctlReturn || c.label != "" {
			return c, v, err
		}
		if c.kind == ctlBreak {
			return ctl{}, nil, nil
		}
		if x.Post != nil {
			if _, _, err := exec(e, x.Post); err != nil {
				return ctl{}, nil, err
			}
		}
	}
}

func execForEach(e *env, x *codegen.ForEach) (ctl, any, error) {
	coll, err := eval(e, x.Coll)
	if err != nil {
		return ctl{}, nil, err
	}
	var items []any
	switch c := coll.(type) {
	case []any:
		if x.Iter == codegen.IterKeys {
			items = make([]any, len(c))
			for i := range c {
				items[i] = i
			}
		} else {
			items = c
		}
	case map[string]any:
		keys := rt.Keys(c)
		items = make([]any, len(keys))
		for i, k := range keys {
			if x.Iter == codegen.IterKeys {
				items[i] = k
			} else {
				items[i] = c[k]
			}
		}
	}
	for _, it := range items {
		e.vars[x.Var.Str] = it
		c, v, err := run(e, x.Body)
		if err != nil || c.kind == ctlReturn || c.label != "" {
			return c, v, err
		}
		if c.kind == ctlBreak {
			break
		}
	}
	return ctl{}, nil, nil
}

func execTry(e *env, x *codegen.Try) (c ctl, v any, err error) {
	c, v, err = run(e, x.Body)
	if err != nil && x.CatchVar != nil {
		var caught any = err
		var th *Thrown
		if errors.As(err, &th) {
			caught = th.V
		}
		e.vars[x.CatchVar.Str] = caught
		c, v, err = run(e, x.Catch)
	}
	if len(x.Finally) > 0 {
		fc, fv, ferr := run(e, x.Finally)
		if ferr != nil || fc.kind != ctlNext {
			return fc, fv, ferr
		}
	}
	return c, v, err
}

func assign(e *env, x *codegen.Assign) error {
	v, err := eval(e, x.Value)
	if err != nil {
		return err
	}
	if x.Op != "" {
		cur, err := eval(e, x.Target)
		if err != nil {
			return err
		}
		if v, err = binary(x.Op, cur, v); err != nil {
			return err
		}
	}
	switch t := x.Target.(type) {
	case *codegen.Name:
		e.assign(t.Str, v)
		return nil
	case *codegen.Index:
		obj, err := eval(e, t.X)
		if err != nil {
			return err
		}
		key, err := eval(e, t.Key)
		if err != nil {
			return err
		}
		return rt.Set(obj, key, v)
	}
	return fmt.Errorf("vm: cannot assign to %T", x.Target)
}

func evalInt(e *env, x codegen.Expr) (int, error) {
	v, err := eval(e, x)
	if err != nil {
		return 0, err
	}
	i, ok := rt.Int(v)
	if !ok {
		return 0, fmt.Errorf("vm: %s is not an integer", rt.String(v))
	}
	return i, nil
}

func eval(e *env, x codegen.Expr) (any, error) {
	switch t := x.(type) {
	case *codegen.Lit:
		return t.V, nil
	case *codegen.Name:
		if v, ok := e.lookup(t.Str); ok {
			return v, nil
		}
		if t.Value == nil {
			// Declarations are function scoped; one in a branch that did not
			// run leaves the name undefined.
			return rt.Undefined, nil
		}
		if t.Value.Resolved() {
			return t.Value.Ref, nil
		}
		return nil, fmt.Errorf("vm: unresolved value %s", t.Str)
	case *codegen.Call:
		b, ok := rt.Builtins[t.Fn]
		if !ok {
			return nil, fmt.Errorf("vm: unknown builtin %s", t.Fn)
		}
		args, err := evalAll(e, t.Args)
		if err != nil {
			return nil, err
		}
		return b.Fn(args)
	case *codegen.Invoke:
		fn, err := eval(e, t.Fn)
		if err != nil {
			return nil, err
		}
		c, ok := fn.(rt.Callable)
		if !ok {
			return nil, fmt.Errorf("vm: %T is not callable", fn)
		}
		args, err := evalAll(e, t.Args)
		if err != nil {
			return nil, err
		}
		return c.Call(args)
	case *codegen.Index:
		obj, err := eval(e, t.X)
		if err != nil {
			return nil, err
		}
		key, err := eval(e, t.Key)
		if err != nil {
			return nil, err
		}
		return rt.Get(obj, key), nil
	case *codegen.Unary:
		v, err := eval(e, t.X)
		if err != nil {
			return nil, err
		}
		switch t.Op {
		case "!":
			return !rt.Truthy(v), nil
		case "-":
			return arith("-", 0, v)
		}
		return nil, fmt.Errorf("vm: unknown unary %s", t.Op)
	case *codegen.Binary:
		l, err := eval(e, t.X)
		if err != nil {
			return nil, err
		}
		switch t.Op {
		case "&&":
			if !rt.Truthy(l) {
				return false, nil
			}
			r, err := eval(e, t.Y)
			return rt.Truthy(r), err
		case "||":
			if rt.Truthy(l) {
				return true, nil
			}
			r, err := eval(e, t.Y)
			return rt.Truthy(r), err
		}
		r, err := eval(e, t.Y)
		if err != nil {
			return nil, err
		}
		return binary(t.Op, l, r)
	case *codegen.Concat:
		var sb strings.Builder
		for _, p := range t.Parts {
			v, err := eval(e, p)
			if err != nil {
				return nil, err
			}
			sb.WriteString(rt.String(v))
		}
		return sb.String(), nil
	}
	return nil, fmt.Errorf("vm: unknown expression %T", x)
}

func evalAll(e *env, xs []codegen.Expr) ([]any, error) {
	out := make([]any, len(xs))
	for i, x := range xs {
		v, err := eval(e, x)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func binary(op string, l, r any) (any, error) {
	switch op {
	case "==":
		return rt.Equal(l, r), nil
	case "!=":
		return !rt.Equal(l, r), nil
	case "<", "<=", ">", ">=":
		c, ok := rt.Compare(l, r)
		if !ok {
			return false, nil
		}
		switch op {
		case "<":
			return c < 0, nil
		case "<=":
			return c <= 0, nil
		case ">":
			return c > 0, nil
		}
		return c >= 0, nil
	case "+":
		ls, lok := l.(string)
		rs, rok := r.(string)
		if lok || rok {
			if !lok {
				ls = rt.String(l)
			}
			if !rok {
				rs = rt.String(r)
			}
			return ls + rs, nil
		}
	}
	return arith(op, l, r)
}

func arith(op string, l, r any) (any, error) {
	li, lok := l.(int)
	ri, rok := r.(int)
	if lok && rok {
		switch op {
		case "+":
			return li + ri, nil
		case "-":
			return li - ri, nil
		case "*":
			return li * ri, nil
		}
	}
	lf, ok1 := rt.Float(l)
	rf, ok2 := rt.Float(r)
	if !ok1 || !ok2 {
		return nil, fmt.Errorf("vm: %s %s %s on non-numbers", rt.String(l), op, rt.String(r))
	}
	switch op {
	case "+":
		return lf + rf, nil
	case "-":
		return lf - rf, nil
	case "*":
		return lf * rf, nil
	case "/":
		return lf / rf, nil
	case "%":
		return math.Mod(lf, rf), nil
	}
	return nil, fmt.Errorf("vm: unknown operator %s", op)
}
