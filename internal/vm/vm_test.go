package vm

import (
	"errors"
	"testing"

	"github.com/reoring/skemac/codegen"
	"github.com/reoring/skemac/rt"
)

func newFunc(t *testing.T, build func(b *codegen.Builder, data *codegen.Name)) *Closure {
	t.Helper()
	var fn *codegen.Func
	var err error
	func() {
		defer codegen.Recover(&err)
		b := codegen.NewBuilder(codegen.NewScope(nil))
		data := &codegen.Name{Str: "data"}
		name := &codegen.Name{Str: "f"}
		b.Func(name, []*codegen.Name{data}, false)
		build(b, data)
		b.EndFunc()
		b.Optimize(1)
		fn = b.Nodes()[0].(*codegen.Func)
	}()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	return New(fn)
}

func TestClosure_CountsMatchingItems(t *testing.T) {
	f := newFunc(t, func(b *codegen.Builder, data *codegen.Name) {
		n := b.Let("n", codegen.L(0))
		b.ForValues("v", data, func(v *codegen.Name) {
			b.If(codegen.Op(v, ">", codegen.L(2)), func() {
				b.AssignOp(n, "+", codegen.L(1))
			})
		})
		b.Return(n)
	})
	got, err := f.Call([]any{[]any{1.0, 3.0, 5.0, 2.0}})
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if got != 2 {
		t.Fatalf("want 2, got %v", got)
	}
}

func TestClosure_LabelBreak(t *testing.T) {
	f := newFunc(t, func(b *codegen.Builder, data *codegen.Name) {
		found := b.Let("found", codegen.Undefined)
		b.Label("outer", func() {
			b.ForKeys("k", data, func(k *codegen.Name) {
				b.ForValues("v", &codegen.Index{X: data, Key: k}, func(v *codegen.Name) {
					b.If(codegen.Eq(v, codegen.L("x")), func() {
						b.Assign(found, k)
						b.Break("outer")
					})
				})
			})
		})
		b.Return(found)
	})
	got, err := f.Call([]any{map[string]any{"a": []any{"y"}, "b": []any{"x"}, "c": []any{"x"}}})
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if got != "b" {
		t.Fatalf("want first key in sorted order, got %v", got)
	}
}

func TestClosure_TryCatchValidationError(t *testing.T) {
	f := newFunc(t, func(b *codegen.Builder, data *codegen.Name) {
		res := b.Let("res", codegen.False)
		b.Try(func() {
			b.Throw(data)
		}, func(e *codegen.Name) {
			b.If(codegen.F("isValidationError", e), func() { b.Assign(res, codegen.True) }, func() { b.Throw(e) })
		}, nil)
		b.Return(res)
	})
	got, err := f.Call([]any{&rt.ValidationError{}})
	if err != nil || got != true {
		t.Fatalf("want caught validation error, got %v, %v", got, err)
	}
	boom := errors.New("boom")
	if _, err := f.Call([]any{boom}); !errors.Is(err, boom) {
		t.Fatalf("want rethrown error, got %v", err)
	}
}

func TestClosure_ValueScopeNames(t *testing.T) {
	vs := codegen.NewValueScope("schema")
	sch := vs.Value("schema", codegen.ValueSpec{Ref: "limit", Key: "k", Code: codegen.L("limit")})
	f := newFunc(t, func(b *codegen.Builder, data *codegen.Name) {
		b.Return(codegen.Str(sch, ":", data))
	})
	got, err := f.Call([]any{"v"})
	if err != nil || got != "limit:v" {
		t.Fatalf("got %v, %v", got, err)
	}
}

func TestLoad_HoistsFunctions(t *testing.T) {
	data := &codegen.Name{Str: "data"}
	nodes := []codegen.Node{
		&codegen.Def{DefKind: codegen.Const, Name: &codegen.Name{Str: "ref0"}, Value: &codegen.Name{Str: "g"}},
		&codegen.Func{Name: &codegen.Name{Str: "g"}, Params: []*codegen.Name{data}, Body: []codegen.Node{
			&codegen.Return{X: codegen.F("typeOf", data)},
		}},
	}
	p, err := Load(nodes)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	v, ok := p.Lookup("ref0")
	if !ok {
		t.Fatalf("ref0 not defined")
	}
	got, err := v.(rt.Callable).Call([]any{1.5})
	if err != nil || got != "number" {
		t.Fatalf("got %v, %v", got, err)
	}
}
