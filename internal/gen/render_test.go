package gen

import (
	"strings"
	"testing"

	"github.com/reoring/skemac/codegen"
)

func TestRender_FunctionListing(t *testing.T) {
	var out string
	var err error
	func() {
		defer codegen.Recover(&err)
		b := codegen.NewBuilder(codegen.NewScope(nil))
		data := &codegen.Name{Str: "data"}
		b.Func(&codegen.Name{Str: "validate0"}, []*codegen.Name{data}, false)
		b.If(codegen.Neq(codegen.F("typeOf", data), codegen.L("string")))
		b.Return(codegen.False)
		b.ElseIf(codegen.Op(codegen.F("strlen", data), ">", codegen.L(3)))
		b.Return(codegen.False)
		b.EndIf()
		b.Return(codegen.True)
		b.EndFunc()
		out = RenderString(b.Nodes())
	}()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	want := []string{
		"function validate0(data) {",
		`  if (typeOf(data) != "string") {`,
		"  } else if (strlen(data) > 3) {",
		"  return true",
	}
	for _, w := range want {
		if !strings.Contains(out, w) {
			t.Fatalf("listing lacks %q:\n%s", w, out)
		}
	}
}

func TestExpr_PropertyAccessAndTemplates(t *testing.T) {
	data := &codegen.Name{Str: "data"}
	if got := Expr(codegen.Prop(data, "foo")); got != "data.foo" {
		t.Fatalf("got %q", got)
	}
	if got := Expr(codegen.Prop(data, "a-b")); got != `data["a-b"]` {
		t.Fatalf("got %q", got)
	}
	if got := Expr(codegen.Str("/p/", data)); got != "`/p/${data}`" {
		t.Fatalf("got %q", got)
	}
}
