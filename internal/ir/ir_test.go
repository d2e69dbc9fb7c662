package ir

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/reoring/skemac/codegen"
	"github.com/reoring/skemac/internal/gen"
)

func TestRoundTrip_PreservesListing(t *testing.T) {
	data := &codegen.Name{Str: "data"}
	e := &codegen.Name{Str: "e0"}
	prog := []codegen.Node{
		&codegen.Def{DefKind: codegen.Const, Name: &codegen.Name{Str: "pattern0"}, Value: codegen.F("regexp", codegen.L("^a"))},
		&codegen.Func{Name: &codegen.Name{Str: "validate0"}, Params: []*codegen.Name{data}, Body: []codegen.Node{
			&codegen.Def{DefKind: codegen.Let, Name: &codegen.Name{Str: "n0"}, Value: codegen.L(false)},
			&codegen.ForEach{Iter: codegen.IterKeys, Var: &codegen.Name{Str: "k0"}, Coll: data, Body: []codegen.Node{
				&codegen.If{Cond: codegen.Eq(&codegen.Name{Str: "k0"}, codegen.L("x")), Then: []codegen.Node{&codegen.Break{}}},
			}},
			&codegen.Try{Body: []codegen.Node{&codegen.Throw{X: data}}, CatchVar: e, Catch: []codegen.Node{&codegen.Return{X: codegen.Undefined}}},
			&codegen.Return{X: codegen.Str("a", data)},
		}},
	}
	wire, err := FromNodes(prog)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	raw, err := Marshal(&File{Format: "test", Version: Version, Entry: "validate0", Program: wire})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	f, err := Unmarshal(raw)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	back, err := ToNodes(f.Program)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if diff := cmp.Diff(gen.RenderString(prog), gen.RenderString(back)); diff != "" {
		t.Fatalf("listing changed (-want +got):\n%s", diff)
	}
}

func TestUnmarshal_KeepsNumbersExact(t *testing.T) {
	raw := []byte(`{"format":"x","version":1,"entry":"f","program":[{"t":"def","kind":"const","name":"a","value":{"t":"lit","v":12345678901234567890}}]}`)
	f, err := Unmarshal(raw)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	ns, err := ToNodes(f.Program)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	v := ns[0].(*codegen.Def).Value.(*codegen.Lit).V
	if n, ok := v.(json.Number); !ok || n.String() != "12345678901234567890" {
		t.Fatalf("got %#v", v)
	}
}

func TestUnmarshal_RejectsUnknownBuiltin(t *testing.T) {
	raw := []byte(`{"format":"x","version":1,"entry":"f","program":[{"t":"expr","value":{"t":"call","name":"exec"}}]}`)
	f, err := Unmarshal(raw)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, err := ToNodes(f.Program); err == nil {
		t.Fatalf("unknown builtin must be rejected")
	}
}
