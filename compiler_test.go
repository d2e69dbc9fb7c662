package skemac_test

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/reoring/skemac"
)

const defsDoc = `{"$id":"https://example.com/defs.json","$defs":{"name":{"type":"string","minLength":1}}}`

func TestAddSchema_CrossDocumentRef(t *testing.T) {
	c := skemac.New(skemac.DefaultOptions())
	if err := c.AddSchema(mustJSON(t, defsDoc), ""); err != nil {
		t.Fatalf("add schema: %v", err)
	}
	v, err := c.Compile(mustJSON(t, `{"$id":"https://example.com/main.json","properties":{"n":{"$ref":"defs.json#/$defs/name"}}}`))
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	res := run(t, v, `{"n":""}`)
	if res.Valid || res.Errors[0].SchemaPath != "#/$defs/name/minLength" || res.Errors[0].InstancePath != "/n" {
		t.Fatalf("unexpected errors %v", res.Errors)
	}
	g, err := c.GetSchema("https://example.com/defs.json#/$defs/name")
	if err != nil {
		t.Fatalf("get schema: %v", err)
	}
	if !g.IsValid(context.Background(), "x") || g.IsValid(context.Background(), 1) {
		t.Fatalf("fragment validator disagrees with schema")
	}
}

func TestAnchor(t *testing.T) {
	v := compile(t, skemac.DefaultOptions(), `{"$defs":{"x":{"$anchor":"pos","minimum":0}},"items":{"$ref":"#pos"}}`)
	if !run(t, v, `[0,1]`).Valid || run(t, v, `[0,-1]`).Valid {
		t.Fatalf("anchor reference not applied")
	}
}

func TestAddSchema_Duplicate(t *testing.T) {
	c := skemac.New(skemac.DefaultOptions())
	if err := c.AddSchema(mustJSON(t, defsDoc), ""); err != nil {
		t.Fatalf("add schema: %v", err)
	}
	if err := c.AddSchema(mustJSON(t, defsDoc), ""); !errors.Is(err, skemac.ErrSchemaExists) {
		t.Fatalf("want ErrSchemaExists, got %v", err)
	}
}

func TestAmbiguousID(t *testing.T) {
	_, err := skemac.New(skemac.DefaultOptions()).Compile(mustJSON(t, `{"$defs":{
		"a":{"$id":"https://example.com/x.json","type":"string"},
		"b":{"$id":"https://example.com/x.json","type":"number"}}}`))
	if !errors.Is(err, skemac.ErrAmbiguousRef) {
		t.Fatalf("want ErrAmbiguousRef, got %v", err)
	}
}

func TestMissingReference(t *testing.T) {
	_, err := skemac.New(skemac.DefaultOptions()).Compile(mustJSON(t, `{"properties":{"a":{"$ref":"https://example.com/nope.json#/$defs/x"}}}`))
	var mr *skemac.MissingReferenceError
	if !errors.As(err, &mr) {
		t.Fatalf("want MissingReferenceError, got %v", err)
	}
	if mr.MissingSchema != "https://example.com/nope.json" || mr.MissingRef != "https://example.com/nope.json#/$defs/x" {
		t.Fatalf("unexpected error %+v", mr)
	}
}

func TestCompileAsync_Loader(t *testing.T) {
	docs := map[string]string{
		"https://example.com/a.json": `{"$id":"https://example.com/a.json","properties":{"b":{"$ref":"b.json"}}}`,
		"https://example.com/b.json": `{"$id":"https://example.com/b.json","type":"integer"}`,
	}
	var calls atomic.Int32
	opts := skemac.DefaultOptions()
	opts.Loader = func(_ context.Context, uri string) (any, error) {
		calls.Add(1)
		s, ok := docs[uri]
		if !ok {
			return nil, errors.New("not found")
		}
		return mustJSON(t, s), nil
	}
	c := skemac.New(opts)
	v, err := c.CompileAsync(context.Background(), mustJSON(t, `{"$ref":"https://example.com/a.json"}`))
	if err != nil {
		t.Fatalf("compile async: %v", err)
	}
	if got := calls.Load(); got != 2 {
		t.Fatalf("want 2 loads, got %d", got)
	}
	if !run(t, v, `{"b":1}`).Valid || run(t, v, `{"b":"x"}`).Valid {
		t.Fatalf("loaded schemas not applied")
	}

	_, err = c.CompileAsync(context.Background(), mustJSON(t, `{"$ref":"https://example.com/zzz.json"}`))
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("loader failure must abort: %v", err)
	}
}

func TestCompileAsync_NoLoader(t *testing.T) {
	_, err := skemac.New(skemac.DefaultOptions()).CompileAsync(context.Background(), mustJSON(t, `{"$ref":"https://example.com/a.json"}`))
	if !errors.Is(err, skemac.ErrNoLoader) {
		t.Fatalf("want ErrNoLoader, got %v", err)
	}
}

func TestRemoveSchema(t *testing.T) {
	c := skemac.New(skemac.DefaultOptions())
	if err := c.AddSchema(mustJSON(t, defsDoc), ""); err != nil {
		t.Fatalf("add schema: %v", err)
	}
	if _, err := c.GetSchema("https://example.com/defs.json"); err != nil {
		t.Fatalf("get schema: %v", err)
	}
	c.RemoveSchema("https://example.com/defs.json")
	var mr *skemac.MissingReferenceError
	if _, err := c.GetSchema("https://example.com/defs.json#/$defs/name"); !errors.As(err, &mr) {
		t.Fatalf("removed schema still resolves: %v", err)
	}
	if err := c.AddSchema(mustJSON(t, defsDoc), ""); err != nil {
		t.Fatalf("re-adding a removed id: %v", err)
	}
}

func TestRegistry_FrozenAfterCompile(t *testing.T) {
	c := skemac.New(skemac.DefaultOptions())
	if _, err := c.Compile(mustJSON(t, `{"type":"string"}`)); err != nil {
		t.Fatalf("compile: %v", err)
	}
	def := skemac.KeywordDefinition{Keyword: "late", Code: func(*skemac.KeywordCxt) error { return nil }}
	if err := c.AddKeyword(def); !errors.Is(err, skemac.ErrFrozen) {
		t.Fatalf("AddKeyword: want ErrFrozen, got %v", err)
	}
	if err := c.RemoveKeyword("type"); !errors.Is(err, skemac.ErrFrozen) {
		t.Fatalf("RemoveKeyword: want ErrFrozen, got %v", err)
	}
	if err := c.AddFormat("x", skemac.Format{Check: func(any) bool { return true }}); !errors.Is(err, skemac.ErrFrozen) {
		t.Fatalf("AddFormat: want ErrFrozen, got %v", err)
	}
}

func TestAddKeyword_Validation(t *testing.T) {
	c := skemac.New(skemac.DefaultOptions())
	noop := func(*skemac.KeywordCxt) error { return nil }
	if err := c.AddKeyword(skemac.KeywordDefinition{Keyword: "minimum", Code: noop}); !errors.Is(err, skemac.ErrKeywordExists) {
		t.Fatalf("want ErrKeywordExists, got %v", err)
	}
	if err := c.AddKeyword(skemac.KeywordDefinition{Keyword: "none"}); err == nil {
		t.Fatalf("a keyword without behavior must be rejected")
	}
	if err := c.AddKeyword(skemac.KeywordDefinition{Keyword: "bad name", Code: noop}); err == nil {
		t.Fatalf("invalid keyword names must be rejected")
	}
}

func TestRemoveKeyword(t *testing.T) {
	opts := skemac.DefaultOptions()
	opts.Strict = skemac.StrictOff
	c := skemac.New(opts)
	if err := c.RemoveKeyword("minimum"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	v, err := c.Compile(mustJSON(t, `{"minimum":5}`))
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if !v.IsValid(context.Background(), 3) {
		t.Fatalf("removed keyword must not apply")
	}
}

func TestCompile_ConcurrentValidation(t *testing.T) {
	v := compile(t, skemac.DefaultOptions(), `{"type":"array","items":{"type":"integer","minimum":0}}`)
	ctx := context.Background()
	done := make(chan bool)
	for i := 0; i < 8; i++ {
		go func(i int) {
			ok := true
			for n := 0; n < 100; n++ {
				inst := []any{n, i}
				ok = ok && v.IsValid(ctx, inst) && !v.IsValid(ctx, []any{-1})
			}
			done <- ok
		}(i)
	}
	for i := 0; i < 8; i++ {
		if !<-done {
			t.Fatalf("concurrent validation disagreed")
		}
	}
}

func TestEvaluatedMerge_RefSummary(t *testing.T) {
	v := compile(t, skemac.DefaultOptions(), `{
		"$defs":{"base":{"properties":{"a":{}},"patternProperties":{"^x-":{}}}},
		"$ref":"#/$defs/base","properties":{"b":{}},"unevaluatedProperties":false}`)
	if !run(t, v, `{"a":1,"b":2,"x-y":3}`).Valid {
		t.Fatalf("a, b and x-y are evaluated")
	}
	res := run(t, v, `{"a":1,"c":2}`)
	if diff := cmp.Diff([]string{" unevaluatedProperties"}, keywords(res.Errors)); diff != "" {
		t.Fatalf("errors mismatch (-want +got):\n%s", diff)
	}
}
