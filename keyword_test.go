package skemac_test

import (
	"context"
	"errors"
	"sort"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/reoring/skemac"
	"github.com/reoring/skemac/codegen"
	"github.com/reoring/skemac/rt"
)

// evenKeyword is generated inline.
func evenKeyword() skemac.KeywordDefinition {
	return skemac.KeywordDefinition{
		Keyword:    "even",
		Type:       []string{"number"},
		SchemaType: []string{"boolean"},
		Error:      &skemac.KeywordError{Message: "must be even"},
		Code: func(k *skemac.KeywordCxt) error {
			if k.Schema != true {
				return nil
			}
			k.Fail(codegen.Not(codegen.F("multipleOf", k.Data, codegen.L(2))))
			return nil
		},
	}
}

// rangeKeyword expands to minimum and maximum.
func rangeKeyword() skemac.KeywordDefinition {
	return skemac.KeywordDefinition{
		Keyword:    "range",
		Type:       []string{"number"},
		SchemaType: []string{"array"},
		Macro: func(schema any, _ map[string]any, _ *skemac.SchemaCxt) (any, error) {
			b, _ := schema.([]any)
			if len(b) != 2 {
				return nil, errors.New("range needs two bounds")
			}
			return map[string]any{"minimum": b[0], "maximum": b[1]}, nil
		},
	}
}

func prefixKeyword() skemac.KeywordDefinition {
	return skemac.KeywordDefinition{
		Keyword:    "prefix",
		Type:       []string{"string"},
		SchemaType: []string{"string"},
		Compile: func(schema any, _ map[string]any, _ *skemac.SchemaCxt) (rt.CheckFunc, error) {
			p := schema.(string)
			return func(data any, _ rt.DataCxt) error {
				if strings.HasPrefix(data.(string), p) {
					return nil
				}
				return rt.ErrFailed
			}, nil
		},
	}
}

func noEmptyValuesKeyword() skemac.KeywordDefinition {
	return skemac.KeywordDefinition{
		Keyword: "noEmptyValues",
		Type:    []string{"object"},
		Validate: func(_, data any, _ map[string]any, _ rt.DataCxt) error {
			m := data.(map[string]any)
			keys := make([]string, 0, len(m))
			for k := range m {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			var iss skemac.Issues
			for _, k := range keys {
				if m[k] == "" {
					iss = append(iss, skemac.Issue{InstancePath: "/" + k, Params: map[string]any{"key": k}})
				}
			}
			if len(iss) > 0 {
				return iss
			}
			return nil
		},
	}
}

func trimKeyword() skemac.KeywordDefinition {
	return skemac.KeywordDefinition{
		Keyword:   "trim",
		Type:      []string{"string"},
		Before:    "maxLength",
		Modifying: true,
		Validate: func(_, data any, _ map[string]any, dc rt.DataCxt) error {
			return rt.Set(dc.ParentData, dc.ParentKey, strings.TrimSpace(data.(string)))
		},
	}
}

func customCompiler(t *testing.T, opts skemac.Options) *skemac.Compiler {
	t.Helper()
	c := skemac.New(opts)
	for _, def := range []skemac.KeywordDefinition{evenKeyword(), rangeKeyword(), prefixKeyword(), noEmptyValuesKeyword(), trimKeyword()} {
		if err := c.AddKeyword(def); err != nil {
			t.Fatalf("add %s: %v", def.Keyword, err)
		}
	}
	return c
}

func TestKeyword_Code(t *testing.T) {
	v, err := customCompiler(t, skemac.DefaultOptions()).Compile(mustJSON(t, `{"even":true}`))
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	res := run(t, v, `3`)
	if res.Valid || res.Errors[0].Message != "must be even" || res.Errors[0].SchemaPath != "#/even" {
		t.Fatalf("unexpected errors %v", res.Errors)
	}
	if !run(t, v, `4`).Valid || !run(t, v, `"x"`).Valid {
		t.Fatalf("4 and non-numbers pass")
	}
}

func TestKeyword_CodeSeesSubschemaErrors(t *testing.T) {
	var seen error
	c := skemac.New(skemac.DefaultOptions())
	err := c.AddKeyword(skemac.KeywordDefinition{
		Keyword:    "wrap",
		SchemaType: []string{"object", "boolean"},
		Code: func(k *skemac.KeywordCxt) error {
			valid := k.Gen.Name("valid")
			if _, err := k.Subschema(skemac.SubschemaArgs{}, valid); err != nil {
				seen = err
				return err
			}
			k.Ok(valid)
			return nil
		},
	})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	_, err = c.Compile(mustJSON(t, `{"wrap":{"minLength":-1}}`))
	var ce *skemac.CompileError
	if !errors.As(seen, &ce) || ce.SchemaPath != "#/wrap" || ce.Keyword != "minLength" {
		t.Fatalf("Code got %v", seen)
	}
	if err != seen {
		t.Fatalf("compile error %v, want the nested one unchanged", err)
	}

	v, err := c.Compile(mustJSON(t, `{"wrap":{"minLength":2}}`))
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	res := run(t, v, `"a"`)
	if res.Valid || res.Errors[0].SchemaPath != "#/wrap/minLength" {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestKeyword_Macro(t *testing.T) {
	c := customCompiler(t, skemac.DefaultOptions())
	v, err := c.Compile(mustJSON(t, `{"range":[1,3]}`))
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	res := run(t, v, `5`)
	if diff := cmp.Diff([]string{" maximum", " range"}, keywords(res.Errors)); diff != "" {
		t.Fatalf("errors mismatch (-want +got):\n%s", diff)
	}
	if got := res.Errors[0].SchemaPath; got != "#/range/maximum" {
		t.Fatalf("expanded schema path = %q", got)
	}
	if got := res.Errors[1].Message; got != `must pass "range" keyword validation` {
		t.Fatalf("message = %q", got)
	}
	if !run(t, v, `2`).Valid {
		t.Fatalf("2 is in range")
	}
	if _, err := c.Compile(mustJSON(t, `{"range":[1]}`)); err == nil {
		t.Fatalf("macro errors must fail compilation")
	}
}

func TestKeyword_Compile(t *testing.T) {
	v, err := customCompiler(t, skemac.DefaultOptions()).Compile(mustJSON(t, `{"properties":{"id":{"prefix":"usr-"}}}`))
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	res := run(t, v, `{"id":"grp-1"}`)
	if diff := cmp.Diff([]string{"/id prefix"}, keywords(res.Errors)); diff != "" {
		t.Fatalf("errors mismatch (-want +got):\n%s", diff)
	}
	if !run(t, v, `{"id":"usr-1"}`).Valid {
		t.Fatalf("usr-1 has the prefix")
	}
}

func TestKeyword_ValidateRelativePaths(t *testing.T) {
	opts := skemac.DefaultOptions()
	opts.AllErrors = true
	v, err := customCompiler(t, opts).Compile(mustJSON(t, `{"properties":{"o":{"noEmptyValues":true}}}`))
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	res := run(t, v, `{"o":{"x":"","y":"a","z":""}}`)
	if diff := cmp.Diff([]string{"/o/x noEmptyValues", "/o/z noEmptyValues"}, keywords(res.Errors)); diff != "" {
		t.Fatalf("errors mismatch (-want +got):\n%s", diff)
	}
	if got := res.Errors[0].SchemaPath; got != "#/properties/o/noEmptyValues" {
		t.Fatalf("schema path = %q", got)
	}
}

func TestKeyword_ModifyingBefore(t *testing.T) {
	v, err := customCompiler(t, skemac.DefaultOptions()).Compile(mustJSON(t, `{"properties":{"s":{"type":"string","trim":true,"maxLength":2}}}`))
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	var inst any = map[string]any{"s": "  ab  "}
	res, err := v.Run(context.Background(), &inst)
	if err != nil || !res.Valid {
		t.Fatalf("trimmed value must fit: %v %v", res.Errors, err)
	}
	if diff := cmp.Diff(map[string]any{"s": "ab"}, inst); diff != "" {
		t.Fatalf("instance mismatch (-want +got):\n%s", diff)
	}
}

func TestKeyword_HostErrorAborts(t *testing.T) {
	c := skemac.New(skemac.DefaultOptions())
	boom := errors.New("backend down")
	err := c.AddKeyword(skemac.KeywordDefinition{
		Keyword:  "lookup",
		Validate: func(any, any, map[string]any, rt.DataCxt) error { return boom },
	})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	v, err := c.Compile(mustJSON(t, `{"lookup":true}`))
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if err := v.Validate(context.Background(), 1); !errors.Is(err, boom) {
		t.Fatalf("want host error, got %v", err)
	}
}

func TestKeyword_Async(t *testing.T) {
	c := skemac.New(skemac.DefaultOptions())
	err := c.AddKeyword(skemac.KeywordDefinition{
		Keyword: "known",
		Async:   true,
		Validate: func(schema, data any, _ map[string]any, dc rt.DataCxt) error {
			if err := dc.Ctx.Err(); err != nil {
				return err
			}
			if data == "alice" {
				return nil
			}
			return rt.ErrFailed
		},
	})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := c.Compile(mustJSON(t, `{"known":true}`)); !errors.Is(err, skemac.ErrAsyncKeyword) {
		t.Fatalf("want ErrAsyncKeyword, got %v", err)
	}
	v, err := c.Compile(mustJSON(t, `{"$async":true,"properties":{"user":{"known":true}}}`))
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	ctx := context.Background()
	if err := v.Validate(ctx, map[string]any{"user": "alice"}); err != nil {
		t.Fatalf("alice is known: %v", err)
	}
	var ve *skemac.ValidationError
	if err := v.Validate(ctx, map[string]any{"user": "bob"}); !errors.As(err, &ve) || ve.Errors[0].InstancePath != "/user" {
		t.Fatalf("want ValidationError at /user, got %v", err)
	}
	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if err := v.Validate(cancelled, map[string]any{"user": "alice"}); !errors.Is(err, context.Canceled) {
		t.Fatalf("want context.Canceled, got %v", err)
	}
}

func TestKeyword_MetaSchema(t *testing.T) {
	c := skemac.New(skemac.DefaultOptions())
	err := c.AddKeyword(skemac.KeywordDefinition{
		Keyword:    "step",
		Type:       []string{"number"},
		MetaSchema: mustJSON(t, `{"type":"integer","minimum":1}`),
		Code: func(k *skemac.KeywordCxt) error {
			k.Fail(codegen.Not(codegen.F("multipleOf", k.Data, k.SchemaCode)))
			return nil
		},
	})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := c.Compile(mustJSON(t, `{"step":0}`)); err == nil {
		t.Fatalf("keyword value must be checked against its metaschema")
	}
	v, err := c.Compile(mustJSON(t, `{"step":5}`))
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if !v.IsValid(context.Background(), 10) || v.IsValid(context.Background(), 7) {
		t.Fatalf("step not applied")
	}
}

func TestKeyword_DataValue(t *testing.T) {
	opts := skemac.DefaultOptions()
	opts.Data = true
	c := skemac.New(opts)
	err := c.AddKeyword(skemac.KeywordDefinition{
		Keyword: "sameAs",
		Data:    true,
		Validate: func(schema, data any, _ map[string]any, _ rt.DataCxt) error {
			if rt.Equal(schema, data) {
				return nil
			}
			return rt.ErrFailed
		},
	})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	v, err := c.Compile(mustJSON(t, `{"properties":{"confirm":{"sameAs":{"$data":"1/password"}}}}`))
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if !run(t, v, `{"password":"p","confirm":"p"}`).Valid || run(t, v, `{"password":"p","confirm":"q"}`).Valid {
		t.Fatalf("$data keyword value not resolved")
	}
}
