package kubeopenapi_test

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/reoring/skemac"
	"github.com/reoring/skemac/kubeopenapi"
)

func decode(t *testing.T, js string) any {
	t.Helper()
	v, _, err := skemac.DecodeJSON([]byte(js), skemac.DefaultDecodeOptions())
	if err != nil {
		t.Fatalf("decode %s: %v", js, err)
	}
	return v
}

func run(t *testing.T, v *skemac.Validator, js string) skemac.Result {
	t.Helper()
	inst := decode(t, js)
	res, err := v.Run(context.Background(), &inst)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	return res
}

func paths(iss skemac.Issues) []string {
	out := make([]string, 0, len(iss))
	for _, it := range iss {
		out = append(out, it.InstancePath)
	}
	return out
}

func TestImport_Minimal_ObjectRequired(t *testing.T) {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"name": map[string]any{"type": "string"},
		},
		"required":             []any{"name"},
		"additionalProperties": false,
	}
	v, diag, err := kubeopenapi.Import(schema, kubeopenapi.Options{})
	if err != nil {
		t.Fatalf("import err: %v", err)
	}
	if diag.HasWarnings() {
		t.Logf("warnings: %v", diag.Warnings())
	}
	if res := run(t, v, `{"name":"ok"}`); !res.Valid {
		t.Fatalf("expected valid, got %v", res.Errors)
	}
	res := run(t, v, `{"name":"ok","zzz":1}`)
	if res.Valid || res.Errors[0].Keyword != "additionalProperties" {
		t.Fatalf("expected additionalProperties failure, got %+v", res)
	}
}

func TestImport_StrictUnknown_PreserveUnknownFields(t *testing.T) {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"spec": map[string]any{
				"type":       "object",
				"properties": map[string]any{"name": map[string]any{"type": "string"}},
			},
			"status": map[string]any{
				"type":                                 "object",
				"x-kubernetes-preserve-unknown-fields": true,
				"properties":                           map[string]any{"phase": map[string]any{"type": "string"}},
			},
		},
	}
	v, _, err := kubeopenapi.Import(schema, kubeopenapi.Options{Unknown: kubeopenapi.UnknownStrict})
	if err != nil {
		t.Fatalf("import err: %v", err)
	}
	if res := run(t, v, `{"spec":{"name":"a"},"status":{"phase":"Up","extra":{"x":1}}}`); !res.Valid {
		t.Fatalf("preserved fields should pass: %v", res.Errors)
	}
	res := run(t, v, `{"spec":{"name":"a","zzz":1}}`)
	if res.Valid {
		t.Fatalf("unknown field in spec should fail")
	}
	if diff := cmp.Diff([]string{"/spec"}, paths(res.Errors)); diff != "" {
		t.Fatalf("paths mismatch (-want +got):\n%s", diff)
	}
	if got := res.Errors[0].Params["unevaluatedProperty"]; got != "zzz" {
		t.Fatalf("unevaluatedProperty = %v", got)
	}
}

func TestImport_PruneUnknown_AllowsExtraFields(t *testing.T) {
	schema := map[string]any{
		"type":       "object",
		"properties": map[string]any{"name": map[string]any{"type": "string"}},
	}
	v, _, err := kubeopenapi.Import(schema, kubeopenapi.Options{})
	if err != nil {
		t.Fatalf("import err: %v", err)
	}
	if res := run(t, v, `{"name":"a","other":true}`); !res.Valid {
		t.Fatalf("expected valid, got %v", res.Errors)
	}
}

func TestImport_IntOrString(t *testing.T) {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"port": map[string]any{"x-kubernetes-int-or-string": true},
			"vals": map[string]any{
				"type":  "array",
				"items": map[string]any{"x-kubernetes-int-or-string": true},
			},
		},
	}
	v, _, err := kubeopenapi.Import(schema, kubeopenapi.Options{})
	if err != nil {
		t.Fatalf("import err: %v", err)
	}
	for _, js := range []string{`{"port":8080}`, `{"port":"http"}`, `{"vals":["1",2,"3"]}`} {
		if res := run(t, v, js); !res.Valid {
			t.Fatalf("%s: expected valid, got %v", js, res.Errors)
		}
	}
	for _, js := range []string{`{"port":1.5}`, `{"port":true}`, `{"vals":[null]}`} {
		if res := run(t, v, js); res.Valid {
			t.Fatalf("%s: expected invalid", js)
		}
	}
}

func TestImport_ListType_Set(t *testing.T) {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"tags": map[string]any{
				"type":                   "array",
				"items":                  map[string]any{"type": "string"},
				"x-kubernetes-list-type": "set",
			},
		},
	}
	v, _, err := kubeopenapi.Import(schema, kubeopenapi.Options{})
	if err != nil {
		t.Fatalf("import err: %v", err)
	}
	if res := run(t, v, `{"tags":["a","b"]}`); !res.Valid {
		t.Fatalf("expected valid, got %v", res.Errors)
	}
	res := run(t, v, `{"tags":["a","b","a"]}`)
	if res.Valid {
		t.Fatalf("expected duplicate error for set")
	}
	got := res.Errors[0]
	if got.InstancePath != "/tags/2" || got.Keyword != kubeopenapi.KeywordListType {
		t.Fatalf("unexpected issue: %+v", got)
	}
	if diff := cmp.Diff(map[string]any{"i": 0, "j": 2}, got.Params); diff != "" {
		t.Fatalf("params mismatch (-want +got):\n%s", diff)
	}
}

func TestImport_ListType_Map(t *testing.T) {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"selectors": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"name": map[string]any{"type": "string"},
						"ns":   map[string]any{"type": "string"},
					},
				},
				"x-kubernetes-list-type":     "map",
				"x-kubernetes-list-map-keys": []any{"name", "ns"},
			},
		},
	}
	opts := skemac.DefaultOptions()
	opts.AllErrors = true
	v, _, err := kubeopenapi.Import(schema, kubeopenapi.Options{Compiler: &opts})
	if err != nil {
		t.Fatalf("import err: %v", err)
	}
	if res := run(t, v, `{"selectors":[{"name":"a","ns":"n1"},{"name":"a","ns":"n2"}]}`); !res.Valid {
		t.Fatalf("distinct keys should pass: %v", res.Errors)
	}
	res := run(t, v, `{"selectors":[{"name":"a","ns":"n1"},{"name":"b"},{"name":"a","ns":"n1"}]}`)
	want := []string{"/selectors/1/ns", "/selectors/2"}
	if diff := cmp.Diff(want, paths(res.Errors)); diff != "" {
		t.Fatalf("paths mismatch (-want +got):\n%s", diff)
	}
}

func TestImport_ListType_MapWithoutKeys_Fails(t *testing.T) {
	schema := map[string]any{
		"type":                   "array",
		"x-kubernetes-list-type": "map",
	}
	if _, _, err := kubeopenapi.Import(schema, kubeopenapi.Options{}); err == nil {
		t.Fatalf("expected compile error for list-type map without keys")
	}
}

func TestImport_EmbeddedResource(t *testing.T) {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"res": map[string]any{
				"type":                           "object",
				"x-kubernetes-embedded-resource": true,
			},
			"items": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type":                           "object",
					"x-kubernetes-embedded-resource": true,
				},
			},
		},
	}
	v, _, err := kubeopenapi.Import(schema, kubeopenapi.Options{EnableEmbeddedChecks: true})
	if err != nil {
		t.Fatalf("import err: %v", err)
	}
	good := `{"res":{"apiVersion":"v1","kind":"Pod","metadata":{}},"items":[{"apiVersion":"v1","kind":"Pod","metadata":{}}]}`
	if res := run(t, v, good); !res.Valid {
		t.Fatalf("expected minimal embedded resource to pass: %v", res.Errors)
	}
	res := run(t, v, `{"res":{"kind":"Pod","metadata":{}}}`)
	if diff := cmp.Diff([]string{"/res/apiVersion"}, paths(res.Errors)); diff != "" {
		t.Fatalf("paths mismatch (-want +got):\n%s", diff)
	}
	res = run(t, v, `{"items":[{"apiVersion":"v1","kind":"Pod","metadata":"x"}]}`)
	if diff := cmp.Diff([]string{"/items/0/metadata"}, paths(res.Errors)); diff != "" {
		t.Fatalf("paths mismatch (-want +got):\n%s", diff)
	}

	off, _, err := kubeopenapi.Import(schema, kubeopenapi.Options{})
	if err != nil {
		t.Fatalf("import err: %v", err)
	}
	if res := run(t, off, `{"res":{}}`); !res.Valid {
		t.Fatalf("embedded checks disabled should pass: %v", res.Errors)
	}
}

func TestImport_Nullable(t *testing.T) {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"note": map[string]any{"type": "string", "nullable": true},
			"mode": map[string]any{"type": "string", "enum": []any{"a", "b"}, "nullable": true},
			"name": map[string]any{"type": "string"},
		},
	}
	v, _, err := kubeopenapi.Import(schema, kubeopenapi.Options{})
	if err != nil {
		t.Fatalf("import err: %v", err)
	}
	if res := run(t, v, `{"note":null,"mode":null}`); !res.Valid {
		t.Fatalf("nullable fields should accept null: %v", res.Errors)
	}
	if res := run(t, v, `{"name":null}`); res.Valid {
		t.Fatalf("non-nullable field should reject null")
	}
}

func TestImport_Formats(t *testing.T) {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"n":    map[string]any{"type": "integer", "format": "int32"},
			"blob": map[string]any{"type": "string", "format": "byte"},
		},
	}
	v, _, err := kubeopenapi.Import(schema, kubeopenapi.Options{})
	if err != nil {
		t.Fatalf("import err: %v", err)
	}
	if res := run(t, v, `{"n":2147483647,"blob":"aGVsbG8="}`); !res.Valid {
		t.Fatalf("expected valid, got %v", res.Errors)
	}
	if res := run(t, v, `{"n":2147483648}`); res.Valid {
		t.Fatalf("int32 overflow should fail")
	}
	if res := run(t, v, `{"blob":"not base64!"}`); res.Valid {
		t.Fatalf("invalid base64 should fail")
	}
}

func TestImport_ValidationsWarn(t *testing.T) {
	schema := map[string]any{
		"type":                     "object",
		"x-kubernetes-validations": []any{map[string]any{"rule": "self.a > 0"}},
	}
	_, diag, err := kubeopenapi.Import(schema, kubeopenapi.Options{})
	if err != nil {
		t.Fatalf("import err: %v", err)
	}
	if !diag.HasWarnings() {
		t.Fatalf("expected a warning for unevaluated CEL rules")
	}
}

func TestImport_JSONBytes(t *testing.T) {
	v, _, err := kubeopenapi.Import([]byte(`{"openAPIV3Schema":{"type":"object","required":["a"]}}`), kubeopenapi.Options{})
	if err != nil {
		t.Fatalf("import err: %v", err)
	}
	if res := run(t, v, `{}`); res.Valid {
		t.Fatalf("missing a should fail")
	}
}

func TestRegister_OnSharedCompiler(t *testing.T) {
	c := skemac.New(skemac.DefaultOptions())
	if err := kubeopenapi.Register(c, kubeopenapi.Options{}); err != nil {
		t.Fatalf("register: %v", err)
	}
	v, err := c.Compile(map[string]any{"type": "array", "x-kubernetes-list-type": "set"})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if v.IsValid(context.Background(), []any{"a", "a"}) {
		t.Fatalf("duplicate set item should fail")
	}
	if err := kubeopenapi.Register(c, kubeopenapi.Options{}); err == nil {
		t.Fatalf("register after compile should fail")
	}
}
