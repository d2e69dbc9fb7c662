package skemac_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/reoring/skemac"
)

func exportLoad(t *testing.T, c *skemac.Compiler, schema string) (*skemac.Validator, *skemac.Validator) {
	t.Helper()
	v, err := c.Compile(mustJSON(t, schema))
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	b, err := c.Export(v)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	l, err := skemac.Load(b)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	return v, l
}

func TestExport_LoadedValidatorAgrees(t *testing.T) {
	opts := skemac.DefaultOptions()
	opts.AllErrors = true
	schema := `{
		"$defs":{"tag":{"type":"string","pattern":"^[a-z]+$"}},
		"type":"object",
		"properties":{
			"tags":{"type":"array","items":{"$ref":"#/$defs/tag"},"uniqueItems":true},
			"when":{"format":"date"},
			"kind":{"enum":["a","b"]},
			"child":{"$ref":"#"}
		},
		"required":["kind"],
		"unevaluatedProperties":false}`
	v, l := exportLoad(t, skemac.New(opts), schema)
	for _, d := range []string{
		`{"kind":"a","tags":["x","y"],"when":"2024-01-01"}`,
		`{"kind":"c","tags":["x","x","Y"],"when":"2024-13-01","extra":1}`,
		`{"kind":"b","child":{"kind":"z","child":{}}}`,
	} {
		want := run(t, v, d)
		got := run(t, l, d)
		if diff := cmp.Diff(want, got); diff != "" {
			t.Fatalf("%s: loaded result differs (-compiled +loaded):\n%s", d, diff)
		}
	}
}

func TestExport_CustomCodeKeyword(t *testing.T) {
	c := customCompiler(t, skemac.DefaultOptions())
	_, l := exportLoad(t, c, `{"even":true}`)
	ctx := context.Background()
	if !l.IsValid(ctx, 2) || l.IsValid(ctx, 3) {
		t.Fatalf("generated keyword code must survive export")
	}
}

func TestExport_NotExportable(t *testing.T) {
	c := customCompiler(t, skemac.DefaultOptions())
	if err := c.AddFormat("odd", skemac.Format{Type: "number", Check: func(v any) bool { return true }}); err != nil {
		t.Fatalf("add format: %v", err)
	}
	for _, sch := range []string{`{"prefix":"a"}`, `{"format":"odd"}`} {
		v, err := c.Compile(mustJSON(t, sch))
		if err != nil {
			t.Fatalf("compile %s: %v", sch, err)
		}
		if _, err := c.Export(v); !errors.Is(err, skemac.ErrNotExportable) {
			t.Fatalf("%s: want ErrNotExportable, got %v", sch, err)
		}
	}
}

func TestExport_Async(t *testing.T) {
	_, l := exportLoad(t, skemac.New(skemac.DefaultOptions()), `{"$async":true,"type":"string"}`)
	if !l.Async() {
		t.Fatalf("async flag lost")
	}
	var ve *skemac.ValidationError
	if err := l.Validate(context.Background(), 1); !errors.As(err, &ve) {
		t.Fatalf("want ValidationError, got %v", err)
	}
}

func TestExport_ForeignValidator(t *testing.T) {
	v := compile(t, skemac.DefaultOptions(), `{"type":"string"}`)
	if _, err := skemac.New(skemac.DefaultOptions()).Export(v); err == nil {
		t.Fatalf("exporting a validator of another compiler must fail")
	}
}

func TestLoad_RejectsUnknownFormat(t *testing.T) {
	if _, err := skemac.Load([]byte(`{"format":"other","version":1}`)); err == nil {
		t.Fatalf("unknown program format must be rejected")
	}
}

func TestListing(t *testing.T) {
	c := skemac.New(skemac.DefaultOptions())
	v, err := c.Compile(mustJSON(t, `{"properties":{"a":{"pattern":"^x"}}}`))
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	text, err := c.Listing(v)
	if err != nil {
		t.Fatalf("listing: %v", err)
	}
	for _, want := range []string{"function validate", "regexp(\"^x\")"} {
		if !strings.Contains(text, want) {
			t.Fatalf("listing lacks %q:\n%s", want, text)
		}
	}
}
