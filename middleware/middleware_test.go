package middleware

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	j "github.com/goccy/go-json"
	"github.com/google/go-cmp/cmp"

	"github.com/reoring/skemac"
)

func userValidator(t *testing.T) *skemac.Validator {
	t.Helper()
	schema, _, err := skemac.DecodeJSON([]byte(`{"type":"object","properties":{"age":{"type":"integer","minimum":0}},"required":["age"]}`), skemac.DefaultDecodeOptions())
	if err != nil {
		t.Fatalf("decode schema: %v", err)
	}
	v, err := skemac.New(skemac.DefaultOptions()).Compile(schema)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	return v
}

type payload struct {
	Issues []struct {
		InstancePath string `json:"instancePath"`
		Keyword      string `json:"keyword"`
	} `json:"issues"`
}

func serve(t *testing.T, h http.Handler, body string) (*httptest.ResponseRecorder, payload) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/users", strings.NewReader(body)))
	var p payload
	if rec.Code != http.StatusOK {
		if err := j.Unmarshal(rec.Body.Bytes(), &p); err != nil {
			t.Fatalf("payload %q: %v", rec.Body.String(), err)
		}
	}
	return rec, p
}

func TestValidate(t *testing.T) {
	var gotInst any
	var gotBody string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotInst, _ = InstanceFromContext(r.Context())
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.WriteHeader(http.StatusOK)
	})
	h := Validate(userValidator(t), DefaultOptions())(next)

	rec, _ := serve(t, h, `{"age":3}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if diff := cmp.Diff(map[string]any{"age": json.Number("3")}, gotInst); diff != "" {
		t.Fatalf("instance mismatch (-want +got):\n%s", diff)
	}
	if gotBody != `{"age":3}` {
		t.Fatalf("body not restored: %q", gotBody)
	}

	rec, p := serve(t, h, `{"age":-1}`)
	if rec.Code != http.StatusUnprocessableEntity || rec.Header().Get("Content-Type") != "application/json" {
		t.Fatalf("status = %d", rec.Code)
	}
	if len(p.Issues) != 1 || p.Issues[0].InstancePath != "/age" || p.Issues[0].Keyword != "minimum" {
		t.Fatalf("unexpected issues %+v", p.Issues)
	}
}

func TestValidate_DecodeFailures(t *testing.T) {
	opt := DefaultOptions()
	opt.Decode.MaxBytes = 16
	opt.Status = http.StatusBadRequest
	called := false
	h := Validate(userValidator(t), opt)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true }))

	cases := map[string]string{
		`{"a":1,"a":2}`:                    skemac.KeywordDuplicateKey,
		`{"age":`:                          skemac.KeywordParseError,
		`{"age":1,"name":"0123456789abc"}`: skemac.KeywordTruncated,
	}
	for body, kw := range cases {
		rec, p := serve(t, h, body)
		if rec.Code != http.StatusBadRequest || len(p.Issues) == 0 || p.Issues[0].Keyword != kw {
			t.Fatalf("%s: status %d issues %+v, want %s", body, rec.Code, p.Issues, kw)
		}
	}
	if called {
		t.Fatalf("next must not run for rejected bodies")
	}
}

func TestInstanceFromContext_Null(t *testing.T) {
	ctx := ContextWithInstance(context.Background(), nil)
	if v, ok := InstanceFromContext(ctx); !ok || v != nil {
		t.Fatalf("null instance must be found")
	}
	if _, ok := InstanceFromContext(context.Background()); ok {
		t.Fatalf("empty context has no instance")
	}
}
