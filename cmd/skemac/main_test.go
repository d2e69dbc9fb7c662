package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	j "github.com/goccy/go-json"

	"github.com/reoring/skemac"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

const personSchema = `{
  "$id": "https://example.com/person.json",
  "type": "object",
  "properties": {
    "name": {"type": "string"},
    "address": {"$ref": "address.json"}
  },
  "required": ["name"]
}`

const addressSchema = `{
  "$id": "https://example.com/address.json",
  "type": "object",
  "properties": {"zip": {"type": "string", "pattern": "^[0-9]{5}$"}},
  "required": ["zip"]
}`

func TestCompile_WithRefs(t *testing.T) {
	dir := t.TempDir()
	s := writeFile(t, dir, "person.json", personSchema)
	r := writeFile(t, dir, "address.json", addressSchema)

	out, err := execute(t, "compile", "-s", s, "-r", r)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if !strings.Contains(out, ": ok") {
		t.Fatalf("unexpected output %q", out)
	}
	if _, err := execute(t, "compile", "-s", s); err == nil {
		t.Fatalf("missing reference should fail")
	}
}

func TestCompile_Listing(t *testing.T) {
	dir := t.TempDir()
	s := writeFile(t, dir, "s.json", `{"type":"string","pattern":"^a"}`)
	out, err := execute(t, "compile", "-s", s, "--ir")
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if !strings.Contains(out, "function validate") {
		t.Fatalf("listing lacks a validator function:\n%s", out)
	}
}

func TestValidate_JSONLines(t *testing.T) {
	dir := t.TempDir()
	s := writeFile(t, dir, "person.json", personSchema)
	r := writeFile(t, dir, "address.json", addressSchema)
	good := writeFile(t, dir, "good.json", `{"name":"a","address":{"zip":"12345"}}`)
	bad := writeFile(t, dir, "bad.yaml", "name: 1\naddress:\n  zip: abc\n")

	out, err := execute(t, "validate", "-s", s, "-r", r, "-d", good, "-d", bad, "--all-errors")
	if !errors.Is(err, errInvalid) {
		t.Fatalf("want errInvalid, got %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 {
		t.Fatalf("want one line per file, got %q", out)
	}
	var first, second jsonReport
	if err := j.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatalf("line 1: %v", err)
	}
	if err := j.Unmarshal([]byte(lines[1]), &second); err != nil {
		t.Fatalf("line 2: %v", err)
	}
	if !first.Valid || second.Valid {
		t.Fatalf("unexpected validity: %+v %+v", first, second)
	}
	var got []string
	for _, e := range second.Errors {
		got = append(got, e.InstancePath+" "+e.Keyword)
	}
	want := "/address/zip pattern,/name type"
	if strings.Join(got, ",") != want {
		t.Fatalf("errors = %v, want %s", got, want)
	}
}

func TestValidate_NDJSON(t *testing.T) {
	dir := t.TempDir()
	s := writeFile(t, dir, "s.json", `{"required":["id"]}`)
	d := writeFile(t, dir, "events.ndjson", "{\"id\":1}\n{\"name\":\"x\"}\n{\"id\":3}\n")

	out, err := execute(t, "validate", "-s", s, "-d", d)
	if !errors.Is(err, errInvalid) {
		t.Fatalf("want errInvalid, got %v", err)
	}
	var files []string
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		var r jsonReport
		if err := j.Unmarshal([]byte(line), &r); err != nil {
			t.Fatalf("line %q: %v", line, err)
		}
		if r.Valid == strings.HasSuffix(r.File, ":2") {
			t.Fatalf("only the second document is invalid: %+v", r)
		}
		files = append(files, r.File)
	}
	if len(files) != 3 || files[0] != d+":1" {
		t.Fatalf("unexpected reports %v", files)
	}
}

func TestValidate_DefaultsAndCoerce(t *testing.T) {
	dir := t.TempDir()
	s := writeFile(t, dir, "s.json", `{"type":"object","properties":{"n":{"type":"integer"},"m":{"default":1}}}`)
	d := writeFile(t, dir, "d.json", `{"n":"5"}`)
	if _, err := execute(t, "validate", "-s", s, "-d", d); !errors.Is(err, errInvalid) {
		t.Fatalf("string n should fail without coercion, got %v", err)
	}
	if _, err := execute(t, "validate", "-s", s, "-d", d, "--coerce", "--defaults"); err != nil {
		t.Fatalf("coerced validation: %v", err)
	}
}

func TestValidate_DuplicateKeyRejected(t *testing.T) {
	dir := t.TempDir()
	s := writeFile(t, dir, "s.json", `{"type":"object"}`)
	d := writeFile(t, dir, "d.json", `{"a":1,"a":2}`)
	out, err := execute(t, "validate", "-s", s, "-d", d)
	if !errors.Is(err, errInvalid) {
		t.Fatalf("want errInvalid, got %v", err)
	}
	if !strings.Contains(out, skemac.KeywordDuplicateKey) {
		t.Fatalf("output lacks duplicate key issue: %s", out)
	}
}

func TestExport_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	s := writeFile(t, dir, "s.yaml", "type: object\nproperties:\n  a:\n    type: integer\n    minimum: 3\n")
	o := filepath.Join(dir, "out.json")
	if _, err := execute(t, "export", "-s", s, "-o", o); err != nil {
		t.Fatalf("export: %v", err)
	}
	b, err := os.ReadFile(o)
	if err != nil {
		t.Fatalf("read export: %v", err)
	}
	v, err := skemac.Load(b)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	ctx := context.Background()
	if !v.IsValid(ctx, map[string]any{"a": 3}) || v.IsValid(ctx, map[string]any{"a": 2}) {
		t.Fatalf("loaded validator disagrees with schema")
	}
}
