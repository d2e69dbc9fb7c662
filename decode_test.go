package skemac_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/reoring/skemac"
)

func TestValidateJSON(t *testing.T) {
	v := compile(t, skemac.DefaultOptions(), `{"type":"object","properties":{"n":{"type":"integer"}}}`)
	ctx := context.Background()

	res, inst, err := v.ValidateJSON(ctx, []byte(`{"n":12345678901234567890}`), skemac.DefaultDecodeOptions())
	if err != nil || !res.Valid {
		t.Fatalf("big integer must validate: %v %v", res.Errors, err)
	}
	if diff := cmp.Diff(map[string]any{"n": json.Number("12345678901234567890")}, inst); diff != "" {
		t.Fatalf("instance mismatch (-want +got):\n%s", diff)
	}

	res, _, err = v.ValidateJSON(ctx, []byte(`{"n":1,"n":2}`), skemac.DefaultDecodeOptions())
	if err != nil || res.Valid {
		t.Fatalf("duplicate key must fail: %v", err)
	}
	if diff := cmp.Diff([]string{"/n " + skemac.KeywordDuplicateKey}, keywords(res.Errors)); diff != "" {
		t.Fatalf("errors mismatch (-want +got):\n%s", diff)
	}
}

func TestValidateJSON_DuplicateWarnings(t *testing.T) {
	v := compile(t, skemac.DefaultOptions(), `{"properties":{"n":{"type":"integer"}}}`)
	opts := skemac.DefaultDecodeOptions()
	opts.Duplicates = skemac.DuplicateWarn
	ctx := context.Background()

	res, inst, err := v.ValidateJSON(ctx, []byte(`{"n":"x","n":2}`), opts)
	if err != nil || !res.Valid {
		t.Fatalf("last value wins and is valid: %v %v", res.Errors, err)
	}
	if diff := cmp.Diff(map[string]any{"n": json.Number("2")}, inst); diff != "" {
		t.Fatalf("instance mismatch (-want +got):\n%s", diff)
	}

	res, _, _ = v.ValidateJSON(ctx, []byte(`{"n":2,"n":"x"}`), opts)
	if diff := cmp.Diff([]string{"/n " + skemac.KeywordDuplicateKey, "/n type"}, keywords(res.Errors)); diff != "" {
		t.Fatalf("errors mismatch (-want +got):\n%s", diff)
	}
}

func TestValidateJSON_Limits(t *testing.T) {
	v := compile(t, skemac.DefaultOptions(), `true`)
	ctx := context.Background()
	cases := []struct {
		data    string
		opts    skemac.DecodeOptions
		keyword string
	}{
		{`[[[1]]]`, skemac.DecodeOptions{MaxDepth: 2}, skemac.KeywordMaxDepth},
		{`{"a":"0123456789"}`, skemac.DecodeOptions{MaxBytes: 8}, skemac.KeywordTruncated},
		{`{"a":`, skemac.DefaultDecodeOptions(), skemac.KeywordParseError},
		{`1 2`, skemac.DefaultDecodeOptions(), skemac.KeywordParseError},
	}
	for _, c := range cases {
		res, inst, err := v.ValidateJSON(ctx, []byte(c.data), c.opts)
		if err != nil || res.Valid || inst != nil {
			t.Fatalf("%s: want a decode failure, got valid=%v err=%v", c.data, res.Valid, err)
		}
		if got := res.Errors[0].Keyword; got != c.keyword {
			t.Fatalf("%s: keyword = %s, want %s", c.data, got, c.keyword)
		}
	}
}

func TestValidateStream(t *testing.T) {
	v := compile(t, skemac.DefaultOptions(), `{"type":"object","required":["id"]}`)
	in := "{\"id\":1}\n{}\n{\"id\":2,\"id\":3}\n{\"id\":4}\n"
	var got []string
	err := v.ValidateStream(context.Background(), strings.NewReader(in), skemac.DefaultDecodeOptions(), func(i int, res skemac.Result, _ any) error {
		line := "valid"
		if !res.Valid {
			line = strings.Join(keywords(res.Errors), ",")
		}
		got = append(got, line)
		return nil
	})
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	want := []string{"valid", " required", "/id " + skemac.KeywordDuplicateKey, "valid"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("results mismatch (-want +got):\n%s", diff)
	}
}

func TestValidateStream_Errors(t *testing.T) {
	v := compile(t, skemac.DefaultOptions(), `true`)
	ctx := context.Background()
	nop := func(int, skemac.Result, any) error { return nil }

	err := v.ValidateStream(ctx, strings.NewReader("{} {\"a\":"), skemac.DefaultDecodeOptions(), nop)
	if iss, ok := skemac.AsIssues(err); !ok || iss[0].Keyword != skemac.KeywordParseError {
		t.Fatalf("want parse_error, got %v", err)
	}

	err = v.ValidateStream(ctx, strings.NewReader(strings.Repeat("[1] ", 100)), skemac.DecodeOptions{MaxBytes: 64}, nop)
	if iss, ok := skemac.AsIssues(err); !ok || iss[0].Keyword != skemac.KeywordTruncated {
		t.Fatalf("want truncated, got %v", err)
	}

	stop := errors.New("stop")
	err = v.ValidateStream(ctx, strings.NewReader("1 2"), skemac.DefaultDecodeOptions(), func(int, skemac.Result, any) error { return stop })
	if !errors.Is(err, stop) {
		t.Fatalf("want callback error, got %v", err)
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if err := v.ValidateStream(cancelled, strings.NewReader("1"), skemac.DefaultDecodeOptions(), nop); !errors.Is(err, context.Canceled) {
		t.Fatalf("want context.Canceled, got %v", err)
	}
}

func TestParseYAML(t *testing.T) {
	v, err := skemac.ParseYAML([]byte("a: 1\nb: 1.5\nc: [true, null, x]\nd: &r {k: v}\ne: *r\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	want := map[string]any{
		"a": json.Number("1"),
		"b": 1.5,
		"c": []any{true, nil, "x"},
		"d": map[string]any{"k": "v"},
		"e": map[string]any{"k": "v"},
	}
	if diff := cmp.Diff(want, v); diff != "" {
		t.Fatalf("value mismatch (-want +got):\n%s", diff)
	}

	_, err = skemac.ParseYAML([]byte("a: 1\na: 2\n"))
	var dup *skemac.DuplicateKeyError
	if !errors.As(err, &dup) || dup.Key != "a" || dup.FirstLine != 1 || dup.Line != 2 {
		t.Fatalf("want DuplicateKeyError for a, got %v", err)
	}

	if _, err := skemac.ParseYAML([]byte("")); !errors.Is(err, io.EOF) {
		t.Fatalf("empty stream: want io.EOF, got %v", err)
	}
}

func TestParseYAMLAll(t *testing.T) {
	docs, err := skemac.ParseYAMLAll([]byte("a: 1\n---\nb: 2\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("want 2 documents, got %v", docs)
	}
}
