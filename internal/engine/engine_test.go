package engine

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestDecode_NumbersStayExact(t *testing.T) {
	v, err := Decode(NewBytes([]byte(`{"a":[1,2.5,{"b":null}],"c":true,"d":"x","n":12345678901234567890}`)))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := map[string]any{
		"a": []any{json.Number("1"), json.Number("2.5"), map[string]any{"b": nil}},
		"c": true,
		"d": "x",
		"n": json.Number("12345678901234567890"),
	}
	if diff := cmp.Diff(want, v); diff != "" {
		t.Fatalf("decoded value mismatch (-want +got):\n%s", diff)
	}
}

func TestDecode_EmptyArrayIsNotNil(t *testing.T) {
	v, err := Decode(NewBytes([]byte(`[]`)))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	arr, ok := v.([]any)
	if !ok || arr == nil {
		t.Fatalf("want empty non-nil array, got %#v", v)
	}
}

func TestDecode_TrailingData(t *testing.T) {
	if _, err := Decode(NewBytes([]byte(`{} {}`))); err == nil {
		t.Fatalf("expected trailing data error")
	}
}

func TestEnforce_DuplicateError(t *testing.T) {
	_, err := DecodeBytes([]byte(`{"x":{"a":1,"a":2}}`), 0, EnforceOptions{OnDuplicate: DupError})
	var ie IssueError
	if !errors.As(err, &ie) {
		t.Fatalf("want IssueError, got %v", err)
	}
	if ie.Code != CodeDuplicateKey || ie.Path != "/x/a" {
		t.Fatalf("unexpected issue: %+v", ie.SimpleIssue)
	}
}

func TestEnforce_DuplicateWarnKeepsLast(t *testing.T) {
	var got []SimpleIssue
	v, err := DecodeBytes([]byte(`{"a/b":1,"a/b":2}`), 0, EnforceOptions{
		OnDuplicate: DupWarn,
		IssueSink:   func(si SimpleIssue) { got = append(got, si) },
	})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if m := v.(map[string]any); m["a/b"] != json.Number("2") {
		t.Fatalf("want last value, got %v", m["a/b"])
	}
	want := []SimpleIssue{{Code: CodeDuplicateKey, Path: "/a~1b", Message: "key 'a/b' duplicated"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("issues mismatch (-want +got):\n%s", diff)
	}
}

func TestEnforce_MaxDepth(t *testing.T) {
	_, err := DecodeBytes([]byte(`{"a":[[1]]}`), 0, EnforceOptions{MaxDepth: 2})
	var ie IssueError
	if !errors.As(err, &ie) || ie.Code != CodeMaxDepth {
		t.Fatalf("want max depth issue, got %v", err)
	}
	if ie.Path != "/a/0" {
		t.Fatalf("path = %q", ie.Path)
	}
	if _, err := DecodeBytes([]byte(`{"a":[1]}`), 0, EnforceOptions{MaxDepth: 2}); err != nil {
		t.Fatalf("depth 2 should pass: %v", err)
	}
}

func TestEnforce_MaxBytes(t *testing.T) {
	_, err := DecodeBytes([]byte(`[1,2,3]`), 4, EnforceOptions{})
	var ie IssueError
	if !errors.As(err, &ie) || ie.Code != CodeTruncated {
		t.Fatalf("want truncated issue, got %v", err)
	}
}

func TestEnforce_ArrayIndexPaths(t *testing.T) {
	_, err := DecodeBytes([]byte(`[{"k":1},{"k":1,"k":2}]`), 0, EnforceOptions{})
	var ie IssueError
	if !errors.As(err, &ie) || ie.Path != "/1/k" {
		t.Fatalf("want duplicate at /1/k, got %v", err)
	}
}
