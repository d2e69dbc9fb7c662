package stream

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	eng "github.com/reoring/skemac/internal/engine"
)

func collect(t *testing.T, in string, wrap func(eng.TokenSource) eng.TokenSource) ([]any, []error, error) {
	t.Helper()
	var vals []any
	var errs []error
	err := Each(eng.NewBytes([]byte(in)), wrap, func(i int, v any, err error) error {
		if i != len(vals) {
			t.Fatalf("index %d out of order", i)
		}
		vals = append(vals, v)
		errs = append(errs, err)
		return nil
	})
	return vals, errs, err
}

func TestEach_Documents(t *testing.T) {
	vals, _, err := collect(t, "{\"a\":[1,{}]}\n[]\n\"s\" 2\nnull\n", nil)
	if err != nil {
		t.Fatalf("each: %v", err)
	}
	want := []any{
		map[string]any{"a": []any{json.Number("1"), map[string]any{}}},
		[]any{},
		"s",
		json.Number("2"),
		nil,
	}
	if diff := cmp.Diff(want, vals); diff != "" {
		t.Fatalf("documents mismatch (-want +got):\n%s", diff)
	}
}

func TestEach_Empty(t *testing.T) {
	vals, _, err := collect(t, "  \n", nil)
	if err != nil || len(vals) != 0 {
		t.Fatalf("want no documents, got %v %v", vals, err)
	}
}

func TestEach_IssueSkipsDocument(t *testing.T) {
	wrap := func(src eng.TokenSource) eng.TokenSource {
		return eng.WrapWithEnforcement(src, eng.EnforceOptions{OnDuplicate: eng.DupError, MaxDepth: 2})
	}
	vals, errs, err := collect(t, `{"k":1,"k":{"x":[0]}} [[[1]]] {"ok":true}`, wrap)
	if err != nil {
		t.Fatalf("each: %v", err)
	}
	if len(vals) != 3 || vals[2] == nil {
		t.Fatalf("want three documents with the last decoded, got %v", vals)
	}
	var codes []string
	for _, e := range errs[:2] {
		var ie eng.IssueError
		if !errors.As(e, &ie) {
			t.Fatalf("want IssueError, got %v", e)
		}
		codes = append(codes, ie.Code+" "+ie.Path)
	}
	if diff := cmp.Diff([]string{"duplicate_key /k", "max_depth /0/0"}, codes); diff != "" {
		t.Fatalf("issues mismatch (-want +got):\n%s", diff)
	}
}

func TestEach_TruncatedDocument(t *testing.T) {
	vals, _, err := collect(t, "{\"a\":1}\n{\"a\":", nil)
	if err == nil || len(vals) != 1 {
		t.Fatalf("want an error after the first document, got %v %v", vals, err)
	}
}

func TestEach_CallbackErrorStops(t *testing.T) {
	stop := errors.New("stop")
	n := 0
	err := Each(eng.NewBytes([]byte("1 2 3")), nil, func(int, any, error) error {
		n++
		return stop
	})
	if !errors.Is(err, stop) || n != 1 {
		t.Fatalf("want stop after one document, got %v after %d", err, n)
	}
}
