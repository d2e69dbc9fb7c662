package skemac

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"

	"gopkg.in/yaml.v3"

	eng "github.com/reoring/skemac/internal/engine"
	"github.com/reoring/skemac/internal/stream"
)

// DuplicatePolicy selects how repeated object keys in JSON input are handled.
type DuplicatePolicy int

const (
	// DuplicateError rejects the document at the first repeated key.
	DuplicateError DuplicatePolicy = iota
	// DuplicateWarn keeps the last value and reports each repetition.
	DuplicateWarn
	// DuplicateIgnore keeps the last value silently.
	DuplicateIgnore
)

// DecodeOptions bounds instance decoding.
type DecodeOptions struct {
	Duplicates DuplicatePolicy
	MaxDepth   int   // 0 disables the nesting limit
	MaxBytes   int64 // 0 disables the size limit
}

// DefaultDecodeOptions rejects duplicate keys and nests at most 256 levels.
func DefaultDecodeOptions() DecodeOptions {
	return DecodeOptions{Duplicates: DuplicateError, MaxDepth: 256}
}

// Issue keywords for decode failures.
const (
	KeywordDuplicateKey = "duplicate_key"
	KeywordMaxDepth     = "max_depth"
	KeywordTruncated    = "truncated"
	KeywordParseError   = "parse_error"
)

// DecodeJSON decodes one JSON document into the JSON value model (numbers as
// json.Number). Limit violations are returned as Issues; warnings lists the
// duplicate keys seen under DuplicateWarn.
func DecodeJSON(data []byte, opts DecodeOptions) (v any, warnings Issues, err error) {
	v, err = eng.DecodeBytes(data, opts.MaxBytes, opts.enforce(&warnings))
	if err != nil {
		var ie eng.IssueError
		if errors.As(err, &ie) {
			return nil, warnings, Issues{issueFromEngine(ie.SimpleIssue)}
		}
		return nil, warnings, Issues{{Keyword: KeywordParseError, Message: err.Error()}}
	}
	return v, warnings, nil
}

// enforce maps the options onto the engine; warnings collects duplicate keys
// under DuplicateWarn.
func (o DecodeOptions) enforce(warnings *Issues) eng.EnforceOptions {
	eo := eng.EnforceOptions{MaxDepth: o.MaxDepth}
	switch o.Duplicates {
	case DuplicateWarn:
		eo.OnDuplicate = eng.DupWarn
		eo.IssueSink = func(si eng.SimpleIssue) { *warnings = append(*warnings, issueFromEngine(si)) }
	case DuplicateIgnore:
		eo.OnDuplicate = eng.DupIgnore
	default:
		eo.OnDuplicate = eng.DupError
	}
	return eo
}

func issueFromEngine(si eng.SimpleIssue) Issue {
	return Issue{InstancePath: si.Path, Keyword: si.Code, Message: si.Message}
}

// ValidateJSON decodes data under opts and validates the result. Decode
// failures come back as an invalid Result with the decode issue and a nil
// error; duplicate-key warnings are prepended to the result's errors only
// when the instance is otherwise invalid.
func (v *Validator) ValidateJSON(ctx context.Context, data []byte, opts DecodeOptions) (Result, any, error) {
	inst, warnings, err := DecodeJSON(data, opts)
	if err != nil {
		iss, _ := AsIssues(err)
		return Result{Errors: append(warnings, iss...)}, nil, nil
	}
	res, err := v.Run(ctx, &inst)
	if !res.Valid && len(warnings) > 0 {
		res.Errors = append(warnings, res.Errors...)
	}
	return res, inst, err
}

// ValidateStream validates each document of a stream of concatenated or
// newline-delimited JSON values, in order. fn receives the document index,
// its result and the decoded instance; an error from fn stops the stream.
//
// Duplicate keys and MaxDepth are enforced per document and reported in that
// document's result, after which the stream continues. MaxBytes bounds the
// whole stream: once exceeded, ValidateStream returns a truncated Issues
// error. Syntax errors end the stream with a parse_error Issues error.
func (v *Validator) ValidateStream(ctx context.Context, r io.Reader, opts DecodeOptions, fn func(i int, res Result, inst any) error) error {
	var br *boundedReader
	if opts.MaxBytes > 0 {
		br = &boundedReader{r: r, left: opts.MaxBytes}
		r = br
	}
	var warnings Issues
	wrap := func(doc eng.TokenSource) eng.TokenSource {
		warnings = nil
		return eng.WrapWithEnforcement(doc, opts.enforce(&warnings))
	}
	var stop error
	err := stream.Each(eng.NewReader(r), wrap, func(i int, inst any, derr error) error {
		stop = v.streamDoc(ctx, i, inst, derr, warnings, fn)
		return stop
	})
	switch {
	case err == nil:
		return nil
	case br != nil && br.exceeded:
		return Issues{{Keyword: KeywordTruncated, Message: "max bytes exceeded"}}
	case stop != nil:
		return err
	}
	return Issues{{Keyword: KeywordParseError, Message: err.Error()}}
}

func (v *Validator) streamDoc(ctx context.Context, i int, inst any, derr error, warnings Issues, fn func(int, Result, any) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if derr != nil {
		var ie eng.IssueError
		errors.As(derr, &ie)
		return fn(i, Result{Errors: append(warnings, issueFromEngine(ie.SimpleIssue))}, nil)
	}
	res, err := v.Run(ctx, &inst)
	if err != nil {
		return err
	}
	if !res.Valid && len(warnings) > 0 {
		res.Errors = append(warnings, res.Errors...)
	}
	return fn(i, res, inst)
}

// boundedReader fails once more than left bytes have been read.
type boundedReader struct {
	r        io.Reader
	left     int64
	exceeded bool
}

func (b *boundedReader) Read(p []byte) (int, error) {
	if b.exceeded {
		return 0, errStreamTooLarge
	}
	if int64(len(p)) > b.left+1 {
		p = p[:b.left+1]
	}
	n, err := b.r.Read(p)
	b.left -= int64(n)
	if b.left < 0 {
		b.exceeded = true
		return 0, errStreamTooLarge
	}
	return n, err
}

var errStreamTooLarge = errors.New("skemac: stream exceeds max bytes")

// DuplicateKeyError reports a duplicate key found in a YAML mapping with both
// the first occurrence position and the duplicate occurrence position.
type DuplicateKeyError struct {
	Key       string
	FirstLine int
	FirstCol  int
	Line      int
	Col       int
}

func (e *DuplicateKeyError) Error() string {
	return fmt.Sprintf("duplicate YAML key %q at %d:%d (first at %d:%d)", e.Key, e.Line, e.Col, e.FirstLine, e.FirstCol)
}

// ParseYAML decodes the first document of a YAML stream into the JSON value
// model. Duplicate mapping keys are rejected.
func ParseYAML(data []byte) (any, error) {
	docs, err := ParseYAMLAll(data)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, io.EOF
	}
	return docs[0], nil
}

// ParseYAMLAll decodes every document of a YAML stream. Empty documents are
// skipped.
func ParseYAMLAll(data []byte) ([]any, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	var out []any
	for {
		var root yaml.Node
		if err := dec.Decode(&root); err != nil {
			if errors.Is(err, io.EOF) {
				return out, nil
			}
			return nil, err
		}
		if len(root.Content) == 0 {
			continue
		}
		v, err := yamlValue(root.Content[0])
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
}

func yamlValue(n *yaml.Node) (any, error) {
	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return nil, nil
		}
		return yamlValue(n.Content[0])
	case yaml.AliasNode:
		return yamlValue(n.Alias)
	case yaml.MappingNode:
		m := make(map[string]any, len(n.Content)/2)
		first := make(map[string][2]int, len(n.Content)/2)
		for i := 0; i+1 < len(n.Content); i += 2 {
			k, val := n.Content[i], n.Content[i+1]
			if pos, dup := first[k.Value]; dup {
				return nil, &DuplicateKeyError{Key: k.Value, FirstLine: pos[0], FirstCol: pos[1], Line: k.Line, Col: k.Column}
			}
			first[k.Value] = [2]int{k.Line, k.Column}
			v, err := yamlValue(val)
			if err != nil {
				return nil, err
			}
			m[k.Value] = v
		}
		return m, nil
	case yaml.SequenceNode:
		arr := make([]any, 0, len(n.Content))
		for _, c := range n.Content {
			v, err := yamlValue(c)
			if err != nil {
				return nil, err
			}
			arr = append(arr, v)
		}
		return arr, nil
	case yaml.ScalarNode:
		switch n.ShortTag() {
		case "!!null":
			return nil, nil
		case "!!bool":
			var b bool
			if err := n.Decode(&b); err != nil {
				return nil, err
			}
			return b, nil
		case "!!int":
			var i int64
			if err := n.Decode(&i); err != nil {
				return json.Number(n.Value), nil
			}
			return json.Number(strconv.FormatInt(i, 10)), nil
		case "!!float":
			var f float64
			if err := n.Decode(&f); err != nil {
				return nil, err
			}
			return f, nil
		}
		return n.Value, nil
	}
	return nil, nil
}
