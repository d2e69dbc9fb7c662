// Package stream splits a token stream of concatenated or newline-delimited
// JSON values into one document per top-level value.
package stream

import (
	"errors"
	"io"

	eng "github.com/reoring/skemac/internal/engine"
)

// DocSource returns a preloaded first token and then streams the rest of the
// same top-level value from the underlying source. After the value ends it
// returns io.EOF.
type DocSource struct {
	inner       eng.TokenSource
	first       eng.Token
	depth       int
	done        bool
	firstServed bool
}

// NewDocSource constructs a document view that starts with first.
func NewDocSource(inner eng.TokenSource, first eng.Token) *DocSource {
	return &DocSource{inner: inner, first: first}
}

func (d *DocSource) NextToken() (eng.Token, error) {
	if d.done {
		return eng.Token{}, io.EOF
	}
	tok := d.first
	if d.firstServed {
		var err error
		tok, err = d.inner.NextToken()
		if err != nil {
			if err == io.EOF {
				return eng.Token{}, io.ErrUnexpectedEOF
			}
			return eng.Token{}, err
		}
	}
	d.firstServed = true
	switch tok.Kind {
	case eng.KindBeginObject, eng.KindBeginArray:
		d.depth++
	case eng.KindEndObject, eng.KindEndArray:
		d.depth--
	}
	if d.depth <= 0 && tok.Kind != eng.KindKey {
		d.done = true
	}
	return tok, nil
}

// Drain consumes what is left of the document.
func (d *DocSource) Drain() error {
	for {
		if _, err := d.NextToken(); err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
	}
}

// Each decodes every top-level value of src in order and calls fn with its
// index and value. wrap, when non-nil, is applied to each document view so
// per-document limits start fresh.
//
// When wrap rejects a document with an engine.IssueError the rest of that
// document is skipped and fn receives the error instead of a value; any other
// decode error, or an error returned by fn, stops the iteration.
func Each(src eng.TokenSource, wrap func(eng.TokenSource) eng.TokenSource, fn func(i int, v any, err error) error) error {
	for i := 0; ; i++ {
		first, err := src.NextToken()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		doc := NewDocSource(src, first)
		var view eng.TokenSource = doc
		if wrap != nil {
			view = wrap(doc)
		}
		v, err := eng.Decode(view)
		if err != nil {
			var ie eng.IssueError
			if !errors.As(err, &ie) {
				return err
			}
			if derr := doc.Drain(); derr != nil {
				return derr
			}
			if err := fn(i, nil, ie); err != nil {
				return err
			}
			continue
		}
		if err := fn(i, v, nil); err != nil {
			return err
		}
	}
}
