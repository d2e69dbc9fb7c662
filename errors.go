package skemac

import (
	"errors"
	"fmt"
	"strings"

	"github.com/reoring/skemac/codegen"
	"github.com/reoring/skemac/rt"
)

// Issue is a single keyword error: instance path, schema path, keyword,
// parameters and message.
type Issue = rt.Issue

// Issues is a collection of keyword errors that implements error.
type Issues = rt.Issues

// ValidationError is returned by validators of "$async" schemas instead of
// a boolean result. Errors holds the collected issues.
type ValidationError = rt.ValidationError

// ProgramStructureError reports an internal code generation defect.
type ProgramStructureError = codegen.ProgramStructureError

// AsIssues extracts Issues from an error using errors.As internally.
func AsIssues(err error) (Issues, bool) { return rt.AsIssues(err) }

var (
	// ErrFrozen is returned when the vocabulary or the format table is
	// changed after the first compilation that used it.
	ErrFrozen = errors.New("skemac: registry is frozen after first compile")
	// ErrKeywordExists is returned when a keyword is registered twice.
	ErrKeywordExists = errors.New("skemac: keyword already defined")
	// ErrNotExportable is returned by Export when a hoisted value has no
	// serializable form (custom keyword callables, custom formats).
	ErrNotExportable = errors.New("skemac: validator is not exportable")
	// ErrTooDeep is returned when a schema nests deeper than Options.MaxDepth.
	ErrTooDeep = errors.New("skemac: schema nesting too deep")
	// ErrSchemaExists is returned by AddSchema for a duplicate identifier.
	ErrSchemaExists = errors.New("skemac: schema with the same id already exists")
	// ErrAmbiguousRef is returned when one identifier resolves to two
	// different schemas.
	ErrAmbiguousRef = errors.New("skemac: reference resolves to more than one schema")
	// ErrAsyncKeyword is returned when an async keyword is used in a schema
	// without "$async": true.
	ErrAsyncKeyword = errors.New("skemac: async keyword in sync schema")
	// ErrNoLoader is returned by CompileAsync when a reference is missing and
	// Options.Loader is nil.
	ErrNoLoader = errors.New("skemac: Options.Loader is not set")
)

// CompileError reports an invalid schema or keyword value.
type CompileError struct {
	SchemaPath string // URI fragment of the offending location, e.g. "#/properties/a".
	Keyword    string
	Err        error
}

func (e *CompileError) Error() string {
	b := &strings.Builder{}
	b.WriteString("skemac: compile")
	if e.SchemaPath != "" {
		fmt.Fprintf(b, " at %s", e.SchemaPath)
	}
	if e.Keyword != "" {
		fmt.Fprintf(b, " (%s)", e.Keyword)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *CompileError) Unwrap() error { return e.Err }

// MissingReferenceError reports a $ref that could not be resolved.
// MissingSchema is the absolute document identifier a Loader should fetch.
type MissingReferenceError struct {
	Ref           string // reference as written
	MissingRef    string // absolute reference
	MissingSchema string // absolute reference without fragment
}

func (e *MissingReferenceError) Error() string {
	return fmt.Sprintf("skemac: can't resolve reference %s (missing schema %s)", e.Ref, e.MissingSchema)
}

func compileErrorf(schemaPath, keyword, format string, args ...any) *CompileError {
	return &CompileError{SchemaPath: schemaPath, Keyword: keyword, Err: fmt.Errorf(format, args...)}
}
