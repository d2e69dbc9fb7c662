package rt

import (
	"errors"
	"fmt"
	"strings"
)

// Issue is a single keyword error produced by a validator.
type Issue struct {
	InstancePath string         `json:"instancePath"`     // JSON Pointer into the instance ("" is the root).
	SchemaPath   string         `json:"schemaPath"`       // URI fragment of the failing keyword (e.g. "#/properties/a/type").
	Keyword      string         `json:"keyword"`          // Keyword that failed.
	Params       map[string]any `json:"params,omitempty"` // Keyword-specific parameters (limit, missingProperty, ...).
	Message      string         `json:"message"`
}

// Issues is a collection of keyword errors that implements error.
type Issues []Issue

// Error summarizes the first few issues.
func (iss Issues) Error() string {
	if len(iss) == 0 {
		return ""
	}
	const maxShown = 3
	b := &strings.Builder{}
	n := len(iss)
	lim := n
	if lim > maxShown {
		lim = maxShown
	}
	for i := 0; i < lim; i++ {
		if i > 0 {
			b.WriteString("; ")
		}
		it := iss[i]
		// e.g. minimum at /a: must be >= 5
		fmt.Fprintf(b, "%s at %s", it.Keyword, pathOrRoot(it.InstancePath))
		if it.Message != "" {
			b.WriteString(": ")
			b.WriteString(it.Message)
		}
	}
	if n > lim {
		fmt.Fprintf(b, "; ... (total %d)", n)
	}
	return b.String()
}

func pathOrRoot(p string) string {
	if p == "" {
		return "/"
	}
	return p
}

// ValidationError is raised by asynchronous validators instead of returning
// false. Errors holds every issue collected up to the failure.
type ValidationError struct {
	Errors Issues
}

func (e *ValidationError) Error() string { return "validation failed: " + e.Errors.Error() }

// Unwrap exposes the issues to errors.As.
func (e *ValidationError) Unwrap() error { return e.Errors }

// AsIssues extracts Issues from an error using errors.As internally.
func AsIssues(err error) (Issues, bool) {
	if err == nil {
		return nil, false
	}
	var iss Issues
	if errors.As(err, &iss) {
		return iss, true
	}
	return nil, false
}

// FormatMessage fills {name} placeholders of tmpl from params. Unknown
// placeholders are left as is.
func FormatMessage(tmpl string, params map[string]any) string {
	if len(params) == 0 || !strings.Contains(tmpl, "{") {
		return tmpl
	}
	var b strings.Builder
	for {
		i := strings.IndexByte(tmpl, '{')
		if i < 0 {
			break
		}
		j := strings.IndexByte(tmpl[i:], '}')
		if j < 0 {
			break
		}
		b.WriteString(tmpl[:i])
		key := tmpl[i+1 : i+j]
		if v, ok := params[key]; ok {
			b.WriteString(String(v))
		} else {
			b.WriteString(tmpl[i : i+j+1])
		}
		tmpl = tmpl[i+j+1:]
	}
	b.WriteString(tmpl)
	return b.String()
}
