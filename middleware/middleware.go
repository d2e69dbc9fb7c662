// Package middleware validates JSON request bodies against compiled schemas.
package middleware

import (
	"bytes"
	"context"
	"io"
	"net/http"

	j "github.com/goccy/go-json"

	"github.com/reoring/skemac"
)

type ctxKeyInstance struct{}

// instance boxes the value so a JSON null body is still found.
type instance struct{ v any }

// ContextWithInstance attaches a validated instance to the context.
func ContextWithInstance(ctx context.Context, inst any) context.Context {
	return context.WithValue(ctx, ctxKeyInstance{}, instance{inst})
}

// InstanceFromContext retrieves the instance stored by Validate.
func InstanceFromContext(ctx context.Context) (any, bool) {
	b, ok := ctx.Value(ctxKeyInstance{}).(instance)
	return b.v, ok
}

// Options configures request validation.
type Options struct {
	Decode skemac.DecodeOptions
	// Status is written for invalid bodies. Zero means 422.
	Status int
}

// DefaultOptions rejects duplicate keys and bodies larger than 1 MiB.
func DefaultOptions() Options {
	d := skemac.DefaultDecodeOptions()
	d.MaxBytes = 1 << 20
	return Options{Decode: d, Status: http.StatusUnprocessableEntity}
}

// ErrorPayload shapes Issues for JSON responses.
func ErrorPayload(issues skemac.Issues) map[string]any {
	if issues == nil {
		issues = skemac.Issues{}
	}
	return map[string]any{"issues": issues}
}

// Check reads and validates a request body. On success it returns the
// instance and replaces r.Body with the bytes read.
func Check(r *http.Request, v *skemac.Validator, opt Options) (skemac.Result, any, error) {
	body := r.Body
	if opt.Decode.MaxBytes > 0 {
		body = io.NopCloser(io.LimitReader(r.Body, opt.Decode.MaxBytes+1))
	}
	b, err := io.ReadAll(body)
	if err != nil {
		return skemac.Result{}, nil, err
	}
	r.Body = io.NopCloser(bytes.NewReader(b))
	return v.ValidateJSON(r.Context(), b, opt.Decode)
}

// WriteIssues writes the issues as a JSON error payload.
func WriteIssues(w http.ResponseWriter, status int, issues skemac.Issues) {
	b, err := j.Marshal(ErrorPayload(issues))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(b)
}

// Validate returns net/http middleware that rejects request bodies failing v
// and stores the decoded instance in the request context for next.
func Validate(v *skemac.Validator, opt Options) func(http.Handler) http.Handler {
	if opt.Status == 0 {
		opt.Status = http.StatusUnprocessableEntity
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			res, inst, err := Check(r, v, opt)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			if !res.Valid {
				WriteIssues(w, opt.Status, res.Errors)
				return
			}
			next.ServeHTTP(w, r.WithContext(ContextWithInstance(r.Context(), inst)))
		})
	}
}
