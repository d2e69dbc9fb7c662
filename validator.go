package skemac

import (
	"context"
	"errors"

	"github.com/reoring/skemac/rt"
)

// Validator is a compiled schema. It is safe for concurrent use; with
// coercion or defaults enabled it modifies the validated instance in place.
type Validator struct {
	c     *Compiler // nil for loaded validators
	env   *schemaEnv
	fn    rt.Callable
	name  string
	async bool
}

// Result is the outcome of one validation.
type Result struct {
	Valid     bool
	Errors    Issues
	Evaluated Evaluated
}

// Evaluated summarizes which properties and items of the root instance
// some keyword validated. It is empty unless Options.Unevaluated is set.
type Evaluated struct {
	Props    []string
	AllProps bool
	Items    int
	AllItems bool
}

// Async reports whether the schema is "$async"; failures of async
// validators are returned as *ValidationError.
func (v *Validator) Async() bool { return v.async }

// Run validates *instance. Coercion and defaults may replace *instance.
// The returned error is a host failure (a keyword callable error, a
// cancelled context) or, for async validators, the *ValidationError of an
// invalid instance; in both cases the result is still filled in.
func (v *Validator) Run(ctx context.Context, instance *any) (Result, error) {
	st := rt.NewState(ctx)
	holder := []any{*instance}
	cx := rt.Root(st, holder)
	out, err := v.fn.Call([]any{holder[0], cx})
	*instance = holder[0]
	res := Result{Errors: st.Errors, Evaluated: evaluatedOf(cx)}
	if err != nil {
		var ve *ValidationError
		if errors.As(err, &ve) {
			res.Errors = ve.Errors
		}
		return res, err
	}
	res.Valid = out == true
	return res, nil
}

func evaluatedOf(cx *rt.Cxt) Evaluated {
	var ev Evaluated
	ev.Props, ev.AllProps = rt.PropsList(cx.Props)
	if cx.Items == true {
		ev.AllItems = true
	} else if n, ok := rt.Int(cx.Items); ok {
		ev.Items = n
	}
	return ev
}

// Validate checks instance and returns nil, Issues for an invalid instance
// (or *ValidationError when the schema is async), or a host error.
func (v *Validator) Validate(ctx context.Context, instance any) error {
	res, err := v.Run(ctx, &instance)
	if err != nil {
		return err
	}
	if !res.Valid {
		if len(res.Errors) == 0 {
			return Issues{{Keyword: "false schema", Message: "validation failed"}}
		}
		return res.Errors
	}
	return nil
}

// IsValid reports whether instance is valid. Host errors count as invalid.
func (v *Validator) IsValid(ctx context.Context, instance any) bool {
	res, err := v.Run(ctx, &instance)
	return err == nil && res.Valid
}
