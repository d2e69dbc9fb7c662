package rt

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/go-openapi/jsonpointer"
)

// Callable is a host function value invoked by generated code.
type Callable interface {
	Call(args []any) (any, error)
}

// Func adapts a plain function to Callable.
type Func func(args []any) (any, error)

func (f Func) Call(args []any) (any, error) { return f(args) }

// DataCxt is handed to keyword callables alongside the data they check.
type DataCxt struct {
	Ctx          context.Context
	InstancePath string
	ParentData   any
	ParentKey    any
	RootData     any
}

// ValidateFunc is the protocol of declarative keyword callables: nil passes,
// ErrFailed or Issues fail, any other error aborts validation. Instance paths
// of returned issues are relative to the keyword data.
type ValidateFunc func(schema, data any, parentSchema map[string]any, dc DataCxt) error

// CheckFunc is returned by compile-shaped keywords; same protocol as
// ValidateFunc with the schema already bound.
type CheckFunc func(data any, dc DataCxt) error

// ErrFailed reports a plain keyword failure without custom issues.
var ErrFailed = errors.New("keyword validation failed")

// Format checks values of one format.
type Format struct {
	Name  string
	Type  string // JSON type the format applies to; other types pass.
	Check func(v any) bool
}

// Builtin is a named operation available to generated code.
type Builtin struct {
	Fn   func(args []any) (any, error)
	Pure bool
}

// Builtins is the closed set of operations generated code may call.
var Builtins map[string]Builtin

// IsPure reports whether the named builtin has no side effects.
func IsPure(name string) bool {
	b, ok := Builtins[name]
	return ok && b.Pure
}

func pure(fn func(a []any) any) Builtin {
	return Builtin{Fn: func(a []any) (any, error) { return fn(a), nil }, Pure: true}
}

func effect(fn func(a []any) (any, error)) Builtin { return Builtin{Fn: fn} }

func init() {
	Builtins = map[string]Builtin{
		"typeOf":     pure(func(a []any) any { return TypeOf(a[0]) }),
		"isType":     pure(func(a []any) any { return IsType(a[0], a[1].(string)) }),
		"strlen":     pure(func(a []any) any { return StrLen(a[0]) }),
		"count":      pure(func(a []any) any { return Count(a[0]) }),
		"has":        pure(func(a []any) any { return Has(a[0], a[1]) }),
		"eq":         pure(func(a []any) any { return Equal(a[0], a[1]) }),
		"multipleOf": pure(func(a []any) any { return MultipleOf(a[0], a[1]) }),
		"duplicates": pure(func(a []any) any { return Duplicates(a[0]) }),
		"str":        pure(func(a []any) any { return String(a[0]) }),
		"clone":      pure(func(a []any) any { return Clone(a[0]) }),
		"escPath":    pure(func(a []any) any { return jsonpointer.Escape(String(a[0])) }),
		"coerce": pure(func(a []any) any {
			ts, _ := a[1].([]any)
			return Coerce(a[0], ts, a[2] == true)
		}),
		"obj": pure(func(a []any) any {
			m := make(map[string]any, len(a)/2)
			for i := 0; i+1 < len(a); i += 2 {
				m[String(a[i])] = a[i+1]
			}
			return m
		}),
		"arr": pure(func(a []any) any { return append([]any{}, a...) }),
		"propSet": pure(func(a []any) any {
			m := make(map[string]bool, len(a))
			for _, k := range a {
				m[String(k)] = true
			}
			return m
		}),
		"mergeProps": pure(func(a []any) any { return MergeProps(a[0], a[1]) }),
		"evaluated": pure(func(a []any) any {
			if a[0] == true {
				return true
			}
			m, _ := a[0].(map[string]bool)
			return m[String(a[1])]
		}),
		"itemsFrom": pure(func(a []any) any {
			if n, ok := Int(a[0]); ok {
				return n
			}
			return 0
		}),
		"mergeItems": pure(func(a []any) any { return MergeItems(a[0], a[1]) }),
		"match": {Fn: func(a []any) (any, error) {
			re, ok := a[0].(*regexp.Regexp)
			if !ok {
				return nil, fmt.Errorf("rt: match on %T", a[0])
			}
			s, _ := a[1].(string)
			return re.MatchString(s), nil
		}, Pure: true},
		"regexp": {Fn: func(a []any) (any, error) {
			s, _ := a[0].(string)
			return regexp.Compile(s)
		}, Pure: true},
		"format": {Fn: func(a []any) (any, error) {
			name := String(a[0])
			f, ok := LookupFormat(name)
			if !ok {
				return nil, fmt.Errorf("rt: unknown format %q", name)
			}
			return f, nil
		}, Pure: true},
		"checkFormat": {Fn: func(a []any) (any, error) {
			f, ok := a[0].(*Format)
			if !ok {
				return nil, fmt.Errorf("rt: checkFormat on %T", a[0])
			}
			if f.Type != "" && !IsType(a[1], f.Type) {
				return true, nil
			}
			return f.Check(a[1]), nil
		}, Pure: true},
		"pointer": {Fn: func(a []any) (any, error) {
			return resolvePointer(a[0], String(a[1])), nil
		}, Pure: true},
		"instancePath": pure(func(a []any) any { return cxt(a[0]).InstancePath }),
		"parentData":   pure(func(a []any) any { return cxt(a[0]).ParentData }),
		"parentKey":    pure(func(a []any) any { return cxt(a[0]).ParentKey }),
		"rootData":     pure(func(a []any) any { return cxt(a[0]).RootData }),
		"evalProps":    pure(func(a []any) any { return cxt(a[0]).Props }),
		"evalItems":    pure(func(a []any) any { return cxt(a[0]).Items }),
		"errs":         pure(func(a []any) any { return len(cxt(a[0]).State.Errors) }),
		"child": pure(func(a []any) any {
			return cxt(a[0]).Child(String(a[1]), a[2], a[3])
		}),
		"issue": pure(func(a []any) any {
			params, _ := a[3].(map[string]any)
			return Issue{InstancePath: String(a[0]), SchemaPath: String(a[1]), Keyword: String(a[2]), Params: params, Message: FormatMessage(String(a[4]), params)}
		}),
		"isValidationError": pure(func(a []any) any {
			var ve *ValidationError
			err, _ := a[0].(error)
			return errors.As(err, &ve)
		}),
		"addProp": effect(func(a []any) (any, error) {
			if a[0] == true {
				return true, nil
			}
			m, ok := a[0].(map[string]bool)
			if !ok {
				m = make(map[string]bool)
			}
			m[String(a[1])] = true
			return m, nil
		}),
		"push": effect(func(a []any) (any, error) {
			st := cxt(a[0]).State
			st.Errors = append(st.Errors, a[1].(Issue))
			return nil, nil
		}),
		"pushAll": effect(func(a []any) (any, error) {
			st := cxt(a[0]).State
			var ve *ValidationError
			if err, _ := a[1].(error); errors.As(err, &ve) {
				st.Errors = append(st.Errors, ve.Errors...)
			}
			return nil, nil
		}),
		"trunc": effect(func(a []any) (any, error) {
			st := cxt(a[0]).State
			if n, ok := Int(a[1]); ok && n < len(st.Errors) {
				st.Errors = st.Errors[:n]
			}
			return nil, nil
		}),
		"validationError": pure(func(a []any) any {
			st := cxt(a[0]).State
			n, _ := Int(a[1])
			if n > len(st.Errors) {
				n = len(st.Errors)
			}
			errs := append(Issues(nil), st.Errors[n:]...)
			st.Errors = st.Errors[:n]
			return &ValidationError{Errors: errs}
		}),
		"evalSet": effect(func(a []any) (any, error) {
			c := cxt(a[0])
			c.Props, c.Items = a[1], a[2]
			return nil, nil
		}),
		"enter": effect(func(a []any) (any, error) { return cxt(a[0]).Enter(String(a[1])), nil }),
		"exit": effect(func(a []any) (any, error) {
			cxt(a[0]).Exit(String(a[1]))
			return nil, nil
		}),
		"kwValidate": effect(func(a []any) (any, error) {
			fn, ok := a[0].(ValidateFunc)
			if !ok {
				return nil, fmt.Errorf("rt: kwValidate on %T", a[0])
			}
			parent, _ := a[3].(map[string]any)
			c, dc, tmpl := keywordCall(a[4:])
			return report(c, tmpl, fn(a[1], a[2], parent, dc))
		}),
		"kwCheck": effect(func(a []any) (any, error) {
			fn, ok := a[0].(CheckFunc)
			if !ok {
				return nil, fmt.Errorf("rt: kwCheck on %T", a[0])
			}
			c, dc, tmpl := keywordCall(a[2:])
			return report(c, tmpl, fn(a[1], dc))
		}),
	}
}

func cxt(v any) *Cxt {
	c, ok := v.(*Cxt)
	if !ok {
		panic(fmt.Sprintf("rt: expected *Cxt, got %T", v))
	}
	return c
}

// keywordCall unpacks (cx, instancePath, parentData, parentKey, issue).
func keywordCall(a []any) (*Cxt, DataCxt, Issue) {
	c := cxt(a[0])
	tmpl, _ := a[4].(Issue)
	dc := DataCxt{Ctx: c.State.Ctx, InstancePath: String(a[1]), ParentData: a[2], ParentKey: a[3], RootData: c.RootData}
	return c, dc, tmpl
}

func report(c *Cxt, tmpl Issue, err error) (any, error) {
	if err == nil {
		return true, nil
	}
	if iss, ok := AsIssues(err); ok {
		for _, it := range iss {
			if it.Keyword == "" {
				it.Keyword = tmpl.Keyword
			}
			if it.SchemaPath == "" {
				it.SchemaPath = tmpl.SchemaPath
			}
			it.InstancePath = tmpl.InstancePath + it.InstancePath
			if it.Message == "" {
				it.Message = tmpl.Message
			}
			c.State.Errors = append(c.State.Errors, it)
		}
		return false, nil
	}
	if errors.Is(err, ErrFailed) {
		c.State.Errors = append(c.State.Errors, tmpl)
		return false, nil
	}
	return nil, err
}

func resolvePointer(doc any, ptr string) any {
	if ptr == "" {
		return doc
	}
	p, err := jsonpointer.New(ptr)
	if err != nil {
		return Undefined
	}
	cur := doc
	for _, tok := range p.DecodedTokens() {
		cur = Get(cur, tok)
		if cur == Undefined {
			return Undefined
		}
	}
	return cur
}
