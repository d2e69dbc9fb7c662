package kubeopenapi

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"

	j "github.com/goccy/go-json"

	"github.com/reoring/skemac"
	"github.com/reoring/skemac/rt"
)

// Kubernetes schema extension keywords.
const (
	KeywordIntOrString     = "x-kubernetes-int-or-string"
	KeywordListType        = "x-kubernetes-list-type"
	KeywordListMapKeys     = "x-kubernetes-list-map-keys"
	KeywordMapType         = "x-kubernetes-map-type"
	KeywordEmbedded        = "x-kubernetes-embedded-resource"
	KeywordPreserveUnknown = "x-kubernetes-preserve-unknown-fields"
	KeywordValidations     = "x-kubernetes-validations"
	KeywordNullable        = "nullable"
)

// Register adds the Kubernetes vocabulary and the OpenAPI number and byte
// formats to c. It must run before c compiles its first schema.
func Register(c *skemac.Compiler, opts Options) error {
	for _, def := range Keywords(opts) {
		if err := c.AddKeyword(def); err != nil {
			return err
		}
	}
	for name, f := range formats {
		if err := c.AddFormat(name, f); err != nil {
			return err
		}
	}
	return nil
}

// Keywords returns the keyword definitions of the Kubernetes vocabulary.
func Keywords(opts Options) []skemac.KeywordDefinition {
	return []skemac.KeywordDefinition{
		{
			Keyword:    KeywordIntOrString,
			SchemaType: []string{"boolean"},
			Macro:      intOrString,
		},
		{
			Keyword:    KeywordListType,
			Type:       []string{"array"},
			SchemaType: []string{"string"},
			Compile:    compileListType,
			Error:      &skemac.KeywordError{Message: "must not contain duplicate items"},
		},
		annotation(KeywordListMapKeys, "array", KeywordListType),
		annotation(KeywordMapType, "string"),
		{
			Keyword:    KeywordEmbedded,
			Type:       []string{"object"},
			SchemaType: []string{"boolean"},
			Validate:   embeddedResource(opts.EnableEmbeddedChecks),
			Error:      &skemac.KeywordError{Message: "must be an embedded resource"},
		},
		{
			Keyword:    KeywordPreserveUnknown,
			Type:       []string{"object"},
			SchemaType: []string{"boolean"},
			Code:       preserveUnknown,
		},
		annotation(KeywordValidations, "array"),
		annotation(KeywordNullable, "boolean"),
	}
}

func annotation(keyword, schemaType string, deps ...string) skemac.KeywordDefinition {
	return skemac.KeywordDefinition{
		Keyword:      keyword,
		SchemaType:   []string{schemaType},
		Dependencies: deps,
		Code:         func(*skemac.KeywordCxt) error { return nil },
	}
}

func intOrString(schema any, _ map[string]any, _ *skemac.SchemaCxt) (any, error) {
	if schema != true {
		return true, nil
	}
	return map[string]any{"anyOf": []any{
		map[string]any{"type": "integer"},
		map[string]any{"type": "string"},
	}}, nil
}

// preserveUnknown marks every property of the object evaluated, so that
// unevaluatedProperties added for strict unknown handling lets them through.
func preserveUnknown(k *skemac.KeywordCxt) error {
	if k.Schema == true {
		k.MarkAllEvaluated(true, false)
	}
	return nil
}

func compileListType(schema any, parent map[string]any, _ *skemac.SchemaCxt) (rt.CheckFunc, error) {
	switch lt := schema.(string); lt {
	case "atomic":
		return func(any, rt.DataCxt) error { return nil }, nil
	case "set":
		return checkSet, nil
	case "map":
		keys, err := listMapKeys(parent)
		if err != nil {
			return nil, err
		}
		return mapChecker{keys: keys}.check, nil
	default:
		return nil, fmt.Errorf("kubeopenapi: unknown %s %q", KeywordListType, lt)
	}
}

func listMapKeys(parent map[string]any) ([]string, error) {
	raw, ok := parent[KeywordListMapKeys].([]any)
	if !ok || len(raw) == 0 {
		return nil, fmt.Errorf("kubeopenapi: list-type map requires %s", KeywordListMapKeys)
	}
	keys := make([]string, 0, len(raw))
	for _, k := range raw {
		s, ok := k.(string)
		if !ok {
			return nil, fmt.Errorf("kubeopenapi: %s entries must be strings", KeywordListMapKeys)
		}
		keys = append(keys, s)
	}
	return keys, nil
}

func checkSet(data any, _ rt.DataCxt) error {
	arr, _ := data.([]any)
	var iss rt.Issues
	for i := 1; i < len(arr); i++ {
		for first := 0; first < i; first++ {
			if rt.Equal(arr[first], arr[i]) {
				iss = append(iss, duplicateItem(i, first, "duplicate element in set"))
				break
			}
		}
	}
	if len(iss) > 0 {
		return iss
	}
	return nil
}

func duplicateItem(i, first int, msg string) rt.Issue {
	return rt.Issue{
		InstancePath: "/" + strconv.Itoa(i),
		Params:       map[string]any{"i": first, "j": i},
		Message:      msg + " (first at index " + strconv.Itoa(first) + ")",
	}
}

// mapChecker checks a list-type map: every element carries the key fields
// and no two elements share the same key values.
type mapChecker struct{ keys []string }

func (c mapChecker) check(data any, _ rt.DataCxt) error {
	arr, _ := data.([]any)
	seen := make(map[string]int, len(arr))
	var iss rt.Issues
	for i, el := range arr {
		m, ok := el.(map[string]any)
		if !ok {
			continue
		}
		comp, missing := c.compositeKey(m)
		for _, k := range missing {
			iss = append(iss, rt.Issue{
				InstancePath: "/" + strconv.Itoa(i) + "/" + k,
				Params:       map[string]any{"missingProperty": k},
				Message:      "required for " + KeywordListMapKeys,
			})
		}
		if len(missing) > 0 {
			continue
		}
		if first, dup := seen[comp]; dup {
			iss = append(iss, duplicateItem(i, first, "duplicate element in list-map by keys"))
			continue
		}
		seen[comp] = i
	}
	if len(iss) > 0 {
		return iss
	}
	return nil
}

func (c mapChecker) compositeKey(m map[string]any) (string, []string) {
	var missing []string
	vals := make([]any, 0, len(c.keys))
	for _, k := range c.keys {
		v, ok := m[k]
		if !ok {
			missing = append(missing, k)
			continue
		}
		vals = append(vals, canonical(v))
	}
	if len(missing) > 0 {
		return "", missing
	}
	b, err := j.Marshal(vals)
	if err != nil {
		return fmt.Sprint(vals), nil
	}
	return string(b), nil
}

// canonical folds equal numbers with different spellings (1, 1.0) to one key.
func canonical(v any) any {
	if n, ok := v.(json.Number); ok {
		if f, err := n.Float64(); err == nil {
			return f
		}
	}
	return v
}

func embeddedResource(enabled bool) rt.ValidateFunc {
	return func(schema, data any, _ map[string]any, _ rt.DataCxt) error {
		if !enabled || schema != true {
			return nil
		}
		m, _ := data.(map[string]any)
		var iss rt.Issues
		for _, f := range []struct{ name, typ string }{
			{"apiVersion", "string"}, {"kind", "string"}, {"metadata", "object"},
		} {
			v, ok := m[f.name]
			switch {
			case !ok:
				iss = append(iss, rt.Issue{
					InstancePath: "/" + f.name,
					Params:       map[string]any{"missingProperty": f.name},
					Message:      "required for embedded resource",
				})
			case !rt.IsType(v, f.typ):
				iss = append(iss, rt.Issue{
					InstancePath: "/" + f.name,
					Params:       map[string]any{"type": f.typ},
					Message:      f.name + " must be " + f.typ,
				})
			}
		}
		if len(iss) > 0 {
			return iss
		}
		return nil
	}
}

var formats = map[string]skemac.Format{
	"int32":  {Type: "number", Check: intRange("-2147483648", "2147483647")},
	"int64":  {Type: "number", Check: intRange("-9223372036854775808", "9223372036854775807")},
	"float":  {Type: "number", Check: func(any) bool { return true }},
	"double": {Type: "number", Check: func(any) bool { return true }},
	"byte": {Type: "string", Check: func(v any) bool {
		_, err := base64.StdEncoding.DecodeString(v.(string))
		return err == nil
	}},
}

func intRange(lo, hi string) func(any) bool {
	low, high := json.Number(lo), json.Number(hi)
	return func(v any) bool {
		if !rt.IsInteger(v) {
			return false
		}
		c1, ok1 := rt.Compare(v, low)
		c2, ok2 := rt.Compare(v, high)
		return ok1 && ok2 && c1 >= 0 && c2 <= 0
	}
}
