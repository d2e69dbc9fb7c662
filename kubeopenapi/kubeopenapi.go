// Package kubeopenapi compiles Kubernetes structural schemas (the
// openAPIV3Schema of a CustomResourceDefinition) with skemac. The
// x-kubernetes-* extensions are registered as regular keywords.
package kubeopenapi

import (
	"errors"
	"fmt"

	j "github.com/goccy/go-json"

	"github.com/reoring/skemac"
	"github.com/reoring/skemac/rt"
)

// Import compiles an OpenAPI v3 schema into a validator. The input can be a
// decoded map[string]any, raw JSON bytes, a bare openAPIV3Schema or a whole
// CRD document.
func Import(schema any, opts Options) (*skemac.Validator, Diag, error) {
	d := &simpleDiag{}
	if opts.Profile == "" {
		opts.Profile = ProfileStructuralV1
	}
	if schema == nil {
		return nil, d, errors.New("kubeopenapi: nil schema")
	}
	root, err := toObject(schema)
	if err != nil {
		return nil, d, err
	}

	// Accept direct schema (openAPIV3Schema) or unwrap CRD root (spec.versions[].schema.openAPIV3Schema)
	if spec, ok := root["openAPIV3Schema"].(map[string]any); ok {
		root = spec
	} else if unwrapped := unwrapCRDSchema(root); unwrapped != nil {
		root = unwrapped
	}

	root = rt.Clone(root).(map[string]any)
	if opts.Profile == ProfileStructuralV1 {
		warnNonObjectRoot(root, d)
	}
	structural(root, opts, d)

	c := skemac.New(opts.compilerOptions())
	if err := Register(c, opts); err != nil {
		return nil, d, err
	}
	v, err := c.Compile(root)
	if err != nil {
		return nil, d, fmt.Errorf("kubeopenapi: %w", err)
	}
	return v, d, nil
}

func toObject(schema any) (map[string]any, error) {
	switch t := schema.(type) {
	case []byte:
		v, _, err := skemac.DecodeJSON(t, skemac.DefaultDecodeOptions())
		if err != nil {
			return nil, fmt.Errorf("kubeopenapi: invalid JSON: %w", err)
		}
		m, ok := v.(map[string]any)
		if !ok {
			return nil, errors.New("kubeopenapi: schema must be an object")
		}
		return m, nil
	case map[string]any:
		return t, nil
	default:
		b, err := j.Marshal(t)
		if err != nil {
			return nil, fmt.Errorf("kubeopenapi: cannot marshal input: %w", err)
		}
		return toObject(b)
	}
}

// unwrapCRDSchema tries to extract openAPIV3Schema from a Kubernetes CRD document.
// It looks for spec.versions[].schema.openAPIV3Schema (preferring served=true),
// then falls back to spec.validation.openAPIV3Schema for legacy specs.
func unwrapCRDSchema(root map[string]any) map[string]any {
	spec, ok := root["spec"].(map[string]any)
	if !ok {
		return nil
	}
	if vers, ok := spec["versions"].([]any); ok {
		var firstFound map[string]any
		for _, v := range vers {
			vm, _ := v.(map[string]any)
			if vm == nil {
				continue
			}
			served := true
			if sv, ok := vm["served"].(bool); ok {
				served = sv
			}
			sch, _ := vm["schema"].(map[string]any)
			oas, ok := sch["openAPIV3Schema"].(map[string]any)
			if !ok {
				continue
			}
			if served {
				return oas
			}
			if firstFound == nil {
				firstFound = oas
			}
		}
		if firstFound != nil {
			return firstFound
		}
	}
	// legacy: spec.validation.openAPIV3Schema
	if val, ok := spec["validation"].(map[string]any); ok {
		if oas, ok := val["openAPIV3Schema"].(map[string]any); ok {
			return oas
		}
	}
	return nil
}

// warnNonObjectRoot warns when the root declares a non-object type.
func warnNonObjectRoot(doc map[string]any, d *simpleDiag) {
	if t, _ := doc["type"].(string); t != "object" && t != "" {
		d.warnf("non-object at root: type=%q", t)
	}
}

var (
	schemaMapKeys   = []string{"properties", "patternProperties", "$defs", "definitions", "dependentSchemas"}
	schemaValueKeys = []string{"items", "additionalProperties", "not", "if", "then", "else", "contains", "propertyNames", "unevaluatedProperties", "unevaluatedItems", "additionalItems"}
	schemaListKeys  = []string{"allOf", "anyOf", "oneOf", "prefixItems"}
)

// structural rewrites OpenAPI-only constructs in place: nullable widens the
// declared type, and with UnknownStrict objects that declare properties
// reject anything nothing else evaluated.
func structural(sch map[string]any, opts Options, d *simpleDiag) {
	if sch["nullable"] == true {
		if t, ok := sch["type"].(string); ok {
			sch["type"] = []any{t, "null"}
		}
		if enum, ok := sch["enum"].([]any); ok {
			sch["enum"] = append(enum, nil)
		}
	}
	if _, ok := sch[KeywordValidations]; ok {
		d.warnf("%s rules are not evaluated", KeywordValidations)
	}
	if opts.Unknown == UnknownStrict {
		_, hasProps := sch["properties"].(map[string]any)
		_, hasAP := sch["additionalProperties"]
		_, hasUP := sch["unevaluatedProperties"]
		if hasProps && !hasAP && !hasUP {
			sch["unevaluatedProperties"] = false
		}
	}
	for _, k := range schemaMapKeys {
		if m, ok := sch[k].(map[string]any); ok {
			for _, sub := range m {
				if s, ok := sub.(map[string]any); ok {
					structural(s, opts, d)
				}
			}
		}
	}
	for _, k := range schemaValueKeys {
		if s, ok := sch[k].(map[string]any); ok {
			structural(s, opts, d)
		}
	}
	for _, k := range schemaListKeys {
		if l, ok := sch[k].([]any); ok {
			for _, sub := range l {
				if s, ok := sub.(map[string]any); ok {
					structural(s, opts, d)
				}
			}
		}
	}
}
