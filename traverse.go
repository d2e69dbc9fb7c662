package skemac

import (
	"sort"
	"strconv"
)

// Keyword positions holding subschemas, used by the identifier walk.
var (
	subschemaKeywords = map[string]bool{
		"additionalItems": true, "items": true, "contains": true, "additionalProperties": true,
		"propertyNames": true, "not": true, "if": true, "then": true, "else": true,
		"unevaluatedItems": true, "unevaluatedProperties": true,
	}
	subschemaArrayKeywords = map[string]bool{
		"items": true, "allOf": true, "anyOf": true, "oneOf": true, "prefixItems": true,
	}
	subschemaMapKeywords = map[string]bool{
		"$defs": true, "definitions": true, "properties": true, "patternProperties": true,
		"dependencies": true, "dependentSchemas": true,
	}
	// Keywords whose values are not schemas even when they contain objects.
	skipKeywords = map[string]bool{
		"default": true, "enum": true, "const": true, "required": true, "examples": true,
		"format": true, "pattern": true, "$comment": true, "title": true, "description": true,
	}
	// Keywords under which an "$id" of a child does not change the base.
	preventScopeChange = map[string]bool{
		"properties": true, "patternProperties": true, "enum": true, "dependencies": true, "definitions": true, "$defs": true,
	}
)

// visitor is called for every schema object with its JSON pointer relative
// to the walk root, its parent schema, the keyword it sits under and its
// child index or property.
type visitor func(sch map[string]any, ptr string, parent map[string]any, keyword, index string)

// traverse walks schema objects at subschema positions in a deterministic
// order. post runs after the children of a node.
func traverse(schema any, pre, post visitor) {
	walkSchema(schema, "", nil, "", "", pre, post)
}

func walkSchema(schema any, ptr string, parent map[string]any, keyword, index string, pre, post visitor) {
	sch, ok := schema.(map[string]any)
	if !ok {
		return
	}
	if pre != nil {
		pre(sch, ptr, parent, keyword, index)
	}
	for _, key := range sortedKeys(sch) {
		if skipKeywords[key] {
			continue
		}
		val := sch[key]
		kp := ptr + "/" + escapeFragment(key)
		switch v := val.(type) {
		case map[string]any:
			if subschemaKeywords[key] {
				walkSchema(v, kp, sch, key, "", pre, post)
			} else if subschemaMapKeywords[key] {
				for _, p := range sortedKeys(v) {
					walkSchema(v[p], kp+"/"+escapeFragment(p), sch, key, p, pre, post)
				}
			}
		case []any:
			if subschemaArrayKeywords[key] {
				for i, it := range v {
					idx := strconv.Itoa(i)
					walkSchema(it, kp+"/"+idx, sch, key, idx, pre, post)
				}
			}
		}
	}
	if post != nil {
		post(sch, ptr, parent, keyword, index)
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// refKeywords mark a schema as referencing another location.
var refKeywords = map[string]bool{"$ref": true, "$dynamicRef": true, "$recursiveRef": true}

// hasRef reports whether schema or any nested value contains a reference.
func hasRef(schema any) bool {
	switch s := schema.(type) {
	case map[string]any:
		for k, v := range s {
			if refKeywords[k] {
				return true
			}
			if skipKeywords[k] {
				continue
			}
			if hasRef(v) {
				return true
			}
		}
	case []any:
		for _, v := range s {
			if hasRef(v) {
				return true
			}
		}
	}
	return false
}

// simpleInlined keywords count once regardless of their value size.
var simpleInlined = map[string]bool{
	"type": true, "format": true, "pattern": true, "maxLength": true, "minLength": true,
	"maxProperties": true, "minProperties": true, "maxItems": true, "minItems": true,
	"maximum": true, "minimum": true, "uniqueItems": true, "multipleOf": true,
	"required": true, "enum": true, "const": true,
}

// countKeys counts keywords in schema and its subschemas; -1 means a
// reference was found.
func countKeys(schema any) int {
	s, ok := schema.(map[string]any)
	if !ok {
		return 0
	}
	n := 0
	for k, v := range s {
		if refKeywords[k] {
			return -1
		}
		n++
		if simpleInlined[k] || skipKeywords[k] {
			continue
		}
		switch c := v.(type) {
		case map[string]any:
			if subschemaMapKeywords[k] {
				for _, sub := range c {
					m := countKeys(sub)
					if m < 0 {
						return -1
					}
					n += m
				}
				continue
			}
			m := countKeys(c)
			if m < 0 {
				return -1
			}
			n += m
		case []any:
			for _, sub := range c {
				m := countKeys(sub)
				if m < 0 {
					return -1
				}
				n += m
			}
		}
	}
	return n
}

// inlineRef reports whether a resolved reference target may be compiled
// into its caller.
func inlineRef(schema any, policy InlineRefs) bool {
	if _, ok := schema.(bool); ok {
		return true
	}
	if !policy.Enabled {
		return false
	}
	if policy.MaxKeys <= 0 {
		return !hasRef(schema)
	}
	n := countKeys(schema)
	return n >= 0 && n <= policy.MaxKeys
}
