package skemac

import (
	"regexp"

	"github.com/reoring/skemac/codegen"
	"github.com/reoring/skemac/rt"
)

func validationKeywords() []*KeywordDefinition {
	number := []string{"number"}
	var defs []*KeywordDefinition
	for _, kw := range []string{"maximum", "minimum", "exclusiveMaximum", "exclusiveMinimum"} {
		defs = append(defs, &KeywordDefinition{Keyword: kw, Type: number, SchemaType: number, Data: true, Code: limitNumberCode})
	}
	defs = append(defs,
		&KeywordDefinition{Keyword: "multipleOf", Type: number, SchemaType: number, Data: true, Code: multipleOfCode},
		&KeywordDefinition{Keyword: "maxLength", Type: []string{"string"}, SchemaType: number, Data: true, Code: limitCountCode},
		&KeywordDefinition{Keyword: "minLength", Type: []string{"string"}, SchemaType: number, Data: true, Code: limitCountCode},
		&KeywordDefinition{Keyword: "pattern", Type: []string{"string"}, SchemaType: []string{"string"}, Code: patternCode},
		&KeywordDefinition{Keyword: "maxProperties", Type: []string{"object"}, SchemaType: number, Code: limitCountCode},
		&KeywordDefinition{Keyword: "minProperties", Type: []string{"object"}, SchemaType: number, Code: limitCountCode},
		&KeywordDefinition{Keyword: "required", Type: []string{"object"}, SchemaType: []string{"array"}, Code: requiredCode},
		&KeywordDefinition{Keyword: "dependentRequired", Type: []string{"object"}, SchemaType: []string{"object"}, Code: dependentRequiredCode},
		&KeywordDefinition{Keyword: "maxItems", Type: []string{"array"}, SchemaType: number, Data: true, Code: limitCountCode},
		&KeywordDefinition{Keyword: "minItems", Type: []string{"array"}, SchemaType: number, Data: true, Code: limitCountCode},
		&KeywordDefinition{Keyword: "uniqueItems", Type: []string{"array"}, SchemaType: []string{"boolean"}, Code: uniqueItemsCode},
		&KeywordDefinition{Keyword: "const", Data: true, Code: constCode},
		&KeywordDefinition{Keyword: "enum", SchemaType: []string{"array"}, Data: true, Code: enumCode},
	)
	return defs
}

// comparisons maps a limit keyword to the operator that holds for valid
// data and the one that fails.
var comparisons = map[string]struct{ ok, fail string }{
	"maximum":          {"<=", ">"},
	"minimum":          {">=", "<"},
	"exclusiveMaximum": {"<", ">="},
	"exclusiveMinimum": {">", "<="},
	"maxLength":        {"<=", ">"},
	"minLength":        {">=", "<"},
	"maxProperties":    {"<=", ">"},
	"minProperties":    {">=", "<"},
	"maxItems":         {"<=", ">"},
	"minItems":         {">=", "<"},
}

func limitNumberCode(k *KeywordCxt) error {
	cmp := comparisons[k.Keyword]
	k.SetParams(map[string]codegen.Expr{"comparison": codegen.L(cmp.ok), "limit": k.SchemaCode}, false)
	k.FailData(codegen.Op(k.Data, cmp.fail, k.SchemaCode))
	return nil
}

func multipleOfCode(k *KeywordCxt) error {
	if !k.IsData {
		if f, ok := rt.Float(k.Schema); !ok || f <= 0 {
			return compileErrorf(k.It.errSchemaPath, k.Keyword, "must be a number greater than 0")
		}
	}
	k.SetParams(map[string]codegen.Expr{"multipleOf": k.SchemaCode}, false)
	k.FailData(codegen.Not(codegen.F("multipleOf", k.Data, k.SchemaCode)))
	return nil
}

// limitCountCode checks string length, property count and item count.
func limitCountCode(k *KeywordCxt) error {
	if !k.IsData {
		if n, ok := rt.Int(k.Schema); !ok || n < 0 {
			return compileErrorf(k.It.errSchemaPath, k.Keyword, "must be a non-negative integer")
		}
	}
	size := codegen.F("count", k.Data)
	if k.Keyword == "maxLength" || k.Keyword == "minLength" {
		size = codegen.F("strlen", k.Data)
	}
	cmp := comparisons[k.Keyword]
	k.SetParams(map[string]codegen.Expr{"limit": k.SchemaCode}, false)
	k.FailData(codegen.Op(size, cmp.fail, k.SchemaCode))
	return nil
}

func compilePattern(p string) (*regexp.Regexp, error) { return regexp.Compile(p) }

func patternCode(k *KeywordCxt) error {
	p := k.Schema.(string)
	re, err := usePattern(k, p)
	if err != nil {
		return err
	}
	k.SetParams(map[string]codegen.Expr{"pattern": codegen.L(p)}, false)
	k.Fail(codegen.Not(codegen.F("match", re, k.Data)))
	return nil
}

func stringList(k *KeywordCxt, v any) ([]string, error) {
	arr, _ := v.([]any)
	out := make([]string, 0, len(arr))
	for _, e := range arr {
		s, ok := e.(string)
		if !ok {
			return nil, compileErrorf(k.It.errSchemaPath, k.Keyword, "items must be strings")
		}
		out = append(out, s)
	}
	return out, nil
}

func requiredCode(k *KeywordCxt) error {
	props, err := stringList(k, k.Schema)
	if err != nil || len(props) == 0 {
		return err
	}
	g := k.Gen
	data := k.Data
	missing := func(p codegen.Expr) codegen.Expr { return codegen.Not(codegen.F("has", data, p)) }
	report := func(p codegen.Expr) { k.ErrorWith(map[string]codegen.Expr{"missingProperty": p}) }
	if len(props) > k.It.c.opts.LoopRequired {
		list := codegen.L(k.Schema)
		valid := g.Let("valid", codegen.True)
		g.ForValues("prop", list, func(p *codegen.Name) {
			g.If(missing(p), func() {
				g.Assign(valid, codegen.False)
				report(p)
				if !k.AllErrors {
					g.Break("")
				}
			})
		})
		k.Ok(valid)
		return nil
	}
	if k.AllErrors {
		for _, p := range props {
			g.If(missing(codegen.L(p)), func() { report(codegen.L(p)) })
		}
		return nil
	}
	for i, p := range props {
		if i == 0 {
			g.If(missing(codegen.L(p)))
		} else {
			g.ElseIf(missing(codegen.L(p)))
		}
		report(codegen.L(p))
	}
	g.Else()
	return nil
}

func dependentRequiredCode(k *KeywordCxt) error {
	deps := k.Schema.(map[string]any)
	g := k.Gen
	for _, prop := range sortedKeys(deps) {
		list, err := stringList(k, deps[prop])
		if err != nil {
			return err
		}
		if len(list) == 0 {
			continue
		}
		g.If(codegen.F("has", k.Data, codegen.L(prop)), func() {
			for _, d := range list {
				g.If(codegen.Not(codegen.F("has", k.Data, codegen.L(d))), func() {
					k.ErrorWith(map[string]codegen.Expr{
						"property":        codegen.L(prop),
						"missingProperty": codegen.L(d),
						"depsCount":       codegen.L(len(list)),
						"deps":            codegen.L(deps[prop]),
					})
				})
			}
		})
	}
	return nil
}

func uniqueItemsCode(k *KeywordCxt) error {
	if k.Schema != true {
		return nil
	}
	dup := k.Gen.Const("dup", codegen.F("duplicates", k.Data))
	k.SetParams(map[string]codegen.Expr{
		"i": &codegen.Index{X: dup, Key: codegen.L(1)},
		"j": &codegen.Index{X: dup, Key: codegen.L(0)},
	}, false)
	k.Fail(codegen.Op(codegen.F("count", dup), ">", codegen.L(0)))
	return nil
}

func constCode(k *KeywordCxt) error {
	k.SetParams(map[string]codegen.Expr{"allowedValue": k.SchemaCode}, false)
	k.FailData(codegen.Not(codegen.F("eq", k.Data, k.SchemaCode)))
	return nil
}

func enumCode(k *KeywordCxt) error {
	g := k.Gen
	k.SetParams(map[string]codegen.Expr{"allowedValues": k.SchemaCode}, false)
	values, _ := k.Schema.([]any)
	if !k.IsData && len(values) == 0 {
		return compileErrorf(k.It.errSchemaPath, k.Keyword, "enum must have non-empty array")
	}
	if k.IsData || len(values) > k.It.c.opts.LoopEnum {
		valid := g.Let("valid", codegen.False)
		k.BlockData(valid, func() {
			g.ForValues("v", k.SchemaCode, func(v *codegen.Name) {
				g.If(codegen.F("eq", k.Data, v), func() {
					g.Assign(valid, codegen.True)
					g.Break("")
				})
			})
		})
		k.Pass(valid, nil)
		return nil
	}
	conds := make([]codegen.Expr, len(values))
	for i, v := range values {
		conds[i] = codegen.F("eq", k.Data, codegen.L(v))
	}
	k.Pass(codegen.Or(conds...), nil)
	return nil
}
