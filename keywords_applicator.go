package skemac

import (
	"github.com/reoring/skemac/codegen"
	"github.com/reoring/skemac/rt"
)

var (
	schemaValue = []string{"object", "boolean"}
	schemaArray = []string{"array"}
	schemaMap   = []string{"object"}
)

func applicatorKeywords() []*KeywordDefinition {
	array := []string{"array"}
	object := []string{"object"}
	return []*KeywordDefinition{
		{Keyword: "not", SchemaType: schemaValue, TrackErrors: true, Code: notCode},
		{Keyword: "anyOf", SchemaType: schemaArray, TrackErrors: true, Code: anyOfCode},
		{Keyword: "oneOf", SchemaType: schemaArray, TrackErrors: true, Code: oneOfCode},
		{Keyword: "allOf", SchemaType: schemaArray, Code: allOfCode},
		{Keyword: "if", SchemaType: schemaValue, TrackErrors: true, Code: ifCode},
		{Keyword: "then", SchemaType: schemaValue, Code: thenElseCode},
		{Keyword: "else", SchemaType: schemaValue, Code: thenElseCode},
		{Keyword: "prefixItems", Type: array, SchemaType: schemaArray, Code: prefixItemsCode},
		{Keyword: "items", Type: array, SchemaType: schemaValue, Code: itemsCode},
		{Keyword: "contains", Type: array, SchemaType: schemaValue, TrackErrors: true, Code: containsCode},
		{Keyword: "dependentSchemas", Type: object, SchemaType: schemaMap, Code: dependentSchemasCode},
		{Keyword: "propertyNames", Type: object, SchemaType: schemaValue, Code: propertyNamesCode},
		{Keyword: "additionalProperties", Type: object, SchemaType: schemaValue, TrackErrors: true, Code: additionalPropertiesCode},
		{Keyword: "properties", Type: object, SchemaType: schemaMap, Code: propertiesCode},
		{Keyword: "patternProperties", Type: object, SchemaType: schemaMap, Code: patternPropertiesCode},
	}
}

func notCode(k *KeywordCxt) error {
	always, err := k.It.alwaysValid(k.Schema)
	if err != nil {
		return err
	}
	if always {
		k.Fail(nil)
		return nil
	}
	valid := k.Gen.Name("valid")
	if _, err := k.Subschema(SubschemaArgs{CompositeRule: true, FailFast: true}, valid); err != nil {
		return err
	}
	k.FailResult(valid, func() { k.Reset() }, func() { k.Error() })
	return nil
}

func subschemaList(k *KeywordCxt) ([]any, error) {
	arr := k.Schema.([]any)
	if len(arr) == 0 {
		return nil, compileErrorf(k.It.errSchemaPath, k.Keyword, "must have at least one schema")
	}
	for _, s := range arr {
		if err := checkSubschema(k, s); err != nil {
			return nil, err
		}
	}
	return arr, nil
}

func anyOfCode(k *KeywordCxt) error {
	it := k.It
	arr, err := subschemaList(k)
	if err != nil {
		return err
	}
	if !it.c.opts.Unevaluated {
		for _, s := range arr {
			always, err := it.alwaysValid(s)
			if err != nil {
				return err
			}
			if always {
				return nil
			}
		}
	}
	g := k.Gen
	valid := g.Let("valid", codegen.False)
	schValid := g.Name("valid")
	g.BeginBlock()
	for i := range arr {
		sub, err := k.Subschema(SubschemaArgs{SchemaProp: i, CompositeRule: true}, schValid)
		if err != nil {
			return err
		}
		g.Assign(valid, codegen.Or(valid, schValid))
		if !k.MergeValidEvaluated(sub, schValid) {
			g.If(codegen.Not(valid))
		}
	}
	g.EndBlock(-1)
	k.Result(valid, func() { k.Reset() }, func() { k.Error() })
	return nil
}

func oneOfCode(k *KeywordCxt) error {
	it := k.It
	arr, err := subschemaList(k)
	if err != nil {
		return err
	}
	g := k.Gen
	valid := g.Let("valid", codegen.False)
	passing := g.Let("passing", codegen.Null)
	schValid := g.Name("valid")
	k.SetParams(map[string]codegen.Expr{"passing": passing}, false)
	k.EvaluatedToNames()
	g.BeginBlock()
	for i, s := range arr {
		always, err := it.alwaysValid(s)
		if err != nil {
			return err
		}
		var sub *SchemaCxt
		if always {
			g.Def(codegen.Var, schValid, codegen.True)
		} else if sub, err = k.Subschema(SubschemaArgs{SchemaProp: i, CompositeRule: true}, schValid); err != nil {
			return err
		}
		if i > 0 {
			g.If(codegen.And(schValid, valid))
			g.Assign(valid, codegen.False)
			g.Assign(passing, codegen.F("arr", passing, codegen.L(i)))
			g.Else()
		}
		g.If(schValid, func() {
			g.Assign(valid, codegen.True)
			g.Assign(passing, codegen.L(i))
			if sub != nil {
				k.MergeEvaluated(sub)
			}
		})
	}
	g.EndBlock(-1)
	k.Result(valid, func() { k.Reset() }, func() { k.Error() })
	return nil
}

func allOfCode(k *KeywordCxt) error {
	it := k.It
	arr, err := subschemaList(k)
	if err != nil {
		return err
	}
	valid := k.Gen.Name("valid")
	for i, s := range arr {
		always, err := it.alwaysValid(s)
		if err != nil {
			return err
		}
		if always {
			continue
		}
		sub, err := k.Subschema(SubschemaArgs{SchemaProp: i}, valid)
		if err != nil {
			return err
		}
		k.Ok(valid)
		k.MergeEvaluated(sub)
	}
	return nil
}

func hasSchema(it *SchemaCxt, keyword string) (bool, error) {
	v, ok := it.schema.(map[string]any)[keyword]
	if !ok {
		return false, nil
	}
	always, err := it.alwaysValid(v)
	return !always, err
}

func ifCode(k *KeywordCxt) error {
	it := k.It
	if _, ok := k.ParentSchema["then"]; !ok {
		if _, ok := k.ParentSchema["else"]; !ok {
			if err := it.strict(`"if" without "then" and "else" is ignored`, "if"); err != nil {
				return err
			}
		}
	}
	hasThen, err := hasSchema(it, "then")
	if err != nil {
		return err
	}
	hasElse, err := hasSchema(it, "else")
	if err != nil {
		return err
	}
	if !hasThen && !hasElse {
		return nil
	}
	g := k.Gen
	valid := g.Let("valid", codegen.True)
	schValid := g.Name("valid")
	k.EvaluatedToNames()
	ifSub, err := k.Subschema(SubschemaArgs{CompositeRule: true, FailFast: true}, schValid)
	if err != nil {
		return err
	}
	k.MergeValidEvaluated(ifSub, schValid)
	k.Reset()
	var ifClause *codegen.Name
	if hasThen && hasElse {
		ifClause = g.Let("ifClause", nil)
		k.SetParams(map[string]codegen.Expr{"failingKeyword": ifClause}, false)
	}
	var clauseErr error
	clause := func(keyword string) func() {
		return func() {
			sub, err := k.Subschema(SubschemaArgs{Keyword: keyword}, schValid)
			if err != nil {
				clauseErr = err
				return
			}
			g.Assign(valid, schValid)
			g.If(valid, func() { k.MergeEvaluated(sub) })
			if ifClause != nil {
				g.Assign(ifClause, codegen.L(keyword))
			} else {
				k.SetParams(map[string]codegen.Expr{"failingKeyword": codegen.L(keyword)}, false)
			}
		}
	}
	switch {
	case hasThen && hasElse:
		g.If(schValid, clause("then"), clause("else"))
	case hasThen:
		g.If(schValid, clause("then"))
	default:
		g.If(codegen.Not(schValid), clause("else"))
	}
	if clauseErr != nil {
		return clauseErr
	}
	k.Pass(valid, func() { k.Error() })
	return nil
}

func thenElseCode(k *KeywordCxt) error {
	if _, ok := k.ParentSchema["if"]; !ok {
		return k.It.strict(`"`+k.Keyword+`" without "if" is ignored`, k.Keyword)
	}
	return nil
}

func prefixItemsCode(k *KeywordCxt) error {
	it := k.It
	arr := k.Schema.([]any)
	for _, s := range arr {
		if err := checkSubschema(k, s); err != nil {
			return err
		}
	}
	if len(arr) > 0 {
		it.markItems(len(arr))
	}
	g := k.Gen
	valid := g.Let("valid", codegen.True)
	n := g.Const("len", codegen.F("count", k.Data))
	for i, s := range arr {
		always, err := it.alwaysValid(s)
		if err != nil {
			return err
		}
		if always {
			continue
		}
		g.If(codegen.Op(n, ">", codegen.L(i)), func() {
			_, err = k.Subschema(SubschemaArgs{SchemaProp: i, DataProp: i, DataPropType: PropIndex}, valid)
		})
		if err != nil {
			return err
		}
		k.Ok(valid)
	}
	return nil
}

func itemsCode(k *KeywordCxt) error {
	it := k.It
	k.MarkAllEvaluated(false, true)
	always, err := it.alwaysValid(k.Schema)
	if err != nil || always {
		return err
	}
	g := k.Gen
	from := 0
	if prefix, ok := k.ParentSchema["prefixItems"].([]any); ok {
		from = len(prefix)
	}
	n := g.Const("len", codegen.F("count", k.Data))
	if k.Schema == false {
		k.SetParams(map[string]codegen.Expr{"limit": codegen.L(from)}, false)
		k.Pass(codegen.Op(n, "<=", codegen.L(from)), nil)
		return nil
	}
	valid := g.Var("valid", codegen.Op(n, "<=", codegen.L(from)))
	g.If(codegen.Not(valid), func() { err = validateItems(k, valid, codegen.L(from), n) })
	if err != nil {
		return err
	}
	k.Ok(valid)
	return nil
}

// validateItems applies the keyword schema to items [from, n).
func validateItems(k *KeywordCxt, valid *codegen.Name, from, n codegen.Expr) error {
	g := k.Gen
	var err error
	g.ForRange("i", from, n, func(i *codegen.Name) {
		if _, err = k.Subschema(SubschemaArgs{DataProp: i, DataPropType: PropIndex}, valid); err != nil {
			return
		}
		if !k.AllErrors {
			g.If(codegen.Not(valid), func() { g.Break("") })
		}
	})
	return err
}

func containsCode(k *KeywordCxt) error {
	it := k.It
	min, max := 1, -1
	if v, ok := k.ParentSchema["minContains"]; ok {
		n, ok := rt.Int(v)
		if !ok || n < 0 {
			return compileErrorf(it.errSchemaPath, "minContains", "must be a non-negative integer")
		}
		min = n
	}
	if v, ok := k.ParentSchema["maxContains"]; ok {
		n, ok := rt.Int(v)
		if !ok || n < 0 {
			return compileErrorf(it.errSchemaPath, "maxContains", "must be a non-negative integer")
		}
		max = n
	}
	params := map[string]codegen.Expr{"minContains": codegen.L(min)}
	if max >= 0 {
		params["maxContains"] = codegen.L(max)
	}
	k.SetParams(params, false)
	if max < 0 && min == 0 {
		return it.strict(`"minContains" == 0 without "maxContains": "contains" keyword ignored`, "minContains")
	}
	if max >= 0 && min > max {
		if err := it.strict(`"minContains" > "maxContains" is always invalid`, "maxContains"); err != nil {
			return err
		}
		k.Fail(nil)
		return nil
	}
	g := k.Gen
	n := g.Const("len", codegen.F("count", k.Data))
	always, err := it.alwaysValid(k.Schema)
	if err != nil {
		return err
	}
	if always {
		cond := codegen.Op(n, ">=", codegen.L(min))
		if max >= 0 {
			cond = codegen.And(cond, codegen.Op(n, "<=", codegen.L(max)))
		}
		k.Pass(cond, nil)
		return nil
	}
	k.MarkAllEvaluated(false, true)
	each := func(v *codegen.Name, body func()) {
		g.ForRange("i", codegen.L(0), n, func(i *codegen.Name) {
			if _, err = k.Subschema(SubschemaArgs{DataProp: i, DataPropType: PropIndex, CompositeRule: true}, v); err != nil {
				return
			}
			body()
		})
	}
	valid := g.Let("valid", codegen.False)
	withCount := func() {
		schValid := g.Name("valid")
		count := g.Let("count", codegen.L(0))
		each(schValid, func() {
			g.If(schValid, func() {
				g.AssignOp(count, "+", codegen.L(1))
				if max < 0 {
					g.If(codegen.Op(count, ">=", codegen.L(min)), func() {
						g.Assign(valid, codegen.True)
						g.Break("")
					})
					return
				}
				g.If(codegen.Op(count, ">", codegen.L(max)), func() {
					g.Assign(valid, codegen.False)
					g.Break("")
				})
				g.If(codegen.Op(count, ">=", codegen.L(min)), func() { g.Assign(valid, codegen.True) })
			})
		})
	}
	switch {
	case max < 0 && min == 1:
		schValid := g.Name("valid")
		each(schValid, func() {
			g.If(schValid, func() {
				g.Assign(valid, codegen.True)
				g.Break("")
			})
		})
	case min == 0:
		g.Assign(valid, codegen.True)
		g.If(codegen.Op(n, ">", codegen.L(0)), withCount)
	default:
		withCount()
	}
	if err != nil {
		return err
	}
	k.Result(valid, func() { k.Reset() }, nil)
	return nil
}

func dependentSchemasCode(k *KeywordCxt) error {
	it := k.It
	deps := k.Schema.(map[string]any)
	g := k.Gen
	valid := g.Name("valid")
	k.EvaluatedToNames()
	for _, prop := range sortedKeys(deps) {
		if err := checkSubschema(k, deps[prop]); err != nil {
			return err
		}
		always, err := it.alwaysValid(deps[prop])
		if err != nil {
			return err
		}
		if always {
			continue
		}
		g.If(codegen.F("has", k.Data, codegen.L(prop)), func() {
			var sub *SchemaCxt
			if sub, err = k.Subschema(SubschemaArgs{SchemaProp: prop}, valid); err != nil {
				return
			}
			g.If(valid, func() { k.MergeEvaluated(sub) })
		}, func() {
			g.Def(codegen.Var, valid, codegen.True)
		})
		if err != nil {
			return err
		}
		k.Ok(valid)
	}
	return nil
}

func propertyNamesCode(k *KeywordCxt) error {
	always, err := k.It.alwaysValid(k.Schema)
	if err != nil || always {
		return err
	}
	g := k.Gen
	valid := g.Let("valid", codegen.True)
	g.ForKeys("key", k.Data, func(key *codegen.Name) {
		k.SetParams(map[string]codegen.Expr{"propertyName": key}, false)
		if _, err = k.Subschema(SubschemaArgs{Data: key, DataTypes: []string{"string"}, PropertyName: key, CompositeRule: true}, valid); err != nil {
			return
		}
		g.If(codegen.Not(valid), func() {
			k.Error()
			if !k.AllErrors {
				g.Break("")
			}
		})
	})
	if err != nil {
		return err
	}
	k.Ok(valid)
	return nil
}

// propertyCheck is true when key names a property declared in properties.
func propertyCheck(parent map[string]any, key codegen.Expr) codegen.Expr {
	props, _ := parent["properties"].(map[string]any)
	if len(props) == 0 {
		return codegen.False
	}
	if len(props) > 8 {
		return codegen.F("has", codegen.L(props), key)
	}
	var cs []codegen.Expr
	for _, p := range sortedKeys(props) {
		cs = append(cs, codegen.Eq(key, codegen.L(p)))
	}
	return codegen.Or(cs...)
}

func additionalPropertiesCode(k *KeywordCxt) error {
	it := k.It
	k.MarkAllEvaluated(true, false)
	always, err := it.alwaysValid(k.Schema)
	if err != nil || always {
		return err
	}
	g := k.Gen
	patProps, _ := k.ParentSchema["patternProperties"].(map[string]any)
	var patterns []*codegen.Name
	for _, p := range sortedKeys(patProps) {
		re, err := usePattern(k, p)
		if err != nil {
			return err
		}
		patterns = append(patterns, re)
	}
	g.ForKeys("key", k.Data, func(key *codegen.Name) {
		conds := []codegen.Expr{codegen.Not(propertyCheck(k.ParentSchema, key))}
		for _, re := range patterns {
			conds = append(conds, codegen.Not(codegen.F("match", re, key)))
		}
		g.If(codegen.And(conds...), func() { err = additionalPropertyCode(k, key) })
	})
	if err != nil {
		return err
	}
	k.Ok(codegen.Eq(k.ErrsCount, codegen.F("errs", it.cx)))
	return nil
}

func additionalPropertyCode(k *KeywordCxt, key *codegen.Name) error {
	g := k.Gen
	if k.Schema == false {
		k.ErrorWith(map[string]codegen.Expr{"additionalProperty": key})
		if !k.AllErrors {
			g.Break("")
		}
		return nil
	}
	valid := g.Name("valid")
	if _, err := k.Subschema(SubschemaArgs{DataProp: key, DataPropType: PropString}, valid); err != nil {
		return err
	}
	if !k.AllErrors {
		g.If(codegen.Not(valid), func() { g.Break("") })
	}
	return nil
}

func propertiesCode(k *KeywordCxt) error {
	it := k.It
	props := k.Schema.(map[string]any)
	names := sortedKeys(props)
	it.markProps(names)
	g := k.Gen
	valid := g.Name("valid")
	for _, p := range names {
		if err := checkSubschema(k, props[p]); err != nil {
			return err
		}
		always, err := it.alwaysValid(props[p])
		if err != nil {
			return err
		}
		if always {
			continue
		}
		args := SubschemaArgs{SchemaProp: p, DataProp: p}
		if hasDefault(it, props[p]) {
			if _, err := k.Subschema(args, valid); err != nil {
				return err
			}
		} else {
			g.If(codegen.F("has", k.Data, codegen.L(p)))
			if _, err := k.Subschema(args, valid); err != nil {
				return err
			}
			if !k.AllErrors {
				g.Else()
				g.Def(codegen.Var, valid, codegen.True)
			}
			g.EndIf()
		}
		k.Ok(valid)
	}
	return nil
}

func hasDefault(it *SchemaCxt, schema any) bool {
	m, ok := schema.(map[string]any)
	if !ok || it.c.opts.Defaults == DefaultsOff || it.compositeRule {
		return false
	}
	_, ok = m["default"]
	return ok
}

func patternPropertiesCode(k *KeywordCxt) error {
	it := k.It
	pats := k.Schema.(map[string]any)
	patterns := sortedKeys(pats)
	trackProps := it.c.opts.Unevaluated && it.props != true
	always := map[string]bool{}
	for _, p := range patterns {
		if err := checkSubschema(k, pats[p]); err != nil {
			return err
		}
		a, err := it.alwaysValid(pats[p])
		if err != nil {
			return err
		}
		always[p] = a
	}
	if len(patterns) == 0 {
		return nil
	}
	g := k.Gen
	var props *codegen.Name
	if trackProps {
		props = evalToName(g, "props", it.props)
		it.props = props
	}
	valid := g.Name("valid")
	for _, p := range patterns {
		if always[p] && !trackProps {
			continue
		}
		re, err := usePattern(k, p)
		if err != nil {
			return err
		}
		if !k.AllErrors {
			g.Def(codegen.Var, valid, codegen.True)
		}
		g.ForKeys("key", k.Data, func(key *codegen.Name) {
			g.If(codegen.F("match", re, key), func() {
				if !always[p] {
					if _, err = k.Subschema(SubschemaArgs{SchemaProp: p, DataProp: key, DataPropType: PropString}, valid); err != nil {
						return
					}
				}
				if trackProps {
					g.Assign(props, codegen.F("addProp", props, key))
				} else if !always[p] && !k.AllErrors {
					g.If(codegen.Not(valid), func() { g.Break("") })
				}
			})
		})
		if err != nil {
			return err
		}
		if !k.AllErrors {
			g.If(valid)
		}
	}
	return nil
}
