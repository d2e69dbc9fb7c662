package skemac

import (
	"github.com/reoring/skemac/codegen"
	"github.com/reoring/skemac/rt"
)

func unevaluatedKeywords() []*KeywordDefinition {
	return []*KeywordDefinition{
		{Keyword: "unevaluatedProperties", Post: true, SchemaType: schemaValue, TrackErrors: true, Code: unevaluatedPropertiesCode},
		{Keyword: "unevaluatedItems", Post: true, SchemaType: schemaValue, Code: unevaluatedItemsCode},
	}
}

func requireTracking(k *KeywordCxt) error {
	if !k.It.c.opts.Unevaluated {
		return compileErrorf(k.It.errSchemaPath, k.Keyword, "unevaluated keywords require Options.Unevaluated")
	}
	return nil
}

func unevaluatedPropertiesCode(k *KeywordCxt) error {
	if err := requireTracking(k); err != nil {
		return err
	}
	it := k.It
	g := k.Gen
	props := it.props
	var err error
	propCode := func(key *codegen.Name) func() {
		return func() {
			if e := unevaluatedPropCode(k, key); e != nil {
				err = e
			}
		}
	}
	g.If(codegen.F("isType", k.Data, codegen.L("object")), func() {
		switch p := props.(type) {
		case *codegen.Name:
			g.If(codegen.Neq(p, codegen.True), func() {
				g.ForKeys("key", k.Data, func(key *codegen.Name) {
					g.If(codegen.Not(codegen.F("evaluated", p, key)), propCode(key))
				})
			})
		case map[string]bool:
			g.ForKeys("key", k.Data, func(key *codegen.Name) {
				var cs []codegen.Expr
				for _, name := range sortedKeys(p) {
					cs = append(cs, codegen.Neq(key, codegen.L(name)))
				}
				g.If(codegen.And(cs...), propCode(key))
			})
		default:
			if props != true {
				g.ForKeys("key", k.Data, func(key *codegen.Name) { propCode(key)() })
			}
		}
	})
	if err != nil {
		return err
	}
	it.props = true
	k.Ok(codegen.Eq(k.ErrsCount, codegen.F("errs", it.cx)))
	return nil
}

func unevaluatedPropCode(k *KeywordCxt, key *codegen.Name) error {
	g := k.Gen
	if k.Schema == false {
		k.ErrorWith(map[string]codegen.Expr{"unevaluatedProperty": key})
		if !k.AllErrors {
			g.Break("")
		}
		return nil
	}
	always, err := k.It.alwaysValid(k.Schema)
	if err != nil || always {
		return err
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

func unevaluatedItemsCode(k *KeywordCxt) error {
	if err := requireTracking(k); err != nil {
		return err
	}
	it := k.It
	items := it.items
	if items == true {
		return nil
	}
	g := k.Gen
	var from codegen.Expr = codegen.L(0)
	cond := codegen.F("isType", k.Data, codegen.L("array"))
	switch n := items.(type) {
	case *codegen.Name:
		from = codegen.F("itemsFrom", n)
		cond = codegen.And(cond, codegen.Neq(n, codegen.True))
	default:
		if c, ok := rt.Int(n); ok {
			from = codegen.L(c)
		}
	}
	g.BeginBlock()
	g.If(cond)
	n := g.Const("len", codegen.F("count", k.Data))
	if k.Schema == false {
		k.SetParams(map[string]codegen.Expr{"len": from}, false)
		k.Fail(codegen.Op(n, ">", from))
	} else {
		always, err := it.alwaysValid(k.Schema)
		if err != nil {
			return err
		}
		if !always {
			valid := g.Var("valid", codegen.Op(n, "<=", from))
			g.If(codegen.Not(valid), func() { err = validateItems(k, valid, from, n) })
			if err != nil {
				return err
			}
			k.Ok(valid)
		}
	}
	g.EndBlock(-1)
	it.items = true
	return nil
}
