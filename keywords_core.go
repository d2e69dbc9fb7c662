package skemac

import (
	"github.com/reoring/skemac/codegen"
	"github.com/reoring/skemac/rt"
)

// builtinKeywords returns the draft 2020-12 vocabulary in rule order.
func builtinKeywords() []*KeywordDefinition {
	var defs []*KeywordDefinition
	defs = append(defs, refKeyword())
	defs = append(defs, validationKeywords()...)
	defs = append(defs, applicatorKeywords()...)
	defs = append(defs, formatKeyword())
	defs = append(defs, unevaluatedKeywords()...)
	return defs
}

func refKeyword() *KeywordDefinition {
	return &KeywordDefinition{
		Keyword:    "$ref",
		SchemaType: []string{"string"},
		Code:       refCode,
	}
}

func refCode(k *KeywordCxt) error {
	it := k.It
	c := it.c
	ref := k.Schema.(string)
	root := it.env.root
	var target *refTarget
	if (ref == "#" || ref == "#/") && it.baseID == root.baseID {
		target = &refTarget{env: root}
		if err := c.compileEnv(root); err != nil {
			return err
		}
	} else {
		var err error
		if target, err = c.resolveRef(root, it.baseID, ref); err != nil {
			return err
		}
	}
	if target == nil {
		abs := normalizeID(resolveURL(it.baseID, ref))
		return &MissingReferenceError{Ref: ref, MissingRef: abs, MissingSchema: fullPath(abs)}
	}
	if target.inline {
		return inlineRefCode(k, target.env)
	}
	env := target.env
	if env.async && !it.env.async {
		return compileErrorf(it.errSchemaPath, "$ref", "async schema referenced by sync schema")
	}
	if env.state == envCompiling && it.dataLevel == 0 {
		env.guard = true
	}
	callRefCode(k, env)
	return nil
}

func inlineRefCode(k *KeywordCxt, env *schemaEnv) error {
	valid := k.Gen.Name("valid")
	sub, err := k.Subschema(SubschemaArgs{Schema: env.schema, ErrSchemaPath: env.fragment, BaseID: env.baseID}, valid)
	if err != nil {
		return err
	}
	k.MergeEvaluated(sub)
	k.Ok(valid)
	return nil
}

// callRefCode calls the validator function of env with a child context.
func callRefCode(k *KeywordCxt, env *schemaEnv) {
	it := k.It
	g := k.Gen
	cx := g.Const("cx", codegen.F("child", it.cx, it.errorPath, it.parentData, it.parentKey))
	call := &codegen.Invoke{Fn: env.fn, Args: []codegen.Expr{it.data, cx}, Await: env.async}
	if !env.async {
		valid := g.Const("valid", call)
		k.Result(valid, func() { addEvaluatedFrom(k, env, cx) }, func() { failExit(it) })
		return
	}
	valid := g.Let("valid", nil)
	g.Try(func() {
		g.Code(call)
		addEvaluatedFrom(k, env, cx)
		g.Assign(valid, codegen.True)
	}, func(e *codegen.Name) {
		g.If(codegen.Not(codegen.F("isValidationError", e)), func() { g.Throw(e) })
		g.Code(codegen.F("pushAll", it.cx, e))
		g.Assign(valid, codegen.False)
	}, nil)
	k.Ok(valid)
}

// addEvaluatedFrom merges what the called function evaluated: folded at
// compile time when its summary is static, read from cx otherwise.
func addEvaluatedFrom(k *KeywordCxt, env *schemaEnv, cx *codegen.Name) {
	it := k.It
	if !it.c.opts.Unevaluated {
		return
	}
	static := env.state == envCompiled && !env.dynamic
	g := k.Gen
	if it.props != true {
		if static {
			if env.props != rt.Undefined {
				it.props = mergeProps(g, env.props, it.props)
			}
		} else {
			it.props = mergeProps(g, g.Let("props", codegen.F("evalProps", cx)), it.props)
		}
	}
	if it.items != true {
		if static {
			if env.items != rt.Undefined {
				it.items = mergeItems(g, env.items, it.items)
			}
		} else {
			it.items = mergeItems(g, g.Let("items", codegen.F("evalItems", cx)), it.items)
		}
	}
}

// usePattern hoists a compiled regular expression.
func usePattern(k *KeywordCxt, pattern string) (*codegen.Name, error) {
	if n, ok := k.It.c.scope.Get("pattern", pattern); ok {
		return n, nil
	}
	re, err := compilePattern(pattern)
	if err != nil {
		return nil, compileErrorf(k.It.errSchemaPath, k.Keyword, "invalid pattern %q: %v", pattern, err)
	}
	return k.Value("pattern", pattern, re, codegen.F("regexp", codegen.L(pattern))), nil
}

func checkSubschema(k *KeywordCxt, v any) error {
	switch v.(type) {
	case bool, map[string]any:
		return nil
	}
	return compileErrorf(k.It.errSchemaPath, k.Keyword, "value must be a schema, got %s", rt.TypeOf(v))
}
