package skemac

import (
	"fmt"
	"strings"

	"github.com/reoring/skemac/codegen"
	"github.com/reoring/skemac/rt"
	"go.uber.org/zap"
)

var jsonTypes = map[string]bool{
	"null": true, "boolean": true, "number": true, "integer": true, "string": true, "array": true, "object": true,
}

// SchemaCxt is the code generation context of one schema node: the data
// being validated, where it sits in the instance and the schema, and how
// errors are reported.
type SchemaCxt struct {
	c             *Compiler
	gen           *codegen.Builder
	env           *schemaEnv // environment of the function being generated
	schema        any
	baseID        string
	errSchemaPath string

	data        *codegen.Name
	parentData  codegen.Expr
	parentKey   codegen.Expr
	dataLevel   int
	dataNames   []*codegen.Name
	dataPathArr []codegen.Expr
	dataTypes   []string
	errorPath   codegen.Expr
	cx          *codegen.Name
	errs0       *codegen.Name

	propertyName  codegen.Expr
	compositeRule bool
	allErrors     bool
	props, items  any // evaluated properties and items
	depth         int
}

// Gen returns the IR builder.
func (it *SchemaCxt) Gen() *codegen.Builder { return it.gen }

// Schema returns the schema node.
func (it *SchemaCxt) Schema() any { return it.schema }

// SchemaPath returns the URI fragment of the schema node.
func (it *SchemaCxt) SchemaPath() string { return it.errSchemaPath }

// BaseID returns the base URI in effect.
func (it *SchemaCxt) BaseID() string { return it.baseID }

// Data returns the variable holding the validated value.
func (it *SchemaCxt) Data() *codegen.Name { return it.data }

// Cxt returns the variable holding the *rt.Cxt of the function.
func (it *SchemaCxt) Cxt() *codegen.Name { return it.cx }

// PropertyName is the property name being validated by propertyNames, or nil.
func (it *SchemaCxt) PropertyName() codegen.Expr { return it.propertyName }

// AllErrors reports whether every error is collected.
func (it *SchemaCxt) AllErrors() bool { return it.allErrors }

// Composite reports whether errors are provisional.
func (it *SchemaCxt) Composite() bool { return it.compositeRule }

// DataLevel is the nesting depth of the data inside the function.
func (it *SchemaCxt) DataLevel() int { return it.dataLevel }

// Options returns the compiler options.
func (it *SchemaCxt) Options() Options { return it.c.opts }

// strict applies the strict mode to a finding. The error is non-nil only
// under StrictError.
func (it *SchemaCxt) strict(msg, keyword string) error {
	switch it.c.opts.Strict {
	case StrictError:
		return compileErrorf(it.errSchemaPath, keyword, "strict mode: %s", msg)
	case StrictLog:
		it.c.log.Warn("strict mode: "+msg, zap.String("schemaPath", it.errSchemaPath), zap.String("keyword", keyword))
	}
	return nil
}

// topCode emits the body of a validator function.
func (it *SchemaCxt) topCode() error {
	g := it.gen
	it.errorPath = g.Const("path", codegen.F("instancePath", it.cx))
	it.errs0 = g.Const("errs", codegen.F("errs", it.cx))
	sch, isObj := it.schema.(map[string]any)
	if isObj {
		if err := it.checkKeywords(); err != nil {
			return err
		}
	}
	if !isObj || !it.c.vocab.hasRules(sch) {
		if it.schema == false {
			it.falseSchemaError(true)
			return nil
		}
		g.Return(codegen.True)
		return nil
	}
	if _, ok := sch["default"]; ok && it.c.opts.Defaults != DefaultsOff {
		if err := it.strict("default is ignored in the schema root", "default"); err != nil {
			return err
		}
	}
	if err := it.typeAndKeywords(it.errs0); err != nil {
		return err
	}
	it.returnResults()
	return nil
}

func (it *SchemaCxt) returnResults() {
	g := it.gen
	if it.c.opts.Unevaluated {
		g.Code(codegen.F("evalSet", it.cx, evalExpr(it.props), evalExpr(it.items)))
		_, dynProps := it.props.(*codegen.Name)
		_, dynItems := it.items.(*codegen.Name)
		it.env.dynamic = dynProps || dynItems
		if !it.env.dynamic {
			it.env.props, it.env.items = it.props, it.items
		}
	}
	valid := codegen.Eq(codegen.F("errs", it.cx), it.errs0)
	if it.env.async {
		g.If(valid, func() { g.Return(codegen.True) }, func() {
			g.Throw(codegen.F("validationError", it.cx, it.errs0))
		})
		return
	}
	g.Return(valid)
}

// checkKeywords applies the strict mode to unknown keywords.
func (it *SchemaCxt) checkKeywords() error {
	sch := it.schema.(map[string]any)
	for _, k := range sortedKeys(sch) {
		if !it.c.vocab.known(k) {
			if err := it.strict(fmt.Sprintf("unknown keyword: %q", k), k); err != nil {
				return err
			}
		}
	}
	return nil
}

func (it *SchemaCxt) typeAndKeywords(errsCount *codegen.Name) error {
	types, err := it.schemaTypes()
	if err != nil {
		return err
	}
	it.coerceAndCheckDataType(types)
	return it.schemaKeywords(errsCount)
}

// schemaTypes derives the applicable types from "type" and "nullable".
func (it *SchemaCxt) schemaTypes() ([]string, error) {
	sch := it.schema.(map[string]any)
	var types []string
	switch t := sch["type"].(type) {
	case nil:
	case string:
		types = []string{t}
	case []any:
		for _, e := range t {
			s, ok := e.(string)
			if !ok {
				return nil, compileErrorf(it.errSchemaPath, "type", "type must be a JSON type or a list of JSON types")
			}
			types = append(types, s)
		}
	default:
		return nil, compileErrorf(it.errSchemaPath, "type", "type must be a JSON type or a list of JSON types")
	}
	for _, t := range types {
		if !jsonTypes[t] {
			return nil, compileErrorf(it.errSchemaPath, "type", "unknown type %q", t)
		}
	}
	nullable, hasNullable := sch["nullable"]
	hasNull := false
	for _, t := range types {
		hasNull = hasNull || t == "null"
	}
	switch {
	case hasNull:
		if nullable == false {
			return nil, compileErrorf(it.errSchemaPath, "nullable", "type: null contradicts nullable: false")
		}
	case len(types) == 0 && hasNullable:
		return nil, compileErrorf(it.errSchemaPath, "nullable", `"nullable" cannot be used without "type"`)
	case nullable == true:
		types = append(types, "null")
	}
	return types, nil
}

func typeCheck(data codegen.Expr, types []string) codegen.Expr {
	var cs []codegen.Expr
	for _, t := range types {
		cs = append(cs, codegen.F("isType", data, codegen.L(t)))
	}
	return codegen.Or(cs...)
}

// coerceAndCheckDataType emits the type guard of the node, converting the
// value in place when coercion is enabled.
func (it *SchemaCxt) coerceAndCheckDataType(types []string) {
	if len(types) == 0 {
		return
	}
	g := it.gen
	wrong := codegen.Not(typeCheck(it.data, types))
	if it.c.opts.Coerce == CoerceOff {
		g.If(wrong, func() { it.typeError() })
		return
	}
	targets := make([]any, len(types))
	for i, t := range types {
		targets[i] = t
	}
	g.If(wrong, func() {
		coerced := g.Const("coerced", codegen.F("coerce", it.data, codegen.L(targets), codegen.L(it.c.opts.Coerce == CoerceArray)))
		g.If(codegen.Eq(coerced, codegen.Undefined), func() { it.typeError() }, func() {
			g.Assign(it.data, coerced)
			if lit, ok := it.parentData.(*codegen.Lit); !ok || lit.V != rt.Undefined {
				g.If(codegen.Neq(it.parentData, codegen.Undefined), func() {
					g.Assign(&codegen.Index{X: it.parentData, Key: it.parentKey}, coerced)
				})
			}
		})
	})
}

func (it *SchemaCxt) typeError() {
	sch := it.schema.(map[string]any)
	var t string
	switch v := sch["type"].(type) {
	case string:
		t = v
	case []any:
		parts := make([]string, len(v))
		for i, e := range v {
			parts[i] = rt.String(e)
		}
		t = strings.Join(parts, ",")
	}
	reportError(it, it.issueExpr("type", map[string]codegen.Expr{"type": codegen.L(t)}, it.c.tr.Message("type")))
}

// schemaKeywords emits the keyword groups. Under fail-fast each group after
// the first runs only when no error was found so far.
func (it *SchemaCxt) schemaKeywords(errsCount *codegen.Name) error {
	g := it.gen
	sch := it.schema.(map[string]any)
	v := it.c.vocab
	if r := v.all["$ref"]; r != nil {
		if _, ok := sch["$ref"]; ok && !v.hasRulesButRef(sch) {
			g.BeginBlock()
			if err := it.keywordCode(r, "$ref"); err != nil {
				return err
			}
			g.EndBlock(-1)
			return nil
		}
	}
	g.BeginBlock()
	for _, grp := range v.groups {
		if err := it.groupKeywords(grp, errsCount); err != nil {
			return err
		}
	}
	if err := it.groupKeywords(v.post, errsCount); err != nil {
		return err
	}
	g.EndBlock(-1)
	return nil
}

func (it *SchemaCxt) groupKeywords(grp *ruleGroup, errsCount *codegen.Name) error {
	sch := it.schema.(map[string]any)
	if !shouldUseGroup(sch, grp) {
		return nil
	}
	g := it.gen
	if grp.typ != "" {
		g.If(codegen.F("isType", it.data, codegen.L(grp.typ)))
		if err := it.iterateKeywords(grp); err != nil {
			return err
		}
		g.EndIf()
	} else if err := it.iterateKeywords(grp); err != nil {
		return err
	}
	if !it.allErrors {
		g.If(codegen.Eq(codegen.F("errs", it.cx), errsCount))
	}
	return nil
}

func (it *SchemaCxt) iterateKeywords(grp *ruleGroup) error {
	sch := it.schema.(map[string]any)
	if it.c.opts.Defaults != DefaultsOff {
		if err := it.assignDefaults(grp.typ); err != nil {
			return err
		}
	}
	g := it.gen
	g.BeginBlock()
	for _, r := range grp.rules {
		if shouldUseRule(sch, r) {
			if err := it.keywordCode(r, r.keyword); err != nil {
				return err
			}
		}
	}
	g.EndBlock(-1)
	return nil
}

// assignDefaults injects "default" values of properties and prefix items.
func (it *SchemaCxt) assignDefaults(typ string) error {
	sch := it.schema.(map[string]any)
	switch typ {
	case "object":
		props, _ := sch["properties"].(map[string]any)
		for _, p := range sortedKeys(props) {
			if ps, ok := props[p].(map[string]any); ok {
				if d, ok := ps["default"]; ok {
					if err := it.assignDefault(codegen.L(p), p, d); err != nil {
						return err
					}
				}
			}
		}
	case "array":
		items, _ := sch["prefixItems"].([]any)
		for i, s := range items {
			if ps, ok := s.(map[string]any); ok {
				if d, ok := ps["default"]; ok {
					if err := it.assignDefault(codegen.L(i), fmt.Sprint(i), d); err != nil {
						return err
					}
				}
			}
		}
	}
	return nil
}

func (it *SchemaCxt) assignDefault(key codegen.Expr, label string, value any) error {
	if it.compositeRule {
		return it.strict("default is ignored for: "+label, "default")
	}
	g := it.gen
	child := &codegen.Index{X: it.data, Key: key}
	cond := codegen.Eq(child, codegen.Undefined)
	if it.c.opts.Defaults == DefaultsEmpty {
		cond = codegen.Or(cond, codegen.Eq(child, codegen.Null), codegen.Eq(child, codegen.Empty))
	}
	g.If(cond, func() { g.Assign(child, codegen.F("clone", codegen.L(value))) })
	return nil
}

// subschemaCode emits the validation of a nested schema and declares valid.
func (it *SchemaCxt) subschemaCode(valid *codegen.Name) error {
	if sch, ok := it.schema.(map[string]any); ok {
		if err := it.checkKeywords(); err != nil {
			return err
		}
		if it.c.vocab.hasRules(sch) {
			return it.subSchemaObjCode(valid)
		}
	}
	it.boolOrEmptySchema(valid)
	return nil
}

func (it *SchemaCxt) subSchemaObjCode(valid *codegen.Name) error {
	sch := it.schema.(map[string]any)
	if id, ok := sch["$id"].(string); ok {
		it.baseID = resolveURL(it.baseID, id)
	}
	if sch["$async"] == true && !it.env.async {
		return compileErrorf(it.errSchemaPath, "$async", "async schema in sync schema")
	}
	g := it.gen
	errs := g.Const("errs", codegen.F("errs", it.cx))
	if err := it.typeAndKeywords(errs); err != nil {
		return err
	}
	g.Def(codegen.Var, valid, codegen.Eq(codegen.F("errs", it.cx), errs))
	return nil
}

func (it *SchemaCxt) boolOrEmptySchema(valid *codegen.Name) {
	if it.schema == false {
		it.gen.Def(codegen.Var, valid, codegen.False)
		it.falseSchemaError(false)
		return
	}
	it.gen.Def(codegen.Var, valid, codegen.True)
}

// alwaysValid reports whether a subschema accepts every value. Unknown
// keywords of the subschema are checked, since its code is skipped.
func (it *SchemaCxt) alwaysValid(schema any) (bool, error) {
	switch s := schema.(type) {
	case bool:
		return s, nil
	case map[string]any:
		it2 := *it
		it2.schema = s
		if err := it2.checkKeywords(); err != nil {
			return false, err
		}
		return !it.c.vocab.hasRules(s), nil
	}
	return false, nil
}
