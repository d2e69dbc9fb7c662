package skemac

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/reoring/skemac/codegen"
	"github.com/reoring/skemac/rt"
)

// KeywordDefinition describes a keyword. Exactly one of Code, Macro,
// Compile or Validate must be set.
type KeywordDefinition struct {
	Keyword string
	// Type lists the instance types the keyword applies to; the keyword is
	// skipped for other types. Empty means every type.
	Type []string
	// SchemaType lists the JSON types allowed for the keyword value.
	SchemaType []string
	// Implements names keywords handled by this one (e.g. "if" implements
	// "then" and "else").
	Implements []string
	// Dependencies must be present in the same schema object.
	Dependencies []string
	Before       string // insert before this keyword in its group
	Post         bool   // run after every typed group (unevaluated*)
	Data         bool   // accept {"$data": pointer} values
	Async        bool   // only allowed in "$async" schemas
	Modifying    bool   // Compile/Validate may replace the instance value
	TrackErrors  bool   // Code keywords that inspect errors of subschemas
	MetaSchema   any    // schema of the keyword value
	Error        *KeywordError

	Code     func(k *KeywordCxt) error
	Macro    func(schema any, parentSchema map[string]any, it *SchemaCxt) (any, error)
	Compile  func(schema any, parentSchema map[string]any, it *SchemaCxt) (rt.CheckFunc, error)
	Validate rt.ValidateFunc
}

// KeywordError customizes the issue produced by a keyword. Message is a
// template whose {name} placeholders are filled from the issue parameters;
// empty selects the localized catalog entry of the keyword.
type KeywordError struct {
	Message string
	Params  func(k *KeywordCxt) map[string]codegen.Expr
}

// KeywordCxt is the code generation context of one keyword occurrence.
type KeywordCxt struct {
	Gen          *codegen.Builder
	It           *SchemaCxt
	Keyword      string
	Def          *KeywordDefinition
	Data         *codegen.Name
	Schema       any          // keyword value; the raw {"$data": ...} object for $data values
	SchemaCode   codegen.Expr // literal value, or the variable holding the $data value
	ParentSchema map[string]any
	IsData       bool
	ErrsCount    *codegen.Name
	Params       map[string]codegen.Expr
	AllErrors    bool
}

func newKeywordCxt(it *SchemaCxt, r *rule, keyword string) (*KeywordCxt, error) {
	sch := it.schema.(map[string]any)
	def := r.def
	k := &KeywordCxt{
		Gen:          it.gen,
		It:           it,
		Keyword:      keyword,
		Def:          def,
		Data:         it.data,
		Schema:       sch[keyword],
		ParentSchema: sch,
		Params:       map[string]codegen.Expr{},
		AllErrors:    it.allErrors,
	}
	if err := it.checkKeywordUsage(k, r); err != nil {
		return nil, err
	}
	if ptr, ok := dataRef(k.Schema); ok && def.Data && it.c.opts.Data {
		data, err := it.getData(ptr)
		if err != nil {
			return nil, err
		}
		k.IsData = true
		k.SchemaCode = it.gen.Const("vSchema", data)
	} else {
		k.SchemaCode = codegen.L(k.Schema)
		if !validSchemaType(k.Schema, def.SchemaType) {
			return nil, compileErrorf(it.errSchemaPath, keyword, "value must be %s", strings.Join(def.SchemaType, " or "))
		}
	}
	if def.Code == nil || def.TrackErrors {
		k.ErrsCount = it.gen.Const("errs", codegen.F("errs", it.cx))
	}
	return k, nil
}

func dataRef(v any) (string, bool) {
	m, ok := v.(map[string]any)
	if !ok || len(m) != 1 {
		return "", false
	}
	s, ok := m["$data"].(string)
	return s, ok
}

func validSchemaType(v any, types []string) bool {
	if len(types) == 0 {
		return true
	}
	for _, t := range types {
		if rt.IsType(v, t) {
			return true
		}
	}
	return false
}

func (it *SchemaCxt) checkKeywordUsage(k *KeywordCxt, r *rule) error {
	def := r.def
	if def.Async && !it.env.async {
		return &CompileError{SchemaPath: it.errSchemaPath, Keyword: k.Keyword, Err: ErrAsyncKeyword}
	}
	for _, dep := range def.Dependencies {
		if _, ok := k.ParentSchema[dep]; !ok {
			return compileErrorf(it.errSchemaPath, k.Keyword, "parent schema must have dependencies of %s: %s", k.Keyword, strings.Join(def.Dependencies, ","))
		}
	}
	if r.meta == nil {
		return nil
	}
	if _, ok := dataRef(k.Schema); ok && def.Data && it.c.opts.Data {
		return nil
	}
	if err := r.meta.Validate(context.Background(), k.Schema); err != nil {
		return it.strict(fmt.Sprintf("keyword value is invalid: %v", err), k.Keyword)
	}
	return nil
}

// Template returns the message template of the keyword.
func (k *KeywordCxt) Template() string {
	if k.Def != nil && k.Def.Error != nil && k.Def.Error.Message != "" {
		return k.Def.Error.Message
	}
	return k.It.c.tr.Message(k.Keyword)
}

func (k *KeywordCxt) params() map[string]codegen.Expr {
	if len(k.Params) > 0 || k.Def == nil || k.Def.Error == nil || k.Def.Error.Params == nil {
		return k.Params
	}
	return k.Def.Error.Params(k)
}

// issue builds the issue expression of the keyword with the current params.
func (k *KeywordCxt) issue() codegen.Expr {
	return k.It.issueExpr(k.Keyword, k.params(), k.Template())
}

// SetParams replaces (or, with merge, extends) the issue parameters.
func (k *KeywordCxt) SetParams(params map[string]codegen.Expr, merge bool) {
	if !merge {
		k.Params = map[string]codegen.Expr{}
	}
	for n, v := range params {
		k.Params[n] = v
	}
}

// Error reports the keyword issue.
func (k *KeywordCxt) Error() { reportError(k.It, k.issue()) }

// ErrorWith reports the keyword issue with params for this report only.
func (k *KeywordCxt) ErrorWith(params map[string]codegen.Expr) {
	saved := k.Params
	k.Params = params
	k.Error()
	k.Params = saved
}

// Fail emits an error when cond holds. Under fail-fast the code following
// runs in the else branch, closed at the end of the keyword group. A nil
// cond fails unconditionally.
func (k *KeywordCxt) Fail(cond codegen.Expr) {
	g := k.Gen
	if cond == nil {
		k.Error()
		if !k.AllErrors {
			g.If(codegen.False)
		}
		return
	}
	g.If(cond)
	k.Error()
	if k.AllErrors {
		g.EndIf()
	} else {
		g.Else()
	}
}

// FailData is Fail that also fails on an invalid $data value and passes on
// an absent one.
func (k *KeywordCxt) FailData(cond codegen.Expr) {
	if !k.IsData {
		k.Fail(cond)
		return
	}
	k.Fail(codegen.And(codegen.Neq(k.SchemaCode, codegen.Undefined), codegen.Or(k.InvalidData(), cond)))
}

// Pass fails when cond does not hold; failAction replaces the default
// error report.
func (k *KeywordCxt) Pass(cond codegen.Expr, failAction func()) {
	k.FailResult(codegen.Not(cond), nil, failAction)
}

// Result is Pass with a success action.
func (k *KeywordCxt) Result(cond codegen.Expr, success, failAction func()) {
	k.FailResult(codegen.Not(cond), success, failAction)
}

// FailResult runs failAction (default: report the issue) when cond holds
// and success otherwise.
func (k *KeywordCxt) FailResult(cond codegen.Expr, success, failAction func()) {
	g := k.Gen
	g.If(cond)
	if failAction != nil {
		failAction()
	} else {
		k.Error()
	}
	if success != nil {
		g.Else()
		success()
		if k.AllErrors {
			g.EndIf()
		}
		return
	}
	if k.AllErrors {
		g.EndIf()
	} else {
		g.Else()
	}
}

// Ok continues under fail-fast only when cond holds.
func (k *KeywordCxt) Ok(cond codegen.Expr) {
	if !k.AllErrors {
		k.Gen.If(cond)
	}
}

// Reset discards the errors collected since the keyword started.
func (k *KeywordCxt) Reset() {
	if k.ErrsCount == nil {
		panic(&codegen.ProgramStructureError{Op: "reset", Msg: "keyword " + k.Keyword + " does not track errors"})
	}
	k.Gen.Code(codegen.F("trunc", k.It.cx, k.ErrsCount))
}

// InvalidData is true when the $data value has the wrong type.
func (k *KeywordCxt) InvalidData() codegen.Expr {
	if !k.IsData || len(k.Def.SchemaType) == 0 {
		return codegen.False
	}
	var ok []codegen.Expr
	for _, t := range k.Def.SchemaType {
		ok = append(ok, codegen.F("isType", k.SchemaCode, codegen.L(t)))
	}
	return codegen.Not(codegen.Or(ok...))
}

// CheckData opens the branch in which a $data value is present and valid.
// Absent values pass (valid is set true); invalid ones report a $data
// issue (valid is set false). valid may be nil.
func (k *KeywordCxt) CheckData(valid *codegen.Name) {
	if !k.IsData {
		return
	}
	g := k.Gen
	g.If(codegen.Eq(k.SchemaCode, codegen.Undefined))
	if valid != nil {
		g.Assign(valid, codegen.True)
	}
	if len(k.Def.SchemaType) > 0 {
		g.ElseIf(k.InvalidData())
		k.dataError()
		if valid != nil {
			g.Assign(valid, codegen.False)
		}
	}
	g.Else()
}

// BlockData runs body inside CheckData and closes every branch it opened.
func (k *KeywordCxt) BlockData(valid *codegen.Name, body func()) {
	k.Gen.BeginBlock()
	k.CheckData(valid)
	body()
	k.Gen.EndBlock(-1)
}

func (k *KeywordCxt) dataError() {
	params := map[string]codegen.Expr{
		"keyword":  codegen.L(k.Keyword),
		"expected": codegen.L(strings.Join(k.Def.SchemaType, " or ")),
	}
	reportError(k.It, k.It.issueExpr("$data", params, k.It.c.tr.Message("$data")))
}

// Value hoists a runtime value for generated code. code rebuilds it in
// exported programs; nil makes the validator unexportable.
func (k *KeywordCxt) Value(prefix string, key, ref any, code codegen.Expr) *codegen.Name {
	return k.It.c.scope.Value(prefix, codegen.ValueSpec{Key: key, Ref: ref, Code: code})
}

// InstancePath is the instance location of the keyword data.
func (k *KeywordCxt) InstancePath() codegen.Expr { return k.It.errorPath }

// SchemaPath is the schema location of the keyword.
func (k *KeywordCxt) SchemaPath() string { return k.It.errSchemaPath + "/" + escapeFragment(k.Keyword) }

// MarkAllEvaluated records that every property or item of the data was
// evaluated.
func (k *KeywordCxt) MarkAllEvaluated(props, items bool) {
	if props {
		k.It.props = true
	}
	if items {
		k.It.items = true
	}
}

// keywordCode emits the code of one keyword occurrence.
func (it *SchemaCxt) keywordCode(r *rule, keyword string) error {
	k, err := newKeywordCxt(it, r, keyword)
	if err != nil {
		return err
	}
	def := r.def
	switch {
	case def.Code != nil:
		err = def.Code(k)
	case def.Macro != nil:
		err = k.macroCode()
	default:
		err = k.funcCode()
	}
	if err == nil {
		return nil
	}
	var ce *CompileError
	if errors.As(err, &ce) {
		return err
	}
	var pe *codegen.ProgramStructureError
	if errors.As(err, &pe) {
		return err
	}
	return &CompileError{SchemaPath: it.errSchemaPath, Keyword: keyword, Err: err}
}

func (k *KeywordCxt) macroCode() error {
	it := k.It
	sch, err := k.Def.Macro(k.Schema, k.ParentSchema, it)
	if err != nil {
		return err
	}
	valid := it.gen.Name("valid")
	if _, err := k.Subschema(SubschemaArgs{Schema: sch, ErrSchemaPath: k.SchemaPath(), CompositeRule: true}, valid); err != nil {
		return err
	}
	k.Pass(valid, func() { k.Error() })
	return nil
}

type callableKey struct {
	def  *KeywordDefinition
	site *int
}

func (k *KeywordCxt) funcCode() error {
	it := k.It
	g := k.Gen
	def := k.Def
	var fnName *codegen.Name
	var call func(valid *codegen.Name)
	if def.Compile != nil && !k.IsData {
		check, err := def.Compile(k.Schema, k.ParentSchema, it)
		if err != nil {
			return err
		}
		fnName = k.Value("keyword", callableKey{def: def, site: new(int)}, check, nil)
		call = func(valid *codegen.Name) {
			g.Assign(valid, codegen.F("kwCheck", fnName, it.data, it.cx, it.errorPath, it.parentData, it.parentKey, k.issue()))
		}
	} else {
		if def.Validate == nil {
			return compileErrorf(it.errSchemaPath, k.Keyword, "$data value needs a validate function")
		}
		fnName = k.Value("keyword", callableKey{def: def}, def.Validate, nil)
		call = func(valid *codegen.Name) {
			g.Assign(valid, codegen.F("kwValidate", fnName, k.SchemaCode, it.data, codegen.L(k.ParentSchema), it.cx, it.errorPath, it.parentData, it.parentKey, k.issue()))
		}
	}
	valid := g.Let("valid", codegen.True)
	k.BlockData(valid, func() {
		call(valid)
		if def.Modifying {
			g.Assign(it.data, &codegen.Index{X: it.parentData, Key: it.parentKey})
		}
		g.If(codegen.Not(valid), func() { failExit(it) })
	})
	k.Ok(valid)
	return nil
}
