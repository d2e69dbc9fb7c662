package skemac

import (
	"fmt"
	"slices"
	"strconv"

	"github.com/go-openapi/jsonpointer"
	"github.com/reoring/skemac/codegen"
	"github.com/reoring/skemac/rt"
)

// DataPropType tells how a dynamic data property is rendered in paths.
type DataPropType int

const (
	PropString DataPropType = iota // escaped as a JSON pointer token
	PropIndex                      // array index
)

// SubschemaArgs selects the schema and the data of a nested validation.
// The schema is either Keyword (optionally indexed by SchemaProp) of the
// current schema, or an explicit Schema located at ErrSchemaPath.
type SubschemaArgs struct {
	Keyword       string
	SchemaProp    any // string or int
	Schema        any
	ErrSchemaPath string
	BaseID        string

	// DataProp descends into a property or item of the current data: a
	// string or int literal, or a variable.
	DataProp     any
	DataPropType DataPropType
	// Data validates an unrelated value, e.g. a property name.
	Data         codegen.Expr
	DataTypes    []string
	PropertyName codegen.Expr

	CompositeRule bool
	FailFast      bool // stop at the first error even with AllErrors
}

// Subschema emits the validation of a nested schema, storing its validity
// in valid, and returns the nested context for evaluated merging. A
// *CompileError from the nested schema is returned as is; Code functions
// pass it up unchanged.
func (k *KeywordCxt) Subschema(args SubschemaArgs, valid *codegen.Name) (*SchemaCxt, error) {
	if args.Keyword == "" && args.Schema == nil {
		args.Keyword = k.Keyword
	}
	sub, err := k.It.subschema(args)
	if err != nil {
		return nil, err
	}
	if err := sub.subschemaCode(valid); err != nil {
		return nil, err
	}
	return sub, nil
}

func (it *SchemaCxt) subschema(a SubschemaArgs) (*SchemaCxt, error) {
	sub := *it
	sub.props, sub.items = rt.Undefined, rt.Undefined
	sub.depth++
	if limit := it.c.opts.MaxDepth; limit > 0 && sub.depth > limit {
		return nil, &CompileError{SchemaPath: it.errSchemaPath, Err: fmt.Errorf("%w (%d)", ErrTooDeep, limit)}
	}
	switch {
	case a.Keyword != "":
		v := it.schema.(map[string]any)[a.Keyword]
		path := it.errSchemaPath + "/" + escapeFragment(a.Keyword)
		if a.SchemaProp != nil {
			tok := propToken(a.SchemaProp)
			v, _ = child(v, tok)
			path += "/" + escapeFragment(tok)
		}
		sub.schema = v
		sub.errSchemaPath = path
	case a.Schema != nil:
		sub.schema = a.Schema
		sub.errSchemaPath = a.ErrSchemaPath
		if a.BaseID != "" {
			sub.baseID = a.BaseID
		}
	default:
		return nil, &codegen.ProgramStructureError{Op: "subschema", Msg: "either Keyword or Schema is required"}
	}

	g := it.gen
	if a.DataProp != nil {
		key := propExpr(a.DataProp)
		sub.errorPath = childPath(it.errorPath, a.DataProp, a.DataPropType)
		next := g.Let("data", &codegen.Index{X: it.data, Key: key})
		sub.enterData(it, next)
		sub.parentData = it.data
		sub.parentKey = key
		sub.dataPathArr = append(slices.Clip(it.dataPathArr), key)
	}
	if a.Data != nil {
		next, ok := a.Data.(*codegen.Name)
		if !ok {
			next = g.Let("data", a.Data)
		}
		sub.enterData(it, next)
		sub.parentData = codegen.Undefined
		sub.parentKey = codegen.Undefined
		sub.dataPathArr = append(slices.Clip(it.dataPathArr), codegen.Undefined)
		if a.PropertyName != nil {
			sub.propertyName = a.PropertyName
		}
	}
	if a.DataTypes != nil {
		sub.dataTypes = a.DataTypes
	}
	if a.CompositeRule {
		sub.compositeRule = true
	}
	if a.FailFast {
		sub.allErrors = false
	}
	return &sub, nil
}

func (sub *SchemaCxt) enterData(parent *SchemaCxt, next *codegen.Name) {
	sub.data = next
	sub.dataLevel = parent.dataLevel + 1
	sub.dataTypes = nil
	sub.dataNames = append(slices.Clip(parent.dataNames), next)
}

func propToken(p any) string {
	switch v := p.(type) {
	case string:
		return v
	case int:
		return strconv.Itoa(v)
	}
	return fmt.Sprint(p)
}

func propExpr(p any) codegen.Expr {
	if e, ok := p.(codegen.Expr); ok {
		return e
	}
	return codegen.L(p)
}

// childPath extends an instance path expression by one token.
func childPath(path codegen.Expr, prop any, typ DataPropType) codegen.Expr {
	switch v := prop.(type) {
	case string:
		return codegen.Str(path, "/"+jsonpointer.Escape(v))
	case int:
		return codegen.Str(path, "/"+strconv.Itoa(v))
	case codegen.Expr:
		if typ == PropIndex {
			return codegen.Str(path, "/", v)
		}
		return codegen.Str(path, "/", codegen.F("escPath", v))
	}
	return codegen.Str(path, "/"+fmt.Sprint(prop))
}
