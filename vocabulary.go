package skemac

import (
	"fmt"
	"regexp"
	"slices"

	"go.uber.org/zap"
)

var keywordNameRe = regexp.MustCompile(`^[a-zA-Z_$][a-zA-Z0-9_$:-]*$`)

type rule struct {
	keyword string
	def     *KeywordDefinition
	meta    *Validator // validator of the keyword value, from def.MetaSchema
}

type ruleGroup struct {
	typ   string // "" for the type-independent group
	rules []*rule
}

// vocabulary is the keyword table. Groups run in order: type-independent,
// number, string, array, object, then post.
type vocabulary struct {
	groups   []*ruleGroup
	post     *ruleGroup
	all      map[string]*rule
	keywords map[string]bool
	log      *zap.Logger
}

func newVocabulary(log *zap.Logger) *vocabulary {
	return &vocabulary{
		groups: []*ruleGroup{
			{typ: ""}, {typ: "number"}, {typ: "string"}, {typ: "array"}, {typ: "object"},
		},
		post:     &ruleGroup{},
		all:      map[string]*rule{},
		keywords: map[string]bool{"type": true, "nullable": true},
		log:      log,
	}
}

// known reports whether keyword is recognized, with or without behavior.
func (v *vocabulary) known(keyword string) bool { return v.keywords[keyword] }

func (v *vocabulary) addNames(names ...string) {
	for _, n := range names {
		v.keywords[n] = true
	}
}

func checkDefinition(def *KeywordDefinition) error {
	if !keywordNameRe.MatchString(def.Keyword) {
		return fmt.Errorf("skemac: invalid keyword name %q", def.Keyword)
	}
	shapes := 0
	for _, set := range []bool{def.Code != nil, def.Macro != nil, def.Compile != nil, def.Validate != nil} {
		if set {
			shapes++
		}
	}
	if shapes != 1 {
		return fmt.Errorf("skemac: keyword %q must define exactly one of Code, Macro, Compile or Validate", def.Keyword)
	}
	if def.Data && def.Code == nil && def.Validate == nil {
		return fmt.Errorf("skemac: $data keyword %q must have Code or Validate", def.Keyword)
	}
	if def.Post && len(def.Type) > 0 {
		return fmt.Errorf("skemac: post keyword %q cannot have Type", def.Keyword)
	}
	if def.Async && def.Code == nil && def.Validate == nil && def.Compile == nil {
		return fmt.Errorf("skemac: async keyword %q needs a callable", def.Keyword)
	}
	return nil
}

func (v *vocabulary) add(def *KeywordDefinition, meta *Validator) error {
	if v.keywords[def.Keyword] {
		return fmt.Errorf("%w: %s", ErrKeywordExists, def.Keyword)
	}
	if err := checkDefinition(def); err != nil {
		return err
	}
	r := &rule{keyword: def.Keyword, def: def, meta: meta}
	types := def.Type
	if len(types) == 0 {
		types = []string{""}
	}
	for _, t := range types {
		g := v.post
		if !def.Post {
			g = v.group(t)
		}
		v.insert(g, r, def.Before)
	}
	v.all[def.Keyword] = r
	v.keywords[def.Keyword] = true
	v.addNames(def.Implements...)
	return nil
}

func (v *vocabulary) group(t string) *ruleGroup {
	for _, g := range v.groups {
		if g.typ == t {
			return g
		}
	}
	g := &ruleGroup{typ: t}
	v.groups = append(v.groups, g)
	return g
}

func (v *vocabulary) insert(g *ruleGroup, r *rule, before string) {
	if before != "" {
		i := slices.IndexFunc(g.rules, func(x *rule) bool { return x.keyword == before })
		if i >= 0 {
			g.rules = slices.Insert(g.rules, i, r)
			return
		}
		v.log.Warn("keyword ordering target is not defined", zap.String("keyword", r.keyword), zap.String("before", before))
	}
	g.rules = append(g.rules, r)
}

func (v *vocabulary) remove(keyword string) {
	delete(v.all, keyword)
	delete(v.keywords, keyword)
	drop := func(g *ruleGroup) {
		g.rules = slices.DeleteFunc(g.rules, func(r *rule) bool { return r.keyword == keyword })
	}
	for _, g := range v.groups {
		drop(g)
	}
	drop(v.post)
}

func (v *vocabulary) hasRules(schema map[string]any) bool {
	for k := range schema {
		if k == "type" || v.all[k] != nil {
			return true
		}
	}
	return false
}

// hasRulesButRef reports whether schema has behavior besides "$ref".
func (v *vocabulary) hasRulesButRef(schema map[string]any) bool {
	for k := range schema {
		if k != "$ref" && (k == "type" || v.all[k] != nil) {
			return true
		}
	}
	return false
}

func shouldUseRule(schema map[string]any, r *rule) bool {
	if _, ok := schema[r.keyword]; ok {
		return true
	}
	for _, k := range r.def.Implements {
		if _, ok := schema[k]; ok {
			return true
		}
	}
	return false
}

func shouldUseGroup(schema map[string]any, g *ruleGroup) bool {
	for _, r := range g.rules {
		if shouldUseRule(schema, r) {
			return true
		}
	}
	return false
}
