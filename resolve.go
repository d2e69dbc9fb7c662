package skemac

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/reoring/skemac/rt"
	"go.uber.org/zap"
)

var anchorRe = regexp.MustCompile(`^[A-Za-z_][-A-Za-z0-9._]*$`)

// collectIDs walks a document once and returns its fragment identifiers
// and anchors (local) plus the absolute identifiers of nested schemas
// mapped to their pointer location (redirects). An identifier that names
// two different schemas is an error.
func (c *Compiler) collectIDs(schema any, baseID string) (map[string]localRef, map[string]string, error) {
	local := map[string]localRef{}
	redirects := map[string]string{}
	seen := map[string]bool{}
	prefix := fullPath(baseID) + "#"
	bases := []string{baseID}
	var err error

	addRef := func(sch map[string]any, base, ref, ptr string) string {
		if base != "" {
			ref = resolveURL(base, ref)
		}
		ref = normalizeID(ref)
		if seen[ref] {
			err = fmt.Errorf("%w: %q", ErrAmbiguousRef, ref)
			return ref
		}
		seen[ref] = true
		if existing, ok := c.refSchema(ref); ok {
			if !rt.Equal(sch, existing) {
				err = fmt.Errorf("%w: %q", ErrAmbiguousRef, ref)
			}
			return ref
		}
		full := prefix + ptr
		if ref == normalizeID(full) {
			return ref
		}
		if strings.HasPrefix(ref, "#") {
			if lr, ok := local[ref]; ok && !rt.Equal(lr.schema, sch) {
				err = fmt.Errorf("%w: %q", ErrAmbiguousRef, ref)
				return ref
			}
			local[ref] = localRef{schema: sch, ptr: ptr}
			return ref
		}
		redirects[ref] = full
		return ref
	}

	traverse(schema, func(sch map[string]any, ptr string, _ map[string]any, _, _ string) {
		base := bases[len(bases)-1]
		if err == nil && ptr != "" {
			if id, ok := sch["$id"]; ok {
				s, ok := id.(string)
				if !ok {
					err = compileErrorf("#"+ptr, "$id", "must be a string")
				} else {
					base = addRef(sch, base, s, ptr)
				}
			}
		}
		if a, ok := sch["$anchor"]; ok && err == nil {
			s, _ := a.(string)
			if !anchorRe.MatchString(s) {
				err = compileErrorf("#"+ptr, "$anchor", "invalid anchor %q", s)
			} else {
				addRef(sch, base, "#"+s, ptr)
			}
		}
		bases = append(bases, base)
	}, func(map[string]any, string, map[string]any, string, string) {
		bases = bases[:len(bases)-1]
	})
	if err != nil {
		return nil, nil, err
	}
	return local, redirects, nil
}

// refSchema returns the schema currently registered under an absolute
// identifier.
func (c *Compiler) refSchema(ref string) (any, bool) {
	switch v := c.refs[ref].(type) {
	case *schemaEnv:
		return v.schema, true
	case string:
		doc, ok := c.refs[fullPath(v)].(*schemaEnv)
		if !ok {
			return nil, false
		}
		frag, _ := fragmentOf(v)
		return walkPointer(doc.schema, frag)
	}
	return nil, false
}

// walkPointer follows a JSON pointer inside a schema document.
func walkPointer(schema any, ptr string) (any, bool) {
	if ptr == "" {
		return schema, true
	}
	toks, ok := pointerTokens(ptr)
	if !ok {
		return nil, false
	}
	cur := schema
	for _, tok := range toks {
		next, ok := child(cur, tok)
		if !ok {
			return nil, false
		}
		cur = next
	}
	return cur, true
}

func child(v any, tok string) (any, bool) {
	switch s := v.(type) {
	case map[string]any:
		x, ok := s[tok]
		return x, ok
	case []any:
		i, err := strconv.Atoi(tok)
		if err != nil || i < 0 || i >= len(s) {
			return nil, false
		}
		return s[i], true
	}
	return nil, false
}

// resolveRef resolves ref written in a schema with base baseID under the
// document root. Results are cached per document. It returns nil when the
// target is unknown.
func (c *Compiler) resolveRef(root *schemaEnv, baseID, ref string) (*refTarget, error) {
	abs := resolveURL(baseID, ref)
	if t, ok := root.refs[abs]; ok {
		// A failed compilation may have reset the target since it was cached.
		if !t.inline {
			if err := c.compileEnv(t.env); err != nil {
				return nil, err
			}
		}
		return t, nil
	}
	env := c.resolve(root, abs)
	if env == nil {
		if lr, ok := root.localRefs[abs]; ok {
			env = c.envFor(lr.schema, root, baseID, "#"+lr.ptr)
		}
	}
	if env == nil {
		return nil, nil
	}
	t := &refTarget{env: env, inline: !env.async && inlineRef(env.schema, c.opts.InlineRefs)}
	root.refs[abs] = t
	if t.inline {
		c.log.Debug("reference inlined", zap.String("ref", abs))
	} else {
		c.log.Debug("reference called", zap.String("ref", abs), zap.String("schemaPath", env.fragment))
		if err := c.compileEnv(env); err != nil {
			delete(root.refs, abs)
			return nil, err
		}
	}
	return t, nil
}

func (c *Compiler) resolve(root *schemaEnv, ref string) *schemaEnv {
	seen := map[string]bool{}
	for {
		next, ok := c.refs[ref].(string)
		if !ok || seen[ref] {
			break
		}
		seen[ref] = true
		ref = next
	}
	if env, ok := c.refs[ref].(*schemaEnv); ok {
		return env
	}
	if env := c.schemas[ref]; env != nil {
		return env
	}
	return c.resolveSchema(root, ref, 0)
}

func (c *Compiler) resolveSchema(root *schemaEnv, ref string, depth int) *schemaEnv {
	if depth > 32 {
		return nil
	}
	refPath := fullPath(ref)
	if m, ok := root.schema.(map[string]any); ok && len(m) > 0 && refPath == fullPath(root.baseID) {
		return c.jsonPointer(ref, root)
	}
	id := normalizeID(refPath)
	var doc *schemaEnv
	switch v := c.refs[id].(type) {
	case string:
		env := c.resolveSchema(root, v, depth+1)
		if env == nil {
			return nil
		}
		if _, ok := env.schema.(map[string]any); !ok {
			return nil
		}
		return c.jsonPointer(ref, env)
	case *schemaEnv:
		doc = v
	}
	if doc == nil {
		doc = c.schemas[id]
	}
	if doc == nil {
		return nil
	}
	if _, ok := doc.schema.(map[string]any); !ok {
		return nil
	}
	if id == normalizeID(ref) {
		return doc
	}
	return c.jsonPointer(ref, doc)
}

// jsonPointer resolves the pointer fragment of ref inside the schema of
// env. Identifiers met on the way change the base. A pointer landing on the
// document root yields nil so that the caller treats it as the root.
func (c *Compiler) jsonPointer(ref string, env *schemaEnv) *schemaEnv {
	i := strings.IndexByte(ref, '#')
	if i < 0 {
		return nil
	}
	raw := ref[i+1:]
	frag, _ := fragmentOf(ref)
	if !strings.HasPrefix(frag, "/") {
		return nil
	}
	toks, ok := pointerTokens(frag)
	if !ok {
		return nil
	}
	schema := env.schema
	base := env.baseID
	for _, tok := range toks {
		next, ok := child(schema, tok)
		if !ok {
			return nil
		}
		schema = next
		if m, ok := schema.(map[string]any); ok && !preventScopeChange[tok] {
			if id, ok := m["$id"].(string); ok {
				base = resolveURL(base, id)
			}
		}
	}
	if sameSchema(schema, env.root.schema) {
		return nil
	}
	fragment := "#" + raw
	if env.fragment != "#" {
		fragment = env.fragment + raw
	}
	return c.envFor(schema, env.root, base, fragment)
}
