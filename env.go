package skemac

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/reoring/skemac/codegen"
	"github.com/reoring/skemac/rt"
	"go.uber.org/zap"
)

type envState int

const (
	envIdle envState = iota
	envCompiling
	envCompiled
)

// localRef is a fragment identifier or anchor declared inside a document
// without an absolute base.
type localRef struct {
	schema any
	ptr    string
}

// refTarget is a resolved reference: either a separately compiled
// environment or one spliced into the caller.
type refTarget struct {
	env    *schemaEnv
	inline bool
}

// schemaEnv is the compilation unit of one schema node. Environments are
// keyed by schema identity, so a node reached through several references
// compiles once.
type schemaEnv struct {
	schema    any
	root      *schemaEnv
	baseID    string
	fragment  string // schema path of the node inside its document
	localRefs map[string]localRef
	refs      map[string]*refTarget // root only
	ids       []string              // index entries owned by this document
	async     bool
	meta      bool

	state    envState
	fn       *codegen.Name // slot resolved to the compiled function
	funcNode *codegen.Func
	guard    bool

	// Evaluated summary of the compiled function when it is known
	// statically; dynamic means callers read it from the callee context.
	props, items any
	dynamic      bool

	validator *Validator
}

// reset discards the compiled state of env.
func (e *schemaEnv) reset() {
	e.state = envIdle
	e.funcNode = nil
	e.guard = false
	e.props, e.items = rt.Undefined, rt.Undefined
	e.dynamic = false
	e.validator = nil
}

func (c *Compiler) newEnv(schema any, root *schemaEnv, baseID, fragment string) *schemaEnv {
	env := &schemaEnv{schema: schema, root: root, baseID: baseID, fragment: fragment, props: rt.Undefined, items: rt.Undefined}
	if root == nil {
		env.root = env
		env.refs = map[string]*refTarget{}
	}
	if m, ok := schema.(map[string]any); ok {
		env.async = m["$async"] == true
	}
	env.fn = c.scope.Value("validate", codegen.ValueSpec{Key: env})
	return env
}

// schemaKey returns the identity of a schema object.
func schemaKey(schema any) (uintptr, bool) {
	m, ok := schema.(map[string]any)
	if !ok || m == nil {
		return 0, false
	}
	return reflect.ValueOf(m).Pointer(), true
}

func sameSchema(a, b any) bool {
	ka, ok1 := schemaKey(a)
	kb, ok2 := schemaKey(b)
	return ok1 && ok2 && ka == kb
}

// envFor returns the environment of schema, creating it on first use.
func (c *Compiler) envFor(schema any, root *schemaEnv, baseID, fragment string) *schemaEnv {
	key, ok := schemaKey(schema)
	if ok {
		if env := c.cache[key]; env != nil {
			return env
		}
	}
	env := c.newEnv(schema, root, baseID, fragment)
	if ok {
		c.cache[key] = env
	}
	return env
}

// addSchema registers a document: its own identifier and every nested
// identifier and anchor. Registration is all-or-nothing.
func (c *Compiler) addSchema(schema any, baseID string, meta bool) (*schemaEnv, error) {
	var id string
	switch s := schema.(type) {
	case map[string]any:
		if v, ok := s["$id"]; ok {
			str, ok := v.(string)
			if !ok {
				return nil, compileErrorf("#", "$id", "must be a string")
			}
			id = str
		}
	case bool:
	default:
		return nil, compileErrorf("#", "", "schema must be an object or boolean, got %T", schema)
	}
	key, keyed := schemaKey(schema)
	if keyed {
		if env := c.cache[key]; env != nil {
			return env, nil
		}
	}
	if id != "" {
		baseID = id
	}
	baseID = normalizeID(baseID)
	if baseID != "" && !strings.HasPrefix(baseID, "#") {
		if err := c.checkUnique(baseID); err != nil {
			return nil, err
		}
	}
	local, redirects, err := c.collectIDs(schema, baseID)
	if err != nil {
		return nil, err
	}
	env := c.newEnv(schema, nil, baseID, "#")
	env.localRefs = local
	env.meta = meta
	if baseID != "" && !strings.HasPrefix(baseID, "#") {
		c.refs[baseID] = env
		env.ids = append(env.ids, baseID)
	}
	for _, ref := range sortedKeys(redirects) {
		c.refs[ref] = redirects[ref]
		env.ids = append(env.ids, ref)
	}
	if keyed {
		c.cache[key] = env
	}
	c.log.Debug("schema added", zap.String("id", baseID), zap.Int("ids", len(env.ids)))
	return env, nil
}

func (c *Compiler) checkUnique(id string) error {
	if _, ok := c.refs[id]; ok {
		return fmt.Errorf("%w: %s", ErrSchemaExists, id)
	}
	if c.schemas[id] != nil {
		return fmt.Errorf("%w: %s", ErrSchemaExists, id)
	}
	return nil
}

// removeEnv drops a document, its cache entries and every index entry it
// registered.
func (c *Compiler) removeEnv(env *schemaEnv) {
	for _, id := range env.ids {
		if c.refs[id] == any(env) || isRedirect(c.refs[id]) {
			delete(c.refs, id)
		}
	}
	for k, v := range c.schemas {
		if v == env {
			delete(c.schemas, k)
		}
	}
	for k, v := range c.cache {
		if v.root == env {
			delete(c.cache, k)
			c.scope.Remove("validate", v)
		}
	}
}

func isRedirect(v any) bool {
	_, ok := v.(string)
	return ok
}
