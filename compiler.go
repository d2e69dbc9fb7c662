package skemac

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/reoring/skemac/codegen"
	"github.com/reoring/skemac/i18n"
	"github.com/reoring/skemac/internal/vm"
	"github.com/reoring/skemac/rt"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// valuePrefixes are the identifier prefixes owned by the shared value table.
var valuePrefixes = []string{"validate", "schema", "pattern", "format", "keyword", "value"}

// annotationKeywords are recognized without behavior.
var annotationKeywords = []string{
	"$id", "$schema", "$anchor", "$defs", "definitions", "$comment", "$async", "$vocabulary",
	"title", "description", "default", "examples", "deprecated", "readOnly", "writeOnly",
	"contentMediaType", "contentEncoding", "contentSchema", "minContains", "maxContains",
}

// Compiler turns schema documents into validators. Methods are safe for
// concurrent use; compilations are serialized.
type Compiler struct {
	mu      sync.Mutex
	opts    Options
	log     *zap.Logger
	tr      i18n.Translator
	vocab   *vocabulary
	scope   *codegen.ValueScope
	refs    map[string]any // absolute id -> *schemaEnv or redirect
	schemas map[string]*schemaEnv
	cache   map[uintptr]*schemaEnv
	formats map[string]*Format
	frozen  bool
	loads   singleflight.Group

	// Environments entered by the current top-level compileEnv call.
	depth   int
	touched []*schemaEnv
}

// New returns a compiler with the built-in draft 2020-12 vocabulary.
func New(opts Options) *Compiler {
	opts.normalize()
	c := &Compiler{
		opts:    opts,
		log:     opts.Logger,
		tr:      i18n.For(opts.Language),
		scope:   codegen.NewValueScope(valuePrefixes...),
		refs:    map[string]any{},
		schemas: map[string]*schemaEnv{},
		cache:   map[uintptr]*schemaEnv{},
		formats: map[string]*Format{},
	}
	c.vocab = newVocabulary(c.log)
	c.vocab.addNames(annotationKeywords...)
	for _, def := range builtinKeywords() {
		if err := c.vocab.add(def, nil); err != nil {
			panic(err)
		}
	}
	for _, name := range builtinFormatNames() {
		f, _ := rt.LookupFormat(name)
		c.formats[name] = f
	}
	return c
}

// Options returns the configuration of c.
func (c *Compiler) Options() Options { return c.opts }

// Compile compiles schema (a decoded JSON object or a boolean). Compiling
// the same schema object again returns the same validator.
func (c *Compiler) Compile(schema any) (*Validator, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.compile(schema)
}

func (c *Compiler) compile(schema any) (*Validator, error) {
	env, err := c.addSchema(schema, "", false)
	if err != nil {
		return nil, err
	}
	if err := c.compileEnv(env); err != nil {
		return nil, err
	}
	return env.validator, nil
}

// CompileAsync is Compile that fetches missing referenced documents with
// Options.Loader and retries. Loads are sequential; a document that is
// loaded but still cannot be resolved fails the compilation.
func (c *Compiler) CompileAsync(ctx context.Context, schema any) (*Validator, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	loaded := map[string]bool{}
	for {
		v, err := c.compile(schema)
		var missing *MissingReferenceError
		if err == nil || !errors.As(err, &missing) {
			return v, err
		}
		if c.opts.Loader == nil {
			return nil, fmt.Errorf("%w: %w", ErrNoLoader, err)
		}
		if loaded[missing.MissingSchema] {
			return nil, fmt.Errorf("skemac: schema %s is loaded but %s cannot be resolved: %w", missing.MissingSchema, missing.MissingRef, err)
		}
		loaded[missing.MissingSchema] = true
		if err := c.load(ctx, missing.MissingSchema); err != nil {
			return nil, err
		}
	}
}

// load fetches uri without holding the lock. Concurrent loads of the same
// document share one fetch.
func (c *Compiler) load(ctx context.Context, uri string) error {
	c.mu.Unlock()
	sch, err, _ := c.loads.Do(uri, func() (any, error) {
		c.log.Debug("loading schema", zap.String("uri", uri))
		return c.opts.Loader(ctx, uri)
	})
	c.mu.Lock()
	if err != nil {
		return fmt.Errorf("skemac: load %s: %w", uri, err)
	}
	if _, ok := c.refs[uri]; ok || c.schemas[uri] != nil {
		return nil
	}
	return c.addSchemaKey(sch, uri)
}

// AddSchema registers a schema document for references. key defaults to
// the document "$id".
func (c *Compiler) AddSchema(schema any, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.addSchemaKey(schema, key)
}

func (c *Compiler) addSchemaKey(schema any, key string) error {
	if key == "" {
		if m, ok := schema.(map[string]any); ok {
			key, _ = m["$id"].(string)
		}
	}
	key = normalizeID(key)
	if key != "" {
		if err := c.checkUnique(key); err != nil {
			return err
		}
	}
	env, err := c.addSchema(schema, key, false)
	if err != nil {
		return err
	}
	if key != "" {
		c.schemas[key] = env
	}
	return nil
}

// GetSchema compiles and returns the validator of a registered schema or
// of any location reachable by reference.
func (c *Compiler) GetSchema(ref string) (*Validator, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ref = normalizeID(ref)
	empty := &schemaEnv{schema: map[string]any{}}
	empty.root = empty
	env := c.resolve(empty, ref)
	if env == nil {
		return nil, &MissingReferenceError{Ref: ref, MissingRef: ref, MissingSchema: fullPath(ref)}
	}
	if err := c.compileEnv(env); err != nil {
		return nil, err
	}
	return env.validator, nil
}

// RemoveSchema drops a document registered under id, or the document
// object itself, together with every identifier it registered.
func (c *Compiler) RemoveSchema(ref any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var env *schemaEnv
	switch r := ref.(type) {
	case string:
		id := normalizeID(r)
		env = c.schemas[id]
		if e, ok := c.refs[id].(*schemaEnv); ok && env == nil {
			env = e
		}
	default:
		if key, ok := schemaKey(r); ok {
			env = c.cache[key]
		}
	}
	if env == nil {
		return
	}
	c.removeEnv(env.root)
	c.log.Debug("schema removed", zap.String("id", env.root.baseID))
}

// AddKeyword registers a keyword. It fails after the first compilation.
func (c *Compiler) AddKeyword(def KeywordDefinition) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.frozen {
		return fmt.Errorf("%w: keyword %s", ErrFrozen, def.Keyword)
	}
	if err := checkDefinition(&def); err != nil {
		return err
	}
	var meta *Validator
	if def.MetaSchema != nil && c.opts.ValidateKeywordSchemas {
		env, err := c.addSchema(def.MetaSchema, "", true)
		if err != nil {
			return err
		}
		env.meta = true
		if err := c.compileEnv(env); err != nil {
			return fmt.Errorf("skemac: metaschema of keyword %s: %w", def.Keyword, err)
		}
		meta = env.validator
	}
	return c.vocab.add(&def, meta)
}

// RemoveKeyword unregisters a keyword. It fails after the first compilation.
func (c *Compiler) RemoveKeyword(keyword string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.frozen {
		return fmt.Errorf("%w: keyword %s", ErrFrozen, keyword)
	}
	c.vocab.remove(keyword)
	return nil
}

// AddFormat registers or replaces a format. It fails after the first
// compilation.
func (c *Compiler) AddFormat(name string, f Format) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.frozen {
		return fmt.Errorf("%w: format %s", ErrFrozen, name)
	}
	f.Name = name
	c.formats[name] = &f
	return nil
}

// compileEnv compiles env once. Requests for an environment that is being
// compiled return immediately; its function is reached through its slot.
// When the outermost call fails, every environment compiled on the way is
// reset, since their functions may call the one that failed.
func (c *Compiler) compileEnv(env *schemaEnv) (err error) {
	if env.state != envIdle {
		return nil
	}
	if !env.meta {
		c.frozen = true
	}
	env.state = envCompiling
	c.touched = append(c.touched, env)
	c.depth++
	defer func() {
		c.depth--
		if err == nil {
			env.state = envCompiled
		} else {
			env.reset()
		}
		if c.depth > 0 {
			return
		}
		if err != nil {
			for _, e := range c.touched {
				e.reset()
			}
		}
		c.touched = nil
	}()
	return c.generate(env)
}

func (c *Compiler) generate(env *schemaEnv) (err error) {
	defer codegen.Recover(&err)
	g := codegen.NewBuilder(codegen.NewScope(c.scope.Scope))
	data := &codegen.Name{Str: "data"}
	cx := &codegen.Name{Str: "cx"}
	g.Func(env.fn, []*codegen.Name{data, cx}, env.async)
	it := &SchemaCxt{
		c:             c,
		gen:           g,
		env:           env,
		schema:        env.schema,
		baseID:        env.baseID,
		errSchemaPath: env.fragment,
		data:          data,
		parentData:    codegen.F("parentData", cx),
		parentKey:     codegen.F("parentKey", cx),
		dataNames:     []*codegen.Name{data},
		dataPathArr:   []codegen.Expr{codegen.Undefined},
		cx:            cx,
		allErrors:     c.opts.AllErrors,
		props:         rt.Undefined,
		items:         rt.Undefined,
	}
	if err := it.topCode(); err != nil {
		return err
	}
	g.EndFunc()
	fn := g.Nodes()[0].(*codegen.Func)
	fn.Body = codegen.Optimize(fn.Body, c.opts.OptimizePasses)
	if env.guard {
		fn.Body = guardBody(fn, cx)
	}
	cl := vm.New(fn)
	env.funcNode = fn
	env.fn.Value.Set(cl)
	env.validator = &Validator{c: c, env: env, fn: cl, name: env.fn.Str, async: env.async}
	c.log.Debug("schema compiled",
		zap.String("fn", env.fn.Str),
		zap.String("baseID", env.baseID),
		zap.String("schemaPath", env.fragment),
		zap.Bool("guard", env.guard),
		zap.Int("statements", len(fn.Body)))
	return nil
}

// guardBody makes a function return true when re-entered at the same
// instance location, which ends reference cycles that do not descend into
// the data.
func guardBody(fn *codegen.Func, cx *codegen.Name) []codegen.Node {
	name := codegen.L(fn.Name.Str)
	return []codegen.Node{
		&codegen.If{
			Cond: codegen.Not(codegen.F("enter", cx, name)),
			Then: []codegen.Node{&codegen.Return{X: codegen.True}},
		},
		&codegen.Try{
			Body:    fn.Body,
			Finally: []codegen.Node{&codegen.ExprStmt{X: codegen.F("exit", cx, name)}},
		},
	}
}
