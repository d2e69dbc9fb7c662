package skemac

import (
	"fmt"
	"strings"

	"github.com/reoring/skemac/codegen"
	"github.com/reoring/skemac/internal/gen"
	"github.com/reoring/skemac/internal/ir"
	"github.com/reoring/skemac/internal/vm"
	"github.com/reoring/skemac/rt"
	"go.uber.org/zap"
)

const irFormat = "skemac-ir"

// program collects the functions reachable from the validator and the
// names of the hoisted values they read.
func (c *Compiler) program(v *Validator) ([]*codegen.Func, map[string]int, error) {
	if v.c != c || v.env == nil || v.env.funcNode == nil {
		return nil, nil, fmt.Errorf("skemac: validator was not compiled by this compiler")
	}
	byName := map[string]*codegen.Name{}
	for _, n := range c.scope.Names() {
		byName[n.Str] = n
	}
	var funcs []*codegen.Func
	values := map[string]int{}
	seen := map[string]bool{v.env.fn.Str: true}
	queue := []*codegen.Func{v.env.funcNode}
	for len(queue) > 0 {
		fn := queue[0]
		queue = queue[1:]
		funcs = append(funcs, fn)
		names := map[string]int{}
		codegen.BodyNames(fn.Body, names)
		for s := range names {
			n := byName[s]
			if n == nil || seen[s] {
				continue
			}
			seen[s] = true
			if n.Value.Prefix != "validate" {
				values[s]++
				continue
			}
			cl, ok := n.Value.Ref.(*vm.Closure)
			if !ok {
				return nil, nil, fmt.Errorf("%w: %s is not compiled", ErrNotExportable, s)
			}
			queue = append(queue, cl.Func())
		}
	}
	return funcs, values, nil
}

// Export serializes v, every validator it calls and the hoisted values
// they read. Custom keyword callables and custom formats have no portable
// form; validators using them fail with ErrNotExportable.
func (c *Compiler) Export(v *Validator) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	funcs, values, err := c.program(v)
	if err != nil {
		return nil, err
	}
	decls, err := c.scope.Decls(values)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotExportable, err)
	}
	nodes := decls
	for _, fn := range funcs {
		nodes = append(nodes, fn)
	}
	prog, err := ir.FromNodes(nodes)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotExportable, err)
	}
	c.log.Debug("validator exported", zap.String("entry", v.name), zap.Int("functions", len(funcs)), zap.Int("values", len(decls)))
	return ir.Marshal(&ir.File{Format: irFormat, Version: ir.Version, Entry: v.name, Async: v.async, Program: prog})
}

// Listing renders the IR of v and every validator it calls.
func (c *Compiler) Listing(v *Validator) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	funcs, values, err := c.program(v)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for _, n := range c.scope.Names() {
		if values[n.Str] > 0 {
			fmt.Fprintf(&b, "// %s = %s\n", n.Str, describeValue(n.Value))
		}
	}
	nodes := make([]codegen.Node, len(funcs))
	for i, fn := range funcs {
		nodes[i] = fn
	}
	b.WriteString(gen.RenderString(nodes))
	return b.String(), nil
}

func describeValue(r *codegen.ValueRef) string {
	if r.Code != nil {
		return exprText(r.Code)
	}
	return fmt.Sprintf("<%T>", r.Ref)
}

func exprText(e codegen.Expr) string {
	return gen.Expr(e)
}

// LoadOption configures Load.
type LoadOption func(*loadConfig)

type loadConfig struct {
	log *zap.Logger
}

// WithLoadLogger sets the logger used by Load.
func WithLoadLogger(l *zap.Logger) LoadOption {
	return func(c *loadConfig) { c.log = l }
}

// Load rebuilds a validator from the output of Export. Formats are bound
// by name from the built-in table.
func Load(data []byte, opts ...LoadOption) (*Validator, error) {
	cfg := loadConfig{log: zap.NewNop()}
	for _, o := range opts {
		o(&cfg)
	}
	f, err := ir.Unmarshal(data)
	if err != nil {
		return nil, err
	}
	if f.Format != irFormat {
		return nil, fmt.Errorf("skemac: unknown program format %q", f.Format)
	}
	nodes, err := ir.ToNodes(f.Program)
	if err != nil {
		return nil, err
	}
	prog, err := vm.Load(nodes)
	if err != nil {
		return nil, fmt.Errorf("skemac: load: %w", err)
	}
	entry, ok := prog.Lookup(f.Entry)
	if !ok {
		return nil, fmt.Errorf("skemac: load: entry %s not found", f.Entry)
	}
	fn, ok := entry.(rt.Callable)
	if !ok {
		return nil, fmt.Errorf("skemac: load: entry %s is not a function", f.Entry)
	}
	cfg.log.Debug("validator loaded", zap.String("entry", f.Entry), zap.Int("nodes", len(nodes)))
	return &Validator{fn: fn, name: f.Entry, async: f.Async}, nil
}
