package codegen

type frameKind int

const (
	frameRoot frameKind = iota
	frameIf
	frameFor
	frameLabel
	frameTry
	frameFunc
)

func (k frameKind) String() string {
	switch k {
	case frameIf:
		return "if"
	case frameFor:
		return "for"
	case frameLabel:
		return "label"
	case frameTry:
		return "try"
	case frameFunc:
		return "func"
	}
	return "root"
}

type frame struct {
	kind   frameKind
	body   *[]Node
	cur    *If // innermost If of an if/else-if chain
	inElse bool
}

// Builder assembles IR with explicit nesting. Compound constructs push a
// frame, leaf statements append to the open frame and closing a frame
// checks its kind. Misuse panics with *ProgramStructureError; see Recover.
type Builder struct {
	scope  *Scope
	root   []Node
	stack  []*frame
	blocks []int
}

// NewBuilder returns a builder minting local names from scope.
func NewBuilder(scope *Scope) *Builder {
	b := &Builder{scope: scope}
	b.stack = []*frame{{kind: frameRoot, body: &b.root}}
	return b
}

// Scope returns the scope local names are minted from.
func (b *Builder) Scope() *Scope { return b.scope }

// Name mints a local identifier.
func (b *Builder) Name(prefix string) *Name { return b.scope.Name(prefix) }

func (b *Builder) top() *frame { return b.stack[len(b.stack)-1] }

func (b *Builder) add(n Node) {
	f := b.top()
	*f.body = append(*f.body, n)
}

func (b *Builder) push(f *frame) { b.stack = append(b.stack, f) }

func (b *Builder) pop(op string, want frameKind) *frame {
	f := b.top()
	if f.kind != want || len(b.stack) == 1 {
		structuref(op, "open frame is %s", f.kind)
	}
	b.stack = b.stack[:len(b.stack)-1]
	return f
}

// Const declares a new constant initialized to value.
func (b *Builder) Const(prefix string, value Expr) *Name {
	return b.def(Const, b.scope.Name(prefix), value)
}

// Let declares a new variable; value may be nil.
func (b *Builder) Let(prefix string, value Expr) *Name {
	return b.def(Let, b.scope.Name(prefix), value)
}

// Var declares a new function-scoped variable; value may be nil.
func (b *Builder) Var(prefix string, value Expr) *Name {
	return b.def(Var, b.scope.Name(prefix), value)
}

// Def declares an already minted name.
func (b *Builder) Def(kind DefKind, name *Name, value Expr) *Builder {
	b.def(kind, name, value)
	return b
}

func (b *Builder) def(kind DefKind, name *Name, value Expr) *Name {
	b.add(&Def{DefKind: kind, Name: name, Value: value})
	return name
}

// Assign sets target to value.
func (b *Builder) Assign(target, value Expr) *Builder {
	b.add(&Assign{Target: target, Value: value})
	return b
}

// AssignOp performs target op= value.
func (b *Builder) AssignOp(target Expr, op string, value Expr) *Builder {
	b.add(&Assign{Target: target, Op: op, Value: value})
	return b
}

// Code appends an expression statement.
func (b *Builder) Code(x Expr) *Builder {
	b.add(&ExprStmt{X: x})
	return b
}

// Statements appends prebuilt nodes.
func (b *Builder) Statements(ns ...Node) *Builder {
	for _, n := range ns {
		b.add(n)
	}
	return b
}

// If opens a conditional. With body functions (then, else) the conditional
// is closed before returning; otherwise it stays open until EndIf.
func (b *Builder) If(cond Expr, body ...func()) *Builder {
	n := &If{Cond: cond}
	b.add(n)
	b.push(&frame{kind: frameIf, body: &n.Then, cur: n})
	if len(body) == 0 {
		return b
	}
	if body[0] != nil {
		body[0]()
	}
	if len(body) > 1 && body[1] != nil {
		b.Else()
		body[1]()
	}
	return b.EndIf()
}

// ElseIf adds an else-if branch to the open conditional.
func (b *Builder) ElseIf(cond Expr) *Builder {
	f := b.top()
	if f.kind != frameIf || f.inElse {
		structuref("elseif", "no open if without else (open frame is %s)", f.kind)
	}
	n := &If{Cond: cond}
	f.cur.Else = []Node{n}
	f.cur = n
	f.body = &n.Then
	return b
}

// Else switches the open conditional to its else branch.
func (b *Builder) Else() *Builder {
	f := b.top()
	if f.kind != frameIf || f.inElse {
		structuref("else", "no open if without else (open frame is %s)", f.kind)
	}
	f.inElse = true
	f.cur.Else = []Node{}
	f.body = &f.cur.Else
	return b
}

// EndIf closes the open conditional.
func (b *Builder) EndIf() *Builder {
	b.pop("endif", frameIf)
	return b
}

// For emits a counted loop.
func (b *Builder) For(init Node, cond Expr, post Node, body func()) *Builder {
	n := &For{Init: init, Cond: cond, Post: post}
	return b.loop(n, &n.Body, body)
}

// ForRange emits a loop of a fresh variable over [from, to).
func (b *Builder) ForRange(prefix string, from, to Expr, body func(i *Name)) *Builder {
	n := &ForRange{Var: b.scope.Name(prefix), From: from, To: to}
	return b.loop(n, &n.Body, func() { body(n.Var) })
}

// ForKeys iterates over object keys (sorted) or array indices.
func (b *Builder) ForKeys(prefix string, coll Expr, body func(k *Name)) *Builder {
	n := &ForEach{Iter: IterKeys, Var: b.scope.Name(prefix), Coll: coll}
	return b.loop(n, &n.Body, func() { body(n.Var) })
}

// ForValues iterates over array elements.
func (b *Builder) ForValues(prefix string, coll Expr, body func(v *Name)) *Builder {
	n := &ForEach{Iter: IterValues, Var: b.scope.Name(prefix), Coll: coll}
	return b.loop(n, &n.Body, func() { body(n.Var) })
}

func (b *Builder) loop(n Node, nodes *[]Node, body func()) *Builder {
	b.add(n)
	b.push(&frame{kind: frameFor, body: nodes})
	body()
	b.pop("endfor", frameFor)
	return b
}

// Label emits a labeled region that Break(name) can leave.
func (b *Builder) Label(name string, body func()) *Builder {
	n := &Label{Name: name}
	b.add(n)
	b.push(&frame{kind: frameLabel, body: &n.Body})
	body()
	b.pop("endlabel", frameLabel)
	return b
}

// Break leaves the innermost loop or the named label.
func (b *Builder) Break(label string) *Builder {
	b.add(&Break{Label: label})
	return b
}

// Return emits a return of x.
func (b *Builder) Return(x Expr) *Builder {
	b.add(&Return{X: x})
	return b
}

// Throw raises x.
func (b *Builder) Throw(x Expr) *Builder {
	b.add(&Throw{X: x})
	return b
}

// Try emits try/catch/finally. catch or finally may be nil, not both.
func (b *Builder) Try(body func(), catch func(e *Name), finally func()) *Builder {
	if catch == nil && finally == nil {
		structuref("try", "try without catch or finally")
	}
	n := &Try{}
	b.add(n)
	f := &frame{kind: frameTry, body: &n.Body}
	b.push(f)
	body()
	if catch != nil {
		n.CatchVar = b.scope.Name("e")
		f.body = &n.Catch
		catch(n.CatchVar)
	}
	if finally != nil {
		f.body = &n.Finally
		finally()
	}
	b.pop("endtry", frameTry)
	return b
}

// Func opens a function definition; close it with EndFunc.
func (b *Builder) Func(name *Name, params []*Name, async bool) *Builder {
	n := &Func{Name: name, Params: params, Async: async}
	b.add(n)
	b.push(&frame{kind: frameFunc, body: &n.Body})
	return b
}

// EndFunc closes the open function.
func (b *Builder) EndFunc() *Builder {
	b.pop("endfunc", frameFunc)
	return b
}

// BeginBlock marks the current nesting depth.
func (b *Builder) BeginBlock() *Builder {
	b.blocks = append(b.blocks, len(b.stack))
	return b
}

// EndBlock closes every frame opened since the matching BeginBlock. When
// n >= 0 exactly n frames must be open.
func (b *Builder) EndBlock(n int) *Builder {
	if len(b.blocks) == 0 {
		structuref("endblock", "no open block")
	}
	start := b.blocks[len(b.blocks)-1]
	b.blocks = b.blocks[:len(b.blocks)-1]
	toClose := len(b.stack) - start
	if toClose < 0 || (n >= 0 && toClose != n) {
		structuref("endblock", "wrong number of open frames: %d vs %d expected", toClose, n)
	}
	for _, f := range b.stack[start:] {
		if f.kind == frameFunc {
			structuref("endblock", "block spans a function boundary")
		}
	}
	b.stack = b.stack[:start]
	return b
}

// Depth returns the number of open frames.
func (b *Builder) Depth() int { return len(b.stack) - 1 }

// Nodes returns the built program. Every frame and block must be closed.
func (b *Builder) Nodes() []Node {
	if len(b.stack) != 1 {
		structuref("nodes", "%d unclosed frame(s), innermost %s", len(b.stack)-1, b.top().kind)
	}
	if len(b.blocks) != 0 {
		structuref("nodes", "%d unclosed block(s)", len(b.blocks))
	}
	return b.root
}

// Optimize runs passes over the built program.
func (b *Builder) Optimize(passes int) {
	b.root = Optimize(b.Nodes(), passes)
}
