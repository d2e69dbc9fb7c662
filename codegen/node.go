package codegen

// NodeKind identifies a statement type.
type NodeKind int

const (
	NodeDef NodeKind = iota
	NodeAssign
	NodeExpr
	NodeIf
	NodeFor
	NodeForRange
	NodeForEach
	NodeLabel
	NodeBreak
	NodeReturn
	NodeThrow
	NodeTry
	NodeFunc
)

// Node is a statement of the IR.
type Node interface {
	Kind() NodeKind
}

// DefKind selects the declaration form.
type DefKind int

const (
	Const DefKind = iota
	Let
	Var
)

func (k DefKind) String() string {
	switch k {
	case Let:
		return "let"
	case Var:
		return "var"
	}
	return "const"
}

// Def declares Name with an optional initializer.
type Def struct {
	DefKind DefKind
	Name    *Name
	Value   Expr
}

// Assign sets Target (a Name or an Index). Op is "" for plain assignment
// or a binary operator for compound assignment.
type Assign struct {
	Target Expr
	Op     string
	Value  Expr
}

// ExprStmt evaluates X for its effects.
type ExprStmt struct {
	X Expr
}

// If is a conditional. An Else holding exactly one *If is an else-if.
type If struct {
	Cond Expr
	Then []Node
	Else []Node
}

// For is a counted loop: Init; Cond; Post.
type For struct {
	Init Node
	Cond Expr
	Post Node
	Body []Node
}

// ForRange iterates Var over [From, To).
type ForRange struct {
	Var      *Name
	From, To Expr
	Body     []Node
}

// IterKind selects keys or values for ForEach.
type IterKind int

const (
	IterValues IterKind = iota // array elements
	IterKeys                   // object keys in sorted order, or array indices
)

// ForEach iterates over a collection.
type ForEach struct {
	Iter IterKind
	Var  *Name
	Coll Expr
	Body []Node
}

// Label names Body so that Break can leave it.
type Label struct {
	Name string
	Body []Node
}

// Break leaves the innermost loop, or the enclosing Label when set.
type Break struct {
	Label string
}

// Return leaves the function with X.
type Return struct {
	X Expr
}

// Throw raises X, which must evaluate to an error.
type Throw struct {
	X Expr
}

// Try runs Body, then Catch with CatchVar bound to a raised error, then
// Finally.
type Try struct {
	Body     []Node
	CatchVar *Name
	Catch    []Node
	Finally  []Node
}

// Func defines a function. Top-level functions are hoisted.
type Func struct {
	Name   *Name
	Params []*Name
	Async  bool
	Body   []Node
}

func (*Def) Kind() NodeKind      { return NodeDef }
func (*Assign) Kind() NodeKind   { return NodeAssign }
func (*ExprStmt) Kind() NodeKind { return NodeExpr }
func (*If) Kind() NodeKind       { return NodeIf }
func (*For) Kind() NodeKind      { return NodeFor }
func (*ForRange) Kind() NodeKind { return NodeForRange }
func (*ForEach) Kind() NodeKind  { return NodeForEach }
func (*Label) Kind() NodeKind    { return NodeLabel }
func (*Break) Kind() NodeKind    { return NodeBreak }
func (*Return) Kind() NodeKind   { return NodeReturn }
func (*Throw) Kind() NodeKind    { return NodeThrow }
func (*Try) Kind() NodeKind      { return NodeTry }
func (*Func) Kind() NodeKind     { return NodeFunc }

// NodeNames counts identifier reads in n and its children. Declared names
// and plain assignment targets are not reads.
func NodeNames(n Node, names map[string]int) {
	switch x := n.(type) {
	case *Def:
		if x.Value != nil {
			FreeNames(x.Value, names)
		}
	case *Assign:
		switch t := x.Target.(type) {
		case *Name:
			if x.Op != "" {
				names[t.Str]++
			}
		default:
			FreeNames(t, names)
		}
		FreeNames(x.Value, names)
	case *ExprStmt:
		FreeNames(x.X, names)
	case *If:
		FreeNames(x.Cond, names)
		BodyNames(x.Then, names)
		BodyNames(x.Else, names)
	case *For:
		if x.Init != nil {
			NodeNames(x.Init, names)
		}
		if x.Cond != nil {
			FreeNames(x.Cond, names)
		}
		if x.Post != nil {
			NodeNames(x.Post, names)
		}
		BodyNames(x.Body, names)
	case *ForRange:
		FreeNames(x.From, names)
		FreeNames(x.To, names)
		BodyNames(x.Body, names)
	case *ForEach:
		FreeNames(x.Coll, names)
		BodyNames(x.Body, names)
	case *Label:
		BodyNames(x.Body, names)
	case *Return:
		if x.X != nil {
			FreeNames(x.X, names)
		}
	case *Throw:
		FreeNames(x.X, names)
	case *Try:
		BodyNames(x.Body, names)
		BodyNames(x.Catch, names)
		BodyNames(x.Finally, names)
	case *Func:
		BodyNames(x.Body, names)
	}
}

// BodyNames counts identifier reads in every node of body.
func BodyNames(body []Node, names map[string]int) {
	for _, n := range body {
		NodeNames(n, names)
	}
}
