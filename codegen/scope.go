package codegen

import (
	"fmt"
	"reflect"
	"strconv"
)

// Scope mints unique identifiers. A scope created with prefixes only
// accepts those prefixes; a nested scope cannot use a prefix owned by an
// ancestor.
type Scope struct {
	parent   *Scope
	prefixes map[string]bool
	counts   map[string]int
}

// NewScope returns a scope under parent (which may be nil).
func NewScope(parent *Scope, prefixes ...string) *Scope {
	s := &Scope{parent: parent, counts: make(map[string]int)}
	if len(prefixes) > 0 {
		s.prefixes = make(map[string]bool, len(prefixes))
		for _, p := range prefixes {
			s.prefixes[p] = true
		}
	}
	return s
}

// Name mints a fresh identifier with the given prefix.
func (s *Scope) Name(prefix string) *Name {
	s.check(prefix)
	n := s.counts[prefix]
	s.counts[prefix] = n + 1
	return &Name{Str: prefix + strconv.Itoa(n)}
}

func (s *Scope) check(prefix string) {
	for p := s.parent; p != nil; p = p.parent {
		if p.prefixes[prefix] {
			structuref("name", "prefix %q is owned by an enclosing scope", prefix)
		}
	}
	if s.prefixes != nil && !s.prefixes[prefix] {
		structuref("name", "prefix %q is not allowed in this scope", prefix)
	}
}

// ValueSpec describes a runtime value hoisted into a ValueScope. Key
// deduplicates registrations (Ref is used when Key is nil) and must be
// comparable. Code rebuilds the value in exported programs.
type ValueSpec struct {
	Ref  any
	Key  any
	Code Expr
}

// ValueRef is the slot behind a hoisted Name.
type ValueRef struct {
	Prefix   string
	Ref      any
	Key      any
	Code     Expr
	resolved bool
}

// Set resolves the slot to v.
func (r *ValueRef) Set(v any) {
	r.Ref = v
	r.resolved = true
}

// Resolved reports whether the slot holds a runtime value.
func (r *ValueRef) Resolved() bool { return r.resolved }

// ValueScope is the shared table of runtime values referenced by generated
// code.
type ValueScope struct {
	*Scope
	byKey map[string]map[any]*Name
	order []*Name
}

// NewValueScope returns a value table owning prefixes.
func NewValueScope(prefixes ...string) *ValueScope {
	return &ValueScope{Scope: NewScope(nil, prefixes...), byKey: make(map[string]map[any]*Name)}
}

// Value registers spec under prefix and returns its identifier. A spec
// whose key is already registered under prefix returns the existing name.
// A nil Ref leaves the slot unresolved until Set is called.
func (vs *ValueScope) Value(prefix string, spec ValueSpec) *Name {
	key := spec.Key
	if key == nil {
		key = spec.Ref
	}
	if key != nil && !reflect.TypeOf(key).Comparable() {
		structuref("value", "key of type %T is not comparable", key)
	}
	if key != nil {
		if n, ok := vs.byKey[prefix][key]; ok {
			return n
		}
	}
	n := vs.Name(prefix)
	n.Value = &ValueRef{Prefix: prefix, Ref: spec.Ref, Key: key, Code: spec.Code, resolved: spec.Ref != nil}
	if key != nil {
		m := vs.byKey[prefix]
		if m == nil {
			m = make(map[any]*Name)
			vs.byKey[prefix] = m
		}
		m[key] = n
	}
	vs.order = append(vs.order, n)
	return n
}

// Get returns the name registered under (prefix, key).
func (vs *ValueScope) Get(prefix string, key any) (*Name, bool) {
	n, ok := vs.byKey[prefix][key]
	return n, ok
}

// Remove forgets the registration of (prefix, key). Names already emitted
// keep their slot.
func (vs *ValueScope) Remove(prefix string, key any) {
	delete(vs.byKey[prefix], key)
}

// Names returns every registered name in registration order.
func (vs *ValueScope) Names() []*Name { return vs.order }

// Decls returns a const declaration for every value in names (all values
// when names is nil), in registration order.
func (vs *ValueScope) Decls(names map[string]int) ([]Node, error) {
	var out []Node
	for _, n := range vs.order {
		if names != nil && names[n.Str] == 0 {
			continue
		}
		if !n.Value.resolved {
			return nil, fmt.Errorf("%w: %s", ErrUnresolved, n.Str)
		}
		if n.Value.Code == nil {
			return nil, fmt.Errorf("%w: %s", ErrNoCode, n.Str)
		}
		out = append(out, &Def{DefKind: Const, Name: &Name{Str: n.Str}, Value: n.Value.Code})
	}
	return out, nil
}
