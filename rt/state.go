package rt

import (
	"context"
	"sort"
)

// State is the per-call error accumulator shared by every validator function
// taking part in one top-level validation. A State must not be shared
// between concurrent calls.
type State struct {
	Ctx    context.Context
	Errors Issues
	active map[activeKey]int
}

type activeKey struct {
	fn   string
	path string
}

// NewState returns an empty State bound to ctx.
func NewState(ctx context.Context) *State {
	if ctx == nil {
		ctx = context.Background()
	}
	return &State{Ctx: ctx}
}

// Cxt carries the data context of one validator function activation.
type Cxt struct {
	InstancePath string
	ParentData   any
	ParentKey    any
	RootData     any
	State        *State

	// Props and Items are written by the callee on return when evaluated
	// tracking is enabled: true or map[string]bool / true or item count.
	Props any
	Items any
}

// Root returns the context of a top-level call. The instance is held in a
// one-element slice so that coercion at the root can replace it.
func Root(st *State, holder []any) *Cxt {
	return &Cxt{ParentData: holder, ParentKey: 0, RootData: holder[0], State: st, Props: Undefined, Items: Undefined}
}

// Child derives the context passed to a called validator.
func (c *Cxt) Child(path string, parent, key any) *Cxt {
	return &Cxt{InstancePath: path, ParentData: parent, ParentKey: key, RootData: c.RootData, State: c.State, Props: Undefined, Items: Undefined}
}

// Enter marks fn as active at the current instance location. It reports
// false when fn is already active there, i.e. the call is a re-entry that
// cannot make progress.
func (c *Cxt) Enter(fn string) bool {
	st := c.State
	k := activeKey{fn: fn, path: c.InstancePath}
	if st.active == nil {
		st.active = make(map[activeKey]int)
	}
	if st.active[k] > 0 {
		return false
	}
	st.active[k]++
	return true
}

// Exit undoes Enter.
func (c *Cxt) Exit(fn string) {
	k := activeKey{fn: fn, path: c.InstancePath}
	if c.State.active[k] <= 1 {
		delete(c.State.active, k)
		return
	}
	c.State.active[k]--
}

// MergeProps merges two evaluated-property values. Either operand being
// true yields true; Undefined is the identity.
func MergeProps(a, b any) any {
	if a == true || b == true {
		return true
	}
	am, aok := a.(map[string]bool)
	bm, bok := b.(map[string]bool)
	switch {
	case !aok && !bok:
		return Undefined
	case !aok:
		return copyProps(bm)
	case !bok:
		return copyProps(am)
	}
	out := copyProps(am)
	for k := range bm {
		out[k] = true
	}
	return out
}

func copyProps(m map[string]bool) map[string]bool {
	out := make(map[string]bool, len(m))
	for k := range m {
		out[k] = true
	}
	return out
}

// MergeItems merges two evaluated-item values: true or the number of
// leading items covered.
func MergeItems(a, b any) any {
	if a == true || b == true {
		return true
	}
	x, aok := Int(a)
	y, bok := Int(b)
	switch {
	case !aok && !bok:
		return Undefined
	case !aok:
		return y
	case !bok:
		return x
	}
	if x > y {
		return x
	}
	return y
}

// PropsList renders an evaluated-property value as a sorted name list; all
// is true when every property is covered.
func PropsList(v any) (names []string, all bool) {
	if v == true {
		return nil, true
	}
	m, _ := v.(map[string]bool)
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)
	return names, false
}
