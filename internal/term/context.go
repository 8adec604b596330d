package term

// Entry is one binder in a Context: a name and an optional domain type
// (spec.md §3 — the domain may itself contain free variables, which is
// why LookupExt also returns the context valid at the binding site).
type Entry struct {
	Name   string
	Domain Term // nil if no domain was recorded
}

// Context is an ordered, persistent list of context entries indexed
// right-to-left by de Bruijn index: index 0 is the innermost (most
// recently bound) entry. Extend is O(1) and never mutates an existing
// Context, which is what lets the elaborator's backtracking search share
// context prefixes across branches.
type Context struct {
	top *ctxNode
}

type ctxNode struct {
	parent *ctxNode
	entry  Entry
	size   int
}

// Empty is the context with no bindings.
func Empty() Context { return Context{} }

// Size returns the number of bindings in ctx.
func (c Context) Size() int {
	if c.top == nil {
		return 0
	}

	return c.top.size
}

// Extend pushes a new innermost binder.
func Extend(c Context, name string, domain Term) Context {
	return Context{top: &ctxNode{parent: c.top, entry: Entry{Name: name, Domain: domain}, size: c.Size() + 1}}
}

// LookupExt returns the entry bound at de Bruijn index i, together with
// the context that was in scope at the point the entry was bound (the
// entry's Domain, if any, is only well-formed in that narrower context).
func (c Context) LookupExt(i int) (Entry, Context) {
	n := c.top
	for k := 0; k < i; k++ {
		n = n.parent
	}

	return n.entry, Context{top: n.parent}
}

// Lookup is LookupExt without the binding-site context, for callers that
// only need the entry itself.
func (c Context) Lookup(i int) Entry {
	e, _ := c.LookupExt(i)
	return e
}
