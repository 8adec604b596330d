// Package metavar is the metavariable arena of spec.md §3/§4.3: each
// hole carries a type, a local context, a justification for why it
// exists, and a possibly-empty queue of postponed elaboration problems
// that were waiting on it. Grounded on
// original_source/src/tests/library/elaborator/elaborator.cpp's use of
// metavariables and justifications, and on hop_match.cpp's occurs-check
// discipline for assignment.
package metavar

import (
	"github.com/google/uuid"
	"github.com/hashicorp/go-set/v3"

	coreerrors "github.com/orizon-lang/elaborate/internal/errors"
	"github.com/orizon-lang/elaborate/internal/term"
)

// ID names a hole. IDs are generated from a UUID so two arenas (e.g. two
// speculative elaboration branches) never collide.
type ID string

// Justification records why a hole exists, for error reporting when it
// is never assigned. Source is free text (e.g. "expected type of the
// second argument to f"); it is not interpreted.
type Justification struct {
	Source string
}

// DelayedOp is an elaboration step that could not proceed because it
// was blocked on this hole, recorded so whoever assigns the hole can
// take it back with DrainDelayed and replay it; Assign itself leaves the
// queue untouched (spec.md
// §4.3's "delayed" constraints; the actual constraint shape is owned by
// internal/elaborate — Hole only remembers an opaque token for it).
type DelayedOp struct {
	Token interface{}
}

// Hole is one metavariable.
type Hole struct {
	ID         ID
	Type       term.Term
	Ctx        term.Context
	Just       Justification
	DelayedOps []DelayedOp
	Assignment term.Term // nil until solved
}

// Env is the arena: every hole ever allocated, plus the assignments
// solved so far. Instantiate walks assignments to a fixed point, so
// Env must never be asked to assign a hole to a term containing itself
// (Assign enforces this with an occurs-check).
type Env struct {
	holes map[ID]*Hole
}

func NewEnv() *Env {
	return &Env{holes: map[ID]*Hole{}}
}

// Fresh allocates a new, unassigned hole of the given type and context.
func (e *Env) Fresh(ctx term.Context, typ term.Term, just Justification) ID {
	id := ID(uuid.New().String())
	e.holes[id] = &Hole{ID: id, Type: typ, Ctx: ctx, Just: just}

	return id
}

// Lookup returns the hole record for id.
func (e *Env) Lookup(id ID) (*Hole, bool) {
	h, ok := e.holes[id]
	return h, ok
}

// Assign solves id := value, failing with a CyclicAssignment error if
// value mentions id (directly or transitively through other holes it
// mentions). Unlike term-level occurs-checks over de Bruijn indices,
// this walks the arena's own meta-graph, since value's free term
// variables are irrelevant here — only which other holes it names
// matters.
func (e *Env) Assign(id ID, value term.Term) error {
	h, ok := e.holes[id]
	if !ok {
		return coreerrors.New(coreerrors.CategoryIllFormed, "UNKNOWN_METAVAR", "assignment to an unknown metavariable", nil)
	}

	if h.Assignment != nil {
		return coreerrors.New(coreerrors.CategoryIllFormed, "ALREADY_ASSIGNED", "metavariable is already assigned", nil)
	}

	if e.occurs(id, value, set.New[ID](0)) {
		return coreerrors.CyclicAssignment(string(id))
	}

	h.Assignment = value

	return nil
}

func (e *Env) occurs(target ID, t term.Term, visited *set.Set[ID]) bool {
	for _, m := range metaIDsIn(t) {
		if m == target {
			return true
		}

		if visited.Contains(m) {
			continue
		}

		visited.Insert(m)

		if other, ok := e.holes[m]; ok && other.Assignment != nil && e.occurs(target, other.Assignment, visited) {
			return true
		}
	}

	return false
}

// metaIDsIn collects every ID referenced by a metaTerm occurring
// anywhere in t (spec.md §3 models a metavariable occurrence as a
// dedicated Meta term kind carrying its ID in the delayed substitution).
func metaIDsIn(t term.Term) []ID {
	var out []ID
	collectMetaIDs(t, &out)

	return out
}

func collectMetaIDs(t term.Term, out *[]ID) {
	if m, ok := t.(interface {
		ID() term.MetaID
		Subst() []term.Term
	}); ok {
		*out = append(*out, ID(m.ID()))

		for _, s := range m.Subst() {
			collectMetaIDs(s, out)
		}

		return
	}

	if a, ok := t.(interface {
		Fn() term.Term
		Args() []term.Term
	}); ok {
		collectMetaIDs(a.Fn(), out)
		for _, arg := range a.Args() {
			collectMetaIDs(arg, out)
		}

		return
	}

	if b, ok := t.(interface {
		Domain() term.Term
		Body() term.Term
	}); ok {
		collectMetaIDs(b.Domain(), out)
		collectMetaIDs(b.Body(), out)

		return
	}

	if l, ok := t.(interface {
		Type() term.Term
		Value() term.Term
		Body() term.Term
	}); ok {
		collectMetaIDs(l.Type(), out)
		collectMetaIDs(l.Value(), out)
		collectMetaIDs(l.Body(), out)

		return
	}

	if h, ok := t.(interface {
		LhsType() term.Term
		Lhs() term.Term
		RhsType() term.Term
		Rhs() term.Term
	}); ok {
		collectMetaIDs(h.LhsType(), out)
		collectMetaIDs(h.Lhs(), out)
		collectMetaIDs(h.RhsType(), out)
		collectMetaIDs(h.Rhs(), out)
	}
}

// Instantiate replaces every solved metavariable occurrence in t with
// its assignment, to a fixed point, leaving unsolved holes untouched.
func (e *Env) Instantiate(t term.Term) term.Term {
	switch t.Kind() {
	case term.KindMeta:
		m := t.(interface {
			ID() term.MetaID
			Subst() []term.Term
		})

		h, ok := e.holes[ID(m.ID())]
		if !ok || h.Assignment == nil {
			return t
		}

		subst := m.Subst()
		if len(subst) == 0 {
			return e.Instantiate(h.Assignment)
		}

		return e.Instantiate(term.BetaApply(h.Assignment, subst))
	case term.KindApp:
		a := t.(interface {
			Fn() term.Term
			Args() []term.Term
		})

		args := a.Args()
		newArgs := make([]term.Term, len(args))

		for i, arg := range args {
			newArgs[i] = e.Instantiate(arg)
		}

		return term.NewApp(e.Instantiate(a.Fn()), newArgs...)
	case term.KindLambda, term.KindPi:
		b := t.(interface {
			BinderName() string
			Domain() term.Term
			Body() term.Term
		})

		if t.Kind() == term.KindLambda {
			return term.NewLambda(b.BinderName(), e.Instantiate(b.Domain()), e.Instantiate(b.Body()))
		}

		return term.NewPi(b.BinderName(), e.Instantiate(b.Domain()), e.Instantiate(b.Body()))
	case term.KindLet:
		l := t.(interface {
			Name() string
			Type() term.Term
			Value() term.Term
			Body() term.Term
		})

		return term.NewLet(l.Name(), e.Instantiate(l.Type()), e.Instantiate(l.Value()), e.Instantiate(l.Body()))
	case term.KindHEq:
		h := t.(interface {
			LhsType() term.Term
			Lhs() term.Term
			RhsType() term.Term
			Rhs() term.Term
		})

		return term.NewHEq(e.Instantiate(h.LhsType()), e.Instantiate(h.Lhs()), e.Instantiate(h.RhsType()), e.Instantiate(h.Rhs()))
	default:
		return t
	}
}

// PushDelayed records op as blocked on id, to be replayed once id is
// assigned.
func (e *Env) PushDelayed(id ID, op DelayedOp) {
	if h, ok := e.holes[id]; ok {
		h.DelayedOps = append(h.DelayedOps, op)
	}
}

// DrainDelayed removes and returns every operation queued against id.
func (e *Env) DrainDelayed(id ID) []DelayedOp {
	h, ok := e.holes[id]
	if !ok {
		return nil
	}

	ops := h.DelayedOps
	h.DelayedOps = nil

	return ops
}

// PendingDelayed reports how many delayed operations are still queued
// across every hole in the arena. A caller whose agenda has emptied out
// should treat a nonzero count as a sign that something was parked
// waiting on a metavariable that never got assigned, rather than as a
// genuinely closed search.
func (e *Env) PendingDelayed() int {
	n := 0

	for _, h := range e.holes {
		n += len(h.DelayedOps)
	}

	return n
}
