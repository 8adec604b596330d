// Package hopmatch implements the higher-order pattern matcher of
// spec.md §4.1: matching a rewrite theorem's left-hand side, which may
// contain "logical variables" (bound indices at or above the matcher's
// context size), against a concrete target term with no logical
// variables of its own. Grounded on original_source's
// src/library/hop_match.cpp.
package hopmatch

import (
	"github.com/orizon-lang/elaborate/internal/errors"
	"github.com/orizon-lang/elaborate/internal/term"
)

// State is the matcher's working substitution: State.Subst[i] holds the
// solution for logical variable i (a de Bruijn index of ctxSize+i in the
// pattern), or nil if still unassigned. A solution is stored with its
// own free indices 0..n-1 standing for the n locally bound variables it
// was applied to at the point of assignment, so that term.BetaApply can
// reconstruct a use of it later.
type State struct {
	ctxSize int
	subst   []term.Term
}

// NewState allocates an empty matcher state for numVars logical
// variables living below the given context size.
func NewState(ctxSize, numVars int) *State {
	return &State{ctxSize: ctxSize, subst: make([]term.Term, numVars)}
}

// Subst exposes the solved substitution, one entry per logical variable.
func (s *State) Subst() []term.Term { return s.subst }

// Match reports whether pattern matches target, extending s.Subst as a
// side effect. It does not mutate s on failure beyond whatever partial
// assignments were already consistent with target; callers that need to
// retry should start from a fresh State or a saved copy of Subst. A
// logical variable whose index lies outside s's substitution range is
// ill-formed input: Match panics with an errors.IllFormedMatch error.
func Match(pattern, target term.Term, s *State) bool {
	return match(pattern, target, s, 0)
}

// match recurses over pattern and target with depth tracking how many
// binders have been crossed since Match was called: a bound variable is
// classified against s.ctxSize+depth, not the immutable s.ctxSize,
// since crossing a binder shifts every previously-free index by one and
// introduces a fresh locally bound variable of its own (spec.md §4.1's
// "recurse on bodies in extend(ctx, binder_name, domain) with
// ctx_size+1").
func match(pattern, target term.Term, s *State, depth int) bool {
	if idx, args, ok := asLogicalVarApp(pattern, s.ctxSize+depth); ok {
		return matchFlex(idx, args, target, s, depth)
	}

	if pattern.Kind() != target.Kind() {
		return false
	}

	switch pattern.Kind() {
	case term.KindBound:
		pi, _ := term.BoundIndex(pattern)
		ti, _ := term.BoundIndex(target)

		return pi == ti
	case term.KindConst:
		pc := asNamed(pattern)
		tc := asNamed(target)

		return pc.Equal(tc)
	case term.KindSort:
		return asLeveled(pattern).Equal(asLeveled(target))
	case term.KindLit:
		return term.Equal(pattern, target)
	case term.KindApp:
		pfn, pargs, _ := asApp(pattern)
		tfn, targs, _ := asApp(target)

		if len(pargs) != len(targs) {
			return false
		}

		if !match(pfn, tfn, s, depth) {
			return false
		}

		for i := range pargs {
			if !match(pargs[i], targs[i], s, depth) {
				return false
			}
		}

		return true
	case term.KindLambda, term.KindPi:
		pb := asBinder(pattern)
		tb := asBinder(target)

		return match(pb.domain, tb.domain, s, depth) && match(pb.body, tb.body, s, depth+1)
	case term.KindLet:
		// Decided against unfolding during matching: a logical-variable
		// pattern's let must line up with a structurally equal let in
		// the target, type/value/body each matched in turn.
		pl := asLet(pattern)
		tl := asLet(target)

		return match(pl.typ, tl.typ, s, depth) && match(pl.value, tl.value, s, depth) &&
			match(pl.body, tl.body, s, depth+1)
	case term.KindHEq:
		ph := asHEq(pattern)
		th := asHEq(target)

		return match(ph.lhsType, th.lhsType, s, depth) && match(ph.lhs, th.lhs, s, depth) &&
			match(ph.rhsType, th.rhsType, s, depth) && match(ph.rhs, th.rhs, s, depth)
	case term.KindMeta:
		return term.Equal(pattern, target)
	default:
		return false
	}
}

// matchFlex handles a pattern headed by logical variable idx applied to
// args. If idx is already solved, the solution is beta-applied to args
// and matching continues structurally; otherwise target is abstracted
// over args and recorded as the solution.
func matchFlex(idx int, args []term.Term, target term.Term, s *State, depth int) bool {
	if idx >= len(s.subst) {
		panic(errors.IllFormedMatch(idx, len(s.subst)))
	}

	if existing := s.subst[idx]; existing != nil {
		return match(term.BetaApply(existing, args), target, s, depth)
	}

	solution, ok := Abstract(target, args, s.ctxSize+depth)
	if !ok {
		return false
	}

	s.subst[idx] = solution

	return true
}

// asLogicalVarApp reports whether t is `v` or `v a1 .. an` where v is a
// logical variable (is_free_var in the original) and a1..an are
// distinct locally bound variables (args_are_distinct_locally_bound_vars).
// Any other shape of application headed by a logical variable is not a
// Miller pattern and is left to structural matching, which will fail.
func asLogicalVarApp(t term.Term, ctxSize int) (idx int, args []term.Term, ok bool) {
	fn, spine, isApp := asApp(t)
	if !isApp {
		fn, spine = t, nil
	}

	bidx, isBound := term.BoundIndex(fn)
	if !isBound || bidx < ctxSize {
		return 0, nil, false
	}

	if !argsAreDistinctLocallyBoundVars(spine, ctxSize) {
		return 0, nil, false
	}

	return bidx - ctxSize, spine, true
}

// ArgsAreDistinctLocallyBoundVars reports whether every term in args is
// a Bound variable below ctxSize, with no repeats: the shape a
// metavariable's argument spine must have for Abstract to solve it.
func ArgsAreDistinctLocallyBoundVars(args []term.Term, ctxSize int) bool {
	return argsAreDistinctLocallyBoundVars(args, ctxSize)
}

func argsAreDistinctLocallyBoundVars(args []term.Term, ctxSize int) bool {
	seen := make(map[int]bool, len(args))

	for _, a := range args {
		idx, ok := term.BoundIndex(a)
		if !ok || idx >= ctxSize || seen[idx] {
			return false
		}

		seen[idx] = true
	}

	return true
}

// abstractOverLocallyBoundVars builds the de Bruijn-shifted term that,
// beta-applied to args (in order), reproduces target. args[i] is mapped
// to new bound index len(args)-1-i; any other locally bound variable
// occurring free in target makes the projection impossible (it was not
// offered as one of the logical variable's arguments), and the call
// fails. Free indices above ctxSize (other logical variables, or
// variables bound further out still) are shifted down by
// ctxSize-len(args) to account for the narrower new scope. This is
// proj/proj_core from original_source's hop_match.cpp.
// Abstract builds the n-ary lambda chain that, beta-applied to args in
// order, reproduces target, per proj/proj_core semantics: args must be
// distinct locally bound variables (callers check this themselves), and
// any other locally bound variable free in target makes the projection
// impossible. internal/elaborate reuses this for its own flex-rigid
// pattern unification step, since it is the same projection problem.
func Abstract(target term.Term, args []term.Term, ctxSize int) (term.Term, bool) {
	return abstractOverLocallyBoundVars(target, args, ctxSize)
}

func abstractOverLocallyBoundVars(target term.Term, args []term.Term, ctxSize int) (term.Term, bool) {
	n := len(args)

	newIndex := make(map[int]int, n)
	for pos, a := range args {
		old, _ := term.BoundIndex(a)
		newIndex[old] = n - 1 - pos
	}

	body, ok := abstractRec(target, newIndex, ctxSize, n, 0)
	if !ok {
		return nil, false
	}

	// Wrap in n binders so the result is a chain term.BetaApply can peel
	// one argument at a time, left to right, matching args' own order.
	// The domain type played no role in matching, so an untyped
	// placeholder stands in for it.
	solution := body
	for i := 0; i < n; i++ {
		solution = term.NewLambda("_", placeholderDomain, solution)
	}

	return solution, true
}

var placeholderDomain = term.NewConst(term.Str("_"))

func abstractRec(t term.Term, newIndex map[int]int, ctxSize, n, depth int) (term.Term, bool) {
	switch t.Kind() {
	case term.KindBound:
		idx, _ := term.BoundIndex(t)
		if idx < depth {
			return t, true
		}

		orig := idx - depth
		if orig < ctxSize {
			mapped, ok := newIndex[orig]
			if !ok {
				return nil, false
			}

			return term.NewBound(mapped + depth), true
		}

		return term.NewBound(orig-ctxSize+n+depth), true
	case term.KindConst, term.KindSort, term.KindLit:
		return t, true
	case term.KindApp:
		fn, args2, _ := asApp(t)

		newFn, ok := abstractRec(fn, newIndex, ctxSize, n, depth)
		if !ok {
			return nil, false
		}

		newArgs := make([]term.Term, len(args2))

		for i, a := range args2 {
			na, ok := abstractRec(a, newIndex, ctxSize, n, depth)
			if !ok {
				return nil, false
			}

			newArgs[i] = na
		}

		return term.NewApp(newFn, newArgs...), true
	case term.KindLambda, term.KindPi:
		b := asBinder(t)

		newDom, ok := abstractRec(b.domain, newIndex, ctxSize, n, depth)
		if !ok {
			return nil, false
		}

		newBody, ok := abstractRec(b.body, newIndex, ctxSize, n, depth+1)
		if !ok {
			return nil, false
		}

		if t.Kind() == term.KindLambda {
			return term.NewLambda(b.name, newDom, newBody), true
		}

		return term.NewPi(b.name, newDom, newBody), true
	case term.KindLet:
		l := asLet(t)

		newTyp, ok := abstractRec(l.typ, newIndex, ctxSize, n, depth)
		if !ok {
			return nil, false
		}

		newVal, ok := abstractRec(l.value, newIndex, ctxSize, n, depth)
		if !ok {
			return nil, false
		}

		newBody, ok := abstractRec(l.body, newIndex, ctxSize, n, depth+1)
		if !ok {
			return nil, false
		}

		return term.NewLet(l.name, newTyp, newVal, newBody), true
	case term.KindHEq:
		h := asHEq(t)

		parts := [4]term.Term{h.lhsType, h.lhs, h.rhsType, h.rhs}
		for i, p := range parts {
			np, ok := abstractRec(p, newIndex, ctxSize, n, depth)
			if !ok {
				return nil, false
			}

			parts[i] = np
		}

		return term.NewHEq(parts[0], parts[1], parts[2], parts[3]), true
	case term.KindMeta:
		m := asMeta(t)

		newSubst := make([]term.Term, len(m.subst))

		for i, s := range m.subst {
			ns, ok := abstractRec(s, newIndex, ctxSize, n, depth)
			if !ok {
				return nil, false
			}

			newSubst[i] = ns
		}

		return term.NewMeta(m.id, newSubst), true
	default:
		return nil, false
	}
}

// --- duck-typed accessors over term.Term's exported methods ---

func asApp(t term.Term) (fn term.Term, args []term.Term, ok bool) {
	v, ok := t.(interface {
		Fn() term.Term
		Args() []term.Term
	})
	if !ok {
		return nil, nil, false
	}

	return v.Fn(), v.Args(), true
}

func asNamed(t term.Term) term.Name {
	v := t.(interface{ Name() term.Name })
	return v.Name()
}

func asLeveled(t term.Term) term.Level {
	v := t.(interface{ Level() term.Level })
	return v.Level()
}

type binderView struct {
	name   string
	domain term.Term
	body   term.Term
}

func asBinder(t term.Term) binderView {
	v := t.(interface {
		BinderName() string
		Domain() term.Term
		Body() term.Term
	})

	return binderView{name: v.BinderName(), domain: v.Domain(), body: v.Body()}
}

type letView struct {
	name  string
	typ   term.Term
	value term.Term
	body  term.Term
}

func asLet(t term.Term) letView {
	v := t.(interface {
		Name() string
		Type() term.Term
		Value() term.Term
		Body() term.Term
	})

	return letView{name: v.Name(), typ: v.Type(), value: v.Value(), body: v.Body()}
}

type heqView struct {
	lhsType, lhs, rhsType, rhs term.Term
}

func asHEq(t term.Term) heqView {
	v := t.(interface {
		LhsType() term.Term
		Lhs() term.Term
		RhsType() term.Term
		Rhs() term.Term
	})

	return heqView{lhsType: v.LhsType(), lhs: v.Lhs(), rhsType: v.RhsType(), rhs: v.Rhs()}
}

type metaView struct {
	id    term.MetaID
	subst []term.Term
}

func asMeta(t term.Term) metaView {
	v := t.(interface {
		ID() term.MetaID
		Subst() []term.Term
	})

	return metaView{id: v.ID(), subst: v.Subst()}
}
