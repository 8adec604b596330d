// Package elaborate is the constraint-solving core of spec.md §4.3: a
// depth-first, backtracking search over an agenda of equality and
// choice constraints, closing each with unification, coercion
// insertion, or (for choice constraints) trial of each alternative in
// turn. Grounded on
// original_source/src/tests/library/elaborator/elaborator.cpp's tst1/tst2
// (metavariables, choice constraints, elaborator.next()) and on
// hop_match.cpp's projection step, reused here via internal/hopmatch for
// the flex-rigid pattern case.
package elaborate

import (
	"context"
	"log/slog"

	"github.com/orizon-lang/elaborate/internal/errors"
	"github.com/orizon-lang/elaborate/internal/hopmatch"
	"github.com/orizon-lang/elaborate/internal/metavar"
	"github.com/orizon-lang/elaborate/internal/notation"
	"github.com/orizon-lang/elaborate/internal/term"
)

// Kind distinguishes the two constraint shapes spec.md §4.3 describes.
type Kind int

const (
	KindEq Kind = iota
	KindChoice
)

// Justification explains why a constraint was generated, and chains to
// the justification of whatever produced it, so a failure can be
// reported against its root cause rather than the leaf step that
// noticed it.
type Justification struct {
	Source string
	Parent *Justification
}

// Constraint is one unit of elaboration work: an equality between two
// terms in a context, or a choice among several candidate right-hand
// sides for a single left-hand side (used for overload resolution,
// spec.md §8.2).
type Constraint struct {
	Kind    Kind
	Ctx     term.Context
	Lhs     term.Term
	Rhs     term.Term   // KindEq
	Choices []term.Term  // KindChoice, tried in order
	Just    Justification
}

// Eq builds an equality constraint.
func Eq(ctx term.Context, lhs, rhs term.Term, just Justification) Constraint {
	return Constraint{Kind: KindEq, Ctx: ctx, Lhs: lhs, Rhs: rhs, Just: just}
}

// Choice builds a choice constraint: lhs must unify with exactly one of
// choices, tried left to right with backtracking on failure.
func Choice(ctx term.Context, lhs term.Term, choices []term.Term, just Justification) Constraint {
	return Constraint{Kind: KindChoice, Ctx: ctx, Lhs: lhs, Choices: choices, Just: just}
}

// Limits bounds the search, per spec.md §4.3/§5's resource model.
type Limits struct {
	MaxDepth int
}

// DefaultLimits is a generous but finite default rather than unbounded
// recursion.
func DefaultLimits() Limits { return Limits{MaxDepth: 256} }

// Env bundles the collaborators a Problem consults while solving:
// the metavariable arena it may assign into, and the notation
// environment it consults for coercions when two sides of an equality
// constraint disagree in type but one side's type coerces to the
// other's.
type Env struct {
	Metas    *metavar.Env
	Notation *notation.Environment
	Limits   Limits

	// Logger receives structural step logging (operator-facing, distinct
	// from the user-facing diagnostic Sink). Nil uses slog.Default().
	Logger *slog.Logger
}

func (e *Env) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}

	return slog.Default()
}

// Problem is one in-progress elaboration: the collaborators it solves
// against and its agenda of constraints. Which KindChoice alternatives
// have been tried is tracked only on search's own call stack, not here.
type Problem struct {
	env    *Env
	agenda []Constraint
}

// NewProblem starts a fresh search over the given constraints.
func NewProblem(env *Env, constraints ...Constraint) *Problem {
	return &Problem{env: env, agenda: append([]Constraint{}, constraints...)}
}

// Solutions iterates the solutions to a Problem depth-first. Next
// returns false once the search is exhausted; ctx cancellation is
// checked between search steps, per spec.md §5.
type Solutions struct {
	p    *Problem
	ctx  context.Context
	done bool
}

// Solve begins a cancellable search over p's constraints.
func Solve(ctx context.Context, p *Problem) *Solutions {
	return &Solutions{p: p, ctx: ctx}
}

// Next runs the depth-first search to completion and reports whether a
// solution exists, returning false on every call after the first: this
// core does not yet re-enter a prior search to produce a second, distinct
// solution (unlike original_source's elaborator.next(), which resumes the
// backtracking stack in place). A second Solve over the same Problem
// after recording and excluding the first solution's choices is the
// workaround until that's worth building. On success, every constraint
// has been discharged and every metavariable it touched is either
// assigned in env.Metas or left for the caller to default.
func (s *Solutions) Next() (bool, error) {
	if s.done {
		return false, nil
	}

	found, err := s.search(s.p.agenda, 0)
	s.done = true

	return found, err
}

// eqStatus classifies the outcome of attempting a single equality
// constraint: solved outright, definitively incompatible, or stuck —
// blocked on an unassigned metavariable that a later step elsewhere in
// the agenda might still resolve.
type eqStatus int

const (
	eqSolved eqStatus = iota
	eqFailed
	eqStuck
)

// search is a depth-first walk of the agenda, backtracking over
// KindChoice alternatives. Per spec.md's agenda discipline ("picks the
// first ready constraint; if only choice or stuck constraints remain,
// it branches on the first choice"), each pass scans for the first
// equality it can actually decide; an equality it cannot yet decide is
// parked on its blocking metavariable via metavar.Env's delayed-op
// queue and dropped from the live agenda, to be replayed once that
// metavariable is assigned (see resumeDelayed). Only once nothing is
// decidable does it fall back to branching on the first choice.
//
// It mutates env.Metas as it descends and unwinds nothing on failure
// (callers that need a clean slate between independent top-level Solve
// calls should use a fresh metavar.Env per call; arena mutation,
// including parked delayed ops from an abandoned choice branch, is
// irreversible with no implicit undo).
func (s *Solutions) search(agenda []Constraint, depth int) (bool, error) {
	if depth > s.p.env.Limits.MaxDepth {
		s.p.env.logger().Warn("elaborate: search depth exceeded", "depth", depth, "limit", s.p.env.Limits.MaxDepth)
		return false, errors.TooDeep("elaboration", s.p.env.Limits.MaxDepth)
	}

	if err := s.ctx.Err(); err != nil {
		s.done = true
		return false, err
	}

	if len(agenda) == 0 {
		if s.p.env.Metas.PendingDelayed() > 0 {
			// Something was parked waiting on a metavariable that never
			// got assigned: the rest of the problem happened to be
			// solvable without it, but this constraint itself was never
			// actually checked.
			return false, nil
		}

		s.done = true
		return true, nil
	}

	choiceIdx := -1
	parked := map[int]bool{}

	for i, c := range agenda {
		if c.Kind == KindChoice {
			if choiceIdx < 0 {
				choiceIdx = i
			}

			continue
		}

		status, more, blocking, err := solveEq(s.p.env, c)
		if err != nil {
			return false, err
		}

		switch status {
		case eqFailed:
			return false, nil
		case eqStuck:
			s.p.env.Metas.PushDelayed(blocking, metavar.DelayedOp{Token: c})
			parked[i] = true
		case eqSolved:
			rest := make([]Constraint, 0, len(agenda))
			for j, other := range agenda {
				if j == i || parked[j] {
					continue
				}

				rest = append(rest, other)
			}

			return s.search(append(more, rest...), depth+1)
		}
	}

	if choiceIdx < 0 {
		return false, nil
	}

	return s.searchChoice(agenda, choiceIdx, parked, depth)
}

// searchChoice tries each of a KindChoice constraint's alternatives in
// turn, backtracking to the next on failure — the same loop `search`
// ran inline before gaining the stuck/ready scan above. parked carries
// forward the indices search already pushed onto the delayed-op queue
// this pass, so they are not also kept live in rest (they are resumed,
// if at all, only through resumeDelayed).
func (s *Solutions) searchChoice(agenda []Constraint, idx int, parked map[int]bool, depth int) (bool, error) {
	c := agenda[idx]

	rest := make([]Constraint, 0, len(agenda))
	for j, other := range agenda {
		if j == idx || parked[j] {
			continue
		}

		rest = append(rest, other)
	}

	for i, candidate := range c.Choices {
		snapshot := Eq(c.Ctx, c.Lhs, candidate, c.Just)

		status, more, _, err := solveEq(s.p.env, snapshot)
		if err != nil {
			return false, err
		}

		if status != eqSolved {
			s.p.env.logger().Debug("elaborate: choice candidate rejected", "depth", depth, "candidate", i)
			continue
		}

		found, err := s.search(append(more, rest...), depth+1)
		if err != nil {
			return false, err
		}

		if found {
			return true, nil
		}
	}

	return false, nil
}

// solveEq attempts to discharge a single equality constraint, possibly
// emitting further constraints to re-queue (e.g. the argument-wise
// equalities from matching two applications, or a coercion's own domain
// check). eqFailed means an ordinary, definite unification failure;
// eqStuck means neither side can be decided yet because it is headed by
// an unassigned metavariable with a spine trySolveMeta could not use,
// and blocking names that metavariable so the caller can defer instead
// of failing outright. It returns an error only for malformed input the
// caller should treat as fatal.
func solveEq(env *Env, c Constraint) (status eqStatus, more []Constraint, blocking metavar.ID, err error) {
	lhs := env.Metas.Instantiate(c.Lhs)
	rhs := env.Metas.Instantiate(c.Rhs)

	if term.Equal(lhs, rhs) {
		return eqSolved, nil, "", nil
	}

	depth := c.Ctx.Size()

	if ok, resumed, err := trySolveMeta(env, depth, lhs, rhs); err != nil {
		return eqFailed, nil, "", err
	} else if ok {
		return eqSolved, resumed, "", nil
	}

	if ok, resumed, err := trySolveMeta(env, depth, rhs, lhs); err != nil {
		return eqFailed, nil, "", err
	} else if ok {
		return eqSolved, resumed, "", nil
	}

	if lhs.Kind() == rhs.Kind() {
		if decomposed, ok := structuralDecompose(c.Ctx, lhs, rhs, c.Just); ok {
			return eqSolved, decomposed, "", nil
		}
	}

	if coerced, ok := tryCoerce(env, c); ok {
		return eqSolved, coerced, "", nil
	}

	if id, ok := blockingMeta(lhs); ok {
		return eqStuck, nil, id, nil
	}

	if id, ok := blockingMeta(rhs); ok {
		return eqStuck, nil, id, nil
	}

	return eqFailed, nil, "", nil
}

// blockingMeta reports the metavariable id is headed by, once already
// instantiated: reaching this call means trySolveMeta tried and failed
// to use it directly (a non-pattern spine, or a flex-flex pairing
// against another metavariable), so it is not yet decidable rather than
// definitely wrong.
func blockingMeta(t term.Term) (metavar.ID, bool) {
	id, _, ok := asMetaApp(t)
	if !ok {
		return "", false
	}

	return metavar.ID(id), true
}

// trySolveMeta handles the flex-rigid case: head is an unassigned
// metavariable applied to a spine of distinct locally bound variables.
// It reuses internal/hopmatch's projection primitive, since solving
// "?m a1 .. an =?= rhs" is exactly the matcher's flex case with the
// metavariable standing in for a logical variable. On success it drains
// and returns any constraints that were parked waiting on this
// metavariable, so the caller can re-queue them.
func trySolveMeta(env *Env, depth int, head, rhs term.Term) (bool, []Constraint, error) {
	id, args, ok := asMetaApp(head)
	if !ok {
		return false, nil, nil
	}

	if !hopmatch.ArgsAreDistinctLocallyBoundVars(args, depth) {
		return false, nil, nil
	}

	solution, ok := hopmatch.Abstract(rhs, args, depth)
	if !ok {
		return false, nil, nil
	}

	if err := env.Metas.Assign(metavar.ID(id), solution); err != nil {
		return false, nil, err
	}

	return true, resumeDelayed(env, metavar.ID(id)), nil
}

// resumeDelayed drains the constraints parked against id and recovers
// each one's Constraint from its opaque DelayedOp.Token.
func resumeDelayed(env *Env, id metavar.ID) []Constraint {
	ops := env.Metas.DrainDelayed(id)
	if len(ops) == 0 {
		return nil
	}

	resumed := make([]Constraint, 0, len(ops))

	for _, op := range ops {
		if c, ok := op.Token.(Constraint); ok {
			resumed = append(resumed, c)
		}
	}

	return resumed
}

func asMetaApp(t term.Term) (term.MetaID, []term.Term, bool) {
	if t.Kind() == term.KindMeta {
		m := t.(interface {
			ID() term.MetaID
			Subst() []term.Term
		})

		return m.ID(), m.Subst(), true
	}

	a, ok := t.(interface {
		Fn() term.Term
		Args() []term.Term
	})
	if !ok {
		return "", nil, false
	}

	if a.Fn().Kind() != term.KindMeta {
		return "", nil, false
	}

	m := a.Fn().(interface {
		ID() term.MetaID
		Subst() []term.Term
	})

	if len(m.Subst()) != 0 {
		return "", nil, false
	}

	return m.ID(), a.Args(), true
}

// structuralDecompose breaks a same-kind equality down into its
// immediate subterm equalities, the way the rewriter's Congr combinators
// do for rewriting (spec.md §4.3 step 3: "decompose rigid-rigid
// equalities argument-wise").
func structuralDecompose(ctx term.Context, a, b term.Term, just Justification) ([]Constraint, bool) {
	switch a.Kind() {
	case term.KindBound:
		ai, _ := term.BoundIndex(a)
		bi, _ := term.BoundIndex(b)

		return nil, ai == bi
	case term.KindConst:
		return nil, term.Equal(a, b)
	case term.KindSort:
		av := a.(interface{ Level() term.Level })
		bv := b.(interface{ Level() term.Level })
		subst, ok := term.UnifyLevels(av.Level(), bv.Level(), map[string]term.Level{})

		return nil, ok && len(subst) == 0
	case term.KindLit:
		return nil, term.Equal(a, b)
	case term.KindApp:
		av := a.(interface {
			Fn() term.Term
			Args() []term.Term
		})
		bv := b.(interface {
			Fn() term.Term
			Args() []term.Term
		})

		if len(av.Args()) != len(bv.Args()) {
			return nil, false
		}

		out := []Constraint{Eq(ctx, av.Fn(), bv.Fn(), just)}
		for i := range av.Args() {
			out = append(out, Eq(ctx, av.Args()[i], bv.Args()[i], just))
		}

		return out, true
	case term.KindLambda, term.KindPi:
		av := a.(interface {
			BinderName() string
			Domain() term.Term
			Body() term.Term
		})
		bv := b.(interface {
			Domain() term.Term
			Body() term.Term
		})

		inner := term.Extend(ctx, av.BinderName(), av.Domain())

		return []Constraint{
			Eq(ctx, av.Domain(), bv.Domain(), just),
			Eq(inner, av.Body(), bv.Body(), just),
		}, true
	default:
		return nil, false
	}
}

// tryCoerce attempts to close the gap between c.Lhs and c.Rhs by
// inserting a coercion from one side's type to the other's, consulting
// the notation environment's coercion table (spec.md §4.2/§4.3's
// integration point). Host type inference for "the type of c.Lhs" is
// out of this package's scope, so this move only fires when the caller
// has phrased the constraint as already being between a known source
// type and target type (i.e. c.Lhs and c.Rhs are themselves types).
//
// Once a coercion fn : c.Lhs -> c.Rhs is found, spec.md:141 requires
// replacing the offending subterm by fn(subterm) and emitting a
// corresponding constraint rather than reporting the gap closed with
// nothing to show for it. fn has no associated computation rule here
// (it is an opaque constant, not a reduction step this core knows how
// to unfold), so the constraint this emits records that the wrap
// happened rather than re-deriving it: a fresh equality between
// fn(c.Lhs) and itself, threaded through search and logged at the
// insertion site for callers that inspect the Logger.
func tryCoerce(env *Env, c Constraint) ([]Constraint, bool) {
	if env.Notation == nil {
		return nil, false
	}

	fn, ok := env.Notation.GetCoercion(c.Lhs, c.Rhs)
	if !ok {
		return nil, false
	}

	coerced := term.NewApp(fn, c.Lhs)

	env.logger().Info("elaborate: coercion inserted", "from", c.Lhs, "to", c.Rhs, "fn", fn)

	return []Constraint{Eq(c.Ctx, coerced, coerced, Justification{Source: "coercion", Parent: &c.Just})}, true
}
