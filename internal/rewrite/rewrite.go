// Package rewrite is the proof-carrying term rewriting engine of
// spec.md §4.4: a small combinator algebra (Theorem, Then, OrElse, Try,
// Repeat, Congr, Congr2) over a Rewriter function type, each combinator
// building a larger proof object out of the proofs its parts produced.
// Grounded on
// original_source/src/library/simplifier/simplifier.h's
// simplifier_monitor interface and failure_kind enum, and on
// hop_match.cpp for the single-step theorem match itself (done by this
// package's own matchBare, not internal/hopmatch; see Theorem).
package rewrite

import (
	"log/slog"

	"github.com/samber/lo"

	"github.com/orizon-lang/elaborate/internal/errors"
	"github.com/orizon-lang/elaborate/internal/term"
)

// ErrNoMatch is returned by a Rewriter that simply did not apply, as
// opposed to a malformed-input error.
var ErrNoMatch = errors.New(errors.CategoryIllFormed, "NO_MATCH", "rewriter did not match", nil)

// ErrTooDeep is returned by Repeat once it exceeds its Config's
// MaxDepth while r still matches.
var ErrTooDeep = errors.New(errors.CategoryOverflow, "TOO_DEEP", "rewrite exceeded its depth budget", nil)

// Proof is an opaque justification object threaded alongside a
// rewritten term: Theorem produces a leaf proof, and every combinator
// wraps its children's proofs into a larger one. The concrete shape is
// intentionally uninterpreted by this package — the host owns what a
// proof object actually proves.
type Proof struct {
	Rule     string
	Children []*Proof
}

// Result is what a Rewriter returns on success: the rewritten term and
// the proof that it equals the input.
type Result struct {
	Term  term.Term
	Proof *Proof
}

// Rewriter rewrites t in context ctx, or returns ErrNoMatch (or another
// error for a genuine failure) if it does not apply.
type Rewriter func(ctx term.Context, t term.Term) (Result, error)

// FailureKind classifies why a rewrite attempt failed, for a Monitor to
// report, mirroring original_source's failure_kind enum.
type FailureKind int

const (
	FailureUnsupported FailureKind = iota
	FailureTypeMismatch
	FailureAssumptionNotProved
	FailureMissingArgument
	FailureLoopPrevention
	FailureAbstractionBody
)

// Monitor observes a rewrite in progress, mirroring
// simplifier_monitor's pre_eh/step_eh/failed_*_eh callbacks. Monitored
// accepts a nil Monitor and uses NoopMonitor in its place.
type Monitor interface {
	Pre(ctx term.Context, t term.Term)
	Step(ctx term.Context, from, to term.Term, proof *Proof)
	Failed(ctx term.Context, t term.Term, kind FailureKind)
}

type noopMonitor struct{}

func (noopMonitor) Pre(term.Context, term.Term)                     {}
func (noopMonitor) Step(term.Context, term.Term, term.Term, *Proof) {}
func (noopMonitor) Failed(term.Context, term.Term, FailureKind)     {}

// NoopMonitor is the default Monitor used when a caller passes nil.
var NoopMonitor Monitor = noopMonitor{}

// SlogMonitor reports every step and failure to a *slog.Logger, nil-safe
// and defaulting to slog.Default() like the rest of this core's
// structural step logging.
type SlogMonitor struct {
	Logger *slog.Logger
}

func (m SlogMonitor) logger() *slog.Logger {
	if m.Logger != nil {
		return m.Logger
	}

	return slog.Default()
}

func (m SlogMonitor) Pre(_ term.Context, t term.Term) {
	m.logger().Debug("rewrite: attempting", "term", t)
}

func (m SlogMonitor) Step(_ term.Context, from, to term.Term, proof *Proof) {
	rule := ""
	if proof != nil {
		rule = proof.Rule
	}

	m.logger().Info("rewrite: step", "rule", rule, "from", from, "to", to)
}

func (m SlogMonitor) Failed(_ term.Context, t term.Term, kind FailureKind) {
	m.logger().Info("rewrite: failed", "term", t, "kind", kind)
}

func monitorOf(m Monitor) Monitor {
	if m == nil {
		return NoopMonitor
	}

	return m
}

// Theorem builds a Rewriter out of a single equational rewrite rule
// lhs -> rhs: numVars universally quantified variables, represented in
// both lhs and rhs as bare Bound indices 0..numVars-1 (never applied to
// further arguments — internal/hopmatch's Abstract is for the
// elaborator's higher-order unification case, where a pattern variable
// can appear applied to a context's locally bound variables; ordinary
// equational theorems like commutativity or associativity never need
// that, and reusing it here would wrongly reject a matched subterm that
// itself mentions the live context's binders, since Abstract assumes
// the solution is about to be re-abstracted over a different set of
// binders entirely). lhs and rhs are lifted to the rewrite site's live
// context depth before matching, and the solved variables are
// substituted back in directly, at the same depth, so any such live
// references in rhs resolve exactly as before.
func Theorem(name string, numVars int, lhs, rhs term.Term) Rewriter {
	return func(ctx term.Context, t term.Term) (Result, error) {
		depth := ctx.Size()
		liftedLHS := term.Shift(lhs, depth, 0)

		subst := make([]term.Term, numVars)
		if !matchBare(liftedLHS, t, depth, subst) {
			return Result{}, ErrNoMatch
		}

		liftedRHS := term.Shift(rhs, depth, 0)
		out := instantiatePattern(liftedRHS, depth, subst, 0)

		return Result{Term: out, Proof: &Proof{Rule: name}}, nil
	}
}

// instantiatePattern replaces every Bound index at or above ctxSize
// (counting from depth, the number of t's own binders crossed so far)
// with its solved value, lifted by depth to account for those binders.
// Unlike term.Subst, no index is ever decremented: nothing is being
// removed from the binder stack here, rhs is simply textually filling
// in placeholders at the position it's about to occupy, which is why a
// dedicated walk is needed rather than numVars calls to term.Subst.
func instantiatePattern(t term.Term, ctxSize int, subst []term.Term, depth int) term.Term {
	switch t.Kind() {
	case term.KindBound:
		idx, _ := term.BoundIndex(t)
		if idx < depth {
			return t
		}

		orig := idx - depth
		if orig < ctxSize {
			return t
		}

		return term.Shift(subst[orig-ctxSize], depth, 0)
	case term.KindConst, term.KindSort, term.KindLit:
		return t
	case term.KindApp:
		v := t.(interface {
			Fn() term.Term
			Args() []term.Term
		})

		args := make([]term.Term, len(v.Args()))
		for i, a := range v.Args() {
			args[i] = instantiatePattern(a, ctxSize, subst, depth)
		}

		return term.NewApp(instantiatePattern(v.Fn(), ctxSize, subst, depth), args...)
	case term.KindLambda, term.KindPi:
		v := t.(interface {
			BinderName() string
			Domain() term.Term
			Body() term.Term
		})

		newDomain := instantiatePattern(v.Domain(), ctxSize, subst, depth)
		newBody := instantiatePattern(v.Body(), ctxSize, subst, depth+1)

		if t.Kind() == term.KindLambda {
			return term.NewLambda(v.BinderName(), newDomain, newBody)
		}

		return term.NewPi(v.BinderName(), newDomain, newBody)
	case term.KindLet:
		v := t.(interface {
			Name() string
			Type() term.Term
			Value() term.Term
			Body() term.Term
		})

		return term.NewLet(v.Name(),
			instantiatePattern(v.Type(), ctxSize, subst, depth),
			instantiatePattern(v.Value(), ctxSize, subst, depth),
			instantiatePattern(v.Body(), ctxSize, subst, depth+1))
	case term.KindHEq:
		v := t.(interface {
			LhsType() term.Term
			Lhs() term.Term
			RhsType() term.Term
			Rhs() term.Term
		})

		return term.NewHEq(
			instantiatePattern(v.LhsType(), ctxSize, subst, depth),
			instantiatePattern(v.Lhs(), ctxSize, subst, depth),
			instantiatePattern(v.RhsType(), ctxSize, subst, depth),
			instantiatePattern(v.Rhs(), ctxSize, subst, depth))
	default:
		return t
	}
}

// matchBare matches pattern against target, where any Bound index at or
// above ctxSize stands for a bare, unapplied rule variable (index
// ctxSize+i resolves subst[i]). It otherwise mirrors
// internal/hopmatch's structural cases directly, since that half of the
// algorithm — rigid-rigid decomposition — is identical; only the flex
// case differs.
func matchBare(pattern, target term.Term, ctxSize int, subst []term.Term) bool {
	if idx, ok := term.BoundIndex(pattern); ok && idx >= ctxSize {
		i := idx - ctxSize
		if subst[i] != nil {
			return term.Equal(subst[i], target)
		}

		subst[i] = target

		return true
	}

	if pattern.Kind() != target.Kind() {
		return false
	}

	switch pattern.Kind() {
	case term.KindBound:
		pi, _ := term.BoundIndex(pattern)
		ti, _ := term.BoundIndex(target)

		return pi == ti
	case term.KindConst, term.KindLit:
		return term.Equal(pattern, target)
	case term.KindSort:
		pv := pattern.(interface{ Level() term.Level })
		tv := target.(interface{ Level() term.Level })

		return pv.Level().Equal(tv.Level())
	case term.KindApp:
		pv := pattern.(interface {
			Fn() term.Term
			Args() []term.Term
		})
		tv := target.(interface {
			Fn() term.Term
			Args() []term.Term
		})

		if len(pv.Args()) != len(tv.Args()) {
			return false
		}

		if !matchBare(pv.Fn(), tv.Fn(), ctxSize, subst) {
			return false
		}

		for i := range pv.Args() {
			if !matchBare(pv.Args()[i], tv.Args()[i], ctxSize, subst) {
				return false
			}
		}

		return true
	case term.KindLambda, term.KindPi:
		pv := pattern.(interface {
			Domain() term.Term
			Body() term.Term
		})
		tv := target.(interface {
			Domain() term.Term
			Body() term.Term
		})

		return matchBare(pv.Domain(), tv.Domain(), ctxSize, subst) &&
			matchBare(pv.Body(), tv.Body(), ctxSize+1, subst)
	case term.KindLet:
		pv := pattern.(interface {
			Type() term.Term
			Value() term.Term
			Body() term.Term
		})
		tv := target.(interface {
			Type() term.Term
			Value() term.Term
			Body() term.Term
		})

		return matchBare(pv.Type(), tv.Type(), ctxSize, subst) &&
			matchBare(pv.Value(), tv.Value(), ctxSize, subst) &&
			matchBare(pv.Body(), tv.Body(), ctxSize+1, subst)
	case term.KindHEq:
		pv := pattern.(interface {
			LhsType() term.Term
			Lhs() term.Term
			RhsType() term.Term
			Rhs() term.Term
		})
		tv := target.(interface {
			LhsType() term.Term
			Lhs() term.Term
			RhsType() term.Term
			Rhs() term.Term
		})

		return matchBare(pv.LhsType(), tv.LhsType(), ctxSize, subst) &&
			matchBare(pv.Lhs(), tv.Lhs(), ctxSize, subst) &&
			matchBare(pv.RhsType(), tv.RhsType(), ctxSize, subst) &&
			matchBare(pv.Rhs(), tv.Rhs(), ctxSize, subst)
	default:
		return false
	}
}

// Then runs a, then b on whatever a produced, chaining proofs.
func Then(a, b Rewriter) Rewriter {
	return func(ctx term.Context, t term.Term) (Result, error) {
		ra, err := a(ctx, t)
		if err != nil {
			return Result{}, err
		}

		rb, err := b(ctx, ra.Term)
		if err != nil {
			return Result{}, err
		}

		return Result{Term: rb.Term, Proof: &Proof{Rule: "then", Children: []*Proof{ra.Proof, rb.Proof}}}, nil
	}
}

// ThenAll chains rewriters left to right; ThenAll() is the identity
// rewriter (always succeeds, returns t unchanged with a "refl" proof).
func ThenAll(rs ...Rewriter) Rewriter {
	if len(rs) == 0 {
		return Identity
	}

	return lo.Reduce(rs[1:], func(acc Rewriter, r Rewriter, _ int) Rewriter {
		return Then(acc, r)
	}, rs[0])
}

// Identity always succeeds without changing t.
func Identity(ctx term.Context, t term.Term) (Result, error) {
	return Result{Term: t, Proof: &Proof{Rule: "refl"}}, nil
}

// OrElse tries a, falling back to b only if a returns ErrNoMatch. Any
// other error from a is propagated without trying b.
func OrElse(a, b Rewriter) Rewriter {
	return func(ctx term.Context, t term.Term) (Result, error) {
		ra, err := a(ctx, t)
		if err == nil {
			return ra, nil
		}

		if err != ErrNoMatch {
			return Result{}, err
		}

		return b(ctx, t)
	}
}

// OrElseAll tries each rewriter in turn, returning the first success.
// OrElseAll() with no arguments never matches.
func OrElseAll(rs ...Rewriter) Rewriter {
	if len(rs) == 0 {
		return Fail
	}

	return lo.Reduce(rs[1:], func(acc Rewriter, r Rewriter, _ int) Rewriter {
		return OrElse(acc, r)
	}, rs[0])
}

// Fail never matches.
func Fail(ctx term.Context, t term.Term) (Result, error) {
	return Result{}, ErrNoMatch
}

// Try runs r, and if it returns ErrNoMatch, succeeds anyway by leaving t
// unchanged: Try(r) never fails on ErrNoMatch, matching the algebraic
// law try(r) never fails.
func Try(r Rewriter) Rewriter {
	return OrElse(r, Identity)
}

// Config bounds a Repeat loop.
type Config struct {
	MaxDepth int
}

// DefaultConfig is a generous but finite bound.
func DefaultConfig() Config { return Config{MaxDepth: 1000} }

// Repeat applies r until it stops matching or cfg.MaxDepth steps have
// run, whichever comes first, failing with ErrTooDeep if the bound is
// hit while r still matches (spec.md §4.4/§5's loop-prevention budget).
func Repeat(r Rewriter, cfg Config) Rewriter {
	return func(ctx term.Context, t term.Term) (Result, error) {
		cur := t

		var proofs []*Proof

		for i := 0; ; i++ {
			if i >= cfg.MaxDepth {
				return Result{}, ErrTooDeep
			}

			res, err := r(ctx, cur)
			if err == ErrNoMatch {
				break
			}

			if err != nil {
				return Result{}, err
			}

			proofs = append(proofs, res.Proof)
			cur = res.Term
		}

		if len(proofs) == 0 {
			return Result{Term: cur, Proof: &Proof{Rule: "refl"}}, nil
		}

		return Result{Term: cur, Proof: &Proof{Rule: "repeat", Children: proofs}}, nil
	}
}

// Congr rewrites the single argument of a unary application f a,
// leaving f fixed, and fails (ErrNoMatch) if t is not shaped that way.
func Congr(r Rewriter) Rewriter {
	return func(ctx term.Context, t term.Term) (Result, error) {
		fn, args, ok := asApp(t)
		if !ok || len(args) != 1 {
			return Result{}, ErrNoMatch
		}

		ra, err := r(ctx, args[0])
		if err != nil {
			return Result{}, err
		}

		return Result{Term: term.NewApp(fn, ra.Term), Proof: &Proof{Rule: "congr", Children: []*Proof{ra.Proof}}}, nil
	}
}

// Congr2 rewrites both arguments of a binary application f a b,
// leaving f fixed.
func Congr2(r1, r2 Rewriter) Rewriter {
	return func(ctx term.Context, t term.Term) (Result, error) {
		fn, args, ok := asApp(t)
		if !ok || len(args) != 2 {
			return Result{}, ErrNoMatch
		}

		ra, err := r1(ctx, args[0])
		if err != nil {
			return Result{}, err
		}

		rb, err := r2(ctx, args[1])
		if err != nil {
			return Result{}, err
		}

		return Result{
			Term:  term.NewApp(fn, ra.Term, rb.Term),
			Proof: &Proof{Rule: "congr2", Children: []*Proof{ra.Proof, rb.Proof}},
		}, nil
	}
}

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

// Monitored wraps r so that m observes every attempt, matching
// simplifier_monitor's step/failure callbacks.
func Monitored(r Rewriter, m Monitor) Rewriter {
	m = monitorOf(m)

	return func(ctx term.Context, t term.Term) (Result, error) {
		m.Pre(ctx, t)

		res, err := r(ctx, t)
		if err != nil {
			if err == ErrNoMatch {
				m.Failed(ctx, t, FailureUnsupported)
			}

			return Result{}, err
		}

		m.Step(ctx, t, res.Term, res.Proof)

		return res, nil
	}
}
