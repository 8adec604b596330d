package term

import "github.com/samber/lo"

// Shift adjusts every de Bruijn index >= cutoff by delta. It is the
// single primitive spec.md §4.1's lift/lower operations are built from:
// lift(s, k) is Shift(s, k, 0) (bring a closed substitution under k new
// binders); lower(t, k) is Shift(t, -k, k) (drop k binders a term is
// known not to reference).
func Shift(t Term, delta, cutoff int) Term {
	if delta == 0 {
		return t
	}

	switch v := t.(type) {
	case *boundTerm:
		if v.index < cutoff {
			return t
		}

		return NewBound(v.index + delta)
	case *constTerm, *sortTerm, *litTerm:
		return t
	case *appTerm:
		args := lo.Map(v.args, func(a Term, _ int) Term { return Shift(a, delta, cutoff) })

		return NewApp(Shift(v.fn, delta, cutoff), args...)
	case *binderTerm:
		if v.kind == KindLambda {
			return NewLambda(v.name, Shift(v.domain, delta, cutoff), Shift(v.body, delta, cutoff+1))
		}

		return NewPi(v.name, Shift(v.domain, delta, cutoff), Shift(v.body, delta, cutoff+1))
	case *letTerm:
		return NewLet(v.name, Shift(v.typ, delta, cutoff), Shift(v.value, delta, cutoff), Shift(v.body, delta, cutoff+1))
	case *heqTerm:
		return NewHEq(Shift(v.lhsType, delta, cutoff), Shift(v.lhs, delta, cutoff), Shift(v.rhsType, delta, cutoff), Shift(v.rhs, delta, cutoff))
	case *metaTerm:
		subst := lo.Map(v.subst, func(s Term, _ int) Term { return Shift(s, delta, cutoff) })

		return NewMeta(v.id, subst)
	default:
		panic("term: Shift: unknown term kind")
	}
}

// Subst replaces the de Bruijn variable bound at index j within t by
// value, decrementing every index above j by one to account for the
// binder being consumed. value is shifted as it crosses each enclosing
// binder on the way down.
func Subst(t Term, j int, value Term) Term {
	switch v := t.(type) {
	case *boundTerm:
		switch {
		case v.index == j:
			return Shift(value, j, 0)
		case v.index > j:
			return NewBound(v.index - 1)
		default:
			return t
		}
	case *constTerm, *sortTerm, *litTerm:
		return t
	case *appTerm:
		args := lo.Map(v.args, func(a Term, _ int) Term { return Subst(a, j, value) })

		return NewApp(Subst(v.fn, j, value), args...)
	case *binderTerm:
		if v.kind == KindLambda {
			return NewLambda(v.name, Subst(v.domain, j, value), Subst(v.body, j+1, value))
		}

		return NewPi(v.name, Subst(v.domain, j, value), Subst(v.body, j+1, value))
	case *letTerm:
		return NewLet(v.name, Subst(v.typ, j, value), Subst(v.value, j, value), Subst(v.body, j+1, value))
	case *heqTerm:
		return NewHEq(Subst(v.lhsType, j, value), Subst(v.lhs, j, value), Subst(v.rhsType, j, value), Subst(v.rhs, j, value))
	case *metaTerm:
		subst := lo.Map(v.subst, func(s Term, _ int) Term { return Subst(s, j, value) })

		return NewMeta(v.id, subst)
	default:
		panic("term: Subst: unknown term kind")
	}
}

// BetaApply applies fn to args, reducing one lambda per argument while
// fn stays a literal Lambda and wrapping any surplus arguments in an
// ordinary application once it isn't. This is apply_beta from
// original_source's hop_match.cpp.
func BetaApply(fn Term, args []Term) Term {
	i := 0

	for i < len(args) {
		lam, ok := fn.(*binderTerm)
		if !ok || lam.kind != KindLambda {
			break
		}

		fn = Subst(lam.body, 0, args[i])
		i++
	}

	if i < len(args) {
		return NewApp(fn, args[i:]...)
	}

	return fn
}

// Equal reports structural equality (Compare == 0).
func Equal(a, b Term) bool { return a.Compare(b) == 0 }
