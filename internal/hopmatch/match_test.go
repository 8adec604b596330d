package hopmatch

import (
	"testing"

	"github.com/orizon-lang/elaborate/internal/term"
)

// TestMatchWorkedExample reproduces spec.md §8.1: matching `?F b a`
// against `f b (f a b)` in a context with two locally bound variables
// a (index 1) and b (index 0), where ?F is a single logical variable
// (index 2). The solution should be `\x y. f x (f y x)`, which
// beta-applied to [b, a] gives back the target.
func TestMatchWorkedExample(t *testing.T) {
	const ctxSize = 2

	a := term.NewBound(1)
	b := term.NewBound(0)
	f := term.NewConst(term.Str("f"))
	logicalF := term.NewBound(ctxSize) // ?F

	pattern := term.NewApp(logicalF, b, a)
	target := term.NewApp(f, b, term.NewApp(f, a, b))

	s := NewState(ctxSize, 1)
	if !Match(pattern, target, s) {
		t.Fatalf("expected pattern to match target")
	}

	solution := s.Subst()[0]
	if solution == nil {
		t.Fatalf("expected ?F to be solved")
	}

	got := term.BetaApply(solution, []term.Term{b, a})
	if !term.Equal(got, target) {
		t.Fatalf("BetaApply(solution, [b, a]) = %v, want %v", got, target)
	}
}

func TestMatchFailsOnNonDistinctArgs(t *testing.T) {
	const ctxSize = 2

	a := term.NewBound(1)
	logicalF := term.NewBound(ctxSize)

	// ?F a a: args are not distinct, not a Miller pattern.
	pattern := term.NewApp(logicalF, a, a)
	target := term.NewConst(term.Str("anything"))

	s := NewState(ctxSize, 1)
	if Match(pattern, target, s) {
		t.Fatalf("expected non-distinct-argument pattern to fail to match")
	}
}

func TestMatchRejectsCapturedLocalVariable(t *testing.T) {
	const ctxSize = 2

	a := term.NewBound(1)
	b := term.NewBound(0)
	logicalF := term.NewBound(ctxSize)

	// ?F b, but the target mentions a, which was not offered as an
	// argument: a cannot appear in the solution.
	pattern := term.NewApp(logicalF, b)
	target := term.NewApp(term.NewConst(term.Str("f")), a, b)

	s := NewState(ctxSize, 1)
	if Match(pattern, target, s) {
		t.Fatalf("expected capture of an unoffered local variable to fail")
	}
}

// TestMatchUnderLambdaClassifiesFreshBinderAsLocal is spec.md §4.1's
// "recurse on bodies in extend(ctx, binder_name, domain) with
// ctx_size+1": the pattern \x. ?F x, matched against \x. f x, has a
// logical variable occurring under a binder that is itself fresh to
// that binder — the occurrence's own bound index (1) must be classified
// against ctxSize+1, not the outer ctxSize, or the fresh binder
// variable x (index 0 inside the body) gets misread as the logical
// variable and vice versa.
func TestMatchUnderLambdaClassifiesFreshBinderAsLocal(t *testing.T) {
	const ctxSize = 0

	nat := term.NewConst(term.Str("Nat"))
	f := term.NewConst(term.Str("f"))

	// Inside the lambda body, x is index 0 and ?F is index ctxSize+1 = 1.
	logicalF := term.NewBound(ctxSize + 1)
	x := term.NewBound(0)

	pattern := term.NewLambda("x", nat, term.NewApp(logicalF, x))
	target := term.NewLambda("x", nat, term.NewApp(f, x))

	s := NewState(ctxSize, 1)
	if !Match(pattern, target, s) {
		t.Fatalf("expected \\x. ?F x to match \\x. f x")
	}

	solution := s.Subst()[0]
	if solution == nil {
		t.Fatalf("expected ?F to be solved")
	}

	got := term.BetaApply(solution, []term.Term{x})
	want := term.NewApp(f, x)

	if !term.Equal(got, want) {
		t.Fatalf("BetaApply(solution, [x]) = %v, want %v", got, want)
	}
}

// TestMatchUnderNestedLambdaDoesNotMisclassifyOuterLogicalVar matches a
// pattern where the logical variable occurs two binders deep, checking
// that depth accumulates across more than one nested binder rather than
// only the innermost one.
func TestMatchUnderNestedLambdaDoesNotMisclassifyOuterLogicalVar(t *testing.T) {
	const ctxSize = 0

	nat := term.NewConst(term.Str("Nat"))
	f := term.NewConst(term.Str("f"))

	// Inside both lambda bodies: y is index 0, x is index 1, ?F is index
	// ctxSize+2 = 2.
	logicalF := term.NewBound(ctxSize + 2)
	x := term.NewBound(1)
	y := term.NewBound(0)

	pattern := term.NewLambda("x", nat, term.NewLambda("y", nat, term.NewApp(logicalF, y, x)))
	target := term.NewLambda("x", nat, term.NewLambda("y", nat, term.NewApp(f, y, x)))

	s := NewState(ctxSize, 1)
	if !Match(pattern, target, s) {
		t.Fatalf("expected the doubly-nested pattern to match")
	}

	solution := s.Subst()[0]
	if solution == nil {
		t.Fatalf("expected ?F to be solved")
	}

	got := term.BetaApply(solution, []term.Term{y, x})
	want := term.NewApp(f, y, x)

	if !term.Equal(got, want) {
		t.Fatalf("BetaApply(solution, [y, x]) = %v, want %v", got, want)
	}
}

func TestMatchStructuralOnConstAndApp(t *testing.T) {
	f := term.NewConst(term.Str("f"))
	g := term.NewConst(term.Str("g"))
	x := term.NewConst(term.Str("x"))

	pattern := term.NewApp(f, x)
	target := term.NewApp(g, x)

	s := NewState(0, 0)
	if Match(pattern, target, s) {
		t.Fatalf("expected mismatched heads to fail")
	}
}

func TestMatchReusesPriorAssignment(t *testing.T) {
	const ctxSize = 1

	b := term.NewBound(0)
	logicalF := term.NewBound(ctxSize)
	c := term.NewConst(term.Str("c"))

	s := NewState(ctxSize, 1)

	// First occurrence solves ?F b = c, i.e. ?F := c (no dependence on b).
	if !Match(term.NewApp(logicalF, b), c, s) {
		t.Fatalf("expected first occurrence to solve ?F")
	}

	// A second occurrence of ?F applied to b elsewhere must now equal c.
	if !Match(term.NewApp(logicalF, b), c, s) {
		t.Fatalf("expected second occurrence to check consistently against the prior solution")
	}

	if Match(term.NewApp(logicalF, b), term.NewConst(term.Str("d")), s) {
		t.Fatalf("expected a conflicting second occurrence to fail")
	}
}
