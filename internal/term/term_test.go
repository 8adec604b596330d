package term

import "testing"

func TestShiftLowerRoundTrip(t *testing.T) {
	// f #0 #2, shifted up by 3 under a fresh scope, then lowered back.
	f := NewConst(Str("f"))
	e := NewApp(f, NewBound(0), NewBound(2))

	up := Shift(e, 3, 0)
	if !Equal(Shift(up, -3, 0), e) {
		t.Fatalf("lift then lower did not round-trip")
	}
}

func TestHasFreeVarIn(t *testing.T) {
	e := NewApp(NewConst(Str("f")), NewBound(0), NewBound(2))

	if !e.HasFreeVarIn(0, 1) {
		t.Fatalf("expected free var 0 to be found in [0,1)")
	}

	if e.HasFreeVarIn(3, 1) {
		t.Fatalf("did not expect a free var in [3,4)")
	}

	if !e.HasFreeVarIn(1, 2) {
		t.Fatalf("expected free var 2 to be found in [1,3)")
	}
}

func TestBetaApply(t *testing.T) {
	body := NewApp(NewConst(Str("g")), NewBound(0), NewBound(1))
	lam := NewLambda("x", NewConst(Str("T")), body)
	a := NewConst(Str("a"))

	// (\x. g x b) applied to a under one enclosing binder for b (#1
	// refers to the caller's context, not the lambda's own parameter).
	got := BetaApply(lam, []Term{a})

	want := NewApp(NewConst(Str("g")), a, NewBound(0))
	if !Equal(got, want) {
		t.Fatalf("BetaApply: got %v want %v", got, want)
	}
}

func TestCompareTotalOrder(t *testing.T) {
	a := NewConst(Str("a"))
	b := NewConst(Str("b"))

	if a.Compare(a) != 0 {
		t.Fatalf("expected reflexive compare")
	}

	if a.Compare(b) >= 0 {
		t.Fatalf("expected a < b")
	}

	if b.Compare(a) <= 0 {
		t.Fatalf("expected antisymmetry")
	}
}

func TestContextLookupExt(t *testing.T) {
	ctx := Empty()
	ctx = Extend(ctx, "x", NewConst(Str("Nat")))
	ctx = Extend(ctx, "y", NewApp(NewConst(Str("Vec")), NewBound(0)))

	entry, siteCtx := ctx.LookupExt(0)
	if entry.Name != "y" {
		t.Fatalf("expected innermost entry y, got %s", entry.Name)
	}

	if siteCtx.Size() != 1 {
		t.Fatalf("expected binding-site context of size 1, got %d", siteCtx.Size())
	}
}

func TestLevelJoin(t *testing.T) {
	p := Param(Str("u"))
	if !Join(Zero(), p).Equal(p) {
		t.Fatalf("Join(Zero, p) should be p")
	}

	if !Join(p, p).Equal(p) {
		t.Fatalf("Join(p, p) should be p")
	}
}
