package rewrite

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/orizon-lang/elaborate/internal/term"
)

// commTheorem is ?a + ?b = ?b + ?a, with + represented as a curried
// application of the constant "add".
func commTheorem() Rewriter {
	add := term.NewConst(term.Str("add"))
	a, b := term.NewBound(0), term.NewBound(1)
	lhs := term.NewApp(add, a, b)
	rhs := term.NewApp(add, b, a)

	return Theorem("add_comm", 2, lhs, rhs)
}

func TestTheoremCommutativity(t *testing.T) {
	add := term.NewConst(term.Str("add"))
	x := term.NewConst(term.Str("x"))
	y := term.NewConst(term.Str("y"))

	r := commTheorem()

	res, err := r(term.Empty(), term.NewApp(add, x, y))
	if err != nil {
		t.Fatalf("rewrite: %v", err)
	}

	want := term.NewApp(add, y, x)
	if !term.Equal(res.Term, want) {
		t.Fatalf("got %v want %v", res.Term, want)
	}
}

// TestTheoremUnderBinder is spec.md §8.4's trans-comm scenario in
// miniature: rewriting x + y inside a lambda must leave x and y as the
// same live bound variables, not lose track of the enclosing binder.
func TestTheoremUnderBinder(t *testing.T) {
	add := term.NewConst(term.Str("add"))
	nat := term.NewConst(term.Str("Nat"))

	body := term.NewApp(add, term.NewBound(0), term.NewBound(1))
	lam := term.NewLambda("z", nat, body)

	ctxUnderBinder := term.Extend(term.Empty(), "z", nat)

	r := commTheorem()

	res, err := r(ctxUnderBinder, body)
	if err != nil {
		t.Fatalf("rewrite under binder: %v", err)
	}

	want := term.NewApp(add, term.NewBound(1), term.NewBound(0))
	if !term.Equal(res.Term, want) {
		t.Fatalf("got %v want %v", res.Term, want)
	}

	_ = lam
}

func TestTheoremFailsOnMismatch(t *testing.T) {
	r := commTheorem()

	f := term.NewConst(term.Str("f"))
	x := term.NewConst(term.Str("x"))

	_, err := r(term.Empty(), term.NewApp(f, x))
	if err != ErrNoMatch {
		t.Fatalf("expected ErrNoMatch, got %v", err)
	}
}

func TestSlogMonitorReportsStepAndFailure(t *testing.T) {
	var buf bytes.Buffer
	monitor := SlogMonitor{Logger: slog.New(slog.NewTextHandler(&buf, nil))}

	add := term.NewConst(term.Str("add"))
	x := term.NewConst(term.Str("x"))
	y := term.NewConst(term.Str("y"))

	r := Monitored(commTheorem(), monitor)

	if _, err := r(term.Empty(), term.NewApp(add, x, y)); err != nil {
		t.Fatalf("rewrite: %v", err)
	}

	if !strings.Contains(buf.String(), "rewrite: step") {
		t.Fatalf("expected a step log entry, got %q", buf.String())
	}

	buf.Reset()

	f := term.NewConst(term.Str("f"))

	if _, err := r(term.Empty(), term.NewApp(f, x)); err != ErrNoMatch {
		t.Fatalf("expected ErrNoMatch, got %v", err)
	}

	if !strings.Contains(buf.String(), "rewrite: failed") {
		t.Fatalf("expected a failure log entry, got %q", buf.String())
	}
}

func TestThenIdentityLaw(t *testing.T) {
	x := term.NewConst(term.Str("x"))

	combined := Then(Identity, commTheorem())
	_, err := combined(term.Empty(), x)
	if err != ErrNoMatch {
		t.Fatalf("then(id, r) should behave exactly like r; expected ErrNoMatch, got %v", err)
	}
}

func TestOrElseIdentityLaws(t *testing.T) {
	add := term.NewConst(term.Str("add"))
	x := term.NewConst(term.Str("x"))
	y := term.NewConst(term.Str("y"))
	target := term.NewApp(add, x, y)

	r := commTheorem()

	a, err := OrElse(Fail, r)(term.Empty(), target)
	if err != nil {
		t.Fatalf("orelse(fail, r): %v", err)
	}

	b, err := OrElse(r, Fail)(term.Empty(), target)
	if err != nil {
		t.Fatalf("orelse(r, fail): %v", err)
	}

	if !term.Equal(a.Term, b.Term) {
		t.Fatalf("orelse(fail,r) and orelse(r,fail) should agree: %v vs %v", a.Term, b.Term)
	}
}

func TestTryNeverFails(t *testing.T) {
	x := term.NewConst(term.Str("x"))

	res, err := Try(commTheorem())(term.Empty(), x)
	if err != nil {
		t.Fatalf("try(r) must never fail, got %v", err)
	}

	if !term.Equal(res.Term, x) {
		t.Fatalf("try(r) on a non-matching term should leave it unchanged")
	}
}

func TestRepeatStopsWhenNoLongerMatching(t *testing.T) {
	add := term.NewConst(term.Str("add"))
	x := term.NewConst(term.Str("x"))
	y := term.NewConst(term.Str("y"))
	target := term.NewApp(add, x, y)
	want := term.NewApp(add, y, x)

	// A closed rule for exactly add x y: its result add y x no longer
	// matches it, so Repeat reaches a fixed point after one step.
	swapOnce := Theorem("swap_xy", 0, target, want)

	res, err := Repeat(swapOnce, DefaultConfig())(term.Empty(), target)
	if err != nil {
		t.Fatalf("repeat: %v", err)
	}

	if !term.Equal(res.Term, want) {
		t.Fatalf("got %v want %v", res.Term, want)
	}
}

func TestRepeatHitsLoopPreventionBudget(t *testing.T) {
	// A rule that always matches and never reaches a fixed point: swap
	// the two arguments of a binary application, which, applied to
	// itself repeatedly, keeps matching forever.
	swap := func(ctx term.Context, t term.Term) (Result, error) {
		fn, args, ok := asApp(t)
		if !ok || len(args) != 2 {
			return Result{}, ErrNoMatch
		}

		return Result{Term: term.NewApp(fn, args[1], args[0]), Proof: &Proof{Rule: "swap"}}, nil
	}

	add := term.NewConst(term.Str("add"))
	x := term.NewConst(term.Str("x"))
	y := term.NewConst(term.Str("y"))

	_, err := Repeat(swap, Config{MaxDepth: 10})(term.Empty(), term.NewApp(add, x, y))
	if err != ErrTooDeep {
		t.Fatalf("expected ErrTooDeep, got %v", err)
	}
}

func TestCongr2RewritesBothArguments(t *testing.T) {
	add := term.NewConst(term.Str("add"))
	x := term.NewConst(term.Str("x"))
	y := term.NewConst(term.Str("y"))

	renameX := Theorem("rename_x", 0, x, y)

	res, err := Congr2(renameX, renameX)(term.Empty(), term.NewApp(add, x, x))
	if err != nil {
		t.Fatalf("congr2: %v", err)
	}

	want := term.NewApp(add, y, y)
	if !term.Equal(res.Term, want) {
		t.Fatalf("got %v want %v", res.Term, want)
	}
}
