// Package main demonstrates the elaboration and rewriting core end to
// end: notation registration and redefinition, implicit-argument
// marking, coercion insertion, higher-order pattern matching, placeholder
// elaboration, and proof-carrying rewriting, each exercised against the
// worked examples of spec.md §8: a single package main with no flags,
// printing each section's result to stdout.
package main

import (
	"bytes"
	"context"
	"fmt"
	"os"

	"github.com/orizon-lang/elaborate/internal/diagnostic"
	"github.com/orizon-lang/elaborate/internal/elaborate"
	"github.com/orizon-lang/elaborate/internal/hopmatch"
	"github.com/orizon-lang/elaborate/internal/metavar"
	"github.com/orizon-lang/elaborate/internal/notation"
	"github.com/orizon-lang/elaborate/internal/rewrite"
	"github.com/orizon-lang/elaborate/internal/serialize"
	"github.com/orizon-lang/elaborate/internal/term"
)

// demoHost is a minimal notation.TypeOf: a handful of names with known
// arity, kind, and arrow type, just enough to drive the implicit-marking
// and coercion sections below. A real host would be the type checker
// this core is embedded in (spec.md §1's "external collaborator").
type demoHost struct {
	arity  map[string]int
	kinds  map[string]notation.ObjectKind
	arrows map[string][2]term.Term
}

func (h *demoHost) ArrowArity(n term.Name) (int, bool) {
	a, ok := h.arity[n.String()]
	return a, ok
}

func (h *demoHost) Kind(n term.Name) (notation.ObjectKind, bool) {
	k, ok := h.kinds[n.String()]
	return k, ok
}

func (h *demoHost) TypeCheckArrow(f term.Term) (term.Term, term.Term, bool) {
	c, ok := f.(interface{ Name() term.Name })
	if !ok {
		return nil, nil, false
	}

	pair, ok := h.arrows[c.Name().String()]
	if !ok {
		return nil, nil, false
	}

	return pair[0], pair[1], true
}

func (h *demoHost) Unfold(term.Term) (term.Term, bool) { return nil, false }

func main() {
	section("1. Notation redefinition (spec.md §8.5)", demoNotation)
	section("2. Implicit-argument marking", demoImplicit)
	section("3. Coercion insertion (spec.md §8.6)", demoCoercion)
	section("4. Higher-order pattern matching (spec.md §8.1)", demoHopMatch)
	section("5. Placeholder elaboration (spec.md §8.3)", demoElaborate)
	section("6. Proof-carrying rewriting (spec.md §8.4)", demoRewrite)
	section("7. Declaration serialization (spec.md §6)", demoSerialize)
}

func section(title string, body func()) {
	fmt.Println("==", title)
	body()
	fmt.Println()
}

func demoNotation() {
	host := &demoHost{arity: map[string]int{}, kinds: map[string]notation.ObjectKind{}, arrows: map[string][2]term.Term{}}
	env := notation.NewRoot(diagnostic.Writer{W: os.Stdout}, host)

	natAdd := term.NewConst(term.Str("nat_add"))
	intAdd := term.NewConst(term.Str("int_add"))

	infixlPlus := notation.NewOperator(notation.Infixl, 65, "+")
	if err := env.Register(infixlPlus, natAdd, notation.Led); err != nil {
		fmt.Println("register error:", err)
	}

	infixrPlus := notation.NewOperator(notation.Infixr, 70, "+")
	if err := env.Register(infixrPlus, intAdd, notation.Led); err != nil {
		fmt.Println("register error:", err)
	}

	op, _ := env.FindLed("+")
	fmt.Printf("led(\"+\") now denotes %v at precedence %d\n", op.Denotations(), op.Precedence)
}

func demoImplicit() {
	host := &demoHost{
		arity: map[string]int{"F": 3},
		kinds: map[string]notation.ObjectKind{"F": notation.ObjectDefinition},
		arrows: map[string][2]term.Term{},
	}
	env := notation.NewRoot(diagnostic.Discard, host)

	f := term.Str("F")
	if err := env.MarkImplicit(f, []bool{true, true, false}); err != nil {
		fmt.Println("mark implicit error:", err)
		return
	}

	flags := env.ImplicitFlags(f)
	explicit, _ := env.ExplicitVersion(f)
	fmt.Printf("F's implicit flags: %v, explicit version named %q\n", flags, explicit)
}

func demoCoercion() {
	intType := term.NewConst(term.Str("Int"))
	realType := term.NewConst(term.Str("Real"))
	intToReal := term.NewConst(term.Str("int_to_real"))

	host := &demoHost{
		arity: map[string]int{},
		kinds: map[string]notation.ObjectKind{},
		arrows: map[string][2]term.Term{
			"int_to_real": {intType, realType},
		},
	}
	env := notation.NewRoot(diagnostic.Discard, host)

	if err := env.AddCoercion(intToReal); err != nil {
		fmt.Println("add coercion error:", err)
		return
	}

	elabEnv := &elaborate.Env{Metas: metavar.NewEnv(), Notation: env, Limits: elaborate.DefaultLimits()}
	p := elaborate.NewProblem(elabEnv, elaborate.Eq(term.Empty(), intType, realType, elaborate.Justification{Source: "demo"}))

	ok, err := elaborate.Solve(context.Background(), p).Next()
	if err != nil {
		fmt.Println("solve error:", err)
		return
	}

	if !ok {
		fmt.Println("elaborator did not accept the coercion")
		return
	}

	fn, _ := env.GetCoercion(intType, realType)

	realLe := term.NewConst(term.Str("real_le"))
	a := term.NewConst(term.Str("a"))
	zero := term.NewConst(term.Str("0"))

	coerced := term.NewApp(realLe, term.NewApp(fn, a), zero)
	fmt.Printf("real_le(a, 0) with a : Int elaborates to %s (elaborator accepted Int =?= Real via the coercion)\n", printTerm(coerced))
}

func demoHopMatch() {
	f := term.NewConst(term.Str("f"))
	b := term.NewBound(0)
	a := term.NewBound(1)

	pattern := term.NewApp(term.NewBound(2), b, a) // ?F b a
	target := term.NewApp(f, b, term.NewApp(f, a, b))

	s := hopmatch.NewState(2, 1)
	if !hopmatch.Match(pattern, target, s) {
		fmt.Println("match failed")
		return
	}

	solution := s.Subst()[0]
	back := term.BetaApply(solution, []term.Term{b, a})

	fmt.Printf("?F b a =?= f b (f a b) solves ?F, and instantiating back gives %s\n", printTerm(back))
	fmt.Printf("round-trips to target: %v\n", term.Equal(back, target))
}

func demoElaborate() {
	env := &elaborate.Env{Metas: metavar.NewEnv(), Limits: elaborate.DefaultLimits()}

	nat := term.NewConst(term.Str("Nat"))
	id := env.Metas.Fresh(term.Empty(), nat, metavar.Justification{Source: "placeholder"})
	hole := term.NewMeta(term.MetaID(id), nil)
	three := term.NewConst(term.Str("3"))

	p := elaborate.NewProblem(env, elaborate.Eq(term.Empty(), hole, three, elaborate.Justification{Source: "demo"}))

	ok, err := elaborate.Solve(context.Background(), p).Next()
	if err != nil {
		fmt.Println("solve error:", err)
		return
	}

	fmt.Printf("solved: %v, ?m := %s\n", ok, printTerm(env.Metas.Instantiate(hole)))
}

func demoRewrite() {
	add := term.NewConst(term.Str("add"))
	zero := term.NewConst(term.Str("0"))
	a := term.NewConst(term.Str("a"))

	x, y := term.NewBound(0), term.NewBound(1)
	addComm := rewrite.Theorem("add_comm", 2, term.NewApp(add, x, y), term.NewApp(add, y, x))
	addID := rewrite.Theorem("add_id", 1, term.NewApp(add, term.NewBound(0), zero), term.NewBound(0))

	transComm := rewrite.Then(addComm, addID)

	target := term.NewApp(add, zero, a)

	res, err := transComm(term.Empty(), target)
	if err != nil {
		fmt.Println("rewrite failed:", err)
		return
	}

	fmt.Printf("0 + a rewrites to %s via proof rule %q over %v\n", printTerm(res.Term), res.Proof.Rule, ruleNames(res.Proof))
}

func ruleNames(p *rewrite.Proof) []string {
	out := []string{p.Rule}
	for _, c := range p.Children {
		out = append(out, ruleNames(c)...)
	}

	return out
}

func demoSerialize() {
	var buf bytes.Buffer

	w, err := serialize.NewWriter(&buf)
	if err != nil {
		fmt.Println("new writer:", err)
		return
	}

	decl := serialize.ImplicitDecl{Name: term.Str("F"), Flags: []bool{true, true, false}}
	if err := w.WriteImplicit(decl); err != nil {
		fmt.Println("write:", err)
		return
	}

	if err := w.Flush(); err != nil {
		fmt.Println("flush:", err)
		return
	}

	r, err := serialize.NewReader(&buf)
	if err != nil {
		fmt.Println("new reader:", err)
		return
	}

	tag, _ := r.ReadTag()

	got, err := r.ReadImplicit()
	if err != nil {
		fmt.Println("read:", err)
		return
	}

	fmt.Printf("round-tripped %s record under format version %s: %s flags=%v\n", tag, r.Version, got.Name, got.Flags)
}

// printTerm is a small, demo-only pretty printer: the real printer
// contract (find_op_for, the implicit table) is out of this core's
// scope per spec.md §6.
func printTerm(t term.Term) string {
	if c, ok := t.(interface{ Name() term.Name }); ok {
		return c.Name().String()
	}

	if idx, ok := term.BoundIndex(t); ok {
		return fmt.Sprintf("#%d", idx)
	}

	if a, ok := t.(interface {
		Fn() term.Term
		Args() []term.Term
	}); ok {
		s := printTerm(a.Fn())
		for _, arg := range a.Args() {
			s += " " + printTerm(arg)
		}

		return s
	}

	if b, ok := t.(interface {
		BinderName() string
		Domain() term.Term
		Body() term.Term
	}); ok {
		return fmt.Sprintf("λ%s. %s", b.BinderName(), printTerm(b.Body()))
	}

	return fmt.Sprintf("%v", t)
}
