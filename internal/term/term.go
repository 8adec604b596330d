// Package term is the minimal host term model the rest of the core
// assumes (spec.md §3): an immutable term ADT with precomputed hash and
// free-variable-range caching, Name, Level, and Context utilities, and
// the de Bruijn shift/substitution primitives the matcher, elaborator,
// and rewriter build on.
package term

import "fmt"

// Kind tags the ten term variants of spec.md §3.
type Kind uint8

const (
	KindBound Kind = iota
	KindConst
	KindSort
	KindLit
	KindApp
	KindLambda
	KindPi
	KindLet
	KindHEq
	KindMeta
)

func (k Kind) String() string {
	names := [...]string{"Bound", "Const", "Sort", "Lit", "App", "Lambda", "Pi", "Let", "HEq", "Meta"}
	if int(k) < len(names) {
		return names[k]
	}

	return "Unknown"
}

// MetaID identifies a metavariable; see internal/metavar for the arena
// that allocates and resolves them.
type MetaID string

// Term is the immutable term ADT. Every implementer is constructed only
// through the New* smart constructors in this file, which is what lets
// Hash and HasFreeVarIn rely on cached, precomputed values.
type Term interface {
	Kind() Kind
	Hash() uint64
	// HasFreeVarIn reports whether a de Bruijn index in [lo, lo+n) occurs
	// free (i.e. unbound within this term).
	HasFreeVarIn(lo, n int) bool
	// Compare gives Term a total order (kind tag, then fields, then
	// subterms), grounded on original_source's expr_lt test. Equal is
	// Compare == 0, which is how Index and the matchers test structural
	// equality.
	Compare(other Term) int
	// freeVarRange is 1 + the largest de Bruijn index occurring free at
	// this term's own root, 0 if none occur. It is the cached bound
	// spec.md §3 calls out, used by HasFreeVarIn as a fast rejection.
	freeVarRange() int
	isTerm()
}

type base struct {
	h     uint64
	fvr   int
	kind  Kind
}

func (b base) Kind() Kind         { return b.kind }
func (b base) Hash() uint64       { return b.h }
func (b base) freeVarRange() int  { return b.fvr }
func (base) isTerm()              {}

func combine(h uint64, parts ...uint64) uint64 {
	for _, p := range parts {
		h = 31*h ^ p
	}

	return h
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}

	return b
}

// --- Bound ---

type boundTerm struct {
	base
	index int
}

func NewBound(index int) Term {
	return &boundTerm{
		base:  base{kind: KindBound, h: combine(2166136261, uint64(index)+1), fvr: index + 1},
		index: index,
	}
}

func (t *boundTerm) Index() int { return t.index }

func (t *boundTerm) HasFreeVarIn(lo, n int) bool {
	return t.index >= lo && t.index < lo+n
}

func (t *boundTerm) Compare(o Term) int {
	ot, ok := o.(*boundTerm)
	if !ok {
		return compareKind(t, o)
	}

	return compareInt(t.index, ot.index)
}

// --- Const ---

type constTerm struct {
	base
	name Name
}

func NewConst(name Name) Term {
	return &constTerm{base: base{kind: KindConst, h: combine(2166136261, name.hash())}, name: name}
}

func (t *constTerm) Name() Name { return t.name }

func (t *constTerm) HasFreeVarIn(int, int) bool { return false }

func (t *constTerm) Compare(o Term) int {
	ot, ok := o.(*constTerm)
	if !ok {
		return compareKind(t, o)
	}

	return t.name.Compare(ot.name)
}

// --- Sort ---

type sortTerm struct {
	base
	level Level
}

func NewSort(level Level) Term {
	return &sortTerm{base: base{kind: KindSort, h: combine(2166136261, level.hash())}, level: level}
}

func (t *sortTerm) Level() Level { return t.level }

func (t *sortTerm) HasFreeVarIn(int, int) bool { return false }

func (t *sortTerm) Compare(o Term) int {
	ot, ok := o.(*sortTerm)
	if !ok {
		return compareKind(t, o)
	}

	return compareUint64(t.level.hash(), ot.level.hash())
}

// --- Lit ---

type litTerm struct {
	base
	value interface{}
}

func NewLit(value interface{}) Term {
	return &litTerm{base: base{kind: KindLit, h: combine(2166136261, hashAny(value))}, value: value}
}

func (t *litTerm) Value() interface{} { return t.value }

func (t *litTerm) HasFreeVarIn(int, int) bool { return false }

func (t *litTerm) Compare(o Term) int {
	ot, ok := o.(*litTerm)
	if !ok {
		return compareKind(t, o)
	}

	as, bs := fmt.Sprint(t.value), fmt.Sprint(ot.value)

	switch {
	case as < bs:
		return -1
	case as > bs:
		return 1
	default:
		return 0
	}
}

func hashAny(v interface{}) uint64 {
	s := fmt.Sprint(v)

	var h uint64 = 1469598103934665603
	for i := 0; i < len(s); i++ {
		h = 31*h ^ uint64(s[i])
	}

	return h
}

// --- App ---

type appTerm struct {
	base
	fn   Term
	args []Term
}

// NewApp builds an application of fn to a nonempty, ordered argument
// list, per spec.md §3.
func NewApp(fn Term, args ...Term) Term {
	if len(args) == 0 {
		return fn
	}

	h := combine(2166136261, fn.Hash())
	fvr := fn.freeVarRange()

	for _, a := range args {
		h = combine(h, a.Hash())
		fvr = maxInt(fvr, a.freeVarRange())
	}

	out := make([]Term, len(args))
	copy(out, args)

	return &appTerm{base: base{kind: KindApp, h: h, fvr: fvr}, fn: fn, args: out}
}

func (t *appTerm) Fn() Term     { return t.fn }
func (t *appTerm) Args() []Term { return t.args }

func (t *appTerm) HasFreeVarIn(lo, n int) bool {
	if t.fvr <= lo {
		return false
	}

	if t.fn.HasFreeVarIn(lo, n) {
		return true
	}

	for _, a := range t.args {
		if a.HasFreeVarIn(lo, n) {
			return true
		}
	}

	return false
}

func (t *appTerm) Compare(o Term) int {
	ot, ok := o.(*appTerm)
	if !ok {
		return compareKind(t, o)
	}

	if c := t.fn.Compare(ot.fn); c != 0 {
		return c
	}

	if c := compareInt(len(t.args), len(ot.args)); c != 0 {
		return c
	}

	for i := range t.args {
		if c := t.args[i].Compare(ot.args[i]); c != 0 {
			return c
		}
	}

	return 0
}

// --- Lambda / Pi ---

type binderTerm struct {
	base
	name   string
	domain Term
	body   Term
}

func NewLambda(name string, domain, body Term) Term {
	return &binderTerm{
		base:   base{kind: KindLambda, h: combine(2166136261, hashAny(name), domain.Hash(), body.Hash()), fvr: maxInt(domain.freeVarRange(), dropOne(body.freeVarRange()))},
		name:   name, domain: domain, body: body,
	}
}

func NewPi(name string, domain, body Term) Term {
	return &binderTerm{
		base:   base{kind: KindPi, h: combine(2166136263, hashAny(name), domain.Hash(), body.Hash()), fvr: maxInt(domain.freeVarRange(), dropOne(body.freeVarRange()))},
		name:   name, domain: domain, body: body,
	}
}

func dropOne(fvr int) int {
	if fvr == 0 {
		return 0
	}

	return fvr - 1
}

func (t *binderTerm) BinderName() string { return t.name }
func (t *binderTerm) Domain() Term       { return t.domain }
func (t *binderTerm) Body() Term         { return t.body }

func (t *binderTerm) HasFreeVarIn(lo, n int) bool {
	if t.fvr <= lo {
		return false
	}

	if t.domain.HasFreeVarIn(lo, n) {
		return true
	}

	return t.body.HasFreeVarIn(lo+1, n)
}

func (t *binderTerm) Compare(o Term) int {
	ot, ok := o.(*binderTerm)
	if !ok || t.kind != ot.kind {
		return compareKind(t, o)
	}

	if c := t.domain.Compare(ot.domain); c != 0 {
		return c
	}

	return t.body.Compare(ot.body)
}

// --- Let ---

type letTerm struct {
	base
	name  string
	typ   Term
	value Term
	body  Term
}

func NewLet(name string, typ, value, body Term) Term {
	fvr := maxInt(typ.freeVarRange(), value.freeVarRange())
	fvr = maxInt(fvr, dropOne(body.freeVarRange()))

	return &letTerm{
		base:  base{kind: KindLet, h: combine(2166136261, hashAny(name), typ.Hash(), value.Hash(), body.Hash()), fvr: fvr},
		name:  name, typ: typ, value: value, body: body,
	}
}

func (t *letTerm) Name() string  { return t.name }
func (t *letTerm) Type() Term    { return t.typ }
func (t *letTerm) Value() Term   { return t.value }
func (t *letTerm) Body() Term    { return t.body }

func (t *letTerm) HasFreeVarIn(lo, n int) bool {
	if t.fvr <= lo {
		return false
	}

	if t.typ.HasFreeVarIn(lo, n) || t.value.HasFreeVarIn(lo, n) {
		return true
	}

	return t.body.HasFreeVarIn(lo+1, n)
}

func (t *letTerm) Compare(o Term) int {
	ot, ok := o.(*letTerm)
	if !ok {
		return compareKind(t, o)
	}

	if c := t.typ.Compare(ot.typ); c != 0 {
		return c
	}

	if c := t.value.Compare(ot.value); c != 0 {
		return c
	}

	return t.body.Compare(ot.body)
}

// --- HEq ---

type heqTerm struct {
	base
	lhsType, lhs, rhsType, rhs Term
}

// NewHEq builds a heterogeneous equality between lhs : lhsType and
// rhs : rhsType.
func NewHEq(lhsType, lhs, rhsType, rhs Term) Term {
	fvr := maxInt(maxInt(lhsType.freeVarRange(), lhs.freeVarRange()), maxInt(rhsType.freeVarRange(), rhs.freeVarRange()))

	return &heqTerm{
		base:    base{kind: KindHEq, h: combine(2166136261, lhsType.Hash(), lhs.Hash(), rhsType.Hash(), rhs.Hash()), fvr: fvr},
		lhsType: lhsType, lhs: lhs, rhsType: rhsType, rhs: rhs,
	}
}

func (t *heqTerm) LhsType() Term { return t.lhsType }
func (t *heqTerm) Lhs() Term     { return t.lhs }
func (t *heqTerm) RhsType() Term { return t.rhsType }
func (t *heqTerm) Rhs() Term     { return t.rhs }

func (t *heqTerm) HasFreeVarIn(lo, n int) bool {
	if t.fvr <= lo {
		return false
	}

	return t.lhsType.HasFreeVarIn(lo, n) || t.lhs.HasFreeVarIn(lo, n) ||
		t.rhsType.HasFreeVarIn(lo, n) || t.rhs.HasFreeVarIn(lo, n)
}

func (t *heqTerm) Compare(o Term) int {
	ot, ok := o.(*heqTerm)
	if !ok {
		return compareKind(t, o)
	}

	for _, pair := range [][2]Term{{t.lhsType, ot.lhsType}, {t.lhs, ot.lhs}, {t.rhsType, ot.rhsType}, {t.rhs, ot.rhs}} {
		if c := pair[0].Compare(pair[1]); c != 0 {
			return c
		}
	}

	return 0
}

// IsEqHeq reports whether t is a heterogeneous-equality term (spec.md
// §4.1 step 6 treats Eq and HEq the same way; this core models both
// uniformly as HEq, matching the host contract that hands both to us as
// the same shape).
func IsEqHeq(t Term) bool { _, ok := t.(*heqTerm); return ok }

// --- Meta ---

type metaTerm struct {
	base
	id    MetaID
	subst []Term
}

// NewMeta builds the term-level occurrence of a metavariable with its
// delayed explicit substitution (spec.md §3's "context of delayed
// substitutions").
func NewMeta(id MetaID, subst []Term) Term {
	h := combine(2166136261, hashAny(string(id)))
	fvr := 0

	for _, s := range subst {
		h = combine(h, s.Hash())
		fvr = maxInt(fvr, s.freeVarRange())
	}

	out := make([]Term, len(subst))
	copy(out, subst)

	return &metaTerm{base: base{kind: KindMeta, h: h, fvr: fvr}, id: id, subst: out}
}

func (t *metaTerm) ID() MetaID    { return t.id }
func (t *metaTerm) Subst() []Term { return t.subst }

func (t *metaTerm) HasFreeVarIn(lo, n int) bool {
	if t.fvr <= lo {
		return false
	}

	for _, s := range t.subst {
		if s.HasFreeVarIn(lo, n) {
			return true
		}
	}

	return false
}

func (t *metaTerm) Compare(o Term) int {
	ot, ok := o.(*metaTerm)
	if !ok {
		return compareKind(t, o)
	}

	if t.id != ot.id {
		if t.id < ot.id {
			return -1
		}

		return 1
	}

	if c := compareInt(len(t.subst), len(ot.subst)); c != 0 {
		return c
	}

	for i := range t.subst {
		if c := t.subst[i].Compare(ot.subst[i]); c != 0 {
			return c
		}
	}

	return 0
}

// --- shared helpers ---

func compareKind(t, o Term) int { return compareInt(int(t.Kind()), int(o.Kind())) }

func compareInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func compareUint64(a, b uint64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// BoundIndex extracts the de Bruijn index from a Bound term.
func BoundIndex(t Term) (int, bool) {
	b, ok := t.(*boundTerm)
	if !ok {
		return 0, false
	}

	return b.index, true
}
