package notation

import (
	"fmt"
	"log/slog"

	"github.com/hashicorp/go-set/v3"

	"github.com/samber/lo"

	coreerrors "github.com/orizon-lang/elaborate/internal/errors"
	"github.com/orizon-lang/elaborate/internal/diagnostic"
	"github.com/orizon-lang/elaborate/internal/extid"
	"github.com/orizon-lang/elaborate/internal/term"
)

// Side picks which Pratt table register targets.
type Side int

const (
	Nud Side = iota
	Led
)

// ImplicitInfo is the value implicit_table stores per name: which
// leading Pi-arguments are implicit, and the name of the generated
// explicit-version definition.
type ImplicitInfo struct {
	Flags    []bool
	Explicit term.Name
}

// TypeOf resolves the type of a name for mark_implicit's arity check and
// add_coercion's arrow check. Host type checking is an external
// collaborator (spec.md §1); Environment only needs this thin query.
type TypeOf interface {
	// ArrowArity returns how many leading Pi-arguments n's type has.
	ArrowArity(n term.Name) (int, bool)
	// Kind reports whether n names a definition/postulate/builtin.
	Kind(n term.Name) (ObjectKind, bool)
	// TypeCheckArrow type-checks f and, if its type is a non-dependent
	// arrow A -> B, returns (A, B, true).
	TypeCheckArrow(f term.Term) (from, to term.Term, ok bool)
	// Unfold performs one step of constant unfolding, used by the
	// "quick" coercion-key normalization of spec.md §4.2.
	Unfold(t term.Term) (term.Term, bool)
}

type ObjectKind int

const (
	ObjectOther ObjectKind = iota
	ObjectDefinition
	ObjectPostulate
	ObjectBuiltin
)

type coercionKey struct{ from, to term.Term }

// Environment is the parent-linked frontend of spec.md §4.2. The zero
// value has no tables or sink and is not usable; build one with NewRoot
// or NewChild.
type Environment struct {
	parent *Environment
	sink   diagnostic.Sink
	host   TypeOf

	nud      map[string]Operator
	led      map[string]Operator
	otherLBP map[string]uint

	exprToOperator *term.Index[[]Operator]

	implicitTable map[string]ImplicitInfo
	explicitNames *set.Set[string]

	coercionMap    map[coercionKey]term.Term
	typeCoercions  *term.Index[[]toCoercion]
	coercionSet    *term.Index[struct{}]
	coercionCache  *term.Index[term.Term]

	aliases    map[string]term.Term
	invAliases map[string][]term.Name

	extensions *extid.Store

	childCount int

	logger *slog.Logger
}

// WithLogger sets the structural-step logger e reports to (operator-
// facing, distinct from the user-facing diagnostic Sink). Nil or unset
// falls back to slog.Default().
func (e *Environment) WithLogger(l *slog.Logger) *Environment {
	e.logger = l
	return e
}

func (e *Environment) log() *slog.Logger {
	if e.logger != nil {
		return e.logger
	}

	return slog.Default()
}

type toCoercion struct {
	to term.Term
	fn term.Term
}

// NewRoot creates a root environment (no parent) reporting to sink, with
// host used for the TypeOf queries mark_implicit/add_coercion need.
func NewRoot(sink diagnostic.Sink, host TypeOf) *Environment {
	if sink == nil {
		sink = diagnostic.Discard
	}

	return &Environment{
		sink: sink, host: host,
		nud: map[string]Operator{}, led: map[string]Operator{}, otherLBP: map[string]uint{},
		exprToOperator: term.NewIndex[[]Operator](),
		implicitTable:  map[string]ImplicitInfo{},
		explicitNames:  set.New[string](0),
		coercionMap:    map[coercionKey]term.Term{},
		typeCoercions:  term.NewIndex[[]toCoercion](),
		coercionSet:    term.NewIndex[struct{}](),
		coercionCache:  term.NewIndex[term.Term](),
		aliases:        map[string]term.Term{},
		invAliases:     map[string][]term.Name{},
	}
}

// NewChild opens a new frontend level under parent. Per spec.md §4.2,
// this freezes parent: any further direct mutation of parent fails with
// ReadOnlyFrontend.
func NewChild(parent *Environment) *Environment {
	parent.childCount++

	return &Environment{
		parent: parent, sink: parent.sink, host: parent.host, logger: parent.logger,
		nud: map[string]Operator{}, led: map[string]Operator{}, otherLBP: map[string]uint{},
		exprToOperator: term.NewIndex[[]Operator](),
		implicitTable:  map[string]ImplicitInfo{},
		explicitNames:  set.New[string](0),
		coercionMap:    map[coercionKey]term.Term{},
		typeCoercions:  term.NewIndex[[]toCoercion](),
		coercionSet:    term.NewIndex[struct{}](),
		coercionCache:  term.NewIndex[term.Term](),
		aliases:        map[string]term.Term{},
		invAliases:     map[string][]term.Name{},
	}
}

// HasChildren reports whether any NewChild has been opened on e, which
// makes e read-only per spec.md §4.2/§4.3's frozen-frontend invariant.
func (e *Environment) HasChildren() bool { return e.childCount > 0 }

func (e *Environment) requireMutable(op string) error {
	if e.HasChildren() {
		return coreerrors.ReadOnlyFrontend(op)
	}

	return nil
}

// --- lookups, child-first then parent ---

func (e *Environment) FindNud(tok string) (Operator, bool) {
	if op, ok := e.nud[tok]; ok {
		return op, true
	}

	if e.parent != nil {
		return e.parent.FindNud(tok)
	}

	return Operator{}, false
}

func (e *Environment) FindLed(tok string) (Operator, bool) {
	if op, ok := e.led[tok]; ok {
		return op, true
	}

	if e.parent != nil {
		return e.parent.FindLed(tok)
	}

	return Operator{}, false
}

func (e *Environment) otherLBPLookup(tok string) (uint, bool) {
	if p, ok := e.otherLBP[tok]; ok {
		return p, true
	}

	if e.parent != nil {
		return e.parent.otherLBPLookup(tok)
	}

	return 0, false
}

// LBP is the binding power ("left binding power") of tok: the
// precedence of its led entry if present, else its other_lbp entry.
func (e *Environment) LBP(tok string) (uint, bool) {
	if op, ok := e.FindLed(tok); ok {
		return op.Precedence, true
	}

	return e.otherLBPLookup(tok)
}

func (e *Environment) findOp(tok string, side Side) (Operator, bool) {
	if side == Led {
		return e.FindLed(tok)
	}

	return e.FindNud(tok)
}

func (e *Environment) definedHere(tok string, side Side) bool {
	if side == Led {
		_, ok := e.led[tok]
		return ok
	}

	_, ok := e.nud[tok]

	return ok
}

// FindOpFor returns the first descriptor whose tokens are all ASCII (or
// any if unicodeAllowed) among those registered for denotation d. An
// empty list recorded at a child level shadows the parent (spec.md
// §4.2's "empty sentinel").
func (e *Environment) FindOpFor(d term.Term, unicodeAllowed bool) (Operator, bool) {
	if ops, ok := e.exprToOperator.Get(d); ok {
		for _, op := range ops {
			if unicodeAllowed || op.IsSafeASCII() {
				return op, true
			}
		}

		return Operator{}, false
	}

	if e.parent != nil {
		return e.parent.FindOpFor(d, unicodeAllowed)
	}

	return Operator{}, false
}

// --- register ---

// Register inserts or merges a notation entry for denotation d on the
// given side, implementing the merge policy of spec.md §4.2.
func (e *Environment) Register(op Operator, d term.Term, side Side) error {
	if err := e.requireMutable("register notation"); err != nil {
		return err
	}

	e.checkTokenPrecedences(op)

	existing, found := e.findOp(op.HeadToken(), side)

	switch {
	case !found:
		e.registerNew(op.WithDenotation(d), d, side)
	case existing.Equal(op):
		if e.compatibleWithAll(existing, d) {
			if e.definedHere(op.HeadToken(), side) {
				merged := existing.WithDenotation(d)
				e.insertOp(merged, side)
				e.addExprEntry(d, merged)
			} else {
				copied := existing.WithDenotation(d)
				e.registerNew(copied, d, side)
			}
		} else {
			e.sink.Report(diagnostic.Diagnostic{
				Category: diagnostic.CategoryIncompatibleOverload,
				Level:    diagnostic.LevelWarning,
				Message: fmt.Sprintf("denotations for notation %q conflict on implicit-argument usage; replacing",
					op.HeadToken()),
			})
			e.removeBindings(existing)
			e.registerNew(op.WithDenotation(d), d, side)
		}
	default:
		e.sink.Report(diagnostic.Diagnostic{
			Category: diagnostic.CategoryRedefinition,
			Level:    diagnostic.LevelWarning,
			Message:  fmt.Sprintf("notation %q has been redefined", op.HeadToken()),
		})
		e.log().Info("notation: redefined", "token", op.HeadToken(), "precedence", op.Precedence)
		e.removeBindings(existing)
		e.registerNew(op.WithDenotation(d), d, side)
	}

	return nil
}

func (e *Environment) checkTokenPrecedences(op Operator) {
	for i, tok := range op.Tokens {
		if i == 0 {
			continue
		}

		if old, ok := e.LBP(tok); ok && old != op.Precedence {
			e.sink.Report(diagnostic.Diagnostic{
				Category: diagnostic.CategoryPrecedenceChange,
				Level:    diagnostic.LevelWarning,
				Message:  fmt.Sprintf("the precedence of %q changed from %d to %d", tok, old, op.Precedence),
			})
		}
	}
}

func (e *Environment) registerNew(op Operator, d term.Term, side Side) {
	e.insertOp(op, side)
	e.addExprEntry(d, op)

	for i, tok := range op.Tokens {
		if i == 0 {
			continue
		}

		e.otherLBP[tok] = op.Precedence
	}
}

func (e *Environment) insertOp(op Operator, side Side) {
	if side == Led {
		e.led[op.HeadToken()] = op
	} else {
		e.nud[op.HeadToken()] = op
	}
}

func (e *Environment) addExprEntry(d term.Term, op Operator) {
	existing, _ := e.exprToOperator.Get(d)
	e.exprToOperator.Set(d, append(existing, op))
}

func (e *Environment) removeBindings(op Operator) {
	for _, d := range op.Denotations() {
		if e.parent != nil {
			if _, ok := e.parent.FindOpFor(d, true); ok {
				e.exprToOperator.Set(d, nil) // hide the parent's entry
				continue
			}
		}

		e.exprToOperator.Delete(d)
	}
}

// compatibleWithAll checks d against every denotation already on op
// (spec.md §4.2's compatible_denotations).
func (e *Environment) compatibleWithAll(op Operator, d term.Term) bool {
	dp := e.implicitPatternOf(d)

	return lo.EveryBy(op.Denotations(), func(prev term.Term) bool {
		return Compatible(e.implicitPatternOf(prev), dp)
	})
}

func (e *Environment) implicitPatternOf(d term.Term) ImplicitPattern {
	c, ok := d.(interface{ Name() term.Name })
	if !ok {
		return nil
	}

	flags := e.ImplicitFlags(c.Name())

	return ImplicitPattern(flags)
}

// ImplicitFlags returns the implicit-argument flags recorded for n,
// walking to the parent if absent locally.
func (e *Environment) ImplicitFlags(n term.Name) []bool {
	if info, ok := e.implicitTable[n.String()]; ok {
		return info.Flags
	}

	if e.parent != nil {
		return e.parent.ImplicitFlags(n)
	}

	return nil
}

// HasImplicitArguments reports whether n has implicit-argument
// information recorded anywhere in the chain.
func (e *Environment) HasImplicitArguments(n term.Name) bool {
	if _, ok := e.implicitTable[n.String()]; ok {
		return true
	}

	if e.parent != nil {
		return e.parent.HasImplicitArguments(n)
	}

	return false
}

// ExplicitVersion returns the generated explicit-version name for n.
func (e *Environment) ExplicitVersion(n term.Name) (term.Name, bool) {
	if info, ok := e.implicitTable[n.String()]; ok {
		return info.Explicit, true
	}

	if e.parent != nil {
		return e.parent.ExplicitVersion(n)
	}

	return term.Name{}, false
}

// IsExplicit reports whether n is a generated explicit-version name.
func (e *Environment) IsExplicit(n term.Name) bool {
	if e.explicitNames.Contains(n.String()) {
		return true
	}

	if e.parent != nil {
		return e.parent.IsExplicit(n)
	}

	return false
}

// mkExplicitName is mk_explicit_name from original_source's frontend.cpp:
// prefix the last segment with "@", or suffix numerals with "explicit".
func mkExplicitName(n term.Name) (term.Name, error) {
	if n.IsAnonymous() {
		return term.Name{}, coreerrors.AnonymousExplicitName()
	}

	if n.IsNumeral() {
		return n.Prefix().Extend(fmt.Sprintf("%s.explicit", n.Last().String())), nil
	}

	return n.Prefix().Extend("@" + n.Last().String()), nil
}

// MarkImplicit records which of n's leading arguments are implicit
// (spec.md §4.2's mark_implicit_arguments).
func (e *Environment) MarkImplicit(n term.Name, flags []bool) error {
	if err := e.requireMutable("mark implicit arguments"); err != nil {
		return err
	}

	kind, ok := e.host.Kind(n)
	if !ok || (kind != ObjectDefinition && kind != ObjectPostulate && kind != ObjectBuiltin) {
		return coreerrors.WrongObjectKind(n.String())
	}

	arity, _ := e.host.ArrowArity(n)
	if len(flags) > arity {
		return coreerrors.New(coreerrors.CategoryIllFormed, "TOO_MANY_IMPLICIT_FLAGS",
			fmt.Sprintf("object has only %d arguments, but trying to mark %d", arity, len(flags)), nil)
	}

	trimmed := append([]bool{}, flags...)
	for len(trimmed) > 0 && !trimmed[len(trimmed)-1] {
		trimmed = trimmed[:len(trimmed)-1]
	}

	if len(trimmed) == 0 {
		return coreerrors.New(coreerrors.CategoryIllFormed, "ALL_EXPLICIT",
			fmt.Sprintf("failed to mark implicit arguments for '%s', all arguments are explicit", n), nil)
	}

	explicitName, err := mkExplicitName(n)
	if err != nil {
		return err
	}

	if e.HasImplicitArguments(n) {
		return coreerrors.New(coreerrors.CategoryIllFormed, "ALREADY_MARKED",
			fmt.Sprintf("the object '%s' already has implicit argument information associated with it", n), nil)
	}

	if e.explicitNames.Contains(explicitName.String()) {
		return coreerrors.New(coreerrors.CategoryIllFormed, "EXPLICIT_NAME_COLLISION",
			fmt.Sprintf("the frontend already has an object named '%s'", explicitName), nil)
	}

	e.implicitTable[n.String()] = ImplicitInfo{Flags: trimmed, Explicit: explicitName}
	e.explicitNames.Insert(explicitName.String())

	return nil
}

// --- coercions ---

// quickNormalize is coercion_type_normalization: repeatedly unfold a
// constant head by its definition while the result is itself a constant.
func (e *Environment) quickNormalize(t term.Term) term.Term {
	if cached, ok := e.coercionCache.Get(t); ok {
		return cached
	}

	orig := t

	for e.host != nil {
		next, ok := e.host.Unfold(t)
		if !ok {
			break
		}

		t = next
	}

	e.coercionCache.Set(orig, t)

	return t
}

// AddCoercion registers f : A -> B as a coercion (spec.md §4.2's
// add_coercion).
func (e *Environment) AddCoercion(f term.Term) error {
	if err := e.requireMutable("add coercion"); err != nil {
		return err
	}

	from, to, ok := e.host.TypeCheckArrow(f)
	if !ok {
		return coreerrors.NonArrowCoercion("a coercion must have an arrow type (a non-dependent functional type)")
	}

	from = e.quickNormalize(from)
	to = e.quickNormalize(to)

	if term.Equal(from, to) {
		return coreerrors.NonArrowCoercion("'from' and 'to' types are the same")
	}

	if _, ok := e.GetCoercion(from, to); ok {
		return coreerrors.NonArrowCoercion("a coercion for the given types already exists")
	}

	e.coercionMap[coercionKey{from, to}] = f
	e.coercionSet.Set(f, struct{}{})

	existing, _ := e.typeCoercions.Get(from)
	e.typeCoercions.Set(from, append(existing, toCoercion{to: to, fn: f}))

	return nil
}

// GetCoercion looks up a coercion for fromType -> toType, honoring
// parent linkage and normalizing both queries identically to AddCoercion.
func (e *Environment) GetCoercion(fromType, toType term.Term) (term.Term, bool) {
	return e.getCoercionCore(e.quickNormalize(fromType), e.quickNormalize(toType))
}

func (e *Environment) getCoercionCore(from, to term.Term) (term.Term, bool) {
	if f, ok := e.coercionMap[coercionKey{from, to}]; ok {
		return f, true
	}

	if e.parent != nil {
		return e.parent.getCoercionCore(from, to)
	}

	return nil, false
}

// GetCoercions returns every registered (to, fn) pair for fromType.
func (e *Environment) GetCoercions(fromType term.Term) []toCoercionPublic {
	return e.getCoercionsCore(e.quickNormalize(fromType))
}

type toCoercionPublic struct {
	To term.Term
	Fn term.Term
}

func (e *Environment) getCoercionsCore(from term.Term) []toCoercionPublic {
	var out []toCoercionPublic

	if cs, ok := e.typeCoercions.Get(from); ok {
		for _, c := range cs {
			out = append(out, toCoercionPublic{To: c.to, Fn: c.fn})
		}
	}

	if e.parent != nil {
		out = append(out, e.parent.getCoercionsCore(from)...)
	}

	return out
}

// IsCoercion reports whether f was registered via AddCoercion anywhere
// in the chain.
func (e *Environment) IsCoercion(f term.Term) bool {
	if _, ok := e.coercionSet.Get(f); ok {
		return true
	}

	return e.parent != nil && e.parent.IsCoercion(f)
}

// --- aliases ---

// AddAlias records n as standing for e2, failing if n is already
// aliased anywhere in the chain.
func (e *Environment) AddAlias(n term.Name, e2 term.Term) error {
	if err := e.requireMutable("add alias"); err != nil {
		return err
	}

	if _, ok := e.GetAlias(n); ok {
		return coreerrors.New(coreerrors.CategoryIllFormed, "ALIAS_REDEFINED",
			fmt.Sprintf("alias '%s' was already defined", n), nil)
	}

	e.aliases[n.String()] = e2
	e.invAliases[e.denotationKey(e2)] = append(e.GetAliased(e2), n)

	return nil
}

func (e *Environment) denotationKey(t term.Term) string {
	return fmt.Sprintf("%d", t.Hash())
}

func (e *Environment) GetAlias(n term.Name) (term.Term, bool) {
	if t, ok := e.aliases[n.String()]; ok {
		return t, true
	}

	if e.parent != nil {
		return e.parent.GetAlias(n)
	}

	return nil, false
}

func (e *Environment) GetAliased(t term.Term) []term.Name {
	names := append([]term.Name{}, e.invAliases[e.denotationKey(t)]...)
	if e.parent != nil {
		names = append(names, e.parent.GetAliased(t)...)
	}

	return names
}

// Extension looks up the value registered under id, preferring a local
// binding over the parent's, matching spec.md §8's "parent monotonicity"
// rule the rest of Environment's query methods follow. Grounded on
// frontend.cpp's to_ext(ro_environment const &), which resolves a
// lean_extension through env->get_extension using the id
// lean_extension_initializer registered once at static-init time.
func (e *Environment) Extension(id extid.ID) (interface{}, bool) {
	if e.extensions != nil {
		if v, ok := e.extensions.Get(id); ok {
			return v, true
		}
	}

	if e.parent != nil {
		return e.parent.Extension(id)
	}

	return nil, false
}

// SetExtension binds id to v in this frontend level. It fails with
// ReadOnlyFrontend once e has children, the same freeze-on-first-child
// rule every other mutator on Environment obeys.
func (e *Environment) SetExtension(id extid.ID, v interface{}) error {
	if err := e.requireMutable("set extension " + string(id)); err != nil {
		return err
	}

	if e.extensions == nil {
		e.extensions = extid.NewStore()
	}

	e.extensions.Set(id, v)

	return nil
}
