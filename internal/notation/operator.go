// Package notation implements the parent-linked frontend tables of
// spec.md §3/§4.2: operator descriptors for prefix/infix/postfix/mixfix
// notation, overloaded denotations, implicit-argument annotations, and
// coercions, used for both Pratt-style parsing (nud/led lookups) and
// pretty printing (find_op_for).
package notation

import "github.com/orizon-lang/elaborate/internal/term"

// Fixity is one of the eight shapes spec.md §3 allows an operator to
// take.
type Fixity int

const (
	Prefix Fixity = iota
	Postfix
	Infixl
	Infixr
	Mixfixl
	Mixfixr
	Mixfixc
	Mixfixo
)

func (f Fixity) String() string {
	names := [...]string{"Prefix", "Postfix", "Infixl", "Infixr", "Mixfixl", "Mixfixr", "Mixfixc", "Mixfixo"}
	if int(f) < len(names) {
		return names[f]
	}

	return "Unknown"
}

// IsMixfix reports whether f takes two or more token parts.
func (f Fixity) IsMixfix() bool {
	return f == Mixfixl || f == Mixfixr || f == Mixfixc || f == Mixfixo
}

// Operator is one notation entry, grounded on
// original_source/src/frontend/operator_info.cpp's operator_info: identity
// is fixity + precedence + token parts; denotations and internal names are
// not part of identity (spec.md §3). Operator is treated as an immutable
// value — "adding" a denotation or internal name returns a new Operator,
// a copy-on-write discipline for shared descriptors (spec.md §9).
type Operator struct {
	Fixity      Fixity
	Precedence  uint
	Tokens      []string
	denotations []term.Term
	names       []term.Name
}

// NewOperator builds a descriptor with no denotations yet. Tokens must
// have exactly one part for Prefix/Postfix/Infixl/Infixr and at least two
// for the mixfix fixities.
func NewOperator(fixity Fixity, precedence uint, tokens ...string) Operator {
	toks := make([]string, len(tokens))
	copy(toks, tokens)

	return Operator{Fixity: fixity, Precedence: precedence, Tokens: toks}
}

// HeadToken is the leading token, used as the nud/led table key.
func (o Operator) HeadToken() string {
	if len(o.Tokens) == 0 {
		return ""
	}

	return o.Tokens[0]
}

// Denotations returns the terms this notation currently stands for.
func (o Operator) Denotations() []term.Term {
	out := make([]term.Term, len(o.denotations))
	copy(out, o.denotations)

	return out
}

// InternalNames returns the internal names registered for display.
func (o Operator) InternalNames() []term.Name {
	out := make([]term.Name, len(o.names))
	copy(out, o.names)

	return out
}

// IsOverloaded reports whether more than one internal name has been
// recorded.
func (o Operator) IsOverloaded() bool { return len(o.names) > 1 }

// WithDenotation returns a copy of o with d appended to its denotations.
func (o Operator) WithDenotation(d term.Term) Operator {
	out := o
	out.denotations = append(append([]term.Term{}, o.denotations...), d)

	return out
}

// WithInternalName returns a copy of o with n appended to its internal
// names.
func (o Operator) WithInternalName(n term.Name) Operator {
	out := o
	out.names = append(append([]term.Name{}, o.names...), n)

	return out
}

// Equal reports descriptor identity per spec.md §3: fixity, precedence
// and token parts match. Denotations and names are deliberately ignored.
func (o Operator) Equal(other Operator) bool {
	if o.Fixity != other.Fixity || o.Precedence != other.Precedence || len(o.Tokens) != len(other.Tokens) {
		return false
	}

	for i := range o.Tokens {
		if o.Tokens[i] != other.Tokens[i] {
			return false
		}
	}

	return true
}

// IsSafeASCII reports whether every token part is plain ASCII, used by
// FindOpFor's unicode filter.
func (o Operator) IsSafeASCII() bool {
	for _, tok := range o.Tokens {
		for _, r := range tok {
			if r > 0x7f {
				return false
			}
		}
	}

	return true
}

// ImplicitPattern is the implicit/explicit flag sequence spec.md §4.2
// derives from a denotation's leading Pi-arguments, used by
// compatibility checks.
type ImplicitPattern []bool

// Compatible reports whether two implicit patterns are compatible per
// spec.md §4.2: after dropping the leading implicit prefix of each and
// the trailing explicit suffix of each, the remaining sequences must be
// identical.
func Compatible(a, b ImplicitPattern) bool {
	a = trimLeadingImplicit(a)
	b = trimLeadingImplicit(b)
	a = trimTrailingExplicit(a)
	b = trimTrailingExplicit(b)

	if len(a) != len(b) {
		return false
	}

	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}

	return true
}

func trimLeadingImplicit(p ImplicitPattern) ImplicitPattern {
	i := 0
	for i < len(p) && p[i] {
		i++
	}

	return p[i:]
}

func trimTrailingExplicit(p ImplicitPattern) ImplicitPattern {
	i := len(p)
	for i > 0 && !p[i-1] {
		i--
	}

	return p[:i]
}
