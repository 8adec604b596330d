package term

// LevelKind distinguishes the universe-level variants spec.md §3
// describes: a join-semilattice with a successor operator and named
// variables.
type LevelKind uint8

const (
	LevelZero LevelKind = iota
	LevelSucc
	LevelMax
	LevelParam
)

// Level is a universe level. Values are immutable; build them with Zero,
// Succ, Join and Param.
type Level struct {
	a, b *Level // Succ uses a only; Max uses a and b
	name Name   // Param only
	kind LevelKind
}

func Zero() Level { return Level{kind: LevelZero} }

func Succ(l Level) Level { return Level{kind: LevelSucc, a: &l} }

func Param(n Name) Level { return Level{kind: LevelParam, name: n} }

// Join computes the least upper bound of two levels, normalizing the
// trivial cases (Join(Zero, l) = l, Join(l, l) = l) so that repeated
// joins don't build an unbounded Max chain for the common case.
func Join(a, b Level) Level {
	if a.kind == LevelZero {
		return b
	}

	if b.kind == LevelZero {
		return a
	}

	if a.Equal(b) {
		return a
	}

	return Level{kind: LevelMax, a: &a, b: &b}
}

func (l Level) Kind() LevelKind { return l.kind }

// Of returns the operand of a Succ level; callers must check Kind first.
func (l Level) Of() Level { return *l.a }

// Operands returns the two operands of a Max level.
func (l Level) Operands() (Level, Level) { return *l.a, *l.b }

// Name returns the variable name of a Param level.
func (l Level) Name() Name { return l.name }

// Equal reports structural equality, flattening Max's operand order
// (Join(a,b) == Join(b,a)) since it is a semilattice join.
func (l Level) Equal(o Level) bool {
	if l.kind != o.kind {
		return false
	}

	switch l.kind {
	case LevelZero:
		return true
	case LevelSucc:
		return l.a.Equal(*o.a)
	case LevelMax:
		return (l.a.Equal(*o.a) && l.b.Equal(*o.b)) || (l.a.Equal(*o.b) && l.b.Equal(*o.a))
	case LevelParam:
		return l.name.Equal(o.name)
	default:
		return false
	}
}

func (l Level) hash() uint64 {
	switch l.kind {
	case LevelZero:
		return 17
	case LevelSucc:
		return 31*l.a.hash() ^ 7
	case LevelMax:
		return 31*l.a.hash() ^ 31*l.b.hash() ^ 13
	case LevelParam:
		return 31*l.name.hash() ^ 23
	default:
		return 0
	}
}

// UnifyLevels attempts to solve level variables against the join
// semilattice, per spec.md §4.4. It handles the decidable fragment:
// equal levels, a Param against any level, and Succ/Succ peeling. Any
// Max on either side is left for the caller to retry after its operands
// are individually solved (spec.md's agenda-based "first ready
// constraint" discipline applies here too).
func UnifyLevels(a, b Level, subst map[string]Level) (map[string]Level, bool) {
	a = resolveLevel(a, subst)
	b = resolveLevel(b, subst)

	if a.Equal(b) {
		return subst, true
	}

	if a.kind == LevelParam {
		subst[a.name.String()] = b
		return subst, true
	}

	if b.kind == LevelParam {
		subst[b.name.String()] = a
		return subst, true
	}

	if a.kind == LevelSucc && b.kind == LevelSucc {
		return UnifyLevels(*a.a, *b.a, subst)
	}

	return subst, false
}

func resolveLevel(l Level, subst map[string]Level) Level {
	for l.kind == LevelParam {
		if r, ok := subst[l.name.String()]; ok {
			l = r
			continue
		}

		break
	}

	return l
}
