package term

import "strconv"

// SegmentKind distinguishes the two kinds of Name segment spec.md §3
// allows: a string component or a numeral component.
type SegmentKind uint8

const (
	SegString SegmentKind = iota
	SegInt
)

// Segment is one component of a Name.
type Segment struct {
	Str  string
	Int  int
	Kind SegmentKind
}

func StringSegment(s string) Segment { return Segment{Kind: SegString, Str: s} }
func IntSegment(i int) Segment       { return Segment{Kind: SegInt, Int: i} }

func (s Segment) String() string {
	if s.Kind == SegInt {
		return strconv.Itoa(s.Int)
	}

	return s.Str
}

func (s Segment) compare(o Segment) int {
	if s.Kind != o.Kind {
		if s.Kind == SegString {
			return -1
		}

		return 1
	}

	if s.Kind == SegInt {
		switch {
		case s.Int < o.Int:
			return -1
		case s.Int > o.Int:
			return 1
		default:
			return 0
		}
	}

	switch {
	case s.Str < o.Str:
		return -1
	case s.Str > o.Str:
		return 1
	default:
		return 0
	}
}

// Name is a nonempty sequence of segments extending an anonymous root,
// as described in spec.md §3.
type Name struct {
	segs []Segment
}

// Anonymous returns the anonymous root name.
func Anonymous() Name { return Name{} }

// NewName builds a name directly from its segments, root first.
func NewName(segs ...Segment) Name {
	out := make([]Segment, len(segs))
	copy(out, segs)

	return Name{segs: out}
}

// Str is a convenience constructor for a single-segment string name.
func Str(s string) Name { return Name{segs: []Segment{StringSegment(s)}} }

// IsAnonymous reports whether n is the root.
func (n Name) IsAnonymous() bool { return len(n.segs) == 0 }

// IsAtomic reports whether n has exactly one segment (its prefix is
// anonymous).
func (n Name) IsAtomic() bool { return len(n.segs) == 1 }

// IsNumeral reports whether the last segment is an integer.
func (n Name) IsNumeral() bool {
	if len(n.segs) == 0 {
		return false
	}

	return n.segs[len(n.segs)-1].Kind == SegInt
}

// Prefix returns n with its last segment dropped.
func (n Name) Prefix() Name {
	if len(n.segs) == 0 {
		return n
	}

	return Name{segs: n.segs[:len(n.segs)-1]}
}

// Last returns the final segment; callers must check IsAnonymous first.
func (n Name) Last() Segment { return n.segs[len(n.segs)-1] }

// Segments returns n's segments root first, for callers (serialization,
// printing) that need to walk them one at a time rather than through
// Prefix/Last.
func (n Name) Segments() []Segment {
	out := make([]Segment, len(n.segs))
	copy(out, n.segs)

	return out
}

// Extend appends a string segment.
func (n Name) Extend(s string) Name {
	return Name{segs: append(append([]Segment{}, n.segs...), StringSegment(s))}
}

// ExtendInt appends an integer segment.
func (n Name) ExtendInt(i int) Name {
	return Name{segs: append(append([]Segment{}, n.segs...), IntSegment(i))}
}

// String renders the name dot-separated, e.g. "list.cons".
func (n Name) String() string {
	if len(n.segs) == 0 {
		return "[anonymous]"
	}

	s := n.segs[0].String()
	for _, seg := range n.segs[1:] {
		s += "." + seg.String()
	}

	return s
}

// Equal reports structural equality.
func (n Name) Equal(o Name) bool { return n.Compare(o) == 0 }

// Compare gives Name a total order: segment-by-segment from the root,
// and where one name is a prefix of the other, the shorter sorts first.
func (n Name) Compare(o Name) int {
	for i := 0; i < len(n.segs) && i < len(o.segs); i++ {
		if c := n.segs[i].compare(o.segs[i]); c != 0 {
			return c
		}
	}

	switch {
	case len(n.segs) < len(o.segs):
		return -1
	case len(n.segs) > len(o.segs):
		return 1
	default:
		return 0
	}
}

func (n Name) hash() uint64 {
	var h uint64 = 1469598103934665603 // fixed nonzero seed

	for _, seg := range n.segs {
		h = 31 * h
		if seg.Kind == SegInt {
			h ^= uint64(seg.Int) + 1
		} else {
			for i := 0; i < len(seg.Str); i++ {
				h = 31*h ^ uint64(seg.Str[i])
			}
		}
	}

	return h
}
