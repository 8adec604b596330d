// Package serialize implements the exact tagged-record wire shape of
// spec.md §6: each notation-environment declaration (implicit-argument,
// notation, coercion, alias) is written as a fixed three-byte tag
// followed by its fields, with integers as variable-length unsigned,
// strings as NUL-terminated bytes, lists as a length prefix followed by
// elements, and doubles written textually. Grounded on
// original_source/src/util/serializer.h's serializer_core/
// deserializer_core primitives and write_list/read_list templates, and
// on a binary-writer style (encoding/binary plus bufio.Writer) this
// package follows instead of serializer.h's std::ostream operators,
// which have no direct Go analogue.
package serialize

import (
	"bufio"
	"encoding/binary"
	"io"
	"strconv"

	"github.com/Masterminds/semver/v3"
	"github.com/orizon-lang/elaborate/internal/errors"
	"github.com/orizon-lang/elaborate/internal/notation"
	"github.com/orizon-lang/elaborate/internal/term"
)

// FormatVersion is stamped at the front of every encoded stream so a
// Reader can refuse a future, incompatible wire format instead of
// misparsing it. This is the one piece of forward compatibility
// spec.md §6's original shape lacks.
var FormatVersion = semver.MustParse("1.0.0")

// Tag identifies which declaration kind follows. Values are the literal
// three-byte ASCII tags spec.md §6 names ("Imp" for implicit-argument
// declarations); "Not", "Coe" and "Ali" are this core's analogous tags
// for notation, coercion and alias declarations.
type Tag [3]byte

var (
	TagImplicit = Tag{'I', 'm', 'p'}
	TagNotation = Tag{'N', 'o', 't'}
	TagCoercion = Tag{'C', 'o', 'e'}
	TagAlias    = Tag{'A', 'l', 'i'}
)

func (t Tag) String() string { return string(t[:]) }

// Writer is the encoding half of the wire format, writing tagged
// declaration records to an underlying io.Writer.
type Writer struct {
	w   *bufio.Writer
	err error
}

// NewWriter wraps w and writes FormatVersion as the stream's first
// bytes. Every subsequent Write* call no-ops once a prior call has
// failed, mirroring serializer_core's fail-fast style under a single
// ostream.
func NewWriter(w io.Writer) (*Writer, error) {
	sw := &Writer{w: bufio.NewWriter(w)}
	sw.writeString(FormatVersion.String())

	if sw.err != nil {
		return nil, sw.err
	}

	return sw, nil
}

// Flush pushes any buffered bytes to the underlying writer. Callers
// must call Flush after their last Write* call; Writer has no Close, and
// closing the underlying writer does not flush the buffer.
func (w *Writer) Flush() error {
	if w.err != nil {
		return w.err
	}

	return w.w.Flush()
}

func (w *Writer) fail(err error) {
	if w.err == nil {
		w.err = err
	}
}

func (w *Writer) writeString(s string) {
	if w.err != nil {
		return
	}

	if _, err := w.w.WriteString(s); err != nil {
		w.fail(err)
		return
	}

	if err := w.w.WriteByte(0); err != nil {
		w.fail(err)
	}
}

func (w *Writer) writeUnsigned(u uint32) {
	if w.err != nil {
		return
	}

	var buf [binary.MaxVarintLen32]byte

	n := binary.PutUvarint(buf[:], uint64(u))
	if _, err := w.w.Write(buf[:n]); err != nil {
		w.fail(err)
	}
}

func (w *Writer) writeInt(i int32) {
	// zigzag-encode so small negative numbers stay small on the wire.
	w.writeUnsigned(uint32((i << 1) ^ (i >> 31)))
}

func (w *Writer) writeBool(b bool) {
	if w.err != nil {
		return
	}

	v := byte(0)
	if b {
		v = 1
	}

	if err := w.w.WriteByte(v); err != nil {
		w.fail(err)
	}
}

func (w *Writer) writeDouble(f float64) {
	w.writeString(strconv.FormatFloat(f, 'g', -1, 64))
}

func (w *Writer) writeTag(t Tag) {
	if w.err != nil {
		return
	}

	if _, err := w.w.Write(t[:]); err != nil {
		w.fail(err)
	}
}

// writeList is write_list from serializer.h: a length prefix followed
// by each element written through writeElem.
func writeList[T any](w *Writer, items []T, writeElem func(*Writer, T)) {
	w.writeUnsigned(uint32(len(items)))

	for _, it := range items {
		writeElem(w, it)
	}
}

func (w *Writer) writeName(n term.Name) {
	writeList(w, n.Segments(), func(w *Writer, s term.Segment) {
		if s.Kind == term.SegInt {
			w.writeBool(true)
			w.writeInt(int32(s.Int))
		} else {
			w.writeBool(false)
			w.writeString(s.Str)
		}
	})
}

// ImplicitDecl is the "Imp" record of spec.md §6: an object name and
// its implicit-argument flags, one bool per declared argument position.
type ImplicitDecl struct {
	Name  term.Name
	Flags []bool
}

// WriteImplicit emits d as a tagged "Imp" record.
func (w *Writer) WriteImplicit(d ImplicitDecl) error {
	w.writeTag(TagImplicit)
	w.writeName(d.Name)
	writeList(w, d.Flags, func(w *Writer, b bool) { w.writeBool(b) })

	return w.err
}

// NotationDecl is the "Not" record: an operator descriptor's identity
// (fixity, precedence, token parts) plus the internal names it denotes.
// Denotation terms themselves are runtime values reconstructed by the
// host from InternalNames, not re-serialized here, matching how
// original_source's own notation persistence only round-trips
// declarations, never term bodies.
type NotationDecl struct {
	Fixity        notation.Fixity
	Precedence    uint
	Tokens        []string
	InternalNames []term.Name
}

// WriteNotation emits d as a tagged "Not" record.
func (w *Writer) WriteNotation(d NotationDecl) error {
	w.writeTag(TagNotation)
	w.writeUnsigned(uint32(d.Fixity))
	w.writeUnsigned(uint32(d.Precedence))
	writeList(w, d.Tokens, func(w *Writer, s string) { w.writeString(s) })
	writeList(w, d.InternalNames, func(w *Writer, n term.Name) { w.writeName(n) })

	return w.err
}

// CoercionDecl is the "Coe" record: the source type, target type and
// coercion function, each identified by name.
type CoercionDecl struct {
	From term.Name
	To   term.Name
	Fn   term.Name
}

// WriteCoercion emits d as a tagged "Coe" record.
func (w *Writer) WriteCoercion(d CoercionDecl) error {
	w.writeTag(TagCoercion)
	w.writeName(d.From)
	w.writeName(d.To)
	w.writeName(d.Fn)

	return w.err
}

// AliasDecl is the "Ali" record: an alternate name bound to a target.
type AliasDecl struct {
	Alias  term.Name
	Target term.Name
}

// WriteAlias emits d as a tagged "Ali" record.
func (w *Writer) WriteAlias(d AliasDecl) error {
	w.writeTag(TagAlias)
	w.writeName(d.Alias)
	w.writeName(d.Target)

	return w.err
}

// WriteDouble exposes the textual-double primitive directly, for a host
// that needs to interleave a bare numeric field between declarations
// (spec.md §6's "doubles as textual").
func (w *Writer) WriteDouble(f float64) error {
	w.writeDouble(f)
	return w.err
}

// Reader is the decoding half of the wire format.
type Reader struct {
	r       *bufio.Reader
	Version *semver.Version
}

// NewReader wraps r, reads the format-version stamp, and rejects a
// stream whose major version does not match this package's
// FormatVersion (a future, incompatible format should be refused
// rather than guessed at).
func NewReader(r io.Reader) (*Reader, error) {
	sr := &Reader{r: bufio.NewReader(r)}

	raw, err := sr.readString()
	if err != nil {
		return nil, err
	}

	v, err := semver.NewVersion(raw)
	if err != nil {
		return nil, errors.New(errors.CategoryIllFormed, "BAD_FORMAT_VERSION",
			"stream format-version stamp is not a valid semver", map[string]interface{}{"raw": raw})
	}

	if v.Major() != FormatVersion.Major() {
		return nil, errors.New(errors.CategoryIllFormed, "INCOMPATIBLE_FORMAT_VERSION",
			"stream was written by an incompatible wire-format version",
			map[string]interface{}{"stream": v.String(), "supported": FormatVersion.String()})
	}

	sr.Version = v

	return sr, nil
}

func (r *Reader) readString() (string, error) {
	var buf []byte

	for {
		b, err := r.r.ReadByte()
		if err != nil {
			return "", err
		}

		if b == 0 {
			return string(buf), nil
		}

		buf = append(buf, b)
	}
}

func (r *Reader) readUnsigned() (uint32, error) {
	u, err := binary.ReadUvarint(r.r)
	if err != nil {
		return 0, err
	}

	return uint32(u), nil
}

func (r *Reader) readInt() (int32, error) {
	u, err := r.readUnsigned()
	if err != nil {
		return 0, err
	}

	return int32(u>>1) ^ -int32(u&1), nil
}

func (r *Reader) readBool() (bool, error) {
	b, err := r.r.ReadByte()
	if err != nil {
		return false, err
	}

	return b != 0, nil
}

func (r *Reader) readDouble() (float64, error) {
	s, err := r.readString()
	if err != nil {
		return 0, err
	}

	return strconv.ParseFloat(s, 64)
}

// ReadTag reads the next record's three-byte tag without consuming the
// rest of the record, so a caller can dispatch to the matching
// ReadImplicit/ReadNotation/ReadCoercion/ReadAlias call.
func (r *Reader) ReadTag() (Tag, error) {
	var t Tag

	if _, err := io.ReadFull(r.r, t[:]); err != nil {
		return Tag{}, err
	}

	return t, nil
}

func readList[T any](r *Reader, readElem func(*Reader) (T, error)) ([]T, error) {
	n, err := r.readUnsigned()
	if err != nil {
		return nil, err
	}

	out := make([]T, 0, n)

	for i := uint32(0); i < n; i++ {
		v, err := readElem(r)
		if err != nil {
			return nil, err
		}

		out = append(out, v)
	}

	return out, nil
}

func (r *Reader) readName() (term.Name, error) {
	segs, err := readList(r, func(r *Reader) (term.Segment, error) {
		isInt, err := r.readBool()
		if err != nil {
			return term.Segment{}, err
		}

		if isInt {
			i, err := r.readInt()
			if err != nil {
				return term.Segment{}, err
			}

			return term.IntSegment(int(i)), nil
		}

		s, err := r.readString()
		if err != nil {
			return term.Segment{}, err
		}

		return term.StringSegment(s), nil
	})
	if err != nil {
		return term.Name{}, err
	}

	return term.NewName(segs...), nil
}

// ReadImplicit reads an "Imp" record's body. Callers must have already
// consumed the tag via ReadTag and confirmed it is TagImplicit.
func (r *Reader) ReadImplicit() (ImplicitDecl, error) {
	name, err := r.readName()
	if err != nil {
		return ImplicitDecl{}, err
	}

	flags, err := readList(r, func(r *Reader) (bool, error) { return r.readBool() })
	if err != nil {
		return ImplicitDecl{}, err
	}

	return ImplicitDecl{Name: name, Flags: flags}, nil
}

// ReadNotation reads a "Not" record's body.
func (r *Reader) ReadNotation() (NotationDecl, error) {
	fixity, err := r.readUnsigned()
	if err != nil {
		return NotationDecl{}, err
	}

	precedence, err := r.readUnsigned()
	if err != nil {
		return NotationDecl{}, err
	}

	tokens, err := readList(r, func(r *Reader) (string, error) { return r.readString() })
	if err != nil {
		return NotationDecl{}, err
	}

	names, err := readList(r, func(r *Reader) (term.Name, error) { return r.readName() })
	if err != nil {
		return NotationDecl{}, err
	}

	return NotationDecl{
		Fixity:        notation.Fixity(fixity),
		Precedence:    uint(precedence),
		Tokens:        tokens,
		InternalNames: names,
	}, nil
}

// ReadCoercion reads a "Coe" record's body.
func (r *Reader) ReadCoercion() (CoercionDecl, error) {
	from, err := r.readName()
	if err != nil {
		return CoercionDecl{}, err
	}

	to, err := r.readName()
	if err != nil {
		return CoercionDecl{}, err
	}

	fn, err := r.readName()
	if err != nil {
		return CoercionDecl{}, err
	}

	return CoercionDecl{From: from, To: to, Fn: fn}, nil
}

// ReadAlias reads an "Ali" record's body.
func (r *Reader) ReadAlias() (AliasDecl, error) {
	alias, err := r.readName()
	if err != nil {
		return AliasDecl{}, err
	}

	target, err := r.readName()
	if err != nil {
		return AliasDecl{}, err
	}

	return AliasDecl{Alias: alias, Target: target}, nil
}

// ReadDouble mirrors WriteDouble.
func (r *Reader) ReadDouble() (float64, error) { return r.readDouble() }
