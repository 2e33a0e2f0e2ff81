// Package object defines the headered records tracked by a Heap: typed
// fields, outgoing references, and the tri-color marking state used by the
// collector in package gc.
//
// Objects are modelled the way the teacher's objectstore.Reference models
// allocations — as a small value identifying a slot, never as a Go pointer
// into another object — because references here must be free to form
// cycles, which native Go pointers are also free to do but which a
// reference-counted or borrow-checked host language cannot express
// (see the teacher's pkg/store/objectstore doc comment on why References
// contain no pointers).
package object

import "math"

// WordSize is the size, in bytes, of every field slot. All fields — values
// and references alike — occupy one word.
const WordSize = 8

// HeaderOverhead is the fixed per-object bookkeeping cost, in bytes,
// contributed by the header itself (color, next-link, size) independent of
// the object's fields.
const HeaderOverhead = 8

// Address is an offset into a Heap's cell array. NullAddress is the
// distinguished "points at nothing" value used by Ref fields and by a
// header's optional next-link.
type Address uint64

// NullAddress marks the absence of a reference.
const NullAddress Address = math.MaxUint64

// IsNull reports whether a is the null address.
func (a Address) IsNull() bool {
	return a == NullAddress
}

// Color is the tri-color marking state of an object during a collection
// cycle. Outside of a cycle every live object is White.
type Color int

const (
	White Color = iota
	Gray
	Black
)

func (c Color) String() string {
	switch c {
	case White:
		return "White"
	case Gray:
		return "Gray"
	case Black:
		return "Black"
	default:
		return "Unknown"
	}
}

// Header is the bookkeeping record attached to every live object.
type Header struct {
	// Size is the object's total footprint in bytes, as recorded by the
	// heap at allocation time (exactly Object.RequiredSize(); the heap
	// aligns the object's address, not its size).
	Size uint64
	// Next is an optional intrusive link, carried for fidelity with the
	// reference model this simulator is distilled from. The heap's
	// FreeList does its own interval-based bookkeeping and does not rely
	// on this link; it exists for callers that want to thread objects
	// into their own structures.
	Next Address
	// Color is the current tri-color marking state.
	Color Color
}

// FieldKind distinguishes an inline value from a reference.
type FieldKind int

const (
	FieldValue FieldKind = iota
	FieldRef
)

// Field is one word-sized slot of an Object: either an inline primitive
// value, or a reference to another object (possibly NullAddress).
type Field struct {
	Kind  FieldKind
	Value int64
	Ref   Address
}

// NewValueField returns a Field holding an inline value.
func NewValueField(v int64) Field {
	return Field{Kind: FieldValue, Value: v}
}

// NewRefField returns a Field referencing addr.
func NewRefField(addr Address) Field {
	return Field{Kind: FieldRef, Ref: addr}
}

// NewNullField returns a Field holding a null reference.
func NewNullField() Field {
	return Field{Kind: FieldRef, Ref: NullAddress}
}

// Object is a single allocated record: a label, an optional immediate value,
// a header, an address (once placed in a Heap), and an ordered list of
// fields.
type Object struct {
	Label   string
	Value   *int64
	Header  Header
	Address Address
	Fields  []Field
}

// New constructs an Object that has not yet been placed in a Heap. Its
// Address is zero and its Header is White with a null Next and a zero Size
// until a Heap allocates it.
func New(label string, value *int64, fields []Field) *Object {
	return &Object{
		Label:  label,
		Value:  value,
		Fields: append([]Field(nil), fields...),
		Header: Header{Next: NullAddress, Color: White},
	}
}

// RequiredSize returns the number of bytes this object needs: one word per
// field plus the fixed header overhead. The Heap records this value
// unchanged in Header.Size at allocation time.
func (o *Object) RequiredSize() uint64 {
	return uint64(len(o.Fields))*WordSize + HeaderOverhead
}

// References returns the addresses of every outgoing Ref field that is not
// null. The result always satisfies the spec's invariant that the cached
// reference set is a superset of the fields' reference targets — here it is
// exactly that set, recomputed from the fields rather than cached, so it can
// never go stale.
func (o *Object) References() []Address {
	refs := make([]Address, 0, len(o.Fields))
	for _, f := range o.Fields {
		if f.Kind == FieldRef && !f.Ref.IsNull() {
			refs = append(refs, f.Ref)
		}
	}
	return refs
}
