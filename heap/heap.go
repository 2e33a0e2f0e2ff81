// Package heap implements the simulator's linear address space: a cell
// array tracking per-byte allocation status, a FreeList of reclaimable runs,
// a table of live objects keyed by address, and the root set the collector
// traces from.
//
// The shape is the teacher's objectstore.Store generalised from "one slab of
// uniformly-sized objects" to "one flat address space of variably-sized,
// explicitly addressed objects" — Alloc/Free/Get become AllocateObject,
// FreeObject, and the live-object table; the free-list-of-reused-slots
// becomes internal/freelist's interval map because object sizes vary here.
package heap

import (
	"errors"
	"fmt"
	"sort"

	"github.com/fmstephe/flib/fmath"

	"github.com/fmstephe/gcsim/internal/cellstore"
	"github.com/fmstephe/gcsim/internal/freelist"
	"github.com/fmstephe/gcsim/internal/labelintern"
	"github.com/fmstephe/gcsim/object"
)

// Sentinel errors, matching the taxonomy in the simulator's error design.
var (
	ErrOutOfMemory      = errors.New("heap: out of memory")
	ErrFailedToFree     = errors.New("heap: address is not live")
	ErrFailedToAllocate = errors.New("heap: invariant violation marking allocated cells")
	ErrCannotMoveObject = errors.New("heap: destination conflicts with a live span")
	ErrObjectNotFound   = errors.New("heap: object not found")
	ErrSegmentFault     = errors.New("heap: segmentation fault")
	ErrInvalidAlignment = errors.New("heap: alignment must be zero or a power of two")
)

// CellStatus is the per-byte allocation status of a cell in the heap's
// address space.
type CellStatus byte

const (
	CellFree CellStatus = iota
	CellAllocated
	// CellMarked and CellUsed are reserved data-model values carried over
	// from the distilled spec's Cell type. No operation in this package
	// currently produces them — the heap only ever needs to distinguish
	// free space from allocated space — but they remain available for a
	// caller instrumenting a visualisation of collection in progress.
	CellMarked
	CellUsed
)

// Heap is a linear address space of cells, managed by a first-fit allocator
// over a FreeList, with a table of live objects and a root set.
type Heap struct {
	cells     []byte
	alignment uint64
	free      *freelist.FreeList
	live      map[object.Address]*object.Object
	roots     map[object.Address]struct{}
	labels    *labelintern.Interner
}

// New constructs a Heap of size cells, all initially Free, with a single
// FreeList entry spanning the whole space. alignment must be 0 (meaning
// "unaligned") or a power of two.
func New(size uint64, alignment uint64) (*Heap, error) {
	if alignment != 0 && uint64(fmath.NxtPowerOfTwo(int64(alignment))) != alignment {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidAlignment, alignment)
	}

	return &Heap{
		cells:     cellstore.New(size),
		alignment: alignment,
		free:      freelist.New(0, size),
		live:      make(map[object.Address]*object.Object),
		roots:     make(map[object.Address]struct{}),
		labels:    labelintern.New(),
	}, nil
}

// Destroy releases the heap's backing storage. After Destroy the Heap must
// not be used again.
func (h *Heap) Destroy() error {
	err := cellstore.Destroy(h.cells)
	h.cells = nil
	return err
}

// Size returns the total number of cells in the heap.
func (h *Heap) Size() uint64 {
	return uint64(len(h.cells))
}

// Alignment returns the heap's configured alignment (0 means unaligned).
func (h *Heap) Alignment() uint64 {
	return h.alignment
}

// AlignedPosition returns the smallest q >= p with q a multiple of the
// heap's alignment, or p unchanged when alignment is 0.
func (h *Heap) AlignedPosition(p uint64) uint64 {
	if h.alignment == 0 {
		return p
	}
	return (p + h.alignment - 1) &^ (h.alignment - 1)
}

// CalculateFreeMemory returns the sum of every free run's length.
func (h *Heap) CalculateFreeMemory() uint64 {
	return h.free.TotalFree()
}

// FreeListEntries exposes the current free runs, for tests and diagnostics.
func (h *Heap) FreeListEntries() []freelist.Entry {
	return h.free.Entries()
}

// reserve finds and carves out a span of rawSize bytes starting at an
// aligned address, using first-fit over the FreeList. It implements the
// Allocator policy from the spec: given a fitting entry (bs, bl), the
// aligned start as = AlignedPosition(bs) and be = as + size; the original
// entry is removed and any pre-gap [bs, as) and post-gap [be, bs+bl) are
// reinserted, preserving the FreeList's disjoint-non-abutting invariant.
//
// Only the address is rounded to the alignment — the object's size is
// recorded exactly as requested. This resolves the spec's own flagged
// ambiguity between aligning the request size and aligning the returned
// address (see spec.md §9 and scenario S3) in favour of the address.
func (h *Heap) reserve(rawSize uint64) (start uint64, size uint64, err error) {
	entry, ok := h.free.FindFirstFit(rawSize, h.AlignedPosition)
	if !ok {
		return 0, 0, fmt.Errorf("%w: requested %d bytes", ErrOutOfMemory, rawSize)
	}

	alignedStart := h.AlignedPosition(entry.Start)
	blockEnd := entry.Start + entry.Length

	h.free.Remove(entry.Start)
	if preGap := alignedStart - entry.Start; preGap > 0 {
		h.free.Insert(entry.Start, preGap)
	}
	if postStart := alignedStart + rawSize; postStart < blockEnd {
		h.free.Insert(postStart, blockEnd-postStart)
	}

	return alignedStart, rawSize, nil
}

// AllocateObject finds space for o using first-fit allocation, records its
// header size and address, marks its cells Allocated, and adds it to the
// live-object table. o.Label is interned.
func (h *Heap) AllocateObject(o *object.Object) (object.Address, error) {
	start, size, err := h.reserve(o.RequiredSize())
	if err != nil {
		return 0, err
	}

	addr := object.Address(start)
	o.Address = addr
	o.Header.Size = size
	o.Header.Color = object.White
	o.Label = h.labels.Intern(o.Label)

	if err := h.markCells(addr, size, CellAllocated); err != nil {
		return 0, err
	}

	h.live[addr] = o
	return addr, nil
}

// FreeObject releases addr's span back to the FreeList, coalesces, and
// removes addr from the live-object table and the root set. It fails with
// ErrFailedToFree if addr is not live.
func (h *Heap) FreeObject(addr object.Address) error {
	o, ok := h.live[addr]
	if !ok {
		return fmt.Errorf("%w: address %d", ErrFailedToFree, addr)
	}

	delete(h.live, addr)
	delete(h.roots, addr)
	h.free.Insert(uint64(addr), o.Header.Size)

	if err := h.markCells(addr, o.Header.Size, CellFree); err != nil {
		return err
	}
	return nil
}

// MoveObject relocates the live object at from to the address to: it clones
// the record, frees the old span (returning it to the FreeList, preserving
// root membership), and re-registers the clone at to. It fails with
// ErrSegmentFault if from is not live, and ErrCannotMoveObject if to
// overlaps another live object's span.
func (h *Heap) MoveObject(from, to object.Address) error {
	o, ok := h.live[from]
	if !ok {
		return fmt.Errorf("move %d -> %d: %w", from, to, ErrSegmentFault)
	}

	size := o.Header.Size
	if h.overlapsLiveObject(to, size, from) {
		return fmt.Errorf("move %d -> %d: %w", from, to, ErrCannotMoveObject)
	}

	clone := *o
	clone.Fields = append([]object.Field(nil), o.Fields...)
	clone.Address = to

	wasRoot := h.isRoot(from)

	delete(h.live, from)
	delete(h.roots, from)
	h.free.Insert(uint64(from), size)
	if err := h.markCells(from, size, CellFree); err != nil {
		return err
	}

	h.live[to] = &clone
	if wasRoot {
		h.roots[to] = struct{}{}
	}
	if err := h.markCells(to, size, CellAllocated); err != nil {
		return err
	}

	return nil
}

func (h *Heap) overlapsLiveObject(addr object.Address, size uint64, except object.Address) bool {
	start := uint64(addr)
	end := start + size
	for a, o := range h.live {
		if a == except {
			continue
		}
		oStart := uint64(a)
		oEnd := oStart + o.Header.Size
		if start < oEnd && oStart < end {
			return true
		}
	}
	return false
}

// Lookup locates the live object covering byteAddress and reads the field at
// the corresponding offset. It only succeeds when that field holds a
// non-null reference, in which case it returns the referenced address. It
// fails with ErrSegmentFault when the field is a null reference, a value
// field, or the offset falls outside the object's fields; it fails with
// ErrObjectNotFound when no live object covers byteAddress.
func (h *Heap) Lookup(byteAddress uint64) (object.Address, error) {
	o := h.findCovering(byteAddress)
	if o == nil {
		return 0, fmt.Errorf("lookup %d: %w", byteAddress, ErrObjectNotFound)
	}

	offset := byteAddress - uint64(o.Address)
	fieldIdx := offset / object.WordSize
	if fieldIdx >= uint64(len(o.Fields)) {
		return 0, fmt.Errorf("lookup %d: %w", byteAddress, ErrSegmentFault)
	}

	f := o.Fields[fieldIdx]
	if f.Kind != object.FieldRef || f.Ref.IsNull() {
		return 0, fmt.Errorf("lookup %d: %w", byteAddress, ErrSegmentFault)
	}
	return f.Ref, nil
}

func (h *Heap) findCovering(byteAddress uint64) *object.Object {
	for _, o := range h.live {
		start := uint64(o.Address)
		if byteAddress >= start && byteAddress < start+o.Header.Size {
			return o
		}
	}
	return nil
}

// Refresh resets every cell to Free and re-marks the span of every live
// object Allocated. It is used after bulk edits (for example, after a
// collection cycle rewrites the live table) to bring the cell array back
// into agreement with the live-object table.
func (h *Heap) Refresh() error {
	for i := range h.cells {
		h.cells[i] = byte(CellFree)
	}
	for addr, o := range h.live {
		if err := h.markCells(addr, o.Header.Size, CellAllocated); err != nil {
			return err
		}
	}
	return nil
}

func (h *Heap) markCells(addr object.Address, size uint64, status CellStatus) error {
	start := uint64(addr)
	end := start + size
	if end > uint64(len(h.cells)) || start > end {
		return fmt.Errorf("%w: span [%d,%d) exceeds heap of %d cells", ErrFailedToAllocate, start, end, len(h.cells))
	}
	for i := start; i < end; i++ {
		h.cells[i] = byte(status)
	}
	return nil
}

// Get returns the live object at addr, if any.
func (h *Heap) Get(addr object.Address) (*object.Object, bool) {
	o, ok := h.live[addr]
	return o, ok
}

// LiveObjects returns every live address, in ascending order.
func (h *Heap) LiveObjects() []object.Address {
	addrs := make([]object.Address, 0, len(h.live))
	for a := range h.live {
		addrs = append(addrs, a)
	}
	sort.Slice(addrs, func(i, j int) bool { return addrs[i] < addrs[j] })
	return addrs
}

// LiveCount returns the number of live objects.
func (h *Heap) LiveCount() int {
	return len(h.live)
}

// AddRoot marks addr as a root. It fails with ErrObjectNotFound if addr is
// not live.
func (h *Heap) AddRoot(addr object.Address) error {
	if _, ok := h.live[addr]; !ok {
		return fmt.Errorf("add root %d: %w", addr, ErrObjectNotFound)
	}
	h.roots[addr] = struct{}{}
	return nil
}

// RemoveRoot unmarks addr as a root. It is a no-op if addr was not a root.
func (h *Heap) RemoveRoot(addr object.Address) {
	delete(h.roots, addr)
}

func (h *Heap) isRoot(addr object.Address) bool {
	_, ok := h.roots[addr]
	return ok
}

// Roots returns every root address, in ascending order.
func (h *Heap) Roots() []object.Address {
	addrs := make([]object.Address, 0, len(h.roots))
	for a := range h.roots {
		addrs = append(addrs, a)
	}
	sort.Slice(addrs, func(i, j int) bool { return addrs[i] < addrs[j] })
	return addrs
}

// NextObject returns the live address strictly greater than addr, in
// ascending order, if one exists.
func (h *Heap) NextObject(addr object.Address) (object.Address, bool) {
	addrs := h.LiveObjects()
	i := sort.Search(len(addrs), func(i int) bool { return addrs[i] > addr })
	if i >= len(addrs) {
		return 0, false
	}
	return addrs[i], true
}

// PrevObject returns the live address strictly less than addr, in
// descending order, if one exists.
func (h *Heap) PrevObject(addr object.Address) (object.Address, bool) {
	addrs := h.LiveObjects()
	i := sort.Search(len(addrs), func(i int) bool { return addrs[i] >= addr })
	if i == 0 {
		return 0, false
	}
	return addrs[i-1], true
}

// LastObject returns the greatest live address, if any object is live.
func (h *Heap) LastObject() (object.Address, bool) {
	addrs := h.LiveObjects()
	if len(addrs) == 0 {
		return 0, false
	}
	return addrs[len(addrs)-1], true
}
