// Package freelist implements an ordered map of free heap runs, keyed by
// start offset, with coalescing of adjacent and overlapping runs.
//
// The data structure generalises the teacher's single-size reusable-slot
// list (a singly linked list of same-sized free slots, see
// offheap/internal/pointerstore.Store.rootFree) to runs of arbitrary length,
// which the heap's allocator needs in order to satisfy variable-sized
// requests and to split/merge blocks.
package freelist

import "sort"

// Entry is one free run: [Start, Start+Length).
type Entry struct {
	Start  uint64
	Length uint64
}

// FreeList is an ordered, non-overlapping, non-abutting set of free runs.
// The zero value is an empty FreeList ready to use.
type FreeList struct {
	entries []Entry
}

// New returns a FreeList containing a single free run [start, start+length).
func New(start, length uint64) *FreeList {
	f := &FreeList{}
	if length > 0 {
		f.entries = append(f.entries, Entry{Start: start, Length: length})
	}
	return f
}

// Insert adds a free run starting at start with the given length. If an
// entry already exists at start, its length is replaced with the larger of
// the two lengths. The list is coalesced afterwards.
func (f *FreeList) Insert(start, length uint64) {
	if length == 0 {
		return
	}

	idx := f.indexOf(start)
	if idx >= 0 {
		if length > f.entries[idx].Length {
			f.entries[idx].Length = length
		}
	} else {
		pos := f.insertionPoint(start)
		f.entries = append(f.entries, Entry{})
		copy(f.entries[pos+1:], f.entries[pos:])
		f.entries[pos] = Entry{Start: start, Length: length}
	}

	f.coalesce()
}

// Remove deletes the entry with the given start, if one exists. It reports
// whether an entry was removed. Removing a key never requires coalescing.
func (f *FreeList) Remove(start uint64) bool {
	idx := f.indexOf(start)
	if idx < 0 {
		return false
	}
	f.entries = append(f.entries[:idx], f.entries[idx+1:]...)
	return true
}

// Len returns the number of disjoint free runs.
func (f *FreeList) Len() int {
	return len(f.entries)
}

// TotalFree returns the sum of the lengths of every free run.
func (f *FreeList) TotalFree() uint64 {
	var total uint64
	for _, e := range f.entries {
		total += e.Length
	}
	return total
}

// Entries returns a copy of the entries, sorted ascending by Start.
func (f *FreeList) Entries() []Entry {
	out := make([]Entry, len(f.entries))
	copy(out, f.entries)
	return out
}

// All returns a range-over-func iterator over the entries, in ascending
// order of Start. It is lazy in the sense that stopping iteration early
// (returning false from yield) skips the remaining entries.
func (f *FreeList) All() func(yield func(start, length uint64) bool) {
	return func(yield func(start, length uint64) bool) {
		for _, e := range f.entries {
			if !yield(e.Start, e.Length) {
				return
			}
		}
	}
}

// FindFirstFit returns the first entry (in ascending Start order) able to
// satisfy a request of `need` bytes once the entry's start has been rounded
// up by alignFn. It returns the entry and true on success.
func (f *FreeList) FindFirstFit(need uint64, alignFn func(uint64) uint64) (Entry, bool) {
	for _, e := range f.entries {
		alignedStart := alignFn(e.Start)
		end := alignedStart + need
		if end <= e.Start+e.Length {
			return e, true
		}
	}
	return Entry{}, false
}

func (f *FreeList) indexOf(start uint64) int {
	pos := f.insertionPoint(start)
	if pos < len(f.entries) && f.entries[pos].Start == start {
		return pos
	}
	return -1
}

func (f *FreeList) insertionPoint(start uint64) int {
	return sort.Search(len(f.entries), func(i int) bool {
		return f.entries[i].Start >= start
	})
}

// coalesce merges abutting and overlapping runs. It repeats full passes
// until a pass performs no merges, which avoids the off-by-one trap of
// comparing a stale "current end" after a merge has already changed it —
// the end is always re-derived from the just-merged entry before the next
// comparison.
func (f *FreeList) coalesce() {
	for {
		mergedAny := false
		i := 0
		for i+1 < len(f.entries) {
			cur := f.entries[i]
			next := f.entries[i+1]
			end := cur.Start + cur.Length
			if next.Start <= end {
				newEnd := next.Start + next.Length
				if newEnd < end {
					newEnd = end
				}
				f.entries[i].Length = newEnd - cur.Start
				f.entries = append(f.entries[:i+1], f.entries[i+2:]...)
				mergedAny = true
				continue
			}
			i++
		}
		if !mergedAny {
			return
		}
	}
}
