package freelist

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// S1 — free-list merge of adjacent runs.
func Test_Coalesce_AdjacentRuns(t *testing.T) {
	f := &FreeList{}
	f.Insert(1, 3)
	f.Insert(4, 7)
	f.Insert(8, 10)

	require.Equal(t, 1, f.Len())
	assert.Equal(t, []Entry{{Start: 1, Length: 17}}, f.Entries())
}

// S2 — free-list overlap.
func Test_Coalesce_OverlappingRuns(t *testing.T) {
	f := &FreeList{}
	f.Insert(1, 5)
	f.Insert(3, 7)

	require.Equal(t, 1, f.Len())
	assert.Equal(t, []Entry{{Start: 1, Length: 9}}, f.Entries())
}

func Test_Insert_DisjointRunsStaySeparate(t *testing.T) {
	f := &FreeList{}
	f.Insert(0, 2)
	f.Insert(10, 2)

	assert.Equal(t, []Entry{{Start: 0, Length: 2}, {Start: 10, Length: 2}}, f.Entries())
}

func Test_Insert_ExistingStartTakesMaxLength(t *testing.T) {
	f := &FreeList{}
	f.Insert(0, 2)
	f.Insert(0, 5)

	assert.Equal(t, []Entry{{Start: 0, Length: 5}}, f.Entries())

	f.Insert(0, 1)
	assert.Equal(t, []Entry{{Start: 0, Length: 5}}, f.Entries(), "a shorter re-insert must not shrink the run")
}

func Test_Remove_DeletesExactKey(t *testing.T) {
	f := &FreeList{}
	f.Insert(0, 2)
	f.Insert(10, 2)

	require.True(t, f.Remove(0))
	assert.Equal(t, []Entry{{Start: 10, Length: 2}}, f.Entries())

	require.False(t, f.Remove(0), "removing an absent key reports false")
}

func Test_FindFirstFit_PicksFirstEntryThatFits(t *testing.T) {
	f := &FreeList{}
	f.Insert(2, 2)
	f.Insert(8, 2)

	identity := func(p uint64) uint64 { return p }

	entry, ok := f.FindFirstFit(2, identity)
	require.True(t, ok)
	assert.Equal(t, Entry{Start: 2, Length: 2}, entry)
}

func Test_FindFirstFit_OutOfMemory(t *testing.T) {
	f := &FreeList{}
	f.Insert(0, 2)

	identity := func(p uint64) uint64 { return p }

	_, ok := f.FindFirstFit(3, identity)
	assert.False(t, ok)
	assert.Equal(t, []Entry{{Start: 0, Length: 2}}, f.Entries(), "a failed fit must not mutate the list")
}

// Testable property 1 (disjoint and strictly non-touching entries) is
// covered by FuzzFreeList in fuzz_test.go, which drives Insert/Remove from a
// fuzzutil-decoded byte stream rather than a bare math/rand loop.

func Test_All_StopsEarly(t *testing.T) {
	f := &FreeList{}
	f.Insert(0, 1)
	f.Insert(10, 1)
	f.Insert(20, 1)

	var seen []uint64
	for start := range f.All() {
		seen = append(seen, start)
		if len(seen) == 1 {
			break
		}
	}

	assert.Equal(t, []uint64{0}, seen)
}
