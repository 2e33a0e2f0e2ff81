// Copyright 2024 Francis Michael Stephens. All rights reserved.  Use of this
// source code is governed by an MIT license that can be found in the LICENSE
// file.

// Package labelintern interns the opaque string labels that objects carry,
// so that repeating the same label across many objects (a very common
// pattern in test-built object graphs) shares one string instead of
// allocating a fresh one per object.
//
// This is a single-threaded simplification of the teacher's
// pkg/intern.InternerWithBytesId: that interner shards its table across
// goroutines behind a mutex per shard because it serves a concurrent offheap
// store. The VM in this module is explicitly single-threaded and
// stop-the-world, so the sharding and locking would be
// dead weight here — the hashing and collision-handling strategy is kept,
// the concurrency control is dropped.
package labelintern

import xxhash "github.com/cespare/xxhash/v2"

// Interner deduplicates string labels by content hash.
type Interner struct {
	table map[uint64]string

	interned      int
	hashCollision int
}

// New returns an empty Interner.
func New() *Interner {
	return &Interner{
		table: make(map[uint64]string),
	}
}

// Intern returns a canonical string equal to label. If label has been
// interned before, the previously interned string is returned. On the rare hash collision between two distinct
// labels, the second label is returned uninterned rather than corrupting the
// table — exactly the fallback the teacher's interner takes.
func (in *Interner) Intern(label string) string {
	if label == "" {
		return ""
	}

	hash := xxhash.Sum64String(label)
	if existing, ok := in.table[hash]; ok {
		if existing == label {
			return existing
		}
		in.hashCollision++
		return label
	}

	in.table[hash] = label
	in.interned++
	return label
}

// Stats describes how much deduplication an Interner has done.
type Stats struct {
	Interned      int
	HashCollision int
}

// Stats returns the current interning statistics.
func (in *Interner) Stats() Stats {
	return Stats{Interned: in.interned, HashCollision: in.hashCollision}
}
