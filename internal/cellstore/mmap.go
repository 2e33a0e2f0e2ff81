// Copyright 2024 Francis Michael Stephens. All rights reserved.  Use of this
// source code is governed by an MIT license that can be found in the LICENSE
// file.

// Package cellstore backs a Heap's cell-status array with an anonymously
// mmap'd region, so the simulated heap's bytes genuinely live outside the Go
// runtime's own garbage-collected heap — mirroring the reason
// offheap/internal/pointerstore allocates its slabs via mmap rather than
// make([]byte, ...).
package cellstore

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// New mmaps an anonymous, zero-filled region of exactly numCells bytes, one
// byte per cell status. It panics if the mapping cannot be made, matching
// the teacher's own stance that a failed mmap during setup is unrecoverable
// (offheap/internal/pointerstore/mmap.go).
func New(numCells uint64) []byte {
	if numCells == 0 {
		// unix.Mmap refuses a zero-length mapping; a zero-cell heap is a
		// legal (if useless) configuration, so fall back to a regular
		// slice rather than special-casing every caller.
		return []byte{}
	}

	data, err := unix.Mmap(-1, 0, int(numCells), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		panic(fmt.Errorf("cannot allocate %d heap cells via mmap: %w", numCells, err))
	}
	return data
}

// Destroy unmaps a region previously returned by New. It is a no-op for a
// zero-length slice returned when numCells was 0.
func Destroy(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	return unix.Munmap(data)
}
