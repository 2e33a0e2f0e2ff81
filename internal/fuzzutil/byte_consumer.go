// Copyright 2024 Francis Michael Stephens. All rights reserved.  Use of this
// source code is governed by an MIT license that can be found in the LICENSE
// file.

// Package fuzzutil turns a flat byte slice into a deterministic sequence of
// "steps" for property testing — the same hand-rolled approach the teacher
// uses in testpkg/fuzzutil and offheap/fuzz_test.go, generalised here with a
// Uint64 accessor so a consumer can script heap addresses and sizes as well
// as the small integers the original teacher code needed.
package fuzzutil

import "encoding/binary"

// ByteConsumer hands out typed values from a byte slice, in order, padding
// with zero bytes once the slice is exhausted so a consumer never needs to
// special-case running out of entropy.
type ByteConsumer struct {
	bytes []byte
}

// NewByteConsumer wraps bytes for consumption.
func NewByteConsumer(bytes []byte) *ByteConsumer {
	return &ByteConsumer{bytes: bytes}
}

// Len returns the number of unconsumed bytes remaining.
func (c *ByteConsumer) Len() int {
	return len(c.bytes)
}

// Bytes consumes and returns size bytes, zero-padded if fewer remain.
func (c *ByteConsumer) Bytes(size int) []byte {
	consumed := make([]byte, size)
	copy(consumed, c.bytes)

	if len(c.bytes) <= size {
		c.bytes = c.bytes[:0]
	} else {
		c.bytes = c.bytes[size:]
	}
	return consumed
}

// Byte consumes a single byte.
func (c *ByteConsumer) Byte() byte {
	return c.Bytes(1)[0]
}

// Uint16 consumes a little-endian uint16.
func (c *ByteConsumer) Uint16() uint16 {
	return binary.LittleEndian.Uint16(c.Bytes(2))
}

// Uint32 consumes a little-endian uint32.
func (c *ByteConsumer) Uint32() uint32 {
	return binary.LittleEndian.Uint32(c.Bytes(4))
}

// Uint64 consumes a little-endian uint64, used to script heap addresses,
// sizes, and alignments.
func (c *ByteConsumer) Uint64() uint64 {
	return binary.LittleEndian.Uint64(c.Bytes(8))
}

// Bool consumes a single byte and reports whether it is odd.
func (c *ByteConsumer) Bool() bool {
	return c.Byte()%2 == 1
}
