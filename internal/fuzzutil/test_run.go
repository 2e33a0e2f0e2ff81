// Copyright 2024 Francis Michael Stephens. All rights reserved.  Use of this
// source code is governed by an MIT license that can be found in the LICENSE
// file.

package fuzzutil

// Step is one scripted action in a TestRun.
type Step interface {
	DoStep()
}

// TestRun materialises a byte slice into a sequence of Steps (by repeatedly
// calling stepMaker until the underlying ByteConsumer is exhausted) and runs
// them in order, invoking cleanup afterwards regardless of outcome.
type TestRun struct {
	steps   []Step
	cleanup func()
}

// NewTestRun consumes bytes into a sequence of steps via stepMaker.
func NewTestRun(bytes []byte, stepMaker func(*ByteConsumer) Step, cleanup func()) *TestRun {
	tr := &TestRun{cleanup: cleanup}

	consumer := NewByteConsumer(bytes)
	for consumer.Len() > 0 {
		tr.steps = append(tr.steps, stepMaker(consumer))
	}
	return tr
}

// Run executes every step in order, then calls cleanup.
func (t *TestRun) Run() {
	defer t.cleanup()
	for _, step := range t.steps {
		step.DoStep()
	}
}
