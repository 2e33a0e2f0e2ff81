// Package vm is the minimal stack harness the collector's trigger policy is
// defined against: a bounded operand stack of heap-allocated objects, an
// op-code journal, and the PI controller wiring that turns stack occupancy
// into a collection decision.
//
// The journal is grounded on the teacher's own event-sourced style of
// recording allocator activity (pointer_store.go's Allocate/Free paths each
// leave a trail a caller can reconstruct); here every successful push and
// pop, every stack-bound violation (Halt), every object the mark phase
// scans, and every sweep appends one entry, giving an inspectable trace of
// a run.
package vm

import (
	"errors"
	"fmt"

	"github.com/fmstephe/gcsim/gc"
	"github.com/fmstephe/gcsim/gc/control"
	"github.com/fmstephe/gcsim/heap"
	"github.com/fmstephe/gcsim/object"
)

// ErrStackOverflow is returned by Push when the operand stack is already at
// max_stack_size. A Halt entry is journaled alongside it.
var ErrStackOverflow = errors.New("vm: stack overflow")

// ErrStackUnderflow is returned by Pop when the operand stack is empty. A
// Halt entry is journaled alongside it.
var ErrStackUnderflow = errors.New("vm: stack underflow")

// ErrInvalidRangeOfThreshold is returned by New when fraction is outside the
// open interval (0, 100).
var ErrInvalidRangeOfThreshold = errors.New("vm: fraction must be in (0, 100)")

// ErrAllocationFailed wraps a Heap out-of-memory error encountered while
// pushing an object.
var ErrAllocationFailed = errors.New("vm: allocation failed")

// defaultTriggerCutoff is the confidence level, on the same 0-100 scale as
// the trigger measurement, above which the simulator reports trigger_gc as
// true. The specification leaves this cutoff unspecified beyond "a
// configured cut-off"; the midpoint of the controller's [0, 100] clamp
// range is used.
const defaultTriggerCutoff = 50.0

// defaultControllerConfig is the PI gain set a VM wires into its controller.
// The specification defines the controller's mechanics (§4.5) but leaves
// the gains themselves to the embedder; these values keep the confidence
// within the controller's [0, 100] clamp, the trigger measurement's own
// percentage scale. The confidence is the controller's integral, driven by
// the gap between the threshold and occupancy rather than by occupancy
// itself.
var defaultControllerConfig = control.Config{
	Kp:     1,
	Ti:     1,
	Tt:     1,
	Period: 1,
	Min:    0,
	Max:    100,
}

// OpKind distinguishes the entries that can appear in a VM's op-code
// journal.
type OpKind int

const (
	OpPush OpKind = iota
	OpPop
	OpMark
	OpSweep
	OpHalt
)

func (k OpKind) String() string {
	switch k {
	case OpPush:
		return "Push"
	case OpPop:
		return "Pop"
	case OpMark:
		return "Mark"
	case OpSweep:
		return "Sweep"
	case OpHalt:
		return "Halt"
	default:
		return "Unknown"
	}
}

// OpCode is one entry of a VM's journal. Value holds the pushed or marked
// address for OpPush/OpMark; Size holds the marked object's size for
// OpMark. Pop, Sweep and Halt entries carry no payload.
type OpCode struct {
	Kind  OpKind
	Value object.Address
	Size  uint64
}

func (op OpCode) String() string {
	switch op.Kind {
	case OpPush:
		return fmt.Sprintf("Push(%d)", op.Value)
	case OpMark:
		return fmt.Sprintf("Mark(%d, %d)", op.Value, op.Size)
	default:
		return op.Kind.String()
	}
}

// VM is a bounded operand stack of heap-allocated objects, sitting over a
// Heap and a Collector it exclusively owns. Its operations are New, Push,
// Pop, ForceCollect, Confidence, FreeMemory, LiveObjects, OpCodeJournal, and
// ResetHeap (a test-only operation that replaces the heap in place).
type VM struct {
	stack        []object.Address
	journal      []OpCode
	maxStackSize uint64
	threshold    float64
	cutoff       float64

	heap      *heap.Heap
	collector *gc.Collector
	pi        *control.PIController
}

// New constructs a VM with a bounded stack of max_stack_size, a heap of
// heap_size bytes aligned to alignment, and a trigger threshold set at
// fraction (interpreted as a percentage of stack occupancy, matching the
// trigger policy's own measurement scale). It fails with
// ErrInvalidRangeOfThreshold when fraction is not in the open interval
// (0, 100).
func New(maxStackSize uint64, fraction float64, heapSize, alignment uint64) (*VM, error) {
	if fraction <= 0 || fraction >= 100 {
		return nil, fmt.Errorf("new(fraction=%v): %w", fraction, ErrInvalidRangeOfThreshold)
	}

	h, err := heap.New(heapSize, alignment)
	if err != nil {
		return nil, err
	}

	return &VM{
		maxStackSize: maxStackSize,
		threshold:    fraction,
		cutoff:       defaultTriggerCutoff,
		heap:         h,
		collector:    gc.New(h),
		pi:           control.New(defaultControllerConfig),
	}, nil
}

// Push allocates o in the heap, registers it as a root (it is now reachable
// from the operand stack), and pushes its address. It fails with
// ErrStackOverflow, journaling a Halt entry, when the stack is already at
// max_stack_size; it fails with ErrAllocationFailed, wrapping the heap's
// out-of-memory error, when the heap cannot accommodate o.
func (vm *VM) Push(o *object.Object) (object.Address, error) {
	if uint64(len(vm.stack)) >= vm.maxStackSize {
		vm.journal = append(vm.journal, OpCode{Kind: OpHalt})
		return 0, ErrStackOverflow
	}

	addr, err := vm.heap.AllocateObject(o)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrAllocationFailed, err)
	}

	if err := vm.heap.AddRoot(addr); err != nil {
		return 0, err
	}

	vm.stack = append(vm.stack, addr)
	vm.journal = append(vm.journal, OpCode{Kind: OpPush, Value: addr})
	return addr, nil
}

// Pop removes and returns the address on top of the operand stack, and
// retires it as a root — it remains live only if some other root or
// reachable object still references it. It fails with ErrStackUnderflow,
// journaling a Halt entry, when the stack is empty.
func (vm *VM) Pop() (object.Address, error) {
	if len(vm.stack) == 0 {
		vm.journal = append(vm.journal, OpCode{Kind: OpHalt})
		return 0, ErrStackUnderflow
	}

	addr := vm.stack[len(vm.stack)-1]
	vm.stack = vm.stack[:len(vm.stack)-1]
	vm.heap.RemoveRoot(addr)

	vm.journal = append(vm.journal, OpCode{Kind: OpPop})
	return addr, nil
}

// ForceCollect drives one full collection cycle, journaling one Mark entry
// per object scanned during the mark phase and a single Sweep entry once
// the heap has been swept.
func (vm *VM) ForceCollect() (gc.Stats, error) {
	vm.collector.Init()
	vm.collector.ProcessRoots()

	for {
		addr, ok := vm.collector.NextGray()
		if !ok {
			break
		}

		o, ok := vm.heap.Get(addr)
		var size uint64
		if ok {
			size = o.Header.Size
		}

		if err := vm.collector.ProcessObject(addr); err != nil {
			return gc.Stats{}, err
		}
		vm.journal = append(vm.journal, OpCode{Kind: OpMark, Value: addr, Size: size})
	}

	stats, err := vm.collector.Sweep()
	vm.journal = append(vm.journal, OpCode{Kind: OpSweep})
	return stats, err
}

// Confidence reports the PI controller's current confidence that a
// collection should run, driven by measurement = 100*stack_len/max_stack_size
// against the configured threshold, and whether that confidence has reached
// the trigger cut-off. It fails with control.ErrControllerBadConfig if the
// wired controller configuration is invalid; the confidence value returned
// in that case is the integral from before this call.
func (vm *VM) Confidence() (confidence float64, triggerGC bool, err error) {
	measurement := 100 * float64(len(vm.stack)) / float64(vm.maxStackSize)

	clamped, raw := vm.pi.Output(measurement, vm.threshold)
	if updateErr := vm.pi.Update(measurement, vm.threshold, clamped, raw); updateErr != nil {
		return vm.pi.Integral(), false, updateErr
	}

	confidence = vm.pi.Integral()
	return confidence, confidence >= vm.cutoff, nil
}

// FreeMemory returns the heap's currently free byte count.
func (vm *VM) FreeMemory() uint64 {
	return vm.heap.CalculateFreeMemory()
}

// LiveObjects returns the addresses of every object currently live in the
// heap, in ascending order.
func (vm *VM) LiveObjects() []object.Address {
	return vm.heap.LiveObjects()
}

// OpCodeJournal returns a copy of every op-code recorded so far.
func (vm *VM) OpCodeJournal() []OpCode {
	return append([]OpCode(nil), vm.journal...)
}

// StackLen reports the operand stack's current length, for callers that
// want to relate it to MaxStackSize without re-deriving Confidence's
// measurement.
func (vm *VM) StackLen() int {
	return len(vm.stack)
}

// MaxStackSize returns the configured bound on the operand stack.
func (vm *VM) MaxStackSize() uint64 {
	return vm.maxStackSize
}

// ResetHeap destroys the VM's current heap and replaces it with a fresh one
// of size bytes, preserving the original heap's alignment. The operand
// stack and live-object/root state go with the old heap — every address on
// the stack refers to a span that no longer exists — so the stack is
// cleared and a new Collector is bound to the new heap. It is intended for
// test harnesses that need a clean heap of a different size without
// reconstructing the whole VM (and its op-code journal).
func (vm *VM) ResetHeap(size uint64) error {
	alignment := vm.heap.Alignment()
	if err := vm.heap.Destroy(); err != nil {
		return err
	}

	h, err := heap.New(size, alignment)
	if err != nil {
		return err
	}

	vm.heap = h
	vm.collector = gc.New(h)
	vm.stack = vm.stack[:0]
	return nil
}

// Destroy releases the VM's heap. The operand stack, root set and journal
// are discarded with it; there is no external leak surface.
func (vm *VM) Destroy() error {
	return vm.heap.Destroy()
}
