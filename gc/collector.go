// Package gc implements the tri-color mark-and-sweep collector that runs
// over a heap.Heap's live-object graph, plus (in gc/control) the PI
// controller that decides when a collection should run.
//
// The collector is grounded on the teacher's own free/reuse bookkeeping
// (objectstore.Store.Free inserts a freed slot's address onto a reuse list)
// generalised to full graph tracing: instead of a single generation check
// per Reference, every live object carries a tri-color paint that the mark
// phase advances and the sweep phase consumes.
package gc

import (
	"errors"
	"fmt"
	"log"

	"github.com/fmstephe/gcsim/heap"
	"github.com/fmstephe/gcsim/object"
)

// ErrObjectNotFound is returned, and the cycle aborted, when a live object's
// outgoing reference does not resolve to another live object. A correct
// mutator must never leave such a dangling edge; this is logged as a fatal
// diagnostic rather than panicking, per the simulator's design notes.
var ErrObjectNotFound = errors.New("gc: dangling reference during trace")

// CycleState is the collector's state machine: Idle -> Marking -> Sweeping
// -> Idle.
type CycleState int

const (
	Idle CycleState = iota
	Marking
	Sweeping
)

func (s CycleState) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Marking:
		return "Marking"
	case Sweeping:
		return "Sweeping"
	default:
		return "Unknown"
	}
}

// Stats summarises the outcome of a single collection cycle.
type Stats struct {
	Scanned  int
	Reclaimed int
	Survived  int
}

// Collector runs tri-color mark-and-sweep cycles over a Heap.
type Collector struct {
	heap  *heap.Heap
	state CycleState
	gray  []object.Address
}

// New returns a Collector bound to h, initially Idle.
func New(h *heap.Heap) *Collector {
	return &Collector{heap: h, state: Idle}
}

// State returns the collector's current cycle state.
func (c *Collector) State() CycleState {
	return c.state
}

// Collect runs one full Idle -> Marking -> Sweeping -> Idle cycle: it paints
// every live object White, marks everything reachable from the root set
// Black, and sweeps every object that is still White. It aborts the cycle
// and returns ErrObjectNotFound if a reachable object's outgoing reference
// does not resolve to a live object.
func (c *Collector) Collect() (Stats, error) {
	c.Init()
	c.ProcessRoots()

	for len(c.gray) > 0 {
		addr := c.gray[0]
		if err := c.ProcessObject(addr); err != nil {
			c.state = Idle
			return Stats{}, err
		}
	}

	return c.Sweep()
}

// NextGray reports a member of the current gray work set, if any, without
// removing it. A harness (package vm) uses this to drive the mark phase one
// object at a time, journaling a Mark entry per step.
func (c *Collector) NextGray() (object.Address, bool) {
	if len(c.gray) == 0 {
		return 0, false
	}
	return c.gray[0], true
}

// Init repaints every live object White and resets the collector to
// Marking with an empty gray work set. It is the first step of the mark
// phase, exposed so a harness (package vm) can journal it as a discrete
// step.
func (c *Collector) Init() {
	c.state = Marking
	c.gray = c.gray[:0]
	for _, addr := range c.heap.LiveObjects() {
		o, ok := c.heap.Get(addr)
		if !ok {
			continue
		}
		o.Header.Color = object.White
	}
}

// ProcessRoots repaints every root Gray and seeds the gray work set with the
// root set. It is the second step of the mark phase.
func (c *Collector) ProcessRoots() {
	for _, addr := range c.heap.Roots() {
		c.paintGray(addr)
	}
}

// ProcessObject advances addr from Gray to Black, and paints every White
// referent of addr Gray, enqueuing it for later processing. Black objects
// are never re-enqueued, so the gray work set always shrinks towards empty.
// It returns ErrObjectNotFound if addr itself, or one of its referents,
// does not resolve to a live object — tracing a dangling reference is a
// fatal inconsistency for a correct mutator.
func (c *Collector) ProcessObject(addr object.Address) error {
	c.dequeueGray(addr)

	o, ok := c.heap.Get(addr)
	if !ok {
		log.Printf("gc: aborting cycle, gray address %d does not resolve to a live object", addr)
		return fmt.Errorf("%w: address %d", ErrObjectNotFound, addr)
	}
	o.Header.Color = object.Black

	for _, ref := range o.References() {
		referent, ok := c.heap.Get(ref)
		if !ok {
			log.Printf("gc: aborting cycle, object %d references dangling address %d", addr, ref)
			return fmt.Errorf("%w: address %d", ErrObjectNotFound, ref)
		}
		if referent.Header.Color == object.White {
			c.paintGray(ref)
		}
	}

	return nil
}

// dequeueGray removes addr from the gray work set, if present. The choice
// of which gray address to scan next is unobservable externally (the spec
// only requires that the set empties), so callers are free to pass any
// member of the current gray set.
func (c *Collector) dequeueGray(addr object.Address) {
	for i, a := range c.gray {
		if a == addr {
			c.gray = append(c.gray[:i], c.gray[i+1:]...)
			return
		}
	}
}

func (c *Collector) paintGray(addr object.Address) {
	o, ok := c.heap.Get(addr)
	if !ok {
		return
	}
	if o.Header.Color == object.White {
		o.Header.Color = object.Gray
		c.gray = append(c.gray, addr)
	}
}

// Sweep is the final phase: every Black object survives and is repainted
// White for the next cycle; every White object is unreachable and is freed.
// It is exposed, alongside NextGray, so a harness can drive a cycle one
// phase at a time and journal each step.
func (c *Collector) Sweep() (Stats, error) {
	c.state = Sweeping

	stats := Stats{}
	for _, addr := range c.heap.LiveObjects() {
		o, ok := c.heap.Get(addr)
		if !ok {
			continue
		}
		stats.Scanned++

		switch o.Header.Color {
		case object.Black:
			o.Header.Color = object.White
			stats.Survived++
		case object.White:
			if err := c.heap.FreeObject(addr); err != nil {
				c.state = Idle
				return Stats{}, err
			}
			stats.Reclaimed++
		case object.Gray:
			// Unreachable once the gray work set is empty: every
			// object is either Black (scanned) or White (never
			// discovered). Treated the same as White defensively.
			if err := c.heap.FreeObject(addr); err != nil {
				c.state = Idle
				return Stats{}, err
			}
			stats.Reclaimed++
		}
	}

	c.state = Idle
	return stats, nil
}
