// Command gcsimdemo drives a VM through a scripted sequence of pushes, pops
// and forced collections, printing the op-code journal and the PI
// controller's confidence trace as it goes.
package main

import (
	"flag"
	"fmt"
	"log"
	"math/rand"

	"github.com/fmstephe/gcsim/object"
	"github.com/fmstephe/gcsim/vm"
)

var (
	maxStackSizeFlag = flag.Uint64("max-stack-size", 16, "Maximum depth of the VM's operand stack")
	fractionFlag     = flag.Float64("fraction", 75, "Trigger threshold, as a percentage of stack occupancy")
	heapSizeFlag     = flag.Uint64("heap-size", 4096, "Heap size in bytes")
	alignmentFlag    = flag.Uint64("alignment", 8, "Heap alignment, 0 or a power of two")
	stepsFlag        = flag.Int("steps", 40, "Number of push/pop steps to run")
	seedFlag         = flag.Int64("seed", 1, "Seed for the scripted push/pop sequence")
)

func main() {
	flag.Parse()

	machine, err := vm.New(*maxStackSizeFlag, *fractionFlag, *heapSizeFlag, *alignmentFlag)
	if err != nil {
		log.Fatalf("failed to construct vm: %s", err)
	}
	defer func() {
		if err := machine.Destroy(); err != nil {
			log.Fatalf("failed to destroy vm: %s", err)
		}
	}()

	rng := rand.New(rand.NewSource(*seedFlag))

	for i := 0; i < *stepsFlag; i++ {
		if machine.StackLen() > 0 && rng.Intn(3) == 0 {
			addr, err := machine.Pop()
			if err != nil {
				fmt.Printf("%d: pop failed: %s\n", i, err)
				continue
			}
			fmt.Printf("%d: popped %d\n", i, addr)
		} else {
			o := object.New(fmt.Sprintf("obj-%d", i), nil, randomFields(rng))
			addr, err := machine.Push(o)
			if err != nil {
				fmt.Printf("%d: push failed: %s\n", i, err)
				continue
			}
			fmt.Printf("%d: pushed %d (size %d)\n", i, addr, o.Header.Size)
		}

		confidence, trigger, err := machine.Confidence()
		if err != nil {
			fmt.Printf("%d: confidence update failed: %s\n", i, err)
			continue
		}
		fmt.Printf("%d: confidence=%.2f trigger_gc=%t free=%d live=%d\n",
			i, confidence, trigger, machine.FreeMemory(), len(machine.LiveObjects()))

		if trigger {
			stats, err := machine.ForceCollect()
			if err != nil {
				fmt.Printf("%d: collection aborted: %s\n", i, err)
				continue
			}
			fmt.Printf("%d: collected scanned=%d reclaimed=%d survived=%d\n",
				i, stats.Scanned, stats.Reclaimed, stats.Survived)
		}
	}

	fmt.Printf("\nop-code journal (%d entries):\n", len(machine.OpCodeJournal()))
	for i, op := range machine.OpCodeJournal() {
		fmt.Printf("%4d: %s\n", i, op)
	}
}

func randomFields(rng *rand.Rand) []object.Field {
	n := rng.Intn(3)
	fields := make([]object.Field, n)
	for i := range fields {
		fields[i] = object.NewValueField(rng.Int63())
	}
	return fields
}
