package lower

import (
	"fmt"

	"github.com/chazu/pylower/host"
)

// SlotPool hands out host local indices above a fixed base. Temporaries
// follow strict LIFO discipline; reserved slots live for the whole method
// and may only be taken while no temporary is live.
type SlotPool struct {
	base     int // first index not reserved
	live     []int
	kinds    map[int]host.Kind
	reserved []int
	max      int
}

// NewSlotPool creates a pool whose first slot is base. Locals below base
// belong to the caller.
func NewSlotPool(base int) *SlotPool {
	return &SlotPool{base: base, max: base, kinds: make(map[int]host.Kind)}
}

// Reserve takes a persistent slot.
func (p *SlotPool) Reserve(k host.Kind) int {
	if len(p.live) > 0 {
		panic(fmt.Sprintf("lower: reserve with %d temporaries live", len(p.live)))
	}
	idx := p.base
	p.base++
	p.kinds[idx] = k
	p.reserved = append(p.reserved, idx)
	p.bump(p.base)
	return idx
}

// Alloc takes a temporary slot for a value of kind k.
func (p *SlotPool) Alloc(k host.Kind) int {
	idx := p.base + len(p.live)
	p.live = append(p.live, idx)
	p.kinds[idx] = k
	p.bump(idx + 1)
	return idx
}

// Free releases the most recently allocated temporary. Freeing any other
// slot is a bug in the caller.
func (p *SlotPool) Free(idx int) {
	n := len(p.live)
	if n == 0 || p.live[n-1] != idx {
		panic(fmt.Sprintf("lower: free of slot %d out of order (live %v)", idx, p.live))
	}
	p.live = p.live[:n-1]
}

// Kind returns the kind a slot was allocated or reserved with.
func (p *SlotPool) Kind(idx int) host.Kind {
	return p.kinds[idx]
}

// Live returns the number of temporaries currently allocated.
func (p *SlotPool) Live() int {
	return len(p.live)
}

// Reserved returns the persistent slots in reservation order.
func (p *SlotPool) Reserved() []int {
	return append([]int(nil), p.reserved...)
}

// MaxLocals returns the high-water mark of slot indices plus one.
func (p *SlotPool) MaxLocals() int {
	return p.max
}

func (p *SlotPool) bump(n int) {
	if n > p.max {
		p.max = n
	}
}
