package dmauart

import "unsafe"

// Receive ring dimensions. Each slot is 16 bits wide so the DMA controller
// can deposit a byte while leaving headroom for the sentinel: any slot
// holding ringSentinel has not been written since software last consumed it.
const (
	ringSlots    = 64
	ringSentinel = 0xFFFF
)

// rxRing is the circular receive buffer shared with the DMA controller.
// Hardware is the only writer of slot payloads; task context is the only
// party that clears slots back to the sentinel and moves the cursor. That
// single-writer split is the whole synchronization story, so there is no
// lock here.
type rxRing struct {
	slots [ringSlots]slot16
	pos   int
}

// raw exposes the slot storage as plain uint16s for the hardware port to
// bind as the DMA destination. slot16 is layout-identical to uint16 on
// every build.
func (r *rxRing) raw() []uint16 {
	return unsafe.Slice((*uint16)(unsafe.Pointer(&r.slots[0])), ringSlots)
}

// reset returns every slot to the sentinel and the cursor to slot zero.
// Only valid while the DMA stream is stopped.
func (r *rxRing) reset() {
	for i := range r.slots {
		r.slots[i].Set(ringSentinel)
	}
	r.pos = 0
}

// hasData reports whether the slot at the cursor holds an unconsumed byte.
func (r *rxRing) hasData() bool {
	return r.slots[r.pos].Get() != ringSentinel
}

// lapped reports whether hardware has written the slot one full revolution
// behind the cursor, i.e. reception has overtaken consumption.
func (r *rxRing) lapped() bool {
	last := (r.pos + ringSlots - 1) % ringSlots
	return r.slots[last].Get() != ringSentinel
}

// drain copies consecutive unconsumed bytes into p, clearing each drained
// slot and advancing the cursor. It stops at the first sentinel slot or
// when p is full, and returns the number of bytes copied.
func (r *rxRing) drain(p []byte) int {
	n := 0
	for n < len(p) {
		v := r.slots[r.pos].Get()
		if v == ringSentinel {
			break
		}
		p[n] = byte(v)
		r.slots[r.pos].Set(ringSentinel)
		r.pos = (r.pos + 1) % ringSlots
		n++
	}
	return n
}

// buffered counts the unconsumed bytes currently waiting in the ring.
func (r *rxRing) buffered() int {
	n := 0
	for n < ringSlots {
		if r.slots[(r.pos+n)%ringSlots].Get() == ringSentinel {
			break
		}
		n++
	}
	return n
}
