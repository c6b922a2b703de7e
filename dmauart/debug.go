//go:build dmauartdebug

package dmauart

import "sync/atomic"

// Stats holds driver counters since the last reset.
type Stats struct {
	// Interrupt-level
	IRQTransmit uint32 // TX DMA interrupts serviced
	IRQReceive  uint32 // RX DMA interrupts serviced
	IRQLine     uint32 // line-status interrupts serviced

	// Task-level
	ProcessRuns    uint32 // processData invocations (including no-ops)
	BytesDelivered uint32 // bytes copied into read buffers
	Overruns       uint32 // ring overruns detected
}

func (d *Driver) DebugReset() {
	d.stats = Stats{}
}

// DebugStats returns a copy of the counters. 32-bit atomic loads keep the
// snapshot coherent against interrupt-context increments.
func (d *Driver) DebugStats() Stats {
	return Stats{
		IRQTransmit:    atomic.LoadUint32(&d.stats.IRQTransmit),
		IRQReceive:     atomic.LoadUint32(&d.stats.IRQReceive),
		IRQLine:        atomic.LoadUint32(&d.stats.IRQLine),
		ProcessRuns:    atomic.LoadUint32(&d.stats.ProcessRuns),
		BytesDelivered: atomic.LoadUint32(&d.stats.BytesDelivered),
		Overruns:       atomic.LoadUint32(&d.stats.Overruns),
	}
}

func (d *Driver) dbgIRQ(irq IRQ) {
	switch irq {
	case IRQTxDMA:
		atomic.AddUint32(&d.stats.IRQTransmit, 1)
	case IRQRxDMA:
		atomic.AddUint32(&d.stats.IRQReceive, 1)
	case IRQLine:
		atomic.AddUint32(&d.stats.IRQLine, 1)
	}
}

func (d *Driver) dbgProcess() {
	atomic.AddUint32(&d.stats.ProcessRuns, 1)
}

func (d *Driver) dbgDelivered(n int) {
	atomic.AddUint32(&d.stats.BytesDelivered, uint32(n))
}

func (d *Driver) dbgOverrun() {
	atomic.AddUint32(&d.stats.Overruns, 1)
}
