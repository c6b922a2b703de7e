package dmauart

// Direction selects one of the two DMA bindings owned by a Driver.
type Direction uint8

const (
	Tx Direction = iota
	Rx
)

// Status is the per-direction DMA stream status bitmask.
type Status uint8

const (
	StatusComplete Status = 1 << iota
	StatusHalf
	StatusError
	StatusFIFOError
)

// StatusAll covers every stream flag; used to clear stale state before a
// transfer is started.
const StatusAll = StatusComplete | StatusHalf | StatusError | StatusFIFOError

// LineStatus is the UART peripheral's line status bitmask.
type LineStatus uint8

const (
	LineOverrun LineStatus = 1 << iota
	LineFraming
	LineNoise
	LineIdle
)

// Port is the register-level surface the Driver drives. A Port instance is
// bound to one UART peripheral and its TX/RX DMA streams; the Driver never
// touches hardware except through it. Implemented by the STM32 backend on
// device builds and by Simulator on the host.
type Port interface {
	// BindRx points the circular RX channel at the driver's slot memory.
	// Called once at construction, before reception is enabled.
	BindRx(slots []uint16)

	// LoadTx programs the source address and transfer count for one
	// single-shot transmit. The TX stream must be disabled when called.
	LoadTx(data []byte)

	// Sent reports how many bytes of the current transmit have left memory
	// (programmed count minus the remaining transfer count).
	Sent() int

	EnableDMA(d Direction)
	DisableDMA(d Direction)
	DMAEnabled(d Direction) bool

	// EnableRequest/DisableRequest gate the peripheral's DMA request line
	// for a direction (DMAT/DMAR on STM32 parts).
	EnableRequest(d Direction)
	DisableRequest(d Direction)

	ReadStatus(d Direction) Status
	ClearStatus(d Direction, m Status)

	ReadLineStatus() LineStatus
	ClearLineStatus()
}

// IRQ identifies one of the three interrupt sources a Driver services.
type IRQ uint8

const (
	IRQTxDMA IRQ = iota
	IRQRxDMA
	IRQLine

	numIRQs
)

// IRQBinder attaches a handler to a hardware interrupt source. Handlers run
// in interrupt context and must not block.
type IRQBinder interface {
	Bind(irq IRQ, handler func())
}

// Poster is the deferred event queue consumed by the Driver. Post must be
// safe to call from interrupt context; it reports false when the queue is
// full, which the Driver treats as fatal.
type Poster interface {
	Post(fn func()) bool
}
