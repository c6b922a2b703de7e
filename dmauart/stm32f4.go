//go:build tinygo && (stm32f405 || stm32f407)

package dmauart

import (
	"device/stm32"
	"runtime/interrupt"
	"runtime/volatile"
	"unsafe"
)

// Register backend for the STM32F4 DMA controllers and USARTs, following
// the AN4031 configuration procedure. Pin muxing, peripheral clocks and
// baud rate are owned by the caller (typically machine.UART.Configure);
// Attach only takes over data movement.

// dmaStream is the per-stream register window (RM0090 §10.5). device/stm32
// flattens the stream registers into the DMA peripheral; this view restores
// the 0x18-byte stride layout.
type dmaStream struct {
	CR   volatile.Register32
	NDTR volatile.Register32
	PAR  volatile.Register32
	M0AR volatile.Register32
	M1AR volatile.Register32
	FCR  volatile.Register32
}

func streamAt(dma *stm32.DMA_Type, n uint8) *dmaStream {
	return (*dmaStream)(unsafe.Add(unsafe.Pointer(&dma.S0CR), uintptr(n)*0x18))
}

// SxCR fields.
const (
	dmaCREnable   = 1 << 0
	dmaCRTEIE     = 1 << 2
	dmaCRHTIE     = 1 << 3
	dmaCRTCIE     = 1 << 4
	dmaCRDirM2P   = 0x1 << 6
	dmaCRCirc     = 1 << 8
	dmaCRMInc     = 1 << 10
	dmaCRPSize16  = 0x1 << 11
	dmaCRMSize16  = 0x1 << 13
	dmaCRChSelPos = 25
)

// Per-stream flag bits, relative to the stream's field offset in
// LISR/HISR (streams 0-3 in the low registers, 4-7 in the high ones).
const (
	dmaFlagFEIF  = 1 << 0
	dmaFlagDMEIF = 1 << 2
	dmaFlagTEIF  = 1 << 3
	dmaFlagHTIF  = 1 << 4
	dmaFlagTCIF  = 1 << 5
)

var dmaFlagShift = [4]uint32{0, 6, 16, 22}

// dmaBinding identifies the stream/channel pair serving one direction of
// one USART. Channel routing is fixed by the DMA request map (RM0090
// table 42/43).
type dmaBinding struct {
	dma     *stm32.DMA_Type
	stream  uint8
	channel uint8
}

// flags returns the status and clear registers covering the bound stream,
// plus the shift of its flag field.
func (b dmaBinding) flags() (sr, cr *volatile.Register32, shift uint32) {
	shift = dmaFlagShift[b.stream%4]
	if b.stream < 4 {
		return &b.dma.LISR, &b.dma.LIFCR, shift
	}
	return &b.dma.HISR, &b.dma.HIFCR, shift
}

func statusToFlags(m Status) uint32 {
	var f uint32
	if m&StatusComplete != 0 {
		f |= dmaFlagTCIF
	}
	if m&StatusHalf != 0 {
		f |= dmaFlagHTIF
	}
	if m&StatusError != 0 {
		f |= dmaFlagTEIF | dmaFlagDMEIF
	}
	if m&StatusFIFOError != 0 {
		f |= dmaFlagFEIF
	}
	return f
}

func flagsToStatus(f uint32) Status {
	var m Status
	if f&dmaFlagTCIF != 0 {
		m |= StatusComplete
	}
	if f&dmaFlagHTIF != 0 {
		m |= StatusHalf
	}
	if f&(dmaFlagTEIF|dmaFlagDMEIF) != 0 {
		m |= StatusError
	}
	if f&dmaFlagFEIF != 0 {
		m |= StatusFIFOError
	}
	return m
}

// stm32Port implements Port over one USART and its two DMA streams.
type stm32Port struct {
	uart  *stm32.USART_Type
	bind  [2]dmaBinding
	txLen uint32
	rxLen uint32
}

func (p *stm32Port) stream(d Direction) *dmaStream {
	return streamAt(p.bind[d].dma, p.bind[d].stream)
}

func (p *stm32Port) BindRx(slots []uint16) {
	s := p.stream(Rx)
	p.rxLen = uint32(len(slots))
	s.M0AR.Set(uint32(uintptr(unsafe.Pointer(&slots[0]))))
	s.NDTR.Set(p.rxLen)
}

func (p *stm32Port) LoadTx(data []byte) {
	s := p.stream(Tx)
	p.txLen = uint32(len(data))
	s.M0AR.Set(uint32(uintptr(unsafe.Pointer(&data[0]))))
	s.NDTR.Set(p.txLen)
}

func (p *stm32Port) Sent() int {
	return int(p.txLen - p.stream(Tx).NDTR.Get())
}

func (p *stm32Port) EnableDMA(d Direction) {
	s := p.stream(d)
	if d == Rx {
		// Reloading the count restarts the circular transfer at the
		// first slot, keeping hardware aligned with a reset cursor.
		s.NDTR.Set(p.rxLen)
	}
	s.CR.SetBits(dmaCREnable)
}

func (p *stm32Port) DisableDMA(d Direction) {
	p.stream(d).CR.ClearBits(dmaCREnable)
}

func (p *stm32Port) DMAEnabled(d Direction) bool {
	return p.stream(d).CR.HasBits(dmaCREnable)
}

func (p *stm32Port) EnableRequest(d Direction) {
	if d == Tx {
		p.uart.CR3.SetBits(stm32.USART_CR3_DMAT)
	} else {
		p.uart.CR3.SetBits(stm32.USART_CR3_DMAR)
	}
}

func (p *stm32Port) DisableRequest(d Direction) {
	if d == Tx {
		p.uart.CR3.ClearBits(stm32.USART_CR3_DMAT)
	} else {
		p.uart.CR3.ClearBits(stm32.USART_CR3_DMAR)
	}
}

func (p *stm32Port) ReadStatus(d Direction) Status {
	sr, _, shift := p.bind[d].flags()
	return flagsToStatus(sr.Get() >> shift)
}

func (p *stm32Port) ClearStatus(d Direction, m Status) {
	_, cr, shift := p.bind[d].flags()
	cr.Set(statusToFlags(m) << shift)
}

func (p *stm32Port) ReadLineStatus() LineStatus {
	sr := p.uart.SR.Get()
	var ls LineStatus
	if sr&stm32.USART_SR_ORE != 0 {
		ls |= LineOverrun
	}
	if sr&stm32.USART_SR_FE != 0 {
		ls |= LineFraming
	}
	if sr&stm32.USART_SR_NE != 0 {
		ls |= LineNoise
	}
	if sr&stm32.USART_SR_IDLE != 0 {
		ls |= LineIdle
	}
	return ls
}

func (p *stm32Port) ClearLineStatus() {
	// The error and idle flags clear on a status read followed by a data
	// read.
	_ = p.uart.SR.Get()
	_ = p.uart.DR.Get()
}

// stm32Transport bundles a port with its statically bound interrupt
// trampolines. TinyGo requires interrupt handlers to be known at compile
// time, so each supported USART gets its own singleton and trampoline set.
type stm32Transport struct {
	port     stm32Port
	handlers [numIRQs]func()
	drv      *Driver
	attached bool
}

func (t *stm32Transport) Bind(irq IRQ, handler func()) {
	t.handlers[irq] = handler
}

func (t *stm32Transport) dispatch(irq IRQ) {
	if h := t.handlers[irq]; h != nil {
		h()
	}
}

var (
	usart1 stm32Transport
	usart2 stm32Transport
	usart3 stm32Transport
)

func usart1TxISR(interrupt.Interrupt)   { usart1.dispatch(IRQTxDMA) }
func usart1RxISR(interrupt.Interrupt)   { usart1.dispatch(IRQRxDMA) }
func usart1LineISR(interrupt.Interrupt) { usart1.dispatch(IRQLine) }
func usart2TxISR(interrupt.Interrupt)   { usart2.dispatch(IRQTxDMA) }
func usart2RxISR(interrupt.Interrupt)   { usart2.dispatch(IRQRxDMA) }
func usart2LineISR(interrupt.Interrupt) { usart2.dispatch(IRQLine) }
func usart3TxISR(interrupt.Interrupt)   { usart3.dispatch(IRQTxDMA) }
func usart3RxISR(interrupt.Interrupt)   { usart3.dispatch(IRQRxDMA) }
func usart3LineISR(interrupt.Interrupt) { usart3.dispatch(IRQLine) }

// transportFor resolves the singleton and DMA request routing for a USART.
// Stream/channel assignments follow the F4 request map; where a peripheral
// has alternatives, the same choice is hard-coded for both directions.
func transportFor(bus *stm32.USART_Type) (t *stm32Transport, tx, rx dmaBinding) {
	switch bus {
	case stm32.USART1:
		return &usart1,
			dmaBinding{stm32.DMA2, 7, 4},
			dmaBinding{stm32.DMA2, 2, 4}
	case stm32.USART2:
		return &usart2,
			dmaBinding{stm32.DMA1, 6, 4},
			dmaBinding{stm32.DMA1, 5, 4}
	case stm32.USART3:
		return &usart3,
			dmaBinding{stm32.DMA1, 3, 4},
			dmaBinding{stm32.DMA1, 1, 4}
	}
	return nil, dmaBinding{}, dmaBinding{}
}

func (t *stm32Transport) createInterrupts() [numIRQs]interrupt.Interrupt {
	switch t {
	case &usart1:
		return [numIRQs]interrupt.Interrupt{
			interrupt.New(stm32.IRQ_DMA2_Stream7, usart1TxISR),
			interrupt.New(stm32.IRQ_DMA2_Stream2, usart1RxISR),
			interrupt.New(stm32.IRQ_USART1, usart1LineISR),
		}
	case &usart2:
		return [numIRQs]interrupt.Interrupt{
			interrupt.New(stm32.IRQ_DMA1_Stream6, usart2TxISR),
			interrupt.New(stm32.IRQ_DMA1_Stream5, usart2RxISR),
			interrupt.New(stm32.IRQ_USART2, usart2LineISR),
		}
	case &usart3:
		return [numIRQs]interrupt.Interrupt{
			interrupt.New(stm32.IRQ_DMA1_Stream3, usart3TxISR),
			interrupt.New(stm32.IRQ_DMA1_Stream1, usart3RxISR),
			interrupt.New(stm32.IRQ_USART3, usart3LineISR),
		}
	}
	panic("dmauart: unknown transport")
}

// AttachConfig selects which directions the transport drives. A direction
// whose pin is not routed stays unconfigured.
type AttachConfig struct {
	TX bool
	RX bool
}

// Attach layers the DMA transport over an already configured USART
// (USART1, USART2 or USART3). The peripheral must be clocked, pin-muxed and
// running at its final baud rate before the call. Attach replaces
// byte-at-a-time reception: it masks the RXNE interrupt, enables the
// idle-line interrupt, and runs RX DMA continuously from then on.
func Attach(bus *stm32.USART_Type, queue *Queue, cfg AttachConfig) *Driver {
	t, txB, rxB := transportFor(bus)
	if t == nil {
		panic("dmauart: unsupported USART")
	}
	if t.attached {
		panic("dmauart: USART already attached")
	}
	t.attached = true

	// Just in case board init has not enabled the DMA controllers yet.
	stm32.RCC.AHB1ENR.SetBits(stm32.RCC_AHB1ENR_DMA1EN | stm32.RCC_AHB1ENR_DMA2EN)

	t.port = stm32Port{uart: bus, bind: [2]dmaBinding{Tx: txB, Rx: rxB}}

	dr := uint32(uintptr(unsafe.Pointer(&bus.DR)))
	if cfg.TX {
		s := t.port.stream(Tx)
		s.PAR.Set(dr)
		s.CR.Set(uint32(txB.channel)<<dmaCRChSelPos |
			dmaCRMInc | dmaCRDirM2P | dmaCRTCIE | dmaCRTEIE)
	}
	if cfg.RX {
		s := t.port.stream(Rx)
		s.PAR.Set(dr)
		s.CR.Set(uint32(rxB.channel)<<dmaCRChSelPos |
			dmaCRMInc | dmaCRMSize16 | dmaCRPSize16 | dmaCRCirc |
			dmaCRTCIE | dmaCRTEIE)

		bus.CR1.ClearBits(stm32.USART_CR1_RXNEIE)
		bus.CR1.SetBits(stm32.USART_CR1_IDLEIE)
	}

	ints := t.createInterrupts()
	enable := func(irq IRQ) {
		ints[irq].SetPriority(0x80)
		ints[irq].Enable()
	}
	if cfg.TX {
		enable(IRQTxDMA)
	}
	if cfg.RX {
		enable(IRQRxDMA)
		enable(IRQLine)
	}

	t.drv = New(Config{
		Port:     &t.port,
		IRQs:     t,
		Queue:    queue,
		EnableTx: cfg.TX,
		EnableRx: cfg.RX,
	})
	return t.drv
}
