//go:build !tinygo

package dmauart

// Simulator is a software model of the UART peripheral and its two DMA
// streams, standing in for the register backend on host builds. It
// implements Port and IRQBinder: bound handlers are invoked synchronously,
// which is the host analogue of interrupt context preempting the current
// instruction.
//
// Feed writes into the bound ring exactly the way circular DMA hardware
// does — wrapping at the end, raising the transfer-complete interrupt on
// wrap, and happily lapping software that has not consumed its slots.
type Simulator struct {
	slots    []uint16
	writePos int

	dmaOn  [2]bool
	reqOn  [2]bool
	status [2]Status
	line   LineStatus

	handlers [numIRQs]func()

	txSrc  []byte
	txSent int

	// TxLog accumulates every byte "put on the wire".
	TxLog []byte

	// ManualTx defers transmit completion until CompleteTx is called;
	// by default a transmit finishes as soon as the stream and request
	// line are both enabled.
	ManualTx bool

	txFault      Status
	txFaultAfter int
}

var (
	_ Port      = (*Simulator)(nil)
	_ IRQBinder = (*Simulator)(nil)
)

// Bind implements IRQBinder.
func (s *Simulator) Bind(irq IRQ, handler func()) {
	s.handlers[irq] = handler
}

func (s *Simulator) raise(irq IRQ) {
	if h := s.handlers[irq]; h != nil {
		h()
	}
}

// Feed delivers incoming wire bytes to the RX DMA model. Bytes arriving
// while the stream or request line is disabled are lost, as on hardware.
func (s *Simulator) Feed(p []byte) {
	for _, b := range p {
		if !s.dmaOn[Rx] || !s.reqOn[Rx] {
			continue
		}
		s.slots[s.writePos] = uint16(b)
		s.writePos++
		if s.writePos == len(s.slots) {
			s.writePos = 0
			s.status[Rx] |= StatusComplete
			s.raise(IRQRxDMA)
		}
	}
}

// Idle signals that the bus went quiet after data: the idle-line interrupt.
func (s *Simulator) Idle() {
	s.line |= LineIdle
	s.raise(IRQLine)
}

// InjectLineError raises an RX transfer error accompanied by the given line
// fault, the combination the hardware produces for overrun/framing/noise.
func (s *Simulator) InjectLineError(ls LineStatus) {
	s.line |= ls
	s.status[Rx] |= StatusError
	s.raise(IRQRxDMA)
}

// InjectRxFault raises an RX DMA interrupt with the given stream status.
func (s *Simulator) InjectRxFault(st Status) {
	s.status[Rx] |= st
	s.raise(IRQRxDMA)
}

// FailNextTx makes the next transmit stop with the given stream fault after
// accepting n bytes.
func (s *Simulator) FailNextTx(st Status, n int) {
	s.txFault = st
	s.txFaultAfter = n
}

// CompleteTx finishes the current transmit; only needed with ManualTx.
func (s *Simulator) CompleteTx() {
	s.finishTx()
}

func (s *Simulator) finishTx() {
	if s.txSrc == nil {
		return
	}
	n := len(s.txSrc)
	st := StatusComplete
	if s.txFault != 0 {
		st = s.txFault
		if s.txFaultAfter < n {
			n = s.txFaultAfter
		}
		s.txFault = 0
	}
	s.TxLog = append(s.TxLog, s.txSrc[:n]...)
	s.txSent = n
	s.txSrc = nil
	// Hardware clears the enable bit when the stream stops.
	s.dmaOn[Tx] = false
	s.status[Tx] |= st
	s.raise(IRQTxDMA)
}

func (s *Simulator) maybeRunTx() {
	if s.ManualTx {
		return
	}
	if s.dmaOn[Tx] && s.reqOn[Tx] {
		s.finishTx()
	}
}

// ---- Port implementation ----

func (s *Simulator) BindRx(slots []uint16) {
	s.slots = slots
	s.writePos = 0
}

func (s *Simulator) LoadTx(data []byte) {
	s.txSrc = data
	s.txSent = 0
}

func (s *Simulator) Sent() int { return s.txSent }

func (s *Simulator) EnableDMA(d Direction) {
	if s.dmaOn[d] {
		return
	}
	s.dmaOn[d] = true
	if d == Rx {
		// Re-enabling reloads the transfer count, so hardware restarts
		// at slot zero.
		s.writePos = 0
	}
	s.maybeRunTx()
}

func (s *Simulator) DisableDMA(d Direction) {
	if !s.dmaOn[d] {
		return
	}
	s.dmaOn[d] = false
	if d == Rx {
		// Aborting a running stream raises its transfer-complete flag.
		s.status[Rx] |= StatusComplete
		s.raise(IRQRxDMA)
	}
}

func (s *Simulator) DMAEnabled(d Direction) bool { return s.dmaOn[d] }

func (s *Simulator) EnableRequest(d Direction) {
	s.reqOn[d] = true
	s.maybeRunTx()
}

func (s *Simulator) DisableRequest(d Direction) { s.reqOn[d] = false }

func (s *Simulator) ReadStatus(d Direction) Status { return s.status[d] }

func (s *Simulator) ClearStatus(d Direction, m Status) { s.status[d] &^= m }

func (s *Simulator) ReadLineStatus() LineStatus { return s.line }

func (s *Simulator) ClearLineStatus() { s.line = 0 }
