// Package dmauart provides a non-blocking UART transport built on DMA and
// interrupt hardware. Reception runs continuously into a circular buffer of
// 16-bit slots; transmission is a single-shot DMA transfer. Interrupt
// handlers only classify events and clear hardware status, then hand the
// real bookkeeping to a deferred event queue, so nothing here ever blocks
// and handlers stay short enough for high baud rates.
//
// A Driver supports at most one outstanding read and one outstanding write
// at a time; violating that contract is a programming error and panics.
// Completion callbacks always arrive through the deferred queue, never on
// the caller's stack.
package dmauart

// Callback receives the completion status of a read or write together with
// the number of bytes actually transferred.
type Callback func(err Error, n int)

// Config wires a Driver to its hardware port, interrupt sources and
// deferred event queue. Directions left disabled are never configured, for
// peripherals with only one pin routed.
type Config struct {
	Port  Port
	IRQs  IRQBinder
	Queue Poster

	EnableTx bool
	EnableRx bool
}

// Driver is the DMA-driven UART transport. All methods other than the
// interrupt handlers must be called from task context (the deferred event
// queue's context).
type Driver struct {
	port  Port
	queue Poster

	ring rxRing

	// Outstanding read request, owned by task context.
	readBuf      []byte
	readCB       Callback
	pendingRxErr Error

	// Outstanding write request.
	writeCB Callback

	// Coalesced receive-readiness hint for blocking facades. Signalled
	// from interrupt context; consumers must re-check state after waking.
	notify chan struct{}

	stats Stats
}

// New constructs a Driver over the given port and starts continuous
// reception immediately if the RX direction is enabled: the DMA controller
// fills the ring whether or not a read is outstanding.
func New(cfg Config) *Driver {
	if cfg.Port == nil || cfg.Queue == nil {
		panic("dmauart: Port and Queue are required")
	}
	if (cfg.EnableTx || cfg.EnableRx) && cfg.IRQs == nil {
		panic("dmauart: IRQBinder is required")
	}

	d := &Driver{
		port:   cfg.Port,
		queue:  cfg.Queue,
		notify: make(chan struct{}, 1),
	}
	d.ring.reset()

	if cfg.EnableTx {
		cfg.IRQs.Bind(IRQTxDMA, d.handleTransmit)
	}
	if cfg.EnableRx {
		cfg.IRQs.Bind(IRQRxDMA, d.handleReceive)
		cfg.IRQs.Bind(IRQLine, d.handleLine)

		d.port.BindRx(d.ring.raw())
		d.port.ClearStatus(Rx, StatusAll)
		d.port.EnableDMA(Rx)
		d.port.EnableRequest(Rx)
	}
	return d
}

// AsyncReadSome delivers up to len(p) received bytes through cb. The
// callback fires exactly once, via the deferred queue, as soon as at least
// one byte (or a pending error) is available — possibly from data already
// buffered before the call. At most one read may be outstanding.
func (d *Driver) AsyncReadSome(p []byte, cb Callback) {
	if d.readCB != nil {
		panic("dmauart: read already outstanding")
	}
	if cb == nil {
		panic("dmauart: nil read callback")
	}

	// All this does is record the request. Reception is always running;
	// processData just looks for a buffer to drain into.
	d.readBuf = p
	d.readCB = cb

	d.processData()
}

// AsyncWriteSome transmits p by DMA and reports completion through cb. The
// source bytes must stay valid and unmodified until the callback fires. At
// most one write may be outstanding.
func (d *Driver) AsyncWriteSome(p []byte, cb Callback) {
	if d.writeCB != nil {
		panic("dmauart: write already outstanding")
	}
	if cb == nil {
		panic("dmauart: nil write callback")
	}

	if len(p) == 0 {
		// Nothing for the DMA controller to move; complete through the
		// queue like any other write.
		d.post(func() { cb(ErrNone, 0) })
		return
	}

	d.writeCB = cb

	// Clear stale stream status before starting, then hand the transfer
	// to hardware. No further software action until the completion
	// interrupt.
	d.port.ClearStatus(Tx, StatusAll)
	d.port.LoadTx(p)
	d.port.EnableDMA(Tx)
	d.port.EnableRequest(Tx)
}

// TryRead drains up to len(p) already received bytes without registering a
// request. It never blocks. Must run in task context, and must not be mixed
// with an outstanding AsyncReadSome. If reception has lapped the cursor,
// TryRead performs the same ring recovery as a pending read and latches
// ErrBufferOverrun; latched errors surface on the next AsyncReadSome, or
// through takePendingErr for polling facades.
func (d *Driver) TryRead(p []byte) int {
	if d.readCB != nil {
		panic("dmauart: read already outstanding")
	}
	if !d.ring.lapped() {
		return d.ring.drain(p)
	}

	// The slot layout is no longer trustworthy: salvage what fits, then
	// restart reception from a clean ring.
	d.pendingRxErr = ErrBufferOverrun
	d.dbgOverrun()
	if d.port.DMAEnabled(Rx) {
		d.port.DisableDMA(Rx)
	}
	n := d.ring.drain(p)
	d.ring.reset()
	d.port.EnableDMA(Rx)
	d.port.EnableRequest(Rx)
	return n
}

// takePendingErr hands any latched receive error to a polling consumer,
// clearing it. Task context only.
func (d *Driver) takePendingErr() Error {
	e := d.pendingRxErr
	d.pendingRxErr = ErrNone
	return e
}

// Buffered reports how many received bytes are waiting in the ring.
func (d *Driver) Buffered() int {
	return d.ring.buffered()
}

// Readable exposes a coalesced receive-readiness signal suitable for
// select. Wakes can be spurious; callers must re-check state.
func (d *Driver) Readable() <-chan struct{} {
	return d.notify
}

// post schedules fn on the deferred queue. Losing a task would strand a
// request forever, so a full queue is fatal.
func (d *Driver) post(fn func()) {
	if !d.queue.Post(fn) {
		panic("dmauart: deferred event queue full")
	}
}

func (d *Driver) tryNotify() {
	select {
	case d.notify <- struct{}{}:
	default:
	}
}

// handleTransmit services the TX DMA interrupt.
// INVOKED FROM INTERRUPT CONTEXT.
func (d *Driver) handleTransmit() {
	d.dbgIRQ(IRQTxDMA)

	// Single-shot transfer: hardware has cleared the enable bit by now.
	if d.port.DMAEnabled(Tx) {
		panic("dmauart: tx stream still enabled at completion")
	}
	sent := d.port.Sent()

	// Stop the peripheral from requesting TX DMA.
	d.port.DisableRequest(Tx)

	var errc Error
	st := d.port.ReadStatus(Tx)
	switch {
	case st&StatusError != 0:
		d.port.ClearStatus(Tx, StatusError)
		errc = ErrDMATransfer
	case st&StatusFIFOError != 0:
		d.port.ClearStatus(Tx, StatusFIFOError)
		errc = ErrDMAFIFO
	case st&StatusComplete != 0:
		d.port.ClearStatus(Tx, StatusComplete)
	default:
		panic("dmauart: unexpected tx status flags")
	}

	d.post(func() { d.finishTransmit(errc, sent) })
}

// finishTransmit retires the outstanding write in task context. The user
// callback goes through the queue too, so it never runs inside driver
// bookkeeping.
func (d *Driver) finishTransmit(errc Error, sent int) {
	cb := d.writeCB
	d.writeCB = nil
	d.post(func() { cb(errc, sent) })
}

// handleReceive services the RX DMA interrupt: ring wrap (transfer
// complete) or a hardware fault. It records any pending error and defers
// the drain.
// INVOKED FROM INTERRUPT CONTEXT.
func (d *Driver) handleReceive() {
	d.dbgIRQ(IRQRxDMA)

	st := d.port.ReadStatus(Rx)
	switch {
	case st&StatusError != 0:
		d.port.ClearStatus(Rx, StatusError)
		// A line fault can surface together with the stream error;
		// reading then clearing line status tells them apart.
		ls := d.port.ReadLineStatus()
		d.port.ClearLineStatus()
		switch {
		case ls&LineOverrun != 0:
			d.pendingRxErr = ErrUARTOverrun
		case ls&LineFraming != 0:
			d.pendingRxErr = ErrUARTFraming
		case ls&LineNoise != 0:
			d.pendingRxErr = ErrUARTNoise
		default:
			d.pendingRxErr = ErrDMATransfer
		}
	case st&StatusFIFOError != 0:
		d.port.ClearStatus(Rx, StatusFIFOError)
		d.pendingRxErr = ErrDMAFIFO
	case st&StatusComplete != 0:
		d.port.ClearStatus(Rx, StatusComplete)
	default:
		panic("dmauart: unexpected rx status flags")
	}

	d.post(d.processData)
	d.tryNotify()
}

// handleLine services the UART line-status interrupt. The idle line marks
// the end of a byte run; it flushes buffered data without waiting for the
// ring to wrap.
// INVOKED FROM INTERRUPT CONTEXT.
func (d *Driver) handleLine() {
	d.dbgIRQ(IRQLine)

	// Explicit mask test: only the idle flag may trigger the flush, not
	// just any nonzero line status.
	if d.port.ReadLineStatus()&LineIdle != 0 {
		d.port.ClearLineStatus()
		d.post(d.processData)
		d.tryNotify()
	}
}

// processData is the deferred receive task. It is idempotent: redundant
// scheduling costs one cheap no-op run. Task context only.
func (d *Driver) processData() {
	d.dbgProcess()

	if d.readCB == nil {
		// No outstanding read; data stays buffered.
		return
	}
	if !d.ring.hasData() && d.pendingRxErr == ErrNone {
		// Nothing new to deliver.
		return
	}

	if d.ring.lapped() {
		// Hardware overtook consumption a full lap ago; we no longer
		// know where the DMA controller is writing.
		d.pendingRxErr = ErrBufferOverrun
		d.dbgOverrun()
		if d.port.DMAEnabled(Rx) {
			// Stopping the stream raises its transfer-complete
			// interrupt, which re-invokes this task with the
			// hardware quiesced.
			d.port.DisableDMA(Rx)
			return
		}
		// Already stopped: deliver what we have and recover below.
	}

	n := d.ring.drain(d.readBuf)
	d.dbgDelivered(n)

	cb, errc := d.readCB, d.pendingRxErr
	d.pendingRxErr = ErrNone
	d.readCB = nil
	d.readBuf = nil
	d.post(func() { cb(errc, n) })

	// If the stream was left stopped (overrun recovery), start over from
	// a clean ring.
	if !d.port.DMAEnabled(Rx) {
		d.ring.reset()
		d.port.EnableDMA(Rx)
		d.port.EnableRequest(Rx)
	}
}
