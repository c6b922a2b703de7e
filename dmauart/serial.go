package dmauart

import (
	"context"
	"time"

	"tinygo.org/x/drivers"
)

// Serial is a blocking facade over a Driver, shaped like the UART bus the
// tinygo.org/x/drivers ecosystem consumes. It pumps the driver's deferred
// queue itself, so it must be the sole consumer of both the queue and the
// receive ring; do not mix it with direct AsyncReadSome calls or a
// concurrent Queue.Run.
type Serial struct {
	drv *Driver
	q   *Queue
}

var _ drivers.UART = (*Serial)(nil)

// NewSerial wraps drv, which must have been constructed over q.
func NewSerial(drv *Driver, q *Queue) *Serial {
	return &Serial{drv: drv, q: q}
}

// Buffered reports how many received bytes are waiting.
func (s *Serial) Buffered() int {
	s.q.Drain()
	return s.drv.Buffered()
}

// Read drains up to len(p) already received bytes without blocking. When
// nothing is buffered it returns 0 with a nil error, like machine.UART.
// A receive fault latched since the last read is returned after its data.
func (s *Serial) Read(p []byte) (int, error) {
	s.q.Drain()
	n := s.drv.TryRead(p)
	return n, s.drv.takePendingErr().Err()
}

// ReadByte returns one received byte without blocking, or ErrBufferEmpty.
func (s *Serial) ReadByte() (byte, error) {
	s.q.Drain()
	var b [1]byte
	if s.drv.TryRead(b[:]) == 0 {
		return 0, ErrBufferEmpty
	}
	return b[0], nil
}

// Write transmits p and blocks until the DMA transfer completes, pumping
// the deferred queue while it waits.
func (s *Serial) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	var (
		done bool
		werr Error
		wn   int
	)
	s.drv.AsyncWriteSome(p, func(err Error, n int) {
		werr, wn, done = err, n, true
	})
	for !done {
		if s.q.Drain() == 0 {
			time.Sleep(0) // waiting on the completion interrupt
		}
	}
	return wn, werr.Err()
}

// WaitReadable blocks until at least one byte is buffered or ctx ends.
func (s *Serial) WaitReadable(ctx context.Context) error {
	for {
		s.q.Drain()
		if s.drv.Buffered() > 0 {
			return nil
		}
		select {
		case <-s.drv.Readable(): // coalesced wake; re-check
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// ReadBlocking blocks until at least one byte is available, then returns up
// to len(p) bytes.
func (s *Serial) ReadBlocking(ctx context.Context, p []byte) (int, error) {
	for {
		s.q.Drain()
		if n := s.drv.TryRead(p); n > 0 {
			return n, nil
		}
		select {
		case <-s.drv.Readable():
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
}
