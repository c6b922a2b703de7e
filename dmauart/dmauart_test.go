package dmauart

import (
	"bytes"
	"testing"
)

// newTestDriver wires a Driver to a fresh hardware simulator and queue.
func newTestDriver(t *testing.T) (*Driver, *Simulator, *Queue) {
	t.Helper()
	sim := &Simulator{}
	q := NewQueue(16)
	d := New(Config{Port: sim, IRQs: sim, Queue: q, EnableTx: true, EnableRx: true})
	return d, sim, q
}

// readResult captures a completion callback.
type readResult struct {
	err   Error
	n     int
	fired bool
}

func (r *readResult) callback() Callback {
	return func(err Error, n int) {
		if r.fired {
			panic("callback fired twice")
		}
		r.err, r.n, r.fired = err, n, true
	}
}

func TestReadDeliversBufferedBytesInOrder(t *testing.T) {
	d, sim, q := newTestDriver(t)

	sim.Feed([]byte("hello"))
	sim.Idle()
	q.Drain() // no read outstanding; data stays buffered

	var res readResult
	buf := make([]byte, 16)
	d.AsyncReadSome(buf, res.callback())
	q.Drain()

	if !res.fired {
		t.Fatal("read callback never fired")
	}
	if res.err != ErrNone || res.n != 5 {
		t.Fatalf("got err=%v n=%d; want none, 5", res.err, res.n)
	}
	if string(buf[:res.n]) != "hello" {
		t.Fatalf("got %q; want %q", buf[:res.n], "hello")
	}
}

func TestReadBeforeDataArrivesFlushedByIdle(t *testing.T) {
	d, sim, q := newTestDriver(t)

	var res readResult
	buf := make([]byte, 16)
	d.AsyncReadSome(buf, res.callback())
	q.Drain()
	if res.fired {
		t.Fatal("callback fired with no data")
	}

	sim.Feed([]byte("abc"))
	sim.Idle()
	q.Drain()

	if !res.fired || res.err != ErrNone || res.n != 3 {
		t.Fatalf("got fired=%v err=%v n=%d; want fired, none, 3", res.fired, res.err, res.n)
	}
	if string(buf[:3]) != "abc" {
		t.Fatalf("got %q; want %q", buf[:3], "abc")
	}
}

func TestReadOrderPreservedAcrossWraparound(t *testing.T) {
	d, sim, q := newTestDriver(t)

	first := make([]byte, 40)
	second := make([]byte, 40)
	for i := range first {
		first[i] = byte(i)
		second[i] = byte(40 + i)
	}

	sim.Feed(first)
	sim.Idle()
	var res1 readResult
	buf := make([]byte, 64)
	d.AsyncReadSome(buf, res1.callback())
	q.Drain()
	if res1.n != 40 || !bytes.Equal(buf[:40], first) {
		t.Fatalf("first read: n=%d", res1.n)
	}

	// The second batch wraps past slot 63 back to slot 0.
	sim.Feed(second)
	sim.Idle()
	var res2 readResult
	d.AsyncReadSome(buf, res2.callback())
	q.Drain()
	if res2.err != ErrNone || res2.n != 40 {
		t.Fatalf("second read: err=%v n=%d; want none, 40", res2.err, res2.n)
	}
	if !bytes.Equal(buf[:40], second) {
		t.Fatalf("wraparound reordered data: got % x", buf[:40])
	}
}

func TestReadCallbackNeverFiresOnCallerStack(t *testing.T) {
	d, sim, q := newTestDriver(t)

	sim.Feed([]byte("x"))
	var res readResult
	d.AsyncReadSome(make([]byte, 4), res.callback())
	if res.fired {
		t.Fatal("callback ran synchronously inside AsyncReadSome")
	}
	q.Drain()
	if !res.fired {
		t.Fatal("callback never fired")
	}
}

func TestSecondOutstandingReadPanics(t *testing.T) {
	d, _, _ := newTestDriver(t)

	d.AsyncReadSome(make([]byte, 4), func(Error, int) {})
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on second outstanding read")
		}
	}()
	d.AsyncReadSome(make([]byte, 4), func(Error, int) {})
}

func TestSecondOutstandingWritePanics(t *testing.T) {
	d, sim, _ := newTestDriver(t)
	sim.ManualTx = true

	d.AsyncWriteSome([]byte("a"), func(Error, int) {})
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on second outstanding write")
		}
	}()
	d.AsyncWriteSome([]byte("b"), func(Error, int) {})
}

func TestWriteCompletesFully(t *testing.T) {
	d, sim, q := newTestDriver(t)

	var res readResult
	d.AsyncWriteSome([]byte("ping"), res.callback())
	q.Drain()

	if !res.fired || res.err != ErrNone || res.n != 4 {
		t.Fatalf("got fired=%v err=%v n=%d; want fired, none, 4", res.fired, res.err, res.n)
	}
	if string(sim.TxLog) != "ping" {
		t.Fatalf("wire got %q; want %q", sim.TxLog, "ping")
	}

	// A follow-up write must be accepted once the first completed.
	var res2 readResult
	d.AsyncWriteSome([]byte("!"), res2.callback())
	q.Drain()
	if !res2.fired || res2.n != 1 {
		t.Fatalf("second write: fired=%v n=%d", res2.fired, res2.n)
	}
}

func TestWriteReportsDMAErrorWithPartialCount(t *testing.T) {
	d, sim, q := newTestDriver(t)

	sim.FailNextTx(StatusError, 2)
	var res readResult
	d.AsyncWriteSome([]byte("abcdef"), res.callback())
	q.Drain()

	if res.err != ErrDMATransfer || res.n != 2 {
		t.Fatalf("got err=%v n=%d; want DMA transfer error, 2", res.err, res.n)
	}
}

func TestBufferOverrunRecovery(t *testing.T) {
	d, sim, q := newTestDriver(t)

	// 70 bytes with nobody reading: the ring wraps and hardware laps the
	// cursor.
	flood := make([]byte, 70)
	for i := range flood {
		flood[i] = byte(i)
	}
	sim.Feed(flood)
	q.Drain()

	var res readResult
	buf := make([]byte, 128)
	d.AsyncReadSome(buf, res.callback())
	q.Drain()

	if !res.fired || res.err != ErrBufferOverrun {
		t.Fatalf("got fired=%v err=%v; want fired, buffer overrun", res.fired, res.err)
	}
	if res.n != ringSlots {
		t.Fatalf("drained %d bytes; want the full ring (%d)", res.n, ringSlots)
	}
	if d.Buffered() != 0 {
		t.Fatalf("ring not reset: %d bytes buffered", d.Buffered())
	}
	if !sim.DMAEnabled(Rx) {
		t.Fatal("reception not restarted after recovery")
	}

	// The transport must be fully usable again.
	sim.Feed([]byte("ok"))
	sim.Idle()
	var res2 readResult
	d.AsyncReadSome(buf, res2.callback())
	q.Drain()
	if res2.err != ErrNone || res2.n != 2 || string(buf[:2]) != "ok" {
		t.Fatalf("post-recovery read: err=%v n=%d data=%q", res2.err, res2.n, buf[:2])
	}
}

func TestLineErrorSurfacedExactlyOnce(t *testing.T) {
	d, sim, q := newTestDriver(t)

	var res readResult
	buf := make([]byte, 16)
	d.AsyncReadSome(buf, res.callback())
	q.Drain()

	sim.Feed([]byte("ab"))
	sim.InjectLineError(LineFraming)
	q.Drain()

	if res.err != ErrUARTFraming || res.n != 2 {
		t.Fatalf("got err=%v n=%d; want framing, 2", res.err, res.n)
	}

	// The error must not repeat, and no bytes may be replayed.
	sim.Feed([]byte("cd"))
	sim.Idle()
	var res2 readResult
	d.AsyncReadSome(buf, res2.callback())
	q.Drain()
	if res2.err != ErrNone || res2.n != 2 || string(buf[:2]) != "cd" {
		t.Fatalf("follow-up read: err=%v n=%d data=%q", res2.err, res2.n, buf[:2])
	}
}

func TestLineErrorVariants(t *testing.T) {
	cases := []struct {
		line LineStatus
		want Error
	}{
		{LineOverrun, ErrUARTOverrun},
		{LineFraming, ErrUARTFraming},
		{LineNoise, ErrUARTNoise},
	}
	for _, tc := range cases {
		d, sim, q := newTestDriver(t)
		var res readResult
		d.AsyncReadSome(make([]byte, 4), res.callback())
		sim.InjectLineError(tc.line)
		q.Drain()
		if res.err != tc.want || res.n != 0 {
			t.Fatalf("line %v: got err=%v n=%d; want %v, 0", tc.line, res.err, res.n, tc.want)
		}
	}
}

func TestRxFIFOErrorSurfaced(t *testing.T) {
	d, sim, q := newTestDriver(t)

	var res readResult
	d.AsyncReadSome(make([]byte, 4), res.callback())
	sim.InjectRxFault(StatusFIFOError)
	q.Drain()

	if res.err != ErrDMAFIFO || res.n != 0 {
		t.Fatalf("got err=%v n=%d; want DMA FIFO error, 0", res.err, res.n)
	}
}

func TestProcessDataIdempotentWithoutRead(t *testing.T) {
	d, sim, q := newTestDriver(t)

	// Redundant scheduling with nothing to do must not disturb the ring.
	sim.Idle()
	sim.Idle()
	q.Drain()
	if d.Buffered() != 0 {
		t.Fatalf("buffered %d; want 0", d.Buffered())
	}

	sim.Feed([]byte("ab"))
	sim.Idle()
	sim.Idle()
	q.Drain()
	if d.Buffered() != 2 {
		t.Fatalf("buffered %d; want 2", d.Buffered())
	}

	buf := make([]byte, 4)
	var res readResult
	d.AsyncReadSome(buf, res.callback())
	q.Drain()
	if res.n != 2 || string(buf[:2]) != "ab" {
		t.Fatalf("got n=%d data=%q; want 2, \"ab\"", res.n, buf[:2])
	}
}

func TestTryReadAndBuffered(t *testing.T) {
	d, sim, _ := newTestDriver(t)

	sim.Feed([]byte("xyz"))
	if got := d.Buffered(); got != 3 {
		t.Fatalf("Buffered = %d; want 3", got)
	}
	var b [2]byte
	if n := d.TryRead(b[:]); n != 2 || string(b[:]) != "xy" {
		t.Fatalf("TryRead = %d %q", n, b[:])
	}
	if got := d.Buffered(); got != 1 {
		t.Fatalf("Buffered after TryRead = %d; want 1", got)
	}
}

func TestTryReadRecoversFromOverrun(t *testing.T) {
	d, sim, q := newTestDriver(t)

	flood := make([]byte, ringSlots+6)
	for i := range flood {
		flood[i] = byte(i)
	}
	sim.Feed(flood)
	q.Drain()

	buf := make([]byte, 16)
	if n := d.TryRead(buf); n != len(buf) {
		t.Fatalf("TryRead = %d; want %d", n, len(buf))
	}
	if got := d.Buffered(); got != 0 {
		t.Fatalf("ring not reset after overrun: %d buffered", got)
	}
	if !sim.DMAEnabled(Rx) {
		t.Fatal("reception not restarted")
	}

	// The latched fault is reported by the next registered read, with the
	// fresh data that arrived after recovery.
	sim.Feed([]byte("ok"))
	sim.Idle()
	var res readResult
	d.AsyncReadSome(buf, res.callback())
	q.Drain()
	if !res.fired || res.err != ErrBufferOverrun || string(buf[:res.n]) != "ok" {
		t.Fatalf("got fired=%v err=%v data=%q", res.fired, res.err, buf[:res.n])
	}

	// The fault reports once; the read after that is clean.
	sim.Feed([]byte("go"))
	sim.Idle()
	var res2 readResult
	d.AsyncReadSome(buf, res2.callback())
	q.Drain()
	if !res2.fired || res2.err != ErrNone || string(buf[:res2.n]) != "go" {
		t.Fatalf("got fired=%v err=%v data=%q", res2.fired, res2.err, buf[:res2.n])
	}
}

func TestShortReadLeavesRemainderBuffered(t *testing.T) {
	d, sim, q := newTestDriver(t)

	sim.Feed([]byte("abcdef"))
	sim.Idle()
	q.Drain()

	buf := make([]byte, 4)
	var res readResult
	d.AsyncReadSome(buf, res.callback())
	q.Drain()
	if res.n != 4 || string(buf) != "abcd" {
		t.Fatalf("got n=%d %q; want 4 %q", res.n, buf, "abcd")
	}
	if d.Buffered() != 2 {
		t.Fatalf("remainder %d; want 2", d.Buffered())
	}
}
