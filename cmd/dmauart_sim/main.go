//go:build !tinygo

// Host selftest: runs the DMA UART transport against the hardware
// simulator and checks a few end-to-end scenarios without a board.
package main

import (
	"bytes"
	"fmt"
	"os"

	"github.com/jangala-dev/tinygo-dmauart/dmauart"
	"github.com/jangala-dev/tinygo-dmauart/exclusive"
)

var failures int

func check(name string, ok bool) {
	if ok {
		fmt.Printf("ok   %s\n", name)
		return
	}
	fmt.Printf("FAIL %s\n", name)
	failures++
}

func main() {
	sim := &dmauart.Simulator{}
	q := dmauart.NewQueue(16)
	drv := dmauart.New(dmauart.Config{
		Port: sim, IRQs: sim, Queue: q,
		EnableTx: true, EnableRx: true,
	})

	// Round-trip: write out, feed the echo back in.
	var wn int
	var werr dmauart.Error
	drv.AsyncWriteSome([]byte("ping"), func(err dmauart.Error, n int) {
		werr, wn = err, n
	})
	q.Drain()
	check("write completes", werr == dmauart.ErrNone && wn == 4)
	check("bytes on the wire", string(sim.TxLog) == "ping")

	sim.Feed(sim.TxLog)
	sim.Idle()
	buf := make([]byte, 16)
	var rn int
	var rerr dmauart.Error
	drv.AsyncReadSome(buf, func(err dmauart.Error, n int) {
		rerr, rn = err, n
	})
	q.Drain()
	check("echo received", rerr == dmauart.ErrNone && bytes.Equal(buf[:rn], []byte("ping")))

	// Overrun: flood more than the ring holds, then recover.
	flood := make([]byte, 100)
	sim.Feed(flood)
	q.Drain()
	var oerr dmauart.Error
	drv.AsyncReadSome(buf, func(err dmauart.Error, n int) { oerr = err })
	q.Drain()
	check("overrun detected", oerr == dmauart.ErrBufferOverrun)
	sim.Feed([]byte("ok"))
	sim.Idle()
	var afterErr dmauart.Error
	var afterN int
	drv.AsyncReadSome(buf, func(err dmauart.Error, n int) { afterErr, afterN = err, n })
	q.Drain()
	check("recovered after overrun", afterErr == dmauart.ErrNone && string(buf[:afterN]) == "ok")

	// Serialized access to the shared port.
	var order []int
	excl := exclusive.New(drv)
	var releases []exclusive.Release
	for i := 1; i <= 3; i++ {
		i := i
		excl.AsyncStart(func(_ *dmauart.Driver, release exclusive.Release) {
			order = append(order, i)
			releases = append(releases, release)
		})
	}
	releases[0]()
	releases[1]()
	releases[2]()
	check("exclusive runs in order", len(order) == 3 && order[0] == 1 && order[1] == 2 && order[2] == 3)

	if failures > 0 {
		fmt.Printf("%d failure(s)\n", failures)
		os.Exit(1)
	}
	fmt.Println("all checks passed")
}
