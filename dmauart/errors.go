package dmauart

import "errors"

// ErrBufferEmpty is returned by the non-blocking facade when no received
// byte is available.
var ErrBufferEmpty = errors.New("UART buffer empty")

// Error is the completion status delivered to read/write callbacks. The
// zero value means the transfer finished cleanly.
type Error uint16

const (
	ErrNone Error = 0

	// DMA controller faults, reported by the stream status flags.
	ErrDMATransfer Error = 0x201
	ErrDMAFIFO     Error = 0x202

	// UART line faults, reported by the peripheral status register.
	ErrUARTOverrun Error = 0x300
	ErrUARTFraming Error = 0x301
	ErrUARTNoise   Error = 0x302

	// ErrBufferOverrun means the DMA controller lapped software before it
	// consumed the receive ring; synchronization was lost and the ring has
	// been reset.
	ErrBufferOverrun Error = 0x303
)

// Err converts a completion code into an error value: nil for ErrNone, the
// code itself otherwise. Used where the standard error interface is wanted.
func (e Error) Err() error {
	if e == ErrNone {
		return nil
	}
	return e
}

func (e Error) Error() string { return e.String() }

func (e Error) String() string {
	switch e {
	case ErrNone:
		return "none"
	case ErrDMATransfer:
		return "DMA transfer error"
	case ErrDMAFIFO:
		return "DMA FIFO error"
	case ErrUARTOverrun:
		return "UART overrun"
	case ErrUARTFraming:
		return "UART framing error"
	case ErrUARTNoise:
		return "UART noise error"
	case ErrBufferOverrun:
		return "receive buffer overrun"
	}
	return "unknown error"
}
