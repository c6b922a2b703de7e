//go:build tinygo

package dmauart

import "runtime/volatile"

// Ring slots are written by the DMA controller behind the compiler's back;
// volatile accessors keep the loads honest.
type slot16 = volatile.Register16
