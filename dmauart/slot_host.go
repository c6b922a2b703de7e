//go:build !tinygo

package dmauart

// Host builds have no DMA hardware writing behind the compiler's back, so a
// plain word stands in for the volatile register.
type slot16 struct {
	v uint16
}

func (s *slot16) Get() uint16  { return s.v }
func (s *slot16) Set(v uint16) { s.v = v }
