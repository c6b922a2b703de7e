//go:build !dmauartdebug

package dmauart

type Stats struct{}

func (d *Driver) DebugReset()       {}
func (d *Driver) DebugStats() Stats { return Stats{} }

func (d *Driver) dbgIRQ(IRQ)       {}
func (d *Driver) dbgProcess()      {}
func (d *Driver) dbgDelivered(int) {}
func (d *Driver) dbgOverrun()      {}
