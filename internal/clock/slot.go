package clock

import (
	"time"

	"github.com/arloliu/draftsync/types"
)

// Slot is a re-armable timer owned by a single goroutine.
//
// The underlying timer is created on first Arm, so an unused Slot allocates nothing.
// C returns nil while the slot is disarmed, which disables its case in a select.
// The owner must call Fired after receiving from C.
type Slot struct {
	clk   types.Clock
	timer types.Timer
	armed bool
}

// NewSlot creates a disarmed slot on clk.
func NewSlot(clk types.Clock) *Slot {
	return &Slot{clk: clk}
}

// Arm (re)starts the slot to fire after d, replacing any pending deadline.
func (s *Slot) Arm(d time.Duration) {
	if s.timer == nil {
		s.timer = s.clk.NewTimer(d)
	} else {
		s.timer.Reset(d)
	}
	s.armed = true
}

// Disarm cancels a pending fire.
func (s *Slot) Disarm() {
	if s.armed && s.timer != nil {
		s.timer.Stop()
	}
	s.armed = false
}

// Fired marks the slot disarmed after its fire was received.
func (s *Slot) Fired() {
	s.armed = false
}

// Armed reports whether a fire is pending.
func (s *Slot) Armed() bool {
	return s.armed
}

// C returns the fire channel, or nil when disarmed.
func (s *Slot) C() <-chan time.Time {
	if !s.armed {
		return nil
	}

	return s.timer.C()
}
