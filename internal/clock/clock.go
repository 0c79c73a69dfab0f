// Package clock provides the wall-clock implementation of types.Clock.
package clock

import (
	"time"

	"github.com/arloliu/draftsync/types"
)

// Real is a types.Clock backed by the time package.
type Real struct{}

var _ types.Clock = Real{}

// New returns the wall clock.
func New() Real {
	return Real{}
}

// Now returns time.Now().
func (Real) Now() time.Time {
	return time.Now()
}

// NewTimer wraps time.NewTimer.
func (Real) NewTimer(d time.Duration) types.Timer {
	return &realTimer{t: time.NewTimer(d)}
}

type realTimer struct {
	t *time.Timer
}

func (r *realTimer) C() <-chan time.Time {
	return r.t.C
}

func (r *realTimer) Stop() bool {
	return r.t.Stop()
}

func (r *realTimer) Reset(d time.Duration) bool {
	return r.t.Reset(d)
}
