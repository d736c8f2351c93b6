// internal/grid/clock.go
//
// Timing source for a widget: reaction time and owned callbacks.
// Tests substitute a fake clock that fires timers on demand.

package grid

import "time"

// Clock is the widget's timing source: reaction time and scheduled callbacks.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is a cancellable scheduled callback.
type Timer interface {
	Stop() bool
}

// SystemClock uses the time package.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

func (SystemClock) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }
