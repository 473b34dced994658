package systemclock

import (
	"time"

	"voteverse/contexts/live-contest/voting-engine/ports"
)

// SystemClock is the default runtime clock implementation.
type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

// Scheduler arms wall-clock timers via time.AfterFunc.
type Scheduler struct{}

func (Scheduler) AfterFunc(d time.Duration, fn func()) ports.Timer {
	return time.AfterFunc(d, fn)
}

var _ ports.Clock = SystemClock{}
var _ ports.Scheduler = Scheduler{}
