package core

import "time"

type Timer interface {
	Stop() bool
}

// Scheduler defers fn by d. Implementations decide which goroutine runs fn.
type Scheduler interface {
	AfterFunc(d time.Duration, fn func()) Timer
}

// WallClock schedules on the runtime timer goroutine.
type WallClock struct{}

func (WallClock) AfterFunc(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, fn)
}
