package giveaway

import "time"

// Clock tells time and fires one-shot wakeups at an absolute instant.
type Clock interface {
	Now() time.Time
	At(when time.Time, fire func()) Timer
}

// Timer cancels a pending wakeup. *time.Timer satisfies it.
type Timer interface {
	Stop() bool
}

type wallClock struct{}

func (wallClock) Now() time.Time { return time.Now() }

func (wallClock) At(when time.Time, fire func()) Timer {
	return time.AfterFunc(max(time.Until(when), 0), fire)
}
