package services

import "time"

// Clock abstracts time.Now so lifecycle tests can drive the cooldown and
// deadline logic deterministically.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock returns the wall-clock implementation used in production.
func SystemClock() Clock { return systemClock{} }
