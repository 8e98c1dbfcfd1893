// Package clock provides an injectable source of the current time so that
// timeout logic can be tested deterministically.
package clock

import "time"

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// System is the Clock backed by the wall clock.
var System Clock = systemClock{}
