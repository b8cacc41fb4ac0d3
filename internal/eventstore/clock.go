package eventstore

import "time"

// Clock supplies the current time. The global tracked reader compares it
// against each row's stored timestamp to decide allow_gaps: production
// wiring uses time.Now().UTC, tests inject a fixed or fast-forwarding clock
// so gap-timeout scenarios don't need to sleep in real time.
type Clock func() time.Time

// SystemClock is the production Clock.
func SystemClock() time.Time {
	return time.Now().UTC()
}
