package snapshot

import "time"

// The external pipeline publishes at minute 8 of every hour and every ten
// minutes after that (:08, :18, ... :58).
const (
	publishOffset   = 8 * time.Minute
	publishInterval = 10 * time.Minute
)

// NextPublication returns the first publication instant strictly after now.
func NextPublication(now time.Time) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), now.Hour(), 0, 0, 0, now.Location()).Add(publishOffset)
	for !next.After(now) {
		next = next.Add(publishInterval)
	}
	return next
}

// TTLUntilNextPublication is how long a snapshot read at now stays current.
func TTLUntilNextPublication(now time.Time) time.Duration {
	return NextPublication(now).Sub(now)
}
