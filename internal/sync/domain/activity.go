package domain

import "time"

// ActivityLevel buckets a user by how recently they interacted with the app.
type ActivityLevel string

const (
	ActivityVeryActive     ActivityLevel = "very_active"
	ActivityActive         ActivityLevel = "active"
	ActivitySomewhatActive ActivityLevel = "somewhat_active"
	ActivityInactive       ActivityLevel = "inactive"
)

// Activity window thresholds. Policy constants, not derived from anything.
const (
	VeryActiveWindow     = 5 * time.Minute
	ActiveWindow         = 30 * time.Minute
	SomewhatActiveWindow = 120 * time.Minute
)

// ClassifyActivity maps time since last activity to a level. The boundaries
// are exclusive: exactly 5 minutes out is "active", not "very_active".
func ClassifyActivity(lastActiveAt, now time.Time) ActivityLevel {
	since := now.Sub(lastActiveAt)
	switch {
	case since < VeryActiveWindow:
		return ActivityVeryActive
	case since < ActiveWindow:
		return ActivityActive
	case since < SomewhatActiveWindow:
		return ActivitySomewhatActive
	default:
		return ActivityInactive
	}
}
