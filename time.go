package users

import "time"

// IsWithinThresholdPeriod checks if t happened within d of now
func IsWithinThresholdPeriod(now, t time.Time, d time.Duration) bool {
	return t.After(now.Add(-d))
}

// IsOutsideThresholdPeriod is the negation of IsWithinThresholdPeriod
func IsOutsideThresholdPeriod(now, t time.Time, d time.Duration) bool {
	return !IsWithinThresholdPeriod(now, t, d)
}
