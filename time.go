package account

import "time"

// CooldownRemaining returns what is left of a cooldown of d started at
// since. It is zero when the cooldown never started or has run out,
// including at the exact boundary.
func CooldownRemaining(now time.Time, since *time.Time, d time.Duration) time.Duration {
	if since == nil || d <= 0 {
		return 0
	}
	if left := since.Add(d).Sub(now); left > 0 {
		return left
	}
	return 0
}
