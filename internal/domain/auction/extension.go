package auction

import "time"

// ExtensionPolicy decides whether an auction deadline is pushed out when a
// bid lands inside the trailing trigger window. It exists to defeat
// last-second sniping and is only consulted for products with AutoExtend set.
type ExtensionPolicy struct {
	// Trigger is the trailing window before the deadline in which a bid
	// causes an extension.
	Trigger time.Duration
	// Extension is added to the current deadline when triggered.
	Extension time.Duration
}

// Extend returns the effective deadline for a bid arriving at now, and
// whether the deadline moved. The input deadline is never mutated; callers
// pass the returned value explicitly into subsequent checks.
func (p ExtensionPolicy) Extend(endAt, now time.Time) (time.Time, bool) {
	if p.Trigger <= 0 || p.Extension <= 0 {
		return endAt, false
	}

	remaining := endAt.Sub(now)
	if remaining <= p.Trigger {
		return endAt.Add(p.Extension), true
	}

	return endAt, false
}
