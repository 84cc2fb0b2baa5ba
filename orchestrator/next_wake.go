package orchestrator

import "time"

// quarterHourCeil returns the next wall-clock quarter-hour strictly after t.
func quarterHourCeil(t time.Time) time.Time {
	minute := t.Minute()
	nextQuarter := ((minute / 15) + 1) * 15
	base := time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, t.Location())
	candidate := base.Add(time.Duration(nextQuarter) * time.Minute)
	if !candidate.After(t) {
		candidate = candidate.Add(15 * time.Minute)
	}
	return candidate
}

// NextWake implements the Optimization Scheduler's next-wake algorithm
// (component design §4.1). It is deterministic and idempotent: identical
// inputs yield identical outputs.
//
// Returns the wake time to sleep until. When the gap-fill rule fires, wake
// is the filler run's time (now+updateInterval) and nextQuarterAligned is
// the upcoming quarter-aligned run that remains scheduled after it;
// otherwise nextQuarterAligned is the zero time and wake is simply S.
func NextWake(now time.Time, avgRuntime, updateInterval time.Duration) (wake time.Time, nextQuarterAligned time.Time) {
	q := quarterHourCeil(now)
	s := q.Add(-avgRuntime)

	// Step 3: if the candidate start has already passed, advance to the
	// following quarter and return it directly — the gap-fill and
	// too-close checks below apply only to the untouched first candidate.
	if !s.After(now) {
		q = q.Add(15 * time.Minute)
		s = q.Add(-avgRuntime)
		return s, time.Time{}
	}

	delta := s.Sub(now)

	twiceInterval := 2 * updateInterval
	gapFillFloor := maxDuration(30*time.Second, durationMul(updateInterval+avgRuntime, 0.7))
	if delta >= twiceInterval && delta >= gapFillFloor {
		return now.Add(updateInterval), s
	}

	tooClose := maxDuration(30*time.Second, durationMul(avgRuntime, 0.5))
	if delta < tooClose {
		q = q.Add(15 * time.Minute)
		s = q.Add(-avgRuntime)
	}

	return s, time.Time{}
}

func maxDuration(a, b time.Duration) time.Duration {
	if a > b {
		return a
	}
	return b
}

func durationMul(d time.Duration, f float64) time.Duration {
	return time.Duration(float64(d) * f)
}
