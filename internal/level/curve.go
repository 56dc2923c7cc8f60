package level

import (
	"iter"
	"slices"
	"time"
)

// Sample is one point of a level curve.
type Sample struct {
	Time    time.Time
	LevelMg float64
}

// DefaultResolution keeps chart sample counts bounded:
// up to a week is sampled hourly, up to 31 days every 6 hours, longer spans daily.
func DefaultResolution(span time.Duration) time.Duration {
	hours := span.Hours()
	switch {
	case hours <= 7*hoursPerDay:
		return time.Hour
	case hours <= 31*hoursPerDay:
		return 6 * time.Hour
	default:
		return 24 * time.Hour
	}
}

// Samples lazily yields levels from start to end inclusive, stepped by
// resolution. The last sample is the last step that does not pass end.
// A resolution <= 0 or end <= start yields nothing. The returned sequence
// can be ranged over any number of times.
func Samples(events []DosingEvent, start, end time.Time, resolution time.Duration) iter.Seq[Sample] {
	evs := slices.Clone(events)
	return func(yield func(Sample) bool) {
		if resolution <= 0 || !end.After(start) {
			return
		}
		for t := start; !t.After(end); t = t.Add(resolution) {
			if !yield(Sample{Time: t, LevelMg: LevelAt(t, evs)}) {
				return
			}
		}
	}
}

// SamplesAuto is Samples stepped by DefaultResolution(end - start).
func SamplesAuto(events []DosingEvent, start, end time.Time) iter.Seq[Sample] {
	return Samples(events, start, end, DefaultResolution(end.Sub(start)))
}

// Curve materializes Samples. It returns nil for invalid bounds.
func Curve(events []DosingEvent, start, end time.Time, resolution time.Duration) []Sample {
	return slices.Collect(Samples(events, start, end, resolution))
}

// CurveAuto materializes SamplesAuto.
func CurveAuto(events []DosingEvent, start, end time.Time) []Sample {
	return slices.Collect(SamplesAuto(events, start, end))
}
