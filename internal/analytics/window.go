package analytics

import "time"

const (
	// GestationWeeks is the offset from a reference date to the expected delivery date
	GestationWeeks = 40
	// DefaultMaxWeeksPregnant bounds registration searches when no maximum is given
	DefaultMaxWeeksPregnant = 42
)

// Window is a date range searched inclusive of Start and exclusive of the day after End.
// Builders below pre-advance End by one day so that the last requested day is covered.
type Window struct {
	Start time.Time
	End   time.Time
}

func addWeeks(t time.Time, weeks int) time.Time {
	return t.AddDate(0, 0, 7*weeks)
}

func nextDay(t time.Time) time.Time {
	return t.AddDate(0, 0, 1)
}

// ExpectedWindow maps explicit registration dates to expected delivery dates
func ExpectedWindow(start, end time.Time) Window {
	return Window{
		Start: addWeeks(start, GestationWeeks),
		End:   nextDay(addWeeks(end, GestationWeeks)),
	}
}

// WeeksPregnantWindow maps a weeks-pregnant range to expected delivery dates relative to now.
// A max of zero means DefaultMaxWeeksPregnant.
func WeeksPregnantWindow(now time.Time, minWeeks, maxWeeks int) Window {
	if maxWeeks <= 0 {
		maxWeeks = DefaultMaxWeeksPregnant
	}
	if minWeeks < 0 {
		minWeeks = 0
	}
	expected := addWeeks(now, GestationWeeks)
	return Window{
		Start: addWeeks(expected, -maxWeeks),
		End:   nextDay(addWeeks(expected, -minWeeks)),
	}
}

// ReportedWindow covers reports made from start through the whole of end
func ReportedWindow(start, end time.Time) Window {
	return Window{Start: start, End: nextDay(end)}
}
