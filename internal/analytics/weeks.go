package analytics

import (
	"math"
	"time"
)

// lmpOffsetWeeks is subtracted from the weeks elapsed since a recorded LMP date
const lmpOffsetWeeks = 2

// Weeks is a derived gestational age
type Weeks struct {
	Number      int  `json:"number"`
	Approximate bool `json:"approximate,omitempty"`
}

func weeksBetween(from, to time.Time) int {
	return int(math.Floor(to.Sub(from).Hours() / (24 * 7)))
}

// weeksPregnant uses the LMP date when recorded, otherwise falls back to the
// reported date and flags the result as approximate.
func weeksPregnant(doc Document, now time.Time) Weeks {
	if !doc.LmpDate.IsZero() {
		return Weeks{Number: weeksBetween(doc.LmpDate.Time, now) - lmpOffsetWeeks}
	}
	return Weeks{Number: weeksBetween(doc.ReportedDate.Time, now), Approximate: true}
}
