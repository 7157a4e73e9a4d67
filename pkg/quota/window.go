package quota

import (
	"fmt"
	"time"
)

// Window is the span over which a counter accumulates before it resets.
type Window int

const (
	// Lifetime never resets. Anonymous visitors are counted in this window.
	Lifetime Window = iota
	// CalendarMonth resets at the first instant of each UTC month.
	CalendarMonth
)

// lifetimeStart anchors every lifetime counter to a single row.
var lifetimeStart = time.Unix(0, 0).UTC()

// Period is a concrete [Start, End) instance of a window. End is zero for
// the lifetime window.
type Period struct {
	Start time.Time
	End   time.Time
}

// Unbounded reports whether the period never ends.
func (p Period) Unbounded() bool {
	return p.End.IsZero()
}

// Period returns the window instance containing now. It is recomputed from the
// given time on every call, so a month boundary is never missed.
func (w Window) Period(now time.Time) Period {
	switch w {
	case CalendarMonth:
		now = now.UTC()
		start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
		return Period{Start: start, End: start.AddDate(0, 1, 0)}
	default:
		return Period{Start: lifetimeStart}
	}
}

func (w Window) String() string {
	switch w {
	case Lifetime:
		return "lifetime"
	case CalendarMonth:
		return "calendar_month"
	default:
		return fmt.Sprintf("window(%d)", int(w))
	}
}
