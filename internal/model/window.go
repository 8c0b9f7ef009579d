package model

import (
	"fmt"
	"time"
	// The binary runs on hosts without a zoneinfo database (serverless
	// images, scratch containers), so the NZ zone is embedded.
	_ "time/tzdata"
)

// ReportZone is the merchant's local timezone. The reporting day is always
// a calendar day in this zone, regardless of where the job runs.
const ReportZone = "Pacific/Auckland"

const dateLabelFormat = "2006-01-02"

// TimeWindow is one calendar day in the merchant's local timezone,
// expressed as UTC instants at the boundary.
type TimeWindow struct {
	From  time.Time // start of local day, UTC
	To    time.Time // end of local day (23:59:59.999 local), UTC
	Label string    // local date, YYYY-MM-DD
}

// DayWindow returns the local-day window containing the given instant.
func DayWindow(at time.Time) (TimeWindow, error) {
	loc, err := time.LoadLocation(ReportZone)
	if err != nil {
		return TimeWindow{}, fmt.Errorf("loading zone %s: %w", ReportZone, err)
	}

	local := at.In(loc)
	y, m, d := local.Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, loc)
	end := time.Date(y, m, d, 23, 59, 59, 999_000_000, loc)

	return TimeWindow{
		From:  start.UTC(),
		To:    end.UTC(),
		Label: local.Format(dateLabelFormat),
	}, nil
}

// WindowBetween builds a window from explicit UTC boundaries, used when the
// caller overrides the default local-day window.
func WindowBetween(from, to time.Time) (TimeWindow, error) {
	if to.Before(from) {
		return TimeWindow{}, fmt.Errorf("window to %s precedes from %s", to, from)
	}
	loc, err := time.LoadLocation(ReportZone)
	if err != nil {
		return TimeWindow{}, fmt.Errorf("loading zone %s: %w", ReportZone, err)
	}
	return TimeWindow{
		From:  from.UTC(),
		To:    to.UTC(),
		Label: from.In(loc).Format(dateLabelFormat),
	}, nil
}

// Local converts an instant into the reporting timezone. A zero instant is
// returned unchanged so callers can keep "unknown time" semantics.
func Local(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	loc, err := time.LoadLocation(ReportZone)
	if err != nil {
		return t
	}
	return t.In(loc)
}
