package aggregator

import (
	"time"

	"github.com/scmhub/calendar"

	"option-observer/src/logger"
	"option-observer/src/models"
)

// -----------------------------------------------------------------------------
// TradingWindow decides when the hourly snapshot schedule is allowed to
// write: trading days per the exchange calendar (holiday-aware when the MIC
// is known to scmhub/calendar), within the configured snapshot hours plus a
// grace tail after close.
// -----------------------------------------------------------------------------

type TradingWindow struct {
	Calendar *calendar.Calendar
	Fallback bool
	Timezone *time.Location

	snapStartHour int
	snapEndHour   int
	graceMinutes  int
}

// -----------------------------------------------------------------------------

func NewTradingWindow(session models.MSessionConfig, log *logger.Logger) *TradingWindow {
	loc, err := time.LoadLocation(session.Timezone)
	if err != nil {
		log.Warning("Unknown timezone %q, falling back to UTC", session.Timezone)
		loc = time.UTC
	}

	tw := &TradingWindow{
		Timezone:      loc,
		snapStartHour: session.SnapshotStart,
		snapEndHour:   session.SnapshotEnd,
		graceMinutes:  session.GraceMinutes,
	}
	if tw.snapEndHour == 0 {
		tw.snapStartHour, tw.snapEndHour = 9, 15
	}
	if tw.graceMinutes == 0 {
		tw.graceMinutes = 30
	}

	mic := session.MarketMIC
	if mic == "" {
		mic = "xbom"
	}
	cal := calendar.GetCalendar(mic)
	if cal == nil {
		log.Warning("No exchange calendar for MIC %q. Using weekday fallback in %s.",
			mic, loc.String())
		tw.Fallback = true
		return tw
	}

	tw.Calendar = cal
	return tw
}

// -----------------------------------------------------------------------------

func (tw *TradingWindow) IsTradingDay(date time.Time) bool {
	date = date.In(tw.Timezone)

	if tw.Fallback {
		weekday := date.Weekday()
		return weekday != time.Saturday && weekday != time.Sunday
	}
	return tw.Calendar.IsBusinessDay(date)
}

// -----------------------------------------------------------------------------

// InWindow reports whether the schedule may flush at t: a trading day, within
// the snapshot hours extended by the grace tail.
func (tw *TradingWindow) InWindow(t time.Time) bool {
	if !tw.IsTradingDay(t) {
		return false
	}

	local := t.In(tw.Timezone)
	minutes := local.Hour()*60 + local.Minute()

	start := tw.snapStartHour * 60
	end := tw.snapEndHour*60 + tw.graceMinutes
	return minutes >= start && minutes <= end
}
