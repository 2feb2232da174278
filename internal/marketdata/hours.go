package marketdata

import (
	"time"

	"github.com/shivammacoss/thefx.liv-sub001/internal/types"
)

// Hours answers whether market orders may execute in a segment right now.
// The engine consults it for market-type orders only; resting orders may be
// placed at any time.
type Hours interface {
	IsTradingAllowed(segment types.Segment) bool
}

// window is a daily trading window in exchange-local wall time.
type window struct {
	openHour, openMin   int
	closeHour, closeMin int
}

// Schedule is a fixed weekday schedule per segment. Crypto trades around the
// clock; everything else follows the exchange session.
type Schedule struct {
	loc     *time.Location
	windows map[types.Segment]window
	now     func() time.Time
}

// NewSchedule builds the default session table in the given location.
func NewSchedule(loc *time.Location) *Schedule {
	if loc == nil {
		loc = time.UTC
	}
	return &Schedule{
		loc: loc,
		windows: map[types.Segment]window{
			types.SegmentEquity:    {9, 15, 15, 30},
			types.SegmentFutures:   {9, 15, 15, 30},
			types.SegmentOptions:   {9, 15, 15, 30},
			types.SegmentCommodity: {9, 0, 23, 30},
		},
		now: time.Now,
	}
}

func (s *Schedule) IsTradingAllowed(segment types.Segment) bool {
	if segment == types.SegmentCrypto {
		return true
	}
	w, ok := s.windows[segment]
	if !ok {
		return false
	}
	now := s.now().In(s.loc)
	if wd := now.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return false
	}
	open := time.Date(now.Year(), now.Month(), now.Day(), w.openHour, w.openMin, 0, 0, s.loc)
	close := time.Date(now.Year(), now.Month(), now.Day(), w.closeHour, w.closeMin, 0, 0, s.loc)
	return !now.Before(open) && !now.After(close)
}

// AlwaysOpen is an Hours oracle that never gates, used in tests and when
// trading outside market hours is explicitly allowed.
type AlwaysOpen struct{}

func (AlwaysOpen) IsTradingAllowed(types.Segment) bool { return true }
