package domain

import "time"

const DefaultRefundNoticeDays = 3

// Holidays is a set of bank holiday dates keyed by YYYY-MM-DD.
type Holidays map[string]struct{}

func NewHolidays(days ...time.Time) Holidays {
	h := make(Holidays, len(days))
	for _, d := range days {
		h[d.Format(time.DateOnly)] = struct{}{}
	}
	return h
}

func (h Holidays) Contains(d time.Time) bool {
	_, ok := h[d.Format(time.DateOnly)]
	return ok
}

func IsWorkingDay(d time.Time, holidays Holidays) bool {
	switch d.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	return !holidays.Contains(d)
}

// RefundDeadline is the last date a candidate can cancel for a refund: noticeDays
// clear working days before the test date, counted on the remit's calendar.
func RefundDeadline(testDate time.Time, holidays Holidays, noticeDays int) time.Time {
	if noticeDays <= 0 {
		noticeDays = DefaultRefundNoticeDays
	}
	d := time.Date(testDate.Year(), testDate.Month(), testDate.Day(), 0, 0, 0, 0, time.UTC)
	for counted := 0; counted < noticeDays; {
		d = d.AddDate(0, 0, -1)
		if IsWorkingDay(d, holidays) {
			counted++
		}
	}
	return d
}
