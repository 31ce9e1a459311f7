package transit

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// DateLayout is the GTFS date format.
const DateLayout = "20060102"

// DefaultTransitDay selects Tuesday from a Monday..Sunday week.
const DefaultTransitDay = 1

var (
	ErrNoTransitWeek = errors.New("feed has no such transit week")
	ErrInvalidDate   = errors.New("invalid gtfs date")
)

// ParseDate parses a YYYYMMDD date.
func ParseDate(s string) (time.Time, error) {
	d, err := time.ParseInLocation(DateLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return d, nil
}

// FormatDate formats d as YYYYMMDD.
func FormatDate(d time.Time) string {
	return d.Format(DateLayout)
}

// Overlaps reports whether the inclusive date ranges [aStart, aEnd] and
// [bStart, bEnd], given as YYYYMMDD strings, share at least one day.
func Overlaps(aStart, aEnd, bStart, bEnd string) (bool, error) {
	var ds [4]time.Time
	for i, s := range []string{aStart, aEnd, bStart, bEnd} {
		d, err := ParseDate(s)
		if err != nil {
			return false, err
		}
		ds[i] = d
	}
	return overlaps(ds[0], ds[1], ds[2], ds[3]), nil
}

func overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	lo := aStart
	if bStart.After(lo) {
		lo = bStart
	}
	hi := aEnd
	if bEnd.Before(hi) {
		hi = bEnd
	}
	return !hi.Before(lo)
}

// FeedDates returns every day from the earliest service start to the latest
// service end.
func (s *Schedule) FeedDates() []time.Time {
	var first, last time.Time
	for _, svc := range s.Services {
		if first.IsZero() || svc.Start.Before(first) {
			first = svc.Start
		}
		if last.IsZero() || svc.End.After(last) {
			last = svc.End
		}
	}
	if first.IsZero() || last.Before(first) {
		return nil
	}

	var dates []time.Time
	for d := first; !d.After(last); d = d.AddDate(0, 0, 1) {
		dates = append(dates, d)
	}
	return dates
}

// Week returns the k-th Monday..Sunday week (k >= 1) of the feed period. A
// week cut short by the end of the feed is returned partially.
func (s *Schedule) Week(k int) ([]time.Time, error) {
	if k < 1 {
		return nil, fmt.Errorf("%w: week %d", ErrNoTransitWeek, k)
	}
	dates := s.FeedDates()

	monday := -1
	for i, d := range dates {
		if d.Weekday() == time.Monday {
			monday = i
			break
		}
	}
	if monday < 0 {
		return nil, fmt.Errorf("%w: feed period has no monday", ErrNoTransitWeek)
	}

	start := monday + (k-1)*7
	if start >= len(dates) {
		return nil, fmt.Errorf("%w: week %d is past the feed end", ErrNoTransitWeek, k)
	}
	end := start + 7
	if end > len(dates) {
		end = len(dates)
	}
	return dates[start:end], nil
}

// TransitDay picks day sel (0 = Monday) from week. Selections past Sunday
// wrap around.
func TransitDay(week []time.Time, sel int) (time.Time, error) {
	if sel < 0 {
		return time.Time{}, fmt.Errorf("invalid transit day %d", sel)
	}
	sel %= 7
	if sel >= len(week) {
		return time.Time{}, fmt.Errorf("%w: day %d of a %d-day week", ErrNoTransitWeek, sel, len(week))
	}
	return week[sel], nil
}

// ServiceIDsForDay returns the services whose date range covers day and
// which run on its weekday. Exceptions in calendar_dates are not applied.
func (s *Schedule) ServiceIDsForDay(day time.Time) []string {
	var ids []string
	for id, svc := range s.Services {
		if overlaps(day, day, svc.Start, svc.End) && svc.Days[day.Weekday()] {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// ServiceIDsForRange returns the services whose date range overlaps
// [from, to], regardless of weekday.
func (s *Schedule) ServiceIDsForRange(from, to time.Time) []string {
	var ids []string
	for id, svc := range s.Services {
		if overlaps(from, to, svc.Start, svc.End) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// TripsForServices returns the trips run by any of the services, in trip id
// order.
func (s *Schedule) TripsForServices(serviceIDs []string) []Trip {
	set := make(map[string]bool, len(serviceIDs))
	for _, id := range serviceIDs {
		set[id] = true
	}
	var trips []Trip
	for _, t := range s.Trips {
		if set[t.ServiceID] {
			trips = append(trips, t)
		}
	}
	return trips
}
