package transit

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/patrickbr/gtfsparser/gtfs"
)

var ErrInvalidTime = errors.New("invalid gtfs time")

// Time is a time of day.
type Time struct {
	Hour   int
	Minute int
	Second int
}

// Seconds returns the number of seconds since midnight.
func (t Time) Seconds() int {
	return t.Hour*3600 + t.Minute*60 + t.Second
}

func (t Time) String() string {
	return fmt.Sprintf("%02d:%02d:%02d", t.Hour, t.Minute, t.Second)
}

// ParseTime parses an H:MM:SS GTFS time. Hours past 23 belong to the next
// service day: "26:00:01" is 02:00:01 with nextDay set.
func ParseTime(s string) (t Time, nextDay bool, err error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 3 {
		return Time{}, false, fmt.Errorf("%w: %q", ErrInvalidTime, s)
	}
	var v [3]int
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return Time{}, false, fmt.Errorf("%w: %q", ErrInvalidTime, s)
		}
		v[i] = n
	}
	if v[1] > 59 || v[2] > 59 {
		return Time{}, false, fmt.Errorf("%w: %q", ErrInvalidTime, s)
	}
	t, nextDay = normalize(v[0], v[1], v[2])
	return t, nextDay, nil
}

// FromGTFSTime converts a parsed GTFS time the same way as ParseTime.
func FromGTFSTime(t gtfs.Time) (Time, bool) {
	return normalize(int(t.Hour), int(t.Minute), int(t.Second))
}

func normalize(h, m, s int) (Time, bool) {
	next := false
	if h > 23 {
		h %= 24
		next = true
	}
	return Time{Hour: h, Minute: m, Second: s}, next
}

// Window is a one hour rush-hour window. Start is inclusive, End exclusive.
type Window struct {
	Label string
	Start Time
	End   Time
}

// Contains reports whether t falls in [Start, End).
func (w Window) Contains(t Time) bool {
	return w.Start.Seconds() <= t.Seconds() && t.Seconds() < w.End.Seconds()
}

// RushHours returns the 26 rush-hour windows: 13 morning windows starting
// 06:00..09:00 and 13 evening windows starting 15:00..18:00, each one hour
// long and 15 minutes apart. Labels are n_HHMM of the window start.
func RushHours() []Window {
	var ws []Window
	for _, first := range []int{6, 15} {
		for i := 0; i < 13; i++ {
			h, m := first+i/4, (i%4)*15
			ws = append(ws, Window{
				Label: fmt.Sprintf("n_%02d%02d", h, m),
				Start: Time{Hour: h, Minute: m},
				End:   Time{Hour: h + 1, Minute: m},
			})
		}
	}
	return ws
}

// RushHourByShape counts, for each shape, the departures starting in each
// rush-hour window and returns the largest window count. Trips without a
// shape or a departure time are ignored. Times past midnight are compared by
// their time of day.
func RushHourByShape(trips []Trip) map[string]int {
	windows := RushHours()
	counts := map[string][]int{}
	for _, t := range trips {
		if t.ShapeID == "" || !t.HasDeparture {
			continue
		}
		c, ok := counts[t.ShapeID]
		if !ok {
			c = make([]int, len(windows))
			counts[t.ShapeID] = c
		}
		for i, w := range windows {
			if w.Contains(t.Departure) {
				c[i]++
			}
		}
	}

	out := make(map[string]int, len(counts))
	for shape, c := range counts {
		max := 0
		for _, n := range c {
			if n > max {
				max = n
			}
		}
		out[shape] = max
	}
	return out
}
