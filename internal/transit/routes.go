package transit

import (
	"regexp"
	"sort"
	"time"
)

// Trunk classes.
const (
	TrunkYes    = "yes"
	TrunkAlmost = "almost"
	TrunkNo     = "no"
)

var trunkPatterns = []struct {
	re    *regexp.Regexp
	class string
}{
	{regexp.MustCompile(`^1500`), TrunkYes},
	{regexp.MustCompile(`^2200`), TrunkYes},
	{regexp.MustCompile(`^2510`), TrunkYes},
	{regexp.MustCompile(`^2550`), TrunkYes},
	{regexp.MustCompile(`^4560`), TrunkYes},
	{regexp.MustCompile(`^1018`), TrunkAlmost},
	{regexp.MustCompile(`^1039`), TrunkAlmost},
	{regexp.MustCompile(`^1040`), TrunkAlmost},
}

// TrunkClass classifies a route id. The first matching prefix wins.
func TrunkClass(routeID string) string {
	for _, p := range trunkPatterns {
		if p.re.MatchString(routeID) {
			return p.class
		}
	}
	return TrunkNo
}

// ShapeService is a shape operated during a week, described by the first
// trip that runs it.
type ShapeService struct {
	ShapeID     string
	RouteID     string
	RouteType   int
	DirectionID int
	RushHour    int
}

// WeekShapes returns the shapes run by any service active during week, in
// shape id order. Each shape carries the route and direction of its first
// trip (lowest trip id) and the rush-hour departure maximum of day, which is
// zero when the shape has no departures that day. Shapes without points or
// whose route is unknown are skipped.
func (s *Schedule) WeekShapes(week []time.Time, day time.Time) []ShapeService {
	if len(week) == 0 {
		return nil
	}
	weekTrips := s.TripsForServices(s.ServiceIDsForRange(week[0], week[len(week)-1]))
	rush := RushHourByShape(s.TripsForServices(s.ServiceIDsForDay(day)))

	seen := map[string]bool{}
	var out []ShapeService
	for _, t := range weekTrips {
		if t.ShapeID == "" || seen[t.ShapeID] {
			continue
		}
		seen[t.ShapeID] = true
		if len(s.Shapes[t.ShapeID]) == 0 {
			continue
		}
		r, ok := s.Routes[t.RouteID]
		if !ok {
			continue
		}
		out = append(out, ShapeService{
			ShapeID:     t.ShapeID,
			RouteID:     t.RouteID,
			RouteType:   r.Type,
			DirectionID: t.DirectionID,
			RushHour:    rush[t.ShapeID],
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ShapeID < out[j].ShapeID })
	return out
}

// Variant is a distinct (shape, direction, route) combination.
type Variant struct {
	ShapeID     string
	DirectionID int
	RouteID     string
}

// Variants returns the distinct (shape, direction, route) combinations of
// trips on routes of the given types, ordered by route id. Trips without a
// shape are skipped.
func (s *Schedule) Variants(routeTypes ...int) []Variant {
	types := make(map[int]bool, len(routeTypes))
	for _, t := range routeTypes {
		types[t] = true
	}

	seen := map[Variant]bool{}
	var out []Variant
	for _, t := range s.Trips {
		if t.ShapeID == "" {
			continue
		}
		r, ok := s.Routes[t.RouteID]
		if !ok || !types[r.Type] {
			continue
		}
		v := Variant{ShapeID: t.ShapeID, DirectionID: t.DirectionID, RouteID: t.RouteID}
		if seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.RouteID != b.RouteID {
			return a.RouteID < b.RouteID
		}
		if a.ShapeID != b.ShapeID {
			return a.ShapeID < b.ShapeID
		}
		return a.DirectionID < b.DirectionID
	})
	return out
}
