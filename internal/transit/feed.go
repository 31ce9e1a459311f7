// Package transit derives per-shape service figures from a GTFS schedule:
// which shapes are operated in a given week, how many departures they carry
// in the busiest rush-hour window of a day and which routes are trunk lines.
package transit

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/patrickbr/gtfsparser"
	"github.com/patrickbr/gtfsparser/gtfs"
)

// ErrFeedNotFound is returned when the GTFS archive does not exist.
var ErrFeedNotFound = errors.New("gtfs feed not found")

// Service is a calendar row. Days is indexed by time.Weekday.
type Service struct {
	ID    string
	Days  [7]bool
	Start time.Time
	End   time.Time
}

// Route is a GTFS route with its route_type.
type Route struct {
	ID   string
	Type int
}

// Trip is a GTFS trip reduced to the fields used here. Departure is the
// departure time of the first stop; HasDeparture is false when the trip has
// no timed stops.
type Trip struct {
	ID           string
	RouteID      string
	ServiceID    string
	ShapeID      string
	DirectionID  int
	Departure    Time
	NextDay      bool
	HasDeparture bool
}

// ShapePoint is one vertex of a shape in WGS84.
type ShapePoint struct {
	Lat      float64
	Lon      float64
	Sequence int
}

// Schedule is the part of a feed the processors work on. Trips are ordered by
// trip id and shape points by sequence.
type Schedule struct {
	Services map[string]Service
	Routes   map[string]Route
	Trips    []Trip
	Shapes   map[string][]ShapePoint
}

// LoadFeed parses the GTFS archive or directory at path. A strict load fails
// on the first erroneous row; otherwise erroneous values fall back to
// defaults and broken rows are dropped.
func LoadFeed(path string, strict bool) (*Schedule, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrFeedNotFound, path)
		}
		return nil, err
	}

	feed := gtfsparser.NewFeed()
	feed.SetParseOpts(gtfsparser.ParseOptions{
		UseDefValueOnError: !strict,
		DropErroneous:      !strict,
	})
	if err := feed.Parse(path); err != nil {
		return nil, fmt.Errorf("parse gtfs %s: %w", path, err)
	}
	return FromFeed(feed), nil
}

// FromFeed converts a parsed feed. Services without a calendar date range
// are skipped.
func FromFeed(feed *gtfsparser.Feed) *Schedule {
	s := &Schedule{
		Services: make(map[string]Service, len(feed.Services)),
		Routes:   make(map[string]Route, len(feed.Routes)),
		Shapes:   make(map[string][]ShapePoint, len(feed.Shapes)),
	}

	for id, svc := range feed.Services {
		if svc.Start_date.Year == 0 || svc.End_date.Year == 0 {
			continue
		}
		s.Services[id] = Service{
			ID:    id,
			Days:  svc.Daymap,
			Start: fromGTFSDate(svc.Start_date),
			End:   fromGTFSDate(svc.End_date),
		}
	}

	for id, r := range feed.Routes {
		s.Routes[id] = Route{ID: id, Type: int(r.Type)}
	}

	for id, sh := range feed.Shapes {
		pts := make([]ShapePoint, 0, len(sh.Points))
		for _, p := range sh.Points {
			pts = append(pts, ShapePoint{Lat: float64(p.Lat), Lon: float64(p.Lon), Sequence: int(p.Sequence)})
		}
		s.Shapes[id] = sortPoints(pts)
	}

	s.Trips = make([]Trip, 0, len(feed.Trips))
	for id, t := range feed.Trips {
		trip := Trip{ID: id, DirectionID: int(t.Direction_id)}
		if t.Route != nil {
			trip.RouteID = t.Route.Id
		}
		if t.Service != nil {
			trip.ServiceID = t.Service.Id
		}
		if t.Shape != nil {
			trip.ShapeID = t.Shape.Id
		}
		if len(t.StopTimes) > 0 && t.StopTimes[0].Departure_time.Hour >= 0 {
			trip.Departure, trip.NextDay = FromGTFSTime(t.StopTimes[0].Departure_time)
			trip.HasDeparture = true
		}
		s.Trips = append(s.Trips, trip)
	}
	sortTrips(s.Trips)

	return s
}

func fromGTFSDate(d gtfs.Date) time.Time {
	return time.Date(int(d.Year), time.Month(d.Month), int(d.Day), 0, 0, 0, 0, time.UTC)
}

func sortTrips(trips []Trip) {
	sort.Slice(trips, func(i, j int) bool { return trips[i].ID < trips[j].ID })
}

func sortPoints(pts []ShapePoint) []ShapePoint {
	sort.SliceStable(pts, func(i, j int) bool { return pts[i].Sequence < pts[j].Sequence })
	return pts
}
