package datasets

import (
	"context"
	"fmt"
	"time"

	"github.com/haitaton/gis-material-update/internal/core"
	"github.com/haitaton/gis-material-update/internal/geo"
	"github.com/haitaton/gis-material-update/internal/logging"
	"github.com/haitaton/gis-material-update/internal/transit"
	"github.com/paulsmith/gogeos/geos"
)

// excludedBusRouteTypes are route types operated by something other than
// buses: 0 trams, 1 subway, 4 Suomenlinna ferries, 109 trains.
var excludedBusRouteTypes = map[int]bool{0: true, 1: true, 4: true, 109: true}

func init() {
	registerHSL()
}

func registerHSL() {
	core.Register(core.DatasetDefinition{
		Info: core.DatasetInfo{
			Key:   "hsl",
			Group: "transit",
			Label: "HSL bus lines",
		},
		New:     newHSLBuses,
		Tormays: tormays("hsl"),
	})
}

type hslBuses struct {
	base
	schedule *transit.Schedule
	area     *geos.Geometry

	lines *geo.Collection
	polys *geo.Collection
}

func newHSLBuses(env core.Env) (core.Processor, error) {
	b, err := newBase(env, "hsl")
	if err != nil {
		return nil, err
	}
	area, err := b.cityArea()
	if err != nil {
		return nil, err
	}
	path, err := b.cfg.LocalFile(b.key)
	if err != nil {
		return nil, err
	}
	schedule, err := transit.LoadFeed(path, b.ds.ValidateGTFS)
	if err != nil {
		return nil, err
	}
	return &hslBuses{base: b, schedule: schedule, area: area}, nil
}

func (p *hslBuses) Process(ctx context.Context) error {
	log := logging.FromContext(ctx)

	buffer, err := p.singleBuffer()
	if err != nil {
		return err
	}

	week, err := p.schedule.Week(p.ds.WeekOfTransit)
	if err != nil {
		return err
	}
	day, err := transit.TransitDay(week, transit.DefaultTransitDay)
	if err != nil {
		return err
	}
	log.Info("transit week selected",
		"week", p.ds.WeekOfTransit,
		"from", transit.FormatDate(week[0]),
		"to", transit.FormatDate(week[len(week)-1]),
		"day", transit.FormatDate(day),
	)

	lines := busLines(ctx, p.schedule, week, day)
	if lines, err = lines.Reproject(p.srid); err != nil {
		return err
	}
	if lines, err = lines.FilterIntersecting(p.area); err != nil {
		return fmt.Errorf("filter by city area: %w", err)
	}

	polys, err := lines.Buffer(buffer)
	if err != nil {
		return fmt.Errorf("buffer: %w", err)
	}

	p.lines, p.polys = lines, polys
	logResult(ctx, "bus_lines", lines)
	logResult(ctx, "bus_line_polys", polys)
	return nil
}

// busLines builds one WGS84 line per bus shape operated during week. Rush
// hour values are counted on day.
func busLines(ctx context.Context, s *transit.Schedule, week []time.Time, day time.Time) *geo.Collection {
	c := geo.NewCollection(geo.WGS84, fieldRouteID, fieldDirectionID, fieldRushHour, fieldTrunk)
	for _, svc := range s.WeekShapes(week, day) {
		if excludedBusRouteTypes[svc.RouteType] {
			continue
		}
		line, err := s.ShapeLine(svc.ShapeID)
		if err != nil {
			logging.FromContext(ctx).Warn("shape skipped", "shape_id", svc.ShapeID, "error", err)
			continue
		}
		c.Add(line, map[string]any{
			fieldRouteID.Name:     svc.RouteID,
			fieldDirectionID.Name: int64(svc.DirectionID),
			fieldRushHour.Name:    int64(svc.RushHour),
			fieldTrunk.Name:       transit.TrunkClass(svc.RouteID),
		})
	}
	return c
}

func (p *hslBuses) PersistToDatabase(ctx context.Context, store *core.Store) error {
	if err := replace(ctx, store, "bus_lines", p.lines); err != nil {
		return err
	}
	if err := replace(ctx, store, "bus_line_polys", p.polys); err != nil {
		return err
	}
	return p.replaceTemp(ctx, store, p.polys)
}

func (p *hslBuses) SaveToFile() error {
	if err := p.saveTarget(p.lines); err != nil {
		return err
	}
	return p.saveTargetBuffer(p.polys)
}
