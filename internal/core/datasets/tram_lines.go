package datasets

import (
	"context"
	"fmt"

	"github.com/haitaton/gis-material-update/internal/core"
	"github.com/haitaton/gis-material-update/internal/geo"
	"github.com/haitaton/gis-material-update/internal/logging"
	"github.com/haitaton/gis-material-update/internal/transit"
	"github.com/paulsmith/gogeos/geos"
)

// Tram route types: 0 tram, streetcar or light rail, 900 tram service.
var tramRouteTypes = []int{0, 900}

func init() {
	registerTramLines()
}

func registerTramLines() {
	core.Register(core.DatasetDefinition{
		Info: core.DatasetInfo{
			Key:   "tram_lines",
			Group: "transit",
			Label: "Tram lines",
		},
		New:     newTramLines,
		Tormays: tormays("tram_lines"),
	})
}

type tramLines struct {
	base
	schedule *transit.Schedule
	area     *geos.Geometry

	lines *geo.Collection
	polys *geo.Collection
}

func newTramLines(env core.Env) (core.Processor, error) {
	b, err := newBase(env, "tram_lines")
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
	return &tramLines{base: b, schedule: schedule, area: area}, nil
}

func (p *tramLines) Process(ctx context.Context) error {
	buffer, err := p.singleBuffer()
	if err != nil {
		return err
	}

	lines, err := tramVariantLines(ctx, p.schedule).Reproject(p.srid)
	if err != nil {
		return err
	}
	polys, err := lines.Buffer(buffer)
	if err != nil {
		return fmt.Errorf("buffer: %w", err)
	}
	if polys, err = polys.ClipTo(p.area); err != nil {
		return fmt.Errorf("clip to city area: %w", err)
	}

	p.lines, p.polys = lines, polys
	logResult(ctx, "tram_lines", lines)
	logResult(ctx, "tram_lines_polys", polys)
	return nil
}

// tramVariantLines builds one WGS84 line per tram route variant, each
// carrying lines = 1.
func tramVariantLines(ctx context.Context, s *transit.Schedule) *geo.Collection {
	c := geo.NewCollection(geo.WGS84, fieldLines)
	for _, v := range s.Variants(tramRouteTypes...) {
		line, err := s.ShapeLine(v.ShapeID)
		if err != nil {
			logging.FromContext(ctx).Warn("variant skipped", "route_id", v.RouteID, "shape_id", v.ShapeID, "error", err)
			continue
		}
		c.Add(line, map[string]any{fieldLines.Name: int64(1)})
	}
	return c
}

func (p *tramLines) PersistToDatabase(ctx context.Context, store *core.Store) error {
	if err := replace(ctx, store, "tram_lines", p.lines); err != nil {
		return err
	}
	if err := replace(ctx, store, "tram_lines_polys", p.polys); err != nil {
		return err
	}
	return p.replaceTemp(ctx, store, p.polys)
}

func (p *tramLines) SaveToFile() error {
	if err := p.saveTarget(p.lines); err != nil {
		return err
	}
	return p.saveTargetBuffer(p.polys)
}
