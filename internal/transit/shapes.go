package transit

import (
	"fmt"

	"github.com/paulsmith/gogeos/geos"
)

// ShapeLine builds the WGS84 linestring (lon, lat) of a shape.
func (s *Schedule) ShapeLine(shapeID string) (*geos.Geometry, error) {
	pts := s.Shapes[shapeID]
	if len(pts) < 2 {
		return nil, fmt.Errorf("shape %q has %d points, need at least 2", shapeID, len(pts))
	}

	coords := make([]geos.Coord, len(pts))
	for i, p := range pts {
		coords[i] = geos.NewCoord(p.Lon, p.Lat)
	}
	return geos.NewLineString(coords...)
}

// ShapeLines builds the lines of the given shapes, keyed by shape id.
func (s *Schedule) ShapeLines(shapeIDs []string) (map[string]*geos.Geometry, error) {
	out := make(map[string]*geos.Geometry, len(shapeIDs))
	for _, id := range shapeIDs {
		if _, ok := out[id]; ok {
			continue
		}
		g, err := s.ShapeLine(id)
		if err != nil {
			return nil, err
		}
		out[id] = g
	}
	return out, nil
}
