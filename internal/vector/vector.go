// Package vector reads source GIS layers in the formats the datasets are
// delivered in: GeoPackage, ESRI Shapefile and GeoJSON.
package vector

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/haitaton/gis-material-update/internal/geo"
	"github.com/haitaton/gis-material-update/internal/gpkg"
)

// ErrSourceNotFound is returned when a source file does not exist.
var ErrSourceNotFound = errors.New("source file not found")

// ReadLayer reads a layer from path. GeoJSON without a crs member is WGS84.
// Shapefiles and GeoPackage layers without CRS metadata are assigned
// defaultSRID. Features with a missing or empty geometry are dropped.
func ReadLayer(path, layer string, defaultSRID int) (*geo.Collection, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrSourceNotFound, path)
		}
		return nil, err
	}

	var (
		c   *geo.Collection
		err error
	)
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".gpkg":
		c, err = gpkg.Read(path, layer)
	case ".shp":
		c, err = readShapefile(path, defaultSRID)
	case ".geojson", ".json":
		c, err = readGeoJSON(path)
	default:
		return nil, fmt.Errorf("unsupported vector format %q: %s", ext, path)
	}
	if err != nil {
		return nil, err
	}
	if c.SRID <= 0 {
		c.SRID = defaultSRID
	}
	return c.DropEmpty(), nil
}
