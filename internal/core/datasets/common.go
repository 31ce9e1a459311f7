package datasets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/haitaton/gis-material-update/internal/config"
	"github.com/haitaton/gis-material-update/internal/core"
	"github.com/haitaton/gis-material-update/internal/geo"
	"github.com/haitaton/gis-material-update/internal/gpkg"
	"github.com/haitaton/gis-material-update/internal/logging"
	"github.com/haitaton/gis-material-update/internal/vector"
	"github.com/paulsmith/gogeos/geos"
)

var (
	// ErrBufferCount is returned when a dataset is configured with the wrong
	// number of buffer distances.
	ErrBufferCount = errors.New("unexpected number of buffer values")

	// ErrNotProcessed is returned when results are written before Process.
	ErrNotProcessed = errors.New("dataset not processed")
)

// cityArea names the config section of the Helsinki city area polygon.
const cityArea = "hki"

// Field definitions shared by several datasets.
var (
	fieldRouteID     = geo.Field{Name: "route_id", Type: geo.FieldText}
	fieldDirectionID = geo.Field{Name: "direction_id", Type: geo.FieldInteger}
	fieldRushHour    = geo.Field{Name: "rush_hour", Type: geo.FieldInteger}
	fieldTrunk       = geo.Field{Name: "trunk", Type: geo.FieldText}
	fieldLines       = geo.Field{Name: "lines", Type: geo.FieldInteger}
	fieldInfra       = geo.Field{Name: "infra", Type: geo.FieldInteger}
)

// base holds what every processor needs from the configuration.
type base struct {
	key  string
	cfg  *config.Config
	ds   config.DatasetConfig
	srid int
}

func newBase(env core.Env, key string) (base, error) {
	ds, err := env.Config.Dataset(key)
	if err != nil {
		return base{}, err
	}
	srid, err := geo.ParseCRS(env.Config.Common.CRS)
	if err != nil {
		return base{}, err
	}
	if !geo.Supported(srid) {
		return base{}, fmt.Errorf("unsupported crs %s", env.Config.Common.CRS)
	}
	return base{key: key, cfg: env.Config, ds: ds, srid: srid}, nil
}

// singleBuffer returns the only configured buffer distance.
func (b base) singleBuffer() (float64, error) {
	if len(b.ds.Buffer) != 1 {
		return 0, fmt.Errorf("%w: %s has %d, want 1", ErrBufferCount, b.key, len(b.ds.Buffer))
	}
	return b.ds.Buffer[0], nil
}

// readSource reads the dataset's own local file in the target CRS.
func (b base) readSource() (*geo.Collection, error) {
	path, err := b.cfg.LocalFile(b.key)
	if err != nil {
		return nil, err
	}
	return readLayer(path, b.ds.Layer, b.srid)
}

// readOutput reads a file written by another dataset in the target CRS.
func (b base) readOutput(path string) (*geo.Collection, error) {
	return readLayer(path, "", b.srid)
}

// cityArea returns the union of the city area polygons in the target CRS.
func (b base) cityArea() (*geos.Geometry, error) {
	path, err := b.cfg.LocalFile(cityArea)
	if err != nil {
		return nil, fmt.Errorf("city area: %w", err)
	}
	c, err := readLayer(path, b.cfg.Datasets[cityArea].Layer, b.srid)
	if err != nil {
		return nil, fmt.Errorf("city area: %w", err)
	}
	return c.UnionAll()
}

// readLayer reads path and reprojects it to srid. Layers without CRS
// metadata are taken to be in srid already.
func readLayer(path, layer string, srid int) (*geo.Collection, error) {
	c, err := vector.ReadLayer(path, layer, srid)
	if err != nil {
		return nil, err
	}
	if c.SRID == srid {
		return c, nil
	}
	return c.Reproject(srid)
}

// replace writes c to table, replacing any previous contents.
func replace(ctx context.Context, store *core.Store, table string, c *geo.Collection) error {
	if c == nil {
		return ErrNotProcessed
	}
	if _, err := store.ReplaceTable(ctx, table, c); err != nil {
		return err
	}
	return nil
}

// replaceTemp writes c to the dataset's staging table when one is
// configured.
func (b base) replaceTemp(ctx context.Context, store *core.Store, c *geo.Collection) error {
	if b.ds.TormaysTableTemp == "" {
		return nil
	}
	return replace(ctx, store, b.ds.TormaysTableTemp, c)
}

// saveTarget writes c to the dataset's target file.
func (b base) saveTarget(c *geo.Collection) error {
	path, err := b.cfg.TargetFile(b.key)
	if err != nil {
		return err
	}
	return save(path, c)
}

// saveTargetBuffer writes c to the dataset's polygon target file.
func (b base) saveTargetBuffer(c *geo.Collection) error {
	path, err := b.cfg.TargetBufferFile(b.key)
	if err != nil {
		return err
	}
	return save(path, c)
}

// save writes c as a GeoPackage whose layer is named after the file.
func save(path string, c *geo.Collection) error {
	if c == nil {
		return ErrNotProcessed
	}
	layer := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if err := gpkg.Write(path, layer, c); err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	return nil
}

// requireFile fails with ErrSourceNotFound when path does not exist.
func requireFile(path, what string) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("%w: %s %s", vector.ErrSourceNotFound, what, path)
	}
	return nil
}

// logResult reports the shape of a result collection.
func logResult(ctx context.Context, name string, c *geo.Collection) {
	types, err := c.GeometryTypes()
	if err != nil {
		logging.FromContext(ctx).Warn("inspect result", "result", name, "error", err)
		return
	}
	logging.FromContext(ctx).Info("result ready",
		"result", name,
		"features", c.Len(),
		"geometry_types", strings.Join(types, ","),
		"srid", c.SRID,
	)
}

// tormays returns the Tormays function of dataset key.
func tormays(key string) func(*config.Config) []core.TormaysTarget {
	return func(cfg *config.Config) []core.TormaysTarget {
		return core.TormaysTargets(cfg, key)
	}
}

// stringProp returns the string value of a property, or "".
func stringProp(props map[string]any, name string) string {
	s, _ := props[name].(string)
	return s
}
