// Package gpkg reads and writes OGC GeoPackage vector layers. A GeoPackage is
// an SQLite database with a few metadata tables and geometries stored as a
// small header followed by WKB.
package gpkg

import (
	"bytes"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"runtime"
	"strings"

	"github.com/haitaton/gis-material-update/internal/geo"
	_ "github.com/mattn/go-sqlite3"
	"github.com/paulsmith/gogeos/geos"
)

const (
	applicationID = 0x47504B47 // "GPKG"
	userVersion   = 10200      // GeoPackage 1.2

	geometryColumn = "geom"
)

// ErrLayerNotFound is returned when a requested layer does not exist.
var ErrLayerNotFound = errors.New("layer not found")

var srsDefinitions = map[int]struct{ name, wkt string }{
	4326: {"WGS 84", `GEOGCS["WGS 84",DATUM["WGS_1984",SPHEROID["WGS 84",6378137,298.257223563]],PRIMEM["Greenwich",0],UNIT["degree",0.0174532925199433],AUTHORITY["EPSG","4326"]]`},
	3067: {"ETRS89 / TM35FIN(E,N)", `PROJCS["ETRS89 / TM35FIN(E,N)",GEOGCS["ETRS89",DATUM["European_Terrestrial_Reference_System_1989",SPHEROID["GRS 1980",6378137,298.257222101]],PRIMEM["Greenwich",0],UNIT["degree",0.0174532925199433]],PROJECTION["Transverse_Mercator"],PARAMETER["latitude_of_origin",0],PARAMETER["central_meridian",27],PARAMETER["scale_factor",0.9996],PARAMETER["false_easting",500000],PARAMETER["false_northing",0],UNIT["metre",1],AUTHORITY["EPSG","3067"]]`},
	3879: {"ETRS89 / GK25FIN", `PROJCS["ETRS89 / GK25FIN",GEOGCS["ETRS89",DATUM["European_Terrestrial_Reference_System_1989",SPHEROID["GRS 1980",6378137,298.257222101]],PRIMEM["Greenwich",0],UNIT["degree",0.0174532925199433]],PROJECTION["Transverse_Mercator"],PARAMETER["latitude_of_origin",0],PARAMETER["central_meridian",25],PARAMETER["scale_factor",1],PARAMETER["false_easting",25500000],PARAMETER["false_northing",0],UNIT["metre",1],AUTHORITY["EPSG","3879"]]`},
}

const metadataDDL = `
CREATE TABLE gpkg_spatial_ref_sys (
	srs_name TEXT NOT NULL,
	srs_id INTEGER PRIMARY KEY,
	organization TEXT NOT NULL,
	organization_coordsys_id INTEGER NOT NULL,
	definition TEXT NOT NULL,
	description TEXT
);
CREATE TABLE gpkg_contents (
	table_name TEXT NOT NULL PRIMARY KEY,
	data_type TEXT NOT NULL,
	identifier TEXT UNIQUE,
	description TEXT DEFAULT '',
	last_change DATETIME NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now')),
	min_x DOUBLE, min_y DOUBLE, max_x DOUBLE, max_y DOUBLE,
	srs_id INTEGER,
	CONSTRAINT fk_gc_r_srs_id FOREIGN KEY (srs_id) REFERENCES gpkg_spatial_ref_sys(srs_id)
);
CREATE TABLE gpkg_geometry_columns (
	table_name TEXT NOT NULL,
	column_name TEXT NOT NULL,
	geometry_type_name TEXT NOT NULL,
	srs_id INTEGER NOT NULL,
	z TINYINT NOT NULL,
	m TINYINT NOT NULL,
	CONSTRAINT pk_geom_cols PRIMARY KEY (table_name, column_name),
	CONSTRAINT fk_gc_tn FOREIGN KEY (table_name) REFERENCES gpkg_contents(table_name),
	CONSTRAINT fk_gc_srs FOREIGN KEY (srs_id) REFERENCES gpkg_spatial_ref_sys (srs_id)
);
INSERT INTO gpkg_spatial_ref_sys VALUES
	('Undefined cartesian SRS', -1, 'NONE', -1, 'undefined', 'undefined cartesian coordinate reference system'),
	('Undefined geographic SRS', 0, 'NONE', 0, 'undefined', 'undefined geographic coordinate reference system');
`

// Write creates path as a new GeoPackage holding c as the layer named
// layer. An existing file is replaced.
func Write(path, layer string, c *geo.Collection) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", path, err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer db.Close()

	if _, err := db.Exec(fmt.Sprintf("PRAGMA application_id = %d; PRAGMA user_version = %d", applicationID, userVersion)); err != nil {
		return fmt.Errorf("set pragmas: %w", err)
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(metadataDDL); err != nil {
		return fmt.Errorf("create metadata: %w", err)
	}

	if def, ok := srsDefinitions[c.SRID]; ok {
		if _, err := tx.Exec(`INSERT INTO gpkg_spatial_ref_sys VALUES (?, ?, 'EPSG', ?, ?, NULL)`,
			def.name, c.SRID, c.SRID, def.wkt); err != nil {
			return fmt.Errorf("insert srs: %w", err)
		}
	} else if c.SRID > 0 {
		if _, err := tx.Exec(`INSERT INTO gpkg_spatial_ref_sys VALUES (?, ?, 'EPSG', ?, 'undefined', NULL)`,
			fmt.Sprintf("EPSG:%d", c.SRID), c.SRID, c.SRID); err != nil {
			return fmt.Errorf("insert srs: %w", err)
		}
	}

	geomType, err := layerGeometryType(c)
	if err != nil {
		return err
	}

	cols := []string{"fid INTEGER PRIMARY KEY AUTOINCREMENT NOT NULL", quote(geometryColumn) + " " + geomType}
	names := []string{"fid", quote(geometryColumn)}
	for _, f := range c.Fields {
		cols = append(cols, quote(f.Name)+" "+sqliteType(f.Type))
		names = append(names, quote(f.Name))
	}
	if _, err := tx.Exec(fmt.Sprintf("CREATE TABLE %s (%s)", quote(layer), strings.Join(cols, ", "))); err != nil {
		return fmt.Errorf("create layer %s: %w", layer, err)
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(names)), ", ")
	stmt, err := tx.Prepare(fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", quote(layer), strings.Join(names, ", "), placeholders))
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	ext := emptyExtent()
	for _, f := range c.Features {
		blob, env, err := encodeGeometry(f.Geometry, c.SRID)
		if err != nil {
			return fmt.Errorf("feature %d: %w", f.FID, err)
		}
		ext.extend(env)

		args := []any{f.FID, blob}
		for _, fld := range c.Fields {
			args = append(args, f.Properties[fld.Name])
		}
		if _, err := stmt.Exec(args...); err != nil {
			return fmt.Errorf("insert feature %d: %w", f.FID, err)
		}
	}

	var minX, minY, maxX, maxY any
	if !ext.empty() {
		minX, minY, maxX, maxY = ext.minX, ext.minY, ext.maxX, ext.maxY
	}
	if _, err := tx.Exec(`INSERT INTO gpkg_contents (table_name, data_type, identifier, min_x, min_y, max_x, max_y, srs_id)
		VALUES (?, 'features', ?, ?, ?, ?, ?, ?)`, layer, layer, minX, minY, maxX, maxY, c.SRID); err != nil {
		return fmt.Errorf("insert contents: %w", err)
	}
	if _, err := tx.Exec(`INSERT INTO gpkg_geometry_columns VALUES (?, ?, ?, ?, 0, 0)`,
		layer, geometryColumn, geomType, c.SRID); err != nil {
		return fmt.Errorf("insert geometry column: %w", err)
	}

	return tx.Commit()
}

func quote(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func sqliteType(t geo.FieldType) string {
	switch t {
	case geo.FieldInteger:
		return "INTEGER"
	case geo.FieldReal:
		return "REAL"
	case geo.FieldBool:
		return "BOOLEAN"
	default:
		return "TEXT"
	}
}

// layerGeometryType returns the single geometry type of the layer, or
// GEOMETRY when features mix types.
func layerGeometryType(c *geo.Collection) (string, error) {
	types, err := c.GeometryTypes()
	if err != nil {
		return "", err
	}
	if len(types) == 1 {
		return strings.ToUpper(types[0]), nil
	}
	return "GEOMETRY", nil
}

type extent struct {
	minX, minY, maxX, maxY float64
}

func emptyExtent() extent {
	return extent{math.Inf(1), math.Inf(1), math.Inf(-1), math.Inf(-1)}
}

func (e extent) empty() bool {
	return e.minX > e.maxX
}

func (e *extent) extend(o extent) {
	if o.empty() {
		return
	}
	e.minX = math.Min(e.minX, o.minX)
	e.minY = math.Min(e.minY, o.minY)
	e.maxX = math.Max(e.maxX, o.maxX)
	e.maxY = math.Max(e.maxY, o.maxY)
}

func geometryExtent(g *geos.Geometry) (extent, error) {
	ext := emptyExtent()
	env, err := g.Envelope()
	if err != nil {
		return ext, err
	}
	if empty, err := env.IsEmpty(); err != nil || empty {
		return ext, err
	}

	t, err := env.Type()
	if err != nil {
		return ext, err
	}
	ring := env
	if t == geos.POLYGON {
		if ring, err = env.Shell(); err != nil {
			return ext, err
		}
	}
	coords, err := ring.Coords()
	if err != nil {
		return ext, err
	}
	for _, c := range coords {
		ext.extend(extent{c.X, c.Y, c.X, c.Y})
	}
	runtime.KeepAlive(env)
	return ext, nil
}

// encodeGeometry writes the GeoPackage binary form: magic, version, flags,
// srs id, an XY envelope and the WKB body, all little-endian.
func encodeGeometry(g *geos.Geometry, srid int) ([]byte, extent, error) {
	if g == nil {
		return nil, emptyExtent(), nil
	}

	wkb, err := g.ToWKB()
	if err != nil {
		return nil, emptyExtent(), err
	}
	ext, err := geometryExtent(g)
	if err != nil {
		return nil, ext, err
	}

	var buf bytes.Buffer
	flags := byte(0x01) // little-endian
	if ext.empty() {
		flags |= 0x10
	} else {
		flags |= 1 << 1 // envelope [minx, maxx, miny, maxy]
	}
	buf.Write([]byte{'G', 'P', 0, flags})
	binary.Write(&buf, binary.LittleEndian, int32(srid))
	if !ext.empty() {
		binary.Write(&buf, binary.LittleEndian, [4]float64{ext.minX, ext.maxX, ext.minY, ext.maxY})
	}
	buf.Write(wkb)
	return buf.Bytes(), ext, nil
}

// envelopeSizes maps the envelope indicator to its length in bytes.
var envelopeSizes = map[byte]int{0: 0, 1: 32, 2: 48, 3: 48, 4: 64}

// decodeGeometry parses a GeoPackage binary geometry and returns it with
// the srs id from its header.
func decodeGeometry(b []byte) (*geos.Geometry, int, error) {
	if len(b) < 8 || b[0] != 'G' || b[1] != 'P' {
		return nil, 0, errors.New("invalid geopackage geometry header")
	}
	flags := b[3]

	var order binary.ByteOrder = binary.BigEndian
	if flags&0x01 == 1 {
		order = binary.LittleEndian
	}
	srid := int(int32(order.Uint32(b[4:8])))

	envSize, ok := envelopeSizes[(flags>>1)&0x07]
	if !ok {
		return nil, 0, fmt.Errorf("invalid envelope indicator %d", (flags>>1)&0x07)
	}
	offset := 8 + envSize
	if len(b) < offset {
		return nil, 0, errors.New("truncated geopackage geometry")
	}

	if flags&0x10 != 0 && len(b) == offset {
		return geo.Empty(), srid, nil
	}

	g, err := geos.FromWKB(b[offset:])
	if err != nil {
		return nil, 0, fmt.Errorf("decode wkb: %w", err)
	}
	return g, srid, nil
}
