package gpkg

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/haitaton/gis-material-update/internal/geo"
)

// Layers lists the feature layers of a GeoPackage in insertion order.
func Layers(path string) ([]string, error) {
	db, err := openReadOnly(path)
	if err != nil {
		return nil, err
	}
	defer db.Close()
	return featureLayers(db)
}

func openReadOnly(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return db, nil
}

func featureLayers(db *sql.DB) ([]string, error) {
	rows, err := db.Query(`SELECT table_name FROM gpkg_contents WHERE data_type = 'features' ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("list layers: %w", err)
	}
	defer rows.Close()

	var layers []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		layers = append(layers, name)
	}
	return layers, rows.Err()
}

type column struct {
	name string
	typ  string
	pk   bool
}

// Read loads a feature layer. An empty layer name selects the first
// feature layer. Features with a NULL geometry are returned with a nil
// Geometry.
func Read(path, layer string) (*geo.Collection, error) {
	db, err := openReadOnly(path)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	if layer == "" {
		layers, err := featureLayers(db)
		if err != nil {
			return nil, err
		}
		if len(layers) == 0 {
			return nil, fmt.Errorf("%s: %w: no feature layers", path, ErrLayerNotFound)
		}
		layer = layers[0]
	}

	var geomCol string
	var srid int
	err = db.QueryRow(`SELECT column_name, srs_id FROM gpkg_geometry_columns WHERE table_name = ?`, layer).Scan(&geomCol, &srid)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%s: %w: %s", path, ErrLayerNotFound, layer)
	}
	if err != nil {
		return nil, fmt.Errorf("read geometry column of %s: %w", layer, err)
	}

	cols, err := tableColumns(db, layer)
	if err != nil {
		return nil, err
	}

	c := geo.NewCollection(srid)
	for _, col := range cols {
		if col.pk || col.name == geomCol {
			continue
		}
		c.Fields = append(c.Fields, geo.Field{Name: col.name, Type: fieldType(col.typ)})
	}

	rows, err := db.Query(fmt.Sprintf("SELECT * FROM %s", quote(layer)))
	if err != nil {
		return nil, fmt.Errorf("read layer %s: %w", layer, err)
	}
	defer rows.Close()

	names, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	byName := make(map[string]column, len(cols))
	for _, col := range cols {
		byName[col.name] = col
	}

	values := make([]any, len(names))
	ptrs := make([]any, len(names))
	for i := range values {
		ptrs[i] = &values[i]
	}

	var row int64
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan %s: %w", layer, err)
		}

		f := geo.Feature{FID: row, Properties: make(map[string]any, len(c.Fields))}
		for i, name := range names {
			col := byName[name]
			switch {
			case col.pk:
				if id, ok := values[i].(int64); ok {
					f.FID = id
				}
			case name == geomCol:
				blob, ok := values[i].([]byte)
				if !ok || len(blob) == 0 {
					continue
				}
				g, _, err := decodeGeometry(blob)
				if err != nil {
					return nil, fmt.Errorf("%s row %d: %w", layer, row, err)
				}
				f.Geometry = g
			default:
				f.Properties[name] = convertValue(values[i], fieldType(col.typ))
			}
		}
		c.Features = append(c.Features, f)
		row++
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return c, nil
}

func tableColumns(db *sql.DB, table string) ([]column, error) {
	rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%s)", quote(table)))
	if err != nil {
		return nil, fmt.Errorf("table info %s: %w", table, err)
	}
	defer rows.Close()

	var cols []column
	for rows.Next() {
		var (
			cid     int
			name    string
			typ     string
			notNull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &dflt, &pk); err != nil {
			return nil, err
		}
		cols = append(cols, column{name: name, typ: strings.ToUpper(typ), pk: pk > 0})
	}
	return cols, rows.Err()
}

func fieldType(declared string) geo.FieldType {
	switch {
	case strings.Contains(declared, "INT"):
		return geo.FieldInteger
	case strings.Contains(declared, "REAL"), strings.Contains(declared, "DOUBLE"),
		strings.Contains(declared, "FLOAT"), strings.Contains(declared, "NUMERIC"):
		return geo.FieldReal
	case strings.Contains(declared, "BOOL"):
		return geo.FieldBool
	default:
		return geo.FieldText
	}
}

func convertValue(v any, t geo.FieldType) any {
	switch x := v.(type) {
	case []byte:
		return string(x)
	case int64:
		switch t {
		case geo.FieldBool:
			return x != 0
		case geo.FieldReal:
			return float64(x)
		}
		return x
	default:
		return v
	}
}
