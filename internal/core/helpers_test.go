package core

import (
	"testing"

	"github.com/haitaton/gis-material-update/internal/geo"
)

// ============================================================================
// Identifier Tests
// ============================================================================

func TestQuoteIdentifier(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"bus_lines", `"bus_lines"`},
		{"Street Class", `"Street Class"`},
		{`a"b`, `"a""b"`},
	}

	for _, tt := range tests {
		if got := quoteIdentifier(tt.in); got != tt.want {
			t.Errorf("quoteIdentifier(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestQuoteQualified(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"tormays_buses_polys", `"public"."tormays_buses_polys"`},
		{"debug.tram_infra", `"debug"."tram_infra"`},
		{`x;drop.t`, `"x;drop"."t"`},
	}

	for _, tt := range tests {
		if got := quoteQualified(tt.in); got != tt.want {
			t.Errorf("quoteQualified(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

// ============================================================================
// Column Value Tests
// ============================================================================

func TestColumnValue(t *testing.T) {
	tests := []struct {
		name string
		in   any
		typ  geo.FieldType
		want any
	}{
		{"nil stays nil", nil, geo.FieldInteger, nil},
		{"int to bigint", 3, geo.FieldInteger, int64(3)},
		{"float truncated to bigint", 2.9, geo.FieldInteger, int64(2)},
		{"bool to bigint", true, geo.FieldInteger, int64(1)},
		{"numeric string to bigint", " 42 ", geo.FieldInteger, int64(42)},
		{"bad string to bigint is null", "n/a", geo.FieldInteger, nil},
		{"int to double", int64(5), geo.FieldReal, float64(5)},
		{"string to double", "1.5", geo.FieldReal, 1.5},
		{"int to bool", int64(0), geo.FieldBool, false},
		{"string to bool", "true", geo.FieldBool, true},
		{"text kept", "Mannerheimintie", geo.FieldText, "Mannerheimintie"},
		{"number to text", int64(1040), geo.FieldText, "1040"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := columnValue(tt.in, tt.typ); got != tt.want {
				t.Errorf("columnValue(%v) = %#v, want %#v", tt.in, got, tt.want)
			}
		})
	}
}

// ============================================================================
// SQL Builder Tests
// ============================================================================

func TestCreateTableSQL(t *testing.T) {
	fields := []geo.Field{
		{Name: "route_id", Type: geo.FieldText},
		{Name: "rush_hour", Type: geo.FieldInteger},
		{Name: "width", Type: geo.FieldReal},
	}

	got := createTableSQL(`"public"."bus_lines"`, fields, 3879)
	want := `CREATE TABLE "public"."bus_lines" (fid bigint PRIMARY KEY, "route_id" text, "rush_hour" bigint, "width" double precision, geometry geometry(Geometry, 3879))`
	if got != want {
		t.Errorf("createTableSQL() =\n%s\nwant\n%s", got, want)
	}
}

func TestInsertSQL(t *testing.T) {
	fields := []geo.Field{{Name: "volume", Type: geo.FieldInteger}}

	got := insertSQL(`"public"."volume_lines"`, fields, 3879)
	want := `INSERT INTO "public"."volume_lines" (fid, "volume", geometry) VALUES ($1, $2, ST_SetSRID(ST_GeomFromWKB($3), 3879))`
	if got != want {
		t.Errorf("insertSQL() =\n%s\nwant\n%s", got, want)
	}
}

func TestWritableFields(t *testing.T) {
	fields := []geo.Field{
		{Name: "FID", Type: geo.FieldInteger},
		{Name: "street_class", Type: geo.FieldText},
		{Name: "geometry", Type: geo.FieldText},
	}

	got := writableFields(fields)
	if len(got) != 1 || got[0].Name != "street_class" {
		t.Errorf("writableFields() = %v, want only street_class", got)
	}
}

func TestNewStore_DefaultBatchSize(t *testing.T) {
	s := NewStore(nil, 0)
	if s.batchSize != DefaultBatchSize {
		t.Errorf("batchSize = %d, want %d", s.batchSize, DefaultBatchSize)
	}
	if _, err := s.ReplaceTable(t.Context(), "x", geo.NewCollection(3879)); err != ErrNoDatabase {
		t.Errorf("ReplaceTable without db error = %v, want ErrNoDatabase", err)
	}
}
