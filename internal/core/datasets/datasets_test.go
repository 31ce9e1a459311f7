package datasets

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/haitaton/gis-material-update/internal/config"
	"github.com/haitaton/gis-material-update/internal/core"
	"github.com/haitaton/gis-material-update/internal/geo"
	"github.com/haitaton/gis-material-update/internal/gpkg"
	"github.com/haitaton/gis-material-update/internal/transit"
	"github.com/haitaton/gis-material-update/internal/vector"
	"github.com/paulsmith/gogeos/geos"
)

func wkt(t *testing.T, s string) *geos.Geometry {
	t.Helper()
	g, err := geos.FromWKT(s)
	if err != nil {
		t.Fatalf("FromWKT(%q) error = %v", s, err)
	}
	return g
}

// checkPolygons asserts the invariants of a polygon result: one geometry
// type and a strictly positive area for every feature.
func checkPolygons(t *testing.T, c *geo.Collection) {
	t.Helper()
	types, err := c.GeometryTypes()
	if err != nil {
		t.Fatal(err)
	}
	if len(types) != 1 {
		t.Errorf("geometry types = %v, want exactly one", types)
	}
	minArea, err := c.MinArea()
	if err != nil {
		t.Fatal(err)
	}
	if c.Len() > 0 && minArea <= 0 {
		t.Errorf("min area = %v, want > 0", minArea)
	}
}

func fieldNames(c *geo.Collection) []string {
	names := make([]string, len(c.Fields))
	for i, f := range c.Fields {
		names[i] = f.Name
	}
	return names
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// ---- Registry ----

func TestRegisteredDatasets(t *testing.T) {
	keys := []string{
		"hsl", "tram_lines", "tram_infra", "cycle_infra",
		"central_business_area", "ylre_katuosat", "liikennevaylat", "liikennemaarat",
	}
	for _, k := range keys {
		def, ok := core.Get(k)
		if !ok {
			t.Errorf("dataset %q not registered", k)
			continue
		}
		if def.New == nil || def.Tormays == nil {
			t.Errorf("dataset %q has no New or Tormays", k)
		}
	}
	if core.Count() != len(keys) {
		t.Errorf("Count() = %d, want %d", core.Count(), len(keys))
	}
}

func TestResolve_StreetClassesAfterInputs(t *testing.T) {
	defs, err := core.Resolve([]string{"liikennevaylat", "central_business_area", "ylre_katuosat"})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	pos := map[string]int{}
	for i, d := range defs {
		pos[d.Info.Key] = i
	}
	for _, dep := range []string{"ylre_katuosat", "central_business_area"} {
		if pos[dep] > pos["liikennevaylat"] {
			t.Errorf("%s resolved after liikennevaylat: %v", dep, pos)
		}
	}
}

// ---- Bus and tram lines ----

func busSchedule(t *testing.T) *transit.Schedule {
	t.Helper()
	start, _ := transit.ParseDate("20221003") // Monday
	end, _ := transit.ParseDate("20221016")
	weekdays := [7]bool{false, true, true, true, true, true, false}
	line := []transit.ShapePoint{{Lat: 60.17, Lon: 24.94, Sequence: 1}, {Lat: 60.18, Lon: 24.95, Sequence: 2}}
	return &transit.Schedule{
		Services: map[string]transit.Service{
			"arki": {ID: "arki", Days: weekdays, Start: start, End: end},
		},
		Routes: map[string]transit.Route{
			"2550":  {ID: "2550", Type: 3},
			"1006":  {ID: "1006", Type: 0},
			"31M1":  {ID: "31M1", Type: 1},
			"1009":  {ID: "1009", Type: 900},
			"1019E": {ID: "1019E", Type: 3},
		},
		Shapes: map[string][]transit.ShapePoint{
			"bus": line, "tram": line, "metro": line, "tram900": line,
			"short": {{Lat: 60.1, Lon: 24.9, Sequence: 1}},
		},
		Trips: []transit.Trip{
			{ID: "a1", RouteID: "2550", ServiceID: "arki", ShapeID: "bus", Departure: transit.Time{Hour: 7}, HasDeparture: true},
			{ID: "a2", RouteID: "1006", ServiceID: "arki", ShapeID: "tram", Departure: transit.Time{Hour: 7}, HasDeparture: true},
			{ID: "a3", RouteID: "31M1", ServiceID: "arki", ShapeID: "metro", Departure: transit.Time{Hour: 7}, HasDeparture: true},
			{ID: "a4", RouteID: "1009", ServiceID: "arki", ShapeID: "tram900", DirectionID: 1},
			{ID: "a5", RouteID: "1019E", ServiceID: "arki", ShapeID: "short"},
		},
	}
}

func TestBusLines(t *testing.T) {
	s := busSchedule(t)
	week, err := s.Week(1)
	if err != nil {
		t.Fatal(err)
	}
	day, err := transit.TransitDay(week, transit.DefaultTransitDay)
	if err != nil {
		t.Fatal(err)
	}

	c := busLines(context.Background(), s, week, day)
	if c.SRID != geo.WGS84 {
		t.Errorf("SRID = %d, want %d", c.SRID, geo.WGS84)
	}
	want := []string{"route_id", "direction_id", "rush_hour", "trunk"}
	if got := fieldNames(c); !equalStrings(got, want) {
		t.Errorf("fields = %v, want %v", got, want)
	}
	// tram (0) and metro (1) are excluded, the one-point shape is skipped,
	// the 900 tram service is a bus route type here.
	if c.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", c.Len())
	}
	f := c.Features[0]
	if f.Properties["route_id"] != "2550" {
		t.Errorf("route_id = %v, want 2550", f.Properties["route_id"])
	}
	if f.Properties["trunk"] != transit.TrunkYes {
		t.Errorf("trunk = %v, want %s", f.Properties["trunk"], transit.TrunkYes)
	}
	if f.Properties["rush_hour"] != int64(1) {
		t.Errorf("rush_hour = %v, want 1", f.Properties["rush_hour"])
	}
	if c.Features[1].Properties["rush_hour"] != int64(0) {
		t.Errorf("rush_hour without departures = %v, want 0", c.Features[1].Properties["rush_hour"])
	}
}

func TestTramVariantLines(t *testing.T) {
	c := tramVariantLines(context.Background(), busSchedule(t))
	if c.Len() != 2 {
		t.Fatalf("Len() = %d, want 2 (types 0 and 900)", c.Len())
	}
	for _, f := range c.Features {
		if f.Properties["lines"] != int64(1) {
			t.Errorf("lines = %v, want 1", f.Properties["lines"])
		}
	}
	types, _ := c.GeometryTypes()
	if !equalStrings(types, []string{"LineString"}) {
		t.Errorf("geometry types = %v, want [LineString]", types)
	}
}

// ---- Tram infra ----

func TestParseTags(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    map[string]string
		wantErr bool
	}{
		{"single", `"railway"=>"tram"`, map[string]string{"railway": "tram"}, false},
		{"several", `"railway"=>"tram","gauge"=>"1000","electrified"=>"contact_line"`,
			map[string]string{"railway": "tram", "gauge": "1000", "electrified": "contact_line"}, false},
		{"spaces", `"a" => "1", "b"=>"2"`, map[string]string{"a": "1", "b": "2"}, false},
		{"escaped quote", `"name"=>"say \"hi\""`, map[string]string{"name": `say "hi"`}, false},
		{"null value", `"a"=>NULL,"b"=>"x"`, map[string]string{"b": "x"}, false},
		{"comma in value", `"note"=>"a,b"`, map[string]string{"note": "a,b"}, false},
		{"empty", ``, map[string]string{}, false},
		{"missing arrow", `"a" "b"`, nil, true},
		{"unterminated", `"a"=>"b`, nil, true},
		{"garbage", `"a"=>"b";"c"=>"d"`, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseTags(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseTags(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if len(got) != len(tt.want) {
				t.Fatalf("parseTags(%q) = %v, want %v", tt.in, got, tt.want)
			}
			for k, v := range tt.want {
				if got[k] != v {
					t.Errorf("parseTags(%q)[%q] = %q, want %q", tt.in, k, got[k], v)
				}
			}
		})
	}
}

func TestTramTracks(t *testing.T) {
	src := geo.NewCollection(3879,
		geo.Field{Name: "osm_id", Type: geo.FieldText},
		geo.Field{Name: otherTagsField, Type: geo.FieldText},
	)
	line := "LINESTRING (25496000 6672000, 25496100 6672000)"
	src.Add(wkt(t, line), map[string]any{"osm_id": "1", otherTagsField: `"railway"=>"tram","gauge"=>"1000"`})
	src.Add(wkt(t, line), map[string]any{"osm_id": "2", otherTagsField: `"railway"=>"rail"`})
	src.Add(wkt(t, line), map[string]any{"osm_id": "3", otherTagsField: nil})
	src.Add(wkt(t, line), map[string]any{"osm_id": "4", otherTagsField: `"railway"=>"light_rail","name"=>"Raide-Jokeri"`})
	src.Add(wkt(t, line), map[string]any{"osm_id": "5", otherTagsField: `"railway"=>`})

	got, err := tramTracks(context.Background(), src)
	if err != nil {
		t.Fatalf("tramTracks() error = %v", err)
	}
	if got.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", got.Len())
	}
	want := []string{"osm_id", otherTagsField, "gauge", "name", "railway", "infra"}
	if names := fieldNames(got); !equalStrings(names, want) {
		t.Errorf("fields = %v, want %v", names, want)
	}
	first, second := got.Features[0].Properties, got.Features[1].Properties
	if first["osm_id"] != "1" || first["gauge"] != "1000" || first["name"] != nil {
		t.Errorf("first track = %v", first)
	}
	if second["railway"] != "light_rail" || second["name"] != "Raide-Jokeri" {
		t.Errorf("second track = %v", second)
	}
	for _, f := range got.Features {
		if f.Properties["infra"] != int64(1) {
			t.Errorf("infra = %v, want 1", f.Properties["infra"])
		}
	}

	lines := got.Select(fieldInfra.Name)
	if names := fieldNames(lines); !equalStrings(names, []string{"infra"}) {
		t.Errorf("line fields = %v, want [infra]", names)
	}
}

func TestTramTracks_NoTagsField(t *testing.T) {
	src := geo.NewCollection(3879, geo.Field{Name: "osm_id", Type: geo.FieldText})
	if _, err := tramTracks(context.Background(), src); err == nil {
		t.Error("tramTracks() error = nil, want error for missing other_tags")
	}
}

// ---- Areas ----

func TestInnerCity(t *testing.T) {
	src := geo.NewCollection(3879,
		geo.Field{Name: "tunnus", Type: geo.FieldText},
		geo.Field{Name: "osaalue_nimi_fi", Type: geo.FieldText},
		geo.Field{Name: "peruspiiri_nimi_fi", Type: geo.FieldText},
		geo.Field{Name: "kunta", Type: geo.FieldText},
	)
	square := "POLYGON ((0 0, 10 0, 10 10, 0 10, 0 0))"
	rows := []struct{ tunnus, osaalue, peruspiiri string }{
		{"101", "Kaartinkaupunki", "Vironniemi"},
		{"102", "Suomenlinna", "Ullanlinna"},
		{"103", "Länsisaaret", "Ullanlinna"},
		{"104", "Töölö", "Taka-Töölö"},
		{"105", "Malmi", "Malmi"},
	}
	for _, r := range rows {
		src.Add(wkt(t, square), map[string]any{
			"tunnus": r.tunnus, "osaalue_nimi_fi": r.osaalue, "peruspiiri_nimi_fi": r.peruspiiri, "kunta": "091",
		})
	}

	got := innerCity(src)
	if got.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", got.Len())
	}
	wantFields := []string{"central_business_area", "tunnus", "osaalue_nimi_fi", "peruspiiri_nimi_fi"}
	if names := fieldNames(got); !equalStrings(names, wantFields) {
		t.Errorf("fields = %v, want %v", names, wantFields)
	}
	for i, f := range got.Features {
		if f.FID != int64(i) {
			t.Errorf("FID = %d, want %d", f.FID, i)
		}
		if f.Properties["central_business_area"] != int64(1) {
			t.Errorf("central_business_area = %v, want 1", f.Properties["central_business_area"])
		}
	}
	if got.Features[1].Properties["tunnus"] != "104" {
		t.Errorf("second tunnus = %v, want 104", got.Features[1].Properties["tunnus"])
	}
	checkPolygons(t, got)
}

func TestStreetAreas(t *testing.T) {
	src := geo.NewCollection(3879, geo.Field{Name: ylreSubTypeColumn, Type: geo.FieldText})
	src.Add(wkt(t, "MULTIPOLYGON (((0 0, 10 0, 10 10, 0 10, 0 0)), ((20 0, 30 0, 30 10, 20 10, 20 0)))"),
		map[string]any{ylreSubTypeColumn: "Ajorata"})
	src.Add(wkt(t, "POLYGON ((40 0, 50 0, 50 10, 40 10, 40 0))"), map[string]any{ylreSubTypeColumn: nil})

	got, err := streetAreas(src)
	if err != nil {
		t.Fatalf("streetAreas() error = %v", err)
	}
	if got.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", got.Len())
	}
	if names := fieldNames(got); !equalStrings(names, []string{"ylre_street_area", "ylre_street_part"}) {
		t.Errorf("fields = %v", names)
	}
	if got.Features[1].Properties["ylre_street_part"] != "Ajorata" {
		t.Errorf("ylre_street_part = %v, want Ajorata", got.Features[1].Properties["ylre_street_part"])
	}
	if got.Features[2].Properties["ylre_street_part"] != nil {
		t.Errorf("ylre_street_part = %v, want nil", got.Features[2].Properties["ylre_street_part"])
	}
	types, _ := got.GeometryTypes()
	if !equalStrings(types, []string{"Polygon"}) {
		t.Errorf("geometry types = %v, want [Polygon]", types)
	}
	checkPolygons(t, got)
}

// ---- Street classes ----

func streetSource(t *testing.T) *geo.Collection {
	src := geo.NewCollection(3879,
		geo.Field{Name: "paatyyppi", Type: geo.FieldText},
		geo.Field{Name: "alatyyppi", Type: geo.FieldText},
		geo.Field{Name: "silta_alikulku", Type: geo.FieldText},
		geo.Field{Name: "uuid", Type: geo.FieldText},
	)
	add := func(line, main, sub string) {
		src.Add(wkt(t, line), map[string]any{"paatyyppi": main, "alatyyppi": sub, "silta_alikulku": nil, "uuid": main + sub})
	}
	add("LINESTRING (10 0, 90 0)", "Katu", "Asuntokatu")                  // inside the inner city
	add("LINESTRING (1000 0, 1100 0)", "Katu", "Tonttikatu")              // outside
	add("LINESTRING (1000 100, 1100 100)", "Katu", "Päätie")              // main street
	add("LINESTRING (1000 200, 1100 200)", "Kevyt liikenne", "Suojatie")  // dropped
	add("LINESTRING (1000 300, 1100 300)", "Katu", "Kävelykatu")          // no class
	add("LINESTRING (1000 400, 1100 400)", "Muu väylä", "Porras/portaat") // dropped
	return src
}

func TestClassifyStreets(t *testing.T) {
	inner := wkt(t, "POLYGON ((0 -50, 200 -50, 200 50, 0 50, 0 -50))")

	got, err := classifyStreets(streetSource(t), inner)
	if err != nil {
		t.Fatalf("classifyStreets() error = %v", err)
	}
	want := []any{classInnerCityResidential, classResidential, classMainStreet, nil}
	if got.Len() != len(want) {
		t.Fatalf("Len() = %d, want %d", got.Len(), len(want))
	}
	for i, w := range want {
		if c := got.Features[i].Properties["street_class"]; c != w {
			t.Errorf("feature %d street_class = %v, want %v", i, c, w)
		}
	}
}

func TestTypeMappingsDisjoint(t *testing.T) {
	for st := range streetClasses {
		if droppedStreetTypes[st] {
			t.Errorf("%v is both classified and dropped", st)
		}
	}
}

func classBuffers(d float64) map[string]float64 {
	m := map[string]float64{}
	for _, bc := range bufferClasses {
		m[bc.key] = d
	}
	return m
}

func TestCheckBufferClasses(t *testing.T) {
	if err := checkBufferClasses(classBuffers(5)); err != nil {
		t.Errorf("checkBufferClasses() error = %v", err)
	}

	four := classBuffers(5)
	delete(four, "paikallinen_kokoojakatu")
	if err := checkBufferClasses(four); !errors.Is(err, ErrBufferCount) {
		t.Errorf("four classes: error = %v, want ErrBufferCount", err)
	}

	renamed := classBuffers(5)
	delete(renamed, "paikallinen_kokoojakatu")
	renamed["tuntematon"] = 5
	if err := checkBufferClasses(renamed); !errors.Is(err, ErrBufferCount) {
		t.Errorf("unknown class: error = %v, want ErrBufferCount", err)
	}
}

func TestStreetPolygons(t *testing.T) {
	lines := geo.NewCollection(3879,
		geo.Field{Name: "paatyyppi", Type: geo.FieldText},
		geo.Field{Name: "silta_alikulku", Type: geo.FieldText},
		fieldStreetClass,
	)
	add := func(line string, class any) {
		lines.Add(wkt(t, line), map[string]any{"paatyyppi": "Katu", "silta_alikulku": nil, "street_class": class})
	}
	add("LINESTRING (10 0, 90 0)", classMainStreet)          // within the ylre area, clipped
	add("LINESTRING (1000 0, 1080 0)", classMainStreet)      // outside, full buffer
	add("LINESTRING (1000 500, 1080 500)", classResidential) // other class
	add("LINESTRING (2000 0, 2080 0)", nil)                  // unclassified, not buffered

	ylre := wkt(t, "POLYGON ((0 -5, 100 -5, 100 5, 0 5, 0 -5))")
	got, err := streetPolygons(lines, classBuffers(10), ylre)
	if err != nil {
		t.Fatalf("streetPolygons() error = %v", err)
	}

	if names := fieldNames(got); !equalStrings(names, []string{"silta_alikulku", "street_class"}) {
		t.Errorf("fields = %v, want paatyyppi dropped", names)
	}
	if got.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", got.Len())
	}
	checkPolygons(t, got)

	full := 80*20 + math.Pi*100
	var mainAreas []float64
	residential := 0
	for _, f := range got.Features {
		a, _ := f.Geometry.Area()
		switch f.Properties["street_class"] {
		case classMainStreet:
			mainAreas = append(mainAreas, a)
		case classResidential:
			residential++
		}
	}
	if len(mainAreas) != 2 || residential != 1 {
		t.Fatalf("main street parts = %d, residential = %d, want 2 and 1", len(mainAreas), residential)
	}
	sort.Float64s(mainAreas)
	if mainAreas[0] > 1000+1e-6 || mainAreas[0] < 800 {
		t.Errorf("clipped area = %v, want within the ylre strip", mainAreas[0])
	}
	if math.Abs(mainAreas[1]-full) > full*0.01 {
		t.Errorf("unclipped area = %v, want ~%v", mainAreas[1], full)
	}
}

func TestInnerCityArea(t *testing.T) {
	cba := geo.NewCollection(3879)
	// Two squares 4 m apart merge when closed with a 10 m buffer.
	cba.Add(wkt(t, "POLYGON ((0 0, 100 0, 100 100, 0 100, 0 0))"), nil)
	cba.Add(wkt(t, "POLYGON ((104 0, 200 0, 200 100, 104 100, 104 0))"), nil)

	area, err := innerCityArea(cba)
	if err != nil {
		t.Fatalf("innerCityArea() error = %v", err)
	}
	name, _ := geo.TypeName(area)
	if name != "Polygon" {
		t.Errorf("type = %s, want the gap closed into one Polygon", name)
	}
}

// ---- Traffic volumes ----

func TestVolumeLines(t *testing.T) {
	src := geo.NewCollection(3879, geo.Field{Name: "kvl", Type: geo.FieldText})
	line := "LINESTRING (0 0, 10 0)"
	for _, v := range []any{int64(1200), "250", int64(0), int64(-3), nil, "abc", 99.7} {
		src.Add(wkt(t, line), map[string]any{"kvl": v})
	}

	got, err := volumeLines(src, "kvl")
	if err != nil {
		t.Fatalf("volumeLines() error = %v", err)
	}
	want := []int64{1200, 250, 99}
	if got.Len() != len(want) {
		t.Fatalf("Len() = %d, want %d", got.Len(), len(want))
	}
	for i, w := range want {
		if v := got.Features[i].Properties["volume"]; v != w {
			t.Errorf("volume[%d] = %v, want %d", i, v, w)
		}
	}

	if _, err := volumeLines(src, "volume"); err == nil {
		t.Error("volumeLines() with missing column error = nil")
	}
}

// ---- End to end ----

const cycleGeoJSON = `{
  "type": "FeatureCollection",
  "crs": {"type": "name", "properties": {"name": "urn:ogc:def:crs:EPSG::3879"}},
  "features": [
    {"type": "Feature",
     "geometry": {"type": "LineString", "coordinates": [[25496000, 6672000], [25496100, 6672000]]},
     "properties": {"tyyppi": "baana"}},
    {"type": "Feature",
     "geometry": {"type": "LineString", "coordinates": [[25497000, 6672000], [25497000, 6672200]]},
     "properties": {"tyyppi": "pyoratie"}}
  ]
}`

func testConfig(t *testing.T, dir string, datasets map[string]config.DatasetConfig) *config.Config {
	t.Helper()
	return &config.Config{
		Common:  config.CommonConfig{CRS: "EPSG:3879"},
		Profile: config.ProfileDockerDevelopment,
		Profiles: map[string]config.ProfileConfig{
			config.ProfileDockerDevelopment: {Storage: config.StorageConfig{DownloadDir: dir, OutputDir: dir}},
		},
		Datasets: datasets,
	}
}

func TestCycleInfra_ProcessAndSave(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "cycle.geojson"), []byte(cycleGeoJSON), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg := testConfig(t, dir, map[string]config.DatasetConfig{
		"cycle_infra": {
			LocalFile:        "cycle.geojson",
			TargetFile:       "cycle_infra.gpkg",
			TargetBufferFile: "cycle_infra_polys.gpkg",
			Buffer:           []float64{5},
		},
	})

	def, _ := core.Get("cycle_infra")
	p, err := def.New(core.Env{Config: cfg})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := p.SaveToFile(); !errors.Is(err, ErrNotProcessed) {
		t.Errorf("SaveToFile() before Process error = %v, want ErrNotProcessed", err)
	}
	if err := p.Process(context.Background()); err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if err := p.SaveToFile(); err != nil {
		t.Fatalf("SaveToFile() error = %v", err)
	}

	polys, err := gpkg.Read(filepath.Join(dir, "cycle_infra_polys.gpkg"), "")
	if err != nil {
		t.Fatalf("gpkg.Read() error = %v", err)
	}
	if polys.SRID != 3879 {
		t.Errorf("SRID = %d, want 3879", polys.SRID)
	}
	if polys.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", polys.Len())
	}
	if _, ok := polys.Field("tyyppi"); !ok {
		t.Error("attribute tyyppi missing from polygons")
	}
	checkPolygons(t, polys)
}

func TestCycleInfra_BufferCount(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "cycle.geojson"), []byte(cycleGeoJSON), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg := testConfig(t, dir, map[string]config.DatasetConfig{
		"cycle_infra": {LocalFile: "cycle.geojson", Buffer: []float64{5, 10}},
	})

	def, _ := core.Get("cycle_infra")
	p, err := def.New(core.Env{Config: cfg})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := p.Process(context.Background()); !errors.Is(err, ErrBufferCount) {
		t.Errorf("Process() error = %v, want ErrBufferCount", err)
	}
}

func TestLiikennevaylat_MissingInputs(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(t, dir, map[string]config.DatasetConfig{
		"liikennevaylat":        {LocalFile: "liikennevaylat.gpkg", TargetFile: "street_classes.gpkg", BufferClass: classBuffers(5)},
		"ylre_katuosat":         {TargetBufferFile: "ylre_katuosat_polys.gpkg"},
		"central_business_area": {TargetFile: "central_business_area.gpkg"},
	})

	def, _ := core.Get("liikennevaylat")
	_, err := def.New(core.Env{Config: cfg})
	if err == nil {
		t.Fatal("New() error = nil, want missing ylre polygons")
	}
	if !errors.Is(err, vector.ErrSourceNotFound) {
		t.Errorf("New() error = %v, want source not found", err)
	}
}

func TestLiikennemaarat_ProcessAndSave(t *testing.T) {
	dir := t.TempDir()
	src := geo.NewCollection(3879, geo.Field{Name: "kvl", Type: geo.FieldInteger})
	src.Add(wkt(t, "LINESTRING (25496000 6672000, 25496100 6672000)"), map[string]any{"kvl": int64(5000)})
	src.Add(wkt(t, "LINESTRING (25497000 6672000, 25497100 6672000)"), map[string]any{"kvl": int64(0)})
	if err := gpkg.Write(filepath.Join(dir, "volumes.gpkg"), "volumes", src); err != nil {
		t.Fatal(err)
	}
	cfg := testConfig(t, dir, map[string]config.DatasetConfig{
		"liikennemaarat": {
			LocalFile:        "volumes.gpkg",
			TargetFile:       "volume_lines.gpkg",
			TargetBufferFile: "volumes{}.gpkg",
			Buffer:           []float64{15, 30},
			VolumeColumn:     "kvl",
		},
	})

	def, _ := core.Get("liikennemaarat")
	p, err := def.New(core.Env{Config: cfg})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := p.Process(context.Background()); err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if err := p.SaveToFile(); err != nil {
		t.Fatalf("SaveToFile() error = %v", err)
	}

	for _, name := range []string{"volumes15.gpkg", "volumes30.gpkg"} {
		c, err := gpkg.Read(filepath.Join(dir, name), "")
		if err != nil {
			t.Errorf("read %s: %v", name, err)
			continue
		}
		if c.Len() != 1 {
			t.Errorf("%s Len() = %d, want 1", name, c.Len())
		}
		if c.Features[0].Properties["volume"] != int64(5000) {
			t.Errorf("%s volume = %v, want 5000", name, c.Features[0].Properties["volume"])
		}
		checkPolygons(t, c)
	}
}
