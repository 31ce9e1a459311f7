package datasets

import (
	"context"
	"strings"

	"github.com/haitaton/gis-material-update/internal/core"
	"github.com/haitaton/gis-material-update/internal/geo"
)

// innerCityDistricts are the basic districts (peruspiiri) of the inner city.
var innerCityDistricts = map[string]bool{
	"VIRONNIEMI":    true,
	"REIJOLA":       true,
	"KALLIO":        true,
	"KAMPINMALMI":   true,
	"ULLANLINNA":    true,
	"PASILA":        true,
	"TAKA-TÖÖLÖ":    true,
	"VANHAKAUPUNKI": true,
	"VALLILA":       true,
	"ALPPIHARJU":    true,
}

// excludedSubdistricts are subdistricts (osa-alue) of the inner city
// districts that do not belong to the central business area.
var excludedSubdistricts = map[string]bool{
	"SUOMENLINNA": true,
	"LÄNSISAARET": true,
}

var fieldCentralBusinessArea = geo.Field{Name: "central_business_area", Type: geo.FieldInteger}

// centralBusinessAreaColumns are the output columns after the area marker.
var centralBusinessAreaColumns = []string{
	"tunnus",
	"osaalue_tunnus",
	"osaalue_nimi_fi",
	"osaalue_nimi_se",
	"peruspiiri_nimi_fi",
	"peruspiiri_nimi_se",
	"suurpiiri_nimi_fi",
	"suurpiiri_nimi_se",
}

func init() {
	registerCentralBusinessArea()
}

func registerCentralBusinessArea() {
	core.Register(core.DatasetDefinition{
		Info: core.DatasetInfo{
			Key:   "central_business_area",
			Group: "areas",
			Label: "Central business area",
		},
		New:     newCentralBusinessArea,
		Tormays: tormays("central_business_area"),
	})
}

type centralBusinessArea struct {
	base
	source *geo.Collection

	polys *geo.Collection
}

func newCentralBusinessArea(env core.Env) (core.Processor, error) {
	b, err := newBase(env, "central_business_area")
	if err != nil {
		return nil, err
	}
	source, err := b.readSource()
	if err != nil {
		return nil, err
	}
	return &centralBusinessArea{base: b, source: source}, nil
}

func (p *centralBusinessArea) Process(ctx context.Context) error {
	p.polys = innerCity(p.source)
	logResult(ctx, "central_business_area_polys", p.polys)
	return nil
}

// innerCity keeps the subdistricts of the inner city districts, marks them
// with central_business_area = 1 and renumbers them.
func innerCity(src *geo.Collection) *geo.Collection {
	kept := src.Filter(func(f geo.Feature) bool {
		district := strings.ToUpper(stringProp(f.Properties, "peruspiiri_nimi_fi"))
		sub := strings.ToUpper(stringProp(f.Properties, "osaalue_nimi_fi"))
		return innerCityDistricts[district] && !excludedSubdistricts[sub]
	})
	kept.SetAll(fieldCentralBusinessArea, int64(1))
	cols := append([]string{fieldCentralBusinessArea.Name}, centralBusinessAreaColumns...)
	return kept.Select(cols...).Renumber()
}

func (p *centralBusinessArea) PersistToDatabase(ctx context.Context, store *core.Store) error {
	if err := replace(ctx, store, "central_business_area_orig_polys", p.source); err != nil {
		return err
	}
	if err := replace(ctx, store, "central_business_area_polys", p.polys); err != nil {
		return err
	}
	return p.replaceTemp(ctx, store, p.polys)
}

func (p *centralBusinessArea) SaveToFile() error {
	return p.saveTarget(p.polys)
}
