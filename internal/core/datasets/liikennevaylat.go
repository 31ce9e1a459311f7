package datasets

import (
	"context"
	"fmt"

	"github.com/haitaton/gis-material-update/internal/core"
	"github.com/haitaton/gis-material-update/internal/geo"
	"github.com/paulsmith/gogeos/geos"
)

// Street classes.
const (
	classMainStreet            = "Pääkatu tai moottoriväylä"
	classRegionalCollector     = "Alueellinen kokoojakatu"
	classLocalCollector        = "Paikallinen kokoojakatu"
	classInnerCityResidential  = "Kantakaupungin asuntokatu, huoltoväylä tai muu vähäliikenteinen katu"
	classResidential           = "Asuntokatu, huoltoväylä tai muu vähäliikenteinen katu"
	innerCityClosingBufferSize = 10.0
)

// bufferClasses maps the buffer_class_values keys to street classes, in
// buffering order.
var bufferClasses = []struct {
	key   string
	class string
}{
	{"paakatu_tai_moottorivayla", classMainStreet},
	{"alueellinen_kokoojakatu", classRegionalCollector},
	{"paikallinen_kokoojakatu", classLocalCollector},
	{"kantakaupungin_asuntokatu_huoltovayla_tai_muu_vahaliikenteinen_katu", classInnerCityResidential},
	{"asuntokatu_huoltovayla_tai_muu_vahaliikenteinen_katu", classResidential},
}

type streetType struct{ main, sub string }

// droppedStreetTypes are (main type, sub type) pairs without street class.
var droppedStreetTypes = map[streetType]bool{
	{"Kevyt liikenne", "Suojatie"}:                                         true,
	{"Kevyt liikenne", "Puistotie- tai väylä"}:                             true,
	{"Kevyt liikenne", "Jalkakäytävä"}:                                     true,
	{"Kevyt liikenne", "Yhdistetty jalkakäytävä ja pyörätie"}:              true,
	{"Kevyt liikenne", "Jalkakäytävä ja pyörätie samassa tasossa"}:         true,
	{"Kevyt liikenne", "Ulkoilureitti"}:                                    true,
	{"Kevyt liikenne", "Kulkuväylä aukiolla"}:                              true,
	{"Kevyt liikenne", "Pyöräkaista"}:                                      true,
	{"Kevyt liikenne", "Pyöräliikenteen ylityspaikka"}:                     true,
	{"Kevyt liikenne", "Välikaistalla erotellut jalkakäytävä ja pyörätie"}: true,
	{"Kevyt liikenne", "Välikaistalla eroteltu pyörätie"}:                  true,
	{"Kevyt liikenne", "Jalkakäytävän tasossa oleva pyörätie"}:             true,
	{"Kevyt liikenne", "Muu polku"}:                                        true,
	{"Kevyt liikenne", "Tasoeroteltu pyörätie"}:                            true,
	{"Muu väylä", "Väylälinkki"}:                                           true,
	{"Muu väylä", "Porras/portaat"}:                                        true,
	{"Muu väylä", "Jalkakäytävä"}:                                          true,
	{"Muu väylä", "Kulkuväylä aukiolla"}:                                   true,
	{"Katu", "Yhdistetty jalkakäytävä ja pyörätie"}:                        true,
}

// streetClasses maps (main type, sub type) pairs to street classes.
var streetClasses = map[streetType]string{
	{"Katu", "Asuntokatu"}:                        classResidential,
	{"Katu", "Paikallinen kokoojakatu"}:           classLocalCollector,
	{"Katu", "Alueellinen kokoojakatu"}:           classRegionalCollector,
	{"Katu", "Päätie"}:                            classMainStreet,
	{"Muu väylä", "Huoltotie"}:                    classResidential,
	{"Katu", "Moottoriväylä"}:                     classMainStreet,
	{"Katu", "Tonttikatu"}:                        classResidential,
	{"Kevyt liikenne", "Piha- ja/tai kävelykatu"}: classResidential,
	{"Kevyt liikenne", "Pyöräkatu"}:               classResidential,
}

// droppedStreetColumns are source columns left out of the polygons.
var droppedStreetColumns = map[string]bool{
	"hierarkia":                 true,
	"pituus":                    true,
	"lisatietoja":               true,
	"yhtluontipvm":              true,
	"yhtmuokkauspvm":            true,
	"yhtdatanomistaja":          true,
	"paivitetty_tietopalveluun": true,
	"gml_id":                    true,
	"id":                        true,
	"uuid":                      true,
	"paatyyppi":                 true,
	"alatyyppi":                 true,
	"yksisuuntaisuus":           true,
}

var fieldStreetClass = geo.Field{Name: "street_class", Type: geo.FieldText}

func init() {
	registerLiikennevaylat()
}

func registerLiikennevaylat() {
	core.Register(core.DatasetDefinition{
		Info: core.DatasetInfo{
			Key:   "liikennevaylat",
			Group: "streets",
			Label: "Street classes",
		},
		DependsOn: []string{"ylre_katuosat", "central_business_area"},
		New:       newLiikennevaylat,
		Tormays:   tormays("liikennevaylat"),
	})
}

type liikennevaylat struct {
	base
	source    *geo.Collection
	ylreArea  *geos.Geometry
	innerCity *geos.Geometry
	buffers   map[string]float64

	lines *geo.Collection
	polys *geo.Collection
}

func newLiikennevaylat(env core.Env) (core.Processor, error) {
	b, err := newBase(env, "liikennevaylat")
	if err != nil {
		return nil, err
	}
	if err := checkBufferClasses(b.ds.BufferClass); err != nil {
		return nil, err
	}

	ylrePath, err := b.cfg.TargetBufferFile("ylre_katuosat")
	if err != nil {
		return nil, err
	}
	if err := requireFile(ylrePath, "ylre katuosat polygons"); err != nil {
		return nil, err
	}
	cbaPath, err := b.cfg.TargetFile("central_business_area")
	if err != nil {
		return nil, err
	}
	if err := requireFile(cbaPath, "central business area polygons"); err != nil {
		return nil, err
	}

	ylre, err := b.readOutput(ylrePath)
	if err != nil {
		return nil, err
	}
	ylreArea, err := ylre.UnionAll()
	if err != nil {
		return nil, fmt.Errorf("ylre area: %w", err)
	}
	cba, err := b.readOutput(cbaPath)
	if err != nil {
		return nil, err
	}
	innerCity, err := innerCityArea(cba)
	if err != nil {
		return nil, err
	}

	source, err := b.readSource()
	if err != nil {
		return nil, err
	}
	return &liikennevaylat{
		base:      b,
		source:    source,
		ylreArea:  ylreArea,
		innerCity: innerCity,
		buffers:   b.ds.BufferClass,
	}, nil
}

// checkBufferClasses requires a buffer distance for every street class.
func checkBufferClasses(buffers map[string]float64) error {
	if len(buffers) != len(bufferClasses) {
		return fmt.Errorf("%w: %d buffer classes, want %d", ErrBufferCount, len(buffers), len(bufferClasses))
	}
	for _, bc := range bufferClasses {
		if _, ok := buffers[bc.key]; !ok {
			return fmt.Errorf("%w: buffer class %s missing", ErrBufferCount, bc.key)
		}
	}
	return nil
}

// innerCityArea merges the central business area polygons and closes the
// small gaps between them.
func innerCityArea(cba *geo.Collection) (*geos.Geometry, error) {
	u, err := cba.UnionAll()
	if err != nil {
		return nil, fmt.Errorf("central business area: %w", err)
	}
	if u, err = u.Buffer(innerCityClosingBufferSize); err != nil {
		return nil, err
	}
	return u.Buffer(-innerCityClosingBufferSize)
}

func (p *liikennevaylat) Process(ctx context.Context) error {
	lines, err := classifyStreets(p.source, p.innerCity)
	if err != nil {
		return err
	}
	if lines, err = lines.Force2D(); err != nil {
		return err
	}

	polys, err := streetPolygons(lines, p.buffers, p.ylreArea)
	if err != nil {
		return err
	}

	p.lines, p.polys = lines, polys
	logResult(ctx, "street_classes_lines", lines)
	logResult(ctx, "street_classes_polys", polys)
	return nil
}

// classifyStreets drops street types without a class and sets street_class
// on the rest. Residential streets touching the inner city get the inner
// city residential class. Unmapped types keep a nil class.
func classifyStreets(src *geo.Collection, innerCity *geos.Geometry) (*geo.Collection, error) {
	lines := src.Filter(func(f geo.Feature) bool {
		return !droppedStreetTypes[typeOf(f)]
	})
	lines.AddField(fieldStreetClass)

	for i := range lines.Features {
		f := &lines.Features[i]
		class, ok := streetClasses[typeOf(*f)]
		if !ok {
			f.Properties[fieldStreetClass.Name] = nil
			continue
		}
		if class == classResidential {
			inside, err := f.Geometry.Intersects(innerCity)
			if err != nil {
				return nil, fmt.Errorf("feature %d: %w", f.FID, err)
			}
			if inside {
				class = classInnerCityResidential
			}
		}
		f.Properties[fieldStreetClass.Name] = class
	}
	return lines, nil
}

func typeOf(f geo.Feature) streetType {
	return streetType{stringProp(f.Properties, "paatyyppi"), stringProp(f.Properties, "alatyyppi")}
}

// streetPolygons buffers each classified line by its class distance. Lines
// lying within the YLRE street area are clipped to it; a clip that leaves
// nothing keeps the unclipped polygon. The polygons are dissolved by street
// class and bridge/underpass and exploded to single polygons.
func streetPolygons(lines *geo.Collection, buffers map[string]float64, ylreArea *geos.Geometry) (*geo.Collection, error) {
	buffered := geo.NewCollection(lines.SRID, lines.Fields...)
	for _, bc := range bufferClasses {
		d := buffers[bc.key]
		for _, f := range lines.Features {
			if stringProp(f.Properties, fieldStreetClass.Name) != bc.class {
				continue
			}
			poly, err := f.Geometry.Buffer(d)
			if err != nil {
				return nil, fmt.Errorf("buffer feature %d: %w", f.FID, err)
			}

			within, err := f.Geometry.Within(ylreArea)
			if err != nil {
				return nil, fmt.Errorf("feature %d: %w", f.FID, err)
			}
			if within {
				clipped, err := geo.Clip(poly, ylreArea)
				if err != nil {
					return nil, fmt.Errorf("clip feature %d: %w", f.FID, err)
				}
				if clipped != nil {
					poly = clipped
				}
			}

			props := make(map[string]any, len(f.Properties))
			for k, v := range f.Properties {
				props[k] = v
			}
			buffered.Add(poly, props)
		}
	}

	dissolved, err := buffered.Dissolve(fieldStreetClass.Name, "silta_alikulku")
	if err != nil {
		return nil, fmt.Errorf("dissolve: %w", err)
	}
	exploded, err := dissolved.Explode()
	if err != nil {
		return nil, fmt.Errorf("explode: %w", err)
	}

	keep := make([]string, 0, len(exploded.Fields))
	for _, f := range exploded.Fields {
		if !droppedStreetColumns[f.Name] {
			keep = append(keep, f.Name)
		}
	}
	return exploded.Select(keep...).Renumber(), nil
}

func (p *liikennevaylat) PersistToDatabase(ctx context.Context, store *core.Store) error {
	if err := replace(ctx, store, "street_classes_lines", p.lines); err != nil {
		return err
	}
	return p.replaceTemp(ctx, store, p.polys)
}

func (p *liikennevaylat) SaveToFile() error {
	if err := p.saveTarget(p.lines); err != nil {
		return err
	}
	return p.saveTargetBuffer(p.polys)
}
