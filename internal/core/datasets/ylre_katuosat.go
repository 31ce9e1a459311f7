package datasets

import (
	"context"
	"fmt"

	"github.com/haitaton/gis-material-update/internal/core"
	"github.com/haitaton/gis-material-update/internal/geo"
)

// ylreSubTypeColumn is the street part type column of the YLRE source.
const ylreSubTypeColumn = "alatyyppi"

var (
	fieldYlreStreetArea = geo.Field{Name: "ylre_street_area", Type: geo.FieldInteger}
	fieldYlreStreetPart = geo.Field{Name: "ylre_street_part", Type: geo.FieldText}
)

func init() {
	registerYlreKatuosat()
}

func registerYlreKatuosat() {
	core.Register(core.DatasetDefinition{
		Info: core.DatasetInfo{
			Key:   "ylre_katuosat",
			Group: "areas",
			Label: "YLRE street areas",
		},
		New:     newYlreKatuosat,
		Tormays: tormays("ylre_katuosat"),
	})
}

type ylreKatuosat struct {
	base
	source *geo.Collection

	polys *geo.Collection
}

func newYlreKatuosat(env core.Env) (core.Processor, error) {
	b, err := newBase(env, "ylre_katuosat")
	if err != nil {
		return nil, err
	}
	source, err := b.readSource()
	if err != nil {
		return nil, err
	}
	return &ylreKatuosat{base: b, source: source}, nil
}

func (p *ylreKatuosat) Process(ctx context.Context) error {
	polys, err := streetAreas(p.source)
	if err != nil {
		return err
	}
	p.polys = polys
	logResult(ctx, "ylre_katuosat_polys", polys)
	return nil
}

// streetAreas explodes the street part polygons into single polygons marked
// with ylre_street_area = 1 and their street part type.
func streetAreas(src *geo.Collection) (*geo.Collection, error) {
	parts, err := src.Explode()
	if err != nil {
		return nil, fmt.Errorf("explode: %w", err)
	}
	out := geo.NewCollection(parts.SRID, fieldYlreStreetArea, fieldYlreStreetPart)
	for _, f := range parts.Features {
		var part any
		if s := stringProp(f.Properties, ylreSubTypeColumn); s != "" {
			part = s
		}
		out.Add(f.Geometry, map[string]any{
			fieldYlreStreetArea.Name: int64(1),
			fieldYlreStreetPart.Name: part,
		})
	}
	return out, nil
}

func (p *ylreKatuosat) PersistToDatabase(ctx context.Context, store *core.Store) error {
	if err := replace(ctx, store, "ylre_katuosat_polys", p.polys); err != nil {
		return err
	}
	return p.replaceTemp(ctx, store, p.polys)
}

func (p *ylreKatuosat) SaveToFile() error {
	return p.saveTargetBuffer(p.polys)
}
