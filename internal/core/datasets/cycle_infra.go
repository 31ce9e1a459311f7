package datasets

import (
	"context"
	"fmt"

	"github.com/haitaton/gis-material-update/internal/core"
	"github.com/haitaton/gis-material-update/internal/geo"
)

func init() {
	registerCycleInfra()
}

func registerCycleInfra() {
	core.Register(core.DatasetDefinition{
		Info: core.DatasetInfo{
			Key:   "cycle_infra",
			Group: "infra",
			Label: "Cycle infra",
		},
		New:     newCycleInfra,
		Tormays: tormays("cycle_infra"),
	})
}

type cycleInfra struct {
	base
	source *geo.Collection

	lines *geo.Collection
	polys *geo.Collection
}

func newCycleInfra(env core.Env) (core.Processor, error) {
	b, err := newBase(env, "cycle_infra")
	if err != nil {
		return nil, err
	}
	source, err := b.readSource()
	if err != nil {
		return nil, err
	}
	return &cycleInfra{base: b, source: source}, nil
}

func (p *cycleInfra) Process(ctx context.Context) error {
	buffer, err := p.singleBuffer()
	if err != nil {
		return err
	}
	polys, err := p.source.Buffer(buffer)
	if err != nil {
		return fmt.Errorf("buffer: %w", err)
	}

	p.lines, p.polys = p.source, polys
	logResult(ctx, "cycle_infra", p.lines)
	logResult(ctx, "cycle_infra_polys", polys)
	return nil
}

func (p *cycleInfra) PersistToDatabase(ctx context.Context, store *core.Store) error {
	if err := replace(ctx, store, "cycle_infra", p.lines); err != nil {
		return err
	}
	if err := replace(ctx, store, "cycle_infra_polys", p.polys); err != nil {
		return err
	}
	return p.replaceTemp(ctx, store, p.polys)
}

func (p *cycleInfra) SaveToFile() error {
	if err := p.saveTarget(p.lines); err != nil {
		return err
	}
	return p.saveTargetBuffer(p.polys)
}
