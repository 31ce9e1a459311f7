package datasets

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/haitaton/gis-material-update/internal/config"
	"github.com/haitaton/gis-material-update/internal/core"
	"github.com/haitaton/gis-material-update/internal/geo"
)

const (
	volumeLinesTable = "volume_lines"
	volumePolysTable = "volumes{}_polys"
)

var fieldVolume = geo.Field{Name: "volume", Type: geo.FieldInteger}

func init() {
	registerLiikennemaarat()
}

func registerLiikennemaarat() {
	core.Register(core.DatasetDefinition{
		Info: core.DatasetInfo{
			Key:   "liikennemaarat",
			Group: "streets",
			Label: "Traffic volumes",
		},
		New:     newLiikennemaarat,
		Tormays: tormays("liikennemaarat"),
	})
}

// volumePolygons is the buffered result for one distance.
type volumePolygons struct {
	buffer float64
	polys  *geo.Collection
}

type liikennemaarat struct {
	base
	source *geo.Collection

	lines   *geo.Collection
	buffers []volumePolygons
}

func newLiikennemaarat(env core.Env) (core.Processor, error) {
	b, err := newBase(env, "liikennemaarat")
	if err != nil {
		return nil, err
	}
	if len(b.ds.Buffer) == 0 {
		return nil, fmt.Errorf("%w: liikennemaarat has none", ErrBufferCount)
	}
	source, err := b.readSource()
	if err != nil {
		return nil, err
	}
	return &liikennemaarat{base: b, source: source}, nil
}

func (p *liikennemaarat) Process(ctx context.Context) error {
	lines, err := volumeLines(p.source, p.ds.VolumeColumn)
	if err != nil {
		return err
	}

	out := make([]volumePolygons, 0, len(p.ds.Buffer))
	for _, d := range p.ds.Buffer {
		polys, err := lines.Buffer(d)
		if err != nil {
			return fmt.Errorf("buffer %v: %w", d, err)
		}
		out = append(out, volumePolygons{buffer: d, polys: polys})
		logResult(ctx, config.ExpandTemplate(volumePolysTable, d), polys)
	}

	p.lines, p.buffers = lines, out
	logResult(ctx, volumeLinesTable, lines)
	return nil
}

// volumeLines keeps the lines with a positive traffic volume in column and
// exposes it as the integer field volume.
func volumeLines(src *geo.Collection, column string) (*geo.Collection, error) {
	if _, ok := src.Field(column); !ok {
		return nil, fmt.Errorf("traffic volume column %q not found", column)
	}
	out := geo.NewCollection(src.SRID, fieldVolume)
	for _, f := range src.Features {
		v, ok := volumeValue(f.Properties[column])
		if !ok || v <= 0 {
			continue
		}
		out.Add(f.Geometry, map[string]any{fieldVolume.Name: v})
	}
	return out, nil
}

func volumeValue(v any) (int64, bool) {
	switch x := v.(type) {
	case int64:
		return x, true
	case int:
		return int64(x), true
	case float64:
		return int64(x), true
	case string:
		if n, err := strconv.ParseFloat(strings.TrimSpace(x), 64); err == nil {
			return int64(n), true
		}
	}
	return 0, false
}

func (p *liikennemaarat) PersistToDatabase(ctx context.Context, store *core.Store) error {
	if p.lines == nil {
		return ErrNotProcessed
	}
	if err := replace(ctx, store, volumeLinesTable, p.lines); err != nil {
		return err
	}
	for _, vp := range p.buffers {
		if err := replace(ctx, store, config.ExpandTemplate(volumePolysTable, vp.buffer), vp.polys); err != nil {
			return err
		}
		if p.ds.TormaysTableTemp == "" {
			continue
		}
		if err := replace(ctx, store, config.ExpandTemplate(p.ds.TormaysTableTemp, vp.buffer), vp.polys); err != nil {
			return err
		}
	}
	return nil
}

func (p *liikennemaarat) SaveToFile() error {
	if err := p.saveTarget(p.lines); err != nil {
		return err
	}
	path, err := p.cfg.TargetBufferFile(p.key)
	if err != nil {
		return err
	}
	for _, vp := range p.buffers {
		if err := save(config.ExpandTemplate(path, vp.buffer), vp.polys); err != nil {
			return err
		}
	}
	return nil
}
