package datasets

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/haitaton/gis-material-update/internal/core"
	"github.com/haitaton/gis-material-update/internal/geo"
	"github.com/haitaton/gis-material-update/internal/logging"
	"github.com/paulsmith/gogeos/geos"
)

// railway tag values that mark tram infrastructure.
var tramRailways = []string{"tram", "light_rail"}

const (
	otherTagsField = "other_tags"
	debugSchema    = "debug"
)

func init() {
	registerTramInfra()
}

func registerTramInfra() {
	core.Register(core.DatasetDefinition{
		Info: core.DatasetInfo{
			Key:   "tram_infra",
			Group: "infra",
			Label: "Tram infra",
		},
		New:     newTramInfra,
		Tormays: tormays("tram_infra"),
	})
}

type tramInfra struct {
	base
	source *geo.Collection
	area   *geos.Geometry

	debug *geo.Collection
	lines *geo.Collection
	polys *geo.Collection
}

func newTramInfra(env core.Env) (core.Processor, error) {
	b, err := newBase(env, "tram_infra")
	if err != nil {
		return nil, err
	}
	source, err := b.readSource()
	if err != nil {
		return nil, err
	}
	area, err := b.cityArea()
	if err != nil {
		return nil, err
	}
	return &tramInfra{base: b, source: source, area: area}, nil
}

func (p *tramInfra) Process(ctx context.Context) error {
	buffer, err := p.singleBuffer()
	if err != nil {
		return err
	}

	debug, err := tramTracks(ctx, p.source)
	if err != nil {
		return err
	}
	lines := debug.Select(fieldInfra.Name)
	polys, err := lines.Buffer(buffer)
	if err != nil {
		return fmt.Errorf("buffer: %w", err)
	}
	if polys, err = polys.ClipTo(p.area); err != nil {
		return fmt.Errorf("clip to city area: %w", err)
	}

	p.debug, p.lines, p.polys = debug, lines, polys
	logResult(ctx, "tram_infra", lines)
	logResult(ctx, "tram_infra_polys", polys)
	return nil
}

// tramTracks keeps the features whose railway tag names a tram type. The
// result carries the source fields, one text field per OSM tag and infra = 1.
// Features with unparsable tags are skipped.
func tramTracks(ctx context.Context, src *geo.Collection) (*geo.Collection, error) {
	if _, ok := src.Field(otherTagsField); !ok {
		return nil, fmt.Errorf("tram infra source has no %s field", otherTagsField)
	}

	type track struct {
		f    geo.Feature
		tags map[string]string
	}
	var tracks []track
	tagNames := map[string]bool{}
	for _, f := range src.Features {
		raw := stringProp(f.Properties, otherTagsField)
		if raw == "" {
			continue
		}
		tags, err := parseTags(raw)
		if err != nil {
			logging.FromContext(ctx).Warn("tags skipped", "fid", f.FID, "error", err)
			continue
		}
		if !isTramRailway(tags["railway"]) {
			continue
		}
		tracks = append(tracks, track{f: f, tags: tags})
		for k := range tags {
			tagNames[k] = true
		}
	}

	out := geo.NewCollection(src.SRID, src.Fields...)
	names := make([]string, 0, len(tagNames))
	for k := range tagNames {
		if _, exists := out.Field(k); !exists && k != fieldInfra.Name {
			names = append(names, k)
		}
	}
	sort.Strings(names)
	for _, n := range names {
		out.AddField(geo.Field{Name: n, Type: geo.FieldText})
	}
	out.AddField(fieldInfra)

	for _, t := range tracks {
		props := make(map[string]any, len(out.Fields))
		for k, v := range t.f.Properties {
			props[k] = v
		}
		for _, n := range names {
			if v, ok := t.tags[n]; ok {
				props[n] = v
			} else {
				props[n] = nil
			}
		}
		props[fieldInfra.Name] = int64(1)
		out.Add(t.f.Geometry, props)
	}
	return out, nil
}

func isTramRailway(railway string) bool {
	for _, v := range tramRailways {
		if strings.Contains(railway, v) {
			return true
		}
	}
	return false
}

// parseTags parses an hstore text of the form "k1"=>"v1","k2"=>"v2".
// NULL values are dropped.
func parseTags(s string) (map[string]string, error) {
	tags := map[string]string{}
	i := 0
	skipSpace := func() {
		for i < len(s) && (s[i] == ' ' || s[i] == '\t' || s[i] == '\n') {
			i++
		}
	}
	for {
		skipSpace()
		if i >= len(s) {
			return tags, nil
		}
		key, next, err := quoted(s, i)
		if err != nil {
			return nil, err
		}
		i = next
		skipSpace()
		if !strings.HasPrefix(s[i:], "=>") {
			return nil, fmt.Errorf("tag %q: missing =>", key)
		}
		i += 2
		skipSpace()

		if strings.HasPrefix(s[i:], "NULL") {
			i += 4
		} else {
			val, next, err := quoted(s, i)
			if err != nil {
				return nil, fmt.Errorf("tag %q: %w", key, err)
			}
			i = next
			tags[key] = val
		}

		skipSpace()
		if i < len(s) {
			if s[i] != ',' {
				return nil, fmt.Errorf("unexpected %q at offset %d", s[i], i)
			}
			i++
		}
	}
}

// quoted reads a double-quoted string starting at s[i]. Backslash escapes
// the next character. Returns the text and the offset after the closing
// quote.
func quoted(s string, i int) (string, int, error) {
	if i >= len(s) || s[i] != '"' {
		return "", i, fmt.Errorf("expected '\"' at offset %d", i)
	}
	var b strings.Builder
	for j := i + 1; j < len(s); j++ {
		switch s[j] {
		case '\\':
			j++
			if j < len(s) {
				b.WriteByte(s[j])
			}
		case '"':
			return b.String(), j + 1, nil
		default:
			b.WriteByte(s[j])
		}
	}
	return "", len(s), fmt.Errorf("unterminated string at offset %d", i)
}

func (p *tramInfra) PersistToDatabase(ctx context.Context, store *core.Store) error {
	if err := store.EnsureSchema(ctx, debugSchema); err != nil {
		return err
	}
	if err := replace(ctx, store, debugSchema+".tram_infra", p.debug); err != nil {
		return err
	}
	if err := replace(ctx, store, "tram_infra", p.lines); err != nil {
		return err
	}
	if err := replace(ctx, store, "tram_infra_polys", p.polys); err != nil {
		return err
	}
	return p.replaceTemp(ctx, store, p.polys)
}

func (p *tramInfra) SaveToFile() error {
	if err := p.saveTarget(p.lines); err != nil {
		return err
	}
	return p.saveTargetBuffer(p.polys)
}
