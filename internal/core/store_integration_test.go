package core

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/haitaton/gis-material-update/internal/config"
	"github.com/haitaton/gis-material-update/internal/geo"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/paulsmith/gogeos/geos"
)

// testStore connects to the database named by HAITATON_TEST_DATABASE_URL and
// skips the test when it is unset.
func testStore(t *testing.T) *Store {
	t.Helper()
	url := os.Getenv("HAITATON_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("HAITATON_TEST_DATABASE_URL not set")
	}
	pool, err := pgxpool.New(t.Context(), url)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(pool.Close)
	return NewStore(pool, 2)
}

func squares(t *testing.T, n int) *geo.Collection {
	t.Helper()
	c := geo.NewCollection(3879, geo.Field{Name: "route_id", Type: geo.FieldText})
	for i := 0; i < n; i++ {
		x := float64(i * 10)
		g, err := geos.FromWKT(wktSquare(x))
		if err != nil {
			t.Fatalf("wkt: %v", err)
		}
		c.Add(g, map[string]any{"route_id": "r"})
	}
	return c
}

func wktSquare(x float64) string {
	return fmt.Sprintf("POLYGON ((%[1]g 0, %[2]g 0, %[2]g 5, %[1]g 5, %[1]g 0))", x, x+5)
}

func TestStore_ReplaceValidateDeploy(t *testing.T) {
	s := testStore(t)
	ctx := t.Context()
	t.Cleanup(func() {
		s.db.Exec(context.Background(), "DROP TABLE IF EXISTS it_polys, it_polys_temp")
	})

	if n, err := s.ReplaceTable(ctx, "it_polys", squares(t, 10)); err != nil || n != 10 {
		t.Fatalf("ReplaceTable org = %d, %v", n, err)
	}
	if n, err := s.ReplaceTable(ctx, "it_polys_temp", squares(t, 11)); err != nil || n != 11 {
		t.Fatalf("ReplaceTable temp = %d, %v", n, err)
	}

	target := TormaysTarget{Org: "it_polys", Temp: "it_polys_temp", LimitMin: 0.9, LimitMax: 1.2, Mode: config.DeployDeleteInsert}
	v, err := s.Validate(ctx, target)
	if err != nil || !v.Valid() {
		t.Fatalf("Validate = %+v, %v", v, err)
	}

	d, err := s.Deploy(ctx, target)
	if err != nil {
		t.Fatalf("Deploy: %v", err)
	}
	if d.Deleted != 10 || d.Inserted != 11 {
		t.Errorf("deploy rows = %d/%d, want 10/11", d.Deleted, d.Inserted)
	}
	if n, _ := s.CountGeometries(ctx, "it_polys", ""); n != 11 {
		t.Errorf("production rows = %d, want 11", n)
	}
}
