package core

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/haitaton/gis-material-update/internal/geo"
	"github.com/haitaton/gis-material-update/internal/logging"
	"github.com/jackc/pgx/v5"
)

// DefaultBatchSize is the number of inserts queued per round trip.
const DefaultBatchSize = 1000

// ErrNoDatabase is returned when a database operation is attempted without
// a connection pool.
var ErrNoDatabase = errors.New("database not configured")

// reserved columns written by ReplaceTable itself.
const (
	fidColumn      = "fid"
	geometryColumn = "geometry"
)

// Store writes feature collections into PostGIS.
type Store struct {
	db        TxBeginner
	batchSize int
}

// NewStore creates a store on db. A non-positive batchSize selects
// DefaultBatchSize.
func NewStore(db TxBeginner, batchSize int) *Store {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Store{db: db, batchSize: batchSize}
}

// EnsureSchema creates schema if it does not exist.
func (s *Store) EnsureSchema(ctx context.Context, schema string) error {
	if s == nil || s.db == nil {
		return ErrNoDatabase
	}
	if _, err := s.db.Exec(ctx, "CREATE SCHEMA IF NOT EXISTS "+quoteIdentifier(schema)); err != nil {
		return fmt.Errorf("create schema %s: %w", schema, err)
	}
	return nil
}

// ReplaceTable drops and recreates the table name ("schema.table" or a bare
// table in public) from c in one transaction. The table gets a bigint fid
// primary key, one column per field and a geometry column with a GiST
// index. Returns the number of rows written.
func (s *Store) ReplaceTable(ctx context.Context, name string, c *geo.Collection) (int64, error) {
	if s == nil || s.db == nil {
		return 0, ErrNoDatabase
	}
	log := logging.FromContext(ctx)
	table := quoteQualified(name)

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "DROP TABLE IF EXISTS "+table); err != nil {
		return 0, fmt.Errorf("drop %s: %w", name, err)
	}

	fields := writableFields(c.Fields)
	if _, err := tx.Exec(ctx, createTableSQL(table, fields, c.SRID)); err != nil {
		return 0, fmt.Errorf("create %s: %w", name, err)
	}

	insert := insertSQL(table, fields, c.SRID)
	batch := &pgx.Batch{}
	var written int64
	for _, f := range c.Features {
		args := make([]any, 0, len(fields)+2)
		args = append(args, f.FID)
		for _, fld := range fields {
			args = append(args, columnValue(f.Properties[fld.Name], fld.Type))
		}
		var wkb []byte
		if f.Geometry != nil {
			if wkb, err = f.Geometry.ToWKB(); err != nil {
				return 0, fmt.Errorf("encode feature %d: %w", f.FID, err)
			}
		}
		args = append(args, wkb)
		batch.Queue(insert, args...)

		if batch.Len() >= s.batchSize {
			if err := sendBatch(ctx, tx, batch); err != nil {
				return 0, fmt.Errorf("insert into %s: %w", name, err)
			}
			written += int64(batch.Len())
			batch = &pgx.Batch{}
		}
	}
	if batch.Len() > 0 {
		if err := sendBatch(ctx, tx, batch); err != nil {
			return 0, fmt.Errorf("insert into %s: %w", name, err)
		}
		written += int64(batch.Len())
	}

	if _, err := tx.Exec(ctx, fmt.Sprintf("CREATE INDEX ON %s USING GIST (%s)", table, geometryColumn)); err != nil {
		return 0, fmt.Errorf("index %s: %w", name, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}

	log.Info("table replaced", "table", name, "rows", written, "srid", c.SRID)
	return written, nil
}

// CountGeometries returns the number of rows of table where column holds a
// geometry. An empty column selects geometry.
func (s *Store) CountGeometries(ctx context.Context, table, column string) (int64, error) {
	if s == nil || s.db == nil {
		return 0, ErrNoDatabase
	}
	if column == "" {
		column = geometryColumn
	}
	var n int64
	q := fmt.Sprintf("SELECT count(*) FROM %s WHERE %s IS NOT NULL", quoteQualified(table), quoteIdentifier(column))
	if err := s.db.QueryRow(ctx, q).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return n, nil
}

func sendBatch(ctx context.Context, db DBTX, batch *pgx.Batch) error {
	br := db.SendBatch(ctx, batch)
	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return err
		}
	}
	return br.Close()
}

// writableFields drops fields that collide with the fid or geometry column.
func writableFields(fields []geo.Field) []geo.Field {
	out := make([]geo.Field, 0, len(fields))
	for _, f := range fields {
		switch strings.ToLower(f.Name) {
		case fidColumn, geometryColumn:
			continue
		}
		out = append(out, f)
	}
	return out
}

func createTableSQL(table string, fields []geo.Field, srid int) string {
	cols := make([]string, 0, len(fields)+2)
	cols = append(cols, fidColumn+" bigint PRIMARY KEY")
	for _, f := range fields {
		cols = append(cols, quoteIdentifier(f.Name)+" "+columnType(f.Type))
	}
	cols = append(cols, fmt.Sprintf("%s geometry(Geometry, %d)", geometryColumn, srid))
	return fmt.Sprintf("CREATE TABLE %s (%s)", table, strings.Join(cols, ", "))
}

func insertSQL(table string, fields []geo.Field, srid int) string {
	cols := make([]string, 0, len(fields)+2)
	params := make([]string, 0, len(fields)+2)
	cols = append(cols, fidColumn)
	params = append(params, "$1")
	for i, f := range fields {
		cols = append(cols, quoteIdentifier(f.Name))
		params = append(params, fmt.Sprintf("$%d", i+2))
	}
	cols = append(cols, geometryColumn)
	params = append(params, fmt.Sprintf("ST_SetSRID(ST_GeomFromWKB($%d), %d)", len(fields)+2, srid))
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, strings.Join(cols, ", "), strings.Join(params, ", "))
}
