package core

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/haitaton/gis-material-update/internal/geo"
)

// DefaultSchema is used for table names without a schema part.
const DefaultSchema = "public"

// quoteIdentifier quotes a SQL identifier to prevent injection.
func quoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// splitQualified splits "schema.table" into its parts. A bare table name is
// placed in DefaultSchema.
func splitQualified(name string) (schema, table string) {
	if i := strings.IndexByte(name, '.'); i >= 0 {
		return name[:i], name[i+1:]
	}
	return DefaultSchema, name
}

// quoteQualified quotes a possibly schema-qualified table name.
// "tormays.bus_polys" -> "tormays"."bus_polys"
func quoteQualified(name string) string {
	schema, table := splitQualified(name)
	return quoteIdentifier(schema) + "." + quoteIdentifier(table)
}

// columnType returns the PostgreSQL type of an attribute field.
func columnType(t geo.FieldType) string {
	switch t {
	case geo.FieldInteger:
		return "bigint"
	case geo.FieldReal:
		return "double precision"
	case geo.FieldBool:
		return "boolean"
	default:
		return "text"
	}
}

// columnValue coerces a feature property to the Go type pgx encodes for the
// column type of t. Values that cannot be converted become NULL.
func columnValue(v any, t geo.FieldType) any {
	if v == nil {
		return nil
	}
	switch t {
	case geo.FieldInteger:
		switch x := v.(type) {
		case int64:
			return x
		case int:
			return int64(x)
		case float64:
			return int64(x)
		case bool:
			if x {
				return int64(1)
			}
			return int64(0)
		case string:
			if n, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64); err == nil {
				return n
			}
		}
		return nil
	case geo.FieldReal:
		switch x := v.(type) {
		case float64:
			return x
		case int64:
			return float64(x)
		case int:
			return float64(x)
		case string:
			if f, err := strconv.ParseFloat(strings.TrimSpace(x), 64); err == nil {
				return f
			}
		}
		return nil
	case geo.FieldBool:
		switch x := v.(type) {
		case bool:
			return x
		case int64:
			return x != 0
		case string:
			if b, err := strconv.ParseBool(x); err == nil {
				return b
			}
		}
		return nil
	default:
		if s, ok := v.(string); ok {
			return s
		}
		return fmt.Sprint(v)
	}
}
