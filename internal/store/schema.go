package store

import (
	"fmt"
	"strings"

	"github.com/amaumene/streamarr/internal/models"
)

// Schema selects the column layout of a store
type Schema int

const (
	// Primary stores carry time, settings and idSlug columns
	Primary Schema = iota
	// External stores are shipped read-only and drop time, settings and idSlug
	External
)

func (s Schema) String() string {
	if s == External {
		return "external"
	}
	return "primary"
}

const (
	colTime     = "time"
	colSettings = "settings"
	colImdb     = "idImdb"
	colTmdb     = "idTmdb"
	colTvdb     = "idTvdb"
	colTrakt    = "idTrakt"
	colSlug     = "idSlug"
	colSeason   = "season"
	colPart     = "part"
	colData     = "data"
)

// indexedColumns are the external id columns with a single-column index
var indexedColumns = []string{colImdb, colTmdb, colTvdb, colTrakt}

// table quotes a kind as a table name ("set" is a keyword)
func table(kind models.Kind) string {
	return `"` + string(kind) + `"`
}

// columns returns the ordered column list of a kind's table
func columns(kind models.Kind, schema Schema) []string {
	var cols []string
	if schema == Primary {
		cols = append(cols, colTime, colSettings)
	}
	cols = append(cols, colImdb, colTmdb, colTvdb, colTrakt)
	if schema == Primary {
		cols = append(cols, colSlug)
	}
	if kind == models.KindEpisode {
		cols = append(cols, colSeason)
	}
	return append(cols, colPart, colData)
}

// primaryKey returns the primary key columns of a kind's table
func primaryKey(kind models.Kind, schema Schema) []string {
	var key []string
	if schema == Primary {
		key = append(key, colSettings)
	}
	switch kind {
	case models.KindMovie:
		key = append(key, colImdb, colTmdb, colTrakt)
	case models.KindSet:
		key = append(key, colTmdb)
	case models.KindEpisode:
		key = append(key, colImdb, colTvdb, colTrakt, colSeason)
	default:
		key = append(key, colImdb, colTvdb, colTrakt)
	}
	return key
}

func columnType(col string) string {
	switch col {
	case colTime, colSeason:
		return "INTEGER"
	default:
		return "TEXT"
	}
}

// schemaStatements returns the CREATE statements of a kind's table and indices
func schemaStatements(kind models.Kind, schema Schema) []string {
	var defs []string
	for _, col := range columns(kind, schema) {
		defs = append(defs, col+" "+columnType(col))
	}
	defs = append(defs, fmt.Sprintf("PRIMARY KEY (%s)", strings.Join(primaryKey(kind, schema), ", ")))

	statements := []string{
		fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", table(kind), strings.Join(defs, ", ")),
	}
	for _, col := range indexedColumns {
		target := col
		if kind == models.KindEpisode {
			target = col + ", " + colSeason
		}
		statements = append(statements, fmt.Sprintf(
			"CREATE INDEX IF NOT EXISTS %s_%s ON %s (%s)", kind, col, table(kind), target))
	}
	return statements
}
