package store

import (
	"strings"

	"github.com/amaumene/streamarr/internal/models"
)

// Match selects how the ids of a query are combined
type Match int

const (
	// MatchNone selects every row of the table
	MatchNone Match = iota
	// MatchAnyID selects rows where at least one id column equals its input,
	// best matches first
	MatchAnyID
	// MatchAllID selects rows where every provided id column equals its input
	MatchAllID
)

// Query describes a row selection on one kind's table
type Query struct {
	Match    Match
	IDs      models.IDs
	Season   *int    // Episode tables only
	Settings *string // Restrict to one settings fingerprint (primary schema only)
	Limit    int
}

// MatchAny builds the best-match selection: any id column equal, ordered by the
// number of matching id columns, then by write time
func MatchAny(ids models.IDs, season *int) Query {
	return Query{Match: MatchAnyID, IDs: ids, Season: season}
}

// MatchAll builds the full-match selection used before replacing a row
func MatchAll(ids models.IDs, season *int) Query {
	return Query{Match: MatchAllID, IDs: ids, Season: season}
}

// All selects every row, oldest first
func All() Query {
	return Query{Match: MatchNone}
}

// WithSettings restricts q to rows written under settings
func (q Query) WithSettings(settings string) Query {
	q.Settings = &settings
	return q
}

type idColumn struct {
	column string
	value  string
}

// idColumns returns the non-empty ids of a query mapped to their columns
func idColumns(ids models.IDs, schema Schema) []idColumn {
	var cols []idColumn
	add := func(column, value string) {
		if value != "" {
			cols = append(cols, idColumn{column: column, value: value})
		}
	}
	add(colImdb, ids.IMDb)
	add(colTmdb, ids.TMDb)
	add(colTvdb, ids.TVDb)
	add(colTrakt, ids.Trakt)
	if schema == Primary {
		add(colSlug, ids.Slug)
	}
	return cols
}

// render builds the WHERE and ORDER BY clauses of q. ok is false when the
// query cannot match anything (no usable ids).
func (q Query) render(kind models.Kind, schema Schema) (where, order string, args, orderArgs []any, ok bool) {
	var conditions []string

	ids := idColumns(q.IDs, schema)
	switch q.Match {
	case MatchAnyID, MatchAllID:
		if len(ids) == 0 {
			return "", "", nil, nil, false
		}
		var matches, scores []string
		for _, id := range ids {
			matches = append(matches, id.column+" = ?")
			args = append(args, id.value)
			scores = append(scores, "IIF("+id.column+" = ?, 1, 0)")
			orderArgs = append(orderArgs, id.value)
		}
		if q.Match == MatchAnyID {
			conditions = append(conditions, "("+strings.Join(matches, " OR ")+")")
			order = "(" + strings.Join(scores, " + ") + ") DESC"
			if schema == Primary {
				order += ", " + colTime + " DESC"
			}
		} else {
			conditions = append(conditions, matches...)
			orderArgs = nil
		}
	default:
		if schema == Primary {
			order = colTime + " ASC"
		}
	}

	if q.Season != nil && kind == models.KindEpisode {
		conditions = append(conditions, colSeason+" = ?")
		args = append(args, *q.Season)
	}
	if q.Settings != nil && schema == Primary {
		conditions = append(conditions, colSettings+" = ?")
		args = append(args, *q.Settings)
	}

	if len(conditions) > 0 {
		where = strings.Join(conditions, " AND ")
	}
	return where, order, args, orderArgs, true
}
